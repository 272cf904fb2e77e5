package approval

import "testing"

func TestDetectDecision(t *testing.T) {
	cases := []struct {
		text string
		want Decision
	}{
		{"approve", DecisionApprove},
		{"Approved, go ahead", DecisionApprove},
		{"yes please", DecisionApprove},
		{"ok", DecisionApprove},
		{"LGTM", DecisionApprove},
		{"reject", DecisionReject},
		{"deny this", DecisionReject},
		{"no", DecisionReject},
		{"please cancel that", DecisionReject},
		{"stop!", DecisionReject},
		// Rejection keywords win over approval keywords.
		{"no, don't approve", DecisionReject},
		{"do not proceed", DecisionReject},
		// Keywords inside larger words never match.
		{"I know the denominator", DecisionNone},
		{"the tokyo office", DecisionNone},
		{"", DecisionNone},
		{"what does this command do?", DecisionNone},
	}
	for _, c := range cases {
		if got := DetectDecision(c.text); got != c.want {
			t.Fatalf("DetectDecision(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}
