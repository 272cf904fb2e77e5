package approval

import "strings"

// Decision is the intent extracted from a free-text reply.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionNone    Decision = ""
)

// Rejection phrases are checked first: when a message contains both kinds
// of keyword ("no, don't approve") the conservative reading wins.
var rejectPhrases = []string{
	"do not", "don't", "reject", "denied", "deny", "decline",
	"cancel", "stop", "abort", "negative",
}

var approvePhrases = []string{
	"approve", "go ahead", "proceed", "confirm", "lgtm",
	"yes", "ok", "okay", "allow",
}

// Single words that only count as a decision when they stand on their own,
// so "no" inside "know" or "notebook" never matches.
var rejectWords = map[string]bool{"no": true, "nope": true, "nack": true}
var approveWords = map[string]bool{"y": true, "yep": true, "yeah": true, "ack": true}

// DetectDecision scans a free-text message for an approval or rejection.
// Returns DecisionNone when the message is ambiguous; the caller must not
// assume intent in that case.
func DetectDecision(text string) Decision {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return DecisionNone
	}

	for _, p := range rejectPhrases {
		if containsPhrase(lower, p) {
			return DecisionReject
		}
	}
	for _, w := range strings.Fields(lower) {
		if rejectWords[strings.Trim(w, ".,!?")] {
			return DecisionReject
		}
	}

	for _, p := range approvePhrases {
		if containsPhrase(lower, p) {
			return DecisionApprove
		}
	}
	for _, w := range strings.Fields(lower) {
		if approveWords[strings.Trim(w, ".,!?")] {
			return DecisionApprove
		}
	}
	return DecisionNone
}

// containsPhrase reports whether phrase occurs in text on word boundaries.
func containsPhrase(text, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' || c == '\''
}
