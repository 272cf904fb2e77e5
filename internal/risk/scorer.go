// Package risk computes 0-100 risk scores for prospective operations.
package risk

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/ToolGate/ToolGate/internal/policy"
	"github.com/ToolGate/ToolGate/internal/redact"
)

// Level buckets a score into a severity band.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// GateAction is what the risk gate demands before execution.
type GateAction string

const (
	ActionAutoApprove              GateAction = "auto_approve"
	ActionRequireApproval          GateAction = "require_approval"
	ActionRequireApprovalJustified GateAction = "require_approval_with_justification"
)

// Assessment is the output of a scoring function.
type Assessment struct {
	Score            int        `json:"score"`
	Level            Level      `json:"level"`
	Action           GateAction `json:"action"`
	Factors          []string   `json:"factors"`
	RequiresApproval bool       `json:"requiresApproval"`
}

// Baseline weights per operation class.
const (
	WeightRead         = 1
	WeightWrite        = 10
	WeightDelete       = 25
	WeightNetwork      = 15
	WeightShell        = 35
	WeightPrivileged   = 50
	WeightSystemMod    = 40
	WeightExfiltration = 30
)

// approvalThreshold is the score at or above which human approval is required.
const approvalThreshold = 26

// justificationThreshold is the score at or above which approval additionally
// needs a free-text justification.
const justificationThreshold = 76

// OperationKind discriminates Operation payloads.
type OperationKind string

const (
	KindToolCall OperationKind = "tool_call"
	KindCommand  OperationKind = "command"
	KindFile     OperationKind = "file"
	KindNetwork  OperationKind = "network"
)

// Operation is a prospective side effect to be scored, simulated, or gated.
type Operation struct {
	Kind OperationKind `json:"kind"`

	// Tool call fields.
	ToolID string         `json:"toolId,omitempty"`
	Params map[string]any `json:"params,omitempty"`

	// Command fields.
	Command    string `json:"command,omitempty"`
	WorkingDir string `json:"workingDir,omitempty"`

	// File fields.
	Path      string `json:"path,omitempty"`
	FileOp    string `json:"fileOp,omitempty"` // read, write, delete
	FileCount int    `json:"fileCount,omitempty"`

	// Network fields.
	Domain  string            `json:"domain,omitempty"`
	Method  string            `json:"method,omitempty"`
	HasBody bool              `json:"hasBody,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// Human-facing description of the operation, used by approval requests.
	Summary     string `json:"summary,omitempty"`
	FullContent string `json:"fullContent,omitempty"`
}

// dangerousCommand pairs a compiled idiom with its score contribution.
type dangerousCommand struct {
	label  string
	re     *regexp.Regexp
	weight int
}

var dangerousCommands = []dangerousCommand{
	{"rm -rf", regexp.MustCompile(`\brm\s+(-\w+\s+)*-\w*(r\w*f|f\w*r)\w*\b`), 40},
	{"sudo", regexp.MustCompile(`\bsudo\b`), 50},
	{"chmod 777", regexp.MustCompile(`\bchmod\s+(-R\s+)?777\b`), 30},
	{"pipe to shell", regexp.MustCompile(`(curl|wget)\b[^|]*\|\s*(ba|z|da)?sh\b`), 45},
	{"raw disk write", regexp.MustCompile(`\bdd\b.*\bof=/dev/|\bmkfs\b|>\s*/dev/sd`), 50},
	{"fork bomb", regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`), 50},
	{"system shutdown", regexp.MustCompile(`\b(shutdown|reboot|halt|init\s+[0-6])\b`), 40},
	{"user management", regexp.MustCompile(`\b(useradd|userdel|usermod|passwd)\b`), 35},
	{"firewall change", regexp.MustCompile(`\b(iptables|ufw|firewall-cmd)\b`), 30},
	{"history tamper", regexp.MustCompile(`\bhistory\s+-c\b|\bunset\s+HISTFILE\b`), 30},
}

// sensitivePaths maps path substrings to their score contribution.
var sensitivePaths = []struct {
	fragment string
	weight   int
}{
	{"/etc/shadow", 50},
	{"id_rsa", 45},
	{".ssh/", 40},
	{"/etc/passwd", 40},
	{".aws/", 40},
	{".kube/", 35},
	{".env", 35},
	{"credentials", 35},
	{"/etc/sudoers", 50},
}

// riskyToolFragments maps tool-id substrings to a baseline weight.
var riskyToolFragments = []struct {
	fragment string
	weight   int
	label    string
}{
	{"shell", WeightShell, "shell capability"},
	{"exec", WeightShell, "shell capability"},
	{"delete", WeightDelete, "delete capability"},
	{"remove", WeightDelete, "delete capability"},
	{"write", WeightWrite, "write capability"},
	{"create", WeightWrite, "write capability"},
	{"http", WeightNetwork, "network capability"},
	{"fetch", WeightNetwork, "network capability"},
	{"request", WeightNetwork, "network capability"},
}

// Scorer computes risk assessments using policy-derived weights.
type Scorer struct {
	policies *policy.Registry
}

// NewScorer creates a scorer backed by the given policy registry.
func NewScorer(policies *policy.Registry) *Scorer {
	return &Scorer{policies: policies}
}

// Score dispatches on the operation kind.
func (s *Scorer) Score(op Operation) Assessment {
	switch op.Kind {
	case KindCommand:
		return s.ScoreCommand(op.Command, op.WorkingDir)
	case KindFile:
		return s.ScoreFileOperation(op.Path, op.FileOp, op.FileCount)
	case KindNetwork:
		return s.ScoreNetworkOperation(op.Domain, op.Method, op.HasBody, op.Headers)
	default:
		return s.ScoreToolCall(op.ToolID, op.Params)
	}
}

// ScoreToolCall scores a prospective tool invocation from its identifier and
// parameters.
func (s *Scorer) ScoreToolCall(toolID string, params map[string]any) Assessment {
	score := WeightRead
	factors := []string{"baseline read weight"}

	lower := strings.ToLower(toolID)
	for _, rf := range riskyToolFragments {
		if strings.Contains(lower, rf.fragment) {
			score = rf.weight
			factors[0] = rf.label
			break
		}
	}

	if w := s.policies.IsToolAllowed(toolID).RiskWeight; w > 0 {
		score += w
		factors = append(factors, fmt.Sprintf("policy risk weight +%d", w))
	}

	for key, val := range params {
		if redact.IsSensitiveKey(key) {
			score += 10
			factors = append(factors, "sensitive parameter "+key)
		}
		if isTruthyFlag(key, val, "privileged", "sudo", "as_root", "elevated") {
			score += WeightPrivileged
			factors = append(factors, "privileged flag "+key)
		}
		if isTruthyFlag(key, val, "force", "recursive") {
			score += 15
			factors = append(factors, "force/recursive flag "+key)
		}
	}

	return finalize(score, factors)
}

// ScoreCommand scores a prospective shell command.
func (s *Scorer) ScoreCommand(cmd, workingDir string) Assessment {
	score := WeightShell
	factors := []string{"shell baseline"}

	if w := s.policies.IsCommandAllowed(cmd).RiskWeight; w > 0 {
		score += w
		factors = append(factors, fmt.Sprintf("policy risk weight +%d", w))
	}

	for _, dc := range dangerousCommands {
		if dc.re.MatchString(cmd) {
			score += dc.weight
			factors = append(factors, dc.label)
		}
	}

	if strings.ContainsAny(cmd, "|&;") {
		score += 5
		factors = append(factors, "command chaining")
	}

	if workingDir != "" && !s.policies.IsPathAllowed(workingDir, "exec").Allowed {
		score += 20
		factors = append(factors, "working directory denied by policy")
	}

	return finalize(score, factors)
}

// ScoreFileOperation scores a prospective filesystem operation.
func (s *Scorer) ScoreFileOperation(path, op string, fileCount int) Assessment {
	var score int
	var factors []string
	switch op {
	case "delete":
		score = WeightDelete
		factors = []string{"delete baseline"}
	case "write", "create":
		score = WeightWrite
		factors = []string{"write baseline"}
	default:
		score = WeightRead
		factors = []string{"read baseline"}
	}

	decision := s.policies.IsPathAllowed(path, op)
	if !decision.Allowed && decision.MatchedRule != nil {
		score += 30
		factors = append(factors, "path denied by policy")
	}
	if decision.RiskWeight > 0 {
		score += decision.RiskWeight
		factors = append(factors, fmt.Sprintf("policy risk weight +%d", decision.RiskWeight))
	}

	lower := strings.ToLower(path)
	for _, sp := range sensitivePaths {
		if strings.Contains(lower, sp.fragment) {
			score += sp.weight
			factors = append(factors, "sensitive path "+sp.fragment)
		}
	}

	if fileCount > 10 {
		penalty := (fileCount - 10) / 5 * 5
		if penalty < 5 {
			penalty = 5
		}
		if penalty > 20 {
			penalty = 20
		}
		score += penalty
		factors = append(factors, fmt.Sprintf("bulk operation on %d files +%d", fileCount, penalty))
	}

	return finalize(score, factors)
}

// ScoreNetworkOperation scores a prospective network request.
func (s *Scorer) ScoreNetworkOperation(domain, method string, hasBody bool, headers map[string]string) Assessment {
	score := WeightNetwork
	factors := []string{"network egress baseline"}

	decision := s.policies.IsDomainAllowed(domain)
	if !decision.Allowed && decision.MatchedRule != nil {
		score += 25
		factors = append(factors, "domain denied by policy")
	}
	if decision.RiskWeight > 0 {
		score += decision.RiskWeight
		factors = append(factors, fmt.Sprintf("policy risk weight +%d", decision.RiskWeight))
	}

	if isPrivateTarget(domain) {
		score += 30
		factors = append(factors, "target is private or loopback address")
	}

	switch strings.ToUpper(method) {
	case "POST", "PUT", "PATCH", "DELETE":
		score += 5
		factors = append(factors, "mutating HTTP method")
	}

	if hasBody {
		score += 10
		factors = append(factors, "request carries a body")
	}

	for key := range headers {
		if strings.EqualFold(key, "authorization") {
			score += 5
			factors = append(factors, "authorization header present")
			break
		}
	}

	return finalize(score, factors)
}

// Aggregate averages the scores of pre-scored operations and takes the
// maximum level. The gate action is re-derived from the averaged score.
func Aggregate(assessments []Assessment) Assessment {
	if len(assessments) == 0 {
		return finalize(0, nil)
	}
	total := 0
	maxLevel := LevelLow
	var factors []string
	for _, a := range assessments {
		total += a.Score
		if levelRank(a.Level) > levelRank(maxLevel) {
			maxLevel = a.Level
		}
		factors = append(factors, a.Factors...)
	}
	agg := finalize(total/len(assessments), factors)
	agg.Level = maxLevel
	return agg
}

func levelRank(l Level) int {
	switch l {
	case LevelCritical:
		return 3
	case LevelHigh:
		return 2
	case LevelMedium:
		return 1
	default:
		return 0
	}
}

// finalize clamps the score and derives level, action, and the approval flag.
func finalize(score int, factors []string) Assessment {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	var level Level
	switch {
	case score <= 25:
		level = LevelLow
	case score <= 50:
		level = LevelMedium
	case score <= 75:
		level = LevelHigh
	default:
		level = LevelCritical
	}

	action := ActionAutoApprove
	switch {
	case score >= justificationThreshold:
		action = ActionRequireApprovalJustified
	case score >= approvalThreshold:
		action = ActionRequireApproval
	}

	return Assessment{
		Score:            score,
		Level:            level,
		Action:           action,
		Factors:          factors,
		RequiresApproval: score >= approvalThreshold,
	}
}

// isPrivateTarget reports whether the host is a literal private or loopback
// address. Hostnames are not resolved; only address literals and localhost
// names are recognized.
func isPrivateTarget(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if i := strings.LastIndex(h, ":"); i > 0 && !strings.Contains(h, "]") && strings.Count(h, ":") == 1 {
		h = h[:i]
	}
	h = strings.Trim(h, "[]")
	if h == "localhost" || strings.HasSuffix(h, ".localhost") || strings.HasSuffix(h, ".local") {
		return true
	}
	ip := net.ParseIP(h)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

func isTruthyFlag(key string, val any, names ...string) bool {
	lower := strings.ToLower(key)
	matched := false
	for _, n := range names {
		if lower == n {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	switch v := val.(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1" || v == "yes"
	default:
		return false
	}
}
