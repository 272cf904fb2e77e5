// Package policy provides allow/deny rule evaluation for tools, commands,
// filesystem paths, and network domains.
package policy

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Type classifies what a policy applies to.
type Type string

const (
	TypeTool    Type = "tool"
	TypeCommand Type = "command"
	TypePath    Type = "path"
	TypeDomain  Type = "domain"
)

// Action is the effect of a matched policy.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
)

// DefaultDenyPriority is the sentinel priority reported when no rule matches.
const DefaultDenyPriority = 999

// Policy is a single allow/deny rule.
// Pattern supports exact match, "prefix/*" prefix match, and general "*"
// wildcards (compiled to an anchored, case-insensitive regex).
type Policy struct {
	Type       Type   `json:"type"`
	Category   string `json:"category,omitempty"`
	Pattern    string `json:"pattern"`
	Action     Action `json:"action"`
	Priority   int    `json:"priority"` // lower = higher precedence
	RiskWeight int    `json:"riskWeight"`
}

// Decision is the result of a policy evaluation.
type Decision struct {
	Allowed     bool      `json:"allowed"`
	Reason      string    `json:"reason"`
	MatchedRule *Policy   `json:"matchedRule,omitempty"` // nil when no rule matched
	Priority    int       `json:"priority"`
	RiskWeight  int       `json:"riskWeight"`
	Ts          time.Time `json:"ts"`
}

// Registry evaluates policies against pattern tables. The policy set is
// read-mostly; decisions are cached per type with a TTL and invalidated
// explicitly whenever policies change.
type Registry struct {
	mu       sync.RWMutex
	policies []Policy
	cacheTTL time.Duration
	cache    map[string]cachedDecision
	now      func() time.Time
}

type cachedDecision struct {
	decision Decision
	expires  time.Time
}

// NewRegistry creates a policy registry with the given rule set.
func NewRegistry(policies []Policy, cacheTTL time.Duration) *Registry {
	return &Registry{
		policies: append([]Policy(nil), policies...),
		cacheTTL: cacheTTL,
		cache:    make(map[string]cachedDecision),
		now:      time.Now,
	}
}

// SetPolicies replaces the rule set and invalidates the decision cache.
func (r *Registry) SetPolicies(policies []Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies = append([]Policy(nil), policies...)
	r.cache = make(map[string]cachedDecision)
}

// Policies returns a copy of the current rule set.
func (r *Registry) Policies() []Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Policy(nil), r.policies...)
}

// Invalidate drops every cached decision.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]cachedDecision)
}

// IsToolAllowed evaluates tool policies for the given tool id.
func (r *Registry) IsToolAllowed(id string) Decision {
	return r.evaluate(TypeTool, "", id)
}

// IsCommandAllowed evaluates command policies for the given shell command.
func (r *Registry) IsCommandAllowed(cmd string) Decision {
	return r.evaluate(TypeCommand, "", cmd)
}

// IsPathAllowed evaluates path policies for the given path and operation
// (read, write, delete). Policies with an empty category apply to every
// operation.
func (r *Registry) IsPathAllowed(path, op string) Decision {
	return r.evaluate(TypePath, op, path)
}

// IsDomainAllowed evaluates domain policies for the given network domain.
func (r *Registry) IsDomainAllowed(domain string) Decision {
	return r.evaluate(TypeDomain, "", domain)
}

func (r *Registry) evaluate(pt Type, category, subject string) Decision {
	key := string(pt) + "\x00" + category + "\x00" + subject

	r.mu.RLock()
	if cached, ok := r.cache[key]; ok && r.now().Before(cached.expires) {
		r.mu.RUnlock()
		return cached.decision
	}
	candidates := r.candidates(pt, category)
	r.mu.RUnlock()

	d := r.match(candidates, subject)
	d.Ts = r.now()

	if d.Allowed {
		slog.Debug("Policy allowed", "type", pt, "subject", subject, "reason", d.Reason)
	} else {
		slog.Warn("Policy denied", "type", pt, "subject", subject, "reason", d.Reason)
	}

	r.mu.Lock()
	r.cache[key] = cachedDecision{decision: d, expires: r.now().Add(r.cacheTTL)}
	r.mu.Unlock()

	return d
}

// candidates returns the rules for a type (and category, when set) sorted by
// ascending priority. Callers hold at least a read lock.
func (r *Registry) candidates(pt Type, category string) []Policy {
	var out []Policy
	for _, p := range r.policies {
		if p.Type != pt {
			continue
		}
		if category != "" && p.Category != "" && p.Category != category {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// match scans candidates in priority order; the first pattern match wins.
// No match is a default deny.
func (r *Registry) match(candidates []Policy, subject string) Decision {
	for i := range candidates {
		p := candidates[i]
		if !patternMatches(p.Pattern, subject) {
			continue
		}
		return Decision{
			Allowed:     p.Action == ActionAllow,
			Reason:      "matched " + string(p.Action) + " rule " + p.Pattern,
			MatchedRule: &p,
			Priority:    p.Priority,
			RiskWeight:  p.RiskWeight,
		}
	}
	return Decision{
		Allowed:  false,
		Reason:   "no matching rule, default deny",
		Priority: DefaultDenyPriority,
	}
}

// patternMatches implements the three pattern forms: exact equality,
// "prefix/*" prefix matching, and general "*" wildcards.
func patternMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	if strings.HasSuffix(pattern, "/*") && !strings.Contains(strings.TrimSuffix(pattern, "/*"), "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(subject, prefix) || subject == strings.TrimSuffix(prefix, "/")
	}
	if strings.Contains(pattern, "*") {
		re, err := compileWildcard(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(subject)
	}
	return false
}

// compileWildcard turns a "*"-wildcard pattern into an anchored,
// case-insensitive regex with everything else escaped literally.
func compileWildcard(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.Compile(`(?i)^` + strings.Join(parts, ".*") + `$`)
}
