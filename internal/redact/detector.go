// Package redact scrubs secrets and PII from traces, logs, and audit records.
package redact

import (
	"regexp"
	"strings"
)

// Match represents a single detection hit.
type Match struct {
	Type  string // e.g. "email", "api_key", "bearer_token"
	Value string // the matched text
	Start int    // byte offset in source string
	End   int    // byte offset end
}

type namedRegex struct {
	name string
	re   *regexp.Regexp
}

// Built-in sensitive patterns. "long_token" is deliberately last so the more
// specific shapes claim their matches first.
var builtinPatterns = []struct{ name, pattern string }{
	{"email", `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`},
	{"api_key", `\b(?:sk-[A-Za-z0-9\-_]{20,}|pk_[A-Za-z0-9]{20,}|AKIA[A-Z0-9]{16}|ghp_[A-Za-z0-9]{36}|glpat-[A-Za-z0-9\-]{20,})\b`},
	{"bearer_token", `(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`},
	{"private_key", `-----BEGIN\s+[A-Z\s]*PRIVATE\s+KEY-----`},
	{"password_literal", `(?i)(?:password|passwd|pwd|secret|token)\s*[:=]\s*\S+`},
	{"long_token", `\b[A-Za-z0-9]{32,}\b`},
}

// Detector scans text for sensitive patterns.
type Detector struct {
	detectors []namedRegex
}

// NewDetector creates a detector with all built-in patterns plus any custom
// ones. Invalid custom patterns are skipped.
func NewDetector(custom map[string]string) *Detector {
	d := &Detector{}
	for _, bp := range builtinPatterns {
		re, err := regexp.Compile(bp.pattern)
		if err != nil {
			continue
		}
		d.detectors = append(d.detectors, namedRegex{name: bp.name, re: re})
	}
	for name, pattern := range custom {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		d.detectors = append(d.detectors, namedRegex{name: name, re: re})
	}
	return d
}

// NewDefaultDetector creates a detector with only the built-in patterns.
func NewDefaultDetector() *Detector {
	return NewDetector(nil)
}

// Scan returns all matches found in the text.
func (d *Detector) Scan(text string) []Match {
	var matches []Match
	for _, nr := range d.detectors {
		for _, loc := range nr.re.FindAllStringIndex(text, -1) {
			matches = append(matches, Match{
				Type:  nr.name,
				Value: text[loc[0]:loc[1]],
				Start: loc[0],
				End:   loc[1],
			})
		}
	}
	return matches
}

// Redact replaces every match with a [REDACTED:<type>] placeholder.
func (d *Detector) Redact(text string) string {
	for _, nr := range d.detectors {
		text = nr.re.ReplaceAllString(text, "[REDACTED:"+nr.name+"]")
	}
	return text
}

// Text redacts text with the default detector. Convenience for call sites
// that do not carry a Detector.
func Text(text string) string {
	return defaultDetector.Redact(text)
}

var defaultDetector = NewDefaultDetector()

// SensitiveKeys are parameter names whose values are always masked regardless
// of shape.
var SensitiveKeys = []string{"password", "secret", "token", "api_key", "apikey", "private_key", "credential", "auth"}

// IsSensitiveKey reports whether a parameter name refers to a secret value.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range SensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// Params returns a copy of params with sensitive values masked and all string
// values run through the detector.
func (d *Detector) Params(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if IsSensitiveKey(k) {
			out[k] = "***"
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = d.Redact(s)
			continue
		}
		out[k] = v
	}
	return out
}

// MaskSecret partially masks a secret value, showing only the first and last
// few characters.
func MaskSecret(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
