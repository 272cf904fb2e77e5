package policy

import (
	"encoding/json"
	"fmt"
	"os"
)

// DefaultPolicies is the baseline rule set used when no policy file
// exists. Tools, commands, paths, and domains are broadly allowed at low
// precedence; the risk scorer is the gate for dangerous content. A few
// unambiguously sensitive subjects are denied outright.
func DefaultPolicies() []Policy {
	return []Policy{
		// Hard denies.
		{Type: TypePath, Pattern: "/etc/shadow", Action: ActionDeny, Priority: 10, RiskWeight: 50},
		{Type: TypePath, Pattern: "*.ssh/*", Action: ActionDeny, Priority: 20, RiskWeight: 40},
		{Type: TypeDomain, Pattern: "169.254.169.254", Action: ActionDeny, Priority: 10, RiskWeight: 30},
		{Type: TypeDomain, Pattern: "metadata.google.internal", Action: ActionDeny, Priority: 10, RiskWeight: 30},

		// Catch-alls. Risk scoring still applies on top.
		{Type: TypeTool, Pattern: "*", Action: ActionAllow, Priority: 500},
		{Type: TypeCommand, Pattern: "*", Action: ActionAllow, Priority: 500},
		{Type: TypePath, Pattern: "*", Action: ActionAllow, Priority: 500},
		{Type: TypeDomain, Pattern: "*", Action: ActionAllow, Priority: 500},
	}
}

// LoadPolicies reads a JSON policy file. A missing file yields the
// default rule set.
func LoadPolicies(path string) ([]Policy, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultPolicies(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var policies []Policy
	if err := json.Unmarshal(data, &policies); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	return policies, nil
}

// SavePolicies writes the rule set as indented JSON.
func SavePolicies(path string, policies []Policy) error {
	data, err := json.MarshalIndent(policies, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
