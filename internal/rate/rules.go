package rate

import (
	"fmt"
	"time"
)

// Default rule names. Rules form a closed enumeration: callers select them
// by name; there is no stringly-typed limit parsing.
const (
	RuleAuth   = "auth"
	RuleAPI    = "api"
	RuleStrict = "strict"
	RuleUpload = "upload"
	RulePublic = "public"
)

// DefaultRules returns the out-of-the-box rule set:
//
//	auth    5/minute and 10/hour, per IP
//	api     100/minute and 1000/hour, per user
//	strict  1/10s and 5/minute, per user
//	upload  3/5minutes and 10/hour, per user
//	public  1000/hour, global
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		RuleAuth: {
			Name: RuleAuth,
			Tiers: []Tier{
				{MaxCalls: 5, Window: time.Minute},
				{MaxCalls: 10, Window: time.Hour},
			},
			Identity: IdentityByIP,
		},
		RuleAPI: {
			Name: RuleAPI,
			Tiers: []Tier{
				{MaxCalls: 100, Window: time.Minute},
				{MaxCalls: 1000, Window: time.Hour},
			},
			Identity: IdentityByUser,
		},
		RuleStrict: {
			Name: RuleStrict,
			Tiers: []Tier{
				{MaxCalls: 1, Window: 10 * time.Second},
				{MaxCalls: 5, Window: time.Minute},
			},
			Identity: IdentityByUser,
		},
		RuleUpload: {
			Name: RuleUpload,
			Tiers: []Tier{
				{MaxCalls: 3, Window: 5 * time.Minute},
				{MaxCalls: 10, Window: time.Hour},
			},
			Identity: IdentityByUser,
		},
		RulePublic: {
			Name: RulePublic,
			Tiers: []Tier{
				{MaxCalls: 1000, Window: time.Hour},
			},
			Identity: IdentityGlobal,
		},
	}
}

// ValidateRule rejects rules that could never admit or never deny.
func ValidateRule(rule Rule) error {
	if rule.Name == "" {
		return fmt.Errorf("rate: rule has no name")
	}
	if len(rule.Tiers) == 0 {
		return fmt.Errorf("rate: rule %q has no tiers", rule.Name)
	}
	for _, tier := range rule.Tiers {
		if tier.MaxCalls <= 0 {
			return fmt.Errorf("rate: rule %q tier %s has non-positive limit", rule.Name, tier)
		}
		if tier.Window < time.Second {
			return fmt.Errorf("rate: rule %q tier %s has sub-second window", rule.Name, tier)
		}
	}
	return nil
}
