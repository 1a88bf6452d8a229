package classify

import (
	"fmt"
	"regexp"

	"github.com/jask/jaskledger/internal/config"
)

// Classification is the output of a matched rule.
type Classification struct {
	Category    string
	Subcategory *string
	Fixed       bool
}

// RuleSet applies an ordered list of merchant rules. First match wins: rule
// lists are authored so that earlier, more specific rules shadow later general
// ones, so order is preserved exactly.
type RuleSet struct {
	rules []compiledRule
}

type compiledRule struct {
	re          *regexp.Regexp
	category    string
	subcategory string
	fixed       bool
}

// NewRuleSet compiles the patterns once, case-insensitively.
func NewRuleSet(rules []config.Rule) (*RuleSet, error) {
	out := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile("(?i)" + r.Match)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, r.Match, err)
		}
		out = append(out, compiledRule{
			re:          re,
			category:    r.Category,
			subcategory: r.Subcategory,
			fixed:       r.Fixed,
		})
	}
	return &RuleSet{rules: out}, nil
}

// Apply returns the classification of the first rule matching merchant, or
// false when no rule matches (the transaction stays unclassified).
func (rs *RuleSet) Apply(merchant string) (Classification, bool) {
	for _, r := range rs.rules {
		if r.re.MatchString(merchant) {
			c := Classification{Category: r.category, Fixed: r.fixed}
			if r.subcategory != "" {
				sub := r.subcategory
				c.Subcategory = &sub
			}
			return c, true
		}
	}
	return Classification{}, false
}
