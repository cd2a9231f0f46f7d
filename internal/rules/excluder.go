package rules

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/core"
)

type compiledExclusion struct {
	rule core.ExclusionRule
	re   *regexp.Regexp
}

// Excluder drops records matching an exclusion rule before any scoring.
// Exclusion runs ahead of the whitelist: known-noise traffic never reaches
// the detectors at all. Rules use the same condition operators as composite
// security rules.
type Excluder struct {
	rules  []compiledExclusion
	logger *zap.Logger
}

// NewExcluder compiles the snapshot's enabled exclusion rules. Malformed
// entries are skipped and logged.
func NewExcluder(ruleSet []core.ExclusionRule, logger *zap.Logger) *Excluder {
	e := &Excluder{logger: logger}

	for _, rule := range ruleSet {
		if !rule.Enabled {
			continue
		}
		ce := compiledExclusion{rule: rule}
		if rule.Operator == OpRegex {
			re, err := regexp.Compile("(?i)" + rule.Value)
			if err != nil {
				logger.Warn("Skipping exclusion rule",
					zap.String("rule", rule.Name),
					zap.Error(&core.ConfigError{Entry: rule.Name, Reason: fmt.Sprintf("invalid pattern: %v", err)}))
				continue
			}
			ce.re = re
		}
		e.rules = append(e.rules, ce)
	}

	return e
}

// Match implements core.ExclusionMatcher. The first matching rule wins.
func (e *Excluder) Match(record *core.EmailRecord) (string, bool) {
	for _, ce := range e.rules {
		cc := compiledCondition{
			cond: core.Condition{
				Field:    ce.rule.Field,
				Operator: ce.rule.Operator,
				Value:    ce.rule.Value,
			},
			re: ce.re,
		}
		if evaluateCondition(cc, record) {
			return ce.rule.Name, true
		}
	}
	return "", false
}
