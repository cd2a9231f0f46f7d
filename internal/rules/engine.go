package rules

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/core"
	"github.com/mailsentry/mail-sentry/internal/utils"
)

// Condition operators supported by composite rules
const (
	OpContains    = "contains"
	OpEquals      = "equals"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpRegex       = "regex"
	OpNotContains = "not_contains"
	OpNotEquals   = "not_equals"
	OpIsEmpty     = "is_empty"
	OpIsNotEmpty  = "is_not_empty"
)

// textFields are the fields scanned when a rule names no explicit targets
var textFields = []string{"subject", "body", "attachments"}

type compiledRule struct {
	rule       core.SecurityRule
	re         *regexp.Regexp
	conditions []compiledCondition
}

type compiledCondition struct {
	cond core.Condition
	re   *regexp.Regexp
}

// Engine evaluates the security rule set against records. Rules are
// compiled once per snapshot; a rule with an unparsable pattern is reported
// as a configuration error and skipped without aborting the batch.
type Engine struct {
	rules      []compiledRule
	strategy   string
	configErrs []error
	logger     *zap.Logger
}

// NewEngine compiles the snapshot's enabled rules. Use ConfigErrors to
// inspect entries that were skipped.
func NewEngine(ruleSet []core.SecurityRule, strategy string, logger *zap.Logger) *Engine {
	if strategy != core.IntraAggregationSum {
		strategy = core.IntraAggregationMax
	}
	e := &Engine{
		strategy: strategy,
		logger:   logger,
	}

	for _, rule := range ruleSet {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compile(rule)
		if err != nil {
			e.configErrs = append(e.configErrs, err)
			logger.Warn("Skipping security rule",
				zap.String("rule", rule.Name),
				zap.Error(err))
			continue
		}
		e.rules = append(e.rules, compiled)
	}

	return e
}

func (e *Engine) compile(rule core.SecurityRule) (compiledRule, error) {
	cr := compiledRule{rule: rule}

	switch rule.Type {
	case core.RuleKeywordMatch:
		folded := utils.Fold(strings.TrimSpace(rule.Pattern))
		if folded == "" {
			return cr, &core.ConfigError{Entry: rule.Name, Reason: "empty keyword pattern"}
		}
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(folded) + `\b`)
		if err != nil {
			return cr, &core.ConfigError{Entry: rule.Name, Reason: err.Error()}
		}
		cr.re = re

	case core.RuleRegexPattern:
		pattern := rule.Pattern
		if !rule.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return cr, &core.ConfigError{Entry: rule.Name, Reason: fmt.Sprintf("invalid pattern: %v", err)}
		}
		cr.re = re

	case core.RuleFieldEquality:
		if len(rule.Fields) == 0 {
			return cr, &core.ConfigError{Entry: rule.Name, Reason: "field-equality rule without target fields"}
		}

	case core.RuleComposite:
		if len(rule.Conditions) == 0 {
			return cr, &core.ConfigError{Entry: rule.Name, Reason: "composite rule without conditions"}
		}
		for _, cond := range rule.Conditions {
			cc := compiledCondition{cond: cond}
			if cond.Operator == OpRegex {
				re, err := regexp.Compile("(?i)" + cond.Value)
				if err != nil {
					return cr, &core.ConfigError{Entry: rule.Name, Reason: fmt.Sprintf("invalid condition pattern: %v", err)}
				}
				cc.re = re
			}
			cr.conditions = append(cr.conditions, cc)
		}

	default:
		return cr, &core.ConfigError{Entry: rule.Name, Reason: fmt.Sprintf("unknown rule type %q", rule.Type)}
	}

	return cr, nil
}

// ConfigErrors returns the entries skipped during compilation
func (e *Engine) ConfigErrors() []error {
	return e.configErrs
}

// Evaluate applies every compiled rule to the record and returns the
// matches with the rule signal in [0, 1]. The signal takes the highest
// matched severity (worst-rule-wins) or the capped sum under the legacy
// strategy.
func (e *Engine) Evaluate(record *core.EmailRecord) ([]core.RuleMatch, float64) {
	var matches []core.RuleMatch
	var signal float64

	for _, cr := range e.rules {
		if !e.matches(cr, record) {
			continue
		}
		severity := clamp01(cr.rule.Severity)
		matches = append(matches, core.RuleMatch{
			RuleID:   cr.rule.ID,
			Name:     cr.rule.Name,
			Severity: severity,
		})
		if e.strategy == core.IntraAggregationSum {
			signal += severity
		} else {
			signal = math.Max(signal, severity)
		}
	}

	return matches, clamp01(signal)
}

func (e *Engine) matches(cr compiledRule, record *core.EmailRecord) bool {
	switch cr.rule.Type {
	case core.RuleKeywordMatch:
		for _, field := range targetFields(cr.rule) {
			if cr.re.MatchString(utils.ScanText(fieldValue(record, field))) {
				return true
			}
		}
		return false

	case core.RuleRegexPattern:
		for _, field := range targetFields(cr.rule) {
			if cr.re.MatchString(fieldValue(record, field)) {
				return true
			}
		}
		return false

	case core.RuleFieldEquality:
		for _, field := range cr.rule.Fields {
			value := fieldValue(record, field)
			if cr.rule.CaseSensitive {
				if value == cr.rule.Pattern {
					return true
				}
			} else if strings.EqualFold(value, cr.rule.Pattern) {
				return true
			}
		}
		return false

	case core.RuleComposite:
		// AND semantics: every sub-condition must hold
		for _, cc := range cr.conditions {
			if !evaluateCondition(cc, record) {
				return false
			}
		}
		return true
	}

	return false
}

func evaluateCondition(cc compiledCondition, record *core.EmailRecord) bool {
	fieldValue := strings.ToLower(fieldValue(record, cc.cond.Field))
	value := strings.ToLower(cc.cond.Value)

	switch cc.cond.Operator {
	case OpContains:
		return strings.Contains(fieldValue, value)
	case OpEquals:
		return fieldValue == value
	case OpStartsWith:
		return strings.HasPrefix(fieldValue, value)
	case OpEndsWith:
		return strings.HasSuffix(fieldValue, value)
	case OpRegex:
		return cc.re.MatchString(fieldValue)
	case OpNotContains:
		return !strings.Contains(fieldValue, value)
	case OpNotEquals:
		return fieldValue != value
	case OpIsEmpty:
		return fieldValue == ""
	case OpIsNotEmpty:
		return fieldValue != ""
	}

	return false
}

func targetFields(rule core.SecurityRule) []string {
	if len(rule.Fields) > 0 {
		return rule.Fields
	}
	return textFields
}

// fieldValue resolves a rule target field to the record's value
func fieldValue(record *core.EmailRecord, field string) string {
	switch field {
	case "sender":
		return record.Sender
	case "sender_domain":
		return utils.DomainOf(record.Sender)
	case "subject":
		return record.Subject
	case "body":
		return record.Body
	case "recipients":
		return strings.Join(record.Recipients, ", ")
	case "recipient_count":
		return fmt.Sprintf("%d", len(record.Recipients))
	case "attachments":
		names := make([]string, 0, len(record.Attachments))
		for _, a := range record.Attachments {
			names = append(names, a.Name)
		}
		return strings.Join(names, ", ")
	case "leaver":
		return record.Leaver
	case "termination":
		return record.Termination
	case "department":
		return record.Department
	case "bunit":
		return record.BusinessUnit
	}
	return ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
