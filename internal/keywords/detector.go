package keywords

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/core"
	"github.com/mailsentry/mail-sentry/internal/utils"
)

// DampeningFactor is applied to the keyword signal for automated mail
const DampeningFactor = 0.5

type compiledKeyword struct {
	keyword core.RiskKeyword
	re      *regexp.Regexp
}

// Detector scans subject, body and attachment names for weighted risk
// keywords. Patterns are compiled once per snapshot; matching is
// case-insensitive and word-boundary aware, so "invoice" never matches a
// keyword "voice".
type Detector struct {
	keywords  []compiledKeyword
	dampening []*regexp.Regexp
	strategy  string
	logger    *zap.Logger
}

// NewDetector compiles the snapshot's keyword set. Malformed entries are
// skipped and logged; the remaining keywords stay in effect.
func NewDetector(keywords []core.RiskKeyword, dampening []string, strategy string, logger *zap.Logger) *Detector {
	if strategy != core.IntraAggregationSum {
		strategy = core.IntraAggregationMax
	}
	d := &Detector{
		strategy: strategy,
		logger:   logger,
	}

	for _, kw := range keywords {
		re, err := compileBoundary(kw.Keyword)
		if err != nil {
			logger.Warn("Skipping risk keyword",
				zap.String("keyword", kw.Keyword),
				zap.Error(&core.ConfigError{Entry: kw.Keyword, Reason: err.Error()}))
			continue
		}
		d.keywords = append(d.keywords, compiledKeyword{keyword: kw, re: re})
	}

	for _, word := range dampening {
		re, err := compileBoundary(word)
		if err != nil {
			logger.Warn("Skipping dampening keyword", zap.String("keyword", word), zap.Error(err))
			continue
		}
		d.dampening = append(d.dampening, re)
	}

	return d
}

// compileBoundary builds a case-insensitive word-boundary pattern for a
// literal keyword or phrase
func compileBoundary(keyword string) (*regexp.Regexp, error) {
	folded := utils.Fold(strings.TrimSpace(keyword))
	if folded == "" {
		return nil, &core.ConfigError{Entry: keyword, Reason: "empty keyword"}
	}
	return regexp.Compile(`\b` + regexp.QuoteMeta(folded) + `\b`)
}

// Detect returns every keyword match across the scanned fields, the
// aggregated keyword signal in [0, 1], and whether the signal was dampened
// for automated mail.
//
// The per-category score is capped at 1.0 so repeated near-duplicate
// keywords cannot inflate a category without bound; the signal then takes
// the worst category (or the capped sum under the legacy strategy).
func (d *Detector) Detect(record *core.EmailRecord) ([]core.KeywordMatch, float64, bool) {
	fields := scanFields(record)

	var matches []core.KeywordMatch
	categories := make(map[core.KeywordCategory]float64)

	for _, ck := range d.keywords {
		for _, f := range fields {
			if !ck.re.MatchString(f.text) {
				continue
			}
			matches = append(matches, core.KeywordMatch{
				Keyword:  ck.keyword.Keyword,
				Category: ck.keyword.Category,
				Weight:   ck.keyword.Weight,
				Field:    f.name,
			})
			categories[ck.keyword.Category] += ck.keyword.Weight
		}
	}

	var signal float64
	switch d.strategy {
	case core.IntraAggregationSum:
		// Sum in sorted category order; float addition is not associative
		// and map iteration order would make repeated runs disagree in the
		// last bits of the score.
		names := make([]string, 0, len(categories))
		for cat := range categories {
			names = append(names, string(cat))
		}
		sort.Strings(names)
		for _, name := range names {
			signal += math.Min(1.0, categories[core.KeywordCategory(name)])
		}
		signal = math.Min(1.0, signal)
	default:
		for _, score := range categories {
			signal = math.Max(signal, math.Min(1.0, score))
		}
	}

	dampened := false
	if signal > 0 && d.isAutomated(record) {
		signal *= DampeningFactor
		dampened = true
	}

	return matches, signal, dampened
}

// isAutomated reports whether the record looks like system-generated mail
// (no-reply senders, notification digests)
func (d *Detector) isAutomated(record *core.EmailRecord) bool {
	text := utils.ScanText(record.Subject, record.Sender)
	for _, re := range d.dampening {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

type scanField struct {
	name string
	text string
}

func scanFields(record *core.EmailRecord) []scanField {
	fields := []scanField{
		{name: "subject", text: utils.ScanText(record.Subject)},
		{name: "body", text: utils.ScanText(record.Body)},
	}
	names := make([]string, 0, len(record.Attachments))
	for _, a := range record.Attachments {
		names = append(names, a.Name)
	}
	fields = append(fields, scanField{name: "attachment", text: utils.ScanText(names...)})
	return fields
}
