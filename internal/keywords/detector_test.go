package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/core"
)

var testKeywords = []core.RiskKeyword{
	{Keyword: "wire transfer", Category: core.CategoryFinancial, Weight: 0.6},
	{Keyword: "invoice", Category: core.CategoryFinancial, Weight: 0.3},
	{Keyword: "voice", Category: core.CategorySocialEngineering, Weight: 0.4},
	{Keyword: "urgent", Category: core.CategorySocialEngineering, Weight: 0.3},
	{Keyword: "customer list", Category: core.CategoryDataExfiltration, Weight: 0.7},
}

func newTestDetector(strategy string, dampening ...string) *Detector {
	return NewDetector(testKeywords, dampening, strategy, zap.NewNop())
}

func TestDetectSingleKeyword(t *testing.T) {
	d := newTestDetector(core.IntraAggregationMax)

	matches, signal, dampened := d.Detect(&core.EmailRecord{
		Subject: "Please review the attached invoice",
	})

	assert.Len(t, matches, 1)
	assert.Equal(t, "invoice", matches[0].Keyword)
	assert.Equal(t, "subject", matches[0].Field)
	assert.InDelta(t, 0.3, signal, 1e-9)
	assert.False(t, dampened)
}

func TestDetectWordBoundary(t *testing.T) {
	// "invoice" contains "voice" as a substring but not as a word
	d := newTestDetector(core.IntraAggregationMax)

	matches, _, _ := d.Detect(&core.EmailRecord{Subject: "invoice attached"})

	assert.Len(t, matches, 1)
	assert.Equal(t, "invoice", matches[0].Keyword)
}

func TestDetectCaseInsensitive(t *testing.T) {
	d := newTestDetector(core.IntraAggregationMax)

	matches, _, _ := d.Detect(&core.EmailRecord{Subject: "URGENT: Wire Transfer needed"})

	keywords := make([]string, 0, len(matches))
	for _, m := range matches {
		keywords = append(keywords, m.Keyword)
	}
	assert.ElementsMatch(t, []string{"urgent", "wire transfer"}, keywords)
}

func TestDetectAttachmentNames(t *testing.T) {
	d := newTestDetector(core.IntraAggregationMax)

	matches, _, _ := d.Detect(&core.EmailRecord{
		Subject:     "fyi",
		Attachments: []core.Attachment{{Name: "customer list export.xlsx"}},
	})

	assert.Len(t, matches, 1)
	assert.Equal(t, "attachment", matches[0].Field)
}

func TestWorstCategoryWins(t *testing.T) {
	// financial: 0.6 + 0.3 = 0.9 (capped at 1.0), social: 0.3;
	// the default strategy takes the worst category, not the sum
	d := newTestDetector(core.IntraAggregationMax)

	_, signal, _ := d.Detect(&core.EmailRecord{
		Subject: "urgent wire transfer invoice",
	})

	assert.InDelta(t, 0.9, signal, 1e-9)
}

func TestSumStrategyCapped(t *testing.T) {
	d := newTestDetector(core.IntraAggregationSum)

	_, signal, _ := d.Detect(&core.EmailRecord{
		Subject: "urgent wire transfer invoice",
		Body:    "the customer list is attached",
	})

	// financial 0.9 + social 0.3 + exfiltration 0.7 caps at 1.0
	assert.InDelta(t, 1.0, signal, 1e-9)
}

func TestCategoryCap(t *testing.T) {
	kws := []core.RiskKeyword{
		{Keyword: "alpha", Category: core.CategoryFinancial, Weight: 0.8},
		{Keyword: "beta", Category: core.CategoryFinancial, Weight: 0.8},
	}
	d := NewDetector(kws, nil, core.IntraAggregationMax, zap.NewNop())

	_, signal, _ := d.Detect(&core.EmailRecord{Subject: "alpha beta"})

	assert.InDelta(t, 1.0, signal, 1e-9)
}

func TestDampeningHalvesSignal(t *testing.T) {
	d := newTestDetector(core.IntraAggregationMax, "no-reply", "newsletter")

	_, signal, dampened := d.Detect(&core.EmailRecord{
		Sender:  "no-reply@vendor.example.com",
		Subject: "invoice ready",
	})

	assert.True(t, dampened)
	assert.InDelta(t, 0.15, signal, 1e-9)
}

func TestNoDampeningWithoutSignal(t *testing.T) {
	d := newTestDetector(core.IntraAggregationMax, "no-reply")

	_, signal, dampened := d.Detect(&core.EmailRecord{
		Sender:  "no-reply@vendor.example.com",
		Subject: "nothing interesting",
	})

	assert.False(t, dampened)
	assert.Zero(t, signal)
}

func TestEmptyKeywordSkipped(t *testing.T) {
	kws := []core.RiskKeyword{
		{Keyword: "  ", Category: core.CategoryFinancial, Weight: 0.5},
		{Keyword: "invoice", Category: core.CategoryFinancial, Weight: 0.3},
	}
	d := NewDetector(kws, nil, core.IntraAggregationMax, zap.NewNop())

	assert.Len(t, d.keywords, 1)
}

func TestSumStrategyStableAcrossRuns(t *testing.T) {
	// Weights chosen so that summing the categories in different orders
	// produces different float rounding
	kws := []core.RiskKeyword{
		{Keyword: "alpha", Category: core.CategoryFinancial, Weight: 0.1},
		{Keyword: "beta", Category: core.CategoryPhishing, Weight: 0.2},
		{Keyword: "gamma", Category: core.CategoryMalware, Weight: 0.3},
	}
	d := NewDetector(kws, nil, core.IntraAggregationSum, zap.NewNop())
	rec := &core.EmailRecord{Subject: "alpha beta gamma"}

	_, first, _ := d.Detect(rec)
	for i := 0; i < 2000; i++ {
		_, again, _ := d.Detect(rec)
		require.Equal(t, first, again)
	}
}

func TestDetectDeterministic(t *testing.T) {
	d := newTestDetector(core.IntraAggregationMax)
	rec := &core.EmailRecord{Subject: "urgent wire transfer", Body: "invoice attached"}

	_, first, _ := d.Detect(rec)
	for i := 0; i < 10; i++ {
		_, again, _ := d.Detect(rec)
		assert.Equal(t, first, again)
	}
}
