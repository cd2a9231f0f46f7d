package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/core"
)

func TestExcluderRegexMatch(t *testing.T) {
	e := NewExcluder([]core.ExclusionRule{{
		ID:       "ex1",
		Name:     "calendar responses",
		Field:    "subject",
		Operator: OpRegex,
		Value:    `^(accepted|declined|tentative):`,
		Enabled:  true,
	}}, zap.NewNop())

	reason, ok := e.Match(&core.EmailRecord{Subject: "Accepted: weekly sync"})
	assert.True(t, ok)
	assert.Equal(t, "calendar responses", reason)

	_, ok = e.Match(&core.EmailRecord{Subject: "Re: weekly sync"})
	assert.False(t, ok)
}

func TestExcluderSenderPrefix(t *testing.T) {
	e := NewExcluder([]core.ExclusionRule{{
		ID:       "ex1",
		Name:     "bounce notifications",
		Field:    "sender",
		Operator: OpStartsWith,
		Value:    "mailer-daemon@",
		Enabled:  true,
	}}, zap.NewNop())

	_, ok := e.Match(&core.EmailRecord{Sender: "MAILER-DAEMON@mx.example.com"})
	assert.True(t, ok)

	_, ok = e.Match(&core.EmailRecord{Sender: "alice@example.com"})
	assert.False(t, ok)
}

func TestExcluderDisabledRuleSkipped(t *testing.T) {
	e := NewExcluder([]core.ExclusionRule{{
		ID:       "ex1",
		Name:     "disabled",
		Field:    "subject",
		Operator: OpContains,
		Value:    "noise",
		Enabled:  false,
	}}, zap.NewNop())

	_, ok := e.Match(&core.EmailRecord{Subject: "noise"})
	assert.False(t, ok)
}

func TestExcluderInvalidPatternSkipped(t *testing.T) {
	e := NewExcluder([]core.ExclusionRule{
		{
			ID:       "bad",
			Name:     "broken",
			Field:    "subject",
			Operator: OpRegex,
			Value:    "([unclosed",
			Enabled:  true,
		},
		{
			ID:       "good",
			Name:     "still works",
			Field:    "subject",
			Operator: OpContains,
			Value:    "out of office",
			Enabled:  true,
		},
	}, zap.NewNop())

	assert.Len(t, e.rules, 1)
	reason, ok := e.Match(&core.EmailRecord{Subject: "Out of Office: back Monday"})
	assert.True(t, ok)
	assert.Equal(t, "still works", reason)
}
