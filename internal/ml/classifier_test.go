package ml

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/core"
)

// constModel is an ensemble of leaf-only trees voting fixed probabilities
func constModel(probs ...float64) *ThreatModel {
	trees := make([]*ClsNode, 0, len(probs))
	for _, p := range probs {
		trees = append(trees, &ClsNode{Prob: p})
	}
	return &ThreatModel{
		SchemaVersion: FeatureSchemaVersion,
		Trees:         trees,
	}
}

func TestClassifierUnavailableWhenUntrained(t *testing.T) {
	for _, model := range []*ThreatModel{
		nil,
		{SchemaVersion: FeatureSchemaVersion},
	} {
		s := NewThreatClassifier(model, zap.NewNop())
		_, err := s.Score(context.Background(), testRecord())
		assert.ErrorIs(t, err, core.ErrModelUnavailable)
	}
}

func TestClassifierSchemaMismatch(t *testing.T) {
	model := constModel(0.5)
	model.SchemaVersion = "v1"
	s := NewThreatClassifier(model, zap.NewNop())

	_, err := s.Score(context.Background(), testRecord())
	assert.ErrorIs(t, err, core.ErrModelUnavailable)
}

func TestClassifierVoteFraction(t *testing.T) {
	// Without calibration parameters the raw vote fraction is the score
	s := NewThreatClassifier(constModel(0.2, 0.4, 0.9), zap.NewNop())

	score, err := s.Score(context.Background(), testRecord())
	require.NoError(t, err)
	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestClassifierCalibration(t *testing.T) {
	model := constModel(1.0)
	model.Calibration = Calibration{A: -4.0, B: 2.0}
	s := NewThreatClassifier(model, zap.NewNop())

	score, err := s.Score(context.Background(), testRecord())
	require.NoError(t, err)
	// sigmoid: 1 / (1 + e^(-4*1 + 2))
	expected := 1.0 / (1.0 + math.Exp(-2.0))
	assert.InDelta(t, expected, score, 1e-9)
}

func TestNoveltyUnknownSender(t *testing.T) {
	s := NewThreatClassifier(constModel(0.5), zap.NewNop())

	assert.Equal(t, 1.0, s.noveltyFeature(testRecord()))
}

func TestNoveltyKnownPairs(t *testing.T) {
	model := constModel(0.5)
	model.KnownPairs = map[string][]string{
		"alice@corp.example.com": {"corp.example.com"},
	}
	s := NewThreatClassifier(model, zap.NewNop())

	// One of two recipient domains is unseen for this sender
	assert.InDelta(t, 0.5, s.noveltyFeature(testRecord()), 1e-9)

	model.KnownPairs["alice@corp.example.com"] = []string{
		"corp.example.com", "partner.example.org",
	}
	assert.Zero(t, s.noveltyFeature(testRecord()))
}

func TestNoveltyNoRecipients(t *testing.T) {
	s := NewThreatClassifier(constModel(0.5), zap.NewNop())

	rec := testRecord()
	rec.Recipients = nil
	assert.Zero(t, s.noveltyFeature(rec))
}

func TestClassifierSplitsOnNovelty(t *testing.T) {
	// The novelty feature sits directly after the base vector
	tree := &ClsNode{
		Feature:   FeatureCount,
		Threshold: 0.5,
		Left:      &ClsNode{Prob: 0.1},
		Right:     &ClsNode{Prob: 0.9},
	}
	model := &ThreatModel{
		SchemaVersion: FeatureSchemaVersion,
		Trees:         []*ClsNode{tree},
		KnownPairs: map[string][]string{
			"alice@corp.example.com": {"corp.example.com", "partner.example.org"},
		},
	}
	s := NewThreatClassifier(model, zap.NewNop())

	// All recipient domains known: novelty 0.0, low branch
	score, err := s.Score(context.Background(), testRecord())
	require.NoError(t, err)
	assert.InDelta(t, 0.1, score, 1e-9)

	// Unknown sender: novelty 1.0, high branch
	rec := testRecord()
	rec.Sender = "mallory@corp.example.com"
	score, err = s.Score(context.Background(), rec)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, score, 1e-9)
}

func TestClassifierDeterministic(t *testing.T) {
	model := constModel(0.3, 0.7)
	model.Calibration = Calibration{A: -3.0, B: 1.5}
	s := NewThreatClassifier(model, zap.NewNop())

	first, err := s.Score(context.Background(), testRecord())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := s.Score(context.Background(), testRecord())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
