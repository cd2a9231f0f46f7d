package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/core"
	"github.com/mailsentry/mail-sentry/internal/utils"
)

// ClsNode is one split node of a classification tree. Leaves carry the
// malicious-class probability observed during training.
type ClsNode struct {
	Feature   int      `json:"feature"`
	Threshold float64  `json:"threshold"`
	Left      *ClsNode `json:"left,omitempty"`
	Right     *ClsNode `json:"right,omitempty"`
	Prob      float64  `json:"prob"`
}

// Calibration holds the sigmoid parameters fitted on held-out cases so the
// ensemble vote fraction reads as a probability. Zero values mean the raw
// vote is used unchanged.
type Calibration struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// ThreatModel is the serialized supervised ensemble, trained on
// historically confirmed cases. KnownPairs captures the sender to
// recipient-domain edges observed at training time and feeds the
// relationship-novelty feature.
type ThreatModel struct {
	SchemaVersion string              `json:"schema_version"`
	Trees         []*ClsNode          `json:"trees"`
	Calibration   Calibration         `json:"calibration"`
	KnownPairs    map[string][]string `json:"known_pairs,omitempty"`
}

// LoadThreatModel reads a classifier snapshot from disk
func LoadThreatModel(path string) (*ThreatModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read threat model: %w", err)
	}
	var model ThreatModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("failed to decode threat model: %w", err)
	}
	return &model, nil
}

// ThreatClassifier is the supervised engine: it estimates the calibrated
// probability that a record is malicious. Before any labeled history exists
// it reports itself unavailable and the pipeline substitutes the neutral
// score, so operation is never blocked on a cold start.
type ThreatClassifier struct {
	model  *ThreatModel
	logger *zap.Logger
}

// NewThreatClassifier wraps a loaded model. A nil or untrained model
// produces an unavailable scorer.
func NewThreatClassifier(model *ThreatModel, logger *zap.Logger) *ThreatClassifier {
	return &ThreatClassifier{model: model, logger: logger}
}

// Source implements core.Scorer
func (s *ThreatClassifier) Source() core.SignalSource {
	return core.SignalClassifier
}

// Score implements core.Scorer
func (s *ThreatClassifier) Score(ctx context.Context, record *core.EmailRecord) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.model == nil || len(s.model.Trees) == 0 {
		return 0, core.ErrModelUnavailable
	}
	if s.model.SchemaVersion != FeatureSchemaVersion {
		return 0, fmt.Errorf("%w: threat model schema %q, scorer schema %q",
			core.ErrModelUnavailable, s.model.SchemaVersion, FeatureSchemaVersion)
	}

	base, err := ExtractFeatures(record)
	if err != nil {
		return 0, err
	}
	features := append(base, s.noveltyFeature(record))

	var votes float64
	for _, tree := range s.model.Trees {
		votes += leafProb(tree, features)
	}
	vote := votes / float64(len(s.model.Trees))

	return s.calibrate(vote), nil
}

func leafProb(node *ClsNode, features []float64) float64 {
	if node.Left == nil || node.Right == nil {
		return node.Prob
	}
	if node.Feature < 0 || node.Feature >= len(features) {
		return node.Prob
	}
	if features[node.Feature] < node.Threshold {
		return leafProb(node.Left, features)
	}
	return leafProb(node.Right, features)
}

// noveltyFeature is the fraction of recipient domains this sender has never
// been observed writing to. An unseen sender scores fully novel.
func (s *ThreatClassifier) noveltyFeature(record *core.EmailRecord) float64 {
	if len(record.Recipients) == 0 {
		return 0.0
	}

	known, ok := s.model.KnownPairs[strings.ToLower(record.Sender)]
	if !ok {
		return 1.0
	}
	knownSet := make(map[string]struct{}, len(known))
	for _, d := range known {
		knownSet[strings.ToLower(d)] = struct{}{}
	}

	novel := 0
	for _, r := range record.Recipients {
		if _, seen := knownSet[utils.DomainOf(r)]; !seen {
			novel++
		}
	}
	return float64(novel) / float64(len(record.Recipients))
}

// calibrate maps the vote fraction through the fitted sigmoid
func (s *ThreatClassifier) calibrate(vote float64) float64 {
	cal := s.model.Calibration
	if cal.A == 0 && cal.B == 0 {
		return clamp01(vote)
	}
	return clamp01(1.0 / (1.0 + math.Exp(cal.A*vote+cal.B)))
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
