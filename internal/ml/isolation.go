package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/core"
)

// IsoNode is one split node of an isolation tree. A node with no children
// is a leaf holding the size of the training partition that reached it.
type IsoNode struct {
	Feature   int      `json:"feature"`
	Threshold float64  `json:"threshold"`
	Left      *IsoNode `json:"left,omitempty"`
	Right     *IsoNode `json:"right,omitempty"`
	Size      int      `json:"size"`
}

// IsolationForest is the serialized form of the anomaly model, trained
// offline on historical non-malicious traffic.
type IsolationForest struct {
	SchemaVersion string     `json:"schema_version"`
	SampleSize    int        `json:"sample_size"`
	Trees         []*IsoNode `json:"trees"`
}

// LoadIsolationForest reads a model snapshot from disk
func LoadIsolationForest(path string) (*IsolationForest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read anomaly model: %w", err)
	}
	var forest IsolationForest
	if err := json.Unmarshal(data, &forest); err != nil {
		return nil, fmt.Errorf("failed to decode anomaly model: %w", err)
	}
	return &forest, nil
}

// Score computes the normalized anomaly score in [0, 1] for a feature
// vector. Scores near 1.0 indicate strong outliers: short average isolation
// paths relative to the expected path length for the training sample size.
func (f *IsolationForest) Score(features []float64) float64 {
	if len(f.Trees) == 0 {
		return 0.0
	}

	var total float64
	for _, tree := range f.Trees {
		total += pathLength(tree, features, 0)
	}
	avg := total / float64(len(f.Trees))

	norm := expectedPathLength(f.SampleSize)
	if norm <= 0 {
		return 0.0
	}
	return math.Pow(2, -avg/norm)
}

func pathLength(node *IsoNode, features []float64, depth float64) float64 {
	if node.Left == nil || node.Right == nil {
		return depth + expectedPathLength(node.Size)
	}
	if node.Feature < 0 || node.Feature >= len(features) {
		return depth + expectedPathLength(node.Size)
	}
	if features[node.Feature] < node.Threshold {
		return pathLength(node.Left, features, depth+1)
	}
	return pathLength(node.Right, features, depth+1)
}

// expectedPathLength is the average unsuccessful-search path length of a
// binary search tree over n points (the c(n) normalization term)
func expectedPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

const eulerGamma = 0.5772156649015329

// AnomalyScorer is the unsupervised engine: it scores how far a record sits
// from historical benign traffic.
type AnomalyScorer struct {
	forest *IsolationForest
	logger *zap.Logger
}

// NewAnomalyScorer wraps a loaded forest. A nil forest produces an
// unavailable scorer that degrades to the neutral score downstream.
func NewAnomalyScorer(forest *IsolationForest, logger *zap.Logger) *AnomalyScorer {
	return &AnomalyScorer{forest: forest, logger: logger}
}

// Source implements core.Scorer
func (s *AnomalyScorer) Source() core.SignalSource {
	return core.SignalAnomaly
}

// Score implements core.Scorer. Inference is read-only and deterministic
// for a fixed model snapshot.
func (s *AnomalyScorer) Score(ctx context.Context, record *core.EmailRecord) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.forest == nil || len(s.forest.Trees) == 0 {
		return 0, core.ErrModelUnavailable
	}
	if s.forest.SchemaVersion != FeatureSchemaVersion {
		return 0, fmt.Errorf("%w: anomaly model schema %q, scorer schema %q",
			core.ErrModelUnavailable, s.forest.SchemaVersion, FeatureSchemaVersion)
	}

	features, err := ExtractFeatures(record)
	if err != nil {
		return 0, err
	}
	return s.forest.Score(features), nil
}
