package core

// Intra-signal aggregation strategies for the rule and keyword detectors.
// Worst-signal-wins is the default; capped sum reproduces the legacy
// additive sensitivity to multiple weak matches.
const (
	IntraAggregationMax = "max"
	IntraAggregationSum = "sum"
)

// Weights are the per-signal contributions to the final score. The defaults
// reproduce the split used by existing deployments.
type Weights struct {
	Rules      float64
	Keywords   float64
	Anomaly    float64
	Classifier float64
}

// DefaultWeights returns the deployment-compatible 0.30/0.20/0.25/0.25 split
func DefaultWeights() Weights {
	return Weights{
		Rules:      0.30,
		Keywords:   0.20,
		Anomaly:    0.25,
		Classifier: 0.25,
	}
}

// Thresholds are the decision breakpoints on the 0-10 final score scale
type Thresholds struct {
	Case     float64
	Flag     float64
	Critical float64
}

// DefaultThresholds returns the deployment-compatible 8.0/5.0 breakpoints
func DefaultThresholds() Thresholds {
	return Thresholds{
		Case:     8.0,
		Flag:     5.0,
		Critical: 9.0,
	}
}

// Aggregator combines the four signal sources into a single weighted score
// and derives the case decision from it
type Aggregator struct {
	weights    Weights
	thresholds Thresholds
}

// NewAggregator creates an aggregator with the given weights and thresholds
func NewAggregator(weights Weights, thresholds Thresholds) *Aggregator {
	return &Aggregator{
		weights:    weights,
		thresholds: thresholds,
	}
}

// Aggregate computes the final 0-10 risk score from the four signals, each
// expected in [0, 1]
func (a *Aggregator) Aggregate(rule, keyword, anomaly, classifier float64) float64 {
	final := 10 * (a.weights.Rules*rule +
		a.weights.Keywords*keyword +
		a.weights.Anomaly*anomaly +
		a.weights.Classifier*classifier)
	return clamp(final, 0.0, 10.0)
}

// Decide maps a final score to the case decision
func (a *Aggregator) Decide(final float64) Decision {
	switch {
	case final >= a.thresholds.Case:
		return DecisionCase
	case final >= a.thresholds.Flag:
		return DecisionFlag
	default:
		return DecisionClear
	}
}

// SeverityFor maps a final score to its severity bucket
func (a *Aggregator) SeverityFor(final float64) Severity {
	switch {
	case final >= a.thresholds.Critical:
		return SeverityCritical
	case final >= a.thresholds.Case:
		return SeverityHigh
	case final >= a.thresholds.Flag:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
