package core

import (
	"context"
)

// Scorer is the capability interface shared by the ML engines. The
// aggregator treats scorers polymorphically so engines can be added or
// retired without touching aggregation logic.
type Scorer interface {
	// Source identifies the signal this scorer contributes
	Source() SignalSource

	// Score returns a risk score in [0, 1] for the record. Implementations
	// must be deterministic for a fixed model state and must honour context
	// cancellation.
	Score(ctx context.Context, record *EmailRecord) (float64, error)
}

// ExclusionMatcher drops known-noise records before any scoring happens,
// ahead of the whitelist check
type ExclusionMatcher interface {
	// Match returns the exclusion reason and true when the record matches
	// an exclusion rule
	Match(record *EmailRecord) (string, bool)
}

// WhitelistMatcher short-circuits scoring for trusted senders
type WhitelistMatcher interface {
	// Match returns the whitelist reason and true when the record's sender
	// or sender domain is whitelisted
	Match(record *EmailRecord) (string, bool)
}

// KeywordDetector scans a record for weighted risk keywords
type KeywordDetector interface {
	// Detect returns all keyword matches, the aggregated keyword signal in
	// [0, 1], and whether the signal was dampened for automated mail
	Detect(record *EmailRecord) ([]KeywordMatch, float64, bool)
}

// RuleEvaluator applies the security rule set to a record
type RuleEvaluator interface {
	// Evaluate returns the matched rules and the rule signal in [0, 1]
	Evaluate(record *EmailRecord) ([]RuleMatch, float64)
}

// ResultStore persists scored records and generated cases
type ResultStore interface {
	// SaveResult stores the scoring outcome for a record, replacing any
	// previous result for the same record ID
	SaveResult(ctx context.Context, result *ScoreResult) error

	// UpsertCase creates a case for a record or returns the existing
	// non-closed case. Exactly one open case may exist per record ID.
	UpsertCase(ctx context.Context, c *Case) (*Case, error)

	// GetResult retrieves the stored result for a record ID
	GetResult(ctx context.Context, recordID string) (*ScoreResult, error)

	// ListCases returns all cases ordered by creation time
	ListCases(ctx context.Context) ([]*Case, error)
}

// SnapshotLoader supplies the immutable detection configuration for a batch
type SnapshotLoader interface {
	Load(ctx context.Context) (*ConfigSnapshot, error)
}
