package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/core"
)

// ErrNotFound is returned when no result exists for a record ID
var ErrNotFound = errors.New("result not found")

// MemoryStore is an in-memory implementation of the ResultStore interface,
// used for tests and single-shot CLI runs.
type MemoryStore struct {
	results map[string]*core.ScoreResult
	cases   map[string]*core.Case // keyed by record ID
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewMemoryStore creates a new in-memory result store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		results: make(map[string]*core.ScoreResult),
		cases:   make(map[string]*core.Case),
		logger:  logger,
	}
}

// SaveResult stores the scoring outcome for a record
func (s *MemoryStore) SaveResult(ctx context.Context, result *core.ScoreResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results[result.RecordID] = result
	return nil
}

// UpsertCase creates a case or returns the existing non-closed case for the
// record. The first open case wins; re-scoring never duplicates it.
func (s *MemoryStore) UpsertCase(ctx context.Context, c *core.Case) (*core.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.cases[c.RecordID]; ok && existing.Status != core.CaseClosed {
		s.logger.Debug("Case already open for record",
			zap.String("record_id", c.RecordID),
			zap.String("case_id", existing.ID))
		return existing, nil
	}

	s.cases[c.RecordID] = c
	return c, nil
}

// GetResult retrieves the stored result for a record ID
func (s *MemoryStore) GetResult(ctx context.Context, recordID string) (*core.ScoreResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.results[recordID]
	if !ok {
		return nil, ErrNotFound
	}
	return result, nil
}

// ListCases returns all cases ordered by creation time
func (s *MemoryStore) ListCases(ctx context.Context) ([]*core.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cases := make([]*core.Case, 0, len(s.cases))
	for _, c := range s.cases {
		cases = append(cases, c)
	}
	sort.Slice(cases, func(i, j int) bool {
		if cases[i].CreatedAt.Equal(cases[j].CreatedAt) {
			return cases[i].RecordID < cases[j].RecordID
		}
		return cases[i].CreatedAt.Before(cases[j].CreatedAt)
	})
	return cases, nil
}

// Cleanup removes results older than the retention window
func (s *MemoryStore) Cleanup(ctx context.Context, retention time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retention)
	removed := 0
	for id, res := range s.results {
		if res.ScoredAt.Before(cutoff) {
			delete(s.results, id)
			removed++
		}
	}
	s.logger.Debug("Cleaned up expired results", zap.Int("removed", removed))
	return nil
}
