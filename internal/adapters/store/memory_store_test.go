package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/core"
)

func testResult(recordID string, score float64) *core.ScoreResult {
	return &core.ScoreResult{
		RecordID:   recordID,
		FinalScore: score,
		Decision:   core.DecisionFlag,
		Status:     core.StatusFlagged,
		ScoredAt:   time.Now(),
	}
}

func testCase(id, recordID string) *core.Case {
	now := time.Now()
	return &core.Case{
		ID:        id,
		RecordID:  recordID,
		Title:     "High-risk email: test",
		Severity:  core.SeverityHigh,
		Status:    core.CaseOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemorySaveAndGetResult(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.SaveResult(ctx, testResult("r1", 6.5)))

	res, err := s.GetResult(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 6.5, res.FinalScore)

	_, err = s.GetResult(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySaveReplacesResult(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.SaveResult(ctx, testResult("r1", 6.5)))
	require.NoError(t, s.SaveResult(ctx, testResult("r1", 9.0)))

	res, err := s.GetResult(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 9.0, res.FinalScore)
}

func TestMemoryUpsertCaseIdempotent(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	first, err := s.UpsertCase(ctx, testCase("case-1", "r1"))
	require.NoError(t, err)

	// A second upsert for the same record returns the existing open case
	second, err := s.UpsertCase(ctx, testCase("case-2", "r1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	cases, err := s.ListCases(ctx)
	require.NoError(t, err)
	assert.Len(t, cases, 1)
}

func TestMemoryUpsertAfterClose(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	closed := testCase("case-1", "r1")
	closed.Status = core.CaseClosed
	_, err := s.UpsertCase(ctx, closed)
	require.NoError(t, err)

	// A closed case no longer blocks a new one
	reopened, err := s.UpsertCase(ctx, testCase("case-2", "r1"))
	require.NoError(t, err)
	assert.Equal(t, "case-2", reopened.ID)
}

func TestMemoryListCasesOrdered(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	base := time.Now()
	for i, rec := range []string{"r3", "r1", "r2"} {
		c := testCase("case", rec)
		c.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := s.UpsertCase(ctx, c)
		require.NoError(t, err)
	}

	cases, err := s.ListCases(ctx)
	require.NoError(t, err)
	require.Len(t, cases, 3)
	assert.Equal(t, "r3", cases[0].RecordID)
	assert.Equal(t, "r2", cases[2].RecordID)
}

func TestMemoryCleanup(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	old := testResult("old", 1.0)
	old.ScoredAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.SaveResult(ctx, old))
	require.NoError(t, s.SaveResult(ctx, testResult("fresh", 2.0)))

	require.NoError(t, s.Cleanup(ctx, 24*time.Hour))

	_, err := s.GetResult(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetResult(ctx, "fresh")
	assert.NoError(t, err)
}

func TestMemoryConcurrentAccess(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%10))
			_ = s.SaveResult(ctx, testResult(id, float64(n)))
			_, _ = s.UpsertCase(ctx, testCase("case", id))
			_, _ = s.GetResult(ctx, id)
		}(i)
	}
	wg.Wait()

	cases, err := s.ListCases(ctx)
	require.NoError(t, err)
	assert.Len(t, cases, 10)
}
