package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pipeline scores a batch of email records against an immutable
// configuration snapshot. Records within a batch are independent and are
// scored concurrently by a bounded worker pool.
type Pipeline struct {
	exclusions ExclusionMatcher
	whitelist  WhitelistMatcher
	keywords   KeywordDetector
	rules      RuleEvaluator
	scorers    []Scorer
	aggregator *Aggregator
	store      ResultStore
	logger     *zap.Logger
	workers    int
	mlTimeout  time.Duration
}

// NewPipeline creates a scoring pipeline. A workers value of zero sizes the
// pool to the available cores.
func NewPipeline(
	exclusions ExclusionMatcher,
	whitelist WhitelistMatcher,
	keywords KeywordDetector,
	rules RuleEvaluator,
	scorers []Scorer,
	aggregator *Aggregator,
	store ResultStore,
	logger *zap.Logger,
	workers int,
	mlTimeout time.Duration,
) *Pipeline {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if mlTimeout <= 0 {
		mlTimeout = 2 * time.Second
	}
	return &Pipeline{
		exclusions: exclusions,
		whitelist:  whitelist,
		keywords:   keywords,
		rules:      rules,
		scorers:    scorers,
		aggregator: aggregator,
		store:      store,
		logger:     logger,
		workers:    workers,
		mlTimeout:  mlTimeout,
	}
}

// ProcessBatch scores every record in the batch and persists the results.
// Cancelling the context stops scheduling new records but lets in-flight
// records complete. Per-record failures are isolated; only a store failure
// aborts the batch.
func (p *Pipeline) ProcessBatch(ctx context.Context, records []*EmailRecord) (*BatchSummary, error) {
	summary := NewBatchSummary()

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fatal error
	)
	sem := make(chan struct{}, p.workers)

	started := time.Now()
	p.logger.Info("Starting batch scoring",
		zap.Int("records", len(records)),
		zap.Int("workers", p.workers))

scheduling:
	for _, rec := range records {
		select {
		case <-batchCtx.Done():
			p.logger.Warn("Batch cancelled, no further records scheduled")
			break scheduling
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(rec *EmailRecord) {
			defer wg.Done()
			defer func() { <-sem }()

			res := p.scoreRecord(batchCtx, rec)

			if err := p.persist(batchCtx, rec, res); err != nil {
				if errors.Is(err, context.Canceled) {
					p.logger.Warn("Result dropped on cancellation", zap.String("record_id", rec.ID))
					return
				}
				mu.Lock()
				if fatal == nil {
					fatal = err
				}
				mu.Unlock()
				cancel()
				return
			}

			mu.Lock()
			summary.Add(res)
			mu.Unlock()
		}(rec)
	}

	wg.Wait()

	if fatal != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, fatal)
	}

	p.logger.Info("Batch scoring complete",
		zap.Int("total", summary.Total),
		zap.Int("whitelisted", summary.Whitelisted),
		zap.Int("flagged", summary.Flagged),
		zap.Int("cased", summary.Cased),
		zap.Int("errored", summary.Errored),
		zap.Duration("elapsed", time.Since(started)))

	return summary, nil
}

// ScoreRecord scores a single record without persisting it. The result is a
// pure function of the record and the snapshot the pipeline was built with.
func (p *Pipeline) ScoreRecord(ctx context.Context, rec *EmailRecord) *ScoreResult {
	return p.scoreRecord(ctx, rec)
}

func (p *Pipeline) scoreRecord(ctx context.Context, rec *EmailRecord) *ScoreResult {
	res := &ScoreResult{
		RecordID: rec.ID,
		ScoredAt: time.Now(),
	}

	// Exclusion runs before the whitelist: known-noise traffic is dropped
	// from scoring entirely
	if reason, ok := p.exclusions.Match(rec); ok {
		rec.Status = StatusExcluded
		rec.FinalScore = 0.0
		res.Status = StatusExcluded
		res.Decision = DecisionClear
		res.FinalScore = 0.0
		res.Signals = append(res.Signals, Signal{
			Source: SignalExclusion,
			Name:   "exclusion-rule",
			Detail: reason,
		})
		res.AuditFlags = append(res.AuditFlags, "excluded")
		p.logger.Debug("Record excluded",
			zap.String("record_id", rec.ID),
			zap.String("rule", reason))
		return res
	}

	if reason, ok := p.whitelist.Match(rec); ok {
		rec.Status = StatusWhitelisted
		rec.FinalScore = 0.0
		res.Status = StatusWhitelisted
		res.Decision = DecisionClear
		res.FinalScore = 0.0
		res.Signals = append(res.Signals, Signal{
			Source: SignalWhitelist,
			Name:   "whitelist-bypass",
			Detail: reason,
		})
		p.logger.Debug("Record whitelisted",
			zap.String("record_id", rec.ID),
			zap.String("reason", reason))
		return res
	}

	kwMatches, kwScore, dampened := p.keywords.Detect(rec)
	rec.KeywordHits = len(kwMatches)
	for _, m := range kwMatches {
		res.Signals = append(res.Signals, Signal{
			Source: SignalKeywords,
			Name:   m.Keyword,
			Score:  m.Weight,
			Detail: fmt.Sprintf("%s in %s", m.Category, m.Field),
		})
	}
	if dampened {
		res.AuditFlags = append(res.AuditFlags, "keyword-signal-dampened")
	}

	ruleMatches, ruleScore := p.rules.Evaluate(rec)
	for _, m := range ruleMatches {
		res.Signals = append(res.Signals, Signal{
			Source: SignalRules,
			Name:   m.Name,
			Score:  m.Severity,
			Detail: m.RuleID,
		})
	}

	mlScores := make(map[SignalSource]float64, len(p.scorers))
	for _, s := range p.scorers {
		score, flag, reason := p.runScorer(ctx, s, rec)
		mlScores[s.Source()] = score
		res.Signals = append(res.Signals, Signal{
			Source: s.Source(),
			Name:   string(s.Source()) + "-model",
			Score:  score,
		})
		if flag != "" {
			res.AuditFlags = append(res.AuditFlags, flag)
		}
		if reason != "" && res.ErrorReason == "" {
			res.ErrorReason = reason
		}
	}

	final := p.aggregator.Aggregate(ruleScore, kwScore, mlScores[SignalAnomaly], mlScores[SignalClassifier])
	decision := p.aggregator.Decide(final)

	res.FinalScore = final
	res.Decision = decision
	switch decision {
	case DecisionCase:
		res.Status = StatusCased
	case DecisionFlag:
		res.Status = StatusFlagged
	default:
		res.Status = StatusClear
	}

	rec.FinalScore = final
	rec.Status = res.Status

	return res
}

// runScorer executes one ML scorer under the inference timeout. Failures
// degrade to the neutral score and are recorded on the result instead of
// being raised to the caller.
func (p *Pipeline) runScorer(ctx context.Context, s Scorer, rec *EmailRecord) (score float64, flag, reason string) {
	const neutral = 0.5

	sctx, cancel := context.WithTimeout(ctx, p.mlTimeout)
	defer cancel()

	type outcome struct {
		score float64
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		v, err := s.Score(sctx, rec)
		ch <- outcome{v, err}
	}()

	var out outcome
	select {
	case <-sctx.Done():
		// The per-call deadline and a batch cancellation both land here;
		// the error reason must say which happened
		if errors.Is(sctx.Err(), context.DeadlineExceeded) {
			p.logger.Warn("Scorer timed out",
				zap.String("scorer", string(s.Source())),
				zap.String("record_id", rec.ID))
			return neutral, string(s.Source()) + "-score-unavailable",
				fmt.Sprintf("%s scorer timed out after %s", s.Source(), p.mlTimeout)
		}
		p.logger.Warn("Scorer cancelled",
			zap.String("scorer", string(s.Source())),
			zap.String("record_id", rec.ID))
		return neutral, string(s.Source()) + "-score-unavailable",
			fmt.Sprintf("%s scorer cancelled before completion", s.Source())
	case out = <-ch:
	}

	if out.err != nil {
		var fe *FeatureExtractionError
		switch {
		case errors.Is(out.err, ErrModelUnavailable):
			return neutral, string(s.Source()) + "-score-unavailable", ""
		case errors.As(out.err, &fe):
			p.logger.Warn("Feature extraction failed",
				zap.String("record_id", rec.ID),
				zap.String("field", fe.Field),
				zap.Error(fe))
			return neutral, "manual-review", fe.Error()
		default:
			p.logger.Error("Scorer failed",
				zap.String("scorer", string(s.Source())),
				zap.String("record_id", rec.ID),
				zap.Error(out.err))
			return neutral, string(s.Source()) + "-score-unavailable", out.err.Error()
		}
	}

	return clamp(out.score, 0.0, 1.0), "", ""
}

// persist writes the result and, when the decision crossed the case
// threshold, upserts the record's case. The upsert is keyed by record ID so
// re-scoring the same record never creates a duplicate open case.
func (p *Pipeline) persist(ctx context.Context, rec *EmailRecord, res *ScoreResult) error {
	if res.Decision == DecisionCase {
		now := time.Now()
		c := &Case{
			ID:       uuid.NewString(),
			RecordID: rec.ID,
			Title:    fmt.Sprintf("High-risk email: %s", truncate(rec.Subject, 100)),
			Description: fmt.Sprintf("Email from %s flagged with combined risk score %.2f",
				rec.Sender, res.FinalScore),
			Severity:  p.aggregator.SeverityFor(res.FinalScore),
			Status:    CaseOpen,
			Signals:   res.Signals,
			CreatedAt: now,
			UpdatedAt: now,
		}
		stored, err := p.store.UpsertCase(ctx, c)
		if err != nil {
			return fmt.Errorf("failed to upsert case for record %s: %w", rec.ID, err)
		}
		res.CaseID = stored.ID
	}

	if err := p.store.SaveResult(ctx, res); err != nil {
		return fmt.Errorf("failed to save result for record %s: %w", rec.ID, err)
	}
	return nil
}

// truncate shortens s to at most n runes, never splitting a multi-byte
// character
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
