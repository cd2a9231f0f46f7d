package factory

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/config"
	"github.com/mailsentry/mail-sentry/internal/core"
	"github.com/mailsentry/mail-sentry/internal/keywords"
	"github.com/mailsentry/mail-sentry/internal/rules"
	"github.com/mailsentry/mail-sentry/internal/whitelist"
)

// PipelineFactory assembles the scoring pipeline from a configuration
// snapshot
type PipelineFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewPipelineFactory creates a new pipeline factory
func NewPipelineFactory(cfg *config.Config, logger *zap.Logger) *PipelineFactory {
	return &PipelineFactory{
		cfg:    cfg,
		logger: logger.Named("pipeline"),
	}
}

// CreatePipeline builds the detectors from the snapshot and wires them to
// the scorers and the result store. The snapshot is treated as immutable
// for the pipeline's lifetime.
func (f *PipelineFactory) CreatePipeline(
	snapshot *core.ConfigSnapshot,
	scorers []core.Scorer,
	resultStore core.ResultStore,
) (*core.Pipeline, error) {
	strategy := f.cfg.GetString("scoring.intra_aggregation")

	excluder := rules.NewExcluder(snapshot.Exclusions, f.logger)
	matcher := whitelist.NewMatcher(snapshot.Whitelist, f.logger)
	detector := keywords.NewDetector(snapshot.Keywords, snapshot.Dampening, strategy, f.logger)
	engine := rules.NewEngine(snapshot.Rules, strategy, f.logger)

	aggregator := core.NewAggregator(
		core.Weights{
			Rules:      f.cfg.GetFloat64("scoring.weights.rules"),
			Keywords:   f.cfg.GetFloat64("scoring.weights.keywords"),
			Anomaly:    f.cfg.GetFloat64("scoring.weights.anomaly"),
			Classifier: f.cfg.GetFloat64("scoring.weights.classifier"),
		},
		core.Thresholds{
			Case:     f.cfg.GetFloat64("scoring.case_threshold"),
			Flag:     f.cfg.GetFloat64("scoring.flag_threshold"),
			Critical: f.cfg.GetFloat64("scoring.critical_threshold"),
		},
	)

	mlTimeout, err := f.cfg.GetDuration("pipeline.ml_timeout")
	if err != nil {
		return nil, fmt.Errorf("invalid ML timeout: %w", err)
	}

	return core.NewPipeline(
		excluder,
		matcher,
		detector,
		engine,
		scorers,
		aggregator,
		resultStore,
		f.logger,
		f.cfg.GetInt("pipeline.workers"),
		mlTimeout,
	), nil
}
