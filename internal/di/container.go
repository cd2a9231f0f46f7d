package di

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/adapters/ingest"
	"github.com/mailsentry/mail-sentry/internal/adapters/rulestore"
	"github.com/mailsentry/mail-sentry/internal/config"
	"github.com/mailsentry/mail-sentry/internal/core"
	"github.com/mailsentry/mail-sentry/internal/factory"
	"github.com/mailsentry/mail-sentry/internal/logging"
	"github.com/mailsentry/mail-sentry/internal/metrics"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewScorerFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewPipelineFactory); err != nil {
		return nil, err
	}

	// Register result store
	if err := container.Provide(func(f *factory.StoreFactory) (core.ResultStore, error) {
		return f.CreateResultStore()
	}); err != nil {
		return nil, err
	}

	// Register ML scorers
	if err := container.Provide(func(f *factory.ScorerFactory) []core.Scorer {
		return f.CreateScorers()
	}); err != nil {
		return nil, err
	}

	// Register snapshot loader
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.SnapshotLoader {
		return rulestore.NewFileStore(cfg.GetString("rules.path"), logger.Named("rulestore"))
	}); err != nil {
		return nil, err
	}

	// Register configuration snapshot, loaded once so the batch scores
	// against immutable detection state
	if err := container.Provide(func(loader core.SnapshotLoader) (*core.ConfigSnapshot, error) {
		return loader.Load(context.Background())
	}); err != nil {
		return nil, err
	}

	// Register scoring pipeline
	if err := container.Provide(func(
		f *factory.PipelineFactory,
		snapshot *core.ConfigSnapshot,
		scorers []core.Scorer,
		resultStore core.ResultStore,
	) (*core.Pipeline, error) {
		return f.CreatePipeline(snapshot, scorers, resultStore)
	}); err != nil {
		return nil, err
	}

	// Register batch reader
	if err := container.Provide(ingest.NewReader); err != nil {
		return nil, err
	}

	// Register metrics
	if err := container.Provide(func() *metrics.Metrics {
		return metrics.New(prometheus.DefaultRegisterer)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
