package factory

import (
	"os"

	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/config"
	"github.com/mailsentry/mail-sentry/internal/core"
	"github.com/mailsentry/mail-sentry/internal/ml"
)

// ScorerFactory creates the ML scorers from their model snapshots
type ScorerFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewScorerFactory creates a new scorer factory
func NewScorerFactory(cfg *config.Config, logger *zap.Logger) *ScorerFactory {
	return &ScorerFactory{
		cfg:    cfg,
		logger: logger.Named("ml"),
	}
}

// CreateScorers loads both engines. A missing or unreadable model snapshot
// is not fatal: the scorer starts unavailable and the pipeline substitutes
// the neutral score until a model is deployed.
func (f *ScorerFactory) CreateScorers() []core.Scorer {
	var forest *ml.IsolationForest
	anomalyPath := f.cfg.GetString("models.anomaly_path")
	if fileExists(anomalyPath) {
		loaded, err := ml.LoadIsolationForest(anomalyPath)
		if err != nil {
			f.logger.Warn("Failed to load anomaly model, scoring degrades to neutral",
				zap.String("path", anomalyPath), zap.Error(err))
		} else {
			forest = loaded
			f.logger.Info("Loaded anomaly model",
				zap.String("path", anomalyPath),
				zap.Int("trees", len(forest.Trees)),
				zap.String("schema", forest.SchemaVersion))
		}
	} else {
		f.logger.Warn("Anomaly model not found, scoring degrades to neutral",
			zap.String("path", anomalyPath))
	}

	var model *ml.ThreatModel
	classifierPath := f.cfg.GetString("models.classifier_path")
	if fileExists(classifierPath) {
		loaded, err := ml.LoadThreatModel(classifierPath)
		if err != nil {
			f.logger.Warn("Failed to load threat model, scoring degrades to neutral",
				zap.String("path", classifierPath), zap.Error(err))
		} else {
			model = loaded
			f.logger.Info("Loaded threat model",
				zap.String("path", classifierPath),
				zap.Int("trees", len(model.Trees)),
				zap.String("schema", model.SchemaVersion))
		}
	} else {
		f.logger.Warn("Threat model not found, cold start with neutral scores",
			zap.String("path", classifierPath))
	}

	return []core.Scorer{
		ml.NewAnomalyScorer(forest, f.logger),
		ml.NewThreatClassifier(model, f.logger),
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
