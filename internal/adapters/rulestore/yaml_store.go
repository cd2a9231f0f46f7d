package rulestore

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mailsentry/mail-sentry/internal/core"
)

// snapshotFile is the on-disk shape of the operator-maintained detection
// configuration
type snapshotFile struct {
	Exclusions []core.ExclusionRule  `yaml:"exclusions"`
	Rules      []core.SecurityRule   `yaml:"rules"`
	Keywords   []core.RiskKeyword    `yaml:"keywords"`
	Whitelist  []core.WhitelistEntry `yaml:"whitelist"`
	Dampening  []string              `yaml:"dampening"`
}

// FileStore loads detection configuration snapshots from a YAML file.
// Malformed entries are skipped and logged; the valid remainder stays in
// effect so one bad rule never blocks a batch.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore creates a snapshot loader for the given path
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Load implements core.SnapshotLoader. The returned snapshot is immutable
// configuration for one batch.
func (s *FileStore) Load(ctx context.Context) (*core.ConfigSnapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config snapshot: %w", err)
	}

	var file snapshotFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config snapshot: %w", err)
	}

	snapshot := &core.ConfigSnapshot{Dampening: file.Dampening}

	for _, rule := range file.Exclusions {
		if err := validateExclusion(rule); err != nil {
			s.logger.Warn("Skipping exclusion rule", zap.Error(err))
			continue
		}
		snapshot.Exclusions = append(snapshot.Exclusions, rule)
	}

	for _, rule := range file.Rules {
		if err := validateRule(rule); err != nil {
			s.logger.Warn("Skipping security rule", zap.Error(err))
			continue
		}
		snapshot.Rules = append(snapshot.Rules, rule)
	}

	for _, kw := range file.Keywords {
		if err := validateKeyword(kw); err != nil {
			s.logger.Warn("Skipping risk keyword", zap.Error(err))
			continue
		}
		snapshot.Keywords = append(snapshot.Keywords, kw)
	}

	for _, entry := range file.Whitelist {
		if strings.TrimSpace(entry.Value) == "" {
			s.logger.Warn("Skipping whitelist entry",
				zap.Error(&core.ConfigError{Entry: entry.Value, Reason: "empty value"}))
			continue
		}
		snapshot.Whitelist = append(snapshot.Whitelist, entry)
	}

	s.logger.Info("Loaded configuration snapshot",
		zap.String("path", s.path),
		zap.Int("exclusions", len(snapshot.Exclusions)),
		zap.Int("rules", len(snapshot.Rules)),
		zap.Int("keywords", len(snapshot.Keywords)),
		zap.Int("whitelist", len(snapshot.Whitelist)))

	return snapshot, nil
}

func validateExclusion(rule core.ExclusionRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return &core.ConfigError{Entry: rule.ID, Reason: "exclusion rule without a name"}
	}
	if strings.TrimSpace(rule.Field) == "" {
		return &core.ConfigError{Entry: rule.Name, Reason: "exclusion rule without a field"}
	}
	if strings.TrimSpace(rule.Operator) == "" {
		return &core.ConfigError{Entry: rule.Name, Reason: "exclusion rule without an operator"}
	}
	return nil
}

func validateRule(rule core.SecurityRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return &core.ConfigError{Entry: rule.ID, Reason: "rule without a name"}
	}
	switch rule.Type {
	case core.RuleKeywordMatch, core.RuleRegexPattern, core.RuleFieldEquality:
		if strings.TrimSpace(rule.Pattern) == "" {
			return &core.ConfigError{Entry: rule.Name, Reason: "rule without a pattern"}
		}
	case core.RuleComposite:
		if len(rule.Conditions) == 0 {
			return &core.ConfigError{Entry: rule.Name, Reason: "composite rule without conditions"}
		}
	default:
		return &core.ConfigError{Entry: rule.Name, Reason: fmt.Sprintf("unknown rule type %q", rule.Type)}
	}
	if rule.Severity < 0 || rule.Severity > 1 {
		return &core.ConfigError{Entry: rule.Name, Reason: "severity outside [0, 1]"}
	}
	return nil
}

func validateKeyword(kw core.RiskKeyword) error {
	if strings.TrimSpace(kw.Keyword) == "" {
		return &core.ConfigError{Entry: string(kw.Category), Reason: "empty keyword"}
	}
	if kw.Weight <= 0 || kw.Weight > 1 {
		return &core.ConfigError{Entry: kw.Keyword, Reason: "weight outside (0, 1]"}
	}
	switch kw.Category {
	case core.CategoryFinancial, core.CategoryPhishing, core.CategoryMalware,
		core.CategoryDataExfiltration, core.CategorySocialEngineering:
		return nil
	default:
		return &core.ConfigError{Entry: kw.Keyword, Reason: fmt.Sprintf("unknown category %q", kw.Category)}
	}
}
