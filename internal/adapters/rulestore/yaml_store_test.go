package rulestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/core"
)

func writeSnapshot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSnapshot(t *testing.T) {
	path := writeSnapshot(t, `
exclusions:
  - id: "ex1"
    name: "calendar responses"
    field: "subject"
    operator: "regex"
    value: '^(accepted|declined):'
    enabled: true
rules:
  - id: "r1"
    name: "leaver with attachments"
    type: "composite"
    severity: 0.9
    enabled: true
    conditions:
      - field: "leaver"
        operator: "equals"
        value: "true"
      - field: "attachments"
        operator: "is_not_empty"
keywords:
  - { keyword: "wire transfer", category: "financial", weight: 0.6 }
  - { keyword: "urgent", category: "social-engineering", weight: 0.3 }
whitelist:
  - { value: "trusted.example.com", scope: "domain" }
dampening:
  - "no-reply"
`)

	snapshot, err := NewFileStore(path, zap.NewNop()).Load(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot.Exclusions, 1)
	assert.Equal(t, "calendar responses", snapshot.Exclusions[0].Name)

	require.Len(t, snapshot.Rules, 1)
	assert.Equal(t, core.RuleComposite, snapshot.Rules[0].Type)
	assert.Len(t, snapshot.Rules[0].Conditions, 2)

	require.Len(t, snapshot.Keywords, 2)
	assert.Equal(t, core.CategoryFinancial, snapshot.Keywords[0].Category)

	require.Len(t, snapshot.Whitelist, 1)
	assert.Equal(t, []string{"no-reply"}, snapshot.Dampening)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewFileStore("/nonexistent/rules.yaml", zap.NewNop()).Load(context.Background())
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeSnapshot(t, "rules: [unclosed")

	_, err := NewFileStore(path, zap.NewNop()).Load(context.Background())
	assert.Error(t, err)
}

func TestInvalidEntriesSkipped(t *testing.T) {
	path := writeSnapshot(t, `
exclusions:
  - id: "ok"
    name: "bounce notifications"
    field: "sender"
    operator: "starts_with"
    value: "mailer-daemon@"
    enabled: true
  - id: "no-name"
    field: "subject"
    operator: "contains"
    value: "x"
  - id: "no-field"
    name: "missing field"
    operator: "contains"
    value: "x"
  - id: "no-operator"
    name: "missing operator"
    field: "subject"
    value: "x"
rules:
  - id: "ok"
    name: "valid rule"
    type: "keyword-match"
    pattern: "secret"
    severity: 0.5
    enabled: true
  - id: "no-name"
    type: "keyword-match"
    pattern: "x"
    severity: 0.5
  - id: "bad-severity"
    name: "too hot"
    type: "keyword-match"
    pattern: "x"
    severity: 1.5
  - id: "no-conditions"
    name: "empty composite"
    type: "composite"
    severity: 0.5
  - id: "bad-type"
    name: "mystery"
    type: "mystery"
    pattern: "x"
    severity: 0.5
keywords:
  - { keyword: "valid", category: "phishing", weight: 0.4 }
  - { keyword: "", category: "phishing", weight: 0.4 }
  - { keyword: "zero weight", category: "phishing", weight: 0 }
  - { keyword: "bad category", category: "mystery", weight: 0.4 }
whitelist:
  - { value: "good.example.com" }
  - { value: "   " }
`)

	snapshot, err := NewFileStore(path, zap.NewNop()).Load(context.Background())
	require.NoError(t, err)

	// The valid remainder stays in effect
	require.Len(t, snapshot.Exclusions, 1)
	assert.Equal(t, "ok", snapshot.Exclusions[0].ID)
	require.Len(t, snapshot.Rules, 1)
	assert.Equal(t, "ok", snapshot.Rules[0].ID)
	require.Len(t, snapshot.Keywords, 1)
	assert.Equal(t, "valid", snapshot.Keywords[0].Keyword)
	require.Len(t, snapshot.Whitelist, 1)
}

func TestEmptySnapshot(t *testing.T) {
	path := writeSnapshot(t, "")

	snapshot, err := NewFileStore(path, zap.NewNop()).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snapshot.Rules)
	assert.Empty(t, snapshot.Keywords)
	assert.Empty(t, snapshot.Whitelist)
}
