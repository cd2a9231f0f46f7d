package core

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable indicates an ML model is missing or untrained. The
// pipeline degrades to a neutral score instead of failing the record.
var ErrModelUnavailable = errors.New("model unavailable")

// ErrStoreUnavailable indicates the result store cannot persist records.
// This is the only per-record failure that aborts a batch.
var ErrStoreUnavailable = errors.New("result store unavailable")

// ConfigError reports a malformed rule, keyword or whitelist entry. The
// entry is skipped and the rest of the configuration remains in effect.
type ConfigError struct {
	Entry  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration entry %q: %s", e.Entry, e.Reason)
}

// FeatureExtractionError reports a record field that prevented feature
// derivation. The record is scored neutrally and marked for manual review.
type FeatureExtractionError struct {
	Field  string
	Reason string
}

func (e *FeatureExtractionError) Error() string {
	return fmt.Sprintf("cannot derive features from field %q: %s", e.Field, e.Reason)
}
