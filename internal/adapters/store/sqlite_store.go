package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/core"
)

// SQLiteStore is a SQLite implementation of the ResultStore interface
type SQLiteStore struct {
	db          *sql.DB
	logger      *zap.Logger
	retention   time.Duration
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewSQLiteStore opens the database, creates the schema and starts the
// retention cleanup task
func NewSQLiteStore(dbPath string, logger *zap.Logger, retention, cleanupFreq time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scored_records (
			record_id TEXT PRIMARY KEY,
			final_score REAL,
			decision TEXT,
			status TEXT,
			signals TEXT,
			audit_flags TEXT,
			case_id TEXT,
			error_reason TEXT,
			scored_at TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create scored_records table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS cases (
			id TEXT,
			record_id TEXT PRIMARY KEY,
			title TEXT,
			description TEXT,
			severity TEXT,
			status TEXT,
			signals TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cases table: %w", err)
	}

	// Index on scored_at for faster retention cleanup
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_scored_at ON scored_records(scored_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	s := &SQLiteStore{
		db:          db,
		logger:      logger,
		retention:   retention,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	go s.startCleanupTask()

	return s, nil
}

// SaveResult stores the scoring outcome for a record, replacing any
// previous result for the same record ID
func (s *SQLiteStore) SaveResult(ctx context.Context, result *core.ScoreResult) error {
	signals, err := json.Marshal(result.Signals)
	if err != nil {
		return fmt.Errorf("failed to encode signals: %w", err)
	}
	flags, err := json.Marshal(result.AuditFlags)
	if err != nil {
		return fmt.Errorf("failed to encode audit flags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO scored_records
			(record_id, final_score, decision, status, signals, audit_flags, case_id, error_reason, scored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, result.RecordID, result.FinalScore, string(result.Decision), string(result.Status),
		string(signals), string(flags), result.CaseID, result.ErrorReason,
		result.ScoredAt.Format(time.RFC3339))

	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// UpsertCase inserts the case unless a case already exists for the record,
// then returns the canonical row. The record_id primary key makes the
// insert idempotent under concurrent re-scoring.
func (s *SQLiteStore) UpsertCase(ctx context.Context, c *core.Case) (*core.Case, error) {
	signals, err := json.Marshal(c.Signals)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signals: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cases (id, record_id, title, description, severity, status, signals, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO NOTHING
	`, c.ID, c.RecordID, c.Title, c.Description, string(c.Severity), string(c.Status),
		string(signals), c.CreatedAt.Format(time.RFC3339), c.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert case: %w", err)
	}

	return s.getCaseByRecord(ctx, c.RecordID)
}

func (s *SQLiteStore) getCaseByRecord(ctx context.Context, recordID string) (*core.Case, error) {
	var (
		c                    core.Case
		signals              string
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, record_id, title, description, severity, status, signals, created_at, updated_at
		FROM cases
		WHERE record_id = ?
	`, recordID).Scan(&c.ID, &c.RecordID, &c.Title, &c.Description, &c.Severity, &c.Status,
		&signals, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to query case: %w", err)
	}

	if err := json.Unmarshal([]byte(signals), &c.Signals); err != nil {
		s.logger.Warn("Failed to decode case signals", zap.Error(err), zap.String("record_id", recordID))
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		c.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		c.UpdatedAt = t
	}
	return &c, nil
}

// GetResult retrieves the stored result for a record ID
func (s *SQLiteStore) GetResult(ctx context.Context, recordID string) (*core.ScoreResult, error) {
	var (
		res            core.ScoreResult
		signals, flags string
		scoredAt       string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT record_id, final_score, decision, status, signals, audit_flags, case_id, error_reason, scored_at
		FROM scored_records
		WHERE record_id = ?
	`, recordID).Scan(&res.RecordID, &res.FinalScore, &res.Decision, &res.Status,
		&signals, &flags, &res.CaseID, &res.ErrorReason, &scoredAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query result: %w", err)
	}

	if err := json.Unmarshal([]byte(signals), &res.Signals); err != nil {
		s.logger.Warn("Failed to decode result signals", zap.Error(err), zap.String("record_id", recordID))
	}
	if err := json.Unmarshal([]byte(flags), &res.AuditFlags); err != nil {
		s.logger.Warn("Failed to decode audit flags", zap.Error(err), zap.String("record_id", recordID))
	}
	if t, err := time.Parse(time.RFC3339, scoredAt); err == nil {
		res.ScoredAt = t
	}
	return &res, nil
}

// ListCases returns all cases ordered by creation time
func (s *SQLiteStore) ListCases(ctx context.Context) ([]*core.Case, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, title, description, severity, status, signals, created_at, updated_at
		FROM cases
		ORDER BY created_at, record_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}
	defer rows.Close()

	var cases []*core.Case
	for rows.Next() {
		var (
			c                    core.Case
			signals              string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&c.ID, &c.RecordID, &c.Title, &c.Description, &c.Severity, &c.Status,
			&signals, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan case row: %w", err)
		}
		if err := json.Unmarshal([]byte(signals), &c.Signals); err != nil {
			s.logger.Warn("Failed to decode case signals", zap.Error(err), zap.String("record_id", c.RecordID))
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			c.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			c.UpdatedAt = t
		}
		cases = append(cases, &c)
	}
	return cases, rows.Err()
}

// Cleanup removes results older than the retention window
func (s *SQLiteStore) Cleanup(ctx context.Context) error {
	cutoff := time.Now().Add(-s.retention).Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM scored_records
		WHERE scored_at <= ?
	`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to clean up expired results: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else if rowsAffected > 0 {
		s.logger.Debug("Cleaned up expired results", zap.Int64("removed", rowsAffected))
	}
	return nil
}

// startCleanupTask runs periodic retention cleanup until Stop is called
func (s *SQLiteStore) startCleanupTask() {
	if s.retention <= 0 || s.cleanupFreq <= 0 {
		return
	}
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Cleanup(context.Background()); err != nil {
				s.logger.Error("Failed to clean up results", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the cleanup task and closes the database
func (s *SQLiteStore) Stop() {
	close(s.stopCh)
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close SQLite database", zap.Error(err))
	}
}
