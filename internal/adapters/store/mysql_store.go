package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mailsentry/mail-sentry/internal/core"
)

// MySQLStore is a MySQL implementation of the ResultStore interface
type MySQLStore struct {
	db          *sql.DB
	logger      *zap.Logger
	retention   time.Duration
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewMySQLStore connects to the database, creates the schema and starts the
// retention cleanup task
func NewMySQLStore(dsn string, logger *zap.Logger, retention, cleanupFreq time.Duration) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS scored_records (
			record_id VARCHAR(64) PRIMARY KEY,
			final_score DOUBLE,
			decision VARCHAR(16),
			status VARCHAR(16),
			signals TEXT,
			audit_flags TEXT,
			case_id VARCHAR(64),
			error_reason TEXT,
			scored_at TIMESTAMP,
			INDEX idx_scored_at (scored_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create scored_records table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS cases (
			id VARCHAR(64),
			record_id VARCHAR(64) PRIMARY KEY,
			title VARCHAR(255),
			description TEXT,
			severity VARCHAR(16),
			status VARCHAR(16),
			signals TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cases table: %w", err)
	}

	s := &MySQLStore{
		db:          db,
		logger:      logger,
		retention:   retention,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	go s.startCleanupTask()

	return s, nil
}

// SaveResult stores the scoring outcome for a record
func (s *MySQLStore) SaveResult(ctx context.Context, result *core.ScoreResult) error {
	signals, err := json.Marshal(result.Signals)
	if err != nil {
		return fmt.Errorf("failed to encode signals: %w", err)
	}
	flags, err := json.Marshal(result.AuditFlags)
	if err != nil {
		return fmt.Errorf("failed to encode audit flags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scored_records
			(record_id, final_score, decision, status, signals, audit_flags, case_id, error_reason, scored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			final_score = VALUES(final_score),
			decision = VALUES(decision),
			status = VALUES(status),
			signals = VALUES(signals),
			audit_flags = VALUES(audit_flags),
			case_id = VALUES(case_id),
			error_reason = VALUES(error_reason),
			scored_at = VALUES(scored_at)
	`, result.RecordID, result.FinalScore, string(result.Decision), string(result.Status),
		string(signals), string(flags), result.CaseID, result.ErrorReason, result.ScoredAt)

	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// UpsertCase inserts the case unless a case already exists for the record,
// then returns the canonical row
func (s *MySQLStore) UpsertCase(ctx context.Context, c *core.Case) (*core.Case, error) {
	signals, err := json.Marshal(c.Signals)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signals: %w", err)
	}

	// INSERT IGNORE keeps the first case for a record under concurrent
	// re-scoring; the primary key guarantees at most one row per record
	_, err = s.db.ExecContext(ctx, `
		INSERT IGNORE INTO cases (id, record_id, title, description, severity, status, signals, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.RecordID, c.Title, c.Description, string(c.Severity), string(c.Status),
		string(signals), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert case: %w", err)
	}

	return s.getCaseByRecord(ctx, c.RecordID)
}

func (s *MySQLStore) getCaseByRecord(ctx context.Context, recordID string) (*core.Case, error) {
	var (
		c       core.Case
		signals string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, record_id, title, description, severity, status, signals, created_at, updated_at
		FROM cases
		WHERE record_id = ?
	`, recordID).Scan(&c.ID, &c.RecordID, &c.Title, &c.Description, &c.Severity, &c.Status,
		&signals, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to query case: %w", err)
	}

	if err := json.Unmarshal([]byte(signals), &c.Signals); err != nil {
		s.logger.Warn("Failed to decode case signals", zap.Error(err), zap.String("record_id", recordID))
	}
	return &c, nil
}

// GetResult retrieves the stored result for a record ID
func (s *MySQLStore) GetResult(ctx context.Context, recordID string) (*core.ScoreResult, error) {
	var (
		res            core.ScoreResult
		signals, flags string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT record_id, final_score, decision, status, signals, audit_flags, case_id, error_reason, scored_at
		FROM scored_records
		WHERE record_id = ?
	`, recordID).Scan(&res.RecordID, &res.FinalScore, &res.Decision, &res.Status,
		&signals, &flags, &res.CaseID, &res.ErrorReason, &res.ScoredAt)

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
	return &res, nil
}

// ListCases returns all cases ordered by creation time
func (s *MySQLStore) ListCases(ctx context.Context) ([]*core.Case, error) {
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
			c       core.Case
			signals string
		)
		if err := rows.Scan(&c.ID, &c.RecordID, &c.Title, &c.Description, &c.Severity, &c.Status,
			&signals, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan case row: %w", err)
		}
		if err := json.Unmarshal([]byte(signals), &c.Signals); err != nil {
			s.logger.Warn("Failed to decode case signals", zap.Error(err), zap.String("record_id", c.RecordID))
		}
		cases = append(cases, &c)
	}
	return cases, rows.Err()
}

// Cleanup removes results older than the retention window
func (s *MySQLStore) Cleanup(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM scored_records
		WHERE scored_at <= ?
	`, time.Now().Add(-s.retention))
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

func (s *MySQLStore) startCleanupTask() {
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

// Stop stops the cleanup task and closes the database connection
func (s *MySQLStore) Stop() {
	close(s.stopCh)
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close MySQL database", zap.Error(err))
	}
}
