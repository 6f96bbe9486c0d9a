// Package storage provides durable backends for quota accounting and
// analysis results.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/use-agent/sitegrade/models"
	"github.com/use-agent/sitegrade/quota"
)

// ErrNotFound is returned when a stored analysis does not exist.
var ErrNotFound = errors.New("storage: not found")

// SQLiteStore keeps quota usage and analysis results in a single SQLite
// file. It implements quota.Store.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// OpenSQLite opens or creates sitegrade.db inside dir.
func OpenSQLite(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dbPath := filepath.Join(dir, "sitegrade.db")

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes every reservation issued by this process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS quota_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identifier TEXT NOT NULL,
		url TEXT NOT NULL,
		used_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_quota_identifier_time ON quota_usage(identifier, used_at);

	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		identifier TEXT NOT NULL,
		url TEXT NOT NULL,
		seo_score INTEGER NOT NULL,
		ai_score INTEGER NOT NULL,
		overall_score INTEGER NOT NULL,
		result_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_identifier ON analyses(identifier, created_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const countUsageQuery = `
	SELECT COUNT(*) FROM quota_usage
	WHERE identifier = ? AND used_at >= ? AND used_at < ?`

// CountUsage implements quota.Store.
func (s *SQLiteStore) CountUsage(ctx context.Context, identifier string, w quota.Window) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, countUsageQuery,
		identifier, w.Start.UnixNano(), w.End.UnixNano()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return n, nil
}

// RecordUsage implements quota.Store.
func (s *SQLiteStore) RecordUsage(ctx context.Context, identifier, url string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quota_usage (identifier, url, used_at) VALUES (?, ?, ?)`,
		identifier, url, at.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// DeleteUsage implements quota.Store.
func (s *SQLiteStore) DeleteUsage(ctx context.Context, identifier, url string, w quota.Window) error {
	_, err := s.db.ExecContext(ctx, `
	DELETE FROM quota_usage WHERE id = (
		SELECT id FROM quota_usage
		WHERE identifier = ? AND url = ? AND used_at >= ? AND used_at < ?
		ORDER BY used_at DESC, id DESC
		LIMIT 1
	)`, identifier, url, w.Start.UnixNano(), w.End.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to delete usage: %w", err)
	}
	return nil
}

// TryReserve implements quota.Store. The insert is conditional on the
// count in the same statement, so the limit holds even when several
// processes share the database file.
func (s *SQLiteStore) TryReserve(ctx context.Context, identifier, url string, at time.Time, w quota.Window, limit int) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin reservation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	start, end := w.Start.UnixNano(), w.End.UnixNano()

	var used int
	if err := tx.QueryRowContext(ctx, countUsageQuery, identifier, start, end).Scan(&used); err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	if used >= limit {
		return used, quota.ErrLimitReached
	}

	res, err := tx.ExecContext(ctx, `
	INSERT INTO quota_usage (identifier, url, used_at)
	SELECT ?, ?, ?
	WHERE (SELECT COUNT(*) FROM quota_usage WHERE identifier = ? AND used_at >= ? AND used_at < ?) < ?`,
		identifier, url, at.UnixNano(), identifier, start, end, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to reserve usage: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("failed to reserve usage: %w", err)
	} else if n == 0 {
		return limit, quota.ErrLimitReached
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit reservation: %w", err)
	}
	return used, nil
}

// SaveAnalysis stores a completed analysis for identifier.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, identifier string, result *models.AnalysisResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize analysis: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO analyses (id, identifier, url, seo_score, ai_score, overall_score, result_json, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, identifier, result.URL, result.Scores.SEO, result.Scores.AI,
		result.Scores.Overall, string(raw), result.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// GetAnalysis loads the analysis with the given ID run by identifier. It
// returns ErrNotFound when no such analysis exists or another caller ran it.
func (s *SQLiteStore) GetAnalysis(ctx context.Context, identifier, id string) (*models.AnalysisResult, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT result_json FROM analyses WHERE id = ? AND identifier = ?`, id, identifier).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis: %w", err)
	}
	return decodeAnalysis(raw)
}

// ListAnalyses returns the most recent analyses run by identifier, newest
// first.
func (s *SQLiteStore) ListAnalyses(ctx context.Context, identifier string, limit int) ([]*models.AnalysisResult, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT result_json FROM analyses
	WHERE identifier = ?
	ORDER BY created_at DESC
	LIMIT ?`, identifier, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	results := []*models.AnalysisResult{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		r, err := decodeAnalysis(raw)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func decodeAnalysis(raw string) (*models.AnalysisResult, error) {
	var r models.AnalysisResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return &r, nil
}
