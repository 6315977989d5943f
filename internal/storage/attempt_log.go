package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"focusguard/internal/core/model"

	_ "modernc.org/sqlite"
)

// AttemptLog is the durable bypass-attempt audit log, stored in SQLite with WAL.
type AttemptLog struct {
	db   *sql.DB
	path string
}

// OpenAttemptLog creates and initializes the database at dbPath.
func OpenAttemptLog(dbPath string) (*AttemptLog, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("attempt log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", pragma, err)
		}
	}

	log := &AttemptLog{db: db, path: dbPath}
	if err := log.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return log, nil
}

// DefaultAttemptLogPath places the log next to the settings file.
func DefaultAttemptLogPath(appName string) (string, error) {
	settingsPath, err := SettingsPath(appName)
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(settingsPath), "bypass_attempts.db"), nil
}

func (log *AttemptLog) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bypass_attempts (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		method     TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bypass_attempts_session ON bypass_attempts(session_id, id);
	`
	_, err := log.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (log *AttemptLog) Close() error {
	if log.db == nil {
		return nil
	}
	return log.db.Close()
}

// SaveAttempt appends one attempt.
func (log *AttemptLog) SaveAttempt(ctx context.Context, attempt model.BypassAttempt) error {
	timestamp := attempt.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	_, err := log.db.ExecContext(ctx, `
		INSERT INTO bypass_attempts (session_id, method, created_at)
		VALUES (?, ?, ?)`,
		attempt.SessionID, attempt.Method, timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert bypass attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the attempts of one session in insertion order. An
// empty sessionID lists every session.
func (log *AttemptLog) ListAttempts(ctx context.Context, sessionID string) ([]model.BypassAttempt, error) {
	query := `SELECT session_id, method, created_at FROM bypass_attempts`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id`

	rows, err := log.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bypass attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.BypassAttempt
	for rows.Next() {
		var attempt model.BypassAttempt
		var createdAt string
		if err := rows.Scan(&attempt.SessionID, &attempt.Method, &createdAt); err != nil {
			return nil, fmt.Errorf("scan bypass attempt: %w", err)
		}
		attempt.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse attempt time %q: %w", createdAt, err)
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// CountByMethod returns how often each method was recorded for a session.
func (log *AttemptLog) CountByMethod(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := log.db.QueryContext(ctx, `
		SELECT method, COUNT(*) FROM bypass_attempts
		WHERE session_id = ?
		GROUP BY method`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count bypass attempts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var method string
		var count int
		if err := rows.Scan(&method, &count); err != nil {
			return nil, fmt.Errorf("scan attempt count: %w", err)
		}
		counts[method] = count
	}
	return counts, rows.Err()
}
