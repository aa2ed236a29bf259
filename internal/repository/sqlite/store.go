// Package sqlite records edit history in a local SQLite database for
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/smartclips-editor/internal/domain"
	"github.com/smartclips-editor/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed width so created_at sorts as text in time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is the SQLite edit history
type Store struct {
	conn *sql.DB
	log  *logger.Logger
}

// New opens the database at dbPath and applies pending migrations
func New(dbPath string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	s := &Store{conn: conn, log: log}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	migrations, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, m := range migrations {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		if s.isMigrationApplied(name) {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}

		if s.log != nil {
			s.log.Infow("applied migration", "name", name)
		}
	}
	return nil
}

func (s *Store) isMigrationApplied(name string) bool {
	var applied int
	err := s.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

// Record appends one edit to the history
func (s *Store) Record(ctx context.Context, rec *domain.EditRecord) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO edits (id, session_id, user_id, mode, params, source_locator, result_url, outcome, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.UserID, rec.Mode, string(params),
		rec.SourceLocator, rec.ResultURL, string(rec.Outcome), rec.Error,
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("%w: insert edit: %v", domain.ErrDatabaseError, err)
	}
	return nil
}

// ListBySession returns a session's edits, oldest first
func (s *Store) ListBySession(ctx context.Context, sessionID string, limit int) ([]*domain.EditRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, session_id, user_id, mode, params, source_locator, result_url, outcome, error, created_at
		FROM edits WHERE session_id = ? ORDER BY created_at, rowid LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query edits: %v", domain.ErrDatabaseError, err)
	}
	defer rows.Close()

	var records []*domain.EditRecord
	for rows.Next() {
		var (
			rec       domain.EditRecord
			params    string
			outcome   string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.Mode, &params,
			&rec.SourceLocator, &rec.ResultURL, &outcome, &rec.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan edit: %v", domain.ErrDatabaseError, err)
		}
		if params != "" && params != "null" {
			if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
				return nil, fmt.Errorf("failed to unmarshal params: %w", err)
			}
		}
		rec.Outcome = domain.EditOutcome(outcome)
		if t, err := time.Parse(timeLayout, createdAt); err == nil {
			rec.CreatedAt = t
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
