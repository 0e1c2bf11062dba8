package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"triage/internal/logging"
	"triage/internal/types"
)

// SQLiteStore persists each case as a JSON-serialized state row. One
// writer connection keeps SQLite's locking model simple.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		// NORMAL is safe with WAL and much faster than FULL.
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.Store().Debugw("pragma failed", "pragma", pragma, "error", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store().Infow("opened case store", "path", path)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS cases (
		case_id    TEXT PRIMARY KEY,
		status     TEXT NOT NULL,
		phase      INTEGER NOT NULL,
		state      TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Load returns the state for caseID, or ErrNotFound.
func (s *SQLiteStore) Load(ctx context.Context, caseID string) (*types.InvestigationState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM cases WHERE case_id = ?", caseID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case %s: %w", caseID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load case %s: %w", caseID, err)
	}

	var st types.InvestigationState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("corrupt state for case %s: %w", caseID, err)
	}
	return &st, nil
}

// Save upserts the full state inside one transaction.
func (s *SQLiteStore) Save(ctx context.Context, st *types.InvestigationState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal case %s: %w", st.CaseID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save for case %s: %w", st.CaseID, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cases (case_id, status, phase, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET
			status = excluded.status,
			phase = excluded.phase,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		st.CaseID, string(st.Status), int(st.Phase), string(raw),
		st.CreatedAt.UTC().Format(time.RFC3339Nano),
		st.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save case %s: %w", st.CaseID, err)
	}

	return tx.Commit()
}

// Delete removes a case row. Deleting a missing case is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, caseID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cases WHERE case_id = ?", caseID); err != nil {
		return fmt.Errorf("delete case %s: %w", caseID, err)
	}
	return nil
}

// ListCaseIDs returns all stored case IDs, most recently updated first.
func (s *SQLiteStore) ListCaseIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT case_id FROM cases ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
