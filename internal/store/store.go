// Package store persists session snapshots in SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/interviewer/internal/model"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed snapshot store: one row per session holding the
// JSON-serialized SessionState.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_snapshots (
		session_id TEXT PRIMARY KEY,
		state_json TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save upserts the snapshot for a session.
func (s *Store) Save(id string, state *model.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", id, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO session_snapshots (session_id, state_json, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET state_json = ?, updated_at = ?`,
		id, string(data), time.Now(), string(data), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", id, err)
	}
	return nil
}

// Load returns the persisted snapshot for a session, or (nil, nil) when no
// usable snapshot exists. A corrupt record is logged and treated as absent.
func (s *Store) Load(id string) (*model.SessionState, error) {
	var raw string
	err := s.db.QueryRow(
		`SELECT state_json FROM session_snapshots WHERE session_id = ?`, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	var state model.SessionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		slog.Warn("corrupt session snapshot, treating as absent", "session_id", id, "error", err)
		return nil, nil
	}
	return &state, nil
}

// Delete removes the snapshot for a session. Deleting a missing snapshot
// is not an error.
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM session_snapshots WHERE session_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// ListIDs returns all persisted session ids.
func (s *Store) ListIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT session_id FROM session_snapshots ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
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

// ExportAll builds export-ready records for every persisted session.
// Corrupt snapshots are skipped.
func (s *Store) ExportAll() ([]model.SessionExport, error) {
	rows, err := s.db.Query(`SELECT session_id, state_json, updated_at FROM session_snapshots ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var exports []model.SessionExport
	for rows.Next() {
		var id, raw string
		var updatedAt time.Time
		if err := rows.Scan(&id, &raw, &updatedAt); err != nil {
			return nil, err
		}
		var state model.SessionState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			slog.Warn("skipping corrupt snapshot in export", "session_id", id, "error", err)
			continue
		}
		exports = append(exports, model.SessionExport{
			SessionID:  id,
			ExportedAt: time.Now(),
			Metadata: model.SessionMetadata{
				LastActivityAt: updatedAt,
				Status:         model.StatusActive,
			},
			State: state,
		})
	}
	return exports, rows.Err()
}
