// Package store persists conversations and run state in SQLite.
//
// It implements the council.Store contract: partial writes (one stage's
// completion writes only its own payload row) and idempotent loads, so
// the pipeline controller can resume an interrupted run from the first
// incomplete stage. Any document or key-value store could satisfy the
// same contract; SQLite is what ships.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pedroramos256/bundlecarte/internal/council"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeNow is a package-level var to allow test injection.
var timeNow = time.Now

// Conversation is the opaque container grouping runs. Message history
// itself lives outside the core.
type Conversation struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	RunCount  int    `json:"run_count"`
}

// SQLite is the SQLite-backed store for conversations and runs.
type SQLite struct {
	db *sql.DB
}

// Open creates the data directory if needed, opens the database with WAL
// mode, and runs migrations.
func Open(dataDir string) (*SQLite, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "council.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL DEFAULT 'New conversation',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS runs (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT    NOT NULL,
			query           TEXT    NOT NULL,
			status          TEXT    NOT NULL,
			next_stage      INTEGER NOT NULL DEFAULT 0,
			created_at      TEXT    NOT NULL,
			updated_at      TEXT    NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE TABLE IF NOT EXISTS run_stages (
			run_id       TEXT    NOT NULL,
			stage        INTEGER NOT NULL,
			payload      TEXT    NOT NULL,
			completed_at TEXT    NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (run_id, stage),
			FOREIGN KEY (run_id) REFERENCES runs(id)
		);

		CREATE INDEX IF NOT EXISTS idx_runs_conversation ON runs(conversation_id);
		CREATE INDEX IF NOT EXISTS idx_runs_created      ON runs(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- Conversations ---

// CreateConversation inserts a new conversation container.
func (s *SQLite) CreateConversation(id, title string) (*Conversation, error) {
	now := timeNow().UTC().Format(time.RFC3339)
	if title == "" {
		title = "New conversation"
	}
	if _, err := s.db.Exec(
		`INSERT INTO conversations (id, title, created_at) VALUES (?, ?, ?)`,
		id, title, now,
	); err != nil {
		return nil, fmt.Errorf("store: create conversation: %w", err)
	}
	return &Conversation{ID: id, Title: title, CreatedAt: now}, nil
}

// GetConversation loads one conversation, or nil when it does not exist.
func (s *SQLite) GetConversation(id string) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRow(
		`SELECT c.id, c.title, c.created_at,
		        (SELECT COUNT(*) FROM runs r WHERE r.conversation_id = c.id)
		 FROM conversations c WHERE c.id = ?`, id,
	).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.RunCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get conversation: %w", err)
	}
	return &c, nil
}

// ListConversations returns all conversations with run counts, newest
// first.
func (s *SQLite) ListConversations() ([]Conversation, error) {
	rows, err := s.db.Query(
		`SELECT c.id, c.title, c.created_at,
		        (SELECT COUNT(*) FROM runs r WHERE r.conversation_id = c.id)
		 FROM conversations c ORDER BY c.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list conversations: %w", err)
	}
	defer rows.Close()

	var result []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.RunCount); err != nil {
			return nil, fmt.Errorf("store: scan conversation: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// --- Runs (council.Store contract) ---

// CreateRun persists a fresh run header.
func (s *SQLite) CreateRun(state *council.RunState) error {
	if _, err := s.db.Exec(
		`INSERT INTO runs (id, conversation_id, query, status, next_stage, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		state.ID, state.ConversationID, state.Query,
		string(state.Status), int(state.NextStage), state.CreatedAt, state.UpdatedAt,
	); err != nil {
		return fmt.Errorf("store: create run: %w", err)
	}
	return nil
}

// LoadRun reads a run header plus every stored stage payload.
func (s *SQLite) LoadRun(runID string) (*council.RunState, error) {
	state := &council.RunState{ID: runID}
	var status string
	var next int
	err := s.db.QueryRow(
		`SELECT conversation_id, query, status, next_stage, created_at, updated_at
		 FROM runs WHERE id = ?`, runID,
	).Scan(&state.ConversationID, &state.Query, &status, &next, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: run %q: %w", runID, council.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load run: %w", err)
	}
	state.Status = council.Status(status)
	state.NextStage = council.Stage(next)

	rows, err := s.db.Query(`SELECT stage, payload FROM run_stages WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: load run stages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var stage int
		var payload []byte
		if err := rows.Scan(&stage, &payload); err != nil {
			return nil, fmt.Errorf("store: scan run stage: %w", err)
		}
		if stage >= 0 && stage < council.NumStages {
			state.Payloads[stage] = payload
		}
	}
	return state, rows.Err()
}

// SaveStage writes exactly one stage's payload. Re-running a stage
// overwrites its previous payload.
func (s *SQLite) SaveStage(runID string, stage council.Stage, payload []byte) error {
	now := timeNow().UTC().Format(time.RFC3339)
	if _, err := s.db.Exec(
		`INSERT OR REPLACE INTO run_stages (run_id, stage, payload, completed_at)
		 VALUES (?, ?, ?, ?)`,
		runID, int(stage), payload, now,
	); err != nil {
		return fmt.Errorf("store: save stage %s: %w", stage, err)
	}
	return nil
}

// SetStatus updates a run's lifecycle status and next-stage index.
func (s *SQLite) SetStatus(runID string, status council.Status, nextStage council.Stage) error {
	now := timeNow().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, next_stage = ?, updated_at = ? WHERE id = ?`,
		string(status), int(nextStage), now, runID,
	)
	if err != nil {
		return fmt.Errorf("store: set status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: run %q: %w", runID, council.ErrRunNotFound)
	}
	return nil
}

// ListRuns returns run headers for a conversation, newest first. Stage
// payloads are not loaded.
func (s *SQLite) ListRuns(conversationID string) ([]council.RunState, error) {
	rows, err := s.db.Query(
		`SELECT id, conversation_id, query, status, next_stage, created_at, updated_at
		 FROM runs WHERE conversation_id = ? ORDER BY created_at DESC`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var result []council.RunState
	for rows.Next() {
		var state council.RunState
		var status string
		var next int
		if err := rows.Scan(&state.ID, &state.ConversationID, &state.Query, &status, &next, &state.CreatedAt, &state.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		state.Status = council.Status(status)
		state.NextStage = council.Stage(next)
		result = append(result, state)
	}
	return result, rows.Err()
}
