// Package audit keeps a local SQLite log of applied reconciliation chunks.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Outcome of one chunk submission.
const (
	OutcomeApplied = "applied"
	OutcomeFailed  = "failed"
)

// Entry is one chunk submission of a sync batch.
type Entry struct {
	ID         string
	BatchID    string
	ChunkIndex int
	UIDs       []string
	Outcome    string
	Applied    int
	Attempts   int
	Error      string
	CreatedAt  time.Time
}

// Store is the SQLite-backed audit log.
type Store struct {
	db    *sql.DB
	nowFn func() time.Time
}

// Open opens (creating if needed) the audit database at path. ":memory:" is
// accepted for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, nowFn: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sync_chunks (
			id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			uids TEXT NOT NULL,
			outcome TEXT NOT NULL,
			applied INTEGER NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sync_chunks_batch ON sync_chunks(batch_id);
		CREATE INDEX IF NOT EXISTS idx_sync_chunks_created ON sync_chunks(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database handle is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Record appends an entry. ID and CreatedAt are filled when empty.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.nowFn().UTC()
	}
	uids, err := json.Marshal(e.UIDs)
	if err != nil {
		return fmt.Errorf("encode uids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_chunks (id, batch_id, chunk_index, uids, outcome, applied, attempts, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.BatchID, e.ChunkIndex, string(uids), e.Outcome, e.Applied, e.Attempts, e.Error, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns entries newest first. An empty batchID lists every batch.
func (s *Store) List(ctx context.Context, batchID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, batch_id, chunk_index, uids, outcome, applied, attempts, error, created_at
		FROM sync_chunks`
	args := []any{}
	if batchID != "" {
		query += ` WHERE batch_id = ?`
		args = append(args, batchID)
	}
	query += ` ORDER BY created_at DESC, chunk_index DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			uids    string
			errText sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.BatchID, &e.ChunkIndex, &uids, &e.Outcome, &e.Applied, &e.Attempts, &errText, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal([]byte(uids), &e.UIDs); err != nil {
			return nil, fmt.Errorf("decode uids: %w", err)
		}
		e.Error = errText.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
