// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists gateway checkpoints and dispatch records with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so that TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database is per connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS gateway_checkpoints (
			bot_key       TEXT PRIMARY KEY,
			last_sequence INTEGER NOT NULL DEFAULT 0,
			session_id    TEXT NOT NULL DEFAULT '',
			gateway_url   TEXT NOT NULL DEFAULT '',
			updated_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS dispatch_log (
			id         TEXT PRIMARY KEY,
			bot        TEXT NOT NULL,
			platform   TEXT NOT NULL,
			message_id TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			handler    TEXT,
			replied    INTEGER NOT NULL DEFAULT 0,
			error      TEXT,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_dispatch_bot_created
			ON dispatch_log(bot, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// SaveCheckpoint inserts or replaces the checkpoint for cp.Key.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}

	query := `
		INSERT INTO gateway_checkpoints (bot_key, last_sequence, session_id, gateway_url, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(bot_key) DO UPDATE SET
			last_sequence = excluded.last_sequence,
			session_id = excluded.session_id,
			gateway_url = excluded.gateway_url,
			updated_at = excluded.updated_at
	`

	// SQLite integers are signed. The sequence is stored as the int64 with the
	// same bits and converted back in GetCheckpoint, so the full uint64 range
	// round-trips.
	_, err := s.db.ExecContext(ctx, query,
		cp.Key,
		int64(cp.LastSequence),
		cp.SessionID,
		cp.GatewayURL,
		cp.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves the checkpoint for key.
// Returns ErrNotFound if none was saved.
func (s *SQLiteStore) GetCheckpoint(ctx context.Context, key string) (*Checkpoint, error) {
	query := `
		SELECT bot_key, last_sequence, session_id, gateway_url, updated_at
		FROM gateway_checkpoints
		WHERE bot_key = ?
	`

	var (
		cp        Checkpoint
		seq       int64
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&cp.Key, &seq, &cp.SessionID, &cp.GatewayURL, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying checkpoint: %w", err)
	}

	cp.LastSequence = uint64(seq)
	cp.UpdatedAt, err = time.Parse(timeLayout, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &cp, nil
}

// DeleteCheckpoint removes the checkpoint for key. Deleting a missing key is not an error.
func (s *SQLiteStore) DeleteCheckpoint(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM gateway_checkpoints WHERE bot_key = ?`, key); err != nil {
		return fmt.Errorf("deleting checkpoint: %w", err)
	}
	return nil
}

// RecordDispatch appends a dispatch record.
func (s *SQLiteStore) RecordDispatch(ctx context.Context, rec *DispatchRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO dispatch_log (id, bot, platform, message_id, user_id, channel_id, handler, replied, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Bot,
		rec.Platform,
		rec.MessageID,
		rec.UserID,
		rec.ChannelID,
		nullString(rec.Handler),
		boolToInt(rec.Replied),
		nullString(rec.Error),
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("recording dispatch: %w", err)
	}
	return nil
}

// ListDispatches returns the most recent records for bot, newest first.
func (s *SQLiteStore) ListDispatches(ctx context.Context, bot string, limit int) ([]*DispatchRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, bot, platform, message_id, user_id, channel_id, handler, replied, error, created_at
		FROM dispatch_log
		WHERE bot = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, bot, limit)
	if err != nil {
		return nil, fmt.Errorf("querying dispatches: %w", err)
	}
	defer rows.Close()

	var records []*DispatchRecord
	for rows.Next() {
		var (
			rec       DispatchRecord
			handler   sql.NullString
			replied   int
			errText   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.Bot, &rec.Platform, &rec.MessageID, &rec.UserID,
			&rec.ChannelID, &handler, &replied, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning dispatch: %w", err)
		}
		rec.Handler = handler.String
		rec.Replied = replied != 0
		rec.Error = errText.String
		rec.CreatedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dispatches: %w", err)
	}
	return records, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
