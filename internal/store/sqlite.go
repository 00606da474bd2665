package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fanout/flychat/internal/models"
)

// SQLiteStore keeps room logs in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/flychat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/flychat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS room_logs (
		room TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		messages TEXT NOT NULL DEFAULT '[]',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Load retrieves a room's log.
func (s *SQLiteStore) Load(ctx context.Context, room string) (*models.RoomLog, error) {
	var (
		version  int64
		messages string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT version, messages FROM room_logs WHERE room = ?
	`, room).Scan(&version, &messages)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return emptyLog(room), nil
		}
		return nil, err
	}

	decoded, err := decodeMessages([]byte(messages))
	if err != nil {
		return nil, err
	}
	return &models.RoomLog{Room: room, Version: version, Messages: decoded}, nil
}

// CompareAndSwap writes next if the stored version equals prevVersion.
func (s *SQLiteStore) CompareAndSwap(ctx context.Context, room string, prevVersion int64, next *models.RoomLog) error {
	messages, err := json.Marshal(next.Messages)
	if err != nil {
		return err
	}

	var res sql.Result
	if prevVersion == 0 {
		res, err = s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO room_logs (room, version, messages)
			VALUES (?, ?, ?)
		`, room, next.Version, string(messages))
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE room_logs
			SET version = ?, messages = ?, updated_at = CURRENT_TIMESTAMP
			WHERE room = ? AND version = ?
		`, next.Version, string(messages), room, prevVersion)
	}
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}
