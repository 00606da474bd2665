package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fanout/flychat/internal/models"
)

// PostgresStore keeps room logs in the room_logs table. The conditional
// write is an UPDATE guarded by the previous version, or an INSERT that
// loses to an existing row for the first write.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Load retrieves a room's log.
func (s *PostgresStore) Load(ctx context.Context, room string) (*models.RoomLog, error) {
	var (
		version  int64
		messages []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT version, messages FROM room_logs WHERE room = $1
	`, room).Scan(&version, &messages)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return emptyLog(room), nil
		}
		return nil, err
	}

	decoded, err := decodeMessages(messages)
	if err != nil {
		return nil, err
	}
	return &models.RoomLog{Room: room, Version: version, Messages: decoded}, nil
}

// CompareAndSwap writes next if the stored version equals prevVersion.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, room string, prevVersion int64, next *models.RoomLog) error {
	messages, err := json.Marshal(next.Messages)
	if err != nil {
		return err
	}

	var affected int64
	if prevVersion == 0 {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO room_logs (room, version, messages)
			VALUES ($1, $2, $3)
			ON CONFLICT (room) DO NOTHING
		`, room, next.Version, messages)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
	} else {
		tag, err := s.pool.Exec(ctx, `
			UPDATE room_logs
			SET version = $2, messages = $3, updated_at = NOW()
			WHERE room = $1 AND version = $4
		`, room, next.Version, messages, prevVersion)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
	}

	if affected == 0 {
		return ErrConflict
	}
	return nil
}
