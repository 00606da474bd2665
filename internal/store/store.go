package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fanout/flychat/internal/models"
)

var (
	// ErrConflict is returned by CompareAndSwap when another writer advanced
	// the room's version first.
	ErrConflict = errors.New("room log version conflict")
	// ErrMalformed is returned when a stored record cannot be decoded.
	ErrMalformed = errors.New("malformed room log record")
)

// RoomLogStore is a document store holding one RoomLog per room with a
// conditional write on the record's version.
//
// MemoryStore, RedisStore, PostgresStore, SQLiteStore and PebbleStore
// implement this interface.
type RoomLogStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Load returns the room's current record. A room that was never written
	// yields version 0 and no messages.
	Load(ctx context.Context, room string) (*models.RoomLog, error)

	// CompareAndSwap replaces the room's record with next only if the stored
	// version still equals prevVersion. prevVersion 0 means the record must
	// not exist yet. Returns ErrConflict when the precondition fails.
	CompareAndSwap(ctx context.Context, room string, prevVersion int64, next *models.RoomLog) error
}

// emptyLog returns the record of a room that was never written.
func emptyLog(room string) *models.RoomLog {
	return &models.RoomLog{Room: room, Version: 0, Messages: []models.Message{}}
}

// encodeLog serializes a record for document-style backends.
func encodeLog(l *models.RoomLog) ([]byte, error) {
	return json.Marshal(l)
}

// decodeLog parses a record written by encodeLog.
func decodeLog(room string, data []byte) (*models.RoomLog, error) {
	var l models.RoomLog
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	l.Room = room
	if l.Messages == nil {
		l.Messages = []models.Message{}
	}
	return &l, nil
}

// decodeMessages parses the messages column of relational backends.
func decodeMessages(data []byte) ([]models.Message, error) {
	messages := []models.Message{}
	if len(data) == 0 {
		return messages, nil
	}
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return messages, nil
}
