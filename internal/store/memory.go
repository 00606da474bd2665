package store

import (
	"context"
	"sync"

	"github.com/fanout/flychat/internal/models"
)

// MemoryStore keeps room logs in process memory. Used in development and
// tests; nothing survives a restart.
type MemoryStore struct {
	mu   sync.Mutex
	logs map[string]models.RoomLog
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logs: make(map[string]models.RoomLog)}
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Load returns a copy of the room's record.
func (s *MemoryStore) Load(ctx context.Context, room string) (*models.RoomLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.logs[room]
	if !ok {
		return emptyLog(room), nil
	}
	return copyLog(l), nil
}

// CompareAndSwap stores next if the current version equals prevVersion.
func (s *MemoryStore) CompareAndSwap(ctx context.Context, room string, prevVersion int64, next *models.RoomLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.logs[room]
	switch {
	case !ok && prevVersion != 0:
		return ErrConflict
	case ok && cur.Version != prevVersion:
		return ErrConflict
	}

	stored := copyLog(*next)
	stored.Room = room
	s.logs[room] = *stored
	return nil
}

func copyLog(l models.RoomLog) *models.RoomLog {
	messages := make([]models.Message, len(l.Messages))
	copy(messages, l.Messages)
	return &models.RoomLog{Room: l.Room, Version: l.Version, Messages: messages}
}
