package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fanout/flychat/internal/models"
)

// testConformance runs the behaviour every RoomLogStore must share.
func testConformance(t *testing.T, s RoomLogStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing room is empty", func(t *testing.T) {
		l, err := s.Load(ctx, "never-written")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if l.Version != 0 || len(l.Messages) != 0 {
			t.Fatalf("expected empty log, got version=%d messages=%d", l.Version, len(l.Messages))
		}
		if l.Messages == nil {
			t.Fatal("messages should be an empty slice, not nil")
		}
	})

	t.Run("first write creates record", func(t *testing.T) {
		next := &models.RoomLog{Room: "lobby", Version: 1, Messages: []models.Message{
			{ID: 1, ProvisionalID: "p1", From: "alice", Text: "hi", Date: time.Now().UTC().Truncate(time.Millisecond)},
		}}
		if err := s.CompareAndSwap(ctx, "lobby", 0, next); err != nil {
			t.Fatalf("cas: %v", err)
		}
		l, err := s.Load(ctx, "lobby")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if l.Version != 1 || len(l.Messages) != 1 {
			t.Fatalf("unexpected log: %+v", l)
		}
		got := l.Messages[0]
		if got.ID != 1 || got.From != "alice" || got.Text != "hi" || got.ProvisionalID != "p1" {
			t.Fatalf("unexpected message: %+v", got)
		}
		if !got.Date.Equal(next.Messages[0].Date) {
			t.Fatalf("date mismatch: got %v want %v", got.Date, next.Messages[0].Date)
		}
	})

	t.Run("second create loses", func(t *testing.T) {
		next := &models.RoomLog{Room: "lobby", Version: 1}
		if err := s.CompareAndSwap(ctx, "lobby", 0, next); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("stale version loses", func(t *testing.T) {
		next := &models.RoomLog{Room: "lobby", Version: 3, Messages: []models.Message{{ID: 3, From: "bob", Text: "late"}}}
		if err := s.CompareAndSwap(ctx, "lobby", 2, next); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("update with current version", func(t *testing.T) {
		next := &models.RoomLog{Room: "lobby", Version: 2, Messages: []models.Message{
			{ID: 1, From: "alice", Text: "hi"},
			{ID: 2, From: "bob", Text: "hey"},
		}}
		if err := s.CompareAndSwap(ctx, "lobby", 1, next); err != nil {
			t.Fatalf("cas: %v", err)
		}
		l, err := s.Load(ctx, "lobby")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if l.Version != 2 || l.LastID() != 2 {
			t.Fatalf("unexpected log: %+v", l)
		}
	})

	t.Run("update of missing room loses", func(t *testing.T) {
		next := &models.RoomLog{Room: "ghost", Version: 5}
		if err := s.CompareAndSwap(ctx, "ghost", 4, next); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("rooms are independent", func(t *testing.T) {
		next := &models.RoomLog{Room: "other", Version: 1, Messages: []models.Message{{ID: 1, From: "carol", Text: "yo"}}}
		if err := s.CompareAndSwap(ctx, "other", 0, next); err != nil {
			t.Fatalf("cas: %v", err)
		}
		l, err := s.Load(ctx, "lobby")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if l.Version != 2 {
			t.Fatalf("lobby version changed: %d", l.Version)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	testConformance(t, NewMemoryStore())
}

func TestMemoryStoreLoadReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	next := &models.RoomLog{Version: 1, Messages: []models.Message{{ID: 1, From: "a", Text: "b"}}}
	if err := s.CompareAndSwap(ctx, "r", 0, next); err != nil {
		t.Fatalf("cas: %v", err)
	}
	next.Messages[0].Text = "mutated"

	l, _ := s.Load(ctx, "r")
	l.Messages[0].From = "changed"

	again, _ := s.Load(ctx, "r")
	if again.Messages[0].Text != "b" || again.Messages[0].From != "a" {
		t.Fatalf("store shares memory with callers: %+v", again.Messages[0])
	}
}

func TestDecodeLogMalformed(t *testing.T) {
	if _, err := decodeLog("r", []byte("{not json")); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@h/db":   "pgx5://u:p@h/db",
		"postgresql://u:p@h/db": "pgx5://u:p@h/db",
		"pgx5://u:p@h/db":       "pgx5://u:p@h/db",
	}
	for in, want := range tests {
		if got := migrateURL(in); got != want {
			t.Fatalf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}
