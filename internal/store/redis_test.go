package store

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fanout/flychat/internal/models"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}
	t.Cleanup(s.Close)
	return s, mr
}

func TestRedisStore(t *testing.T) {
	s, _ := newTestRedisStore(t)
	testConformance(t, s)
}

func TestRedisStoreMalformedRecord(t *testing.T) {
	s, mr := newTestRedisStore(t)
	if err := mr.Set(roomLogKey("bad"), "garbage"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.Load(context.Background(), "bad"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestRedisStoreWatchAbort(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()
	key := roomLogKey("race")

	// A write that lands between WATCH and EXEC must abort the transaction.
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		if err := s.CompareAndSwap(ctx, "race", 0, &models.RoomLog{Version: 1}); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, `{"version":1,"messages":[]}`, 0)
			return nil
		})
		return err
	}, key)
	if !errors.Is(err, redis.TxFailedErr) {
		t.Fatalf("expected aborted transaction, got %v", err)
	}
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	s, err := NewRedisStore(context.Background(), "redis://"+addr)
	if err == nil {
		s.Close()
		t.Fatal("expected ping error for a stopped server")
	}
	if s != nil {
		t.Fatalf("store = %v, want nil", s)
	}
}
