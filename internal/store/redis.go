package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fanout/flychat/internal/models"
)

// RedisStore keeps each room log as a single JSON document and uses
// WATCH/MULTI/EXEC as the conditional write.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client. The store takes
// ownership and closes it on Close.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Client exposes the underlying client so the pub/sub broker can share it.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() {
	_ = s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// roomLogKey returns the key for a room's log document.
func roomLogKey(room string) string {
	return fmt.Sprintf("room:%s:log", room)
}

// Load reads the room's log document.
func (s *RedisStore) Load(ctx context.Context, room string) (*models.RoomLog, error) {
	data, err := s.client.Get(ctx, roomLogKey(room)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return emptyLog(room), nil
		}
		return nil, err
	}
	return decodeLog(room, data)
}

// CompareAndSwap writes next inside a MULTI block guarded by WATCH on the
// room's key. A concurrent write aborts the transaction.
func (s *RedisStore) CompareAndSwap(ctx context.Context, room string, prevVersion int64, next *models.RoomLog) error {
	key := roomLogKey(room)

	data, err := encodeLog(next)
	if err != nil {
		return err
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if prevVersion != 0 {
				return ErrConflict
			}
		case err != nil:
			return err
		default:
			l, err := decodeLog(room, cur)
			if err != nil {
				return err
			}
			if l.Version != prevVersion {
				return ErrConflict
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}
