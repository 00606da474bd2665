package roomlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fanout/flychat/internal/metrics"
	"github.com/fanout/flychat/internal/models"
	"github.com/fanout/flychat/internal/store"
)

// DefaultRetention is the number of messages kept per room.
const DefaultRetention = 50

// ErrConflict is returned by Append when every allowed attempt lost the
// conditional write to a concurrent writer.
var ErrConflict = errors.New("room log append contention")

// BuildFunc produces the candidate message from the state observed at the
// start of an attempt. It may run several times for one Append and must not
// modify messages. The ID it sets is ignored.
type BuildFunc func(version int64, messages []models.Message) models.Message

// Options configures a Log.
type Options struct {
	Retention int
	Retry     RetryPolicy
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Log is the per-room sequencer over a RoomLogStore.
type Log struct {
	store     store.RoomLogStore
	retention int
	retry     RetryPolicy
	logger    zerolog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates a Log. A zero Retention uses DefaultRetention.
func New(s store.RoomLogStore, opts Options) *Log {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Log{
		store:     s,
		retention: opts.Retention,
		retry:     opts.Retry,
		logger:    opts.Logger,
		now:       opts.Now,
		sleep:     sleepContext,
	}
}

// Retention returns the number of messages kept per room.
func (l *Log) Retention() int {
	return l.retention
}

// Read returns the room's current version and retained messages.
func (l *Log) Read(ctx context.Context, room string) (*models.RoomLog, error) {
	rl, err := l.load(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("read room log %q: %w", room, err)
	}
	return rl, nil
}

// Append commits a new message to the room and returns it with its
// assigned ID and date.
func (l *Log) Append(ctx context.Context, room string, build BuildFunc) (models.Message, error) {
	for attempt := 1; ; attempt++ {
		cur, err := l.load(ctx, room)
		if err != nil {
			return models.Message{}, fmt.Errorf("read room log %q: %w", room, err)
		}

		msg := build(cur.Version, cur.Messages)
		msg.ID = cur.Version + 1
		msg.Retracted = false
		if msg.Date.IsZero() {
			msg.Date = l.now().UTC().Truncate(time.Millisecond)
		}

		next := &models.RoomLog{
			Room:     room,
			Version:  msg.ID,
			Messages: appendWindow(cur.Messages, msg, l.retention),
		}

		err = l.compareAndSwap(ctx, room, cur.Version, next)
		if err == nil {
			metrics.AppendAttempts.Observe(float64(attempt))
			return msg, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return models.Message{}, fmt.Errorf("write room log %q: %w", room, err)
		}

		metrics.AppendConflicts.Inc()
		l.logger.Debug().
			Str("room", room).
			Int64("version", cur.Version).
			Int("attempt", attempt).
			Msg("room log write lost race")

		if l.retry.MaxAttempts > 0 && attempt >= l.retry.MaxAttempts {
			metrics.AppendAttempts.Observe(float64(attempt))
			return models.Message{}, fmt.Errorf("%w: room %q after %d attempts", ErrConflict, room, attempt)
		}
		if d := l.retry.backoff(attempt); d > 0 {
			if err := l.sleep(ctx, d); err != nil {
				return models.Message{}, err
			}
		}
	}
}

// appendWindow returns a new slice holding the newest retention entries of
// messages followed by msg.
func appendWindow(messages []models.Message, msg models.Message, retention int) []models.Message {
	window := make([]models.Message, 0, min(len(messages)+1, retention))
	if drop := len(messages) + 1 - retention; drop > 0 {
		messages = messages[drop:]
	}
	window = append(window, messages...)
	return append(window, msg)
}

func (l *Log) load(ctx context.Context, room string) (*models.RoomLog, error) {
	start := time.Now()
	defer func() {
		metrics.StoreLatency.WithLabelValues("load").Observe(time.Since(start).Seconds())
	}()
	return l.store.Load(ctx, room)
}

func (l *Log) compareAndSwap(ctx context.Context, room string, prev int64, next *models.RoomLog) error {
	start := time.Now()
	defer func() {
		metrics.StoreLatency.WithLabelValues("cas").Observe(time.Since(start).Seconds())
	}()
	return l.store.CompareAndSwap(ctx, room, prev, next)
}
