package session

import (
	"context"

	"github.com/fanout/flychat/internal/fanout"
	"github.com/fanout/flychat/internal/metrics"
	"github.com/fanout/flychat/internal/models"
)

// Replay is what a stream must send before going live, plus the metadata
// needed to attach it to the room's channels.
type Replay struct {
	Room     string
	Cursor   Cursor
	LastID   int64
	Open     bool // send stream-open first
	Reset    bool // cursor lies outside retained history
	Messages []models.Message
}

// Resume reads the room and computes the replay for a stream resuming from
// cur. A failed read replays nothing and never resets.
func (s *Service) Resume(ctx context.Context, room string, cur Cursor) Replay {
	return s.replay(ctx, room, cur, !cur.FromGrip)
}

// Backfill computes the messages a live stream missed after id after. It
// never asks for stream-open.
func (s *Service) Backfill(ctx context.Context, room string, after int64) Replay {
	return s.replay(ctx, room, Cursor{ID: after, Valid: true}, false)
}

func (s *Service) replay(ctx context.Context, room string, cur Cursor, open bool) Replay {
	rl, ok := s.read(ctx, room)

	r := Replay{
		Room:   room,
		Cursor: cur,
		LastID: rl.LastID(),
		Open:   open,
	}

	if cur.Valid && ok {
		first := rl.FirstID()
		switch {
		case first > 0 && cur.ID < first-1:
			r.Reset = true
		case cur.ID > r.LastID:
			// Ahead of the log: the room was reset underneath the client.
			r.Reset = true
		}
	}
	if r.Reset {
		metrics.StreamResets.Inc()
		s.logger.Info().
			Str("room", room).
			Int64("cursor", cur.ID).
			Int64("first_id", rl.FirstID()).
			Int64("last_id", r.LastID).
			Msg("cursor outside retained history")
	}

	for _, m := range rl.Messages {
		if !cur.Valid || r.Reset || m.ID > cur.ID {
			r.Messages = append(r.Messages, m)
		}
	}
	return r
}

// Resuming reports whether the client supplied a usable cursor.
func (r Replay) Resuming() bool {
	return r.Cursor.Valid
}

// Frames renders the replay as stream events: stream-open, stream-reset,
// then the messages oldest first.
func (r Replay) Frames() ([]string, error) {
	frames := make([]string, 0, len(r.Messages)+2)
	if r.Open {
		frames = append(frames, fanout.SignalEvent(fanout.EventStreamOpen))
	}
	if r.Reset {
		frames = append(frames, fanout.SignalEvent(fanout.EventStreamReset))
	}
	for _, m := range r.Messages {
		f, err := fanout.MessageEvent(m)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}
