package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fanout/flychat/internal/fanout"
	"github.com/fanout/flychat/internal/metrics"
	"github.com/fanout/flychat/internal/session"
)

// streamWriter writes events to a held response and flushes after each.
type streamWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// send writes frames and flushes. With no frames it only flushes, which
// commits the response headers.
func (s *streamWriter) send(frames ...string) error {
	if len(frames) > 0 {
		if _, err := s.w.Write([]byte(strings.Join(frames, ""))); err != nil {
			return err
		}
	}
	return s.rc.Flush()
}

// holdDirect keeps the stream open in this process. It subscribes before
// reading the room so nothing committed after the read is missed, then
// relays live items, dropping confirmed ids already sent and backfilling
// from the room log when a prev-id shows a gap.
func (h *Handler) holdDirect(w http.ResponseWriter, r *http.Request, room string, cur session.Cursor) {
	ctx := r.Context()
	confirmed := fanout.ConfirmedChannel(room)
	log := h.logger.With().Str("room", room).Logger()

	sub, err := h.broker.Subscribe(ctx, confirmed, fanout.ProvisionalChannel(room))
	if err != nil {
		log.Error().Err(err).Msg("subscribe failed")
		h.Error(w, http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	replay := h.session.Resume(ctx, room, cur)
	frames, err := replay.Frames()
	if err != nil {
		log.Error().Err(err).Msg("render replay")
		h.Error(w, http.StatusInternalServerError)
		return
	}

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	setStreamHeaders(w)
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sw := &streamWriter{w: w, rc: http.NewResponseController(w)}
	if err := sw.send(frames...); err != nil {
		return
	}

	lastSent := replay.LastID
	if cur.Valid && !replay.Reset && cur.ID > lastSent {
		lastSent = cur.ID
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sw.send(fanout.SignalEvent(fanout.EventKeepAlive)); err != nil {
				return
			}
		case it, ok := <-sub.Items():
			if !ok {
				log.Debug().Msg("subscription closed")
				return
			}
			var out []string
			if it.Channel == confirmed {
				out, lastSent = h.relayConfirmed(ctx, room, it, lastSent)
			} else {
				out = []string{it.Content}
			}
			if err := sw.send(out...); err != nil {
				return
			}
		}
	}
}

// relayConfirmed returns the frames to send for a confirmed item and the new
// last sent id.
func (h *Handler) relayConfirmed(ctx context.Context, room string, it fanout.Item, lastSent int64) ([]string, int64) {
	id, ok := fanout.ParseEventID(it.ID)
	if !ok {
		return []string{it.Content}, lastSent
	}
	if id <= lastSent {
		return nil, lastSent
	}

	var out []string
	if prev, ok := fanout.ParseEventID(it.PrevID); ok && prev > lastSent {
		missed := h.session.Backfill(ctx, room, lastSent)
		if missed.Reset {
			out = append(out, fanout.SignalEvent(fanout.EventStreamReset))
		}
		for _, m := range missed.Messages {
			if m.ID >= id {
				break
			}
			frame, err := fanout.MessageEvent(m)
			if err != nil {
				h.logger.Warn().Err(err).Str("room", room).Int64("id", m.ID).Msg("render backfill")
				continue
			}
			out = append(out, frame)
		}
	}
	return append(out, it.Content), id
}
