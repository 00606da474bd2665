package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fanout/flychat/internal/fanout"
	"github.com/fanout/flychat/internal/session"
)

// roomParam returns the validated room name from the URL, or "" if invalid.
func roomParam(r *http.Request) string {
	room := chi.URLParam(r, "room")
	if !roomNameRegex.MatchString(room) {
		return ""
	}
	return room
}

// PostMessage handles a form-encoded post of fields from and text.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	room := roomParam(r)
	if room == "" {
		h.Error(w, http.StatusBadRequest)
		return
	}

	from := sanitizeName(r.PostFormValue("from"))
	text := r.PostFormValue("text")

	msg, err := h.session.Post(r.Context(), room, from, text)
	if err != nil {
		if errors.Is(err, session.ErrBadRequest) {
			h.Error(w, http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Str("room", room).Msg("post failed")
		h.Error(w, http.StatusInternalServerError)
		return
	}

	h.JSON(w, http.StatusOK, msg)
}

// GetMessages serves a JSON snapshot, or a stream when the client asks for
// one or presents a resume marker.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	room := roomParam(r)
	if room == "" {
		h.Error(w, http.StatusBadRequest)
		return
	}

	src := session.CursorSources{
		GripLast:    r.Header.Values(fanout.HeaderGripLast),
		LastEventID: r.Header.Get("Last-Event-ID"),
		Query:       r.URL.Query().Get("lastEventId"),
	}

	if !wantsStream(r) && !src.Present() {
		h.JSON(w, http.StatusOK, h.session.Snapshot(r.Context(), room))
		return
	}

	cur := session.ResolveCursor(room, src)
	if h.broker == nil {
		h.holdGrip(w, r, room, cur)
		return
	}
	h.holdDirect(w, r, room, cur)
}

func wantsStream(r *http.Request) bool {
	for _, v := range r.Header.Values("Accept") {
		if strings.Contains(v, "text/event-stream") {
			return true
		}
	}
	return false
}

func setStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
}

// holdGrip answers with the replay and instructions for the GRIP proxy to
// keep the stream open on the room's channels.
func (h *Handler) holdGrip(w http.ResponseWriter, r *http.Request, room string, cur session.Cursor) {
	replay := h.session.Resume(r.Context(), room, cur)
	frames, err := replay.Frames()
	if err != nil {
		h.logger.Error().Err(err).Str("room", room).Msg("render replay")
		h.Error(w, http.StatusInternalServerError)
		return
	}

	setStreamHeaders(w)
	w.Header().Set(fanout.HeaderGripHold, "stream")
	w.Header().Set(fanout.HeaderGripChannel, fanout.GripChannelHeader(room, replay.LastID))
	w.Header().Set(fanout.HeaderGripKeepAlive, fanout.GripKeepAliveHeader())
	if replay.Resuming() {
		w.Header().Set(fanout.HeaderGripLink, fanout.GripLinkHeader(r.URL.Path, replay.LastID))
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(strings.Join(frames, "")))
}
