package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/fanout/flychat/internal/fanout"
	"github.com/fanout/flychat/internal/session"
	"github.com/fanout/flychat/internal/store"
)

// Room name validation: alphanumeric, hyphens, underscores, 1-50 chars
var roomNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// Options holds the dependencies of a Handler.
type Options struct {
	Session *session.Service
	Store   store.RoomLogStore

	// Broker, when set, makes the server hold streams itself and relay
	// broker items. Without it streams are handed to a GRIP proxy.
	Broker fanout.Broker

	// KeepAlive is the idle interval between keep-alive events on directly
	// held streams. Zero uses fanout.KeepAliveInterval.
	KeepAlive time.Duration

	// Region and Instance identify this process in health responses.
	Region   string
	Instance string

	Logger zerolog.Logger
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	session   *session.Service
	store     store.RoomLogStore
	broker    fanout.Broker
	keepAlive time.Duration
	region    string
	instance  string
	logger    zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(opts Options) *Handler {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = fanout.KeepAliveInterval
	}
	return &Handler{
		session:   opts.Session,
		store:     opts.Store,
		broker:    opts.Broker,
		keepAlive: opts.KeepAlive,
		region:    opts.Region,
		instance:  opts.Instance,
		logger:    opts.Logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a plain text response carrying the status text.
func (h *Handler) Error(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	w.Write([]byte(http.StatusText(status) + "\n"))
}

// NotFound handles unknown routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.Error(w, http.StatusNotFound)
}

// MethodNotAllowed handles known routes requested with the wrong method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.Error(w, http.StatusMethodNotAllowed)
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if r := []rune(name); len(r) > 100 {
		name = string(r[:100])
	}

	return name
}
