package flychat

import (
	"slices"
	"sync"
	"time"
)

// DefaultPendingExpiry is how long a provisional message is shown without
// its confirmation or retraction arriving.
const DefaultPendingExpiry = 30 * time.Second

// Timeline reconciles a room stream into an ordered view: confirmed
// messages by id, followed by provisional messages still awaiting
// confirmation. It is safe for concurrent use.
type Timeline struct {
	mu        sync.Mutex
	confirmed []Message
	committed map[string]bool // provisional ids already confirmed
	pending   []pendingMessage
	lastID    int64
	expiry    time.Duration
	now       func() time.Time
}

type pendingMessage struct {
	msg  Message
	seen time.Time
}

// NewTimeline creates an empty timeline. A non-positive expiry uses
// DefaultPendingExpiry.
func NewTimeline(expiry time.Duration) *Timeline {
	if expiry <= 0 {
		expiry = DefaultPendingExpiry
	}
	return &Timeline{
		committed: make(map[string]bool),
		expiry:    expiry,
		now:       time.Now,
	}
}

// Apply folds one stream event into the timeline and reports whether the
// visible view changed.
func (t *Timeline) Apply(ev Event) (bool, error) {
	switch ev.Name {
	case EventStreamReset:
		t.mu.Lock()
		defer t.mu.Unlock()
		t.confirmed = nil
		t.committed = make(map[string]bool)
		t.lastID = 0
		return true, nil
	case EventMessage:
		m, err := ev.Message()
		if err != nil {
			return false, err
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.applyMessage(m), nil
	}
	return false, nil
}

func (t *Timeline) applyMessage(m Message) bool {
	switch {
	case m.Retracted:
		return t.dropPending(m.ProvisionalID)

	case m.ID > 0:
		if m.ID <= t.lastID {
			return false
		}
		t.confirmed = append(t.confirmed, m)
		t.lastID = m.ID
		if m.ProvisionalID != "" {
			t.committed[m.ProvisionalID] = true
			t.dropPending(m.ProvisionalID)
		}
		return true

	default:
		if m.ProvisionalID == "" || t.committed[m.ProvisionalID] {
			return false
		}
		for _, p := range t.pending {
			if p.msg.ProvisionalID == m.ProvisionalID {
				return false
			}
		}
		t.pending = append(t.pending, pendingMessage{msg: m, seen: t.now()})
		return true
	}
}

func (t *Timeline) dropPending(provisionalID string) bool {
	n := len(t.pending)
	t.pending = slices.DeleteFunc(t.pending, func(p pendingMessage) bool {
		return p.msg.ProvisionalID == provisionalID
	})
	return len(t.pending) != n
}

// Expire drops provisional messages older than the expiry and returns them.
func (t *Timeline) Expire() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.expiry)
	var expired []Message
	t.pending = slices.DeleteFunc(t.pending, func(p pendingMessage) bool {
		if p.seen.Before(cutoff) {
			expired = append(expired, p.msg)
			return true
		}
		return false
	})
	return expired
}

// Messages returns confirmed messages in id order followed by pending
// provisional messages in arrival order.
func (t *Timeline) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Message, 0, len(t.confirmed)+len(t.pending))
	out = append(out, t.confirmed...)
	for _, p := range t.pending {
		out = append(out, p.msg)
	}
	return out
}

// LastID returns the newest confirmed id applied.
func (t *Timeline) LastID() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastID
}
