package session

import "github.com/fanout/flychat/internal/fanout"

// Cursor is the id of the last confirmed message a client has seen.
type Cursor struct {
	ID    int64
	Valid bool
	// FromGrip is set when the proxy supplied the cursor while recovering a
	// held stream. Such streams are not sent stream-open.
	FromGrip bool
}

// CursorSources are the places a client or proxy can carry a cursor.
type CursorSources struct {
	GripLast    []string // Grip-Last header values
	LastEventID string   // Last-Event-ID header
	Query       string   // lastEventId query parameter
}

// Present reports whether any source carries a value. A present but
// unparseable source still selects streaming.
func (src CursorSources) Present() bool {
	return len(src.GripLast) > 0 || src.LastEventID != "" || src.Query != ""
}

// ResolveCursor picks the first present source, in the order Grip-Last,
// Last-Event-ID, query. If that source does not parse, there is no cursor.
func ResolveCursor(room string, src CursorSources) Cursor {
	if v, ok := fanout.ParseGripLast(src.GripLast, fanout.ConfirmedChannel(room)); ok {
		return parseCursor(v, true)
	}
	if src.LastEventID != "" {
		return parseCursor(src.LastEventID, false)
	}
	if src.Query != "" {
		return parseCursor(src.Query, false)
	}
	return Cursor{}
}

func parseCursor(v string, fromGrip bool) Cursor {
	id, ok := fanout.ParseEventID(v)
	if !ok {
		return Cursor{FromGrip: fromGrip}
	}
	return Cursor{ID: id, Valid: true, FromGrip: fromGrip}
}
