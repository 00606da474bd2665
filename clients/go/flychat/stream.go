package flychat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tmaxmax/go-sse"
)

// Stream event names.
const (
	EventMessage     = "message"
	EventStreamOpen  = "stream-open"
	EventStreamReset = "stream-reset"
	EventKeepAlive   = "keep-alive"
)

// Event is one event read from a room stream.
type Event struct {
	Name string
	ID   string
	Data string
}

// Message decodes the payload of a message event.
func (e Event) Message() (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(e.Data), &m); err != nil {
		return Message{}, fmt.Errorf("decode event data: %w", err)
	}
	return m, nil
}

// Stream opens one stream on room, resuming after lastEventID when it is
// positive, and calls fn for each event until the stream ends, ctx is
// cancelled, or fn returns an error.
func (c *Client) Stream(ctx context.Context, room string, lastEventID int64, fn func(Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.messagesURL(room), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastEventID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(lastEventID, 10))
	}

	resp, err := c.StreamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Error{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return readEvents(resp.Body, fn)
}
// readEvents parses an event stream and calls fn for each dispatched event.
func readEvents(r io.Reader, fn func(Event) error) error {
	for e, err := range sse.Read(r, nil) {
		if err != nil {
			return err
		}
		if err := fn(Event{Name: e.Type, ID: e.LastEventID, Data: e.Data}); err != nil {
			return err
		}
	}
	return nil
}

func newFollowBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Follow streams room indefinitely, reconnecting after failures and resuming
// from the last confirmed id seen. A stream-reset discards the cursor, so the
// next connection resumes from the replayed ids. It returns when ctx is
// cancelled or fn returns an error.
func (c *Client) Follow(ctx context.Context, room string, lastEventID int64, fn func(Event) error) error {
	var fnErr error
	b := newFollowBackOff()
	for {
		err := c.Stream(ctx, room, lastEventID, func(ev Event) error {
			switch {
			case ev.Name == EventStreamReset:
				lastEventID = 0
			case ev.Name == EventMessage || ev.Name == "":
				if id, err := strconv.ParseInt(ev.ID, 10, 64); err == nil && id > 0 {
					lastEventID = id
				}
			}
			b.Reset()
			if err := fn(ev); err != nil {
				fnErr = err
				return err
			}
			return nil
		})
		if fnErr != nil {
			return fnErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			// Clean end of stream; reconnect promptly.
			b.Reset()
		}

		t := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
