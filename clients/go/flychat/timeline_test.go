package flychat

import (
	"encoding/json"
	"testing"
	"time"
)

func messageEvent(t *testing.T, m Message) Event {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return Event{Name: EventMessage, Data: string(data)}
}

func apply(t *testing.T, tl *Timeline, ev Event) bool {
	t.Helper()
	changed, err := tl.Apply(ev)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return changed
}

func texts(ms []Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Text
	}
	return out
}

func TestTimelineConfirmReplacesProvisional(t *testing.T) {
	tl := NewTimeline(0)

	apply(t, tl, messageEvent(t, Message{ProvisionalID: "p1", From: "a", Text: "hi"}))
	if got := tl.Messages(); len(got) != 1 || got[0].ID != 0 {
		t.Fatalf("messages = %+v", got)
	}

	apply(t, tl, messageEvent(t, Message{ID: 1, ProvisionalID: "p1", From: "a", Text: "hi"}))
	got := tl.Messages()
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("messages = %+v", got)
	}
	if tl.LastID() != 1 {
		t.Errorf("LastID = %d", tl.LastID())
	}
}

func TestTimelineLateProvisionalIgnored(t *testing.T) {
	tl := NewTimeline(0)
	apply(t, tl, messageEvent(t, Message{ID: 1, ProvisionalID: "p1", Text: "hi"}))
	if apply(t, tl, messageEvent(t, Message{ProvisionalID: "p1", Text: "hi"})) {
		t.Error("provisional after its confirmation changed the view")
	}
	if len(tl.Messages()) != 1 {
		t.Fatalf("messages = %+v", tl.Messages())
	}
}

func TestTimelineDuplicatesIgnored(t *testing.T) {
	tl := NewTimeline(0)
	ev := messageEvent(t, Message{ID: 3, Text: "x"})
	apply(t, tl, ev)
	if apply(t, tl, ev) {
		t.Error("duplicate confirmed message changed the view")
	}
	if apply(t, tl, messageEvent(t, Message{ID: 2, Text: "older"})) {
		t.Error("older confirmed message changed the view")
	}
	p := messageEvent(t, Message{ProvisionalID: "p", Text: "y"})
	apply(t, tl, p)
	if apply(t, tl, p) {
		t.Error("duplicate provisional changed the view")
	}
	if got := texts(tl.Messages()); len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Fatalf("messages = %v", got)
	}
}

func TestTimelineRetraction(t *testing.T) {
	tl := NewTimeline(0)
	apply(t, tl, messageEvent(t, Message{ProvisionalID: "p1", Text: "doomed"}))
	apply(t, tl, messageEvent(t, Message{ProvisionalID: "p2", Text: "kept"}))

	if !apply(t, tl, messageEvent(t, Message{ProvisionalID: "p1", Retracted: true})) {
		t.Error("retraction did not change the view")
	}
	if got := texts(tl.Messages()); len(got) != 1 || got[0] != "kept" {
		t.Fatalf("messages = %v", got)
	}
}

func TestTimelineReset(t *testing.T) {
	tl := NewTimeline(0)
	apply(t, tl, messageEvent(t, Message{ID: 9, Text: "old"}))
	apply(t, tl, Event{Name: EventStreamReset})
	if len(tl.Messages()) != 0 || tl.LastID() != 0 {
		t.Fatalf("reset left %+v", tl.Messages())
	}
	apply(t, tl, messageEvent(t, Message{ID: 4, Text: "replayed"}))
	if tl.LastID() != 4 {
		t.Errorf("LastID = %d", tl.LastID())
	}
}

func TestTimelineExpire(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tl := NewTimeline(10 * time.Second)
	tl.now = func() time.Time { return now }

	apply(t, tl, messageEvent(t, Message{ProvisionalID: "old", Text: "lost"}))
	now = now.Add(6 * time.Second)
	apply(t, tl, messageEvent(t, Message{ProvisionalID: "new", Text: "fresh"}))
	now = now.Add(5 * time.Second)

	expired := tl.Expire()
	if len(expired) != 1 || expired[0].ProvisionalID != "old" {
		t.Fatalf("expired = %+v", expired)
	}
	if got := texts(tl.Messages()); len(got) != 1 || got[0] != "fresh" {
		t.Fatalf("messages = %v", got)
	}
}

func TestTimelineIgnoresControlEvents(t *testing.T) {
	tl := NewTimeline(0)
	for _, name := range []string{EventStreamOpen, EventKeepAlive} {
		if apply(t, tl, Event{Name: name}) {
			t.Errorf("%s changed the view", name)
		}
	}
	if _, err := tl.Apply(Event{Name: EventMessage, Data: "{"}); err == nil {
		t.Error("expected decode error")
	}
}
