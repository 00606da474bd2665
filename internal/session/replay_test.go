package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fanout/flychat/internal/store"
)

// seed posts n messages to room and returns the service.
func seed(t *testing.T, room string, n int) *Service {
	t.Helper()
	svc, _ := newTestService(t, store.NewMemoryStore())
	for i := 1; i <= n; i++ {
		if _, err := svc.Post(context.Background(), room, "alice", fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}
	return svc
}

func ids(r Replay) []int64 {
	out := make([]int64, len(r.Messages))
	for i, m := range r.Messages {
		out[i] = m.ID
	}
	return out
}

func TestResume(t *testing.T) {
	// 60 posts leave ids 11..60 retained.
	svc := seed(t, "lobby", 60)

	tests := []struct {
		name      string
		cursor    Cursor
		wantOpen  bool
		wantReset bool
		wantFirst int64
		wantCount int
	}{
		{"no cursor", Cursor{}, true, false, 11, 50},
		{"newest", Cursor{ID: 60, Valid: true}, true, false, 0, 0},
		{"mid window", Cursor{ID: 55, Valid: true}, true, false, 56, 5},
		{"just before window", Cursor{ID: 10, Valid: true}, true, false, 11, 50},
		{"stale", Cursor{ID: 9, Valid: true}, true, true, 11, 50},
		{"ahead", Cursor{ID: 99, Valid: true}, true, true, 11, 50},
		{"grip marker", Cursor{ID: 58, Valid: true, FromGrip: true}, false, false, 59, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := svc.Resume(context.Background(), "lobby", tt.cursor)
			if r.Open != tt.wantOpen {
				t.Errorf("Open = %v, want %v", r.Open, tt.wantOpen)
			}
			if r.Reset != tt.wantReset {
				t.Errorf("Reset = %v, want %v", r.Reset, tt.wantReset)
			}
			if r.LastID != 60 {
				t.Errorf("LastID = %d, want 60", r.LastID)
			}
			got := ids(r)
			if len(got) != tt.wantCount {
				t.Fatalf("replayed %d messages, want %d", len(got), tt.wantCount)
			}
			if tt.wantCount > 0 && got[0] != tt.wantFirst {
				t.Errorf("first replayed id = %d, want %d", got[0], tt.wantFirst)
			}
			for i := 1; i < len(got); i++ {
				if got[i] != got[i-1]+1 {
					t.Fatalf("replay not ascending and gapless: %v", got)
				}
			}
		})
	}
}

func TestResumeFramesOrder(t *testing.T) {
	svc := seed(t, "lobby", 60)
	r := svc.Resume(context.Background(), "lobby", Cursor{ID: 1, Valid: true})

	frames, err := r.Frames()
	if err != nil {
		t.Fatalf("Frames: %v", err)
	}
	if len(frames) != 52 {
		t.Fatalf("frames = %d, want 52", len(frames))
	}
	if frames[0] != "event: stream-open\ndata: \n\n" {
		t.Errorf("frames[0] = %q", frames[0])
	}
	if frames[1] != "event: stream-reset\ndata: \n\n" {
		t.Errorf("frames[1] = %q", frames[1])
	}
}

func TestResumeEmptyRoom(t *testing.T) {
	svc := seed(t, "lobby", 0)
	r := svc.Resume(context.Background(), "lobby", Cursor{ID: 0, Valid: true})
	if r.Reset || len(r.Messages) != 0 || r.LastID != 0 || !r.Open {
		t.Fatalf("replay = %+v", r)
	}
}

func TestResumeReadFailure(t *testing.T) {
	svc, _ := newTestService(t, &failingStore{MemoryStore: store.NewMemoryStore(), loadErr: errors.New("down")})
	r := svc.Resume(context.Background(), "lobby", Cursor{ID: 40, Valid: true})
	if r.Reset || len(r.Messages) != 0 || r.LastID != 0 {
		t.Fatalf("replay = %+v, want empty without reset", r)
	}
}

func TestResolveCursor(t *testing.T) {
	tests := []struct {
		name string
		src  CursorSources
		want Cursor
	}{
		{"none", CursorSources{}, Cursor{}},
		{"query", CursorSources{Query: "3"}, Cursor{ID: 3, Valid: true}},
		{"header over query", CursorSources{LastEventID: "4", Query: "3"}, Cursor{ID: 4, Valid: true}},
		{"grip over header", CursorSources{GripLast: []string{"messages-lobby; last-id=5"}, LastEventID: "4"}, Cursor{ID: 5, Valid: true, FromGrip: true}},
		{"grip for other channel", CursorSources{GripLast: []string{"provisional-lobby; last-id=5"}, LastEventID: "4"}, Cursor{ID: 4, Valid: true}},
		{"unparseable header wins", CursorSources{LastEventID: "abc", Query: "3"}, Cursor{}},
		{"unparseable grip", CursorSources{GripLast: []string{"messages-lobby; last-id=x"}}, Cursor{FromGrip: true}},
		{"negative", CursorSources{Query: "-2"}, Cursor{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveCursor("lobby", tt.src); got != tt.want {
				t.Errorf("ResolveCursor() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBackfill(t *testing.T) {
	svc := seed(t, "lobby", 5)
	r := svc.Backfill(context.Background(), "lobby", 3)
	if r.Open || r.Reset {
		t.Fatalf("replay = %+v", r)
	}
	if got := ids(r); len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Fatalf("backfilled ids = %v, want [4 5]", got)
	}
}
