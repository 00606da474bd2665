package roomlog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fanout/flychat/internal/models"
	"github.com/fanout/flychat/internal/store"
)

func textBuilder(from, text string) BuildFunc {
	return func(int64, []models.Message) models.Message {
		return models.Message{From: from, Text: text}
	}
}

// flakyStore wraps a store and overrides CompareAndSwap.
type flakyStore struct {
	store.RoomLogStore
	casErr error
	calls  atomic.Int32
}

func (s *flakyStore) CompareAndSwap(ctx context.Context, room string, prev int64, next *models.RoomLog) error {
	s.calls.Add(1)
	if s.casErr != nil {
		return s.casErr
	}
	return s.RoomLogStore.CompareAndSwap(ctx, room, prev, next)
}

type failingLoadStore struct {
	store.RoomLogStore
}

func (failingLoadStore) Load(context.Context, string) (*models.RoomLog, error) {
	return nil, errors.New("connection refused")
}

func TestAppendToNewRoomStartsAtOne(t *testing.T) {
	l := New(store.NewMemoryStore(), Options{})
	ctx := context.Background()

	msg, err := l.Append(ctx, "lobby", textBuilder("alice", "hi"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.ID != 1 {
		t.Fatalf("expected id 1, got %d", msg.ID)
	}
	if msg.Date.IsZero() {
		t.Fatal("expected commit date")
	}

	rl, err := l.Read(ctx, "lobby")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rl.Version != 1 || len(rl.Messages) != 1 || rl.Messages[0].Text != "hi" {
		t.Fatalf("unexpected log: %+v", rl)
	}
}

func TestAppendIgnoresBuilderID(t *testing.T) {
	l := New(store.NewMemoryStore(), Options{})
	msg, err := l.Append(context.Background(), "r", func(int64, []models.Message) models.Message {
		return models.Message{ID: 99, From: "a", Text: "b", Retracted: true}
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.ID != 1 || msg.Retracted {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestAppendEvictsOldestAtRetentionLimit(t *testing.T) {
	l := New(store.NewMemoryStore(), Options{Retention: 50})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if _, err := l.Append(ctx, "lobby", textBuilder("alice", "msg")); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	msg, err := l.Append(ctx, "lobby", textBuilder("bob", "one more"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.ID != 51 {
		t.Fatalf("expected id 51, got %d", msg.ID)
	}

	rl, _ := l.Read(ctx, "lobby")
	if len(rl.Messages) != 50 {
		t.Fatalf("expected 50 retained, got %d", len(rl.Messages))
	}
	if rl.FirstID() != 2 || rl.LastID() != 51 {
		t.Fatalf("expected window 2..51, got %d..%d", rl.FirstID(), rl.LastID())
	}
}

func TestConcurrentAppendsAreGapless(t *testing.T) {
	const n = 80
	l := New(store.NewMemoryStore(), Options{Retention: 50, Retry: RetryPolicy{}})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Append(ctx, "busy", textBuilder("user", "x")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("append: %v", err)
	}

	rl, _ := l.Read(ctx, "busy")
	if rl.Version != n {
		t.Fatalf("expected version %d, got %d", n, rl.Version)
	}
	if len(rl.Messages) != 50 {
		t.Fatalf("expected 50 retained, got %d", len(rl.Messages))
	}
	for i, m := range rl.Messages {
		want := int64(n - 50 + 1 + i)
		if m.ID != want {
			t.Fatalf("message %d: expected id %d, got %d", i, want, m.ID)
		}
	}
}

func TestConcurrentAppendsBelowRetention(t *testing.T) {
	const n = 20
	l := New(store.NewMemoryStore(), Options{Retry: DefaultRetryPolicy()})
	l.retry.MaxAttempts = 1000

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Append(context.Background(), "r", textBuilder("u", "x"))
		}()
	}
	wg.Wait()

	rl, _ := l.Read(context.Background(), "r")
	if len(rl.Messages) != n || rl.FirstID() != 1 || rl.LastID() != n {
		t.Fatalf("expected ids 1..%d, got %d messages %d..%d", n, len(rl.Messages), rl.FirstID(), rl.LastID())
	}
}

func TestAppendGivesUpAfterMaxAttempts(t *testing.T) {
	fs := &flakyStore{RoomLogStore: store.NewMemoryStore(), casErr: store.ErrConflict}
	l := New(fs, Options{Retry: RetryPolicy{MaxAttempts: 4, Base: time.Millisecond}})
	var slept []time.Duration
	l.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := l.Append(context.Background(), "r", textBuilder("a", "b"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if errors.Is(err, store.ErrConflict) {
		t.Fatal("exhaustion should not be reported as a raw store conflict")
	}
	if got := fs.calls.Load(); got != 4 {
		t.Fatalf("expected 4 attempts, got %d", got)
	}
	if len(slept) != 3 {
		t.Fatalf("expected 3 backoff sleeps, got %d", len(slept))
	}
}

func TestAppendDoesNotRetryStorageFailure(t *testing.T) {
	boom := errors.New("throughput exceeded")
	fs := &flakyStore{RoomLogStore: store.NewMemoryStore(), casErr: boom}
	l := New(fs, Options{Retry: DefaultRetryPolicy()})

	_, err := l.Append(context.Background(), "r", textBuilder("a", "b"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if errors.Is(err, ErrConflict) {
		t.Fatal("storage failure must not be reported as contention")
	}
	if got := fs.calls.Load(); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestAppendLoadFailure(t *testing.T) {
	l := New(failingLoadStore{store.NewMemoryStore()}, Options{})
	if _, err := l.Append(context.Background(), "r", textBuilder("a", "b")); err == nil {
		t.Fatal("expected error")
	}
	if _, err := l.Read(context.Background(), "r"); err == nil {
		t.Fatal("expected error")
	}
}

func TestAppendBuilderSeesObservedState(t *testing.T) {
	l := New(store.NewMemoryStore(), Options{})
	ctx := context.Background()
	_, _ = l.Append(ctx, "r", textBuilder("a", "first"))

	var seenVersion int64
	var seenLen int
	_, err := l.Append(ctx, "r", func(version int64, messages []models.Message) models.Message {
		seenVersion, seenLen = version, len(messages)
		return models.Message{From: "a", Text: "second"}
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if seenVersion != 1 || seenLen != 1 {
		t.Fatalf("builder saw version=%d len=%d", seenVersion, seenLen)
	}
}

func TestBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, Base: 10 * time.Millisecond, Cap: 50 * time.Millisecond, Factor: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{4, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.backoff(tt.attempt); got != tt.want {
			t.Fatalf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	if d := (RetryPolicy{}).backoff(3); d != 0 {
		t.Fatalf("unbounded policy should not delay, got %v", d)
	}

	p.Jitter = true
	for i := 0; i < 100; i++ {
		if d := p.backoff(4); d <= 0 || d > 50*time.Millisecond {
			t.Fatalf("jittered backoff out of range: %v", d)
		}
	}
}

func TestAppendWindowDoesNotAlias(t *testing.T) {
	prev := []models.Message{{ID: 1}, {ID: 2}, {ID: 3}}
	window := appendWindow(prev, models.Message{ID: 4}, 3)
	if len(window) != 3 || window[0].ID != 2 || window[2].ID != 4 {
		t.Fatalf("unexpected window: %+v", window)
	}
	window[0].ID = 100
	if prev[1].ID != 2 {
		t.Fatal("window aliases the previous slice")
	}
}
