package fanout

import (
	"context"
	"errors"
	"sync"
)

// subscriptionBuffer bounds items queued for a slow subscriber. Items beyond
// it are dropped; confirmed-channel gaps are repaired from the room log.
const subscriptionBuffer = 64

var errBrokerClosed = errors.New("broker closed")

// MemoryBroker delivers items to subscribers in the same process.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*memorySubscription]struct{})}
}

// Publish delivers items to current subscribers without blocking.
func (b *MemoryBroker) Publish(ctx context.Context, items ...Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errBrokerClosed
	}
	for _, it := range items {
		for sub := range b.subs[it.Channel] {
			select {
			case sub.ch <- it:
			default:
			}
		}
	}
	return nil
}

// Subscribe registers a subscription on the given channels.
func (b *MemoryBroker) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errBrokerClosed
	}
	sub := &memorySubscription{broker: b, channels: channels, ch: make(chan Item, subscriptionBuffer)}
	for _, c := range channels {
		if b.subs[c] == nil {
			b.subs[c] = make(map[*memorySubscription]struct{})
		}
		b.subs[c][sub] = struct{}{}
	}
	return sub, nil
}

// Ping reports whether the broker accepts publishes.
func (b *MemoryBroker) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errBrokerClosed
	}
	return ctx.Err()
}

// Close ends every subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	seen := make(map[*memorySubscription]struct{})
	for _, set := range b.subs {
		for sub := range set {
			if _, ok := seen[sub]; !ok {
				seen[sub] = struct{}{}
				close(sub.ch)
			}
		}
	}
	b.subs = nil
	return nil
}

type memorySubscription struct {
	broker   *MemoryBroker
	channels []string
	ch       chan Item
	once     sync.Once
}

func (s *memorySubscription) Items() <-chan Item {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.closed {
			return
		}
		for _, c := range s.channels {
			delete(b.subs[c], s)
			if len(b.subs[c]) == 0 {
				delete(b.subs, c)
			}
		}
		close(s.ch)
	})
	return nil
}
