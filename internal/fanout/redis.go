package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const redisChannelPrefix = "flychat:"

// RedisBroker relays items between processes over Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
	owned  bool
	logger zerolog.Logger
}

// NewRedisBroker connects to Redis at url.
func NewRedisBroker(ctx context.Context, url string, logger zerolog.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisBroker{client: client, owned: true, logger: logger}, nil
}

// NewRedisBrokerFromClient shares an existing client. Close leaves it open.
func NewRedisBrokerFromClient(client *redis.Client, logger zerolog.Logger) *RedisBroker {
	return &RedisBroker{client: client, logger: logger}
}

// Publish sends each item to its Redis channel.
func (b *RedisBroker) Publish(ctx context.Context, items ...Item) error {
	for _, it := range items {
		data, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("encode item: %w", err)
		}
		if err := b.client.Publish(ctx, redisChannelPrefix+it.Channel, data).Err(); err != nil {
			return fmt.Errorf("redis publish %s: %w", it.Channel, err)
		}
	}
	return nil
}

// Subscribe opens a pub/sub connection and waits for Redis to confirm every
// channel before returning.
func (b *RedisBroker) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = redisChannelPrefix + c
	}

	ps := b.client.Subscribe(ctx, names...)
	for range names {
		msg, err := ps.Receive(ctx)
		if err != nil {
			ps.Close()
			return nil, fmt.Errorf("redis subscribe: %w", err)
		}
		if _, ok := msg.(*redis.Subscription); !ok {
			ps.Close()
			return nil, fmt.Errorf("redis subscribe: unexpected reply %T", msg)
		}
	}

	sub := &redisSubscription{ps: ps, ch: make(chan Item, subscriptionBuffer), done: make(chan struct{})}
	go sub.relay(b.logger)
	return sub, nil
}

// Ping checks the Redis connection.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the client if the broker created it.
func (b *RedisBroker) Close() error {
	if b.owned {
		return b.client.Close()
	}
	return nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	ch   chan Item
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) relay(logger zerolog.Logger) {
	defer close(s.ch)
	in := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var it Item
			if err := json.Unmarshal([]byte(msg.Payload), &it); err != nil {
				logger.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed item")
				continue
			}
			it.Channel = strings.TrimPrefix(msg.Channel, redisChannelPrefix)
			select {
			case s.ch <- it:
			case <-s.done:
				return
			default:
			}
		}
	}
}

func (s *redisSubscription) Items() <-chan Item {
	return s.ch
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
