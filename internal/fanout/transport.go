package fanout

import "context"

// Item is one publish unit: stream content for every subscriber of a
// channel. ID and PrevID are set for confirmed messages only and let the
// transport detect gaps between consecutive items.
type Item struct {
	Channel string `json:"channel"`
	ID      string `json:"id,omitempty"`
	PrevID  string `json:"prev-id,omitempty"`
	Content string `json:"content"`
}

// Transport delivers items to the current subscribers of their channels.
type Transport interface {
	Publish(ctx context.Context, items ...Item) error
	Close() error
}

// Subscription receives items published to the channels it was opened on.
// Items is closed when the subscription ends.
type Subscription interface {
	Items() <-chan Item
	Close() error
}

// Subscriber opens subscriptions. Subscribe returns only once the
// subscription is active, so anything published afterwards is received.
type Subscriber interface {
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
}

// Broker is a Transport that can also be subscribed to in process.
type Broker interface {
	Transport
	Subscriber
	Ping(ctx context.Context) error
}
