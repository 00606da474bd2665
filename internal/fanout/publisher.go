package fanout

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/fanout/flychat/internal/metrics"
	"github.com/fanout/flychat/internal/models"
)

// Publish kinds, used in logs and metrics.
const (
	KindProvisional = "provisional"
	KindConfirmed   = "confirmed"
	KindRetraction  = "retraction"
)

// Result reports the outcome of a best-effort publish.
type Result struct {
	Kind      string
	Channel   string
	Delivered bool
	Err       error
}

// Publisher builds room items and hands them to a Transport.
type Publisher struct {
	transport Transport
	logger    zerolog.Logger
}

// NewPublisher creates a Publisher over the given transport.
func NewPublisher(t Transport, logger zerolog.Logger) *Publisher {
	return &Publisher{transport: t, logger: logger}
}

// PublishProvisional announces a message that has not been committed yet.
func (p *Publisher) PublishProvisional(ctx context.Context, room string, msg models.Message) Result {
	msg.ID = 0
	return p.publishMessage(ctx, KindProvisional, room, Item{Channel: ProvisionalChannel(room)}, msg)
}

// PublishConfirmed announces a committed message, tagged with its id and
// the id of its predecessor.
func (p *Publisher) PublishConfirmed(ctx context.Context, room string, msg models.Message) Result {
	item := Item{
		Channel: ConfirmedChannel(room),
		ID:      strconv.FormatInt(msg.ID, 10),
		PrevID:  strconv.FormatInt(msg.ID-1, 10),
	}
	return p.publishMessage(ctx, KindConfirmed, room, item, msg)
}

// PublishRetraction tells subscribers to drop the provisional copy with the
// given provisional id.
func (p *Publisher) PublishRetraction(ctx context.Context, room, provisionalID string) Result {
	msg := models.Message{ProvisionalID: provisionalID, Retracted: true}
	return p.publishMessage(ctx, KindRetraction, room, Item{Channel: ProvisionalChannel(room)}, msg)
}

func (p *Publisher) publishMessage(ctx context.Context, kind, room string, item Item, msg models.Message) Result {
	res := Result{Kind: kind, Channel: item.Channel}

	content, err := MessageEvent(msg)
	if err == nil {
		item.Content = content
		err = p.transport.Publish(ctx, item)
	}

	if err != nil {
		res.Err = err
		metrics.PublishTotal.WithLabelValues(kind, "failed").Inc()
		p.logger.Warn().
			Err(err).
			Str("room", room).
			Str("channel", item.Channel).
			Str("kind", kind).
			Str("provisional_id", msg.ProvisionalID).
			Msg("publish failed")
		return res
	}

	res.Delivered = true
	metrics.PublishTotal.WithLabelValues(kind, "delivered").Inc()
	return res
}
