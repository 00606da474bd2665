// Package session implements the room protocol: the write path that
// announces, commits and confirms messages, and the read path that resolves
// a resume cursor and replays retained history.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fanout/flychat/internal/crypto"
	"github.com/fanout/flychat/internal/fanout"
	"github.com/fanout/flychat/internal/metrics"
	"github.com/fanout/flychat/internal/models"
	"github.com/fanout/flychat/internal/roomlog"
)

// ErrBadRequest is returned when a post is missing its sender or text.
var ErrBadRequest = errors.New("bad request")

// Service runs room requests against a room log and a publisher.
type Service struct {
	log       *roomlog.Log
	publisher *fanout.Publisher
	logger    zerolog.Logger
	newID     func() string
}

// NewService creates a Service.
func NewService(log *roomlog.Log, publisher *fanout.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		log:       log,
		publisher: publisher,
		logger:    logger,
		newID:     crypto.NewProvisionalID,
	}
}

// Post announces a provisional message, commits it, then publishes either
// the confirmed message or a retraction. The returned message is the
// committed one.
//
// Post is not cancelled by ctx: once accepted, the message is committed and
// broadcast even if the caller goes away.
func (s *Service) Post(ctx context.Context, room, from, text string) (models.Message, error) {
	if from == "" || text == "" {
		metrics.MessagesPosted.WithLabelValues("rejected").Inc()
		return models.Message{}, fmt.Errorf("%w: from and text are required", ErrBadRequest)
	}
	ctx = context.WithoutCancel(ctx)

	provisional := models.Message{
		ProvisionalID: s.newID(),
		From:          from,
		Text:          text,
	}
	s.publisher.PublishProvisional(ctx, room, provisional)

	msg, err := s.log.Append(ctx, room, func(int64, []models.Message) models.Message {
		return provisional
	})
	if err != nil {
		metrics.MessagesPosted.WithLabelValues("retracted").Inc()
		s.logger.Error().
			Err(err).
			Str("room", room).
			Str("provisional_id", provisional.ProvisionalID).
			Msg("append failed, retracting")
		s.publisher.PublishRetraction(ctx, room, provisional.ProvisionalID)
		return models.Message{}, err
	}

	metrics.MessagesPosted.WithLabelValues("confirmed").Inc()
	s.publisher.PublishConfirmed(ctx, room, msg)
	s.logger.Debug().
		Str("room", room).
		Int64("id", msg.ID).
		Str("provisional_id", msg.ProvisionalID).
		Msg("message committed")
	return msg, nil
}

// Snapshot returns the room's retained messages and newest id. A failed
// read yields an empty snapshot.
func (s *Service) Snapshot(ctx context.Context, room string) models.Snapshot {
	rl, _ := s.read(ctx, room)
	return models.Snapshot{Messages: rl.Messages, LastEventID: rl.LastID()}
}

// read loads the room log, degrading to an empty log on failure. ok is
// false when the read failed.
func (s *Service) read(ctx context.Context, room string) (*models.RoomLog, bool) {
	rl, err := s.log.Read(ctx, room)
	if err != nil {
		s.logger.Warn().Err(err).Str("room", room).Msg("room read failed, serving empty view")
		return &models.RoomLog{Room: room, Messages: []models.Message{}}, false
	}
	if rl.Messages == nil {
		rl.Messages = []models.Message{}
	}
	return rl, true
}
