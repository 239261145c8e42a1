package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
)

// DecodeMatch parses a message produced by WatermillPublisher
func DecodeMatch(msg *message.Message) (core.MatchEvent, error) {
	var event MatchedEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return core.MatchEvent{}, fmt.Errorf("%w: %v", core.ErrMalformedMessage, err)
	}
	return core.MatchEvent{
		ID:        event.MatchID,
		A:         event.A,
		B:         event.B,
		MatchedAt: time.UnixMilli(event.MatchedAt).UTC(),
	}, nil
}

// NewMatchRouter builds a router that feeds every match on topic to recorder.
// Undecodable messages are acked and logged; recorder errors are retried.
func NewMatchRouter(subscriber message.Subscriber, topic string, recorder ports.MatchRecorder, logger *slog.Logger) (*message.Router, error) {
	if topic == "" {
		topic = DefaultMatchTopic
	}

	router, err := message.NewRouter(message.RouterConfig{}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 100 * time.Millisecond,
			Logger:          watermill.NewSlogLogger(logger),
		}.Middleware,
	)

	router.AddNoPublisherHandler("quota", topic, subscriber, func(msg *message.Message) error {
		match, err := DecodeMatch(msg)
		if err != nil {
			logger.Warn("dropping undecodable match event", "message", msg.UUID, "error", err)
			return nil
		}
		return recorder.RecordMatch(msg.Context(), match)
	})

	return router, nil
}
