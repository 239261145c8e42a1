package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
)

// DefaultMatchTopic is the topic match hand-offs are published on
const DefaultMatchTopic = "pairgate.matched"

// MatchedEvent is the wire form of a pairing handed to the chat surface
type MatchedEvent struct {
	MatchID   string        `json:"match_id"`
	A         core.Identity `json:"a"`
	B         core.Identity `json:"b"`
	MatchedAt int64         `json:"matched_at"` // unix millis
}

// WatermillPublisher implements the MatchPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher. An empty topic selects
// DefaultMatchTopic.
func NewWatermillPublisher(publisher message.Publisher, topic string) ports.MatchPublisher {
	if topic == "" {
		topic = DefaultMatchTopic
	}
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
	}
}

// PublishMatch publishes a match event
func (p *WatermillPublisher) PublishMatch(ctx context.Context, match core.MatchEvent) error {
	event := MatchedEvent{
		MatchID:   match.ID,
		A:         match.A,
		B:         match.B,
		MatchedAt: match.MatchedAt.UnixMilli(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	id := match.ID
	if id == "" {
		id = uuid.New().String()
	}
	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
