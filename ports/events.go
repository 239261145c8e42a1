package ports

import (
	"context"

	"github.com/layer-3/pairgate/core"
)

// MatchPublisher hands match events to the external chat surface and other consumers
type MatchPublisher interface {
	PublishMatch(ctx context.Context, event core.MatchEvent) error
}

// MatchRecorder consumes published match events
type MatchRecorder interface {
	RecordMatch(ctx context.Context, event core.MatchEvent) error
}
