package outbox

import (
	"context"
	"log/slog"
)

// LogPublisher writes messages to the log. It stands in for the broker when
// none is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, key, eventType string, payload []byte) error {
	p.logger.InfoContext(ctx, "compliance event",
		"key", key,
		"event_type", eventType,
		"payload", string(payload),
	)
	return nil
}
