package events

import (
	"context"
	"log/slog"
)

// LoggingPublisher emits identity lifecycle events to the structured log
// instead of a broker. Payloads carry phone numbers, so only the event type
// and payload size are logged, never the body.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType string, payload []byte) error {
	p.logger.InfoContext(ctx, "identity event published",
		"module", "events",
		"layer", "adapter",
		"event_type", eventType,
		"payload_bytes", len(payload),
	)
	return nil
}
