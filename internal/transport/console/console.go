// Package console is a telemetry transport that writes messages to the log.
// The device falls back to it when no broker is configured.
package console

import (
	"context"

	"github.com/oshokin/cave-device/internal/logger"
	"github.com/oshokin/cave-device/internal/transport"
)

// Publisher logs every telemetry message at info level.
type Publisher struct{}

// NewPublisher creates a console publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish logs msg. It never fails.
func (*Publisher) Publish(ctx context.Context, msg *transport.Message) error {
	logger.InfoKV(ctx, "Telemetry",
		"message_id", msg.ID,
		"body", string(msg.Body),
		"properties", msg.Properties,
	)

	return nil
}

var _ transport.Publisher = (*Publisher)(nil)
