package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/cave-device/internal/domain/cave"
	"github.com/oshokin/cave-device/internal/logger"
	"github.com/oshokin/cave-device/internal/transport"
)

// Application property keys.
const (
	PropertySensorID         = "sensorID"
	PropertyFanAlert         = "fanAlert"
	PropertyTemperatureAlert = "temperatureAlert"
	PropertyHumidityAlert    = "humidityAlert"

	// DefaultSensorID is the sensor identifier of the simulated device.
	DefaultSensorID = "S1"

	contentTypeJSON = "application/json"
	encodingUTF8    = "utf-8"
	alertOn         = "true"
)

// Body is the JSON payload of a telemetry message. Readings are strings
// fixed to two decimals.
type Body struct {
	Temperature string `json:"temperature"`
	Humidity    string `json:"humidity"`
}

// Publisher publishes one telemetry message per call.
type Publisher struct {
	// transport sends the built message.
	transport transport.Publisher
	// sensorID is attached to every message.
	sensorID string
	// now is the clock used for CreatedAt.
	now func() time.Time
}

// NewPublisher creates a Publisher. An empty sensorID means DefaultSensorID.
func NewPublisher(t transport.Publisher, sensorID string) *Publisher {
	if sensorID == "" {
		sensorID = DefaultSensorID
	}

	return &Publisher{
		transport: t,
		sensorID:  sensorID,
		now:       time.Now,
	}
}

// Build renders the telemetry message for a state.
func (p *Publisher) Build(state cave.State) (*transport.Message, error) {
	body, err := json.Marshal(Body{
		Temperature: formatReading(state.CurrentTemperature),
		Humidity:    formatReading(state.CurrentHumidity),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal telemetry body: %w", err)
	}

	properties := map[string]string{
		PropertySensorID: p.sensorID,
	}

	if state.FanAlert() {
		properties[PropertyFanAlert] = alertOn
	}

	if state.TemperatureAlert() {
		properties[PropertyTemperatureAlert] = alertOn
	}

	if state.HumidityAlert() {
		properties[PropertyHumidityAlert] = alertOn
	}

	return &transport.Message{
		ID:              uuid.NewString(),
		Body:            body,
		ContentType:     contentTypeJSON,
		ContentEncoding: encodingUTF8,
		Properties:      properties,
		CreatedAt:       p.now().UTC(),
	}, nil
}

// Publish snapshots env and sends the message. Errors are logged, never
// retried and never returned: the next interval supersedes a lost message.
func (p *Publisher) Publish(ctx context.Context, env *cave.Environment) {
	msg, err := p.Build(env.Snapshot())
	if err != nil {
		logger.ErrorKV(ctx, "Failed to build telemetry message", "error", err)

		return
	}

	logger.DebugKV(ctx, "Message data", "body", string(msg.Body), "properties", msg.Properties)

	if err := p.transport.Publish(ctx, msg); err != nil {
		logger.ErrorKV(ctx, "Send error", "message_id", msg.ID, "error", err)

		return
	}

	logger.DebugKV(ctx, "Message sent", "message_id", msg.ID)
}

// formatReading fixes a reading to two decimals.
func formatReading(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
