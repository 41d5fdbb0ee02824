package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/cave-device/internal/domain/cave"
	"github.com/oshokin/cave-device/internal/transport"
)

// captureTransport records published messages and fails with err.
type captureTransport struct {
	messages []*transport.Message
	err      error
}

// Publish records msg.
func (c *captureTransport) Publish(_ context.Context, msg *transport.Message) error {
	c.messages = append(c.messages, msg)

	return c.err
}

// baseState is inside both bands with the fan off.
func baseState() cave.State {
	return cave.State{
		CurrentTemperature: 60,
		CurrentHumidity:    79,
		AmbientTemperature: 70,
		AmbientHumidity:    99,
		Temperature:        cave.Setpoint{Desired: 60, Limit: 5},
		Humidity:           cave.Setpoint{Desired: 79, Limit: 10},
		Fan:                cave.FanOff,
	}
}

// TestBuild_Body fixes readings to two decimals as strings.
func TestBuild_Body(t *testing.T) {
	t.Parallel()

	s := baseState()
	s.CurrentTemperature = 61.2345
	s.CurrentHumidity = 80.005

	msg, err := NewPublisher(nil, "").Build(s)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	require.Equal(t, "61.23", body["temperature"])
	require.IsType(t, "", body["humidity"])
	require.Equal(t, "application/json", msg.ContentType)
	require.NotEmpty(t, msg.ID)
	require.False(t, msg.CreatedAt.IsZero())
}

// TestBuild_TemperatureAlert uses the 60±5 band: 66 alerts, 64 does not.
func TestBuild_TemperatureAlert(t *testing.T) {
	t.Parallel()

	p := NewPublisher(nil, "")

	s := baseState()
	s.CurrentTemperature = 66

	msg, err := p.Build(s)
	require.NoError(t, err)
	require.Equal(t, "true", msg.Properties[PropertyTemperatureAlert])

	s.CurrentTemperature = 64

	msg, err = p.Build(s)
	require.NoError(t, err)
	require.NotContains(t, msg.Properties, PropertyTemperatureAlert)
}

// TestBuild_AlertsByPresence attaches only alerts that hold.
func TestBuild_AlertsByPresence(t *testing.T) {
	t.Parallel()

	p := NewPublisher(nil, "")

	msg, err := p.Build(baseState())
	require.NoError(t, err)
	require.Equal(t, map[string]string{PropertySensorID: DefaultSensorID}, msg.Properties)

	s := baseState()
	s.Fan = cave.FanFailed
	s.CurrentHumidity = 100
	s.CurrentTemperature = 40

	msg, err = p.Build(s)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		PropertySensorID:         DefaultSensorID,
		PropertyFanAlert:         "true",
		PropertyTemperatureAlert: "true",
		PropertyHumidityAlert:    "true",
	}, msg.Properties)
}

// TestPublish_SendsSnapshot publishes exactly one message per call.
func TestPublish_SendsSnapshot(t *testing.T) {
	t.Parallel()

	tr := new(captureTransport)
	p := NewPublisher(tr, "S7")
	env := cave.NewEnvironment(70, 99, cave.Setpoint{Desired: 60, Limit: 5}, cave.Setpoint{Desired: 79, Limit: 10})

	p.Publish(context.Background(), env)

	require.Len(t, tr.messages, 1)
	require.Equal(t, "S7", tr.messages[0].Properties[PropertySensorID])
	require.JSONEq(t, `{"temperature":"70.00","humidity":"99.00"}`, string(tr.messages[0].Body))
}

// TestPublish_TransportFailureIsSwallowed does not retry or panic on errors.
func TestPublish_TransportFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	tr := &captureTransport{err: errors.New("hub unreachable")}
	p := NewPublisher(tr, "")
	env := cave.NewEnvironment(70, 99, cave.Setpoint{}, cave.Setpoint{})

	p.Publish(context.Background(), env)
	p.Publish(context.Background(), env)

	require.Len(t, tr.messages, 2)
	require.NotEqual(t, tr.messages[0].ID, tr.messages[1].ID)
}
