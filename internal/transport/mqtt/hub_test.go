package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/cave-device/internal/transport"
)

var errBrokerGone = errors.New("broker gone")

// fakeClient records published packets.
type fakeClient struct {
	mu        sync.Mutex
	published []*paho.Publish
	err       error
}

func (f *fakeClient) Publish(_ context.Context, p *paho.Publish) (*paho.PublishResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	f.published = append(f.published, p)

	return new(paho.PublishResponse), nil
}

func (f *fakeClient) packets() []*paho.Publish {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*paho.Publish(nil), f.published...)
}

func newTestHub(t *testing.T, dispatcher Dispatcher) (*Hub, *fakeClient) {
	t.Helper()

	hub, err := New(Options{
		BrokerURL: "mqtt://127.0.0.1:1883",
		DeviceID:  "cave-1",
	}, dispatcher)
	require.NoError(t, err)

	client := new(fakeClient)
	hub.setClient(client)

	return hub, client
}

// TestNew_Validation rejects incomplete options.
func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(Options{DeviceID: "cave-1"}, transport.NewRegistry())
	require.ErrorIs(t, err, errBrokerRequired)

	_, err = New(Options{BrokerURL: "mqtt://127.0.0.1:1883"}, transport.NewRegistry())
	require.ErrorIs(t, err, errDeviceIDRequired)

	hub, err := New(Options{BrokerURL: "mqtt://127.0.0.1:1883", DeviceID: "cave-1"}, transport.NewRegistry())
	require.NoError(t, err)
	require.Equal(t, defaultTimeout, hub.opts.Timeout)
}

// TestPublish_NotConnected fails fast before Run has connected.
func TestPublish_NotConnected(t *testing.T) {
	t.Parallel()

	hub, err := New(Options{BrokerURL: "mqtt://127.0.0.1:1883", DeviceID: "cave-1"}, transport.NewRegistry())
	require.NoError(t, err)

	err = hub.Publish(t.Context(), &transport.Message{Body: []byte("{}")})
	require.ErrorIs(t, err, ErrNotConnected)
}

// TestPublish_Telemetry sends to the device events topic.
func TestPublish_Telemetry(t *testing.T) {
	t.Parallel()

	hub, client := newTestHub(t, transport.NewRegistry())

	require.NoError(t, hub.Publish(t.Context(), &transport.Message{
		ID:         "m1",
		Body:       []byte(`{"temperature":"60.00"}`),
		Properties: map[string]string{"sensorID": "S1"},
	}))

	packets := client.packets()
	require.Len(t, packets, 1)
	require.Equal(t, "devices/cave-1/messages/events/", packets[0].Topic)

	client.err = errBrokerGone

	require.ErrorIs(t, hub.Publish(t.Context(), &transport.Message{}), errBrokerGone)
}

// TestDispatch_RespondsOnResponseTopic routes a direct method through the
// registry and publishes its answer.
func TestDispatch_RespondsOnResponseTopic(t *testing.T) {
	t.Parallel()

	registry := transport.NewRegistry()

	var got transport.Request

	registry.Register("SetFanState", func(ctx context.Context, req transport.Request, res transport.Responder) {
		got = req

		require.NoError(t, res.Send(ctx, transport.StatusOK, "fan state set: "+req.Payload))
	})

	hub, client := newTestHub(t, registry)

	req, ok := hub.parseRequest(&paho.Publish{
		Topic:   "$iothub/methods/POST/SetFanState/?$rid=7",
		Payload: []byte(`"on"`),
	})
	require.True(t, ok)

	hub.dispatch(t.Context(), req)

	require.Equal(t, transport.Request{MethodName: "SetFanState", RequestID: "7", Payload: "on"}, got)

	packets := client.packets()
	require.Len(t, packets, 1)
	require.Equal(t, "$iothub/methods/res/200/?$rid=7", packets[0].Topic)
	require.Equal(t, byte(responseQoS), packets[0].QoS)
	require.JSONEq(t, `"fan state set: on"`, string(packets[0].Payload))
}

// TestDispatch_UnknownMethod answers 404.
func TestDispatch_UnknownMethod(t *testing.T) {
	t.Parallel()

	hub, client := newTestHub(t, transport.NewRegistry())

	hub.dispatch(t.Context(), transport.Request{MethodName: "Reboot", RequestID: "9"})

	packets := client.packets()
	require.Len(t, packets, 1)
	require.Equal(t, "$iothub/methods/res/404/?$rid=9", packets[0].Topic)
}

// TestOnPublish_IgnoresForeignTopics reports unhandled packets.
func TestOnPublish_IgnoresForeignTopics(t *testing.T) {
	t.Parallel()

	hub, client := newTestHub(t, transport.NewRegistry())

	require.False(t, hub.onPublish(t.Context(), &paho.Publish{Topic: "devices/cave-1/messagebus"}))
	require.Empty(t, client.packets())
}
