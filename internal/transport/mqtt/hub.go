package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/oshokin/cave-device/internal/logger"
	"github.com/oshokin/cave-device/internal/transport"
)

const (
	// defaultKeepAlive is the MQTT keep-alive in seconds.
	defaultKeepAlive = 30
	// defaultTimeout bounds connect waits, publishes and the final disconnect.
	defaultTimeout = 5 * time.Second
	// initialConnectWait is how long Run waits for the first connection
	// before logging and letting autopaho retry in the background.
	initialConnectWait = 30 * time.Second
)

var (
	// ErrNotConnected is returned by Publish before the connection is up.
	ErrNotConnected = errors.New("mqtt connection is not established")
	// errBrokerRequired is returned when no broker URL is configured.
	errBrokerRequired = errors.New("broker URL must be provided")
	// errDeviceIDRequired is returned when no device id is configured.
	errDeviceIDRequired = errors.New("device id must be provided")
)

// Dispatcher routes inbound direct methods. *transport.Registry implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req transport.Request, res transport.Responder)
}

// publisher is the subset of the connection manager the hub publishes through.
type publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// Options configures the hub connection.
type Options struct {
	// BrokerURL is the broker to connect to.
	BrokerURL string
	// DeviceID is the MQTT client id and the device segment of topics.
	DeviceID string
	// Username and Password authenticate the device; both may be empty.
	Username string
	Password string
	// Timeout bounds each publish. Zero means defaultTimeout.
	Timeout time.Duration
}

// Hub is the MQTT transport of the device. It implements transport.Publisher
// and forwards direct methods to a Dispatcher.
type Hub struct {
	// opts is the validated configuration.
	opts Options
	// brokerURL is opts.BrokerURL parsed.
	brokerURL *url.URL
	// dispatcher receives direct methods.
	dispatcher Dispatcher

	// mu guards client.
	mu sync.RWMutex
	// client is the live connection, nil before Run connects.
	client publisher
}

// New validates opts and creates a Hub. It does not connect; call Run.
func New(opts Options, dispatcher Dispatcher) (*Hub, error) {
	if opts.BrokerURL == "" {
		return nil, errBrokerRequired
	}

	if opts.DeviceID == "" {
		return nil, errDeviceIDRequired
	}

	u, err := url.Parse(opts.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker URL: %w", err)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	return &Hub{
		opts:       opts,
		brokerURL:  u,
		dispatcher: dispatcher,
	}, nil
}

// Run connects to the broker, subscribes to direct methods on every
// (re-)connect and blocks until ctx is cancelled. It then disconnects.
func (h *Hub) Run(ctx context.Context) error {
	ctx = logger.WithFields(logger.WithName(ctx, "mqtt"), "broker", h.brokerURL.Redacted())

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{h.brokerURL},
		KeepAlive:                     defaultKeepAlive,
		CleanStartOnInitialConnection: true,
		ConnectUsername:               h.opts.Username,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			logger.Info(ctx, "Connected to broker")
			h.subscribe(ctx, cm)
		},
		OnConnectError: func(err error) {
			logger.WarnKV(ctx, "Broker connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: h.opts.DeviceID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					return h.onPublish(ctx, pr.Packet), nil
				},
			},
			OnClientError: func(err error) {
				logger.WarnKV(ctx, "MQTT client error", "error", err)
			},
		},
	}

	if h.opts.Password != "" {
		cfg.ConnectPassword = []byte(h.opts.Password)
	}

	switch strings.ToLower(h.brokerURL.Scheme) {
	case "mqtts", "ssl", "tls", "wss":
		cfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	h.setClient(cm)

	connCtx, connCancel := context.WithTimeout(ctx, initialConnectWait)
	if err := cm.AwaitConnection(connCtx); err != nil && ctx.Err() == nil {
		// autopaho keeps retrying in the background.
		logger.WarnKV(ctx, "Initial broker connection timed out, will retry in background", "error", err)
	}

	connCancel()

	<-ctx.Done()

	h.setClient(nil)

	disconnectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.opts.Timeout)
	defer cancel()

	if err := cm.Disconnect(disconnectCtx); err != nil {
		logger.WarnKV(ctx, "Disconnect failed", "error", err)
	}

	logger.Info(ctx, "MQTT transport stopped")

	return nil
}

// Publish sends a telemetry message. It does not retry.
func (h *Hub) Publish(ctx context.Context, msg *transport.Message) error {
	client := h.getClient()
	if client == nil {
		return ErrNotConnected
	}

	pubCtx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
	defer cancel()

	if _, err := client.Publish(pubCtx, toPublish(h.opts.DeviceID, msg)); err != nil {
		return fmt.Errorf("publish telemetry: %w", err)
	}

	return nil
}

// subscribe (re-)subscribes to the direct method topics.
func (h *Hub) subscribe(ctx context.Context, cm *autopaho.ConnectionManager) {
	subCtx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
	defer cancel()

	if _, err := cm.Subscribe(subCtx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: methodsSubscription, QoS: 0},
		},
	}); err != nil {
		logger.ErrorKV(ctx, "Direct method subscription failed", "error", err)

		return
	}

	logger.DebugKV(ctx, "Subscribed to direct methods", "topic", methodsSubscription)
}

// onPublish handles an inbound packet. Direct methods run on their own
// goroutine so the response publish never blocks the paho reader.
// It reports whether the packet was handled.
func (h *Hub) onPublish(ctx context.Context, p *paho.Publish) bool {
	req, ok := h.parseRequest(p)
	if !ok {
		logger.DebugKV(ctx, "Ignoring message on unexpected topic", "topic", p.Topic)

		return false
	}

	if ctx.Err() != nil {
		return true
	}

	go h.dispatch(ctx, req)

	return true
}

// parseRequest turns a direct method packet into a transport request.
func (h *Hub) parseRequest(p *paho.Publish) (transport.Request, bool) {
	method, requestID, ok := parseMethodTopic(p.Topic)
	if !ok {
		return transport.Request{}, false
	}

	return transport.Request{
		MethodName: method,
		RequestID:  requestID,
		Payload:    decodeMethodPayload(p.Payload),
	}, true
}

// dispatch hands req to the dispatcher with a responder publishing the
// answer on the response topic.
func (h *Hub) dispatch(ctx context.Context, req transport.Request) {
	responder := transport.ResponderFunc(func(ctx context.Context, status int, message string) error {
		client := h.getClient()
		if client == nil {
			return ErrNotConnected
		}

		resCtx, cancel := context.WithTimeout(ctx, h.opts.Timeout)
		defer cancel()

		_, err := client.Publish(resCtx, &paho.Publish{
			Topic:   responseTopic(status, req.RequestID),
			QoS:     responseQoS,
			Payload: encodeResponse(message),
			Properties: &paho.PublishProperties{
				ContentType: "application/json",
			},
		})
		if err != nil {
			return fmt.Errorf("publish method response: %w", err)
		}

		return nil
	})

	h.dispatcher.Dispatch(ctx, req, responder)
}

// getClient returns the live connection or nil.
//
//nolint:ireturn // The interface is the seam tests replace.
func (h *Hub) getClient() publisher {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.client
}

// setClient swaps the live connection.
func (h *Hub) setClient(c publisher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.client = c
}

var _ transport.Publisher = (*Hub)(nil)
