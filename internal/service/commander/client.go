package commander

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	api "github.com/oshokin/cave-device/internal/api/grpc/device"
	"github.com/oshokin/cave-device/internal/config"
	"github.com/oshokin/cave-device/internal/transport"
	"github.com/oshokin/cave-device/internal/version"
)

// Client wraps the DirectMethodService client with timeouts and audit data.
type Client struct {
	// conn is the underlying gRPC connection to the device.
	conn *grpc.ClientConn
	// api is the DirectMethodService client.
	api *api.Client

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// actor is attached to every request, "user@host".
	actor string
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for method calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithActor overrides the detected actor.
func WithActor(actor string) Option {
	return func(c *Client) {
		c.actor = actor
	}
}

var (
	// errAddressRequired is returned when no device address is known.
	errAddressRequired = errors.New("device command address must be provided")
	// errMethodRequired is returned when no method name is given.
	errMethodRequired = errors.New("method name must be provided")
)

// Dial prepares a gRPC connection to the device command endpoint.
// The connection is insecure; the endpoint is meant for a trusted network.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(
		address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUserAgent(version.UserAgent("cave-commander")),
	)
	if err != nil {
		return nil, fmt.Errorf("dial device: %w", err)
	}

	return newClient(conn, opts...), nil
}

func newClient(conn *grpc.ClientConn, opts ...Option) *Client {
	client := &Client{
		conn:        conn,
		api:         api.NewClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	if actor, err := DetectActor(); err == nil {
		client.actor = actor
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Invoke calls a direct method and returns its response. Every call gets
// a fresh request id.
func (c *Client) Invoke(ctx context.Context, method, payload string) (transport.Response, error) {
	if method == "" {
		return transport.Response{}, errMethodRequired
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	req := api.NewRequest(method, payload, uuid.NewString())
	api.SetActor(req, c.actor)

	resp, err := c.api.InvokeMethod(callCtx, req)
	if err != nil {
		return transport.Response{}, fmt.Errorf("invoke %s: %w", method, err)
	}

	return api.FromStruct(resp), nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

// DetectActor returns "user@host" for the audit trail of the device log.
func DetectActor() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("current user: %w", err)
	}

	return currentUser.Username + "@" + hostname, nil
}
