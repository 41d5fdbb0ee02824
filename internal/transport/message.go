package transport

import (
	"context"
	"time"
)

// Status codes used in direct method responses. They follow HTTP semantics.
const (
	StatusOK            = 200
	StatusBadRequest    = 400
	StatusNotFound      = 404
	StatusInternalError = 500
)

// Message is a telemetry message: an opaque body plus application
// properties a hub can route on without parsing the body.
type Message struct {
	// ID uniquely identifies the message.
	ID string
	// Body is the serialized payload.
	Body []byte
	// ContentType describes Body, e.g. "application/json".
	ContentType string
	// ContentEncoding is the character set of Body.
	ContentEncoding string
	// Properties are the application properties.
	Properties map[string]string
	// CreatedAt is when the message was built.
	CreatedAt time.Time
}

// Publisher sends telemetry. Implementations own timeouts and retries;
// callers treat every call as fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, msg *Message) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, msg *Message) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// Request is an inbound direct method invocation.
type Request struct {
	// MethodName is the name the handler was registered under.
	MethodName string
	// RequestID correlates the response with the request.
	RequestID string
	// Payload is the decoded method argument.
	Payload string
}

// Response is the structured answer to a Request.
type Response struct {
	// Status is an HTTP-like status code.
	Status int
	// Message is a human-readable result.
	Message string
}

// Responder delivers the response of a single request. Send is fallible;
// a failed send does not undo whatever the handler already applied.
type Responder interface {
	Send(ctx context.Context, status int, message string) error
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, status int, message string) error

// Send calls f.
func (f ResponderFunc) Send(ctx context.Context, status int, message string) error {
	return f(ctx, status, message)
}

// MethodHandler processes a direct method and answers through the responder.
type MethodHandler func(ctx context.Context, req Request, res Responder)

// CommandRegistrar is implemented by anything direct methods can be registered on.
type CommandRegistrar interface {
	Register(name string, handler MethodHandler)
}
