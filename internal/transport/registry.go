package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oshokin/cave-device/internal/logger"
)

// Registry maps direct method names to handlers. A single Registry is
// shared by all transports so a method behaves the same way whichever
// way it arrived.
type Registry struct {
	// handlers holds the registered methods by name.
	handlers map[string]MethodHandler
	// mu protects handlers.
	mu sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]MethodHandler),
	}
}

// Register adds or replaces the handler for name.
func (r *Registry) Register(name string, handler MethodHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[name] = handler
}

// Methods returns the registered method names in sorted order.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Dispatch routes req to its handler. Unknown methods are answered with
// StatusNotFound. A failed send of that answer is only logged.
func (r *Registry) Dispatch(ctx context.Context, req Request, res Responder) {
	r.mu.RLock()
	handler, ok := r.handlers[req.MethodName]
	r.mu.RUnlock()

	ctx = logger.WithFields(ctx, "method", req.MethodName, "request_id", req.RequestID)

	if ok {
		handler(ctx, req, res)

		return
	}

	logger.WarnKV(ctx, "Unknown direct method")

	if err := res.Send(ctx, StatusNotFound, fmt.Sprintf("unknown direct method: %s", req.MethodName)); err != nil {
		logger.ErrorKV(ctx, "Failed to send direct method response", "error", err)
	}
}
