package command

import (
	"context"
	"fmt"

	"github.com/oshokin/cave-device/internal/domain/cave"
	"github.com/oshokin/cave-device/internal/logger"
	"github.com/oshokin/cave-device/internal/transport"
)

// SetFanStateMethod is the direct method name the handler is registered under.
const SetFanStateMethod = "SetFanState"

// Handler processes fan state change requests against one environment.
type Handler struct {
	// env is the cave whose fan is controlled.
	env *cave.Environment
}

// NewHandler creates a Handler bound to env.
func NewHandler(env *cave.Environment) *Handler {
	return &Handler{
		env: env,
	}
}

// Handle validates the request and applies it. The fan check comes first:
// a failed fan rejects every payload, valid or not.
func (h *Handler) Handle(ctx context.Context, req transport.Request) transport.Response {
	logger.InfoKV(ctx, "Direct method payload received", "payload", req.Payload)

	if h.env.Fan() == cave.FanFailed {
		logger.Error(ctx, "Fan has failed and cannot have its state changed")

		return transport.Response{
			Status:  transport.StatusInternalError,
			Message: cave.ErrFanFailed.Error(),
		}
	}

	desired, err := cave.ParseCommandState(req.Payload)
	if err != nil {
		logger.ErrorKV(ctx, "Invalid state received in payload", "payload", req.Payload)

		return transport.Response{
			Status:  transport.StatusBadRequest,
			Message: fmt.Sprintf("invalid direct method parameter: %s", req.Payload),
		}
	}

	// The fan may have failed between the check above and this call.
	got, err := h.env.SetFan(desired)
	if err != nil {
		logger.ErrorKV(ctx, "Fan state change rejected", "error", err)

		return transport.Response{
			Status:  transport.StatusInternalError,
			Message: err.Error(),
		}
	}

	logger.InfoKV(ctx, "Fan state set", "fan", got.String())

	return transport.Response{
		Status:  transport.StatusOK,
		Message: fmt.Sprintf("fan state set: %s", got),
	}
}

// Serve handles req and delivers the response. A delivery failure is
// logged and does not roll back the state change.
func (h *Handler) Serve(ctx context.Context, req transport.Request, res transport.Responder) {
	resp := h.Handle(ctx, req)

	if err := res.Send(ctx, resp.Status, resp.Message); err != nil {
		logger.ErrorKV(ctx, "An error occurred when sending a method response", "error", err)

		return
	}

	logger.InfoKV(ctx, "Response to method sent successfully", "status", resp.Status)
}

// Register installs the handler as SetFanState on r.
func (h *Handler) Register(r transport.CommandRegistrar) {
	r.Register(SetFanStateMethod, h.Serve)
}
