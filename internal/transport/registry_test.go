package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordedResponse captures what a handler sent.
type recordedResponse struct {
	status  int
	message string
	calls   int
}

// responder returns a Responder that records into rr and fails with err.
func (rr *recordedResponse) responder(err error) Responder {
	return ResponderFunc(func(_ context.Context, status int, message string) error {
		rr.status, rr.message = status, message
		rr.calls++

		return err
	})
}

// TestRegistry_Dispatch routes to the registered handler.
func TestRegistry_Dispatch(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	var got Request

	r.Register("SetFanState", func(ctx context.Context, req Request, res Responder) {
		got = req
		_ = res.Send(ctx, StatusOK, "done")
	})

	var rr recordedResponse

	req := Request{MethodName: "SetFanState", RequestID: "1", Payload: "on"}
	r.Dispatch(context.Background(), req, rr.responder(nil))

	require.Equal(t, req, got)
	require.Equal(t, StatusOK, rr.status)
	require.Equal(t, "done", rr.message)
	require.Equal(t, []string{"SetFanState"}, r.Methods())
}

// TestRegistry_UnknownMethod answers 404 even if the send itself fails.
func TestRegistry_UnknownMethod(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	var rr recordedResponse

	r.Dispatch(context.Background(), Request{MethodName: "Reboot"}, rr.responder(errors.New("link down")))

	require.Equal(t, 1, rr.calls)
	require.Equal(t, StatusNotFound, rr.status)
	require.Contains(t, rr.message, "Reboot")
}
