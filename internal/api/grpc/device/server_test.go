package device

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/cave-device/internal/domain/cave"
	"github.com/oshokin/cave-device/internal/service/command"
	"github.com/oshokin/cave-device/internal/transport"
)

// newCaveRegistry returns a registry serving SetFanState for a fresh cave.
func newCaveRegistry() (*transport.Registry, *cave.Environment) {
	env := cave.NewEnvironment(
		70, 99,
		cave.Setpoint{Desired: 60, Limit: 5},
		cave.Setpoint{Desired: 79, Limit: 10},
	)

	registry := transport.NewRegistry()
	command.NewHandler(env).Register(registry)

	return registry, env
}

// startBufconn serves srv over an in-memory listener and returns a client.
func startBufconn(t *testing.T, srv DirectMethodServer) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)

	grpcServer := grpc.NewServer()
	Register(grpcServer, srv)

	go func() {
		_ = grpcServer.Serve(lis)
	}()

	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return NewClient(conn)
}

// TestServer_Validation ensures malformed requests return InvalidArgument.
func TestServer_Validation(t *testing.T) {
	t.Parallel()

	registry, _ := newCaveRegistry()
	s := NewServer(registry)

	_, err := s.InvokeMethod(t.Context(), nil)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.InvokeMethod(t.Context(), NewRequest("", "on", ""))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

// TestServer_NoResponse reports a handler that never answers.
func TestServer_NoResponse(t *testing.T) {
	t.Parallel()

	registry := transport.NewRegistry()
	registry.Register("Silent", func(context.Context, transport.Request, transport.Responder) {})

	_, err := NewServer(registry).InvokeMethod(t.Context(), NewRequest("Silent", "", ""))
	require.Equal(t, codes.Internal, status.Code(err))
}

// TestPayloadArgument covers string, null and structured payloads.
func TestPayloadArgument(t *testing.T) {
	t.Parallel()

	got, err := payloadArgument(nil)
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = payloadArgument(structpb.NewNullValue())
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = payloadArgument(structpb.NewStringValue("on"))
	require.NoError(t, err)
	require.Equal(t, "on", got)

	got, err = payloadArgument(structpb.NewBoolValue(true))
	require.NoError(t, err)
	require.Equal(t, "true", got)
}

// TestServer_Roundtrip drives SetFanState end-to-end over gRPC.
func TestServer_Roundtrip(t *testing.T) {
	t.Parallel()

	registry, env := newCaveRegistry()
	client := startBufconn(t, NewServer(registry))

	resp, err := client.InvokeMethod(t.Context(), NewRequest(command.SetFanStateMethod, "on", "42"))
	require.NoError(t, err)
	require.Equal(t, transport.Response{Status: transport.StatusOK, Message: "fan state set: on"}, FromStruct(resp))
	require.Equal(t, cave.FanOn, env.Fan())

	resp, err = client.InvokeMethod(t.Context(), NewRequest(command.SetFanStateMethod, "sideways", ""))
	require.NoError(t, err)
	require.Equal(t, transport.StatusBadRequest, FromStruct(resp).Status)
	require.Equal(t, "invalid direct method parameter: sideways", FromStruct(resp).Message)
	require.Equal(t, cave.FanOn, env.Fan())

	resp, err = client.InvokeMethod(t.Context(), NewRequest("Reboot", "", ""))
	require.NoError(t, err)
	require.Equal(t, transport.StatusNotFound, FromStruct(resp).Status)

	_, err = client.InvokeMethod(t.Context(), NewRequest("", "", ""))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

// TestServer_FailedFan rejects every payload once the fan has failed.
func TestServer_FailedFan(t *testing.T) {
	t.Parallel()

	registry, env := newCaveRegistry()
	env.Update(func(s *cave.State) {
		s.Fan = cave.FanFailed
	})

	client := startBufconn(t, NewServer(registry))

	for _, payload := range []string{"on", "off", "bogus"} {
		resp, err := client.InvokeMethod(t.Context(), NewRequest(command.SetFanStateMethod, payload, ""))
		require.NoError(t, err)
		require.Equal(t, transport.StatusInternalError, FromStruct(resp).Status, payload)
	}

	require.Equal(t, cave.FanFailed, env.Fan())
}
