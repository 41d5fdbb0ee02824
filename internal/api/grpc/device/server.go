package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/cave-device/internal/logger"
	"github.com/oshokin/cave-device/internal/transport"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "cave.device.v1.DirectMethodService"
	// InvokeMethodFullName is the full method path used by clients.
	InvokeMethodFullName = "/" + ServiceName + "/InvokeMethod"

	// Struct field names of requests and responses.
	FieldMethodName = "methodName"
	FieldPayload    = "payload"
	FieldRequestID  = "requestId"
	FieldActor      = "actor"
	FieldStatus     = "status"
)

// errAlreadyResponded is returned when a handler answers twice.
var errAlreadyResponded = errors.New("direct method already responded")

// Dispatcher routes direct methods. *transport.Registry implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req transport.Request, res transport.Responder)
}

// DirectMethodServer is the server API of DirectMethodService.
type DirectMethodServer interface {
	InvokeMethod(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// Server implements DirectMethodServer on top of a Dispatcher.
type Server struct {
	// dispatcher runs the requested method.
	dispatcher Dispatcher
}

// NewServer wires the dispatcher into a gRPC handler.
func NewServer(dispatcher Dispatcher) *Server {
	return &Server{
		dispatcher: dispatcher,
	}
}

// InvokeMethod runs a direct method and returns its structured response.
// Method level failures are reported in the status field, not as gRPC errors.
func (s *Server) InvokeMethod(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	fields := req.GetFields()

	methodName := fields[FieldMethodName].GetStringValue()
	if methodName == "" {
		return nil, status.Error(codes.InvalidArgument, "methodName is required")
	}

	payload, err := payloadArgument(fields[FieldPayload])
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "payload: %v", err)
	}

	requestID := fields[FieldRequestID].GetStringValue()
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ctx = logger.WithName(ctx, "grpc")

	if actor := fields[FieldActor].GetStringValue(); actor != "" {
		ctx = logger.WithKV(ctx, "actor", actor)
	}

	var (
		mu       sync.Mutex
		captured *transport.Response
	)

	responder := transport.ResponderFunc(func(_ context.Context, code int, message string) error {
		mu.Lock()
		defer mu.Unlock()

		if captured != nil {
			return errAlreadyResponded
		}

		captured = &transport.Response{Status: code, Message: message}

		return nil
	})

	s.dispatcher.Dispatch(ctx, transport.Request{
		MethodName: methodName,
		RequestID:  requestID,
		Payload:    payload,
	}, responder)

	mu.Lock()
	defer mu.Unlock()

	if captured == nil {
		return nil, status.Error(codes.Internal, "method produced no response")
	}

	return ToStruct(*captured), nil
}

// ToStruct converts a response to its wire form.
func ToStruct(resp transport.Response) *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			FieldStatus:  structpb.NewNumberValue(float64(resp.Status)),
			FieldPayload: structpb.NewStringValue(resp.Message),
		},
	}
}

// FromStruct converts a wire response back to a transport response.
func FromStruct(s *structpb.Struct) transport.Response {
	fields := s.GetFields()

	return transport.Response{
		Status:  int(fields[FieldStatus].GetNumberValue()),
		Message: fields[FieldPayload].GetStringValue(),
	}
}

// NewRequest builds the wire request for a method call.
func NewRequest(methodName, payload, requestID string) *structpb.Struct {
	fields := map[string]*structpb.Value{
		FieldMethodName: structpb.NewStringValue(methodName),
		FieldPayload:    structpb.NewStringValue(payload),
	}

	if requestID != "" {
		fields[FieldRequestID] = structpb.NewStringValue(requestID)
	}

	return &structpb.Struct{Fields: fields}
}

// SetActor records who issued the request, e.g. "user@host".
func SetActor(req *structpb.Struct, actor string) {
	if req == nil || actor == "" {
		return
	}

	if req.Fields == nil {
		req.Fields = make(map[string]*structpb.Value)
	}

	req.Fields[FieldActor] = structpb.NewStringValue(actor)
}

// payloadArgument turns the payload value into the method argument: a
// string is used as is, a missing value is empty and anything else is
// passed on as its JSON text.
func payloadArgument(v *structpb.Value) (string, error) {
	switch v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return "", nil
	case *structpb.Value_StringValue:
		return v.GetStringValue(), nil
	}

	data, err := protojson.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	return string(data), nil
}

// Register installs srv on the gRPC registrar.
func Register(r grpc.ServiceRegistrar, srv DirectMethodServer) {
	r.RegisterService(&serviceDesc, srv)
}

// Client is the client API of DirectMethodService.
type Client struct {
	// cc is the underlying connection.
	cc grpc.ClientConnInterface
}

// NewClient creates a Client on cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{
		cc: cc,
	}
}

// InvokeMethod calls the remote InvokeMethod.
func (c *Client) InvokeMethod(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)

	if err := c.cc.Invoke(ctx, InvokeMethodFullName, req, out, opts...); err != nil {
		return nil, err //nolint:wrapcheck // Status errors are returned untouched.
	}

	return out, nil
}

// serviceDesc describes DirectMethodService to the gRPC runtime.
//
//nolint:gochecknoglobals // grpc.ServiceRegistrar takes a descriptor pointer.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DirectMethodServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "InvokeMethod",
			Handler:    invokeMethodHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cave/device/v1/direct_method.proto",
}

func invokeMethodHandler(
	srv any,
	ctx context.Context, //nolint:revive // Signature fixed by grpc.MethodHandler.
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}

	server, _ := srv.(DirectMethodServer)

	if interceptor == nil {
		return server.InvokeMethod(ctx, in)
	}

	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: InvokeMethodFullName,
	}

	handler := func(ctx context.Context, req any) (any, error) {
		r, _ := req.(*structpb.Struct)

		return server.InvokeMethod(ctx, r)
	}

	return interceptor(ctx, in, info, handler)
}
