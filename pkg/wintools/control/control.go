// Package control is the local channel between a running wintools owner and
// later invocations. A contender uses it to bring the owner forward or to
// shut it down, and the CLI uses it to trigger sessions in the owner.
//
// The service is described by hand over protobuf well-known types, so no
// generated code is needed:
//
//	wintools.control.v1.Control/Activate  Empty  -> Empty
//	wintools.control.v1.Control/Shutdown  Empty  -> Empty
//	wintools.control.v1.Control/Status    Empty  -> Struct (Status)
//	wintools.control.v1.Control/Reclaim   Struct -> Struct (SessionRecord)
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jamesainslie/wintools/pkg/wintools/metrics"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

const serviceName = "wintools.control.v1.Control"

// Full method names.
const (
	MethodActivate = "/" + serviceName + "/Activate"
	MethodShutdown = "/" + serviceName + "/Shutdown"
	MethodStatus   = "/" + serviceName + "/Status"
	MethodReclaim  = "/" + serviceName + "/Reclaim"
)

// Status describes the running owner.
type Status struct {
	PID       int                               `json:"pid"`
	Version   string                            `json:"version"`
	StartedAt time.Time                         `json:"started_at"`
	Minimized bool                              `json:"minimized"`
	Snapshot  metrics.Snapshot                  `json:"snapshot"`
	Sessions  map[types.Kind]types.SessionState `json:"sessions"`
}

// ReclaimRequest asks the owner to start a session.
type ReclaimRequest struct {
	Kind types.Kind `json:"kind"`

	// Wait blocks until the session completes.
	Wait bool `json:"wait"`
}

// Handler is implemented by the owner. Shutdown only signals; the owner
// closes the Server after the call has returned.
type Handler interface {
	Activate(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Status(ctx context.Context) (Status, error)
	Reclaim(ctx context.Context, req ReclaimRequest) (types.SessionRecord, error)
}

// service is the handler type grpc checks registrations against.
type service interface {
	activate(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error)
	shutdown(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error)
	status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error)
	reclaim(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*service)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Activate", Handler: unary(MethodActivate, service.activate)},
		{MethodName: "Shutdown", Handler: unary(MethodShutdown, service.shutdown)},
		{MethodName: "Status", Handler: unary(MethodStatus, service.status)},
		{MethodName: "Reclaim", Handler: unary(MethodReclaim, service.reclaim)},
	},
	Metadata: "wintools/control/v1",
}

// unary builds a grpc method handler the way generated code does.
func unary[Req, Resp any, PReq interface {
	*Req
}](method string, call func(service, context.Context, PReq) (Resp, error)) grpc.MethodHandler {
	handle := func(srv any, ctx context.Context, req any) (any, error) {
		out, err := call(srv.(service), ctx, req.(PReq))
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return handle(srv, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return handle(srv, ctx, req)
		})
	}
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding %T: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// fromStruct fills v from s.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
