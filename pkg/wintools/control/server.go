package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jamesainslie/wintools/pkg/wintools/logging"
	"github.com/jamesainslie/wintools/pkg/wintools/session"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// Server exposes a Handler on a Unix socket.
type Server struct {
	handler  Handler
	path     string
	grpc     *grpc.Server
	listener net.Listener
	log      *logging.Logger
}

// Listen creates the socket at path and registers h. Only the instance
// owner may call it; a stale socket left by a crashed owner is replaced.
func Listen(path string, h Handler) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}

	s := &Server{
		handler:  h,
		path:     path,
		grpc:     grpc.NewServer(),
		listener: listener,
		log:      logging.Get(logging.ComponentControl),
	}
	s.grpc.RegisterService(&serviceDesc, s)
	return s, nil
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Serve blocks until Close.
func (s *Server) Serve() error {
	s.log.Info("control channel listening", "socket", s.path)
	err := s.grpc.Serve(s.listener)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Close stops the server and removes the socket.
func (s *Server) Close() error {
	s.grpc.GracefulStop()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Server) activate(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.log.Debug("activate requested")
	if err := s.handler.Activate(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) shutdown(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.log.Info("shutdown requested over control channel")
	if err := s.handler.Shutdown(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := s.handler.Status(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := toStruct(st)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *Server) reclaim(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ReclaimRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	kind, err := types.ParseKind(string(req.Kind))
	if err != nil {
		return nil, toStatus(err)
	}
	req.Kind = kind

	s.log.Info("reclaim requested over control channel", "kind", kind, "wait", req.Wait)
	rec, err := s.handler.Reclaim(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := toStruct(rec)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// toStatus maps domain errors to grpc codes so the client can map them
// back.
func toStatus(err error) error {
	switch {
	case errors.Is(err, session.ErrBusy):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, types.ErrUnknownKind):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Unknown, err.Error())
}
