package control

import (
	"context"
	"errors"
	"fmt"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jamesainslie/wintools/pkg/wintools/session"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

// ErrNoOwner is returned when no owner is listening.
var ErrNoOwner = errors.New("no running wintools instance")

// Client talks to the owner.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the socket at path. The connection is established
// lazily; ErrNoOwner is returned early when the socket does not exist.
func Dial(path string) (*Client, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoOwner, path)
	}
	conn, err := grpc.NewClient("unix://"+path, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Activate asks the owner to show its dashboard.
func (c *Client) Activate(ctx context.Context) error {
	return fromStatus(c.conn.Invoke(ctx, MethodActivate, &emptypb.Empty{}, &emptypb.Empty{}))
}

// Shutdown asks the owner to exit.
func (c *Client) Shutdown(ctx context.Context) error {
	return fromStatus(c.conn.Invoke(ctx, MethodShutdown, &emptypb.Empty{}, &emptypb.Empty{}))
}

// Status fetches the owner's status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, MethodStatus, &emptypb.Empty{}, out); err != nil {
		return st, fromStatus(err)
	}
	if err := fromStruct(out, &st); err != nil {
		return st, fmt.Errorf("decoding status: %w", err)
	}
	return st, nil
}

// Reclaim starts a session in the owner.
func (c *Client) Reclaim(ctx context.Context, kind types.Kind, wait bool) (types.SessionRecord, error) {
	var rec types.SessionRecord
	in, err := toStruct(ReclaimRequest{Kind: kind, Wait: wait})
	if err != nil {
		return rec, err
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, MethodReclaim, in, out); err != nil {
		return rec, fromStatus(err)
	}
	if err := fromStruct(out, &rec); err != nil {
		return rec, fmt.Errorf("decoding session record: %w", err)
	}
	return rec, nil
}

// fromStatus restores the sentinel errors toStatus encoded.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Aborted:
		return fmt.Errorf("%w: %s", session.ErrBusy, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", types.ErrUnknownKind, st.Message())
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", ErrNoOwner, st.Message())
	}
	return err
}

// Remote dials on every call. It satisfies instance.Remote, so the guard
// can reach an owner that may or may not be listening.
type Remote struct {
	SocketPath string
}

func (r Remote) Activate(ctx context.Context) error {
	return r.with(func(c *Client) error { return c.Activate(ctx) })
}

func (r Remote) Shutdown(ctx context.Context) error {
	return r.with(func(c *Client) error { return c.Shutdown(ctx) })
}

// OwnerPID reports the pid of the listening owner.
func (r Remote) OwnerPID(ctx context.Context) (int32, error) {
	var pid int32
	err := r.with(func(c *Client) error {
		st, err := c.Status(ctx)
		pid = int32(st.PID)
		return err
	})
	return pid, err
}

func (r Remote) with(fn func(*Client) error) error {
	c, err := Dial(r.SocketPath)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}
