package transport

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/med-material/HandStrengthener/internal/session"
	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region client-struct
// Client talks to a SessionControl server.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects to addr without transport security.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, eris.Wrapf(err, "grpc dial %s", addr)
	}
	return &Client{conn: conn}, nil
}

// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// #endregion client-struct

// #region calls
// SubmitInput delivers one input event.
func (c *Client) SubmitInput(ctx context.Context, ev trial.InputEvent) error {
	req, err := InputToStruct(ev)
	if err != nil {
		return eris.Wrap(err, "encode input")
	}
	return c.conn.Invoke(ctx, methodSubmitInput, req, &emptypb.Empty{})
}

// Command sends an operator command.
func (c *Client) Command(ctx context.Context, cmd session.Command) error {
	req, err := structpb.NewStruct(map[string]interface{}{"command": string(cmd)})
	if err != nil {
		return err
	}
	return c.conn.Invoke(ctx, methodCommand, req, &emptypb.Empty{})
}

// SetWindowSeconds changes the length of future windows.
func (c *Client) SetWindowSeconds(ctx context.Context, s float64) error {
	req, err := structpb.NewStruct(map[string]interface{}{"set_window_seconds": s})
	if err != nil {
		return err
	}
	return c.conn.Invoke(ctx, methodCommand, req, &emptypb.Empty{})
}

// SetInterTrialSeconds changes the gap of future inter-trial phases.
func (c *Client) SetInterTrialSeconds(ctx context.Context, s float64) error {
	req, err := structpb.NewStruct(map[string]interface{}{"set_inter_trial_seconds": s})
	if err != nil {
		return err
	}
	return c.conn.Invoke(ctx, methodCommand, req, &emptypb.Empty{})
}

// Snapshot returns the session snapshot as a plain map.
func (c *Client) Snapshot(ctx context.Context) (map[string]interface{}, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodSnapshot, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Watch streams session events to fn until the stream ends, ctx is done or
// fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(map[string]interface{}) error) error {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], methodWatch)
	if err != nil {
		return eris.Wrap(err, "open watch")
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return eris.Wrap(err, "send watch request")
	}
	if err := stream.CloseSend(); err != nil {
		return eris.Wrap(err, "close send")
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := fn(msg.AsMap()); err != nil {
			return err
		}
	}
}

// Health reports the server's serving status for the session service.
func (c *Client) Health(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// #endregion calls
