package transport

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/med-material/HandStrengthener/internal/allocator"
	"github.com/med-material/HandStrengthener/internal/clock"
	"github.com/med-material/HandStrengthener/internal/events"
	"github.com/med-material/HandStrengthener/internal/session"
	"github.com/med-material/HandStrengthener/internal/trial"
)

// #region service
const (
	// ServiceName is the gRPC service name, also used for health checks.
	ServiceName = "trialcore.v1.SessionControl"

	methodSubmitInput = "/" + ServiceName + "/SubmitInput"
	methodCommand     = "/" + ServiceName + "/Command"
	methodSnapshot    = "/" + ServiceName + "/Snapshot"
	methodWatch       = "/" + ServiceName + "/Watch"
)

// Session is what the server drives. *session.Loop implements it.
type Session interface {
	Input(ctx context.Context, ev trial.InputEvent) error
	Do(ctx context.Context, fn func(*session.Controller) error) error
	Snapshot(ctx context.Context) (session.Snapshot, error)
}

// Server exposes a session over gRPC. Requests and replies are protobuf
// well-known types, so no generated code is needed.
type Server struct {
	sess   Session
	bus    *events.Bus
	health *health.Server
	log    *zap.Logger
	buffer int
	inputs *rate.Limiter // nil means unlimited
}

// NewServer wraps sess. bus may be nil, in which case Watch is unavailable.
func NewServer(sess Session, bus *events.Bus, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		sess:   sess,
		bus:    bus,
		health: health.NewServer(),
		log:    log,
		buffer: 256,
	}
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// LimitInputs caps SubmitInput at perSecond with the given burst. Calls over
// the limit fail with ResourceExhausted. perSecond <= 0 removes the limit.
// Call before serving.
func (s *Server) LimitInputs(perSecond float64, burst int) {
	if perSecond <= 0 {
		s.inputs = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	s.inputs = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Register installs the session service and the health service on gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
	healthpb.RegisterHealthServer(gs, s.health)
}

// Publish tracks session state for the health service. Install the server
// as an events.Sink.
func (s *Server) Publish(ev events.Event) {
	switch e := ev.(type) {
	case events.SessionStateChanged:
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if e.To == trial.Running || e.To == trial.Paused {
			st = healthpb.HealthCheckResponse_SERVING
		}
		s.health.SetServingStatus(ServiceName, st)
	case events.SessionEnded:
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// Shutdown marks every service NOT_SERVING.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitInput", Handler: structHandler(methodSubmitInput, (*Server).submitInput)},
		{MethodName: "Command", Handler: structHandler(methodCommand, (*Server).command)},
		{MethodName: "Snapshot", Handler: snapshotHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
}

// #endregion service

// #region handlers
type unaryHandler = func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error)

// structHandler adapts a Struct-in, Empty-out method to a grpc handler.
func structHandler(method string, call func(*Server, context.Context, *structpb.Struct) (*emptypb.Empty, error)) unaryHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(*Server)
		if interceptor == nil {
			return call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(s, ctx, req.(*structpb.Struct))
		})
	}
}

func snapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	s := srv.(*Server)
	if interceptor == nil {
		return s.snapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSnapshot}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return s.snapshot(ctx, req.(*emptypb.Empty))
	})
}

func watchHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(*Server).watch(stream)
}

func (s *Server) submitInput(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	if s.inputs != nil && !s.inputs.Allow() {
		return nil, status.Error(codes.ResourceExhausted, "input rate exceeded")
	}
	ev, err := InputFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if ev.Source == trial.SourceUnknown {
		ev.Source = trial.SourceRemote
	}
	if err := s.sess.Input(ctx, ev); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) command(ctx context.Context, in *structpb.Struct) (*emptypb.Empty, error) {
	fields := in.GetFields()
	var fn func(*session.Controller) error
	switch {
	case fields["command"] != nil:
		cmd, err := session.ParseCommand(fields["command"].GetStringValue())
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		fn = func(c *session.Controller) error { return c.Apply(cmd) }
	case fields["set_window_seconds"] != nil:
		v := fields["set_window_seconds"].GetNumberValue()
		fn = func(c *session.Controller) error { return c.SetWindowSeconds(v) }
	case fields["set_inter_trial_seconds"] != nil:
		v := fields["set_inter_trial_seconds"].GetNumberValue()
		fn = func(c *session.Controller) error { return c.SetInterTrialSeconds(v) }
	default:
		return nil, status.Error(codes.InvalidArgument, "command, set_window_seconds or set_inter_trial_seconds required")
	}
	if err := s.sess.Do(ctx, fn); err != nil {
		s.log.Warn("command refused", zap.Any("request", in.AsMap()), zap.Error(err))
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) snapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snap, err := s.sess.Snapshot(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := SnapshotToStruct(snap)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *Server) watch(stream grpc.ServerStream) error {
	if s.bus == nil {
		return status.Error(codes.Unimplemented, "event stream not configured")
	}
	ch, cancel := s.bus.Subscribe(s.buffer)
	defer cancel()
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.Kind() == events.KindTimersUpdated {
				continue
			}
			msg, err := events.ToStruct(ev)
			if err != nil {
				s.log.Error("encode event", zap.Error(err))
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// #endregion handlers

// #region status
// toStatus maps session errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case eris.Is(err, trial.ErrMalformedInput), eris.Is(err, allocator.ErrConfig),
		eris.Is(err, clock.ErrInvalidDuration):
		return status.Error(codes.InvalidArgument, err.Error())
	case eris.Is(err, session.ErrAlreadyRunning), eris.Is(err, session.ErrNotRunning),
		eris.Is(err, session.ErrSessionFinished):
		return status.Error(codes.FailedPrecondition, err.Error())
	case eris.Is(err, session.ErrLoopClosed):
		return status.Error(codes.Unavailable, err.Error())
	case eris.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case eris.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// #endregion status
