package grpcserver

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"

	messagev1 "github.com/rzbill/courier/api/message/v1"
	messagesvc "github.com/rzbill/courier/internal/services/messages"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// Server owns the gRPC server instance.
type Server struct {
	svc  *messagesvc.Service
	grpc *grpc.Server
	lis  net.Listener
}

// New constructs a gRPC server and registers the MessageApi and health
// services. Extra options are appended after the codec and interceptors.
func New(svc *messagesvc.Service, logger logpkg.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = logpkg.GetDefaultLogger()
	}
	logger = logger.WithComponent("grpc")
	base := []grpc.ServerOption{
		grpc.ForceServerCodec(messagev1.Codec{}),
		grpc.ChainUnaryInterceptor(unaryInterceptor(logger)),
		grpc.ChainStreamInterceptor(streamInterceptor(logger)),
	}
	s := &Server{svc: svc, grpc: grpc.NewServer(append(base, opts...)...)}
	grpc_health_v1.RegisterHealthServer(s.grpc, &healthSvc{svc: svc})
	messagev1.RegisterMessageApiServer(s.grpc, &messageAPI{svc: svc})
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
