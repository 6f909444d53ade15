package grpcserver

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"

	logpkg "github.com/rzbill/courier/pkg/log"
)

const requestIDHeader = "x-request-id"

// requestID returns the caller's x-request-id or a fresh uuid.
func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(requestIDHeader); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return uuid.NewString()
}

func withRequest(ctx context.Context, method string) (context.Context, string) {
	id := requestID(ctx)
	ctx = logpkg.ContextWithRequestID(ctx, id)
	ctx = logpkg.ContextWithOperation(ctx, method)
	return ctx, id
}

func logCall(ctx context.Context, logger logpkg.Logger, start time.Time, err error) {
	l := logger.WithContext(ctx)
	code := codeOf(err)
	fields := []logpkg.Field{logpkg.Str("code", code.String()), logpkg.Dur("took", time.Since(start))}
	// Canceled is how a client normally ends a stream.
	if err != nil && code != codes.Canceled {
		l.Warn("grpc.call failed", append(fields, logpkg.Err(err))...)
		return
	}
	l.Debug("grpc.call", fields...)
}

func unaryInterceptor(logger logpkg.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, id := withRequest(ctx, info.FullMethod)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, id))
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(ctx, logger, start, err)
		return resp, err
	}
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }

func streamInterceptor(logger logpkg.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, id := withRequest(ss.Context(), info.FullMethod)
		_ = ss.SetHeader(metadata.Pairs(requestIDHeader, id))
		start := time.Now()
		err := handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
		logCall(ctx, logger, start, err)
		return err
	}
}
