package grpcserver

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rzbill/courier/internal/envelope"
)

// codeOf maps a core error onto a gRPC code.
func codeOf(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, envelope.ErrInvalidArgument):
		return codes.InvalidArgument
	case errors.Is(err, envelope.ErrBackpressureExceeded):
		return codes.ResourceExhausted
	case errors.Is(err, envelope.ErrStorageFailure), errors.Is(err, envelope.ErrUnavailable):
		return codes.Unavailable
	case errors.Is(err, envelope.ErrSubscriptionClosed), errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	return codes.Internal
}

// toStatus converts err into a gRPC status error, leaving nil and existing
// status errors untouched.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}
