package errutil

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var grpcCodes = map[CoreStatus]codes.Code{
	StatusBadRequest:           codes.InvalidArgument,
	StatusValidationFailed:     codes.InvalidArgument,
	StatusPayloadTooLarge:      codes.InvalidArgument,
	StatusUnsupportedMediaType: codes.InvalidArgument,
	StatusUnauthorized:         codes.Unauthenticated,
	StatusForbidden:            codes.PermissionDenied,
	StatusNotFound:             codes.NotFound,
	StatusConflict:             codes.Aborted,
	StatusUnprocessableEntity:  codes.FailedPrecondition,
	StatusMethodNotAllowed:     codes.Unimplemented,
	StatusNotImplemented:       codes.Unimplemented,
	StatusTooManyRequests:      codes.ResourceExhausted,
	StatusClientClosedRequest:  codes.Canceled,
	StatusBadGateway:           codes.Unavailable,
	StatusServiceUnavailable:   codes.Unavailable,
	StatusGatewayTimeout:       codes.DeadlineExceeded,
	StatusTimeout:              codes.DeadlineExceeded,
	StatusInternal:             codes.Internal,
}

func (s CoreStatus) GRPCCode() codes.Code {
	if c, ok := grpcCodes[s]; ok {
		return c
	}
	return codes.Unknown
}

// ToGRPCError converts err into a status error. Only the public message of a
// BaseError reaches the client; internal causes stay in the logs.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}

	if be, ok := As(err); ok {
		return status.Error(be.Code.GRPCCode(), be.Message)
	}
	return status.Error(codes.Internal, "internal error")
}
