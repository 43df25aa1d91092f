package middleware

import (
	"context"

	"referralpay/pkg/errutil"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// ErrorInterceptor renders domain errors as gRPC statuses.
func ErrorInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			if be, ok := errutil.As(err); !ok || be.Code == errutil.StatusInternal {
				zap.L().Error("[gRPC] request failed", zap.String("method", info.FullMethod), zap.Error(err))
			}
			return resp, errutil.ToGRPCError(err)
		}
		return resp, nil
	}
}

func StreamErrorInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return errutil.ToGRPCError(handler(srv, ss))
	}
}
