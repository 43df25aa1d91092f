package middleware

import (
	"context"
	"strings"

	"referralpay/pkg/auth"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// PrincipalInterceptor attaches the caller's principal to the context when
// the request carries a valid bearer token. Anonymous calls pass through.
func PrincipalInterceptor(tokens *auth.Tokens) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return handler(ctx, req)
		}

		values := md.Get("authorization")
		if len(values) == 0 {
			return handler(ctx, req)
		}

		if p, err := tokens.Verify(bearer(values[0])); err == nil {
			ctx = auth.WithPrincipal(ctx, p)
		}
		return handler(ctx, req)
	}
}

func bearer(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
