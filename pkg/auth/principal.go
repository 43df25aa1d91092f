package auth

import "context"

type Role string

const (
	RoleUser   Role = "user"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// Principal is the identity a request or background job acts as.
type Principal struct {
	UserID string
	Role   Role
}

// SystemPrincipal is used by workers acting on provider notifications.
var SystemPrincipal = Principal{UserID: "system", Role: RoleSystem}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != ""
}
