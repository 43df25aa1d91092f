package middleware

import (
	"errors"
	"net/http"

	"referralpay/pkg/auth"
	"referralpay/pkg/errutil"
	"referralpay/pkg/policy"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"go.uber.org/zap"
)

// Authenticator guards HTTP handlers with bearer tokens and the access
// policy.
type Authenticator struct {
	tokens *auth.Tokens
	policy policy.Policy
}

func NewAuthenticator(tokens *auth.Tokens, p policy.Policy) *Authenticator {
	return &Authenticator{tokens: tokens, policy: p}
}

func (a *Authenticator) Wrap(next runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		raw := bearer(r.Header.Get("Authorization"))
		if raw == "" {
			errutil.WriteHTTP(w, errutil.Unauthorized("missing bearer token", nil))
			return
		}

		p, err := a.tokens.Verify(raw)
		if err != nil {
			errutil.WriteHTTP(w, errutil.Unauthorized("invalid bearer token", err))
			return
		}

		allowed, err := a.policy.Allow(p, r.URL.Path, r.Method)
		if err != nil {
			zap.L().Error("[Auth] policy evaluation failed", zap.Error(err))
			errutil.WriteHTTP(w, errutil.Internal("policy evaluation failed", err))
			return
		}
		if !allowed {
			errutil.WriteHTTP(w, errutil.Forbidden("not allowed", errors.New(string(p.Role))))
			return
		}

		next(w, r.WithContext(auth.WithPrincipal(r.Context(), p)), params)
	}
}

// Recover turns a panicking handler into a 500.
func Recover(next runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		defer func() {
			if v := recover(); v != nil {
				zap.L().Error("[HTTP] handler panicked", zap.Any("panic", v), zap.String("path", r.URL.Path))
				errutil.WriteHTTP(w, errors.New("panic"))
			}
		}()
		next(w, r, params)
	}
}
