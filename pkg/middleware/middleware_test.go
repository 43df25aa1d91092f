package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"referralpay/pkg/auth"
	"referralpay/pkg/config"
	"referralpay/pkg/policy"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newAuthenticator(t *testing.T) (*Authenticator, *auth.Tokens) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Auth.SigningKey = strings.Repeat("k", 32)
	cfg.Auth.TokenTTL = time.Hour

	tokens, err := auth.NewTokens(cfg)
	require.NoError(t, err)
	p, err := policy.New(cfg)
	require.NoError(t, err)
	return NewAuthenticator(tokens, p), tokens
}

func call(a *Authenticator, method, path, token string) (int, auth.Principal) {
	var seen auth.Principal
	h := a.Wrap(func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
		seen, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	h(rec, req, nil)
	return rec.Code, seen
}

func TestAuthenticator(t *testing.T) {
	a, tokens := newAuthenticator(t)

	userToken, err := tokens.Issue(auth.Principal{UserID: "1", Role: auth.RoleUser})
	require.NoError(t, err)
	adminToken, err := tokens.Issue(auth.Principal{UserID: "2", Role: auth.RoleAdmin})
	require.NoError(t, err)

	code, _ := call(a, http.MethodGet, "/v1/me", "")
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = call(a, http.MethodGet, "/v1/me", "bogus")
	require.Equal(t, http.StatusUnauthorized, code)

	code, p := call(a, http.MethodGet, "/v1/me", userToken)
	require.Equal(t, http.StatusNoContent, code)
	require.Equal(t, "1", p.UserID)

	code, _ = call(a, http.MethodGet, "/v1/admin/users", userToken)
	require.Equal(t, http.StatusForbidden, code)

	code, p = call(a, http.MethodGet, "/v1/admin/users", adminToken)
	require.Equal(t, http.StatusNoContent, code)
	require.Equal(t, auth.RoleAdmin, p.Role)
}

func TestRecover(t *testing.T) {
	h := Recover(func(http.ResponseWriter, *http.Request, map[string]string) {
		panic("boom")
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBearer(t *testing.T) {
	require.Equal(t, "abc", bearer("Bearer abc"))
	require.Equal(t, "abc", bearer("bearer abc"))
	require.Empty(t, bearer("Basic abc"))
	require.Empty(t, bearer(""))
}
