package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"referralpay/pkg/config"

	"github.com/stretchr/testify/require"
)

func newTestTokens(t *testing.T) *Tokens {
	t.Helper()
	cfg := &config.Config{}
	cfg.Auth.SigningKey = strings.Repeat("k", 32)
	cfg.Auth.Issuer = "referralpay"
	cfg.Auth.TokenTTL = time.Hour

	tokens, err := NewTokens(cfg)
	require.NoError(t, err)
	return tokens
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := newTestTokens(t)

	raw, err := tokens.Issue(Principal{UserID: "42", Role: RoleAdmin})
	require.NoError(t, err)

	p, err := tokens.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, Principal{UserID: "42", Role: RoleAdmin}, p)
}

func TestTokenExpired(t *testing.T) {
	tokens := newTestTokens(t)
	raw, err := tokens.Issue(Principal{UserID: "42", Role: RoleUser})
	require.NoError(t, err)

	tokens.now = func() time.Time { return time.Now().Add(3 * time.Hour) }
	_, err = tokens.Verify(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenWrongKey(t *testing.T) {
	raw, err := newTestTokens(t).Issue(Principal{UserID: "42", Role: RoleUser})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Auth.SigningKey = strings.Repeat("x", 32)
	cfg.Auth.Issuer = "referralpay"
	other, err := NewTokens(cfg)
	require.NoError(t, err)

	_, err = other.Verify(raw)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = other.Verify("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSystemPrincipalCannotBeIssuedToClients(t *testing.T) {
	tokens := newTestTokens(t)
	raw, err := tokens.Issue(SystemPrincipal)
	require.NoError(t, err)

	_, err = tokens.Verify(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestShortSigningKey(t *testing.T) {
	cfg := &config.Config{}
	cfg.Auth.SigningKey = "short"
	_, err := NewTokens(cfg)
	require.Error(t, err)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	require.True(t, CheckPassword(hash, "s3cret"))
	require.False(t, CheckPassword(hash, "wrong"))
}

func TestPrincipalContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{UserID: "7", Role: RoleUser})
	p, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "7", p.UserID)
}
