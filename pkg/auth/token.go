package auth

import (
	"errors"
	"fmt"
	"time"

	"referralpay/pkg/config"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var ErrInvalidToken = errors.New("auth: invalid token")

type claims struct {
	jwt.Claims
	Role Role `json:"role"`
}

// Tokens issues and verifies HS256 bearer tokens.
type Tokens struct {
	key    []byte
	issuer string
	ttl    time.Duration
	signer jose.Signer
	now    func() time.Time
}

func NewTokens(cfg *config.Config) (*Tokens, error) {
	if len(cfg.Auth.SigningKey) < 32 {
		return nil, errors.New("auth: signing key must be at least 32 bytes")
	}

	key := []byte(cfg.Auth.SigningKey)
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return nil, fmt.Errorf("auth: failed to create signer: %w", err)
	}

	ttl := cfg.Auth.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{key: key, issuer: cfg.Auth.Issuer, ttl: ttl, signer: signer, now: time.Now}, nil
}

func (t *Tokens) Issue(p Principal) (string, error) {
	now := t.now()
	c := claims{
		Claims: jwt.Claims{
			Subject:  p.UserID,
			Issuer:   t.issuer,
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Role: p.Role,
	}
	return jwt.Signed(t.signer).Claims(c).Serialize()
}

func (t *Tokens) Verify(raw string) (Principal, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var c claims
	if err := tok.Claims(t.key, &c); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := c.Claims.ValidateWithLeeway(jwt.Expected{Issuer: t.issuer, Time: t.now()}, time.Minute); err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject == "" || c.Role == RoleSystem {
		return Principal{}, ErrInvalidToken
	}
	return Principal{UserID: c.Subject, Role: c.Role}, nil
}
