package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/talos-license/talos/internal/licensing"
)

// Claims are the bearer-token payload: registered claims plus the granted
// scopes.
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// JWTConfig drives bearer-token issuance and validation.
type JWTConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	Expiration time.Duration
}

// JWT issues and validates short-lived HS256 bearer tokens.
type JWT struct {
	cfg JWTConfig
	now func() time.Time
}

// NewJWT builds a bearer-token manager.
func NewJWT(cfg JWTConfig) *JWT {
	if cfg.Expiration <= 0 {
		cfg.Expiration = time.Hour
	}
	return &JWT{cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the manager clock. Test hook.
func (j *JWT) WithClock(now func() time.Time) *JWT {
	j.now = now
	return j
}

// Issue signs a bearer token for the subject carrying the given scopes.
func (j *JWT) Issue(subject string, scopes []string) (string, time.Time, error) {
	now := j.now()
	expiresAt := now.Add(j.cfg.Expiration)

	claims := Claims{
		Scopes: append([]string(nil), scopes...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    j.cfg.Issuer,
			Audience:  jwt.ClaimStrings{j.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(j.cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate checks signature, issuer, audience, and expiry, and returns
// the claims. Every request re-validates; there is no session cache.
func (j *JWT) Validate(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(token *jwt.Token) (any, error) {
			return []byte(j.cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.cfg.Issuer),
		jwt.WithAudience(j.cfg.Audience),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, licensing.E(CodeTokenExpired, "bearer token has expired")
		}
		return nil, licensing.E(CodeInvalidToken, "bearer token is not valid")
	}
	return claims, nil
}
