// Package auth implements the admin authentication layer: long-lived API
// tokens stored as SHA-256 hashes, short-lived HS256 bearer tokens, and
// the scope grammar shared by both.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/talos-license/talos/internal/licensing"
	"github.com/talos-license/talos/internal/store"
)

// Canonical scope strings.
const (
	ScopeWildcard      = "*"
	ScopeLicensesRead  = "licenses:read"
	ScopeLicensesWrite = "licenses:write"
	ScopeTokensRead    = "tokens:read"
	ScopeTokensWrite   = "tokens:write"
)

// Auth failure kinds, rendered through the shared error envelope.
const (
	CodeMissingToken      licensing.Code = "MISSING_TOKEN"
	CodeInvalidHeader     licensing.Code = "INVALID_HEADER"
	CodeInvalidToken      licensing.Code = "INVALID_TOKEN"
	CodeTokenExpired      licensing.Code = "TOKEN_EXPIRED"
	CodeInsufficientScope licensing.Code = "INSUFFICIENT_SCOPE"
	CodeAuthDisabled      licensing.Code = "AUTH_DISABLED"
)

const rawTokenPrefix = "tl_"

// HashToken returns the SHA-256 hex digest of a raw token value. Only
// this digest is ever persisted.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// CompareTokenHash reports whether a raw token matches a stored hash in
// constant time.
func CompareTokenHash(raw, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(raw)), []byte(hash)) == 1
}

// GenerateToken mints a raw token value: a recognizable prefix over 32
// random bytes, hex encoded.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return rawTokenPrefix + hex.EncodeToString(buf), nil
}

// NewTokenRecord builds a store row from a raw token. The raw value is
// returned to the caller exactly once; the record keeps only the hash
// plus short prefix/suffix hints for display.
func NewTokenRecord(name, raw string, scopes []string, expiresAt *time.Time, createdBy string, now time.Time) *store.APIToken {
	if len(scopes) == 0 {
		scopes = []string{ScopeWildcard}
	}
	return &store.APIToken{
		ID:        uuid.NewString(),
		Name:      name,
		Hash:      HashToken(raw),
		Prefix:    tokenPrefix(raw),
		Suffix:    tokenSuffix(raw),
		Scopes:    append([]string(nil), scopes...),
		CreatedAt: now.UTC(),
		ExpiresAt: expiresAt,
		CreatedBy: createdBy,
	}
}

func tokenPrefix(raw string) string {
	if len(raw) <= 6 {
		return raw
	}
	return raw[:6]
}

func tokenSuffix(raw string) string {
	if len(raw) <= 4 {
		return ""
	}
	return raw[len(raw)-4:]
}

// Tokens validates presented API tokens against the store.
type Tokens struct {
	store store.Store
	now   func() time.Time
}

// NewTokens builds a token validator over the store.
func NewTokens(st store.Store) *Tokens {
	return &Tokens{store: st, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the validator clock. Test hook.
func (t *Tokens) WithClock(now func() time.Time) *Tokens {
	t.now = now
	return t
}

// Validate hashes the presented value, looks up the row, and verifies it
// is neither revoked nor expired. The last-used timestamp is refreshed
// best-effort.
func (t *Tokens) Validate(ctx context.Context, raw string) (*store.APIToken, error) {
	if raw == "" {
		return nil, licensing.E(CodeMissingToken, "no token provided")
	}

	token, err := t.store.GetAPITokenByHash(ctx, HashToken(raw))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, licensing.E(CodeInvalidToken, "token not recognized")
		}
		return nil, licensing.E(licensing.CodeDatabaseError, "token lookup failed")
	}

	now := t.now()
	if token.Revoked() {
		return nil, licensing.E(CodeInvalidToken, "token has been revoked")
	}
	if token.Expired(now) {
		return nil, licensing.E(CodeTokenExpired, "token has expired")
	}

	if err := t.store.UpdateTokenLastUsed(ctx, token.ID, now); err != nil {
		log.Warn().Err(err).Str("token_id", token.ID).Msg("Unable to update token last used timestamp")
	}
	return token, nil
}
