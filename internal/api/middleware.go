package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/talos-license/talos/internal/auth"
	"github.com/talos-license/talos/internal/licensing"
	"github.com/talos-license/talos/internal/logging"
)

var (
	errMissingToken  = licensing.E(auth.CodeMissingToken, "authorization header is required")
	errInvalidHeader = licensing.E(auth.CodeInvalidHeader, "authorization header must be Bearer <token>")
)

type principalKey struct{}

// Principal identifies the authenticated caller of an admin request.
type Principal struct {
	Subject string
	Scopes  []string
}

// PrincipalFrom returns the authenticated principal, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}

// Authenticator resolves bearer credentials on admin requests. Both
// long-lived API tokens (tl_ prefix) and short-lived JWTs are accepted.
type Authenticator struct {
	Enabled bool
	Tokens  *auth.Tokens
	JWT     *auth.JWT
}

// RequireScope authenticates the request and verifies the caller holds
// the required scope before invoking next.
func (a *Authenticator) RequireScope(scope string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled {
			writeCode(w, auth.CodeAuthDisabled, "authentication is disabled; admin surface unavailable")
			return
		}

		raw, err := bearerToken(r)
		if err != nil {
			writeError(w, err)
			return
		}

		principal, err := a.resolve(r.Context(), raw)
		if err != nil {
			writeError(w, err)
			return
		}
		if !auth.HasScope(principal.Scopes, scope) {
			writeCode(w, auth.CodeInsufficientScope, "token does not grant "+scope)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, principal)))
	})
}

// resolve accepts either credential form. JWTs are recognized by their
// three-part shape; anything else (tl_ tokens, bootstrap values) is
// looked up as an API token.
func (a *Authenticator) resolve(ctx context.Context, raw string) (*Principal, error) {
	if !strings.HasPrefix(raw, "tl_") && strings.Count(raw, ".") == 2 {
		claims, err := a.JWT.Validate(raw)
		if err != nil {
			return nil, err
		}
		return &Principal{Subject: claims.Subject, Scopes: claims.Scopes}, nil
	}
	token, err := a.Tokens.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	return &Principal{Subject: token.Name, Scopes: token.Scopes}, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errInvalidHeader
	}
	return strings.TrimSpace(parts[1]), nil
}

// RequestLogger logs one structured line per request with duration and
// propagates a request ID.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, requestID := logging.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Str("request_id", requestID).
			Str("remote_ip", clientIP(r)).
			Msg("Request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
