// Package api exposes the HTTP surface: unauthenticated, rate-limited
// client endpoints and bearer-authenticated admin endpoints, all JSON.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talos-license/talos/internal/auth"
	"github.com/talos-license/talos/internal/config"
	"github.com/talos-license/talos/internal/licensing"
	"github.com/talos-license/talos/internal/store"
)

// Deps holds shared dependencies injected into HTTP handlers.
type Deps struct {
	Config   *config.Config
	Store    store.Store
	Engine   *licensing.Service
	Auth     *Authenticator
	Limiters *Limiters
	Version  string
}

// RegisterRoutes wires all HTTP handlers onto the given ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	limiters := deps.Limiters
	if limiters == nil {
		rl := deps.Config.RateLimit
		limiters = NewLimiters(rl.ValidateRPM, rl.HeartbeatRPM, rl.BindRPM, rl.Burst)
	}

	// Health / readiness are unauthenticated liveness/readiness probes.
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(deps.Store))
	mux.Handle("GET /metrics", promhttp.Handler())

	// Client endpoints: no credential, per-IP rate limited.
	mux.Handle("POST /api/v1/client/bind", limiters.Bind.Middleware(handleBind(deps.Engine)))
	mux.Handle("POST /api/v1/client/release", limiters.Bind.Middleware(handleRelease(deps.Engine)))
	mux.Handle("POST /api/v1/client/validate", limiters.Validate.Middleware(handleValidate(deps.Engine)))
	mux.Handle("POST /api/v1/client/validate-or-bind", limiters.Bind.Middleware(handleValidateOrBind(deps.Engine)))
	mux.Handle("POST /api/v1/client/heartbeat", limiters.Heartbeat.Middleware(handleHeartbeat(deps.Engine)))
	mux.Handle("POST /api/v1/client/validate-feature", limiters.Validate.Middleware(handleValidateFeature(deps.Engine)))

	// Admin license endpoints.
	read := func(h http.HandlerFunc) http.Handler { return deps.Auth.RequireScope(auth.ScopeLicensesRead, h) }
	write := func(h http.HandlerFunc) http.Handler { return deps.Auth.RequireScope(auth.ScopeLicensesWrite, h) }

	mux.Handle("POST /api/v1/licenses", write(handleCreateLicense(deps.Engine)))
	mux.Handle("POST /api/v1/licenses/batch", write(handleBatchCreate(deps.Engine)))
	mux.Handle("GET /api/v1/licenses", read(handleListLicenses(deps.Engine)))
	mux.Handle("GET /api/v1/licenses/{id}", read(handleGetLicense(deps.Engine)))
	mux.Handle("GET /api/v1/licenses/{id}/history", read(handleLicenseHistory(deps.Engine)))
	mux.Handle("PATCH /api/v1/licenses/{id}", write(handleUpdateLicense(deps.Engine)))
	mux.Handle("POST /api/v1/licenses/{id}/{action}", write(handleLicenseAction(deps.Engine)))

	// Token management.
	tokensRead := func(h http.HandlerFunc) http.Handler { return deps.Auth.RequireScope(auth.ScopeTokensRead, h) }
	tokensWrite := func(h http.HandlerFunc) http.Handler { return deps.Auth.RequireScope(auth.ScopeTokensWrite, h) }

	mux.Handle("POST /api/v1/tokens", tokensWrite(handleCreateToken(deps.Store)))
	mux.Handle("GET /api/v1/tokens", tokensRead(handleListTokens(deps.Store)))
	mux.Handle("GET /api/v1/tokens/{id}", tokensRead(handleGetToken(deps.Store)))
	mux.Handle("POST /api/v1/tokens/{id}/revoke", tokensWrite(handleRevokeToken(deps.Store)))

	// Bearer JWT exchange: any valid credential may trade for a JWT
	// carrying its own scopes.
	mux.Handle("POST /api/v1/auth/token", deps.Auth.RequireScope("", handleIssueJWT(deps.Auth.JWT)))
}

// Handler builds the fully wired HTTP handler, including the request
// logging middleware.
func Handler(deps *Deps) http.Handler {
	mux := http.NewServeMux()
	RegisterRoutes(mux, deps)
	return RequestLogger(mux)
}
