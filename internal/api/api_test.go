package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talos-license/talos/internal/auth"
	"github.com/talos-license/talos/internal/config"
	"github.com/talos-license/talos/internal/licensing"
	"github.com/talos-license/talos/internal/store"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	server *httptest.Server
	store  *store.MemoryStore
	engine *licensing.Service
	admin  string // raw wildcard-scope API token
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMemoryStore()
	engine := licensing.NewService(st, licensing.Config{
		Tiers: config.DefaultTiers(),
	}).WithClock(func() time.Time { return testNow })

	raw, err := auth.GenerateToken()
	require.NoError(t, err)
	record := auth.NewTokenRecord("test-admin", raw, []string{auth.ScopeWildcard}, nil, "test", testNow)
	require.NoError(t, st.CreateAPIToken(context.Background(), record))

	deps := &Deps{
		Config: &config.Config{
			RateLimit: config.RateLimit{ValidateRPM: 6000, HeartbeatRPM: 6000, BindRPM: 6000, Burst: 100},
		},
		Store:  st,
		Engine: engine,
		Auth: &Authenticator{
			Enabled: true,
			Tokens:  auth.NewTokens(st).WithClock(func() time.Time { return testNow }),
			JWT:     auth.NewJWT(auth.JWTConfig{Secret: "test-secret", Issuer: "talosd", Audience: "talos-admin"}),
		},
		Version: "test",
	}

	server := httptest.NewServer(Handler(deps))
	t.Cleanup(server.Close)

	return &testEnv{server: server, store: st, engine: engine, admin: raw}
}

func (env *testEnv) request(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, env.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		decoded = nil
	}
	return resp, decoded
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	envelope, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %v", body)
	code, _ := envelope["code"].(string)
	return code
}

func (env *testEnv) createLicense(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	resp, decoded := env.request(t, http.MethodPost, "/api/v1/licenses", env.admin, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decoded
}

func TestHappyPath(t *testing.T) {
	env := newTestEnv(t)

	lic := env.createLicense(t, map[string]any{
		"org_id":     "org-1",
		"features":   []string{"basic", "export"},
		"expires_at": "2099-01-01T00:00:00Z",
	})
	key := lic["license_key"].(string)

	resp, body := env.request(t, http.MethodPost, "/api/v1/client/bind", "", map[string]any{
		"license_key": key,
		"hardware_id": "HW-A",
		"device_name": "workstation",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, lic["license_id"], body["license_id"])

	resp, body = env.request(t, http.MethodPost, "/api/v1/client/validate", "", map[string]any{
		"license_key": key,
		"hardware_id": "HW-A",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])

	resp, body = env.request(t, http.MethodPost, "/api/v1/client/validate-feature", "", map[string]any{
		"license_key": key,
		"hardware_id": "HW-A",
		"feature":     "export",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["allowed"])

	resp, body = env.request(t, http.MethodPost, "/api/v1/client/validate-feature", "", map[string]any{
		"license_key": key,
		"hardware_id": "HW-A",
		"feature":     "admin",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["allowed"])
}

func TestHardwareMismatchForbidden(t *testing.T) {
	env := newTestEnv(t)

	lic := env.createLicense(t, map[string]any{"org_id": "org-1"})
	key := lic["license_key"].(string)

	resp, _ := env.request(t, http.MethodPost, "/api/v1/client/bind", "", map[string]any{
		"license_key": key,
		"hardware_id": "HW-A",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.request(t, http.MethodPost, "/api/v1/client/validate", "", map[string]any{
		"license_key": key,
		"hardware_id": "HW-B",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "HARDWARE_MISMATCH", errorCode(t, body))

	// A second bind from a different device conflicts.
	resp, body = env.request(t, http.MethodPost, "/api/v1/client/bind", "", map[string]any{
		"license_key": key,
		"hardware_id": "HW-B",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "ALREADY_BOUND", errorCode(t, body))
}

func TestBatchBounds(t *testing.T) {
	env := newTestEnv(t)

	for _, count := range []int{0, 1001} {
		resp, body := env.request(t, http.MethodPost, "/api/v1/licenses/batch", env.admin, map[string]any{
			"org_id": "org-1",
			"count":  count,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_REQUEST", errorCode(t, body))
	}

	resp, body := env.request(t, http.MethodPost, "/api/v1/licenses/batch", env.admin, map[string]any{
		"org_id": "org-1",
		"count":  3,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(3), body["count"])
}

func TestScopeEnforcement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	readRaw, err := auth.GenerateToken()
	require.NoError(t, err)
	readOnly := auth.NewTokenRecord("read-only", readRaw, []string{auth.ScopeLicensesRead}, nil, "test", testNow)
	require.NoError(t, env.store.CreateAPIToken(ctx, readOnly))

	lic := env.createLicense(t, map[string]any{"org_id": "org-1"})
	id := lic["license_id"].(string)

	resp, _ := env.request(t, http.MethodGet, "/api/v1/licenses/"+id, readRaw, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := env.request(t, http.MethodPatch, "/api/v1/licenses/"+id, readRaw, map[string]any{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_SCOPE", errorCode(t, body))

	// After revocation both requests fail with INVALID_TOKEN.
	require.NoError(t, env.store.RevokeAPIToken(ctx, readOnly.ID, testNow))
	resp, body = env.request(t, http.MethodGet, "/api/v1/licenses/"+id, readRaw, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", errorCode(t, body))
	resp, body = env.request(t, http.MethodPatch, "/api/v1/licenses/"+id, readRaw, map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", errorCode(t, body))
}

func TestMissingAndMalformedAuth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodGet, "/api/v1/licenses", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "MISSING_TOKEN", errorCode(t, body))

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/licenses", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Token abc")
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, raw.StatusCode)
}

func TestJWTExchange(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodPost, "/api/v1/auth/token", env.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	jwtToken, _ := body["token"].(string)
	require.NotEmpty(t, jwtToken)

	// The JWT carries the API token's scopes and works on its own.
	resp, _ = env.request(t, http.MethodGet, "/api/v1/licenses", jwtToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthDisabled(t *testing.T) {
	st := store.NewMemoryStore()
	engine := licensing.NewService(st, licensing.Config{})
	deps := &Deps{
		Config: &config.Config{
			RateLimit: config.RateLimit{ValidateRPM: 6000, HeartbeatRPM: 6000, BindRPM: 6000, Burst: 100},
		},
		Store:  st,
		Engine: engine,
		Auth:   &Authenticator{Enabled: false},
	}
	server := httptest.NewServer(Handler(deps))
	defer server.Close()

	resp, err := http.Post(server.URL+"/api/v1/licenses", "application/json", bytes.NewBufferString(`{"org_id":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "AUTH_DISABLED", errorCode(t, body))
}

func TestErrorEnvelopeShape(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodPost, "/api/v1/client/validate", "", map[string]any{
		"license_key": "LIC-XXXX-XXXX-XXXX-XXXX",
		"hardware_id": "HW-A",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	envelope, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "LICENSE_NOT_FOUND", envelope["code"])
	assert.NotEmpty(t, envelope["message"])
	assert.Contains(t, envelope, "details")
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t)

	deps := &Deps{
		Config: &config.Config{
			RateLimit: config.RateLimit{ValidateRPM: 1, HeartbeatRPM: 1, BindRPM: 1, Burst: 2},
		},
		Store:  env.store,
		Engine: env.engine,
		Auth:   &Authenticator{Enabled: false},
	}
	server := httptest.NewServer(Handler(deps))
	defer server.Close()

	var last int
	for i := 0; i < 5; i++ {
		resp, err := http.Post(server.URL+"/api/v1/client/validate", "application/json",
			bytes.NewBufferString(fmt.Sprintf(`{"license_key":"LIC-%04d","hardware_id":"HW-A"}`, i)))
		require.NoError(t, err)
		resp.Body.Close()
		last = resp.StatusCode
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestLifecycleActions(t *testing.T) {
	env := newTestEnv(t)

	lic := env.createLicense(t, map[string]any{"org_id": "org-1", "tier": "pro"})
	id := lic["license_id"].(string)
	key := lic["license_key"].(string)

	resp, body := env.request(t, http.MethodPost, "/api/v1/licenses/"+id+"/revoke", env.admin, map[string]any{"reason": "chargeback"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "revoked", body["status"])

	resp, body = env.request(t, http.MethodPost, "/api/v1/licenses/"+id+"/reinstate", env.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "active", body["status"])

	resp, body = env.request(t, http.MethodPost, "/api/v1/licenses/"+id+"/blacklist", env.admin, map[string]any{"reason": "fraud"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["is_blacklisted"])

	// Blacklisting is absorbing for every client operation.
	resp, errBody := env.request(t, http.MethodPost, "/api/v1/client/bind", "", map[string]any{
		"license_key": key,
		"hardware_id": "HW-A",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "LICENSE_BLACKLISTED", errorCode(t, errBody))
}

func TestTokenEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.request(t, http.MethodPost, "/api/v1/tokens", env.admin, map[string]any{
		"name":   "ci",
		"scopes": []string{"licenses:read"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	raw, _ := body["token"].(string)
	require.NotEmpty(t, raw)
	info := body["info"].(map[string]any)
	id := info["id"].(string)

	// The raw value never appears in reads.
	resp, body = env.request(t, http.MethodGet, "/api/v1/tokens/"+id, env.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "token")
	assert.NotEmpty(t, body["prefix"])

	resp, _ = env.request(t, http.MethodPost, "/api/v1/tokens/"+id+"/revoke", env.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.request(t, http.MethodGet, "/api/v1/licenses", raw, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_TOKEN", errorCode(t, body))
}
