package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/talos-license/talos/internal/auth"
	"github.com/talos-license/talos/internal/licensing"
	"github.com/talos-license/talos/internal/store"
)

type createTokenRequest struct {
	Name      string     `json:"name"`
	Scopes    []string   `json:"scopes,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// handleCreateToken mints a new API token. The raw value appears in this
// response and nowhere else.
func handleCreateToken(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeCode(w, licensing.CodeInvalidRequest, "request body must be valid JSON")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeCode(w, licensing.CodeMissingField, "name is required")
			return
		}

		raw, err := auth.GenerateToken()
		if err != nil {
			writeCode(w, licensing.CodeInternal, "unable to generate token")
			return
		}

		createdBy := ""
		if principal, ok := PrincipalFrom(r.Context()); ok {
			createdBy = principal.Subject
		}
		record := auth.NewTokenRecord(strings.TrimSpace(req.Name), raw, req.Scopes, req.ExpiresAt, createdBy, time.Now().UTC())

		if err := st.CreateAPIToken(r.Context(), record); err != nil {
			writeCode(w, licensing.CodeDatabaseError, "unable to store token")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"token": raw,
			"info":  record,
		})
	}
}

func handleListTokens(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokens, err := st.ListAPITokens(r.Context())
		if err != nil {
			writeCode(w, licensing.CodeDatabaseError, "unable to list tokens")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
	}
}

func handleGetToken(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := st.GetAPIToken(r.Context(), r.PathValue("id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeCode(w, licensing.CodeNotFound, "token not found")
				return
			}
			writeCode(w, licensing.CodeDatabaseError, "unable to load token")
			return
		}
		writeJSON(w, http.StatusOK, token)
	}
}

func handleRevokeToken(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := st.RevokeAPIToken(r.Context(), r.PathValue("id"), time.Now().UTC())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeCode(w, licensing.CodeNotFound, "token not found")
				return
			}
			writeCode(w, licensing.CodeDatabaseError, "unable to revoke token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

// handleIssueJWT exchanges a valid API token for a short-lived bearer
// JWT carrying the same scopes.
func handleIssueJWT(jwt *auth.JWT) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFrom(r.Context())
		if !ok {
			writeCode(w, auth.CodeInvalidToken, "no authenticated principal")
			return
		}
		token, expiresAt, err := jwt.Issue(principal.Subject, principal.Scopes)
		if err != nil {
			writeCode(w, licensing.CodeInternal, "unable to issue token")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":      token,
			"expires_at": expiresAt,
		})
	}
}
