package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/talos-license/talos/internal/licensing"
	"github.com/talos-license/talos/internal/store"
)

type createLicenseRequest struct {
	OrgID     string          `json:"org_id"`
	OrgName   string          `json:"org_name,omitempty"`
	Tier      string          `json:"tier,omitempty"`
	Features  []string        `json:"features,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

func (req *createLicenseRequest) params() licensing.CreateParams {
	return licensing.CreateParams{
		OrgID:     strings.TrimSpace(req.OrgID),
		OrgName:   strings.TrimSpace(req.OrgName),
		Tier:      strings.TrimSpace(req.Tier),
		Features:  req.Features,
		Metadata:  req.Metadata,
		ExpiresAt: req.ExpiresAt,
	}
}

func handleCreateLicense(engine *licensing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createLicenseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeCode(w, licensing.CodeInvalidRequest, "request body must be valid JSON")
			return
		}
		if strings.TrimSpace(req.OrgID) == "" {
			writeCode(w, licensing.CodeMissingField, "org_id is required")
			return
		}
		lic, err := engine.Create(r.Context(), req.params())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, lic)
	}
}

type batchCreateRequest struct {
	createLicenseRequest
	Count int `json:"count"`
}

func handleBatchCreate(engine *licensing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeCode(w, licensing.CodeInvalidRequest, "request body must be valid JSON")
			return
		}
		if strings.TrimSpace(req.OrgID) == "" {
			writeCode(w, licensing.CodeMissingField, "org_id is required")
			return
		}
		created, err := engine.CreateBatch(r.Context(), req.params(), req.Count)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"licenses": created,
			"count":    len(created),
		})
	}
}

func handleGetLicense(engine *licensing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lic, err := engine.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lic)
	}
}

func handleListLicenses(engine *licensing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := strings.TrimSpace(r.URL.Query().Get("org_id"))
		page := queryInt(r, "page", 1)
		perPage := queryInt(r, "per_page", 50)
		if page < 1 || perPage < 1 || perPage > 500 {
			writeCode(w, licensing.CodeInvalidField, "page must be >= 1 and per_page between 1 and 500")
			return
		}

		rows, total, err := engine.List(r.Context(), orgID, page, perPage)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"licenses": rows,
			"total":    total,
			"page":     page,
			"per_page": perPage,
		})
	}
}

func handleLicenseHistory(engine *licensing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := engine.History(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events})
	}
}

type updateLicenseRequest struct {
	Features  *[]string       `json:"features,omitempty"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Tier      *string         `json:"tier,omitempty"`
}

func handleUpdateLicense(engine *licensing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateLicenseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeCode(w, licensing.CodeInvalidRequest, "request body must be valid JSON")
			return
		}
		lic, err := engine.Update(r.Context(), r.PathValue("id"), licensing.UpdateParams{
			Features:  req.Features,
			ExpiresAt: req.ExpiresAt,
			Metadata:  req.Metadata,
			Tier:      req.Tier,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lic)
	}
}

// handleLicenseAction dispatches the lifecycle sub-resource:
// revoke, reinstate, extend, release, blacklist, usage.
func handleLicenseAction(engine *licensing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		var body struct {
			Reason     string     `json:"reason,omitempty"`
			Message    string     `json:"message,omitempty"`
			GraceHours int        `json:"grace_hours,omitempty"`
			ExpiresAt  *time.Time `json:"expires_at,omitempty"`
			UsedBytes  *int64     `json:"used_bytes,omitempty"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeCode(w, licensing.CodeInvalidRequest, "request body must be valid JSON")
				return
			}
		}

		var (
			lic *store.License
			err error
		)
		switch r.PathValue("action") {
		case "revoke":
			lic, err = engine.Revoke(r.Context(), id, body.Reason)
		case "reinstate":
			lic, err = engine.Reinstate(r.Context(), id)
		case "suspend":
			lic, err = engine.Suspend(r.Context(), id, body.GraceHours, body.Message)
		case "extend":
			if body.ExpiresAt == nil {
				writeCode(w, licensing.CodeMissingField, "expires_at is required")
				return
			}
			lic, err = engine.Extend(r.Context(), id, *body.ExpiresAt)
		case "release":
			lic, err = engine.AdminRelease(r.Context(), id, body.Reason)
		case "blacklist":
			lic, err = engine.Blacklist(r.Context(), id, body.Reason)
		case "usage":
			if body.UsedBytes == nil {
				writeCode(w, licensing.CodeMissingField, "used_bytes is required")
				return
			}
			lic, err = engine.UpdateUsage(r.Context(), id, *body.UsedBytes)
		default:
			writeCode(w, licensing.CodeNotFound, "unknown license action")
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lic)
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}
