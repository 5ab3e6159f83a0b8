package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/talos-license/talos/internal/licensing"
)

// clientRequest is the shared body shape of the client endpoints.
type clientRequest struct {
	LicenseKey string `json:"license_key"`
	HardwareID string `json:"hardware_id"`
	DeviceName string `json:"device_name,omitempty"`
	DeviceInfo string `json:"device_info,omitempty"`
	Feature    string `json:"feature,omitempty"`
}

func decodeClientRequest(w http.ResponseWriter, r *http.Request) (*clientRequest, bool) {
	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeCode(w, licensing.CodeInvalidRequest, "request body must be valid JSON")
		return nil, false
	}
	req.LicenseKey = strings.TrimSpace(req.LicenseKey)
	req.HardwareID = strings.TrimSpace(req.HardwareID)
	if req.LicenseKey == "" {
		writeCode(w, licensing.CodeMissingField, "license_key is required")
		return nil, false
	}
	if req.HardwareID == "" {
		writeCode(w, licensing.CodeMissingField, "hardware_id is required")
		return nil, false
	}
	return &req, true
}

type bindResponse struct {
	LicenseID         string     `json:"license_id"`
	Features          []string   `json:"features"`
	Tier              string     `json:"tier,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	GracePeriodEndsAt *time.Time `json:"grace_period_ends_at,omitempty"`
}

type validateResponse struct {
	Valid             bool       `json:"valid"`
	Features          []string   `json:"features"`
	Tier              string     `json:"tier,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	GracePeriodEndsAt *time.Time `json:"grace_period_ends_at,omitempty"`
	Warning           string     `json:"warning,omitempty"`
}

func handleBind(engine *licensing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeClientRequest(w, r)
		if !ok {
			bindsTotal.WithLabelValues("invalid_request").Inc()
			return
		}
		result, err := engine.Bind(r.Context(), req.LicenseKey, req.HardwareID, req.DeviceName, req.DeviceInfo)
		if err != nil {
			bindsTotal.WithLabelValues(string(licensing.CodeOf(err))).Inc()
			writeError(w, err)
			return
		}
		bindsTotal.WithLabelValues("success").Inc()
		writeJSON(w, http.StatusOK, bindResponse{
			LicenseID:         result.LicenseID,
			Features:          result.Features,
			Tier:              result.Tier,
			ExpiresAt:         result.ExpiresAt,
			GracePeriodEndsAt: result.GracePeriodEndsAt,
		})
	}
}

func handleRelease(engine *licensing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeClientRequest(w, r)
		if !ok {
			return
		}
		if err := engine.Release(r.Context(), req.LicenseKey, req.HardwareID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "license released",
		})
	}
}

func handleValidate(engine *licensing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeClientRequest(w, r)
		if !ok {
			validationsTotal.WithLabelValues("invalid_request").Inc()
			return
		}
		result, err := engine.Validate(r.Context(), req.LicenseKey, req.HardwareID)
		if err != nil {
			validationsTotal.WithLabelValues(string(licensing.CodeOf(err))).Inc()
			writeError(w, err)
			return
		}
		validationsTotal.WithLabelValues("success").Inc()
		writeJSON(w, http.StatusOK, toValidateResponse(result))
	}
}

func handleValidateOrBind(engine *licensing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeClientRequest(w, r)
		if !ok {
			return
		}
		result, err := engine.ValidateOrBind(r.Context(), req.LicenseKey, req.HardwareID, req.DeviceName, req.DeviceInfo)
		if err != nil {
			validationsTotal.WithLabelValues(string(licensing.CodeOf(err))).Inc()
			writeError(w, err)
			return
		}
		validationsTotal.WithLabelValues("success").Inc()
		writeJSON(w, http.StatusOK, toValidateResponse(result))
	}
}

func handleHeartbeat(engine *licensing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeClientRequest(w, r)
		if !ok {
			return
		}
		result, err := engine.Heartbeat(r.Context(), req.LicenseKey, req.HardwareID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"server_time":          result.ServerTime,
			"grace_period_ends_at": result.GracePeriodEndsAt,
		})
	}
}

func handleValidateFeature(engine *licensing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeClientRequest(w, r)
		if !ok {
			return
		}
		if strings.TrimSpace(req.Feature) == "" {
			writeCode(w, licensing.CodeMissingField, "feature is required")
			return
		}
		result, err := engine.ValidateFeature(r.Context(), req.LicenseKey, req.HardwareID, req.Feature)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"allowed": result.Allowed,
			"message": result.Message,
			"tier":    result.Tier,
		})
	}
}

func toValidateResponse(result *licensing.ValidationResult) validateResponse {
	return validateResponse{
		Valid:             result.Valid,
		Features:          result.Features,
		Tier:              result.Tier,
		ExpiresAt:         result.ExpiresAt,
		GracePeriodEndsAt: result.GracePeriodEndsAt,
		Warning:           result.Warning,
	}
}
