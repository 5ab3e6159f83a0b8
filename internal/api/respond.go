package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/talos-license/talos/internal/auth"
	"github.com/talos-license/talos/internal/licensing"
)

// errorBody is the envelope every failure response uses.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    licensing.Code `json:"code"`
	Message string         `json:"message"`
	Details any            `json:"details"`
}

// statusForCode maps the stable error taxonomy onto HTTP statuses.
var statusForCode = map[licensing.Code]int{
	licensing.CodeInvalidRequest: http.StatusBadRequest,
	licensing.CodeMissingField:   http.StatusBadRequest,
	licensing.CodeInvalidField:   http.StatusBadRequest,

	auth.CodeMissingToken:  http.StatusUnauthorized,
	auth.CodeInvalidHeader: http.StatusUnauthorized,
	auth.CodeInvalidToken:  http.StatusUnauthorized,
	auth.CodeTokenExpired:  http.StatusUnauthorized,

	auth.CodeInsufficientScope:       http.StatusForbidden,
	auth.CodeAuthDisabled:            http.StatusForbidden,
	licensing.CodeHardwareMismatch:   http.StatusForbidden,
	licensing.CodeLicenseExpired:     http.StatusForbidden,
	licensing.CodeLicenseRevoked:     http.StatusForbidden,
	licensing.CodeLicenseSuspended:   http.StatusForbidden,
	licensing.CodeLicenseBlacklisted: http.StatusForbidden,
	licensing.CodeLicenseInactive:    http.StatusForbidden,
	licensing.CodeFeatureNotIncluded: http.StatusForbidden,
	licensing.CodeQuotaExceeded:      http.StatusForbidden,

	licensing.CodeLicenseNotFound: http.StatusNotFound,
	licensing.CodeNotFound:        http.StatusNotFound,

	licensing.CodeAlreadyBound: http.StatusConflict,
	licensing.CodeNotBound:     http.StatusConflict,
	licensing.CodeConflict:     http.StatusConflict,

	licensing.CodeRateLimited: http.StatusTooManyRequests,

	licensing.CodeDatabaseError: http.StatusInternalServerError,
	licensing.CodeCryptoError:   http.StatusInternalServerError,
	licensing.CodeInternal:      http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Unable to encode response body")
	}
}

// writeError renders err through the envelope. Errors outside the
// taxonomy become opaque INTERNAL_ERROR responses so infrastructure
// details never reach unauthenticated clients.
func writeError(w http.ResponseWriter, err error) {
	code := licensing.CodeOf(err)
	status, ok := statusForCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	detail := errorDetail{Code: code, Message: "internal error"}
	var e *licensing.Error
	if errors.As(err, &e) {
		detail.Message = e.Message
		detail.Details = e.Details
	}
	writeJSON(w, status, errorBody{Error: detail})
}

func writeCode(w http.ResponseWriter, code licensing.Code, message string) {
	writeError(w, licensing.E(code, "%s", message))
}
