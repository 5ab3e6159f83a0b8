package licensing

import (
	"errors"
	"fmt"
)

// Code is a stable, closed-set error code shared by the engine, the HTTP
// surfaces, and the client SDK.
type Code string

const (
	CodeLicenseNotFound    Code = "LICENSE_NOT_FOUND"
	CodeLicenseExpired     Code = "LICENSE_EXPIRED"
	CodeLicenseRevoked     Code = "LICENSE_REVOKED"
	CodeLicenseSuspended   Code = "LICENSE_SUSPENDED"
	CodeLicenseBlacklisted Code = "LICENSE_BLACKLISTED"
	CodeLicenseInactive    Code = "LICENSE_INACTIVE"
	CodeAlreadyBound       Code = "ALREADY_BOUND"
	CodeNotBound           Code = "NOT_BOUND"
	CodeHardwareMismatch   Code = "HARDWARE_MISMATCH"
	CodeFeatureNotIncluded Code = "FEATURE_NOT_INCLUDED"
	CodeQuotaExceeded      Code = "QUOTA_EXCEEDED"

	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeMissingField   Code = "MISSING_FIELD"
	CodeInvalidField   Code = "INVALID_FIELD"
	CodeNotFound       Code = "NOT_FOUND"
	CodeConflict       Code = "CONFLICT"
	CodeRateLimited    Code = "RATE_LIMITED"
	CodeDatabaseError  Code = "DATABASE_ERROR"
	CodeCryptoError    Code = "CRYPTO_ERROR"
	CodeInternal       Code = "INTERNAL_ERROR"
)

// Error is an engine outcome with a stable code. Expected policy outcomes
// (expired, already bound, ...) are values of this type, never panics.
type Error struct {
	Code    Code
	Message string
	Details any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// E builds an engine error.
func E(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the stable code from err, or CodeInternal for anything
// outside the taxonomy.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
