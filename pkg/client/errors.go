package client

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the local (non-network) checks.
var (
	// ErrHardwareMismatch is returned when the local fingerprint does
	// not match the binding or a cached snapshot.
	ErrHardwareMismatch = errors.New("client: hardware fingerprint mismatch")

	// ErrNoCache is returned when offline validation is requested but no
	// cached snapshot exists.
	ErrNoCache = errors.New("client: no cached validation")

	// ErrOfflineExpired is returned when a cached snapshot exists but
	// its grace period has lapsed or was never granted.
	ErrOfflineExpired = errors.New("client: offline grace period expired")

	// ErrNotBound is returned when an operation requires a binding the
	// client does not hold.
	ErrNotBound = errors.New("client: license is not bound on this device")
)

// APIError is a server-side refusal decoded from the error envelope.
type APIError struct {
	Code    string
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server refused (%s): %s", e.Code, e.Message)
}

// NetworkError wraps a transport failure so callers can distinguish
// connectivity problems from server refusals.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network failure: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetworkError reports whether err is a transport failure rather than
// a server refusal.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
