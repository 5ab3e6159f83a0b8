// Package store defines the storage port for licenses, binding history,
// and API tokens, with sqlite, postgres, and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicateKey is returned when a license key collides with an
	// existing row.
	ErrDuplicateKey = errors.New("store: duplicate license key")
	// ErrHardwareConflict is returned when a hardware ID is already bound
	// to another active or suspended license.
	ErrHardwareConflict = errors.New("store: hardware already bound to another license")
)

// Store is the storage port. All reads and writes see a consistent
// snapshot; no operation partially mutates a license row. Uniqueness on
// license_key, and on hardware_id across active/suspended rows, is
// enforced at this layer.
//
// The conditional mutations (Bind, Release, Touch, MarkExpired,
// RevokeExpiredGrace, ClearStaleBinding) re-check their preconditions
// inside a single UPDATE and report via their bool result whether the row
// matched; callers must not assume a prior read still holds.
type Store interface {
	// Licenses.
	UpsertLicense(ctx context.Context, lic *License) error
	GetLicenseByID(ctx context.Context, id string) (*License, error)
	GetLicenseByKey(ctx context.Context, key string) (*License, error)
	GetLicenseByHardware(ctx context.Context, hardwareID string) (*License, error)
	ListLicensesByOrg(ctx context.Context, orgID string, page, perPage int) ([]*License, int, error)

	// Conditional single-statement mutations.
	BindLicense(ctx context.Context, id, hardwareID, deviceName, deviceInfo string, now time.Time) (bool, error)
	ReleaseLicense(ctx context.Context, id, hardwareID string) (bool, error)
	TouchLastSeen(ctx context.Context, id string, now time.Time) error
	MarkExpired(ctx context.Context, id string, now time.Time) (bool, error)
	RevokeExpiredGrace(ctx context.Context, id string, now time.Time) (bool, error)
	ClearStaleBinding(ctx context.Context, id string, threshold time.Time) (bool, error)

	// Time-window scans for the background jobs.
	ExpiredLicenses(ctx context.Context, now time.Time) ([]*License, error)
	ExpiredGracePeriods(ctx context.Context, now time.Time) ([]*License, error)
	StaleDeviceLicenses(ctx context.Context, threshold time.Time) ([]*License, error)

	// Binding history (append-only).
	RecordBindingEvent(ctx context.Context, event *BindingEvent) error
	ListBindingEvents(ctx context.Context, licenseID string) ([]*BindingEvent, error)

	// API tokens.
	CreateAPIToken(ctx context.Context, token *APIToken) error
	GetAPIToken(ctx context.Context, id string) (*APIToken, error)
	GetAPITokenByHash(ctx context.Context, hash string) (*APIToken, error)
	ListAPITokens(ctx context.Context) ([]*APIToken, error)
	RevokeAPIToken(ctx context.Context, id string, now time.Time) error
	UpdateTokenLastUsed(ctx context.Context, id string, now time.Time) error
	HasAnyAPITokens(ctx context.Context) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}
