package store

import (
	"encoding/json"
	"time"
)

// LicenseStatus is the lifecycle status of a license row.
type LicenseStatus string

const (
	StatusActive    LicenseStatus = "active"
	StatusSuspended LicenseStatus = "suspended"
	StatusRevoked   LicenseStatus = "revoked"
	StatusExpired   LicenseStatus = "expired"
)

// License is the authoritative server-side license record.
type License struct {
	ID       string          `json:"license_id"`
	Key      string          `json:"license_key"`
	OrgID    string          `json:"org_id"`
	OrgName  string          `json:"org_name,omitempty"`
	Tier     string          `json:"tier,omitempty"`
	Features []string        `json:"features"`
	Metadata json.RawMessage `json:"metadata,omitempty"`

	Status        LicenseStatus `json:"status"`
	IsBlacklisted bool          `json:"is_blacklisted"`

	IssuedAt      time.Time  `json:"issued_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	SuspendedAt   *time.Time `json:"suspended_at,omitempty"`
	BlacklistedAt *time.Time `json:"blacklisted_at,omitempty"`

	RevokeReason      string `json:"revoke_reason,omitempty"`
	SuspensionMessage string `json:"suspension_message,omitempty"`
	BlacklistReason   string `json:"blacklist_reason,omitempty"`

	GracePeriodEndsAt *time.Time `json:"grace_period_ends_at,omitempty"`

	// Binding fields: all present or all absent as a group.
	HardwareID string     `json:"hardware_id,omitempty"`
	DeviceName string     `json:"device_name,omitempty"`
	DeviceInfo string     `json:"device_info,omitempty"`
	BoundAt    *time.Time `json:"bound_at,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`

	BandwidthUsedBytes  int64  `json:"bandwidth_used_bytes"`
	BandwidthLimitBytes *int64 `json:"bandwidth_limit_bytes,omitempty"`
	QuotaExceeded       bool   `json:"quota_exceeded"`
}

// Bound reports whether the license currently has a device binding.
func (l *License) Bound() bool {
	return l.HardwareID != ""
}

// Expired reports whether the license's expiry instant has passed.
func (l *License) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

// Clone returns a deep copy of the license.
func (l *License) Clone() *License {
	c := *l
	if l.Features != nil {
		c.Features = append([]string(nil), l.Features...)
	}
	if l.Metadata != nil {
		c.Metadata = append(json.RawMessage(nil), l.Metadata...)
	}
	c.ExpiresAt = cloneTime(l.ExpiresAt)
	c.RevokedAt = cloneTime(l.RevokedAt)
	c.SuspendedAt = cloneTime(l.SuspendedAt)
	c.BlacklistedAt = cloneTime(l.BlacklistedAt)
	c.GracePeriodEndsAt = cloneTime(l.GracePeriodEndsAt)
	c.BoundAt = cloneTime(l.BoundAt)
	c.LastSeenAt = cloneTime(l.LastSeenAt)
	c.BandwidthLimitBytes = cloneInt64(l.BandwidthLimitBytes)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt64(n *int64) *int64 {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

// BindingAction identifies the kind of binding-history entry.
type BindingAction string

const (
	ActionBind          BindingAction = "bind"
	ActionRebind        BindingAction = "rebind"
	ActionRelease       BindingAction = "release"
	ActionAdminRelease  BindingAction = "admin_release"
	ActionSystemRelease BindingAction = "system_release"
)

// BindingEvent is one append-only audit entry for a binding change.
type BindingEvent struct {
	ID          string        `json:"id"`
	LicenseID   string        `json:"license_id"`
	Action      BindingAction `json:"action"`
	HardwareID  string        `json:"hardware_id,omitempty"`
	DeviceName  string        `json:"device_name,omitempty"`
	DeviceInfo  string        `json:"device_info,omitempty"`
	PerformedBy string        `json:"performed_by"` // user, admin, or system
	Reason      string        `json:"reason,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// APIToken is an admin credential. Only the SHA-256 hash of the raw token
// value is ever persisted.
type APIToken struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Hash       string     `json:"-"`
	Prefix     string     `json:"prefix,omitempty"`
	Suffix     string     `json:"suffix,omitempty"`
	Scopes     []string   `json:"scopes"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedBy  string     `json:"created_by,omitempty"`
}

// Revoked reports whether the token has been revoked.
func (t *APIToken) Revoked() bool { return t.RevokedAt != nil }

// Expired reports whether the token is past its expiry.
func (t *APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}
