// Package licensing implements the license lifecycle engine: the state
// machine over (status, binding, grace period, blacklist) that governs
// every client and admin operation, plus the background sweeps that
// advance time-driven transitions.
package licensing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/talos-license/talos/internal/store"
)

// Clock supplies the engine's notion of now. Injected so tests can pin
// time at transition boundaries.
type Clock func() time.Time

// Tier describes the entitlement bundle assigned at create time.
type Tier struct {
	Features    []string `json:"features"`
	BandwidthGB int64    `json:"bandwidth_gb"`
}

// Config carries issuance policy.
type Config struct {
	Keys                KeyGenerator
	Tiers               map[string]Tier
	ExpiryWarningWindow time.Duration // warn on validate when expiry is this close
	KeyRetries          int           // attempts on key collision before giving up
}

const (
	defaultExpiryWarningWindow = 7 * 24 * time.Hour
	defaultKeyRetries          = 5
)

// Service is the license lifecycle engine. It owns every transition; the
// HTTP surfaces and the job scheduler only call through it.
type Service struct {
	store store.Store
	cfg   Config
	now   Clock
}

// NewService builds an engine over the given store.
func NewService(st store.Store, cfg Config) *Service {
	if cfg.Keys == (KeyGenerator{}) {
		cfg.Keys = DefaultKeyGenerator()
	}
	if cfg.ExpiryWarningWindow <= 0 {
		cfg.ExpiryWarningWindow = defaultExpiryWarningWindow
	}
	if cfg.KeyRetries <= 0 {
		cfg.KeyRetries = defaultKeyRetries
	}
	return &Service{store: st, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the engine clock. Test hook.
func (s *Service) WithClock(clock Clock) *Service {
	s.now = clock
	return s
}

// KeyGenerator exposes the configured key layout (used by the admin
// surface to validate key-shaped input).
func (s *Service) KeyGenerator() KeyGenerator { return s.cfg.Keys }

// BindResult is returned to clients after a successful bind.
type BindResult struct {
	LicenseID         string
	Features          []string
	Tier              string
	ExpiresAt         *time.Time
	GracePeriodEndsAt *time.Time
}

// ValidationResult is returned to clients after a successful validation.
type ValidationResult struct {
	Valid             bool
	Features          []string
	Tier              string
	ExpiresAt         *time.Time
	GracePeriodEndsAt *time.Time
	Warning           string
}

// HeartbeatResult carries the server clock and the current grace window.
type HeartbeatResult struct {
	ServerTime        time.Time
	GracePeriodEndsAt *time.Time
}

// FeatureResult answers a feature gate check.
type FeatureResult struct {
	Allowed bool
	Message string
	Tier    string
}

// --- client operations -------------------------------------------------

// Bind attaches a license to a device. Rebinding the same device is
// allowed and audited as a rebind; a different device must release first.
func (s *Service) Bind(ctx context.Context, key, hardwareID, deviceName, deviceInfo string) (*BindResult, error) {
	now := s.now()

	lic, err := s.getByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if lic.IsBlacklisted {
		s.warnTransition("bind", lic, hardwareID, "blacklisted")
		return nil, E(CodeLicenseBlacklisted, "license is blacklisted")
	}
	switch lic.Status {
	case store.StatusActive, store.StatusSuspended:
	case store.StatusRevoked:
		return nil, E(CodeLicenseRevoked, "license has been revoked")
	case store.StatusExpired:
		return nil, E(CodeLicenseExpired, "license has expired")
	default:
		return nil, E(CodeLicenseInactive, "license is not active")
	}
	if lic.Expired(now) {
		return nil, E(CodeLicenseExpired, "license has expired")
	}
	rebind := lic.Bound() && lic.HardwareID == hardwareID
	if lic.Bound() && !rebind {
		return nil, E(CodeAlreadyBound, "license is already bound to another device")
	}

	bound, err := s.store.BindLicense(ctx, lic.ID, hardwareID, deviceName, deviceInfo, now)
	if err != nil {
		if errors.Is(err, store.ErrHardwareConflict) {
			return nil, E(CodeConflict, "device is already bound to another license")
		}
		return nil, s.dbError("bind license", err)
	}
	if !bound {
		// The row changed between the read and the conditional update.
		return nil, E(CodeConflict, "license state changed, retry the bind")
	}

	action := store.ActionBind
	if rebind {
		action = store.ActionRebind
	}
	s.recordHistory(ctx, lic.ID, action, hardwareID, deviceName, deviceInfo, "user", "")
	s.logTransition("bind", lic, hardwareID, "user", "")

	return &BindResult{
		LicenseID:         lic.ID,
		Features:          lic.Features,
		Tier:              lic.Tier,
		ExpiresAt:         lic.ExpiresAt,
		GracePeriodEndsAt: lic.GracePeriodEndsAt,
	}, nil
}

// Release detaches the license from the device it is bound to.
func (s *Service) Release(ctx context.Context, key, hardwareID string) error {
	lic, err := s.getByKey(ctx, key)
	if err != nil {
		return err
	}
	if lic.IsBlacklisted {
		return E(CodeLicenseBlacklisted, "license is blacklisted")
	}
	if !lic.Bound() {
		return E(CodeNotBound, "license is not bound to any device")
	}
	if lic.HardwareID != hardwareID {
		s.warnTransition("release", lic, hardwareID, "hardware mismatch")
		return E(CodeHardwareMismatch, "hardware does not match the current binding")
	}

	released, err := s.store.ReleaseLicense(ctx, lic.ID, hardwareID)
	if err != nil {
		return s.dbError("release license", err)
	}
	if !released {
		return E(CodeNotBound, "license is not bound to any device")
	}

	s.recordHistory(ctx, lic.ID, store.ActionRelease, hardwareID, lic.DeviceName, lic.DeviceInfo, "user", "")
	s.logTransition("release", lic, hardwareID, "user", "")
	return nil
}

// Validate checks entitlement for a bound device and refreshes the
// last-seen timestamp.
func (s *Service) Validate(ctx context.Context, key, hardwareID string) (*ValidationResult, error) {
	now := s.now()

	lic, err := s.getByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if verr := s.checkValidatable(lic, hardwareID, now); verr != nil {
		s.warnTransition("validate", lic, hardwareID, string(verr.Code))
		return nil, verr
	}

	if err := s.store.TouchLastSeen(ctx, lic.ID, now); err != nil {
		log.Warn().Err(err).Str("license_id", lic.ID).Msg("Unable to update last seen timestamp")
	}
	s.logTransition("validate", lic, hardwareID, "user", "")

	return &ValidationResult{
		Valid:             true,
		Features:          lic.Features,
		Tier:              lic.Tier,
		ExpiresAt:         lic.ExpiresAt,
		GracePeriodEndsAt: lic.GracePeriodEndsAt,
		Warning:           s.expiryWarning(lic, now),
	}, nil
}

// ValidateOrBind validates when the device already holds the binding and
// binds first when the license is unbound.
func (s *Service) ValidateOrBind(ctx context.Context, key, hardwareID, deviceName, deviceInfo string) (*ValidationResult, error) {
	lic, err := s.getByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !lic.Bound() {
		if _, err := s.Bind(ctx, key, hardwareID, deviceName, deviceInfo); err != nil {
			return nil, err
		}
	}
	return s.Validate(ctx, key, hardwareID)
}

// Heartbeat refreshes the last-seen timestamp and reports the server
// clock plus the current grace window. Suspended licenses may heartbeat;
// that is how clients learn their grace deadline.
func (s *Service) Heartbeat(ctx context.Context, key, hardwareID string) (*HeartbeatResult, error) {
	now := s.now()

	lic, err := s.getByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if lic.IsBlacklisted {
		return nil, E(CodeLicenseBlacklisted, "license is blacklisted")
	}
	if !lic.Bound() {
		return nil, E(CodeNotBound, "license is not bound to any device")
	}
	if lic.HardwareID != hardwareID {
		s.warnTransition("heartbeat", lic, hardwareID, "hardware mismatch")
		return nil, E(CodeHardwareMismatch, "hardware does not match the current binding")
	}

	if err := s.store.TouchLastSeen(ctx, lic.ID, now); err != nil {
		log.Warn().Err(err).Str("license_id", lic.ID).Msg("Unable to update last seen timestamp")
	}
	return &HeartbeatResult{ServerTime: now, GracePeriodEndsAt: lic.GracePeriodEndsAt}, nil
}

// ValidateFeature validates and then answers whether the feature is in
// the license's feature set. A missing feature is an answer, not an
// error.
func (s *Service) ValidateFeature(ctx context.Context, key, hardwareID, feature string) (*FeatureResult, error) {
	result, err := s.Validate(ctx, key, hardwareID)
	if err != nil {
		return nil, err
	}
	for _, f := range result.Features {
		if f == feature {
			return &FeatureResult{Allowed: true, Tier: result.Tier}, nil
		}
	}
	return &FeatureResult{
		Allowed: false,
		Message: "feature is not included in this license",
		Tier:    result.Tier,
	}, nil
}

// checkValidatable applies the validate precondition chain in spec order:
// blacklist, then status, then binding.
func (s *Service) checkValidatable(lic *store.License, hardwareID string, now time.Time) *Error {
	if lic.IsBlacklisted {
		return E(CodeLicenseBlacklisted, "license is blacklisted")
	}
	switch lic.Status {
	case store.StatusActive:
	case store.StatusSuspended:
		return E(CodeLicenseSuspended, "license is suspended")
	case store.StatusRevoked:
		return E(CodeLicenseRevoked, "license has been revoked")
	case store.StatusExpired:
		return E(CodeLicenseExpired, "license has expired")
	default:
		return E(CodeLicenseInactive, "license is not active")
	}
	if lic.Expired(now) {
		return E(CodeLicenseExpired, "license has expired")
	}
	if !lic.Bound() {
		return E(CodeNotBound, "license is not bound to any device")
	}
	if lic.HardwareID != hardwareID {
		return E(CodeHardwareMismatch, "hardware does not match the current binding")
	}
	return nil
}

func (s *Service) expiryWarning(lic *store.License, now time.Time) string {
	if lic.ExpiresAt == nil {
		return ""
	}
	remaining := lic.ExpiresAt.Sub(now)
	if remaining > 0 && remaining < s.cfg.ExpiryWarningWindow {
		days := int(remaining.Hours() / 24)
		if days < 1 {
			return "license expires in less than a day"
		}
		if days == 1 {
			return "license expires in 1 day"
		}
		return fmt.Sprintf("license expires in %d days", days)
	}
	return ""
}

// --- admin operations --------------------------------------------------

// CreateParams are the issuance attributes for a new license.
type CreateParams struct {
	OrgID     string
	OrgName   string
	Tier      string
	Features  []string
	Metadata  json.RawMessage
	ExpiresAt *time.Time
}

// Create issues one license, generating a unique key with a bounded
// retry on collision. Tier resolution fills in features and bandwidth
// limits when not given explicitly.
func (s *Service) Create(ctx context.Context, params CreateParams) (*store.License, error) {
	now := s.now()

	features := params.Features
	var limit *int64
	if params.Tier != "" {
		tier, ok := s.cfg.Tiers[params.Tier]
		if !ok {
			return nil, E(CodeInvalidField, "unknown tier %q", params.Tier)
		}
		if len(features) == 0 {
			features = append([]string(nil), tier.Features...)
		}
		if tier.BandwidthGB > 0 {
			bytes := tier.BandwidthGB << 30
			limit = &bytes
		}
	}
	if features == nil {
		features = []string{}
	}

	var lastErr error
	for attempt := 0; attempt < s.cfg.KeyRetries; attempt++ {
		key, err := s.cfg.Keys.Generate()
		if err != nil {
			return nil, E(CodeInternal, "generate license key: %v", err)
		}

		lic := &store.License{
			ID:                  ulid.Make().String(),
			Key:                 key,
			OrgID:               params.OrgID,
			OrgName:             params.OrgName,
			Tier:                params.Tier,
			Features:            features,
			Metadata:            params.Metadata,
			Status:              store.StatusActive,
			IssuedAt:            now,
			ExpiresAt:           params.ExpiresAt,
			BandwidthLimitBytes: limit,
		}

		err = s.store.UpsertLicense(ctx, lic)
		if err == nil {
			s.logTransition("create", lic, "", "admin", "")
			return lic, nil
		}
		if errors.Is(err, store.ErrDuplicateKey) {
			lastErr = err
			continue
		}
		return nil, s.dbError("create license", err)
	}
	log.Error().Err(lastErr).Int("attempts", s.cfg.KeyRetries).Msg("License key generation exhausted retries")
	return nil, E(CodeInternal, "unable to generate a unique license key")
}

// BatchLimit bounds batch creation.
const BatchLimit = 1000

// CreateBatch issues count licenses in order. A mid-batch failure
// returns the licenses committed so far along with the error; the error
// details carry the committed count.
func (s *Service) CreateBatch(ctx context.Context, params CreateParams, count int) ([]*store.License, error) {
	if count < 1 || count > BatchLimit {
		return nil, E(CodeInvalidRequest, "batch count must be between 1 and %d", BatchLimit)
	}

	created := make([]*store.License, 0, count)
	for i := 0; i < count; i++ {
		lic, err := s.Create(ctx, params)
		if err != nil {
			var e *Error
			if errors.As(err, &e) {
				e.Details = map[string]any{"created": len(created)}
			}
			return created, err
		}
		created = append(created, lic)
	}
	return created, nil
}

// Get retrieves one license by ID.
func (s *Service) Get(ctx context.Context, id string) (*store.License, error) {
	lic, err := s.store.GetLicenseByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, E(CodeLicenseNotFound, "license not found")
		}
		return nil, s.dbError("get license", err)
	}
	return lic, nil
}

// List returns one page of licenses, optionally filtered by org.
func (s *Service) List(ctx context.Context, orgID string, page, perPage int) ([]*store.License, int, error) {
	rows, total, err := s.store.ListLicensesByOrg(ctx, orgID, page, perPage)
	if err != nil {
		return nil, 0, s.dbError("list licenses", err)
	}
	return rows, total, nil
}

// History returns the binding audit trail for a license.
func (s *Service) History(ctx context.Context, id string) ([]*store.BindingEvent, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.store.ListBindingEvents(ctx, id)
	if err != nil {
		return nil, s.dbError("list binding history", err)
	}
	return events, nil
}

// UpdateParams patches issuance attributes. Nil fields are unchanged.
type UpdateParams struct {
	Features  *[]string
	ExpiresAt *time.Time
	Metadata  json.RawMessage
	Tier      *string
}

// Update edits features, expiry, metadata, or tier. Racing admin edits
// are last-write-wins.
func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (*store.License, error) {
	lic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Features != nil {
		lic.Features = append([]string(nil), (*params.Features)...)
	}
	if params.ExpiresAt != nil {
		t := params.ExpiresAt.UTC()
		lic.ExpiresAt = &t
	}
	if params.Metadata != nil {
		lic.Metadata = params.Metadata
	}
	if params.Tier != nil {
		if _, ok := s.cfg.Tiers[*params.Tier]; !ok && *params.Tier != "" {
			return nil, E(CodeInvalidField, "unknown tier %q", *params.Tier)
		}
		lic.Tier = *params.Tier
	}

	if err := s.store.UpsertLicense(ctx, lic); err != nil {
		return nil, s.dbError("update license", err)
	}
	s.logTransition("update", lic, "", "admin", "")
	return lic, nil
}

// Revoke moves an active or suspended license to revoked.
func (s *Service) Revoke(ctx context.Context, id, reason string) (*store.License, error) {
	lic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if lic.Status != store.StatusActive && lic.Status != store.StatusSuspended {
		return nil, E(CodeConflict, "only active or suspended licenses can be revoked")
	}

	now := s.now()
	lic.Status = store.StatusRevoked
	lic.RevokedAt = &now
	lic.RevokeReason = reason
	lic.SuspendedAt = nil

	if err := s.store.UpsertLicense(ctx, lic); err != nil {
		return nil, s.dbError("revoke license", err)
	}
	s.logTransition("revoke", lic, "", "admin", reason)
	return lic, nil
}

// Reinstate moves a revoked or suspended license back to active.
// Blacklisted licenses cannot be reinstated.
func (s *Service) Reinstate(ctx context.Context, id string) (*store.License, error) {
	lic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if lic.IsBlacklisted {
		return nil, E(CodeLicenseBlacklisted, "blacklisted licenses cannot be reinstated")
	}
	if lic.Status != store.StatusRevoked && lic.Status != store.StatusSuspended {
		return nil, E(CodeConflict, "only revoked or suspended licenses can be reinstated")
	}

	lic.Status = store.StatusActive
	lic.RevokedAt = nil
	lic.RevokeReason = ""
	lic.SuspendedAt = nil
	lic.SuspensionMessage = ""
	lic.GracePeriodEndsAt = nil

	if err := s.store.UpsertLicense(ctx, lic); err != nil {
		return nil, s.dbError("reinstate license", err)
	}
	s.logTransition("reinstate", lic, "", "admin", "")
	return lic, nil
}

// Suspend moves an active license to suspended, optionally opening a
// grace window of the given number of hours for offline operation.
func (s *Service) Suspend(ctx context.Context, id string, graceHours int, message string) (*store.License, error) {
	if graceHours < 0 {
		return nil, E(CodeInvalidField, "grace hours must not be negative")
	}
	lic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if lic.Status != store.StatusActive {
		return nil, E(CodeConflict, "only active licenses can be suspended")
	}

	now := s.now()
	lic.Status = store.StatusSuspended
	lic.SuspendedAt = &now
	lic.SuspensionMessage = message
	if graceHours > 0 {
		graceEnd := now.Add(time.Duration(graceHours) * time.Hour)
		lic.GracePeriodEndsAt = &graceEnd
	}

	if err := s.store.UpsertLicense(ctx, lic); err != nil {
		return nil, s.dbError("suspend license", err)
	}
	s.logTransition("suspend", lic, "", "admin", message)
	return lic, nil
}

// Extend moves the expiry forward. An expired license whose new expiry is
// in the future becomes active again.
func (s *Service) Extend(ctx context.Context, id string, newExpiry time.Time) (*store.License, error) {
	lic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if lic.ExpiresAt != nil && !newExpiry.After(*lic.ExpiresAt) {
		return nil, E(CodeInvalidField, "new expiry must be after the current expiry")
	}

	now := s.now()
	expiry := newExpiry.UTC()
	lic.ExpiresAt = &expiry
	if lic.Status == store.StatusExpired && expiry.After(now) {
		lic.Status = store.StatusActive
	}

	if err := s.store.UpsertLicense(ctx, lic); err != nil {
		return nil, s.dbError("extend license", err)
	}
	s.logTransition("extend", lic, "", "admin", "")
	return lic, nil
}

// Blacklist permanently disables a license: it is revoked, unbound, and
// refused by every client-facing operation from then on. There is no
// reversal path.
func (s *Service) Blacklist(ctx context.Context, id, reason string) (*store.License, error) {
	lic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	wasBound := lic.Bound()
	boundHW := lic.HardwareID

	lic.IsBlacklisted = true
	lic.BlacklistedAt = &now
	lic.BlacklistReason = reason
	lic.Status = store.StatusRevoked
	if lic.RevokedAt == nil {
		lic.RevokedAt = &now
	}
	lic.SuspendedAt = nil
	lic.HardwareID = ""
	lic.DeviceName = ""
	lic.DeviceInfo = ""
	lic.BoundAt = nil
	lic.LastSeenAt = nil

	if err := s.store.UpsertLicense(ctx, lic); err != nil {
		return nil, s.dbError("blacklist license", err)
	}
	if wasBound {
		s.recordHistory(ctx, lic.ID, store.ActionAdminRelease, boundHW, "", "", "admin", "blacklisted")
	}
	s.logTransition("blacklist", lic, boundHW, "admin", reason)
	return lic, nil
}

// AdminRelease detaches a license from its device on behalf of an
// operator.
func (s *Service) AdminRelease(ctx context.Context, id, reason string) (*store.License, error) {
	lic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lic.Bound() {
		return nil, E(CodeNotBound, "license is not bound to any device")
	}

	released, err := s.store.ReleaseLicense(ctx, lic.ID, "")
	if err != nil {
		return nil, s.dbError("admin release", err)
	}
	if !released {
		return nil, E(CodeNotBound, "license is not bound to any device")
	}

	s.recordHistory(ctx, lic.ID, store.ActionAdminRelease, lic.HardwareID, lic.DeviceName, lic.DeviceInfo, "admin", reason)
	s.logTransition("admin_release", lic, lic.HardwareID, "admin", reason)
	return s.Get(ctx, id)
}

// UpdateUsage records bandwidth consumption and recomputes the quota
// flag. Requires a license with a bandwidth limit.
func (s *Service) UpdateUsage(ctx context.Context, id string, usedBytes int64) (*store.License, error) {
	if usedBytes < 0 {
		return nil, E(CodeInvalidField, "used bytes must not be negative")
	}
	lic, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if lic.BandwidthLimitBytes == nil {
		return nil, E(CodeConflict, "license has no bandwidth limit")
	}

	lic.BandwidthUsedBytes = usedBytes
	lic.QuotaExceeded = usedBytes >= *lic.BandwidthLimitBytes

	if err := s.store.UpsertLicense(ctx, lic); err != nil {
		return nil, s.dbError("update usage", err)
	}
	s.logTransition("usage", lic, "", "admin", "")
	return lic, nil
}

// --- background sweeps -------------------------------------------------

// ExpireLicenses moves active licenses past their expiry to expired.
// Each row is advanced by a conditional update, so a concurrent run or a
// racing admin mutation makes that row a no-op rather than a fault.
func (s *Service) ExpireLicenses(ctx context.Context, now time.Time) (int, error) {
	rows, err := s.store.ExpiredLicenses(ctx, now)
	if err != nil {
		return 0, s.dbError("scan expired licenses", err)
	}

	count := 0
	for _, lic := range rows {
		moved, err := s.store.MarkExpired(ctx, lic.ID, now)
		if err != nil {
			log.Warn().Err(err).Str("license_id", lic.ID).Msg("Unable to expire license")
			continue
		}
		if moved {
			count++
			s.logTransition("expire", lic, "", "system", "")
		}
	}
	return count, nil
}

// ExpireGracePeriods revokes suspended licenses whose grace window has
// lapsed.
func (s *Service) ExpireGracePeriods(ctx context.Context, now time.Time) (int, error) {
	rows, err := s.store.ExpiredGracePeriods(ctx, now)
	if err != nil {
		return 0, s.dbError("scan expired grace periods", err)
	}

	count := 0
	for _, lic := range rows {
		moved, err := s.store.RevokeExpiredGrace(ctx, lic.ID, now)
		if err != nil {
			log.Warn().Err(err).Str("license_id", lic.ID).Msg("Unable to revoke license after grace period")
			continue
		}
		if moved {
			count++
			s.logTransition("grace_expired", lic, "", "system", "")
		}
	}
	return count, nil
}

// CleanStaleDevices releases bindings whose device has not been seen
// since the threshold, with a system_release audit entry per row.
func (s *Service) CleanStaleDevices(ctx context.Context, threshold time.Time) (int, error) {
	rows, err := s.store.StaleDeviceLicenses(ctx, threshold)
	if err != nil {
		return 0, s.dbError("scan stale devices", err)
	}

	count := 0
	for _, lic := range rows {
		cleared, err := s.store.ClearStaleBinding(ctx, lic.ID, threshold)
		if err != nil {
			log.Warn().Err(err).Str("license_id", lic.ID).Msg("Unable to release stale device binding")
			continue
		}
		if cleared {
			count++
			s.recordHistory(ctx, lic.ID, store.ActionSystemRelease, lic.HardwareID, lic.DeviceName, lic.DeviceInfo, "system", "stale device")
			s.logTransition("system_release", lic, lic.HardwareID, "system", "stale device")
		}
	}
	return count, nil
}

// --- internals ---------------------------------------------------------

func (s *Service) getByKey(ctx context.Context, key string) (*store.License, error) {
	lic, err := s.store.GetLicenseByKey(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, E(CodeLicenseNotFound, "license not found")
		}
		return nil, s.dbError("get license by key", err)
	}
	return lic, nil
}

func (s *Service) recordHistory(ctx context.Context, licenseID string, action store.BindingAction, hardwareID, deviceName, deviceInfo, performedBy, reason string) {
	event := &store.BindingEvent{
		ID:          uuid.NewString(),
		LicenseID:   licenseID,
		Action:      action,
		HardwareID:  hardwareID,
		DeviceName:  deviceName,
		DeviceInfo:  deviceInfo,
		PerformedBy: performedBy,
		Reason:      reason,
		Timestamp:   s.now(),
	}
	if err := s.store.RecordBindingEvent(ctx, event); err != nil {
		log.Error().Err(err).Str("license_id", licenseID).Str("action", string(action)).Msg("Unable to record binding history")
	}
}

func (s *Service) logTransition(event string, lic *store.License, hardwareID, actor, reason string) {
	entry := log.Info().
		Str("event", event).
		Str("license_id", lic.ID).
		Str("actor", actor)
	if hardwareID != "" {
		entry = entry.Str("hardware_id", hardwareID)
	}
	if reason != "" {
		entry = entry.Str("reason", reason)
	}
	entry.Msg("License transition")
}

func (s *Service) warnTransition(event string, lic *store.License, hardwareID, why string) {
	log.Warn().
		Str("event", event).
		Str("license_id", lic.ID).
		Str("hardware_id", hardwareID).
		Str("reason", why).
		Msg("License operation refused")
}

func (s *Service) dbError(op string, err error) *Error {
	log.Error().Err(err).Str("op", op).Msg("Database operation failed")
	return E(CodeDatabaseError, "storage failure")
}
