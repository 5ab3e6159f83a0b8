package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists licensing state in a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open license db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS licenses (
		id                    TEXT PRIMARY KEY,
		license_key           TEXT NOT NULL UNIQUE,
		org_id                TEXT NOT NULL DEFAULT '',
		org_name              TEXT NOT NULL DEFAULT '',
		tier                  TEXT NOT NULL DEFAULT '',
		features              TEXT NOT NULL DEFAULT '[]',
		metadata              TEXT,
		status                TEXT NOT NULL DEFAULT 'active',
		is_blacklisted        INTEGER NOT NULL DEFAULT 0,
		issued_at             INTEGER NOT NULL,
		expires_at            INTEGER,
		revoked_at            INTEGER,
		suspended_at          INTEGER,
		blacklisted_at        INTEGER,
		revoke_reason         TEXT NOT NULL DEFAULT '',
		suspension_message    TEXT NOT NULL DEFAULT '',
		blacklist_reason      TEXT NOT NULL DEFAULT '',
		grace_period_ends_at  INTEGER,
		hardware_id           TEXT,
		device_name           TEXT NOT NULL DEFAULT '',
		device_info           TEXT NOT NULL DEFAULT '',
		bound_at              INTEGER,
		last_seen_at          INTEGER,
		bandwidth_used_bytes  INTEGER NOT NULL DEFAULT 0,
		bandwidth_limit_bytes INTEGER,
		quota_exceeded        INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_licenses_org ON licenses(org_id);
	CREATE INDEX IF NOT EXISTS idx_licenses_status ON licenses(status);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_licenses_hardware ON licenses(hardware_id)
		WHERE hardware_id IS NOT NULL AND status IN ('active', 'suspended');

	CREATE TABLE IF NOT EXISTS binding_history (
		id           TEXT PRIMARY KEY,
		license_id   TEXT NOT NULL,
		action       TEXT NOT NULL,
		hardware_id  TEXT NOT NULL DEFAULT '',
		device_name  TEXT NOT NULL DEFAULT '',
		device_info  TEXT NOT NULL DEFAULT '',
		performed_by TEXT NOT NULL,
		reason       TEXT NOT NULL DEFAULT '',
		timestamp    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_binding_history_license ON binding_history(license_id);

	CREATE TABLE IF NOT EXISTS api_tokens (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		token_hash   TEXT NOT NULL UNIQUE,
		prefix       TEXT NOT NULL DEFAULT '',
		suffix       TEXT NOT NULL DEFAULT '',
		scopes       TEXT NOT NULL DEFAULT '',
		created_at   INTEGER NOT NULL,
		expires_at   INTEGER,
		last_used_at INTEGER,
		revoked_at   INTEGER,
		created_by   TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init license schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const licenseColumns = `
	id, license_key, org_id, org_name, tier, features, metadata,
	status, is_blacklisted,
	issued_at, expires_at, revoked_at, suspended_at, blacklisted_at,
	revoke_reason, suspension_message, blacklist_reason,
	grace_period_ends_at,
	hardware_id, device_name, device_info, bound_at, last_seen_at,
	bandwidth_used_bytes, bandwidth_limit_bytes, quota_exceeded`

// UpsertLicense inserts the license or replaces the existing row with the
// same ID. Racing admin mutations are last-write-wins.
func (s *SQLiteStore) UpsertLicense(ctx context.Context, lic *License) error {
	features, err := encodeFeatures(lic.Features)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO licenses (`+licenseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			org_id = excluded.org_id,
			org_name = excluded.org_name,
			tier = excluded.tier,
			features = excluded.features,
			metadata = excluded.metadata,
			status = excluded.status,
			is_blacklisted = excluded.is_blacklisted,
			expires_at = excluded.expires_at,
			revoked_at = excluded.revoked_at,
			suspended_at = excluded.suspended_at,
			blacklisted_at = excluded.blacklisted_at,
			revoke_reason = excluded.revoke_reason,
			suspension_message = excluded.suspension_message,
			blacklist_reason = excluded.blacklist_reason,
			grace_period_ends_at = excluded.grace_period_ends_at,
			hardware_id = excluded.hardware_id,
			device_name = excluded.device_name,
			device_info = excluded.device_info,
			bound_at = excluded.bound_at,
			last_seen_at = excluded.last_seen_at,
			bandwidth_used_bytes = excluded.bandwidth_used_bytes,
			bandwidth_limit_bytes = excluded.bandwidth_limit_bytes,
			quota_exceeded = excluded.quota_exceeded`,
		lic.ID, lic.Key, lic.OrgID, lic.OrgName, lic.Tier, features, nullableString(string(lic.Metadata)),
		string(lic.Status), boolToInt(lic.IsBlacklisted),
		lic.IssuedAt.Unix(), nullableUnix(lic.ExpiresAt), nullableUnix(lic.RevokedAt),
		nullableUnix(lic.SuspendedAt), nullableUnix(lic.BlacklistedAt),
		lic.RevokeReason, lic.SuspensionMessage, lic.BlacklistReason,
		nullableUnix(lic.GracePeriodEndsAt),
		nullableString(lic.HardwareID), lic.DeviceName, lic.DeviceInfo,
		nullableUnix(lic.BoundAt), nullableUnix(lic.LastSeenAt),
		lic.BandwidthUsedBytes, nullableInt64(lic.BandwidthLimitBytes), boolToInt(lic.QuotaExceeded),
	)
	if err != nil {
		return mapSQLiteConstraint(err)
	}
	return nil
}

// GetLicenseByID retrieves a license by its server-assigned ID.
func (s *SQLiteStore) GetLicenseByID(ctx context.Context, id string) (*License, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE id = ?`, id)
	return scanLicense(row)
}

// GetLicenseByKey retrieves a license by its human-readable key.
func (s *SQLiteStore) GetLicenseByKey(ctx context.Context, key string) (*License, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE license_key = ?`, key)
	return scanLicense(row)
}

// GetLicenseByHardware retrieves the active or suspended license bound to
// the given hardware ID.
func (s *SQLiteStore) GetLicenseByHardware(ctx context.Context, hardwareID string) (*License, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+licenseColumns+` FROM licenses
		WHERE hardware_id = ? AND status IN ('active', 'suspended')`, hardwareID)
	return scanLicense(row)
}

// ListLicensesByOrg returns one page of licenses plus the total count.
// An empty orgID lists across all organizations.
func (s *SQLiteStore) ListLicensesByOrg(ctx context.Context, orgID string, page, perPage int) ([]*License, int, error) {
	where := ""
	args := []any{}
	if orgID != "" {
		where = " WHERE org_id = ?"
		args = append(args, orgID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM licenses`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count licenses: %w", err)
	}

	if page < 1 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+licenseColumns+` FROM licenses`+where+` ORDER BY issued_at DESC, id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	licenses, err := scanLicenses(rows)
	if err != nil {
		return nil, 0, err
	}
	return licenses, total, nil
}

// BindLicense attaches the hardware ID to the license in one conditional
// statement. It reports false when the row no longer satisfies the bind
// preconditions, and ErrHardwareConflict when the hardware ID is already
// bound to another active/suspended license.
func (s *SQLiteStore) BindLicense(ctx context.Context, id, hardwareID, deviceName, deviceInfo string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE licenses SET
			hardware_id = ?, device_name = ?, device_info = ?,
			bound_at = ?, last_seen_at = ?
		WHERE id = ?
			AND is_blacklisted = 0
			AND status IN ('active', 'suspended')
			AND (expires_at IS NULL OR expires_at > ?)
			AND (hardware_id IS NULL OR hardware_id = ?)`,
		hardwareID, deviceName, deviceInfo, now.Unix(), now.Unix(),
		id, now.Unix(), hardwareID,
	)
	if err != nil {
		return false, mapSQLiteConstraint(err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ReleaseLicense clears the binding field group in one statement. When
// hardwareID is non-empty, the release only applies if it matches the
// current binding.
func (s *SQLiteStore) ReleaseLicense(ctx context.Context, id, hardwareID string) (bool, error) {
	query := `
		UPDATE licenses SET
			hardware_id = NULL, device_name = '', device_info = '',
			bound_at = NULL, last_seen_at = NULL
		WHERE id = ? AND hardware_id IS NOT NULL`
	args := []any{id}
	if hardwareID != "" {
		query += ` AND hardware_id = ?`
		args = append(args, hardwareID)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("release license: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// TouchLastSeen updates only the last-seen timestamp.
func (s *SQLiteStore) TouchLastSeen(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET last_seen_at = ? WHERE id = ?`, now.Unix(), id)
	if err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}
	return nil
}

// MarkExpired transitions an active license past its expiry to expired.
func (s *SQLiteStore) MarkExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE licenses SET status = 'expired'
		WHERE id = ? AND status = 'active'
			AND expires_at IS NOT NULL AND expires_at < ?`,
		id, now.Unix())
	if err != nil {
		return false, fmt.Errorf("mark expired: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// RevokeExpiredGrace transitions a suspended license whose grace period
// has lapsed to revoked.
func (s *SQLiteStore) RevokeExpiredGrace(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE licenses SET
			status = 'revoked', revoked_at = ?, suspended_at = NULL,
			revoke_reason = 'grace period expired'
		WHERE id = ? AND status = 'suspended'
			AND grace_period_ends_at IS NOT NULL AND grace_period_ends_at < ?`,
		now.Unix(), id, now.Unix())
	if err != nil {
		return false, fmt.Errorf("revoke expired grace: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ClearStaleBinding releases a binding whose device has not been seen
// since the threshold.
func (s *SQLiteStore) ClearStaleBinding(ctx context.Context, id string, threshold time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE licenses SET
			hardware_id = NULL, device_name = '', device_info = '',
			bound_at = NULL, last_seen_at = NULL
		WHERE id = ? AND hardware_id IS NOT NULL
			AND last_seen_at IS NOT NULL AND last_seen_at < ?`,
		id, threshold.Unix())
	if err != nil {
		return false, fmt.Errorf("clear stale binding: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ExpiredLicenses returns active licenses whose expiry has passed.
func (s *SQLiteStore) ExpiredLicenses(ctx context.Context, now time.Time) ([]*License, error) {
	return s.queryLicenses(ctx,
		`SELECT `+licenseColumns+` FROM licenses
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at < ?`, now.Unix())
}

// ExpiredGracePeriods returns suspended licenses whose grace period has
// lapsed.
func (s *SQLiteStore) ExpiredGracePeriods(ctx context.Context, now time.Time) ([]*License, error) {
	return s.queryLicenses(ctx,
		`SELECT `+licenseColumns+` FROM licenses
		WHERE status = 'suspended' AND grace_period_ends_at IS NOT NULL AND grace_period_ends_at < ?`, now.Unix())
}

// StaleDeviceLicenses returns bound licenses not seen since the threshold.
func (s *SQLiteStore) StaleDeviceLicenses(ctx context.Context, threshold time.Time) ([]*License, error) {
	return s.queryLicenses(ctx,
		`SELECT `+licenseColumns+` FROM licenses
		WHERE hardware_id IS NOT NULL AND last_seen_at IS NOT NULL AND last_seen_at < ?`, threshold.Unix())
}

func (s *SQLiteStore) queryLicenses(ctx context.Context, query string, args ...any) ([]*License, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query licenses: %w", err)
	}
	defer rows.Close()
	return scanLicenses(rows)
}

// RecordBindingEvent appends one audit entry. Entries are never mutated.
func (s *SQLiteStore) RecordBindingEvent(ctx context.Context, event *BindingEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO binding_history (id, license_id, action, hardware_id, device_name, device_info, performed_by, reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.LicenseID, string(event.Action),
		event.HardwareID, event.DeviceName, event.DeviceInfo,
		event.PerformedBy, event.Reason, event.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record binding event: %w", err)
	}
	return nil
}

// ListBindingEvents returns the audit trail for a license, oldest first.
func (s *SQLiteStore) ListBindingEvents(ctx context.Context, licenseID string) ([]*BindingEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, license_id, action, hardware_id, device_name, device_info, performed_by, reason, timestamp
		FROM binding_history WHERE license_id = ? ORDER BY timestamp, id`, licenseID)
	if err != nil {
		return nil, fmt.Errorf("list binding events: %w", err)
	}
	defer rows.Close()

	var events []*BindingEvent
	for rows.Next() {
		var e BindingEvent
		var action string
		var ts int64
		if err := rows.Scan(&e.ID, &e.LicenseID, &action, &e.HardwareID, &e.DeviceName, &e.DeviceInfo, &e.PerformedBy, &e.Reason, &ts); err != nil {
			return nil, fmt.Errorf("scan binding event: %w", err)
		}
		e.Action = BindingAction(action)
		e.Timestamp = time.Unix(ts, 0).UTC()
		events = append(events, &e)
	}
	return events, rows.Err()
}

// CreateAPIToken inserts a new token row.
func (s *SQLiteStore) CreateAPIToken(ctx context.Context, token *APIToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_tokens (id, name, token_hash, prefix, suffix, scopes, created_at, expires_at, last_used_at, revoked_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID, token.Name, token.Hash, token.Prefix, token.Suffix,
		strings.Join(token.Scopes, " "),
		token.CreatedAt.Unix(), nullableUnix(token.ExpiresAt),
		nullableUnix(token.LastUsedAt), nullableUnix(token.RevokedAt), token.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("create api token: %w", err)
	}
	return nil
}

const tokenColumns = `id, name, token_hash, prefix, suffix, scopes, created_at, expires_at, last_used_at, revoked_at, created_by`

// GetAPIToken retrieves a token by ID.
func (s *SQLiteStore) GetAPIToken(ctx context.Context, id string) (*APIToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM api_tokens WHERE id = ?`, id)
	return scanToken(row)
}

// GetAPITokenByHash retrieves a token by the SHA-256 hash of its raw value.
func (s *SQLiteStore) GetAPITokenByHash(ctx context.Context, hash string) (*APIToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM api_tokens WHERE token_hash = ?`, hash)
	return scanToken(row)
}

// ListAPITokens returns all tokens, newest first.
func (s *SQLiteStore) ListAPITokens(ctx context.Context) ([]*APIToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM api_tokens ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list api tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*APIToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// RevokeAPIToken marks a token revoked. Revocation is idempotent.
func (s *SQLiteStore) RevokeAPIToken(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, now.Unix(), id)
	if err != nil {
		return fmt.Errorf("revoke api token: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		// Distinguish a missing token from an already-revoked one.
		if _, err := s.GetAPIToken(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// UpdateTokenLastUsed records the most recent successful validation.
func (s *SQLiteStore) UpdateTokenLastUsed(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = ? WHERE id = ?`, now.Unix(), id)
	if err != nil {
		return fmt.Errorf("update token last used: %w", err)
	}
	return nil
}

// HasAnyAPITokens reports whether at least one token row exists.
func (s *SQLiteStore) HasAnyAPITokens(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_tokens`).Scan(&count); err != nil {
		return false, fmt.Errorf("count api tokens: %w", err)
	}
	return count > 0, nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanLicense(s scanner) (*License, error) {
	var lic License
	var status, features string
	var metadata, hardwareID sql.NullString
	var blacklisted, quotaExceeded int
	var issuedAt int64
	var expiresAt, revokedAt, suspendedAt, blacklistedAt, graceEndsAt, boundAt, lastSeenAt, limitBytes sql.NullInt64

	err := s.Scan(
		&lic.ID, &lic.Key, &lic.OrgID, &lic.OrgName, &lic.Tier, &features, &metadata,
		&status, &blacklisted,
		&issuedAt, &expiresAt, &revokedAt, &suspendedAt, &blacklistedAt,
		&lic.RevokeReason, &lic.SuspensionMessage, &lic.BlacklistReason,
		&graceEndsAt,
		&hardwareID, &lic.DeviceName, &lic.DeviceInfo, &boundAt, &lastSeenAt,
		&lic.BandwidthUsedBytes, &limitBytes, &quotaExceeded,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan license: %w", err)
	}

	if err := json.Unmarshal([]byte(features), &lic.Features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	if metadata.Valid {
		lic.Metadata = json.RawMessage(metadata.String)
	}
	lic.Status = LicenseStatus(status)
	lic.IsBlacklisted = blacklisted != 0
	lic.QuotaExceeded = quotaExceeded != 0
	lic.IssuedAt = time.Unix(issuedAt, 0).UTC()
	lic.ExpiresAt = timeFromNullable(expiresAt)
	lic.RevokedAt = timeFromNullable(revokedAt)
	lic.SuspendedAt = timeFromNullable(suspendedAt)
	lic.BlacklistedAt = timeFromNullable(blacklistedAt)
	lic.GracePeriodEndsAt = timeFromNullable(graceEndsAt)
	lic.BoundAt = timeFromNullable(boundAt)
	lic.LastSeenAt = timeFromNullable(lastSeenAt)
	if hardwareID.Valid {
		lic.HardwareID = hardwareID.String
	}
	if limitBytes.Valid {
		v := limitBytes.Int64
		lic.BandwidthLimitBytes = &v
	}
	return &lic, nil
}

func scanLicenses(rows *sql.Rows) ([]*License, error) {
	var licenses []*License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, lic)
	}
	return licenses, rows.Err()
}

func scanToken(s scanner) (*APIToken, error) {
	var token APIToken
	var scopes string
	var createdAt int64
	var expiresAt, lastUsedAt, revokedAt sql.NullInt64

	err := s.Scan(
		&token.ID, &token.Name, &token.Hash, &token.Prefix, &token.Suffix, &scopes,
		&createdAt, &expiresAt, &lastUsedAt, &revokedAt, &token.CreatedBy,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan api token: %w", err)
	}

	token.Scopes = strings.Fields(scopes)
	token.CreatedAt = time.Unix(createdAt, 0).UTC()
	token.ExpiresAt = timeFromNullable(expiresAt)
	token.LastUsedAt = timeFromNullable(lastUsedAt)
	token.RevokedAt = timeFromNullable(revokedAt)
	return &token, nil
}

func encodeFeatures(features []string) (string, error) {
	if features == nil {
		features = []string{}
	}
	data, err := json.Marshal(features)
	if err != nil {
		return "", fmt.Errorf("encode features: %w", err)
	}
	return string(data), nil
}

func mapSQLiteConstraint(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "licenses.license_key"):
		return ErrDuplicateKey
	case strings.Contains(msg, "idx_licenses_hardware") || strings.Contains(msg, "licenses.hardware_id"):
		return ErrHardwareConflict
	default:
		return fmt.Errorf("write license: %w", err)
	}
}

func timeFromNullable(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func nullableUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func nullableInt64(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
