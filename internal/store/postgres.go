package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore persists licensing state in PostgreSQL via the pgx driver.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to the database at url and ensures the schema.
func NewPostgresStore(ctx context.Context, url string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS licenses (
		id                    TEXT PRIMARY KEY,
		license_key           TEXT NOT NULL UNIQUE,
		org_id                TEXT NOT NULL DEFAULT '',
		org_name              TEXT NOT NULL DEFAULT '',
		tier                  TEXT NOT NULL DEFAULT '',
		features              JSONB NOT NULL DEFAULT '[]',
		metadata              JSONB,
		status                TEXT NOT NULL DEFAULT 'active',
		is_blacklisted        BOOLEAN NOT NULL DEFAULT FALSE,
		issued_at             TIMESTAMPTZ NOT NULL,
		expires_at            TIMESTAMPTZ,
		revoked_at            TIMESTAMPTZ,
		suspended_at          TIMESTAMPTZ,
		blacklisted_at        TIMESTAMPTZ,
		revoke_reason         TEXT NOT NULL DEFAULT '',
		suspension_message    TEXT NOT NULL DEFAULT '',
		blacklist_reason      TEXT NOT NULL DEFAULT '',
		grace_period_ends_at  TIMESTAMPTZ,
		hardware_id           TEXT,
		device_name           TEXT NOT NULL DEFAULT '',
		device_info           TEXT NOT NULL DEFAULT '',
		bound_at              TIMESTAMPTZ,
		last_seen_at          TIMESTAMPTZ,
		bandwidth_used_bytes  BIGINT NOT NULL DEFAULT 0,
		bandwidth_limit_bytes BIGINT,
		quota_exceeded        BOOLEAN NOT NULL DEFAULT FALSE
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
		timestamp    TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_binding_history_license ON binding_history(license_id);

	CREATE TABLE IF NOT EXISTS api_tokens (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		token_hash   TEXT NOT NULL UNIQUE,
		prefix       TEXT NOT NULL DEFAULT '',
		suffix       TEXT NOT NULL DEFAULT '',
		scopes       TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL,
		expires_at   TIMESTAMPTZ,
		last_used_at TIMESTAMPTZ,
		revoked_at   TIMESTAMPTZ,
		created_by   TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init license schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertLicense inserts the license or replaces the row with the same ID.
func (s *PostgresStore) UpsertLicense(ctx context.Context, lic *License) error {
	features, err := encodeFeatures(lic.Features)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO licenses (`+licenseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)
		ON CONFLICT (id) DO UPDATE SET
			org_id = EXCLUDED.org_id,
			org_name = EXCLUDED.org_name,
			tier = EXCLUDED.tier,
			features = EXCLUDED.features,
			metadata = EXCLUDED.metadata,
			status = EXCLUDED.status,
			is_blacklisted = EXCLUDED.is_blacklisted,
			expires_at = EXCLUDED.expires_at,
			revoked_at = EXCLUDED.revoked_at,
			suspended_at = EXCLUDED.suspended_at,
			blacklisted_at = EXCLUDED.blacklisted_at,
			revoke_reason = EXCLUDED.revoke_reason,
			suspension_message = EXCLUDED.suspension_message,
			blacklist_reason = EXCLUDED.blacklist_reason,
			grace_period_ends_at = EXCLUDED.grace_period_ends_at,
			hardware_id = EXCLUDED.hardware_id,
			device_name = EXCLUDED.device_name,
			device_info = EXCLUDED.device_info,
			bound_at = EXCLUDED.bound_at,
			last_seen_at = EXCLUDED.last_seen_at,
			bandwidth_used_bytes = EXCLUDED.bandwidth_used_bytes,
			bandwidth_limit_bytes = EXCLUDED.bandwidth_limit_bytes,
			quota_exceeded = EXCLUDED.quota_exceeded`,
		lic.ID, lic.Key, lic.OrgID, lic.OrgName, lic.Tier, features, nullableString(string(lic.Metadata)),
		string(lic.Status), lic.IsBlacklisted,
		lic.IssuedAt.UTC(), nullableTime(lic.ExpiresAt), nullableTime(lic.RevokedAt),
		nullableTime(lic.SuspendedAt), nullableTime(lic.BlacklistedAt),
		lic.RevokeReason, lic.SuspensionMessage, lic.BlacklistReason,
		nullableTime(lic.GracePeriodEndsAt),
		nullableString(lic.HardwareID), lic.DeviceName, lic.DeviceInfo,
		nullableTime(lic.BoundAt), nullableTime(lic.LastSeenAt),
		lic.BandwidthUsedBytes, nullableInt64(lic.BandwidthLimitBytes), lic.QuotaExceeded,
	)
	if err != nil {
		return mapPostgresConstraint(err)
	}
	return nil
}

// GetLicenseByID retrieves a license by its server-assigned ID.
func (s *PostgresStore) GetLicenseByID(ctx context.Context, id string) (*License, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE id = $1`, id)
	return scanPgLicense(row)
}

// GetLicenseByKey retrieves a license by its human-readable key.
func (s *PostgresStore) GetLicenseByKey(ctx context.Context, key string) (*License, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE license_key = $1`, key)
	return scanPgLicense(row)
}

// GetLicenseByHardware retrieves the active or suspended license bound to
// the given hardware ID.
func (s *PostgresStore) GetLicenseByHardware(ctx context.Context, hardwareID string) (*License, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+licenseColumns+` FROM licenses
		WHERE hardware_id = $1 AND status IN ('active', 'suspended')`, hardwareID)
	return scanPgLicense(row)
}

// ListLicensesByOrg returns one page of licenses plus the total count.
func (s *PostgresStore) ListLicensesByOrg(ctx context.Context, orgID string, page, perPage int) ([]*License, int, error) {
	where := ""
	countArgs := []any{}
	if orgID != "" {
		where = " WHERE org_id = $1"
		countArgs = append(countArgs, orgID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM licenses`+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count licenses: %w", err)
	}

	if page < 1 {
		page = 1
	}
	var rows *sql.Rows
	var err error
	if orgID != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+licenseColumns+` FROM licenses WHERE org_id = $1 ORDER BY issued_at DESC, id LIMIT $2 OFFSET $3`,
			orgID, perPage, (page-1)*perPage)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+licenseColumns+` FROM licenses ORDER BY issued_at DESC, id LIMIT $1 OFFSET $2`,
			perPage, (page-1)*perPage)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	licenses, err := scanPgLicenses(rows)
	if err != nil {
		return nil, 0, err
	}
	return licenses, total, nil
}

// BindLicense attaches the hardware ID in one conditional statement.
func (s *PostgresStore) BindLicense(ctx context.Context, id, hardwareID, deviceName, deviceInfo string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE licenses SET
			hardware_id = $1, device_name = $2, device_info = $3,
			bound_at = $4, last_seen_at = $4
		WHERE id = $5
			AND is_blacklisted = FALSE
			AND status IN ('active', 'suspended')
			AND (expires_at IS NULL OR expires_at > $4)
			AND (hardware_id IS NULL OR hardware_id = $1)`,
		hardwareID, deviceName, deviceInfo, now.UTC(), id,
	)
	if err != nil {
		return false, mapPostgresConstraint(err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ReleaseLicense clears the binding field group in one statement.
func (s *PostgresStore) ReleaseLicense(ctx context.Context, id, hardwareID string) (bool, error) {
	query := `
		UPDATE licenses SET
			hardware_id = NULL, device_name = '', device_info = '',
			bound_at = NULL, last_seen_at = NULL
		WHERE id = $1 AND hardware_id IS NOT NULL`
	args := []any{id}
	if hardwareID != "" {
		query += ` AND hardware_id = $2`
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
func (s *PostgresStore) TouchLastSeen(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET last_seen_at = $1 WHERE id = $2`, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}
	return nil
}

// MarkExpired transitions an active license past its expiry to expired.
func (s *PostgresStore) MarkExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE licenses SET status = 'expired'
		WHERE id = $1 AND status = 'active'
			AND expires_at IS NOT NULL AND expires_at < $2`,
		id, now.UTC())
	if err != nil {
		return false, fmt.Errorf("mark expired: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// RevokeExpiredGrace transitions a suspended license whose grace period
// has lapsed to revoked.
func (s *PostgresStore) RevokeExpiredGrace(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE licenses SET
			status = 'revoked', revoked_at = $1, suspended_at = NULL,
			revoke_reason = 'grace period expired'
		WHERE id = $2 AND status = 'suspended'
			AND grace_period_ends_at IS NOT NULL AND grace_period_ends_at < $1`,
		now.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("revoke expired grace: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ClearStaleBinding releases a binding whose device has not been seen
// since the threshold.
func (s *PostgresStore) ClearStaleBinding(ctx context.Context, id string, threshold time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE licenses SET
			hardware_id = NULL, device_name = '', device_info = '',
			bound_at = NULL, last_seen_at = NULL
		WHERE id = $1 AND hardware_id IS NOT NULL
			AND last_seen_at IS NOT NULL AND last_seen_at < $2`,
		id, threshold.UTC())
	if err != nil {
		return false, fmt.Errorf("clear stale binding: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ExpiredLicenses returns active licenses whose expiry has passed.
func (s *PostgresStore) ExpiredLicenses(ctx context.Context, now time.Time) ([]*License, error) {
	return s.queryLicenses(ctx,
		`SELECT `+licenseColumns+` FROM licenses
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at < $1`, now.UTC())
}

// ExpiredGracePeriods returns suspended licenses whose grace period has
// lapsed.
func (s *PostgresStore) ExpiredGracePeriods(ctx context.Context, now time.Time) ([]*License, error) {
	return s.queryLicenses(ctx,
		`SELECT `+licenseColumns+` FROM licenses
		WHERE status = 'suspended' AND grace_period_ends_at IS NOT NULL AND grace_period_ends_at < $1`, now.UTC())
}

// StaleDeviceLicenses returns bound licenses not seen since the threshold.
func (s *PostgresStore) StaleDeviceLicenses(ctx context.Context, threshold time.Time) ([]*License, error) {
	return s.queryLicenses(ctx,
		`SELECT `+licenseColumns+` FROM licenses
		WHERE hardware_id IS NOT NULL AND last_seen_at IS NOT NULL AND last_seen_at < $1`, threshold.UTC())
}

func (s *PostgresStore) queryLicenses(ctx context.Context, query string, args ...any) ([]*License, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query licenses: %w", err)
	}
	defer rows.Close()
	return scanPgLicenses(rows)
}

// RecordBindingEvent appends one audit entry.
func (s *PostgresStore) RecordBindingEvent(ctx context.Context, event *BindingEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO binding_history (id, license_id, action, hardware_id, device_name, device_info, performed_by, reason, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.ID, event.LicenseID, string(event.Action),
		event.HardwareID, event.DeviceName, event.DeviceInfo,
		event.PerformedBy, event.Reason, event.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record binding event: %w", err)
	}
	return nil
}

// ListBindingEvents returns the audit trail for a license, oldest first.
func (s *PostgresStore) ListBindingEvents(ctx context.Context, licenseID string) ([]*BindingEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, license_id, action, hardware_id, device_name, device_info, performed_by, reason, timestamp
		FROM binding_history WHERE license_id = $1 ORDER BY timestamp, id`, licenseID)
	if err != nil {
		return nil, fmt.Errorf("list binding events: %w", err)
	}
	defer rows.Close()

	var events []*BindingEvent
	for rows.Next() {
		var e BindingEvent
		var action string
		if err := rows.Scan(&e.ID, &e.LicenseID, &action, &e.HardwareID, &e.DeviceName, &e.DeviceInfo, &e.PerformedBy, &e.Reason, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan binding event: %w", err)
		}
		e.Action = BindingAction(action)
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, &e)
	}
	return events, rows.Err()
}

// CreateAPIToken inserts a new token row.
func (s *PostgresStore) CreateAPIToken(ctx context.Context, token *APIToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_tokens (id, name, token_hash, prefix, suffix, scopes, created_at, expires_at, last_used_at, revoked_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		token.ID, token.Name, token.Hash, token.Prefix, token.Suffix,
		strings.Join(token.Scopes, " "),
		token.CreatedAt.UTC(), nullableTime(token.ExpiresAt),
		nullableTime(token.LastUsedAt), nullableTime(token.RevokedAt), token.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("create api token: %w", err)
	}
	return nil
}

// GetAPIToken retrieves a token by ID.
func (s *PostgresStore) GetAPIToken(ctx context.Context, id string) (*APIToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM api_tokens WHERE id = $1`, id)
	return scanPgToken(row)
}

// GetAPITokenByHash retrieves a token by the SHA-256 hash of its raw value.
func (s *PostgresStore) GetAPITokenByHash(ctx context.Context, hash string) (*APIToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM api_tokens WHERE token_hash = $1`, hash)
	return scanPgToken(row)
}

// ListAPITokens returns all tokens, newest first.
func (s *PostgresStore) ListAPITokens(ctx context.Context) ([]*APIToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM api_tokens ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list api tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*APIToken
	for rows.Next() {
		token, err := scanPgToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// RevokeAPIToken marks a token revoked. Revocation is idempotent.
func (s *PostgresStore) RevokeAPIToken(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("revoke api token: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		if _, err := s.GetAPIToken(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// UpdateTokenLastUsed records the most recent successful validation.
func (s *PostgresStore) UpdateTokenLastUsed(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE api_tokens SET last_used_at = $1 WHERE id = $2`, now.UTC(), id)
	if err != nil {
		return fmt.Errorf("update token last used: %w", err)
	}
	return nil
}

// HasAnyAPITokens reports whether at least one token row exists.
func (s *PostgresStore) HasAnyAPITokens(ctx context.Context) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM api_tokens)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("count api tokens: %w", err)
	}
	return exists, nil
}

func scanPgLicense(sc scanner) (*License, error) {
	var lic License
	var status, features string
	var metadata, hardwareID sql.NullString
	var expiresAt, revokedAt, suspendedAt, blacklistedAt, graceEndsAt, boundAt, lastSeenAt sql.NullTime
	var limitBytes sql.NullInt64

	err := sc.Scan(
		&lic.ID, &lic.Key, &lic.OrgID, &lic.OrgName, &lic.Tier, &features, &metadata,
		&status, &lic.IsBlacklisted,
		&lic.IssuedAt, &expiresAt, &revokedAt, &suspendedAt, &blacklistedAt,
		&lic.RevokeReason, &lic.SuspensionMessage, &lic.BlacklistReason,
		&graceEndsAt,
		&hardwareID, &lic.DeviceName, &lic.DeviceInfo, &boundAt, &lastSeenAt,
		&lic.BandwidthUsedBytes, &limitBytes, &lic.QuotaExceeded,
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
	lic.IssuedAt = lic.IssuedAt.UTC()
	lic.ExpiresAt = timeFromNullTime(expiresAt)
	lic.RevokedAt = timeFromNullTime(revokedAt)
	lic.SuspendedAt = timeFromNullTime(suspendedAt)
	lic.BlacklistedAt = timeFromNullTime(blacklistedAt)
	lic.GracePeriodEndsAt = timeFromNullTime(graceEndsAt)
	lic.BoundAt = timeFromNullTime(boundAt)
	lic.LastSeenAt = timeFromNullTime(lastSeenAt)
	if hardwareID.Valid {
		lic.HardwareID = hardwareID.String
	}
	if limitBytes.Valid {
		v := limitBytes.Int64
		lic.BandwidthLimitBytes = &v
	}
	return &lic, nil
}

func scanPgLicenses(rows *sql.Rows) ([]*License, error) {
	var licenses []*License
	for rows.Next() {
		lic, err := scanPgLicense(rows)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, lic)
	}
	return licenses, rows.Err()
}

func scanPgToken(sc scanner) (*APIToken, error) {
	var token APIToken
	var scopes string
	var expiresAt, lastUsedAt, revokedAt sql.NullTime

	err := sc.Scan(
		&token.ID, &token.Name, &token.Hash, &token.Prefix, &token.Suffix, &scopes,
		&token.CreatedAt, &expiresAt, &lastUsedAt, &revokedAt, &token.CreatedBy,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan api token: %w", err)
	}

	token.Scopes = strings.Fields(scopes)
	token.CreatedAt = token.CreatedAt.UTC()
	token.ExpiresAt = timeFromNullTime(expiresAt)
	token.LastUsedAt = timeFromNullTime(lastUsedAt)
	token.RevokedAt = timeFromNullTime(revokedAt)
	return &token, nil
}

func timeFromNullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func mapPostgresConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "licenses_license_key_key":
			return ErrDuplicateKey
		case "idx_licenses_hardware":
			return ErrHardwareConflict
		}
	}
	return fmt.Errorf("write license: %w", err)
}
