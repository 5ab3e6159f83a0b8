package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "talos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	future := now.Add(24 * time.Hour)
	limit := int64(1 << 30)

	lic := &License{
		ID:                  "lic-1",
		Key:                 "LIC-AAAA-BBBB-CCCC-DDDD",
		OrgID:               "org-1",
		OrgName:             "Acme",
		Tier:                "pro",
		Features:            []string{"basic", "export"},
		Metadata:            []byte(`{"seat":"gold"}`),
		Status:              StatusActive,
		IssuedAt:            now,
		ExpiresAt:           &future,
		BandwidthLimitBytes: &limit,
	}
	require.NoError(t, s.UpsertLicense(ctx, lic))

	got, err := s.GetLicenseByKey(ctx, lic.Key)
	require.NoError(t, err)
	assert.Equal(t, lic.ID, got.ID)
	assert.Equal(t, lic.Features, got.Features)
	assert.JSONEq(t, `{"seat":"gold"}`, string(got.Metadata))
	assert.Equal(t, future.Unix(), got.ExpiresAt.Unix())
	require.NotNil(t, got.BandwidthLimitBytes)
	assert.Equal(t, limit, *got.BandwidthLimitBytes)
	assert.Empty(t, got.HardwareID)
}

func TestSQLiteStoreKeyUniqueness(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	require.NoError(t, s.UpsertLicense(ctx, newTestLicense("lic-1", "LIC-SAME-SAME-SAME-SAME")))
	err := s.UpsertLicense(ctx, newTestLicense("lic-2", "LIC-SAME-SAME-SAME-SAME"))
	assert.True(t, errors.Is(err, ErrDuplicateKey))
}

func TestSQLiteStoreHardwareUniqueness(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	now := time.Now().UTC()

	require.NoError(t, s.UpsertLicense(ctx, newTestLicense("lic-1", "LIC-AAAA-AAAA-AAAA-AAAA")))
	require.NoError(t, s.UpsertLicense(ctx, newTestLicense("lic-2", "LIC-BBBB-BBBB-BBBB-BBBB")))

	bound, err := s.BindLicense(ctx, "lic-1", "HW-A", "laptop", "", now)
	require.NoError(t, err)
	require.True(t, bound)

	_, err = s.BindLicense(ctx, "lic-2", "HW-A", "desktop", "", now)
	assert.True(t, errors.Is(err, ErrHardwareConflict))

	// Releasing lic-1 frees the hardware for lic-2.
	released, err := s.ReleaseLicense(ctx, "lic-1", "HW-A")
	require.NoError(t, err)
	require.True(t, released)

	bound, err = s.BindLicense(ctx, "lic-2", "HW-A", "desktop", "", now)
	require.NoError(t, err)
	assert.True(t, bound)

	got, err := s.GetLicenseByHardware(ctx, "HW-A")
	require.NoError(t, err)
	assert.Equal(t, "lic-2", got.ID)
}

func TestSQLiteStoreConditionalExpiry(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	lic := newTestLicense("lic-1", "LIC-EXPD-EXPD-EXPD-EXPD")
	lic.ExpiresAt = &past
	require.NoError(t, s.UpsertLicense(ctx, lic))

	rows, err := s.ExpiredLicenses(ctx, now)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	moved, err := s.MarkExpired(ctx, "lic-1", now)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = s.MarkExpired(ctx, "lic-1", now)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestSQLiteStoreBindingHistory(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.RecordBindingEvent(ctx, &BindingEvent{
		ID:          "evt-1",
		LicenseID:   "lic-1",
		Action:      ActionBind,
		HardwareID:  "HW-A",
		PerformedBy: "user",
		Timestamp:   now,
	}))
	require.NoError(t, s.RecordBindingEvent(ctx, &BindingEvent{
		ID:          "evt-2",
		LicenseID:   "lic-1",
		Action:      ActionRelease,
		HardwareID:  "HW-A",
		PerformedBy: "user",
		Timestamp:   now.Add(time.Second),
	}))

	events, err := s.ListBindingEvents(ctx, "lic-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ActionBind, events[0].Action)
	assert.Equal(t, ActionRelease, events[1].Action)
}

func TestSQLiteStoreTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	token := &APIToken{
		ID:        "tok-1",
		Name:      "admin",
		Hash:      "deadbeef",
		Prefix:    "tl_abc",
		Suffix:    "wxyz",
		Scopes:    []string{"licenses:write", "tokens:read"},
		CreatedAt: now,
		CreatedBy: "bootstrap",
	}
	require.NoError(t, s.CreateAPIToken(ctx, token))

	got, err := s.GetAPITokenByHash(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, []string{"licenses:write", "tokens:read"}, got.Scopes)

	require.NoError(t, s.UpdateTokenLastUsed(ctx, "tok-1", now))
	require.NoError(t, s.RevokeAPIToken(ctx, "tok-1", now))

	got, err = s.GetAPIToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.NotNil(t, got.LastUsedAt)
	assert.NotNil(t, got.RevokedAt)

	err = s.RevokeAPIToken(ctx, "missing", now)
	assert.True(t, errors.Is(err, ErrNotFound))
}
