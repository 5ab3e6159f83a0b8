package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLicense(id, key string) *License {
	return &License{
		ID:       id,
		Key:      key,
		OrgID:    "org-1",
		Status:   StatusActive,
		Features: []string{"basic"},
		IssuedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestMemoryStoreUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	lic := newTestLicense("lic-1", "LIC-AAAA-BBBB-CCCC-DDDD")
	require.NoError(t, s.UpsertLicense(ctx, lic))

	byID, err := s.GetLicenseByID(ctx, "lic-1")
	require.NoError(t, err)
	assert.Equal(t, lic.Key, byID.Key)

	byKey, err := s.GetLicenseByKey(ctx, lic.Key)
	require.NoError(t, err)
	assert.Equal(t, "lic-1", byKey.ID)

	_, err = s.GetLicenseByID(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStoreDuplicateKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.UpsertLicense(ctx, newTestLicense("lic-1", "LIC-SAME-SAME-SAME-SAME")))
	err := s.UpsertLicense(ctx, newTestLicense("lic-2", "LIC-SAME-SAME-SAME-SAME"))
	assert.True(t, errors.Is(err, ErrDuplicateKey))
}

func TestMemoryStoreBindReleaseCycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	require.NoError(t, s.UpsertLicense(ctx, newTestLicense("lic-1", "LIC-1111-2222-3333-4444")))

	bound, err := s.BindLicense(ctx, "lic-1", "HW-A", "laptop", "", now)
	require.NoError(t, err)
	assert.True(t, bound)

	lic, err := s.GetLicenseByHardware(ctx, "HW-A")
	require.NoError(t, err)
	assert.Equal(t, "lic-1", lic.ID)
	assert.NotNil(t, lic.BoundAt)
	assert.NotNil(t, lic.LastSeenAt)

	// Rebinding the same hardware succeeds; another device does not.
	bound, err = s.BindLicense(ctx, "lic-1", "HW-A", "laptop", "", now)
	require.NoError(t, err)
	assert.True(t, bound)
	bound, err = s.BindLicense(ctx, "lic-1", "HW-B", "desktop", "", now)
	require.NoError(t, err)
	assert.False(t, bound)

	// Release with wrong hardware is a no-op; with the right one it clears
	// the whole binding group.
	released, err := s.ReleaseLicense(ctx, "lic-1", "HW-B")
	require.NoError(t, err)
	assert.False(t, released)
	released, err = s.ReleaseLicense(ctx, "lic-1", "HW-A")
	require.NoError(t, err)
	assert.True(t, released)

	lic, err = s.GetLicenseByID(ctx, "lic-1")
	require.NoError(t, err)
	assert.Empty(t, lic.HardwareID)
	assert.Empty(t, lic.DeviceName)
	assert.Nil(t, lic.BoundAt)
	assert.Nil(t, lic.LastSeenAt)
}

func TestMemoryStoreHardwareUniqueAcrossLicenses(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	require.NoError(t, s.UpsertLicense(ctx, newTestLicense("lic-1", "LIC-AAAA-AAAA-AAAA-AAAA")))
	require.NoError(t, s.UpsertLicense(ctx, newTestLicense("lic-2", "LIC-BBBB-BBBB-BBBB-BBBB")))

	bound, err := s.BindLicense(ctx, "lic-1", "HW-A", "", "", now)
	require.NoError(t, err)
	require.True(t, bound)

	_, err = s.BindLicense(ctx, "lic-2", "HW-A", "", "", now)
	assert.True(t, errors.Is(err, ErrHardwareConflict))
}

func TestMemoryStoreBindRejectsExpiredAndBlacklisted(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	expired := newTestLicense("lic-exp", "LIC-EXPD-EXPD-EXPD-EXPD")
	expired.ExpiresAt = &past
	require.NoError(t, s.UpsertLicense(ctx, expired))

	bound, err := s.BindLicense(ctx, "lic-exp", "HW-A", "", "", now)
	require.NoError(t, err)
	assert.False(t, bound)

	black := newTestLicense("lic-bl", "LIC-BLCK-BLCK-BLCK-BLCK")
	black.IsBlacklisted = true
	require.NoError(t, s.UpsertLicense(ctx, black))

	bound, err = s.BindLicense(ctx, "lic-bl", "HW-B", "", "", now)
	require.NoError(t, err)
	assert.False(t, bound)
}

func TestMemoryStoreConditionalTransitionsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	lic := newTestLicense("lic-1", "LIC-TTTT-TTTT-TTTT-TTTT")
	lic.ExpiresAt = &past
	require.NoError(t, s.UpsertLicense(ctx, lic))

	moved, err := s.MarkExpired(ctx, "lic-1", now)
	require.NoError(t, err)
	assert.True(t, moved)

	// Second run is a no-op.
	moved, err = s.MarkExpired(ctx, "lic-1", now)
	require.NoError(t, err)
	assert.False(t, moved)

	got, err := s.GetLicenseByID(ctx, "lic-1")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
}

func TestMemoryStoreRevokeExpiredGrace(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	suspendedAt := now.Add(-2 * time.Hour)
	lic := newTestLicense("lic-1", "LIC-GRCE-GRCE-GRCE-GRCE")
	lic.Status = StatusSuspended
	lic.SuspendedAt = &suspendedAt
	lic.GracePeriodEndsAt = &past
	require.NoError(t, s.UpsertLicense(ctx, lic))

	moved, err := s.RevokeExpiredGrace(ctx, "lic-1", now)
	require.NoError(t, err)
	assert.True(t, moved)

	got, err := s.GetLicenseByID(ctx, "lic-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, got.Status)
	assert.NotNil(t, got.RevokedAt)
	assert.Nil(t, got.SuspendedAt)

	// Grace exactly equal to now is not yet expired (strict <).
	boundary := newTestLicense("lic-2", "LIC-EDGE-EDGE-EDGE-EDGE")
	boundary.Status = StatusSuspended
	boundary.SuspendedAt = &suspendedAt
	boundary.GracePeriodEndsAt = &now
	require.NoError(t, s.UpsertLicense(ctx, boundary))

	moved, err = s.RevokeExpiredGrace(ctx, "lic-2", now)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestMemoryStoreWindowQueries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := newTestLicense("lic-1", "LIC-0001-0001-0001-0001")
	expired.ExpiresAt = &past
	current := newTestLicense("lic-2", "LIC-0002-0002-0002-0002")
	current.ExpiresAt = &future
	graceOver := newTestLicense("lic-3", "LIC-0003-0003-0003-0003")
	graceOver.Status = StatusSuspended
	graceOver.SuspendedAt = &past
	graceOver.GracePeriodEndsAt = &past
	stale := newTestLicense("lic-4", "LIC-0004-0004-0004-0004")
	stale.HardwareID = "HW-OLD"
	stale.BoundAt = &past
	stale.LastSeenAt = &past

	for _, lic := range []*License{expired, current, graceOver, stale} {
		require.NoError(t, s.UpsertLicense(ctx, lic))
	}

	got, err := s.ExpiredLicenses(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lic-1", got[0].ID)

	got, err = s.ExpiredGracePeriods(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lic-3", got[0].ID)

	got, err = s.StaleDeviceLicenses(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lic-4", got[0].ID)
}

func TestMemoryStoreListPagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 5; i++ {
		lic := newTestLicense(
			string(rune('a'+i))+"-lic",
			"LIC-P"+string(rune('A'+i))+"GE-AAAA-BBBB-CCCC")
		lic.IssuedAt = base.Add(time.Duration(i) * time.Second)
		if i < 3 {
			lic.OrgID = "org-a"
		} else {
			lic.OrgID = "org-b"
		}
		require.NoError(t, s.UpsertLicense(ctx, lic))
	}

	rows, total, err := s.ListLicensesByOrg(ctx, "org-a", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, rows, 2)

	rows, total, err = s.ListLicensesByOrg(ctx, "org-a", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, rows, 1)

	rows, total, err = s.ListLicensesByOrg(ctx, "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, rows, 5)
}

func TestMemoryStoreTokens(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now().UTC()

	has, err := s.HasAnyAPITokens(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	token := &APIToken{
		ID:        "tok-1",
		Name:      "ci",
		Hash:      "abc123",
		Scopes:    []string{"licenses:read"},
		CreatedAt: now,
	}
	require.NoError(t, s.CreateAPIToken(ctx, token))

	has, err = s.HasAnyAPITokens(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	byHash, err := s.GetAPITokenByHash(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", byHash.ID)

	require.NoError(t, s.RevokeAPIToken(ctx, "tok-1", now))
	got, err := s.GetAPIToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.NotNil(t, got.RevokedAt)

	assert.True(t, errors.Is(s.RevokeAPIToken(ctx, "missing", now), ErrNotFound))
}
