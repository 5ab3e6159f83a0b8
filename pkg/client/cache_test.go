package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talos-license/talos/pkg/secure"
)

// memBackend is an in-memory storage tier for tests.
type memBackend struct {
	values map[string]string
}

func newMemBackend() *memBackend {
	return &memBackend{values: make(map[string]string)}
}

func (b *memBackend) Name() string { return "mem" }

func (b *memBackend) Write(key, value string) error {
	b.values[key] = value
	return nil
}

func (b *memBackend) Read(key string) (string, error) {
	v, ok := b.values[key]
	if !ok {
		return "", secure.ErrNotFound
	}
	return v, nil
}

func (b *memBackend) Clear(key string) error {
	if _, ok := b.values[key]; !ok {
		return secure.ErrNotFound
	}
	delete(b.values, key)
	return nil
}

func memStorage() *secure.Storage {
	return secure.NewStorageWithBackends(nil, newMemBackend())
}

var cacheNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestValidForOfflineBoundary(t *testing.T) {
	future := cacheNow.Add(time.Hour)
	past := cacheNow.Add(-time.Hour)
	exact := cacheNow

	assert.True(t, (&CachedValidation{GracePeriodEndsAt: &future}).ValidForOffline(cacheNow))
	assert.False(t, (&CachedValidation{GracePeriodEndsAt: &past}).ValidForOffline(cacheNow))
	// A grace period ending exactly now has already lapsed.
	assert.False(t, (&CachedValidation{GracePeriodEndsAt: &exact}).ValidForOffline(cacheNow))
	// No grace period means offline use is not authorized.
	assert.False(t, (&CachedValidation{}).ValidForOffline(cacheNow))
}

func TestLicenseExpired(t *testing.T) {
	future := cacheNow.Add(time.Hour)
	past := cacheNow.Add(-time.Hour)
	exact := cacheNow

	assert.False(t, (&CachedValidation{ExpiresAt: &future}).LicenseExpired(cacheNow))
	assert.True(t, (&CachedValidation{ExpiresAt: &past}).LicenseExpired(cacheNow))
	assert.True(t, (&CachedValidation{ExpiresAt: &exact}).LicenseExpired(cacheNow))
	assert.False(t, (&CachedValidation{}).LicenseExpired(cacheNow))
}

func TestCacheRoundTrip(t *testing.T) {
	storage := memStorage()
	store := newCacheStore(storage, "fp-device-a")

	grace := cacheNow.Add(72 * time.Hour)
	saved := &CachedValidation{
		LicenseKey:        "LIC-AAAA-BBBB-CCCC-DDDD",
		HardwareID:        "fp-device-a",
		Features:          []string{"core", "export"},
		Tier:              "pro",
		GracePeriodEndsAt: &grace,
		ValidatedAt:       cacheNow,
	}
	require.NoError(t, store.Save(saved))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, saved.LicenseKey, loaded.LicenseKey)
	assert.Equal(t, saved.Features, loaded.Features)
	assert.True(t, loaded.ValidForOffline(cacheNow))
	assert.True(t, loaded.HasFeature("export"))
	assert.False(t, loaded.HasFeature("admin"))
}

func TestCacheLoadHardwareMismatch(t *testing.T) {
	storage := memStorage()
	store := newCacheStore(storage, "fp-device-a")

	// A snapshot claiming another device must be refused on load.
	require.NoError(t, store.Save(&CachedValidation{
		LicenseKey: "LIC-AAAA-BBBB-CCCC-DDDD",
		HardwareID: "fp-device-b",
	}))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrHardwareMismatch)
}

func TestCacheMissing(t *testing.T) {
	store := newCacheStore(memStorage(), "fp-device-a")
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoCache)
}

func TestCacheClear(t *testing.T) {
	store := newCacheStore(memStorage(), "fp-device-a")
	require.NoError(t, store.Save(&CachedValidation{HardwareID: "fp-device-a"}))
	require.NoError(t, store.Clear())
	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoCache)
}

func TestCacheUnreadableOnOtherDevice(t *testing.T) {
	storage := memStorage()
	require.NoError(t, newCacheStore(storage, "fp-device-a").Save(&CachedValidation{
		HardwareID: "fp-device-a",
	}))

	// Another fingerprint derives a different slot and key.
	_, err := newCacheStore(storage, "fp-device-b").Load()
	assert.ErrorIs(t, err, ErrNoCache)
}
