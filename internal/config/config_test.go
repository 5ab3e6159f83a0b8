package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TALOS_JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "talos.db", cfg.Database.URL)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "talosd", cfg.Auth.JWTIssuer)
	assert.Equal(t, time.Hour, cfg.Auth.TokenExpiration)
	assert.Equal(t, 8710, cfg.Server.Port)
	assert.Equal(t, "15 * * * *", cfg.Jobs.LicenseExpirationCron)
	assert.Equal(t, "0 * * * *", cfg.Jobs.GracePeriodCron)
	assert.False(t, cfg.Jobs.StaleDeviceCleanupEnabled)
	assert.Equal(t, 90, cfg.Jobs.StaleDeviceDays)
	assert.Equal(t, "LIC", cfg.License.KeyPrefix)
	assert.Equal(t, 4, cfg.License.KeySegments)
	assert.Contains(t, cfg.Tiers, "basic")
	assert.Contains(t, cfg.Tiers, "pro")
	assert.Contains(t, cfg.Tiers, "enterprise")
}

func TestLoadRequiresJWTSecretWhenAuthEnabled(t *testing.T) {
	t.Setenv("TALOS_JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TALOS_JWT_SECRET")
}

func TestLoadAuthDisabledSkipsSecret(t *testing.T) {
	t.Setenv("TALOS_AUTH_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Auth.Enabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TALOS_JWT_SECRET", "test-secret")
	t.Setenv("TALOS_DB_TYPE", "postgres")
	t.Setenv("TALOS_DB_URL", "postgres://talos@localhost/talos")
	t.Setenv("TALOS_PORT", "9000")
	t.Setenv("TALOS_KEY_PREFIX", "TRI")
	t.Setenv("TALOS_KEY_SEGMENTS", "3")
	t.Setenv("TALOS_TOKEN_EXPIRATION", "30m")
	t.Setenv("TALOS_STALE_DEVICE_CLEANUP", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "TRI", cfg.License.KeyPrefix)
	assert.Equal(t, 3, cfg.License.KeySegments)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenExpiration)
	assert.True(t, cfg.Jobs.StaleDeviceCleanupEnabled)
}

func TestLoadCustomTiers(t *testing.T) {
	t.Setenv("TALOS_JWT_SECRET", "test-secret")
	t.Setenv("TALOS_TIERS", `{"trial":{"features":["core"],"bandwidth_gb":10}}`)

	cfg, err := Load()
	require.NoError(t, err)
	require.Contains(t, cfg.Tiers, "trial")
	assert.Equal(t, []string{"core"}, cfg.Tiers["trial"].Features)
	assert.Equal(t, int64(10), cfg.Tiers["trial"].BandwidthGB)
	assert.NotContains(t, cfg.Tiers, "basic")
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("TALOS_JWT_SECRET", "test-secret")

	t.Run("bad db type", func(t *testing.T) {
		t.Setenv("TALOS_DB_TYPE", "mysql")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad port", func(t *testing.T) {
		t.Setenv("TALOS_PORT", "70000")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad tiers json", func(t *testing.T) {
		t.Setenv("TALOS_TIERS", "{not json")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad key layout", func(t *testing.T) {
		t.Setenv("TALOS_KEY_SEGMENTS", "9")
		_, err := Load()
		assert.Error(t, err)
	})
}
