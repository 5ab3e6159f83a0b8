package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talos-license/talos/internal/config"
	"github.com/talos-license/talos/internal/licensing"
	"github.com/talos-license/talos/internal/store"
)

func TestStartRejectsBadCronSpec(t *testing.T) {
	engine := licensing.NewService(store.NewMemoryStore(), licensing.Config{})
	sched := New(engine, config.Jobs{
		LicenseExpirationCron: "not a cron spec",
		GracePeriodCron:       "0 * * * *",
	})
	err := sched.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "license_expiration")
}

func TestStartAndStop(t *testing.T) {
	engine := licensing.NewService(store.NewMemoryStore(), licensing.Config{})
	sched := New(engine, config.Jobs{
		LicenseExpirationCron:     "15 * * * *",
		GracePeriodCron:           "0 * * * *",
		StaleDeviceCron:           "0 3 * * *",
		StaleDeviceCleanupEnabled: true,
		StaleDeviceDays:           90,
	})
	require.NoError(t, sched.Start(context.Background()))
	sched.Stop()
}

func TestRunSweepAppliesTransitions(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	engine := licensing.NewService(st, licensing.Config{}).WithClock(func() time.Time { return now })

	past := now.Add(-time.Hour)
	lic, err := engine.Create(ctx, licensing.CreateParams{OrgID: "org-1", ExpiresAt: &past})
	require.NoError(t, err)

	RunSweep(ctx, "license_expiration", engine.ExpireLicenses)

	got, err := st.GetLicenseByID(ctx, lic.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusExpired, got.Status)

	// A second run is a no-op.
	count, err := engine.ExpireLicenses(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, count)
}
