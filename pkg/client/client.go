// Package client is the SDK for licensed applications: it binds a
// license key to the local device, validates entitlement online, and
// falls back to an encrypted offline cache within the server-granted
// grace period.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/talos-license/talos/pkg/hwid"
	"github.com/talos-license/talos/pkg/secure"
)

// Config configures a Client. Only ServerURL is required.
type Config struct {
	ServerURL string

	// HTTPClient overrides the default 10-second-timeout client.
	HTTPClient *http.Client

	// Hardware overrides the default fingerprint provider. Test hook.
	Hardware hwid.Provider

	// Storage overrides the default tiered secure storage. Test hook.
	Storage *secure.Storage

	// Service names the credential-vault service; defaults to "talos".
	Service string
}

// Client talks to one license server on behalf of the local device.
type Client struct {
	transport *httpTransport
	hw        hwid.Provider
	storage   *secure.Storage
	now       func() time.Time
}

// New builds a client.
func New(cfg Config) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("client: ServerURL is required")
	}
	if cfg.Hardware == nil {
		cfg.Hardware = hwid.Default()
	}
	if cfg.Storage == nil {
		service := cfg.Service
		if service == "" {
			service = "talos"
		}
		cfg.Storage = secure.NewStorage(service)
	}
	return &Client{
		transport: newTransport(cfg.ServerURL, cfg.HTTPClient),
		hw:        cfg.Hardware,
		storage:   cfg.Storage,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// withClock pins the client clock in tests.
func (c *Client) withClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// boundLicense is the locally persisted binding state.
type boundLicense struct {
	LicenseID  string    `json:"license_id"`
	LicenseKey string    `json:"license_key"`
	HardwareID string    `json:"hardware_id"`
	BoundAt    time.Time `json:"bound_at"`
}

// ValidationOutcome is what validate variants return.
type ValidationOutcome struct {
	Valid             bool
	Offline           bool // satisfied from the offline cache
	Features          []string
	Tier              string
	ExpiresAt         *time.Time
	GracePeriodEndsAt *time.Time
	Warning           string
}

// Bind attaches the license key to this device and persists the binding
// and an initial cache snapshot locally.
func (c *Client) Bind(ctx context.Context, licenseKey string) error {
	fp, err := c.hw.Fingerprint()
	if err != nil {
		return fmt.Errorf("fingerprint device: %w", err)
	}

	var resp struct {
		LicenseID         string     `json:"license_id"`
		Features          []string   `json:"features"`
		Tier              string     `json:"tier"`
		ExpiresAt         *time.Time `json:"expires_at"`
		GracePeriodEndsAt *time.Time `json:"grace_period_ends_at"`
	}
	err = c.transport.post(ctx, "/api/v1/client/bind", map[string]string{
		"license_key": licenseKey,
		"hardware_id": fp,
		"device_name": hostnameOrEmpty(),
	}, &resp)
	if err != nil {
		return err
	}

	now := c.now()
	if err := c.saveBinding(&boundLicense{
		LicenseID:  resp.LicenseID,
		LicenseKey: licenseKey,
		HardwareID: fp,
		BoundAt:    now,
	}); err != nil {
		return err
	}
	return newCacheStore(c.storage, fp).Save(&CachedValidation{
		LicenseKey:        licenseKey,
		HardwareID:        fp,
		Features:          resp.Features,
		Tier:              resp.Tier,
		ExpiresAt:         resp.ExpiresAt,
		GracePeriodEndsAt: resp.GracePeriodEndsAt,
		ValidatedAt:       now,
	})
}

// Validate checks entitlement online and refreshes the cache snapshot on
// success. Transport failures surface as NetworkError; use
// ValidateWithFallback to consult the offline cache instead.
func (c *Client) Validate(ctx context.Context) (*ValidationOutcome, error) {
	binding, fp, err := c.loadBinding()
	if err != nil {
		return nil, err
	}

	var resp struct {
		Valid             bool       `json:"valid"`
		Features          []string   `json:"features"`
		Tier              string     `json:"tier"`
		ExpiresAt         *time.Time `json:"expires_at"`
		GracePeriodEndsAt *time.Time `json:"grace_period_ends_at"`
		Warning           string     `json:"warning"`
	}
	err = c.transport.post(ctx, "/api/v1/client/validate", map[string]string{
		"license_key": binding.LicenseKey,
		"hardware_id": fp,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if err := newCacheStore(c.storage, fp).Save(&CachedValidation{
		LicenseKey:        binding.LicenseKey,
		HardwareID:        fp,
		Features:          resp.Features,
		Tier:              resp.Tier,
		ExpiresAt:         resp.ExpiresAt,
		GracePeriodEndsAt: resp.GracePeriodEndsAt,
		ValidatedAt:       c.now(),
	}); err != nil {
		return nil, err
	}

	return &ValidationOutcome{
		Valid:             resp.Valid,
		Features:          resp.Features,
		Tier:              resp.Tier,
		ExpiresAt:         resp.ExpiresAt,
		GracePeriodEndsAt: resp.GracePeriodEndsAt,
		Warning:           resp.Warning,
	}, nil
}

// ValidateWithFallback validates online, and on a transport failure
// consults the offline cache: success iff a snapshot exists, matches
// this device, and its grace period has not lapsed.
func (c *Client) ValidateWithFallback(ctx context.Context) (*ValidationOutcome, error) {
	outcome, err := c.Validate(ctx)
	if err == nil {
		return outcome, nil
	}
	if !IsNetworkError(err) {
		return nil, err
	}

	fp, fperr := c.hw.Fingerprint()
	if fperr != nil {
		return nil, err
	}
	snapshot, cerr := newCacheStore(c.storage, fp).Load()
	if cerr != nil {
		return nil, cerr
	}
	now := c.now()
	if snapshot.LicenseExpired(now) {
		return nil, ErrOfflineExpired
	}
	if !snapshot.ValidForOffline(now) {
		return nil, ErrOfflineExpired
	}

	return &ValidationOutcome{
		Valid:             true,
		Offline:           true,
		Features:          snapshot.Features,
		Tier:              snapshot.Tier,
		ExpiresAt:         snapshot.ExpiresAt,
		GracePeriodEndsAt: snapshot.GracePeriodEndsAt,
	}, nil
}

// ValidateFeature checks a single feature, online first, falling back to
// the cached feature set on transport failure.
func (c *Client) ValidateFeature(ctx context.Context, feature string) (bool, error) {
	binding, fp, err := c.loadBinding()
	if err != nil {
		return false, err
	}

	var resp struct {
		Allowed bool `json:"allowed"`
	}
	err = c.transport.post(ctx, "/api/v1/client/validate-feature", map[string]string{
		"license_key": binding.LicenseKey,
		"hardware_id": fp,
		"feature":     feature,
	}, &resp)
	if err == nil {
		return resp.Allowed, nil
	}
	if !IsNetworkError(err) {
		return false, err
	}

	snapshot, cerr := newCacheStore(c.storage, fp).Load()
	if cerr != nil {
		return false, cerr
	}
	if !snapshot.ValidForOffline(c.now()) {
		return false, ErrOfflineExpired
	}
	return snapshot.HasFeature(feature), nil
}

// Heartbeat refreshes the server-side last-seen timestamp. The local
// fingerprint must still match the binding.
func (c *Client) Heartbeat(ctx context.Context) (*time.Time, error) {
	binding, fp, err := c.loadBinding()
	if err != nil {
		return nil, err
	}
	if binding.HardwareID != fp {
		return nil, ErrHardwareMismatch
	}

	var resp struct {
		ServerTime        time.Time  `json:"server_time"`
		GracePeriodEndsAt *time.Time `json:"grace_period_ends_at"`
	}
	err = c.transport.post(ctx, "/api/v1/client/heartbeat", map[string]string{
		"license_key": binding.LicenseKey,
		"hardware_id": fp,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.GracePeriodEndsAt, nil
}

// Release detaches the license from this device and purges all local
// state.
func (c *Client) Release(ctx context.Context) error {
	binding, fp, err := c.loadBinding()
	if err != nil {
		return err
	}

	err = c.transport.post(ctx, "/api/v1/client/release", map[string]string{
		"license_key": binding.LicenseKey,
		"hardware_id": fp,
	}, nil)
	if err != nil {
		return err
	}
	return c.purgeLocal(fp)
}

// Cached returns the locally cached snapshot without touching the
// network.
func (c *Client) Cached() (*CachedValidation, error) {
	fp, err := c.hw.Fingerprint()
	if err != nil {
		return nil, fmt.Errorf("fingerprint device: %w", err)
	}
	return newCacheStore(c.storage, fp).Load()
}

func hostnameOrEmpty() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
}

// --- local persistence -------------------------------------------------

func (c *Client) saveBinding(binding *boundLicense) error {
	box, err := secure.NewBox(secure.DeriveKey(licenseKeySalt, binding.HardwareID))
	if err != nil {
		return err
	}
	plaintext, err := json.Marshal(binding)
	if err != nil {
		return fmt.Errorf("encode binding: %w", err)
	}
	sealed, err := box.SealString(string(plaintext))
	if err != nil {
		return err
	}
	slot, err := secure.StorageKey(secure.KindLicense, binding.HardwareID)
	if err != nil {
		return err
	}
	return c.storage.Write(slot, sealed)
}

// loadBinding returns the persisted binding and the current fingerprint.
// A binding written on another device fails with ErrHardwareMismatch.
func (c *Client) loadBinding() (*boundLicense, string, error) {
	fp, err := c.hw.Fingerprint()
	if err != nil {
		return nil, "", fmt.Errorf("fingerprint device: %w", err)
	}

	slot, err := secure.StorageKey(secure.KindLicense, fp)
	if err != nil {
		return nil, "", err
	}
	sealed, err := c.storage.Read(slot)
	if err != nil {
		if errors.Is(err, secure.ErrNotFound) {
			return nil, "", ErrNotBound
		}
		return nil, "", err
	}

	box, err := secure.NewBox(secure.DeriveKey(licenseKeySalt, fp))
	if err != nil {
		return nil, "", err
	}
	plaintext, err := box.OpenString(sealed)
	if err != nil {
		return nil, "", err
	}

	var binding boundLicense
	if err := json.Unmarshal([]byte(plaintext), &binding); err != nil {
		return nil, "", fmt.Errorf("decode binding: %w", err)
	}
	if binding.HardwareID != fp {
		return nil, "", ErrHardwareMismatch
	}
	return &binding, fp, nil
}

func (c *Client) purgeLocal(fp string) error {
	var firstErr error
	if slot, err := secure.StorageKey(secure.KindLicense, fp); err == nil {
		if err := c.storage.Clear(slot); err != nil {
			firstErr = err
		}
	}
	if err := newCacheStore(c.storage, fp).Clear(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
