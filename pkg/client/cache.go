package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/talos-license/talos/pkg/secure"
)

// Box-key salts. These differ from the storage-slot salts inside
// pkg/secure, so a slot name never reveals key material.
const (
	licenseKeySalt = "talos-license-key-v1"
	cacheKeySalt   = "talos-cache-key-v1"
)

// CachedValidation is the snapshot of the last successful online
// validation, encrypted at rest with a key derived from the device
// fingerprint.
type CachedValidation struct {
	LicenseKey        string     `json:"license_key"`
	HardwareID        string     `json:"hardware_id"`
	Features          []string   `json:"features"`
	Tier              string     `json:"tier,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	GracePeriodEndsAt *time.Time `json:"grace_period_ends_at,omitempty"`
	ValidatedAt       time.Time  `json:"validated_at"`
}

// ValidForOffline reports whether the snapshot authorizes offline use at
// the given instant. No grace period means no offline authorization; a
// grace period ending exactly now has already lapsed.
func (c *CachedValidation) ValidForOffline(now time.Time) bool {
	return c.GracePeriodEndsAt != nil && now.Before(*c.GracePeriodEndsAt)
}

// LicenseExpired reports whether the cached expiry has passed.
func (c *CachedValidation) LicenseExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// HasFeature reports whether the cached feature set includes f.
func (c *CachedValidation) HasFeature(f string) bool {
	for _, have := range c.Features {
		if have == f {
			return true
		}
	}
	return false
}

// cacheStore persists CachedValidation snapshots through the tiered
// secure storage, sealed with the per-device cache key.
type cacheStore struct {
	storage *secure.Storage
	fp      string
}

func newCacheStore(storage *secure.Storage, fingerprint string) *cacheStore {
	return &cacheStore{storage: storage, fp: fingerprint}
}

// Save overwrites the snapshot at rest.
func (s *cacheStore) Save(snapshot *CachedValidation) error {
	box, err := secure.NewBox(secure.DeriveKey(cacheKeySalt, s.fp))
	if err != nil {
		return err
	}
	plaintext, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode cache snapshot: %w", err)
	}
	sealed, err := box.SealString(string(plaintext))
	if err != nil {
		return err
	}
	slot, err := secure.StorageKey(secure.KindCache, s.fp)
	if err != nil {
		return err
	}
	return s.storage.Write(slot, sealed)
}

// Load reads, decrypts, and verifies the snapshot. A snapshot written on
// another device fails with ErrHardwareMismatch.
func (s *cacheStore) Load() (*CachedValidation, error) {
	slot, err := secure.StorageKey(secure.KindCache, s.fp)
	if err != nil {
		return nil, err
	}
	sealed, err := s.storage.Read(slot)
	if err != nil {
		if errors.Is(err, secure.ErrNotFound) {
			return nil, ErrNoCache
		}
		return nil, err
	}

	box, err := secure.NewBox(secure.DeriveKey(cacheKeySalt, s.fp))
	if err != nil {
		return nil, err
	}
	plaintext, err := box.OpenString(sealed)
	if err != nil {
		return nil, err
	}

	var snapshot CachedValidation
	if err := json.Unmarshal([]byte(plaintext), &snapshot); err != nil {
		return nil, fmt.Errorf("decode cache snapshot: %w", err)
	}
	if snapshot.HardwareID != s.fp {
		return nil, ErrHardwareMismatch
	}
	return &snapshot, nil
}

// Clear purges the snapshot from every storage tier.
func (s *cacheStore) Clear() error {
	slot, err := secure.StorageKey(secure.KindCache, s.fp)
	if err != nil {
		return err
	}
	return s.storage.Clear(slot)
}
