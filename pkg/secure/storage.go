package secure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned when no tier holds a value for the key.
var ErrNotFound = errors.New("secure: value not found")

// Blob kinds and their storage-key salts. Salts differ so that access to
// one slot never reveals the key of another.
const (
	KindLicense = "license"
	KindCache   = "cache"

	licenseSalt = "talos-license-v1"
	cacheSalt   = "talos-cache-v1"
)

// StorageKey returns the storage slot name for a blob kind on a device.
func StorageKey(kind, fingerprint string) (string, error) {
	switch kind {
	case KindLicense:
		return DeriveStorageKey(licenseSalt, fingerprint), nil
	case KindCache:
		return DeriveStorageKey(cacheSalt, fingerprint), nil
	default:
		return "", fmt.Errorf("secure: unknown blob kind %q", kind)
	}
}

// Backend is a single storage tier. Values are opaque strings; the caller
// is responsible for any encryption.
type Backend interface {
	Name() string
	Write(key, value string) error
	Read(key string) (string, error)
	Clear(key string) error
}

// Storage chains backends in preference order. Writes land in the first
// tier that accepts them; reads walk the chain and migrate legacy hits
// forward. A tier failure is non-fatal as long as another tier serves.
type Storage struct {
	tiers  []Backend
	legacy Backend // read-only tier, migrated on hit
}

// NewStorage returns the default chain: OS credential vault, then a file
// under the user config directory, with the legacy working-directory file
// consulted on reads only.
func NewStorage(service string) *Storage {
	return &Storage{
		tiers: []Backend{
			&keyringBackend{service: service},
			&fileBackend{dir: configDir(service)},
		},
		legacy: &fileBackend{dir: "."},
	}
}

// NewStorageWithBackends builds a chain from explicit tiers. Used by tests
// and by callers with custom vaults.
func NewStorageWithBackends(legacy Backend, tiers ...Backend) *Storage {
	return &Storage{tiers: tiers, legacy: legacy}
}

// Write stores the value in the most preferred tier that accepts it.
func (s *Storage) Write(key, value string) error {
	var lastErr error
	for _, tier := range s.tiers {
		if err := tier.Write(key, value); err != nil {
			log.Warn().Err(err).Str("tier", tier.Name()).Msg("Secure storage tier rejected write, trying next")
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("secure: no storage tiers configured")
	}
	return fmt.Errorf("secure: all storage tiers failed: %w", lastErr)
}

// Read returns the value from the first tier that holds it. A hit in the
// legacy tier is migrated to the preferred tier and removed from the
// legacy location.
func (s *Storage) Read(key string) (string, error) {
	for _, tier := range s.tiers {
		value, err := tier.Read(key)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Str("tier", tier.Name()).Msg("Secure storage tier read failed, trying next")
		}
	}

	if s.legacy == nil {
		return "", ErrNotFound
	}
	value, err := s.legacy.Read(key)
	if err != nil {
		return "", ErrNotFound
	}

	// One-shot migration to the preferred tier.
	if err := s.Write(key, value); err == nil {
		if err := s.legacy.Clear(key); err != nil {
			log.Warn().Err(err).Msg("Unable to remove legacy storage entry after migration")
		} else {
			log.Info().Str("tier", s.legacy.Name()).Msg("Migrated legacy storage entry")
		}
	}
	return value, nil
}

// Clear removes the key from every tier, including the legacy one.
func (s *Storage) Clear(key string) error {
	var lastErr error
	for _, tier := range s.tiers {
		if err := tier.Clear(key); err != nil && !errors.Is(err, ErrNotFound) {
			lastErr = err
		}
	}
	if s.legacy != nil {
		if err := s.legacy.Clear(key); err != nil && !errors.Is(err, ErrNotFound) {
			lastErr = err
		}
	}
	return lastErr
}

type keyringBackend struct {
	service string
}

func (b *keyringBackend) Name() string { return "keyring" }

func (b *keyringBackend) Write(key, value string) error {
	return keyring.Set(b.service, key, value)
}

func (b *keyringBackend) Read(key string) (string, error) {
	value, err := keyring.Get(b.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (b *keyringBackend) Clear(key string) error {
	err := keyring.Delete(b.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

type fileBackend struct {
	dir string
}

func (b *fileBackend) Name() string { return "file:" + b.dir }

func (b *fileBackend) Write(key, value string) error {
	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(b.path(key), []byte(value), 0o600)
}

func (b *fileBackend) Read(key string) (string, error) {
	data, err := os.ReadFile(b.path(key))
	if os.IsNotExist(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (b *fileBackend) Clear(key string) error {
	err := os.Remove(b.path(key))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

func (b *fileBackend) path(key string) string {
	return filepath.Join(b.dir, key+".dat")
}

func configDir(service string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "."+service)
	}
	return filepath.Join(base, service)
}
