package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store. It implements the same
// contract as the SQL stores, including key and hardware uniqueness, and
// exists for tests and ephemeral deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	licenses map[string]*License
	events   []*BindingEvent
	tokens   map[string]*APIToken
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		licenses: make(map[string]*License),
		tokens:   make(map[string]*APIToken),
	}
}

func (s *MemoryStore) UpsertLicense(_ context.Context, lic *License) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.licenses {
		if other.ID == lic.ID {
			continue
		}
		if other.Key == lic.Key {
			return ErrDuplicateKey
		}
		if lic.HardwareID != "" && other.HardwareID == lic.HardwareID &&
			bindingConstrained(lic.Status) && bindingConstrained(other.Status) {
			return ErrHardwareConflict
		}
	}
	s.licenses[lic.ID] = lic.Clone()
	return nil
}

func (s *MemoryStore) GetLicenseByID(_ context.Context, id string) (*License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lic, ok := s.licenses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return lic.Clone(), nil
}

func (s *MemoryStore) GetLicenseByKey(_ context.Context, key string) (*License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, lic := range s.licenses {
		if lic.Key == key {
			return lic.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) GetLicenseByHardware(_ context.Context, hardwareID string) (*License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, lic := range s.licenses {
		if lic.HardwareID == hardwareID && bindingConstrained(lic.Status) {
			return lic.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListLicensesByOrg(_ context.Context, orgID string, page, perPage int) ([]*License, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*License
	for _, lic := range s.licenses {
		if orgID == "" || lic.OrgID == orgID {
			matched = append(matched, lic)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].IssuedAt.Equal(matched[j].IssuedAt) {
			return matched[i].IssuedAt.After(matched[j].IssuedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if page < 1 {
		page = 1
	}
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	out := make([]*License, 0, end-start)
	for _, lic := range matched[start:end] {
		out = append(out, lic.Clone())
	}
	return out, total, nil
}

func (s *MemoryStore) BindLicense(_ context.Context, id, hardwareID, deviceName, deviceInfo string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[id]
	if !ok {
		return false, nil
	}
	if lic.IsBlacklisted || !bindingConstrained(lic.Status) {
		return false, nil
	}
	if lic.ExpiresAt != nil && !lic.ExpiresAt.After(now) {
		return false, nil
	}
	if lic.HardwareID != "" && lic.HardwareID != hardwareID {
		return false, nil
	}
	for _, other := range s.licenses {
		if other.ID != id && other.HardwareID == hardwareID && bindingConstrained(other.Status) {
			return false, ErrHardwareConflict
		}
	}

	ts := now.UTC()
	lic.HardwareID = hardwareID
	lic.DeviceName = deviceName
	lic.DeviceInfo = deviceInfo
	lic.BoundAt = &ts
	seen := ts
	lic.LastSeenAt = &seen
	return true, nil
}

func (s *MemoryStore) ReleaseLicense(_ context.Context, id, hardwareID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[id]
	if !ok || lic.HardwareID == "" {
		return false, nil
	}
	if hardwareID != "" && lic.HardwareID != hardwareID {
		return false, nil
	}
	clearBinding(lic)
	return true, nil
}

func (s *MemoryStore) TouchLastSeen(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lic, ok := s.licenses[id]; ok {
		ts := now.UTC()
		lic.LastSeenAt = &ts
	}
	return nil
}

func (s *MemoryStore) MarkExpired(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[id]
	if !ok || lic.Status != StatusActive {
		return false, nil
	}
	if lic.ExpiresAt == nil || !lic.ExpiresAt.Before(now) {
		return false, nil
	}
	lic.Status = StatusExpired
	return true, nil
}

func (s *MemoryStore) RevokeExpiredGrace(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[id]
	if !ok || lic.Status != StatusSuspended {
		return false, nil
	}
	if lic.GracePeriodEndsAt == nil || !lic.GracePeriodEndsAt.Before(now) {
		return false, nil
	}
	ts := now.UTC()
	lic.Status = StatusRevoked
	lic.RevokedAt = &ts
	lic.SuspendedAt = nil
	lic.RevokeReason = "grace period expired"
	return true, nil
}

func (s *MemoryStore) ClearStaleBinding(_ context.Context, id string, threshold time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, ok := s.licenses[id]
	if !ok || lic.HardwareID == "" {
		return false, nil
	}
	if lic.LastSeenAt == nil || !lic.LastSeenAt.Before(threshold) {
		return false, nil
	}
	clearBinding(lic)
	return true, nil
}

func (s *MemoryStore) ExpiredLicenses(_ context.Context, now time.Time) ([]*License, error) {
	return s.filterLicenses(func(lic *License) bool {
		return lic.Status == StatusActive && lic.ExpiresAt != nil && lic.ExpiresAt.Before(now)
	}), nil
}

func (s *MemoryStore) ExpiredGracePeriods(_ context.Context, now time.Time) ([]*License, error) {
	return s.filterLicenses(func(lic *License) bool {
		return lic.Status == StatusSuspended && lic.GracePeriodEndsAt != nil && lic.GracePeriodEndsAt.Before(now)
	}), nil
}

func (s *MemoryStore) StaleDeviceLicenses(_ context.Context, threshold time.Time) ([]*License, error) {
	return s.filterLicenses(func(lic *License) bool {
		return lic.HardwareID != "" && lic.LastSeenAt != nil && lic.LastSeenAt.Before(threshold)
	}), nil
}

func (s *MemoryStore) filterLicenses(match func(*License) bool) []*License {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*License
	for _, lic := range s.licenses {
		if match(lic) {
			out = append(out, lic.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) RecordBindingEvent(_ context.Context, event *BindingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *event
	s.events = append(s.events, &e)
	return nil
}

func (s *MemoryStore) ListBindingEvents(_ context.Context, licenseID string) ([]*BindingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*BindingEvent
	for _, event := range s.events {
		if event.LicenseID == licenseID {
			e := *event
			out = append(out, &e)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateAPIToken(_ context.Context, token *APIToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := *token
	t.Scopes = append([]string(nil), token.Scopes...)
	s.tokens[token.ID] = &t
	return nil
}

func (s *MemoryStore) GetAPIToken(_ context.Context, id string) (*APIToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	t := *token
	return &t, nil
}

func (s *MemoryStore) GetAPITokenByHash(_ context.Context, hash string) (*APIToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, token := range s.tokens {
		if token.Hash == hash {
			t := *token
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListAPITokens(_ context.Context) ([]*APIToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*APIToken, 0, len(s.tokens))
	for _, token := range s.tokens {
		t := *token
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) RevokeAPIToken(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[id]
	if !ok {
		return ErrNotFound
	}
	if token.RevokedAt == nil {
		ts := now.UTC()
		token.RevokedAt = &ts
	}
	return nil
}

func (s *MemoryStore) UpdateTokenLastUsed(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := s.tokens[id]; ok {
		ts := now.UTC()
		token.LastUsedAt = &ts
	}
	return nil
}

func (s *MemoryStore) HasAnyAPITokens(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens) > 0, nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// bindingConstrained reports whether a status participates in the
// one-device-per-license uniqueness rule.
func bindingConstrained(status LicenseStatus) bool {
	return status == StatusActive || status == StatusSuspended
}

func clearBinding(lic *License) {
	lic.HardwareID = ""
	lic.DeviceName = ""
	lic.DeviceInfo = ""
	lic.BoundAt = nil
	lic.LastSeenAt = nil
}
