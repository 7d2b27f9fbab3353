package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultAuthStateTTL        = 15 * time.Minute
	defaultAuthStateMaxEntries = 128
)

// MemoryAuthStateStore keeps pending CSRF states in process memory. States
// are consumed exactly once; expired and overflow entries are pruned on
// save, oldest first.
type MemoryAuthStateStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]AuthStateRecord
}

func NewMemoryAuthStateStore(ttl time.Duration) *MemoryAuthStateStore {
	return NewMemoryAuthStateStoreWithLimits(ttl, defaultAuthStateMaxEntries)
}

func NewMemoryAuthStateStoreWithLimits(ttl time.Duration, maxEntries int) *MemoryAuthStateStore {
	if ttl <= 0 {
		ttl = defaultAuthStateTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultAuthStateMaxEntries
	}
	return &MemoryAuthStateStore{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    map[string]AuthStateRecord{},
	}
}

func (s *MemoryAuthStateStore) Save(_ context.Context, record AuthStateRecord) error {
	if s == nil {
		return fmt.Errorf("core: auth state store is not configured")
	}
	state := strings.TrimSpace(record.State)
	if state == "" {
		return fmt.Errorf("core: auth state is required")
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.ExpiresAt.IsZero() {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	s.mu.Lock()
	s.pruneLocked(now)
	s.entries[state] = record
	s.mu.Unlock()

	return nil
}

func (s *MemoryAuthStateStore) Consume(_ context.Context, state string) (AuthStateRecord, error) {
	if s == nil {
		return AuthStateRecord{}, fmt.Errorf("core: auth state store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return AuthStateRecord{}, fmt.Errorf("core: auth state is required")
	}

	s.mu.Lock()
	record, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	s.mu.Unlock()

	if !ok {
		return AuthStateRecord{}, fmt.Errorf("core: auth state not found")
	}
	if !record.ExpiresAt.IsZero() && time.Now().UTC().After(record.ExpiresAt) {
		return AuthStateRecord{}, fmt.Errorf("core: auth state expired")
	}

	return record, nil
}

func (s *MemoryAuthStateStore) PurgeProfile(_ context.Context, profileKey string) error {
	if s == nil {
		return fmt.Errorf("core: auth state store is not configured")
	}
	profileKey = strings.TrimSpace(profileKey)
	if profileKey == "" {
		return fmt.Errorf("core: profile key is required")
	}

	s.mu.Lock()
	for state, record := range s.entries {
		if record.ProfileKey == profileKey {
			delete(s.entries, state)
		}
	}
	s.mu.Unlock()

	return nil
}

func (s *MemoryAuthStateStore) pruneLocked(now time.Time) {
	for state, record := range s.entries {
		if !record.ExpiresAt.IsZero() && now.After(record.ExpiresAt) {
			delete(s.entries, state)
		}
	}
	for len(s.entries) >= s.maxEntries {
		oldestState := ""
		oldestAt := time.Time{}
		for state, record := range s.entries {
			if oldestState == "" || record.CreatedAt.Before(oldestAt) {
				oldestState = state
				oldestAt = record.CreatedAt
			}
		}
		if oldestState == "" {
			return
		}
		delete(s.entries, oldestState)
	}
}

func generateAuthState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate auth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
