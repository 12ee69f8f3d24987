package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	authStateTTL = 30 * time.Minute
	// Expired entries are swept at most this often, on Issue
	authStateSweepInterval = time.Minute
)

// AuthState is one pending authorization attempt
type AuthState struct {
	UserID    uint
	TenantID  string
	ExpiresAt time.Time
}

// AuthStateStore is an in-process, TTL-bound store of single-use CSRF
// state tokens. Safe for concurrent use.
type AuthStateStore struct {
	mu        sync.Mutex
	states    map[string]AuthState
	ttl       time.Duration
	sweepGap  time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewAuthStateStore creates a state store with default TTL and sweep policy
func NewAuthStateStore() *AuthStateStore {
	return &AuthStateStore{
		states:   make(map[string]AuthState),
		ttl:      authStateTTL,
		sweepGap: authStateSweepInterval,
		now:      time.Now,
	}
}

// Issue registers a fresh random state for the user and returns it.
// Issuing also triggers the throttled expiry sweep.
func (s *AuthStateStore) Issue(userID uint, tenantID string) string {
	state := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()
	s.states[state] = AuthState{
		UserID:    userID,
		TenantID:  tenantID,
		ExpiresAt: s.now().Add(s.ttl),
	}
	return state
}

// Consume looks up and removes a state. Expired entries are evicted on
// lookup and reported as absent. A state can be consumed exactly once.
func (s *AuthStateStore) Consume(state string) (AuthState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.states[state]
	if !ok {
		return AuthState{}, false
	}
	delete(s.states, state)
	if s.now().After(entry.ExpiresAt) {
		return AuthState{}, false
	}
	return entry, true
}

// sweepLocked drops expired entries, at most once per sweep interval.
// Caller holds the mutex.
func (s *AuthStateStore) sweepLocked() {
	now := s.now()
	if now.Sub(s.lastSweep) < s.sweepGap {
		return
	}
	s.lastSweep = now
	for key, entry := range s.states {
		if now.After(entry.ExpiresAt) {
			delete(s.states, key)
		}
	}
}
