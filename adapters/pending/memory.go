// Package pending holds credentials awaiting MFA completion.
package pending

import (
	"context"
	"sync"
	"time"

	"github.com/medoxie/wristband/core"
	"github.com/medoxie/wristband/ports"
)

type record struct {
	creds     core.PendingCredentials
	expiresAt time.Time
}

// MemoryStore is a process-local PendingStore. It is not shared across
// independently scaled instances: a resume call landing on a different
// instance than the start call will not find the entry. Back the port with a
// shared store for horizontal deployments.
type MemoryStore struct {
	records map[string]record
	mu      sync.Mutex
}

// NewMemoryStore creates a new in-memory pending-credential store.
func NewMemoryStore() ports.PendingStore {
	return &MemoryStore{records: make(map[string]record)}
}

// Put records pending credentials for a user, overwriting any prior entry.
func (s *MemoryStore) Put(ctx context.Context, userID string, creds core.PendingCredentials, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[userID] = record{creds: creds, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Take consumes the pending entry for a user. Expired entries are treated
// as absent; either way the entry is gone afterwards.
func (s *MemoryStore) Take(ctx context.Context, userID string) (core.PendingCredentials, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[userID]
	delete(s.records, userID)
	if !ok || time.Now().After(r.expiresAt) {
		return core.PendingCredentials{}, false, nil
	}
	return r.creds, true, nil
}
