package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
)

// MemoryNonceStore is an in-memory implementation of the NonceStore interface
type MemoryNonceStore struct {
	nonces map[string]core.NonceRecord
	clock  func() time.Time
	mu     sync.Mutex
}

// MemoryOption configures the in-memory stores
type MemoryOption func(*MemoryNonceStore)

// WithClock overrides the clock used by the lazy expiry sweep
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryNonceStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemoryNonceStore creates a new in-memory nonce store
func NewMemoryNonceStore(opts ...MemoryOption) ports.NonceStore {
	s := &MemoryNonceStore{
		nonces: make(map[string]core.NonceRecord),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores a nonce, replacing any previous one for the owner, and sweeps expired records
func (s *MemoryNonceStore) Put(ctx context.Context, record core.NonceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	for key, existing := range s.nonces {
		if existing.Expired(now) {
			delete(s.nonces, key)
		}
	}

	s.nonces[record.OwnerKey] = record
	return nil
}

// Consume redeems a nonce exactly once
func (s *MemoryNonceStore) Consume(ctx context.Context, ownerKey, value string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.nonces[ownerKey]
	if !ok {
		return core.ErrInvalidNonce
	}
	if record.Expired(now) {
		delete(s.nonces, ownerKey)
		return core.ErrInvalidNonce
	}
	if record.Value != value {
		return core.ErrInvalidNonce
	}

	delete(s.nonces, ownerKey)
	return nil
}

// Len returns the number of stored records, expired ones included
func (s *MemoryNonceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nonces)
}
