package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
)

// MemoryQuotaStore keeps daily usage counters in memory
type MemoryQuotaStore struct {
	usage map[string]core.DailyUsage
	mu    sync.Mutex
}

// NewMemoryQuotaStore creates an empty quota store
func NewMemoryQuotaStore() ports.QuotaStore {
	return &MemoryQuotaStore{usage: make(map[string]core.DailyUsage)}
}

func (s *MemoryQuotaStore) Usage(ctx context.Context, wallet, day string) (core.DailyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(wallet, day), nil
}

func (s *MemoryQuotaStore) IncrementMatches(ctx context.Context, wallet, day string) (core.DailyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.get(wallet, day)
	u.Matches++
	s.usage[usageKey(u.WalletAddress, day)] = u
	return u, nil
}

func (s *MemoryQuotaStore) AddBonus(ctx context.Context, wallet, day string, credits int) (core.DailyUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.get(wallet, day)
	u.Bonus += credits
	s.usage[usageKey(u.WalletAddress, day)] = u
	return u, nil
}

func (s *MemoryQuotaStore) get(wallet, day string) core.DailyUsage {
	wallet = normalizeWallet(wallet)
	if u, ok := s.usage[usageKey(wallet, day)]; ok {
		return u
	}
	return core.DailyUsage{WalletAddress: wallet, Day: day}
}

// MemoryPaymentStore keeps payment references in memory
type MemoryPaymentStore struct {
	refs map[string]core.PaymentReference
	mu   sync.Mutex
}

// NewMemoryPaymentStore creates an empty payment store
func NewMemoryPaymentStore() ports.PaymentStore {
	return &MemoryPaymentStore{refs: make(map[string]core.PaymentReference)}
}

func (s *MemoryPaymentStore) Create(ctx context.Context, ref core.PaymentReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.refs[ref.ID]; exists {
		return fmt.Errorf("payment reference %s already exists: %w", ref.ID, core.ErrInvalidPayment)
	}
	ref.WalletAddress = normalizeWallet(ref.WalletAddress)
	s.refs[ref.ID] = ref
	return nil
}

func (s *MemoryPaymentStore) Find(ctx context.Context, id string) (core.PaymentReference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.refs[id]
	if !ok {
		return core.PaymentReference{}, core.ErrPaymentNotFound
	}
	return ref, nil
}

func (s *MemoryPaymentStore) UpdateStatus(ctx context.Context, id string, status core.PaymentStatus, txID string, now time.Time) (core.PaymentReference, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.refs[id]
	if !ok {
		return core.PaymentReference{}, false, core.ErrPaymentNotFound
	}
	if ref.Status != core.PaymentPending {
		return ref, false, nil
	}

	ref.Status = status
	ref.TransactionID = txID
	ref.UpdatedAt = now
	s.refs[id] = ref
	return ref, true, nil
}

func (s *MemoryPaymentStore) ClaimGrant(ctx context.Context, id string, now time.Time) (core.PaymentReference, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.refs[id]
	if !ok {
		return core.PaymentReference{}, false, core.ErrPaymentNotFound
	}
	if ref.Status != core.PaymentConfirmed || ref.Granted {
		return ref, false, nil
	}

	ref.Granted = true
	ref.UpdatedAt = now
	s.refs[id] = ref
	return ref, true, nil
}

func (s *MemoryPaymentStore) ReleaseGrant(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.refs[id]
	if !ok {
		return core.ErrPaymentNotFound
	}
	ref.Granted = false
	ref.UpdatedAt = now
	s.refs[id] = ref
	return nil
}
