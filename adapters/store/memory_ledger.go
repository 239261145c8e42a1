package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
)

// MemoryLedger keeps verification records in memory for tests and single-node dev
type MemoryLedger struct {
	byWallet map[string]core.VerificationRecord
	byHash   map[string]string
	mu       sync.RWMutex
}

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger() ports.Ledger {
	return &MemoryLedger{
		byWallet: make(map[string]core.VerificationRecord),
		byHash:   make(map[string]string),
	}
}

// Upsert binds the attestation to the wallet, keeping both columns unique
func (l *MemoryLedger) Upsert(ctx context.Context, record core.VerificationRecord) error {
	wallet := normalizeWallet(record.WalletAddress)
	record.WalletAddress = wallet

	l.mu.Lock()
	defer l.mu.Unlock()

	if previous, ok := l.byHash[record.AttestationHash]; ok && previous != wallet {
		delete(l.byWallet, previous)
	}
	if existing, ok := l.byWallet[wallet]; ok && existing.AttestationHash != record.AttestationHash {
		delete(l.byHash, existing.AttestationHash)
	}

	l.byWallet[wallet] = record
	l.byHash[record.AttestationHash] = wallet
	return nil
}

// FindByWallet returns core.ErrNotFound when the wallet has no record
func (l *MemoryLedger) FindByWallet(ctx context.Context, wallet string) (core.VerificationRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.byWallet[normalizeWallet(wallet)]
	if !ok {
		return core.VerificationRecord{}, fmt.Errorf("verification record: %w", core.ErrNotFound)
	}
	return record, nil
}

// FindByAttestation returns core.ErrNotFound when the hash is unknown
func (l *MemoryLedger) FindByAttestation(ctx context.Context, hash string) (core.VerificationRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	wallet, ok := l.byHash[hash]
	if !ok {
		return core.VerificationRecord{}, fmt.Errorf("verification record: %w", core.ErrNotFound)
	}
	return l.byWallet[wallet], nil
}

func usageKey(wallet, day string) string {
	return wallet + "|" + day
}

func normalizeWallet(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}
