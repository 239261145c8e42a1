// Package storetest holds contract suites shared by every store implementation.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

const (
	walletA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	walletB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// NonceStoreSuite checks the one-live-nonce-per-owner contract
type NonceStoreSuite struct {
	suite.Suite
	New   func() ports.NonceStore
	store ports.NonceStore
}

func (s *NonceStoreSuite) SetupTest() {
	s.store = s.New()
}

func (s *NonceStoreSuite) put(owner, value string) {
	now := time.Now()
	s.Require().NoError(s.store.Put(context.Background(), core.NonceRecord{
		Value:     value,
		OwnerKey:  owner,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Minute),
	}))
}

func (s *NonceStoreSuite) TestConsumeOnce() {
	ctx := context.Background()
	s.put("K1", "n1")

	s.NoError(s.store.Consume(ctx, "K1", "n1", time.Now()))
	s.ErrorIs(s.store.Consume(ctx, "K1", "n1", time.Now()), core.ErrInvalidNonce)
}

func (s *NonceStoreSuite) TestMismatchKeepsRecord() {
	ctx := context.Background()
	s.put("K1", "n1")

	s.ErrorIs(s.store.Consume(ctx, "K1", "other", time.Now()), core.ErrInvalidNonce)
	s.NoError(s.store.Consume(ctx, "K1", "n1", time.Now()))
}

func (s *NonceStoreSuite) TestPutReplacesOwnerNonce() {
	ctx := context.Background()
	s.put("K1", "n1")
	s.put("K1", "n2")
	s.put("K2", "n1")

	s.ErrorIs(s.store.Consume(ctx, "K1", "n1", time.Now()), core.ErrInvalidNonce)
	s.NoError(s.store.Consume(ctx, "K1", "n2", time.Now()))
	s.NoError(s.store.Consume(ctx, "K2", "n1", time.Now()))
}

func (s *NonceStoreSuite) TestUnknownOwner() {
	s.ErrorIs(s.store.Consume(context.Background(), "nobody", "n1", time.Now()), core.ErrInvalidNonce)
}

func (s *NonceStoreSuite) TestConcurrentConsume() {
	ctx := context.Background()
	s.put("K1", "n1")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.store.Consume(ctx, "K1", "n1", time.Now()) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}

// LedgerSuite checks that both ledger columns stay unique under re-binding
type LedgerSuite struct {
	suite.Suite
	New    func() ports.Ledger
	ledger ports.Ledger
}

func (s *LedgerSuite) SetupTest() {
	s.ledger = s.New()
}

func (s *LedgerSuite) upsert(wallet, hash string) {
	s.Require().NoError(s.ledger.Upsert(context.Background(), core.VerificationRecord{
		WalletAddress:   wallet,
		AttestationHash: hash,
		Verified:        true,
		VerifiedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}))
}

func (s *LedgerSuite) TestFind() {
	ctx := context.Background()
	s.upsert(walletA, "0x01")

	byWallet, err := s.ledger.FindByWallet(ctx, walletA)
	s.Require().NoError(err)
	s.Equal("0x01", byWallet.AttestationHash)
	s.True(byWallet.Valid())

	byHash, err := s.ledger.FindByAttestation(ctx, "0x01")
	s.Require().NoError(err)
	s.Equal(walletA, byHash.WalletAddress)

	_, err = s.ledger.FindByWallet(ctx, walletB)
	s.ErrorIs(err, core.ErrNotFound)
	_, err = s.ledger.FindByAttestation(ctx, "0x02")
	s.ErrorIs(err, core.ErrNotFound)
}

func (s *LedgerSuite) TestWalletLookupIgnoresCase() {
	s.upsert("0xAbCdEf0000000000000000000000000000000000", "0x01")

	record, err := s.ledger.FindByWallet(context.Background(), "0xabcdef0000000000000000000000000000000000")
	s.Require().NoError(err)
	s.Equal("0x01", record.AttestationHash)
}

func (s *LedgerSuite) TestAttestationRebinds() {
	ctx := context.Background()
	s.upsert(walletA, "0x01")
	s.upsert(walletB, "0x01")

	record, err := s.ledger.FindByAttestation(ctx, "0x01")
	s.Require().NoError(err)
	s.Equal(walletB, record.WalletAddress)

	_, err = s.ledger.FindByWallet(ctx, walletA)
	s.ErrorIs(err, core.ErrNotFound)
}

func (s *LedgerSuite) TestWalletReverification() {
	ctx := context.Background()
	s.upsert(walletA, "0x01")
	s.upsert(walletB, "0x02")
	s.upsert(walletA, "0x02")

	record, err := s.ledger.FindByWallet(ctx, walletA)
	s.Require().NoError(err)
	s.Equal("0x02", record.AttestationHash)

	_, err = s.ledger.FindByAttestation(ctx, "0x01")
	s.ErrorIs(err, core.ErrNotFound)
	_, err = s.ledger.FindByWallet(ctx, walletB)
	s.ErrorIs(err, core.ErrNotFound)
}

// QuotaSuite checks the (wallet, day) counters
type QuotaSuite struct {
	suite.Suite
	New   func() ports.QuotaStore
	store ports.QuotaStore
}

func (s *QuotaSuite) SetupTest() {
	s.store = s.New()
}

func (s *QuotaSuite) TestCounters() {
	ctx := context.Background()

	usage, err := s.store.Usage(ctx, walletA, "2025-03-01")
	s.Require().NoError(err)
	s.Zero(usage.Matches)
	s.Zero(usage.Bonus)

	_, err = s.store.IncrementMatches(ctx, walletA, "2025-03-01")
	s.Require().NoError(err)
	usage, err = s.store.IncrementMatches(ctx, walletA, "2025-03-01")
	s.Require().NoError(err)
	s.Equal(2, usage.Matches)

	usage, err = s.store.AddBonus(ctx, walletA, "2025-03-01", 5)
	s.Require().NoError(err)
	s.Equal(5, usage.Bonus)
	s.Equal(2, usage.Matches)

	other, err := s.store.Usage(ctx, walletA, "2025-03-02")
	s.Require().NoError(err)
	s.Zero(other.Matches)

	other, err = s.store.Usage(ctx, walletB, "2025-03-01")
	s.Require().NoError(err)
	s.Zero(other.Matches)
}

// PaymentSuite checks payment reference transitions
type PaymentSuite struct {
	suite.Suite
	New   func() ports.PaymentStore
	store ports.PaymentStore
}

func (s *PaymentSuite) SetupTest() {
	s.store = s.New()
}

func (s *PaymentSuite) reference(id string) core.PaymentReference {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return core.PaymentReference{
		ID:            id,
		WalletAddress: walletA,
		Amount:        decimal.RequireFromString("1.25"),
		Credits:       5,
		Status:        core.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *PaymentSuite) TestLifecycle() {
	ctx := context.Background()
	ref := s.reference("ref-1")
	s.Require().NoError(s.store.Create(ctx, ref))
	s.ErrorIs(s.store.Create(ctx, ref), core.ErrInvalidPayment)

	found, err := s.store.Find(ctx, "ref-1")
	s.Require().NoError(err)
	s.True(ref.Amount.Equal(found.Amount))
	s.Equal(core.PaymentPending, found.Status)

	updated, changed, err := s.store.UpdateStatus(ctx, "ref-1", core.PaymentConfirmed, "tx-1", time.Now())
	s.Require().NoError(err)
	s.True(changed)
	s.Equal(core.PaymentConfirmed, updated.Status)
	s.Equal("tx-1", updated.TransactionID)

	again, changed, err := s.store.UpdateStatus(ctx, "ref-1", core.PaymentFailed, "tx-2", time.Now())
	s.Require().NoError(err)
	s.False(changed)
	s.Equal(core.PaymentConfirmed, again.Status)
	s.Equal("tx-1", again.TransactionID)
}

func (s *PaymentSuite) TestGrantClaim() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, s.reference("ref-1")))

	_, claimed, err := s.store.ClaimGrant(ctx, "ref-1", time.Now())
	s.Require().NoError(err)
	s.False(claimed, "pending references cannot be granted")

	_, _, err = s.store.UpdateStatus(ctx, "ref-1", core.PaymentConfirmed, "tx-1", time.Now())
	s.Require().NoError(err)

	ref, claimed, err := s.store.ClaimGrant(ctx, "ref-1", time.Now())
	s.Require().NoError(err)
	s.True(claimed)
	s.True(ref.Granted)

	_, claimed, err = s.store.ClaimGrant(ctx, "ref-1", time.Now())
	s.Require().NoError(err)
	s.False(claimed)

	s.Require().NoError(s.store.ReleaseGrant(ctx, "ref-1", time.Now()))
	found, err := s.store.Find(ctx, "ref-1")
	s.Require().NoError(err)
	s.False(found.Granted)
	s.Equal(core.PaymentConfirmed, found.Status)

	_, claimed, err = s.store.ClaimGrant(ctx, "ref-1", time.Now())
	s.Require().NoError(err)
	s.True(claimed)

	_, _, err = s.store.ClaimGrant(ctx, "missing", time.Now())
	s.ErrorIs(err, core.ErrPaymentNotFound)
	s.ErrorIs(s.store.ReleaseGrant(ctx, "missing", time.Now()), core.ErrPaymentNotFound)
}

func (s *PaymentSuite) TestMissingReference() {
	ctx := context.Background()

	_, err := s.store.Find(ctx, "missing")
	s.ErrorIs(err, core.ErrPaymentNotFound)

	_, _, err = s.store.UpdateStatus(ctx, "missing", core.PaymentConfirmed, "", time.Now())
	s.ErrorIs(err, core.ErrPaymentNotFound)
}
