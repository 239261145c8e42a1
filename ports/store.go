package ports

import (
	"context"
	"time"

	"github.com/layer-3/pairgate/core"
)

// NonceStore holds one live nonce per owner key
type NonceStore interface {
	// Put stores the record, replacing any prior nonce for the same owner
	Put(ctx context.Context, record core.NonceRecord) error
	// Consume atomically checks value and expiry and deletes the record on a match.
	// A mismatch leaves the stored record untouched and returns core.ErrInvalidNonce.
	Consume(ctx context.Context, ownerKey, value string, now time.Time) error
}

// Ledger is the durable attestation-to-wallet mapping
type Ledger interface {
	// Upsert binds hash to wallet. An existing row for hash is re-bound; any other
	// row held by wallet is replaced.
	Upsert(ctx context.Context, record core.VerificationRecord) error
	FindByWallet(ctx context.Context, wallet string) (core.VerificationRecord, error)
	FindByAttestation(ctx context.Context, hash string) (core.VerificationRecord, error)
}

// QuotaStore is the daily counter keyed by (wallet, day)
type QuotaStore interface {
	Usage(ctx context.Context, wallet, day string) (core.DailyUsage, error)
	IncrementMatches(ctx context.Context, wallet, day string) (core.DailyUsage, error)
	AddBonus(ctx context.Context, wallet, day string, credits int) (core.DailyUsage, error)
}

// PaymentStore keeps payment references keyed by id
type PaymentStore interface {
	Create(ctx context.Context, ref core.PaymentReference) error
	Find(ctx context.Context, id string) (core.PaymentReference, error)
	// UpdateStatus moves a pending reference to status and returns the updated row.
	// Non-pending references are returned unchanged.
	UpdateStatus(ctx context.Context, id string, status core.PaymentStatus, txID string, now time.Time) (core.PaymentReference, bool, error)
	// ClaimGrant marks a confirmed, not yet granted reference as granted and reports
	// whether this call made the claim
	ClaimGrant(ctx context.Context, id string, now time.Time) (core.PaymentReference, bool, error)
	// ReleaseGrant clears the granted mark so a later callback can retry the grant
	ReleaseGrant(ctx context.Context, id string, now time.Time) error
}
