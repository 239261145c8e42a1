package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
)

// Ledger persists verification records in the users table
type Ledger struct {
	db *sql.DB
}

// NewLedger constructs a PostgreSQL-backed verification ledger
func NewLedger(db *sql.DB) ports.Ledger {
	return &Ledger{db: db}
}

// Upsert binds the attestation to the wallet in one transaction.
// The wallet's row for any other attestation is dropped first so both unique
// columns hold after the attestation row is re-bound.
func (l *Ledger) Upsert(ctx context.Context, record core.VerificationRecord) error {
	wallet := normalizeWallet(record.WalletAddress)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM users WHERE wallet_address = $1 AND attestation_hash <> $2`,
		wallet, record.AttestationHash)
	if err != nil {
		return unavailable("drop previous attestation", err)
	}

	query := `
		INSERT INTO users (wallet_address, attestation_hash, verified, verified_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (attestation_hash) DO UPDATE SET
			wallet_address = EXCLUDED.wallet_address,
			verified = EXCLUDED.verified,
			verified_at = EXCLUDED.verified_at
	`
	if _, err := tx.ExecContext(ctx, query, wallet, record.AttestationHash, record.Verified, record.VerifiedAt); err != nil {
		return unavailable("upsert verification", err)
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit upsert", err)
	}
	return nil
}

func (l *Ledger) FindByWallet(ctx context.Context, wallet string) (core.VerificationRecord, error) {
	return l.findOne(ctx, `WHERE wallet_address = $1`, normalizeWallet(wallet))
}

func (l *Ledger) FindByAttestation(ctx context.Context, hash string) (core.VerificationRecord, error) {
	return l.findOne(ctx, `WHERE attestation_hash = $1`, hash)
}

func (l *Ledger) findOne(ctx context.Context, where string, arg string) (core.VerificationRecord, error) {
	var r core.VerificationRecord
	err := l.db.QueryRowContext(ctx,
		`SELECT wallet_address, attestation_hash, verified, verified_at FROM users `+where, arg,
	).Scan(&r.WalletAddress, &r.AttestationHash, &r.Verified, &r.VerifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.VerificationRecord{}, fmt.Errorf("verification record: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.VerificationRecord{}, unavailable("find verification", err)
	}
	return r, nil
}
