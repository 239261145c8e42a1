package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const paymentColumns = `id, wallet_address, amount, credits, status, transaction_id, granted, created_at, updated_at`

// PaymentStore persists payment references
type PaymentStore struct {
	db *sql.DB
}

func NewPaymentStore(db *sql.DB) ports.PaymentStore {
	return &PaymentStore{db: db}
}

func (s *PaymentStore) Create(ctx context.Context, ref core.PaymentReference) error {
	query := `
		INSERT INTO payment_references (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		ref.ID, normalizeWallet(ref.WalletAddress), ref.Amount, ref.Credits,
		string(ref.Status), ref.TransactionID, ref.Granted, ref.CreatedAt, ref.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return core.ErrInvalidPayment
		}
		return unavailable("create payment reference", err)
	}
	return nil
}

func (s *PaymentStore) Find(ctx context.Context, id string) (core.PaymentReference, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payment_references WHERE id = $1`, id)
	return scanPayment(row)
}

func (s *PaymentStore) UpdateStatus(ctx context.Context, id string, status core.PaymentStatus, txID string, now time.Time) (core.PaymentReference, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE payment_references
		SET status = $2, transaction_id = $3, updated_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING `+paymentColumns,
		id, string(status), txID, now)
	return s.conditional(ctx, id, row)
}

func (s *PaymentStore) ClaimGrant(ctx context.Context, id string, now time.Time) (core.PaymentReference, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE payment_references
		SET granted = TRUE, updated_at = $2
		WHERE id = $1 AND status = 'confirmed' AND NOT granted
		RETURNING `+paymentColumns,
		id, now)
	return s.conditional(ctx, id, row)
}

func (s *PaymentStore) ReleaseGrant(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE payment_references SET granted = FALSE, updated_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return unavailable("release grant", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrPaymentNotFound
	}
	return nil
}

// conditional scans the row of a guarded UPDATE. No row means the reference is
// unknown or the guard did not hold, in which case the current row is returned.
func (s *PaymentStore) conditional(ctx context.Context, id string, row *sql.Row) (core.PaymentReference, bool, error) {
	ref, err := scanPayment(row)
	if errors.Is(err, core.ErrPaymentNotFound) {
		existing, findErr := s.Find(ctx, id)
		if findErr != nil {
			return core.PaymentReference{}, false, findErr
		}
		return existing, false, nil
	}
	if err != nil {
		return core.PaymentReference{}, false, err
	}
	return ref, true, nil
}

func scanPayment(row *sql.Row) (core.PaymentReference, error) {
	var (
		ref    core.PaymentReference
		status string
	)
	err := row.Scan(&ref.ID, &ref.WalletAddress, &ref.Amount, &ref.Credits, &status,
		&ref.TransactionID, &ref.Granted, &ref.CreatedAt, &ref.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.PaymentReference{}, core.ErrPaymentNotFound
	}
	if err != nil {
		return core.PaymentReference{}, unavailable("scan payment reference", err)
	}
	ref.Status = core.PaymentStatus(status)
	return ref, nil
}
