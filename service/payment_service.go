package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
	"github.com/shopspring/decimal"
)

// DefaultCreditsPerPayment is how many extra matches a confirmed payment grants
const DefaultCreditsPerPayment = 5

// PaymentService tracks payment references and grants credits once the provider
// confirms them
type PaymentService struct {
	payments ports.PaymentStore
	quota    *QuotaService
	credits  int
	logger   *slog.Logger
	clock    func() time.Time
}

// NewPaymentService creates a payment service
func NewPaymentService(payments ports.PaymentStore, quota *QuotaService, credits int, logger *slog.Logger) *PaymentService {
	if credits <= 0 {
		credits = DefaultCreditsPerPayment
	}
	return &PaymentService{
		payments: payments,
		quota:    quota,
		credits:  credits,
		logger:   logger,
		clock:    time.Now,
	}
}

// Initiate creates a pending reference the client hands to the payment provider
func (s *PaymentService) Initiate(ctx context.Context, wallet string, amount decimal.Decimal) (core.PaymentReference, error) {
	if wallet == "" {
		return core.PaymentReference{}, fmt.Errorf("%w: wallet required", core.ErrInvalidPayment)
	}
	if !amount.IsPositive() {
		return core.PaymentReference{}, fmt.Errorf("%w: amount must be positive", core.ErrInvalidPayment)
	}

	now := s.clock()
	ref := core.PaymentReference{
		ID:            uuid.New().String(),
		WalletAddress: wallet,
		Amount:        amount,
		Credits:       s.credits,
		Status:        core.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.payments.Create(ctx, ref); err != nil {
		return core.PaymentReference{}, fmt.Errorf("failed to create payment reference: %w", err)
	}

	s.logger.Info("payment initiated", "reference", ref.ID, "wallet", wallet, "amount", amount.String())
	return ref, nil
}

// Confirm applies the provider's status callback. Only the first transition out of
// pending changes the status. A confirmed payment grants its credits once; if the
// grant fails the callback errors and a retried callback applies it.
func (s *PaymentService) Confirm(ctx context.Context, id, txID string, status core.PaymentStatus) (core.PaymentReference, error) {
	if status != core.PaymentConfirmed && status != core.PaymentFailed {
		return core.PaymentReference{}, fmt.Errorf("%w: unexpected status %q", core.ErrInvalidPayment, status)
	}

	ref, changed, err := s.payments.UpdateStatus(ctx, id, status, txID, s.clock())
	if errors.Is(err, core.ErrPaymentNotFound) {
		return core.PaymentReference{}, err
	}
	if err != nil {
		return core.PaymentReference{}, fmt.Errorf("failed to update payment reference: %w", err)
	}
	if !changed {
		s.logger.Debug("payment already settled", "reference", id, "status", ref.Status, "granted", ref.Granted)
	}
	if ref.Status != core.PaymentConfirmed || ref.Granted {
		return ref, nil
	}

	return s.grant(ctx, ref)
}

// grant claims the reference before applying its credits so concurrent callbacks
// grant once. A failed grant releases the claim.
func (s *PaymentService) grant(ctx context.Context, ref core.PaymentReference) (core.PaymentReference, error) {
	claimed, ok, err := s.payments.ClaimGrant(ctx, ref.ID, s.clock())
	if err != nil {
		return ref, fmt.Errorf("failed to claim grant: %w", err)
	}
	if !ok {
		return claimed, nil
	}

	usage, err := s.quota.Grant(ctx, claimed.WalletAddress, claimed.Credits)
	if err != nil {
		if releaseErr := s.payments.ReleaseGrant(ctx, claimed.ID, s.clock()); releaseErr != nil {
			s.logger.Error("failed to release grant claim", "reference", claimed.ID, "error", releaseErr)
		}
		return ref, fmt.Errorf("failed to grant credits: %w", err)
	}

	s.logger.Info("payment confirmed", "reference", claimed.ID, "wallet", claimed.WalletAddress, "bonus", usage.Bonus)
	return claimed, nil
}
