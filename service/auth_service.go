package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/internal/metrics"
	"github.com/layer-3/pairgate/ports"
)

// DefaultNonceTTL is how long an issued nonce stays redeemable
const DefaultNonceTTL = 5 * time.Minute

// AuthService handles the authentication handshake: nonces, signed sign-in
// messages and unique-human attestations
type AuthService struct {
	nonces      ports.NonceStore
	ledger      ports.Ledger
	messages    ports.MessageVerifier
	attestation ports.AttestationVerifier
	metrics     *metrics.Metrics
	logger      *slog.Logger

	nonceTTL time.Duration
	clock    func() time.Time
}

// AuthOption configures an AuthService
type AuthOption func(*AuthService)

// WithNonceTTL overrides DefaultNonceTTL
func WithNonceTTL(ttl time.Duration) AuthOption {
	return func(s *AuthService) {
		if ttl > 0 {
			s.nonceTTL = ttl
		}
	}
}

// WithAuthClock overrides the wall clock
func WithAuthClock(clock func() time.Time) AuthOption {
	return func(s *AuthService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewAuthService creates a new authentication service
func NewAuthService(
	nonces ports.NonceStore,
	ledger ports.Ledger,
	messages ports.MessageVerifier,
	attestation ports.AttestationVerifier,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		nonces:      nonces,
		ledger:      ledger,
		messages:    messages,
		attestation: attestation,
		metrics:     m,
		logger:      logger,
		nonceTTL:    DefaultNonceTTL,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueNonce generates a new nonce for ownerKey, replacing any earlier one
func (s *AuthService) IssueNonce(ctx context.Context, ownerKey string) (string, error) {
	if ownerKey == "" {
		return "", fmt.Errorf("owner key required: %w", core.ErrInvalidNonce)
	}

	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := s.clock()
	record := core.NonceRecord{
		Value:     hex.EncodeToString(nonceBytes),
		OwnerKey:  ownerKey,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.nonceTTL),
	}
	if err := s.nonces.Put(ctx, record); err != nil {
		return "", fmt.Errorf("failed to store nonce: %w", err)
	}

	s.metrics.NoncesIssued.Inc()
	return record.Value, nil
}

// RedeemNonce consumes the nonce for ownerKey and then has the signed payload checked.
// The nonce is spent even if the signature check fails afterwards.
func (s *AuthService) RedeemNonce(ctx context.Context, ownerKey, nonce string, payload core.SignedPayload) (core.SIWEResult, error) {
	if ownerKey == "" || nonce == "" {
		s.metrics.NonceRedemptions.WithLabelValues("invalid").Inc()
		return core.SIWEResult{}, core.ErrInvalidNonce
	}

	if err := s.nonces.Consume(ctx, ownerKey, nonce, s.clock()); err != nil {
		outcome := "invalid"
		if errors.Is(err, core.ErrStorageUnavailable) {
			outcome = "unavailable"
		}
		s.metrics.NonceRedemptions.WithLabelValues(outcome).Inc()
		return core.SIWEResult{}, err
	}

	address, err := s.messages.VerifyMessage(ctx, payload, nonce)
	if err != nil {
		s.metrics.NonceRedemptions.WithLabelValues("bad_signature").Inc()
		return core.SIWEResult{}, fmt.Errorf("signature verification failed: %w", err)
	}

	s.metrics.NonceRedemptions.WithLabelValues("ok").Inc()

	name := payload.Username
	if name == "" {
		name = core.ShortAddress(address)
	}
	return core.SIWEResult{WalletAddress: address, DisplayName: name}, nil
}

// VerifyAttestation checks the proof with the provider and records the resulting
// attestation for the wallet named by signal
func (s *AuthService) VerifyAttestation(ctx context.Context, proof core.AttestationProof, action, signal string) (string, error) {
	hash, err := s.attestation.VerifyProof(ctx, proof, action, signal)
	if err != nil {
		s.metrics.AttestationsTotal.WithLabelValues("rejected").Inc()
		return "", err
	}

	if _, err := s.SubmitAttestation(ctx, hash, signal); err != nil {
		return hash, err
	}
	return hash, nil
}

// SubmitAttestation records that the attestation hash belongs to wallet.
// An existing record for the hash is re-bound to wallet. Ledger failures are
// returned wrapped in core.ErrStorageUnavailable together with verified=true,
// since the proof itself was already checked.
func (s *AuthService) SubmitAttestation(ctx context.Context, attestationHash, wallet string) (bool, error) {
	if attestationHash == "" {
		s.metrics.AttestationsTotal.WithLabelValues("missing").Inc()
		return false, core.ErrMissingAttestation
	}

	if previous, err := s.ledger.FindByAttestation(ctx, attestationHash); err == nil && previous.WalletAddress != normalize(wallet) {
		s.logger.Warn("attestation re-bound to another wallet",
			"attestation", attestationHash,
			"from", previous.WalletAddress,
			"to", wallet)
	}

	record := core.VerificationRecord{
		WalletAddress:   wallet,
		AttestationHash: attestationHash,
		Verified:        true,
		VerifiedAt:      s.clock(),
	}
	if err := s.ledger.Upsert(ctx, record); err != nil {
		s.metrics.AttestationsTotal.WithLabelValues("unpersisted").Inc()
		s.logger.Error("failed to persist verification", "wallet", wallet, "error", err)
		if errors.Is(err, core.ErrStorageUnavailable) {
			return true, err
		}
		return true, fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
	}

	s.metrics.AttestationsTotal.WithLabelValues("verified").Inc()
	return true, nil
}

// IsVerified reports whether wallet holds a verified record with an attestation
func (s *AuthService) IsVerified(ctx context.Context, wallet string) (bool, error) {
	record, err := s.ledger.FindByWallet(ctx, wallet)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return record.Valid(), nil
}
