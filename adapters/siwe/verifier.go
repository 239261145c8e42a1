// Package siwe verifies wallet sign-in messages signed with personal_sign.
package siwe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
)

// Verifier implements ports.MessageVerifier for externally owned accounts
type Verifier struct {
	domain string
	clock  func() time.Time
}

// Option configures a Verifier
type Option func(*Verifier)

// WithDomain requires the signed message to name this domain
func WithDomain(domain string) Option {
	return func(v *Verifier) { v.domain = domain }
}

// WithClock overrides the clock used for expiry checks
func WithClock(clock func() time.Time) Option {
	return func(v *Verifier) {
		if clock != nil {
			v.clock = clock
		}
	}
}

// NewVerifier creates a sign-in message verifier
func NewVerifier(opts ...Option) ports.MessageVerifier {
	v := &Verifier{clock: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// VerifyMessage checks the message fields, then recovers the signer and compares it
// with the claimed address
func (v *Verifier) VerifyMessage(ctx context.Context, payload core.SignedPayload, nonce string) (string, error) {
	if payload.Status != "" && payload.Status != "success" {
		return "", fmt.Errorf("wallet reported status %q: %w", payload.Status, core.ErrInvalidSignature)
	}

	msg, err := ParseMessage(payload.Message)
	if err != nil {
		return "", fmt.Errorf("parse message: %w: %w", core.ErrInvalidSignature, err)
	}
	if msg.Nonce != nonce {
		return "", fmt.Errorf("message nonce mismatch: %w", core.ErrInvalidNonce)
	}
	if v.domain != "" && !strings.EqualFold(msg.Domain, v.domain) {
		return "", fmt.Errorf("domain %q not accepted: %w", msg.Domain, core.ErrInvalidSignature)
	}

	now := v.clock()
	if msg.ExpirationTime != nil && !now.Before(*msg.ExpirationTime) {
		return "", fmt.Errorf("message expired: %w", core.ErrInvalidSignature)
	}
	if msg.NotBefore != nil && now.Before(*msg.NotBefore) {
		return "", fmt.Errorf("message not yet valid: %w", core.ErrInvalidSignature)
	}

	if payload.Address != "" && common.HexToAddress(payload.Address) != msg.Address {
		return "", fmt.Errorf("address mismatch: %w", core.ErrInvalidSignature)
	}

	signer, err := RecoverSigner(payload.Message, payload.Signature)
	if err != nil {
		return "", err
	}
	if signer != msg.Address {
		return "", core.ErrInvalidSignature
	}

	return msg.Address.Hex(), nil
}

// RecoverSigner returns the address that produced an EIP-191 personal_sign signature
func RecoverSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes: %w", core.ErrInvalidSignature)
	}

	// Wallets emit v as 27/28; SigToPub expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", core.ErrInvalidSignature)
	}

	return crypto.PubkeyToAddress(*pub), nil
}
