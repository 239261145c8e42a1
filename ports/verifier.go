package ports

import (
	"context"

	"github.com/layer-3/pairgate/core"
)

// MessageVerifier checks a wallet-signed sign-in message against the expected nonce
// and returns the signing wallet address
type MessageVerifier interface {
	VerifyMessage(ctx context.Context, payload core.SignedPayload, nonce string) (string, error)
}

// AttestationVerifier checks a unique-human proof with its provider and returns
// the attestation (nullifier) hash
type AttestationVerifier interface {
	VerifyProof(ctx context.Context, proof core.AttestationProof, action, signal string) (string, error)
}
