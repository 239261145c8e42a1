package core

import (
	"fmt"
	"strings"
	"time"
)

// NonceRecord is a one-time challenge bound to the client that requested it
type NonceRecord struct {
	Value     string    // Random challenge value
	OwnerKey  string    // Key derived from the requesting client
	IssuedAt  time.Time // Issuer's clock at creation
	ExpiresAt time.Time // After this instant the nonce is unusable
}

// Lifetime is the validity window on the issuer's clock
func (n NonceRecord) Lifetime() time.Duration {
	return n.ExpiresAt.Sub(n.IssuedAt)
}

// Expired reports whether the record can no longer be redeemed at now
func (n NonceRecord) Expired(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}

// BrowserSession is what the session cookie carries. WalletAddress is set only after
// the session completed a signed sign-in.
type BrowserSession struct {
	OwnerKey      string
	WalletAddress string
}

// SignedInAs reports whether the session signed in with wallet
func (s BrowserSession) SignedInAs(wallet string) bool {
	return s.WalletAddress != "" && strings.EqualFold(s.WalletAddress, strings.TrimSpace(wallet))
}

// VerificationRecord binds a unique-human attestation to exactly one wallet
type VerificationRecord struct {
	WalletAddress   string
	AttestationHash string
	Verified        bool
	VerifiedAt      time.Time
}

// Valid reports whether the record grants verified status
func (r VerificationRecord) Valid() bool {
	return r.Verified && r.AttestationHash != ""
}

// SignedPayload is what the wallet returns after signing the sign-in message
type SignedPayload struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Address   string `json:"address"`
	Version   int    `json:"version"`
	Username  string `json:"username,omitempty"`
}

// SIWEResult is the outcome of a successful nonce redemption
type SIWEResult struct {
	WalletAddress string
	DisplayName   string
}

// AttestationProof is the zero-knowledge proof produced by the unique-human provider
type AttestationProof struct {
	Proof             string `json:"proof"`
	MerkleRoot        string `json:"merkle_root"`
	NullifierHash     string `json:"nullifier_hash"`
	VerificationLevel string `json:"verification_level"`
}

// ShortAddress renders a wallet as 0x1234...abcd for display
func ShortAddress(address string) string {
	address = strings.TrimSpace(address)
	if len(address) <= 10 {
		return address
	}
	return fmt.Sprintf("%s...%s", address[:6], address[len(address)-4:])
}
