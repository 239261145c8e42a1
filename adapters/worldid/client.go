// Package worldid verifies unique-human proofs against the World ID cloud API.
package worldid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
)

const DefaultBaseURL = "https://developer.worldcoin.org"

// Client implements ports.AttestationVerifier
type Client struct {
	baseURL string
	appID   string
	http    *http.Client
}

// NewClient creates a World ID verification client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL, appID string, httpClient *http.Client) ports.AttestationVerifier {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		appID:   appID,
		http:    httpClient,
	}
}

type verifyRequest struct {
	NullifierHash     string `json:"nullifier_hash"`
	MerkleRoot        string `json:"merkle_root"`
	Proof             string `json:"proof"`
	VerificationLevel string `json:"verification_level"`
	Action            string `json:"action"`
	SignalHash        string `json:"signal_hash"`
}

type verifyResponse struct {
	Success       bool   `json:"success"`
	NullifierHash string `json:"nullifier_hash"`
	Code          string `json:"code"`
	Detail        string `json:"detail"`
}

// VerifyProof submits the proof and returns the nullifier hash the provider accepted
func (c *Client) VerifyProof(ctx context.Context, proof core.AttestationProof, action, signal string) (string, error) {
	if proof.NullifierHash == "" {
		return "", core.ErrMissingAttestation
	}

	body, err := json.Marshal(verifyRequest{
		NullifierHash:     proof.NullifierHash,
		MerkleRoot:        proof.MerkleRoot,
		Proof:             proof.Proof,
		VerificationLevel: proof.VerificationLevel,
		Action:            action,
		SignalHash:        HashToField(signal),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal proof: %w", err)
	}

	url := fmt.Sprintf("%s/api/v2/verify/%s", c.baseURL, c.appID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("verify request: %w: %w", core.ErrAttestationFailed, err)
	}
	defer resp.Body.Close()

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode verify response (status %d): %w", resp.StatusCode, core.ErrAttestationFailed)
	}

	if resp.StatusCode != http.StatusOK || !out.Success {
		return "", fmt.Errorf("%s %s: %w", out.Code, out.Detail, core.ErrAttestationFailed)
	}

	if out.NullifierHash == "" {
		out.NullifierHash = proof.NullifierHash
	}
	return out.NullifierHash, nil
}

// HashToField hashes a signal the way the World ID SDKs do: keccak256 shifted right
// by 8 bits so it fits the SNARK scalar field. Hex-prefixed signals are hashed as bytes.
func HashToField(signal string) string {
	input := []byte(signal)
	if strings.HasPrefix(signal, "0x") {
		if decoded, err := hexutil.Decode(signal); err == nil {
			input = decoded
		}
	}

	h := new(big.Int).SetBytes(crypto.Keccak256(input))
	h.Rsh(h, 8)
	return fmt.Sprintf("0x%064x", h)
}
