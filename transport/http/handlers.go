package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
	"github.com/layer-3/pairgate/service"
)

// SessionCookie carries the signed browser session
const SessionCookie = "pairgate_session"

const sessionLifetime = 24 * time.Hour

// AuthHandlers contains HTTP handlers for the authentication handshake
type AuthHandlers struct {
	authService  *service.AuthService
	tokenizer    ports.Tokenizer
	cookieSecure bool
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, tokenizer ports.Tokenizer, cookieSecure bool) *AuthHandlers {
	return &AuthHandlers{
		authService:  authService,
		tokenizer:    tokenizer,
		cookieSecure: cookieSecure,
	}
}

// Nonce issues a fresh nonce for the caller's session, minting the session cookie
// when the request carries none
func (h *AuthHandlers) Nonce(c *gin.Context) {
	owner, ok := ownerKey(c)
	if !ok {
		owner = uuid.New().String()
		if err := h.setSession(c, core.BrowserSession{OwnerKey: owner}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}
	}

	nonce, err := h.authService.IssueNonce(c.Request.Context(), owner)
	if err != nil {
		statusCode := http.StatusInternalServerError
		if errors.Is(err, core.ErrStorageUnavailable) {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, gin.H{"error": "Failed to issue nonce"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"nonce": nonce})
}

// VerifySIWE redeems the nonce and checks the signed sign-in message. On success the
// session cookie is re-issued bound to the signing wallet.
func (h *AuthHandlers) VerifySIWE(c *gin.Context) {
	var req struct {
		Payload core.SignedPayload `json:"payload"`
		Nonce   string             `json:"nonce" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "isValid": false, "message": "Invalid request"})
		return
	}

	owner, ok := ownerKey(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "isValid": false, "message": "Invalid nonce"})
		return
	}

	result, err := h.authService.RedeemNonce(c.Request.Context(), owner, req.Nonce, req.Payload)
	if err != nil {
		statusCode := http.StatusUnauthorized
		message := "Invalid signature"

		switch {
		case errors.Is(err, core.ErrStorageUnavailable):
			statusCode = http.StatusServiceUnavailable
			message = "Nonce storage unavailable"
		case errors.Is(err, core.ErrInvalidNonce):
			message = "Invalid nonce"
		}

		c.JSON(statusCode, gin.H{"status": "error", "isValid": false, "message": message})
		return
	}

	if err := h.setSession(c, core.BrowserSession{OwnerKey: owner, WalletAddress: result.WalletAddress}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "isValid": false, "message": "Failed to create session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"isValid":  true,
		"address":  result.WalletAddress,
		"username": result.DisplayName,
	})
}

// VerifyWorldID checks a unique-human proof and records it for the signal wallet
func (h *AuthHandlers) VerifyWorldID(c *gin.Context) {
	var req struct {
		Payload core.AttestationProof `json:"payload"`
		Action  string                `json:"action" binding:"required"`
		Signal  string                `json:"signal" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	hash, err := h.authService.VerifyAttestation(c.Request.Context(), req.Payload, req.Action, req.Signal)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"verified": true, "nullifier_hash": hash})
	case errors.Is(err, core.ErrStorageUnavailable):
		// the proof checked out; the ledger write is best-effort
		c.JSON(http.StatusOK, gin.H{"verified": true, "nullifier_hash": hash, "persisted": false})
	case errors.Is(err, core.ErrMissingAttestation):
		c.JSON(http.StatusBadRequest, gin.H{"verified": false, "error": "Missing attestation"})
	case errors.Is(err, core.ErrAttestationFailed):
		c.JSON(http.StatusBadRequest, gin.H{"verified": false, "error": "Verification failed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"verified": false, "error": "Verification failed"})
	}
}

func (h *AuthHandlers) setSession(c *gin.Context, session core.BrowserSession) error {
	token, err := h.tokenizer.SessionToToken(session, time.Now().Add(sessionLifetime))
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, int(sessionLifetime.Seconds()), "/", "", h.cookieSecure, true)
	return nil
}
