package tokenizer

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
)

const AudienceSession = "pairgate:session"

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) ports.Tokenizer {
	return &JWTTokenizer{signKey: signKey}
}

// SessionToToken signs a session token whose subject is the owner key
func (j *JWTTokenizer) SessionToToken(session core.BrowserSession, expiresAt time.Time) (string, error) {
	if session.OwnerKey == "" {
		return "", fmt.Errorf("owner key required: %w", core.ErrInvalidToken)
	}

	claims := SessionClaims{
		Wallet: session.WalletAddress,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.OwnerKey,
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signedToken, nil
}

// TokenToSession validates a session token and returns the session it carries
func (j *JWTTokenizer) TokenToSession(tokenStr string) (core.BrowserSession, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudienceSession))

	if err != nil {
		return core.BrowserSession{}, fmt.Errorf("failed to parse session token: %w: %w", core.ErrInvalidToken, err)
	}

	if !token.Valid {
		return core.BrowserSession{}, core.ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.Subject == "" {
		return core.BrowserSession{}, fmt.Errorf("invalid claims: %w", core.ErrInvalidToken)
	}

	return core.BrowserSession{OwnerKey: claims.Subject, WalletAddress: claims.Wallet}, nil
}
