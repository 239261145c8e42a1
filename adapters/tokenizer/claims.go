package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims carry the nonce owner key in the subject and, once signed in, the
// wallet that signed
type SessionClaims struct {
	jwt.RegisteredClaims
	Wallet string `json:"wallet,omitempty"`
}
