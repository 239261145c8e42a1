package core

import "errors"

var (
	ErrInvalidNonce       = errors.New("invalid nonce")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrInvalidToken       = errors.New("invalid token")
	ErrMissingAttestation = errors.New("missing attestation hash")
	ErrAttestationFailed  = errors.New("attestation verification failed")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnknownMessage     = errors.New("unknown message type")
	ErrUpgradeRejected    = errors.New("upgrade rejected")
	ErrDeliveryFailure    = errors.New("delivery failure")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("not found")
	ErrQuotaExceeded      = errors.New("daily match limit reached")
	ErrPaymentNotFound    = errors.New("payment reference not found")
	ErrInvalidPayment     = errors.New("invalid payment")
	ErrCoordinatorStopped = errors.New("coordinator stopped")
)
