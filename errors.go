package pairgate

import (
	"fmt"

	"github.com/layer-3/pairgate/core"
)

// RejectedError is returned by Dial when the gateway refuses the upgrade
type RejectedError struct {
	StatusCode int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("upgrade rejected with status %d", e.StatusCode)
}

// Unwrap lets callers match core.ErrUpgradeRejected
func (e *RejectedError) Unwrap() error {
	return core.ErrUpgradeRejected
}

// StatusError is returned by the HTTP helpers for non-2xx responses
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}
