package ports

import (
	"time"

	"github.com/layer-3/pairgate/core"
)

// Tokenizer signs and parses the browser session token
type Tokenizer interface {
	SessionToToken(session core.BrowserSession, expiresAt time.Time) (string, error)
	TokenToSession(token string) (core.BrowserSession, error)
}
