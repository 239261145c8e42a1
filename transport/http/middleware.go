package http

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
)

const sessionContextKey = "session"

// CallbackSignatureHeader carries the hex HMAC-SHA256 of the callback body
const CallbackSignatureHeader = "X-Pairgate-Signature"

const maxCallbackBody = 64 << 10

// SessionMiddleware resolves the browser session from the session cookie when one is
// present. Requests without a valid cookie pass through; handlers decide whether they
// need one.
func SessionMiddleware(tokenizer ports.Tokenizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, err := c.Cookie(SessionCookie); err == nil && token != "" {
			if session, err := tokenizer.TokenToSession(token); err == nil {
				c.Set(sessionContextKey, session)
			}
		}
		c.Next()
	}
}

// CallbackMiddleware admits only requests whose body is signed with secret.
// An empty secret rejects every request.
func CallbackMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		given, err := hex.DecodeString(c.GetHeader(CallbackSignatureHeader))
		if secret == "" || err != nil || !hmac.Equal(given, callbackMAC(secret, body)) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid signature"})
			return
		}
		c.Next()
	}
}

func callbackMAC(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// RequestLogger logs one line per request
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	}
}

func browserSession(c *gin.Context) (core.BrowserSession, bool) {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return core.BrowserSession{}, false
	}
	session, ok := v.(core.BrowserSession)
	return session, ok && session.OwnerKey != ""
}

func ownerKey(c *gin.Context) (string, bool) {
	session, ok := browserSession(c)
	return session.OwnerKey, ok
}
