// Package pairgate is the Go client for the pairing gateway. AuthClient performs the
// HTTP handshake and Client speaks the WebSocket session protocol.
package pairgate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/layer-3/pairgate/core"
)

// AuthClient runs the nonce and sign-in handshake. It keeps the session cookie in
// its own jar so the nonce and the verification share an owner key.
type AuthClient struct {
	baseURL string
	jar     http.CookieJar
	http    *http.Client
}

// NewAuthClient creates a handshake client for baseURL (http or https)
func NewAuthClient(baseURL string) (*AuthClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &AuthClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		jar:     jar,
		http:    &http.Client{Jar: jar, Timeout: 10 * time.Second},
	}, nil
}

// SignInResult is the gateway's answer to a verified sign-in
type SignInResult struct {
	Status   string `json:"status"`
	IsValid  bool   `json:"isValid"`
	Address  string `json:"address"`
	Username string `json:"username"`
}

// Nonce asks for a fresh nonce
func (a *AuthClient) Nonce(ctx context.Context) (string, error) {
	var out struct {
		Nonce string `json:"nonce"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/nonce", nil, &out); err != nil {
		return "", err
	}
	return out.Nonce, nil
}

// VerifySIWE submits a signed sign-in payload together with the nonce it embeds
func (a *AuthClient) VerifySIWE(ctx context.Context, payload core.SignedPayload, nonce string) (SignInResult, error) {
	body := map[string]any{"payload": payload, "nonce": nonce}
	var out SignInResult
	if err := a.do(ctx, http.MethodPost, "/api/verify-siwe", body, &out); err != nil {
		return SignInResult{}, err
	}
	return out, nil
}

func (a *AuthClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		msg := e.Error
		if msg == "" {
			msg = e.Message
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Client is a WebSocket session with the gateway
type Client struct {
	ws *websocket.Conn
	mu sync.Mutex // serialises writes
}

// Dial opens a session carrying the handshake's session cookie, which the gateway
// requires before it accepts wallet as the session's wallet
func (a *AuthClient) Dial(ctx context.Context, username, wallet string) (*Client, error) {
	dialer := *websocket.DefaultDialer
	dialer.Jar = a.jar
	return dial(ctx, &dialer, a.baseURL, username, wallet)
}

// Dial opens a guest session for username. baseURL uses the ws or wss scheme; http
// and https are rewritten. A wallet is only accepted on sessions opened through
// AuthClient.Dial.
func Dial(ctx context.Context, baseURL, username, wallet string) (*Client, error) {
	return dial(ctx, websocket.DefaultDialer, baseURL, username, wallet)
}

func dial(ctx context.Context, dialer *websocket.Dialer, baseURL, username, wallet string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}

	q := u.Query()
	if username != "" {
		q.Set("username", username)
	}
	if wallet != "" {
		q.Set("wallet", wallet)
	}
	u.RawQuery = q.Encode()

	ws, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusSwitchingProtocols {
				return nil, &RejectedError{StatusCode: resp.StatusCode}
			}
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return &Client{ws: ws}, nil
}

// JoinQueue enters the waiting pool
func (c *Client) JoinQueue() error {
	return c.write(core.ClientMessage{Type: core.TypeJoinQueue})
}

// LeaveQueue leaves the waiting pool
func (c *Client) LeaveQueue() error {
	return c.write(core.ClientMessage{Type: core.TypeLeaveQueue})
}

// Heartbeat asks the gateway to echo a heartbeat
func (c *Client) Heartbeat() error {
	return c.write(core.ClientMessage{Type: core.TypeHeartbeat})
}

// WriteRaw sends an arbitrary text frame
func (c *Client) WriteRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Next blocks until the next server message arrives or ctx is done.
// Only one goroutine may call Next at a time.
func (c *Client) Next(ctx context.Context) (core.ServerMessage, error) {
	deadline, _ := ctx.Deadline()
	if err := c.ws.SetReadDeadline(deadline); err != nil {
		return core.ServerMessage{}, err
	}

	var msg core.ServerMessage
	if err := c.ws.ReadJSON(&msg); err != nil {
		return core.ServerMessage{}, err
	}
	return msg, nil
}

// Close ends the session
func (c *Client) Close() error {
	return c.ws.Close()
}

func (c *Client) write(msg core.ClientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(msg)
}
