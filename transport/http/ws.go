package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/internal/metrics"
	"github.com/layer-3/pairgate/service"
)

const (
	sendBuffer   = 32
	writeTimeout = 10 * time.Second
	maxFrameSize = 4096
)

// Gateway admits WebSocket sessions and forwards their protocol messages to the
// coordinator
type Gateway struct {
	auth        *service.AuthService
	registry    *service.Registry
	coordinator *service.Coordinator
	quota       *service.QuotaService
	metrics     *metrics.Metrics
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// NewGateway creates the WebSocket gateway
func NewGateway(
	auth *service.AuthService,
	registry *service.Registry,
	coordinator *service.Coordinator,
	quota *service.QuotaService,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Gateway {
	return &Gateway{
		auth:        auth,
		registry:    registry,
		coordinator: coordinator,
		quota:       quota,
		metrics:     m,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve checks the identity and upgrades the connection. A wallet is accepted only
// from a session that signed in with it.
func (g *Gateway) Serve(c *gin.Context) {
	browser, _ := browserSession(c)
	identity, err := g.admit(c.Request.Context(), browser, c.Query("username"), c.Query("wallet"))
	if err != nil {
		statusCode := http.StatusServiceUnavailable
		reason := "storage"
		switch {
		case errors.Is(err, errMissingUsername):
			statusCode = http.StatusBadRequest
			reason = "missing_username"
		case errors.Is(err, errWalletNotSignedIn):
			statusCode = http.StatusForbidden
			reason = "unbound_wallet"
		case errors.Is(err, errUnverifiedWallet):
			statusCode = http.StatusForbidden
			reason = "unverified_wallet"
		}
		g.metrics.UpgradeRejections.WithLabelValues(reason).Inc()
		c.AbortWithStatusJSON(statusCode, gin.H{"error": err.Error()})
		return
	}

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the response
		g.metrics.UpgradeRejections.WithLabelValues("handshake").Inc()
		g.logger.Debug("websocket handshake failed", "error", err)
		return
	}

	conn := newWSConn(ws)
	session := g.registry.Register(identity, conn, time.Now())
	g.logger.Info("session opened", "session", session.ID, "identity", identity.DisplayName)

	go conn.writePump()
	g.readPump(c.Request.Context(), session, conn)
}

var (
	errMissingUsername   = fmt.Errorf("%w: username required", core.ErrUpgradeRejected)
	errUnverifiedWallet  = fmt.Errorf("%w: wallet not verified", core.ErrUpgradeRejected)
	errWalletNotSignedIn = fmt.Errorf("%w: session not signed in with wallet", core.ErrUpgradeRejected)
)

func (g *Gateway) admit(ctx context.Context, session core.BrowserSession, username, wallet string) (core.Identity, error) {
	if username == "" {
		return core.Identity{}, errMissingUsername
	}
	if wallet != "" {
		if !session.SignedInAs(wallet) {
			return core.Identity{}, errWalletNotSignedIn
		}
		verified, err := g.auth.IsVerified(ctx, wallet)
		if err != nil {
			g.logger.Error("identity lookup failed", "wallet", wallet, "error", err)
			return core.Identity{}, fmt.Errorf("%w: identity lookup failed", core.ErrStorageUnavailable)
		}
		if !verified {
			return core.Identity{}, errUnverifiedWallet
		}
	}
	return core.Identity{DisplayName: username, WalletAddress: wallet}, nil
}

func (g *Gateway) readPump(ctx context.Context, session *service.Session, conn *wsConn) {
	defer func() {
		conn.Close()
		if err := g.coordinator.Disconnect(context.Background(), session.ID); err != nil {
			g.logger.Debug("disconnect not delivered", "session", session.ID, "error", err)
		}
		g.logger.Info("session closed", "session", session.ID, "identity", session.Identity.DisplayName)
	}()

	conn.ws.SetReadLimit(maxFrameSize)
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		msg, err := core.ParseClientMessage(data)
		switch {
		case errors.Is(err, core.ErrMalformedMessage):
			g.reply(session, conn, core.ErrorMessage("malformed payload"))
			continue
		case errors.Is(err, core.ErrUnknownMessage):
			g.reply(session, conn, core.ErrorMessage(fmt.Sprintf("unknown message type %q", msg.Type)))
			continue
		}

		switch msg.Type {
		case core.TypeJoinQueue:
			g.join(ctx, session, conn)
		case core.TypeLeaveQueue:
			if err := g.coordinator.Leave(ctx, session.ID); err != nil {
				g.reply(session, conn, core.ErrorMessage("matching unavailable"))
			}
		case core.TypeHeartbeat:
			g.reply(session, conn, core.HeartbeatMessage())
		}
	}
}

func (g *Gateway) join(ctx context.Context, session *service.Session, conn *wsConn) {
	if err := g.quota.Check(ctx, session.Identity.WalletAddress); err != nil {
		if errors.Is(err, core.ErrQuotaExceeded) {
			g.reply(session, conn, core.ErrorMessage(core.ErrQuotaExceeded.Error()))
			return
		}
		// quota bookkeeping is advisory; a failed read lets the join through
		g.logger.Warn("quota check failed", "session", session.ID, "error", err)
	}

	if err := g.coordinator.Join(ctx, session.ID); err != nil {
		g.reply(session, conn, core.ErrorMessage("matching unavailable"))
	}
}

func (g *Gateway) reply(session *service.Session, conn *wsConn, msg core.ServerMessage) {
	if err := conn.Send(msg); err != nil {
		g.metrics.DeliveryFailures.Inc()
		g.logger.Warn("delivery failure", "session", session.ID, "type", msg.Type, "error", err)
		conn.Close()
	}
}

// wsConn queues outbound frames for a single writer goroutine
type wsConn struct {
	ws        *websocket.Conn
	send      chan core.ServerMessage
	closed    chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		ws:     ws,
		send:   make(chan core.ServerMessage, sendBuffer),
		closed: make(chan struct{}),
	}
}

// Send queues msg without blocking
func (c *wsConn) Send(msg core.ServerMessage) error {
	select {
	case <-c.closed:
		return fmt.Errorf("%w: connection closed", core.ErrDeliveryFailure)
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return fmt.Errorf("%w: send buffer full", core.ErrDeliveryFailure)
	}
}

// Close stops the writer and closes the socket, unblocking the reader
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.ws.Close()
	})
	return err
}

func (c *wsConn) writePump() {
	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.Close()
				return
			}
		}
	}
}
