package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/layer-3/pairgate/core"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeConn struct {
	mu     sync.Mutex
	msgs   []core.ServerMessage
	fail   bool
	closed bool
}

func (c *fakeConn) Send(msg core.ServerMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return core.ErrDeliveryFailure
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages() []core.ServerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.ServerMessage(nil), c.msgs...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// stepClock advances one second per call
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingPublisher struct {
	mu      sync.Mutex
	matches []core.MatchEvent
}

func (p *recordingPublisher) PublishMatch(ctx context.Context, event core.MatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.matches = append(p.matches, event)
	return nil
}

func (p *recordingPublisher) published() []core.MatchEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.MatchEvent(nil), p.matches...)
}
