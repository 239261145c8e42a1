package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/internal/metrics"
	"github.com/layer-3/pairgate/ports"
)

// DefaultTickInterval is the reconciliation period while the pool is non-empty
const DefaultTickInterval = 1500 * time.Millisecond

type eventKind int

const (
	eventJoin eventKind = iota
	eventLeave
	eventClose
	eventTick
)

func (k eventKind) String() string {
	switch k {
	case eventJoin:
		return "join"
	case eventLeave:
		return "leave"
	case eventClose:
		return "close"
	case eventTick:
		return "tick"
	default:
		return "unknown"
	}
}

type event struct {
	kind      eventKind
	sessionID string
}

// Coordinator owns the waiting pool. Every mutation is an event processed by the
// goroutine running Run, so pool state is never shared.
type Coordinator struct {
	registry  *Registry
	publisher ports.MatchPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	interval time.Duration
	clock    func() time.Time

	events  chan event
	handoff chan core.MatchEvent
	done    chan struct{}
	size    atomic.Int64

	// owned by the Run goroutine
	pool   *pool
	timer  *time.Timer
	failed []string
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithTickInterval overrides DefaultTickInterval
func WithTickInterval(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithCoordinatorClock overrides the clock stamping queue entries and matches
func WithCoordinatorClock(clock func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithMatchPublisher hands every match to publisher off the coordinator goroutine
func WithMatchPublisher(publisher ports.MatchPublisher) CoordinatorOption {
	return func(c *Coordinator) {
		c.publisher = publisher
	}
}

// NewCoordinator creates a coordinator. Call Run to start processing.
func NewCoordinator(registry *Registry, m *metrics.Metrics, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		registry: registry,
		metrics:  m,
		logger:   logger,
		interval: DefaultTickInterval,
		clock:    time.Now,
		events:   make(chan event, 256),
		handoff:  make(chan core.MatchEvent, 256),
		done:     make(chan struct{}),
		pool:     newPool(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Join queues the session's identity, replacing any earlier entry for it
func (c *Coordinator) Join(ctx context.Context, sessionID string) error {
	return c.submit(ctx, event{kind: eventJoin, sessionID: sessionID})
}

// Leave removes the session's entry without matching it
func (c *Coordinator) Leave(ctx context.Context, sessionID string) error {
	return c.submit(ctx, event{kind: eventLeave, sessionID: sessionID})
}

// Disconnect removes any entry held by the session and drops it from the registry
func (c *Coordinator) Disconnect(ctx context.Context, sessionID string) error {
	return c.submit(ctx, event{kind: eventClose, sessionID: sessionID})
}

// Reconcile runs a reconciliation pass now, independently of the timer
func (c *Coordinator) Reconcile(ctx context.Context) error {
	return c.submit(ctx, event{kind: eventTick})
}

// QueueSize is the pool size after the last processed event
func (c *Coordinator) QueueSize() int {
	return int(c.size.Load())
}

// Done is closed once Run has returned
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) submit(ctx context.Context, ev event) error {
	select {
	case <-c.done:
		return core.ErrCoordinatorStopped
	default:
	}

	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return core.ErrCoordinatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is cancelled
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)

	go c.publishLoop(ctx)

	c.logger.Info("coordinator started", "tick_interval", c.interval)
	for {
		var tick <-chan time.Time
		if c.timer != nil {
			tick = c.timer.C
		}

		select {
		case <-ctx.Done():
			c.stopTimer()
			c.logger.Info("coordinator stopped", "queued", c.pool.len())
			return nil

		case ev := <-c.events:
			c.handle(ev)
			c.settle()

		case <-tick:
			c.timer = nil
			c.reconcile()
			c.settle()
		}
	}
}

// settle runs after every event: failed sessions are dropped and the timer and
// gauges follow the new pool size
func (c *Coordinator) settle() {
	c.dropFailed()
	c.updateTimer()
	c.size.Store(int64(c.pool.len()))
	c.metrics.QueueSize.Set(float64(c.pool.len()))
}

func (c *Coordinator) handle(ev event) {
	c.logger.Debug("event", "kind", ev.kind, "session", ev.sessionID)
	switch ev.kind {
	case eventJoin:
		c.join(ev.sessionID)
	case eventLeave:
		c.leave(ev.sessionID)
	case eventClose:
		c.disconnect(ev.sessionID)
	case eventTick:
		c.reconcile()
	}
}

func (c *Coordinator) join(sessionID string) {
	s, ok := c.registry.Get(sessionID)
	if !ok {
		c.logger.Debug("join from unknown session", "session", sessionID)
		return
	}

	now := c.clock()
	if replaced, ok := c.pool.upsert(s.Identity, sessionID, now); ok {
		c.registry.SetStage(replaced.SessionID, core.StageCancelled, now)
		c.logger.Info("queue entry taken over by newer session",
			"identity", s.Identity.DisplayName,
			"previous_session", replaced.SessionID,
			"session", sessionID)
	}
	c.registry.SetStage(sessionID, core.StageQueued, now)
	c.logger.Debug("joined queue", "identity", s.Identity.DisplayName, "session", sessionID)

	c.pair()

	if position, total, queued := c.pool.position(sessionID); queued {
		c.send(sessionID, core.QueueStatusMessage(position, total))
	}
}

func (c *Coordinator) leave(sessionID string) {
	entry, ok := c.pool.removeSession(sessionID)
	if !ok {
		return
	}
	c.registry.SetStage(sessionID, core.StageCancelled, c.clock())
	c.logger.Debug("left queue", "identity", entry.Identity.DisplayName, "session", sessionID)
}

func (c *Coordinator) disconnect(sessionID string) {
	if entry, ok := c.pool.removeSession(sessionID); ok {
		c.logger.Debug("removed disconnected entry", "identity", entry.Identity.DisplayName, "session", sessionID)
	}
	c.registry.SetStage(sessionID, core.StageDisconnected, c.clock())
	c.registry.Unregister(sessionID)
}

// reconcile pairs what it can and refreshes every remaining entry's position
func (c *Coordinator) reconcile() {
	start := time.Now()
	defer func() { c.metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	c.pair()

	remaining := c.pool.ordered()
	for i, e := range remaining {
		c.send(e.SessionID, core.QueueStatusMessage(i+1, len(remaining)))
	}
}

// pair matches the two oldest entries until fewer than two remain. Both entries
// leave the pool before either party is notified.
func (c *Coordinator) pair() {
	for _, p := range c.pool.takePairs() {
		a, b := p[0], p[1]
		match := core.MatchEvent{
			ID:        uuid.New().String(),
			A:         a.Identity,
			B:         b.Identity,
			MatchedAt: c.clock(),
		}

		c.registry.SetStage(a.SessionID, core.StageMatched, match.MatchedAt)
		c.registry.SetStage(b.SessionID, core.StageMatched, match.MatchedAt)

		c.send(a.SessionID, core.MatchedMessage(b.Identity.DisplayName, match.MatchedAt))
		c.send(b.SessionID, core.MatchedMessage(a.Identity.DisplayName, match.MatchedAt))

		c.metrics.MatchesTotal.Inc()
		c.logger.Info("matched",
			"match", match.ID,
			"a", a.Identity.DisplayName,
			"b", b.Identity.DisplayName,
			"waited_a", match.MatchedAt.Sub(a.EnqueuedAt),
			"waited_b", match.MatchedAt.Sub(b.EnqueuedAt))

		select {
		case c.handoff <- match:
		default:
			c.logger.Warn("match hand-off buffer full, event not published", "match", match.ID)
		}
	}
}

// send never blocks; a failure marks the session for removal after the current event
func (c *Coordinator) send(sessionID string, msg core.ServerMessage) {
	conn, ok := c.registry.Conn(sessionID)
	if !ok {
		c.fail(sessionID, msg, core.ErrNotFound)
		return
	}
	if err := conn.Send(msg); err != nil {
		c.fail(sessionID, msg, err)
	}
}

func (c *Coordinator) fail(sessionID string, msg core.ServerMessage, err error) {
	c.metrics.DeliveryFailures.Inc()
	c.logger.Warn("delivery failure",
		"session", sessionID,
		"type", msg.Type,
		"error", err)
	c.failed = append(c.failed, sessionID)
}

// dropFailed treats undeliverable sessions as closed
func (c *Coordinator) dropFailed() {
	if len(c.failed) == 0 {
		return
	}
	failed := c.failed
	c.failed = nil

	for _, sessionID := range failed {
		c.pool.removeSession(sessionID)
		c.registry.SetStage(sessionID, core.StageDisconnected, c.clock())
		if conn, ok := c.registry.Conn(sessionID); ok {
			_ = conn.Close()
		}
	}
}

// updateTimer arms the tick while the pool is non-empty and stops it otherwise
func (c *Coordinator) updateTimer() {
	if c.pool.len() == 0 {
		c.stopTimer()
		return
	}
	if c.timer == nil {
		c.timer = time.NewTimer(c.interval)
	}
}

func (c *Coordinator) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coordinator) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case match := <-c.handoff:
			if c.publisher == nil {
				continue
			}
			if err := c.publisher.PublishMatch(ctx, match); err != nil {
				c.logger.Error("failed to publish match", "match", match.ID, "error", err)
			}
		}
	}
}
