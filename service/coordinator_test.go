package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type CoordinatorSuite struct {
	suite.Suite
	clock    *stepClock
	registry *Registry
	coord    *Coordinator
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.clock = newStepClock()
	s.registry = NewRegistry(nil)
	s.coord = NewCoordinator(s.registry, metrics.NewNop(), testLogger,
		WithCoordinatorClock(s.clock.Now),
		WithTickInterval(time.Hour),
	)
}

func (s *CoordinatorSuite) TearDownTest() {
	s.coord.stopTimer()
}

func (s *CoordinatorSuite) connect(name string) (string, *fakeConn) {
	conn := &fakeConn{}
	session := s.registry.Register(core.Identity{DisplayName: name, WalletAddress: "0x" + name}, conn, s.clock.Now())
	return session.ID, conn
}

func (s *CoordinatorSuite) process(kind eventKind, sessionID string) {
	s.coord.handle(event{kind: kind, sessionID: sessionID})
	s.coord.settle()
}

func (s *CoordinatorSuite) stage(sessionID string) core.Stage {
	session, ok := s.registry.Get(sessionID)
	s.Require().True(ok)
	return session.Stage
}

func (s *CoordinatorSuite) TestPairsTwoJoinsAndLeavesNoResidualStatus() {
	a, aConn := s.connect("A")
	b, bConn := s.connect("B")

	s.process(eventJoin, a)
	s.Equal([]core.ServerMessage{core.QueueStatusMessage(1, 1)}, aConn.messages())

	s.process(eventJoin, b)
	s.process(eventTick, "")

	aMsgs, bMsgs := aConn.messages(), bConn.messages()
	s.Require().Len(aMsgs, 2)
	s.Require().Len(bMsgs, 1)

	s.Equal(core.TypeMatched, aMsgs[1].Type)
	s.Equal("B", aMsgs[1].MatchedIdentity)
	s.Equal(core.TypeMatched, bMsgs[0].Type)
	s.Equal("A", bMsgs[0].MatchedIdentity)
	s.Equal(*aMsgs[1].MatchedAt, *bMsgs[0].MatchedAt)

	s.Equal(0, s.coord.QueueSize())
	s.Equal(core.StageMatched, s.stage(a))
	s.Equal(core.StageMatched, s.stage(b))

	match := <-s.coord.handoff
	s.Equal("A", match.A.DisplayName)
	s.Equal("B", match.B.DisplayName)
	s.NotEmpty(match.ID)
}

func (s *CoordinatorSuite) TestLoneJoinReceivesPositionOnTick() {
	c, cConn := s.connect("C")

	s.process(eventJoin, c)
	s.process(eventTick, "")

	s.Equal([]core.ServerMessage{
		core.QueueStatusMessage(1, 1),
		core.QueueStatusMessage(1, 1),
	}, cConn.messages())
	s.Equal(1, s.coord.QueueSize())
	s.Equal(core.StageQueued, s.stage(c))
	s.Empty(s.coord.handoff)
}

func (s *CoordinatorSuite) TestLeaveStopsStatusUpdates() {
	a, aConn := s.connect("A")

	s.process(eventJoin, a)
	s.process(eventLeave, a)
	s.process(eventTick, "")

	s.Equal([]core.ServerMessage{core.QueueStatusMessage(1, 1)}, aConn.messages())
	s.Equal(0, s.coord.QueueSize())
	s.Equal(core.StageCancelled, s.stage(a))
	s.Nil(s.coord.timer)

	// a cancelled session may queue again
	s.process(eventJoin, a)
	s.Equal(1, s.coord.QueueSize())
	s.Equal(core.StageQueued, s.stage(a))
}

func (s *CoordinatorSuite) TestTimerFollowsPoolSize() {
	a, _ := s.connect("A")
	b, _ := s.connect("B")

	s.Nil(s.coord.timer)
	s.process(eventJoin, a)
	s.NotNil(s.coord.timer)
	s.process(eventJoin, b)
	s.Nil(s.coord.timer)
}

func (s *CoordinatorSuite) TestRejoinKeepsOneEntryPerIdentity() {
	first, _ := s.connect("A")
	s.process(eventJoin, first)
	enqueued := s.coord.pool.entries["A"].EnqueuedAt

	s.process(eventJoin, first)
	s.Equal(1, s.coord.QueueSize())
	s.True(s.coord.pool.entries["A"].EnqueuedAt.After(enqueued))

	second, secondConn := s.connect("A")
	s.process(eventJoin, second)
	s.Equal(1, s.coord.QueueSize())
	s.Equal(second, s.coord.pool.entries["A"].SessionID)
	s.Equal(core.StageCancelled, s.stage(first))

	// the stale socket closing must not evict the newer entry
	s.process(eventClose, first)
	s.Equal(1, s.coord.QueueSize())
	s.Len(secondConn.messages(), 1)
}

func (s *CoordinatorSuite) TestPairsOldestFirst() {
	ids := map[string]string{}
	conns := map[string]*fakeConn{}
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		ids[name], conns[name] = s.connect(name)
		s.process(eventJoin, ids[name])
	}

	counterpart := func(name string) string {
		for _, m := range conns[name].messages() {
			if m.Type == core.TypeMatched {
				return m.MatchedIdentity
			}
		}
		return ""
	}
	s.Equal("B", counterpart("A"))
	s.Equal("A", counterpart("B"))
	s.Equal("D", counterpart("C"))
	s.Equal("C", counterpart("D"))
	s.Equal("", counterpart("E"))
	s.Equal(1, s.coord.QueueSize())
}

func (s *CoordinatorSuite) TestDeliveryFailureDoesNotBlockCounterpart() {
	a, aConn := s.connect("A")
	b, bConn := s.connect("B")

	s.process(eventJoin, a)
	aConn.mu.Lock()
	aConn.fail = true
	aConn.mu.Unlock()

	s.process(eventJoin, b)

	s.Require().Len(bConn.messages(), 1)
	s.Equal("A", bConn.messages()[0].MatchedIdentity)
	s.Equal(0, s.coord.QueueSize())
	s.True(aConn.isClosed())
	s.Equal(core.StageDisconnected, s.stage(a))
	s.Equal(core.StageMatched, s.stage(b))
}

func (s *CoordinatorSuite) TestFailedStatusDeliveryRemovesEntry() {
	a, aConn := s.connect("A")
	aConn.fail = true

	s.process(eventJoin, a)

	s.Equal(0, s.coord.QueueSize())
	s.True(aConn.isClosed())
}

func (s *CoordinatorSuite) TestDisconnectIsIdempotent() {
	a, _ := s.connect("A")
	s.process(eventJoin, a)

	s.process(eventClose, a)
	s.process(eventClose, a)

	s.Equal(0, s.coord.QueueSize())
	s.Equal(0, s.registry.Len())
}

func (s *CoordinatorSuite) TestJoinFromUnknownSessionIsIgnored() {
	s.process(eventJoin, "nope")
	s.Equal(0, s.coord.QueueSize())
}

func (s *CoordinatorSuite) TestMatchesNeverReuseQueuedIdentities() {
	rng := rand.New(rand.NewSource(42))
	names := []string{"A", "B", "C", "D", "E", "F"}
	var sessions []string

	for i := 0; i < 500; i++ {
		switch op := rng.Intn(10); {
		case op < 2 || len(sessions) == 0:
			id, _ := s.connect(names[rng.Intn(len(names))])
			sessions = append(sessions, id)
		case op < 6:
			s.process(eventJoin, sessions[rng.Intn(len(sessions))])
		case op < 8:
			s.process(eventLeave, sessions[rng.Intn(len(sessions))])
		case op < 9:
			s.process(eventClose, sessions[rng.Intn(len(sessions))])
		default:
			s.process(eventTick, "")
		}

		s.LessOrEqual(s.coord.QueueSize(), 1, "pairing leaves at most one waiting entry")
		seen := map[string]bool{}
		for _, e := range s.coord.pool.ordered() {
			s.False(seen[e.Identity.DisplayName], "duplicate identity %s", e.Identity.DisplayName)
			seen[e.Identity.DisplayName] = true
		}

	drain:
		for {
			select {
			case m := <-s.coord.handoff:
				s.NotEqual(m.A.DisplayName, m.B.DisplayName)
				s.False(seen[m.A.DisplayName])
				s.False(seen[m.B.DisplayName])
			default:
				break drain
			}
		}
	}
}

func TestCoordinatorRunTicksAndPublishes(t *testing.T) {
	registry := NewRegistry(nil)
	publisher := &recordingPublisher{}
	coord := NewCoordinator(registry, metrics.NewNop(), testLogger,
		WithTickInterval(10*time.Millisecond),
		WithMatchPublisher(publisher),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = coord.Run(ctx) }()

	cConn := &fakeConn{}
	c := registry.Register(core.Identity{DisplayName: "C"}, cConn, time.Now())
	require.NoError(t, coord.Join(ctx, c.ID))

	assert.Eventually(t, func() bool { return len(cConn.messages()) >= 3 }, time.Second, 5*time.Millisecond)
	for _, m := range cConn.messages() {
		assert.Equal(t, core.QueueStatusMessage(1, 1), m)
	}

	dConn := &fakeConn{}
	d := registry.Register(core.Identity{DisplayName: "D"}, dConn, time.Now())
	require.NoError(t, coord.Join(ctx, d.ID))

	assert.Eventually(t, func() bool { return len(publisher.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return coord.QueueSize() == 0 }, time.Second, 5*time.Millisecond)

	match := publisher.published()[0]
	assert.Equal(t, "C", match.A.DisplayName)
	assert.Equal(t, "D", match.B.DisplayName)

	cancel()
	<-coord.Done()
	assert.ErrorIs(t, coord.Join(context.Background(), c.ID), core.ErrCoordinatorStopped)
}
