package service

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/pairgate/core"
	"github.com/layer-3/pairgate/ports"
)

// Session is the per-connection state attached to an accepted WebSocket
type Session struct {
	ID          string
	Identity    core.Identity
	Conn        ports.Conn
	ConnectedAt time.Time
	JoinedAt    time.Time
	Stage       core.Stage
}

// Registry is the explicit session table keyed by session id
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	onChange func(n int)
}

// NewRegistry creates an empty session registry. onChange, when set, receives the
// session count after every registration change.
func NewRegistry(onChange func(n int)) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		onChange: onChange,
	}
}

// Register attaches a new connection for identity under a fresh session id
func (r *Registry) Register(identity core.Identity, conn ports.Conn, now time.Time) *Session {
	s := &Session{
		ID:          uuid.New().String(),
		Identity:    identity,
		Conn:        conn,
		ConnectedAt: now,
		Stage:       core.StageConnected,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	r.changed(n)
	return s
}

// Unregister removes the session
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	_, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if ok {
		r.changed(n)
	}
}

// Get returns a copy of the session
func (r *Registry) Get(sessionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Conn returns the connection for a session
func (r *Registry) Conn(sessionID string) (ports.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return s.Conn, true
}

// SetStage records a lifecycle transition. joinedAt is stored when moving to queued.
func (r *Registry) SetStage(sessionID string, stage core.Stage, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	s.Stage = stage
	if stage == core.StageQueued {
		s.JoinedAt = at
	}
}

// Len returns the number of registered sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) changed(n int) {
	if r.onChange != nil {
		r.onChange(n)
	}
}

func normalize(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}
