package service

import (
	"sort"
	"time"

	"github.com/layer-3/pairgate/core"
)

// pool is the FIFO waiting set. It is owned by the coordinator goroutine and is not
// safe for concurrent use.
type pool struct {
	entries map[string]core.QueueEntry // display name -> entry
	seq     uint64
}

func newPool() *pool {
	return &pool{entries: make(map[string]core.QueueEntry)}
}

func (p *pool) len() int {
	return len(p.entries)
}

// upsert queues identity for sessionID, replacing any entry held by the same identity.
// The replaced entry is returned when it belonged to a different session.
func (p *pool) upsert(identity core.Identity, sessionID string, now time.Time) (core.QueueEntry, bool) {
	previous, existed := p.entries[identity.DisplayName]

	p.seq++
	p.entries[identity.DisplayName] = core.QueueEntry{
		Identity:   identity,
		SessionID:  sessionID,
		EnqueuedAt: now,
		Seq:        p.seq,
	}

	if existed && previous.SessionID != sessionID {
		return previous, true
	}
	return core.QueueEntry{}, false
}

// removeSession drops whatever entry sessionID holds
func (p *pool) removeSession(sessionID string) (core.QueueEntry, bool) {
	for name, e := range p.entries {
		if e.SessionID == sessionID {
			delete(p.entries, name)
			return e, true
		}
	}
	return core.QueueEntry{}, false
}

// ordered returns entries oldest first
func (p *pool) ordered() []core.QueueEntry {
	out := make([]core.QueueEntry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// position returns the 1-based rank of sessionID and the pool size
func (p *pool) position(sessionID string) (int, int, bool) {
	for i, e := range p.ordered() {
		if e.SessionID == sessionID {
			return i + 1, len(p.entries), true
		}
	}
	return 0, len(p.entries), false
}

// takePairs removes entries two at a time, oldest first, until fewer than two remain
func (p *pool) takePairs() [][2]core.QueueEntry {
	if len(p.entries) < 2 {
		return nil
	}

	ordered := p.ordered()
	pairs := make([][2]core.QueueEntry, 0, len(ordered)/2)
	for i := 0; i+1 < len(ordered); i += 2 {
		a, b := ordered[i], ordered[i+1]
		delete(p.entries, a.Identity.DisplayName)
		delete(p.entries, b.Identity.DisplayName)
		pairs = append(pairs, [2]core.QueueEntry{a, b})
	}
	return pairs
}
