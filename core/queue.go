package core

import "time"

// Identity is the display identity of a connected participant.
// DisplayName is the pool key; WalletAddress is empty for guests.
type Identity struct {
	DisplayName   string `json:"displayName"`
	WalletAddress string `json:"walletAddress,omitempty"`
}

// Stage is the lifecycle stage of a connected session
type Stage int

const (
	StageConnected Stage = iota
	StageQueued
	StageMatched
	StageCancelled
	StageDisconnected
)

func (s Stage) String() string {
	switch s {
	case StageConnected:
		return "connected"
	case StageQueued:
		return "queued"
	case StageMatched:
		return "matched"
	case StageCancelled:
		return "cancelled"
	case StageDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// QueueEntry is a waiting participant in the pool
type QueueEntry struct {
	Identity   Identity
	SessionID  string
	EnqueuedAt time.Time
	Seq        uint64 // insertion order, breaks EnqueuedAt ties
}

// Before orders entries by enqueue time, then by insertion order
func (e QueueEntry) Before(other QueueEntry) bool {
	if !e.EnqueuedAt.Equal(other.EnqueuedAt) {
		return e.EnqueuedAt.Before(other.EnqueuedAt)
	}
	return e.Seq < other.Seq
}

// MatchEvent pairs two identities. It is delivered to both parties and never stored.
type MatchEvent struct {
	ID        string    `json:"id"`
	A         Identity  `json:"a"`
	B         Identity  `json:"b"`
	MatchedAt time.Time `json:"matchedAt"`
}
