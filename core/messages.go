package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType enumerates session protocol message kinds
type MessageType string

const (
	// Client to server
	TypeJoinQueue  MessageType = "join_queue"
	TypeLeaveQueue MessageType = "leave_queue"

	// Server to client
	TypeQueueStatus MessageType = "queue_status"
	TypeMatched     MessageType = "matched"
	TypeError       MessageType = "error"

	// Both directions
	TypeHeartbeat MessageType = "heartbeat"
)

// ClientMessage is a frame sent by a connected client
type ClientMessage struct {
	Type MessageType `json:"type"`
}

// ServerMessage is a frame sent to a connected client
type ServerMessage struct {
	Type MessageType `json:"type"`

	// queue_status
	Position int `json:"position,omitempty"`
	Total    int `json:"total,omitempty"`

	// matched
	MatchedIdentity string     `json:"matchedIdentity,omitempty"`
	MatchedAt       *time.Time `json:"matchedAt,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// ParseClientMessage decodes a raw frame. Decoding failures wrap ErrMalformedMessage,
// unrecognised kinds wrap ErrUnknownMessage.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	switch msg.Type {
	case TypeJoinQueue, TypeLeaveQueue, TypeHeartbeat:
		return msg, nil
	case "":
		return ClientMessage{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return msg, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

// QueueStatusMessage reports a 1-based position among total waiting entries
func QueueStatusMessage(position, total int) ServerMessage {
	return ServerMessage{Type: TypeQueueStatus, Position: position, Total: total}
}

// MatchedMessage names the counterpart's display identity and the shared match time
func MatchedMessage(counterpart string, at time.Time) ServerMessage {
	return ServerMessage{Type: TypeMatched, MatchedIdentity: counterpart, MatchedAt: &at}
}

// ErrorMessage reports a protocol or quota error; the session stays open
func ErrorMessage(text string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: text}
}

// HeartbeatMessage echoes a client heartbeat
func HeartbeatMessage() ServerMessage {
	return ServerMessage{Type: TypeHeartbeat}
}
