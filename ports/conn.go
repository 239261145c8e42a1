package ports

import "github.com/layer-3/pairgate/core"

// Conn is the outbound half of a client connection.
// Send must not block; a failure means the connection is gone.
type Conn interface {
	Send(msg core.ServerMessage) error
	Close() error
}
