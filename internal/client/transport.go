package client

import (
	"context"

	"github.com/dkeye/Huddle/internal/protocol"
)

// Conn is one established signaling connection.
// Incoming is closed when the connection drops.
type Conn interface {
	Send(typ string, payload any) error
	Incoming() <-chan protocol.Message
	Close() error
}

// Transport opens signaling connections.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}
