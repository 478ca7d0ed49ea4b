package core

import "errors"

// Frame is one encoded protocol message.
type Frame []byte

// ConnID is the ephemeral handle of one live transport connection.
type ConnID string

var ErrBackpressure = errors.New("send buffer full")

// SignalConnection abstracts a client messaging transport.
// Owned by the adapter; Close must not call back into the hub.
type SignalConnection interface {
	ID() ConnID
	// TrySend enqueues without blocking and returns ErrBackpressure when full.
	TrySend(Frame) error
	Close()
}
