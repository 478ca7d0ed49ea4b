package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotMember        = errors.New("not a member of the room")
	ErrRoomFull         = errors.New("room is full")
	ErrRoomNotFound     = errors.New("room not found")
	ErrMediaAccess      = errors.New("media access denied")
	ErrConnectionFailed = errors.New("connection failed")
	ErrNegotiation      = errors.New("negotiation failed")
	ErrSessionClosed    = errors.New("session closed")
)

// OpError records which operation produced err.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *OpError) Unwrap() error { return e.Err }

func NewOpError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}

// ErrorCode is the short code sent to clients in error events.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotMember):
		return "not_member"
	case errors.Is(err, ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	default:
		return "internal"
	}
}
