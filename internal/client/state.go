package client

import (
	"errors"
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseReconnecting
	PhaseDisconnected
	PhaseKicked
	PhaseRoomDeleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseDisconnected:
		return "disconnected"
	case PhaseKicked:
		return "kicked"
	case PhaseRoomDeleted:
		return "room-deleted"
	case PhaseFailed:
		return "failed"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Terminal phases end Run. Failed is not terminal: Retry leaves it.
func (p Phase) Terminal() bool {
	return p == PhaseDisconnected || p == PhaseKicked || p == PhaseRoomDeleted
}

var (
	ErrKicked      = errors.New("removed from the room by an admin")
	ErrRoomDeleted = errors.New("room was deleted")
	ErrReplaced    = errors.New("joined from another connection")
)

// ServerError is an error event returned by the hub.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string { return e.Code + ": " + e.Message }

// ClientSessionState is what the UI renders from.
type ClientSessionState struct {
	IsConnected   bool
	IsMuted       bool
	IsVideoOff    bool
	IsDeafened    bool
	IsChatVisible bool
	IsAdmin       bool
}

// View is an immutable snapshot of a session.
type View struct {
	ClientSessionState
	Phase        Phase
	Reason       string
	RoomID       domain.RoomID
	Self         domain.UserID
	Participants map[domain.UserID]domain.ParticipantDTO
	Links        map[domain.UserID]LinkState
	Chat         []domain.Message
	Media        MediaOutcome
	RoomCount    int
	LastError    error
}

const maxChatLog = 200
