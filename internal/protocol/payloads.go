package protocol

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
)

type JoinPayload struct {
	RoomID      domain.RoomID `json:"roomId"`
	DisplayName string        `json:"displayName"`
	AvatarURL   string        `json:"avatarRef,omitempty"`
	IsMuted     bool          `json:"isMuted"`
	IsVideoOff  bool          `json:"isVideoOff"`
}

type JoinedPayload struct {
	RoomID       domain.RoomID           `json:"roomId"`
	Self         domain.ParticipantDTO   `json:"self"`
	IsAdmin      bool                    `json:"isAdmin"`
	Participants []domain.ParticipantDTO `json:"participants"`
}

// SignalOut is what a client sends: an opaque payload for one peer.
type SignalOut struct {
	To      domain.UserID   `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

// SignalIn is what the hub relays: the same payload tagged with the sender.
type SignalIn struct {
	From    domain.UserID   `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type StatusPayload struct {
	IsMuted    bool `json:"isMuted"`
	IsVideoOff bool `json:"isVideoOff"`
}

type StatusChangedPayload struct {
	UserID     domain.UserID `json:"userId"`
	IsMuted    bool          `json:"isMuted"`
	IsVideoOff bool          `json:"isVideoOff"`
}

type SendMessagePayload struct {
	Content string `json:"content"`
}

type AdminActionPayload struct {
	Target domain.UserID      `json:"targetUserId"`
	Action domain.AdminAction `json:"action"`
}

type ParticipantJoinedPayload struct {
	Participant domain.ParticipantDTO `json:"participant"`
}

// Leave reasons carried by participantLeft.
const (
	LeftReasonLeave    = "left"
	LeftReasonKicked   = "kicked"
	LeftReasonReplaced = "replaced"
)

type ParticipantLeftPayload struct {
	UserID domain.UserID `json:"userId"`
	Reason string        `json:"reason,omitempty"`
}

type RoomCountPayload struct {
	RoomID domain.RoomID `json:"roomId"`
	Count  int           `json:"count"`
}

type KeepAlivePayload struct {
	Timestamp int64 `json:"timestamp"`
}

type NoticePayload struct {
	RoomID domain.RoomID `json:"roomId"`
	Reason string        `json:"reason,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewKeepAlive(now time.Time) KeepAlivePayload {
	return KeepAlivePayload{Timestamp: now.UnixMilli()}
}

func NewError(err error) ErrorPayload {
	return ErrorPayload{Code: domain.ErrorCode(err), Message: err.Error()}
}
