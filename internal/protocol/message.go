// Package protocol defines the JSON envelope exchanged over the signaling
// websocket, in both directions.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
)

// Message is the envelope for every frame: {"type": ..., "payload": ...}.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client to server.
const (
	TypeJoin            = "join"
	TypeLeave           = "leave"
	TypeSignal          = "signal"
	TypeSetStatus       = "setStatus"
	TypeSendMessage     = "sendMessage"
	TypeAdminAction     = "adminAction"
	TypeDeleteRoom      = "deleteRoom"
	TypeKeepAlive       = "keepAlive"
	TypeGetParticipants = "getParticipants"
	TypeSubscribeRooms  = "subscribeRooms"
)

// Server to client.
const (
	TypeJoined               = "joined"
	TypeLeft                 = "left"
	TypeParticipantJoined    = "participantJoined"
	TypeParticipantLeft      = "participantLeft"
	TypeStatusChanged        = "statusChanged"
	TypeParticipants         = "participants"
	TypeNewMessage           = "newMessage"
	TypeForcedMute           = "forcedMute"
	TypeForcedVideoOff       = "forcedVideoOff"
	TypeKicked               = "kicked"
	TypeRoomDeleted          = "roomDeleted"
	TypeReplaced             = "replaced"
	TypeKeepAliveResponse    = "keepAliveResponse"
	TypeRoomParticipantCount = "roomParticipantCount"
	TypeError                = "error"
)

// Encode marshals payload into an envelope of the given type.
func Encode(typ string, payload any) ([]byte, error) {
	m := Message{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", typ, err)
		}
		m.Payload = raw
	}
	return json.Marshal(m)
}

// Decode unmarshals the envelope payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("decode %s: %w", m.Type, domain.ErrInvalidRequest)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Type, err)
	}
	return nil
}

// New builds an envelope, panicking only on unmarshalable payloads,
// which are programmer errors for the fixed payload types below.
func New(typ string, payload any) Message {
	m := Message{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("protocol: marshal %s: %v", typ, err))
		}
		m.Payload = raw
	}
	return m
}
