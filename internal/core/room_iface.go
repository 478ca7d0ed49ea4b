package core

import "github.com/dkeye/Huddle/internal/domain"

// PublishResult reports delivery stats/backpressure to the hub.
type PublishResult struct {
	SendTo  int
	Dropped []*Member
}

// Member binds a participant record to its live connection.
// This is what a membership stores and fans out to.
type Member struct {
	Participant *domain.Participant
	Conn        SignalConnection
}

func (m *Member) UserID() domain.UserID { return m.Participant.User.ID }

// RoomInfo is a read-only summary for lobby and REST views.
type RoomInfo struct {
	ID          domain.RoomID `json:"roomId"`
	MemberCount int           `json:"count"`
}
