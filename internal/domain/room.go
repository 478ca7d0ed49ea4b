package domain

import "time"

type RoomID string

// Room is the directory record of a room. Live membership is not stored here.
type Room struct {
	ID          RoomID    `json:"id" bson:"_id"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	OwnerID     UserID    `json:"ownerId" bson:"ownerId"`
	MaxUsers    int       `json:"maxUsers" bson:"maxUsers"`
	IsPublic    bool      `json:"isPublic" bson:"isPublic"`
	Topics      []string  `json:"topics" bson:"topics"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// RoomQuery filters ListRooms. Zero values match everything.
type RoomQuery struct {
	Search     string
	Topic      string
	PublicOnly bool
	Limit      int
}

// AdminAction is a privileged command issued against another participant.
type AdminAction string

const (
	ActionMute         AdminAction = "mute"
	ActionDisableVideo AdminAction = "disable-video"
	ActionKick         AdminAction = "kick"
)

func (a AdminAction) Valid() bool {
	switch a {
	case ActionMute, ActionDisableVideo, ActionKick:
		return true
	}
	return false
}
