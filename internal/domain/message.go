package domain

import "time"

const MaxMessageLen = 2000

// Message is one chat line in a room.
type Message struct {
	ID         string    `json:"id" bson:"_id"`
	RoomID     RoomID    `json:"roomId" bson:"roomId"`
	SenderID   UserID    `json:"senderId" bson:"senderId"`
	SenderName string    `json:"senderName" bson:"senderName"`
	Content    string    `json:"content" bson:"content"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}
