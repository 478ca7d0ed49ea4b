package core

import (
	"context"

	"github.com/dkeye/Huddle/internal/domain"
)

//go:generate mockgen -destination=mocks/mock_room_lookup.go -package=mocks github.com/dkeye/Huddle/internal/core RoomLookup

// RoomLookup resolves a room's directory record. It returns
// domain.ErrRoomNotFound for unknown rooms.
type RoomLookup interface {
	GetRoom(ctx context.Context, id domain.RoomID) (*domain.Room, error)
}

// Directory is the room CRUD collaborator.
type Directory interface {
	RoomLookup
	ListRooms(ctx context.Context, q domain.RoomQuery) ([]domain.Room, error)
	CreateRoom(ctx context.Context, room *domain.Room) error
	UpdateRoom(ctx context.Context, room *domain.Room) error
	DeleteRoom(ctx context.Context, id domain.RoomID) error
}

// History is the chat history collaborator. Live delivery never waits on it.
type History interface {
	ListMessages(ctx context.Context, id domain.RoomID, limit int) ([]domain.Message, error)
	AppendMessage(ctx context.Context, msg *domain.Message) error
}
