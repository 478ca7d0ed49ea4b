package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/google/uuid"
)

const memoryHistoryCap = 500

// MemoryStore is a process-local directory and history.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomID]domain.Room
	messages map[domain.RoomID][]domain.Message
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[domain.RoomID]domain.Room),
		messages: make(map[domain.RoomID][]domain.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) GetRoom(_ context.Context, id domain.RoomID) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return &r, nil
}

func (s *MemoryStore) ListRooms(_ context.Context, q domain.RoomQuery) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		if matches(&r, q) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit := clampLimit(q.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateRoom(_ context.Context, room *domain.Room) error {
	if err := prepareRoom(room, s.now()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if room.ID == "" {
		room.ID = domain.RoomID(uuid.NewString())
	}
	if _, ok := s.rooms[room.ID]; ok {
		return fmt.Errorf("room %s exists: %w", room.ID, domain.ErrInvalidRequest)
	}
	s.rooms[room.ID] = *room
	return nil
}

func (s *MemoryStore) UpdateRoom(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.rooms[room.ID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.CreatedAt = old.CreatedAt
	if err := prepareRoom(room, s.now()); err != nil {
		return err
	}
	s.rooms[room.ID] = *room
	return nil
}

func (s *MemoryStore) DeleteRoom(_ context.Context, id domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return domain.ErrRoomNotFound
	}
	delete(s.rooms, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, id domain.RoomID, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[id]
	if limit = clampLimit(limit); len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]domain.Message(nil), msgs...), nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := append(s.messages[msg.RoomID], *msg)
	if len(msgs) > memoryHistoryCap {
		msgs = msgs[len(msgs)-memoryHistoryCap:]
	}
	s.messages[msg.RoomID] = msgs
	return nil
}
