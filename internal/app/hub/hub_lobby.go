package hub

import (
	"sync"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// lobby holds connections watching room participant counts.
type lobby struct {
	mu   sync.RWMutex
	subs map[core.ConnID]core.SignalConnection
}

func newLobby() *lobby {
	return &lobby{subs: make(map[core.ConnID]core.SignalConnection)}
}

func (l *lobby) subscribe(conn core.SignalConnection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs[conn.ID()] = conn
}

func (l *lobby) unsubscribe(cid core.ConnID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, cid)
}

func (l *lobby) publish(data core.Frame) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for cid, conn := range l.subs {
		if err := conn.TrySend(data); err != nil {
			log.Debug().Str("module", "hub.lobby").Str("sid", string(cid)).Err(err).Msg("count dropped")
		}
	}
}

// SubscribeRooms makes the connection receive participant counts of every
// room, starting with the current ones.
func (h *Hub) SubscribeRooms(cid core.ConnID) error {
	sess, ok := h.reg.Get(cid)
	if !ok {
		return domain.ErrSessionClosed
	}
	h.lobby.subscribe(sess.Conn)
	for _, info := range h.Rooms() {
		h.send(sess.Conn, protocol.TypeRoomParticipantCount, protocol.RoomCountPayload{RoomID: info.ID, Count: info.MemberCount})
	}
	return nil
}

// publishCountLocked announces the room's count to its members and the lobby.
func (h *Hub) publishCountLocked(s *roomSlot) {
	payload := protocol.RoomCountPayload{RoomID: s.members.RoomID(), Count: s.members.Len()}
	data, err := protocol.Encode(protocol.TypeRoomParticipantCount, payload)
	if err != nil {
		return
	}
	s.members.Broadcast("", data)
	h.lobby.publish(data)
}
