package core

import (
	"sort"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// Membership is the in-memory participant set of one room, keyed by identity.
// It has no locking of its own; callers serialize access per room.
// It never closes adapter-owned connections.
type Membership struct {
	id     domain.RoomID
	byUser map[domain.UserID]*Member
	byConn map[ConnID]domain.UserID
}

func NewMembership(id domain.RoomID) *Membership {
	return &Membership{
		id:     id,
		byUser: make(map[domain.UserID]*Member),
		byConn: make(map[ConnID]domain.UserID),
	}
}

func (m *Membership) RoomID() domain.RoomID { return m.id }

func (m *Membership) Len() int { return len(m.byUser) }

func (m *Membership) Get(uid domain.UserID) (*Member, bool) {
	mem, ok := m.byUser[uid]
	return mem, ok
}

// ByConn finds the member whose live connection is cid.
func (m *Membership) ByConn(cid ConnID) (*Member, bool) {
	uid, ok := m.byConn[cid]
	if !ok {
		return nil, false
	}
	return m.Get(uid)
}

// Insert adds mem. It returns false if the identity is already present;
// the caller must remove the old record first.
func (m *Membership) Insert(mem *Member) bool {
	uid := mem.UserID()
	if _, ok := m.byUser[uid]; ok {
		return false
	}
	m.byUser[uid] = mem
	m.byConn[mem.Conn.ID()] = uid
	log.Debug().Str("module", "core.membership").Str("room", string(m.id)).Str("user", string(uid)).Msg("member added")
	return true
}

func (m *Membership) Remove(uid domain.UserID) (*Member, bool) {
	mem, ok := m.byUser[uid]
	if !ok {
		return nil, false
	}
	delete(m.byUser, uid)
	delete(m.byConn, mem.Conn.ID())
	log.Debug().Str("module", "core.membership").Str("room", string(m.id)).Str("user", string(uid)).Msg("member removed")
	return mem, true
}

// Members returns the current members ordered by identity.
func (m *Membership) Members() []*Member {
	out := make([]*Member, 0, len(m.byUser))
	for _, mem := range m.byUser {
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID() < out[j].UserID() })
	return out
}

// Snapshot returns participant views of everyone except the given identity.
func (m *Membership) Snapshot(except domain.UserID) []domain.ParticipantDTO {
	out := make([]domain.ParticipantDTO, 0, len(m.byUser))
	for _, mem := range m.Members() {
		if mem.UserID() == except {
			continue
		}
		out = append(out, mem.Participant.DTO())
	}
	return out
}

// Broadcast enqueues data to every member except the given identity.
// An empty except reaches everyone.
func (m *Membership) Broadcast(except domain.UserID, data Frame) PublishResult {
	res := PublishResult{}
	for uid, mem := range m.byUser {
		if uid == except {
			continue
		}
		if err := mem.Conn.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, mem)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.membership").Str("room", string(m.id)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
