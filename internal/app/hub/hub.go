// Package hub is the server-side signaling coordinator. All membership
// mutations of one room run under that room's lock; rooms are independent.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type Config struct {
	ChatMaxLength  int
	HistoryTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ChatMaxLength:  domain.MaxMessageLen,
		HistoryTimeout: 5 * time.Second,
	}
}

type Deps struct {
	Registry   *app.Registry
	Authorizer *app.Authorizer
	History    core.History
	Policy     app.Policy
	Metrics    *metrics.Metrics
}

type roomSlot struct {
	mu      sync.Mutex
	members *core.Membership
	// dead is set once the slot has been dropped from the hub map.
	dead bool
}

type Hub struct {
	reg     *app.Registry
	authz   *app.Authorizer
	history core.History
	policy  app.Policy
	metrics *metrics.Metrics
	cfg     Config

	mu    sync.Mutex
	rooms map[domain.RoomID]*roomSlot

	lobby *lobby
	bg    conc.WaitGroup
}

func New(d Deps, cfg Config) *Hub {
	if d.Registry == nil {
		d.Registry = app.NewRegistry()
	}
	if d.Policy == nil {
		d.Policy = app.SimplePolicy{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if cfg.ChatMaxLength <= 0 {
		cfg.ChatMaxLength = domain.MaxMessageLen
	}
	if cfg.HistoryTimeout <= 0 {
		cfg.HistoryTimeout = DefaultConfig().HistoryTimeout
	}
	return &Hub{
		reg:     d.Registry,
		authz:   d.Authorizer,
		history: d.History,
		policy:  d.Policy,
		metrics: d.Metrics,
		cfg:     cfg,
		rooms:   make(map[domain.RoomID]*roomSlot),
		lobby:   newLobby(),
	}
}

func (h *Hub) Registry() *app.Registry { return h.reg }

// Connect registers a new transport connection for user.
func (h *Hub) Connect(conn core.SignalConnection, user domain.User, cancel context.CancelFunc) {
	h.reg.BindConn(conn, user, cancel)
	h.metrics.ConnectionsCurrent.Inc()
}

// Disconnect is the implicit leave of a dropped connection. Unknown or
// already replaced handles are ignored.
func (h *Hub) Disconnect(cid core.ConnID) {
	h.lobby.unsubscribe(cid)
	sess, ok := h.reg.Unbind(cid)
	if !ok {
		return
	}
	h.metrics.ConnectionsCurrent.Dec()
	if sess.RoomID == "" {
		return
	}
	s := h.lockRoom(sess.RoomID, false)
	if s == nil {
		return
	}
	defer h.releaseRoom(sess.RoomID, s)
	if mem, ok := s.members.ByConn(cid); ok {
		h.removeLocked(s, mem, protocol.LeftReasonLeave)
		log.Info().Str("module", "hub").Str("sid", string(cid)).Str("room", string(sess.RoomID)).Msg("connection dropped, left room")
	}
}

// Wait blocks until background history writes finish.
func (h *Hub) Wait() {
	h.bg.Wait()
}

// lockRoom returns the locked slot for id, creating it when asked.
func (h *Hub) lockRoom(id domain.RoomID, create bool) *roomSlot {
	for {
		h.mu.Lock()
		s, ok := h.rooms[id]
		if !ok {
			if !create {
				h.mu.Unlock()
				return nil
			}
			s = &roomSlot{members: core.NewMembership(id)}
			h.rooms[id] = s
			h.metrics.RoomsCurrent.Inc()
			log.Debug().Str("module", "hub").Str("room", string(id)).Msg("room created")
		}
		h.mu.Unlock()

		s.mu.Lock()
		if !s.dead {
			return s
		}
		s.mu.Unlock()
	}
}

// releaseRoom drops the slot if it is empty, then unlocks it.
func (h *Hub) releaseRoom(id domain.RoomID, s *roomSlot) {
	if !s.dead && s.members.Len() == 0 {
		s.dead = true
		h.mu.Lock()
		if h.rooms[id] == s {
			delete(h.rooms, id)
		}
		h.mu.Unlock()
		h.metrics.RoomsCurrent.Dec()
		log.Debug().Str("module", "hub").Str("room", string(id)).Msg("room removed")
	}
	s.mu.Unlock()
}

// memberOf resolves cid to its locked room slot and member record.
// On success the caller must releaseRoom.
func (h *Hub) memberOf(cid core.ConnID) (domain.RoomID, *roomSlot, *core.Member, error) {
	sess, ok := h.reg.Get(cid)
	if !ok {
		return "", nil, nil, domain.ErrSessionClosed
	}
	if sess.RoomID == "" {
		return "", nil, nil, domain.ErrNotMember
	}
	s := h.lockRoom(sess.RoomID, false)
	if s == nil {
		return "", nil, nil, domain.ErrNotMember
	}
	mem, ok := s.members.ByConn(cid)
	if !ok {
		h.releaseRoom(sess.RoomID, s)
		return "", nil, nil, domain.ErrNotMember
	}
	return sess.RoomID, s, mem, nil
}

func (h *Hub) send(conn core.SignalConnection, typ string, payload any) bool {
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		log.Error().Str("module", "hub").Err(err).Msg("encode failed")
		return false
	}
	if err := conn.TrySend(data); err != nil {
		h.metrics.SlowConsumers.Inc()
		log.Debug().Str("module", "hub").Str("sid", string(conn.ID())).Str("type", typ).Err(err).Msg("send dropped")
		return false
	}
	return true
}

// broadcastLocked fans an event out to the room except one identity and
// applies the back-pressure policy to members that could not keep up.
func (h *Hub) broadcastLocked(s *roomSlot, except domain.UserID, typ string, payload any) {
	data, err := protocol.Encode(typ, payload)
	if err != nil {
		log.Error().Str("module", "hub").Err(err).Msg("encode failed")
		return
	}
	res := s.members.Broadcast(except, data)
	for _, slow := range res.Dropped {
		h.metrics.SlowConsumers.Inc()
		switch h.policy.OnBackPressure(s.members.RoomID(), slow) {
		case app.KickMember:
			log.Warn().Str("module", "hub").Str("room", string(s.members.RoomID())).Str("user", string(slow.UserID())).Msg("slow consumer, closing connection")
			slow.Conn.Close()
		case app.DropFrame, app.NoAction:
		}
	}
}

// removeLocked drops mem from the room and tells the others.
func (h *Hub) removeLocked(s *roomSlot, mem *core.Member, reason string) {
	uid := mem.UserID()
	if _, ok := s.members.Remove(uid); !ok {
		return
	}
	h.reg.DetachRoom(mem.Conn.ID())
	h.metrics.ParticipantsCurrent.Dec()
	h.broadcastLocked(s, "", protocol.TypeParticipantLeft, protocol.ParticipantLeftPayload{UserID: uid, Reason: reason})
	h.publishCountLocked(s)
}
