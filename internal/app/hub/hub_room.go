package hub

import (
	"context"
	"fmt"
	"strings"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

type JoinRequest struct {
	ConnID      core.ConnID
	RoomID      domain.RoomID
	DisplayName string
	AvatarURL   string
	IsMuted     bool
	IsVideoOff  bool
}

type JoinResult struct {
	Self         domain.ParticipantDTO
	IsAdmin      bool
	Participants []domain.ParticipantDTO
}

// Join admits the connection into a room. A previous live connection of the
// same identity in that room is evicted before the new record is inserted.
// The joiner receives "joined" with the other participants; the rest of the
// room receives "participantJoined".
func (h *Hub) Join(ctx context.Context, req JoinRequest) (*JoinResult, error) {
	if req.RoomID == "" {
		return nil, fmt.Errorf("join: missing room: %w", domain.ErrInvalidRequest)
	}
	sess, ok := h.reg.Get(req.ConnID)
	if !ok {
		return nil, fmt.Errorf("join: %w", domain.ErrSessionClosed)
	}
	if err := sess.User.ID.Validate(); err != nil {
		return nil, fmt.Errorf("join: %w: %w", domain.ErrInvalidRequest, err)
	}
	if sess.RoomID != "" {
		h.Leave(req.ConnID)
	}

	user := sess.User
	name := req.DisplayName
	if strings.TrimSpace(name) == "" {
		name = user.Username
	}
	user.SetProfile(name, req.AvatarURL)
	h.reg.SetProfile(req.ConnID, user)

	grant := h.authz.Check(ctx, req.RoomID, user.ID)

	s := h.lockRoom(req.RoomID, true)
	defer h.releaseRoom(req.RoomID, s)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("join: %w: %w", domain.ErrSessionClosed, err)
	}

	old, rejoin := s.members.Get(user.ID)
	if grant.Room != nil && grant.Room.MaxUsers > 0 {
		n := s.members.Len()
		if rejoin {
			n--
		}
		if n >= grant.Room.MaxUsers {
			return nil, fmt.Errorf("join %s: %w", req.RoomID, domain.ErrRoomFull)
		}
	}
	if rejoin {
		h.evictLocked(s, old)
	}

	if !h.reg.AttachRoom(req.ConnID, req.RoomID) {
		return nil, fmt.Errorf("join: %w", domain.ErrSessionClosed)
	}
	p := domain.NewParticipant(user, grant.IsAdmin)
	p.IsMuted = req.IsMuted
	p.IsVideoOff = req.IsVideoOff
	s.members.Insert(&core.Member{Participant: p, Conn: sess.Conn})
	h.metrics.ParticipantsCurrent.Inc()

	res := &JoinResult{
		Self:         p.DTO(),
		IsAdmin:      p.IsAdmin,
		Participants: s.members.Snapshot(user.ID),
	}
	h.send(sess.Conn, protocol.TypeJoined, protocol.JoinedPayload{
		RoomID:       req.RoomID,
		Self:         res.Self,
		IsAdmin:      res.IsAdmin,
		Participants: res.Participants,
	})
	h.broadcastLocked(s, user.ID, protocol.TypeParticipantJoined, protocol.ParticipantJoinedPayload{Participant: res.Self})
	h.publishCountLocked(s)

	log.Info().Str("module", "hub").Str("sid", string(req.ConnID)).Str("room", string(req.RoomID)).
		Str("user", string(user.ID)).Bool("admin", p.IsAdmin).Bool("rejoin", rejoin).Msg("joined room")
	return res, nil
}

// evictLocked tears down a stale connection of an identity that is rejoining.
func (h *Hub) evictLocked(s *roomSlot, old *core.Member) {
	h.send(old.Conn, protocol.TypeReplaced, protocol.NoticePayload{RoomID: s.members.RoomID(), Reason: protocol.LeftReasonReplaced})
	old.Conn.Close()
	h.metrics.Evictions.Inc()
	log.Info().Str("module", "hub").Str("sid", string(old.Conn.ID())).Str("room", string(s.members.RoomID())).
		Str("user", string(old.UserID())).Msg("evicted previous connection")

	uid := old.UserID()
	s.members.Remove(uid)
	h.reg.DetachRoom(old.Conn.ID())
	h.metrics.ParticipantsCurrent.Dec()
	h.broadcastLocked(s, uid, protocol.TypeParticipantLeft, protocol.ParticipantLeftPayload{UserID: uid, Reason: protocol.LeftReasonReplaced})
}

// Leave removes the connection's participant record, if any.
func (h *Hub) Leave(cid core.ConnID) {
	room, s, mem, err := h.memberOf(cid)
	if err != nil {
		log.Debug().Str("module", "hub").Str("sid", string(cid)).Err(err).Msg("leave ignored")
		return
	}
	defer h.releaseRoom(room, s)
	h.removeLocked(s, mem, protocol.LeftReasonLeave)
	h.send(mem.Conn, protocol.TypeLeft, protocol.NoticePayload{RoomID: room})
	log.Info().Str("module", "hub").Str("sid", string(cid)).Str("room", string(room)).Msg("left room")
}

// SetStatus updates the caller's media flags and tells the rest of the room.
// Calls from non-members are ignored.
func (h *Hub) SetStatus(cid core.ConnID, isMuted, isVideoOff bool) {
	room, s, mem, err := h.memberOf(cid)
	if err != nil {
		log.Debug().Str("module", "hub").Str("sid", string(cid)).Err(err).Msg("status ignored")
		return
	}
	defer h.releaseRoom(room, s)
	mem.Participant.IsMuted = isMuted
	mem.Participant.IsVideoOff = isVideoOff
	h.broadcastLocked(s, mem.UserID(), protocol.TypeStatusChanged, protocol.StatusChangedPayload{
		UserID:     mem.UserID(),
		IsMuted:    isMuted,
		IsVideoOff: isVideoOff,
	})
}

// Participants pushes a full snapshot of the room to the caller.
func (h *Hub) Participants(cid core.ConnID) error {
	room, s, mem, err := h.memberOf(cid)
	if err != nil {
		return err
	}
	defer h.releaseRoom(room, s)
	h.send(mem.Conn, protocol.TypeParticipants, s.members.Snapshot(""))
	return nil
}

// Rooms lists live rooms with their participant counts.
func (h *Hub) Rooms() []core.RoomInfo {
	h.mu.Lock()
	ids := make([]domain.RoomID, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	out := make([]core.RoomInfo, 0, len(ids))
	for _, id := range ids {
		if n := h.Count(id); n > 0 {
			out = append(out, core.RoomInfo{ID: id, MemberCount: n})
		}
	}
	return out
}

func (h *Hub) Count(id domain.RoomID) int {
	s := h.lockRoom(id, false)
	if s == nil {
		return 0
	}
	defer h.releaseRoom(id, s)
	return s.members.Len()
}

// RoomParticipants returns the live participants of a room.
func (h *Hub) RoomParticipants(id domain.RoomID) []domain.ParticipantDTO {
	s := h.lockRoom(id, false)
	if s == nil {
		return []domain.ParticipantDTO{}
	}
	defer h.releaseRoom(id, s)
	return s.members.Snapshot("")
}
