package hub

import (
	"fmt"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// AdminAction applies a privileged action of the caller to target.
// Non-admin callers get ErrUnauthorized and nothing changes.
func (h *Hub) AdminAction(cid core.ConnID, target domain.UserID, action domain.AdminAction) error {
	if !action.Valid() || target == "" {
		return fmt.Errorf("admin action %q: %w", action, domain.ErrInvalidRequest)
	}
	room, s, caller, err := h.memberOf(cid)
	if err != nil {
		return err
	}
	defer h.releaseRoom(room, s)

	if !caller.Participant.IsAdmin {
		log.Warn().Str("module", "hub").Str("sid", string(cid)).Str("room", string(room)).Str("action", string(action)).Msg("admin action refused")
		return fmt.Errorf("admin action %q: %w", action, domain.ErrUnauthorized)
	}
	if target == caller.UserID() {
		return fmt.Errorf("admin action on self: %w", domain.ErrInvalidRequest)
	}
	tm, ok := s.members.Get(target)
	if !ok {
		log.Debug().Str("module", "hub").Str("room", string(room)).Str("target", string(target)).Msg("admin target not in room")
		return nil
	}

	switch action {
	case domain.ActionKick:
		h.send(tm.Conn, protocol.TypeKicked, protocol.NoticePayload{RoomID: room})
		tm.Conn.Close()
		h.removeLocked(s, tm, protocol.LeftReasonKicked)
	case domain.ActionMute:
		tm.Participant.IsMuted = true
		h.forceLocked(s, tm, protocol.TypeForcedMute)
	case domain.ActionDisableVideo:
		tm.Participant.IsVideoOff = true
		h.forceLocked(s, tm, protocol.TypeForcedVideoOff)
	}
	h.metrics.AdminActions.WithLabelValues(string(action)).Inc()
	log.Info().Str("module", "hub").Str("room", string(room)).Str("admin", string(caller.UserID())).
		Str("target", string(target)).Str("action", string(action)).Msg("admin action")
	return nil
}

// forceLocked pushes a forced-state directive to the target and the
// resulting status to everyone else, then a full snapshot to the room so
// clients that missed a status change converge.
func (h *Hub) forceLocked(s *roomSlot, tm *core.Member, typ string) {
	st := protocol.StatusChangedPayload{
		UserID:     tm.UserID(),
		IsMuted:    tm.Participant.IsMuted,
		IsVideoOff: tm.Participant.IsVideoOff,
	}
	h.send(tm.Conn, typ, st)
	h.broadcastLocked(s, tm.UserID(), protocol.TypeStatusChanged, st)
	h.broadcastLocked(s, "", protocol.TypeParticipants, s.members.Snapshot(""))
}

// DeleteRoom ends the caller's room for everyone. Admin only.
func (h *Hub) DeleteRoom(cid core.ConnID) error {
	room, s, caller, err := h.memberOf(cid)
	if err != nil {
		return err
	}
	defer h.releaseRoom(room, s)
	if !caller.Participant.IsAdmin {
		return fmt.Errorf("delete room: %w", domain.ErrUnauthorized)
	}
	h.evictAllLocked(s)
	log.Info().Str("module", "hub").Str("room", string(room)).Str("admin", string(caller.UserID())).Msg("room deleted")
	return nil
}

// EvictRoom closes every connection of a room after the room was removed
// from the directory. It returns how many participants were dropped.
func (h *Hub) EvictRoom(id domain.RoomID) int {
	s := h.lockRoom(id, false)
	if s == nil {
		return 0
	}
	defer h.releaseRoom(id, s)
	n := s.members.Len()
	h.evictAllLocked(s)
	log.Info().Str("module", "hub").Str("room", string(id)).Int("evicted", n).Msg("room evicted")
	return n
}

func (h *Hub) evictAllLocked(s *roomSlot) {
	room := s.members.RoomID()
	h.broadcastLocked(s, "", protocol.TypeRoomDeleted, protocol.NoticePayload{RoomID: room})
	for _, mem := range s.members.Members() {
		mem.Conn.Close()
		s.members.Remove(mem.UserID())
		h.reg.DetachRoom(mem.Conn.ID())
		h.metrics.ParticipantsCurrent.Dec()
	}
	h.publishCountLocked(s)
}
