package hub

import (
	"encoding/json"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Relay forwards an opaque payload to one peer in the caller's room, tagged
// with the caller's identity. A missing target is dropped silently.
func (h *Hub) Relay(cid core.ConnID, to domain.UserID, payload json.RawMessage) {
	sess, ok := h.reg.Get(cid)
	if !ok || sess.RoomID == "" || to == "" || to == sess.User.ID {
		h.relayMiss(cid, to, "sender not in room")
		return
	}
	target, ok := h.reg.Live(sess.RoomID, to)
	if !ok {
		h.relayMiss(cid, to, "target gone")
		return
	}
	if h.send(target, protocol.TypeSignal, protocol.SignalIn{From: sess.User.ID, Payload: payload}) {
		h.metrics.SignalsRelayed.Inc()
	}
}

func (h *Hub) relayMiss(cid core.ConnID, to domain.UserID, why string) {
	h.metrics.RelayMisses.Inc()
	log.Debug().Str("module", "hub").Str("sid", string(cid)).Str("to", string(to)).Msg("relay miss: " + why)
}
