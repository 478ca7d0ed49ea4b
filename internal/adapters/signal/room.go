package signal

import (
	"context"
	"errors"

	"github.com/dkeye/Huddle/internal/app/hub"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

// handleJoin admits the connection into a room. Malformed joins close the
// connection after the error is delivered.
func (ctl *SignalWSController) handleJoin(ctx context.Context, conn *WsSignalConn, msg *protocol.Message) {
	var p protocol.JoinPayload
	if err := msg.Decode(&p); err != nil || p.RoomID == "" {
		log.Warn().Str("module", "signal").Str("sid", string(conn.id)).Msg("bad join payload")
		ctl.sendError(conn, domain.ErrInvalidRequest)
		conn.Close()
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(conn.id)).Str("room", string(p.RoomID)).Msg("join")
	_, err := ctl.Hub.Join(ctx, hub.JoinRequest{
		ConnID:      conn.id,
		RoomID:      p.RoomID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		IsMuted:     p.IsMuted,
		IsVideoOff:  p.IsVideoOff,
	})
	if err != nil {
		log.Info().Err(err).Str("module", "signal").Str("sid", string(conn.id)).Str("room", string(p.RoomID)).Msg("join refused")
		ctl.sendError(conn, err)
		if errors.Is(err, domain.ErrInvalidRequest) {
			conn.Close()
		}
	}
}

// handleLeave exits the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(conn *WsSignalConn) {
	log.Info().Str("module", "signal").Str("sid", string(conn.id)).Msg("leave")
	ctl.Hub.Leave(conn.id)
}

func (ctl *SignalWSController) handleGetParticipants(conn *WsSignalConn) {
	if err := ctl.Hub.Participants(conn.id); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleSubscribeRooms(conn *WsSignalConn) {
	if err := ctl.Hub.SubscribeRooms(conn.id); err != nil {
		ctl.sendError(conn, err)
	}
}
