package signal

import (
	"fmt"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleSetStatus(conn *WsSignalConn, msg *protocol.Message) {
	var p protocol.StatusPayload
	if err := msg.Decode(&p); err != nil {
		ctl.sendError(conn, domain.ErrInvalidRequest)
		return
	}
	ctl.Hub.SetStatus(conn.id, p.IsMuted, p.IsVideoOff)
}

func (ctl *SignalWSController) handleSendMessage(conn *WsSignalConn, msg *protocol.Message) {
	var p protocol.SendMessagePayload
	if err := msg.Decode(&p); err != nil {
		ctl.sendError(conn, domain.ErrInvalidRequest)
		return
	}
	if ctl.Limiter != nil {
		sess, ok := ctl.Hub.Registry().Get(conn.id)
		if !ok {
			return
		}
		if !ctl.Limiter.Allow(sess.User.ID) {
			log.Debug().Str("module", "signal").Str("sid", string(conn.id)).Msg("chat rate limited")
			ctl.sendError(conn, fmt.Errorf("too many messages: %w", domain.ErrInvalidRequest))
			return
		}
	}
	if err := ctl.Hub.SendMessage(conn.id, p.Content); err != nil {
		ctl.sendError(conn, err)
	}
}
