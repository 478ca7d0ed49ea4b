package signal

import (
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

// handleRelay passes a negotiation payload to one peer without looking at it.
func (ctl *SignalWSController) handleRelay(conn *WsSignalConn, msg *protocol.Message) {
	var p protocol.SignalOut
	if err := msg.Decode(&p); err != nil || p.To == "" || len(p.Payload) == 0 {
		ctl.sendError(conn, domain.ErrInvalidRequest)
		return
	}
	ctl.Hub.Relay(conn.id, p.To, p.Payload)
}
