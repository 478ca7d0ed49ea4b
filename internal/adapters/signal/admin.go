package signal

import (
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/protocol"
)

func (ctl *SignalWSController) handleAdminAction(conn *WsSignalConn, msg *protocol.Message) {
	var p protocol.AdminActionPayload
	if err := msg.Decode(&p); err != nil {
		ctl.sendError(conn, domain.ErrInvalidRequest)
		return
	}
	if err := ctl.Hub.AdminAction(conn.id, p.Target, p.Action); err != nil {
		ctl.sendError(conn, err)
	}
}

func (ctl *SignalWSController) handleDeleteRoom(conn *WsSignalConn) {
	if err := ctl.Hub.DeleteRoom(conn.id); err != nil {
		ctl.sendError(conn, err)
	}
}
