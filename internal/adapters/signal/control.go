package signal

import (
	"time"

	"github.com/dkeye/Huddle/internal/protocol"
)

func (ctl *SignalWSController) handleKeepAlive(conn *WsSignalConn) {
	ctl.sendJSON(conn, protocol.TypeKeepAliveResponse, protocol.NewKeepAlive(time.Now()))
}
