package signal

import "github.com/dkeye/voicecall/internal/domain"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, domain.ControlFrame{Type: domain.ControlPong})
}

// sendError reports a rejected frame to its sender only.
func (ctl *SignalWSController) sendError(conn *WsSignalConn, ref string, err error) {
	ctl.sendJSON(conn, domain.ControlFrame{
		Type:  domain.ControlError,
		Error: err.Error(),
		Ref:   ref,
	})
}
