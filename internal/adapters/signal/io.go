package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dkeye/voicecall/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("channel", c.id).Msg("writePump ctx done")
			c.Close()
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("channel", c.id).Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("channel", c.id).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("channel", c.id).Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("user", string(c.uid)).Str("channel", c.id).Msg("readPump closing")
		ctl.Relay.Leave(c.uid, c)
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("user", string(c.uid)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		ctl.handleSignal(c, data)
	}
}

func (ctl *SignalWSController) handleSignal(c *WsSignalConn, data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(c.uid)).Msg("bad json")
		ctl.sendError(c, "", domain.ErrBadEnvelope)
		return
	}

	switch head.Type {
	case domain.ControlPing:
		ctl.handlePing(c)
		return
	case domain.ControlPong:
		return
	}

	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		ctl.sendError(c, head.Type, domain.ErrBadEnvelope)
		return
	}
	// Clients cannot speak for someone else.
	env.From = c.uid
	if env.SentAt.IsZero() {
		env.SentAt = time.Now().UTC()
	}
	if err := ctl.validate.Struct(env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(c.uid)).Str("type", head.Type).Msg("invalid envelope")
		ctl.sendError(c, head.Type, domain.ErrBadEnvelope)
		return
	}

	if env.Type == domain.EnvelopeInvite && ctl.Limiter != nil && !ctl.Limiter.Allow(c.uid) {
		log.Warn().Str("module", "signal").Str("user", string(c.uid)).Str("to", string(env.To)).Msg("invite rate limited")
		ctl.sendError(c, head.Type, ErrRateLimited)
		return
	}

	res, err := ctl.Relay.Relay(env)
	if err != nil {
		ctl.sendError(c, head.Type, err)
		return
	}
	log.Debug().Str("module", "signal").
		Str("type", string(env.Type)).
		Str("from", string(env.From)).
		Str("to", string(env.To)).
		Int("delivered", res.Delivered).
		Msg("relayed")
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
