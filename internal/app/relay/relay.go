// Package relay routes signaling envelopes between users. It never looks
// inside payloads and keeps no call state.
package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/rs/zerolog/log"
)

// PublishResult is what happened to one envelope.
type PublishResult struct {
	Delivered int
	Dropped   int
	Closed    int
}

type Relay struct {
	reg    *Registry
	policy Policy
}

func New(reg *Registry, policy Policy) *Relay {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Relay{reg: reg, policy: policy}
}

func (r *Relay) Registry() *Registry { return r.reg }

func (r *Relay) Join(uid domain.UserID, ch core.SignalConnection) {
	r.reg.Join(uid, ch)
}

func (r *Relay) Leave(uid domain.UserID, ch core.SignalConnection) {
	r.reg.Leave(uid, ch.ID())
}

// Disconnect removes and closes every channel of uid.
func (r *Relay) Disconnect(uid domain.UserID) int {
	chans := r.reg.LeaveAll(uid)
	for _, ch := range chans {
		ch.Close()
	}
	return len(chans)
}

// Relay delivers env to every channel registered under env.To. Unknown
// recipients are not an error: the envelope is dropped.
func (r *Relay) Relay(env domain.Envelope) (PublishResult, error) {
	var res PublishResult
	frame, err := encodeFrame(env)
	if err != nil {
		return res, err
	}
	chans := r.reg.ChannelsOf(env.To)
	if len(chans) == 0 {
		log.Debug().Str("module", "relay").Str("type", string(env.Type)).Str("from", string(env.From)).Str("to", string(env.To)).Msg("no channels, dropped")
		return res, nil
	}
	for _, ch := range chans {
		err := ch.TrySend(frame)
		switch {
		case err == nil:
			res.Delivered++
		case errors.Is(err, domain.ErrBackpressure):
			switch r.policy.OnBackPressure(env.To, ch) {
			case CloseChannel:
				log.Warn().Str("module", "relay").Str("user", string(env.To)).Str("channel", ch.ID()).Msg("slow channel closed")
				r.reg.Leave(env.To, ch.ID())
				ch.Close()
				res.Closed++
			case DropEnvelope:
				log.Warn().Str("module", "relay").Str("user", string(env.To)).Str("channel", ch.ID()).Str("type", string(env.Type)).Msg("backpressure, envelope dropped")
				res.Dropped++
			default:
				res.Dropped++
			}
		default:
			log.Debug().Err(err).Str("module", "relay").Str("user", string(env.To)).Str("channel", ch.ID()).Msg("send failed, leaving")
			r.reg.Leave(env.To, ch.ID())
			res.Dropped++
		}
	}
	return res, nil
}

// encodeFrame serializes env with its payload copied verbatim.
func encodeFrame(env domain.Envelope) (core.Frame, error) {
	payload := env.Payload
	if len(payload) > 0 && !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not json", domain.ErrBadEnvelope)
	}
	env.Payload = nil

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	head := bytes.TrimRight(buf.Bytes(), "\n")
	if len(payload) == 0 {
		return head, nil
	}
	frame := make([]byte, 0, len(head)+len(payload)+12)
	frame = append(frame, head[:len(head)-1]...)
	frame = append(frame, `,"payload":`...)
	frame = append(frame, payload...)
	return append(frame, '}'), nil
}
