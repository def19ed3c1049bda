package call

import (
	"context"
	"fmt"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// createConnection instantiates the media connection of s once, attaches the
// outgoing tracks and, on the offering side, sends the first offer.
func (m *Manager) createConnection(s *Session) error {
	if s.conn != nil {
		return nil
	}
	conn, err := m.factory.NewConnection(s.ID)
	if err != nil {
		return fmt.Errorf("%w: new connection: %v", domain.ErrConnectionFailure, err)
	}

	id := s.ID
	conn.OnICECandidate(func(c webrtc.ICECandidateInit) {
		m.inbox.push(localCandidateEvent{id: id, candidate: c})
	})
	conn.OnTrack(func(_ context.Context, t core.RemoteTrack) {
		m.inbox.push(remoteTrackEvent{id: id, track: t})
	})
	conn.OnStateChange(func(st webrtc.PeerConnectionState) {
		m.inbox.push(connStateEvent{id: id, state: st})
	})
	if err := conn.Start(s.ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: start connection: %v", domain.ErrConnectionFailure, err)
	}
	s.conn = conn

	if s.Stream != nil {
		for _, t := range s.Stream.Outgoing() {
			sender, err := conn.AddLocalTrack(t.LocalTrack)
			if err != nil {
				return fmt.Errorf("%w: add %s track: %v", domain.ErrNegotiationFailure, t.Source(), err)
			}
			s.senders[t.Kind()] = sender
		}
	}
	m.log.Info().Str("call_id", string(s.ID)).Bool("offerer", s.offerer).Int("senders", len(s.senders)).Msg("connection created")

	if !s.offerer {
		return nil
	}
	// The offer must carry a section per kind so the peer can answer with
	// media we do not send ourselves.
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, ok := s.senders[kind]; ok {
			continue
		}
		if err := conn.AddRecvOnly(kind); err != nil {
			return fmt.Errorf("%w: recvonly %s: %v", domain.ErrNegotiationFailure, kind, err)
		}
	}
	return m.sendOffer(s)
}

func (m *Manager) sendOffer(s *Session) error {
	offer, err := s.conn.CreateOffer()
	if err != nil {
		return fmt.Errorf("%w: create offer: %v", domain.ErrNegotiationFailure, err)
	}
	m.log.Debug().Str("call_id", string(s.ID)).Msg("sending offer")
	return m.send(s, domain.EnvelopeOffer, domain.DescriptionPayload{SDPType: offer.Type.String(), SDP: offer.SDP})
}

func (m *Manager) handleRemoteDescription(s *Session, env domain.Envelope) error {
	var p domain.DescriptionPayload
	if err := env.Decode(&p); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNegotiationFailure, err)
	}
	desc := webrtc.SessionDescription{Type: webrtc.NewSDPType(p.SDPType), SDP: p.SDP}
	switch env.Type {
	case domain.EnvelopeOffer:
		if desc.Type != webrtc.SDPTypeOffer {
			return fmt.Errorf("%w: offer envelope carries %q", domain.ErrNegotiationFailure, p.SDPType)
		}
		return m.handleRemoteOffer(s, desc)
	default:
		if desc.Type != webrtc.SDPTypeAnswer {
			return fmt.Errorf("%w: answer envelope carries %q", domain.ErrNegotiationFailure, p.SDPType)
		}
		return m.handleRemoteAnswer(s, desc)
	}
}

func (m *Manager) handleRemoteOffer(s *Session, desc webrtc.SessionDescription) error {
	if s.State != domain.StateConnecting && s.State != domain.StateActive {
		m.log.Warn().Str("call_id", string(s.ID)).Stringer("state", s.State).Msg("offer outside negotiation, ignored")
		return nil
	}
	if s.offerer {
		// Offers only flow from the lower user id. The peer asks with a
		// renegotiate envelope instead.
		m.log.Warn().Str("call_id", string(s.ID)).Str("peer", string(s.Remote)).Msg("offer from answering side, ignored")
		return nil
	}
	if err := m.createConnection(s); err != nil {
		return err
	}
	if err := s.conn.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: set remote offer: %v", domain.ErrNegotiationFailure, err)
	}
	m.drainCandidates(s)

	answer, err := s.conn.CreateAnswer()
	if err != nil {
		return fmt.Errorf("%w: create answer: %v", domain.ErrNegotiationFailure, err)
	}
	if err := m.send(s, domain.EnvelopeAnswer, domain.DescriptionPayload{SDPType: answer.Type.String(), SDP: answer.SDP}); err != nil {
		return err
	}
	m.completeExchange(s)
	return nil
}

func (m *Manager) handleRemoteAnswer(s *Session, desc webrtc.SessionDescription) error {
	if s.conn == nil || s.conn.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		m.log.Warn().Str("call_id", string(s.ID)).Msg("answer without pending offer, ignored")
		return nil
	}
	if err := s.conn.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: set remote answer: %v", domain.ErrNegotiationFailure, err)
	}
	m.drainCandidates(s)
	m.completeExchange(s)
	if s.pendingNego {
		return m.renegotiate(s)
	}
	return nil
}

func (m *Manager) completeExchange(s *Session) {
	s.exchanges++
	m.maybeActivate(s)
	m.publish(s)
}

// onRenegotiateRequest runs on the offering side when the peer added a
// track and needs a fresh offer to carry it.
func (m *Manager) onRenegotiateRequest(s *Session) {
	if !s.offerer {
		m.log.Warn().Str("call_id", string(s.ID)).Msg("renegotiate request on answering side, ignored")
		return
	}
	if s.State != domain.StateConnecting && s.State != domain.StateActive {
		return
	}
	if err := m.renegotiate(s); err != nil {
		m.fail(s, err)
	}
}

// renegotiate starts a fresh offer/answer round, or defers it until the
// current round completes. The answering side never offers: it asks the
// peer for an offer, which picks up its new senders in the answer.
func (m *Manager) renegotiate(s *Session) error {
	if s.conn == nil {
		return nil
	}
	if !s.offerer {
		m.log.Info().Str("call_id", string(s.ID)).Msg("requesting renegotiation")
		return m.send(s, domain.EnvelopeRenegotiate, nil)
	}
	if s.conn.SignalingState() != webrtc.SignalingStateStable {
		s.pendingNego = true
		return nil
	}
	s.pendingNego = false
	m.log.Info().Str("call_id", string(s.ID)).Msg("renegotiating")
	return m.sendOffer(s)
}

func (m *Manager) addRemoteCandidate(s *Session, env domain.Envelope) {
	var p domain.CandidatePayload
	if err := env.Decode(&p); err != nil {
		m.log.Warn().Err(err).Str("call_id", string(s.ID)).Msg("bad candidate dropped")
		return
	}
	c := webrtc.ICECandidateInit{Candidate: p.Candidate, SDPMid: p.SDPMid, SDPMLineIndex: p.SDPMLineIndex}
	if s.conn == nil || !s.conn.HasRemoteDescription() {
		s.iceQueue.Push(c)
		return
	}
	if err := s.conn.AddICECandidate(c); err != nil {
		m.log.Warn().Err(err).Str("call_id", string(s.ID)).Msg("add candidate")
	}
}

func (m *Manager) drainCandidates(s *Session) {
	n := s.iceQueue.Len()
	if n == 0 {
		return
	}
	if err := s.iceQueue.Drain(s.conn.AddICECandidate); err != nil {
		m.log.Warn().Err(err).Str("call_id", string(s.ID)).Msg("buffered candidates")
	}
	m.log.Debug().Str("call_id", string(s.ID)).Int("candidates", n).Msg("drained candidate buffer")
}

// attachVideo puts track on the wire: in place when a video sender exists,
// otherwise as a new sender followed by a renegotiation.
func (m *Manager) attachVideo(s *Session, track webrtc.TrackLocal) error {
	if s.conn == nil {
		return nil
	}
	if sender, ok := s.senders[webrtc.RTPCodecTypeVideo]; ok {
		return sender.ReplaceTrack(track)
	}
	sender, err := s.conn.AddLocalTrack(track)
	if err != nil {
		return fmt.Errorf("%w: add video track: %v", domain.ErrNegotiationFailure, err)
	}
	s.senders[webrtc.RTPCodecTypeVideo] = sender
	return m.renegotiate(s)
}

func (m *Manager) maybeActivate(s *Session) {
	if s.State != domain.StateConnecting || !s.transportUp || s.exchanges < 1 {
		return
	}
	s.stopTimer()
	s.State = domain.StateActive
	m.publish(s)
	m.log.Info().Str("call_id", string(s.ID)).Str("peer", string(s.Remote)).Msg("call active")
}

func (m *Manager) onConnState(ev connStateEvent) {
	s := m.session
	if s == nil || s.ID != ev.id {
		return
	}
	m.log.Debug().Str("call_id", string(s.ID)).Stringer("conn_state", ev.state).Msg("connection state")
	switch ev.state {
	case webrtc.PeerConnectionStateConnected:
		s.transportUp = true
		m.maybeActivate(s)
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		m.fail(s, fmt.Errorf("%w: transport %s", domain.ErrConnectionFailure, ev.state))
	case webrtc.PeerConnectionStateDisconnected:
		m.log.Warn().Str("call_id", string(s.ID)).Msg("transport disconnected, waiting for recovery")
	}
}

func (m *Manager) onLocalCandidate(ev localCandidateEvent) {
	s := m.session
	if s == nil || s.ID != ev.id {
		return
	}
	p := domain.CandidatePayload{
		Candidate:     ev.candidate.Candidate,
		SDPMid:        ev.candidate.SDPMid,
		SDPMLineIndex: ev.candidate.SDPMLineIndex,
	}
	if err := m.send(s, domain.EnvelopeCandidate, p); err != nil {
		m.log.Warn().Err(err).Str("call_id", string(s.ID)).Msg("send candidate")
	}
}

func (m *Manager) onRemoteTrack(ev remoteTrackEvent) {
	s := m.session
	if s == nil || s.ID != ev.id {
		return
	}
	s.render.start(s.ctx, ev.track)
	m.publish(s)
	m.log.Info().Str("call_id", string(s.ID)).Str("track", ev.track.ID()).Stringer("kind", ev.track.Kind()).Msg("remote track")
	if fn := m.hooks().onRemoteTrack; fn != nil {
		fn(RemoteTrackInfo{CallID: s.ID, Peer: s.Remote, TrackID: ev.track.ID(), Kind: ev.track.Kind()})
	}
}
