package call

import (
	"errors"
	"fmt"

	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Mute and deafen are local only and never produce signaling traffic.

func (m *Manager) onMute(muted bool) error {
	s := m.session
	if s == nil {
		return domain.ErrNoSession
	}
	s.muted = muted
	if s.Stream != nil {
		s.Stream.SetAudioEnabled(!muted)
	}
	m.publish(s)
	m.log.Debug().Str("call_id", string(s.ID)).Bool("muted", muted).Msg("mute")
	return nil
}

func (m *Manager) onDeafen(deafened bool) error {
	s := m.session
	if s == nil {
		return domain.ErrNoSession
	}
	s.deafened = deafened
	s.render.setDeafened(deafened)
	m.publish(s)
	m.log.Debug().Str("call_id", string(s.ID)).Bool("deafened", deafened).Msg("deafen")
	return nil
}

func (m *Manager) onCamera(cmd cameraCmd) error {
	s := m.session
	if s == nil || s.ID != cmd.id || s.Stream == nil {
		stopTrack(cmd.track)
		if s == nil || s.ID != cmd.id {
			return domain.ErrNoSession
		}
		return fmt.Errorf("camera before accept: %w", domain.ErrInvalidTransition)
	}
	if cam, ok := s.Stream.Get(domain.SourceCamera); ok {
		stopTrack(cmd.track)
		cam.SetEnabled(!cam.Enabled())
		m.publish(s)
		return nil
	}
	if cmd.track == nil {
		return fmt.Errorf("camera: %w", domain.ErrDeviceUnavailable)
	}
	cam, _ := s.Stream.Put(cmd.track)
	if s.sharing() {
		// Goes on the wire when sharing stops.
		m.publish(s)
		return nil
	}
	err := m.attachVideo(s, cam.LocalTrack)
	m.publish(s)
	return m.checkNegotiation(s, err)
}

func (m *Manager) onShare(cmd shareCmd) error {
	s := m.session
	if s == nil || s.ID != cmd.id || s.Stream == nil {
		stopTrack(cmd.track)
		if s == nil || s.ID != cmd.id {
			return domain.ErrNoSession
		}
		return fmt.Errorf("screen share before accept: %w", domain.ErrInvalidTransition)
	}

	if cmd.track != nil {
		if s.sharing() {
			stopTrack(cmd.track)
			return nil
		}
		display, _ := s.Stream.Put(cmd.track)
		err := m.attachVideo(s, display.LocalTrack)
		m.publish(s)
		m.log.Info().Str("call_id", string(s.ID)).Msg("screen share started")
		return m.checkNegotiation(s, err)
	}

	display := s.Stream.Remove(domain.SourceDisplay)
	if display == nil {
		return nil
	}
	var prior webrtc.TrackLocal
	if cam, ok := s.Stream.Get(domain.SourceCamera); ok {
		prior = cam.LocalTrack
	}
	var err error
	if sender, ok := s.senders[webrtc.RTPCodecTypeVideo]; ok {
		err = sender.ReplaceTrack(prior)
	}
	if stopErr := display.Stop(); stopErr != nil {
		m.log.Warn().Err(stopErr).Msg("stop display capture")
	}
	m.publish(s)
	m.log.Info().Str("call_id", string(s.ID)).Bool("camera", prior != nil).Msg("screen share stopped")
	return err
}

// checkNegotiation ends the session when a renegotiation could not start.
func (m *Manager) checkNegotiation(s *Session, err error) error {
	if err != nil && errors.Is(err, domain.ErrNegotiationFailure) {
		m.fail(s, err)
	}
	return err
}
