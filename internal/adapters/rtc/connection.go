package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Connection is a core.MediaConnection backed by a pion peer connection.
type Connection struct {
	pc  *webrtc.PeerConnection
	api *webrtc.API
	id  domain.CallID
	log zerolog.Logger

	mu      sync.RWMutex
	onICE   func(webrtc.ICECandidateInit)
	onTrack func(ctx context.Context, track core.RemoteTrack)
	onState func(webrtc.PeerConnectionState)

	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

func newConnection(api *webrtc.API, pc *webrtc.PeerConnection, id domain.CallID) *Connection {
	return &Connection{
		pc:  pc,
		api: api,
		id:  id,
		log: log.With().Str("module", "rtc").Str("call_id", string(id)).Logger(),
	}
}

// Start wires pion callbacks. The connection is closed when ctx is done.
func (c *Connection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.log.Debug().Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.Info().Str("peer_connection_state", s.String()).Msg("peer state")
		c.mu.RLock()
		fn := c.onState
		c.mu.RUnlock()
		if fn != nil {
			fn(s)
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			c.log.Debug().Msg("ICE gathering complete")
			return
		}
		c.mu.RLock()
		fn := c.onICE
		c.mu.RUnlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.log.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Str("codec", track.Codec().MimeType).
			Msg("OnTrack received")
		go drainRTCP(ctx, receiver)
		c.mu.RLock()
		fn := c.onTrack
		c.mu.RUnlock()
		if fn != nil {
			fn(ctx, track)
		}
	})

	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()
	return nil
}

// drainRTCP keeps interceptors fed; pion needs incoming RTCP to be read.
func drainRTCP(ctx context.Context, r interface {
	Read([]byte) (int, interceptor.Attributes, error)
}) {
	buf := make([]byte, 1500)
	for ctx.Err() == nil {
		if _, _, err := r.Read(buf); err != nil {
			return
		}
	}
}

func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.closeErr = c.pc.Close()
		if c.closeErr != nil {
			c.log.Error().Err(c.closeErr).Msg("close error")
		} else {
			c.log.Info().Msg("closed")
		}
	})
	return c.closeErr
}

// AddLocalTrack attaches track to a negotiated transceiver of its kind that
// has no sender yet, so the next offer from either side carries it. Without
// one it adds a new transceiver.
func (c *Connection) AddLocalTrack(track webrtc.TrackLocal) (core.TrackSender, error) {
	sender, err := c.attachToTransceiver(track)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		if sender, err = c.pc.AddTrack(track); err != nil {
			return nil, err
		}
	}
	go drainRTCP(context.Background(), sender)
	c.log.Debug().Str("track_id", track.ID()).Str("kind", track.Kind().String()).Msg("local track added")
	return sender, nil
}

// attachToTransceiver covers what pion AddTrack refuses: a transceiver whose
// current direction is already sendrecv because the peer offered one.
func (c *Connection) attachToTransceiver(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	for _, t := range c.pc.GetTransceivers() {
		if t.Kind() != track.Kind() || t.Sender() != nil || t.Mid() == "" {
			continue
		}
		if t.Direction() != webrtc.RTPTransceiverDirectionSendrecv {
			continue
		}
		sender, err := c.api.NewRTPSender(track, c.pc.SCTP().Transport())
		if err != nil {
			return nil, err
		}
		if err := t.SetSender(sender, track); err != nil {
			_ = sender.Stop()
			return nil, err
		}
		c.log.Debug().Str("mid", t.Mid()).Msg("track attached to negotiated transceiver")
		return sender, nil
	}
	return nil, nil
}

func (c *Connection) AddRecvOnly(kind webrtc.RTPCodecType) error {
	_, err := c.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	return err
}

func (c *Connection) CreateOffer() (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return &offer, nil
}

func (c *Connection) CreateAnswer() (*webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// SetRemoteDescription rejects descriptions that do not parse before they
// reach the peer connection.
func (c *Connection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	kinds, err := ValidateDescription(desc)
	if err != nil {
		return err
	}
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNegotiationFailure, err)
	}
	c.log.Debug().Str("type", desc.Type.String()).Strs("media", kinds).Msg("remote description set")
	return nil
}

func (c *Connection) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

func (c *Connection) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

// OnTrack sets application-level callback for remote tracks.
func (c *Connection) OnTrack(fn func(ctx context.Context, track core.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *Connection) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}
