package core

import (
	"context"

	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close should stop all underlying media resources.
	Close() error
	// AddLocalTrack attaches a local track and returns its sender.
	AddLocalTrack(track webrtc.TrackLocal) (TrackSender, error)
	// AddRecvOnly makes the description carry a media section of kind even
	// when nothing of that kind is sent.
	AddRecvOnly(kind webrtc.RTPCodecType) error
	// CreateOffer creates an offer and applies it as the local description.
	CreateOffer() (*webrtc.SessionDescription, error)
	// CreateAnswer creates an answer and applies it as the local description.
	CreateAnswer() (*webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	HasRemoteDescription() bool
	SignalingState() webrtc.SignalingState
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnTrack sets a callback that will be invoked when a new remote media track arrives.
	OnTrack(func(ctx context.Context, track RemoteTrack))
	// OnStateChange reports transport state changes.
	OnStateChange(func(webrtc.PeerConnectionState))
}

// TrackSender is satisfied by *webrtc.RTPSender.
type TrackSender interface {
	Track() webrtc.TrackLocal
	ReplaceTrack(webrtc.TrackLocal) error
}

// RemoteTrack is satisfied by *webrtc.TrackRemote.
type RemoteTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// ConnectionFactory creates one media connection per call.
type ConnectionFactory interface {
	NewConnection(id domain.CallID) (MediaConnection, error)
}
