package call

import (
	"context"
	"time"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Session is one pending or active call. Only the manager loop touches it.
type Session struct {
	ID        domain.CallID
	Local     domain.UserID
	Remote    domain.UserID
	Direction domain.Direction
	State     domain.CallState

	RemoteDisplayName string
	RemoteAvatarRef   string

	Stream *LocalStream

	CreatedAt time.Time
	EndedAt   time.Time
	EndReason domain.EndReason

	ctx    context.Context
	cancel context.CancelFunc

	conn     core.MediaConnection
	senders  map[webrtc.RTPCodecType]core.TrackSender
	iceQueue CandidateQueue
	render   *renderSet
	timer    *time.Timer

	offerer     bool
	exchanges   int
	transportUp bool
	pendingNego bool
	released    bool

	muted    bool
	deafened bool
}

func newSession(parent context.Context, id domain.CallID, local, remote domain.UserID, dir domain.Direction, state domain.CallState, sink RenderSink) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		ID:        id,
		Local:     local,
		Remote:    remote,
		Direction: dir,
		State:     state,
		CreatedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		senders:   make(map[webrtc.RTPCodecType]core.TrackSender),
		render:    newRenderSet(remote, sink),
		offerer:   domain.IsOfferer(local, remote),
	}
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) sharing() bool {
	if s.Stream == nil {
		return false
	}
	_, ok := s.Stream.Get(domain.SourceDisplay)
	return ok
}

func (s *Session) cameraOn() bool {
	if s.Stream == nil {
		return false
	}
	t, ok := s.Stream.Get(domain.SourceCamera)
	return ok && t.Enabled()
}

// SessionSnapshot is an immutable view of a session for callers outside the loop.
type SessionSnapshot struct {
	ID                domain.CallID
	Local             domain.UserID
	Remote            domain.UserID
	RemoteDisplayName string
	Direction         domain.Direction
	State             domain.CallState
	EndReason         domain.EndReason
	CreatedAt         time.Time
	EndedAt           time.Time

	HasConnection bool
	Exchanges     int
	Muted         bool
	Deafened      bool
	HasCamera     bool
	CameraOn      bool
	Sharing       bool
}

// Status is the user-facing status line.
func (s SessionSnapshot) Status() string {
	switch s.State {
	case domain.StateEnded:
		return s.EndReason.Status()
	case domain.StateRingingOut:
		return "calling " + string(s.Remote)
	case domain.StateRingingIn:
		return "incoming call from " + string(s.Remote)
	case domain.StateConnecting:
		return "connecting"
	case domain.StateActive:
		return "in call with " + string(s.Remote)
	default:
		return "idle"
	}
}

func (s *Session) snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		ID:                s.ID,
		Local:             s.Local,
		Remote:            s.Remote,
		RemoteDisplayName: s.RemoteDisplayName,
		Direction:         s.Direction,
		State:             s.State,
		EndReason:         s.EndReason,
		CreatedAt:         s.CreatedAt,
		EndedAt:           s.EndedAt,
		HasConnection:     s.conn != nil,
		Exchanges:         s.exchanges,
		Muted:             s.muted,
		Deafened:          s.deafened,
		CameraOn:          s.cameraOn(),
		Sharing:           s.sharing(),
	}
	if s.Stream != nil {
		_, snap.HasCamera = s.Stream.Get(domain.SourceCamera)
	}
	return snap
}

// RemoteTrackInfo describes a remote track that started rendering.
type RemoteTrackInfo struct {
	CallID  domain.CallID
	Peer    domain.UserID
	TrackID string
	Kind    webrtc.RTPCodecType
}
