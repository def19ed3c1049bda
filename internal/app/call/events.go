package call

import (
	"context"
	"sync"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// event is anything the session loop reacts to. Envelopes, user commands,
// timers and connection callbacks all become events.
type event interface{ isEvent() }

type envelopeEvent struct{ env domain.Envelope }

type callCmd struct {
	ctx    context.Context
	to     domain.UserID
	stream *LocalStream
	done   chan error
}

type acceptCmd struct {
	ctx    context.Context
	id     domain.CallID
	stream *LocalStream
	done   chan error
}

type rejectCmd struct{ done chan error }

type endCmd struct {
	reason domain.EndReason
	done   chan error
}

type muteCmd struct {
	muted bool
	done  chan error
}

type deafenCmd struct {
	deafened bool
	done     chan error
}

// cameraCmd toggles the camera. track is set when a camera had to be
// captured for it.
type cameraCmd struct {
	id    domain.CallID
	track core.LocalTrack
	done  chan error
}

// shareCmd starts sharing track, or stops sharing when track is nil.
type shareCmd struct {
	id    domain.CallID
	track core.LocalTrack
	done  chan error
}

type timeoutEvent struct {
	id    domain.CallID
	state domain.CallState
}

type connStateEvent struct {
	id    domain.CallID
	state webrtc.PeerConnectionState
}

type localCandidateEvent struct {
	id        domain.CallID
	candidate webrtc.ICECandidateInit
}

type remoteTrackEvent struct {
	id    domain.CallID
	track core.RemoteTrack
}

func (envelopeEvent) isEvent()       {}
func (callCmd) isEvent()             {}
func (acceptCmd) isEvent()           {}
func (rejectCmd) isEvent()           {}
func (endCmd) isEvent()              {}
func (muteCmd) isEvent()             {}
func (deafenCmd) isEvent()           {}
func (cameraCmd) isEvent()           {}
func (shareCmd) isEvent()            {}
func (timeoutEvent) isEvent()        {}
func (connStateEvent) isEvent()      {}
func (localCandidateEvent) isEvent() {}
func (remoteTrackEvent) isEvent()    {}

// inbox is an unbounded FIFO. Pushing never blocks, so connection callbacks
// may fire while the loop itself is calling into the connection.
type inbox struct {
	mu     sync.Mutex
	events []event
	ready  chan struct{}
}

func newInbox() *inbox {
	return &inbox{ready: make(chan struct{}, 1)}
}

func (q *inbox) push(ev event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *inbox) drain() []event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}
