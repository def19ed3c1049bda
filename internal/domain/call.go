package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type CallID string

func NewCallID() CallID { return CallID(uuid.NewString()) }

type CallState int

const (
	StateIdle CallState = iota
	StateRingingOut
	StateRingingIn
	StateConnecting
	StateActive
	StateEnded
)

func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRingingOut:
		return "ringing_out"
	case StateRingingIn:
		return "ringing_in"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Live reports whether the state belongs to a non-terminal session.
func (s CallState) Live() bool {
	switch s {
	case StateRingingOut, StateRingingIn, StateConnecting, StateActive:
		return true
	}
	return false
}

type Direction int

const (
	DirectionCaller Direction = iota
	DirectionCallee
)

func (d Direction) String() string {
	if d == DirectionCallee {
		return "callee"
	}
	return "caller"
}

type EndReason string

const (
	EndReasonNone               EndReason = ""
	EndReasonHangup             EndReason = "hangup"
	EndReasonRemoteHangup       EndReason = "remote_hangup"
	EndReasonDeclined           EndReason = "declined"
	EndReasonBusy               EndReason = "busy"
	EndReasonTimeout            EndReason = "timeout"
	EndReasonMissed             EndReason = "missed"
	EndReasonUnreachable        EndReason = "unreachable"
	EndReasonPermissionDenied   EndReason = "permission_denied"
	EndReasonNegotiationFailure EndReason = "negotiation_failure"
	EndReasonConnectionFailure  EndReason = "connection_failure"
)

// Status is the user-facing text for a finished call. Internal failures
// collapse into a generic message.
func (r EndReason) Status() string {
	switch r {
	case EndReasonHangup, EndReasonRemoteHangup:
		return "call ended"
	case EndReasonDeclined:
		return "call declined"
	case EndReasonBusy:
		return "user is busy"
	case EndReasonTimeout, EndReasonUnreachable:
		return "no answer"
	case EndReasonMissed:
		return "missed call"
	case EndReasonPermissionDenied:
		return "microphone or camera access denied"
	case EndReasonNegotiationFailure, EndReasonConnectionFailure:
		return "call failed"
	default:
		return ""
	}
}

type RejectReason string

const (
	RejectDeclined RejectReason = "declined"
	RejectBusy     RejectReason = "busy"
)

// TrackSource is the capture device a local track comes from.
type TrackSource string

const (
	SourceMicrophone TrackSource = "microphone"
	SourceCamera     TrackSource = "camera"
	SourceDisplay    TrackSource = "display"
)

// IsVideo reports whether the source produces a video track.
func (s TrackSource) IsVideo() bool {
	return s == SourceCamera || s == SourceDisplay
}

func ParseTrackSource(raw string) (TrackSource, error) {
	switch s := TrackSource(strings.ToLower(strings.TrimSpace(raw))); s {
	case SourceMicrophone, SourceCamera, SourceDisplay:
		return s, nil
	case "mic", "audio":
		return SourceMicrophone, nil
	case "video":
		return SourceCamera, nil
	case "screen":
		return SourceDisplay, nil
	default:
		return "", fmt.Errorf("%w: unknown source %q", ErrDeviceUnavailable, raw)
	}
}
