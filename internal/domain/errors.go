package domain

import "errors"

// Call failure taxonomy. Wrapped errors are classified with errors.Is.
var (
	ErrPermissionDenied   = errors.New("permission denied")
	ErrDeviceUnavailable  = errors.New("device unavailable")
	ErrNegotiationFailure = errors.New("negotiation failure")
	ErrConnectionFailure  = errors.New("connection failure")
	ErrTargetUnreachable  = errors.New("target unreachable")
	ErrUserDeclined       = errors.New("user declined")
)

var (
	ErrBusy              = errors.New("a call is already in progress")
	ErrNoSession         = errors.New("no matching call session")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrSelfCall          = errors.New("cannot call yourself")
	ErrReleaseTimeout    = errors.New("media release deadline exceeded")
	ErrBackpressure      = errors.New("backpressure")
	ErrClosed            = errors.New("connection closed")
	ErrBadEnvelope       = errors.New("bad envelope")
)
