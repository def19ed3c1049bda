package core

import (
	"context"

	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/webrtc/v4"
)

//go:generate mockgen -source=capture_iface.go -destination=mocks/capture_mock.go -package=mocks

// LocalTrack is a captured track that can be attached to a media connection.
type LocalTrack interface {
	webrtc.TrackLocal
	Source() domain.TrackSource
	// Stop releases the underlying device.
	Stop() error
}

// Enabler is implemented by tracks that can pause sending without releasing
// the device.
type Enabler interface {
	SetEnabled(bool)
}

// CaptureDevice acquires local tracks. Failures wrap
// domain.ErrPermissionDenied or domain.ErrDeviceUnavailable.
type CaptureDevice interface {
	AcquireAudio(ctx context.Context) (LocalTrack, error)
	AcquireVideo(ctx context.Context) (LocalTrack, error)
	AcquireDisplay(ctx context.Context) (LocalTrack, error)
}
