package call

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/rs/zerolog/log"
)

// MediaManager acquires local capture for sessions.
type MediaManager struct {
	dev core.CaptureDevice
}

func NewMediaManager(dev core.CaptureDevice) *MediaManager {
	return &MediaManager{dev: dev}
}

// Acquire captures the requested sources. Sources that fail are recorded
// on the stream and skipped; the call fails only when nothing was captured.
func (m *MediaManager) Acquire(ctx context.Context, sources ...domain.TrackSource) (*LocalStream, error) {
	stream := NewLocalStream()
	var errs []error
	for _, src := range sources {
		if _, ok := stream.Get(src); ok {
			continue
		}
		lt, err := m.AcquireOne(ctx, src)
		if err != nil {
			log.Warn().Err(err).Str("module", "call").Str("source", string(src)).Msg("capture failed, degrading")
			stream.markMissing(src, err)
			errs = append(errs, err)
			continue
		}
		stream.Put(lt)
	}
	if stream.Len() == 0 {
		if len(errs) == 0 {
			return nil, fmt.Errorf("acquire: no sources requested: %w", domain.ErrDeviceUnavailable)
		}
		return nil, fmt.Errorf("acquire: %w", errors.Join(errs...))
	}
	return stream, nil
}

// AcquireOne captures a single source.
func (m *MediaManager) AcquireOne(ctx context.Context, src domain.TrackSource) (core.LocalTrack, error) {
	var (
		lt  core.LocalTrack
		err error
	)
	switch src {
	case domain.SourceMicrophone:
		lt, err = m.dev.AcquireAudio(ctx)
	case domain.SourceCamera:
		lt, err = m.dev.AcquireVideo(ctx)
	case domain.SourceDisplay:
		lt, err = m.dev.AcquireDisplay(ctx)
	default:
		return nil, fmt.Errorf("unknown source %q: %w", src, domain.ErrDeviceUnavailable)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	return lt, nil
}
