package capture

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

var (
	// opusSilence is a single 20ms Opus frame of silence.
	opusSilence = []byte{0xf8, 0xff, 0xfe}
	// vp8Frame is a placeholder payload; receivers only count it.
	vp8Frame = []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a, 0x10, 0x00, 0x10, 0x00}
)

const (
	audioFrame = 20 * time.Millisecond
	videoFrame = time.Second / 30
)

type SyntheticOptions struct {
	// StreamID groups the tracks of one client.
	StreamID string
	// Denied sources fail with domain.ErrPermissionDenied.
	Denied []domain.TrackSource
	// Missing sources fail with domain.ErrDeviceUnavailable.
	Missing []domain.TrackSource
}

// Synthetic produces silence and placeholder video at real-time pace.
type Synthetic struct {
	opts SyntheticOptions
}

var _ core.CaptureDevice = (*Synthetic)(nil)

func NewSynthetic(opts SyntheticOptions) *Synthetic {
	if opts.StreamID == "" {
		opts.StreamID = "voicecall-" + uuid.NewString()[:8]
	}
	return &Synthetic{opts: opts}
}

func (s *Synthetic) AcquireAudio(ctx context.Context) (core.LocalTrack, error) {
	return s.acquire(ctx, domain.SourceMicrophone)
}

func (s *Synthetic) AcquireVideo(ctx context.Context) (core.LocalTrack, error) {
	return s.acquire(ctx, domain.SourceCamera)
}

func (s *Synthetic) AcquireDisplay(ctx context.Context) (core.LocalTrack, error) {
	return s.acquire(ctx, domain.SourceDisplay)
}

func (s *Synthetic) acquire(ctx context.Context, src domain.TrackSource) (core.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case slices.Contains(s.opts.Denied, src):
		return nil, fmt.Errorf("%w: %s", domain.ErrPermissionDenied, src)
	case slices.Contains(s.opts.Missing, src):
		return nil, fmt.Errorf("%w: %s", domain.ErrDeviceUnavailable, src)
	}

	codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	payload, interval := opusSilence, audioFrame
	if src.IsVideo() {
		codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
		payload, interval = vp8Frame, videoFrame
	}
	id := string(src) + "-" + uuid.NewString()[:8]
	local, err := webrtc.NewTrackLocalStaticSample(codec, id, s.opts.StreamID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDeviceUnavailable, src, err)
	}

	t := &SyntheticTrack{TrackLocalStaticSample: local, pump: newPump(src, id)}
	t.start(func(ctx context.Context) { t.loop(ctx, payload, interval) })
	t.log.Info().Str("codec", codec.MimeType).Msg("synthetic track started")
	return t, nil
}

// SyntheticTrack is a core.LocalTrack fed by a ticker.
type SyntheticTrack struct {
	*webrtc.TrackLocalStaticSample
	*pump
}

func (t *SyntheticTrack) loop(ctx context.Context, payload []byte, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !t.Enabled() {
				continue
			}
			if err := t.WriteSample(media.Sample{Data: payload, Duration: interval}); err != nil {
				t.log.Debug().Err(err).Msg("write sample")
				continue
			}
			t.written.Add(1)
		}
	}
}

func (t *SyntheticTrack) Stop() error {
	return t.stop(nil)
}
