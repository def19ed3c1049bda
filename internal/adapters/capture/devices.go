//go:build mediadevices

package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
)

const rtpMTU = 1200

// Devices captures from the local microphone, camera and screen.
type Devices struct {
	codecs   *mediadevices.CodecSelector
	streamID string
}

var _ core.CaptureDevice = (*Devices)(nil)

func NewDevices(streamID string) (*Devices, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_000_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return &Devices{
		codecs: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
		streamID: streamID,
	}, nil
}

// ConfigureMediaEngine registers the encoders' codecs so the connection
// negotiates what the devices produce.
func (d *Devices) ConfigureMediaEngine(me *webrtc.MediaEngine) error {
	d.codecs.Populate(me)
	return nil
}

func (d *Devices) AcquireAudio(ctx context.Context) (core.LocalTrack, error) {
	return d.acquire(ctx, domain.SourceMicrophone, func() (mediadevices.MediaStream, error) {
		return mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
			Audio: func(_ *mediadevices.MediaTrackConstraints) {},
			Codec: d.codecs,
		})
	})
}

func (d *Devices) AcquireVideo(ctx context.Context) (core.LocalTrack, error) {
	return d.acquire(ctx, domain.SourceCamera, func() (mediadevices.MediaStream, error) {
		return mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
			Video: func(c *mediadevices.MediaTrackConstraints) {
				c.FrameFormat = prop.FrameFormatOneOf{frame.FormatYUYV, frame.FormatI420, frame.FormatRGBA}
				c.Width = prop.IntRanged{Max: 640}
				c.Height = prop.IntRanged{Max: 480}
			},
			Codec: d.codecs,
		})
	})
}

func (d *Devices) AcquireDisplay(ctx context.Context) (core.LocalTrack, error) {
	return d.acquire(ctx, domain.SourceDisplay, func() (mediadevices.MediaStream, error) {
		return mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
			Video: func(_ *mediadevices.MediaTrackConstraints) {},
			Codec: d.codecs,
		})
	})
}

func classify(src domain.TrackSource, err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "permission") {
		return fmt.Errorf("%w: %s: %v", domain.ErrPermissionDenied, src, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrDeviceUnavailable, src, err)
}

func (d *Devices) acquire(ctx context.Context, src domain.TrackSource, open func() (mediadevices.MediaStream, error)) (core.LocalTrack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream, err := open()
	if err != nil {
		return nil, classify(src, err)
	}
	tracks := stream.GetTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: %s: no tracks", domain.ErrDeviceUnavailable, src)
	}
	for _, extra := range tracks[1:] {
		_ = extra.Close()
	}
	dev := tracks[0]

	mime := webrtc.MimeTypeOpus
	codec := webrtc.RTPCodecCapability{MimeType: mime, ClockRate: 48000, Channels: 2}
	if src.IsVideo() {
		mime = webrtc.MimeTypeVP8
		codec = webrtc.RTPCodecCapability{MimeType: mime, ClockRate: 90000}
	}
	reader, err := dev.NewRTPReader(mime, 0, rtpMTU)
	if err != nil {
		_ = dev.Close()
		return nil, classify(src, err)
	}
	local, err := webrtc.NewTrackLocalStaticRTP(codec, dev.ID(), d.streamID)
	if err != nil {
		_ = reader.Close()
		_ = dev.Close()
		return nil, classify(src, err)
	}

	t := &DeviceTrack{TrackLocalStaticRTP: local, pump: newPump(src, dev.ID()), dev: dev, reader: reader}
	dev.OnEnded(func(err error) {
		if err != nil {
			t.log.Warn().Err(err).Msg("device ended")
		}
	})
	t.start(t.loop)
	t.log.Info().Str("codec", mime).Msg("device track started")
	return t, nil
}

// DeviceTrack forwards encoded RTP from a capture device while enabled.
type DeviceTrack struct {
	*webrtc.TrackLocalStaticRTP
	*pump

	dev    mediadevices.Track
	reader mediadevices.RTPReadCloser
}

func (t *DeviceTrack) loop(ctx context.Context) {
	for ctx.Err() == nil {
		packets, release, err := t.reader.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.log.Debug().Err(err).Msg("rtp read")
			}
			return
		}
		if t.Enabled() {
			for _, pkt := range packets {
				if err := t.WriteRTP(pkt); err != nil {
					t.log.Debug().Err(err).Msg("rtp write")
					break
				}
				t.written.Add(1)
			}
		}
		release()
	}
}

func (t *DeviceTrack) Stop() error {
	// Closing the reader unblocks the pump before it is awaited.
	_ = t.reader.Close()
	return t.stop(t.dev.Close)
}
