//go:build !mediadevices

package capture

import (
	"context"
	"fmt"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Devices stands in for real capture when built without the mediadevices
// tag. Every acquisition fails with domain.ErrDeviceUnavailable.
type Devices struct{}

var _ core.CaptureDevice = (*Devices)(nil)

func NewDevices(string) (*Devices, error) {
	return &Devices{}, nil
}

func (d *Devices) ConfigureMediaEngine(me *webrtc.MediaEngine) error {
	return me.RegisterDefaultCodecs()
}

func (d *Devices) AcquireAudio(context.Context) (core.LocalTrack, error) {
	return nil, unavailable(domain.SourceMicrophone)
}

func (d *Devices) AcquireVideo(context.Context) (core.LocalTrack, error) {
	return nil, unavailable(domain.SourceCamera)
}

func (d *Devices) AcquireDisplay(context.Context) (core.LocalTrack, error) {
	return nil, unavailable(domain.SourceDisplay)
}

func unavailable(src domain.TrackSource) error {
	return fmt.Errorf("%w: %s: built without mediadevices", domain.ErrDeviceUnavailable, src)
}
