// Package capture provides core.CaptureDevice implementations: a synthetic
// device that needs no hardware, and real devices behind the mediadevices
// build tag.
package capture

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dkeye/voicecall/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// pump is the sending half shared by every track kind: a goroutine that
// writes media while enabled and is stopped exactly once.
type pump struct {
	source  domain.TrackSource
	enabled atomic.Bool
	written atomic.Int64
	log     zerolog.Logger

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newPump(source domain.TrackSource, id string) *pump {
	p := &pump{
		source: source,
		log:    log.With().Str("module", "capture").Str("source", string(source)).Str("track_id", id).Logger(),
	}
	p.enabled.Store(true)
	return p
}

func (p *pump) start(run func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		run(ctx)
	}()
}

func (p *pump) Source() domain.TrackSource { return p.source }

// SetEnabled pauses or resumes sending without releasing the device.
func (p *pump) SetEnabled(on bool) {
	if p.enabled.Swap(on) != on {
		p.log.Debug().Bool("enabled", on).Msg("track toggled")
	}
}

func (p *pump) Enabled() bool { return p.enabled.Load() }

// Written counts media units handed to the track while enabled.
func (p *pump) Written() int64 { return p.written.Load() }

func (p *pump) stop(release func() error) error {
	var err error
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
		if release != nil {
			err = release()
		}
		p.log.Info().Msg("track stopped")
	})
	return err
}
