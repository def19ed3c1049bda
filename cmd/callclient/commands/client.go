package commands

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/voicecall/internal/adapters/capture"
	"github.com/dkeye/voicecall/internal/adapters/rtc"
	"github.com/dkeye/voicecall/internal/adapters/wsclient"
	"github.com/dkeye/voicecall/internal/app/call"
	"github.com/dkeye/voicecall/internal/config"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
)

// client wires the signaling connection, the media stack and the call
// manager for one local user.
type client struct {
	sig  *wsclient.Client
	mgr  *call.Manager
	sink *call.StatsSink
	out  io.Writer

	ended chan domain.EndReason
}

func newClient(cmd *cobra.Command, cfg *config.ClientConfig) (*client, error) {
	uid, err := domain.ParseUserID(cfg.UserID)
	if err != nil {
		return nil, err
	}
	sources := make([]domain.TrackSource, 0, len(cfg.Sources))
	for _, raw := range cfg.Sources {
		src, err := domain.ParseTrackSource(raw)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	var dev core.CaptureDevice = capture.NewSynthetic(capture.SyntheticOptions{StreamID: string(uid)})
	rtcCfg := rtc.DefaultConfig()
	if real, _ := cmd.Flags().GetBool("devices"); real {
		devices, err := capture.NewDevices(string(uid))
		if err != nil {
			return nil, err
		}
		dev = devices
		rtcCfg.ConfigureMedia = devices.ConfigureMediaEngine
	}
	if len(cfg.ICEServers) > 0 {
		rtcCfg.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	factory, err := rtc.NewFactory(rtcCfg)
	if err != nil {
		return nil, err
	}

	sig, err := wsclient.New(wsclient.Options{
		URL:         cfg.ServerURL,
		UserID:      uid,
		DisplayName: cfg.DisplayName,
		MaxElapsed:  cfg.ReconnectMaxElapsed,
	})
	if err != nil {
		return nil, err
	}

	sink := call.NewStatsSink()
	mgr := call.NewManager(uid, sig, factory, call.NewMediaManager(dev), call.Options{
		DisplayName:    cfg.DisplayName,
		AvatarRef:      cfg.AvatarRef,
		Sources:        sources,
		RingTimeout:    cfg.RingTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
		ReleaseTimeout: cfg.ReleaseTimeout,
		Sink:           sink,
	})

	c := &client{sig: sig, mgr: mgr, sink: sink, out: cmd.OutOrStdout(), ended: make(chan domain.EndReason, 1)}
	mgr.OnStateChange(func(s call.SessionSnapshot) {
		fmt.Fprintf(c.out, "[%s] %s\n", s.State, s.Status())
		if s.State == domain.StateEnded {
			select {
			case c.ended <- s.EndReason:
			default:
			}
		}
	})
	mgr.OnRemoteTrack(func(info call.RemoteTrackInfo) {
		fmt.Fprintf(c.out, "receiving %s from %s\n", info.Kind, info.Peer)
	})
	return c, nil
}

// run starts signaling and the call manager, then runs fn once connected.
// Everything stops when fn returns or ctx is done.
func (c *client) run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.sig.Run(gctx) })
	g.Go(func() error {
		err := c.mgr.Run(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer cancel()
		if err := c.sig.WaitConnected(gctx); err != nil {
			return err
		}
		log.Info().Str("module", "callclient").Str("user", string(c.mgr.Self())).Msg("online")
		return fn(gctx)
	})
	err := g.Wait()
	c.printStats()
	return err
}

// waitEnded blocks until the current call ends.
func (c *client) waitEnded(ctx context.Context) domain.EndReason {
	select {
	case r := <-c.ended:
		return r
	case <-ctx.Done():
		return domain.EndReasonHangup
	}
}

func (c *client) printStats() {
	stats := c.sink.Snapshot()
	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s := stats[id]
		fmt.Fprintf(c.out, "track %s from %s (%s): %d packets, %d bytes\n", id, s.Peer, s.Kind, s.Packets, s.Bytes)
	}
}
