package call

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// RenderSink consumes remote media. Implementations must be safe for
// concurrent use: every remote track is pumped from its own goroutine.
type RenderSink interface {
	WriteRTP(peer domain.UserID, trackID string, kind webrtc.RTPCodecType, pkt *rtp.Packet) error
}

// DiscardSink drops everything.
type DiscardSink struct{}

func (DiscardSink) WriteRTP(domain.UserID, string, webrtc.RTPCodecType, *rtp.Packet) error {
	return nil
}

// StatsSink counts packets and payload bytes per track.
type StatsSink struct {
	mu     sync.Mutex
	tracks map[string]*TrackStats
}

type TrackStats struct {
	Peer    domain.UserID
	Kind    webrtc.RTPCodecType
	Packets int
	Bytes   int
}

func NewStatsSink() *StatsSink {
	return &StatsSink{tracks: make(map[string]*TrackStats)}
}

func (s *StatsSink) WriteRTP(peer domain.UserID, trackID string, kind webrtc.RTPCodecType, pkt *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tracks[trackID]
	if !ok {
		st = &TrackStats{Peer: peer, Kind: kind}
		s.tracks[trackID] = st
	}
	st.Packets++
	st.Bytes += len(pkt.Payload)
	return nil
}

// Packets returns the number of packets rendered for kind.
func (s *StatsSink) Packets(kind webrtc.RTPCodecType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.tracks {
		if st.Kind == kind {
			n += st.Packets
		}
	}
	return n
}

func (s *StatsSink) Snapshot() map[string]TrackStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]TrackStats, len(s.tracks))
	for id, st := range s.tracks {
		out[id] = *st
	}
	return out
}

// renderSet pumps every remote track of one session into the sink.
type renderSet struct {
	peer     domain.UserID
	sink     RenderSink
	deafened atomic.Bool

	wg sync.WaitGroup
}

func newRenderSet(peer domain.UserID, sink RenderSink) *renderSet {
	if sink == nil {
		sink = DiscardSink{}
	}
	return &renderSet{peer: peer, sink: sink}
}

func (r *renderSet) setDeafened(on bool) { r.deafened.Store(on) }

func (r *renderSet) start(ctx context.Context, track core.RemoteTrack) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(ctx, track)
	}()
}

// loop reads RTP packets until the track ends. Audio is dropped while deafened.
func (r *renderSet) loop(ctx context.Context, track core.RemoteTrack) {
	logger := log.With().Str("module", "call").Str("peer", string(r.peer)).Str("track", track.ID()).Logger()
	kind := track.Kind()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("render ctx done")
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug().Msg("remote track ended")
			} else {
				logger.Warn().Err(err).Msg("remote track read error, stopping")
			}
			return
		}
		if kind == webrtc.RTPCodecTypeAudio && r.deafened.Load() {
			continue
		}
		if err := r.sink.WriteRTP(r.peer, track.ID(), kind, pkt); err != nil {
			logger.Error().Err(err).Msg("render write error, stopping")
			return
		}
	}
}

// wait blocks until every pump exited or ctx expires.
func (r *renderSet) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
