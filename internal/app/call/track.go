package call

import (
	"sync"
	"sync/atomic"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/webrtc/v4"
)

const (
	TrackStateLive int32 = iota
	TrackStateMuted
	TrackStateStopped
)

// Track is a captured track owned by a session.
type Track struct {
	core.LocalTrack
	State int32 // accessed atomically (TrackStateLive/Muted/Stopped)

	stopOnce sync.Once
	stopErr  error
}

func newTrack(lt core.LocalTrack) *Track {
	return &Track{LocalTrack: lt}
}

// SetEnabled pauses or resumes sending without releasing the device.
func (t *Track) SetEnabled(on bool) {
	next := TrackStateMuted
	if on {
		next = TrackStateLive
	}
	for {
		cur := atomic.LoadInt32(&t.State)
		if cur == TrackStateStopped {
			return
		}
		if atomic.CompareAndSwapInt32(&t.State, cur, next) {
			break
		}
	}
	if e, ok := t.LocalTrack.(core.Enabler); ok {
		e.SetEnabled(on)
	}
}

func (t *Track) Enabled() bool {
	return atomic.LoadInt32(&t.State) == TrackStateLive
}

func (t *Track) Stopped() bool {
	return atomic.LoadInt32(&t.State) == TrackStateStopped
}

// Stop releases the device exactly once.
func (t *Track) Stop() error {
	t.stopOnce.Do(func() {
		atomic.StoreInt32(&t.State, TrackStateStopped)
		t.stopErr = t.LocalTrack.Stop()
	})
	return t.stopErr
}

// LocalStream holds the tracks a session captured, at most one per source.
type LocalStream struct {
	mu      sync.Mutex
	tracks  map[domain.TrackSource]*Track
	missing map[domain.TrackSource]error
}

func NewLocalStream(tracks ...core.LocalTrack) *LocalStream {
	s := &LocalStream{
		tracks:  make(map[domain.TrackSource]*Track),
		missing: make(map[domain.TrackSource]error),
	}
	for _, lt := range tracks {
		s.Put(lt)
	}
	return s
}

// Put stores lt under its source. A track already stored there is returned
// so the caller can stop it.
func (s *LocalStream) Put(lt core.LocalTrack) (added, replaced *Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	added = newTrack(lt)
	replaced = s.tracks[lt.Source()]
	s.tracks[lt.Source()] = added
	delete(s.missing, lt.Source())
	return added, replaced
}

func (s *LocalStream) Get(src domain.TrackSource) (*Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tracks[src]
	return t, ok
}

func (s *LocalStream) Remove(src domain.TrackSource) *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tracks[src]
	delete(s.tracks, src)
	return t
}

func (s *LocalStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracks)
}

func (s *LocalStream) Tracks() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Track, 0, len(s.tracks))
	for _, src := range []domain.TrackSource{domain.SourceMicrophone, domain.SourceCamera, domain.SourceDisplay} {
		if t, ok := s.tracks[src]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Outgoing returns what goes on the wire: the microphone and one video
// track, the display taking precedence over the camera.
func (s *LocalStream) Outgoing() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Track
	if t, ok := s.tracks[domain.SourceMicrophone]; ok {
		out = append(out, t)
	}
	if t, ok := s.tracks[domain.SourceDisplay]; ok {
		out = append(out, t)
	} else if t, ok := s.tracks[domain.SourceCamera]; ok {
		out = append(out, t)
	}
	return out
}

// Video returns the video track that should be on the wire, if any.
func (s *LocalStream) Video() webrtc.TrackLocal {
	for _, t := range s.Outgoing() {
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			return t.LocalTrack
		}
	}
	return nil
}

// Missing reports sources that were requested but could not be captured.
func (s *LocalStream) Missing() map[domain.TrackSource]error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.TrackSource]error, len(s.missing))
	for k, v := range s.missing {
		out[k] = v
	}
	return out
}

func (s *LocalStream) markMissing(src domain.TrackSource, err error) {
	s.mu.Lock()
	s.missing[src] = err
	s.mu.Unlock()
}

// SetAudioEnabled flips the enabled flag of every audio track.
func (s *LocalStream) SetAudioEnabled(on bool) {
	for _, t := range s.Tracks() {
		if t.Kind() == webrtc.RTPCodecTypeAudio {
			t.SetEnabled(on)
		}
	}
}
