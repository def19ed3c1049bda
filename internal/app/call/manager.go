// Package call is the client side of a two-party call: a per-user manager
// whose single loop owns the session, its media connection and its tracks.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRingTimeout    = 30 * time.Second
	DefaultConnectTimeout = 20 * time.Second
	DefaultReleaseTimeout = 2 * time.Second
)

type Options struct {
	DisplayName string
	AvatarRef   string
	// Sources captured when calling or accepting. Defaults to the microphone.
	Sources []domain.TrackSource

	RingTimeout    time.Duration
	ConnectTimeout time.Duration
	ReleaseTimeout time.Duration

	Sink   RenderSink
	Policy InvitePolicy
}

func (o Options) withDefaults() Options {
	if len(o.Sources) == 0 {
		o.Sources = []domain.TrackSource{domain.SourceMicrophone}
	}
	if o.RingTimeout <= 0 {
		o.RingTimeout = DefaultRingTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ReleaseTimeout <= 0 {
		o.ReleaseTimeout = DefaultReleaseTimeout
	}
	if o.Sink == nil {
		o.Sink = DiscardSink{}
	}
	if o.Policy == nil {
		o.Policy = BusyPolicy{}
	}
	return o
}

type hookSet struct {
	onIncoming    func(SessionSnapshot)
	onStateChange func(SessionSnapshot)
	onRemoteTrack func(RemoteTrackInfo)
}

// Manager serializes everything that can happen to the local user's call.
type Manager struct {
	self    domain.UserID
	sig     core.Signaler
	factory core.ConnectionFactory
	media   *MediaManager
	opts    Options
	log     zerolog.Logger

	inbox   *inbox
	done    chan struct{}
	running atomic.Bool
	current atomic.Pointer[SessionSnapshot]

	// loop only
	ctx     context.Context
	session *Session

	hookMu sync.RWMutex
	hook   hookSet
}

func NewManager(self domain.UserID, sig core.Signaler, factory core.ConnectionFactory, media *MediaManager, opts Options) *Manager {
	return &Manager{
		self:    self,
		sig:     sig,
		factory: factory,
		media:   media,
		opts:    opts.withDefaults(),
		log:     log.With().Str("module", "call").Str("user", string(self)).Logger(),
		inbox:   newInbox(),
		done:    make(chan struct{}),
		ctx:     context.Background(),
	}
}

func (m *Manager) Self() domain.UserID { return m.self }

// OnIncoming, OnStateChange and OnRemoteTrack run on the loop goroutine and
// must not block on the manager.
func (m *Manager) OnIncoming(fn func(SessionSnapshot)) {
	m.hookMu.Lock()
	m.hook.onIncoming = fn
	m.hookMu.Unlock()
}

func (m *Manager) OnStateChange(fn func(SessionSnapshot)) {
	m.hookMu.Lock()
	m.hook.onStateChange = fn
	m.hookMu.Unlock()
}

func (m *Manager) OnRemoteTrack(fn func(RemoteTrackInfo)) {
	m.hookMu.Lock()
	m.hook.onRemoteTrack = fn
	m.hookMu.Unlock()
}

func (m *Manager) hooks() hookSet {
	m.hookMu.RLock()
	defer m.hookMu.RUnlock()
	return m.hook
}

// Current returns the live session. After release the manager is idle and
// takes new calls, but Current keeps reporting the last call as Ended so the
// end reason stays readable. It reports Idle only before the first call.
func (m *Manager) Current() SessionSnapshot {
	if p := m.current.Load(); p != nil {
		return *p
	}
	return SessionSnapshot{Local: m.self, State: domain.StateIdle}
}

// Run processes events until ctx is done. A live call is hung up on exit.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("call manager already running")
	}
	defer close(m.done)

	envs, unsubscribe := m.sig.Subscribe()
	defer unsubscribe()
	m.ctx = ctx
	m.log.Info().Msg("call manager started")

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case env, ok := <-envs:
			if !ok {
				m.shutdown()
				return domain.ErrClosed
			}
			m.step(envelopeEvent{env: env})
		case <-m.inbox.ready:
			for _, ev := range m.inbox.drain() {
				m.step(ev)
			}
		}
	}
}

func (m *Manager) shutdown() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(m.ctx), m.opts.ReleaseTimeout)
	defer cancel()
	m.ctx = ctx
	m.end(m.session, domain.EndReasonHangup, true)
	m.discardPending()
	m.log.Info().Msg("call manager stopped")
}

// step is the transition function.
func (m *Manager) step(ev event) {
	switch ev := ev.(type) {
	case envelopeEvent:
		m.onEnvelope(ev.env)
	case callCmd:
		ev.done <- m.onCall(ev)
	case acceptCmd:
		ev.done <- m.onAccept(ev)
	case rejectCmd:
		ev.done <- m.onReject()
	case endCmd:
		ev.done <- m.onEnd(ev.reason)
	case muteCmd:
		ev.done <- m.onMute(ev.muted)
	case deafenCmd:
		ev.done <- m.onDeafen(ev.deafened)
	case cameraCmd:
		ev.done <- m.onCamera(ev)
	case shareCmd:
		ev.done <- m.onShare(ev)
	case timeoutEvent:
		m.onTimeout(ev)
	case connStateEvent:
		m.onConnState(ev)
	case localCandidateEvent:
		m.onLocalCandidate(ev)
	case remoteTrackEvent:
		m.onRemoteTrack(ev)
	}
}

func (m *Manager) submit(ctx context.Context, ev event, done <-chan error) error {
	select {
	case <-m.done:
		discard(ev)
		return domain.ErrClosed
	default:
	}
	m.inbox.push(ev)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		m.discardPending()
		return domain.ErrClosed
	}
}

func (m *Manager) discardPending() {
	for _, ev := range m.inbox.drain() {
		discard(ev)
	}
}

// discard releases whatever an unprocessed command carried.
func discard(ev event) {
	switch ev := ev.(type) {
	case callCmd:
		releaseStream(ev.stream)
		ev.done <- domain.ErrClosed
	case acceptCmd:
		releaseStream(ev.stream)
		ev.done <- domain.ErrClosed
	case cameraCmd:
		stopTrack(ev.track)
		ev.done <- domain.ErrClosed
	case shareCmd:
		stopTrack(ev.track)
		ev.done <- domain.ErrClosed
	case rejectCmd:
		ev.done <- domain.ErrClosed
	case endCmd:
		ev.done <- domain.ErrClosed
	case muteCmd:
		ev.done <- domain.ErrClosed
	case deafenCmd:
		ev.done <- domain.ErrClosed
	}
}

func releaseStream(st *LocalStream) {
	if st == nil {
		return
	}
	for _, t := range st.Tracks() {
		_ = t.Stop()
	}
}

func stopTrack(t core.LocalTrack) {
	if t != nil {
		_ = t.Stop()
	}
}

// Call captures local media and invites to.
func (m *Manager) Call(ctx context.Context, to domain.UserID) (SessionSnapshot, error) {
	if to == m.self {
		return SessionSnapshot{}, domain.ErrSelfCall
	}
	if to == "" {
		return SessionSnapshot{}, domain.ErrUserIDEmpty
	}
	if cur := m.Current(); cur.State.Live() {
		return cur, domain.ErrBusy
	}
	stream, err := m.media.Acquire(ctx, m.opts.Sources...)
	if err != nil {
		return SessionSnapshot{}, fmt.Errorf("call %s: %w", to, err)
	}
	done := make(chan error, 1)
	if err := m.submit(ctx, callCmd{ctx: ctx, to: to, stream: stream, done: done}, done); err != nil {
		return m.Current(), err
	}
	return m.Current(), nil
}

// Accept answers the ringing call. When no media can be captured the call
// is ended instead.
func (m *Manager) Accept(ctx context.Context) error {
	cur := m.Current()
	if cur.State != domain.StateRingingIn {
		return fmt.Errorf("accept in %s: %w", cur.State, domain.ErrInvalidTransition)
	}
	stream, err := m.media.Acquire(ctx, m.opts.Sources...)
	if err != nil {
		reason := domain.EndReasonPermissionDenied
		if !errors.Is(err, domain.ErrPermissionDenied) {
			reason = domain.EndReasonConnectionFailure
		}
		done := make(chan error, 1)
		_ = m.submit(ctx, endCmd{reason: reason, done: done}, done)
		return fmt.Errorf("accept: %w", err)
	}
	done := make(chan error, 1)
	return m.submit(ctx, acceptCmd{ctx: ctx, id: cur.ID, stream: stream, done: done}, done)
}

func (m *Manager) Reject(ctx context.Context) error {
	done := make(chan error, 1)
	return m.submit(ctx, rejectCmd{done: done}, done)
}

// End hangs up. Ending twice, or after the call already ended, is a no-op.
func (m *Manager) End(ctx context.Context) error {
	done := make(chan error, 1)
	return m.submit(ctx, endCmd{reason: domain.EndReasonHangup, done: done}, done)
}

func (m *Manager) SetMuted(ctx context.Context, muted bool) error {
	done := make(chan error, 1)
	return m.submit(ctx, muteCmd{muted: muted, done: done}, done)
}

func (m *Manager) SetDeafened(ctx context.Context, deafened bool) error {
	done := make(chan error, 1)
	return m.submit(ctx, deafenCmd{deafened: deafened, done: done}, done)
}

// ToggleCamera enables or disables the camera, capturing one first if the
// session has none.
func (m *Manager) ToggleCamera(ctx context.Context) error {
	cur := m.Current()
	if !cur.State.Live() {
		return domain.ErrNoSession
	}
	var track core.LocalTrack
	if !cur.HasCamera {
		t, err := m.media.AcquireOne(ctx, domain.SourceCamera)
		if err != nil {
			return err
		}
		track = t
	}
	done := make(chan error, 1)
	return m.submit(ctx, cameraCmd{id: cur.ID, track: track, done: done}, done)
}

// ToggleScreenShare starts sharing the display or reverts to the camera.
func (m *Manager) ToggleScreenShare(ctx context.Context) error {
	cur := m.Current()
	if !cur.State.Live() {
		return domain.ErrNoSession
	}
	var track core.LocalTrack
	if !cur.Sharing {
		t, err := m.media.AcquireOne(ctx, domain.SourceDisplay)
		if err != nil {
			return err
		}
		track = t
	}
	done := make(chan error, 1)
	return m.submit(ctx, shareCmd{id: cur.ID, track: track, done: done}, done)
}

func (m *Manager) onEnvelope(env domain.Envelope) {
	if env.Type == domain.EnvelopeInvite {
		m.onInvite(env)
		return
	}
	s := m.session
	if s == nil || s.Remote != env.From || s.ID != env.CallID {
		m.log.Debug().Str("type", string(env.Type)).Str("from", string(env.From)).Str("call_id", string(env.CallID)).Msg("envelope for no session, ignored")
		return
	}
	switch env.Type {
	case domain.EnvelopeAccept:
		if s.State == domain.StateRingingOut {
			m.enterConnecting(s)
		}
	case domain.EnvelopeReject:
		if s.State != domain.StateRingingOut {
			return
		}
		var p domain.RejectPayload
		_ = env.Decode(&p)
		if p.Reason == domain.RejectBusy {
			m.end(s, domain.EndReasonBusy, false)
		} else {
			m.end(s, domain.EndReasonDeclined, false)
		}
	case domain.EnvelopeEnd:
		m.end(s, domain.EndReasonRemoteHangup, false)
	case domain.EnvelopeOffer, domain.EnvelopeAnswer:
		if err := m.handleRemoteDescription(s, env); err != nil {
			m.fail(s, err)
		}
	case domain.EnvelopeCandidate:
		m.addRemoteCandidate(s, env)
	case domain.EnvelopeRenegotiate:
		m.onRenegotiateRequest(s)
	}
}

func (m *Manager) onInvite(env domain.Envelope) {
	if env.CallID == "" {
		m.log.Warn().Str("from", string(env.From)).Msg("invite without call id, ignored")
		return
	}
	var p domain.InvitePayload
	if len(env.Payload) > 0 {
		if err := env.Decode(&p); err != nil {
			m.log.Debug().Err(err).Msg("invite payload")
		}
	}
	if p.DisplayName == "" {
		p.DisplayName = string(env.From)
	}

	s := m.session
	switch {
	case s == nil:
		s = newSession(m.ctx, env.CallID, m.self, env.From, domain.DirectionCallee, domain.StateRingingIn, m.opts.Sink)
		s.RemoteDisplayName = p.DisplayName
		s.RemoteAvatarRef = p.AvatarRef
		m.session = s
		m.arm(s, m.opts.RingTimeout)
		m.publish(s)
		m.log.Info().Str("call_id", string(s.ID)).Str("peer", string(s.Remote)).Msg("incoming call")
		if fn := m.hooks().onIncoming; fn != nil {
			fn(s.snapshot())
		}

	case s.Remote == env.From && s.ID == env.CallID:
		m.log.Debug().Str("call_id", string(s.ID)).Msg("duplicate invite")

	case s.Remote == env.From && s.State == domain.StateRingingOut:
		// Both called each other. The lower user id's invite wins.
		if domain.IsOfferer(m.self, env.From) {
			m.log.Info().Str("call_id", string(s.ID)).Str("peer", string(s.Remote)).Msg("invite glare, keeping own invite")
			return
		}
		m.log.Info().Str("call_id", string(env.CallID)).Str("peer", string(s.Remote)).Msg("invite glare, adopting peer invite")
		s.ID = env.CallID
		s.Direction = domain.DirectionCallee
		s.RemoteDisplayName = p.DisplayName
		s.RemoteAvatarRef = p.AvatarRef
		if err := m.send(s, domain.EnvelopeAccept, nil); err != nil {
			m.fail(s, err)
			return
		}
		m.enterConnecting(s)

	default:
		reason := m.opts.Policy.OnConcurrentInvite(s.snapshot(), env.From)
		m.log.Info().Str("from", string(env.From)).Str("reason", string(reason)).Msg("rejecting concurrent invite")
		reject, err := domain.NewEnvelope(domain.EnvelopeReject, env.CallID, m.self, env.From, domain.RejectPayload{Reason: reason})
		if err == nil {
			err = m.sig.Send(m.ctx, reject)
		}
		if err != nil {
			m.log.Warn().Err(err).Msg("send reject")
		}
	}
}

func (m *Manager) onCall(cmd callCmd) error {
	if err := cmd.ctx.Err(); err != nil {
		releaseStream(cmd.stream)
		return err
	}
	if m.session != nil {
		releaseStream(cmd.stream)
		return domain.ErrBusy
	}
	s := newSession(m.ctx, domain.NewCallID(), m.self, cmd.to, domain.DirectionCaller, domain.StateRingingOut, m.opts.Sink)
	s.Stream = cmd.stream
	invite := domain.InvitePayload{DisplayName: m.opts.DisplayName, AvatarRef: m.opts.AvatarRef}
	if err := m.send(s, domain.EnvelopeInvite, invite); err != nil {
		s.cancel()
		releaseStream(cmd.stream)
		return err
	}
	m.session = s
	m.arm(s, m.opts.RingTimeout)
	m.publish(s)
	m.log.Info().Str("call_id", string(s.ID)).Str("peer", string(s.Remote)).Int("tracks", s.Stream.Len()).Msg("calling")
	return nil
}

func (m *Manager) onAccept(cmd acceptCmd) error {
	s := m.session
	if s == nil || s.ID != cmd.id || s.State != domain.StateRingingIn {
		releaseStream(cmd.stream)
		return fmt.Errorf("accept: %w", domain.ErrInvalidTransition)
	}
	s.Stream = cmd.stream
	s.Stream.SetAudioEnabled(!s.muted)
	if err := m.send(s, domain.EnvelopeAccept, nil); err != nil {
		m.end(s, domain.EndReasonUnreachable, false)
		return err
	}
	m.enterConnecting(s)
	return nil
}

func (m *Manager) onReject() error {
	s := m.session
	if s == nil || s.State != domain.StateRingingIn {
		return fmt.Errorf("reject: %w", domain.ErrInvalidTransition)
	}
	if err := m.send(s, domain.EnvelopeReject, domain.RejectPayload{Reason: domain.RejectDeclined}); err != nil {
		m.log.Warn().Err(err).Msg("send reject")
	}
	m.end(s, domain.EndReasonDeclined, false)
	return nil
}

func (m *Manager) onEnd(reason domain.EndReason) error {
	m.end(m.session, reason, true)
	return nil
}

func (m *Manager) onTimeout(ev timeoutEvent) {
	s := m.session
	if s == nil || s.ID != ev.id || s.State != ev.state {
		return
	}
	m.log.Info().Str("call_id", string(s.ID)).Stringer("state", s.State).Msg("timed out")
	switch s.State {
	case domain.StateRingingOut, domain.StateConnecting:
		m.end(s, domain.EndReasonTimeout, true)
	case domain.StateRingingIn:
		m.end(s, domain.EndReasonMissed, false)
	}
}

func (m *Manager) enterConnecting(s *Session) {
	s.State = domain.StateConnecting
	m.arm(s, m.opts.ConnectTimeout)
	m.publish(s)
	if err := m.createConnection(s); err != nil {
		m.fail(s, err)
	}
}

func (m *Manager) fail(s *Session, err error) {
	reason := domain.EndReasonNegotiationFailure
	if errors.Is(err, domain.ErrConnectionFailure) {
		reason = domain.EndReasonConnectionFailure
	}
	m.log.Error().Err(err).Str("call_id", string(s.ID)).Msg("call failed")
	m.end(s, reason, true)
}

// end moves s to Ended after releasing everything it owns. It is a no-op
// for a session that already ended.
func (m *Manager) end(s *Session, reason domain.EndReason, notify bool) {
	if s == nil || s.State == domain.StateEnded {
		return
	}
	s.stopTimer()
	if notify {
		if err := m.send(s, domain.EnvelopeEnd, nil); err != nil {
			m.log.Warn().Err(err).Str("call_id", string(s.ID)).Msg("send end")
		}
	}
	if err := m.release(s); err != nil {
		m.log.Warn().Err(err).Str("call_id", string(s.ID)).Msg("release")
	}
	s.State = domain.StateEnded
	s.EndReason = reason
	s.EndedAt = time.Now()
	if m.session == s {
		m.session = nil
	}
	m.publish(s)
	m.log.Info().Str("call_id", string(s.ID)).Str("peer", string(s.Remote)).Str("reason", string(reason)).Msg("call ended")
}

// release closes the connection and stops every track in parallel, bounded
// by the release timeout.
func (m *Manager) release(s *Session) error {
	if s.released {
		return nil
	}
	s.released = true
	defer s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ReleaseTimeout)
	defer cancel()

	var g errgroup.Group
	if s.conn != nil {
		g.Go(s.conn.Close)
	}
	if s.Stream != nil {
		for _, t := range s.Stream.Tracks() {
			g.Go(t.Stop)
		}
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		s.cancel()
		if werr := s.render.wait(ctx); werr != nil {
			m.log.Debug().Str("call_id", string(s.ID)).Msg("render pumps still draining")
		}
		return err
	case <-ctx.Done():
		return domain.ErrReleaseTimeout
	}
}

func (m *Manager) arm(s *Session, d time.Duration) {
	s.stopTimer()
	id, state := s.ID, s.State
	s.timer = time.AfterFunc(d, func() {
		m.inbox.push(timeoutEvent{id: id, state: state})
	})
}

func (m *Manager) send(s *Session, typ domain.EnvelopeType, payload any) error {
	env, err := domain.NewEnvelope(typ, s.ID, m.self, s.Remote, payload)
	if err != nil {
		return err
	}
	if err := m.sig.Send(m.ctx, env); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}
	return nil
}

func (m *Manager) publish(s *Session) {
	snap := s.snapshot()
	prev := m.current.Swap(&snap)
	if prev != nil && prev.ID == snap.ID && prev.State == snap.State {
		return
	}
	if fn := m.hooks().onStateChange; fn != nil {
		fn(snap)
	}
}
