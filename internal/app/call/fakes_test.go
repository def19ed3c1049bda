package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/voicecall/internal/app/relay"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

// fakeTrack is a captured track that never produces media.
type fakeTrack struct {
	id    string
	kind  webrtc.RTPCodecType
	src   domain.TrackSource
	block chan struct{}

	stops   atomic.Int32
	enabled atomic.Bool
}

func newFakeTrack(src domain.TrackSource, id string) *fakeTrack {
	kind := webrtc.RTPCodecTypeAudio
	if src.IsVideo() {
		kind = webrtc.RTPCodecTypeVideo
	}
	t := &fakeTrack{id: id, kind: kind, src: src}
	t.enabled.Store(true)
	return t
}

func (t *fakeTrack) Bind(webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return webrtc.RTPCodecParameters{}, nil
}
func (t *fakeTrack) Unbind(webrtc.TrackLocalContext) error { return nil }
func (t *fakeTrack) ID() string                            { return t.id }
func (t *fakeTrack) RID() string                           { return "" }
func (t *fakeTrack) StreamID() string                      { return "fake" }
func (t *fakeTrack) Kind() webrtc.RTPCodecType             { return t.kind }
func (t *fakeTrack) Source() domain.TrackSource            { return t.src }
func (t *fakeTrack) SetEnabled(on bool)                    { t.enabled.Store(on) }

func (t *fakeTrack) Stop() error {
	t.stops.Add(1)
	if t.block != nil {
		<-t.block
	}
	return nil
}

// fakeCapture hands out fake tracks and can refuse sources.
type fakeCapture struct {
	mu     sync.Mutex
	deny   map[domain.TrackSource]error
	block  chan struct{}
	tracks []*fakeTrack
	seq    int
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{deny: make(map[domain.TrackSource]error)}
}

func (c *fakeCapture) refuse(src domain.TrackSource, err error) {
	c.mu.Lock()
	c.deny[src] = err
	c.mu.Unlock()
}

func (c *fakeCapture) acquire(src domain.TrackSource) (core.LocalTrack, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.deny[src]; err != nil {
		return nil, err
	}
	c.seq++
	t := newFakeTrack(src, fmt.Sprintf("%s-%d", src, c.seq))
	t.block = c.block
	c.tracks = append(c.tracks, t)
	return t, nil
}

func (c *fakeCapture) AcquireAudio(context.Context) (core.LocalTrack, error) {
	return c.acquire(domain.SourceMicrophone)
}

func (c *fakeCapture) AcquireVideo(context.Context) (core.LocalTrack, error) {
	return c.acquire(domain.SourceCamera)
}

func (c *fakeCapture) AcquireDisplay(context.Context) (core.LocalTrack, error) {
	return c.acquire(domain.SourceDisplay)
}

func (c *fakeCapture) captured(src domain.TrackSource) []*fakeTrack {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTrack
	for _, t := range c.tracks {
		if t.src == src {
			out = append(out, t)
		}
	}
	return out
}

func (c *fakeCapture) all() []*fakeTrack {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeTrack(nil), c.tracks...)
}

// fakeRemoteTrack emits a packet every couple of milliseconds until closed.
type fakeRemoteTrack struct {
	id     string
	kind   webrtc.RTPCodecType
	closed chan struct{}
	once   sync.Once
	seq    uint16
}

func newFakeRemoteTrack(id string, kind webrtc.RTPCodecType) *fakeRemoteTrack {
	return &fakeRemoteTrack{id: id, kind: kind, closed: make(chan struct{})}
}

func (t *fakeRemoteTrack) ID() string                { return t.id }
func (t *fakeRemoteTrack) Kind() webrtc.RTPCodecType { return t.kind }

func (t *fakeRemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	select {
	case <-t.closed:
		return nil, nil, io.EOF
	case <-time.After(2 * time.Millisecond):
	}
	t.seq++
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: t.seq}, Payload: []byte{1, 2, 3}}, nil, nil
}

func (t *fakeRemoteTrack) close() { t.once.Do(func() { close(t.closed) }) }

type fakeSender struct {
	mu       sync.Mutex
	track    webrtc.TrackLocal
	replaced int
}

func (s *fakeSender) Track() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

func (s *fakeSender) ReplaceTrack(t webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track = t
	s.replaced++
	return nil
}

// fakeNet pairs the two connections created for the same call id. An
// exchange completes when an offerer applies an answer: both sides then see
// the tracks the other side sends and report Connected once.
type fakeNet struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func newFakeNet() *fakeNet { return &fakeNet{} }

type fakeFactory struct {
	net   *fakeNet
	owner domain.UserID
}

func (f fakeFactory) NewConnection(id domain.CallID) (core.MediaConnection, error) {
	c := &fakeConn{net: f.net, owner: f.owner, id: id, delivered: make(map[*fakeSender]bool)}
	f.net.mu.Lock()
	f.net.conns = append(f.net.conns, c)
	f.net.mu.Unlock()
	return c, nil
}

func (n *fakeNet) factory(owner domain.UserID) core.ConnectionFactory {
	return fakeFactory{net: n, owner: owner}
}

func (n *fakeNet) connsOf(owner domain.UserID) []*fakeConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*fakeConn
	for _, c := range n.conns {
		if c.owner == owner {
			out = append(out, c)
		}
	}
	return out
}

func (n *fakeNet) peerOf(c *fakeConn) *fakeConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, o := range n.conns {
		if o != c && o.id == c.id && o.owner != c.owner {
			return o
		}
	}
	return nil
}

func (n *fakeNet) complete(c *fakeConn) {
	peer := n.peerOf(c)
	if peer == nil {
		return
	}
	for _, pair := range [][2]*fakeConn{{c, peer}, {peer, c}} {
		from, to := pair[0], pair[1]
		for _, rt := range from.undelivered() {
			to.receive(rt)
		}
	}
	c.markConnected()
	peer.markConnected()
}

func (n *fakeNet) fail(id domain.CallID) {
	n.mu.Lock()
	var targets []*fakeConn
	for _, c := range n.conns {
		if c.id == id {
			targets = append(targets, c)
		}
	}
	n.mu.Unlock()
	for _, c := range targets {
		c.fireState(webrtc.PeerConnectionStateFailed)
	}
}

type fakeConn struct {
	net   *fakeNet
	owner domain.UserID
	id    domain.CallID

	mu          sync.Mutex
	ctx         context.Context
	sigState    webrtc.SignalingState
	hasRemote   bool
	senders     []*fakeSender
	delivered   map[*fakeSender]bool
	recvOnly    []webrtc.RTPCodecType
	applied     []string
	incoming    []*fakeRemoteTrack
	offers      int
	answers     int
	closes      int
	connected   bool
	candidateNo int

	onCandidate func(webrtc.ICECandidateInit)
	onTrack     func(context.Context, core.RemoteTrack)
	onState     func(webrtc.PeerConnectionState)
}

func (c *fakeConn) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.sigState = webrtc.SignalingStateStable
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closes++
	if c.closes > 1 {
		c.mu.Unlock()
		return nil
	}
	incoming := c.incoming
	c.mu.Unlock()
	for _, rt := range incoming {
		rt.close()
	}
	if peer := c.net.peerOf(c); peer != nil {
		peer.mu.Lock()
		for _, rt := range peer.incoming {
			rt.close()
		}
		peer.mu.Unlock()
	}
	c.fireState(webrtc.PeerConnectionStateClosed)
	return nil
}

func (c *fakeConn) AddLocalTrack(track webrtc.TrackLocal) (core.TrackSender, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &fakeSender{track: track}
	c.senders = append(c.senders, s)
	return s, nil
}

func (c *fakeConn) AddRecvOnly(kind webrtc.RTPCodecType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recvOnly = append(c.recvOnly, kind)
	return nil
}

func (c *fakeConn) CreateOffer() (*webrtc.SessionDescription, error) {
	c.mu.Lock()
	if c.sigState != webrtc.SignalingStateStable {
		c.mu.Unlock()
		return nil, fmt.Errorf("create offer in %s", c.sigState)
	}
	c.sigState = webrtc.SignalingStateHaveLocalOffer
	c.offers++
	desc := &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("fake-offer %s %d", c.owner, c.offers)}
	c.mu.Unlock()
	c.emitCandidate()
	return desc, nil
}

func (c *fakeConn) CreateAnswer() (*webrtc.SessionDescription, error) {
	c.mu.Lock()
	if c.sigState != webrtc.SignalingStateHaveRemoteOffer {
		c.mu.Unlock()
		return nil, fmt.Errorf("create answer in %s", c.sigState)
	}
	c.sigState = webrtc.SignalingStateStable
	c.answers++
	desc := &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("fake-answer %s %d", c.owner, c.answers)}
	c.mu.Unlock()
	c.emitCandidate()
	return desc, nil
}

func (c *fakeConn) SetRemoteDescription(d webrtc.SessionDescription) error {
	if d.SDP == "" || strings.HasPrefix(d.SDP, "garbage") {
		return errors.New("malformed description")
	}
	c.mu.Lock()
	switch d.Type {
	case webrtc.SDPTypeOffer:
		if c.sigState != webrtc.SignalingStateStable {
			c.mu.Unlock()
			return fmt.Errorf("remote offer in %s", c.sigState)
		}
		c.sigState = webrtc.SignalingStateHaveRemoteOffer
		c.hasRemote = true
		c.mu.Unlock()
		return nil
	case webrtc.SDPTypeAnswer:
		if c.sigState != webrtc.SignalingStateHaveLocalOffer {
			c.mu.Unlock()
			return fmt.Errorf("remote answer in %s", c.sigState)
		}
		c.sigState = webrtc.SignalingStateStable
		c.hasRemote = true
		c.mu.Unlock()
		c.net.complete(c)
		return nil
	default:
		c.mu.Unlock()
		return fmt.Errorf("unsupported description %s", d.Type)
	}
}

func (c *fakeConn) HasRemoteDescription() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasRemote
}

func (c *fakeConn) SignalingState() webrtc.SignalingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sigState
}

func (c *fakeConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasRemote {
		return errors.New("remote description not set")
	}
	c.applied = append(c.applied, ci.Candidate)
	return nil
}

func (c *fakeConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onCandidate = fn
	c.mu.Unlock()
}

func (c *fakeConn) OnTrack(fn func(context.Context, core.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *fakeConn) OnStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *fakeConn) emitCandidate() {
	c.mu.Lock()
	c.candidateNo++
	ci := webrtc.ICECandidateInit{Candidate: fmt.Sprintf("candidate:%s-%d", c.owner, c.candidateNo)}
	fn := c.onCandidate
	c.mu.Unlock()
	if fn != nil {
		fn(ci)
	}
}

func (c *fakeConn) undelivered() []*fakeRemoteTrack {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeRemoteTrack
	for _, s := range c.senders {
		t := s.Track()
		if c.delivered[s] || t == nil {
			continue
		}
		c.delivered[s] = true
		out = append(out, newFakeRemoteTrack(t.ID(), t.Kind()))
	}
	return out
}

func (c *fakeConn) receive(rt *fakeRemoteTrack) {
	c.mu.Lock()
	c.incoming = append(c.incoming, rt)
	fn, ctx := c.onTrack, c.ctx
	c.mu.Unlock()
	if fn != nil {
		fn(ctx, rt)
	}
}

func (c *fakeConn) markConnected() {
	c.mu.Lock()
	already := c.connected
	c.connected = true
	c.mu.Unlock()
	if !already {
		c.fireState(webrtc.PeerConnectionStateConnected)
	}
}

func (c *fakeConn) fireState(st webrtc.PeerConnectionState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (c *fakeConn) stats() (offers, closes int, applied []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offers, c.closes, append([]string(nil), c.applied...)
}

func (c *fakeConn) videoSender() *fakeSender {
	c.mu.Lock()
	senders := append([]*fakeSender(nil), c.senders...)
	c.mu.Unlock()
	for _, s := range senders {
		if t := s.Track(); t != nil && t.Kind() == webrtc.RTPCodecTypeVideo {
			return s
		}
	}
	return nil
}

// fakeSignaler is both the client signaler and the channel the relay
// delivers to. Sends can be held back to line up races.
type fakeSignaler struct {
	self  domain.UserID
	relay *relay.Relay
	in    chan domain.Envelope

	mu      sync.Mutex
	sent    []domain.Envelope
	held    bool
	pending []domain.Envelope
}

func newFakeSignaler(self domain.UserID, r *relay.Relay) *fakeSignaler {
	s := &fakeSignaler{self: self, relay: r, in: make(chan domain.Envelope, 256)}
	r.Join(self, s)
	return s
}

func (s *fakeSignaler) ID() string { return "chan-" + string(s.self) }

func (s *fakeSignaler) TrySend(f core.Frame) error {
	var env domain.Envelope
	if err := json.Unmarshal(f, &env); err != nil {
		return err
	}
	select {
	case s.in <- env:
		return nil
	default:
		return domain.ErrBackpressure
	}
}

func (s *fakeSignaler) Close() {}

func (s *fakeSignaler) Send(_ context.Context, env domain.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, env)
	if s.held {
		s.pending = append(s.pending, env)
		return nil
	}
	_, err := s.relay.Relay(env)
	return err
}

func (s *fakeSignaler) Subscribe() (<-chan domain.Envelope, func()) {
	return s.in, func() {}
}

func (s *fakeSignaler) hold() {
	s.mu.Lock()
	s.held = true
	s.mu.Unlock()
}

func (s *fakeSignaler) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = false
	for _, env := range s.pending {
		_, _ = s.relay.Relay(env)
	}
	s.pending = nil
}

func (s *fakeSignaler) sentOf(typ domain.EnvelopeType) []domain.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Envelope
	for _, env := range s.sent {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func (s *fakeSignaler) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// next waits for the next envelope of typ delivered to this signaler.
func (s *fakeSignaler) next(t *testing.T, typ domain.EnvelopeType) domain.Envelope {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case env := <-s.in:
			if env.Type == typ {
				return env
			}
		case <-timeout:
			t.Fatalf("no %s envelope for %s", typ, s.self)
			return domain.Envelope{}
		}
	}
}

func (s *fakeSignaler) send(t *testing.T, typ domain.EnvelopeType, id domain.CallID, to domain.UserID, payload any) {
	t.Helper()
	env, err := domain.NewEnvelope(typ, id, s.self, to, payload)
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), env))
}

type harness struct {
	relay *relay.Relay
	net   *fakeNet
}

func newHarness() *harness {
	return &harness{relay: relay.New(relay.NewRegistry(), nil), net: newFakeNet()}
}

type peer struct {
	id   domain.UserID
	m    *Manager
	sig  *fakeSignaler
	cap  *fakeCapture
	sink *StatsSink
}

func (h *harness) peer(t *testing.T, id domain.UserID, opts Options, setup ...func(*fakeCapture)) *peer {
	t.Helper()
	p := &peer{
		id:   id,
		sig:  newFakeSignaler(id, h.relay),
		cap:  newFakeCapture(),
		sink: NewStatsSink(),
	}
	for _, fn := range setup {
		fn(p.cap)
	}
	opts.Sink = p.sink
	if opts.DisplayName == "" {
		opts.DisplayName = strings.ToUpper(string(id[:1])) + string(id[1:])
	}
	p.m = NewManager(id, p.sig, h.net.factory(id), NewMediaManager(p.cap), opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return p
}

// raw joins id to the relay without a manager; the test drives it.
func (h *harness) raw(id domain.UserID) *fakeSignaler {
	return newFakeSignaler(id, h.relay)
}

func waitState(t *testing.T, p *peer, state domain.CallState) SessionSnapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return p.m.Current().State == state
	}, 2*time.Second, 5*time.Millisecond, "%s never reached %s (now %s)", p.id, state, p.m.Current().State)
	return p.m.Current()
}

// connect runs a full call from a to b and waits until both are active.
func connect(t *testing.T, a, b *peer) {
	t.Helper()
	_, err := a.m.Call(context.Background(), b.id)
	require.NoError(t, err)
	waitState(t, b, domain.StateRingingIn)
	require.NoError(t, b.m.Accept(context.Background()))
	waitState(t, a, domain.StateActive)
	waitState(t, b, domain.StateActive)
}
