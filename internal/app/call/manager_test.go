package call

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voicecall/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

func TestAcceptedCallBecomesActiveAndRenders(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{})
	bob := h.peer(t, "bob", Options{})

	var (
		mu       sync.Mutex
		incoming []SessionSnapshot
	)
	bob.m.OnIncoming(func(s SessionSnapshot) {
		mu.Lock()
		incoming = append(incoming, s)
		mu.Unlock()
	})

	snap, err := alice.m.Call(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, domain.StateRingingOut, snap.State)
	assert.Equal(t, domain.DirectionCaller, snap.Direction)

	ringing := waitState(t, bob, domain.StateRingingIn)
	assert.Equal(t, snap.ID, ringing.ID)
	assert.Equal(t, domain.DirectionCallee, ringing.Direction)
	assert.Equal(t, "Alice", ringing.RemoteDisplayName)
	mu.Lock()
	require.Len(t, incoming, 1)
	mu.Unlock()

	require.NoError(t, bob.m.Accept(context.Background()))
	a := waitState(t, alice, domain.StateActive)
	b := waitState(t, bob, domain.StateActive)
	assert.Equal(t, 1, a.Exchanges)
	assert.Equal(t, 1, b.Exchanges)
	assert.Equal(t, a.ID, b.ID)

	require.Eventually(t, func() bool {
		return bob.sink.Packets(webrtc.RTPCodecTypeAudio) > 0 && alice.sink.Packets(webrtc.RTPCodecTypeAudio) > 0
	}, 2*time.Second, 5*time.Millisecond)

	assert.Len(t, h.net.connsOf("alice"), 1)
	assert.Len(t, h.net.connsOf("bob"), 1)
	assert.NotEmpty(t, alice.sig.sentOf(domain.EnvelopeCandidate))
	assert.Len(t, alice.sig.sentOf(domain.EnvelopeOffer), 1)
	assert.Empty(t, bob.sig.sentOf(domain.EnvelopeOffer))
}

func TestRejectEndsCallerWithoutConnection(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{})
	bob := h.peer(t, "bob", Options{})

	_, err := alice.m.Call(context.Background(), "bob")
	require.NoError(t, err)
	waitState(t, bob, domain.StateRingingIn)
	require.NoError(t, bob.m.Reject(context.Background()))

	ended := waitState(t, alice, domain.StateEnded)
	assert.Equal(t, domain.EndReasonDeclined, ended.EndReason)
	assert.Equal(t, "call declined", ended.Status())
	assert.False(t, ended.HasConnection)
	assert.Empty(t, h.net.connsOf("alice"))
	assert.Empty(t, h.net.connsOf("bob"))

	for _, tr := range alice.cap.all() {
		assert.EqualValues(t, 1, tr.stops.Load(), tr.id)
	}
	assert.Equal(t, domain.EndReasonDeclined, bob.m.Current().EndReason)
	assert.Empty(t, alice.sig.sentOf(domain.EnvelopeEnd))
}

func TestCameraMidCallRenegotiates(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{})
	bob := h.peer(t, "bob", Options{})

	var (
		mu    sync.Mutex
		kinds []webrtc.RTPCodecType
	)
	bob.m.OnRemoteTrack(func(info RemoteTrackInfo) {
		mu.Lock()
		kinds = append(kinds, info.Kind)
		mu.Unlock()
	})

	connect(t, alice, bob)
	require.Eventually(t, func() bool {
		return bob.sink.Packets(webrtc.RTPCodecTypeAudio) > 0
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, alice.m.ToggleCamera(context.Background()))

	require.Eventually(t, func() bool {
		return bob.sink.Packets(webrtc.RTPCodecTypeVideo) > 0
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return alice.m.Current().Exchanges == 2 && bob.m.Current().Exchanges == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, domain.StateActive, alice.m.Current().State)
	assert.Equal(t, domain.StateActive, bob.m.Current().State)
	assert.True(t, alice.m.Current().CameraOn)

	audio := bob.sink.Packets(webrtc.RTPCodecTypeAudio)
	require.Eventually(t, func() bool {
		return bob.sink.Packets(webrtc.RTPCodecTypeAudio) > audio
	}, 2*time.Second, 5*time.Millisecond, "audio stopped after renegotiation")

	mu.Lock()
	assert.ElementsMatch(t, []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo}, kinds)
	mu.Unlock()

	// Toggling an existing camera only flips its enabled flag.
	offers := len(alice.sig.sentOf(domain.EnvelopeOffer))
	require.NoError(t, alice.m.ToggleCamera(context.Background()))
	assert.False(t, alice.m.Current().CameraOn)
	cams := alice.cap.captured(domain.SourceCamera)
	require.Len(t, cams, 1)
	assert.False(t, cams[0].enabled.Load())
	assert.Len(t, alice.sig.sentOf(domain.EnvelopeOffer), offers)
}

func TestScreenShareReplacesVideoInPlace(t *testing.T) {
	h := newHarness()
	sources := Options{Sources: []domain.TrackSource{domain.SourceMicrophone, domain.SourceCamera}}
	alice := h.peer(t, "alice", sources)
	bob := h.peer(t, "bob", Options{})
	connect(t, alice, bob)

	conns := h.net.connsOf("alice")
	require.Len(t, conns, 1)
	conn := conns[0]
	offersBefore, _, _ := conn.stats()
	sender := conn.videoSender()
	require.NotNil(t, sender)
	cam := alice.cap.captured(domain.SourceCamera)[0]
	assert.Equal(t, cam.ID(), sender.Track().ID())

	require.NoError(t, alice.m.ToggleScreenShare(context.Background()))
	assert.True(t, alice.m.Current().Sharing)
	displays := alice.cap.captured(domain.SourceDisplay)
	require.Len(t, displays, 1)
	assert.Equal(t, displays[0].ID(), sender.Track().ID())

	require.NoError(t, alice.m.ToggleScreenShare(context.Background()))
	assert.False(t, alice.m.Current().Sharing)
	assert.Equal(t, cam.ID(), sender.Track().ID())
	assert.EqualValues(t, 1, displays[0].stops.Load())
	assert.EqualValues(t, 0, cam.stops.Load())

	offersAfter, _, _ := conn.stats()
	assert.Equal(t, offersBefore, offersAfter)
	assert.Equal(t, domain.StateActive, alice.m.Current().State)
}

func TestScreenShareWithoutVideoAddsTrack(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{})
	bob := h.peer(t, "bob", Options{})
	connect(t, bob, alice)

	require.NoError(t, bob.m.ToggleScreenShare(context.Background()))
	require.Eventually(t, func() bool {
		return alice.sink.Packets(webrtc.RTPCodecTypeVideo) > 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, bob.sig.sentOf(domain.EnvelopeOffer), "answerer never offers")
	assert.Len(t, bob.sig.sentOf(domain.EnvelopeRenegotiate), 1)
	assert.Len(t, alice.sig.sentOf(domain.EnvelopeOffer), 2)

	require.NoError(t, bob.m.ToggleScreenShare(context.Background()))
	conn := h.net.connsOf("bob")[0]
	assert.Nil(t, conn.videoSender(), "reverting without a camera clears the video sender")
	assert.Equal(t, domain.StateActive, bob.m.Current().State)
}

func TestBothCamerasAtOnceStayActive(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{})
	bob := h.peer(t, "bob", Options{})
	connect(t, alice, bob)

	var wg sync.WaitGroup
	for _, p := range []*peer{alice, bob} {
		wg.Add(1)
		go func(p *peer) {
			defer wg.Done()
			assert.NoError(t, p.m.ToggleCamera(context.Background()))
		}(p)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return alice.sink.Packets(webrtc.RTPCodecTypeVideo) > 0 && bob.sink.Packets(webrtc.RTPCodecTypeVideo) > 0
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return alice.m.Current().Exchanges >= 2 && bob.m.Current().Exchanges >= 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, domain.StateActive, alice.m.Current().State)
	assert.Equal(t, domain.StateActive, bob.m.Current().State)
	assert.Empty(t, bob.sig.sentOf(domain.EnvelopeOffer))
	offers, _, _ := h.net.connsOf("bob")[0].stats()
	assert.Zero(t, offers)
}

func TestOffererIgnoresPeerOffer(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{})
	bob := h.peer(t, "bob", Options{})
	connect(t, alice, bob)
	id := alice.m.Current().ID

	bob.sig.send(t, domain.EnvelopeOffer, id, "alice", domain.DescriptionPayload{SDPType: "offer", SDP: "fake-offer bob 1"})
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, domain.StateActive, alice.m.Current().State)
	assert.Empty(t, alice.sig.sentOf(domain.EnvelopeAnswer))
}

func TestConcurrentInviteIsRejectedBusy(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{})
	bob := h.peer(t, "bob", Options{})
	carol := h.peer(t, "carol", Options{})

	connect(t, carol, bob)
	before := bob.m.Current()

	_, err := alice.m.Call(context.Background(), "bob")
	require.NoError(t, err)
	ended := waitState(t, alice, domain.StateEnded)
	assert.Equal(t, domain.EndReasonBusy, ended.EndReason)
	assert.Equal(t, "user is busy", ended.Status())

	after := bob.m.Current()
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, domain.UserID("carol"), after.Remote)
	assert.Equal(t, domain.StateActive, after.State)

	rejects := bob.sig.sentOf(domain.EnvelopeReject)
	require.Len(t, rejects, 1)
	assert.Equal(t, domain.UserID("alice"), rejects[0].To)
	var p domain.RejectPayload
	require.NoError(t, rejects[0].Decode(&p))
	assert.Equal(t, domain.RejectBusy, p.Reason)
	assert.Len(t, h.net.connsOf("bob"), 1)
}

func TestInviteGlareYieldsOneSession(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{})
	bob := h.peer(t, "bob", Options{})

	alice.sig.hold()
	bob.sig.hold()
	_, err := alice.m.Call(context.Background(), "bob")
	require.NoError(t, err)
	_, err = bob.m.Call(context.Background(), "alice")
	require.NoError(t, err)
	alice.sig.flush()
	bob.sig.flush()

	a := waitState(t, alice, domain.StateActive)
	b := waitState(t, bob, domain.StateActive)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, domain.DirectionCaller, a.Direction)
	assert.Equal(t, domain.DirectionCallee, b.Direction)
	assert.Len(t, h.net.connsOf("alice"), 1)
	assert.Len(t, h.net.connsOf("bob"), 1)
	assert.Empty(t, bob.sig.sentOf(domain.EnvelopeOffer))
}

func TestEndIsIdempotent(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{})
	bob := h.peer(t, "bob", Options{})
	connect(t, alice, bob)

	require.NoError(t, alice.m.End(context.Background()))
	require.NoError(t, alice.m.End(context.Background()))

	ended := alice.m.Current()
	assert.Equal(t, domain.StateEnded, ended.State)
	assert.Equal(t, domain.EndReasonHangup, ended.EndReason)
	assert.Len(t, alice.sig.sentOf(domain.EnvelopeEnd), 1)

	for _, tr := range alice.cap.all() {
		assert.EqualValues(t, 1, tr.stops.Load(), tr.id)
	}
	_, closes, _ := h.net.connsOf("alice")[0].stats()
	assert.Equal(t, 1, closes)

	remote := waitState(t, bob, domain.StateEnded)
	assert.Equal(t, domain.EndReasonRemoteHangup, remote.EndReason)
	assert.Empty(t, bob.sig.sentOf(domain.EnvelopeEnd))
	for _, tr := range bob.cap.all() {
		assert.EqualValues(t, 1, tr.stops.Load(), tr.id)
	}

	_, err := alice.m.Call(context.Background(), "bob")
	require.NoError(t, err)
	assert.NotEqual(t, ended.ID, alice.m.Current().ID, "a new call gets a fresh session")
}

func TestRingTimeoutEndsUnansweredCall(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{RingTimeout: 50 * time.Millisecond})

	_, err := alice.m.Call(context.Background(), "ghost")
	require.NoError(t, err)

	ended := waitState(t, alice, domain.StateEnded)
	assert.Equal(t, domain.EndReasonTimeout, ended.EndReason)
	assert.Equal(t, "no answer", ended.Status())
	assert.Len(t, alice.sig.sentOf(domain.EnvelopeEnd), 1)
	for _, tr := range alice.cap.all() {
		assert.EqualValues(t, 1, tr.stops.Load())
	}
}

func TestUnansweredIncomingCallIsMissed(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{})
	bob := h.peer(t, "bob", Options{RingTimeout: 50 * time.Millisecond})

	_, err := alice.m.Call(context.Background(), "bob")
	require.NoError(t, err)

	ended := waitState(t, bob, domain.StateEnded)
	assert.Equal(t, domain.EndReasonMissed, ended.EndReason)
	assert.Equal(t, 0, bob.sig.sentCount())
	assert.Equal(t, domain.StateRingingOut, alice.m.Current().State)
}

func TestReleaseDeadlineBoundsEnd(t *testing.T) {
	h := newHarness()
	block := make(chan struct{})
	defer close(block)
	alice := h.peer(t, "alice", Options{ReleaseTimeout: 50 * time.Millisecond}, func(c *fakeCapture) {
		c.block = block
	})

	_, err := alice.m.Call(context.Background(), "ghost")
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, alice.m.End(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, domain.StateEnded, alice.m.Current().State)
	for _, tr := range alice.cap.all() {
		assert.EqualValues(t, 1, tr.stops.Load())
	}
}

func TestConnectionFailureEndsBothSides(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{})
	bob := h.peer(t, "bob", Options{})
	connect(t, alice, bob)

	h.net.connsOf("alice")[0].fireState(webrtc.PeerConnectionStateFailed)

	a := waitState(t, alice, domain.StateEnded)
	assert.Equal(t, domain.EndReasonConnectionFailure, a.EndReason)
	assert.Equal(t, "call failed", a.Status())
	assert.Len(t, alice.sig.sentOf(domain.EnvelopeEnd), 1)

	b := waitState(t, bob, domain.StateEnded)
	assert.Equal(t, domain.EndReasonRemoteHangup, b.EndReason)
}

func TestTransportFailureOnBothSides(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{})
	bob := h.peer(t, "bob", Options{})
	connect(t, alice, bob)

	h.net.fail(alice.m.Current().ID)

	for _, p := range []*peer{alice, bob} {
		ended := waitState(t, p, domain.StateEnded)
		assert.Contains(t, []domain.EndReason{domain.EndReasonConnectionFailure, domain.EndReasonRemoteHangup}, ended.EndReason)
		for _, tr := range p.cap.all() {
			assert.EqualValues(t, 1, tr.stops.Load())
		}
	}
}

func TestMalformedOfferFailsNegotiation(t *testing.T) {
	h := newHarness()
	alice := h.raw("alice")
	bob := h.peer(t, "bob", Options{})

	alice.send(t, domain.EnvelopeInvite, "c1", "bob", domain.InvitePayload{DisplayName: "Alice"})
	waitState(t, bob, domain.StateRingingIn)
	require.NoError(t, bob.m.Accept(context.Background()))
	alice.next(t, domain.EnvelopeAccept)

	alice.send(t, domain.EnvelopeOffer, "c1", "bob", domain.DescriptionPayload{SDPType: "offer", SDP: "garbage"})

	ended := waitState(t, bob, domain.StateEnded)
	assert.Equal(t, domain.EndReasonNegotiationFailure, ended.EndReason)
	assert.Equal(t, "call failed", ended.Status())
	end := alice.next(t, domain.EnvelopeEnd)
	assert.Equal(t, domain.CallID("c1"), end.CallID)
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	h := newHarness()
	alice := h.raw("alice")
	bob := h.peer(t, "bob", Options{})

	alice.send(t, domain.EnvelopeInvite, "c1", "bob", nil)
	waitState(t, bob, domain.StateRingingIn)
	require.NoError(t, bob.m.Accept(context.Background()))
	alice.next(t, domain.EnvelopeAccept)

	candidate := func(s string) domain.CandidatePayload { return domain.CandidatePayload{Candidate: s} }
	alice.send(t, domain.EnvelopeCandidate, "c1", "bob", candidate("c-1"))
	alice.send(t, domain.EnvelopeCandidate, "c1", "bob", candidate("c-2"))
	alice.send(t, domain.EnvelopeOffer, "c1", "bob", domain.DescriptionPayload{SDPType: "offer", SDP: "fake-offer alice 1"})
	alice.send(t, domain.EnvelopeCandidate, "c1", "bob", candidate("c-3"))

	answer := alice.next(t, domain.EnvelopeAnswer)
	var p domain.DescriptionPayload
	require.NoError(t, answer.Decode(&p))
	assert.Equal(t, "answer", p.SDPType)

	conns := h.net.connsOf("bob")
	require.Len(t, conns, 1)
	require.Eventually(t, func() bool {
		_, _, applied := conns[0].stats()
		return len(applied) == 3
	}, 2*time.Second, 5*time.Millisecond)
	_, _, applied := conns[0].stats()
	assert.Equal(t, []string{"c-1", "c-2", "c-3"}, applied)
	assert.Equal(t, domain.StateConnecting, bob.m.Current().State, "no transport yet")
}

func TestEnvelopesForOtherCallsAreIgnored(t *testing.T) {
	h := newHarness()
	alice := h.raw("alice")
	bob := h.peer(t, "bob", Options{})

	alice.send(t, domain.EnvelopeInvite, "c1", "bob", nil)
	waitState(t, bob, domain.StateRingingIn)

	alice.send(t, domain.EnvelopeEnd, "other", "bob", nil)
	alice.send(t, domain.EnvelopeInvite, "c1", "bob", nil)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, domain.StateRingingIn, bob.m.Current().State)
	assert.Equal(t, domain.CallID("c1"), bob.m.Current().ID)

	alice.send(t, domain.EnvelopeEnd, "c1", "bob", nil)
	ended := waitState(t, bob, domain.StateEnded)
	assert.Equal(t, domain.EndReasonRemoteHangup, ended.EndReason)
}

func TestPermissionDeniedAbortsBeforeInvite(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{}, func(c *fakeCapture) {
		c.refuse(domain.SourceMicrophone, domain.ErrPermissionDenied)
	})

	_, err := alice.m.Call(context.Background(), "bob")
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, domain.StateIdle, alice.m.Current().State)
	assert.Equal(t, 0, alice.sig.sentCount())
}

func TestDeniedCameraDegradesToAudio(t *testing.T) {
	h := newHarness()
	opts := Options{Sources: []domain.TrackSource{domain.SourceMicrophone, domain.SourceCamera}}
	alice := h.peer(t, "alice", opts, func(c *fakeCapture) {
		c.refuse(domain.SourceCamera, domain.ErrPermissionDenied)
	})
	bob := h.peer(t, "bob", Options{})

	connect(t, alice, bob)
	assert.False(t, alice.m.Current().HasCamera)
	assert.Nil(t, h.net.connsOf("alice")[0].videoSender())
}

func TestMuteAndDeafenStayLocal(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{})
	bob := h.peer(t, "bob", Options{})
	connect(t, alice, bob)
	require.Eventually(t, func() bool {
		return bob.sink.Packets(webrtc.RTPCodecTypeAudio) > 0
	}, 2*time.Second, 5*time.Millisecond)

	sentA, sentB := alice.sig.sentCount(), bob.sig.sentCount()

	require.NoError(t, alice.m.SetMuted(context.Background(), true))
	assert.True(t, alice.m.Current().Muted)
	mic := alice.cap.captured(domain.SourceMicrophone)[0]
	assert.False(t, mic.enabled.Load())

	require.NoError(t, bob.m.SetDeafened(context.Background(), true))
	time.Sleep(20 * time.Millisecond)
	frozen := bob.sink.Packets(webrtc.RTPCodecTypeAudio)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, frozen, bob.sink.Packets(webrtc.RTPCodecTypeAudio))

	require.NoError(t, bob.m.SetDeafened(context.Background(), false))
	require.Eventually(t, func() bool {
		return bob.sink.Packets(webrtc.RTPCodecTypeAudio) > frozen
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, alice.m.SetMuted(context.Background(), false))
	assert.True(t, mic.enabled.Load())
	assert.Equal(t, sentA, alice.sig.sentCount())
	assert.Equal(t, sentB, bob.sig.sentCount())
}

func TestCommandsWithoutSession(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{})

	assert.ErrorIs(t, alice.m.Accept(context.Background()), domain.ErrInvalidTransition)
	assert.ErrorIs(t, alice.m.Reject(context.Background()), domain.ErrInvalidTransition)
	assert.ErrorIs(t, alice.m.SetMuted(context.Background(), true), domain.ErrNoSession)
	assert.ErrorIs(t, alice.m.ToggleCamera(context.Background()), domain.ErrNoSession)
	assert.NoError(t, alice.m.End(context.Background()))

	_, err := alice.m.Call(context.Background(), "alice")
	assert.ErrorIs(t, err, domain.ErrSelfCall)
}

func TestSecondCallWhileBusyFails(t *testing.T) {
	h := newHarness()
	alice := h.peer(t, "alice", Options{})

	_, err := alice.m.Call(context.Background(), "ghost")
	require.NoError(t, err)
	_, err = alice.m.Call(context.Background(), "bob")
	assert.ErrorIs(t, err, domain.ErrBusy)
	assert.Equal(t, domain.UserID("ghost"), alice.m.Current().Remote)
}

func TestRunExitHangsUp(t *testing.T) {
	h := newHarness()
	bob := h.peer(t, "bob", Options{})
	sig := newFakeSignaler("alice", h.relay)
	capt := newFakeCapture()
	m := NewManager("alice", sig, h.net.factory("alice"), NewMediaManager(capt), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	_, err := m.Call(context.Background(), "bob")
	require.NoError(t, err)
	waitState(t, bob, domain.StateRingingIn)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, domain.StateEnded, m.Current().State)
	assert.Len(t, sig.sentOf(domain.EnvelopeEnd), 1)
	waitState(t, bob, domain.StateEnded)

	_, err = m.Call(context.Background(), "bob")
	assert.ErrorIs(t, err, domain.ErrClosed)
	for _, tr := range capt.all() {
		assert.EqualValues(t, 1, tr.stops.Load())
	}
}
