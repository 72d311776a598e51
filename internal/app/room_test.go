package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmeet/openmeet/internal/app/record"
	"github.com/openmeet/openmeet/internal/config"
	"github.com/openmeet/openmeet/internal/core"
	"github.com/openmeet/openmeet/internal/domain"
)

func testPeerCfg() config.Peer {
	return config.Peer{
		HeartbeatHint: 5 * time.Second,
		// Keep the background reaper inert; tests tick it by hand.
		ReapInterval: time.Hour,
		StaleAfter:   15 * time.Second,
	}
}

func newTestRoom(t *testing.T) (*Room, *fakeRouter) {
	t.Helper()
	router := newFakeRouter()
	rec := record.NewService(config.Rec{Binary: "cat", OutDir: t.TempDir(), MinPort: 52000, MaxPort: 52200})
	r := NewRoom(domain.Room{ID: "r1", Name: "Room_1"}, newFakeWorker(), router, testPeerCfg(), rec)
	t.Cleanup(r.Release)
	return r, router
}

func join(t *testing.T, r *Room, userID domain.UserID, peerID domain.PeerID) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	user := &domain.User{ID: userID, Name: "tester_" + string(userID), RoomID: r.meta.ID}
	require.NoError(t, r.Connect(conn, user, peerID))
	return conn
}

func sendTransport(t *testing.T, r *Room, peerID domain.PeerID) string {
	t.Helper()
	reply, err := r.CreateTransport(peerID, domain.DirectionSend)
	require.NoError(t, err)
	_, err = r.ConnectTransport(peerID, reply.ID, core.Params(`{"sdp":"offer"}`))
	require.NoError(t, err)
	return reply.ID
}

func recvTransport(t *testing.T, r *Room, peerID domain.PeerID) string {
	t.Helper()
	reply, err := r.CreateTransport(peerID, domain.DirectionRecv)
	require.NoError(t, err)
	return reply.ID
}

func TestRoomMembership(t *testing.T) {
	r, _ := newTestRoom(t)

	join(t, r, "u1", "p1")
	join(t, r, "u2", "p2")
	assert.Len(t, r.State().Members, 2)

	require.NoError(t, r.Leave("p1"))
	assert.Len(t, r.State().Members, 1)
	assert.False(t, r.HasPeer("p1"))

	r.Disconnect("p2")
	assert.Empty(t, r.State().Members)

	assert.ErrorIs(t, r.Leave("p1"), core.ErrNotFound)
}

func TestDuplicateUserReplaced(t *testing.T) {
	r, _ := newTestRoom(t)

	old := join(t, r, "u1", "p1")
	sendTransport(t, r, "p1")

	join(t, r, "u1", "p2")

	assert.True(t, old.isClosed())
	assert.False(t, r.HasPeer("p1"))
	assert.True(t, r.HasPeer("p2"))
	assert.Len(t, r.State().Members, 1)
	// The replaced peer's transport went with it.
	r.mu.Lock()
	assert.Empty(t, r.transports)
	r.mu.Unlock()
}

func TestCreateTransportIdempotentPerDirection(t *testing.T) {
	r, _ := newTestRoom(t)
	join(t, r, "u1", "p1")

	first, err := r.CreateTransport("p1", domain.DirectionSend)
	require.NoError(t, err)
	second, err := r.CreateTransport("p1", domain.DirectionSend)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = r.CreateTransport("p1", "sideways")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = r.CreateTransport("ghost", domain.DirectionSend)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestTransportCascade(t *testing.T) {
	r, _ := newTestRoom(t)
	join(t, r, "u1", "p1")
	tid := sendTransport(t, r, "p1")

	_, err := r.SendTrack("p1", tid, "video", core.Params(`{}`), false, domain.TagCamVideo)
	require.NoError(t, err)
	_, err = r.SendTrack("p1", tid, "audio", core.Params(`{}`), false, domain.TagCamAudio)
	require.NoError(t, err)

	require.NoError(t, r.CloseTransport("p1", tid))

	r.mu.Lock()
	assert.Empty(t, r.transports)
	assert.Empty(t, r.producers)
	assert.Empty(t, r.peers["p1"].Media)
	r.mu.Unlock()

	// Duplicate close is a soft miss, never a second cascade.
	assert.ErrorIs(t, r.CloseTransport("p1", tid), core.ErrNotFound)
}

func TestRecvTrackPausedByDefault(t *testing.T) {
	r, _ := newTestRoom(t)
	join(t, r, "u1", "p1")
	tid := sendTransport(t, r, "p1")
	_, err := r.SendTrack("p1", tid, "video", core.Params(`{}`), false, domain.TagCamVideo)
	require.NoError(t, err)

	join(t, r, "u2", "p2")
	recvTransport(t, r, "p2")

	reply, err := r.RecvTrack("p2", "p1", domain.TagCamVideo, core.Params(`{"codecs":[{"mimeType":"video/VP8"}]}`))
	require.NoError(t, err)
	assert.False(t, reply.ProducerPaused)

	r.mu.Lock()
	engineConsumer := r.consumers[reply.ID].c
	r.mu.Unlock()
	assert.True(t, engineConsumer.Paused())

	require.NoError(t, r.ResumeConsumer("p2", reply.ID))
	assert.False(t, engineConsumer.Paused())

	// Resuming the subscription must not touch the source producer.
	r.mu.Lock()
	prodPaused := r.producers[reply.ProducerID].p.Paused()
	r.mu.Unlock()
	assert.False(t, prodPaused)
}

func TestRecvTrackRequirements(t *testing.T) {
	r, router := newTestRoom(t)
	join(t, r, "u1", "p1")
	tid := sendTransport(t, r, "p1")
	_, err := r.SendTrack("p1", tid, "video", core.Params(`{}`), false, domain.TagCamVideo)
	require.NoError(t, err)

	join(t, r, "u2", "p2")

	// A recv transport must exist before subscribing.
	_, err = r.RecvTrack("p2", "p1", domain.TagCamVideo, core.Params(`{}`))
	assert.ErrorIs(t, err, core.ErrNotFound)

	recvTransport(t, r, "p2")
	_, err = r.RecvTrack("p2", "p1", domain.TagScreenAudio, core.Params(`{}`))
	assert.ErrorIs(t, err, core.ErrNotFound)

	router.mu.Lock()
	router.allowConsume = false
	router.mu.Unlock()
	_, err = r.RecvTrack("p2", "p1", domain.TagCamVideo, core.Params(`{}`))
	assert.ErrorIs(t, err, core.ErrCapabilityMismatch)
}

func TestProducerPauseMirroredToMediaInfo(t *testing.T) {
	r, _ := newTestRoom(t)
	join(t, r, "u1", "p1")
	tid := sendTransport(t, r, "p1")
	id, err := r.SendTrack("p1", tid, "video", core.Params(`{}`), false, domain.TagCamVideo)
	require.NoError(t, err)

	require.NoError(t, r.PauseProducer("p1", id))
	state := r.State()
	require.Len(t, state.Members, 1)
	assert.True(t, state.Members[0].Media[domain.TagCamVideo].Paused)

	require.NoError(t, r.ResumeProducer("p1", id))
	assert.False(t, r.State().Members[0].Media[domain.TagCamVideo].Paused)

	assert.ErrorIs(t, r.PauseProducer("p1", "ghost"), core.ErrNotFound)
}

func TestCloseProducerNoDanglingMediaRef(t *testing.T) {
	r, _ := newTestRoom(t)
	join(t, r, "u1", "p1")
	tid := sendTransport(t, r, "p1")
	id, err := r.SendTrack("p1", tid, "video", core.Params(`{}`), false, domain.TagCamVideo)
	require.NoError(t, err)

	require.NoError(t, r.CloseProducer("p1", id))

	r.mu.Lock()
	assert.Empty(t, r.producers)
	_, hasTag := r.peers["p1"].Media[domain.TagCamVideo]
	r.mu.Unlock()
	assert.False(t, hasTag)

	assert.ErrorIs(t, r.CloseProducer("p1", id), core.ErrNotFound)
}

func TestConsumerRemovedOnProducerClose(t *testing.T) {
	r, _ := newTestRoom(t)
	join(t, r, "u1", "p1")
	tid := sendTransport(t, r, "p1")
	id, err := r.SendTrack("p1", tid, "video", core.Params(`{}`), false, domain.TagCamVideo)
	require.NoError(t, err)

	join(t, r, "u2", "p2")
	recvTransport(t, r, "p2")
	reply, err := r.RecvTrack("p2", "p1", domain.TagCamVideo, core.Params(`{}`))
	require.NoError(t, err)

	r.mu.Lock()
	engineConsumer := r.consumers[reply.ID].c.(*fakeConsumer)
	r.mu.Unlock()

	require.NoError(t, r.CloseProducer("p1", id))

	// The subscription cascades with the producer, not on the engine's later
	// notification.
	r.mu.Lock()
	_, stillThere := r.consumers[reply.ID]
	_, layerTracked := r.peers["p2"].ConsumerLayers[reply.ID]
	r.mu.Unlock()
	assert.False(t, stillThere)
	assert.False(t, layerTracked)
	assert.True(t, engineConsumer.closed.Load())

	// The engine's notification arriving afterwards finds nothing left.
	engineConsumer.fireProducerClose()
	r.mu.Lock()
	_, stillThere = r.consumers[reply.ID]
	r.mu.Unlock()
	assert.False(t, stillThere)
}

func TestConsumerSetLayers(t *testing.T) {
	r, _ := newTestRoom(t)
	join(t, r, "u1", "p1")
	tid := sendTransport(t, r, "p1")
	_, err := r.SendTrack("p1", tid, "video", core.Params(`{}`), false, domain.TagCamVideo)
	require.NoError(t, err)
	join(t, r, "u2", "p2")
	recvTransport(t, r, "p2")
	reply, err := r.RecvTrack("p2", "p1", domain.TagCamVideo, core.Params(`{}`))
	require.NoError(t, err)

	require.NoError(t, r.ConsumerSetLayers("p2", reply.ID, 2))

	state := r.State()
	for _, m := range state.Members {
		if m.ID != "p2" {
			continue
		}
		require.NotNil(t, m.ConsumerLayers[reply.ID].ClientSelectedLayer)
		assert.Equal(t, 2, *m.ConsumerLayers[reply.ID].ClientSelectedLayer)
	}
}

func TestHeartbeatAndReap(t *testing.T) {
	r, _ := newTestRoom(t)
	base := time.Now()
	r.now = func() time.Time { return base }

	join(t, r, "u1", "p1")
	join(t, r, "u2", "p2")

	// Inside the staleness threshold nobody is reaped.
	r.now = func() time.Time { return base.Add(10 * time.Second) }
	r.reap()
	assert.Len(t, r.State().Members, 2)

	// p2 heartbeats, p1 goes silent past the threshold.
	r.now = func() time.Time { return base.Add(16 * time.Second) }
	require.NoError(t, r.Heartbeat("p2"))
	r.reap()

	assert.False(t, r.HasPeer("p1"))
	assert.True(t, r.HasPeer("p2"))

	assert.ErrorIs(t, r.Heartbeat("p1"), core.ErrNotFound)
}

func TestReapBroadcastsLeave(t *testing.T) {
	r, _ := newTestRoom(t)
	base := time.Now()
	r.now = func() time.Time { return base }

	join(t, r, "u1", "p1")
	observer := join(t, r, "u2", "p2")

	r.now = func() time.Time { return base.Add(16 * time.Second) }
	require.NoError(t, r.Heartbeat("p2"))
	r.reap()

	assert.False(t, r.HasPeer("p1"))
	assert.Contains(t, observer.acts(), ActLeave, "survivors learn about the reaped peer")
}

func TestDuplicateKickBroadcastsLeave(t *testing.T) {
	r, _ := newTestRoom(t)
	join(t, r, "u1", "p1")
	observer := join(t, r, "u2", "p2")

	join(t, r, "u1", "p3")

	acts := observer.acts()
	assert.Contains(t, acts, ActLeave, "kicked duplicate announces its departure")
	assert.Contains(t, acts, ActJoin)
}

func TestLeaveBroadcastsOnce(t *testing.T) {
	r, _ := newTestRoom(t)
	join(t, r, "u1", "p1")
	observer := join(t, r, "u2", "p2")

	require.NoError(t, r.Leave("p1"))

	leaves := 0
	for _, act := range observer.acts() {
		if act == ActLeave {
			leaves++
		}
	}
	assert.Equal(t, 1, leaves)
}

func TestDominantSpeakerTracksAudioActivity(t *testing.T) {
	r, router := newTestRoom(t)
	join(t, r, "u1", "p1")
	tid := sendTransport(t, r, "p1")
	id, err := r.SendTrack("p1", tid, "audio", core.Params(`{}`), false, domain.TagCamAudio)
	require.NoError(t, err)

	router.reportSpeaker(id)
	assert.Equal(t, domain.PeerID("p1"), r.State().DominantSpeaker)

	// The dominant slot clears when its peer goes away.
	require.NoError(t, r.Leave("p1"))
	assert.Empty(t, r.State().DominantSpeaker)
}

func TestRecordingTriggersOnceOnTagPair(t *testing.T) {
	r, router := newTestRoom(t)
	join(t, r, "u1", "p1")
	tid := sendTransport(t, r, "p1")

	_, err := r.SendTrack("p1", tid, "video", core.Params(`{}`), false, domain.TagScreenVideo)
	require.NoError(t, err)
	assert.Zero(t, router.plainCount(), "one tag must not trigger recording")

	_, err = r.SendTrack("p1", tid, "audio", core.Params(`{}`), false, domain.TagCamAudio)
	require.NoError(t, err)
	assert.Equal(t, 2, router.plainCount(), "both producers get mirrored")

	r.mu.Lock()
	session := r.peers["p1"].recording
	r.mu.Unlock()
	require.NotNil(t, session)
	for _, m := range session.mirrors {
		assert.False(t, m.consumer.Paused(), "mirrored consumers resume after spawn")
	}

	// Further tracks must not re-trigger.
	_, err = r.SendTrack("p1", tid, "video", core.Params(`{}`), false, domain.TagCamVideo)
	require.NoError(t, err)
	assert.Equal(t, 2, router.plainCount())

	// Peer removal tears the session down.
	require.NoError(t, r.Leave("p1"))
	for _, m := range session.mirrors {
		assert.True(t, m.consumer.(*fakeConsumer).closed.Load())
	}
}

func TestStartRecordUnknownProducer(t *testing.T) {
	r, router := newTestRoom(t)
	join(t, r, "u1", "p1")

	err := r.StartRecord("p1", "ghost-video", "ghost-audio")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Zero(t, router.plainCount())
}

func TestChatRelay(t *testing.T) {
	r, _ := newTestRoom(t)
	sender := join(t, r, "u1", "p1")
	other := join(t, r, "u2", "p2")

	sentBefore := sender.frameCount()
	otherBefore := other.frameCount()

	r.HandleChat("p1", []byte(`{"seq":7,"text":"hello"}`))

	assert.Equal(t, sentBefore+1, sender.frameCount(), "sender gets a delivery receipt")
	assert.Equal(t, otherBefore+1, other.frameCount(), "room mates get the message")
}
