package pion

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/openmeet/openmeet/internal/core"
)

type transport struct {
	id        string
	peerID    string
	direction string
	r         *router
	pc        *webrtc.PeerConnection

	mu        sync.Mutex
	connected bool
	closed    bool
	onClose   []func()
	pending   map[string][]*producer
	producers []*producer
	consumers []*consumer
}

func newTransport(r *router, pc *webrtc.PeerConnection, opts core.TransportOptions) *transport {
	t := &transport{
		id:        uuid.NewString(),
		peerID:    opts.PeerID,
		direction: opts.Direction,
		r:         r,
		pc:        pc,
		pending:   make(map[string][]*producer),
	}
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t.onRemoteTrack(remote)
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		if st == webrtc.PeerConnectionStateFailed || st == webrtc.PeerConnectionStateClosed {
			t.fireClose()
		}
	})
	return t
}

func (t *transport) ID() string { return t.id }

func (t *transport) ConnectionInfo() core.Params {
	b, _ := json.Marshal(map[string]string{"id": t.id, "direction": t.direction})
	return b
}

// Connect applies the endpoint's SDP offer and answers it. A second call on an
// already connected transport is a no-op per the transport contract.
func (t *transport) Connect(clientParams core.Params) (core.Params, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, errors.New("transport closed")
	}
	if t.connected {
		return nil, nil
	}
	var in struct {
		SDP string `json:"sdp"`
	}
	if err := json.Unmarshal(clientParams, &in); err != nil {
		return nil, err
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: in.SDP}
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	gathered := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gathered
	local := t.pc.LocalDescription()
	t.connected = true
	b, err := json.Marshal(map[string]string{"type": "answer", "sdp": local.SDP})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Produce registers a producer that will bind to the next inbound track of the
// matching kind. The endpoint negotiates its tracks in the same order it calls
// produce, which is what the pending queue relies on.
func (t *transport) Produce(opts core.ProduceOptions) (core.Producer, error) {
	if t.direction != "send" {
		return nil, errors.New("produce requires a send transport")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, errors.New("transport closed")
	}
	p := newProducer(t, opts)
	t.pending[p.kind] = append(t.pending[p.kind], p)
	t.producers = append(t.producers, p)
	t.r.registerProducer(p)
	return p, nil
}

func (t *transport) onRemoteTrack(remote *webrtc.TrackRemote) {
	kind := remote.Kind().String()
	t.mu.Lock()
	queue := t.pending[kind]
	if len(queue) == 0 {
		t.mu.Unlock()
		log.Warn().Str("module", "engine").Str("transport", t.id).
			Str("kind", kind).Msg("inbound track without a pending producer")
		return
	}
	p := queue[0]
	t.pending[kind] = queue[1:]
	t.mu.Unlock()
	p.bind(remote)
}

func (t *transport) Consume(opts core.ConsumeOptions) (core.Consumer, error) {
	if t.direction != "recv" {
		return nil, errors.New("consume requires a recv transport")
	}
	prod := t.r.getProducer(opts.ProducerID)
	if prod == nil {
		return nil, errors.New("producer not found")
	}
	codec := prod.Codec()
	local, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{
		MimeType:  codec.MimeType,
		ClockRate: codec.ClockRate,
		Channels:  codec.Channels,
	}, uuid.NewString(), "openmeet")
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.New("transport closed")
	}
	t.mu.Unlock()
	sender, err := t.pc.AddTrack(local)
	if err != nil {
		return nil, err
	}
	c := newWebRTCConsumer(t, prod, local, sender, opts.Paused)
	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	return c, nil
}

func (t *transport) OnClose(fn func()) {
	t.mu.Lock()
	t.onClose = append(t.onClose, fn)
	t.mu.Unlock()
}

func (t *transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	producers := t.producers
	consumers := t.consumers
	t.producers = nil
	t.consumers = nil
	t.pending = nil
	t.mu.Unlock()
	for _, p := range producers {
		p.fireTransportClose()
	}
	for _, c := range consumers {
		c.fireTransportClose()
	}
	return t.pc.Close()
}

// fireClose reports an engine-side teardown, e.g. ICE failure. Callbacks run
// on their own goroutines because handlers re-enter room state.
func (t *transport) fireClose() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	cbs := t.onClose
	t.mu.Unlock()
	for _, fn := range cbs {
		go fn()
	}
}
