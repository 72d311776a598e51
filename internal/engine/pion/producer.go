package pion

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/openmeet/openmeet/internal/core"
)

type producer struct {
	id     string
	kind   string
	t      *transport
	relay  *relay
	paused atomic.Bool
	closed atomic.Bool

	mu               sync.Mutex
	codec            core.RtpCodec
	bound            bool
	cancel           context.CancelFunc
	subscribers      map[string]*consumer
	onTransportClose []func()
}

func newProducer(t *transport, opts core.ProduceOptions) *producer {
	p := &producer{
		id:          uuid.NewString(),
		kind:        opts.Kind,
		t:           t,
		relay:       newRelay(),
		codec:       defaultCodecFor(opts.Kind),
		subscribers: make(map[string]*consumer),
	}
	p.paused.Store(opts.Paused)
	return p
}

func (p *producer) ID() string   { return p.id }
func (p *producer) Kind() string { return p.kind }

func (p *producer) Codec() core.RtpCodec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.codec
}

func (p *producer) Paused() bool { return p.paused.Load() }

func (p *producer) Pause() error {
	p.paused.Store(true)
	return nil
}

func (p *producer) Resume() error {
	p.paused.Store(false)
	return nil
}

// bind attaches the negotiated remote track and starts the relay loop. The
// codec seen on the wire replaces the router default.
func (p *producer) bind(remote *webrtc.TrackRemote) {
	p.mu.Lock()
	if p.bound || p.closed.Load() {
		p.mu.Unlock()
		return
	}
	p.bound = true
	cp := remote.Codec()
	p.codec = core.RtpCodec{
		Kind:        p.kind,
		MimeType:    cp.MimeType,
		PayloadType: uint8(cp.PayloadType),
		ClockRate:   cp.ClockRate,
		Channels:    cp.Channels,
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()
	go p.relay.run(ctx, remote, p)
}

func (p *producer) subscribe(c *consumer) {
	p.mu.Lock()
	p.subscribers[c.id] = c
	p.mu.Unlock()
}

func (p *producer) unsubscribe(id string) {
	p.mu.Lock()
	delete(p.subscribers, id)
	p.mu.Unlock()
}

func (p *producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	subs := make([]*consumer, 0, len(p.subscribers))
	for _, c := range p.subscribers {
		subs = append(subs, c)
	}
	p.subscribers = make(map[string]*consumer)
	p.mu.Unlock()
	p.t.r.unregisterProducer(p.id)
	for _, c := range subs {
		c.fireProducerClose()
	}
	return nil
}

func (p *producer) OnTransportClose(fn func()) {
	p.mu.Lock()
	p.onTransportClose = append(p.onTransportClose, fn)
	p.mu.Unlock()
}

func (p *producer) fireTransportClose() {
	if p.closed.Load() {
		return
	}
	p.mu.Lock()
	cbs := p.onTransportClose
	p.mu.Unlock()
	for _, fn := range cbs {
		go fn()
	}
}
