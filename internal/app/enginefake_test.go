package app

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/openmeet/openmeet/internal/core"
)

// In-memory engine double. Event callbacks are recorded but never fired on
// their own; tests drive engine events explicitly where a scenario needs them.

var fakeSeq atomic.Int64

func fakeID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, fakeSeq.Add(1))
}

type fakeWorker struct {
	id     string
	died   func(error)
	closed bool
}

func newFakeWorker() *fakeWorker { return &fakeWorker{id: fakeID("w")} }

func (w *fakeWorker) ID() string { return w.id }

func (w *fakeWorker) CreateRouter() (core.Router, error) { return newFakeRouter(), nil }

func (w *fakeWorker) OnDied(fn func(error)) { w.died = fn }

func (w *fakeWorker) Close() { w.closed = true }

type fakeRouter struct {
	id string

	mu           sync.Mutex
	producers    map[string]*fakeProducer
	plains       []*fakePlain
	observer     func(string)
	allowConsume bool
	closed       bool
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{
		id:           fakeID("r"),
		producers:    make(map[string]*fakeProducer),
		allowConsume: true,
	}
}

func (r *fakeRouter) ID() string { return r.id }

func (r *fakeRouter) Capabilities() core.Params {
	b, _ := json.Marshal(map[string]any{"codecs": []core.RtpCodec{
		{Kind: "audio", MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2},
		{Kind: "video", MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000},
	}})
	return b
}

func (r *fakeRouter) CreateTransport(opts core.TransportOptions) (core.Transport, error) {
	return &fakeTransport{id: fakeID("t"), r: r, direction: opts.Direction}, nil
}

func (r *fakeRouter) CreatePlainTransport(opts core.PlainTransportOptions) (core.PlainTransport, error) {
	p := &fakePlain{id: fakeID("pt"), r: r, port: opts.Port}
	r.mu.Lock()
	r.plains = append(r.plains, p)
	r.mu.Unlock()
	return p, nil
}

func (r *fakeRouter) CanConsume(producerID string, _ core.Params) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.producers[producerID]
	return ok && r.allowConsume
}

func (r *fakeRouter) ObserveAudioActivity(fn func(string)) {
	r.mu.Lock()
	r.observer = fn
	r.mu.Unlock()
}

func (r *fakeRouter) reportSpeaker(producerID string) {
	r.mu.Lock()
	fn := r.observer
	r.mu.Unlock()
	if fn != nil {
		fn(producerID)
	}
}

func (r *fakeRouter) plainCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plains)
}

func (r *fakeRouter) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

type fakeTransport struct {
	id        string
	direction string
	r         *fakeRouter

	mu        sync.Mutex
	connected bool
	closed    bool
	onClose   []func()
}

func (t *fakeTransport) ID() string { return t.id }

func (t *fakeTransport) ConnectionInfo() core.Params {
	b, _ := json.Marshal(map[string]string{"id": t.id, "direction": t.direction})
	return b
}

func (t *fakeTransport) Connect(core.Params) (core.Params, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil, nil
	}
	t.connected = true
	return core.Params(`{"connected":true}`), nil
}

func (t *fakeTransport) Produce(opts core.ProduceOptions) (core.Producer, error) {
	p := &fakeProducer{id: fakeID("p"), kind: opts.Kind, r: t.r}
	p.paused.Store(opts.Paused)
	t.r.mu.Lock()
	t.r.producers[p.id] = p
	t.r.mu.Unlock()
	return p, nil
}

func (t *fakeTransport) Consume(opts core.ConsumeOptions) (core.Consumer, error) {
	t.r.mu.Lock()
	prod := t.r.producers[opts.ProducerID]
	t.r.mu.Unlock()
	if prod == nil {
		return nil, fmt.Errorf("producer %s not found", opts.ProducerID)
	}
	c := &fakeConsumer{id: fakeID("c"), prod: prod}
	c.paused.Store(opts.Paused)
	return c, nil
}

func (t *fakeTransport) OnClose(fn func()) {
	t.mu.Lock()
	t.onClose = append(t.onClose, fn)
	t.mu.Unlock()
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

type fakeProducer struct {
	id     string
	kind   string
	r      *fakeRouter
	paused atomic.Bool
	closed atomic.Bool

	mu          sync.Mutex
	onTransport []func()
}

func (p *fakeProducer) ID() string   { return p.id }
func (p *fakeProducer) Kind() string { return p.kind }

func (p *fakeProducer) Codec() core.RtpCodec {
	if p.kind == "audio" {
		return core.RtpCodec{Kind: "audio", MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2}
	}
	return core.RtpCodec{Kind: "video", MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000}
}

func (p *fakeProducer) Paused() bool { return p.paused.Load() }

func (p *fakeProducer) Pause() error {
	p.paused.Store(true)
	return nil
}

func (p *fakeProducer) Resume() error {
	p.paused.Store(false)
	return nil
}

func (p *fakeProducer) Close() error {
	p.closed.Store(true)
	p.r.mu.Lock()
	delete(p.r.producers, p.id)
	p.r.mu.Unlock()
	return nil
}

func (p *fakeProducer) OnTransportClose(fn func()) {
	p.mu.Lock()
	p.onTransport = append(p.onTransport, fn)
	p.mu.Unlock()
}

type fakeConsumer struct {
	id     string
	prod   *fakeProducer
	paused atomic.Bool
	closed atomic.Bool

	mu            sync.Mutex
	selectedLayer int
	onProdClose   []func()
	onTransport   []func()
	onLayers      func(int)
}

func (c *fakeConsumer) ID() string           { return c.id }
func (c *fakeConsumer) Kind() string         { return c.prod.kind }
func (c *fakeConsumer) ProducerID() string   { return c.prod.id }
func (c *fakeConsumer) ProducerPaused() bool { return c.prod.Paused() }

func (c *fakeConsumer) RtpParameters() core.Params {
	b, _ := json.Marshal(map[string]any{"codecs": []core.RtpCodec{c.prod.Codec()}})
	return b
}

func (c *fakeConsumer) Paused() bool { return c.paused.Load() }

func (c *fakeConsumer) Pause() error {
	c.paused.Store(true)
	return nil
}

func (c *fakeConsumer) Resume() error {
	c.paused.Store(false)
	return nil
}

func (c *fakeConsumer) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *fakeConsumer) OnTransportClose(fn func()) {
	c.mu.Lock()
	c.onTransport = append(c.onTransport, fn)
	c.mu.Unlock()
}

func (c *fakeConsumer) OnProducerClose(fn func()) {
	c.mu.Lock()
	c.onProdClose = append(c.onProdClose, fn)
	c.mu.Unlock()
}

func (c *fakeConsumer) SetPreferredLayers(spatialLayer int) error {
	c.mu.Lock()
	c.selectedLayer = spatialLayer
	c.mu.Unlock()
	return nil
}

func (c *fakeConsumer) OnLayersChange(fn func(int)) {
	c.mu.Lock()
	c.onLayers = fn
	c.mu.Unlock()
}

func (c *fakeConsumer) fireProducerClose() {
	c.mu.Lock()
	cbs := c.onProdClose
	c.mu.Unlock()
	for _, fn := range cbs {
		fn()
	}
}

type fakePlain struct {
	id   string
	r    *fakeRouter
	port int

	mu        sync.Mutex
	closed    bool
	consumers []*fakeConsumer
}

func (p *fakePlain) ID() string { return p.id }

func (p *fakePlain) Consume(producerID string) (core.Consumer, error) {
	p.r.mu.Lock()
	prod := p.r.producers[producerID]
	p.r.mu.Unlock()
	if prod == nil {
		return nil, fmt.Errorf("producer %s not found", producerID)
	}
	c := &fakeConsumer{id: fakeID("mc"), prod: prod}
	c.paused.Store(true)
	p.mu.Lock()
	p.consumers = append(p.consumers, c)
	p.mu.Unlock()
	return c, nil
}

func (p *fakePlain) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) acts() []Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Action, 0, len(c.frames))
	for _, f := range c.frames {
		var env struct {
			Act Action `json:"act"`
		}
		if json.Unmarshal(f, &env) == nil {
			out = append(out, env.Act)
		}
	}
	return out
}
