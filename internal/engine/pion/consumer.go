package pion

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/openmeet/openmeet/internal/core"
)

type consumer struct {
	id     string
	prod   *producer
	detach func()
	paused atomic.Bool
	closed atomic.Bool

	mu              sync.Mutex
	selectedLayer   int
	onProducerClose []func()
	onTransport     []func()
	onLayersChange  func(spatialLayer int)
}

func newWebRTCConsumer(t *transport, prod *producer, local *webrtc.TrackLocalStaticRTP, sender *webrtc.RTPSender, paused bool) *consumer {
	c := newConsumer(prod, local, paused)
	c.detach = func() {
		if err := t.pc.RemoveTrack(sender); err != nil {
			log.Debug().Str("module", "engine").Err(err).Msg("remove track")
		}
	}
	return c
}

func newConsumer(prod *producer, sink rtpSink, paused bool) *consumer {
	c := &consumer{id: uuid.NewString(), prod: prod}
	c.paused.Store(paused)
	prod.relay.addSink(c.id, sink, paused)
	prod.subscribe(c)
	return c
}

func (c *consumer) ID() string         { return c.id }
func (c *consumer) Kind() string       { return c.prod.kind }
func (c *consumer) ProducerID() string { return c.prod.id }

func (c *consumer) ProducerPaused() bool { return c.prod.Paused() }

func (c *consumer) RtpParameters() core.Params {
	b, _ := json.Marshal(map[string]any{"codecs": []core.RtpCodec{c.prod.Codec()}})
	return b
}

func (c *consumer) Paused() bool { return c.paused.Load() }

func (c *consumer) Pause() error {
	c.paused.Store(true)
	c.prod.relay.setState(c.id, sinkMuted)
	return nil
}

func (c *consumer) Resume() error {
	c.paused.Store(false)
	c.prod.relay.setState(c.id, sinkOk)
	return nil
}

// SetPreferredLayers records the request. The relay forwards a single
// encoding, so there is no layer to switch and OnLayersChange never fires.
func (c *consumer) SetPreferredLayers(spatialLayer int) error {
	c.mu.Lock()
	c.selectedLayer = spatialLayer
	c.mu.Unlock()
	return nil
}

func (c *consumer) OnLayersChange(fn func(spatialLayer int)) {
	c.mu.Lock()
	c.onLayersChange = fn
	c.mu.Unlock()
}

func (c *consumer) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.prod.relay.removeSink(c.id)
	c.prod.unsubscribe(c.id)
	if c.detach != nil {
		c.detach()
	}
	return nil
}

func (c *consumer) OnProducerClose(fn func()) {
	c.mu.Lock()
	c.onProducerClose = append(c.onProducerClose, fn)
	c.mu.Unlock()
}

func (c *consumer) OnTransportClose(fn func()) {
	c.mu.Lock()
	c.onTransport = append(c.onTransport, fn)
	c.mu.Unlock()
}

func (c *consumer) fireProducerClose() {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	cbs := c.onProducerClose
	c.mu.Unlock()
	for _, fn := range cbs {
		go fn()
	}
}

func (c *consumer) fireTransportClose() {
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	cbs := c.onTransport
	c.mu.Unlock()
	for _, fn := range cbs {
		go fn()
	}
}
