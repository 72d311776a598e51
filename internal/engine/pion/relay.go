package pion

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// rtpSink receives forwarded packets. Both outbound WebRTC tracks and plain
// UDP mirrors satisfy it.
type rtpSink interface {
	WriteRTP(p *rtp.Packet) error
}

const (
	sinkOk int32 = iota
	sinkMuted
	sinkDelete
)

type outTrack struct {
	sink  rtpSink
	state atomic.Int32
}

// relay fans one producer's packets out to its consumers. Sinks flagged for
// deletion after a write error are swept on the next pass.
type relay struct {
	mu    sync.RWMutex
	sinks map[string]*outTrack
}

func newRelay() *relay {
	return &relay{sinks: make(map[string]*outTrack)}
}

func (r *relay) addSink(id string, s rtpSink, muted bool) {
	ot := &outTrack{sink: s}
	if muted {
		ot.state.Store(sinkMuted)
	}
	r.mu.Lock()
	r.sinks[id] = ot
	r.mu.Unlock()
}

func (r *relay) setState(id string, state int32) {
	r.mu.RLock()
	ot := r.sinks[id]
	r.mu.RUnlock()
	if ot != nil && ot.state.Load() != sinkDelete {
		ot.state.Store(state)
	}
}

func (r *relay) removeSink(id string) {
	r.mu.Lock()
	delete(r.sinks, id)
	r.mu.Unlock()
}

// audioActivityStride spaces out activity reports so the observer is not hit
// on every opus frame.
const audioActivityStride = 50

func (r *relay) run(ctx context.Context, src *webrtc.TrackRemote, p *producer) {
	packets := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		pkt, _, err := src.ReadRTP()
		if err != nil {
			log.Debug().Str("module", "engine").Str("producer", p.id).Err(err).Msg("relay source ended")
			return
		}
		if p.paused.Load() {
			continue
		}
		if p.kind == "audio" {
			packets++
			if packets%audioActivityStride == 0 {
				p.t.r.noteAudioActivity(p.id)
			}
		}
		r.forward(pkt)
	}
}

func (r *relay) forward(pkt *rtp.Packet) {
	r.mu.RLock()
	var dead []string
	for id, ot := range r.sinks {
		switch ot.state.Load() {
		case sinkOk:
			if err := ot.sink.WriteRTP(pkt); err != nil {
				ot.state.Store(sinkDelete)
				dead = append(dead, id)
			}
		case sinkDelete:
			dead = append(dead, id)
		}
	}
	r.mu.RUnlock()
	if len(dead) == 0 {
		return
	}
	r.mu.Lock()
	for _, id := range dead {
		delete(r.sinks, id)
	}
	r.mu.Unlock()
}
