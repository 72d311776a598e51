// Package pion realizes the media engine capability interfaces on top of
// pion/webrtc. Each worker gets its own webrtc.API with a private UDP port
// partition, so rooms balanced across workers never contend for ports.
package pion

import (
	"errors"
	"runtime"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/openmeet/openmeet/internal/config"
	"github.com/openmeet/openmeet/internal/core"
)

type Engine struct {
	workers []*worker
}

func New(cfg config.RTC) (*Engine, error) {
	n := cfg.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	span := (cfg.RtcMaxPort - cfg.RtcMinPort) / n
	if span < 2 {
		return nil, errors.New("rtc port range too small for worker count")
	}
	e := &Engine{}
	for i := 0; i < n; i++ {
		lo := cfg.RtcMinPort + span*i
		hi := cfg.RtcMinPort + span*(i+1) - 1
		w, err := newWorker(uint16(lo), uint16(hi))
		if err != nil {
			return nil, err
		}
		e.workers = append(e.workers, w)
		log.Info().Str("module", "engine").Str("worker", w.id).
			Int("min_port", lo).Int("max_port", hi).Msg("media worker started")
	}
	return e, nil
}

func (e *Engine) Workers() []core.Worker {
	out := make([]core.Worker, len(e.workers))
	for i, w := range e.workers {
		out[i] = w
	}
	return out
}

type worker struct {
	id     string
	api    *webrtc.API
	onDied func(error)
}

func newWorker(minPort, maxPort uint16) (*worker, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	se := webrtc.SettingEngine{}
	if err := se.SetEphemeralUDPPortRange(minPort, maxPort); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(se))
	return &worker{id: uuid.NewString(), api: api}, nil
}

func (w *worker) ID() string { return w.id }

func (w *worker) CreateRouter() (core.Router, error) {
	return newRouter(w.api), nil
}

// OnDied registers the fatal-death callback. The pion engine runs in-process,
// so the callback only exists to satisfy the worker contract; an out-of-process
// engine would fire it when its child dies.
func (w *worker) OnDied(fn func(error)) { w.onDied = fn }

func (w *worker) Close() {}
