package app

import (
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/openmeet/openmeet/internal/core"
)

var ErrNoWorkers = errors.New("worker pool is empty")

type workerSlot struct {
	worker  core.Worker
	balance atomic.Int64
}

// Pool balances rooms across media workers. Assignment is permanent: a room
// never migrates off the worker it was placed on.
type Pool struct {
	slots []*workerSlot
}

// NewPool wraps the given workers. Worker death is unrecoverable for that
// worker's rooms, so the pool escalates it to a process exit and relies on
// external supervision for restart.
func NewPool(workers []core.Worker) (*Pool, error) {
	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}
	p := &Pool{}
	for _, w := range workers {
		w := w
		w.OnDied(func(err error) {
			log.Fatal().Err(err).Str("module", "app.pool").Str("worker", w.ID()).Msg("media worker died")
		})
		p.slots = append(p.slots, &workerSlot{worker: w})
	}
	return p, nil
}

// AssignRoom picks the worker with the smallest balance, ties resolving to
// the first one in slice order, and creates a router on it. The balance is
// incremented only once the router exists.
func (p *Pool) AssignRoom() (core.Worker, core.Router, error) {
	var min *workerSlot
	for _, s := range p.slots {
		if min == nil || s.balance.Load() < min.balance.Load() {
			min = s
		}
	}
	router, err := min.worker.CreateRouter()
	if err != nil {
		return nil, nil, core.EngineFailure(err)
	}
	min.balance.Add(1)
	log.Info().Str("module", "app.pool").Str("worker", min.worker.ID()).
		Int64("balance", min.balance.Load()).Msg("room assigned to worker")
	return min.worker, router, nil
}

// ResetBalances zeroes every worker's balance. Used when the room set is
// rebuilt from the directory.
func (p *Pool) ResetBalances() {
	for _, s := range p.slots {
		s.balance.Store(0)
	}
}

func (p *Pool) Balances() []int64 {
	out := make([]int64, len(p.slots))
	for i, s := range p.slots {
		out[i] = s.balance.Load()
	}
	return out
}

func (p *Pool) Close() {
	for _, s := range p.slots {
		s.worker.Close()
	}
}
