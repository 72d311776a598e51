package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openmeet/openmeet/internal/app/record"
	"github.com/openmeet/openmeet/internal/config"
	"github.com/openmeet/openmeet/internal/core"
	"github.com/openmeet/openmeet/internal/domain"
)

// transportRec binds an engine transport to its owning peer. The direction
// is immutable for the transport's lifetime.
type transportRec struct {
	t         core.Transport
	peerID    domain.PeerID
	direction domain.MediaDirection
}

type producerRec struct {
	p           core.Producer
	peerID      domain.PeerID
	transportID string
	tag         domain.MediaTag
}

type consumerRec struct {
	c           core.Consumer
	peerID      domain.PeerID
	transportID string
	mediaPeerID domain.PeerID
	tag         domain.MediaTag
}

// Room is one meeting. It owns exactly one router from exactly one worker,
// fixed at creation. Every operation on a room, including reaper ticks and
// engine event delivery, is serialized behind mu; rooms are fully independent
// of each other.
type Room struct {
	meta   domain.Room
	worker core.Worker
	router core.Router
	cfg    config.Peer
	rec    *record.Service
	logger zerolog.Logger

	// now is swapped out by tests.
	now func() time.Time

	mu         sync.Mutex
	peers      map[domain.PeerID]*Peer
	transports map[string]*transportRec
	producers  map[string]*producerRec
	consumers  map[string]*consumerRec
	dominant   domain.PeerID

	done chan struct{}
}

func NewRoom(meta domain.Room, worker core.Worker, router core.Router, cfg config.Peer, rec *record.Service) *Room {
	r := &Room{
		meta:       meta,
		worker:     worker,
		router:     router,
		cfg:        cfg,
		rec:        rec,
		logger:     log.With().Str("module", "app.room").Str("room", string(meta.ID)).Logger(),
		now:        time.Now,
		peers:      make(map[domain.PeerID]*Peer),
		transports: make(map[string]*transportRec),
		producers:  make(map[string]*producerRec),
		consumers:  make(map[string]*consumerRec),
		done:       make(chan struct{}),
	}
	router.ObserveAudioActivity(r.onDominantSpeaker)
	go r.reapLoop()
	return r
}

func (r *Room) Meta() domain.Room { return r.meta }

// Capabilities exposes the router's capability descriptor for client-side
// negotiation.
func (r *Room) Capabilities() core.Params { return r.router.Capabilities() }

func (r *Room) HasPeer(peerID domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.peers[peerID]
	return ok
}

// RoomState is the per-room snapshot served to polling clients.
type RoomState struct {
	Room            domain.Room      `json:"room"`
	Members         []MemberSnapshot `json:"members"`
	DominantSpeaker domain.PeerID    `json:"dominantSpeaker,omitempty"`
}

func (r *Room) State() RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomState{
		Room:            r.meta,
		Members:         r.membersLocked(),
		DominantSpeaker: r.dominant,
	}
}

func (r *Room) membersLocked() []MemberSnapshot {
	out := make([]MemberSnapshot, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p.snapshot())
	}
	return out
}

// onDominantSpeaker maps the engine's producer id report back onto a peer.
// Delivered from the engine, so it enters the room's serialization domain
// like any other operation.
func (r *Room) onDominantSpeaker(producerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.producers[producerID]
	if !ok {
		return
	}
	if r.dominant != rec.peerID {
		r.dominant = rec.peerID
		r.logger.Debug().Str("peer", string(rec.peerID)).Msg("dominant speaker changed")
	}
}

func (r *Room) reapLoop() {
	ticker := time.NewTicker(r.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.reap()
		}
	}
}

// reap removes peers whose heartbeat went stale. Cleanup of each peer is
// isolated so one failure cannot abort the scan of the rest.
func (r *Room) reap() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for id, p := range r.peers {
		if now.Sub(p.LastSeenTs) <= r.cfg.StaleAfter {
			continue
		}
		r.logger.Warn().Str("peer", string(id)).Msg("removing stale peer")
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error().Any("panic", rec).Str("peer", string(id)).Msg("stale peer cleanup failed")
				}
			}()
			if p.conn != nil {
				p.conn.Close()
			}
			r.kickoffLocked(p)
		}()
	}
}

// Release tears the room down: the reaper stops, every peer is kicked, the
// router is closed.
func (r *Room) Release() {
	select {
	case <-r.done:
		return
	default:
		close(r.done)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.peers {
		if p.conn != nil {
			p.conn.Close()
		}
		r.kickoffLocked(p)
	}
	r.router.Close()
	r.logger.Info().Msg("room released")
}
