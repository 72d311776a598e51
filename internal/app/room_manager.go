package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/openmeet/openmeet/internal/app/record"
	"github.com/openmeet/openmeet/internal/config"
	"github.com/openmeet/openmeet/internal/core"
	"github.com/openmeet/openmeet/internal/domain"
)

// RoomSource is the directory collaborator: it knows which rooms should
// exist. Persistence of that data is somebody else's problem.
type RoomSource interface {
	Rooms() []domain.Room
}

// Manager owns one Room per directory entry. Each room is bound to a worker
// by least-load placement at creation time and never migrates.
type Manager struct {
	pool    *Pool
	source  RoomSource
	peerCfg config.Peer
	rec     *record.Service

	mu    sync.RWMutex
	rooms map[domain.RoomID]*Room
}

func NewManager(pool *Pool, source RoomSource, peerCfg config.Peer, rec *record.Service) *Manager {
	return &Manager{
		pool:    pool,
		source:  source,
		peerCfg: peerCfg,
		rec:     rec,
		rooms:   make(map[domain.RoomID]*Room),
	}
}

// CreateRooms builds a Room for every directory entry.
func (m *Manager) CreateRooms() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, meta := range m.source.Rooms() {
		if _, ok := m.rooms[meta.ID]; ok {
			continue
		}
		worker, router, err := m.pool.AssignRoom()
		if err != nil {
			return err
		}
		m.rooms[meta.ID] = NewRoom(meta, worker, router, m.peerCfg, m.rec)
		log.Info().Str("module", "app.manager").Str("room", string(meta.ID)).
			Str("worker", worker.ID()).Msg("room created")
	}
	return nil
}

// ResetRooms releases every room, zeroes worker balances and rebuilds the
// room set from the directory.
func (m *Manager) ResetRooms() error {
	m.mu.Lock()
	for _, r := range m.rooms {
		r.Release()
	}
	m.rooms = make(map[domain.RoomID]*Room)
	m.mu.Unlock()
	m.pool.ResetBalances()
	return m.CreateRooms()
}

func (m *Manager) Room(id domain.RoomID) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// RoomOfPeer locates the room currently holding the given peer.
func (m *Manager) RoomOfPeer(peerID domain.PeerID) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rooms {
		if r.HasPeer(peerID) {
			return r, true
		}
	}
	return nil, false
}

// Capabilities returns a capability descriptor for client-side negotiation.
// All routers share a codec set, so any room's answer will do.
func (m *Manager) Capabilities() core.Params {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rooms {
		return r.Capabilities()
	}
	return nil
}

// ConnectUser admits a user into its directory-assigned room. A user may
// hold at most one live peer anywhere: stale peers in other rooms are kicked
// first, then the destination room performs its own atomic replace.
func (m *Manager) ConnectUser(conn core.SignalConnection, user *domain.User, peerID domain.PeerID) error {
	m.mu.RLock()
	target, ok := m.rooms[user.RoomID]
	others := make([]*Room, 0, len(m.rooms))
	for id, r := range m.rooms {
		if id != user.RoomID {
			others = append(others, r)
		}
	}
	m.mu.RUnlock()
	if !ok {
		return core.ErrOffline
	}
	for _, r := range others {
		r.KickUser(user.ID)
	}
	return target.Connect(conn, user, peerID)
}

func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		r.Release()
	}
	m.rooms = make(map[domain.RoomID]*Room)
}
