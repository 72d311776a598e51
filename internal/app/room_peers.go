package app

import (
	"encoding/json"

	"github.com/openmeet/openmeet/internal/core"
	"github.com/openmeet/openmeet/internal/domain"
)

type connectedPayload struct {
	Members      []MemberSnapshot `json:"members"`
	Capabilities core.Params      `json:"capabilities"`
	Room         domain.Room      `json:"room"`
}

// Connect admits a validated user as a new peer. If the same user already
// holds a live peer in this room, that peer's connection is forced closed and
// its resources cascade-removed before the new peer is inserted; both steps
// happen under the room lock so no other operation can observe two live peers
// for one user.
func (r *Room) Connect(conn core.SignalConnection, user *domain.User, peerID domain.PeerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, p := range r.peers {
		if p.UserID != user.ID {
			continue
		}
		r.logger.Info().Str("peer", string(id)).Str("user", string(user.ID)).Msg("kicking duplicate connection")
		if p.conn != nil {
			// Even when the old handle is already broken the peer must still
			// be cascade-removed, never left orphaned.
			p.conn.Close()
		}
		r.kickoffLocked(p)
	}

	now := r.now()
	peer := &Peer{
		ID:             peerID,
		UserID:         user.ID,
		RoomID:         r.meta.ID,
		Name:           user.Name,
		Admin:          user.Admin,
		JoinTs:         now,
		LastSeenTs:     now,
		Media:          make(map[domain.MediaTag]*MediaInfo),
		ConsumerLayers: make(map[string]*ConsumerLayers),
		Stats:          make(map[string]any),
		conn:           conn,
	}
	r.peers[peerID] = peer
	r.logger.Info().Str("peer", string(peerID)).Str("user", string(user.ID)).Msg("peer connected")

	r.sendToLocked(conn, ActConnected, connectedPayload{
		Members:      r.membersLocked(),
		Capabilities: r.router.Capabilities(),
		Room:         r.meta,
	})
	r.broadcastLocked(ActJoin, map[string]any{"member": peer.snapshot()}, peerID)
	return nil
}

// Heartbeat refreshes the peer's liveness timestamp. Cheap and idempotent;
// clients call it on a fixed interval.
func (r *Room) Heartbeat(peerID domain.PeerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return core.NotFoundf("peer %s", peerID)
	}
	p.LastSeenTs = r.now()
	return nil
}

// Disconnect handles a dropped or client-closed socket: the connection handle
// is cleared, the rest of the room learns about the departure, then every
// resource owned by the peer is cascaded away.
func (r *Room) Disconnect(peerID domain.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return
	}
	r.logger.Info().Str("peer", string(peerID)).Msg("peer disconnected")
	p.conn = nil
	r.kickoffLocked(p)
}

// Leave is the explicit counterpart of Disconnect, driven by a client request
// instead of a socket event.
func (r *Room) Leave(peerID domain.PeerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return core.NotFoundf("peer %s", peerID)
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	r.kickoffLocked(p)
	return nil
}

// KickUser force-removes any peer belonging to the given user. Used when the
// same user connects to a different room.
func (r *Room) KickUser(userID domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.peers {
		if p.UserID != userID {
			continue
		}
		if p.conn != nil {
			p.conn.Close()
		}
		r.kickoffLocked(p)
	}
}

// HandleChat relays a room chat message: the sender gets a delivery receipt
// with its sequence number, everyone else gets the message.
func (r *Room) HandleChat(peerID domain.PeerID, msg json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return
	}
	var seq struct {
		Seq int64 `json:"seq"`
	}
	_ = json.Unmarshal(msg, &seq)
	if p.conn != nil {
		r.sendToLocked(p.conn, ActSuccess, seq.Seq)
	}
	r.broadcastLocked(ActMessage, msg, peerID)
}

// kickoffLocked removes the peer and everything it owns, then tells the rest
// of the room. Every removal path funnels through here, so a peer can never
// vanish without the survivors seeing a leave. Sub-failures are logged and
// swallowed so a partial cascade never blocks peer removal.
func (r *Room) kickoffLocked(p *Peer) {
	r.logger.Info().Str("peer", string(p.ID)).Msg("closing peer")
	r.stopRecordingLocked(p)
	for id, rec := range r.transports {
		if rec.peerID == p.ID {
			r.closeTransportLocked(id)
		}
	}
	if r.dominant == p.ID {
		r.dominant = ""
	}
	delete(r.peers, p.ID)
	r.broadcastLocked(ActLeave, map[string]any{"peerId": p.ID}, p.ID)
}

func (r *Room) sendToLocked(conn core.SignalConnection, act Action, data any) {
	frame, err := EncodeAction(act, data)
	if err != nil {
		r.logger.Error().Err(err).Int("act", int(act)).Msg("encode frame")
		return
	}
	if err := conn.TrySend(frame); err != nil {
		r.logger.Debug().Err(err).Int("act", int(act)).Msg("send dropped")
	}
}

func (r *Room) broadcastLocked(act Action, data any, excluded domain.PeerID) {
	frame, err := EncodeAction(act, data)
	if err != nil {
		r.logger.Error().Err(err).Int("act", int(act)).Msg("encode frame")
		return
	}
	for id, p := range r.peers {
		if id == excluded || p.conn == nil {
			continue
		}
		if err := p.conn.TrySend(frame); err != nil {
			r.logger.Debug().Err(err).Str("peer", string(id)).Msg("broadcast dropped")
		}
	}
}
