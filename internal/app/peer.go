package app

import (
	"time"

	"github.com/openmeet/openmeet/internal/core"
	"github.com/openmeet/openmeet/internal/domain"
)

// MediaInfo mirrors the state of one producer so polling clients see a
// consistent view without asking the engine.
type MediaInfo struct {
	Paused     bool        `json:"paused"`
	Encodings  core.Params `json:"encodings,omitempty"`
	ProducerID string      `json:"producerId"`
}

// ConsumerLayers tracks simulcast layer state per consumer: what the engine
// currently forwards and what the client asked for.
type ConsumerLayers struct {
	CurrentLayer        *int `json:"currentLayer"`
	ClientSelectedLayer *int `json:"clientSelectedLayer"`
}

// Peer is one connected client inside a Room. All fields are owned by the
// Room and must only be touched while holding the Room lock.
type Peer struct {
	ID         domain.PeerID
	UserID     domain.UserID
	RoomID     domain.RoomID
	Name       string
	Admin      bool
	JoinTs     time.Time
	LastSeenTs time.Time

	Media          map[domain.MediaTag]*MediaInfo
	ConsumerLayers map[string]*ConsumerLayers
	Stats          map[string]any

	recording *recordingSession
	// conn is nil once the socket drops; the peer object lingers until the
	// cascade removes it.
	conn core.SignalConnection
}

// MemberSnapshot is the read-only view broadcast to other peers and exposed
// to polling clients.
type MemberSnapshot struct {
	ID             domain.PeerID                  `json:"id"`
	UserID         domain.UserID                  `json:"userId"`
	RoomID         domain.RoomID                  `json:"roomId"`
	Name           string                         `json:"name"`
	Admin          bool                           `json:"admin"`
	Media          map[domain.MediaTag]*MediaInfo `json:"media"`
	ConsumerLayers map[string]*ConsumerLayers     `json:"consumerLayers"`
	Stats          map[string]any                 `json:"stats"`
}

func (p *Peer) snapshot() MemberSnapshot {
	return MemberSnapshot{
		ID:             p.ID,
		UserID:         p.UserID,
		RoomID:         p.RoomID,
		Name:           p.Name,
		Admin:          p.Admin,
		Media:          p.Media,
		ConsumerLayers: p.ConsumerLayers,
		Stats:          p.Stats,
	}
}
