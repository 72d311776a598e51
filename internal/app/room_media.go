package app

import (
	"encoding/json"

	"github.com/openmeet/openmeet/internal/core"
	"github.com/openmeet/openmeet/internal/domain"
)

// TransportReply carries the connection parameters the client needs to
// finish its side of the handshake.
type TransportReply struct {
	ID             string      `json:"id"`
	ConnectionInfo core.Params `json:"connectionInfo,omitempty"`
}

// ConsumerReply carries what the client needs to set up its side of a
// subscription.
type ConsumerReply struct {
	ProducerID     string      `json:"producerId"`
	ID             string      `json:"id"`
	Kind           string      `json:"kind"`
	RtpParameters  core.Params `json:"rtpParameters,omitempty"`
	ProducerPaused bool        `json:"producerPaused"`
}

// CreateTransport creates the peer's transport for the given direction. Each
// peer gets at most one per direction; a repeated call returns the existing
// transport's parameters instead of failing.
func (r *Room) CreateTransport(peerID domain.PeerID, direction domain.MediaDirection) (*TransportReply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !direction.Valid() {
		return nil, core.NotFoundf("unknown direction %q", direction)
	}
	if _, ok := r.peers[peerID]; !ok {
		return nil, core.NotFoundf("peer %s", peerID)
	}
	for _, rec := range r.transports {
		if rec.peerID == peerID && rec.direction == direction {
			return &TransportReply{ID: rec.t.ID(), ConnectionInfo: rec.t.ConnectionInfo()}, nil
		}
	}
	t, err := r.router.CreateTransport(core.TransportOptions{
		PeerID:    string(peerID),
		Direction: string(direction),
	})
	if err != nil {
		return nil, core.EngineFailure(err)
	}
	id := t.ID()
	r.transports[id] = &transportRec{t: t, peerID: peerID, direction: direction}
	// The engine may close the transport on its own; deliver that back into
	// the room's serialization domain.
	t.OnClose(func() { r.onEngineTransportClose(id) })
	r.logger.Info().Str("peer", string(peerID)).Str("transport", id).
		Str("direction", string(direction)).Msg("transport created")
	return &TransportReply{ID: id, ConnectionInfo: t.ConnectionInfo()}, nil
}

// ConnectTransport finalizes the handshake with client parameters. The engine
// treats connecting an already connected transport as a no-op.
func (r *Room) ConnectTransport(peerID domain.PeerID, transportID string, clientParams core.Params) (core.Params, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[peerID]; !ok {
		return nil, core.NotFoundf("peer %s", peerID)
	}
	rec, ok := r.transports[transportID]
	if !ok {
		return nil, core.NotFoundf("transport %s", transportID)
	}
	reply, err := rec.t.Connect(clientParams)
	if err != nil {
		return nil, core.EngineFailure(err)
	}
	return reply, nil
}

func (r *Room) CloseTransport(peerID domain.PeerID, transportID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[peerID]; !ok {
		return core.NotFoundf("peer %s", peerID)
	}
	if _, ok := r.transports[transportID]; !ok {
		return core.NotFoundf("transport %s", transportID)
	}
	r.closeTransportLocked(transportID)
	return nil
}

// SendTrack registers a new producer on the peer's send transport and tells
// the whole room the media is ready; every peer decides independently whether
// to subscribe.
func (r *Room) SendTrack(peerID domain.PeerID, transportID, kind string, rtpParameters core.Params, paused bool, tag domain.MediaTag) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.peers[peerID]
	if !ok {
		return "", core.NotFoundf("peer %s", peerID)
	}
	rec, ok := r.transports[transportID]
	if !ok || rec.peerID != peerID {
		return "", core.NotFoundf("transport %s", transportID)
	}
	producer, err := rec.t.Produce(core.ProduceOptions{
		Kind:          kind,
		RtpParameters: rtpParameters,
		Paused:        paused,
	})
	if err != nil {
		return "", core.EngineFailure(err)
	}
	id := producer.ID()
	r.producers[id] = &producerRec{p: producer, peerID: peerID, transportID: transportID, tag: tag}
	producer.OnTransportClose(func() { r.onEngineProducerClose(id) })

	var enc struct {
		Encodings json.RawMessage `json:"encodings"`
	}
	_ = json.Unmarshal(rtpParameters, &enc)
	info := &MediaInfo{Paused: paused, Encodings: core.Params(enc.Encodings), ProducerID: id}
	peer.Media[tag] = info

	r.broadcastLocked(ActReady, map[string]any{
		"peerId":    peerID,
		"mediaTag":  tag,
		"mediaInfo": info,
	}, "")
	r.logger.Info().Str("peer", string(peerID)).Str("producer", id).Str("tag", string(tag)).Msg("track produced")

	r.maybeStartRecordingLocked(peer)
	return id, nil
}

// RecvTrack subscribes the peer to another peer's producer. The recv
// transport must already exist; creating it lazily here is not permitted.
// The consumer always starts paused and must be resumed explicitly.
func (r *Room) RecvTrack(peerID, mediaPeerID domain.PeerID, tag domain.MediaTag, capabilities core.Params) (*ConsumerReply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.peers[peerID]
	if !ok {
		return nil, core.NotFoundf("peer %s", peerID)
	}
	var prod *producerRec
	for _, rec := range r.producers {
		if rec.peerID == mediaPeerID && rec.tag == tag {
			prod = rec
			break
		}
	}
	if prod == nil {
		return nil, core.NotFoundf("producer for %s:%s", mediaPeerID, tag)
	}
	if !r.router.CanConsume(prod.p.ID(), capabilities) {
		return nil, core.ErrCapabilityMismatch
	}
	var recv *transportRec
	for _, rec := range r.transports {
		if rec.peerID == peerID && rec.direction == domain.DirectionRecv {
			recv = rec
			break
		}
	}
	if recv == nil {
		return nil, core.NotFoundf("recv transport for %s", peerID)
	}
	consumer, err := recv.t.Consume(core.ConsumeOptions{
		ProducerID:   prod.p.ID(),
		Capabilities: capabilities,
		Paused:       true,
	})
	if err != nil {
		return nil, core.EngineFailure(err)
	}
	id := consumer.ID()
	r.consumers[id] = &consumerRec{
		c:           consumer,
		peerID:      peerID,
		transportID: recv.t.ID(),
		mediaPeerID: mediaPeerID,
		tag:         tag,
	}
	peer.ConsumerLayers[id] = &ConsumerLayers{}
	consumer.OnTransportClose(func() { r.onEngineConsumerClose(id) })
	consumer.OnProducerClose(func() { r.onEngineConsumerClose(id) })
	consumer.OnLayersChange(func(layer int) { r.onConsumerLayersChange(peerID, id, layer) })

	r.logger.Info().Str("peer", string(peerID)).Str("consumer", id).
		Str("media_peer", string(mediaPeerID)).Str("tag", string(tag)).Msg("track consumed")
	return &ConsumerReply{
		ProducerID:     prod.p.ID(),
		ID:             id,
		Kind:           consumer.Kind(),
		RtpParameters:  consumer.RtpParameters(),
		ProducerPaused: consumer.ProducerPaused(),
	}, nil
}

func (r *Room) PauseProducer(peerID domain.PeerID, producerID string) error {
	return r.setProducerPaused(peerID, producerID, true)
}

func (r *Room) ResumeProducer(peerID domain.PeerID, producerID string) error {
	return r.setProducerPaused(peerID, producerID, false)
}

func (r *Room) setProducerPaused(peerID domain.PeerID, producerID string, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[peerID]; !ok {
		return core.NotFoundf("peer %s", peerID)
	}
	rec, ok := r.producers[producerID]
	if !ok {
		return core.NotFoundf("producer %s", producerID)
	}
	var err error
	if paused {
		err = rec.p.Pause()
	} else {
		err = rec.p.Resume()
	}
	if err != nil {
		return core.EngineFailure(err)
	}
	// Mirror the flag so peers polling room state see a consistent view.
	if owner, ok := r.peers[rec.peerID]; ok {
		if info, ok := owner.Media[rec.tag]; ok {
			info.Paused = paused
		}
	}
	return nil
}

func (r *Room) PauseConsumer(peerID domain.PeerID, consumerID string) error {
	return r.setConsumerPaused(peerID, consumerID, true)
}

func (r *Room) ResumeConsumer(peerID domain.PeerID, consumerID string) error {
	return r.setConsumerPaused(peerID, consumerID, false)
}

func (r *Room) setConsumerPaused(peerID domain.PeerID, consumerID string, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[peerID]; !ok {
		return core.NotFoundf("peer %s", peerID)
	}
	rec, ok := r.consumers[consumerID]
	if !ok {
		return core.NotFoundf("consumer %s", consumerID)
	}
	var err error
	if paused {
		err = rec.c.Pause()
	} else {
		err = rec.c.Resume()
	}
	if err != nil {
		return core.EngineFailure(err)
	}
	return nil
}

func (r *Room) CloseProducer(peerID domain.PeerID, producerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[peerID]; !ok {
		return core.NotFoundf("peer %s", peerID)
	}
	if _, ok := r.producers[producerID]; !ok {
		return core.NotFoundf("producer %s", producerID)
	}
	r.closeProducerLocked(producerID)
	return nil
}

func (r *Room) CloseConsumer(peerID domain.PeerID, consumerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.peers[peerID]; !ok {
		return core.NotFoundf("peer %s", peerID)
	}
	if _, ok := r.consumers[consumerID]; !ok {
		return core.NotFoundf("consumer %s", consumerID)
	}
	r.closeConsumerLocked(consumerID)
	return nil
}

// ConsumerSetLayers records the client's preferred simulcast layer and passes
// it on to the engine.
func (r *Room) ConsumerSetLayers(peerID domain.PeerID, consumerID string, spatialLayer int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.peers[peerID]
	if !ok {
		return core.NotFoundf("peer %s", peerID)
	}
	rec, ok := r.consumers[consumerID]
	if !ok {
		return core.NotFoundf("consumer %s", consumerID)
	}
	if err := rec.c.SetPreferredLayers(spatialLayer); err != nil {
		return core.EngineFailure(err)
	}
	layer := spatialLayer
	if cl, ok := peer.ConsumerLayers[consumerID]; ok {
		cl.ClientSelectedLayer = &layer
	} else {
		peer.ConsumerLayers[consumerID] = &ConsumerLayers{ClientSelectedLayer: &layer}
	}
	return nil
}

// closeTransportLocked closes the engine transport and cascades: every
// producer and consumer owned by it leaves the registries. Idempotent under
// duplicate close attempts, which can race with the engine's own close
// notifications.
func (r *Room) closeTransportLocked(transportID string) {
	rec, ok := r.transports[transportID]
	if !ok {
		return
	}
	delete(r.transports, transportID)
	r.logger.Info().Str("transport", transportID).Msg("closing transport")
	if err := rec.t.Close(); err != nil {
		r.logger.Error().Err(err).Str("transport", transportID).Msg("engine transport close")
	}
	for id, p := range r.producers {
		if p.transportID == transportID {
			r.closeProducerLocked(id)
		}
	}
	for id, c := range r.consumers {
		if c.transportID == transportID {
			r.closeConsumerLocked(id)
		}
	}
}

func (r *Room) closeProducerLocked(producerID string) {
	rec, ok := r.producers[producerID]
	if !ok {
		return
	}
	delete(r.producers, producerID)
	r.logger.Info().Str("producer", producerID).Str("tag", string(rec.tag)).Msg("closing producer")
	if err := rec.p.Close(); err != nil {
		r.logger.Error().Err(err).Str("producer", producerID).Msg("engine producer close")
	}
	if owner, ok := r.peers[rec.peerID]; ok {
		if info, ok := owner.Media[rec.tag]; ok && info.ProducerID == producerID {
			delete(owner.Media, rec.tag)
		}
	}
	// Subscriptions to the gone producer cascade here, not on the engine's
	// async notification; the notification still lands later and finds the
	// registry already clean.
	for id, c := range r.consumers {
		if c.c.ProducerID() == producerID {
			r.closeConsumerLocked(id)
		}
	}
}

func (r *Room) closeConsumerLocked(consumerID string) {
	rec, ok := r.consumers[consumerID]
	if !ok {
		return
	}
	delete(r.consumers, consumerID)
	r.logger.Info().Str("consumer", consumerID).Msg("closing consumer")
	if err := rec.c.Close(); err != nil {
		r.logger.Error().Err(err).Str("consumer", consumerID).Msg("engine consumer close")
	}
	if owner, ok := r.peers[rec.peerID]; ok {
		delete(owner.ConsumerLayers, consumerID)
	}
}

func (r *Room) onEngineTransportClose(transportID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeTransportLocked(transportID)
}

func (r *Room) onEngineProducerClose(producerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeProducerLocked(producerID)
}

func (r *Room) onEngineConsumerClose(consumerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeConsumerLocked(consumerID)
}

func (r *Room) onConsumerLayersChange(peerID domain.PeerID, consumerID string, layer int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.peers[peerID]
	if !ok {
		return
	}
	if cl, ok := peer.ConsumerLayers[consumerID]; ok {
		l := layer
		cl.CurrentLayer = &l
	}
}
