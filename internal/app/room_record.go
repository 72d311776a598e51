package app

import (
	"fmt"
	"strconv"
	"time"

	"github.com/openmeet/openmeet/internal/app/record"
	"github.com/openmeet/openmeet/internal/core"
	"github.com/openmeet/openmeet/internal/domain"
)

// mirror is one half of a recording session: a plain transport cloning one
// producer's stream to a local port, plus the paused consumer driving it.
type mirror struct {
	pt       core.PlainTransport
	consumer core.Consumer
	port     int
	track    record.Track
}

type recordingSession struct {
	proc    *record.Process
	mirrors []*mirror
}

// maybeStartRecordingLocked checks the trigger condition after every
// send-track: the peer's media map must hold both screen-video and cam-audio
// at the same time, in either arrival order. A live recording suppresses
// re-triggering.
func (r *Room) maybeStartRecordingLocked(p *Peer) {
	if p.recording != nil {
		return
	}
	video, okV := p.Media[domain.TagScreenVideo]
	audio, okA := p.Media[domain.TagCamAudio]
	if !okV || !okA {
		return
	}
	if err := r.startRecordingLocked(p, video.ProducerID, audio.ProducerID); err != nil {
		r.logger.Error().Err(err).Str("peer", string(p.ID)).Msg("recording start failed")
	}
}

// StartRecord is the explicit signaling entry point for the same pipeline.
func (r *Room) StartRecord(peerID domain.PeerID, videoProducerID, audioProducerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[peerID]
	if !ok {
		return core.NotFoundf("peer %s", peerID)
	}
	if p.recording != nil {
		return nil
	}
	return r.startRecordingLocked(p, videoProducerID, audioProducerID)
}

func (r *Room) startRecordingLocked(p *Peer, videoProducerID, audioProducerID string) error {
	if r.rec == nil {
		return fmt.Errorf("%w: recorder not configured", core.ErrRecordingFailure)
	}
	var mirrors []*mirror
	fail := func(err error) error {
		for _, m := range mirrors {
			r.releaseMirrorLocked(m)
		}
		return err
	}
	for _, producerID := range []string{videoProducerID, audioProducerID} {
		m, err := r.mirrorProducerLocked(producerID)
		if err != nil {
			return fail(err)
		}
		mirrors = append(mirrors, m)
	}

	fileName := strconv.FormatInt(time.Now().UnixMilli(), 10)
	doc, err := record.BuildDescriptor([]record.Track{mirrors[0].track, mirrors[1].track})
	if err != nil {
		return fail(fmt.Errorf("%w: %v", core.ErrRecordingFailure, err))
	}
	proc, err := r.rec.Spawn(fileName, doc)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", core.ErrRecordingFailure, err))
	}
	proc.OnExit(func(exitErr error) {
		// An early recorder exit is logged, never fatal to the room.
		r.logger.Warn().Err(exitErr).Str("peer", string(p.ID)).Msg("recorder process exited")
	})

	// Mirrored consumers follow the paused-by-default discipline; resume them
	// only once the subprocess is confirmed started.
	for _, m := range mirrors {
		if err := m.consumer.Resume(); err != nil {
			r.logger.Error().Err(err).Str("consumer", m.consumer.ID()).Msg("resume mirrored consumer")
		}
	}
	p.recording = &recordingSession{proc: proc, mirrors: mirrors}
	r.logger.Info().Str("peer", string(p.ID)).Str("file", fileName).Msg("recording started")
	return nil
}

func (r *Room) mirrorProducerLocked(producerID string) (*mirror, error) {
	rec, ok := r.producers[producerID]
	if !ok {
		return nil, core.NotFoundf("producer %s", producerID)
	}
	port, err := r.rec.AllocPort()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrRecordingFailure, err)
	}
	pt, err := r.router.CreatePlainTransport(core.PlainTransportOptions{IP: "127.0.0.1", Port: port})
	if err != nil {
		r.rec.ReleasePort(port)
		return nil, core.EngineFailure(err)
	}
	consumer, err := pt.Consume(producerID)
	if err != nil {
		if cerr := pt.Close(); cerr != nil {
			r.logger.Error().Err(cerr).Msg("plain transport close")
		}
		r.rec.ReleasePort(port)
		return nil, core.EngineFailure(err)
	}
	codec := rec.p.Codec()
	return &mirror{
		pt:       pt,
		consumer: consumer,
		port:     port,
		track:    record.Track{Kind: codec.Kind, Codec: codec, Port: port},
	}, nil
}

func (r *Room) releaseMirrorLocked(m *mirror) {
	if m.consumer != nil {
		if err := m.consumer.Close(); err != nil {
			r.logger.Error().Err(err).Msg("mirrored consumer close")
		}
	}
	if m.pt != nil {
		if err := m.pt.Close(); err != nil {
			r.logger.Error().Err(err).Msg("plain transport close")
		}
	}
	r.rec.ReleasePort(m.port)
}

// stopRecordingLocked kills the subprocess and frees the mirrored resources.
// Triggered by peer removal in any form.
func (r *Room) stopRecordingLocked(p *Peer) {
	if p.recording == nil {
		return
	}
	r.logger.Info().Str("peer", string(p.ID)).Msg("stopping recording")
	p.recording.proc.Kill()
	for _, m := range p.recording.mirrors {
		r.releaseMirrorLocked(m)
	}
	p.recording = nil
}
