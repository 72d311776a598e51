package pion

import (
	"encoding/json"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/openmeet/openmeet/internal/core"
)

var routerCodecs = []core.RtpCodec{
	{Kind: "audio", MimeType: webrtc.MimeTypeOpus, PayloadType: 111, ClockRate: 48000, Channels: 2},
	{Kind: "video", MimeType: webrtc.MimeTypeVP8, PayloadType: 96, ClockRate: 90000},
}

func defaultCodecFor(kind string) core.RtpCodec {
	for _, c := range routerCodecs {
		if c.Kind == kind {
			return c
		}
	}
	return core.RtpCodec{Kind: kind}
}

type router struct {
	id  string
	api *webrtc.API

	mu          sync.Mutex
	producers   map[string]*producer
	observer    func(producerID string)
	lastSpeaker string
	closed      bool
}

func newRouter(api *webrtc.API) *router {
	return &router{
		id:        uuid.NewString(),
		api:       api,
		producers: make(map[string]*producer),
	}
}

func (r *router) ID() string { return r.id }

func (r *router) Capabilities() core.Params {
	b, _ := json.Marshal(map[string]any{"codecs": routerCodecs})
	return b
}

func (r *router) CreateTransport(opts core.TransportOptions) (core.Transport, error) {
	pc, err := r.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, err
	}
	return newTransport(r, pc, opts), nil
}

func (r *router) CreatePlainTransport(opts core.PlainTransportOptions) (core.PlainTransport, error) {
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP(opts.IP), Port: opts.Port})
	if err != nil {
		return nil, err
	}
	return &plainTransport{id: uuid.NewString(), r: r, conn: conn}, nil
}

// CanConsume checks that the endpoint's advertised capabilities carry at least
// one codec of the producer's media kind.
func (r *router) CanConsume(producerID string, caps core.Params) bool {
	r.mu.Lock()
	p, ok := r.producers[producerID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	var doc struct {
		Codecs []struct {
			MimeType string `json:"mimeType"`
		} `json:"codecs"`
	}
	if err := json.Unmarshal(caps, &doc); err != nil {
		return false
	}
	prefix := p.kind + "/"
	for _, c := range doc.Codecs {
		if strings.HasPrefix(strings.ToLower(c.MimeType), prefix) {
			return true
		}
	}
	return false
}

func (r *router) ObserveAudioActivity(fn func(producerID string)) {
	r.mu.Lock()
	r.observer = fn
	r.mu.Unlock()
}

// noteAudioActivity is called from relay loops. Only a change of the loudest
// producer is reported upstream.
func (r *router) noteAudioActivity(producerID string) {
	r.mu.Lock()
	if r.closed || r.lastSpeaker == producerID {
		r.mu.Unlock()
		return
	}
	r.lastSpeaker = producerID
	fn := r.observer
	r.mu.Unlock()
	if fn != nil {
		fn(producerID)
	}
}

func (r *router) registerProducer(p *producer) {
	r.mu.Lock()
	r.producers[p.id] = p
	r.mu.Unlock()
}

func (r *router) unregisterProducer(id string) {
	r.mu.Lock()
	delete(r.producers, id)
	if r.lastSpeaker == id {
		r.lastSpeaker = ""
	}
	r.mu.Unlock()
}

func (r *router) getProducer(id string) *producer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.producers[id]
}

func (r *router) Close() {
	r.mu.Lock()
	r.closed = true
	r.observer = nil
	r.mu.Unlock()
}
