package core

import "encoding/json"

// The media engine is an external collaborator. The coordination layer only
// touches it through these capability objects and never assumes a concrete
// implementation: negotiation payloads (ICE/DTLS/SDP/RTP parameters) are
// carried opaquely between the client and the engine.

// Params is an opaque engine negotiation payload.
type Params = json.RawMessage

// RtpCodec is the one piece of codec information the coordination layer does
// interpret: the recorder needs codec name, payload type and clock rate to
// build its session descriptor.
type RtpCodec struct {
	Kind        string `json:"kind"`
	MimeType    string `json:"mimeType"`
	PayloadType uint8  `json:"payloadType"`
	ClockRate   uint32 `json:"clockRate"`
	Channels    uint16 `json:"channels,omitempty"`
}

// Worker is one media-processing unit. Workers are created at startup and
// live for the whole process; OnDied must be treated as fatal by the caller.
type Worker interface {
	ID() string
	CreateRouter() (Router, error)
	OnDied(func(error))
	Close()
}

// Router is the per-room media hub obtained from a Worker.
type Router interface {
	ID() string
	Capabilities() Params
	CreateTransport(opts TransportOptions) (Transport, error)
	CreatePlainTransport(opts PlainTransportOptions) (PlainTransport, error)
	CanConsume(producerID string, caps Params) bool
	// ObserveAudioActivity registers the engine's audio-level observer; the
	// callback reports the producer id of the current dominant speaker.
	ObserveAudioActivity(func(producerID string))
	Close()
}

type TransportOptions struct {
	PeerID    string
	Direction string
}

type PlainTransportOptions struct {
	// Where the engine should send the mirrored RTP stream.
	IP       string
	Port     int
	RtcpPort int
}

// Transport carries producers (send side) or consumers (recv side).
type Transport interface {
	ID() string
	// ConnectionInfo is handed to the client so it can complete the handshake.
	ConnectionInfo() Params
	// Connect finalizes the handshake with client parameters. The returned
	// payload, if any, is relayed back to the client. Connecting an already
	// connected transport is a no-op.
	Connect(clientParams Params) (Params, error)
	Produce(opts ProduceOptions) (Producer, error)
	Consume(opts ConsumeOptions) (Consumer, error)
	// OnClose fires when the engine closes the transport on its own.
	OnClose(func())
	Close() error
}

type ProduceOptions struct {
	Kind          string
	RtpParameters Params
	Paused        bool
}

type ConsumeOptions struct {
	ProducerID   string
	Capabilities Params
	Paused       bool
}

// Producer is one outbound media track registered with the engine.
type Producer interface {
	ID() string
	Kind() string
	Codec() RtpCodec
	Paused() bool
	Pause() error
	Resume() error
	Close() error
	OnTransportClose(func())
}

// Consumer is one inbound subscription to a Producer.
type Consumer interface {
	ID() string
	Kind() string
	ProducerID() string
	ProducerPaused() bool
	RtpParameters() Params
	Paused() bool
	Pause() error
	Resume() error
	Close() error
	OnTransportClose(func())
	OnProducerClose(func())
	// SetPreferredLayers asks the engine for a simulcast quality tier.
	SetPreferredLayers(spatialLayer int) error
	// OnLayersChange reports the spatial layer currently forwarded.
	OnLayersChange(func(spatialLayer int))
}

// PlainTransport is an engine-internal endpoint without ICE/DTLS, used to
// mirror a producer's stream to a local process such as the recorder.
type PlainTransport interface {
	ID() string
	Consume(producerID string) (Consumer, error)
	Close() error
}
