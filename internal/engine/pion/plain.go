package pion

import (
	"errors"
	"net"
	"sync"

	"github.com/pion/rtp"

	"github.com/openmeet/openmeet/internal/core"
)

// plainTransport pushes a producer's RTP to a local UDP socket, which is how
// recorder subprocesses receive media.
type plainTransport struct {
	id   string
	r    *router
	conn *net.UDPConn

	mu        sync.Mutex
	closed    bool
	consumers []*consumer
}

func (t *plainTransport) ID() string { return t.id }

func (t *plainTransport) Consume(producerID string) (core.Consumer, error) {
	prod := t.r.getProducer(producerID)
	if prod == nil {
		return nil, errors.New("producer not found")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, errors.New("plain transport closed")
	}
	c := newConsumer(prod, &udpSink{conn: t.conn}, true)
	t.consumers = append(t.consumers, c)
	return c, nil
}

func (t *plainTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	consumers := t.consumers
	t.consumers = nil
	t.mu.Unlock()
	for _, c := range consumers {
		_ = c.Close()
	}
	return t.conn.Close()
}

type udpSink struct {
	conn *net.UDPConn
}

func (u *udpSink) WriteRTP(p *rtp.Packet) error {
	b, err := p.Marshal()
	if err != nil {
		return err
	}
	_, err = u.conn.Write(b)
	return err
}
