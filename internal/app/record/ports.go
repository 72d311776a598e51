package record

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
)

var ErrNoFreePort = errors.New("no free recorder port")

// allocator hands out local UDP ports for recorder sessions. Candidates are
// picked at random in the configured range and probed by binding them, so a
// port already taken by another process is skipped too.
type allocator struct {
	min, max int

	mu    sync.Mutex
	taken map[int]bool
}

func newAllocator(min, max int) *allocator {
	return &allocator{min: min, max: max, taken: make(map[int]bool)}
}

func (a *allocator) Get() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	span := a.max - a.min + 1
	for attempt := 0; attempt < span; attempt++ {
		port := a.min + rand.Intn(span)
		if a.taken[port] {
			continue
		}
		// A port held by another process is skipped but not recorded; it may
		// free up before the next probe.
		if !portFree(port) {
			continue
		}
		a.taken[port] = true
		return port, nil
	}
	return 0, fmt.Errorf("%w in range %d-%d", ErrNoFreePort, a.min, a.max)
}

func (a *allocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.taken, port)
}

func portFree(port int) bool {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
