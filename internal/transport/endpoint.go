// Package transport provides the datagram endpoint the sender core sends
// wire-framed bytes through: non-blocking send, readiness-based receive with
// a timeout. The real implementation wraps a connected net.UDPConn; tests
// drive the reliability engine against the in-memory Endpoint in mock.go.
package transport

import (
	"errors"
	"net"
	"sync"
	"time"
)

// ErrTimeout is returned by Endpoint.Receive when no datagram arrives before
// the requested timeout elapses. It is protocol noise, not a fatal error.
var ErrTimeout = errors.New("transport: receive timeout")

// ErrClosed is returned by Send/Receive after the endpoint has been closed.
var ErrClosed = errors.New("transport: endpoint closed")

// Endpoint is the datagram send/receive-with-timeout contract the sender
// core is built against.
type Endpoint interface {
	// Send writes one datagram. It blocks only for as long as the OS needs
	// to accept the write; a persistent OS error is returned to the caller.
	Send(data []byte) error

	// Receive waits up to timeout for one datagram. It returns ErrTimeout
	// if none arrives in time.
	Receive(timeout time.Duration) ([]byte, error)

	Close() error
}

// Registry tracks process-lifetime bring-up of the datagram layer so that
// repeated Open/Close cycles within one process don't each pay redundant
// OS-level socket setup. Go's net package needs no explicit winsock-style
// global init, so this is a lightweight reference count rather than a real
// acquire/release of OS state; it exists so Sessions share one acquisition
// the way the design calls for.
type Registry struct {
	mu   sync.Mutex
	refs int
}

var defaultRegistry = &Registry{}

// Acquire increments the registry's reference count and returns a release
// function. Safe to call concurrently from multiple Sessions.
func (r *Registry) Acquire() (release func()) {
	r.mu.Lock()
	r.refs++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.refs--
			r.mu.Unlock()
		})
	}
}

// RefCount returns the current number of live acquisitions.
func (r *Registry) RefCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}

// DefaultRegistry returns the process-wide default Registry.
func DefaultRegistry() *Registry { return defaultRegistry }

// UDPEndpoint is the real Endpoint, backed by a connected UDP socket.
type UDPEndpoint struct {
	conn    *net.UDPConn
	release func()

	mu     sync.RWMutex
	closed bool
}

// Dial opens a UDP endpoint connected to addr, acquiring reg (or the
// default Registry if nil).
func Dial(addr *net.UDPAddr, reg *Registry) (*UDPEndpoint, error) {
	if reg == nil {
		reg = defaultRegistry
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	return &UDPEndpoint{conn: conn, release: reg.Acquire()}, nil
}

// Send writes data to the connected peer.
func (e *UDPEndpoint) Send(data []byte) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return ErrClosed
	}
	e.mu.RUnlock()

	for {
		_, err := e.conn.Write(data)
		if err == nil {
			return nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			// Writable-readiness retry: UDP sockets practically never block,
			// but honor the same would-block/retry contract as the spec.
			continue
		}
		return err
	}
}

// Receive waits up to timeout for one datagram.
func (e *UDPEndpoint) Receive(timeout time.Duration) ([]byte, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, ErrClosed
	}
	e.mu.RUnlock()

	if timeout < 0 {
		timeout = 0
	}
	if err := e.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	buf := make([]byte, 65536)
	n, err := e.conn.Read(buf)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, ErrTimeout
		}
		return nil, err
	}
	return buf[:n], nil
}

// Close releases the underlying socket and the registry acquisition.
func (e *UDPEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if e.release != nil {
		e.release()
	}
	return e.conn.Close()
}
