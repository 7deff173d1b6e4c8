package transport

import (
	"sync"
	"time"
)

// MockEndpoint is an in-memory Endpoint used to drive the reliability engine
// under scripted loss, duplication, reordering and delay, per the
// end-to-end scenarios in the spec.
type MockEndpoint struct {
	mu       sync.Mutex
	sent     [][]byte
	incoming chan []byte
	closed   bool

	// onSend, if set, is invoked synchronously from Send with a copy of the
	// outgoing datagram. It plays the role of "the peer": a test can parse
	// the packet and call Deliver (optionally from a delayed goroutine) to
	// simulate a reply, or do nothing to simulate loss.
	onSend func(data []byte)
}

// NewMockEndpoint creates a mock endpoint with the given inbound queue
// depth.
func NewMockEndpoint(queueDepth int) *MockEndpoint {
	return &MockEndpoint{
		incoming: make(chan []byte, queueDepth),
	}
}

// OnSend installs the peer-simulation hook. Not safe to change after the
// endpoint starts being used concurrently.
func (m *MockEndpoint) OnSend(fn func(data []byte)) {
	m.mu.Lock()
	m.onSend = fn
	m.mu.Unlock()
}

// Deliver injects a datagram as if it had arrived from the peer. Safe to
// call from any goroutine, including after a simulated delay.
func (m *MockEndpoint) Deliver(data []byte) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case m.incoming <- cp:
	default:
		// Queue full: drop, matching a real socket buffer overflow.
	}
}

// DeliverAfter injects a datagram after the given delay.
func (m *MockEndpoint) DeliverAfter(data []byte, delay time.Duration) {
	cp := make([]byte, len(data))
	copy(cp, data)
	time.AfterFunc(delay, func() { m.Deliver(cp) })
}

// Send records the datagram and invokes the onSend hook, if any.
func (m *MockEndpoint) Send(data []byte) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.sent = append(m.sent, cp)
	hook := m.onSend
	m.mu.Unlock()

	if hook != nil {
		hook(cp)
	}
	return nil
}

// Receive waits up to timeout for a delivered datagram.
func (m *MockEndpoint) Receive(timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		select {
		case data := <-m.incoming:
			return data, nil
		default:
			return nil, ErrTimeout
		}
	}
	select {
	case data := <-m.incoming:
		return data, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}

// Close marks the endpoint closed; further Send calls fail.
func (m *MockEndpoint) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Sent returns a snapshot of every datagram handed to Send, in order.
func (m *MockEndpoint) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.sent))
	copy(out, m.sent)
	return out
}
