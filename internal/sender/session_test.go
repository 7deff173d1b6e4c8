package sender

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/quantum-proto/qsend/internal/protocol"
	"github.com/quantum-proto/qsend/internal/transport"
)

// mockPeer plays the receiver side of the protocol against a
// transport.MockEndpoint, driven entirely from the Send-side OnSend hook.
type mockPeer struct {
	mu           sync.Mutex
	ep           *transport.MockEndpoint
	expected     uint32 // next data sequence the peer expects, cumulative
	received     map[uint32]bool
	drop         map[uint32]int // sequence -> remaining times to drop
	synDropCount int            // remaining SYNs to drop
	synRTT       time.Duration
	ackDelay     time.Duration // extra delay applied to every data/FIN ack
}

func newMockPeer(ep *transport.MockEndpoint) *mockPeer {
	return &mockPeer{
		ep:       ep,
		received: make(map[uint32]bool),
		drop:     make(map[uint32]int),
	}
}

func (p *mockPeer) install() {
	p.ep.OnSend(p.onSend)
}

func (p *mockPeer) onSend(data []byte) {
	hdr, err := protocol.UnmarshalSenderHeader(data)
	if err != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case hdr.IsSyn():
		if p.synDropCount > 0 {
			p.synDropCount--
			return
		}
		ack := protocol.NewAckHeader(256, 0, true, false).Marshal()
		if p.synRTT > 0 {
			p.ep.DeliverAfter(ack, p.synRTT)
		} else {
			p.ep.Deliver(ack)
		}
	case hdr.IsFin():
		ack := protocol.NewAckHeader(256, hdr.Sequence, false, true).Marshal()
		p.deliver(ack)
	default:
		seq := hdr.Sequence
		if n := p.drop[seq]; n > 0 {
			p.drop[seq] = n - 1
			return
		}
		if seq == p.expected {
			p.expected++
			for p.received[p.expected] {
				delete(p.received, p.expected)
				p.expected++
			}
		} else if seq > p.expected {
			p.received[seq] = true
		}
		ack := protocol.NewAckHeader(256, p.expected, false, false).Marshal()
		p.deliver(ack)
	}
}

func (p *mockPeer) deliver(frame []byte) {
	if p.ackDelay > 0 {
		p.ep.DeliverAfter(frame, p.ackDelay)
	} else {
		p.ep.Deliver(frame)
	}
}

func newTestSession(t *testing.T, w uint32, ep *transport.MockEndpoint) *Session {
	t.Helper()
	s, err := New(Config{
		Host:         "peer.test",
		SenderWindow: w,
		LinkProps:    protocol.LinkProperties{RTT: 0.05, Speed: 1e7},
		Endpoint:     ep,
		Logger:       zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestCleanTransfer(t *testing.T) {
	ep := transport.NewMockEndpoint(64)
	peer := newMockPeer(ep)
	peer.synRTT = 10 * time.Millisecond
	peer.install()

	s := newTestSession(t, 5, ep)
	if status := s.Open(); status != StatusOK {
		t.Fatalf("Open() = %v", status)
	}

	for i := 0; i < 20; i++ {
		if status := s.Send([]byte{byte(i)}); status != StatusOK {
			t.Fatalf("Send(%d) = %v", i, status)
		}
	}

	var transferTime float64
	if status := s.Close(&transferTime); status != StatusOK {
		t.Fatalf("Close() = %v", status)
	}

	snap := s.Snapshot()
	if snap.SenderBase != 21 {
		t.Errorf("SenderBase = %d, want 21", snap.SenderBase)
	}
	if snap.TotalTimeouts != 0 {
		t.Errorf("TotalTimeouts = %d, want 0", snap.TotalTimeouts)
	}
	if snap.TotalFastRetx != 0 {
		t.Errorf("TotalFastRetx = %d, want 0", snap.TotalFastRetx)
	}
}

func TestSingleLossFastRetransmit(t *testing.T) {
	ep := transport.NewMockEndpoint(64)
	peer := newMockPeer(ep)
	peer.synRTT = 10 * time.Millisecond
	peer.drop[3] = 1 // lose packet 3 exactly once
	peer.install()

	s := newTestSession(t, 8, ep)
	if status := s.Open(); status != StatusOK {
		t.Fatalf("Open() = %v", status)
	}

	for i := 0; i < 10; i++ {
		if status := s.Send([]byte{byte(i)}); status != StatusOK {
			t.Fatalf("Send(%d) = %v", i, status)
		}
	}

	var transferTime float64
	if status := s.Close(&transferTime); status != StatusOK {
		t.Fatalf("Close() = %v", status)
	}

	snap := s.Snapshot()
	if snap.TotalFastRetx != 1 {
		t.Errorf("TotalFastRetx = %d, want 1", snap.TotalFastRetx)
	}
}

func TestPersistentLossTimeoutAbort(t *testing.T) {
	ep := transport.NewMockEndpoint(64)
	peer := newMockPeer(ep)
	peer.synRTT = 10 * time.Millisecond
	peer.drop[0] = MaxRetx + 10 // never let packet 0 through
	peer.install()

	s := newTestSession(t, 4, ep)
	if status := s.Open(); status != StatusOK {
		t.Fatalf("Open() = %v", status)
	}

	for i := 0; i < 4; i++ {
		if status := s.Send([]byte{byte(i)}); status != StatusOK {
			t.Fatalf("Send(%d) = %v", i, status)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for s.State() != StateAborted && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if s.State() != StateAborted {
		t.Fatalf("State() = %v, want StateAborted", s.State())
	}
	if s.Status() != StatusTimeout {
		t.Fatalf("Status() = %v, want StatusTimeout", s.Status())
	}

	snap := s.Snapshot()
	if snap.TotalTimeouts != MaxRetx {
		t.Errorf("TotalTimeouts = %d, want %d", snap.TotalTimeouts, MaxRetx)
	}
}

func TestHandshakeLoss(t *testing.T) {
	ep := transport.NewMockEndpoint(64)
	peer := newMockPeer(ep)
	peer.synDropCount = 2
	peer.synRTT = 200 * time.Millisecond
	peer.install()

	s := newTestSession(t, 4, ep)
	status := s.Open()
	if status != StatusOK {
		t.Fatalf("Open() = %v", status)
	}
	if !s.Snapshot().Connected {
		t.Error("expected Connected == true")
	}
	rto := s.Rto()
	if rto < 0.35 || rto > 0.45 {
		t.Errorf("Rto = %v, want ~0.4", rto)
	}
}

func TestWindowFullBackpressure(t *testing.T) {
	ep := transport.NewMockEndpoint(64)
	peer := newMockPeer(ep)
	peer.synRTT = 5 * time.Millisecond
	peer.ackDelay = 100 * time.Millisecond
	peer.install()

	s := newTestSession(t, 2, ep)
	if status := s.Open(); status != StatusOK {
		t.Fatalf("Open() = %v", status)
	}

	if status := s.Send([]byte{0}); status != StatusOK {
		t.Fatalf("Send(0) = %v", status)
	}
	if status := s.Send([]byte{1}); status != StatusOK {
		t.Fatalf("Send(1) = %v", status)
	}

	start := time.Now()
	if status := s.Send([]byte{2}); status != StatusOK {
		t.Fatalf("Send(2) = %v", status)
	}
	elapsed := time.Since(start)
	if elapsed < 80*time.Millisecond {
		t.Errorf("third Send returned after %v, expected to block close to the 100ms ack delay", elapsed)
	}
}
