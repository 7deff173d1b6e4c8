package sender

import (
	"context"

	"github.com/quantum-proto/qsend/internal/discovery"
	"github.com/quantum-proto/qsend/internal/protocol"
	"github.com/quantum-proto/qsend/internal/transport"
	"go.uber.org/zap"
)

// New constructs a Session in the Closed state. Call Open to establish the
// connection.
func New(cfg Config) (*Session, error) {
	return newSession(cfg, cfg.Logger)
}

// Open resolves the peer, preallocates the packet-buffer window, sends a
// SYN carrying linkProps, and blocks until the handshake completes or fails.
func (s *Session) Open() Status {
	s.mu.Lock()
	if s.state != StateClosed {
		s.mu.Unlock()
		return StatusAlreadyConnected
	}
	cfg := s.config
	s.state = StateHandshaking
	s.mu.Unlock()

	ep := cfg.Endpoint
	if ep == nil {
		resolver := cfg.Resolver
		if resolver == nil {
			resolver = discovery.NewDNSResolver()
		}
		port := cfg.Port
		if port == 0 {
			port = DefaultPort
		}
		addr, err := resolver.Resolve(context.Background(), cfg.Host, port)
		if err != nil {
			s.logger.Warn("resolve failed", zap.Error(err))
			s.mu.Lock()
			s.status = StatusInvalidName
			s.state = StateClosed
			s.mu.Unlock()
			return StatusInvalidName
		}

		reg := cfg.Registry
		if reg == nil {
			reg = transport.DefaultRegistry()
		}
		dialed, err := transport.Dial(addr, reg)
		if err != nil {
			s.logger.Warn("dial failed", zap.Error(err))
			s.mu.Lock()
			s.status = StatusInvalidName
			s.state = StateClosed
			s.mu.Unlock()
			return StatusInvalidName
		}
		ep = dialed
	}

	linkProps := cfg.LinkProps
	linkProps.BufferSize = cfg.SenderWindow + MaxRetx

	s.mu.Lock()
	s.endpoint = ep
	s.senderWindow = cfg.SenderWindow
	s.receiverWindow = cfg.SenderWindow
	s.effectiveWindow = cfg.SenderWindow
	s.window = NewWindow(cfg.SenderWindow)
	s.emptySlots = NewSemaphore(int(cfg.SenderWindow))
	s.fullSlots = NewSemaphore(0)
	s.transferStart = s.clock.Now()
	s.rto = DefaultInitialRTO

	synHdr := protocol.NewSynHeader(0)
	synFrame := append(synHdr.Marshal(), linkProps.Marshal()...)
	s.synSentAt = s.clock.Now()
	s.mu.Unlock()

	if err := ep.Send(synFrame); err != nil {
		s.mu.Lock()
		s.status = StatusFailedSend
		s.state = StateAborted
		s.mu.Unlock()
		ep.Close()
		return StatusFailedSend
	}

	s.wg.Add(1)
	go s.ackLoop(synFrame)

	s.mu.Lock()
	for s.state == StateHandshaking {
		s.cond.Wait()
	}
	status := s.status
	s.mu.Unlock()
	return status
}

// Send admits payload into the window (blocking if the window is full),
// transmits it, and returns once it has been handed to the OS.
func (s *Session) Send(payload []byte) Status {
	if len(payload) > protocol.MaxPayloadSize {
		return StatusFailedSend
	}

	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return StatusNotConnected
	}
	s.mu.Unlock()

	s.emptySlots.Wait()

	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return StatusNotConnected
	}

	seq := s.nextSequence
	hdr := protocol.NewDataHeader(seq)
	frame := make([]byte, 0, protocol.SenderHeaderSize+len(payload))
	frame = append(frame, hdr.Marshal()...)
	frame = append(frame, payload...)

	if err := s.endpoint.Send(frame); err != nil {
		s.status = StatusFailedSend
		s.state = StateAborted
		s.cond.Broadcast()
		s.mu.Unlock()
		return StatusFailedSend
	}
	s.window.Put(seq, frame, s.clock.Now())
	s.nextSequence++
	s.mu.Unlock()

	s.fullSlots.Signal(1)
	return StatusOK
}

// Close transmits a FIN, blocks until the FIN is acknowledged (or the
// session aborts), and reports the transfer duration via outTransferTime.
func (s *Session) Close(outTransferTime *float64) Status {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return StatusNotConnected
	}
	s.mu.Unlock()

	s.emptySlots.Wait()

	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return StatusNotConnected
	}

	seq := s.nextSequence
	hdr := protocol.NewFinHeader(seq)
	frame := hdr.Marshal()
	if err := s.endpoint.Send(frame); err != nil {
		s.status = StatusFailedSend
		s.state = StateAborted
		s.cond.Broadcast()
		s.mu.Unlock()
		return StatusFailedSend
	}
	s.window.Put(seq, frame, s.clock.Now())
	s.finSeq = seq
	s.nextSequence++
	s.finSent = true
	s.state = StateDraining
	s.mu.Unlock()

	// FIN occupies a window slot exactly like a DATA packet, so it must
	// also post FullSlots: otherwise the ACK loop could still be parked in
	// its very first FullSlots.Wait() if Close is called before any Send.
	s.fullSlots.Signal(1)

	s.mu.Lock()
	for s.state == StateDraining {
		s.cond.Wait()
	}
	status := s.status
	if outTransferTime != nil {
		*outTransferTime = s.transferEnd - s.transferStart
	}
	s.mu.Unlock()

	s.wg.Wait()
	if s.endpoint != nil {
		s.endpoint.Close()
	}
	return status
}
