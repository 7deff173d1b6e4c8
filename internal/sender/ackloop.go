package sender

import (
	"errors"
	"time"

	"github.com/quantum-proto/qsend/internal/protocol"
	"github.com/quantum-proto/qsend/internal/transport"
	"go.uber.org/zap"
)

// ackLoop is the single background task that owns all socket reads and all
// retransmissions for the life of a Session: it runs the handshake to
// completion, then drives the cumulative-ACK / fast-retransmit / timeout
// algorithm until the session closes or aborts.
func (s *Session) ackLoop(synFrame []byte) {
	defer s.wg.Done()
	if !s.handshakeLoop(synFrame) {
		return
	}
	s.mainLoop()
}

func (s *Session) handshakeLoop(synFrame []byte) bool {
	for {
		s.mu.Lock()
		if s.state != StateHandshaking {
			s.mu.Unlock()
			return false
		}
		sentAt := s.synSentAt
		rto := s.rto
		ep := s.endpoint
		s.mu.Unlock()

		timeout := sentAt + rto - s.clock.Now()
		data, err := ep.Receive(secondsToDuration(timeout))

		if errors.Is(err, transport.ErrTimeout) {
			s.mu.Lock()
			s.synRetries++
			s.totalTimeouts++
			if s.synRetries >= MaxRetx {
				s.status = StatusTimeout
				s.state = StateAborted
				s.cond.Broadcast()
				s.mu.Unlock()
				return false
			}
			s.synSentAt = s.clock.Now()
			s.mu.Unlock()

			s.logRetransmit("syn", 0)
			if err := ep.Send(synFrame); err != nil {
				s.abort(StatusFailedSend)
				return false
			}
			continue
		}
		if err != nil {
			s.abort(StatusFailedRecv)
			return false
		}

		ackHdr, perr := protocol.UnmarshalReceiverHeader(data)
		if perr != nil || !ackHdr.IsSyn() {
			continue // protocol noise during handshake
		}

		rtt := s.clock.Now() - sentAt
		s.mu.Lock()
		s.receiverWindow = ackHdr.ReceiverWindow
		s.effectiveWindow = minU32(s.senderWindow, s.receiverWindow)
		s.rtoEstimator.Sample(rtt)
		s.rto = 2 * s.rtoEstimator.EstRTT()
		s.connected = true
		s.state = StateConnected
		s.transferStart = s.clock.Now()
		s.cond.Broadcast()
		s.mu.Unlock()
		return true
	}
}

func (s *Session) mainLoop() {
	for {
		s.mu.Lock()
		if s.killAckLoop {
			s.mu.Unlock()
			return
		}
		finSent := s.finSent
		s.mu.Unlock()

		consumedWait := false
		if !finSent {
			s.fullSlots.Wait()
			consumedWait = true
		}

		if !s.innerReceiveLoop(consumedWait) {
			return
		}

		s.mu.Lock()
		kill := s.killAckLoop
		s.mu.Unlock()
		if kill {
			return
		}
	}
}

// innerReceiveLoop runs until a valid cumulative-advancing ACK arrives (in
// which case it applies the ACK and returns true) or the session aborts (in
// which case it returns false).
func (s *Session) innerReceiveLoop(consumedWait bool) bool {
	for {
		s.mu.Lock()
		base := s.senderBase
		waitSeq := uint32(maxI64(base, 0))
		slot := s.window.Get(waitSeq)
		ep := s.endpoint
		rto := s.rto
		s.mu.Unlock()

		timeout := slot.Timestamp + rto - s.clock.Now()
		data, err := ep.Receive(secondsToDuration(timeout))

		if errors.Is(err, transport.ErrTimeout) {
			s.mu.Lock()
			s.timeoutCount++
			s.totalTimeouts++
			if s.timeoutCount >= MaxRetx {
				s.status = StatusTimeout
				s.connected = false
				s.state = StateAborted
				s.cond.Broadcast()
				s.mu.Unlock()
				s.emptySlots.Signal(1)
				return false
			}
			now := s.clock.Now()
			s.window.Retransmit(waitSeq, now)
			s.karnDirty = true
			frame := s.window.Get(waitSeq).Bytes
			s.mu.Unlock()

			s.logRetransmit("timeout", waitSeq)
			if err := ep.Send(frame); err != nil {
				s.abort(StatusFailedSend)
				s.emptySlots.Signal(1)
				return false
			}
			continue
		}
		if err != nil {
			s.abort(StatusFailedRecv)
			s.emptySlots.Signal(1)
			return false
		}

		ackHdr, perr := protocol.UnmarshalReceiverHeader(data)
		if perr != nil {
			continue // malformed datagram: protocol noise
		}

		if advanced, ok := s.applyAck(ackHdr, ep, consumedWait); ok {
			return advanced
		}
	}
}

// applyAck processes one parsed ReceiverHeader. The bool result reports
// whether the inner receive loop should keep polling (false) or exit back
// to the outer loop (true, with advanced reporting success vs. abort).
func (s *Session) applyAck(ackHdr protocol.ReceiverHeader, ep transport.Endpoint, consumedWait bool) (advanced bool, done bool) {
	s.mu.Lock()

	effectiveAck := ackHdr.AckSequence
	if ackHdr.IsFin() {
		effectiveAck++
	}
	base := s.senderBase
	next := s.nextSequence
	valid := int64(effectiveAck) > base && effectiveAck <= next

	if !valid {
		if int64(ackHdr.AckSequence) == base {
			s.dupAcks++
			if s.dupAcks >= FastRetransmitThreshold {
				seq := uint32(maxI64(base, 0))
				now := s.clock.Now()
				s.window.Retransmit(seq, now)
				s.karnDirty = true
				s.totalFastRetx++
				s.dupAcks = 0
				frame := s.window.Get(seq).Bytes
				s.mu.Unlock()

				s.logRetransmit("fast-retx", seq)
				if err := ep.Send(frame); err != nil {
					s.abort(StatusFailedSend)
					return false, true
				}
				return false, false
			}
		}
		s.mu.Unlock()
		return false, false
	}

	oldBase := maxI64(base, 0)
	newlyAcked := int64(effectiveAck) - oldBase

	s.bytesAcked += uint64(newlyAcked) * uint64(protocol.MaxPayloadSize)
	s.dupAcks = 0
	s.timeoutCount = 0

	if !s.karnDirty {
		sampleSlot := s.window.Get(effectiveAck - 1)
		sample := s.clock.Now() - sampleSlot.Timestamp
		s.rto = s.rtoEstimator.Sample(sample)
	}
	s.karnDirty = false

	s.senderBase = int64(effectiveAck)
	s.receiverWindow = ackHdr.ReceiverWindow
	s.effectiveWindow = minU32(s.senderWindow, s.receiverWindow)

	if ackHdr.IsFin() {
		s.connected = false
		s.killAckLoop = true
		s.state = StateClosed
		s.transferEnd = s.clock.Now()
		s.cond.Broadcast()
	} else {
		s.transferEnd = s.clock.Now()
	}
	s.mu.Unlock()

	s.emptySlots.Signal(int(newlyAcked))
	if consumedWait {
		s.fullSlots.WaitDeferred(int(newlyAcked))
	}
	return true, true
}

func (s *Session) abort(status Status) {
	s.mu.Lock()
	s.status = status
	s.connected = false
	s.state = StateAborted
	s.cond.Broadcast()
	s.mu.Unlock()
	s.logger.Warn("session aborted", zap.Stringer("status", status))
}

func secondsToDuration(seconds float64) time.Duration {
	if seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
