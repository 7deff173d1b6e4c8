// Package sender implements the sliding-window reliability engine for the
// sender side of a reliable, ordered, byte-stream transport layered over an
// unreliable datagram service: handshake/teardown, sequence-numbered packet
// buffering, adaptive-RTO retransmission, cumulative-ACK processing,
// duplicate-ACK fast retransmit, and window flow control. Admission is
// bounded by the configured sender window only: the receiver's advertised
// window is recorded from each ACK and reported by EffectiveWindow, but it
// does not limit how many packets are in flight.
package sender

import (
	"sync"

	"github.com/quantum-proto/qsend/internal/discovery"
	"github.com/quantum-proto/qsend/internal/protocol"
	"github.com/quantum-proto/qsend/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Status is the public, cross-boundary status code.
type Status int

const (
	StatusOK Status = iota
	StatusAlreadyConnected
	StatusNotConnected
	StatusInvalidName
	StatusFailedSend
	StatusTimeout
	StatusFailedRecv
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusAlreadyConnected:
		return "ALREADY_CONNECTED"
	case StatusNotConnected:
		return "NOT_CONNECTED"
	case StatusInvalidName:
		return "INVALID_NAME"
	case StatusFailedSend:
		return "FAILED_SEND"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusFailedRecv:
		return "FAILED_RECV"
	default:
		return "UNKNOWN"
	}
}

// State is the session's lifecycle state.
type State int

const (
	StateClosed State = iota
	StateHandshaking
	StateConnected
	StateDraining
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateConnected:
		return "CONNECTED"
	case StateDraining:
		return "DRAINING"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

const (
	// MaxRetx bounds retransmissions per oldest-unacked slot (and per SYN).
	MaxRetx = 50

	// FastRetransmitThreshold is the number of consecutive duplicate ACKs
	// that triggers a fast retransmit.
	FastRetransmitThreshold = 3

	// DefaultInitialRTO is used until the handshake completes.
	DefaultInitialRTO = 1.0

	// DefaultPort is the receiver's well-known UDP port.
	DefaultPort = 22345
)

// Config parameterizes a single Open call.
type Config struct {
	Host           string
	Port           int
	SenderWindow   uint32
	LinkProps      protocol.LinkProperties
	Resolver       discovery.Resolver // defaults to discovery.NewDNSResolver()
	Registry       *transport.Registry
	Endpoint       transport.Endpoint // when set, Open uses it directly and skips resolve/dial (tests)
	Logger         *zap.Logger
	RetxLogLimiter *rate.Limiter // throttles timeout/fast-retx log lines; nil disables throttling
}

// Session is a single peer association and the reliability engine's
// complete mutable state, per the data model.
type Session struct {
	mu   sync.Mutex
	cond *sync.Cond

	id     string
	clock  *Clock
	logger *zap.Logger

	config     Config
	endpoint   transport.Endpoint
	releaseReg func()
	peerAddr   string

	window     *Window
	emptySlots *Semaphore
	fullSlots  *Semaphore

	state  State
	status Status

	senderWindow    uint32
	receiverWindow  uint32
	effectiveWindow uint32

	senderBase   int64 // -1 means "no data yet"
	nextSequence uint32

	connected   bool
	finSent     bool
	killAckLoop bool
	finSeq      uint32

	rto          float64
	rtoEstimator *RTOEstimator
	karnDirty    bool // true if a retransmit happened since the last RTT sample

	timeoutCount  int
	totalTimeouts uint64
	totalFastRetx uint64
	bytesAcked    uint64
	dupAcks       int

	synSentAt  float64
	synRetries int

	transferStart float64
	transferEnd   float64

	retxLimiter *rate.Limiter

	wg sync.WaitGroup
}

func newSession(cfg Config, logger *zap.Logger) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		id:           id,
		clock:        NewClock(),
		logger:       logger.With(zap.String("session", id)),
		config:       cfg,
		state:        StateClosed,
		status:       StatusOK,
		senderBase:   -1,
		rtoEstimator: NewRTOEstimator(),
		rto:          DefaultInitialRTO,
		retxLimiter:  cfg.RetxLogLimiter,
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the current public status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SenderBase returns the lowest unacknowledged sequence number, or -1.
func (s *Session) SenderBase() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.senderBase
}

// NextSequence returns the next sequence number to be produced.
func (s *Session) NextSequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSequence
}

// EffectiveWindow returns min(SenderWindow, ReceiverWindow).
func (s *Session) EffectiveWindow() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveWindow
}

// Rto returns the current retransmission timeout, in seconds.
func (s *Session) Rto() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rto
}

// Stats is a point-in-time snapshot of the session's counters, read by the
// statistics reporter and exposed to tests.
type Stats struct {
	SenderBase      int64
	NextSequence    uint32
	EffectiveWindow uint32
	TotalTimeouts   uint64
	TotalFastRetx   uint64
	BytesAcked      uint64
	EstRTT          float64
	Rto             float64
	Connected       bool
}

// Snapshot returns the current Stats.
func (s *Session) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		SenderBase:      s.senderBase,
		NextSequence:    s.nextSequence,
		EffectiveWindow: s.effectiveWindow,
		TotalTimeouts:   s.totalTimeouts,
		TotalFastRetx:   s.totalFastRetx,
		BytesAcked:      s.bytesAcked,
		EstRTT:          s.rtoEstimator.EstRTT(),
		Rto:             s.rto,
		Connected:       s.connected,
	}
}

// ID returns the session's correlation ID.
func (s *Session) ID() string { return s.id }

func (s *Session) logRetransmit(kind string, seq uint32) {
	if s.retxLimiter != nil && !s.retxLimiter.Allow() {
		return
	}
	s.logger.Warn("retransmitting", zap.String("kind", kind), zap.Uint32("sequence", seq))
}
