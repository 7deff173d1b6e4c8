// Package protocol implements the Quantum-sender wire format: the packed,
// little-endian packet headers the sender emits and the ACK headers it
// parses from the receiver.
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// Magic identifies sender packets; occupies bits 8-31 of the Flags word.
	Magic uint32 = 0x8311AA

	// FlagSyn marks a connection-establishment packet.
	FlagSyn uint32 = 1 << 5
	// FlagAck marks an acknowledgment.
	FlagAck uint32 = 1 << 6
	// FlagFin marks a connection-termination packet.
	FlagFin uint32 = 1 << 7

	reservedMask = 0x1F // bits 0-4, must be zero

	// SenderHeaderSize is the on-wire size of Flags+Sequence.
	SenderHeaderSize = 8

	// LinkPropertiesSize is the on-wire size of a LinkProperties block.
	LinkPropertiesSize = 20

	// ReceiverHeaderSize is the on-wire size of an ACK header.
	ReceiverHeaderSize = 12

	// MTU is the maximum total packet size, including header.
	MTU = 1472

	// MaxPayloadSize is the largest DATA payload that fits within MTU.
	MaxPayloadSize = MTU - SenderHeaderSize
)

func buildFlags(syn, ack, fin bool) uint32 {
	f := Magic << 8
	if syn {
		f |= FlagSyn
	}
	if ack {
		f |= FlagAck
	}
	if fin {
		f |= FlagFin
	}
	return f
}

func flagsMagic(flags uint32) uint32 {
	return flags >> 8
}

func hasFlag(flags, flag uint32) bool {
	return flags&flag != 0
}

func validateFlags(flags uint32) error {
	if flags&reservedMask != 0 {
		return fmt.Errorf("protocol: reserved bits set in flags 0x%08x", flags)
	}
	if flagsMagic(flags) != Magic {
		return fmt.Errorf("protocol: bad magic 0x%06x, want 0x%06x", flagsMagic(flags), Magic)
	}
	return nil
}

// SenderHeader is the header carried on every sender->receiver packet:
// SYN, DATA, and FIN.
type SenderHeader struct {
	Flags    uint32
	Sequence uint32
}

// NewSynHeader builds a SYN header for the given sequence (always 0).
func NewSynHeader(seq uint32) SenderHeader {
	return SenderHeader{Flags: buildFlags(true, false, false), Sequence: seq}
}

// NewDataHeader builds a DATA header for the given sequence.
func NewDataHeader(seq uint32) SenderHeader {
	return SenderHeader{Flags: buildFlags(false, false, false), Sequence: seq}
}

// NewFinHeader builds a FIN header for the given sequence.
func NewFinHeader(seq uint32) SenderHeader {
	return SenderHeader{Flags: buildFlags(false, false, true), Sequence: seq}
}

// IsSyn reports whether the SYN flag is set.
func (h SenderHeader) IsSyn() bool { return hasFlag(h.Flags, FlagSyn) }

// IsFin reports whether the FIN flag is set.
func (h SenderHeader) IsFin() bool { return hasFlag(h.Flags, FlagFin) }

// Marshal serializes the header to its packed little-endian wire form.
func (h SenderHeader) Marshal() []byte {
	buf := make([]byte, SenderHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Flags)
	binary.LittleEndian.PutUint32(buf[4:8], h.Sequence)
	return buf
}

// UnmarshalSenderHeader parses a SenderHeader from the front of data.
func UnmarshalSenderHeader(data []byte) (SenderHeader, error) {
	if len(data) < SenderHeaderSize {
		return SenderHeader{}, fmt.Errorf("protocol: packet too small for sender header: %d bytes", len(data))
	}
	h := SenderHeader{
		Flags:    binary.LittleEndian.Uint32(data[0:4]),
		Sequence: binary.LittleEndian.Uint32(data[4:8]),
	}
	if err := validateFlags(h.Flags); err != nil {
		return SenderHeader{}, err
	}
	return h, nil
}

// LinkProperties describes the link characteristics negotiated on SYN.
type LinkProperties struct {
	RTT         float32 // propagation RTT target, seconds
	Speed       float32 // bottleneck bandwidth, bits/sec
	LossForward float32 // forward-path loss probability
	LossReturn  float32 // return-path loss probability
	BufferSize  uint32  // packets
}

// Marshal serializes LinkProperties to its packed wire form.
func (lp LinkProperties) Marshal() []byte {
	buf := make([]byte, LinkPropertiesSize)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(lp.RTT))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(lp.Speed))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(lp.LossForward))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(lp.LossReturn))
	binary.LittleEndian.PutUint32(buf[16:20], lp.BufferSize)
	return buf
}

// UnmarshalLinkProperties parses a LinkProperties block from the front of data.
func UnmarshalLinkProperties(data []byte) (LinkProperties, error) {
	if len(data) < LinkPropertiesSize {
		return LinkProperties{}, fmt.Errorf("protocol: packet too small for link properties: %d bytes", len(data))
	}
	return LinkProperties{
		RTT:         math.Float32frombits(binary.LittleEndian.Uint32(data[0:4])),
		Speed:       math.Float32frombits(binary.LittleEndian.Uint32(data[4:8])),
		LossForward: math.Float32frombits(binary.LittleEndian.Uint32(data[8:12])),
		LossReturn:  math.Float32frombits(binary.LittleEndian.Uint32(data[12:16])),
		BufferSize:  binary.LittleEndian.Uint32(data[16:20]),
	}, nil
}

// ReceiverHeader is the header carried on every receiver->sender ACK packet.
type ReceiverHeader struct {
	Flags          uint32
	ReceiverWindow uint32
	AckSequence    uint32
}

// NewAckHeader builds an ACK header. syn marks a SYN-ACK (handshake
// completion); fin marks a FIN-ACK (teardown completion).
func NewAckHeader(receiverWindow, ackSeq uint32, syn, fin bool) ReceiverHeader {
	return ReceiverHeader{
		Flags:          buildFlags(syn, true, fin),
		ReceiverWindow: receiverWindow,
		AckSequence:    ackSeq,
	}
}

// IsFin reports whether the FIN flag (FIN-ACK) is set.
func (h ReceiverHeader) IsFin() bool { return hasFlag(h.Flags, FlagFin) }

// IsSyn reports whether the SYN flag (SYN-ACK) is set.
func (h ReceiverHeader) IsSyn() bool { return hasFlag(h.Flags, FlagSyn) }

// Marshal serializes the header to its packed little-endian wire form.
func (h ReceiverHeader) Marshal() []byte {
	buf := make([]byte, ReceiverHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Flags)
	binary.LittleEndian.PutUint32(buf[4:8], h.ReceiverWindow)
	binary.LittleEndian.PutUint32(buf[8:12], h.AckSequence)
	return buf
}

// UnmarshalReceiverHeader parses a ReceiverHeader from data.
func UnmarshalReceiverHeader(data []byte) (ReceiverHeader, error) {
	if len(data) < ReceiverHeaderSize {
		return ReceiverHeader{}, fmt.Errorf("protocol: packet too small for receiver header: %d bytes", len(data))
	}
	h := ReceiverHeader{
		Flags:          binary.LittleEndian.Uint32(data[0:4]),
		ReceiverWindow: binary.LittleEndian.Uint32(data[4:8]),
		AckSequence:    binary.LittleEndian.Uint32(data[8:12]),
	}
	if err := validateFlags(h.Flags); err != nil {
		return ReceiverHeader{}, err
	}
	return h, nil
}
