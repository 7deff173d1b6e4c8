package protocol

import "testing"

func TestSenderHeaderRoundTrip(t *testing.T) {
	cases := []SenderHeader{
		NewSynHeader(0),
		NewDataHeader(42),
		NewFinHeader(1000),
	}

	for _, h := range cases {
		data := h.Marshal()
		got, err := UnmarshalSenderHeader(data)
		if err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if got != h {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
		}
	}
}

func TestSenderHeaderMagic(t *testing.T) {
	h := NewDataHeader(1)
	if flagsMagic(h.Flags) != Magic {
		t.Errorf("magic = 0x%06x, want 0x%06x", flagsMagic(h.Flags), Magic)
	}
}

func TestSenderHeaderBadMagicRejected(t *testing.T) {
	h := NewDataHeader(7)
	data := h.Marshal()
	data[3] ^= 0xFF // corrupt the high byte of Flags, which holds part of the magic
	if _, err := UnmarshalSenderHeader(data); err == nil {
		t.Error("expected error for corrupted magic, got nil")
	}
}

func TestSenderHeaderTooShort(t *testing.T) {
	if _, err := UnmarshalSenderHeader([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short packet, got nil")
	}
}

func TestLinkPropertiesRoundTrip(t *testing.T) {
	lp := LinkProperties{
		RTT:         0.2,
		Speed:       1e7,
		LossForward: 0.01,
		LossReturn:  0.02,
		BufferSize:  261,
	}
	data := lp.Marshal()
	got, err := UnmarshalLinkProperties(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got != lp {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, lp)
	}
}

func TestReceiverHeaderRoundTrip(t *testing.T) {
	cases := []ReceiverHeader{
		NewAckHeader(256, 0, false, false),
		NewAckHeader(128, 21, false, false),
		NewAckHeader(10, 9999, false, true),
		NewAckHeader(10, 0, true, false),
	}

	for _, h := range cases {
		data := h.Marshal()
		got, err := UnmarshalReceiverHeader(data)
		if err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if got != h {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
		}
	}
}

func TestReceiverHeaderFinFlag(t *testing.T) {
	h := NewAckHeader(10, 5, false, true)
	if !h.IsFin() {
		t.Error("expected IsFin() true")
	}
	plain := NewAckHeader(10, 5, false, false)
	if plain.IsFin() {
		t.Error("expected IsFin() false")
	}
}

func TestReceiverHeaderSynFlag(t *testing.T) {
	h := NewAckHeader(10, 0, true, false)
	if !h.IsSyn() {
		t.Error("expected IsSyn() true")
	}
	if h.IsFin() {
		t.Error("expected IsFin() false for a plain SYN-ACK")
	}
}

func TestReservedBitsRejected(t *testing.T) {
	h := NewDataHeader(3)
	data := h.Marshal()
	data[0] |= 0x01 // set a reserved bit
	if _, err := UnmarshalSenderHeader(data); err == nil {
		t.Error("expected error for reserved bit set, got nil")
	}
}
