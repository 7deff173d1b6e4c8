package sender

import "testing"

func TestWindowPutGet(t *testing.T) {
	w := NewWindow(4)
	w.Put(0, []byte("a"), 1.0)
	w.Put(5, []byte("b"), 2.0) // wraps to same slot as seq 1
	w.Put(1, []byte("c"), 3.0)

	got := w.Get(0)
	if string(got.Bytes) != "a" || got.Sequence != 0 {
		t.Errorf("Get(0) = %+v", got)
	}

	got = w.Get(1)
	if string(got.Bytes) != "c" || got.Sequence != 1 {
		t.Errorf("Get(1) = %+v", got)
	}
}

func TestWindowRetransmitPreservesBytes(t *testing.T) {
	w := NewWindow(4)
	w.Put(2, []byte("payload"), 1.0)
	w.Retransmit(2, 5.0)

	got := w.Get(2)
	if string(got.Bytes) != "payload" {
		t.Errorf("bytes changed after retransmit: %q", got.Bytes)
	}
	if got.Timestamp != 5.0 {
		t.Errorf("Timestamp = %v, want 5.0", got.Timestamp)
	}
	if !got.Retransmitted {
		t.Error("expected Retransmitted = true")
	}
}

func TestWindowPutClearsRetransmittedFlag(t *testing.T) {
	w := NewWindow(4)
	w.Put(0, []byte("a"), 1.0)
	w.Retransmit(0, 2.0)
	w.Put(4, []byte("b"), 3.0) // reuses the same slot for the next lap

	got := w.Get(4)
	if got.Retransmitted {
		t.Error("expected Retransmitted flag cleared on slot reuse")
	}
}
