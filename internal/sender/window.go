package sender

// Slot holds the state for one sequence number's worth of unacknowledged
// on-wire bytes. It is preallocated at Open time and reused as the window
// slides forward; it is never freed.
type Slot struct {
	Bytes         []byte  // owned copy of the on-wire bytes
	Sequence      uint32  // sequence number currently occupying this slot
	Timestamp     float64 // Clock time of most recent transmission
	Retransmitted bool    // true if this slot was ever retransmitted since last reused
}

// Window is the fixed-length ring of packet-buffer slots, indexed by
// sequence mod W. It must only be mutated while the caller holds the
// Session mutex.
type Window struct {
	slots []Slot
	size  uint32
}

// NewWindow preallocates a ring of size slots.
func NewWindow(size uint32) *Window {
	return &Window{slots: make([]Slot, size), size: size}
}

// Size returns the window's fixed slot count.
func (w *Window) Size() uint32 { return w.size }

func (w *Window) index(seq uint32) uint32 {
	return seq % w.size
}

// Put writes a freshly transmitted packet into the slot for seq,
// overwriting whatever (now-acknowledged) packet previously occupied it
// and clearing its retransmitted flag.
func (w *Window) Put(seq uint32, bytes []byte, now float64) {
	w.slots[w.index(seq)] = Slot{
		Bytes:     bytes,
		Sequence:  seq,
		Timestamp: now,
	}
}

// Get returns a copy of the slot for seq.
func (w *Window) Get(seq uint32) Slot {
	return w.slots[w.index(seq)]
}

// Retransmit refreshes the timestamp for the slot at seq and marks it
// retransmitted, without touching the stored bytes.
func (w *Window) Retransmit(seq uint32, now float64) {
	i := w.index(seq)
	w.slots[i].Timestamp = now
	w.slots[i].Retransmitted = true
}
