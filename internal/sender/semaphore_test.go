package sender

import (
	"testing"
	"time"
)

func TestSemaphoreWaitSignal(t *testing.T) {
	s := NewSemaphore(0)
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before Signal")
	case <-time.After(20 * time.Millisecond):
	}

	s.Signal(1)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Signal")
	}
}

func TestSemaphoreSignalThenWaitIdempotent(t *testing.T) {
	s := NewSemaphore(0)
	s.Signal(5)
	for i := 0; i < 5; i++ {
		s.Wait()
	}
	if got := s.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestSemaphoreWaitDeferred(t *testing.T) {
	s := NewSemaphore(0)
	s.Signal(4)
	s.Wait() // consumes 1 of 4
	s.WaitDeferred(4)
	if got := s.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestSemaphoreWaitDeferredCanGoNegative(t *testing.T) {
	s := NewSemaphore(0)
	s.Signal(1)
	s.Wait()
	s.WaitDeferred(5) // claims 4 more even though none exist
	if got := s.Count(); got != -4 {
		t.Errorf("Count() = %d, want -4", got)
	}
	// subsequent signals must refill back up before Wait unblocks again
	s.Signal(4)
	if got := s.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestSemaphoreUnWait(t *testing.T) {
	s := NewSemaphore(1)
	s.Wait()
	if got := s.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
	s.UnWait()
	if got := s.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}
