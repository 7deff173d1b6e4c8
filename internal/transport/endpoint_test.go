package transport

import (
	"testing"
	"time"
)

func TestMockEndpointSendRecordsDatagram(t *testing.T) {
	ep := NewMockEndpoint(4)
	if err := ep.Send([]byte("hello")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	sent := ep.Sent()
	if len(sent) != 1 || string(sent[0]) != "hello" {
		t.Fatalf("Sent() = %v, want [hello]", sent)
	}
}

func TestMockEndpointReceiveTimeout(t *testing.T) {
	ep := NewMockEndpoint(4)
	_, err := ep.Receive(10 * time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("Receive() error = %v, want ErrTimeout", err)
	}
}

func TestMockEndpointDeliverThenReceive(t *testing.T) {
	ep := NewMockEndpoint(4)
	ep.Deliver([]byte("pong"))
	data, err := ep.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if string(data) != "pong" {
		t.Fatalf("Receive() = %q, want %q", data, "pong")
	}
}

func TestMockEndpointOnSendHook(t *testing.T) {
	ep := NewMockEndpoint(4)
	ep.OnSend(func(data []byte) {
		ep.Deliver(append([]byte("ack:"), data...))
	})
	if err := ep.Send([]byte("x")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	data, err := ep.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if string(data) != "ack:x" {
		t.Fatalf("Receive() = %q, want %q", data, "ack:x")
	}
}

func TestMockEndpointClosedSendFails(t *testing.T) {
	ep := NewMockEndpoint(4)
	ep.Close()
	if err := ep.Send([]byte("x")); err != ErrClosed {
		t.Fatalf("Send() error = %v, want ErrClosed", err)
	}
}

func TestRegistryRefCounting(t *testing.T) {
	reg := &Registry{}
	release1 := reg.Acquire()
	release2 := reg.Acquire()
	if reg.RefCount() != 2 {
		t.Fatalf("RefCount() = %d, want 2", reg.RefCount())
	}
	release1()
	if reg.RefCount() != 1 {
		t.Fatalf("RefCount() = %d, want 1", reg.RefCount())
	}
	release2()
	if reg.RefCount() != 0 {
		t.Fatalf("RefCount() = %d, want 0", reg.RefCount())
	}
}
