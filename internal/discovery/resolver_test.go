package discovery

import (
	"context"
	"testing"
)

func TestDNSResolverLiteralAddress(t *testing.T) {
	r := NewDNSResolver()
	addr, err := r.Resolve(context.Background(), "127.0.0.1", 22345)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if addr.IP.String() != "127.0.0.1" || addr.Port != 22345 {
		t.Errorf("Resolve() = %+v, want 127.0.0.1:22345", addr)
	}
}

func TestDNSResolverLocalhost(t *testing.T) {
	r := NewDNSResolver()
	addr, err := r.Resolve(context.Background(), "localhost", 9999)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if addr.Port != 9999 {
		t.Errorf("Resolve() port = %d, want 9999", addr.Port)
	}
}

func TestNewEtcdResolverRequiresEndpoints(t *testing.T) {
	_, err := NewEtcdResolver(EtcdConfig{}, nil)
	if err == nil {
		t.Error("expected error with no endpoints, got nil")
	}
}
