// Package discovery resolves a peer host name into a UDP address for the
// sender core's Open operation. The default resolver is DNS/literal; an
// etcd-backed resolver is available for deployments where receiver
// endpoints are published to an etcd cluster instead of DNS.
package discovery

import (
	"context"
	"fmt"
	"net"
)

// Resolver is the "hostname -> address" interface the sender core's Open
// operation consumes.
type Resolver interface {
	Resolve(ctx context.Context, host string, port int) (*net.UDPAddr, error)
}

// DNSResolver resolves a literal IP address or the first A record returned
// for host, matching spec.md's "resolve host (literal address or DNS A
// record; first result)".
type DNSResolver struct{}

// NewDNSResolver returns the default resolver.
func NewDNSResolver() *DNSResolver { return &DNSResolver{} }

// Resolve implements Resolver.
func (DNSResolver) Resolve(ctx context.Context, host string, port int) (*net.UDPAddr, error) {
	if ip := net.ParseIP(host); ip != nil {
		return &net.UDPAddr{IP: ip, Port: port}, nil
	}

	var resolver net.Resolver
	ips, err := resolver.LookupIP(ctx, "ip4", host)
	if err != nil {
		return nil, fmt.Errorf("discovery: lookup %q: %w", host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("discovery: no addresses found for %q", host)
	}
	return &net.UDPAddr{IP: ips[0], Port: port}, nil
}
