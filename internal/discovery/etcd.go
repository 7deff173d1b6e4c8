package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// EtcdConfig configures an EtcdResolver.
type EtcdConfig struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string
}

// EtcdResolver resolves a peer address by reading a "host:port" value from
// an etcd key, for deployments that publish receiver endpoints to etcd
// rather than DNS.
type EtcdResolver struct {
	client *clientv3.Client
	logger *zap.Logger
}

// NewEtcdResolver dials an etcd client for later address lookups.
func NewEtcdResolver(cfg EtcdConfig, logger *zap.Logger) (*EtcdResolver, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("discovery: etcd resolver requires at least one endpoint")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.Username != "" {
		clientCfg.Username = cfg.Username
		clientCfg.Password = cfg.Password
	}

	client, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("discovery: create etcd client: %w", err)
	}

	logger.Info("etcd resolver created", zap.Strings("endpoints", cfg.Endpoints))
	return &EtcdResolver{client: client, logger: logger}, nil
}

// Resolve looks up host as an etcd key holding a "host:port" or bare host
// value. The port argument is used only when the stored value has none.
func (r *EtcdResolver) Resolve(ctx context.Context, host string, port int) (*net.UDPAddr, error) {
	resp, err := r.client.Get(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("discovery: etcd get %q: %w", host, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("discovery: no etcd value for key %q", host)
	}

	value := strings.TrimSpace(string(resp.Kvs[0].Value))
	addrHost, addrPort := value, port
	if h, p, err := net.SplitHostPort(value); err == nil {
		addrHost = h
		if n, err := strconv.Atoi(p); err == nil {
			addrPort = n
		}
	}

	ip := net.ParseIP(addrHost)
	if ip == nil {
		ips, err := net.DefaultResolver.LookupIPAddr(ctx, addrHost)
		if err != nil || len(ips) == 0 {
			return nil, fmt.Errorf("discovery: could not resolve etcd value %q for key %q", value, host)
		}
		ip = ips[0].IP
	}

	r.logger.Debug("resolved peer via etcd", zap.String("key", host), zap.String("value", value))
	return &net.UDPAddr{IP: ip, Port: addrPort}, nil
}

// Close releases the underlying etcd client.
func (r *EtcdResolver) Close() error {
	return r.client.Close()
}
