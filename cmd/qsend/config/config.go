// Package config loads the qsend CLI's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the qsend sender process's complete configuration.
type Config struct {
	Peer      PeerConfig      `yaml:"Peer"`
	Discovery DiscoveryConfig `yaml:"Discovery"`
	Log       LogConfig       `yaml:"Log"`
	Metrics   MetricsConfig   `yaml:"Metrics"`
	Tracing   TracingConfig   `yaml:"Tracing"`
	StatsWS   StatsWSConfig   `yaml:"StatsWS"`
	RateLimit RateLimitConfig `yaml:"RateLimit"`
}

// PeerConfig addresses the receiver and sizes the reliability engine.
type PeerConfig struct {
	Host         string        `yaml:"Host"`
	Port         int           `yaml:"Port"`
	SenderWindow int           `yaml:"SenderWindow"`
	RTT          float64       `yaml:"RTT"`
	Speed        float64       `yaml:"Speed"`
	LossForward  float64       `yaml:"LossForward"`
	LossReturn   float64       `yaml:"LossReturn"`
	ReadTimeout  time.Duration `yaml:"ReadTimeout"`
}

// DiscoveryConfig selects how Peer.Host is resolved to an address.
type DiscoveryConfig struct {
	Type string     `yaml:"Type"` // "dns" or "etcd"
	Etcd EtcdConfig `yaml:"Etcd,omitempty"`
}

// EtcdConfig configures the etcd-backed resolver.
type EtcdConfig struct {
	Endpoints   []string      `yaml:"Endpoints"`
	Key         string        `yaml:"Key"`
	DialTimeout time.Duration `yaml:"DialTimeout"`
	Username    string        `yaml:"Username"`
	Password    string        `yaml:"Password"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"Level"`  // debug, info, warn, error
	Format string `yaml:"Format"` // json, console
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enable    bool   `yaml:"Enable"`
	Host      string `yaml:"Host"`
	Port      int    `yaml:"Port"`
	Path      string `yaml:"Path"`
	Namespace string `yaml:"Namespace"`
	Subsystem string `yaml:"Subsystem"`
}

// TracingConfig configures OpenTelemetry span export.
type TracingConfig struct {
	Enable       bool    `yaml:"Enable"`
	ServiceName  string  `yaml:"ServiceName"`
	Endpoint     string  `yaml:"Endpoint"`
	Exporter     string  `yaml:"Exporter"`
	SampleRate   float64 `yaml:"SampleRate"`
	Environment  string  `yaml:"Environment"`
	BatchTimeout int     `yaml:"BatchTimeout"`
	MaxQueueSize int     `yaml:"MaxQueueSize"`
}

// StatsWSConfig configures the statistics websocket hub.
type StatsWSConfig struct {
	Enable       bool   `yaml:"Enable"`
	Host         string `yaml:"Host"`
	Port         int    `yaml:"Port"`
	Path         string `yaml:"Path"`
	RequireToken bool   `yaml:"RequireToken"`
	TokenSecret  string `yaml:"TokenSecret"`
	TokenIssuer  string `yaml:"TokenIssuer"`
}

// RateLimitConfig throttles how often timeout/fast-retx events are logged.
type RateLimitConfig struct {
	Enable         bool    `yaml:"Enable"`
	EventsPerSecond float64 `yaml:"EventsPerSecond"`
	Burst          int     `yaml:"Burst"`
}

// Default returns the out-of-the-box configuration.
func Default() *Config {
	return &Config{
		Peer: PeerConfig{
			Host:         "127.0.0.1",
			Port:         22345,
			SenderWindow: 32,
			RTT:          0.05,
			Speed:        1e7,
			ReadTimeout:  2 * time.Second,
		},
		Discovery: DiscoveryConfig{Type: "dns"},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enable:    true,
			Host:      "0.0.0.0",
			Port:      9101,
			Path:      "/metrics",
			Namespace: "qsend",
			Subsystem: "sender",
		},
		Tracing: TracingConfig{
			Enable:       false,
			ServiceName:  "qsend-sender",
			Endpoint:     "http://localhost:14268/api/traces",
			Exporter:     "jaeger",
			SampleRate:   1.0,
			Environment:  "development",
			BatchTimeout: 5,
			MaxQueueSize: 2048,
		},
		StatsWS: StatsWSConfig{
			Enable: true,
			Host:   "0.0.0.0",
			Port:   9102,
			Path:   "/stats",
		},
		RateLimit: RateLimitConfig{
			Enable:          true,
			EventsPerSecond: 5,
			Burst:           10,
		},
	}
}

// Load reads filename and overlays it on Default(). A missing file is not
// an error: Default() is returned as-is.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %q: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", filename, err)
	}
	return cfg, nil
}
