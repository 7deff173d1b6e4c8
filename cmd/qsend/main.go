// Command qsend streams a file (or stdin) to a qsend receiver over the
// reliable sender protocol, exporting progress via logs, Prometheus, and an
// optional stats websocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/quantum-proto/qsend/cmd/qsend/config"
	"github.com/quantum-proto/qsend/internal/discovery"
	"github.com/quantum-proto/qsend/internal/protocol"
	"github.com/quantum-proto/qsend/internal/sender"
	"github.com/quantum-proto/qsend/internal/telemetry/authtoken"
	"github.com/quantum-proto/qsend/internal/telemetry/metrics"
	"github.com/quantum-proto/qsend/internal/telemetry/statsws"
	"github.com/quantum-proto/qsend/internal/telemetry/tracing"
)

var (
	configFile = flag.String("f", "configs/qsend.yaml", "path to the YAML config file")
	inputFile  = flag.String("in", "-", "file to send, or - for stdin")
	version    = "0.1.0"
)

func main() {
	flag.Parse()

	if _, err := maxprocs.Set(); err != nil {
		fmt.Fprintf(os.Stderr, "qsend: maxprocs: %v\n", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qsend: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qsend: logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting qsend", zap.String("version", version), zap.String("peer", cfg.Peer.Host))

	var m *metrics.Metrics
	if cfg.Metrics.Enable {
		m = metrics.New(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
		go serveMetrics(cfg, logger)
	}

	tracer, err := tracing.New(tracing.Config{
		Enable:       cfg.Tracing.Enable,
		ServiceName:  cfg.Tracing.ServiceName,
		Endpoint:     cfg.Tracing.Endpoint,
		Exporter:     cfg.Tracing.Exporter,
		SampleRate:   cfg.Tracing.SampleRate,
		Environment:  cfg.Tracing.Environment,
		BatchTimeout: time.Duration(cfg.Tracing.BatchTimeout) * time.Second,
		MaxQueueSize: cfg.Tracing.MaxQueueSize,
	}, logger)
	if err != nil {
		logger.Fatal("tracing init failed", zap.Error(err))
	}
	defer tracer.Shutdown(context.Background())

	var hub *statsws.Hub
	if cfg.StatsWS.Enable {
		var verifier *authtoken.Verifier
		if cfg.StatsWS.RequireToken {
			verifier = authtoken.NewVerifier(cfg.StatsWS.TokenSecret, cfg.StatsWS.TokenIssuer)
		}
		hub = statsws.NewHub(logger, verifier)
		go serveStatsWS(cfg, logger, hub)
	}

	resolver, err := buildResolver(cfg, logger)
	if err != nil {
		logger.Fatal("discovery init failed", zap.Error(err))
	}

	var retxLimiter *rate.Limiter
	if cfg.RateLimit.Enable {
		retxLimiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.EventsPerSecond), cfg.RateLimit.Burst)
	}

	s, err := sender.New(sender.Config{
		Host:         cfg.Peer.Host,
		Port:         cfg.Peer.Port,
		SenderWindow: uint32(cfg.Peer.SenderWindow),
		LinkProps: protocol.LinkProperties{
			RTT:         float32(cfg.Peer.RTT),
			Speed:       float32(cfg.Peer.Speed),
			LossForward: float32(cfg.Peer.LossForward),
			LossReturn:  float32(cfg.Peer.LossReturn),
		},
		Resolver:       resolver,
		Logger:         logger,
		RetxLogLimiter: retxLimiter,
	})
	if err != nil {
		logger.Fatal("session init failed", zap.Error(err))
	}

	ctx, span := tracer.Start(context.Background(), s.ID(), "Open")
	status := s.Open()
	tracing.RecordStatus(span, status, nil)
	if status != sender.StatusOK {
		if m != nil {
			m.SessionsAborted.Inc()
		}
		logger.Fatal("open failed", zap.Stringer("status", status))
	}
	if m != nil {
		m.SessionsOpened.Inc()
	}
	logger.Info("connected", zap.Stringer("status", status))

	reportCtx, cancelReport := context.WithCancel(ctx)
	defer cancelReport()
	go sender.NewReporter(s, logger, m, hub).Run(reportCtx)

	in, closeIn, err := openInput(*inputFile)
	if err != nil {
		logger.Fatal("open input failed", zap.Error(err))
	}
	defer closeIn()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("interrupted, aborting transfer")
		os.Exit(130)
	}()

	if err := streamAll(s, in, logger); err != nil {
		logger.Fatal("send failed", zap.Error(err))
	}

	var transferTime float64
	_, closeSpan := tracer.Start(ctx, s.ID(), "Close")
	status = s.Close(&transferTime)
	tracing.RecordStatus(closeSpan, status, nil)
	if status != sender.StatusOK {
		if m != nil {
			m.SessionsAborted.Inc()
		}
		logger.Fatal("close failed", zap.Stringer("status", status))
	}

	logger.Info("transfer complete", zap.Float64("seconds", transferTime))
}

func streamAll(s *sender.Session, r io.Reader, logger *zap.Logger) error {
	buf := make([]byte, protocol.MaxPayloadSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if status := s.Send(buf[:n]); status != sender.StatusOK {
				return fmt.Errorf("send: %s", status)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
	}
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func buildResolver(cfg *config.Config, logger *zap.Logger) (discovery.Resolver, error) {
	switch cfg.Discovery.Type {
	case "", "dns":
		return discovery.NewDNSResolver(), nil
	case "etcd":
		return discovery.NewEtcdResolver(discovery.EtcdConfig{
			Endpoints:   cfg.Discovery.Etcd.Endpoints,
			DialTimeout: cfg.Discovery.Etcd.DialTimeout,
			Username:    cfg.Discovery.Etcd.Username,
			Password:    cfg.Discovery.Etcd.Password,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown discovery type %q", cfg.Discovery.Type)
	}
}

func serveMetrics(cfg *config.Config, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	addr := fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port)
	logger.Info("metrics server listening", zap.String("addr", addr), zap.String("path", cfg.Metrics.Path))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}

func serveStatsWS(cfg *config.Config, logger *zap.Logger, hub *statsws.Hub) {
	mux := http.NewServeMux()
	mux.Handle(cfg.StatsWS.Path, hub)
	addr := fmt.Sprintf("%s:%d", cfg.StatsWS.Host, cfg.StatsWS.Port)
	logger.Info("stats websocket listening", zap.String("addr", addr), zap.String("path", cfg.StatsWS.Path))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("stats websocket server stopped", zap.Error(err))
	}
}
