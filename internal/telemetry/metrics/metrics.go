// Package metrics exposes the statistics reporter's counters as Prometheus
// gauges/counters, served over net/http via promhttp.Handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for one sender process. Multiple
// Sessions in the same process share the same Metrics (labeled by session
// ID), matching the namespace/subsystem convention of the collector it's
// grounded on.
type Metrics struct {
	SenderBase      *prometheus.GaugeVec
	NextSequence    *prometheus.GaugeVec
	EffectiveWindow *prometheus.GaugeVec
	BytesAckedTotal *prometheus.CounterVec
	TimeoutsTotal   *prometheus.CounterVec
	FastRetxTotal   *prometheus.CounterVec
	EstRTTSeconds   *prometheus.GaugeVec
	RtoSeconds      *prometheus.GaugeVec
	ThroughputMbps  *prometheus.GaugeVec
	SessionsOpened  prometheus.Counter
	SessionsAborted prometheus.Counter
}

// New creates and registers the collectors under namespace/subsystem.
func New(namespace, subsystem string) *Metrics {
	return &Metrics{
		SenderBase: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "sender_base", Help: "Lowest unacknowledged sequence number.",
			}, []string{"session"},
		),
		NextSequence: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "next_sequence", Help: "Next sequence number to be produced.",
			}, []string{"session"},
		),
		EffectiveWindow: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "effective_window", Help: "min(SenderWindow, ReceiverWindow).",
			}, []string{"session"},
		),
		BytesAckedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "bytes_acked_total", Help: "Upper-bound bytes acknowledged.",
			}, []string{"session"},
		),
		TimeoutsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "timeouts_total", Help: "Retransmission timeouts observed.",
			}, []string{"session"},
		),
		FastRetxTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "fast_retransmits_total", Help: "Fast retransmits triggered by duplicate ACKs.",
			}, []string{"session"},
		),
		EstRTTSeconds: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "est_rtt_seconds", Help: "Smoothed RTT estimate.",
			}, []string{"session"},
		),
		RtoSeconds: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "rto_seconds", Help: "Current retransmission timeout.",
			}, []string{"session"},
		),
		ThroughputMbps: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "throughput_mbps", Help: "Instantaneous throughput since the last sample.",
			}, []string{"session"},
		),
		SessionsOpened: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "sessions_opened_total", Help: "Sessions that completed Open successfully.",
			},
		),
		SessionsAborted: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "sessions_aborted_total", Help: "Sessions that entered the Aborted state.",
			},
		),
	}
}

// Sample is one point-in-time observation fed into the gauges/counters.
type Sample struct {
	SessionID       string
	SenderBase      int64
	NextSequence    uint32
	EffectiveWindow uint32
	BytesAcked      uint64
	TotalTimeouts   uint64
	TotalFastRetx   uint64
	EstRTT          float64
	Rto             float64
	ThroughputMbps  float64
}

// Observe sets the gauges from a Sample. The *_total counters are not
// touched here; the reporter calls AddBytesAcked/AddTimeouts/AddFastRetx
// with the delta since the previous sample.
func (m *Metrics) Observe(s Sample) {
	m.SenderBase.WithLabelValues(s.SessionID).Set(float64(s.SenderBase))
	m.NextSequence.WithLabelValues(s.SessionID).Set(float64(s.NextSequence))
	m.EffectiveWindow.WithLabelValues(s.SessionID).Set(float64(s.EffectiveWindow))
	m.EstRTTSeconds.WithLabelValues(s.SessionID).Set(s.EstRTT)
	m.RtoSeconds.WithLabelValues(s.SessionID).Set(s.Rto)
	m.ThroughputMbps.WithLabelValues(s.SessionID).Set(s.ThroughputMbps)
}

// AddBytesAcked increments the bytes-acked counter by delta.
func (m *Metrics) AddBytesAcked(sessionID string, delta uint64) {
	if delta == 0 {
		return
	}
	m.BytesAckedTotal.WithLabelValues(sessionID).Add(float64(delta))
}

// AddTimeouts increments the timeout counter by delta.
func (m *Metrics) AddTimeouts(sessionID string, delta uint64) {
	if delta == 0 {
		return
	}
	m.TimeoutsTotal.WithLabelValues(sessionID).Add(float64(delta))
}

// AddFastRetx increments the fast-retransmit counter by delta.
func (m *Metrics) AddFastRetx(sessionID string, delta uint64) {
	if delta == 0 {
		return
	}
	m.FastRetxTotal.WithLabelValues(sessionID).Add(float64(delta))
}
