package sender

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/quantum-proto/qsend/internal/telemetry/metrics"
	"github.com/quantum-proto/qsend/internal/telemetry/statsws"
)

// reportInterval is the statistics reporter's sampling period.
const reportInterval = 2 * time.Second

// Reporter periodically samples a Session's counters and prints, exports
// (Prometheus), and/or pushes (websocket) them. It is not on the
// correctness path: the session runs correctly with no Reporter attached.
type Reporter struct {
	session *Session
	logger  *zap.Logger
	metrics *metrics.Metrics
	hub     *statsws.Hub

	prevBytesAcked    uint64
	prevTotalTimeouts uint64
	prevTotalFastRetx uint64
	prevSampleAt      float64
}

// NewReporter builds a Reporter for session. metrics and hub are optional;
// either may be nil to disable that sink.
func NewReporter(session *Session, logger *zap.Logger, m *metrics.Metrics, hub *statsws.Hub) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{session: session, logger: logger, metrics: m, hub: hub}
}

// Run samples every reportInterval until ctx is canceled or the session
// stops being Connected.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := r.session.Snapshot()
			if !snap.Connected {
				return
			}
			r.sample(snap)
		}
	}
}

func (r *Reporter) sample(snap Stats) {
	now := r.session.clock.Now()

	var mbps float64
	if r.prevSampleAt > 0 {
		elapsed := now - r.prevSampleAt
		deltaBytes := snap.BytesAcked - r.prevBytesAcked
		if elapsed > 0 {
			mbps = (float64(deltaBytes) * 8) / elapsed / 1e6
		}
	}
	r.prevSampleAt = now

	mb := float64(snap.BytesAcked) / (1024 * 1024)

	r.logger.Info("transfer progress",
		zap.Int64("sender_base", snap.SenderBase),
		zap.Float64("mb_acked", mb),
		zap.Uint32("next_sequence", snap.NextSequence),
		zap.Uint64("total_timeouts", snap.TotalTimeouts),
		zap.Uint64("total_fast_retx", snap.TotalFastRetx),
		zap.Uint32("effective_window", snap.EffectiveWindow),
		zap.Float64("mbps", mbps),
		zap.Float64("est_rtt", snap.EstRTT),
	)

	if r.metrics != nil {
		sid := r.session.ID()
		r.metrics.Observe(metrics.Sample{
			SessionID:       sid,
			SenderBase:      snap.SenderBase,
			NextSequence:    snap.NextSequence,
			EffectiveWindow: snap.EffectiveWindow,
			EstRTT:          snap.EstRTT,
			Rto:             snap.Rto,
			ThroughputMbps:  mbps,
		})
		r.metrics.AddBytesAcked(sid, snap.BytesAcked-r.prevBytesAcked)
		r.metrics.AddTimeouts(sid, snap.TotalTimeouts-r.prevTotalTimeouts)
		r.metrics.AddFastRetx(sid, snap.TotalFastRetx-r.prevTotalFastRetx)
	}

	if r.hub != nil {
		r.hub.Broadcast(statsws.Sample{
			SessionID:       r.session.ID(),
			SenderBase:      snap.SenderBase,
			NextSequence:    snap.NextSequence,
			EffectiveWindow: snap.EffectiveWindow,
			BytesAcked:      snap.BytesAcked,
			TotalTimeouts:   snap.TotalTimeouts,
			TotalFastRetx:   snap.TotalFastRetx,
			EstRTT:          snap.EstRTT,
			Rto:             snap.Rto,
			ThroughputMbps:  mbps,
		})
	}

	r.prevBytesAcked = snap.BytesAcked
	r.prevTotalTimeouts = snap.TotalTimeouts
	r.prevTotalFastRetx = snap.TotalFastRetx
}
