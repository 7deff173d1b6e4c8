package sender

import "math"

const (
	rtoAlpha      = 1.0 / 8.0
	rtoBeta       = 1.0 / 4.0
	rtoFloor      = 0.010 // 10ms
	rtoMultiplier = 4.0
)

// RTOEstimator implements Jacobson/Karels smoothed RTT and deviation
// tracking with a floor on the deviation term, in the style of RFC 6298.
type RTOEstimator struct {
	initialized bool
	estRTT      float64
	devRTT      float64
}

// NewRTOEstimator returns a fresh, unseeded estimator.
func NewRTOEstimator() *RTOEstimator {
	return &RTOEstimator{}
}

// Sample feeds one RTT measurement and returns the resulting RTO. Samples
// must never be taken from a retransmitted packet (Karn's algorithm); that
// rule is enforced by the caller, not here.
func (e *RTOEstimator) Sample(rtt float64) float64 {
	if !e.initialized {
		e.estRTT = rtt
		e.devRTT = rtt / 2
		e.initialized = true
	} else {
		e.estRTT = (1-rtoAlpha)*e.estRTT + rtoAlpha*rtt
		delta := e.estRTT - rtt
		if delta < 0 {
			delta = -delta
		}
		e.devRTT = (1-rtoBeta)*e.devRTT + rtoBeta*delta
	}
	return e.RTO()
}

// RTO returns the RTO implied by the current EstRTT/DevRTT.
func (e *RTOEstimator) RTO() float64 {
	return e.estRTT + rtoMultiplier*math.Max(e.devRTT, rtoFloor)
}

// EstRTT returns the current smoothed RTT.
func (e *RTOEstimator) EstRTT() float64 { return e.estRTT }

// DevRTT returns the current RTT deviation.
func (e *RTOEstimator) DevRTT() float64 { return e.devRTT }
