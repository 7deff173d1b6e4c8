package sender

import (
	"math"
	"testing"
)

func approxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestRTOEstimatorFirstSample(t *testing.T) {
	e := NewRTOEstimator()
	rto := e.Sample(0.1)
	if !approxEqual(e.EstRTT(), 0.1, 1e-9) {
		t.Errorf("EstRTT = %v, want 0.1", e.EstRTT())
	}
	if !approxEqual(e.DevRTT(), 0.05, 1e-9) {
		t.Errorf("DevRTT = %v, want 0.05", e.DevRTT())
	}
	want := 0.1 + 4*math.Max(0.05, rtoFloor)
	if !approxEqual(rto, want, 1e-9) {
		t.Errorf("RTO = %v, want %v", rto, want)
	}
}

func TestRTOEstimatorFloor(t *testing.T) {
	e := NewRTOEstimator()
	e.Sample(0.1)
	e.Sample(0.1)
	e.Sample(0.1)
	if e.RTO() < e.EstRTT()+4*rtoFloor-1e-9 {
		t.Errorf("RTO %v below EstRTT+4*floor", e.RTO())
	}
}

func TestRTOEstimatorRisesWithVariance(t *testing.T) {
	e := NewRTOEstimator()
	e.Sample(0.1)
	e.Sample(0.1)
	rtoBefore := e.RTO()
	e.Sample(0.5)
	rtoAfter := e.RTO()
	if rtoAfter <= rtoBefore {
		t.Errorf("expected RTO to rise after a variance spike: before=%v after=%v", rtoBefore, rtoAfter)
	}
	if e.RTO() < e.EstRTT()+4*rtoFloor-1e-9 {
		t.Errorf("RTO invariant violated: RTO=%v EstRTT=%v", e.RTO(), e.EstRTT())
	}
}

func TestRTOEstimatorMonotoneThenRisingScenario(t *testing.T) {
	e := NewRTOEstimator()
	samples := []float64{0.1, 0.1, 0.1, 0.5}
	var prevEst float64
	for i, s := range samples {
		e.Sample(s)
		if i > 0 && i < 3 && e.EstRTT() > prevEst+1e-9 {
			t.Errorf("EstRTT should stay flat on repeated 0.1 samples, got %v after %v", e.EstRTT(), prevEst)
		}
		prevEst = e.EstRTT()
	}
	if e.EstRTT() <= 0.1+1e-9 {
		t.Errorf("EstRTT should rise after the 0.5 sample, got %v", e.EstRTT())
	}
}
