package cost

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEstimate_ScaleUp(t *testing.T) {
	rates := Rates{WorkerPerHour: 0.50, ViolationPerHour: 100}

	got := Estimate(5, 2*time.Hour, 0, rates)

	if !almostEqual(got.DeltaPerHour, 2.5) {
		t.Errorf("DeltaPerHour = %v, want 2.5", got.DeltaPerHour)
	}
	if !almostEqual(got.WorkerCost, 5.0) {
		t.Errorf("WorkerCost = %v, want 5.0", got.WorkerCost)
	}
	if got.ViolationCost != 0 {
		t.Errorf("ViolationCost = %v, want 0", got.ViolationCost)
	}
	if !almostEqual(got.Total, 5.0) {
		t.Errorf("Total = %v, want 5.0", got.Total)
	}
}

func TestEstimate_ScaleDownSavings(t *testing.T) {
	rates := Rates{WorkerPerHour: 1.0}

	got := Estimate(-4, time.Hour, 0, rates)

	if !almostEqual(got.WorkerCost, -4.0) {
		t.Errorf("WorkerCost = %v, want -4.0", got.WorkerCost)
	}
	if got.Total >= 0 {
		t.Errorf("Total = %v, want negative", got.Total)
	}
}

func TestEstimate_BreachExposure(t *testing.T) {
	rates := Rates{WorkerPerHour: 0.50, ViolationPerHour: 120}

	// 30 minutes of projected breach at $120/hour.
	got := Estimate(0, time.Hour, 30*time.Minute, rates)

	if !almostEqual(got.ViolationCost, 60.0) {
		t.Errorf("ViolationCost = %v, want 60.0", got.ViolationCost)
	}
	if !almostEqual(got.Total, 60.0) {
		t.Errorf("Total = %v, want 60.0", got.Total)
	}
}

func TestRates_Known(t *testing.T) {
	if (Rates{}).Known() {
		t.Error("zero rates should not be known")
	}
	if !(Rates{WorkerPerHour: 0.1}).Known() {
		t.Error("worker rate alone should be known")
	}
	if !(Rates{ViolationPerHour: 50}).Known() {
		t.Error("violation rate alone should be known")
	}
}
