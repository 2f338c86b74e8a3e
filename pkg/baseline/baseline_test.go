package baseline

import (
	"math"
	"testing"
)

func feed(d *Detector, rate float64, n int) {
	for i := 0; i < n; i++ {
		d.Update(rate)
	}
}

func TestUpdate_SteadyLoadNotAnomalous(t *testing.T) {
	d := New()
	feed(d, 100, 50)
	if d.Update(102) {
		t.Fatal("steady load flagged as anomalous")
	}
}

func TestUpdate_TripleSpikeFlagged(t *testing.T) {
	d := New()
	feed(d, 100, 30)
	if !d.Update(300) {
		t.Fatal("3x jump over trailing average must be anomalous")
	}
}

func TestUpdate_WarmupNeverFlags(t *testing.T) {
	d := New()
	for i := 0; i < warmupSamples-1; i++ {
		if d.Update(float64(1000 * (i + 1))) {
			t.Fatalf("sample %d flagged during warmup", i)
		}
	}
}

func TestUpdate_ZScoreDetection(t *testing.T) {
	d := New()
	// Alternate around 100 so the variance is small but non-zero.
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			d.Update(99)
		} else {
			d.Update(101)
		}
	}
	// 150 is ~1.5x the short-window average, under the spike factor, so
	// only the z-score rule can fire here.
	if !d.Update(150) {
		t.Fatalf("z-score outlier not flagged (mean=%v sd=%v)", d.Mean(), d.StdDev())
	}
}

func TestUpdate_NegativeRatesTreatedAsZero(t *testing.T) {
	d := New()
	feed(d, 10, 20)
	d.Update(-5)
	if math.IsNaN(d.Mean()) || d.Mean() < 0 {
		t.Fatalf("mean corrupted by negative sample: %v", d.Mean())
	}
}

func TestStateRoundTrip(t *testing.T) {
	d := New()
	feed(d, 80, 25)
	d.Update(90)

	r := Restore(d.State())
	if r.Mean() != d.Mean() || r.StdDev() != d.StdDev() || r.Samples() != d.Samples() {
		t.Fatalf("restored detector differs: mean %v/%v sd %v/%v n %d/%d",
			r.Mean(), d.Mean(), r.StdDev(), d.StdDev(), r.Samples(), d.Samples())
	}

	// Both must agree on the next observation.
	if r.Update(500) != true {
		t.Fatal("restored detector lost its baseline")
	}
}
