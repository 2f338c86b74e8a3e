package forecast

import (
	"errors"
	"math"
	"testing"
	"time"
)

func samples(rates ...float64) []Sample {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Sample, len(rates))
	for i, r := range rates {
		out[i] = Sample{Time: base.Add(time.Duration(i) * time.Minute), Rate: r}
	}
	return out
}

func TestEWMA_ConstantSeries(t *testing.T) {
	m := NewEWMA(0.3, 60)
	res, err := m.Forecast(samples(50, 50, 50, 50, 50), 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Values) != 5 {
		t.Fatalf("got %d buckets, want 5", len(res.Values))
	}
	for i, v := range res.Values {
		if math.Abs(v-50) > 1e-9 {
			t.Fatalf("bucket %d = %v, want 50", i, v)
		}
	}
	if res.ErrStd != 0 {
		t.Fatalf("constant series must have zero residual stddev, got %v", res.ErrStd)
	}
}

func TestEWMA_TracksLevelShift(t *testing.T) {
	m := NewEWMA(0.5, 60)
	res, err := m.Forecast(samples(10, 10, 10, 100, 100, 100, 100), 2*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if res.Values[0] < 80 {
		t.Fatalf("smoothed level %v should be pulled toward 100", res.Values[0])
	}
	if res.ErrStd == 0 {
		t.Fatal("level shift must leave non-zero residuals")
	}
}

func TestEWMA_ZeroHorizonReturnsLevel(t *testing.T) {
	m := NewEWMA(0.3, 60)
	res, err := m.Forecast(samples(20, 20, 20), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Values) != 1 {
		t.Fatalf("zero horizon should yield one bucket, got %d", len(res.Values))
	}
	if math.Abs(res.Values[0]-20) > 1e-9 {
		t.Fatalf("got %v, want current level 20", res.Values[0])
	}
}

func TestEWMA_NegativeSamplesTreatedAsZero(t *testing.T) {
	m := NewEWMA(1.0, 60)
	res, err := m.Forecast(samples(30, -5, math.NaN()), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	// alpha=1 means the level is the last sanitized sample, which is 0.
	if res.Values[0] != 0 {
		t.Fatalf("got %v, want 0", res.Values[0])
	}
}

func TestEWMA_EmptyHistory(t *testing.T) {
	if _, err := NewEWMA(0.3, 60).Forecast(nil, time.Minute); !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("got %v, want ErrInsufficientHistory", err)
	}
}

func TestHoltWinters_NeedsTwoPeriods(t *testing.T) {
	m := NewHoltWinters(12, 60)
	_, err := m.Forecast(samples(1, 2, 3, 4, 5, 6, 7, 8, 9, 10), time.Hour)
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("got %v, want ErrInsufficientHistory", err)
	}
}

func TestHoltWinters_RecoversSeasonalShape(t *testing.T) {
	// Three periods of a strong square-wave pattern: 100 for the first half
	// of each period, 20 for the second half.
	period := 8
	rates := make([]float64, 0, 3*period)
	for p := 0; p < 3; p++ {
		for i := 0; i < period; i++ {
			if i < period/2 {
				rates = append(rates, 100)
			} else {
				rates = append(rates, 20)
			}
		}
	}

	m := NewHoltWinters(period, 60)
	res, err := m.Forecast(samples(rates...), time.Duration(period)*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Values) != period {
		t.Fatalf("got %d buckets, want %d", len(res.Values), period)
	}

	// The forecast continues where history left off (end of a low half), so
	// the first half-period of the forecast must sit well above the second.
	var high, low float64
	for i := 0; i < period/2; i++ {
		high += res.Values[i]
		low += res.Values[i+period/2]
	}
	if high <= low {
		t.Fatalf("seasonal shape lost: first half sum %v <= second half sum %v", high, low)
	}
}

func TestHoltWinters_NonNegative(t *testing.T) {
	// A collapsing series can push (L + h*T) negative; forecasts must clamp.
	period := 4
	rates := []float64{100, 90, 80, 70, 40, 30, 20, 10, 4, 3, 2, 1}
	m := NewHoltWinters(period, 60)
	res, err := m.Forecast(samples(rates...), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range res.Values {
		if v < 0 {
			t.Fatalf("bucket %d = %v, forecasts must be non-negative", i, v)
		}
	}
}

func TestResult_Peak(t *testing.T) {
	r := Result{Values: []float64{3, 9, 1}}
	if got := r.Peak(); got != 9 {
		t.Fatalf("got %v, want 9", got)
	}
	if got := (Result{}).Peak(); got != 0 {
		t.Fatalf("empty result peak = %v, want 0", got)
	}
}
