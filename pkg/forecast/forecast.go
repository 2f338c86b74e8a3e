// Package forecast projects near-future arrival rates from historical
// samples. Two interchangeable models are provided:
//
//   - EWMA: exponential smoothing with flat extrapolation. Cheap, robust,
//     needs almost no history. The fallback model.
//   - Holt-Winters: additive trend with multiplicative seasonality. Captures
//     recurring load shapes (hourly, daily) but requires at least two full
//     seasonal periods of history.
//
// Models are pure: the same history always yields the same forecast.
package forecast

import (
	"errors"
	"math"
	"time"
)

// ErrInsufficientHistory is returned when a model cannot be fit to the
// supplied history. Callers should fall back to EWMA rather than fail the tick.
var ErrInsufficientHistory = errors.New("forecast: insufficient history")

// Sample is one observed arrival-rate measurement.
type Sample struct {
	Time time.Time
	Rate float64 // jobs per second
}

// Result is a point forecast across the horizon.
type Result struct {
	// Values holds one forecast arrival rate per step bucket. A zero horizon
	// yields a single bucket carrying the current level.
	Values []float64

	// StepSeconds is the bucket resolution.
	StepSeconds int

	// ErrStd is the standard deviation of one-step-ahead residuals over the
	// training history, used downstream for confidence scoring.
	ErrStd float64

	// Model names the strategy that produced the forecast.
	Model string
}

// Peak returns the largest forecast value, or 0 for an empty result.
func (r Result) Peak() float64 {
	peak := 0.0
	for _, v := range r.Values {
		if v > peak {
			peak = v
		}
	}
	return peak
}

// Model is a forecasting strategy.
type Model interface {
	// Name returns the model identifier.
	Name() string

	// Forecast projects arrival rates over the horizon from ordered history.
	Forecast(history []Sample, horizon time.Duration) (Result, error)
}

// rates extracts the rate series, mapping non-positive and NaN samples to
// zero-arrival ticks rather than rejecting them.
func rates(history []Sample) []float64 {
	out := make([]float64, len(history))
	for i, s := range history {
		if s.Rate > 0 && !math.IsNaN(s.Rate) && !math.IsInf(s.Rate, 0) {
			out[i] = s.Rate
		}
	}
	return out
}

// stddev computes the sample standard deviation.
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)-1))
}

// buckets converts a horizon to a bucket count at the given step, with a
// floor of one so a zero horizon still returns the current level.
func buckets(horizon time.Duration, stepSec int) int {
	if stepSec <= 0 {
		stepSec = 60
	}
	n := int(horizon.Seconds()) / stepSec
	if n < 1 {
		n = 1
	}
	return n
}
