package forecast

import "time"

// EWMA implements exponentially weighted moving average smoothing with flat
// extrapolation: every horizon bucket carries the final smoothed level.
type EWMA struct {
	// Alpha is the smoothing factor in (0, 1]. Higher values track recent
	// samples more closely. Values outside the range fall back to 0.3.
	Alpha float64

	// StepSeconds is the forecast bucket resolution. Defaults to 60.
	StepSeconds int
}

// NewEWMA creates an EWMA model with the given smoothing factor.
func NewEWMA(alpha float64, stepSec int) *EWMA {
	return &EWMA{Alpha: alpha, StepSeconds: stepSec}
}

// Name returns the model identifier.
func (m *EWMA) Name() string { return "ewma" }

// Forecast smooths the history and flat-extrapolates the final level across
// the horizon. One-step-ahead residuals feed the ErrStd estimate.
func (m *EWMA) Forecast(history []Sample, horizon time.Duration) (Result, error) {
	if len(history) == 0 {
		return Result{}, ErrInsufficientHistory
	}

	alpha := m.Alpha
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	stepSec := m.StepSeconds
	if stepSec <= 0 {
		stepSec = 60
	}

	series := rates(history)

	level := series[0]
	residuals := make([]float64, 0, len(series)-1)
	for _, x := range series[1:] {
		residuals = append(residuals, x-level)
		level = alpha*x + (1-alpha)*level
	}

	n := buckets(horizon, stepSec)
	values := make([]float64, n)
	for i := range values {
		values[i] = level
	}

	return Result{
		Values:      values,
		StepSeconds: stepSec,
		ErrStd:      stddev(residuals),
		Model:       m.Name(),
	}, nil
}
