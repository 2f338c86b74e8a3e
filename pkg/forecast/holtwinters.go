package forecast

import "time"

// HoltWinters implements triple exponential smoothing with an additive trend
// and multiplicative seasonality:
//
//	level:    L_t = alpha*(X_t/S_{t-s}) + (1-alpha)*(L_{t-1}+T_{t-1})
//	trend:    T_t = beta*(L_t-L_{t-1}) + (1-beta)*T_{t-1}
//	seasonal: S_t = gamma*(X_t/L_t) + (1-gamma)*S_{t-s}
//	forecast: F_{t+h} = (L_t + h*T_t) * S_{t-s+(h mod s)}
//
// Fitting needs at least two full seasonal periods; with less history
// Forecast returns ErrInsufficientHistory and the caller should fall back to
// EWMA.
type HoltWinters struct {
	// Alpha, Beta, Gamma are the level, trend, and seasonal smoothing
	// factors. Out-of-range values fall back to 0.3, 0.1, 0.1.
	Alpha, Beta, Gamma float64

	// Period is the seasonal cycle length in samples (e.g., 24 for hourly
	// samples with a daily cycle).
	Period int

	// StepSeconds is the forecast bucket resolution. Defaults to 60.
	StepSeconds int
}

// NewHoltWinters creates a Holt-Winters model with a seasonal period measured
// in samples.
func NewHoltWinters(period, stepSec int) *HoltWinters {
	return &HoltWinters{Alpha: 0.3, Beta: 0.1, Gamma: 0.1, Period: period, StepSeconds: stepSec}
}

// Name returns the model identifier.
func (m *HoltWinters) Name() string { return "holt_winters" }

// Forecast fits the smoothing equations over the history and projects the
// horizon. Forecast values are clamped to non-negative rates.
func (m *HoltWinters) Forecast(history []Sample, horizon time.Duration) (Result, error) {
	s := m.Period
	if s < 2 {
		s = 24
	}
	if len(history) < 2*s {
		return Result{}, ErrInsufficientHistory
	}

	alpha, beta, gamma := m.Alpha, m.Beta, m.Gamma
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	if beta <= 0 || beta > 1 {
		beta = 0.1
	}
	if gamma <= 0 || gamma > 1 {
		gamma = 0.1
	}
	stepSec := m.StepSeconds
	if stepSec <= 0 {
		stepSec = 60
	}

	series := rates(history)
	level, trend, seasonal := initComponents(series, s)

	residuals := make([]float64, 0, len(series)-s)
	for t := s; t < len(series); t++ {
		x := series[t]
		si := t % s

		predicted := (level + trend) * seasonal[si]
		residuals = append(residuals, x-predicted)

		sf := seasonal[si]
		if sf == 0 {
			sf = 1
		}
		newLevel := alpha*(x/sf) + (1-alpha)*(level+trend)
		trend = beta*(newLevel-level) + (1-beta)*trend
		if newLevel > 0 {
			seasonal[si] = gamma*(x/newLevel) + (1-gamma)*seasonal[si]
		}
		level = newLevel
	}

	n := buckets(horizon, stepSec)
	values := make([]float64, n)
	for h := 1; h <= n; h++ {
		si := (len(series) + h - 1) % s
		v := (level + float64(h)*trend) * seasonal[si]
		if v < 0 {
			v = 0
		}
		values[h-1] = v
	}

	return Result{
		Values:      values,
		StepSeconds: stepSec,
		ErrStd:      stddev(residuals),
		Model:       m.Name(),
	}, nil
}

// initComponents seeds level, trend, and seasonal factors from the first two
// seasonal periods.
func initComponents(series []float64, s int) (level, trend float64, seasonal []float64) {
	var sum1, sum2 float64
	for i := 0; i < s; i++ {
		sum1 += series[i]
		sum2 += series[i+s]
	}
	level = sum1 / float64(s)
	trend = (sum2 - sum1) / float64(s*s)

	seasonal = make([]float64, s)
	for i := 0; i < s; i++ {
		if level > 0 {
			seasonal[i] = series[i] / level
		} else {
			seasonal[i] = 1
		}
	}
	return level, trend, seasonal
}
