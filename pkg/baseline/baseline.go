// Package baseline maintains a trailing statistical profile of arrival rate
// and flags statistically abnormal load. The Detector is the only state in
// the planning engine that survives across evaluation ticks; everything else
// is recomputed from the inputs of the current tick.
package baseline

import "math"

const (
	// defaultAlpha is the exponential weight applied to each new sample.
	defaultAlpha = 0.1

	// zScoreThreshold flags samples more than this many standard deviations
	// from the running mean.
	zScoreThreshold = 3.0

	// spikeFactor flags samples above this multiple of the short-window
	// average even when the long-run variance would absorb them.
	spikeFactor = 2.0

	// warmupSamples is the minimum number of updates before anomalies are
	// reported. A cold detector never flags.
	warmupSamples = 10

	// shortWindow is the ring size for the spike heuristic.
	shortWindow = 5
)

// Detector keeps an exponentially weighted mean/variance of arrival rate
// plus a short trailing window for spike detection. Not safe for concurrent
// use; the planner serializes updates per policy.
type Detector struct {
	alpha    float64
	mean     float64
	variance float64
	count    int

	recent [shortWindow]float64
	head   int
	filled int
}

// New creates a Detector with the default smoothing weight.
func New() *Detector {
	return &Detector{alpha: defaultAlpha}
}

// NewWithAlpha creates a Detector with a custom smoothing weight in (0, 1].
func NewWithAlpha(alpha float64) *Detector {
	if alpha <= 0 || alpha > 1 {
		alpha = defaultAlpha
	}
	return &Detector{alpha: alpha}
}

// Update folds one arrival-rate observation into the baseline and reports
// whether the observation is anomalous against the state prior to folding.
// An anomaly is either a z-score above 3.0 or a rate above twice the recent
// short-window average. During warmup nothing is flagged.
func (d *Detector) Update(rate float64) bool {
	if rate < 0 || math.IsNaN(rate) {
		rate = 0
	}

	anomalous := false
	if d.count >= warmupSamples {
		if sd := math.Sqrt(d.variance); sd > 0 {
			if math.Abs(rate-d.mean)/sd > zScoreThreshold {
				anomalous = true
			}
		}
		if avg := d.shortAverage(); avg > 0 && rate > spikeFactor*avg {
			anomalous = true
		}
	}

	// West's update for exponentially weighted mean and variance.
	if d.count == 0 {
		d.mean = rate
	} else {
		diff := rate - d.mean
		incr := d.alpha * diff
		d.mean += incr
		d.variance = (1 - d.alpha) * (d.variance + diff*incr)
	}
	d.count++

	d.recent[d.head] = rate
	d.head = (d.head + 1) % shortWindow
	if d.filled < shortWindow {
		d.filled++
	}

	return anomalous
}

// Mean returns the exponentially weighted mean arrival rate.
func (d *Detector) Mean() float64 { return d.mean }

// StdDev returns the exponentially weighted standard deviation.
func (d *Detector) StdDev() float64 { return math.Sqrt(d.variance) }

// Samples returns the number of observations folded in.
func (d *Detector) Samples() int { return d.count }

func (d *Detector) shortAverage() float64 {
	if d.filled == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < d.filled; i++ {
		sum += d.recent[i]
	}
	return sum / float64(d.filled)
}

// State is a serializable snapshot of the detector for warm restarts.
// Persistence is an optimization: a detector rebuilt from recent history
// behaves the same after warmup.
type State struct {
	Alpha    float64   `json:"alpha"`
	Mean     float64   `json:"mean"`
	Variance float64   `json:"variance"`
	Count    int       `json:"count"`
	Recent   []float64 `json:"recent"`
}

// State captures the current detector state.
func (d *Detector) State() State {
	recent := make([]float64, 0, d.filled)
	for i := 0; i < d.filled; i++ {
		recent = append(recent, d.recent[(d.head-d.filled+i+shortWindow)%shortWindow])
	}
	return State{Alpha: d.alpha, Mean: d.mean, Variance: d.variance, Count: d.count, Recent: recent}
}

// Restore rebuilds a Detector from a saved State.
func Restore(s State) *Detector {
	d := NewWithAlpha(s.Alpha)
	d.mean = s.Mean
	d.variance = s.Variance
	d.count = s.Count
	for _, r := range s.Recent {
		d.recent[d.head] = r
		d.head = (d.head + 1) % shortWindow
		if d.filled < shortWindow {
			d.filled++
		}
	}
	return d
}
