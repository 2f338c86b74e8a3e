// Package sim replays forecasted arrivals against a candidate scaling plan
// in fixed time buckets and projects backlog, latency, and cost curves.
//
// A run is deterministic for a given seed: all randomness flows from one
// rand.Rand constructed from Params.Seed, never from package-global state.
// Two Run calls with identical Params produce identical Results.
package sim

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/HatiCode/queuecap/pkg/capacity"
)

// ErrSimulationTimeout is returned when the caller's context expires before
// the horizon completes. Partial results are discarded, never returned.
var ErrSimulationTimeout = errors.New("sim: canceled before horizon completed")

// Params fully describes one simulation run.
type Params struct {
	// Workers and Backlog seed the initial fleet state.
	Workers int
	Backlog int

	// ServiceRate is the per-worker completion rate mu in jobs/sec.
	ServiceRate float64

	// Steps is the candidate plan; each step's worker count takes effect at
	// its offset from simulation start.
	Steps []capacity.Step

	// Arrivals holds the forecast arrival rate (jobs/sec) per bucket. When
	// the horizon outruns the slice, the last rate is held.
	Arrivals []float64

	// Trace, when non-nil, replays exact per-bucket arrival counts instead
	// of drawing Poisson arrivals around the forecast. Used for what-if
	// replay of recorded traffic.
	Trace []int

	// Horizon and BucketSize bound the loop. BucketSize defaults to one
	// minute.
	Horizon    time.Duration
	BucketSize time.Duration

	// TargetWait and MaxBacklog are the SLO thresholds checked per bucket.
	TargetWait time.Duration
	MaxBacklog int

	// WorkerCostPerHour prices each bucket's fleet.
	WorkerCostPerHour float64

	// Seed drives the arrival noise. The same seed replays identically.
	Seed int64
}

// Bucket is one time slice of the projection.
type Bucket struct {
	Offset    time.Duration `json:"offset"`
	Workers   int           `json:"workers"`
	Arrivals  int           `json:"arrivals"`
	Served    int           `json:"served"`
	Backlog   int           `json:"backlog"`
	Latency   time.Duration `json:"latency"`
	Cost      float64       `json:"cost"`
	Breaching bool          `json:"breaching"`
}

// BreachInterval is a contiguous run of buckets violating the SLO.
type BreachInterval struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}

// Duration returns the interval length.
func (b BreachInterval) Duration() time.Duration { return b.End - b.Start }

// Result is the complete projection for one run. Immutable once returned.
type Result struct {
	Buckets     []Bucket         `json:"buckets"`
	Breaches    []BreachInterval `json:"breaches"`
	TotalCost   float64          `json:"total_cost"`
	MaxBacklog  int              `json:"max_backlog"`
	PeakLatency time.Duration    `json:"peak_latency"`
}

// BreachDuration sums all breach intervals.
func (r Result) BreachDuration() time.Duration {
	var total time.Duration
	for _, b := range r.Breaches {
		total += b.Duration()
	}
	return total
}

// Run executes the bucketed replay. The context is checked once per bucket;
// on expiry ErrSimulationTimeout is returned and the partial projection is
// dropped so a truncated run can never masquerade as a complete one.
func Run(ctx context.Context, p Params) (Result, error) {
	bucket := p.BucketSize
	if bucket <= 0 {
		bucket = time.Minute
	}
	n := int(p.Horizon / bucket)
	if n <= 0 {
		n = 1
	}

	rng := rand.New(rand.NewSource(p.Seed))
	dt := bucket.Seconds()

	workers := p.Workers
	backlog := p.Backlog

	buckets := make([]Bucket, 0, n)
	var breaches []BreachInterval
	var open *BreachInterval

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, ErrSimulationTimeout
		}

		offset := time.Duration(i) * bucket

		// Plan steps fire once their offset is reached.
		for _, s := range p.Steps {
			if s.Offset <= offset {
				workers = s.TargetWorkers
			}
		}

		arrivals := p.arrivalsAt(i, dt, rng)

		// Serviceable throughput is capped by fleet capacity.
		capacityJobs := int(float64(workers) * p.ServiceRate * dt)
		served := backlog + arrivals
		if served > capacityJobs {
			served = capacityJobs
		}
		backlog = backlog + arrivals - served

		latency := latencyFor(backlog, workers, p.ServiceRate)
		breaching := latency > p.TargetWait || (p.MaxBacklog > 0 && backlog > p.MaxBacklog)

		cost := float64(workers) * p.WorkerCostPerHour * bucket.Hours()

		buckets = append(buckets, Bucket{
			Offset:    offset,
			Workers:   workers,
			Arrivals:  arrivals,
			Served:    served,
			Backlog:   backlog,
			Latency:   latency,
			Cost:      cost,
			Breaching: breaching,
		})

		switch {
		case breaching && open == nil:
			open = &BreachInterval{Start: offset}
		case !breaching && open != nil:
			open.End = offset
			breaches = append(breaches, *open)
			open = nil
		}
	}

	if open != nil {
		open.End = time.Duration(n) * bucket
		breaches = append(breaches, *open)
	}

	res := Result{Buckets: buckets, Breaches: breaches}
	for _, b := range buckets {
		res.TotalCost += b.Cost
		if b.Backlog > res.MaxBacklog {
			res.MaxBacklog = b.Backlog
		}
		if b.Latency > res.PeakLatency {
			res.PeakLatency = b.Latency
		}
	}
	return res, nil
}

// arrivalsAt draws the bucket's arrival count: exact replay when a trace is
// given, otherwise Poisson around the forecast rate.
func (p Params) arrivalsAt(i int, dt float64, rng *rand.Rand) int {
	if p.Trace != nil {
		if i < len(p.Trace) {
			return p.Trace[i]
		}
		return 0
	}

	rate := 0.0
	if len(p.Arrivals) > 0 {
		if i < len(p.Arrivals) {
			rate = p.Arrivals[i]
		} else {
			rate = p.Arrivals[len(p.Arrivals)-1]
		}
	}
	return poisson(rng, rate*dt)
}

// latencyFor estimates queueing delay via Little's Law: the backlog divided
// by the fleet's drain rate. An empty backlog waits only for service.
func latencyFor(backlog, workers int, mu float64) time.Duration {
	if workers <= 0 || mu <= 0 {
		if backlog > 0 {
			return time.Hour // stalled fleet, report saturation
		}
		return 0
	}
	throughput := float64(workers) * mu
	wait := float64(backlog) / throughput
	return time.Duration(wait * float64(time.Second))
}

// poisson samples a Poisson count: Knuth's product method for small means,
// a normal approximation above 30 where the product underflows.
func poisson(rng *rand.Rand, mean float64) int {
	if mean <= 0 {
		return 0
	}
	if mean < 30 {
		l := math.Exp(-mean)
		k := 0
		p := 1.0
		for p > l {
			k++
			p *= rng.Float64()
		}
		return k - 1
	}
	v := rng.NormFloat64()*math.Sqrt(mean) + mean
	if v < 0 {
		return 0
	}
	return int(v)
}
