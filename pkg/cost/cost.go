// Package cost prices a capacity change: the marginal worker spend over the
// plan horizon plus the expected cost of projected SLO breaches. The model
// is deliberately linear; it exists to rank plans, not to invoice anyone.
package cost

import "time"

// Rates holds the pricing inputs, typically sourced from policy config.
type Rates struct {
	// WorkerPerHour is the cost of one worker replica per hour.
	WorkerPerHour float64

	// ViolationPerHour is the assumed business cost of one hour spent in
	// SLO breach.
	ViolationPerHour float64
}

// Known reports whether pricing data is available at all. Plans computed
// without rates mark their cost impact unavailable instead of zero.
func (r Rates) Known() bool {
	return r.WorkerPerHour > 0 || r.ViolationPerHour > 0
}

// Impact is the monetary projection for one plan.
type Impact struct {
	// DeltaPerHour is the marginal worker spend: positive for scale-up,
	// negative savings for scale-down.
	DeltaPerHour float64 `json:"delta_per_hour"`

	// WorkerCost is DeltaPerHour integrated over the horizon.
	WorkerCost float64 `json:"worker_cost"`

	// ViolationCost prices the projected breach time.
	ViolationCost float64 `json:"violation_cost"`

	// Total is WorkerCost + ViolationCost.
	Total float64 `json:"total"`
}

// Estimate prices a replica delta over the horizon plus the simulated breach
// exposure. Pure function; callers may invoke it concurrently.
func Estimate(deltaWorkers int, horizon, breach time.Duration, rates Rates) Impact {
	deltaPerHour := float64(deltaWorkers) * rates.WorkerPerHour
	workerCost := deltaPerHour * horizon.Hours()
	violationCost := rates.ViolationPerHour * breach.Hours()

	return Impact{
		DeltaPerHour:  deltaPerHour,
		WorkerCost:    workerCost,
		ViolationCost: violationCost,
		Total:         workerCost + violationCost,
	}
}
