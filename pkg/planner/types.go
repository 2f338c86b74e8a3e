package planner

import (
	"time"

	"github.com/HatiCode/queuecap/pkg/capacity"
	"github.com/HatiCode/queuecap/pkg/cost"
	"github.com/HatiCode/queuecap/pkg/forecast"
)

// MetricsSnapshot is the point-in-time input for one evaluation tick.
// Snapshots are passed by value and never mutated by the planner.
type MetricsSnapshot struct {
	// Queue names the worker pool being planned.
	Queue string `json:"queue"`

	Timestamp time.Time `json:"timestamp"`

	// ArrivalRate is the observed job arrival rate in jobs/sec. Negative
	// or NaN means the metrics pipeline failed to report it.
	ArrivalRate float64 `json:"arrival_rate"`

	// ServiceTime is the mean per-job service time. Zero means unreported.
	ServiceTime    time.Duration `json:"service_time"`
	ServiceTimeP95 time.Duration `json:"service_time_p95"`

	// ServiceTimeStd feeds the M/G/c correction; zero assumes exponential
	// service times.
	ServiceTimeStd time.Duration `json:"service_time_std"`

	CurrentWorkers int `json:"current_workers"`
	Backlog        int `json:"backlog"`

	// Utilization is the observed fleet utilization. When zero it is
	// derived from ArrivalRate and ServiceTime.
	Utilization float64 `json:"utilization"`

	// History is the trailing arrival-rate window from the metrics store,
	// timestamp-ordered, used for forecasting.
	History []forecast.Sample `json:"history,omitempty"`
}

// SLOTarget is the service-level objective for a queue, supplied by policy
// configuration.
type SLOTarget struct {
	// TargetP95Wait bounds the p95 queueing delay before a job is picked up.
	TargetP95Wait time.Duration `json:"target_p95_wait"`

	// MaxBacklog bounds the acceptable queue depth during the horizon.
	MaxBacklog int `json:"max_backlog"`

	// MaxDrainTime bounds how long an existing backlog may take to clear.
	MaxDrainTime time.Duration `json:"max_drain_time"`

	// ErrorBudget is the tolerated fraction of the horizon in breach.
	ErrorBudget float64 `json:"error_budget"`
}

// Achievability is the tri-state verdict on whether the SLO holds under the
// plan. Unknown means the simulation did not complete; callers must treat
// unknown as non-auto-applicable.
type Achievability string

const (
	AchievableYes     Achievability = "yes"
	AchievableNo      Achievability = "no"
	AchievableUnknown Achievability = "unknown"
)

// CapacityPlan is the planner's output for one tick. Immutable once
// returned; a new tick produces a new plan.
type CapacityPlan struct {
	Queue          string          `json:"queue"`
	CurrentWorkers int             `json:"current_workers"`
	TargetWorkers  int             `json:"target_workers"`
	Steps          []capacity.Step `json:"steps"`

	// Confidence scores the plan in [0, 1] from simulated breach time and
	// forecast error. ConfidenceKnown is false when the simulation was cut
	// short.
	Confidence      float64 `json:"confidence"`
	ConfidenceKnown bool    `json:"confidence_known"`

	CostImpact cost.Impact `json:"cost_impact"`
	CostKnown  bool        `json:"cost_known"`

	SLOAchievable Achievability `json:"slo_achievable"`

	// CanAutoApply signals the actuator may apply the plan without human
	// confirmation. The planner itself never applies anything.
	CanAutoApply bool `json:"can_auto_apply"`

	Anomalous bool           `json:"anomalous"`
	State     capacity.State `json:"state"`

	// Rationale names the condition that produced the plan; Warnings record
	// every degradation taken along the way.
	Rationale string   `json:"rationale"`
	Warnings  []string `json:"warnings,omitempty"`

	ForecastModel string    `json:"forecast_model"`
	ForecastPeak  float64   `json:"forecast_peak"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Notifier receives planning events. Implementations must be fast or
// dispatch asynchronously; delivery is the collaborator's problem, not the
// planning core's.
type Notifier interface {
	PlanProduced(queue string, plan CapacityPlan)
	AnomalyDetected(queue string, rate, baselineMean float64)
}
