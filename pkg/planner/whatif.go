package planner

import (
	"context"
	"time"

	"github.com/HatiCode/queuecap/pkg/capacity"
	"github.com/HatiCode/queuecap/pkg/sim"
)

// SimRequest parameterizes an interactive what-if simulation. Unlike
// GeneratePlan, every knob is caller-supplied so operators can vary SLO,
// horizon, and traffic without touching per-queue planning state.
type SimRequest struct {
	Workers     int             `json:"workers"`
	Backlog     int             `json:"backlog"`
	ServiceRate float64         `json:"service_rate"`
	Steps       []capacity.Step `json:"steps,omitempty"`

	// Arrivals is a per-bucket forecast rate in jobs/sec. Trace, when set,
	// replays exact per-bucket arrival counts instead.
	Arrivals []float64 `json:"arrivals,omitempty"`
	Trace    []int     `json:"trace,omitempty"`

	Horizon    time.Duration `json:"horizon"`
	BucketSize time.Duration `json:"bucket_size"`
	TargetWait time.Duration `json:"target_wait"`
	MaxBacklog int           `json:"max_backlog"`
	Seed       int64         `json:"seed"`
}

// WhatIf runs a standalone simulation. It reads no per-queue state and
// updates none; concurrent calls are safe and unserialized.
func (p *Planner) WhatIf(ctx context.Context, req SimRequest) (sim.Result, error) {
	return sim.Run(ctx, sim.Params{
		Workers:           req.Workers,
		Backlog:           req.Backlog,
		ServiceRate:       req.ServiceRate,
		Steps:             req.Steps,
		Arrivals:          req.Arrivals,
		Trace:             req.Trace,
		Horizon:           req.Horizon,
		BucketSize:        req.BucketSize,
		TargetWait:        req.TargetWait,
		MaxBacklog:        req.MaxBacklog,
		WorkerCostPerHour: p.opts.Rates.WorkerPerHour,
		Seed:              req.Seed,
	})
}
