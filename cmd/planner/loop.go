// Package main implements the planner's evaluation loop.
//
// This file contains the Loop type which orchestrates each planning cycle:
//
//	collect → snapshot → GeneratePlan → record metrics
//
// The Loop runs continuously via Run(), executing Tick() at regular
// intervals. Each tick pulls the trailing arrival-rate window plus the
// current fleet facts, hands the assembled snapshot to the planning core,
// and records stage durations and plan gauges in Prometheus.
//
// Collector failures do not abort a tick outright: the snapshot is passed on
// with the missing fields zeroed and the planning core applies its own
// degradation policy. Only a tick where planning itself refuses (no data and
// no fallback at all) returns an error.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/HatiCode/queuecap/cmd/planner/metrics"
	"github.com/HatiCode/queuecap/pkg/collect"
	"github.com/HatiCode/queuecap/pkg/planner"
	"github.com/HatiCode/queuecap/pkg/sim"
)

// Loop orchestrates the evaluation cycle for a single queue.
type Loop struct {
	queue    string
	rates    collect.Collector
	workers  collect.Collector
	backlogs collect.Collector
	planner  *planner.Planner
	slo      planner.SLOTarget

	serviceTime    time.Duration
	serviceTimeStd time.Duration

	window  time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewLoop creates a new evaluation loop. The rate collector is required;
// workers and backlogs may be nil, in which case those snapshot fields stay
// zero and the planning core substitutes conservative values.
func NewLoop(
	queue string,
	rates, workers, backlogs collect.Collector,
	p *planner.Planner,
	slo planner.SLOTarget,
	serviceTime, serviceTimeStd time.Duration,
	window time.Duration,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Loop {
	if logger == nil {
		logger = slog.Default()
	}

	return &Loop{
		queue:          queue,
		rates:          rates,
		workers:        workers,
		backlogs:       backlogs,
		planner:        p,
		slo:            slo,
		serviceTime:    serviceTime,
		serviceTimeStd: serviceTimeStd,
		window:         window,
		logger:         logger,
		metrics:        m,
	}
}

// Run executes the evaluation loop at regular intervals.
// Blocks until context is canceled.
func (l *Loop) Run(ctx context.Context, interval time.Duration) error {
	l.logger.Info("starting evaluation loop", "queue", l.queue, "interval", interval, "window", l.window)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := l.Tick(ctx); err != nil {
		l.logger.Error("initial evaluation tick failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("evaluation loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := l.Tick(ctx); err != nil {
				l.logger.Error("evaluation tick failed", "error", err)
			}
		}
	}
}

// Tick performs one evaluation cycle and returns the produced plan.
// Exported for testing purposes.
func (l *Loop) Tick(ctx context.Context) (planner.CapacityPlan, error) {
	start := time.Now()
	l.logger.Debug("starting evaluation tick", "queue", l.queue)

	snapshot := l.collect(ctx)

	planStart := time.Now()
	plan, err := l.planner.GeneratePlan(ctx, snapshot, l.slo)
	if err != nil {
		if l.metrics != nil {
			l.metrics.RecordError("planner", "generate_failed")
		}
		return planner.CapacityPlan{}, fmt.Errorf("generate plan: %w", err)
	}

	if l.metrics != nil {
		l.metrics.RecordPlan(time.Since(planStart).Seconds())
		l.metrics.SetTargetWorkers(plan.TargetWorkers)
		if plan.ConfidenceKnown {
			l.metrics.SetConfidence(plan.Confidence)
		}
		l.metrics.SetPlanAge(0) // Just generated
		if plan.Anomalous {
			l.metrics.RecordAnomaly()
		}
	}

	l.logger.Debug("evaluation tick complete",
		"queue", l.queue,
		"target_workers", plan.TargetWorkers,
		"total_ms", time.Since(start).Milliseconds(),
	)

	return plan, nil
}

// collect assembles the metrics snapshot from the configured collectors.
// Failures are logged and counted; the affected fields are left at the zero
// values the planning core treats as unreported.
func (l *Loop) collect(ctx context.Context) planner.MetricsSnapshot {
	start := time.Now()

	snapshot := planner.MetricsSnapshot{
		Queue:          l.queue,
		Timestamp:      time.Now(),
		ArrivalRate:    -1, // unreported until the rate collector succeeds
		ServiceTime:    l.serviceTime,
		ServiceTimeStd: l.serviceTimeStd,
	}

	history, err := l.rates.Series(ctx, l.window)
	if err != nil {
		if l.metrics != nil {
			l.metrics.RecordError("collector", "rate_failed")
		}
		l.logger.Warn("rate collection failed", "collector", l.rates.Name(), "error", err)
	} else {
		snapshot.History = history
		if last, err := collect.Latest(history); err == nil {
			snapshot.ArrivalRate = last.Rate
		}
	}

	if l.workers != nil {
		if v, ok := l.latestScalar(ctx, l.workers, "workers_failed"); ok {
			snapshot.CurrentWorkers = int(v)
		}
	}

	if l.backlogs != nil {
		if v, ok := l.latestScalar(ctx, l.backlogs, "backlog_failed"); ok {
			snapshot.Backlog = int(v)
		}
	}

	duration := time.Since(start)
	if l.metrics != nil {
		l.metrics.RecordCollect(duration.Seconds())
	}

	l.logger.Info("collected metrics",
		"collector", l.rates.Name(),
		"samples", len(snapshot.History),
		"arrival_rate", snapshot.ArrivalRate,
		"current_workers", snapshot.CurrentWorkers,
		"backlog", snapshot.Backlog,
		"duration_ms", duration.Milliseconds(),
	)

	return snapshot
}

// latestScalar queries a collector for the last point of its series.
func (l *Loop) latestScalar(ctx context.Context, c collect.Collector, reason string) (float64, bool) {
	series, err := c.Series(ctx, l.window)
	if err == nil {
		if last, lerr := collect.Latest(series); lerr == nil {
			return last.Rate, true
		}
		err = collect.ErrNoData
	}

	if l.metrics != nil {
		l.metrics.RecordError("collector", reason)
	}
	l.logger.Warn("scalar collection failed", "collector", c.Name(), "error", err)
	return 0, false
}

// GenerateNow runs one evaluation tick on demand for the HTTP API.
func (l *Loop) GenerateNow(ctx context.Context) (planner.CapacityPlan, error) {
	return l.Tick(ctx)
}

// WhatIf runs a standalone simulation for the HTTP API.
func (l *Loop) WhatIf(ctx context.Context, req planner.SimRequest) (sim.Result, error) {
	return l.planner.WhatIf(ctx, req)
}
