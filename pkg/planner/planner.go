// Package planner orchestrates one capacity evaluation tick: forecast the
// arrival rate, size the fleet with Erlang-C, clamp through the safety
// governor, pace the move into steps, replay the plan through the simulator,
// and price the outcome. The planner computes plans; it never applies them.
//
// Every failure degrades instead of aborting the tick: missing metrics fall
// back to the last known good snapshot, a starved seasonal model falls back
// to EWMA, an anomalous baseline downgrades the plan to advisory, and a
// timed-out simulation yields a plan without a confidence score.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/HatiCode/queuecap/pkg/baseline"
	"github.com/HatiCode/queuecap/pkg/capacity"
	"github.com/HatiCode/queuecap/pkg/cost"
	"github.com/HatiCode/queuecap/pkg/forecast"
	"github.com/HatiCode/queuecap/pkg/queueing"
	"github.com/HatiCode/queuecap/pkg/sim"
	"github.com/HatiCode/queuecap/pkg/storage"
)

// ErrIncompleteMetrics is returned when arrival rate or service time is
// missing and no fallback exists at all (no prior snapshot, no baseline).
var ErrIncompleteMetrics = errors.New("planner: incomplete metrics with no fallback")

// Options configures a Planner.
type Options struct {
	// Governor bounds every plan. Zero fields take governor defaults.
	Governor capacity.Config

	// Horizon is how far ahead each plan looks. Defaults to 30 minutes.
	Horizon time.Duration

	// Step is the forecast and simulation bucket size. Defaults to 1 minute.
	Step time.Duration

	// SafetyMargin inflates the forecast peak before sizing, e.g. 0.15 for
	// 15% headroom.
	SafetyMargin float64

	// SeasonalPeriod is the number of buckets per seasonal cycle for
	// Holt-Winters. Zero disables the seasonal model and uses EWMA only.
	SeasonalPeriod int

	// Rates prices plans. Zero rates mark cost unavailable.
	Rates cost.Rates

	// Seed drives simulation arrival noise.
	Seed int64

	// Store, when set, persists plans and baselines. Optional.
	Store storage.Store

	// Notifier, when set, receives plan and anomaly events. Optional.
	Notifier Notifier

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Horizon <= 0 {
		o.Horizon = 30 * time.Minute
	}
	if o.Step <= 0 {
		o.Step = time.Minute
	}
	if o.SafetyMargin < 0 {
		o.SafetyMargin = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// queueState is the per-queue cross-tick state. The mutex serializes ticks
// for one queue; distinct queues evaluate concurrently.
type queueState struct {
	mu         sync.Mutex
	detector   *baseline.Detector
	lastAction time.Time
	lastGood   MetricsSnapshot
	hasGood    bool
}

// Planner generates capacity plans. Safe for concurrent use; concurrent
// ticks for the same queue are single-flighted.
type Planner struct {
	opts     Options
	governor *capacity.Governor
	logger   *slog.Logger

	mu     sync.Mutex
	queues map[string]*queueState

	now func() time.Time
}

// New creates a Planner.
func New(opts Options) *Planner {
	opts = opts.withDefaults()
	return &Planner{
		opts:     opts,
		governor: capacity.NewGovernor(opts.Governor),
		logger:   opts.Logger,
		queues:   make(map[string]*queueState),
		now:      time.Now,
	}
}

// state returns the per-queue state, creating it on first use. A stored
// baseline warm-starts the detector past its warmup window.
func (p *Planner) state(ctx context.Context, queue string) *queueState {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.queues[queue]
	if ok {
		return st
	}

	st = &queueState{detector: baseline.New()}
	if p.opts.Store != nil {
		if saved, found, err := p.opts.Store.GetBaseline(ctx, queue); err != nil {
			p.logger.Warn("baseline restore failed", "queue", queue, "error", err)
		} else if found {
			st.detector = baseline.Restore(saved)
			p.logger.Info("baseline restored", "queue", queue, "samples", st.detector.Samples())
		}
	}
	p.queues[queue] = st
	return st
}

// GeneratePlan runs one evaluation tick for the snapshot's queue.
func (p *Planner) GeneratePlan(ctx context.Context, m MetricsSnapshot, slo SLOTarget) (CapacityPlan, error) {
	st := p.state(ctx, m.Queue)
	st.mu.Lock()
	defer st.mu.Unlock()

	start := p.now()

	repaired, warnings, complete, err := p.repair(m, st)
	if err != nil {
		return CapacityPlan{}, err
	}

	anomalous := st.detector.Update(repaired.ArrivalRate)
	if anomalous {
		p.logger.Warn("arrival rate anomalous",
			"queue", m.Queue,
			"rate", repaired.ArrivalRate,
			"baseline_mean", st.detector.Mean(),
		)
		if p.opts.Notifier != nil {
			p.opts.Notifier.AnomalyDetected(m.Queue, repaired.ArrivalRate, st.detector.Mean())
		}
	}

	forecastStart := p.now()
	fc, fcWarnings := p.forecastArrivals(repaired)
	warnings = append(warnings, fcWarnings...)
	forecastDur := p.now().Sub(forecastStart)

	mu := 1.0 / repaired.ServiceTime.Seconds()
	serviceVar := repaired.ServiceTimeStd.Seconds() * repaired.ServiceTimeStd.Seconds()

	peak := fc.Peak() * (1 + p.opts.SafetyMargin)
	if repaired.ArrivalRate > peak {
		peak = repaired.ArrivalRate
	}

	limits := queueing.Limits{Min: p.opts.Governor.MinWorkers, Max: p.opts.Governor.MaxWorkers}
	required, err := queueing.RequiredServers(peak, repaired.ServiceTime, serviceVar, slo.TargetP95Wait, limits)
	if err != nil {
		return CapacityPlan{}, fmt.Errorf("required servers: %w", err)
	}

	current := repaired.CurrentWorkers
	util := repaired.Utilization
	if util <= 0 {
		util = queueing.Utilization(repaired.ArrivalRate, mu, current)
	}

	nowTime := p.now()
	decision := p.governor.Clamp(current, required, util, st.lastAction, nowTime, anomalous)

	rationale := p.rationale(decision, repaired.ArrivalRate, peak)
	steps := capacity.BuildSteps(current, decision.AllowedTarget, p.governor.StepCap(), p.governor.Cooldown(), rationale)

	simStart := p.now()
	simRes, simErr := sim.Run(ctx, sim.Params{
		Workers:           current,
		Backlog:           repaired.Backlog,
		ServiceRate:       mu,
		Steps:             steps,
		Arrivals:          fc.Values,
		Horizon:           p.opts.Horizon,
		BucketSize:        p.opts.Step,
		TargetWait:        slo.TargetP95Wait,
		MaxBacklog:        slo.MaxBacklog,
		WorkerCostPerHour: p.opts.Rates.WorkerPerHour,
		Seed:              p.opts.Seed,
	})
	simDur := p.now().Sub(simStart)

	plan := CapacityPlan{
		Queue:          m.Queue,
		CurrentWorkers: current,
		TargetWorkers:  decision.AllowedTarget,
		Steps:          steps,
		Anomalous:      anomalous,
		Rationale:      rationale,
		ForecastModel:  fc.Model,
		ForecastPeak:   peak,
		GeneratedAt:    nowTime,
	}

	if simErr != nil {
		// A truncated simulation is discarded; the plan ships without a
		// confidence score and the SLO verdict stays unknown.
		plan.ConfidenceKnown = false
		plan.SLOAchievable = AchievableUnknown
		warnings = append(warnings, "simulation did not complete; confidence unavailable")
		p.logger.Warn("simulation aborted", "queue", m.Queue, "error", simErr)
	} else {
		plan.Confidence = confidence(simRes, fc, p.opts.Horizon)
		plan.ConfidenceKnown = true
		plan.SLOAchievable = achievable(simRes, slo, p.opts.Horizon)
		if drained, dur := drainWithin(simRes, slo.MaxDrainTime); !drained {
			plan.SLOAchievable = AchievableNo
			warnings = append(warnings, fmt.Sprintf("backlog not drained within %s (still pending after %s)", slo.MaxDrainTime, dur))
		}

		if p.opts.Rates.Known() {
			delta := decision.AllowedTarget - current
			plan.CostImpact = cost.Estimate(delta, p.opts.Horizon, simRes.BreachDuration(), p.opts.Rates)
			plan.CostKnown = true
		} else {
			warnings = append(warnings, "cost rates not configured; cost impact unavailable")
		}
	}

	plan.CanAutoApply = p.governor.Admit(plan.Confidence, plan.ConfidenceKnown, anomalous) &&
		plan.SLOAchievable != AchievableUnknown
	plan.State = p.governor.Resolve(decision, plan.Confidence, plan.ConfidenceKnown, anomalous)
	plan.Warnings = warnings

	if !decision.Held && decision.AllowedTarget != current {
		st.lastAction = nowTime
	}
	if complete {
		st.lastGood = m
		st.hasGood = true
	}

	p.persist(ctx, plan, st)
	if p.opts.Notifier != nil {
		p.opts.Notifier.PlanProduced(m.Queue, plan)
	}

	p.logger.Info("plan tick complete",
		"queue", m.Queue,
		"current_workers", current,
		"target_workers", plan.TargetWorkers,
		"steps", len(steps),
		"confidence", plan.Confidence,
		"can_auto_apply", plan.CanAutoApply,
		"anomalous", anomalous,
		"forecast_ms", forecastDur.Milliseconds(),
		"sim_ms", simDur.Milliseconds(),
		"total_ms", p.now().Sub(start).Milliseconds(),
	)

	return plan, nil
}

// repair substitutes missing metric fields. Substitutions deliberately lean
// conservative: a higher arrival rate and a slower service time than last
// observed, so a blind tick over-provisions rather than under.
func (p *Planner) repair(m MetricsSnapshot, st *queueState) (MetricsSnapshot, []string, bool, error) {
	var warnings []string
	complete := true

	if math.IsNaN(m.ArrivalRate) || m.ArrivalRate < 0 {
		complete = false
		switch {
		case st.hasGood:
			m.ArrivalRate = st.lastGood.ArrivalRate * 1.25
			warnings = append(warnings, "arrival rate missing; using last-known-good with 25% uplift")
		case st.detector.Samples() > 0:
			m.ArrivalRate = st.detector.Mean() * 1.5
			warnings = append(warnings, "arrival rate missing; using baseline mean with 50% uplift")
		default:
			return m, nil, false, fmt.Errorf("%w: arrival rate", ErrIncompleteMetrics)
		}
	}

	if m.ServiceTime <= 0 {
		complete = false
		if !st.hasGood || st.lastGood.ServiceTime <= 0 {
			return m, nil, false, fmt.Errorf("%w: service time", ErrIncompleteMetrics)
		}
		m.ServiceTime = st.lastGood.ServiceTime * 5 / 4
		warnings = append(warnings, "service time missing; using last-known-good with 25% slowdown")
	}

	if m.CurrentWorkers <= 0 {
		complete = false
		m.CurrentWorkers = p.opts.Governor.MinWorkers
		if m.CurrentWorkers < 1 {
			m.CurrentWorkers = 1
		}
		warnings = append(warnings, "current worker count missing; assuming configured minimum")
	}

	return m, warnings, complete, nil
}

// forecastArrivals runs the seasonal model when configured and history
// allows, falling back to EWMA and finally to a flat projection of the
// current rate.
func (p *Planner) forecastArrivals(m MetricsSnapshot) (forecast.Result, []string) {
	stepSec := int(p.opts.Step.Seconds())
	var warnings []string

	if p.opts.SeasonalPeriod > 0 {
		hw := forecast.NewHoltWinters(p.opts.SeasonalPeriod, stepSec)
		res, err := hw.Forecast(m.History, p.opts.Horizon)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, forecast.ErrInsufficientHistory) {
			warnings = append(warnings, "seasonal history too short; falling back to ewma")
		}
	}

	ewma := forecast.NewEWMA(0, stepSec)
	res, err := ewma.Forecast(m.History, p.opts.Horizon)
	if err == nil {
		return res, warnings
	}

	// No history at all: project the instantaneous rate flat across the
	// horizon with no error estimate.
	warnings = append(warnings, "no arrival history; projecting current rate flat")
	n := int(p.opts.Horizon / p.opts.Step)
	if n < 1 {
		n = 1
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = m.ArrivalRate
	}
	return forecast.Result{Values: values, StepSeconds: stepSec, Model: "flat"}, warnings
}

func (p *Planner) rationale(d capacity.Decision, currentRate, peak float64) string {
	if d.Held {
		return d.HoldReason
	}
	if currentRate > 0 {
		pct := (peak/currentRate - 1) * 100
		return fmt.Sprintf("forecast load %+.0f%% over next %s", pct, p.opts.Horizon)
	}
	return fmt.Sprintf("forecast peak %.1f jobs/s over next %s", peak, p.opts.Horizon)
}

func (p *Planner) persist(ctx context.Context, plan CapacityPlan, st *queueState) {
	if p.opts.Store == nil {
		return
	}

	rec := storage.PlanRecord{
		Queue:           plan.Queue,
		GeneratedAt:     plan.GeneratedAt,
		CurrentWorkers:  plan.CurrentWorkers,
		TargetWorkers:   plan.TargetWorkers,
		Steps:           plan.Steps,
		Confidence:      plan.Confidence,
		ConfidenceKnown: plan.ConfidenceKnown,
		CanAutoApply:    plan.CanAutoApply,
		Anomalous:       plan.Anomalous,
		SLOAchievable:   string(plan.SLOAchievable),
		Rationale:       plan.Rationale,
		Warnings:        plan.Warnings,
	}
	if err := p.opts.Store.PutPlan(ctx, rec); err != nil {
		p.logger.Warn("plan persist failed", "queue", plan.Queue, "error", err)
	}
	if err := p.opts.Store.PutBaseline(ctx, plan.Queue, st.detector.State()); err != nil {
		p.logger.Warn("baseline persist failed", "queue", plan.Queue, "error", err)
	}
}

// confidence folds simulated breach time and normalized forecast error into
// [0, 1].
func confidence(res sim.Result, fc forecast.Result, horizon time.Duration) float64 {
	breachFrac := 0.0
	if horizon > 0 {
		breachFrac = float64(res.BreachDuration()) / float64(horizon)
	}

	normErr := 0.0
	if mean := meanOf(fc.Values); mean > 0 {
		normErr = fc.ErrStd / mean
	}

	c := 1 - breachFrac - normErr
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func achievable(res sim.Result, slo SLOTarget, horizon time.Duration) Achievability {
	if horizon <= 0 {
		return AchievableUnknown
	}
	breachFrac := float64(res.BreachDuration()) / float64(horizon)
	if breachFrac > slo.ErrorBudget {
		return AchievableNo
	}
	return AchievableYes
}

// drainWithin reports whether the simulated backlog reached zero within the
// limit. A zero limit disables the check.
func drainWithin(res sim.Result, limit time.Duration) (bool, time.Duration) {
	if limit <= 0 || len(res.Buckets) == 0 || res.Buckets[0].Backlog == 0 {
		return true, 0
	}
	for _, b := range res.Buckets {
		if b.Backlog == 0 {
			return b.Offset <= limit, b.Offset
		}
	}
	return false, res.Buckets[len(res.Buckets)-1].Offset
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
