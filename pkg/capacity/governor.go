// Package capacity converts a raw queueing-model worker target into a safe,
// bounded scaling decision (governor.go) and an ordered sequence of timed
// scaling steps (steps.go).
//
// The governor is the anti-oscillation state machine: bounds, hysteresis,
// delta caps, and cooldown are applied in that order, and auto-apply is gated
// on simulation confidence plus a clean anomaly signal.
package capacity

import (
	"fmt"
	"time"
)

// State describes where the governor sits in its anti-flapping cycle.
type State string

const (
	// StateIdle: no recent action, ready to emit a step.
	StateIdle State = "idle"
	// StateCooldown: a step was emitted recently; holding until it expires.
	StateCooldown State = "cooldown"
	// StateAdvisory: anomalous input; plans are computed but never
	// auto-applied.
	StateAdvisory State = "advisory"
	// StateAutoEligible: confidence and a clean baseline allow automatic
	// application.
	StateAutoEligible State = "auto_eligible"
)

// Config bounds how far and how fast the fleet may move.
type Config struct {
	// MinWorkers and MaxWorkers are absolute replica bounds.
	MinWorkers int
	MaxWorkers int

	// ScaleUpUtilization is the utilization at current capacity above which
	// a scale-up is allowed to proceed. Defaults to 0.80.
	ScaleUpUtilization float64

	// ScaleDownUtilization is the utilization below which a scale-down is
	// allowed to proceed. Defaults to 0.60.
	ScaleDownUtilization float64

	// MaxPlanDelta caps how many workers a single plan may move in total.
	// Zero means unbounded (the step cap still paces the movement).
	MaxPlanDelta int

	// MaxStepSize caps workers changed per scaling step.
	MaxStepSize int

	// Cooldown is the minimum time between scaling actions.
	Cooldown time.Duration

	// ConfidenceThreshold is the minimum simulation confidence for
	// auto-apply.
	ConfidenceThreshold float64
}

func (c Config) withDefaults() Config {
	if c.MinWorkers < 1 {
		c.MinWorkers = 1
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.ScaleUpUtilization <= 0 || c.ScaleUpUtilization > 1 {
		c.ScaleUpUtilization = 0.80
	}
	if c.ScaleDownUtilization <= 0 || c.ScaleDownUtilization >= c.ScaleUpUtilization {
		c.ScaleDownUtilization = 0.60
	}
	if c.MaxStepSize <= 0 {
		c.MaxStepSize = 15
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 5 * time.Minute
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		c.ConfidenceThreshold = 0.85
	}
	return c
}

// Decision is the governed outcome for one evaluation tick.
type Decision struct {
	// AllowedTarget is the clamped worker target, always within
	// [MinWorkers, MaxWorkers].
	AllowedTarget int

	// Held reports that the governor pinned the target at the current count
	// (hysteresis band or active cooldown).
	Held bool

	// HoldReason explains a hold for plan rationale text.
	HoldReason string

	// State is the governor state after applying the clamp rules.
	State State
}

// Governor applies the safety rules. It is a pure function of its inputs
// plus configuration; the caller owns lastAction bookkeeping per policy.
type Governor struct {
	cfg Config
}

// NewGovernor creates a Governor, filling unset config fields with defaults.
func NewGovernor(cfg Config) *Governor {
	return &Governor{cfg: cfg.withDefaults()}
}

// Cooldown exposes the configured cooldown for step spacing.
func (g *Governor) Cooldown() time.Duration { return g.cfg.Cooldown }

// StepCap exposes the configured per-step delta cap.
func (g *Governor) StepCap() int { return g.cfg.MaxStepSize }

// Clamp applies, in order: replica bounds, utilization hysteresis, the
// per-plan delta cap, and the cooldown hold. utilization is the fleet's
// utilization at the current worker count (lambda / (current * mu)).
//
// The returned target is always inside [MinWorkers, MaxWorkers]; a Held
// decision means no scaling step should be emitted this tick.
func (g *Governor) Clamp(current, rawTarget int, utilization float64, lastAction, now time.Time, anomalous bool) Decision {
	cfg := g.cfg

	target := clampBounds(rawTarget, cfg.MinWorkers, cfg.MaxWorkers)
	bounded := clampBounds(current, cfg.MinWorkers, cfg.MaxWorkers)

	// Hysteresis: only leave current capacity when utilization has crossed
	// the asymmetric thresholds. This is what prevents flapping around the
	// raw model output.
	switch {
	case target > bounded && utilization < cfg.ScaleUpUtilization:
		return g.held(bounded, lastAction, now, anomalous,
			fmt.Sprintf("utilization %.0f%% below scale-up threshold %.0f%%",
				utilization*100, cfg.ScaleUpUtilization*100))
	case target < bounded && utilization > cfg.ScaleDownUtilization:
		return g.held(bounded, lastAction, now, anomalous,
			fmt.Sprintf("utilization %.0f%% above scale-down threshold %.0f%%",
				utilization*100, cfg.ScaleDownUtilization*100))
	}

	if cfg.MaxPlanDelta > 0 {
		target = clampChange(bounded, target, cfg.MaxPlanDelta)
	}
	target = clampBounds(target, cfg.MinWorkers, cfg.MaxWorkers)

	// Cooldown trumps everything: a recent action pins the fleet.
	if target != bounded && now.Sub(lastAction) < cfg.Cooldown {
		return g.held(bounded, lastAction, now, anomalous,
			fmt.Sprintf("cooldown active for another %s",
				(cfg.Cooldown - now.Sub(lastAction)).Round(time.Second)))
	}

	return Decision{
		AllowedTarget: target,
		State:         g.state(lastAction, now, anomalous),
	}
}

// Admit decides whether a plan may be applied without human confirmation:
// simulation confidence must be known and above the threshold, and the tick
// must not be anomalous. Unknown confidence is never auto-applicable.
func (g *Governor) Admit(confidence float64, confidenceKnown, anomalous bool) bool {
	return confidenceKnown && !anomalous && confidence >= g.cfg.ConfidenceThreshold
}

// Resolve finalizes the governor state once simulation confidence is known:
// a decision that passes Admit is promoted to auto-eligible, everything else
// keeps the state computed at clamp time.
func (g *Governor) Resolve(d Decision, confidence float64, confidenceKnown, anomalous bool) State {
	if g.Admit(confidence, confidenceKnown, anomalous) {
		return StateAutoEligible
	}
	return d.State
}

func (g *Governor) held(current int, lastAction, now time.Time, anomalous bool, reason string) Decision {
	return Decision{
		AllowedTarget: current,
		Held:          true,
		HoldReason:    reason,
		State:         g.state(lastAction, now, anomalous),
	}
}

func (g *Governor) state(lastAction, now time.Time, anomalous bool) State {
	if anomalous {
		return StateAdvisory
	}
	if !lastAction.IsZero() && now.Sub(lastAction) < g.cfg.Cooldown {
		return StateCooldown
	}
	return StateIdle
}

func clampBounds(x, lo, hi int) int {
	if x > hi {
		return hi
	}
	if x < lo {
		return lo
	}
	return x
}

func clampChange(current, target, maxDelta int) int {
	if target > current+maxDelta {
		return current + maxDelta
	}
	if target < current-maxDelta {
		return current - maxDelta
	}
	return target
}
