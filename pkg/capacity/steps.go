package capacity

import (
	"fmt"
	"time"
)

// Step is one timed scaling action within a plan. Offsets are relative to
// plan generation time; the actuator resolves them against its own clock.
type Step struct {
	// FromWorkers is the worker count the step starts from.
	FromWorkers int `json:"from_workers"`

	// TargetWorkers is the worker count after this step completes.
	TargetWorkers int `json:"target_workers"`

	// Offset is the delay from plan start at which the step becomes due.
	Offset time.Duration `json:"offset"`

	// Rationale names the condition that triggered the step.
	Rationale string `json:"rationale"`
}

// BuildSteps turns a (current, target) pair into an ordered step sequence.
//
// A move that fits within stepCap yields a single step at offset zero.
// Larger moves split into the minimum number of steps of size <= stepCap,
// each spaced cooldown apart, monotonically approaching the target; the
// final step lands exactly on it. The chain is self-describing: the first
// step starts from the current count and the last ends on the target. why
// names the triggering condition and is threaded into each rationale.
//
// current == target yields a single no-op step recording the hold.
func BuildSteps(current, target, stepCap int, cooldown time.Duration, why string) []Step {
	if stepCap <= 0 {
		stepCap = 1
	}

	if current == target {
		return []Step{{
			FromWorkers:   current,
			TargetWorkers: current,
			Offset:        0,
			Rationale:     fmt.Sprintf("hold at %d workers: %s", current, why),
		}}
	}

	delta := target - current
	dir := 1
	verb := "scale up"
	if delta < 0 {
		delta = -delta
		dir = -1
		verb = "scale down"
	}

	total := (delta + stepCap - 1) / stepCap
	steps := make([]Step, 0, total)
	level := current
	for i := 1; i <= total; i++ {
		size := stepCap
		if remaining := delta - (i-1)*stepCap; remaining < size {
			size = remaining
		}
		next := level + dir*size

		steps = append(steps, Step{
			FromWorkers:   level,
			TargetWorkers: next,
			Offset:        time.Duration(i-1) * cooldown,
			Rationale: fmt.Sprintf("%s to %d workers (step %d/%d): %s",
				verb, next, i, total, why),
		})
		level = next
	}

	return steps
}
