package queueing

import (
	"errors"
	"testing"
	"time"
)

func TestRequiredServers_ErlangTable(t *testing.T) {
	// lambda=100/s, mean service 1/12 s (mu=12/s), target Wq <= 2s.
	// Search starts at ceil(100/12)+1 = 10, which is stable (rho=0.83) and
	// comfortably inside the target, so 10 is the answer.
	got, err := RequiredServers(100, time.Second/12, 0, 2*time.Second, Limits{Min: 1, Max: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 10 {
		t.Fatalf("got %d servers, want 10", got)
	}
}

func TestRequiredServers_ZeroArrivals(t *testing.T) {
	got, err := RequiredServers(0, 100*time.Millisecond, 0, time.Second, Limits{Min: 3, Max: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 3 {
		t.Fatalf("got %d, want configured minimum 3", got)
	}
}

func TestRequiredServers_InvalidServiceRate(t *testing.T) {
	_, err := RequiredServers(10, 0, 0, time.Second, Limits{Min: 1, Max: 10})
	if !errors.Is(err, ErrInvalidServiceRate) {
		t.Fatalf("got %v, want ErrInvalidServiceRate", err)
	}
}

func TestRequiredServers_MonotoneInLambda(t *testing.T) {
	limits := Limits{Min: 1, Max: 200}
	prev := 0
	for lambda := 1.0; lambda <= 150; lambda += 1.0 {
		c, err := RequiredServers(lambda, time.Second/10, 0, 500*time.Millisecond, limits)
		if err != nil {
			t.Fatalf("lambda=%v: %v", lambda, err)
		}
		if c < prev {
			t.Fatalf("lambda=%v: servers dropped from %d to %d", lambda, prev, c)
		}
		prev = c
	}
}

func TestRequiredServers_TightTargetNeedsMore(t *testing.T) {
	// A millisecond-level wait target must require more servers than a
	// relaxed one at the same load.
	loose, err := RequiredServers(50, 100*time.Millisecond, 0, 5*time.Second, Limits{Min: 1, Max: 100})
	if err != nil {
		t.Fatal(err)
	}
	tight, err := RequiredServers(50, 100*time.Millisecond, 0, time.Millisecond, Limits{Min: 1, Max: 100})
	if err != nil {
		t.Fatal(err)
	}
	if tight < loose {
		t.Fatalf("tight target got %d servers, loose got %d", tight, loose)
	}
}

func TestRequiredServers_CapsAtMax(t *testing.T) {
	got, err := RequiredServers(1000, time.Second, 0, time.Millisecond, Limits{Min: 1, Max: 20})
	if err != nil {
		t.Fatal(err)
	}
	if got != 20 {
		t.Fatalf("got %d, want max 20 when the target is unreachable", got)
	}
}

func TestRequiredServers_VarianceCorrection(t *testing.T) {
	// High service-time variance inflates Wq, so the corrected search can
	// never return fewer servers than the exponential baseline.
	mean := 100 * time.Millisecond
	expVar := mean.Seconds() * mean.Seconds()

	base, err := RequiredServers(80, mean, expVar, 20*time.Millisecond, Limits{Min: 1, Max: 100})
	if err != nil {
		t.Fatal(err)
	}
	corrected, err := RequiredServers(80, mean, 9*expVar, 20*time.Millisecond, Limits{Min: 1, Max: 100})
	if err != nil {
		t.Fatal(err)
	}
	if corrected < base {
		t.Fatalf("variance-corrected %d < exponential %d", corrected, base)
	}
}

func TestWait_Values(t *testing.T) {
	// M/M/c with lambda=100, mu=12, c=10: Erlang-C Pwait ~= 0.488,
	// Wq = Pwait/(c*mu - lambda) ~= 24.4ms.
	wq := Wait(100, 12, 10)
	if wq <= 0 {
		t.Fatalf("expected stable system, got %v", wq)
	}
	if wq < 20*time.Millisecond || wq > 30*time.Millisecond {
		t.Fatalf("Wq = %v, want ~24ms", wq)
	}
}

func TestWait_Unstable(t *testing.T) {
	if wq := Wait(100, 12, 8); wq >= 0 {
		t.Fatalf("lambda=100 > c*mu=96 must be unstable, got %v", wq)
	}
}

func TestUtilization(t *testing.T) {
	if got := Utilization(100, 12, 10); got < 0.82 || got > 0.84 {
		t.Fatalf("got %v, want ~0.833", got)
	}
	if got := Utilization(200, 12, 10); got != 1 {
		t.Fatalf("overloaded system should clamp to 1, got %v", got)
	}
}
