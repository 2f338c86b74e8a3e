package sim

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/HatiCode/queuecap/pkg/capacity"
)

func newTestRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

func baseParams() Params {
	return Params{
		Workers:           10,
		ServiceRate:       2,
		Arrivals:          []float64{15, 15, 15, 15, 15},
		Horizon:           30 * time.Minute,
		BucketSize:        time.Minute,
		TargetWait:        5 * time.Second,
		MaxBacklog:        500,
		WorkerCostPerHour: 0.50,
		Seed:              42,
	}
}

func TestRun_DeterministicForSeed(t *testing.T) {
	a, err := Run(context.Background(), baseParams())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Run(context.Background(), baseParams())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatal("identical params and seed produced different results")
	}

	p := baseParams()
	p.Seed = 43
	c, err := Run(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if reflect.DeepEqual(a.Buckets, c.Buckets) {
		t.Fatal("different seeds produced identical arrival noise")
	}
}

func TestRun_TraceReplayIsExact(t *testing.T) {
	p := baseParams()
	p.Trace = []int{100, 100, 0, 0}
	p.Horizon = 4 * time.Minute

	res, err := Run(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if got := []int{res.Buckets[0].Arrivals, res.Buckets[1].Arrivals, res.Buckets[2].Arrivals, res.Buckets[3].Arrivals}; !reflect.DeepEqual(got, p.Trace) {
		t.Fatalf("trace not replayed exactly: %v", got)
	}
}

func TestRun_OverloadBuildsBacklogAndBreaches(t *testing.T) {
	p := baseParams()
	// 5 workers x 2 jobs/s = 600/min capacity against 1200/min arrivals.
	p.Workers = 5
	p.Arrivals = []float64{20}
	p.Horizon = 20 * time.Minute
	p.TargetWait = 2 * time.Second

	res, err := Run(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if res.MaxBacklog == 0 {
		t.Fatal("sustained overload must build backlog")
	}
	if len(res.Breaches) == 0 {
		t.Fatal("sustained overload must breach the SLO")
	}
	if res.BreachDuration() == 0 {
		t.Fatal("breach intervals must have duration")
	}

	last := res.Buckets[len(res.Buckets)-1]
	first := res.Buckets[0]
	if last.Backlog <= first.Backlog {
		t.Fatalf("backlog should grow under overload: %d -> %d", first.Backlog, last.Backlog)
	}
}

func TestRun_PlanStepsChangeCapacity(t *testing.T) {
	p := baseParams()
	p.Workers = 5
	p.Arrivals = []float64{20}
	p.Horizon = 30 * time.Minute
	p.Steps = []capacity.Step{
		{FromWorkers: 5, TargetWorkers: 15, Offset: 10 * time.Minute},
	}

	res, err := Run(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if res.Buckets[0].Workers != 5 {
		t.Fatalf("bucket 0 workers = %d, want 5", res.Buckets[0].Workers)
	}
	if res.Buckets[15].Workers != 15 {
		t.Fatalf("bucket 15 workers = %d, want 15 after the step fired", res.Buckets[15].Workers)
	}

	// With 15 workers (1800/min) against 1200/min the backlog must drain.
	if last := res.Buckets[len(res.Buckets)-1]; last.Backlog >= res.MaxBacklog && res.MaxBacklog > 0 {
		t.Fatalf("backlog did not drain after scale-up: last=%d max=%d", last.Backlog, res.MaxBacklog)
	}
}

func TestRun_CanceledContextDiscardsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, baseParams())
	if !errors.Is(err, ErrSimulationTimeout) {
		t.Fatalf("got %v, want ErrSimulationTimeout", err)
	}
	if len(res.Buckets) != 0 {
		t.Fatal("partial results must be discarded on cancellation")
	}
}

func TestRun_CostAccumulates(t *testing.T) {
	p := baseParams()
	p.Arrivals = []float64{0}
	p.Horizon = time.Hour

	res, err := Run(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	// 10 workers x $0.50/h x 1h.
	if res.TotalCost < 4.99 || res.TotalCost > 5.01 {
		t.Fatalf("total cost %v, want ~5.00", res.TotalCost)
	}
}

func TestRun_ZeroHorizonStillRunsOneBucket(t *testing.T) {
	p := baseParams()
	p.Horizon = 0
	res, err := Run(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Buckets) != 1 {
		t.Fatalf("got %d buckets, want 1", len(res.Buckets))
	}
}

func TestPoisson_MeanTracks(t *testing.T) {
	rng := newTestRand()
	const mean, n = 12.0, 5000
	sum := 0
	for i := 0; i < n; i++ {
		sum += poisson(rng, mean)
	}
	got := float64(sum) / n
	if got < 11 || got > 13 {
		t.Fatalf("sample mean %v, want ~12", got)
	}
}

func TestPoisson_LargeMeanNonNegative(t *testing.T) {
	rng := newTestRand()
	for i := 0; i < 1000; i++ {
		if v := poisson(rng, 500); v < 0 {
			t.Fatal("poisson sample went negative")
		}
	}
}
