package storage

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/HatiCode/queuecap/pkg/baseline"
	"github.com/HatiCode/queuecap/pkg/capacity"
)

func testPlan(queue string) PlanRecord {
	return PlanRecord{
		Queue:          queue,
		GeneratedAt:    time.Now(),
		CurrentWorkers: 8,
		TargetWorkers:  10,
		Steps: []capacity.Step{
			{FromWorkers: 8, TargetWorkers: 10, Offset: 0, Rationale: "forecast load +25% over next 30m"},
		},
		Confidence:      0.92,
		ConfidenceKnown: true,
		CanAutoApply:    true,
		SLOAchievable:   "yes",
		Rationale:       "forecast load +25% over next 30m",
	}
}

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store == nil {
		t.Fatal("NewMemoryStore() returned nil")
	}
	if store.Len() != 0 {
		t.Errorf("new store should be empty, got %d plans", store.Len())
	}
}

func TestMemoryStore_PutPlan_LatestPlan(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	want := testPlan("payments")
	if err := store.PutPlan(ctx, want); err != nil {
		t.Fatalf("PutPlan() error = %v", err)
	}

	got, found, err := store.LatestPlan(ctx, "payments")
	if err != nil {
		t.Fatalf("LatestPlan() error = %v", err)
	}
	if !found {
		t.Fatal("LatestPlan() found = false, want true")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LatestPlan() = %+v, want %+v", got, want)
	}
}

func TestMemoryStore_PutPlan_EmptyQueue(t *testing.T) {
	store := NewMemoryStore()

	err := store.PutPlan(context.Background(), PlanRecord{})
	if err == nil {
		t.Fatal("expected error for empty queue, got nil")
	}
}

func TestMemoryStore_PutPlan_Replaces(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := testPlan("payments")
	second := testPlan("payments")
	second.TargetWorkers = 14

	if err := store.PutPlan(ctx, first); err != nil {
		t.Fatalf("PutPlan() error = %v", err)
	}
	if err := store.PutPlan(ctx, second); err != nil {
		t.Fatalf("PutPlan() error = %v", err)
	}

	got, _, _ := store.LatestPlan(ctx, "payments")
	if got.TargetWorkers != 14 {
		t.Errorf("TargetWorkers = %d, want 14", got.TargetWorkers)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestMemoryStore_LatestPlan_NotFound(t *testing.T) {
	store := NewMemoryStore()

	_, found, err := store.LatestPlan(context.Background(), "missing")
	if err != nil {
		t.Fatalf("LatestPlan() error = %v", err)
	}
	if found {
		t.Error("found = true for missing queue")
	}
}

func TestMemoryStore_LatestPlan_CanceledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.LatestPlan(ctx, "payments")
	if err == nil {
		t.Fatal("expected context error, got nil")
	}
}

func TestMemoryStore_Baseline_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	d := baseline.New()
	for i := 0; i < 20; i++ {
		d.Update(100)
	}
	want := d.State()

	if err := store.PutBaseline(ctx, "payments", want); err != nil {
		t.Fatalf("PutBaseline() error = %v", err)
	}

	got, found, err := store.GetBaseline(ctx, "payments")
	if err != nil {
		t.Fatalf("GetBaseline() error = %v", err)
	}
	if !found {
		t.Fatal("GetBaseline() found = false, want true")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("GetBaseline() = %+v, want %+v", got, want)
	}
}

func TestMemoryStore_TTL_Expiration(t *testing.T) {
	store := NewMemoryStoreWithTTL(50*time.Millisecond, 10*time.Millisecond)
	defer store.Stop()

	ctx := context.Background()
	if err := store.PutPlan(ctx, testPlan("payments")); err != nil {
		t.Fatalf("PutPlan() error = %v", err)
	}

	// Wait for the TTL sweep to remove the plan.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if store.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("plan was not expired by the TTL sweep")
}

func TestMemoryStore_Stop_Idempotent(t *testing.T) {
	store := NewMemoryStoreWithTTL(time.Minute, time.Minute)
	store.Stop()
	store.Stop() // must not panic or block

	plain := NewMemoryStore()
	plain.Stop() // no TTL, no-op
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			queue := fmt.Sprintf("queue-%d", n)
			if err := store.PutPlan(ctx, testPlan(queue)); err != nil {
				t.Errorf("PutPlan(%s) error = %v", queue, err)
			}
		}(i)
		go func(n int) {
			defer wg.Done()
			queue := fmt.Sprintf("queue-%d", n)
			if _, _, err := store.LatestPlan(ctx, queue); err != nil {
				t.Errorf("LatestPlan(%s) error = %v", queue, err)
			}
		}(i)
	}
	wg.Wait()

	if store.Len() != 10 {
		t.Errorf("Len() = %d, want 10", store.Len())
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if store.Delete("payments") {
		t.Error("Delete() on empty store returned true")
	}

	if err := store.PutPlan(ctx, testPlan("payments")); err != nil {
		t.Fatalf("PutPlan() error = %v", err)
	}
	if !store.Delete("payments") {
		t.Error("Delete() returned false for existing plan")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d after delete, want 0", store.Len())
	}
}
