package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HatiCode/queuecap/pkg/baseline"
)

// MemoryStore keeps the latest plan and baseline state per queue in process
// memory. It is safe for concurrent use by multiple goroutines.
//
// If TTL is configured, a background goroutine removes plans older than the
// TTL so the /plan/current API never serves a stale projection. Baselines
// are never expired; a stale baseline is still a better warm start than
// none. For multi-instance deployments use RedisStore instead.
type MemoryStore struct {
	mu        sync.RWMutex
	plans     map[string]PlanRecord
	baselines map[string]baseline.State

	ttl           time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewMemoryStore creates an in-memory store with no TTL. Records are kept
// until replaced.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans:     make(map[string]PlanRecord),
		baselines: make(map[string]baseline.State),
	}
}

// NewMemoryStoreWithTTL creates an in-memory store with automatic removal
// of plans older than ttl. The cleanup goroutine must be stopped with
// Stop() when the store is no longer needed.
//
// cleanupInterval determines how often the sweep runs (typically 1 minute).
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := &MemoryStore{
		plans:         make(map[string]PlanRecord),
		baselines:     make(map[string]baseline.State),
		ttl:           ttl,
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
	}

	go store.runCleanup()

	return store
}

// Stop shuts down the background cleanup goroutine. It blocks until the
// sweep loop exits. Calling Stop multiple times or on a store without TTL
// is safe and does nothing.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if s.stopped {
		return
	}

	close(s.stopCleanup)
	<-s.cleanupDone
	s.cleanupTicker.Stop()
	s.stopped = true
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl == 0 {
		return
	}

	now := time.Now()
	for queue, rec := range s.plans {
		if now.Sub(rec.GeneratedAt) > s.ttl {
			delete(s.plans, queue)
		}
	}
}

// PutPlan stores a plan record, replacing any existing record for the queue.
func (s *MemoryStore) PutPlan(ctx context.Context, rec PlanRecord) error {
	if rec.Queue == "" {
		return fmt.Errorf("plan queue cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.plans[rec.Queue] = rec
	return nil
}

// LatestPlan retrieves the most recent plan for a queue. found is false
// when no plan has been stored or the TTL sweep removed it.
func (s *MemoryStore) LatestPlan(ctx context.Context, queue string) (PlanRecord, bool, error) {
	select {
	case <-ctx.Done():
		return PlanRecord{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, found := s.plans[queue]
	return rec, found, nil
}

// PutBaseline stores the anomaly detector state for a queue.
func (s *MemoryStore) PutBaseline(ctx context.Context, queue string, state baseline.State) error {
	if queue == "" {
		return fmt.Errorf("queue cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.baselines[queue] = state
	return nil
}

// GetBaseline retrieves the stored detector state for a queue.
func (s *MemoryStore) GetBaseline(ctx context.Context, queue string) (baseline.State, bool, error) {
	select {
	case <-ctx.Done():
		return baseline.State{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, found := s.baselines[queue]
	return state, found, nil
}

// Len returns the number of plans currently stored. Primarily useful for
// testing and metrics.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.plans)
}

// Delete removes the plan for a queue. Returns true if one existed.
func (s *MemoryStore) Delete(queue string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.plans[queue]
	delete(s.plans, queue)
	return existed
}
