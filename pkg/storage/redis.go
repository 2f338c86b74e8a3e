package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HatiCode/queuecap/pkg/baseline"
)

// RedisStore implements Store on Redis. It enables multi-instance planner
// deployments by sharing plans and baselines, with TTL-based expiration on
// plans so crashed planners never leave a stale projection behind.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisStore creates a Redis-backed store.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//   - ttl: plan expiration duration (0 uses default of 30 minutes)
//
// Returns an error if the connection to Redis fails or parameters are invalid.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}

	if ttl == 0 {
		ttl = 30 * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

func validQueueName(queue string) error {
	if queue == "" {
		return errors.New("queue name required")
	}
	for _, c := range queue {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_') {
			return fmt.Errorf("invalid queue name %q: only alphanumeric, hyphens, and underscores allowed", queue)
		}
	}
	return nil
}

// PutPlan stores a plan record with TTL-based expiration.
// The key format is "queuecap:plan:{queue}".
func (r *RedisStore) PutPlan(ctx context.Context, rec PlanRecord) error {
	if err := validQueueName(rec.Queue); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	key := fmt.Sprintf("queuecap:plan:%s", rec.Queue)

	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store plan in redis: %w", err)
	}

	return nil
}

// LatestPlan retrieves the latest plan record for a queue.
//
// The bool result is false when no plan exists or its TTL expired; that is
// not an error.
func (r *RedisStore) LatestPlan(ctx context.Context, queue string) (PlanRecord, bool, error) {
	if queue == "" {
		return PlanRecord{}, false, errors.New("queue name required")
	}

	key := fmt.Sprintf("queuecap:plan:%s", queue)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return PlanRecord{}, false, nil
		}
		return PlanRecord{}, false, fmt.Errorf("failed to get plan from redis: %w", err)
	}

	var rec PlanRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return PlanRecord{}, false, fmt.Errorf("failed to unmarshal plan: %w", err)
	}

	return rec, true, nil
}

// PutBaseline stores the anomaly detector state for a queue. Baselines are
// written without TTL: a stale baseline still beats a cold warmup. The key
// format is "queuecap:baseline:{queue}".
func (r *RedisStore) PutBaseline(ctx context.Context, queue string, state baseline.State) error {
	if err := validQueueName(queue); err != nil {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal baseline: %w", err)
	}

	key := fmt.Sprintf("queuecap:baseline:%s", queue)

	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store baseline in redis: %w", err)
	}

	return nil
}

// GetBaseline retrieves the stored detector state for a queue.
func (r *RedisStore) GetBaseline(ctx context.Context, queue string) (baseline.State, bool, error) {
	if queue == "" {
		return baseline.State{}, false, errors.New("queue name required")
	}

	key := fmt.Sprintf("queuecap:baseline:%s", queue)

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return baseline.State{}, false, nil
		}
		return baseline.State{}, false, fmt.Errorf("failed to get baseline from redis: %w", err)
	}

	var state baseline.State
	if err := json.Unmarshal(data, &state); err != nil {
		return baseline.State{}, false, fmt.Errorf("failed to unmarshal baseline: %w", err)
	}

	return state, true, nil
}

// Close closes the Redis client connection.
// It is safe to call multiple times (idempotent).
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if err != nil && err.Error() == "redis: client is closed" {
		return nil
	}

	return err
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
