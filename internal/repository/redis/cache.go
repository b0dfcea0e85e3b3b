// Package redis provides the plan cache and plan event pub/sub on Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/limiquantix/reconf/internal/config"
	"github.com/limiquantix/reconf/internal/plan"
)

// ErrCacheMiss indicates the key was not found in cache.
var ErrCacheMiss = errors.New("cache miss")

// PlanEventsChannel is the channel plan events are published on.
const PlanEventsChannel = "events:plan"

// Cache wraps a Redis client for caching plan records.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache creates a new Redis cache connection.
func NewCache(cfg config.RedisConfig, logger *zap.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis", zap.String("addr", cfg.Address()))

	return &Cache{
		client: client,
		ttl:    cfg.TTL,
		logger: logger.With(zap.String("component", "plan-cache")),
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health checks if Redis is reachable.
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// =============================================================================
// Generic Cache Operations
// =============================================================================

// Get retrieves a value from cache and unmarshals it into dest.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get error: %w", err)
	}
	return json.Unmarshal(val, dest)
}

// Set stores a value in cache with a TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes a key from cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// =============================================================================
// Plan Cache Operations
// =============================================================================

func planKey(id string) string {
	return fmt.Sprintf("plan:%s", id)
}

// GetPlan retrieves a plan record from cache.
func (c *Cache) GetPlan(ctx context.Context, id string) (*plan.Record, error) {
	var rec plan.Record
	if err := c.Get(ctx, planKey(id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SetPlan stores a plan record in cache.
func (c *Cache) SetPlan(ctx context.Context, rec *plan.Record) error {
	return c.Set(ctx, planKey(rec.ID), rec, c.ttl)
}

// InvalidatePlan removes a plan record from cache.
func (c *Cache) InvalidatePlan(ctx context.Context, id string) error {
	return c.Delete(ctx, planKey(id))
}

// =============================================================================
// Pub/Sub Operations
// =============================================================================

// Event announces a new plan record.
type Event struct {
	Type      string       `json:"type"` // "plan.ready", "plan.infeasible", ...
	PlanID    string       `json:"plan_id"`
	Record    *plan.Record `json:"record,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// PublishPlan publishes a plan event for rec.
func (c *Cache) PublishPlan(ctx context.Context, rec *plan.Record) error {
	event := Event{
		Type:      EventType(rec.Status),
		PlanID:    rec.ID,
		Record:    rec,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return c.client.Publish(ctx, PlanEventsChannel, data).Err()
}

// Subscribe streams plan events until ctx is done.
func (c *Cache) Subscribe(ctx context.Context) <-chan Event {
	pubsub := c.client.Subscribe(ctx, PlanEventsChannel)
	events := make(chan Event, 100)

	go func() {
		defer close(events)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					c.logger.Warn("Failed to unmarshal event", zap.Error(err))
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events
}

// EventType returns the event type announcing a record with the given status.
func EventType(status plan.RecordStatus) string {
	switch status {
	case plan.RecordStatusReady:
		return "plan.ready"
	case plan.RecordStatusInfeasible:
		return "plan.infeasible"
	case plan.RecordStatusUndecided:
		return "plan.undecided"
	default:
		return "plan.failed"
	}
}
