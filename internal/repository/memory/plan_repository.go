// Package memory provides in-memory repository implementations for development and testing.
// These repositories store data in memory and are not persistent across restarts.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/limiquantix/reconf/internal/domain"
	"github.com/limiquantix/reconf/internal/plan"
)

// PlanRepository is an in-memory store of plan records.
type PlanRepository struct {
	mu   sync.RWMutex
	data map[string]*plan.Record
}

// NewPlanRepository creates a new in-memory plan repository.
func NewPlanRepository() *PlanRepository {
	return &PlanRepository{
		data: make(map[string]*plan.Record),
	}
}

// Create stores a new plan record.
func (r *PlanRepository) Create(ctx context.Context, rec *plan.Record) (*plan.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if _, ok := r.data[rec.ID]; ok {
		return nil, domain.ErrAlreadyExists
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	// Clone to avoid external mutations
	stored := rec.Clone()
	r.data[stored.ID] = stored

	return stored.Clone(), nil
}

// Get retrieves a plan record by ID.
func (r *PlanRepository) Get(ctx context.Context, id string) (*plan.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns the most recent records first. An empty status matches every
// record and a non-positive limit returns them all.
func (r *PlanRepository) List(ctx context.Context, status plan.RecordStatus, limit int) ([]*plan.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*plan.Record
	for _, rec := range r.data {
		if status != "" && rec.Status != status {
			continue
		}
		result = append(result, rec.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// DeleteOld removes records created before olderThan.
func (r *PlanRepository) DeleteOld(ctx context.Context, olderThan time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rec := range r.data {
		if rec.CreatedAt.Before(olderThan) {
			delete(r.data, id)
		}
	}
	return nil
}
