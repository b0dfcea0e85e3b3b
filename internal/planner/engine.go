// Package planner runs reconfiguration planning: it solves instances, directly
// or split along node partitions, and keeps a history of the outcomes.
package planner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/limiquantix/reconf/internal/config"
	"github.com/limiquantix/reconf/internal/domain"
	"github.com/limiquantix/reconf/internal/partition"
	"github.com/limiquantix/reconf/internal/plan"
)

// PlanRepository defines the interface for plan record storage.
type PlanRepository interface {
	Create(ctx context.Context, rec *plan.Record) (*plan.Record, error)
	Get(ctx context.Context, id string) (*plan.Record, error)
	List(ctx context.Context, status plan.RecordStatus, limit int) ([]*plan.Record, error)
	DeleteOld(ctx context.Context, olderThan time.Time) error
}

// PlanCache caches plan records and announces new ones.
type PlanCache interface {
	GetPlan(ctx context.Context, id string) (*plan.Record, error)
	SetPlan(ctx context.Context, rec *plan.Record) error
	PublishPlan(ctx context.Context, rec *plan.Record) error
}

// LeaderChecker checks if this instance is the leader.
type LeaderChecker interface {
	IsLeader() bool
}

// InstanceSource provides the instance to plan on each cycle.
type InstanceSource interface {
	Instance(ctx context.Context) (*domain.Instance, error)
}

// InstanceSourceFunc adapts a function to InstanceSource.
type InstanceSourceFunc func(ctx context.Context) (*domain.Instance, error)

// Instance calls f.
func (f InstanceSourceFunc) Instance(ctx context.Context) (*domain.Instance, error) { return f(ctx) }

// Partitioner solves an instance split along node partitions.
type Partitioner interface {
	Partitions() [][]domain.Node
	Solve(ctx context.Context, s partition.InstanceSolver, inst *domain.Instance) (*plan.ReconfigurationPlan, error)
}

// Engine computes reconfiguration plans and stores their outcome.
type Engine struct {
	config        config.PlannerConfig
	solver        partition.InstanceSolver
	partitioning  Partitioner
	repo          PlanRepository
	cache         PlanCache
	leaderChecker LeaderChecker
	logger        *zap.Logger

	mu        sync.RWMutex
	isRunning bool
	lastRun   time.Time
}

// NewEngine creates a new planning engine. partitioning, cache and
// leaderChecker are optional.
func NewEngine(
	cfg config.PlannerConfig,
	solver partition.InstanceSolver,
	partitioning Partitioner,
	repo PlanRepository,
	cache PlanCache,
	leaderChecker LeaderChecker,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		config:        cfg,
		solver:        solver,
		partitioning:  partitioning,
		repo:          repo,
		cache:         cache,
		leaderChecker: leaderChecker,
		logger:        logger.With(zap.String("component", "planner")),
	}
}

// =============================================================================
// Planning
// =============================================================================

// Plan solves inst and persists the outcome. An infeasible instance yields an
// INFEASIBLE record and no error. When the resolution fails the record is
// still persisted, with status UNDECIDED or FAILED, and the error returned.
func (e *Engine) Plan(ctx context.Context, inst *domain.Instance) (*plan.Record, error) {
	start := time.Now()

	p, parts, solveErr := e.solve(ctx, inst)

	var rec *plan.Record
	switch {
	case solveErr == nil:
		rec = plan.NewRecord(p, parts)
	case errors.Is(solveErr, domain.ErrUndecided):
		rec = &plan.Record{Status: plan.RecordStatusUndecided, Partitions: parts, Reason: solveErr.Error()}
	default:
		rec = &plan.Record{Status: plan.RecordStatusFailed, Partitions: parts, Reason: solveErr.Error()}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now()

	stored, err := e.persist(ctx, rec)
	if err != nil {
		e.logger.Error("Failed to store plan record", zap.String("id", rec.ID), zap.Error(err))
		stored = rec
	}

	fields := []zap.Field{
		zap.String("id", stored.ID),
		zap.String("status", string(stored.Status)),
		zap.Int("duration", stored.Duration),
		zap.Int("actions", len(stored.Actions)),
		zap.Int("partitions", stored.Partitions),
		zap.Duration("elapsed", time.Since(start)),
	}
	if solveErr != nil {
		e.logger.Warn("Reconfiguration planning failed", append(fields, zap.Error(solveErr))...)
		return stored, solveErr
	}
	e.logger.Info("Reconfiguration planning complete", fields...)
	return stored, nil
}

// solve returns the plan and the number of sub-problems it was computed from.
func (e *Engine) solve(ctx context.Context, inst *domain.Instance) (*plan.ReconfigurationPlan, int, error) {
	if e.partitioning != nil {
		p, err := e.partitioning.Solve(ctx, e.solver, inst)
		if !errors.Is(err, domain.ErrUnsplittable) {
			return p, len(e.partitioning.Partitions()), err
		}
		e.logger.Warn("Instance cannot be split, solving it whole", zap.Error(err))
	}
	p, err := e.solver.Solve(ctx, inst)
	return p, 1, err
}

func (e *Engine) persist(ctx context.Context, rec *plan.Record) (*plan.Record, error) {
	stored := rec
	if e.repo != nil {
		var err error
		if stored, err = e.repo.Create(ctx, rec); err != nil {
			return nil, err
		}
	}
	if e.cache != nil {
		if err := e.cache.SetPlan(ctx, stored); err != nil {
			e.logger.Warn("Failed to cache plan record", zap.String("id", stored.ID), zap.Error(err))
		}
		if err := e.cache.PublishPlan(ctx, stored); err != nil {
			e.logger.Warn("Failed to publish plan record", zap.String("id", stored.ID), zap.Error(err))
		}
	}
	return stored, nil
}

// =============================================================================
// Periodic Loop
// =============================================================================

// Start begins the planning loop. It returns when ctx is done, or at once
// when the loop is disabled, already running or has no positive interval.
func (e *Engine) Start(ctx context.Context, source InstanceSource) {
	if !e.config.Enabled {
		e.logger.Info("Planning loop disabled")
		return
	}

	if e.config.Interval <= 0 {
		e.logger.Error("Invalid planning interval", zap.Duration("interval", e.config.Interval))
		return
	}

	e.mu.Lock()
	if e.isRunning {
		e.mu.Unlock()
		return
	}
	e.isRunning = true
	e.mu.Unlock()

	e.logger.Info("Starting planning loop",
		zap.Duration("interval", e.config.Interval),
		zap.Duration("retention", e.config.Retention),
		zap.Bool("partitioned", e.partitioning != nil),
	)

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	// Run initial cycle
	e.runCycle(ctx, source)

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Planning loop stopped")
			e.mu.Lock()
			e.isRunning = false
			e.mu.Unlock()
			return
		case <-ticker.C:
			e.runCycle(ctx, source)
		}
	}
}

// runCycle performs a single planning cycle.
func (e *Engine) runCycle(ctx context.Context, source InstanceSource) {
	// Only run on leader
	if e.leaderChecker != nil && !e.leaderChecker.IsLeader() {
		e.logger.Debug("Not leader, skipping planning cycle")
		return
	}

	inst, err := source.Instance(ctx)
	if err != nil {
		e.logger.Error("Failed to get instance", zap.Error(err))
		return
	}

	// Failures are persisted and logged by Plan
	_, _ = e.Plan(ctx, inst)

	if e.repo != nil && e.config.Retention > 0 {
		if err := e.repo.DeleteOld(ctx, time.Now().Add(-e.config.Retention)); err != nil {
			e.logger.Warn("Failed to cleanup old plan records", zap.Error(err))
		}
	}

	e.mu.Lock()
	e.lastRun = time.Now()
	e.mu.Unlock()
}

// =============================================================================
// Queries
// =============================================================================

// Get returns a plan record, looking in the cache first.
func (e *Engine) Get(ctx context.Context, id string) (*plan.Record, error) {
	if e.cache != nil {
		if rec, err := e.cache.GetPlan(ctx, id); err == nil {
			return rec, nil
		}
	}
	if e.repo == nil {
		return nil, domain.ErrNotFound
	}
	rec, err := e.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		if err := e.cache.SetPlan(ctx, rec); err != nil {
			e.logger.Debug("Failed to cache plan record", zap.String("id", id), zap.Error(err))
		}
	}
	return rec, nil
}

// List returns the most recent plan records with the given status. An empty
// status matches every record.
func (e *Engine) List(ctx context.Context, status plan.RecordStatus, limit int) ([]*plan.Record, error) {
	if e.repo == nil {
		return nil, nil
	}
	return e.repo.List(ctx, status, limit)
}

// LastRun returns when the last planning cycle completed.
func (e *Engine) LastRun() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRun
}

// IsRunning returns true if the planning loop is running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isRunning
}
