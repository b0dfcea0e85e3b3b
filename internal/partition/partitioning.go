// Package partition splits an instance along disjoint node sets, solves the
// sub-instances independently and merges their plans.
package partition

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/limiquantix/reconf/internal/constraint"
	"github.com/limiquantix/reconf/internal/domain"
	"github.com/limiquantix/reconf/internal/plan"
)

// InstanceSolver computes the plan of one instance. A nil plan with a nil
// error means the instance has no solution.
type InstanceSolver interface {
	Solve(ctx context.Context, inst *domain.Instance) (*plan.ReconfigurationPlan, error)
}

// Option configures a FixedNodeSetsPartitioning.
type Option func(*FixedNodeSetsPartitioning)

// WithSplitters sets the splitter registry.
func WithSplitters(r *SplitterRegistry) Option {
	return func(p *FixedNodeSetsPartitioning) { p.splitters = r }
}

// WithWorkers bounds the number of sub-instances solved at once. Zero or
// less solves every partition at once.
func WithWorkers(n int) Option {
	return func(p *FixedNodeSetsPartitioning) { p.workers = n }
}

// WithMergePolicy sets how sub-plans are merged.
func WithMergePolicy(policy MergePolicy) Option {
	return func(p *FixedNodeSetsPartitioning) { p.policy = policy }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *FixedNodeSetsPartitioning) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// FixedNodeSetsPartitioning splits instances along a fixed collection of
// disjoint node sets.
type FixedNodeSetsPartitioning struct {
	mu         sync.RWMutex
	partitions [][]domain.Node
	splitters  *SplitterRegistry
	workers    int
	policy     MergePolicy
	logger     *zap.Logger
}

// NewFixedNodeSetsPartitioning creates a partitioning over parts. It fails
// when two parts share a node.
func NewFixedNodeSetsPartitioning(parts [][]domain.Node, opts ...Option) (*FixedNodeSetsPartitioning, error) {
	if err := checkDisjoint(parts); err != nil {
		return nil, err
	}
	p := &FixedNodeSetsPartitioning{
		partitions: clonePartitions(parts),
		splitters:  NewSplitterRegistry(),
		policy:     MergeConcurrent,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "partitioning"))
	return p, nil
}

func checkDisjoint(parts [][]domain.Node) error {
	seen := make(map[domain.Node]int)
	for i, part := range parts {
		for _, n := range part {
			if j, ok := seen[n]; ok && j != i {
				return fmt.Errorf("%w: %s belongs to partitions %d and %d", domain.ErrNonDisjointPartitions, n, j, i)
			}
			seen[n] = i
		}
	}
	return nil
}

func clonePartitions(parts [][]domain.Node) [][]domain.Node {
	out := make([][]domain.Node, len(parts))
	for i, part := range parts {
		out[i] = slices.Clone(part)
	}
	return out
}

// Partitions returns a copy of the node sets.
func (p *FixedNodeSetsPartitioning) Partitions() [][]domain.Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clonePartitions(p.partitions)
}

// SetPartitions replaces the node sets. The current sets are kept when the
// new ones overlap.
func (p *FixedNodeSetsPartitioning) SetPartitions(parts [][]domain.Node) error {
	if err := checkDisjoint(parts); err != nil {
		return err
	}
	p.mu.Lock()
	p.partitions = clonePartitions(parts)
	p.mu.Unlock()
	return nil
}

// Splitters returns the splitter registry.
func (p *FixedNodeSetsPartitioning) Splitters() *SplitterRegistry { return p.splitters }

// MergePolicy returns the merge policy.
func (p *FixedNodeSetsPartitioning) MergePolicy() MergePolicy { return p.policy }

// Split builds one sub-instance per partition. The source instance is never
// modified.
func (p *FixedNodeSetsPartitioning) Split(inst *domain.Instance) ([]*domain.Instance, error) {
	parts := p.Partitions()
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no partition", domain.ErrInvalidArgument)
	}
	src := inst.Model()
	cstrs := inst.SatConstraints()

	// VMs without a host are dispatched round-robin: first the VMs to
	// launch, then the other ready VMs, then the VMs unknown to the source.
	work := src.Mapping().Copy()
	var dispatch []domain.VM
	for _, c := range cstrs {
		if _, ok := c.(*constraint.Running); !ok {
			continue
		}
		for _, vm := range c.InvolvedVMs() {
			if work.IsReady(vm) && work.RemoveVM(vm) {
				dispatch = append(dispatch, vm)
			}
		}
	}
	for _, vm := range work.ReadyVMs() {
		work.RemoveVM(vm)
		dispatch = append(dispatch, vm)
	}
	var unknown []domain.VM
	for _, c := range cstrs {
		for _, vm := range c.InvolvedVMs() {
			if !src.Mapping().ContainsVM(vm) && !slices.Contains(unknown, vm) {
				unknown = append(unknown, vm)
			}
		}
	}

	routed := make([][]domain.VM, len(parts))
	vmIdx := make(map[domain.VM]int)
	next := 0
	for _, vm := range dispatch {
		routed[next] = append(routed[next], vm)
		next = (next + 1) % len(parts)
	}

	nodeIdx := make(map[domain.Node]int)
	models := make([]*domain.Model, len(parts))
	for i, nodes := range parts {
		sub := domain.NewSubMapping(work, nodes, routed[i])
		sub.FillVMIndex(vmIdx, i)
		mo := domain.NewModelWith(sub)
		for _, v := range src.Views() {
			mo.AttachView(v.Copy())
		}
		models[i] = mo
		for _, n := range nodes {
			nodeIdx[n] = i
		}
	}
	for _, vm := range unknown {
		vmIdx[vm] = next
		next = (next + 1) % len(parts)
	}
	if uncovered := p.uncoveredNodes(src.Mapping(), nodeIdx); len(uncovered) > 0 {
		p.logger.Warn("Nodes outside every partition are left untouched",
			zap.Int("count", len(uncovered)),
			zap.Stringers("nodes", uncovered),
		)
	}

	ctx := newSplitContext(inst, models, vmIdx, nodeIdx)
	for _, c := range cstrs {
		if err := p.splitters.Split(c, ctx); err != nil {
			return nil, err
		}
	}

	out := make([]*domain.Instance, len(models))
	sizes := make([]float64, len(models))
	for i, mo := range models {
		out[i] = domain.NewInstance(mo, ctx.Constraints(i), inst.Objective())
		sizes[i] = float64(mo.Mapping().NbVMs())
	}
	mean, std := stat.MeanStdDev(sizes, nil)
	p.logger.Debug("Instance split",
		zap.Int("partitions", len(out)),
		zap.Int("dispatched_vms", len(dispatch)),
		zap.Float64("mean_vms", mean),
		zap.Float64("stddev_vms", std),
	)
	return out, nil
}

func (p *FixedNodeSetsPartitioning) uncoveredNodes(m domain.Mapping, nodeIdx map[domain.Node]int) []domain.Node {
	var out []domain.Node
	for _, n := range m.AllNodes() {
		if _, ok := nodeIdx[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// Solve splits inst, solves the sub-instances concurrently and merges the
// sub-plans. It returns (nil, nil) when a sub-instance has no solution.
func (p *FixedNodeSetsPartitioning) Solve(ctx context.Context, s InstanceSolver, inst *domain.Instance) (*plan.ReconfigurationPlan, error) {
	parts, err := p.Split(inst)
	if err != nil {
		return nil, err
	}

	plans := make([]*plan.ReconfigurationPlan, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	if p.workers > 0 {
		g.SetLimit(p.workers)
	}
	for i, sub := range parts {
		g.Go(func() error {
			sp, err := s.Solve(gctx, sub)
			if err != nil {
				return fmt.Errorf("failed to solve partition %d: %w", i, err)
			}
			plans[i] = sp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, sp := range plans {
		if sp == nil {
			p.logger.Info("Partition has no solution", zap.Int("partition", i))
			return nil, nil
		}
	}
	return Merge(inst.Model(), plans, p.policy)
}
