package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/limiquantix/reconf/internal/config"
	"github.com/limiquantix/reconf/internal/constraint"
	"github.com/limiquantix/reconf/internal/domain"
	"github.com/limiquantix/reconf/internal/partition"
	"github.com/limiquantix/reconf/internal/plan"
	"github.com/limiquantix/reconf/internal/repository/memory"
	"github.com/limiquantix/reconf/internal/scheduler"
)

// =============================================================================
// Mocks
// =============================================================================

type mockCache struct {
	mu        sync.Mutex
	data      map[string]*plan.Record
	published []string
	gets      int
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string]*plan.Record)}
}

func (c *mockCache) GetPlan(_ context.Context, id string) (*plan.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	rec, ok := c.data[id]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return rec.Clone(), nil
}

func (c *mockCache) SetPlan(_ context.Context, rec *plan.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[rec.ID] = rec.Clone()
	return nil
}

func (c *mockCache) PublishPlan(_ context.Context, rec *plan.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, rec.ID)
	return nil
}

type mockLeader struct{ leader bool }

func (m mockLeader) IsLeader() bool { return m.leader }

type stubSolver struct {
	mu    sync.Mutex
	seen  []*domain.Instance
	plan  *plan.ReconfigurationPlan
	err   error
	calls int
}

func (s *stubSolver) Solve(_ context.Context, inst *domain.Instance) (*plan.ReconfigurationPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.seen = append(s.seen, inst)
	return s.plan, s.err
}

// =============================================================================
// Fixtures
// =============================================================================

// newCluster creates four online nodes and two running VMs on node#0 and
// node#2, plus one ready VM.
func newCluster(t *testing.T) (*domain.Model, []domain.Node, []domain.VM) {
	t.Helper()
	mo := domain.NewModel()
	m := mo.Mapping()
	nodes := make([]domain.Node, 4)
	for i := range nodes {
		nodes[i] = mo.NewNode()
		require.True(t, m.AddOnlineNode(nodes[i]))
	}
	vms := []domain.VM{mo.NewVM(), mo.NewVM(), mo.NewVM()}
	require.True(t, m.AddRunningVM(vms[0], nodes[0]))
	require.True(t, m.AddRunningVM(vms[1], nodes[2]))
	require.True(t, m.AddReadyVM(vms[2]))
	return mo, nodes, vms
}

func newScheduler(t *testing.T) *scheduler.Scheduler {
	return scheduler.New(scheduler.DefaultParameters(), zaptest.NewLogger(t))
}

// =============================================================================
// Tests
// =============================================================================

func TestEngine_PlanReady(t *testing.T) {
	ctx := context.Background()
	mo, _, vms := newCluster(t)
	inst := domain.NewInstance(mo, []domain.SatConstraint{constraint.NewRunning(vms[2])}, nil)

	repo := memory.NewPlanRepository()
	cache := newMockCache()
	e := NewEngine(config.PlannerConfig{}, newScheduler(t), nil, repo, cache, nil, zaptest.NewLogger(t))

	rec, err := e.Plan(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, plan.RecordStatusReady, rec.Status)
	assert.Equal(t, 1, rec.Partitions)
	require.Len(t, rec.Actions, 1)
	assert.Equal(t, plan.BootVM, rec.Actions[0].Kind)
	assert.Equal(t, vms[2], rec.Actions[0].VM)

	stored, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Actions, stored.Actions)
	assert.Equal(t, []string{rec.ID}, cache.published)
}

func TestEngine_PlanInfeasible(t *testing.T) {
	mo, nodes, vms := newCluster(t)
	inst := domain.NewInstance(mo, []domain.SatConstraint{constraint.NewBan([]domain.VM{vms[0]}, nodes)}, nil)

	e := NewEngine(config.PlannerConfig{}, newScheduler(t), nil, memory.NewPlanRepository(), nil, nil, zaptest.NewLogger(t))

	rec, err := e.Plan(context.Background(), inst)
	require.NoError(t, err)
	assert.Equal(t, plan.RecordStatusInfeasible, rec.Status)
	assert.NotEmpty(t, rec.ID)
	assert.Empty(t, rec.Actions)
}

func TestEngine_PlanErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status plan.RecordStatus
	}{
		{name: "undecided", err: fmt.Errorf("time limit reached: %w", domain.ErrUndecided), status: plan.RecordStatusUndecided},
		{name: "failed", err: domain.ErrInconsistentPlan, status: plan.RecordStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mo, _, _ := newCluster(t)
			repo := memory.NewPlanRepository()
			e := NewEngine(config.PlannerConfig{}, &stubSolver{err: tt.err}, nil, repo, nil, nil, zaptest.NewLogger(t))

			rec, err := e.Plan(ctx, domain.NewInstance(mo, nil, nil))
			assert.ErrorIs(t, err, tt.err)
			require.NotNil(t, rec)
			assert.Equal(t, tt.status, rec.Status)
			assert.Contains(t, rec.Reason, tt.err.Error())

			listed, err := repo.List(ctx, tt.status, 0)
			require.NoError(t, err)
			assert.Len(t, listed, 1)
		})
	}
}

func TestEngine_PlanPartitioned(t *testing.T) {
	mo, nodes, vms := newCluster(t)
	parts := [][]domain.Node{{nodes[0], nodes[1]}, {nodes[2], nodes[3]}}
	p, err := partition.NewFixedNodeSetsPartitioning(parts, partition.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	e := NewEngine(config.PlannerConfig{}, newScheduler(t), p, nil, nil, nil, zaptest.NewLogger(t))

	inst := domain.NewInstance(mo, []domain.SatConstraint{
		constraint.NewRunning(vms[2]),
		constraint.NewBan([]domain.VM{vms[0]}, []domain.Node{nodes[0]}),
	}, nil)
	rec, err := e.Plan(context.Background(), inst)
	require.NoError(t, err)
	assert.Equal(t, plan.RecordStatusReady, rec.Status)
	assert.Equal(t, 2, rec.Partitions)
	assert.Len(t, rec.Actions, 2)
}

func TestEngine_UnsplittableFallsBack(t *testing.T) {
	mo, nodes, vms := newCluster(t)
	parts := [][]domain.Node{{nodes[0], nodes[1]}, {nodes[2], nodes[3]}}
	p, err := partition.NewFixedNodeSetsPartitioning(parts)
	require.NoError(t, err)

	solver := &stubSolver{plan: plan.NewReconfigurationPlan(mo)}
	e := NewEngine(config.PlannerConfig{}, solver, p, nil, nil, nil, zaptest.NewLogger(t))

	inst := domain.NewInstance(mo, []domain.SatConstraint{constraint.NewGather(vms[0], vms[1])}, nil)
	rec, err := e.Plan(context.Background(), inst)
	require.NoError(t, err)
	assert.Equal(t, plan.RecordStatusReady, rec.Status)
	assert.Equal(t, 1, rec.Partitions)
	require.Equal(t, 1, solver.calls)
	assert.Same(t, inst, solver.seen[0])
}

func TestEngine_GetUsesCache(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewPlanRepository()
	cache := newMockCache()
	e := NewEngine(config.PlannerConfig{}, &stubSolver{}, nil, repo, cache, nil, zaptest.NewLogger(t))

	stored, err := repo.Create(ctx, &plan.Record{Status: plan.RecordStatusReady, Duration: 4})
	require.NoError(t, err)

	// Miss: loaded from the repository and cached
	rec, err := e.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Duration)
	assert.Contains(t, cache.data, stored.ID)

	// Hit: served from the cache
	cache.data[stored.ID].Duration = 9
	rec, err = e.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, rec.Duration)

	_, err = e.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngine_StartDisabled(t *testing.T) {
	e := NewEngine(config.PlannerConfig{}, &stubSolver{}, nil, nil, nil, nil, zaptest.NewLogger(t))
	source := InstanceSourceFunc(func(context.Context) (*domain.Instance, error) {
		t.Fatal("disabled loop must not request an instance")
		return nil, nil
	})
	e.Start(context.Background(), source)
	assert.False(t, e.IsRunning())
	assert.True(t, e.LastRun().IsZero())
}

func TestEngine_StartRejectsInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		t.Run(interval.String(), func(t *testing.T) {
			solver := &stubSolver{}
			cfg := config.PlannerConfig{Enabled: true, Interval: interval}
			e := NewEngine(cfg, solver, nil, nil, nil, nil, zaptest.NewLogger(t))

			done := make(chan struct{})
			go func() {
				defer close(done)
				e.Start(context.Background(), InstanceSourceFunc(func(context.Context) (*domain.Instance, error) {
					return domain.NewInstance(domain.NewModel(), nil, nil), nil
				}))
			}()

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("loop started without a valid interval")
			}
			assert.False(t, e.IsRunning())
			assert.Zero(t, solver.calls)
		})
	}
}

func TestEngine_StartSkipsWhenNotLeader(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	solver := &stubSolver{}
	cfg := config.PlannerConfig{Enabled: true, Interval: 5 * time.Millisecond}
	e := NewEngine(cfg, solver, nil, nil, nil, mockLeader{leader: false}, zaptest.NewLogger(t))

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Start(ctx, InstanceSourceFunc(func(context.Context) (*domain.Instance, error) {
			return domain.NewInstance(domain.NewModel(), nil, nil), nil
		}))
	}()

	require.Eventually(t, e.IsRunning, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	assert.False(t, e.IsRunning())
	assert.True(t, e.LastRun().IsZero())
	assert.Zero(t, solver.calls)
}

func TestEngine_StartPlansAndCleansUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mo, _, vms := newCluster(t)
	repo := memory.NewPlanRepository()
	old := &plan.Record{ID: "old", Status: plan.RecordStatusReady, CreatedAt: time.Now().Add(-48 * time.Hour)}
	_, err := repo.Create(ctx, old)
	require.NoError(t, err)

	cfg := config.PlannerConfig{Enabled: true, Interval: 10 * time.Millisecond, Retention: time.Hour}
	e := NewEngine(cfg, newScheduler(t), nil, repo, nil, mockLeader{leader: true}, zaptest.NewLogger(t))

	source := InstanceSourceFunc(func(context.Context) (*domain.Instance, error) {
		return domain.NewInstance(mo, []domain.SatConstraint{constraint.NewRunning(vms[2])}, nil), nil
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Start(ctx, source)
	}()

	require.Eventually(t, func() bool { return !e.LastRun().IsZero() }, 5*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	_, err = repo.Get(context.Background(), "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ready, err := e.List(context.Background(), plan.RecordStatusReady, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, ready)
}
