package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/limiquantix/reconf/internal/constraint"
	"github.com/limiquantix/reconf/internal/domain"
	"github.com/limiquantix/reconf/internal/plan"
	"github.com/limiquantix/reconf/internal/solver"
)

// =============================================================================
// Test engines
// =============================================================================

// countingEngine records every call made to the engine.
type countingEngine struct {
	calls int
}

func (e *countingEngine) NewIntVar(string, int, int) *solver.IntVar { e.calls++; return nil }
func (e *countingEngine) NewEnumVar(string, []int) *solver.IntVar { e.calls++; return nil }
func (e *countingEngine) Constant(int) *solver.IntVar { e.calls++; return nil }
func (e *countingEngine) Post(solver.Propagator) error { e.calls++; return nil }
func (e *countingEngine) SetObjective(*solver.IntVar, bool, solver.ObjectiveAlterer) { e.calls++ }
func (e *countingEngine) SetSearchOrder(...*solver.IntVar) { e.calls++ }
func (e *countingEngine) SetHint(*solver.IntVar, int) { e.calls++ }
func (e *countingEngine) NbVars() int { e.calls++; return 0 }

func (e *countingEngine) Solve(context.Context, solver.Params) (*solver.Result, error) {
	e.calls++
	return &solver.Result{Status: solver.StatusUndecided}, nil
}

// undecidedEngine builds a real model but never concludes.
type undecidedEngine struct {
	*solver.Model
}

func (e undecidedEngine) Solve(context.Context, solver.Params) (*solver.Result, error) {
	return &solver.Result{Status: solver.StatusUndecided}, nil
}

// =============================================================================
// Helpers
// =============================================================================

func durations(t *testing.T, values map[plan.ActionKind]int) *DurationEvaluators {
	t.Helper()
	evs := NewDurationEvaluators()
	for k, d := range values {
		evs.Register(k, ConstantDuration{Duration: d})
	}
	return evs
}

func params(evs *DurationEvaluators) Parameters {
	ps := DefaultParameters()
	ps.Durations = evs
	return ps
}

func onlineNodes(t *testing.T, mo *domain.Model, n int) []domain.Node {
	t.Helper()
	nodes := make([]domain.Node, n)
	for i := range nodes {
		nodes[i] = mo.NewNode()
		require.True(t, mo.Mapping().AddOnlineNode(nodes[i]))
	}
	return nodes
}

func assertApplicable(t *testing.T, p *plan.ReconfigurationPlan) *domain.Model {
	t.Helper()
	require.NotNil(t, p)
	res, err := p.Result()
	require.NoError(t, err)
	return res
}

// =============================================================================
// Problem builder
// =============================================================================

func TestReconfigurationProblem_BootDuration(t *testing.T) {
	mo := domain.NewModel()
	nodes := onlineNodes(t, mo, 2)
	vm := mo.NewVM()
	require.True(t, mo.Mapping().AddReadyVM(vm))

	rp, err := NewReconfigurationProblemBuilder(mo).
		WithNextVMStates(nil, []domain.VM{vm}, nil, nil).
		WithParameters(params(durations(t, map[plan.ActionKind]int{plan.BootVM: 5}))).
		WithLogger(zaptest.NewLogger(t)).
		Build()
	require.NoError(t, err)

	p, err := rp.Solve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, 1, p.Size())
	boot := p.Actions()[0]
	assert.Equal(t, plan.BootVM, boot.Kind)
	assert.Equal(t, 5, boot.End-boot.Start)
	assert.Contains(t, nodes, boot.Dst)
	assert.Equal(t, 5, p.Duration())

	res := assertApplicable(t, p)
	assert.True(t, res.Mapping().IsRunning(vm))
}

func TestReconfigurationProblem_SequentialBoots(t *testing.T) {
	mo := domain.NewModel()
	onlineNodes(t, mo, 1)
	vm1, vm2 := mo.NewVM(), mo.NewVM()
	require.True(t, mo.Mapping().AddReadyVM(vm1))
	require.True(t, mo.Mapping().AddReadyVM(vm2))

	rp, err := NewReconfigurationProblemBuilder(mo).
		WithNextVMStates(nil, []domain.VM{vm1, vm2}, nil, nil).
		WithParameters(params(durations(t, map[plan.ActionKind]int{plan.BootVM: 5}))).
		Build()
	require.NoError(t, err)

	t1, ok := rp.VMTransition(vm1)
	require.True(t, ok)
	t2, ok := rp.VMTransition(vm2)
	require.True(t, ok)
	require.NoError(t, rp.Engine().Post(solver.LessOrEqual(t1.End, t2.Start, 0)))

	p, err := rp.Solve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 10, p.Duration())
	actions := p.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, vm1, actions[0].VM)
	assert.Equal(t, 5, actions[0].End)
	assert.Equal(t, vm2, actions[1].VM)
	assert.Equal(t, 5, actions[1].Start)
}

func TestReconfigurationProblem_MigrateBeforeShutdown(t *testing.T) {
	mo := domain.NewModel()
	nodes := onlineNodes(t, mo, 2)
	vm := mo.NewVM()
	require.True(t, mo.Mapping().AddRunningVM(vm, nodes[1]))

	rp, err := NewReconfigurationProblemBuilder(mo).
		WithNextNodeStates(nil, []domain.Node{nodes[1]}).
		WithParameters(params(durations(t, map[plan.ActionKind]int{
			plan.MigrateVM:    2,
			plan.ShutdownNode: 3,
		}))).
		Build()
	require.NoError(t, err)

	p, err := rp.Solve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, p)

	want := []plan.Action{
		plan.NewMigrateVM(vm, nodes[1], nodes[0], 0, 2),
		plan.NewShutdownNode(nodes[1], 2, 5),
	}
	assert.Equal(t, want, p.Actions())
	assert.Equal(t, 5, p.Duration())

	res := assertApplicable(t, p)
	assert.True(t, res.Mapping().IsOffline(nodes[1]))
	loc, _ := res.Mapping().VMLocation(vm)
	assert.Equal(t, nodes[0], loc)
}

func TestReconfigurationProblem_AmbiguousStateTouchesNoEngine(t *testing.T) {
	mo := domain.NewModel()
	onlineNodes(t, mo, 1)
	vm := mo.NewVM()
	require.True(t, mo.Mapping().AddReadyVM(vm))

	engine := &countingEngine{}
	_, err := NewReconfigurationProblemBuilder(mo).
		WithNextVMStates(nil, []domain.VM{vm}, []domain.VM{vm}, nil).
		WithEngine(engine).
		Build()
	assert.ErrorIs(t, err, domain.ErrAmbiguousState)
	assert.Zero(t, engine.calls)
}

func TestReconfigurationProblem_AmbiguousNodeState(t *testing.T) {
	mo := domain.NewModel()
	nodes := onlineNodes(t, mo, 1)

	engine := &countingEngine{}
	_, err := NewReconfigurationProblemBuilder(mo).
		WithNextNodeStates(nodes, nodes).
		WithEngine(engine).
		Build()
	assert.ErrorIs(t, err, domain.ErrAmbiguousState)
	assert.Zero(t, engine.calls)
}

func TestReconfigurationProblem_UnreachableState(t *testing.T) {
	mo := domain.NewModel()
	onlineNodes(t, mo, 1)
	vm := mo.NewVM()
	require.True(t, mo.Mapping().AddReadyVM(vm))

	_, err := NewReconfigurationProblemBuilder(mo).
		WithNextVMStates(nil, nil, []domain.VM{vm}, nil).
		Build()
	assert.ErrorIs(t, err, domain.ErrUnreachableState)
}

func TestReconfigurationProblem_Undecided(t *testing.T) {
	mo := domain.NewModel()
	onlineNodes(t, mo, 1)
	vm := mo.NewVM()
	require.True(t, mo.Mapping().AddReadyVM(vm))

	rp, err := NewReconfigurationProblemBuilder(mo).
		WithNextVMStates(nil, []domain.VM{vm}, nil, nil).
		WithEngine(undecidedEngine{solver.NewModel(nil)}).
		Build()
	require.NoError(t, err)

	p, err := rp.Solve(context.Background())
	assert.Nil(t, p)
	assert.ErrorIs(t, err, domain.ErrUndecided)
}

func TestReconfigurationProblem_MaxEndClipsDurations(t *testing.T) {
	mo := domain.NewModel()
	onlineNodes(t, mo, 1)
	vm := mo.NewVM()
	require.True(t, mo.Mapping().AddReadyVM(vm))

	ps := params(durations(t, map[plan.ActionKind]int{plan.BootVM: 50}))
	ps.MaxEnd = 7
	rp, err := NewReconfigurationProblemBuilder(mo).
		WithNextVMStates(nil, []domain.VM{vm}, nil, nil).
		WithParameters(ps).
		Build()
	require.NoError(t, err)
	assert.Equal(t, 7, rp.Horizon())

	p, err := rp.Solve(context.Background())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 7, p.Duration())
}

func TestReconfigurationProblem_FutureStates(t *testing.T) {
	mo := domain.NewModel()
	nodes := onlineNodes(t, mo, 2)
	m := mo.Mapping()
	running, sleeping, ready, forged := mo.NewVM(), mo.NewVM(), mo.NewVM(), domain.VM(42)
	require.True(t, m.AddRunningVM(running, nodes[0]))
	require.True(t, m.AddSleepingVM(sleeping, nodes[1]))
	require.True(t, m.AddReadyVM(ready))

	rp, err := NewReconfigurationProblemBuilder(mo).
		WithNextVMStates([]domain.VM{forged}, nil, nil, []domain.VM{ready}).
		WithManageableVMs(nil).
		Build()
	require.NoError(t, err)

	assert.Equal(t, []domain.VM{running}, rp.FutureRunningVMs())
	assert.Equal(t, []domain.VM{forged}, rp.FutureReadyVMs())
	assert.Equal(t, []domain.VM{sleeping}, rp.FutureSleepingVMs())
	assert.Equal(t, []domain.VM{ready}, rp.FutureKilledVMs())
	assert.Equal(t, []domain.VM{ready, forged}, rp.ManageableVMs())

	tr, ok := rp.VMTransition(running)
	require.True(t, ok)
	assert.Equal(t, StayRunningVMTransition, tr.Kind)
	tr, _ = rp.VMTransition(forged)
	assert.Equal(t, ForgeVMTransition, tr.Kind)
}

// =============================================================================
// Scheduler
// =============================================================================

func TestScheduler_BanOnEveryNodeIsInfeasible(t *testing.T) {
	mo := domain.NewModel()
	nodes := onlineNodes(t, mo, 2)
	vm := mo.NewVM()
	require.True(t, mo.Mapping().AddReadyVM(vm))

	inst := domain.NewInstance(mo, []domain.SatConstraint{
		constraint.NewRunning(vm),
		constraint.NewBan([]domain.VM{vm}, nodes),
	}, nil)

	p, err := New(DefaultParameters(), zaptest.NewLogger(t)).Solve(context.Background(), inst)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestScheduler_PlacementConstraints(t *testing.T) {
	mo := domain.NewModel()
	nodes := onlineNodes(t, mo, 3)
	m := mo.Mapping()
	vm1, vm2, vm3 := mo.NewVM(), mo.NewVM(), mo.NewVM()
	require.True(t, m.AddRunningVM(vm1, nodes[0]))
	require.True(t, m.AddRunningVM(vm2, nodes[0]))
	require.True(t, m.AddReadyVM(vm3))

	cstrs := []domain.SatConstraint{
		constraint.NewRunning(vm3),
		constraint.NewSpread([]domain.VM{vm1, vm2}, false),
		constraint.NewFence([]domain.VM{vm3}, []domain.Node{nodes[2]}),
		constraint.NewRoot(vm1),
	}
	p, err := New(DefaultParameters(), nil).Solve(context.Background(), domain.NewInstance(mo, cstrs, nil))
	require.NoError(t, err)
	res := assertApplicable(t, p)

	assert.Empty(t, constraint.Violated(res, cstrs...))
	loc, _ := res.Mapping().VMLocation(vm1)
	assert.Equal(t, nodes[0], loc)
	loc, _ = res.Mapping().VMLocation(vm3)
	assert.Equal(t, nodes[2], loc)
}

func TestScheduler_ContinuousSpreadDelaysArrival(t *testing.T) {
	mo := domain.NewModel()
	nodes := onlineNodes(t, mo, 2)
	m := mo.Mapping()
	vm1, vm2 := mo.NewVM(), mo.NewVM()
	require.True(t, m.AddRunningVM(vm1, nodes[0]))
	require.True(t, m.AddSleepingVM(vm2, nodes[1]))

	cstrs := []domain.SatConstraint{
		constraint.NewRunning(vm2),
		constraint.NewSpread([]domain.VM{vm1, vm2}, true),
		constraint.NewBan([]domain.VM{vm1}, []domain.Node{nodes[0]}),
	}
	ps := params(durations(t, map[plan.ActionKind]int{plan.MigrateVM: 4, plan.ResumeVM: 1}))
	p, err := New(ps, nil).Solve(context.Background(), domain.NewInstance(mo, cstrs, nil))
	require.NoError(t, err)
	res := assertApplicable(t, p)
	assert.Empty(t, constraint.Violated(res, cstrs...))

	var migrate, resume plan.Action
	for _, a := range p.Actions() {
		switch a.Kind {
		case plan.MigrateVM:
			migrate = a
		case plan.ResumeVM:
			resume = a
		}
	}
	require.Equal(t, vm1, migrate.VM)
	require.Equal(t, vm2, resume.VM)
	assert.Equal(t, nodes[0], resume.Dst)
	assert.GreaterOrEqual(t, resume.Start, migrate.End)
}

func TestScheduler_GatherAndPrecedence(t *testing.T) {
	mo := domain.NewModel()
	nodes := onlineNodes(t, mo, 2)
	m := mo.Mapping()
	vm1, vm2 := mo.NewVM(), mo.NewVM()
	require.True(t, m.AddRunningVM(vm1, nodes[1]))
	require.True(t, m.AddReadyVM(vm2))

	cstrs := []domain.SatConstraint{
		constraint.NewRunning(vm2),
		constraint.NewGather(vm1, vm2),
		constraint.NewRoot(vm1),
		constraint.NewPrecedence(vm1, vm2),
	}
	p, err := New(DefaultParameters(), nil).Solve(context.Background(), domain.NewInstance(mo, cstrs, nil))
	require.NoError(t, err)
	res := assertApplicable(t, p)

	loc, _ := res.Mapping().VMLocation(vm2)
	assert.Equal(t, nodes[1], loc)
}

func TestScheduler_MaxOnline(t *testing.T) {
	mo := domain.NewModel()
	nodes := onlineNodes(t, mo, 3)

	cstrs := []domain.SatConstraint{constraint.NewMaxOnline(nodes, 1, false)}
	p, err := New(DefaultParameters(), nil).Solve(context.Background(), domain.NewInstance(mo, cstrs, nil))
	require.NoError(t, err)
	res := assertApplicable(t, p)
	assert.Len(t, res.Mapping().OnlineNodes(), 1)
	assert.Equal(t, 2, p.Size())
}

func TestScheduler_ContinuousMaxOnline(t *testing.T) {
	tests := []struct {
		name       string
		continuous bool
		want       []plan.Action
	}{
		{
			name: "overlapping power cycles",
			want: []plan.Action{
				plan.NewBootNode(1, 0, 2),
				plan.NewShutdownNode(0, 0, 3),
			},
		},
		{
			name:       "boot waits for the shutdown",
			continuous: true,
			want: []plan.Action{
				plan.NewShutdownNode(0, 0, 3),
				plan.NewBootNode(1, 3, 5),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mo := domain.NewModel()
			on, off := mo.NewNode(), mo.NewNode()
			require.True(t, mo.Mapping().AddOnlineNode(on))
			require.True(t, mo.Mapping().AddOfflineNode(off))

			cstrs := []domain.SatConstraint{
				constraint.NewOffline(on),
				constraint.NewOnline(off),
				constraint.NewMaxOnline([]domain.Node{on, off}, 1, tt.continuous),
			}
			ps := params(durations(t, map[plan.ActionKind]int{plan.BootNode: 2, plan.ShutdownNode: 3}))
			p, err := New(ps, zaptest.NewLogger(t)).Solve(context.Background(), domain.NewInstance(mo, cstrs, nil))
			require.NoError(t, err)
			res := assertApplicable(t, p)

			assert.Equal(t, tt.want, p.Actions())
			assert.Equal(t, []domain.Node{off}, res.Mapping().OnlineNodes())
		})
	}
}

func TestScheduler_ContinuousMaxOnlineTooShort(t *testing.T) {
	for _, continuous := range []bool{false, true} {
		mo := domain.NewModel()
		on, off := mo.NewNode(), mo.NewNode()
		require.True(t, mo.Mapping().AddOnlineNode(on))
		require.True(t, mo.Mapping().AddOfflineNode(off))

		// Running the power cycles one after the other takes 5 units.
		ps := params(durations(t, map[plan.ActionKind]int{plan.BootNode: 2, plan.ShutdownNode: 3}))
		ps.MaxEnd = 4
		cstrs := []domain.SatConstraint{
			constraint.NewOffline(on),
			constraint.NewOnline(off),
			constraint.NewMaxOnline([]domain.Node{on, off}, 1, continuous),
		}
		p, err := New(ps, nil).Solve(context.Background(), domain.NewInstance(mo, cstrs, nil))
		require.NoError(t, err)
		assert.Equal(t, !continuous, p != nil, "continuous=%t", continuous)
	}
}

// actionKinds returns the kinds of the actions of p, in plan order.
func actionKinds(p *plan.ReconfigurationPlan) []plan.ActionKind {
	var out []plan.ActionKind
	for _, a := range p.Actions() {
		out = append(out, a.Kind)
	}
	return out
}

func TestScheduler_ActionKinds(t *testing.T) {
	// Every case starts from node#0 and node#1 online, node#2 offline,
	// vm#0 running on node#0, vm#1 sleeping on node#0 and vm#2 ready.
	const forged = domain.VM(42)
	tests := []struct {
		name  string
		cstrs []domain.SatConstraint
		want  []plan.ActionKind
		check func(t *testing.T, m domain.Mapping)
	}{
		{
			name:  "boot",
			cstrs: []domain.SatConstraint{constraint.NewRunning(2)},
			want:  []plan.ActionKind{plan.BootVM},
			check: func(t *testing.T, m domain.Mapping) { assert.True(t, m.IsRunning(2)) },
		},
		{
			name:  "shutdown",
			cstrs: []domain.SatConstraint{constraint.NewReady(0)},
			want:  []plan.ActionKind{plan.ShutdownVM},
			check: func(t *testing.T, m domain.Mapping) { assert.True(t, m.IsReady(0)) },
		},
		{
			name:  "suspend",
			cstrs: []domain.SatConstraint{constraint.NewSleeping(0)},
			want:  []plan.ActionKind{plan.SuspendVM},
			check: func(t *testing.T, m domain.Mapping) {
				assert.Equal(t, []domain.VM{0, 1}, m.SleepingVMs())
				loc, _ := m.VMLocation(0)
				assert.Equal(t, domain.Node(0), loc)
			},
		},
		{
			name:  "resume",
			cstrs: []domain.SatConstraint{constraint.NewRunning(1)},
			want:  []plan.ActionKind{plan.ResumeVM},
			check: func(t *testing.T, m domain.Mapping) { assert.True(t, m.IsRunning(1)) },
		},
		{
			name: "migrate",
			cstrs: []domain.SatConstraint{
				constraint.NewRunning(0),
				constraint.NewBan([]domain.VM{0}, []domain.Node{0}),
			},
			want: []plan.ActionKind{plan.MigrateVM},
			check: func(t *testing.T, m domain.Mapping) {
				loc, _ := m.VMLocation(0)
				assert.Equal(t, domain.Node(1), loc)
			},
		},
		{
			name:  "kill running",
			cstrs: []domain.SatConstraint{constraint.NewKilled(0)},
			want:  []plan.ActionKind{plan.KillVM},
			check: func(t *testing.T, m domain.Mapping) { assert.False(t, m.ContainsVM(0)) },
		},
		{
			name:  "kill sleeping",
			cstrs: []domain.SatConstraint{constraint.NewKilled(1)},
			want:  []plan.ActionKind{plan.KillVM},
			check: func(t *testing.T, m domain.Mapping) { assert.False(t, m.ContainsVM(1)) },
		},
		{
			name:  "kill ready",
			cstrs: []domain.SatConstraint{constraint.NewKilled(2)},
			want:  []plan.ActionKind{plan.KillVM},
			check: func(t *testing.T, m domain.Mapping) { assert.False(t, m.ContainsVM(2)) },
		},
		{
			name:  "forge",
			cstrs: []domain.SatConstraint{constraint.NewReady(forged)},
			want:  []plan.ActionKind{plan.ForgeVM},
			check: func(t *testing.T, m domain.Mapping) { assert.True(t, m.IsReady(forged)) },
		},
		{
			name:  "boot node",
			cstrs: []domain.SatConstraint{constraint.NewOnline(2)},
			want:  []plan.ActionKind{plan.BootNode},
			check: func(t *testing.T, m domain.Mapping) { assert.True(t, m.IsOnline(2)) },
		},
		{
			name:  "shutdown node",
			cstrs: []domain.SatConstraint{constraint.NewOffline(1)},
			want:  []plan.ActionKind{plan.ShutdownNode},
			check: func(t *testing.T, m domain.Mapping) { assert.True(t, m.IsOffline(1)) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mo := domain.NewModel()
			nodes := onlineNodes(t, mo, 2)
			m := mo.Mapping()
			require.True(t, m.AddOfflineNode(mo.NewNode()))
			require.True(t, m.AddRunningVM(mo.NewVM(), nodes[0]))
			require.True(t, m.AddSleepingVM(mo.NewVM(), nodes[0]))
			require.True(t, m.AddReadyVM(mo.NewVM()))

			p, err := New(DefaultParameters(), zaptest.NewLogger(t)).Solve(context.Background(), domain.NewInstance(mo, tt.cstrs, nil))
			require.NoError(t, err)
			res := assertApplicable(t, p)

			assert.Equal(t, tt.want, actionKinds(p))
			assert.Equal(t, 1, p.Duration())
			tt.check(t, res.Mapping())
		})
	}
}

func TestScheduler_SeveralDepartures(t *testing.T) {
	tests := []struct {
		name    string
		running int
		cstrs   func(vms []domain.VM, nodes []domain.Node) []domain.SatConstraint
		want    map[plan.ActionKind]int
	}{
		{
			name:    "two shutdowns on one node",
			running: 2,
			cstrs: func(vms []domain.VM, _ []domain.Node) []domain.SatConstraint {
				return []domain.SatConstraint{constraint.NewReady(vms...)}
			},
			want: map[plan.ActionKind]int{plan.ShutdownVM: 2},
		},
		{
			name:    "three shutdowns out of four",
			running: 4,
			cstrs: func(vms []domain.VM, _ []domain.Node) []domain.SatConstraint {
				return []domain.SatConstraint{constraint.NewReady(vms[:3]...), constraint.NewRunning(vms[3])}
			},
			want: map[plan.ActionKind]int{plan.ShutdownVM: 3},
		},
		{
			name:    "node evacuated by every kind of departure",
			running: 3,
			cstrs: func(vms []domain.VM, nodes []domain.Node) []domain.SatConstraint {
				return []domain.SatConstraint{
					constraint.NewReady(vms[0]),
					constraint.NewKilled(vms[1]),
					constraint.NewRunning(vms[2]),
					constraint.NewOffline(nodes[0]),
				}
			},
			want: map[plan.ActionKind]int{plan.ShutdownVM: 1, plan.KillVM: 1, plan.MigrateVM: 1, plan.ShutdownNode: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mo := domain.NewModel()
			nodes := onlineNodes(t, mo, 2)
			vms := make([]domain.VM, tt.running)
			for i := range vms {
				vms[i] = mo.NewVM()
				require.True(t, mo.Mapping().AddRunningVM(vms[i], nodes[0]))
			}

			cstrs := tt.cstrs(vms, nodes)
			p, err := New(DefaultParameters(), zaptest.NewLogger(t)).Solve(context.Background(), domain.NewInstance(mo, cstrs, nil))
			require.NoError(t, err)
			res := assertApplicable(t, p)

			got := make(map[plan.ActionKind]int)
			for _, k := range actionKinds(p) {
				got[k]++
			}
			assert.Equal(t, tt.want, got)
			assert.Empty(t, constraint.Violated(res, cstrs...))
		})
	}
}

func TestScheduler_InstantActions(t *testing.T) {
	zero := make(map[plan.ActionKind]int)
	for _, k := range plan.ActionKinds() {
		zero[k] = 0
	}

	tests := []struct {
		name  string
		cstrs func(vm domain.VM, up, down domain.Node) []domain.SatConstraint
		state domain.VMState
		want  []plan.ActionKind
	}{
		{
			name: "migrate off a halting node",
			cstrs: func(vm domain.VM, up, _ domain.Node) []domain.SatConstraint {
				return []domain.SatConstraint{constraint.NewRunning(vm), constraint.NewOffline(up)}
			},
			state: domain.VMStateRunning,
			want:  []plan.ActionKind{plan.BootNode, plan.MigrateVM, plan.ShutdownNode},
		},
		{
			name: "kill on a halting node",
			cstrs: func(vm domain.VM, up, _ domain.Node) []domain.SatConstraint {
				return []domain.SatConstraint{constraint.NewKilled(vm), constraint.NewOffline(up)}
			},
			state: domain.VMStateUnknown,
			want:  []plan.ActionKind{plan.KillVM, plan.ShutdownNode},
		},
		{
			name: "migrate onto a booting node",
			cstrs: func(vm domain.VM, up, down domain.Node) []domain.SatConstraint {
				return []domain.SatConstraint{
					constraint.NewRunning(vm),
					constraint.NewOnline(down),
					constraint.NewFence([]domain.VM{vm}, []domain.Node{down}),
				}
			},
			state: domain.VMStateRunning,
			want:  []plan.ActionKind{plan.BootNode, plan.MigrateVM},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mo := domain.NewModel()
			m := mo.Mapping()
			up, down := mo.NewNode(), mo.NewNode()
			require.True(t, m.AddOnlineNode(up))
			require.True(t, m.AddOfflineNode(down))
			vm := mo.NewVM()
			require.True(t, m.AddRunningVM(vm, up))

			p, err := New(params(durations(t, zero)), zaptest.NewLogger(t)).
				Solve(context.Background(), domain.NewInstance(mo, tt.cstrs(vm, up, down), nil))
			require.NoError(t, err)
			res := assertApplicable(t, p)

			assert.Equal(t, tt.want, actionKinds(p))
			assert.Zero(t, p.Duration())
			assert.Equal(t, tt.state, res.Mapping().VMState(vm))
		})
	}
}

func TestScheduler_MinMTTR(t *testing.T) {
	mo := domain.NewModel()
	onlineNodes(t, mo, 2)
	vm1, vm2 := mo.NewVM(), mo.NewVM()
	require.True(t, mo.Mapping().AddReadyVM(vm1))
	require.True(t, mo.Mapping().AddReadyVM(vm2))

	ps := params(durations(t, map[plan.ActionKind]int{plan.BootVM: 3}))
	ps.Optimize = true
	inst := domain.NewInstance(mo, []domain.SatConstraint{constraint.NewRunning(vm1, vm2)}, constraint.NewMinMTTR())
	p, err := New(ps, nil).Solve(context.Background(), inst)
	require.NoError(t, err)
	require.NotNil(t, p)
	for _, a := range p.Actions() {
		assert.Zero(t, a.Start, a.String())
	}
	assert.Equal(t, 3, p.Duration())
}

func TestScheduler_RepairKeepsSatisfiedVMs(t *testing.T) {
	mo := domain.NewModel()
	nodes := onlineNodes(t, mo, 2)
	m := mo.Mapping()
	vm1, vm2 := mo.NewVM(), mo.NewVM()
	require.True(t, m.AddRunningVM(vm1, nodes[0]))
	require.True(t, m.AddRunningVM(vm2, nodes[0]))

	cstrs := []domain.SatConstraint{
		constraint.NewBan([]domain.VM{vm2}, []domain.Node{nodes[0]}),
	}
	ps := DefaultParameters()
	ps.Repair = true

	p, err := New(ps, nil).Solve(context.Background(), domain.NewInstance(mo, cstrs, nil))
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, 1, p.Size())
	assert.Equal(t, plan.NewMigrateVM(vm2, nodes[0], nodes[1], 0, 1), p.Actions()[0])
}

func TestScheduler_ResourceCapacity(t *testing.T) {
	mo := domain.NewModel()
	nodes := onlineNodes(t, mo, 2)
	m := mo.Mapping()
	vm1, vm2 := mo.NewVM(), mo.NewVM()
	require.True(t, m.AddRunningVM(vm1, nodes[0]))
	require.True(t, m.AddReadyVM(vm2))
	require.True(t, mo.AttachView(domain.NewShareableResource("cpu", 4, 3)))

	inst := domain.NewInstance(mo, []domain.SatConstraint{constraint.NewRunning(vm2)}, nil)
	p, err := New(DefaultParameters(), nil).Solve(context.Background(), inst)
	require.NoError(t, err)
	res := assertApplicable(t, p)

	l1, _ := res.Mapping().VMLocation(vm1)
	l2, _ := res.Mapping().VMLocation(vm2)
	assert.NotEqual(t, l1, l2)
}

func TestScheduler_UnsupportedConstraint(t *testing.T) {
	mo := domain.NewModel()
	onlineNodes(t, mo, 1)
	inst := domain.NewInstance(mo, []domain.SatConstraint{unknownConstraint{}}, nil)

	_, err := New(DefaultParameters(), nil).Solve(context.Background(), inst)
	assert.ErrorIs(t, err, domain.ErrUnsupportedConstraint)
}

type unknownConstraint struct{}

func (unknownConstraint) Kind() domain.ConstraintKind { return "unknown" }
func (unknownConstraint) InvolvedVMs() []domain.VM { return nil }
func (unknownConstraint) InvolvedNodes() []domain.Node { return nil }
func (unknownConstraint) IsContinuous() bool { return false }
func (unknownConstraint) IsSatisfied(*domain.Model) bool { return true }
func (unknownConstraint) String() string { return "unknown" }

// =============================================================================
// Durations
// =============================================================================

func TestDurationEvaluators(t *testing.T) {
	mo := domain.NewModel()
	nodes := onlineNodes(t, mo, 1)
	vm := mo.NewVM()
	require.True(t, mo.AttachView(domain.NewShareableResource("mem", 64, 2).SetConsumption(8, vm)))

	evs := NewDurationEvaluators()
	for _, k := range plan.ActionKinds() {
		assert.True(t, evs.IsRegistered(k), k.String())
	}

	assert.True(t, evs.Register(plan.MigrateVM, LinearToResourceDuration{Resource: "mem", A: 2, B: 1}))
	d, err := evs.Evaluate(mo, plan.MigrateVM, vm)
	require.NoError(t, err)
	assert.Equal(t, 17, d)

	evs.Register(plan.BootNode, LinearToResourceDuration{Resource: "mem", A: 1})
	d, err = evs.Evaluate(mo, plan.BootNode, nodes[0])
	require.NoError(t, err)
	assert.Equal(t, 64, d)

	evs.Register(plan.ShutdownVM, LinearToResourceDuration{Resource: "disk", A: 1})
	_, err = evs.Evaluate(mo, plan.ShutdownVM, vm)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	evs.Register(plan.KillVM, ConstantDuration{Duration: -1})
	_, err = evs.Evaluate(mo, plan.KillVM, vm)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	assert.True(t, evs.Unregister(plan.SuspendVM))
	assert.False(t, evs.Unregister(plan.SuspendVM))
	_, ok := evs.Evaluator(plan.SuspendVM)
	assert.False(t, ok)
	_, err = evs.Evaluate(mo, plan.SuspendVM, vm)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInferVMTransition(t *testing.T) {
	mo := domain.NewModel()
	nodes := onlineNodes(t, mo, 1)
	m := mo.Mapping()
	running, sleeping, ready := mo.NewVM(), mo.NewVM(), mo.NewVM()
	require.True(t, m.AddRunningVM(running, nodes[0]))
	require.True(t, m.AddSleepingVM(sleeping, nodes[0]))
	require.True(t, m.AddReadyVM(ready))
	unknown := domain.VM(99)

	tests := []struct {
		name       string
		vm         domain.VM
		target     domain.VMState
		manageable bool
		want       VMTransitionKind
		wantErr    bool
	}{
		{"boot", ready, domain.VMStateRunning, true, BootVMTransition, false},
		{"relocate", running, domain.VMStateRunning, true, RelocateVMTransition, false},
		{"stay running", running, domain.VMStateRunning, false, StayRunningVMTransition, false},
		{"keep running", running, domain.VMStateUnknown, true, RelocateVMTransition, false},
		{"resume", sleeping, domain.VMStateRunning, true, ResumeVMTransition, false},
		{"shutdown", running, domain.VMStateReady, true, ShutdownVMTransition, false},
		{"forge", unknown, domain.VMStateReady, true, ForgeVMTransition, false},
		{"suspend", running, domain.VMStateSleeping, true, SuspendVMTransition, false},
		{"stay sleeping", sleeping, domain.VMStateUnknown, true, StayAwayVMTransition, false},
		{"kill", sleeping, domain.VMStateKilled, true, KillVMTransition, false},
		{"sleeping to ready", sleeping, domain.VMStateReady, true, 0, true},
		{"ready to sleeping", ready, domain.VMStateSleeping, true, 0, true},
		{"kill unknown", unknown, domain.VMStateKilled, true, 0, true},
		{"unknown without target", unknown, domain.VMStateUnknown, true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := inferVMTransition(m, tt.vm, tt.target, tt.manageable)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrUnreachableState)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
