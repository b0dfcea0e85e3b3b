package scheduler

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/limiquantix/reconf/internal/domain"
	"github.com/limiquantix/reconf/internal/plan"
	"github.com/limiquantix/reconf/internal/solver"
)

func unreachable(vm domain.VM, from, to domain.VMState) error {
	if to == domain.VMStateUnknown {
		return fmt.Errorf("%w: no next state can be inferred for %s in state %s", domain.ErrUnreachableState, vm, from)
	}
	return fmt.Errorf("%w: %s cannot go from %s to %s", domain.ErrUnreachableState, vm, from, to)
}

// ReconfigurationProblemBuilder collects the inputs of a ReconfigurationProblem.
type ReconfigurationProblemBuilder struct {
	model      *domain.Model
	ready      []domain.VM
	running    []domain.VM
	sleeping   []domain.VM
	killed     []domain.VM
	manageable []domain.VM
	hasManage  bool
	online     []domain.Node
	offline    []domain.Node
	params     Parameters
	engine     solver.Engine
	logger     *zap.Logger
}

// NewReconfigurationProblemBuilder starts a builder over the source model mo.
func NewReconfigurationProblemBuilder(mo *domain.Model) *ReconfigurationProblemBuilder {
	return &ReconfigurationProblemBuilder{model: mo, params: DefaultParameters(), logger: zap.NewNop()}
}

// WithNextVMStates sets the requested next state of VMs. VMs in no set
// keep their current state.
func (b *ReconfigurationProblemBuilder) WithNextVMStates(ready, running, sleeping, killed []domain.VM) *ReconfigurationProblemBuilder {
	b.ready, b.running, b.sleeping, b.killed = ready, running, sleeping, killed
	return b
}

// WithManageableVMs restricts the running VMs allowed to change host.
// By default every running VM is manageable.
func (b *ReconfigurationProblemBuilder) WithManageableVMs(vms []domain.VM) *ReconfigurationProblemBuilder {
	b.manageable, b.hasManage = vms, true
	return b
}

// WithNextNodeStates sets the requested next state of nodes. Other nodes
// may be switched by the solver.
func (b *ReconfigurationProblemBuilder) WithNextNodeStates(online, offline []domain.Node) *ReconfigurationProblemBuilder {
	b.online, b.offline = online, offline
	return b
}

// WithParameters sets the parameters.
func (b *ReconfigurationProblemBuilder) WithParameters(ps Parameters) *ReconfigurationProblemBuilder {
	if ps.Durations == nil {
		ps.Durations = NewDurationEvaluators()
	}
	b.params = ps
	return b
}

// WithLogger sets the logger.
func (b *ReconfigurationProblemBuilder) WithLogger(logger *zap.Logger) *ReconfigurationProblemBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithEngine sets the engine. The reference solver.Model is used by default.
func (b *ReconfigurationProblemBuilder) WithEngine(e solver.Engine) *ReconfigurationProblemBuilder {
	b.engine = e
	return b
}

// vmTargets merges the requested VM states, rejecting VMs requested twice.
func (b *ReconfigurationProblemBuilder) vmTargets() (map[domain.VM]domain.VMState, error) {
	targets := make(map[domain.VM]domain.VMState)
	sets := []struct {
		state domain.VMState
		vms   []domain.VM
	}{
		{domain.VMStateRunning, b.running},
		{domain.VMStateReady, b.ready},
		{domain.VMStateSleeping, b.sleeping},
		{domain.VMStateKilled, b.killed},
	}
	for _, set := range sets {
		for _, vm := range set.vms {
			if prev, ok := targets[vm]; ok && prev != set.state {
				return nil, fmt.Errorf("%w: %s requested %s and %s", domain.ErrAmbiguousState, vm, prev, set.state)
			}
			targets[vm] = set.state
		}
	}
	return targets, nil
}

func (b *ReconfigurationProblemBuilder) nodeTargets(m domain.Mapping) (map[domain.Node]domain.NodeState, error) {
	targets := make(map[domain.Node]domain.NodeState)
	for _, n := range b.online {
		targets[n] = domain.NodeStateOnline
	}
	for _, n := range b.offline {
		if targets[n] == domain.NodeStateOnline {
			return nil, fmt.Errorf("%w: %s requested online and offline", domain.ErrAmbiguousState, n)
		}
		targets[n] = domain.NodeStateOffline
	}
	for n := range targets {
		if !m.ContainsNode(n) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, n)
		}
	}
	return targets, nil
}

// Build validates the inputs, then creates the variables and the
// scheduling constraints. Every input error is reported before the engine
// is touched.
func (b *ReconfigurationProblemBuilder) Build() (*ReconfigurationProblem, error) {
	m := b.model.Mapping()
	vmTargets, err := b.vmTargets()
	if err != nil {
		return nil, err
	}
	nodeTargets, err := b.nodeTargets(m)
	if err != nil {
		return nil, err
	}

	vms := m.AllVMs()
	for vm := range vmTargets {
		if !m.ContainsVM(vm) {
			vms = append(vms, vm)
		}
	}
	slices.Sort(vms)

	var manageable map[domain.VM]struct{}
	if b.hasManage {
		manageable = make(map[domain.VM]struct{}, len(b.manageable))
		for _, vm := range b.manageable {
			manageable[vm] = struct{}{}
		}
	}
	kinds := make([]VMTransitionKind, len(vms))
	for i, vm := range vms {
		_, ok := manageable[vm]
		kinds[i], err = inferVMTransition(m, vm, vmTargets[vm], manageable == nil || ok)
		if err != nil {
			return nil, err
		}
	}

	rp := &ReconfigurationProblem{
		source:  b.model,
		params:  b.params,
		logger:  b.logger.With(zap.String("component", "reconfiguration-problem")),
		nodes:   m.AllNodes(),
		nodeIdx: make(map[domain.Node]int),
		vms:     vms,
		vmIdx:   make(map[domain.VM]int, len(vms)),
	}
	for i, n := range rp.nodes {
		rp.nodeIdx[n] = i
	}
	for i, vm := range vms {
		rp.vmIdx[vm] = i
	}
	if err := rp.evaluateDurations(kinds); err != nil {
		return nil, err
	}

	rp.engine = b.engine
	if rp.engine == nil {
		rp.engine = solver.NewModel(b.logger)
	}
	rp.zero = rp.engine.Constant(0)
	rp.end = rp.engine.NewIntVar("end", 0, rp.horizon)

	for i, n := range rp.nodes {
		rp.makeNodeTransition(n, rp.nodeDurations[i], nodeTargets[n])
	}
	for i, vm := range vms {
		rp.makeVMTransition(vm, kinds[i], rp.vmDurations[i])
	}
	rp.postHostingWindows()
	rp.postVMCounts()
	rp.postResourceCapacities()
	rp.postEnd()
	rp.setSearchHeuristic()
	if rp.err != nil {
		return nil, fmt.Errorf("failed to build reconfiguration problem: %w", rp.err)
	}

	rp.logger.Debug("Reconfiguration problem built",
		zap.Int("nodes", len(rp.nodes)),
		zap.Int("vms", len(rp.vms)),
		zap.Int("horizon", rp.horizon),
		zap.Int("variables", rp.engine.NbVars()),
	)
	return rp, nil
}

// ReconfigurationProblem is the constraint model of a reconfiguration.
type ReconfigurationProblem struct {
	source *domain.Model
	engine solver.Engine
	params Parameters
	logger *zap.Logger
	err    error

	nodes   []domain.Node
	nodeIdx map[domain.Node]int
	vms     []domain.VM
	vmIdx   map[domain.VM]int

	nodeDurations []int
	vmDurations   []int
	horizon       int

	nodeTransitions []*NodeTransition
	vmTransitions   []*VMTransition
	vmCounts        []*solver.IntVar

	zero *solver.IntVar
	end  *solver.IntVar
}

// Engine returns the engine holding the model.
func (rp *ReconfigurationProblem) Engine() solver.Engine { return rp.engine }

// SourceModel returns the source model.
func (rp *ReconfigurationProblem) SourceModel() *domain.Model { return rp.source }

// End returns the variable holding the plan duration.
func (rp *ReconfigurationProblem) End() *solver.IntVar { return rp.end }

// Horizon returns the upper bound of every time variable.
func (rp *ReconfigurationProblem) Horizon() int { return rp.horizon }

// Nodes returns the nodes in index order.
func (rp *ReconfigurationProblem) Nodes() []domain.Node { return slices.Clone(rp.nodes) }

// VMs returns the VMs in index order.
func (rp *ReconfigurationProblem) VMs() []domain.VM { return slices.Clone(rp.vms) }

// NodeIndex returns the value representing n in host variables.
func (rp *ReconfigurationProblem) NodeIndex(n domain.Node) (int, bool) {
	i, ok := rp.nodeIdx[n]
	return i, ok
}

// NodeTransition returns the action model of n.
func (rp *ReconfigurationProblem) NodeTransition(n domain.Node) (*NodeTransition, bool) {
	i, ok := rp.nodeIdx[n]
	if !ok {
		return nil, false
	}
	return rp.nodeTransitions[i], true
}

// VMTransition returns the action model of vm.
func (rp *ReconfigurationProblem) VMTransition(vm domain.VM) (*VMTransition, bool) {
	i, ok := rp.vmIdx[vm]
	if !ok {
		return nil, false
	}
	return rp.vmTransitions[i], true
}

// NodeTransitions returns every node action model in index order.
func (rp *ReconfigurationProblem) NodeTransitions() []*NodeTransition {
	return slices.Clone(rp.nodeTransitions)
}

// VMTransitions returns every VM action model in index order.
func (rp *ReconfigurationProblem) VMTransitions() []*VMTransition {
	return slices.Clone(rp.vmTransitions)
}

// VMCount returns the variable counting the VMs running on n at the end.
func (rp *ReconfigurationProblem) VMCount(n domain.Node) (*solver.IntVar, bool) {
	i, ok := rp.nodeIdx[n]
	if !ok {
		return nil, false
	}
	return rp.vmCounts[i], true
}

func (rp *ReconfigurationProblem) futureVMs(state domain.VMState) []domain.VM {
	var out []domain.VM
	for _, t := range rp.vmTransitions {
		if t.To == state {
			out = append(out, t.VM)
		}
	}
	return out
}

// FutureRunningVMs returns the VMs running at the end of the plan.
func (rp *ReconfigurationProblem) FutureRunningVMs() []domain.VM {
	return rp.futureVMs(domain.VMStateRunning)
}

// FutureReadyVMs returns the VMs ready at the end of the plan.
func (rp *ReconfigurationProblem) FutureReadyVMs() []domain.VM {
	return rp.futureVMs(domain.VMStateReady)
}

// FutureSleepingVMs returns the VMs sleeping at the end of the plan.
func (rp *ReconfigurationProblem) FutureSleepingVMs() []domain.VM {
	return rp.futureVMs(domain.VMStateSleeping)
}

// FutureKilledVMs returns the VMs removed by the plan.
func (rp *ReconfigurationProblem) FutureKilledVMs() []domain.VM {
	return rp.futureVMs(domain.VMStateKilled)
}

// ManageableVMs returns the VMs whose placement may change.
func (rp *ReconfigurationProblem) ManageableVMs() []domain.VM {
	var out []domain.VM
	for _, t := range rp.vmTransitions {
		switch t.Kind {
		case StayRunningVMTransition, StayAwayVMTransition:
		default:
			out = append(out, t.VM)
		}
	}
	return out
}

// Post adds a propagator. The first failure is kept and reported by Build.
func (rp *ReconfigurationProblem) Post(p solver.Propagator) {
	if rp.err != nil {
		return
	}
	if err := rp.engine.Post(p); err != nil {
		rp.err = err
	}
}

// =============================================================================
// Durations
// =============================================================================

func (rp *ReconfigurationProblem) evaluateDurations(kinds []VMTransitionKind) error {
	m := rp.source.Mapping()
	evs := rp.params.Durations
	total := 0

	rp.nodeDurations = make([]int, len(rp.nodes))
	for i, n := range rp.nodes {
		kind := plan.ShutdownNode
		if m.IsOffline(n) {
			kind = plan.BootNode
		}
		d, err := evs.Evaluate(rp.source, kind, n)
		if err != nil {
			return err
		}
		rp.nodeDurations[i] = d
		total += d
	}
	rp.vmDurations = make([]int, len(rp.vms))
	for i, vm := range rp.vms {
		kind := kinds[i].actionKind()
		if kind == 0 {
			continue
		}
		d, err := evs.Evaluate(rp.source, kind, vm)
		if err != nil {
			return err
		}
		rp.vmDurations[i] = d
		total += d
	}

	rp.horizon = total
	if rp.params.MaxEnd > 0 {
		rp.horizon = rp.params.MaxEnd
		clip := func(d []int, what func(i int) string) {
			for i := range d {
				if d[i] > rp.horizon {
					rp.logger.Warn("Clipping action duration to the plan horizon",
						zap.String("subject", what(i)),
						zap.Int("duration", d[i]),
						zap.Int("horizon", rp.horizon),
					)
					d[i] = rp.horizon
				}
			}
		}
		clip(rp.nodeDurations, func(i int) string { return rp.nodes[i].String() })
		clip(rp.vmDurations, func(i int) string { return rp.vms[i].String() })
	}
	return nil
}

// =============================================================================
// Action models
// =============================================================================

// timed creates start, end and duration variables for an action of
// duration d that ends before the plan end.
func (rp *ReconfigurationProblem) timed(name string, d int) (start, end, dur *solver.IntVar) {
	e := rp.engine
	start = e.NewIntVar(name+".start", 0, rp.horizon)
	end = e.NewIntVar(name+".end", 0, rp.horizon)
	dur = e.Constant(d)
	rp.Post(solver.Equal(start, end, d))
	rp.Post(solver.LessOrEqual(end, rp.end, 0))
	return start, end, dur
}

func startsAtZero(v *solver.IntVar) *solver.Linear {
	return solver.NewLinear(solver.EQ, 0, solver.Term{Coef: 1, Var: v})
}

func (rp *ReconfigurationProblem) makeNodeTransition(n domain.Node, d int, target domain.NodeState) {
	e := rp.engine
	name := n.String()
	t := &NodeTransition{Node: n}
	t.State = e.NewIntVar(name+".state", 0, 1)
	t.Start = e.NewIntVar(name+".start", 0, rp.horizon)
	t.End = e.NewIntVar(name+".end", 0, rp.horizon)
	t.Duration = e.NewEnumVar(name+".duration", []int{0, d})
	rp.Post(solver.NewLinear(solver.EQ, 0,
		solver.Term{Coef: 1, Var: t.Start}, solver.Term{Coef: 1, Var: t.Duration}, solver.Term{Coef: -1, Var: t.End}))
	rp.Post(solver.LessOrEqual(t.End, rp.end, 0))

	if rp.source.Mapping().IsOffline(n) {
		t.Kind = BootableNode
		rp.Post(solver.NewLinear(solver.EQ, 0, solver.Term{Coef: 1, Var: t.Duration}, solver.Term{Coef: -d, Var: t.State}))
		rp.Post(solver.NewConditional(t.State, 0, startsAtZero(t.Start)))
		t.HostingStart = t.End
		t.HostingEnd = rp.end
		e.SetHint(t.State, 0)
	} else {
		t.Kind = ShutdownableNode
		rp.Post(solver.NewLinear(solver.EQ, d, solver.Term{Coef: 1, Var: t.Duration}, solver.Term{Coef: d, Var: t.State}))
		rp.Post(solver.NewConditional(t.State, 1, startsAtZero(t.Start)))
		t.HostingStart = rp.zero
		t.HostingEnd = e.NewIntVar(name+".hostingEnd", 0, rp.horizon)
		rp.Post(solver.NewConditional(t.State, 0, solver.Equal(t.HostingEnd, t.Start, 0)))
		rp.Post(solver.NewConditional(t.State, 1, solver.Equal(t.HostingEnd, rp.end, 0)))
		e.SetHint(t.State, 1)
	}
	switch target {
	case domain.NodeStateOnline:
		rp.Post(solver.NewMember(t.State, 1))
	case domain.NodeStateOffline:
		rp.Post(solver.NewMember(t.State, 0))
	}
	rp.nodeTransitions = append(rp.nodeTransitions, t)
}

// newDSlice creates a demanding slice starting at start on any node.
func (rp *ReconfigurationProblem) newDSlice(vm domain.VM, start *solver.IntVar) *Slice {
	return &Slice{
		VM:    vm,
		Start: start,
		End:   rp.end,
		Host:  rp.engine.NewIntVar(vm.String()+".host", 0, len(rp.nodes)-1),
	}
}

// fixedSlice creates a slice on the current host of the VM.
func (rp *ReconfigurationProblem) fixedSlice(vm domain.VM, src domain.Node, start, end *solver.IntVar) *Slice {
	return &Slice{VM: vm, Start: start, End: end, Host: rp.engine.Constant(rp.nodeIdx[src])}
}

func (rp *ReconfigurationProblem) makeVMTransition(vm domain.VM, kind VMTransitionKind, d int) {
	e := rp.engine
	m := rp.source.Mapping()
	name := vm.String()
	t := &VMTransition{Kind: kind, VM: vm, From: m.VMState(vm), Src: domain.NoNode}
	if src, ok := m.VMLocation(vm); ok {
		t.Src = src
	}
	stay := func() {
		t.Start, t.End, t.Duration = rp.zero, rp.zero, rp.zero
	}

	switch kind {
	case BootVMTransition:
		t.To, t.State = domain.VMStateRunning, e.Constant(1)
		t.Start, t.End, t.Duration = rp.timed(name, d)
		t.DSlice = rp.newDSlice(vm, t.Start)
	case ShutdownVMTransition:
		t.To, t.State = domain.VMStateReady, e.Constant(0)
		t.Start, t.End, t.Duration = rp.timed(name, d)
		t.CSlice = rp.fixedSlice(vm, t.Src, rp.zero, t.End)
	case ResumeVMTransition:
		t.To, t.State = domain.VMStateRunning, e.Constant(1)
		t.Start, t.End, t.Duration = rp.timed(name, d)
		t.DSlice = rp.newDSlice(vm, t.Start)
		e.SetHint(t.DSlice.Host, rp.nodeIdx[t.Src])
		rp.Post(solver.LessOrEqual(t.End, rp.nodeTransitions[rp.nodeIdx[t.Src]].HostingEnd, 0))
	case SuspendVMTransition:
		t.To, t.State = domain.VMStateSleeping, e.Constant(0)
		t.Start, t.End, t.Duration = rp.timed(name, d)
		t.CSlice = rp.fixedSlice(vm, t.Src, rp.zero, t.End)
		rp.Post(solver.NewMember(rp.nodeTransitions[rp.nodeIdx[t.Src]].State, 1))
	case RelocateVMTransition:
		t.To, t.State = domain.VMStateRunning, e.Constant(1)
		t.Start = e.NewIntVar(name+".start", 0, rp.horizon)
		t.End = e.NewIntVar(name+".end", 0, rp.horizon)
		t.Duration = e.NewEnumVar(name+".duration", []int{0, d})
		t.Move = e.NewIntVar(name+".move", 0, 1)
		t.DSlice = rp.newDSlice(vm, t.Start)
		t.CSlice = rp.fixedSlice(vm, t.Src, rp.zero, t.End)
		kept := e.NewIntVar(name+".stay", 0, 1)
		src := rp.nodeIdx[t.Src]
		e.SetHint(t.DSlice.Host, src)
		rp.Post(solver.NewEqReif(t.DSlice.Host, src, kept))
		rp.Post(solver.NewLinear(solver.EQ, 1, solver.Term{Coef: 1, Var: t.Move}, solver.Term{Coef: 1, Var: kept}))
		rp.Post(solver.NewLinear(solver.EQ, 0, solver.Term{Coef: 1, Var: t.Duration}, solver.Term{Coef: -d, Var: t.Move}))
		rp.Post(solver.NewLinear(solver.EQ, 0,
			solver.Term{Coef: 1, Var: t.Start}, solver.Term{Coef: 1, Var: t.Duration}, solver.Term{Coef: -1, Var: t.End}))
		rp.Post(solver.NewConditional(t.Move, 0, startsAtZero(t.Start)))
		rp.Post(solver.LessOrEqual(t.End, rp.end, 0))
	case StayRunningVMTransition:
		t.To, t.State = domain.VMStateRunning, e.Constant(1)
		stay()
		t.DSlice = rp.fixedSlice(vm, t.Src, rp.zero, rp.end)
	case StayAwayVMTransition:
		t.To, t.State = t.From, e.Constant(0)
		stay()
		if t.From == domain.VMStateSleeping {
			rp.Post(solver.NewMember(rp.nodeTransitions[rp.nodeIdx[t.Src]].State, 1))
		}
	case KillVMTransition:
		t.To, t.State = domain.VMStateKilled, e.Constant(0)
		t.Start, t.End, t.Duration = rp.timed(name, d)
		switch t.From {
		case domain.VMStateRunning:
			t.CSlice = rp.fixedSlice(vm, t.Src, rp.zero, t.End)
		case domain.VMStateSleeping:
			rp.Post(solver.LessOrEqual(t.End, rp.nodeTransitions[rp.nodeIdx[t.Src]].HostingEnd, 0))
		}
	case ForgeVMTransition:
		t.To, t.State = domain.VMStateReady, e.Constant(0)
		t.Start, t.End, t.Duration = rp.timed(name, d)
	}
	rp.vmTransitions = append(rp.vmTransitions, t)
}

// =============================================================================
// Scheduling constraints
// =============================================================================

// postHostingWindows keeps every slice inside the hosting window of its node:
// departures end before the node stops hosting, arrivals start after it
// boots and only target nodes that end online.
func (rp *ReconfigurationProblem) postHostingWindows() {
	for _, t := range rp.vmTransitions {
		if c := t.CSlice; c != nil {
			nt := rp.nodeTransitions[rp.nodeIdx[t.Src]]
			rp.Post(solver.LessOrEqual(c.End, nt.HostingEnd, 0))
		}
		if ds := t.DSlice; ds != nil {
			for k, nt := range rp.nodeTransitions {
				rp.Post(solver.NewConditional(ds.Host, k, solver.NewLinear(solver.LE, -1, solver.Term{Coef: -1, Var: nt.State})))
				rp.Post(solver.NewConditional(ds.Host, k, solver.LessOrEqual(nt.HostingStart, ds.Start, 0)))
			}
		}
	}
}

func (rp *ReconfigurationProblem) dSliceHosts() []*solver.IntVar {
	var hosts []*solver.IntVar
	for _, t := range rp.vmTransitions {
		if t.DSlice != nil {
			hosts = append(hosts, t.DSlice.Host)
		}
	}
	return hosts
}

// tasks turns the slices into cumulative tasks of the given heights.
func (rp *ReconfigurationProblem) tasks(height func(vm domain.VM) int) []solver.Task {
	var tasks []solver.Task
	for _, t := range rp.vmTransitions {
		if c := t.CSlice; c != nil {
			tasks = append(tasks, solver.Task{End: c.End, Height: height(t.VM), Host: c.Host})
		}
		if ds := t.DSlice; ds != nil {
			tasks = append(tasks, solver.Task{Start: ds.Start, Height: height(t.VM), Host: ds.Host})
		}
	}
	return tasks
}

// postVMCounts links the VM count of every node to the destination hosts
// and bounds the slices simultaneously hosted by the number of VMs in the
// problem. Leaving slices count too, so the bound cannot be the number of
// arriving slices alone.
func (rp *ReconfigurationProblem) postVMCounts() {
	hosts := rp.dSliceHosts()
	slots := max(len(rp.vms), 1)
	slotTasks := rp.tasks(func(domain.VM) int { return 1 })
	rp.vmCounts = make([]*solver.IntVar, len(rp.nodes))
	for k, n := range rp.nodes {
		cnt := rp.engine.NewIntVar(n.String()+".vmCount", 0, slots)
		rp.vmCounts[k] = cnt
		rp.Post(solver.NewCount(hosts, k, cnt))
		rp.Post(solver.NewLinear(solver.LE, 0,
			solver.Term{Coef: 1, Var: cnt}, solver.Term{Coef: -slots, Var: rp.nodeTransitions[k].State}))
		rp.Post(solver.NewCumulative(slotTasks, slots, k))
	}
}

// postResourceCapacities posts one cumulative per node and resource view.
func (rp *ReconfigurationProblem) postResourceCapacities() {
	for _, v := range rp.source.Views() {
		rc, ok := v.(*domain.ShareableResource)
		if !ok {
			continue
		}
		tasks := rp.tasks(rc.Consumption)
		for k, n := range rp.nodes {
			rp.Post(solver.NewCumulative(tasks, rc.Capacity(n), k))
		}
	}
}

// PostAliasedCapacity bounds the usage of a resource over a node set
// sharing one capacity.
func (rp *ReconfigurationProblem) PostAliasedCapacity(rc *domain.ShareableResource, nodes []domain.Node, capacity int) {
	idx := make([]int, 0, len(nodes))
	for _, n := range nodes {
		if k, ok := rp.nodeIdx[n]; ok {
			idx = append(idx, k)
		}
	}
	rp.Post(solver.NewCumulative(rp.tasks(rc.Consumption), capacity, idx...))
}

func (rp *ReconfigurationProblem) actionEnds() []*solver.IntVar {
	ends := make([]*solver.IntVar, 0, len(rp.nodeTransitions)+len(rp.vmTransitions))
	for _, t := range rp.nodeTransitions {
		ends = append(ends, t.End)
	}
	for _, t := range rp.vmTransitions {
		ends = append(ends, t.End)
	}
	return ends
}

func (rp *ReconfigurationProblem) postEnd() {
	rp.Post(solver.NewMaximum(rp.end, 0, rp.actionEnds()...))
}

// setSearchHeuristic branches on node states, then destinations, then
// start moments, then the plan end. Hints keep the current state and host.
func (rp *ReconfigurationProblem) setSearchHeuristic() {
	e := rp.engine
	for _, t := range rp.nodeTransitions {
		e.SetSearchOrder(t.State)
	}
	for _, t := range rp.vmTransitions {
		if t.DSlice != nil {
			e.SetSearchOrder(t.DSlice.Host)
		}
	}
	for _, t := range rp.vmTransitions {
		e.SetSearchOrder(t.Start)
	}
	for _, t := range rp.nodeTransitions {
		e.SetSearchOrder(t.Start, t.HostingEnd)
	}
	e.SetSearchOrder(rp.end)
}

// MinMTTR creates the sum of the action ends, the cost minimized by the
// MinMTTR objective.
func (rp *ReconfigurationProblem) MinMTTR() *solver.IntVar {
	ends := rp.actionEnds()
	cost := rp.engine.NewIntVar("mttr", 0, rp.horizon*len(ends))
	rp.Post(solver.Sum(cost, ends...))
	rp.engine.SetSearchOrder(cost)
	return cost
}

// Err returns the first error raised while posting constraints.
func (rp *ReconfigurationProblem) Err() error { return rp.err }

// =============================================================================
// Resolution
// =============================================================================

// Solve runs the engine. It returns (nil, nil) when no plan exists and
// domain.ErrUndecided when the engine could not conclude.
func (rp *ReconfigurationProblem) Solve(ctx context.Context) (*plan.ReconfigurationPlan, error) {
	if rp.err != nil {
		return nil, rp.err
	}
	res, err := rp.engine.Solve(ctx, solver.Params{TimeLimit: rp.params.TimeLimit, Optimize: rp.params.Optimize})
	if err != nil {
		return nil, fmt.Errorf("failed to solve reconfiguration problem: %w", err)
	}

	logger := rp.logger.With(
		zap.Stringer("status", res.Status),
		zap.Int("solutions", res.Solutions),
		zap.Duration("elapsed", res.Elapsed),
	)
	switch res.Status {
	case solver.StatusInfeasible:
		logger.Info("No viable reconfiguration plan")
		return nil, nil
	case solver.StatusUndecided:
		logger.Warn("Solver stopped without a decision")
		return nil, fmt.Errorf("%w: stopped after %s", domain.ErrUndecided, res.Elapsed)
	}

	p, err := rp.buildPlan(res)
	if err != nil {
		logger.Error("Extracted plan is inconsistent", zap.Error(err))
		return nil, err
	}
	logger.Info("Reconfiguration plan computed",
		zap.Int("actions", p.Size()),
		zap.Int("duration", p.Duration()),
	)
	return p, nil
}

// buildPlan extracts the actions, nodes first then VMs, in index order.
func (rp *ReconfigurationProblem) buildPlan(res *solver.Result) (*plan.ReconfigurationPlan, error) {
	p := plan.NewReconfigurationPlan(rp.source)
	for _, t := range rp.nodeTransitions {
		if !t.insertActions(res, p) {
			return nil, fmt.Errorf("%w: invalid action interval for %s", domain.ErrInconsistentPlan, t.Node)
		}
	}
	nodeOf := func(v int) domain.Node { return rp.nodes[v] }
	for _, t := range rp.vmTransitions {
		if !t.insertActions(res, nodeOf, p) {
			return nil, fmt.Errorf("%w: invalid action interval for %s", domain.ErrInconsistentPlan, t.VM)
		}
	}
	if end := res.Value(rp.end); p.Duration() != end {
		return nil, fmt.Errorf("%w: plan lasts %d but the solved end is %d", domain.ErrInconsistentPlan, p.Duration(), end)
	}
	if _, err := p.Result(); err != nil {
		return nil, err
	}
	return p, nil
}

// nodesOf converts nodes into host variable values, skipping unknown nodes.
func (rp *ReconfigurationProblem) nodesOf(nodes []domain.Node) []int {
	out := make([]int, 0, len(nodes))
	for _, n := range nodes {
		if k, ok := rp.nodeIdx[n]; ok {
			out = append(out, k)
		}
	}
	return out
}

// statesOf returns the state variables of the known nodes among nodes.
func (rp *ReconfigurationProblem) statesOf(nodes []domain.Node) []*solver.IntVar {
	var out []*solver.IntVar
	for _, k := range rp.nodesOf(nodes) {
		out = append(out, rp.nodeTransitions[k].State)
	}
	return out
}
