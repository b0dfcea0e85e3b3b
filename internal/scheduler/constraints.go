package scheduler

import (
	"fmt"

	"github.com/limiquantix/reconf/internal/constraint"
	"github.com/limiquantix/reconf/internal/domain"
	"github.com/limiquantix/reconf/internal/solver"
)

// Inject posts the propagators implementing c. State constraints are
// already enforced by the transitions chosen at build time.
func (rp *ReconfigurationProblem) Inject(c domain.SatConstraint) error {
	switch c := c.(type) {
	case *constraint.Running, *constraint.Ready, *constraint.Sleeping, *constraint.Killed,
		*constraint.Online, *constraint.Offline:
	case *constraint.Root:
		for _, t := range rp.dSlices(c.InvolvedVMs()) {
			if t.Src != domain.NoNode {
				rp.Post(solver.NewMember(t.DSlice.Host, rp.nodeIdx[t.Src]))
			}
		}
	case *constraint.Fence:
		allowed := rp.nodesOf(c.InvolvedNodes())
		for _, t := range rp.dSlices(c.InvolvedVMs()) {
			rp.Post(solver.NewMember(t.DSlice.Host, allowed...))
		}
	case *constraint.Ban:
		denied := rp.nodesOf(c.InvolvedNodes())
		for _, t := range rp.dSlices(c.InvolvedVMs()) {
			rp.Post(solver.NewNotMember(t.DSlice.Host, denied...))
		}
	case *constraint.Spread:
		rp.injectSpread(c)
	case *constraint.Gather:
		ts := rp.dSlices(c.InvolvedVMs())
		if len(ts) > 1 {
			rp.Post(solver.NewAllEqual(hostsOf(ts)...))
		}
	case *constraint.MaxOnline:
		states := rp.statesOf(c.InvolvedNodes())
		terms := make([]solver.Term, len(states))
		for i, s := range states {
			terms[i] = solver.Term{Coef: 1, Var: s}
		}
		rp.Post(solver.NewLinear(solver.LE, c.Amount(), terms...))
		if c.IsContinuous() {
			rp.postOnlinePeriods(c.InvolvedNodes(), c.Amount())
		}
	case *constraint.Precedence:
		before, ok := rp.VMTransition(c.Before())
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, c.Before())
		}
		after, ok := rp.VMTransition(c.After())
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, c.After())
		}
		rp.Post(solver.LessOrEqual(before.End, after.Start, 0))
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedConstraint, c)
	}
	return rp.err
}

// dSlices returns the transitions of vms that end running.
func (rp *ReconfigurationProblem) dSlices(vms []domain.VM) []*VMTransition {
	var out []*VMTransition
	for _, vm := range vms {
		if t, ok := rp.VMTransition(vm); ok && t.DSlice != nil {
			out = append(out, t)
		}
	}
	return out
}

func hostsOf(ts []*VMTransition) []*solver.IntVar {
	hosts := make([]*solver.IntVar, len(ts))
	for i, t := range ts {
		hosts[i] = t.DSlice.Host
	}
	return hosts
}

// injectSpread separates the final hosts. The continuous variant also
// delays an arrival on a node until the other VMs have left it.
func (rp *ReconfigurationProblem) injectSpread(c *constraint.Spread) {
	ts := rp.dSlices(c.InvolvedVMs())
	if len(ts) > 1 {
		rp.Post(solver.NewAllDifferent(hostsOf(ts)...))
	}
	if !c.IsContinuous() {
		return
	}
	for _, arriving := range ts {
		for _, vm := range c.InvolvedVMs() {
			leaving, ok := rp.VMTransition(vm)
			if !ok || leaving == arriving || leaving.CSlice == nil {
				continue
			}
			src := rp.nodeIdx[leaving.Src]
			rp.Post(solver.NewConditional(arriving.DSlice.Host, src,
				solver.LessOrEqual(leaving.CSlice.End, arriving.DSlice.Start, 0)))
		}
	}
}

// postOnlinePeriods bounds the nodes simultaneously online among nodes. A
// booting node is online from the start of its boot and a halting node until
// the end of its shutdown. Every period is a unit task whose host is 1 while
// the period counts: the state for periods that last until the end, and a
// constant for the shutdown period, which is empty when the node stays up.
func (rp *ReconfigurationProblem) postOnlinePeriods(nodes []domain.Node, amount int) {
	const counted = 1
	var tasks []solver.Task
	for _, k := range rp.nodesOf(nodes) {
		t := rp.nodeTransitions[k]
		switch t.Kind {
		case BootableNode:
			tasks = append(tasks, solver.Task{Start: t.Start, Height: 1, Host: t.State})
		case ShutdownableNode:
			tasks = append(tasks,
				solver.Task{End: t.End, Height: 1, Host: rp.engine.Constant(counted)},
				solver.Task{Height: 1, Host: t.State},
			)
		}
	}
	rp.Post(solver.NewCumulative(tasks, amount, counted))
}
