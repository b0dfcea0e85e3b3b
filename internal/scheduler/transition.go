package scheduler

import (
	"github.com/limiquantix/reconf/internal/domain"
	"github.com/limiquantix/reconf/internal/plan"
	"github.com/limiquantix/reconf/internal/solver"
)

// VMTransitionKind is the action model chosen for a VM.
type VMTransitionKind int

const (
	BootVMTransition VMTransitionKind = iota
	ShutdownVMTransition
	ResumeVMTransition
	SuspendVMTransition
	RelocateVMTransition
	StayRunningVMTransition
	StayAwayVMTransition
	KillVMTransition
	ForgeVMTransition
)

var vmTransitionNames = [...]string{
	"boot", "shutdown", "resume", "suspend", "relocate", "stayRunning", "stayAway", "kill", "forge",
}

func (k VMTransitionKind) String() string {
	if int(k) < len(vmTransitionNames) {
		return vmTransitionNames[k]
	}
	return "unknown"
}

// actionKind returns the plan action the transition may produce, 0 when
// the transition never acts.
func (k VMTransitionKind) actionKind() plan.ActionKind {
	switch k {
	case BootVMTransition:
		return plan.BootVM
	case ShutdownVMTransition:
		return plan.ShutdownVM
	case ResumeVMTransition:
		return plan.ResumeVM
	case SuspendVMTransition:
		return plan.SuspendVM
	case RelocateVMTransition:
		return plan.MigrateVM
	case KillVMTransition:
		return plan.KillVM
	case ForgeVMTransition:
		return plan.ForgeVM
	default:
		return 0
	}
}

// Slice is the interval during which a VM uses resources on a host.
// A consuming slice starts at 0 on the current host. A demanding slice
// lasts until the end of the plan on the destination host.
type Slice struct {
	VM    domain.VM
	Start *solver.IntVar
	End   *solver.IntVar
	Host  *solver.IntVar
}

// VMTransition is the action model of one VM.
type VMTransition struct {
	Kind VMTransitionKind
	VM   domain.VM
	From domain.VMState
	To   domain.VMState
	// Src is the current host, domain.NoNode when the VM is not hosted.
	Src domain.Node

	// State is 1 when the VM runs at the end of the plan.
	State    *solver.IntVar
	Start    *solver.IntVar
	End      *solver.IntVar
	Duration *solver.IntVar
	// Move is 1 when a relocation changes the host. Nil for other kinds.
	Move *solver.IntVar

	CSlice *Slice
	DSlice *Slice
}

// NodeTransitionKind is the action model chosen for a node.
type NodeTransitionKind int

const (
	// BootableNode is an offline node that may boot.
	BootableNode NodeTransitionKind = iota
	// ShutdownableNode is an online node that may shut down.
	ShutdownableNode
)

func (k NodeTransitionKind) String() string {
	if k == BootableNode {
		return "bootable"
	}
	return "shutdownable"
}

// NodeTransition is the action model of one node.
type NodeTransition struct {
	Kind NodeTransitionKind
	Node domain.Node

	// State is 1 when the node is online at the end of the plan.
	State    *solver.IntVar
	Start    *solver.IntVar
	End      *solver.IntVar
	Duration *solver.IntVar
	// HostingStart is the moment the node can accept VMs.
	HostingStart *solver.IntVar
	// HostingEnd is the moment the node stops hosting VMs.
	HostingEnd *solver.IntVar
}

// insertActions materializes the node action into p.
func (t *NodeTransition) insertActions(res *solver.Result, p *plan.ReconfigurationPlan) bool {
	start, end := res.Value(t.Start), res.Value(t.End)
	switch t.Kind {
	case BootableNode:
		if res.Value(t.State) == 1 {
			return p.Add(plan.NewBootNode(t.Node, start, end))
		}
	case ShutdownableNode:
		if res.Value(t.State) == 0 {
			return p.Add(plan.NewShutdownNode(t.Node, start, end))
		}
	}
	return true
}

// insertActions materializes the VM action into p. nodeOf maps a host
// variable value back to its node.
func (t *VMTransition) insertActions(res *solver.Result, nodeOf func(int) domain.Node, p *plan.ReconfigurationPlan) bool {
	start, end := res.Value(t.Start), res.Value(t.End)
	switch t.Kind {
	case BootVMTransition:
		return p.Add(plan.NewBootVM(t.VM, nodeOf(res.Value(t.DSlice.Host)), start, end))
	case ShutdownVMTransition:
		return p.Add(plan.NewShutdownVM(t.VM, t.Src, start, end))
	case ResumeVMTransition:
		return p.Add(plan.NewResumeVM(t.VM, t.Src, nodeOf(res.Value(t.DSlice.Host)), start, end))
	case SuspendVMTransition:
		return p.Add(plan.NewSuspendVM(t.VM, t.Src, t.Src, start, end))
	case RelocateVMTransition:
		if res.Value(t.Move) == 1 {
			return p.Add(plan.NewMigrateVM(t.VM, t.Src, nodeOf(res.Value(t.DSlice.Host)), start, end))
		}
	case KillVMTransition:
		return p.Add(plan.NewKillVM(t.VM, t.Src, start, end))
	case ForgeVMTransition:
		return p.Add(plan.NewForgeVM(t.VM, start, end))
	}
	return true
}

// inferVMTransition picks the action model leading vm from its current
// state to the requested one. A zero target means no state was requested.
func inferVMTransition(m domain.Mapping, vm domain.VM, target domain.VMState, manageable bool) (VMTransitionKind, error) {
	cur := m.VMState(vm)
	switch target {
	case domain.VMStateRunning:
		switch cur {
		case domain.VMStateSleeping:
			return ResumeVMTransition, nil
		case domain.VMStateRunning:
			if manageable {
				return RelocateVMTransition, nil
			}
			return StayRunningVMTransition, nil
		case domain.VMStateReady:
			return BootVMTransition, nil
		}
	case domain.VMStateReady:
		switch cur {
		case domain.VMStateUnknown:
			return ForgeVMTransition, nil
		case domain.VMStateReady:
			return StayAwayVMTransition, nil
		case domain.VMStateRunning:
			return ShutdownVMTransition, nil
		}
	case domain.VMStateSleeping:
		switch cur {
		case domain.VMStateRunning:
			return SuspendVMTransition, nil
		case domain.VMStateSleeping:
			return StayAwayVMTransition, nil
		}
	case domain.VMStateKilled:
		if cur != domain.VMStateUnknown {
			return KillVMTransition, nil
		}
	default:
		switch cur {
		case domain.VMStateRunning:
			if manageable {
				return RelocateVMTransition, nil
			}
			return StayRunningVMTransition, nil
		case domain.VMStateReady, domain.VMStateSleeping:
			return StayAwayVMTransition, nil
		}
	}
	return 0, unreachable(vm, cur, target)
}
