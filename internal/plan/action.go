// Package plan holds reconfiguration actions and time-ordered plans.
package plan

import (
	"fmt"
	"strings"

	"github.com/limiquantix/reconf/internal/domain"
)

// ActionKind identifies what an action does.
type ActionKind int

const (
	BootVM ActionKind = iota + 1
	ShutdownVM
	MigrateVM
	SuspendVM
	ResumeVM
	KillVM
	ForgeVM
	BootNode
	ShutdownNode
)

var actionKindNames = map[ActionKind]string{
	BootVM:       "bootVM",
	ShutdownVM:   "shutdownVM",
	MigrateVM:    "migrateVM",
	SuspendVM:    "suspendVM",
	ResumeVM:     "resumeVM",
	KillVM:       "killVM",
	ForgeVM:      "forgeVM",
	BootNode:     "bootNode",
	ShutdownNode: "shutdownNode",
}

// ActionKinds lists every action kind.
func ActionKinds() []ActionKind {
	return []ActionKind{BootVM, ShutdownVM, MigrateVM, SuspendVM, ResumeVM, KillVM, ForgeVM, BootNode, ShutdownNode}
}

func (k ActionKind) String() string {
	if s, ok := actionKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("action(%d)", int(k))
}

// ParseActionKind returns the kind named s, ignoring case.
func ParseActionKind(s string) (ActionKind, error) {
	for k, name := range actionKindNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown action kind %q", domain.ErrInvalidArgument, s)
}

// OnNode reports whether the action manipulates a node rather than a VM.
func (k ActionKind) OnNode() bool {
	return k == BootNode || k == ShutdownNode
}

// phase ranks kinds sharing the same interval: a node boots before the VM
// actions it hosts and shuts down after them.
func (k ActionKind) phase() int {
	switch k {
	case BootNode:
		return 0
	case ShutdownNode:
		return 2
	default:
		return 1
	}
}

// Action is a timed state change. VM actions use VM, Src and Dst; node
// actions use Node. Unused node fields hold domain.NoNode.
type Action struct {
	Kind  ActionKind  `json:"kind"`
	VM    domain.VM   `json:"vm"`
	Node  domain.Node `json:"node"`
	Src   domain.Node `json:"src"`
	Dst   domain.Node `json:"dst"`
	Start int         `json:"start"`
	End   int         `json:"end"`
}

// NewBootVM creates an action booting vm on dst.
func NewBootVM(vm domain.VM, dst domain.Node, start, end int) Action {
	return Action{Kind: BootVM, VM: vm, Node: domain.NoNode, Src: domain.NoNode, Dst: dst, Start: start, End: end}
}

// NewShutdownVM creates an action shutting down vm running on src.
func NewShutdownVM(vm domain.VM, src domain.Node, start, end int) Action {
	return Action{Kind: ShutdownVM, VM: vm, Node: domain.NoNode, Src: src, Dst: domain.NoNode, Start: start, End: end}
}

// NewMigrateVM creates an action live-migrating vm from src to dst.
func NewMigrateVM(vm domain.VM, src, dst domain.Node, start, end int) Action {
	return Action{Kind: MigrateVM, VM: vm, Node: domain.NoNode, Src: src, Dst: dst, Start: start, End: end}
}

// NewSuspendVM creates an action suspending vm running on src to dst.
func NewSuspendVM(vm domain.VM, src, dst domain.Node, start, end int) Action {
	return Action{Kind: SuspendVM, VM: vm, Node: domain.NoNode, Src: src, Dst: dst, Start: start, End: end}
}

// NewResumeVM creates an action resuming vm sleeping on src onto dst.
func NewResumeVM(vm domain.VM, src, dst domain.Node, start, end int) Action {
	return Action{Kind: ResumeVM, VM: vm, Node: domain.NoNode, Src: src, Dst: dst, Start: start, End: end}
}

// NewKillVM creates an action destroying vm. src is domain.NoNode for a ready VM.
func NewKillVM(vm domain.VM, src domain.Node, start, end int) Action {
	return Action{Kind: KillVM, VM: vm, Node: domain.NoNode, Src: src, Dst: domain.NoNode, Start: start, End: end}
}

// NewForgeVM creates an action declaring the unknown vm as ready.
func NewForgeVM(vm domain.VM, start, end int) Action {
	return Action{Kind: ForgeVM, VM: vm, Node: domain.NoNode, Src: domain.NoNode, Dst: domain.NoNode, Start: start, End: end}
}

// NewBootNode creates an action powering n on.
func NewBootNode(n domain.Node, start, end int) Action {
	return Action{Kind: BootNode, Node: n, Src: domain.NoNode, Dst: domain.NoNode, Start: start, End: end}
}

// NewShutdownNode creates an action powering n off.
func NewShutdownNode(n domain.Node, start, end int) Action {
	return Action{Kind: ShutdownNode, Node: n, Src: domain.NoNode, Dst: domain.NoNode, Start: start, End: end}
}

// Duration returns End - Start.
func (a Action) Duration() int { return a.End - a.Start }

// Apply performs the state change on m. It returns false when the
// preconditions of the action do not hold in m.
func (a Action) Apply(m domain.Mapping) bool {
	switch a.Kind {
	case BootVM:
		return m.IsReady(a.VM) && m.AddRunningVM(a.VM, a.Dst)
	case ShutdownVM:
		return a.runsOn(m, a.Src) && m.AddReadyVM(a.VM)
	case MigrateVM:
		return a.runsOn(m, a.Src) && m.AddRunningVM(a.VM, a.Dst)
	case SuspendVM:
		return a.runsOn(m, a.Src) && m.AddSleepingVM(a.VM, a.Dst)
	case ResumeVM:
		if !m.IsSleeping(a.VM) {
			return false
		}
		if loc, _ := m.VMLocation(a.VM); loc != a.Src {
			return false
		}
		return m.AddRunningVM(a.VM, a.Dst)
	case KillVM:
		return m.RemoveVM(a.VM)
	case ForgeVM:
		return !m.ContainsVM(a.VM) && m.AddReadyVM(a.VM)
	case BootNode:
		return m.IsOffline(a.Node) && m.AddOnlineNode(a.Node)
	case ShutdownNode:
		return m.IsOnline(a.Node) && m.AddOfflineNode(a.Node)
	default:
		return false
	}
}

func (a Action) runsOn(m domain.Mapping, n domain.Node) bool {
	if !m.IsRunning(a.VM) {
		return false
	}
	loc, _ := m.VMLocation(a.VM)
	return loc == n
}

func (a Action) String() string {
	var body string
	switch a.Kind {
	case BootVM:
		body = fmt.Sprintf("boot(vm=%s, on=%s)", a.VM, a.Dst)
	case ShutdownVM:
		body = fmt.Sprintf("shutdown(vm=%s, on=%s)", a.VM, a.Src)
	case MigrateVM:
		body = fmt.Sprintf("migrate(vm=%s, from=%s, to=%s)", a.VM, a.Src, a.Dst)
	case SuspendVM:
		body = fmt.Sprintf("suspend(vm=%s, from=%s, to=%s)", a.VM, a.Src, a.Dst)
	case ResumeVM:
		body = fmt.Sprintf("resume(vm=%s, from=%s, to=%s)", a.VM, a.Src, a.Dst)
	case KillVM:
		body = fmt.Sprintf("kill(vm=%s, on=%s)", a.VM, a.Src)
	case ForgeVM:
		body = fmt.Sprintf("forge(vm=%s)", a.VM)
	case BootNode:
		body = fmt.Sprintf("bootNode(node=%s)", a.Node)
	case ShutdownNode:
		body = fmt.Sprintf("shutdownNode(node=%s)", a.Node)
	default:
		body = a.Kind.String()
	}
	return fmt.Sprintf("%d:%d {action=%s}", a.Start, a.End, body)
}
