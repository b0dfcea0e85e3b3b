package constraint

import (
	"fmt"
	"slices"

	"github.com/limiquantix/reconf/internal/domain"
)

// Root forbids the relocation of running VMs.
type Root struct{ scope }

// NewRoot creates a Root constraint.
func NewRoot(vms ...domain.VM) *Root {
	return &Root{newScope(vms, nil)}
}

func (c *Root) Kind() domain.ConstraintKind { return KindRoot }
func (c *Root) IsContinuous() bool { return true }
func (c *Root) String() string { return "root(vms=" + joinElements(c.vms) + ")" }

// IsSatisfied implements domain.SatConstraint. Root restricts actions, not
// the resulting placement, so any model satisfies it.
func (c *Root) IsSatisfied(*domain.Model) bool { return true }

// Fence restricts the hosts of running VMs to a node set.
type Fence struct{ scope }

// NewFence creates a Fence constraint.
func NewFence(vms []domain.VM, nodes []domain.Node) *Fence {
	return &Fence{newScope(vms, nodes)}
}

func (c *Fence) Kind() domain.ConstraintKind { return KindFence }
func (c *Fence) IsContinuous() bool { return false }

func (c *Fence) String() string {
	return "fence(vms=" + joinElements(c.vms) + ", nodes=" + joinElements(c.nodes) + ")"
}

// IsSatisfied implements domain.SatConstraint.
func (c *Fence) IsSatisfied(mo *domain.Model) bool {
	m := mo.Mapping()
	for _, vm := range c.vms {
		if !m.IsRunning(vm) {
			continue
		}
		if n, _ := m.VMLocation(vm); !slices.Contains(c.nodes, n) {
			return false
		}
	}
	return true
}

// Ban forbids running VMs on a node set.
type Ban struct{ scope }

// NewBan creates a Ban constraint.
func NewBan(vms []domain.VM, nodes []domain.Node) *Ban {
	return &Ban{newScope(vms, nodes)}
}

func (c *Ban) Kind() domain.ConstraintKind { return KindBan }
func (c *Ban) IsContinuous() bool { return false }

func (c *Ban) String() string {
	return "ban(vms=" + joinElements(c.vms) + ", nodes=" + joinElements(c.nodes) + ")"
}

// IsSatisfied implements domain.SatConstraint.
func (c *Ban) IsSatisfied(mo *domain.Model) bool {
	m := mo.Mapping()
	for _, vm := range c.vms {
		if !m.IsRunning(vm) {
			continue
		}
		if n, _ := m.VMLocation(vm); slices.Contains(c.nodes, n) {
			return false
		}
	}
	return true
}

// Spread requires running VMs to use distinct hosts. A continuous spread
// also forbids two of the VMs to overlap on a node during the reconfiguration.
type Spread struct {
	scope
	continuous bool
}

// NewSpread creates a Spread constraint.
func NewSpread(vms []domain.VM, continuous bool) *Spread {
	return &Spread{scope: newScope(vms, nil), continuous: continuous}
}

func (c *Spread) Kind() domain.ConstraintKind { return KindSpread }
func (c *Spread) IsContinuous() bool { return c.continuous }

func (c *Spread) String() string {
	return fmt.Sprintf("spread(vms=%s, continuous=%t)", joinElements(c.vms), c.continuous)
}

// IsSatisfied implements domain.SatConstraint.
func (c *Spread) IsSatisfied(mo *domain.Model) bool {
	m := mo.Mapping()
	used := make(map[domain.Node]struct{})
	for _, vm := range c.vms {
		if !m.IsRunning(vm) {
			continue
		}
		n, _ := m.VMLocation(vm)
		if _, ok := used[n]; ok {
			return false
		}
		used[n] = struct{}{}
	}
	return true
}

// Gather requires running VMs to share a single host.
type Gather struct{ scope }

// NewGather creates a Gather constraint.
func NewGather(vms ...domain.VM) *Gather {
	return &Gather{newScope(vms, nil)}
}

func (c *Gather) Kind() domain.ConstraintKind { return KindGather }
func (c *Gather) IsContinuous() bool { return false }
func (c *Gather) String() string { return "gather(vms=" + joinElements(c.vms) + ")" }

// IsSatisfied implements domain.SatConstraint.
func (c *Gather) IsSatisfied(mo *domain.Model) bool {
	m := mo.Mapping()
	host := domain.NoNode
	for _, vm := range c.vms {
		if !m.IsRunning(vm) {
			continue
		}
		n, _ := m.VMLocation(vm)
		if host != domain.NoNode && host != n {
			return false
		}
		host = n
	}
	return true
}

// MaxOnline caps the number of online nodes in a node set. A continuous
// MaxOnline holds at every instant of the plan, a booting node counting as
// online from the start of its boot and a halting node until the end of its
// shutdown.
type MaxOnline struct {
	scope
	amount     int
	continuous bool
}

// NewMaxOnline creates a MaxOnline constraint.
func NewMaxOnline(nodes []domain.Node, amount int, continuous bool) *MaxOnline {
	return &MaxOnline{scope: newScope(nil, nodes), amount: amount, continuous: continuous}
}

// Amount returns the maximum number of online nodes.
func (c *MaxOnline) Amount() int { return c.amount }

func (c *MaxOnline) Kind() domain.ConstraintKind { return KindMaxOnline }
func (c *MaxOnline) IsContinuous() bool { return c.continuous }

func (c *MaxOnline) String() string {
	return fmt.Sprintf("maxOnline(nodes=%s, amount=%d, continuous=%t)", joinElements(c.nodes), c.amount, c.continuous)
}

// IsSatisfied implements domain.SatConstraint.
func (c *MaxOnline) IsSatisfied(mo *domain.Model) bool {
	online := 0
	for _, n := range c.nodes {
		if mo.Mapping().IsOnline(n) {
			online++
		}
	}
	return online <= c.amount
}

// Precedence requires the action of one VM to end before the action of
// another starts.
type Precedence struct {
	scope
	before domain.VM
	after  domain.VM
}

// NewPrecedence creates a Precedence constraint.
func NewPrecedence(before, after domain.VM) *Precedence {
	return &Precedence{scope: newScope([]domain.VM{before, after}, nil), before: before, after: after}
}

// Before returns the VM whose action comes first.
func (c *Precedence) Before() domain.VM { return c.before }

// After returns the VM whose action comes second.
func (c *Precedence) After() domain.VM { return c.after }

func (c *Precedence) Kind() domain.ConstraintKind { return KindPrecedence }
func (c *Precedence) IsContinuous() bool { return true }

func (c *Precedence) String() string {
	return fmt.Sprintf("precedence(before=%s, after=%s)", c.before, c.after)
}

// IsSatisfied implements domain.SatConstraint. Precedence is a scheduling
// requirement and holds for any resulting model.
func (c *Precedence) IsSatisfied(*domain.Model) bool { return true }

// =============================================================================
// Objectives
// =============================================================================

// MinMTTR minimizes the sum of the action completion times.
type MinMTTR struct{}

// NewMinMTTR creates the MinMTTR objective.
func NewMinMTTR() *MinMTTR { return &MinMTTR{} }

// ID implements domain.OptConstraint.
func (*MinMTTR) ID() string { return "minMTTR" }
