// Package constraint provides the placement and state constraints a
// reconfiguration plan must satisfy.
package constraint

import (
	"fmt"
	"slices"
	"strings"

	"github.com/limiquantix/reconf/internal/domain"
)

// Constraint kinds.
const (
	KindRunning    domain.ConstraintKind = "running"
	KindReady      domain.ConstraintKind = "ready"
	KindSleeping   domain.ConstraintKind = "sleeping"
	KindKilled     domain.ConstraintKind = "killed"
	KindOnline     domain.ConstraintKind = "online"
	KindOffline    domain.ConstraintKind = "offline"
	KindRoot       domain.ConstraintKind = "root"
	KindFence      domain.ConstraintKind = "fence"
	KindBan        domain.ConstraintKind = "ban"
	KindSpread     domain.ConstraintKind = "spread"
	KindGather     domain.ConstraintKind = "gather"
	KindMaxOnline  domain.ConstraintKind = "maxOnline"
	KindPrecedence domain.ConstraintKind = "precedence"
)

// scope holds the sorted, deduplicated elements of a constraint.
type scope struct {
	vms   []domain.VM
	nodes []domain.Node
}

func newScope(vms []domain.VM, nodes []domain.Node) scope {
	v := slices.Clone(vms)
	slices.Sort(v)
	n := slices.Clone(nodes)
	slices.Sort(n)
	return scope{vms: slices.Compact(v), nodes: slices.Compact(n)}
}

func (s scope) InvolvedVMs() []domain.VM { return slices.Clone(s.vms) }
func (s scope) InvolvedNodes() []domain.Node { return slices.Clone(s.nodes) }

func joinElements[E fmt.Stringer](es []E) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// =============================================================================
// State constraints
// =============================================================================

// Running requires VMs to be running at the end of the reconfiguration.
type Running struct{ scope }

// NewRunning creates a Running constraint.
func NewRunning(vms ...domain.VM) *Running {
	return &Running{newScope(vms, nil)}
}

func (c *Running) Kind() domain.ConstraintKind { return KindRunning }
func (c *Running) IsContinuous() bool { return false }
func (c *Running) String() string { return "running(vms=" + joinElements(c.vms) + ")" }

// IsSatisfied implements domain.SatConstraint.
func (c *Running) IsSatisfied(mo *domain.Model) bool {
	return allVMs(c.vms, mo.Mapping().IsRunning)
}

// Ready requires VMs to be ready at the end of the reconfiguration.
type Ready struct{ scope }

// NewReady creates a Ready constraint.
func NewReady(vms ...domain.VM) *Ready {
	return &Ready{newScope(vms, nil)}
}

func (c *Ready) Kind() domain.ConstraintKind { return KindReady }
func (c *Ready) IsContinuous() bool { return false }
func (c *Ready) String() string { return "ready(vms=" + joinElements(c.vms) + ")" }

// IsSatisfied implements domain.SatConstraint.
func (c *Ready) IsSatisfied(mo *domain.Model) bool {
	return allVMs(c.vms, mo.Mapping().IsReady)
}

// Sleeping requires VMs to be sleeping at the end of the reconfiguration.
type Sleeping struct{ scope }

// NewSleeping creates a Sleeping constraint.
func NewSleeping(vms ...domain.VM) *Sleeping {
	return &Sleeping{newScope(vms, nil)}
}

func (c *Sleeping) Kind() domain.ConstraintKind { return KindSleeping }
func (c *Sleeping) IsContinuous() bool { return false }
func (c *Sleeping) String() string { return "sleeping(vms=" + joinElements(c.vms) + ")" }

// IsSatisfied implements domain.SatConstraint.
func (c *Sleeping) IsSatisfied(mo *domain.Model) bool {
	return allVMs(c.vms, mo.Mapping().IsSleeping)
}

// Killed requires VMs to leave the model.
type Killed struct{ scope }

// NewKilled creates a Killed constraint.
func NewKilled(vms ...domain.VM) *Killed {
	return &Killed{newScope(vms, nil)}
}

func (c *Killed) Kind() domain.ConstraintKind { return KindKilled }
func (c *Killed) IsContinuous() bool { return false }
func (c *Killed) String() string { return "killed(vms=" + joinElements(c.vms) + ")" }

// IsSatisfied implements domain.SatConstraint.
func (c *Killed) IsSatisfied(mo *domain.Model) bool {
	m := mo.Mapping()
	return allVMs(c.vms, func(vm domain.VM) bool { return !m.ContainsVM(vm) })
}

// Online requires nodes to be online at the end of the reconfiguration.
type Online struct{ scope }

// NewOnline creates an Online constraint.
func NewOnline(nodes ...domain.Node) *Online {
	return &Online{newScope(nil, nodes)}
}

func (c *Online) Kind() domain.ConstraintKind { return KindOnline }
func (c *Online) IsContinuous() bool { return false }
func (c *Online) String() string { return "online(nodes=" + joinElements(c.nodes) + ")" }

// IsSatisfied implements domain.SatConstraint.
func (c *Online) IsSatisfied(mo *domain.Model) bool {
	return allNodes(c.nodes, mo.Mapping().IsOnline)
}

// Offline requires nodes to be offline at the end of the reconfiguration.
type Offline struct{ scope }

// NewOffline creates an Offline constraint.
func NewOffline(nodes ...domain.Node) *Offline {
	return &Offline{newScope(nil, nodes)}
}

func (c *Offline) Kind() domain.ConstraintKind { return KindOffline }
func (c *Offline) IsContinuous() bool { return false }
func (c *Offline) String() string { return "offline(nodes=" + joinElements(c.nodes) + ")" }

// IsSatisfied implements domain.SatConstraint.
func (c *Offline) IsSatisfied(mo *domain.Model) bool {
	return allNodes(c.nodes, mo.Mapping().IsOffline)
}

func allVMs(vms []domain.VM, pred func(domain.VM) bool) bool {
	for _, vm := range vms {
		if !pred(vm) {
			return false
		}
	}
	return true
}

func allNodes(nodes []domain.Node, pred func(domain.Node) bool) bool {
	for _, n := range nodes {
		if !pred(n) {
			return false
		}
	}
	return true
}

// Violated returns the constraints mo does not satisfy.
func Violated(mo *domain.Model, cstrs ...domain.SatConstraint) []domain.SatConstraint {
	var out []domain.SatConstraint
	for _, c := range cstrs {
		if !c.IsSatisfied(mo) {
			out = append(out, c)
		}
	}
	return out
}
