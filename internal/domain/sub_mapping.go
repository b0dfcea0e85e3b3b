package domain

import (
	"maps"
	"slices"
)

// SubMapping is a scoped view over a parent mapping. It copies the scoped
// nodes and the VMs they host from the parent, plus a set of ready VMs,
// into its own state. Writes are validated against the scope and never
// reach the parent.
type SubMapping struct {
	parent Mapping
	scope  map[Node]struct{}
	sub    *DefaultMapping
}

var _ Mapping = (*SubMapping)(nil)

// NewSubMapping builds a sub-mapping of parent restricted to the scope
// nodes. Ready VMs are imported when the parent does not hold them in
// another state.
func NewSubMapping(parent Mapping, scope []Node, ready []VM) *SubMapping {
	sm := &SubMapping{
		parent: parent,
		scope:  make(map[Node]struct{}, len(scope)),
		sub:    NewMapping(),
	}
	for _, n := range scope {
		sm.scope[n] = struct{}{}
	}
	for _, n := range sm.Scope() {
		switch parent.NodeState(n) {
		case NodeStateOnline:
			sm.sub.AddOnlineNode(n)
			for _, vm := range parent.RunningVMsOn(n) {
				sm.sub.AddRunningVM(vm, n)
			}
			for _, vm := range parent.SleepingVMsOn(n) {
				sm.sub.AddSleepingVM(vm, n)
			}
		case NodeStateOffline:
			sm.sub.AddOfflineNode(n)
		}
	}
	for _, vm := range ready {
		if !parent.ContainsVM(vm) || parent.IsReady(vm) {
			sm.sub.AddReadyVM(vm)
		}
	}
	return sm
}

// Parent returns the mapping the sub-mapping was carved from.
func (sm *SubMapping) Parent() Mapping { return sm.parent }

// Scope returns the scope nodes in ascending order.
func (sm *SubMapping) Scope() []Node {
	return slices.Sorted(maps.Keys(sm.scope))
}

// InScope reports whether n belongs to the scope.
func (sm *SubMapping) InScope(n Node) bool {
	_, ok := sm.scope[n]
	return ok
}

// FillVMIndex records part as the partition of every VM of the sub-mapping.
func (sm *SubMapping) FillVMIndex(index map[VM]int, part int) {
	for vm := range sm.sub.vms {
		index[vm] = part
	}
}

// foreign reports whether vm is held by the parent but not by the sub-mapping.
func (sm *SubMapping) foreign(vm VM) bool {
	return !sm.sub.ContainsVM(vm) && sm.parent.ContainsVM(vm)
}

func (sm *SubMapping) AddOnlineNode(n Node) bool {
	return sm.InScope(n) && sm.sub.AddOnlineNode(n)
}

func (sm *SubMapping) AddOfflineNode(n Node) bool {
	return sm.InScope(n) && sm.sub.AddOfflineNode(n)
}

func (sm *SubMapping) AddRunningVM(vm VM, n Node) bool {
	if !sm.InScope(n) || sm.foreign(vm) {
		return false
	}
	return sm.sub.AddRunningVM(vm, n)
}

func (sm *SubMapping) AddSleepingVM(vm VM, n Node) bool {
	if !sm.InScope(n) || sm.foreign(vm) {
		return false
	}
	return sm.sub.AddSleepingVM(vm, n)
}

func (sm *SubMapping) AddReadyVM(vm VM) bool {
	if sm.foreign(vm) {
		return false
	}
	return sm.sub.AddReadyVM(vm)
}

// RemoveVM removes vm from the sub-mapping only.
func (sm *SubMapping) RemoveVM(vm VM) bool { return sm.sub.RemoveVM(vm) }

func (sm *SubMapping) RemoveNode(n Node) bool {
	return sm.InScope(n) && sm.sub.RemoveNode(n)
}

func (sm *SubMapping) IsOnline(n Node) bool { return sm.sub.IsOnline(n) }
func (sm *SubMapping) IsOffline(n Node) bool { return sm.sub.IsOffline(n) }
func (sm *SubMapping) IsRunning(vm VM) bool { return sm.sub.IsRunning(vm) }
func (sm *SubMapping) IsSleeping(vm VM) bool { return sm.sub.IsSleeping(vm) }
func (sm *SubMapping) IsReady(vm VM) bool { return sm.sub.IsReady(vm) }
func (sm *SubMapping) ContainsVM(vm VM) bool { return sm.sub.ContainsVM(vm) }
func (sm *SubMapping) ContainsNode(n Node) bool { return sm.sub.ContainsNode(n) }
func (sm *SubMapping) VMState(vm VM) VMState { return sm.sub.VMState(vm) }
func (sm *SubMapping) NodeState(n Node) NodeState { return sm.sub.NodeState(n) }
func (sm *SubMapping) VMLocation(vm VM) (Node, bool) { return sm.sub.VMLocation(vm) }
func (sm *SubMapping) OnlineNodes() []Node { return sm.sub.OnlineNodes() }
func (sm *SubMapping) OfflineNodes() []Node { return sm.sub.OfflineNodes() }
func (sm *SubMapping) AllNodes() []Node { return sm.sub.AllNodes() }
func (sm *SubMapping) RunningVMs() []VM { return sm.sub.RunningVMs() }
func (sm *SubMapping) SleepingVMs() []VM { return sm.sub.SleepingVMs() }
func (sm *SubMapping) ReadyVMs() []VM { return sm.sub.ReadyVMs() }
func (sm *SubMapping) AllVMs() []VM { return sm.sub.AllVMs() }
func (sm *SubMapping) RunningVMsOn(nodes ...Node) []VM { return sm.sub.RunningVMsOn(nodes...) }
func (sm *SubMapping) SleepingVMsOn(nodes ...Node) []VM { return sm.sub.SleepingVMsOn(nodes...) }
func (sm *SubMapping) NbVMs() int { return sm.sub.NbVMs() }
func (sm *SubMapping) NbNodes() int { return sm.sub.NbNodes() }
func (sm *SubMapping) Clear() { sm.sub.Clear() }
func (sm *SubMapping) ClearNode(n Node) { sm.sub.ClearNode(n) }

// Copy returns a standalone copy of the sub-mapping state.
func (sm *SubMapping) Copy() *DefaultMapping { return sm.sub.Copy() }

func (sm *SubMapping) String() string { return formatMapping(sm.sub) }
