package domain

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Mapping records the state of nodes and VMs and where each running or
// sleeping VM is hosted. Every mutator reports whether it was applied; a
// rejected mutation leaves the mapping untouched.
type Mapping interface {
	AddOnlineNode(n Node) bool
	AddOfflineNode(n Node) bool
	AddRunningVM(vm VM, n Node) bool
	AddSleepingVM(vm VM, n Node) bool
	AddReadyVM(vm VM) bool
	RemoveVM(vm VM) bool
	RemoveNode(n Node) bool

	IsOnline(n Node) bool
	IsOffline(n Node) bool
	IsRunning(vm VM) bool
	IsSleeping(vm VM) bool
	IsReady(vm VM) bool
	ContainsVM(vm VM) bool
	ContainsNode(n Node) bool
	VMState(vm VM) VMState
	NodeState(n Node) NodeState
	VMLocation(vm VM) (Node, bool)

	OnlineNodes() []Node
	OfflineNodes() []Node
	AllNodes() []Node
	RunningVMs() []VM
	SleepingVMs() []VM
	ReadyVMs() []VM
	AllVMs() []VM
	RunningVMsOn(nodes ...Node) []VM
	SleepingVMsOn(nodes ...Node) []VM
	NbVMs() int
	NbNodes() int

	Clear()
	ClearNode(n Node)
	Copy() *DefaultMapping
	String() string
}

type placement struct {
	state VMState
	host  Node
}

type hosted struct {
	running  map[VM]struct{}
	sleeping map[VM]struct{}
}

// DefaultMapping is the map-backed Mapping. The per-node hosting index is
// derived from the VM placements and kept in sync by every mutator.
type DefaultMapping struct {
	nodes map[Node]NodeState
	vms   map[VM]placement
	index map[Node]*hosted
}

var _ Mapping = (*DefaultMapping)(nil)

// NewMapping creates an empty mapping.
func NewMapping() *DefaultMapping {
	return &DefaultMapping{
		nodes: make(map[Node]NodeState),
		vms:   make(map[VM]placement),
		index: make(map[Node]*hosted),
	}
}

// =============================================================================
// Mutators
// =============================================================================

// AddOnlineNode sets n online, registering it when unknown.
func (m *DefaultMapping) AddOnlineNode(n Node) bool {
	if n == NoNode {
		return false
	}
	m.nodes[n] = NodeStateOnline
	if _, ok := m.index[n]; !ok {
		m.index[n] = &hosted{running: map[VM]struct{}{}, sleeping: map[VM]struct{}{}}
	}
	return true
}

// AddOfflineNode sets n offline. It fails when n still hosts a VM.
func (m *DefaultMapping) AddOfflineNode(n Node) bool {
	if n == NoNode {
		return false
	}
	if h, ok := m.index[n]; ok && (len(h.running) > 0 || len(h.sleeping) > 0) {
		return false
	}
	m.nodes[n] = NodeStateOffline
	delete(m.index, n)
	return true
}

// AddRunningVM places vm as running on the online node n.
func (m *DefaultMapping) AddRunningVM(vm VM, n Node) bool {
	if m.nodes[n] != NodeStateOnline {
		return false
	}
	m.detach(vm)
	m.vms[vm] = placement{state: VMStateRunning, host: n}
	m.index[n].running[vm] = struct{}{}
	return true
}

// AddSleepingVM places vm as sleeping on the online node n.
func (m *DefaultMapping) AddSleepingVM(vm VM, n Node) bool {
	if m.nodes[n] != NodeStateOnline {
		return false
	}
	m.detach(vm)
	m.vms[vm] = placement{state: VMStateSleeping, host: n}
	m.index[n].sleeping[vm] = struct{}{}
	return true
}

// AddReadyVM sets vm ready, unplacing it if it was hosted.
func (m *DefaultMapping) AddReadyVM(vm VM) bool {
	m.detach(vm)
	m.vms[vm] = placement{state: VMStateReady, host: NoNode}
	return true
}

// RemoveVM forgets vm. It fails when vm is unknown.
func (m *DefaultMapping) RemoveVM(vm VM) bool {
	if _, ok := m.vms[vm]; !ok {
		return false
	}
	m.detach(vm)
	delete(m.vms, vm)
	return true
}

// RemoveNode forgets n. It fails when n is unknown or still hosts a VM.
func (m *DefaultMapping) RemoveNode(n Node) bool {
	if _, ok := m.nodes[n]; !ok {
		return false
	}
	if h, ok := m.index[n]; ok && (len(h.running) > 0 || len(h.sleeping) > 0) {
		return false
	}
	delete(m.nodes, n)
	delete(m.index, n)
	return true
}

// Clear removes every node and VM.
func (m *DefaultMapping) Clear() {
	clear(m.nodes)
	clear(m.vms)
	clear(m.index)
}

// ClearNode turns every VM hosted on n into a ready VM.
func (m *DefaultMapping) ClearNode(n Node) {
	h, ok := m.index[n]
	if !ok {
		return
	}
	for vm := range h.running {
		m.vms[vm] = placement{state: VMStateReady, host: NoNode}
	}
	for vm := range h.sleeping {
		m.vms[vm] = placement{state: VMStateReady, host: NoNode}
	}
	clear(h.running)
	clear(h.sleeping)
}

func (m *DefaultMapping) detach(vm VM) {
	p, ok := m.vms[vm]
	if !ok || p.host == NoNode {
		return
	}
	if h, ok := m.index[p.host]; ok {
		delete(h.running, vm)
		delete(h.sleeping, vm)
	}
}

// =============================================================================
// Queries
// =============================================================================

// IsOnline reports whether n is online.
func (m *DefaultMapping) IsOnline(n Node) bool { return m.nodes[n] == NodeStateOnline }

// IsOffline reports whether n is offline.
func (m *DefaultMapping) IsOffline(n Node) bool { return m.nodes[n] == NodeStateOffline }

// IsRunning reports whether vm is running.
func (m *DefaultMapping) IsRunning(vm VM) bool { return m.VMState(vm) == VMStateRunning }

// IsSleeping reports whether vm is sleeping.
func (m *DefaultMapping) IsSleeping(vm VM) bool { return m.VMState(vm) == VMStateSleeping }

// IsReady reports whether vm is ready.
func (m *DefaultMapping) IsReady(vm VM) bool { return m.VMState(vm) == VMStateReady }

// ContainsVM reports whether vm is known.
func (m *DefaultMapping) ContainsVM(vm VM) bool {
	_, ok := m.vms[vm]
	return ok
}

// ContainsNode reports whether n is known.
func (m *DefaultMapping) ContainsNode(n Node) bool {
	_, ok := m.nodes[n]
	return ok
}

// VMState returns the state of vm, VMStateUnknown when absent.
func (m *DefaultMapping) VMState(vm VM) VMState {
	p, ok := m.vms[vm]
	if !ok {
		return VMStateUnknown
	}
	return p.state
}

// NodeState returns the state of n, NodeStateUnknown when absent.
func (m *DefaultMapping) NodeState(n Node) NodeState {
	return m.nodes[n]
}

// VMLocation returns the node hosting vm, if any.
func (m *DefaultMapping) VMLocation(vm VM) (Node, bool) {
	p, ok := m.vms[vm]
	if !ok || p.host == NoNode {
		return NoNode, false
	}
	return p.host, true
}

// OnlineNodes returns the online nodes in ascending order.
func (m *DefaultMapping) OnlineNodes() []Node { return m.nodesIn(NodeStateOnline) }

// OfflineNodes returns the offline nodes in ascending order.
func (m *DefaultMapping) OfflineNodes() []Node { return m.nodesIn(NodeStateOffline) }

// AllNodes returns every node in ascending order.
func (m *DefaultMapping) AllNodes() []Node {
	return slices.Sorted(maps.Keys(m.nodes))
}

// RunningVMs returns the running VMs in ascending order.
func (m *DefaultMapping) RunningVMs() []VM { return m.vmsIn(VMStateRunning) }

// SleepingVMs returns the sleeping VMs in ascending order.
func (m *DefaultMapping) SleepingVMs() []VM { return m.vmsIn(VMStateSleeping) }

// ReadyVMs returns the ready VMs in ascending order.
func (m *DefaultMapping) ReadyVMs() []VM { return m.vmsIn(VMStateReady) }

// AllVMs returns every VM in ascending order.
func (m *DefaultMapping) AllVMs() []VM {
	return slices.Sorted(maps.Keys(m.vms))
}

// RunningVMsOn returns the VMs running on any of the given nodes.
func (m *DefaultMapping) RunningVMsOn(nodes ...Node) []VM {
	out := make([]VM, 0)
	for _, n := range nodes {
		if h, ok := m.index[n]; ok {
			out = slices.AppendSeq(out, maps.Keys(h.running))
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// SleepingVMsOn returns the VMs sleeping on any of the given nodes.
func (m *DefaultMapping) SleepingVMsOn(nodes ...Node) []VM {
	out := make([]VM, 0)
	for _, n := range nodes {
		if h, ok := m.index[n]; ok {
			out = slices.AppendSeq(out, maps.Keys(h.sleeping))
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// NbVMs returns the number of VMs.
func (m *DefaultMapping) NbVMs() int { return len(m.vms) }

// NbNodes returns the number of nodes.
func (m *DefaultMapping) NbNodes() int { return len(m.nodes) }

func (m *DefaultMapping) nodesIn(state NodeState) []Node {
	out := make([]Node, 0, len(m.nodes))
	for n, s := range m.nodes {
		if s == state {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}

func (m *DefaultMapping) vmsIn(state VMState) []VM {
	out := make([]VM, 0, len(m.vms))
	for vm, p := range m.vms {
		if p.state == state {
			out = append(out, vm)
		}
	}
	slices.Sort(out)
	return out
}

// Copy returns an independent deep copy.
func (m *DefaultMapping) Copy() *DefaultMapping {
	c := NewMapping()
	maps.Copy(c.nodes, m.nodes)
	maps.Copy(c.vms, m.vms)
	for n, h := range m.index {
		c.index[n] = &hosted{running: maps.Clone(h.running), sleeping: maps.Clone(h.sleeping)}
	}
	return c
}

// String renders one line per node followed by the ready VMs.
func (m *DefaultMapping) String() string {
	return formatMapping(m)
}

func formatMapping(m Mapping) string {
	var b strings.Builder
	for _, n := range m.OnlineNodes() {
		fmt.Fprintf(&b, "%s:", n)
		for _, vm := range m.RunningVMsOn(n) {
			fmt.Fprintf(&b, " %s", vm)
		}
		if sleeping := m.SleepingVMsOn(n); len(sleeping) > 0 {
			b.WriteString(" (")
			for i, vm := range sleeping {
				if i > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(vm.String())
			}
			b.WriteByte(')')
		}
		b.WriteByte('\n')
	}
	for _, n := range m.OfflineNodes() {
		fmt.Fprintf(&b, "(%s)\n", n)
	}
	b.WriteString("READY")
	for _, vm := range m.ReadyVMs() {
		fmt.Fprintf(&b, " %s", vm)
	}
	return b.String()
}
