package domain

import (
	"maps"
	"slices"
)

// ShareableResourceViewPrefix prefixes the view id of every ShareableResource.
const ShareableResourceViewPrefix = "ShareableResource."

// ShareableResource is a view holding a per-node capacity and a per-VM
// consumption for one resource, such as cpu or memory.
type ShareableResource struct {
	name               string
	capacity           map[Node]int
	consumption        map[VM]int
	defaultCapacity    int
	defaultConsumption int
}

var _ ModelView = (*ShareableResource)(nil)

// NewShareableResource creates a resource with the given defaults.
func NewShareableResource(name string, defaultCapacity, defaultConsumption int) *ShareableResource {
	return &ShareableResource{
		name:               name,
		capacity:           make(map[Node]int),
		consumption:        make(map[VM]int),
		defaultCapacity:    defaultCapacity,
		defaultConsumption: defaultConsumption,
	}
}

// ShareableResourceOf returns the resource view named name attached to mo.
func ShareableResourceOf(mo *Model, name string) (*ShareableResource, bool) {
	v, ok := mo.View(ShareableResourceViewPrefix + name)
	if !ok {
		return nil, false
	}
	rc, ok := v.(*ShareableResource)
	return rc, ok
}

// ViewID implements ModelView.
func (r *ShareableResource) ViewID() string { return ShareableResourceViewPrefix + r.name }

// ResourceID returns the resource name.
func (r *ShareableResource) ResourceID() string { return r.name }

// Capacity returns the capacity of n.
func (r *ShareableResource) Capacity(n Node) int {
	if c, ok := r.capacity[n]; ok {
		return c
	}
	return r.defaultCapacity
}

// Consumption returns the consumption of vm.
func (r *ShareableResource) Consumption(vm VM) int {
	if c, ok := r.consumption[vm]; ok {
		return c
	}
	return r.defaultConsumption
}

// SetCapacity sets the capacity of the given nodes.
func (r *ShareableResource) SetCapacity(value int, nodes ...Node) *ShareableResource {
	for _, n := range nodes {
		r.capacity[n] = value
	}
	return r
}

// SetConsumption sets the consumption of the given VMs.
func (r *ShareableResource) SetConsumption(value int, vms ...VM) *ShareableResource {
	for _, vm := range vms {
		r.consumption[vm] = value
	}
	return r
}

// DefinedNodes returns the nodes with an explicit capacity.
func (r *ShareableResource) DefinedNodes() []Node {
	return slices.Sorted(maps.Keys(r.capacity))
}

// Copy implements ModelView.
func (r *ShareableResource) Copy() ModelView {
	c := NewShareableResource(r.name, r.defaultCapacity, r.defaultConsumption)
	maps.Copy(c.capacity, r.capacity)
	maps.Copy(c.consumption, r.consumption)
	return c
}
