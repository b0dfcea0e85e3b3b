package domain

import (
	"maps"
	"slices"
)

// ModelView is a typed annotation attached to a Model, such as a resource
// capacity table.
type ModelView interface {
	ViewID() string
	Copy() ModelView
}

// Model couples a mapping with identifier allocation and attached views.
type Model struct {
	mapping  Mapping
	views    map[string]ModelView
	nextVM   int
	nextNode int
}

// NewModel creates a model over an empty mapping.
func NewModel() *Model {
	return NewModelWith(NewMapping())
}

// NewModelWith creates a model over m. Identifier allocation starts past
// the highest identifier already present in m.
func NewModelWith(m Mapping) *Model {
	mo := &Model{mapping: m, views: make(map[string]ModelView)}
	for _, vm := range m.AllVMs() {
		mo.nextVM = max(mo.nextVM, int(vm)+1)
	}
	for _, n := range m.AllNodes() {
		mo.nextNode = max(mo.nextNode, int(n)+1)
	}
	return mo
}

// Mapping returns the model mapping.
func (mo *Model) Mapping() Mapping { return mo.mapping }

// NewVM allocates a fresh VM identifier. The VM is not added to the mapping.
func (mo *Model) NewVM() VM {
	vm := VM(mo.nextVM)
	mo.nextVM++
	return vm
}

// NewNode allocates a fresh node identifier. The node is not added to the mapping.
func (mo *Model) NewNode() Node {
	n := Node(mo.nextNode)
	mo.nextNode++
	return n
}

// AttachView attaches v. It fails when a view with the same id is attached.
func (mo *Model) AttachView(v ModelView) bool {
	if _, ok := mo.views[v.ViewID()]; ok {
		return false
	}
	mo.views[v.ViewID()] = v
	return true
}

// DetachView removes the view with the given id.
func (mo *Model) DetachView(id string) {
	delete(mo.views, id)
}

// View returns the view with the given id.
func (mo *Model) View(id string) (ModelView, bool) {
	v, ok := mo.views[id]
	return v, ok
}

// Views returns the attached views ordered by id.
func (mo *Model) Views() []ModelView {
	out := make([]ModelView, 0, len(mo.views))
	for _, id := range slices.Sorted(maps.Keys(mo.views)) {
		out = append(out, mo.views[id])
	}
	return out
}

// Copy returns a model with a copied mapping and copied views.
func (mo *Model) Copy() *Model {
	c := &Model{
		mapping:  mo.mapping.Copy(),
		views:    make(map[string]ModelView, len(mo.views)),
		nextVM:   mo.nextVM,
		nextNode: mo.nextNode,
	}
	for id, v := range mo.views {
		c.views[id] = v.Copy()
	}
	return c
}
