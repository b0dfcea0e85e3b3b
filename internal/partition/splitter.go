package partition

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/limiquantix/reconf/internal/constraint"
	"github.com/limiquantix/reconf/internal/domain"
)

// SplitContext is the state shared by the splitters of one split.
type SplitContext struct {
	// Source is the instance being split.
	Source *domain.Instance
	// Models are the sub-models, one per partition.
	Models []*domain.Model
	// VMIndex maps every dispatched VM to its partition.
	VMIndex map[domain.VM]int
	// NodeIndex maps every partitioned node to its partition.
	NodeIndex map[domain.Node]int

	constraints [][]domain.SatConstraint
}

func newSplitContext(src *domain.Instance, models []*domain.Model, vmIdx map[domain.VM]int, nodeIdx map[domain.Node]int) *SplitContext {
	return &SplitContext{
		Source:      src,
		Models:      models,
		VMIndex:     vmIdx,
		NodeIndex:   nodeIdx,
		constraints: make([][]domain.SatConstraint, len(models)),
	}
}

// Attach adds c to the constraints of partition part.
func (ctx *SplitContext) Attach(part int, c domain.SatConstraint) {
	ctx.constraints[part] = append(ctx.constraints[part], c)
}

// Constraints returns the constraints attached to partition part.
func (ctx *SplitContext) Constraints(part int) []domain.SatConstraint {
	return slices.Clone(ctx.constraints[part])
}

// Group is a set of elements sharing a partition.
type Group[E any] struct {
	Part     int
	Elements []E
}

func group[E comparable](elems []E, index map[E]int) []Group[E] {
	byPart := make(map[int][]E)
	for _, e := range elems {
		if p, ok := index[e]; ok {
			byPart[p] = append(byPart[p], e)
		}
	}
	out := make([]Group[E], 0, len(byPart))
	for _, p := range slices.Sorted(maps.Keys(byPart)) {
		out = append(out, Group[E]{Part: p, Elements: byPart[p]})
	}
	return out
}

// VMGroups groups vms by partition, in partition order. VMs outside every
// partition are dropped.
func (ctx *SplitContext) VMGroups(vms []domain.VM) []Group[domain.VM] {
	return group(vms, ctx.VMIndex)
}

// NodeGroups groups nodes by partition, in partition order.
func (ctx *SplitContext) NodeGroups(nodes []domain.Node) []Group[domain.Node] {
	return group(nodes, ctx.NodeIndex)
}

// NodesIn returns the nodes of part among nodes.
func (ctx *SplitContext) NodesIn(part int, nodes []domain.Node) []domain.Node {
	var out []domain.Node
	for _, n := range nodes {
		if p, ok := ctx.NodeIndex[n]; ok && p == part {
			out = append(out, n)
		}
	}
	return out
}

// Splitter rewrites a constraint for the partitions. It returns false when
// the constraint cannot be split.
type Splitter interface {
	Split(c domain.SatConstraint, ctx *SplitContext) bool
}

// SplitterFunc adapts a function to Splitter.
type SplitterFunc func(c domain.SatConstraint, ctx *SplitContext) bool

// Split implements Splitter.
func (f SplitterFunc) Split(c domain.SatConstraint, ctx *SplitContext) bool { return f(c, ctx) }

// SplitterRegistry resolves the splitter of a constraint by kind.
type SplitterRegistry struct {
	mu        sync.RWMutex
	splitters map[domain.ConstraintKind]Splitter
}

// NewSplitterRegistry creates a registry holding the splitters of every
// built-in constraint kind.
func NewSplitterRegistry() *SplitterRegistry {
	r := &SplitterRegistry{splitters: make(map[domain.ConstraintKind]Splitter)}
	r.Register(constraint.KindRunning, vmSplitter(func(vms []domain.VM) domain.SatConstraint { return constraint.NewRunning(vms...) }))
	r.Register(constraint.KindReady, vmSplitter(func(vms []domain.VM) domain.SatConstraint { return constraint.NewReady(vms...) }))
	r.Register(constraint.KindSleeping, vmSplitter(func(vms []domain.VM) domain.SatConstraint { return constraint.NewSleeping(vms...) }))
	r.Register(constraint.KindKilled, vmSplitter(func(vms []domain.VM) domain.SatConstraint { return constraint.NewKilled(vms...) }))
	r.Register(constraint.KindRoot, vmSplitter(func(vms []domain.VM) domain.SatConstraint { return constraint.NewRoot(vms...) }))
	r.Register(constraint.KindOnline, nodeSplitter(func(ns []domain.Node) domain.SatConstraint { return constraint.NewOnline(ns...) }))
	r.Register(constraint.KindOffline, nodeSplitter(func(ns []domain.Node) domain.SatConstraint { return constraint.NewOffline(ns...) }))
	r.Register(constraint.KindFence, SplitterFunc(splitFence))
	r.Register(constraint.KindBan, SplitterFunc(splitBan))
	r.Register(constraint.KindSpread, SplitterFunc(splitSpread))
	r.Register(constraint.KindGather, SplitterFunc(splitGather))
	r.Register(constraint.KindMaxOnline, SplitterFunc(splitMaxOnline))
	r.Register(constraint.KindPrecedence, SplitterFunc(splitPrecedence))
	return r
}

// Register sets the splitter of kind. It reports whether a splitter was replaced.
func (r *SplitterRegistry) Register(kind domain.ConstraintKind, s Splitter) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.splitters[kind]
	r.splitters[kind] = s
	return replaced
}

// Unregister removes the splitter of kind.
func (r *SplitterRegistry) Unregister(kind domain.ConstraintKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.splitters[kind]
	delete(r.splitters, kind)
	return ok
}

// Get returns the splitter of kind.
func (r *SplitterRegistry) Get(kind domain.ConstraintKind) (Splitter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.splitters[kind]
	return s, ok
}

// Split dispatches c to its splitter.
func (r *SplitterRegistry) Split(c domain.SatConstraint, ctx *SplitContext) error {
	s, ok := r.Get(c.Kind())
	if !ok {
		return fmt.Errorf("%w: no splitter for %s", domain.ErrUnsplittable, c.Kind())
	}
	if !s.Split(c, ctx) {
		return fmt.Errorf("%w: %s", domain.ErrUnsplittable, c)
	}
	return nil
}

// =============================================================================
// Built-in splitters
// =============================================================================

// vmSplitter narrows a VM-scoped constraint to the VMs of every partition.
func vmSplitter(build func(vms []domain.VM) domain.SatConstraint) Splitter {
	return SplitterFunc(func(c domain.SatConstraint, ctx *SplitContext) bool {
		for _, g := range ctx.VMGroups(c.InvolvedVMs()) {
			ctx.Attach(g.Part, build(g.Elements))
		}
		return true
	})
}

// nodeSplitter narrows a node-scoped constraint to the nodes of every partition.
func nodeSplitter(build func(nodes []domain.Node) domain.SatConstraint) Splitter {
	return SplitterFunc(func(c domain.SatConstraint, ctx *SplitContext) bool {
		for _, g := range ctx.NodeGroups(c.InvolvedNodes()) {
			ctx.Attach(g.Part, build(g.Elements))
		}
		return true
	})
}

// splitFence keeps the fenced nodes of each partition. A partition without
// any of them gets an empty fence and no placement for its VMs.
func splitFence(c domain.SatConstraint, ctx *SplitContext) bool {
	for _, g := range ctx.VMGroups(c.InvolvedVMs()) {
		ctx.Attach(g.Part, constraint.NewFence(g.Elements, ctx.NodesIn(g.Part, c.InvolvedNodes())))
	}
	return true
}

func splitBan(c domain.SatConstraint, ctx *SplitContext) bool {
	for _, g := range ctx.VMGroups(c.InvolvedVMs()) {
		if nodes := ctx.NodesIn(g.Part, c.InvolvedNodes()); len(nodes) > 0 {
			ctx.Attach(g.Part, constraint.NewBan(g.Elements, nodes))
		}
	}
	return true
}

// splitSpread spreads the VMs of each partition. VMs of distinct
// partitions never share a node.
func splitSpread(c domain.SatConstraint, ctx *SplitContext) bool {
	for _, g := range ctx.VMGroups(c.InvolvedVMs()) {
		if len(g.Elements) > 1 {
			ctx.Attach(g.Part, constraint.NewSpread(g.Elements, c.IsContinuous()))
		}
	}
	return true
}

func splitGather(c domain.SatConstraint, ctx *SplitContext) bool {
	groups := ctx.VMGroups(c.InvolvedVMs())
	switch len(groups) {
	case 0:
		return true
	case 1:
		ctx.Attach(groups[0].Part, c)
		return true
	default:
		return false
	}
}

// splitMaxOnline keeps a constraint, continuous or not, whole in the only
// part it touches. A bound no smaller than the node count never binds.
func splitMaxOnline(c domain.SatConstraint, ctx *SplitContext) bool {
	mo, ok := c.(*constraint.MaxOnline)
	if !ok {
		return false
	}
	groups := ctx.NodeGroups(c.InvolvedNodes())
	switch {
	case len(groups) == 0:
		return true
	case len(groups) == 1:
		ctx.Attach(groups[0].Part, c)
		return true
	case mo.Amount() >= len(c.InvolvedNodes()):
		return true
	default:
		return false
	}
}

func splitPrecedence(c domain.SatConstraint, ctx *SplitContext) bool {
	p, ok := c.(*constraint.Precedence)
	if !ok {
		return false
	}
	before, okB := ctx.VMIndex[p.Before()]
	after, okA := ctx.VMIndex[p.After()]
	if !okB || !okA || before != after {
		return false
	}
	ctx.Attach(before, c)
	return true
}
