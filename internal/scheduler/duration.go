package scheduler

import (
	"fmt"

	"github.com/limiquantix/reconf/internal/domain"
	"github.com/limiquantix/reconf/internal/plan"
)

// DurationEvaluator estimates the duration of an action on an element.
type DurationEvaluator interface {
	Evaluate(mo *domain.Model, e domain.Element) (int, error)
}

// ConstantDuration always returns the same duration.
type ConstantDuration struct {
	Duration int
}

// Evaluate implements DurationEvaluator.
func (d ConstantDuration) Evaluate(*domain.Model, domain.Element) (int, error) {
	return d.Duration, nil
}

// LinearToResourceDuration returns A*amount+B where amount is the
// consumption of a VM or the capacity of a node for the resource.
type LinearToResourceDuration struct {
	Resource string
	A        int
	B        int
}

// Evaluate implements DurationEvaluator.
func (d LinearToResourceDuration) Evaluate(mo *domain.Model, e domain.Element) (int, error) {
	rc, ok := domain.ShareableResourceOf(mo, d.Resource)
	if !ok {
		return 0, fmt.Errorf("%w: resource %q", domain.ErrNotFound, d.Resource)
	}
	switch e := e.(type) {
	case domain.VM:
		return d.A*rc.Consumption(e) + d.B, nil
	case domain.Node:
		return d.A*rc.Capacity(e) + d.B, nil
	default:
		return 0, fmt.Errorf("%w: element %s", domain.ErrInvalidArgument, e)
	}
}

// DurationEvaluators maps action kinds to their evaluator.
type DurationEvaluators struct {
	evaluators map[plan.ActionKind]DurationEvaluator
}

// NewDurationEvaluators registers a constant duration of 1 for every kind.
func NewDurationEvaluators() *DurationEvaluators {
	d := &DurationEvaluators{evaluators: make(map[plan.ActionKind]DurationEvaluator)}
	for _, k := range plan.ActionKinds() {
		d.evaluators[k] = ConstantDuration{Duration: 1}
	}
	return d
}

// Register sets the evaluator of kind. It reports whether an evaluator was replaced.
func (d *DurationEvaluators) Register(kind plan.ActionKind, ev DurationEvaluator) bool {
	_, replaced := d.evaluators[kind]
	d.evaluators[kind] = ev
	return replaced
}

// Unregister removes the evaluator of kind.
func (d *DurationEvaluators) Unregister(kind plan.ActionKind) bool {
	_, ok := d.evaluators[kind]
	delete(d.evaluators, kind)
	return ok
}

// IsRegistered reports whether kind has an evaluator.
func (d *DurationEvaluators) IsRegistered(kind plan.ActionKind) bool {
	_, ok := d.evaluators[kind]
	return ok
}

// Evaluator returns the evaluator of kind.
func (d *DurationEvaluators) Evaluator(kind plan.ActionKind) (DurationEvaluator, bool) {
	ev, ok := d.evaluators[kind]
	return ev, ok
}

// Evaluate returns the duration of an action of the given kind on e.
func (d *DurationEvaluators) Evaluate(mo *domain.Model, kind plan.ActionKind, e domain.Element) (int, error) {
	ev, ok := d.evaluators[kind]
	if !ok {
		return 0, fmt.Errorf("%w: no duration evaluator for %s", domain.ErrNotFound, kind)
	}
	v, err := ev.Evaluate(mo, e)
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate %s duration of %s: %w", kind, e, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: negative %s duration %d for %s", domain.ErrInvalidArgument, kind, v, e)
	}
	return v, nil
}
