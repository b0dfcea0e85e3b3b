package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/limiquantix/reconf/internal/domain"
)

// ReconfigurationPlan is a set of timed actions over a source model. Actions
// are kept ordered by start, then end, then phase, then insertion. Node boots
// come first and node shutdowns last among actions with the same interval.
type ReconfigurationPlan struct {
	id      string
	origin  *domain.Model
	actions []Action
}

// NewReconfigurationPlan creates an empty plan over origin.
func NewReconfigurationPlan(origin *domain.Model) *ReconfigurationPlan {
	return &ReconfigurationPlan{id: uuid.NewString(), origin: origin}
}

// ID returns the plan identifier.
func (p *ReconfigurationPlan) ID() string { return p.id }

// Origin returns the source model.
func (p *ReconfigurationPlan) Origin() *domain.Model { return p.origin }

// Add inserts a. It returns false for a negative start or an end before
// the start.
func (p *ReconfigurationPlan) Add(a Action) bool {
	if a.Start < 0 || a.End < a.Start {
		return false
	}
	i := sort.Search(len(p.actions), func(i int) bool {
		b := p.actions[i]
		switch {
		case b.Start != a.Start:
			return b.Start > a.Start
		case b.End != a.End:
			return b.End > a.End
		default:
			return b.Kind.phase() > a.Kind.phase()
		}
	})
	p.actions = append(p.actions, Action{})
	copy(p.actions[i+1:], p.actions[i:])
	p.actions[i] = a
	return true
}

// Actions returns the actions in plan order.
func (p *ReconfigurationPlan) Actions() []Action {
	out := make([]Action, len(p.actions))
	copy(out, p.actions)
	return out
}

// Size returns the number of actions.
func (p *ReconfigurationPlan) Size() int { return len(p.actions) }

// Duration returns the latest action end, 0 for an empty plan.
func (p *ReconfigurationPlan) Duration() int {
	d := 0
	for _, a := range p.actions {
		d = max(d, a.End)
	}
	return d
}

// Result replays the actions on a copy of the origin model.
func (p *ReconfigurationPlan) Result() (*domain.Model, error) {
	mo := p.origin.Copy()
	for _, a := range p.actions {
		if !a.Apply(mo.Mapping()) {
			return nil, fmt.Errorf("%w: action %s is not applicable", domain.ErrInconsistentPlan, a)
		}
	}
	return mo, nil
}

// IsApplicable reports whether every action applies in plan order.
func (p *ReconfigurationPlan) IsApplicable() bool {
	_, err := p.Result()
	return err == nil
}

func (p *ReconfigurationPlan) String() string {
	var b strings.Builder
	for i, a := range p.actions {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(a.String())
	}
	return b.String()
}
