package partition

import (
	"fmt"
	"strings"

	"github.com/limiquantix/reconf/internal/domain"
	"github.com/limiquantix/reconf/internal/plan"
)

// MergePolicy decides how the time axes of sub-plans are combined.
type MergePolicy int

const (
	// MergeConcurrent keeps every sub-plan on its own time axis starting at 0.
	MergeConcurrent MergePolicy = iota
	// MergeSequential shifts each sub-plan after the ones before it.
	MergeSequential
)

func (p MergePolicy) String() string {
	if p == MergeSequential {
		return "sequential"
	}
	return "concurrent"
}

// ParseMergePolicy parses "concurrent" or "sequential".
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch strings.ToLower(s) {
	case "", "concurrent":
		return MergeConcurrent, nil
	case "sequential":
		return MergeSequential, nil
	default:
		return 0, fmt.Errorf("%w: merge policy %q", domain.ErrInvalidArgument, s)
	}
}

// Merge combines sub-plans into one plan over origin and checks that the
// result is applicable.
func Merge(origin *domain.Model, plans []*plan.ReconfigurationPlan, policy MergePolicy) (*plan.ReconfigurationPlan, error) {
	merged := plan.NewReconfigurationPlan(origin)
	offset := 0
	for i, sp := range plans {
		for _, a := range sp.Actions() {
			a.Start += offset
			a.End += offset
			if !merged.Add(a) {
				return nil, fmt.Errorf("%w: sub-plan %d action %s", domain.ErrInconsistentPlan, i, a)
			}
		}
		if policy == MergeSequential {
			offset += sp.Duration()
		}
	}
	if _, err := merged.Result(); err != nil {
		return nil, fmt.Errorf("failed to merge sub-plans: %w", err)
	}
	return merged, nil
}
