package solver

import (
	"fmt"
	"math"
	"slices"
)

// Task is a resource usage over [Start, End) on the node chosen by Host.
// A nil Start means the task starts at 0. A nil End means the task lasts
// until the end of the schedule.
type Task struct {
	Start  *IntVar
	End    *IntVar
	Height int
	Host   *IntVar
}

// Cumulative bounds the load of tasks hosted on a set of nodes sharing one
// capacity. Only tasks whose host is fixed inside the set are accounted.
// Open-ended tasks also form a static load that prunes host candidates.
type Cumulative struct {
	Tasks    []Task
	Capacity int
	Nodes    []int
}

// NewCumulative creates a cumulative constraint over the given node set.
func NewCumulative(tasks []Task, capacity int, nodes ...int) *Cumulative {
	return &Cumulative{Tasks: tasks, Capacity: capacity, Nodes: nodes}
}

func (c *Cumulative) Vars() []*IntVar {
	out := make([]*IntVar, 0, 3*len(c.Tasks))
	for _, t := range c.Tasks {
		for _, v := range []*IntVar{t.Start, t.End, t.Host} {
			if v != nil {
				out = append(out, v)
			}
		}
	}
	return out
}

type loadEvent struct {
	at    int
	delta int
}

func (c *Cumulative) hostedHere(s *Store, t Task) bool {
	return s.Fixed(t.Host) && slices.Contains(c.Nodes, s.Value(t.Host))
}

func (c *Cumulative) mayBeHere(s *Store, t Task) bool {
	for _, n := range c.Nodes {
		if s.Contains(t.Host, n) {
			return true
		}
	}
	return false
}

func (c *Cumulative) Propagate(s *Store) error {
	events := make([]loadEvent, 0, 2*len(c.Tasks))
	final := 0
	for _, t := range c.Tasks {
		if t.Height <= 0 || !c.hostedHere(s, t) {
			continue
		}
		from, to := 0, math.MaxInt
		if t.Start != nil {
			from = s.Max(t.Start)
		}
		if t.End != nil {
			to = s.Min(t.End)
		} else {
			final += t.Height
		}
		if from < to {
			events = append(events, loadEvent{from, t.Height}, loadEvent{to, -t.Height})
		}
	}
	if final > c.Capacity {
		return ErrFail
	}

	// Releases come first at equal times: intervals are half-open.
	slices.SortFunc(events, func(a, b loadEvent) int {
		if a.at != b.at {
			if a.at < b.at {
				return -1
			}
			return 1
		}
		return a.delta - b.delta
	})
	load := 0
	for _, e := range events {
		load += e.delta
		if load > c.Capacity {
			return ErrFail
		}
	}

	for _, t := range c.Tasks {
		if t.End != nil || t.Height <= 0 || s.Fixed(t.Host) || !c.mayBeHere(s, t) {
			continue
		}
		if final+t.Height > c.Capacity {
			for _, n := range c.Nodes {
				if err := s.Remove(t.Host, n); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (c *Cumulative) String() string {
	return fmt.Sprintf("cumulative(%d tasks, capacity=%d, nodes=%v)", len(c.Tasks), c.Capacity, c.Nodes)
}
