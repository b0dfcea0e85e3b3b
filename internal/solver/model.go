package solver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

var errBudget = errors.New("search budget exhausted")

// Model is the reference Engine.
type Model struct {
	names     []string
	doms      []bitDomain
	props     []Propagator
	order     []*IntVar
	hints     map[int]int
	constants map[int]*IntVar

	objective *IntVar
	minimize  bool
	alterer   ObjectiveAlterer

	logger *zap.Logger
}

var _ Engine = (*Model)(nil)

// NewModel creates an empty model.
func NewModel(logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Model{
		hints:     make(map[int]int),
		constants: make(map[int]*IntVar),
		logger:    logger.With(zap.String("component", "solver")),
	}
}

func (m *Model) newVar(name string, d bitDomain) *IntVar {
	v := &IntVar{id: len(m.doms), name: name}
	m.names = append(m.names, name)
	m.doms = append(m.doms, d)
	return v
}

// NewIntVar creates a variable ranging over [lb, ub].
func (m *Model) NewIntVar(name string, lb, ub int) *IntVar {
	return m.newVar(name, newRangeDomain(lb, ub))
}

// NewEnumVar creates a variable ranging over values.
func (m *Model) NewEnumVar(name string, values []int) *IntVar {
	return m.newVar(name, newValuesDomain(values))
}

// Constant returns a shared variable fixed to value.
func (m *Model) Constant(value int) *IntVar {
	if v, ok := m.constants[value]; ok {
		return v
	}
	v := m.NewIntVar("cst"+strconv.Itoa(value), value, value)
	m.constants[value] = v
	return v
}

// Post adds a propagator.
func (m *Model) Post(p Propagator) error {
	for _, v := range p.Vars() {
		if v == nil || v.id >= len(m.doms) || m.names[v.id] != v.name {
			return fmt.Errorf("propagator %s uses a foreign variable", p)
		}
	}
	m.props = append(m.props, p)
	return nil
}

// SetObjective sets the objective variable. A nil alterer asks for any
// strictly better value.
func (m *Model) SetObjective(v *IntVar, minimize bool, alterer ObjectiveAlterer) {
	if alterer == nil {
		alterer = func(cur int) int {
			if minimize {
				return cur - 1
			}
			return cur + 1
		}
	}
	m.objective, m.minimize, m.alterer = v, minimize, alterer
}

// SetSearchOrder appends vars to the branching order. Variables never
// listed are branched on last, in creation order.
func (m *Model) SetSearchOrder(vars ...*IntVar) {
	m.order = append(m.order, vars...)
}

// SetHint makes the search try value first for v.
func (m *Model) SetHint(v *IntVar, value int) {
	m.hints[v.id] = value
}

// NbVars returns the number of variables.
func (m *Model) NbVars() int { return len(m.doms) }

// Solve runs the search. Without an objective, or without Optimize, the
// first solution is returned as feasible.
func (m *Model) Solve(ctx context.Context, params Params) (*Result, error) {
	s := &search{model: m, ctx: ctx, started: time.Now()}
	if params.TimeLimit > 0 {
		s.deadline = s.started.Add(params.TimeLimit)
	}
	s.order = m.branchingOrder()

	res := &Result{Status: StatusUndecided}
	defer func() {
		res.Nodes = s.nodes
		res.Elapsed = time.Since(s.started)
		m.logger.Debug("Search finished",
			zap.Stringer("status", res.Status),
			zap.Int("solutions", res.Solutions),
			zap.Int("nodes", res.Nodes),
			zap.Duration("elapsed", res.Elapsed),
		)
	}()

	root := newStore(m.doms)
	for {
		if err := s.propagate(root); err != nil {
			if res.Solutions > 0 {
				res.Status = StatusOptimal
			} else {
				res.Status = StatusInfeasible
			}
			return res, nil
		}
		found, err := s.dfs(root)
		if errors.Is(err, errBudget) {
			if res.Solutions > 0 {
				res.Status = StatusFeasible
			}
			return res, nil
		}
		if err != nil {
			return nil, err
		}
		if !found {
			if res.Solutions > 0 {
				res.Status = StatusOptimal
			} else {
				res.Status = StatusInfeasible
			}
			return res, nil
		}

		res.Solutions++
		res.values = s.solution
		if m.objective == nil {
			res.Status = StatusFeasible
			return res, nil
		}
		res.Objective = s.solution[m.objective.id]
		if !params.Optimize {
			res.Status = StatusFeasible
			return res, nil
		}

		// Restart from the root with a tighter objective bound.
		bound := m.alterer(res.Objective)
		if m.minimize {
			bound = min(bound, res.Objective-1)
			if err := root.SetMax(m.objective, bound); err != nil {
				res.Status = StatusOptimal
				return res, nil
			}
		} else {
			bound = max(bound, res.Objective+1)
			if err := root.SetMin(m.objective, bound); err != nil {
				res.Status = StatusOptimal
				return res, nil
			}
		}
	}
}

func (m *Model) branchingOrder() []*IntVar {
	seen := make([]bool, len(m.doms))
	out := make([]*IntVar, 0, len(m.doms))
	for _, v := range m.order {
		if !seen[v.id] {
			seen[v.id] = true
			out = append(out, v)
		}
	}
	for id, name := range m.names {
		if !seen[id] {
			out = append(out, &IntVar{id: id, name: name})
		}
	}
	return out
}

type search struct {
	model    *Model
	ctx      context.Context
	started  time.Time
	deadline time.Time
	order    []*IntVar
	nodes    int
	solution []int
}

func (s *search) expired() bool {
	if s.ctx.Err() != nil {
		return true
	}
	return !s.deadline.IsZero() && time.Now().After(s.deadline)
}

// propagate runs every propagator until no domain changes.
func (s *search) propagate(st *Store) error {
	for {
		st.changed = false
		for _, p := range s.model.props {
			if err := p.Propagate(st); err != nil {
				return err
			}
		}
		if !st.changed {
			return nil
		}
	}
}

func (s *search) dfs(st *Store) (bool, error) {
	s.nodes++
	if s.expired() {
		return false, errBudget
	}
	v := s.nextVar(st)
	if v == nil {
		s.solution = make([]int, len(st.doms))
		for i := range st.doms {
			s.solution[i] = st.doms[i].lo
		}
		return true, nil
	}
	val := s.pickValue(st, v)

	left := st.clone()
	if left.Fix(v, val) == nil && s.propagate(left) == nil {
		if found, err := s.dfs(left); found || err != nil {
			return found, err
		}
	}
	right := st.clone()
	if right.Remove(v, val) == nil && s.propagate(right) == nil {
		return s.dfs(right)
	}
	return false, nil
}

func (s *search) nextVar(st *Store) *IntVar {
	for _, v := range s.order {
		if !st.Fixed(v) {
			return v
		}
	}
	return nil
}

func (s *search) pickValue(st *Store, v *IntVar) int {
	if h, ok := s.model.hints[v.id]; ok && st.Contains(v, h) {
		return h
	}
	return st.Min(v)
}
