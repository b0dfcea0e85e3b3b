// Package solver provides a finite-domain constraint engine: integer
// variables, propagators, depth-first search with value hints and a
// branch-and-bound objective loop under a time limit.
package solver

import (
	"context"
	"time"
)

// Status is the outcome of a solve.
type Status int

const (
	// StatusInfeasible means the search space holds no solution.
	StatusInfeasible Status = iota
	// StatusFeasible means a solution was found but not proven optimal.
	StatusFeasible
	// StatusOptimal means the best solution was found and proven so.
	StatusOptimal
	// StatusUndecided means the search stopped before finding a solution
	// or proving there is none.
	StatusUndecided
)

func (s Status) String() string {
	switch s {
	case StatusInfeasible:
		return "infeasible"
	case StatusFeasible:
		return "feasible"
	case StatusOptimal:
		return "optimal"
	default:
		return "undecided"
	}
}

// ObjectiveAlterer returns the bound the next solution must reach, given
// the objective value of the last solution found.
type ObjectiveAlterer func(current int) int

// Params tune a solve call.
type Params struct {
	// TimeLimit bounds the search. Zero means no limit.
	TimeLimit time.Duration
	// Optimize keeps searching for better solutions after the first one.
	Optimize bool
}

// Propagator prunes variable domains. Propagate returns ErrFail when it
// proves the current store inconsistent.
type Propagator interface {
	Vars() []*IntVar
	Propagate(s *Store) error
	String() string
}

// Engine is the contract between the reconfiguration model and the search.
type Engine interface {
	NewIntVar(name string, lb, ub int) *IntVar
	NewEnumVar(name string, values []int) *IntVar
	Constant(value int) *IntVar
	Post(p Propagator) error
	SetObjective(v *IntVar, minimize bool, alterer ObjectiveAlterer)
	SetSearchOrder(vars ...*IntVar)
	SetHint(v *IntVar, value int)
	NbVars() int
	Solve(ctx context.Context, params Params) (*Result, error)
}

// Result is the outcome of a solve.
type Result struct {
	Status    Status
	Objective int
	Solutions int
	Nodes     int
	Elapsed   time.Duration

	values []int
}

// HasSolution reports whether the result carries variable values.
func (r *Result) HasSolution() bool {
	return r.Status == StatusFeasible || r.Status == StatusOptimal
}

// Value returns the value of v in the best solution.
func (r *Result) Value(v *IntVar) int {
	return r.values[v.id]
}
