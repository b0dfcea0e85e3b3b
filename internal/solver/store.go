package solver

import (
	"errors"
	"fmt"
)

// ErrFail is returned by a propagator when a domain becomes empty.
var ErrFail = errors.New("domain wipe-out")

// IntVar is a finite-domain integer variable of a Model.
type IntVar struct {
	id   int
	name string
}

// Name returns the variable name.
func (v *IntVar) Name() string { return v.name }

func (v *IntVar) String() string { return fmt.Sprintf("%s#%d", v.name, v.id) }

// Store holds the current domain of every variable during search.
type Store struct {
	doms    []bitDomain
	changed bool
}

func newStore(doms []bitDomain) *Store {
	s := &Store{doms: make([]bitDomain, len(doms))}
	for i, d := range doms {
		s.doms[i] = d.clone()
	}
	return s
}

func (s *Store) clone() *Store { return newStore(s.doms) }

// Min returns the lower bound of v.
func (s *Store) Min(v *IntVar) int { return s.doms[v.id].lo }

// Max returns the upper bound of v.
func (s *Store) Max(v *IntVar) int { return s.doms[v.id].hi }

// Size returns the number of values left for v.
func (s *Store) Size(v *IntVar) int { return s.doms[v.id].size }

// Fixed reports whether v has a single value left.
func (s *Store) Fixed(v *IntVar) bool { return s.doms[v.id].fixed() }

// Value returns the value of a fixed variable.
func (s *Store) Value(v *IntVar) int { return s.doms[v.id].lo }

// Contains reports whether v may take value x.
func (s *Store) Contains(v *IntVar, x int) bool { return s.doms[v.id].contains(x) }

// Values returns the values left for v in ascending order.
func (s *Store) Values(v *IntVar) []int { return s.doms[v.id].values() }

func (s *Store) check(v *IntVar, changed bool) error {
	if changed {
		s.changed = true
	}
	if s.doms[v.id].empty() {
		return ErrFail
	}
	return nil
}

// SetMin raises the lower bound of v to x.
func (s *Store) SetMin(v *IntVar, x int) error {
	d := &s.doms[v.id]
	if x <= d.lo {
		return nil
	}
	return s.check(v, d.restrict(x, d.hi))
}

// SetMax lowers the upper bound of v to x.
func (s *Store) SetMax(v *IntVar, x int) error {
	d := &s.doms[v.id]
	if x >= d.hi {
		return nil
	}
	return s.check(v, d.restrict(d.lo, x))
}

// Fix assigns x to v.
func (s *Store) Fix(v *IntVar, x int) error {
	return s.check(v, s.doms[v.id].fix(x))
}

// Remove removes x from the domain of v.
func (s *Store) Remove(v *IntVar, x int) error {
	return s.check(v, s.doms[v.id].remove(x))
}
