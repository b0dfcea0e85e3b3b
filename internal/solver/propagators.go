package solver

import (
	"fmt"
	"strings"
)

// =============================================================================
// Linear
// =============================================================================

// Operator is the relation of a linear constraint.
type Operator int

const (
	// LE is Σ coef*var <= rhs.
	LE Operator = iota
	// EQ is Σ coef*var == rhs.
	EQ
)

// Term is coef*var.
type Term struct {
	Coef int
	Var  *IntVar
}

// Linear is Σ coef*var op rhs with bounds propagation.
type Linear struct {
	Terms []Term
	Op    Operator
	RHS   int
}

// NewLinear creates a linear constraint.
func NewLinear(op Operator, rhs int, terms ...Term) *Linear {
	return &Linear{Terms: terms, Op: op, RHS: rhs}
}

// LessOrEqual posts x + offset <= y.
func LessOrEqual(x, y *IntVar, offset int) *Linear {
	return NewLinear(LE, -offset, Term{1, x}, Term{-1, y})
}

// Equal posts x + offset == y.
func Equal(x, y *IntVar, offset int) *Linear {
	return NewLinear(EQ, -offset, Term{1, x}, Term{-1, y})
}

// Sum posts Σ vars == result.
func Sum(result *IntVar, vars ...*IntVar) *Linear {
	terms := make([]Term, 0, len(vars)+1)
	for _, v := range vars {
		terms = append(terms, Term{1, v})
	}
	terms = append(terms, Term{-1, result})
	return NewLinear(EQ, 0, terms...)
}

func (c *Linear) Vars() []*IntVar {
	out := make([]*IntVar, len(c.Terms))
	for i, t := range c.Terms {
		out[i] = t.Var
	}
	return out
}

func termMin(s *Store, t Term) int {
	if t.Coef >= 0 {
		return t.Coef * s.Min(t.Var)
	}
	return t.Coef * s.Max(t.Var)
}

func termMax(s *Store, t Term) int {
	if t.Coef >= 0 {
		return t.Coef * s.Max(t.Var)
	}
	return t.Coef * s.Min(t.Var)
}

// Violated reports whether no assignment left in s can satisfy c.
func (c *Linear) Violated(s *Store) bool {
	lo, hi := 0, 0
	for _, t := range c.Terms {
		lo += termMin(s, t)
		hi += termMax(s, t)
	}
	if c.Op == EQ {
		return lo > c.RHS || hi < c.RHS
	}
	return lo > c.RHS
}

func (c *Linear) Propagate(s *Store) error {
	if err := propagateLE(s, c.Terms, c.RHS, 1); err != nil {
		return err
	}
	if c.Op == EQ {
		return propagateLE(s, c.Terms, -c.RHS, -1)
	}
	return nil
}

// propagateLE enforces Σ sign*coef*var <= rhs.
func propagateLE(s *Store, terms []Term, rhs, sign int) error {
	total := 0
	for _, t := range terms {
		total += termMin(s, Term{sign * t.Coef, t.Var})
	}
	if total > rhs {
		return ErrFail
	}
	for _, t := range terms {
		a := sign * t.Coef
		if a == 0 {
			continue
		}
		// a*x <= rhs - (total - min(a*x))
		slack := rhs - total + termMin(s, Term{a, t.Var})
		if a > 0 {
			if err := s.SetMax(t.Var, floorDiv(slack, a)); err != nil {
				return err
			}
		} else {
			if err := s.SetMin(t.Var, ceilDiv(slack, a)); err != nil {
				return err
			}
		}
	}
	return nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) == (b < 0)) {
		q++
	}
	return q
}

func (c *Linear) String() string {
	parts := make([]string, len(c.Terms))
	for i, t := range c.Terms {
		parts[i] = fmt.Sprintf("%d*%s", t.Coef, t.Var)
	}
	op := "<="
	if c.Op == EQ {
		op = "=="
	}
	return fmt.Sprintf("%s %s %d", strings.Join(parts, " + "), op, c.RHS)
}

// =============================================================================
// Conditional and reified constraints
// =============================================================================

// Conditional enforces Then when X equals Value. When Then cannot hold,
// Value is removed from X.
type Conditional struct {
	X     *IntVar
	Value int
	Then  *Linear
}

// NewConditional creates X == value => then.
func NewConditional(x *IntVar, value int, then *Linear) *Conditional {
	return &Conditional{X: x, Value: value, Then: then}
}

func (c *Conditional) Vars() []*IntVar { return append([]*IntVar{c.X}, c.Then.Vars()...) }

func (c *Conditional) Propagate(s *Store) error {
	if !s.Contains(c.X, c.Value) {
		return nil
	}
	if s.Fixed(c.X) {
		return c.Then.Propagate(s)
	}
	if c.Then.Violated(s) {
		return s.Remove(c.X, c.Value)
	}
	return nil
}

func (c *Conditional) String() string {
	return fmt.Sprintf("%s == %d => %s", c.X, c.Value, c.Then)
}

// EqReif links the boolean B to X == Value.
type EqReif struct {
	X     *IntVar
	Value int
	B     *IntVar
}

// NewEqReif creates b <=> (x == value).
func NewEqReif(x *IntVar, value int, b *IntVar) *EqReif {
	return &EqReif{X: x, Value: value, B: b}
}

func (c *EqReif) Vars() []*IntVar { return []*IntVar{c.X, c.B} }

func (c *EqReif) Propagate(s *Store) error {
	if err := s.SetMin(c.B, 0); err != nil {
		return err
	}
	if err := s.SetMax(c.B, 1); err != nil {
		return err
	}
	if !s.Contains(c.X, c.Value) {
		return s.Fix(c.B, 0)
	}
	if s.Fixed(c.X) {
		return s.Fix(c.B, 1)
	}
	if s.Fixed(c.B) {
		if s.Value(c.B) == 1 {
			return s.Fix(c.X, c.Value)
		}
		return s.Remove(c.X, c.Value)
	}
	return nil
}

func (c *EqReif) String() string {
	return fmt.Sprintf("%s <=> %s == %d", c.B, c.X, c.Value)
}

// =============================================================================
// Set constraints
// =============================================================================

// Member restricts X to Values. NotMember forbids them.
type Member struct {
	X      *IntVar
	Values []int
	Not    bool
}

// NewMember creates x in values.
func NewMember(x *IntVar, values ...int) *Member {
	return &Member{X: x, Values: values}
}

// NewNotMember creates x not in values.
func NewNotMember(x *IntVar, values ...int) *Member {
	return &Member{X: x, Values: values, Not: true}
}

func (c *Member) Vars() []*IntVar { return []*IntVar{c.X} }

func (c *Member) Propagate(s *Store) error {
	if c.Not {
		for _, v := range c.Values {
			if err := s.Remove(c.X, v); err != nil {
				return err
			}
		}
		return nil
	}
	allowed := make(map[int]struct{}, len(c.Values))
	for _, v := range c.Values {
		allowed[v] = struct{}{}
	}
	for _, v := range s.Values(c.X) {
		if _, ok := allowed[v]; !ok {
			if err := s.Remove(c.X, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Member) String() string {
	if c.Not {
		return fmt.Sprintf("%s notin %v", c.X, c.Values)
	}
	return fmt.Sprintf("%s in %v", c.X, c.Values)
}

// Count links Result to the number of Vars equal to Value.
type Count struct {
	X      []*IntVar
	Value  int
	Result *IntVar
}

// NewCount creates result == |{v in vars : v == value}|.
func NewCount(vars []*IntVar, value int, result *IntVar) *Count {
	return &Count{X: vars, Value: value, Result: result}
}

func (c *Count) Vars() []*IntVar { return append(append([]*IntVar{}, c.X...), c.Result) }

func (c *Count) Propagate(s *Store) error {
	lo, hi := 0, 0
	for _, v := range c.X {
		if s.Contains(v, c.Value) {
			hi++
			if s.Fixed(v) {
				lo++
			}
		}
	}
	if err := s.SetMin(c.Result, lo); err != nil {
		return err
	}
	if err := s.SetMax(c.Result, hi); err != nil {
		return err
	}
	if lo == hi {
		return nil
	}
	switch {
	case s.Max(c.Result) == lo:
		for _, v := range c.X {
			if !s.Fixed(v) && s.Contains(v, c.Value) {
				if err := s.Remove(v, c.Value); err != nil {
					return err
				}
			}
		}
	case s.Min(c.Result) == hi:
		for _, v := range c.X {
			if s.Contains(v, c.Value) {
				if err := s.Fix(v, c.Value); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (c *Count) String() string {
	return fmt.Sprintf("count(%d, %d vars) == %s", c.Value, len(c.X), c.Result)
}

// AllDifferent forbids two of its variables to share a value.
type AllDifferent struct {
	X []*IntVar
}

// NewAllDifferent creates alldifferent(vars).
func NewAllDifferent(vars ...*IntVar) *AllDifferent {
	return &AllDifferent{X: vars}
}

func (c *AllDifferent) Vars() []*IntVar { return append([]*IntVar{}, c.X...) }

func (c *AllDifferent) Propagate(s *Store) error {
	for i, v := range c.X {
		if !s.Fixed(v) {
			continue
		}
		val := s.Value(v)
		for j, w := range c.X {
			if i == j {
				continue
			}
			if err := s.Remove(w, val); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *AllDifferent) String() string { return fmt.Sprintf("allDifferent(%d vars)", len(c.X)) }

// AllEqual forces its variables to share one value.
type AllEqual struct {
	X []*IntVar
}

// NewAllEqual creates allequal(vars).
func NewAllEqual(vars ...*IntVar) *AllEqual {
	return &AllEqual{X: vars}
}

func (c *AllEqual) Vars() []*IntVar { return append([]*IntVar{}, c.X...) }

func (c *AllEqual) Propagate(s *Store) error {
	if len(c.X) < 2 {
		return nil
	}
	lo, hi := s.Min(c.X[0]), s.Max(c.X[0])
	for _, v := range c.X[1:] {
		lo = max(lo, s.Min(v))
		hi = min(hi, s.Max(v))
	}
	if lo > hi {
		return ErrFail
	}
	for x := lo; x <= hi; x++ {
		shared := true
		for _, v := range c.X {
			if !s.Contains(v, x) {
				shared = false
				break
			}
		}
		if shared {
			continue
		}
		for _, v := range c.X {
			if err := s.Remove(v, x); err != nil {
				return err
			}
		}
	}
	for _, v := range c.X {
		if err := s.SetMin(v, lo); err != nil {
			return err
		}
		if err := s.SetMax(v, hi); err != nil {
			return err
		}
	}
	return nil
}

func (c *AllEqual) String() string { return fmt.Sprintf("allEqual(%d vars)", len(c.X)) }

// =============================================================================
// Maximum
// =============================================================================

// Maximum links Result to the largest of X, or to Floor when X is empty
// or all smaller.
type Maximum struct {
	Result *IntVar
	X      []*IntVar
	Floor  int
}

// NewMaximum creates result == max(floor, vars...).
func NewMaximum(result *IntVar, floor int, vars ...*IntVar) *Maximum {
	return &Maximum{Result: result, X: vars, Floor: floor}
}

func (c *Maximum) Vars() []*IntVar { return append([]*IntVar{c.Result}, c.X...) }

func (c *Maximum) Propagate(s *Store) error {
	lo, hi := c.Floor, c.Floor
	for _, v := range c.X {
		lo = max(lo, s.Min(v))
		hi = max(hi, s.Max(v))
	}
	if err := s.SetMin(c.Result, lo); err != nil {
		return err
	}
	if err := s.SetMax(c.Result, hi); err != nil {
		return err
	}
	for _, v := range c.X {
		if err := s.SetMax(v, s.Max(c.Result)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Maximum) String() string {
	return fmt.Sprintf("%s == max(%d, %d vars)", c.Result, c.Floor, len(c.X))
}
