package domain

import "slices"

// ConstraintKind names a constraint family. Splitters and constraint models
// are registered per kind.
type ConstraintKind string

// SatConstraint is a placement or state requirement over VMs and nodes.
type SatConstraint interface {
	Kind() ConstraintKind
	InvolvedVMs() []VM
	InvolvedNodes() []Node
	// IsContinuous reports whether the constraint must hold during the
	// whole reconfiguration rather than only at its end.
	IsContinuous() bool
	// IsSatisfied checks the constraint against a resulting model.
	IsSatisfied(mo *Model) bool
	String() string
}

// OptConstraint is an optimization objective.
type OptConstraint interface {
	ID() string
}

// Instance bundles a model with the constraints and the objective a plan
// must honor.
type Instance struct {
	model     *Model
	cstrs     []SatConstraint
	objective OptConstraint
}

// NewInstance creates an instance. The constraint slice is copied.
func NewInstance(mo *Model, cstrs []SatConstraint, objective OptConstraint) *Instance {
	return &Instance{model: mo, cstrs: slices.Clone(cstrs), objective: objective}
}

// Model returns the source model.
func (i *Instance) Model() *Model { return i.model }

// SatConstraints returns a copy of the constraints.
func (i *Instance) SatConstraints() []SatConstraint { return slices.Clone(i.cstrs) }

// Objective returns the objective, possibly nil.
func (i *Instance) Objective() OptConstraint { return i.objective }
