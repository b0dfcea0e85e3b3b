// Package domain contains the placement model shared by the planner:
// elements, mappings, models, views and problem instances.
package domain

import "errors"

// Common domain errors
var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists is returned when a resource with the same ID already exists.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidArgument is returned when an invalid argument is provided.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAmbiguousState is returned when an element is requested in more than one next state.
	ErrAmbiguousState = errors.New("ambiguous next state")

	// ErrUnreachableState is returned when no action leads from the current state to the requested one.
	ErrUnreachableState = errors.New("unreachable next state")

	// ErrUndecided is returned when the solver stopped before proving a solution or its absence.
	ErrUndecided = errors.New("solver undecided")

	// ErrNonDisjointPartitions is returned when a node belongs to more than one partition.
	ErrNonDisjointPartitions = errors.New("partitions are not disjoint")

	// ErrUnsplittable is returned when a constraint cannot be split along the partitions.
	ErrUnsplittable = errors.New("constraint cannot be split")

	// ErrInconsistentPlan is returned when an extracted plan fails its consistency checks.
	ErrInconsistentPlan = errors.New("inconsistent reconfiguration plan")

	// ErrUnsupportedConstraint is returned when no model exists for a constraint.
	ErrUnsupportedConstraint = errors.New("unsupported constraint")
)
