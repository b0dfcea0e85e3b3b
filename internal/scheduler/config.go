// Package scheduler turns a source model and desired next states into a
// constraint satisfaction problem whose solutions are timed
// reconfiguration plans.
package scheduler

import (
	"time"

	"github.com/limiquantix/reconf/internal/solver"
)

// Parameters tune the construction and the resolution of a problem.
type Parameters struct {
	// TimeLimit bounds one solve call. Zero means no limit.
	TimeLimit time.Duration

	// Optimize keeps searching for better plans after the first one.
	Optimize bool

	// Repair restricts the manageable VMs to those a constraint involves
	// and those hosted on nodes going offline.
	Repair bool

	// MaxEnd caps the plan horizon in ticks. Zero derives the horizon from
	// the sum of the action durations.
	MaxEnd int

	// Durations evaluates the duration of every action kind.
	Durations *DurationEvaluators

	// Alterer computes the objective bound to impose after each solution.
	Alterer solver.ObjectiveAlterer
}

// DefaultParameters returns the default parameters.
func DefaultParameters() Parameters {
	return Parameters{
		TimeLimit: 30 * time.Second,
		Optimize:  false,
		Durations: NewDurationEvaluators(),
	}
}
