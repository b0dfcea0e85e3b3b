package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/limiquantix/reconf/internal/constraint"
	"github.com/limiquantix/reconf/internal/domain"
	"github.com/limiquantix/reconf/internal/plan"
	"github.com/limiquantix/reconf/internal/solver"
)

// Scheduler computes reconfiguration plans for problem instances.
type Scheduler struct {
	params    Parameters
	newEngine func() solver.Engine
	logger    *zap.Logger
}

// New creates a new Scheduler instance.
func New(params Parameters, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if params.Durations == nil {
		params.Durations = NewDurationEvaluators()
	}
	s := &Scheduler{
		params: params,
		logger: logger.With(zap.String("component", "scheduler")),
	}
	s.newEngine = func() solver.Engine { return solver.NewModel(s.logger) }
	return s
}

// WithEngineFactory replaces the engine used for every problem.
func (s *Scheduler) WithEngineFactory(f func() solver.Engine) *Scheduler {
	s.newEngine = f
	return s
}

// Parameters returns the parameters.
func (s *Scheduler) Parameters() Parameters { return s.params }

// Solve computes a plan for inst. It returns (nil, nil) when the instance
// has no solution.
func (s *Scheduler) Solve(ctx context.Context, inst *domain.Instance) (*plan.ReconfigurationPlan, error) {
	mo := inst.Model()
	cstrs := inst.SatConstraints()
	logger := s.logger.With(
		zap.Int("nodes", mo.Mapping().NbNodes()),
		zap.Int("vms", mo.Mapping().NbVMs()),
		zap.Int("constraints", len(cstrs)),
	)
	logger.Debug("Starting reconfiguration")

	b := NewReconfigurationProblemBuilder(mo).
		WithParameters(s.params).
		WithLogger(s.logger).
		WithEngine(s.newEngine())

	next := nextStates(cstrs)
	b.WithNextVMStates(next.ready, next.running, next.sleeping, next.killed).
		WithNextNodeStates(next.online, next.offline)
	if s.params.Repair {
		b.WithManageableVMs(repairScope(mo, cstrs, next.offline))
	}

	rp, err := b.Build()
	if err != nil {
		logger.Error("Failed to build reconfiguration problem", zap.Error(err))
		return nil, err
	}
	for _, c := range cstrs {
		if err := rp.Inject(c); err != nil {
			logger.Error("Failed to inject constraint", zap.Stringer("constraint", c), zap.Error(err))
			return nil, err
		}
	}
	if err := s.injectObjective(rp, inst.Objective()); err != nil {
		return nil, err
	}

	p, err := rp.Solve(ctx)
	if err != nil || p == nil {
		return nil, err
	}
	result, err := p.Result()
	if err != nil {
		return nil, err
	}
	if violated := constraint.Violated(result, cstrs...); len(violated) > 0 {
		names := make([]string, len(violated))
		for i, c := range violated {
			names[i] = c.String()
		}
		return nil, fmt.Errorf("%w: resulting model violates %s", domain.ErrInconsistentPlan, strings.Join(names, ", "))
	}
	return p, nil
}

func (s *Scheduler) injectObjective(rp *ReconfigurationProblem, obj domain.OptConstraint) error {
	switch obj.(type) {
	case nil:
		return nil
	case *constraint.MinMTTR:
		cost := rp.MinMTTR()
		rp.Engine().SetObjective(cost, true, s.params.Alterer)
		return rp.Err()
	default:
		return fmt.Errorf("%w: objective %s", domain.ErrUnsupportedConstraint, obj.ID())
	}
}

type stateSets struct {
	ready, running, sleeping, killed []domain.VM
	online, offline                  []domain.Node
}

// nextStates collects the states requested by the state constraints.
func nextStates(cstrs []domain.SatConstraint) stateSets {
	var s stateSets
	for _, c := range cstrs {
		switch c.(type) {
		case *constraint.Running:
			s.running = append(s.running, c.InvolvedVMs()...)
		case *constraint.Ready:
			s.ready = append(s.ready, c.InvolvedVMs()...)
		case *constraint.Sleeping:
			s.sleeping = append(s.sleeping, c.InvolvedVMs()...)
		case *constraint.Killed:
			s.killed = append(s.killed, c.InvolvedVMs()...)
		case *constraint.Online:
			s.online = append(s.online, c.InvolvedNodes()...)
		case *constraint.Offline:
			s.offline = append(s.offline, c.InvolvedNodes()...)
		}
	}
	return s
}

// repairScope returns the VMs involved in placement constraints that the
// source model violates, plus the VMs hosted on nodes going offline.
func repairScope(mo *domain.Model, cstrs []domain.SatConstraint, offline []domain.Node) []domain.VM {
	var vms []domain.VM
	for _, c := range cstrs {
		switch c.(type) {
		case *constraint.Running, *constraint.Ready, *constraint.Sleeping, *constraint.Killed,
			*constraint.Online, *constraint.Offline:
			continue
		}
		if !c.IsSatisfied(mo) {
			vms = append(vms, c.InvolvedVMs()...)
		}
	}
	vms = append(vms, mo.Mapping().RunningVMsOn(offline...)...)
	slices.Sort(vms)
	return slices.Compact(vms)
}
