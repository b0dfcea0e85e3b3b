package config

import (
	"fmt"
	"strings"

	"github.com/limiquantix/reconf/internal/constraint"
	"github.com/limiquantix/reconf/internal/domain"
)

// ClusterConfig describes a placement and the constraints to satisfy.
type ClusterConfig struct {
	Nodes       []NodeConfig       `mapstructure:"nodes"`
	VMs         []VMConfig         `mapstructure:"vms"`
	Resources   []ResourceConfig   `mapstructure:"resources"`
	Constraints []ConstraintConfig `mapstructure:"constraints"`
	// Objective is "minMTTR" or empty.
	Objective string `mapstructure:"objective"`
}

// NodeConfig declares a node. State is "online" or "offline".
type NodeConfig struct {
	ID    int    `mapstructure:"id"`
	State string `mapstructure:"state"`
}

// VMConfig declares a VM. State is "running", "sleeping" or "ready"; Host
// is required for hosted states.
type VMConfig struct {
	ID    int    `mapstructure:"id"`
	State string `mapstructure:"state"`
	Host  int    `mapstructure:"host"`
}

// ResourceConfig declares a shareable resource.
type ResourceConfig struct {
	Name               string         `mapstructure:"name"`
	DefaultCapacity    int            `mapstructure:"default_capacity"`
	DefaultConsumption int            `mapstructure:"default_consumption"`
	Capacities         []ElementValue `mapstructure:"capacities"`
	Consumptions       []ElementValue `mapstructure:"consumptions"`
}

// ElementValue assigns a value to a VM or node identifier.
type ElementValue struct {
	ID    int `mapstructure:"id"`
	Value int `mapstructure:"value"`
}

// ConstraintConfig declares a placement constraint. Precedence takes its
// two VMs in order.
type ConstraintConfig struct {
	Kind       string `mapstructure:"kind"`
	VMs        []int  `mapstructure:"vms"`
	Nodes      []int  `mapstructure:"nodes"`
	Continuous bool   `mapstructure:"continuous"`
	Amount     int    `mapstructure:"amount"`
}

func toNodes(ids []int) []domain.Node {
	out := make([]domain.Node, len(ids))
	for i, id := range ids {
		out[i] = domain.Node(id)
	}
	return out
}

func toVMs(ids []int) []domain.VM {
	out := make([]domain.VM, len(ids))
	for i, id := range ids {
		out[i] = domain.VM(id)
	}
	return out
}

// Model builds the model described by the configuration.
func (c ClusterConfig) Model() (*domain.Model, error) {
	m := domain.NewMapping()
	for _, n := range c.Nodes {
		node := domain.Node(n.ID)
		switch strings.ToLower(n.State) {
		case "", "online":
			m.AddOnlineNode(node)
		case "offline":
			m.AddOfflineNode(node)
		default:
			return nil, fmt.Errorf("%w: %s has state %q", domain.ErrInvalidArgument, node, n.State)
		}
	}
	for _, v := range c.VMs {
		vm, host := domain.VM(v.ID), domain.Node(v.Host)
		var ok bool
		switch strings.ToLower(v.State) {
		case "running":
			ok = m.AddRunningVM(vm, host)
		case "sleeping":
			ok = m.AddSleepingVM(vm, host)
		case "", "ready":
			ok = m.AddReadyVM(vm)
		default:
			return nil, fmt.Errorf("%w: %s has state %q", domain.ErrInvalidArgument, vm, v.State)
		}
		if !ok {
			return nil, fmt.Errorf("%w: cannot place %s on %s", domain.ErrInvalidArgument, vm, host)
		}
	}

	mo := domain.NewModelWith(m)
	for _, r := range c.Resources {
		rc := domain.NewShareableResource(r.Name, r.DefaultCapacity, r.DefaultConsumption)
		for _, e := range r.Capacities {
			rc.SetCapacity(e.Value, domain.Node(e.ID))
		}
		for _, e := range r.Consumptions {
			rc.SetConsumption(e.Value, domain.VM(e.ID))
		}
		if !mo.AttachView(rc) {
			return nil, fmt.Errorf("%w: resource %q declared twice", domain.ErrInvalidArgument, r.Name)
		}
	}
	return mo, nil
}

// Constraint builds the constraint described by c.
func (c ConstraintConfig) Constraint() (domain.SatConstraint, error) {
	vms, nodes := toVMs(c.VMs), toNodes(c.Nodes)
	switch domain.ConstraintKind(c.Kind) {
	case constraint.KindRunning:
		return constraint.NewRunning(vms...), nil
	case constraint.KindReady:
		return constraint.NewReady(vms...), nil
	case constraint.KindSleeping:
		return constraint.NewSleeping(vms...), nil
	case constraint.KindKilled:
		return constraint.NewKilled(vms...), nil
	case constraint.KindOnline:
		return constraint.NewOnline(nodes...), nil
	case constraint.KindOffline:
		return constraint.NewOffline(nodes...), nil
	case constraint.KindRoot:
		return constraint.NewRoot(vms...), nil
	case constraint.KindFence:
		return constraint.NewFence(vms, nodes), nil
	case constraint.KindBan:
		return constraint.NewBan(vms, nodes), nil
	case constraint.KindSpread:
		return constraint.NewSpread(vms, c.Continuous), nil
	case constraint.KindGather:
		return constraint.NewGather(vms...), nil
	case constraint.KindMaxOnline:
		return constraint.NewMaxOnline(nodes, c.Amount, c.Continuous), nil
	case constraint.KindPrecedence:
		if len(vms) != 2 {
			return nil, fmt.Errorf("%w: precedence expects 2 VMs, got %d", domain.ErrInvalidArgument, len(vms))
		}
		return constraint.NewPrecedence(vms[0], vms[1]), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedConstraint, c.Kind)
	}
}

// Instance builds the instance described by the configuration.
func (c ClusterConfig) Instance() (*domain.Instance, error) {
	mo, err := c.Model()
	if err != nil {
		return nil, err
	}
	cstrs := make([]domain.SatConstraint, 0, len(c.Constraints))
	for i, cc := range c.Constraints {
		sc, err := cc.Constraint()
		if err != nil {
			return nil, fmt.Errorf("failed to build constraint %d: %w", i, err)
		}
		cstrs = append(cstrs, sc)
	}
	var obj domain.OptConstraint
	switch strings.ToLower(c.Objective) {
	case "":
	case "minmttr":
		obj = constraint.NewMinMTTR()
	default:
		return nil, fmt.Errorf("%w: objective %q", domain.ErrUnsupportedConstraint, c.Objective)
	}
	return domain.NewInstance(mo, cstrs, obj), nil
}
