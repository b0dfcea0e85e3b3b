package constraint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limiquantix/reconf/internal/domain"
)

// newModel places vm#0 and vm#1 on node#0, vm#2 on node#1, leaves vm#3
// ready and keeps node#2 offline.
func newModel(t *testing.T) *domain.Model {
	t.Helper()
	m := domain.NewMapping()
	require.True(t, m.AddOnlineNode(0))
	require.True(t, m.AddOnlineNode(1))
	require.True(t, m.AddOfflineNode(2))
	require.True(t, m.AddRunningVM(0, 0))
	require.True(t, m.AddRunningVM(1, 0))
	require.True(t, m.AddRunningVM(2, 1))
	require.True(t, m.AddReadyVM(3))
	return domain.NewModelWith(m)
}

func TestConstraints_IsSatisfied(t *testing.T) {
	mo := newModel(t)

	tests := []struct {
		name string
		c    domain.SatConstraint
		want bool
	}{
		{"running", NewRunning(0, 2), true},
		{"running with ready VM", NewRunning(0, 3), false},
		{"ready", NewReady(3), true},
		{"sleeping", NewSleeping(0), false},
		{"killed", NewKilled(9), true},
		{"killed present VM", NewKilled(3), false},
		{"online", NewOnline(0, 1), true},
		{"offline", NewOffline(2), true},
		{"offline online node", NewOffline(1), false},
		{"fence", NewFence([]domain.VM{0, 1}, []domain.Node{0}), true},
		{"fence violated", NewFence([]domain.VM{2}, []domain.Node{0}), false},
		{"ban", NewBan([]domain.VM{2}, []domain.Node{0}), true},
		{"ban violated", NewBan([]domain.VM{0}, []domain.Node{0}), false},
		{"spread", NewSpread([]domain.VM{0, 2, 3}, false), true},
		{"spread violated", NewSpread([]domain.VM{0, 1}, true), false},
		{"gather", NewGather(0, 1, 3), true},
		{"gather violated", NewGather(0, 2), false},
		{"maxOnline", NewMaxOnline([]domain.Node{0, 1, 2}, 2, false), true},
		{"maxOnline violated", NewMaxOnline([]domain.Node{0, 1}, 1, true), false},
		{"root", NewRoot(0), true},
		{"precedence", NewPrecedence(0, 1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.IsSatisfied(mo), tt.c.String())
		})
	}
}

func TestConstraints_Scope(t *testing.T) {
	c := NewFence([]domain.VM{3, 1, 3}, []domain.Node{2, 0})
	assert.Equal(t, []domain.VM{1, 3}, c.InvolvedVMs())
	assert.Equal(t, []domain.Node{0, 2}, c.InvolvedNodes())
	assert.Equal(t, "fence(vms=[vm#1, vm#3], nodes=[node#0, node#2])", c.String())

	vms := c.InvolvedVMs()
	vms[0] = 42
	assert.Equal(t, []domain.VM{1, 3}, c.InvolvedVMs())

	p := NewPrecedence(5, 2)
	assert.Equal(t, domain.VM(5), p.Before())
	assert.Equal(t, domain.VM(2), p.After())
	assert.True(t, p.IsContinuous())
	assert.True(t, NewSpread(nil, true).IsContinuous())
	assert.False(t, NewSpread(nil, false).IsContinuous())

	mo := NewMaxOnline([]domain.Node{1, 0}, 1, true)
	assert.True(t, mo.IsContinuous())
	assert.False(t, NewMaxOnline(nil, 1, false).IsContinuous())
	assert.Equal(t, "maxOnline(nodes=[node#0, node#1], amount=1, continuous=true)", mo.String())
}

func TestViolated(t *testing.T) {
	mo := newModel(t)
	bad := NewOffline(0)
	got := Violated(mo, NewRunning(0), bad, NewReady(3))
	assert.Equal(t, []domain.SatConstraint{bad}, got)
	assert.Empty(t, Violated(mo))
}
