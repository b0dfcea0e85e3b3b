package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limiquantix/reconf/internal/domain"
	"github.com/limiquantix/reconf/internal/plan"
)

func TestPlanRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := NewPlanRepository()

	rec := &plan.Record{
		Status:   plan.RecordStatusReady,
		Duration: 3,
		Actions:  []plan.Action{plan.NewBootVM(0, 1, 0, 3)},
	}
	created, err := repo.Create(ctx, rec)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	// Mutating the returned copy must not leak into the store
	created.Actions[0].End = 42

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Actions[0].End)

	_, err = repo.Create(ctx, &plan.Record{ID: created.ID})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPlanRepository_ListAndDeleteOld(t *testing.T) {
	ctx := context.Background()
	repo := NewPlanRepository()
	now := time.Now()

	records := []*plan.Record{
		{ID: "a", Status: plan.RecordStatusReady, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "b", Status: plan.RecordStatusInfeasible, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "c", Status: plan.RecordStatusReady, CreatedAt: now.Add(-time.Hour)},
	}
	for _, rec := range records {
		_, err := repo.Create(ctx, rec)
		require.NoError(t, err)
	}

	ids := func(recs []*plan.Record) []string {
		out := make([]string, len(recs))
		for i, r := range recs {
			out[i] = r.ID
		}
		return out
	}

	all, err := repo.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a"}, ids(all))

	ready, err := repo.List(ctx, plan.RecordStatusReady, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(ready))

	require.NoError(t, repo.DeleteOld(ctx, now.Add(-90*time.Minute)))
	all, err = repo.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(all))
}
