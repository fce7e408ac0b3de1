package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecocycle/rvm-loyalty/internal/model"
)

func TestCatalog_ListActiveOrderedByName(t *testing.T) {
	env, ctx := newTestEnv(t)
	env.seedMaterial(t, "Metal", "3.00", true)
	env.seedMaterial(t, "Glass", "2.00", true)
	env.seedMaterial(t, "Styrofoam", "0.10", false)

	ms, err := env.catalog.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "Glass", ms[0].Name)
	assert.Equal(t, "Metal", ms[1].Name)

	all, err := env.catalog.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCatalog_RateValidation(t *testing.T) {
	env, ctx := newTestEnv(t)

	err := env.catalog.Create(ctx, &model.Material{Name: "Dust", PointsPerKG: dec("0.001"), IsActive: true})
	assert.ErrorIs(t, err, ErrInvalidRate)

	err = env.catalog.Create(ctx, &model.Material{Name: "Dust", PointsPerKG: dec("0.005"), IsActive: true})
	assert.ErrorIs(t, err, ErrInvalidRate)

	err = env.catalog.Create(ctx, &model.Material{Name: "Plastic", PointsPerKG: dec("1.00"), IsActive: true})
	assert.NoError(t, err)

	_, err = env.catalog.Update(ctx, 1, "", dec("1.005"), true)
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestCatalog_DeactivateKeepsRow(t *testing.T) {
	env, ctx := newTestEnv(t)
	m := env.seedMaterial(t, "Paper", "0.50", true)

	got, err := env.catalog.Deactivate(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// gone from the catalog, still retrievable by id
	active, err := env.catalog.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	_, err = env.catalog.Get(ctx, m.ID)
	assert.NoError(t, err)
}
