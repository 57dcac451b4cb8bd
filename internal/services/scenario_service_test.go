package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuevpro/ventas/internal/cache"
	pgrepo "github.com/nuevpro/ventas/internal/repositories/postgres"
	"github.com/nuevpro/ventas/internal/utils"
)

func TestScenarioCreateListAndUpdate(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()
	svc := NewScenarioService(pgrepo.NewScenarioRepo(newTestDB(t)), c, quietLogger())

	sc, err := svc.Create(ctx, ScenarioInput{
		Title:            "  Llamada en frío ",
		Category:         "prospeccion",
		ExpectedOutcomes: json.RawMessage(`{"objectives":["agendar"]}`),
		Tags:             []string{"Phone", " phone ", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "Llamada en frío", sc.Title)
	assert.Equal(t, "beginner", sc.Difficulty)
	assert.True(t, sc.IsActive)

	list, err := svc.List(ctx, "PROSPECCION", "")
	require.NoError(t, err)
	require.Len(t, list, 1)

	// the list is now cached; an update must invalidate it
	_, err = svc.Update(ctx, sc.ID, ScenarioInput{Title: "Oculto", IsActive: ptr(false)})
	require.NoError(t, err)

	list, err = svc.List(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err := svc.Get(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Oculto", got.Title)
}

func TestScenarioValidationAndLookup(t *testing.T) {
	ctx := context.Background()
	svc := NewScenarioService(pgrepo.NewScenarioRepo(newTestDB(t)), nil, quietLogger())

	_, err := svc.Create(ctx, ScenarioInput{Title: ""})
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
	_, err = svc.Create(ctx, ScenarioInput{Title: "x", Difficulty: "expert"})
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
	_, err = svc.Create(ctx, ScenarioInput{Title: "x", ExpectedOutcomes: json.RawMessage(`{nope`)})
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))

	_, err = svc.Get(ctx, "not-a-uuid")
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
	_, err = svc.Get(ctx, uuid.NewString())
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
	_, err = svc.Update(ctx, uuid.NewString(), ScenarioInput{Title: "x"})
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
}
