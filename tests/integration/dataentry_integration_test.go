package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavim/fieldentry/internal/models"
)

func login(t *testing.T, env *TestEnv) {
	t.Helper()
	result, err := env.Auth.Login(context.Background(), env.ServerURL, "admin", "district")
	require.NoError(t, err)
	require.Equal(t, models.LoginSuccess, result)
}

func TestMetadataFlowsThroughCache(t *testing.T) {
	env := NewTestEnv(t)
	ctx := context.Background()
	login(t, env)

	datasets, err := env.Datasets.Datasets(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, datasets)

	// The pull must have landed in the offline cache.
	cached, err := env.Cache.Datasets(ctx)
	require.NoError(t, err)
	assert.Len(t, cached, len(datasets))

	units, err := env.Datasets.OrgUnits(ctx, datasets[0].UID)
	require.NoError(t, err)
	assert.NotEmpty(t, units)
}

func TestSaveValueRoundTrip(t *testing.T) {
	env := NewTestEnv(t)
	ctx := context.Background()
	login(t, env)

	key := models.InstanceKey{
		DatasetUID:     "BfMAe6Itzgt",
		PeriodID:       "202603",
		OrgUnitUID:     "DiszpKrYNg8",
		AttributeCombo: "HllvX50cXC0",
	}
	element := models.DataElement{UID: "s46m5MS0hxu", ValueType: models.ValueTypeIntegerZeroPos, Mandatory: true}

	require.NoError(t, env.DataEntry.SaveValue(ctx, key, element, "17"))

	// The push succeeded, so nothing is left dirty locally.
	dirty, err := env.Cache.DirtyValues(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, dirty)

	values, err := env.DataEntry.ExistingValues(ctx, key)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "17", values[0].Value)
	assert.Equal(t, "admin", values[0].StoredBy)
}

func TestCompleteAndReopenLifecycle(t *testing.T) {
	env := NewTestEnv(t)
	ctx := context.Background()
	login(t, env)

	key := models.InstanceKey{
		DatasetUID:     "BfMAe6Itzgt",
		PeriodID:       "202604",
		OrgUnitUID:     "DiszpKrYNg8",
		AttributeCombo: "HllvX50cXC0",
	}

	require.NoError(t, env.Datasets.CompleteInstance(ctx, key, models.InstanceOpen))

	instances, err := env.Datasets.Instances(ctx, models.InstanceFilter{
		DatasetUID: key.DatasetUID,
		PeriodID:   key.PeriodID,
	})
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, models.InstanceCompleted, instances[0].State)
	assert.Equal(t, "admin", instances[0].CompletedBy)

	require.NoError(t, env.Datasets.ReopenInstance(ctx, key, instances[0].State))

	instances, err = env.Datasets.Instances(ctx, models.InstanceFilter{
		DatasetUID: key.DatasetUID,
		PeriodID:   key.PeriodID,
	})
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, models.InstanceOpen, instances[0].State)
}

func TestInvalidValueNeverLeavesTheDevice(t *testing.T) {
	env := NewTestEnv(t)
	ctx := context.Background()
	login(t, env)

	key := models.InstanceKey{
		DatasetUID:     "BfMAe6Itzgt",
		PeriodID:       "202605",
		OrgUnitUID:     "DiszpKrYNg8",
		AttributeCombo: "HllvX50cXC0",
	}
	element := models.DataElement{UID: "s46m5MS0hxu", ValueType: models.ValueTypeIntegerZeroPos}

	err := env.DataEntry.SaveValue(ctx, key, element, "-4")
	assert.ErrorIs(t, err, models.ErrBadRequest)

	values, err := env.Cache.Values(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, values)

	assert.Empty(t, env.FixtureDB.Values(key))
}
