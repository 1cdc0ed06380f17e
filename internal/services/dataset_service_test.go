package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xavim/fieldentry/internal/models"
	"github.com/xavim/fieldentry/internal/session"
)

var testKey = models.InstanceKey{
	DatasetUID:     "BfMAe6Itzgt",
	PeriodID:       "202601",
	OrgUnitUID:     "DiszpKrYNg8",
	AttributeCombo: "HllvX50cXC0",
}

func newTestDatasetService(remote *MockRemote, cache *MockCache, username string) *DatasetService {
	state := session.NewState(models.Session{LoggedIn: true, Username: username})
	return NewDatasetService(remote, cache, state, slog.Default())
}

func TestDatasetService_Datasets_CachesOnSuccess(t *testing.T) {
	want := []models.Dataset{{UID: "BfMAe6Itzgt", Name: "Child Health"}}
	var cached []models.Dataset

	remote := &MockRemote{
		DatasetsFunc: func(ctx context.Context) ([]models.Dataset, error) {
			return want, nil
		},
	}
	cache := &MockCache{
		UpsertDatasetsFunc: func(ctx context.Context, datasets []models.Dataset) error {
			cached = datasets
			return nil
		},
	}
	svc := newTestDatasetService(remote, cache, "admin")

	got, err := svc.Datasets(context.Background())

	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, want, cached)
}

func TestDatasetService_Datasets_FallsBackToCacheOnNetworkError(t *testing.T) {
	want := []models.Dataset{{UID: "BfMAe6Itzgt", Name: "Child Health"}}

	remote := &MockRemote{
		DatasetsFunc: func(ctx context.Context) ([]models.Dataset, error) {
			return nil, models.ErrNetwork
		},
	}
	cache := &MockCache{
		DatasetsFunc: func(ctx context.Context) ([]models.Dataset, error) {
			return want, nil
		},
	}
	svc := newTestDatasetService(remote, cache, "admin")

	got, err := svc.Datasets(context.Background())

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDatasetService_Datasets_ServerErrorIsNotMasked(t *testing.T) {
	remote := &MockRemote{
		DatasetsFunc: func(ctx context.Context) ([]models.Dataset, error) {
			return nil, models.ErrServer
		},
	}
	cacheQueried := false
	cache := &MockCache{
		DatasetsFunc: func(ctx context.Context) ([]models.Dataset, error) {
			cacheQueried = true
			return nil, nil
		},
	}
	svc := newTestDatasetService(remote, cache, "admin")

	_, err := svc.Datasets(context.Background())

	assert.ErrorIs(t, err, models.ErrServer)
	assert.False(t, cacheQueried)
}

func TestDatasetService_Instances_FallsBackToCacheOnNetworkError(t *testing.T) {
	want := []models.DatasetInstance{{Key: testKey, State: models.InstanceOpen}}

	remote := &MockRemote{
		DatasetInstancesFunc: func(ctx context.Context, filter models.InstanceFilter) ([]models.DatasetInstance, error) {
			return nil, models.ErrNetwork
		},
	}
	cache := &MockCache{
		InstancesFunc: func(ctx context.Context, filter models.InstanceFilter) ([]models.DatasetInstance, error) {
			assert.Equal(t, "BfMAe6Itzgt", filter.DatasetUID)
			return want, nil
		},
	}
	svc := newTestDatasetService(remote, cache, "admin")

	got, err := svc.Instances(context.Background(), models.InstanceFilter{DatasetUID: "BfMAe6Itzgt"})

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDatasetService_CompleteInstance(t *testing.T) {
	var completedBy string
	var cachedState models.InstanceState

	remote := &MockRemote{
		CompleteRegistrationFunc: func(ctx context.Context, key models.InstanceKey, by string) error {
			completedBy = by
			return nil
		},
	}
	cache := &MockCache{
		SetInstanceStateFunc: func(ctx context.Context, key models.InstanceKey, state models.InstanceState, by string, date *time.Time) error {
			cachedState = state
			return nil
		},
	}
	svc := newTestDatasetService(remote, cache, "admin")

	err := svc.CompleteInstance(context.Background(), testKey, models.InstanceOpen)

	require.NoError(t, err)
	assert.Equal(t, "admin", completedBy)
	assert.Equal(t, models.InstanceCompleted, cachedState)
}

func TestDatasetService_CompleteInstance_RejectsApprovedAndLocked(t *testing.T) {
	remoteCalled := false
	remote := &MockRemote{
		CompleteRegistrationFunc: func(ctx context.Context, key models.InstanceKey, by string) error {
			remoteCalled = true
			return nil
		},
	}
	svc := newTestDatasetService(remote, &MockCache{}, "admin")

	for _, state := range []models.InstanceState{models.InstanceApproved, models.InstanceLocked} {
		err := svc.CompleteInstance(context.Background(), testKey, state)
		assert.ErrorIs(t, err, models.ErrBadRequest)
	}
	assert.False(t, remoteCalled)
}

func TestDatasetService_ReopenInstance(t *testing.T) {
	var cachedState models.InstanceState
	remote := &MockRemote{}
	cache := &MockCache{
		SetInstanceStateFunc: func(ctx context.Context, key models.InstanceKey, state models.InstanceState, by string, date *time.Time) error {
			cachedState = state
			assert.Empty(t, by)
			assert.Nil(t, date)
			return nil
		},
	}
	svc := newTestDatasetService(remote, cache, "admin")

	err := svc.ReopenInstance(context.Background(), testKey, models.InstanceCompleted)

	require.NoError(t, err)
	assert.Equal(t, models.InstanceOpen, cachedState)
}

func TestDatasetService_ReopenInstance_RejectsApproved(t *testing.T) {
	svc := newTestDatasetService(&MockRemote{}, &MockCache{}, "admin")

	err := svc.ReopenInstance(context.Background(), testKey, models.InstanceApproved)

	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestDatasetService_SyncInstance_PushesDirtyValues(t *testing.T) {
	dirty := []models.DataValue{{DataElementUID: "s46m5MS0hxu", Value: "12"}}
	var pushed []models.DataValue
	markedSynced := false

	remote := &MockRemote{
		PushDataValuesFunc: func(ctx context.Context, key models.InstanceKey, values []models.DataValue) error {
			pushed = values
			return nil
		},
	}
	cache := &MockCache{
		DirtyValuesFunc: func(ctx context.Context, key models.InstanceKey) ([]models.DataValue, error) {
			return dirty, nil
		},
		MarkSyncedFunc: func(ctx context.Context, key models.InstanceKey) error {
			markedSynced = true
			return nil
		},
	}
	svc := newTestDatasetService(remote, cache, "admin")

	require.NoError(t, svc.SyncInstance(context.Background(), testKey))
	assert.Equal(t, dirty, pushed)
	assert.True(t, markedSynced)
}

func TestDatasetService_SyncInstance_NothingDirtyIsNoop(t *testing.T) {
	pushCalled := false
	remote := &MockRemote{
		PushDataValuesFunc: func(ctx context.Context, key models.InstanceKey, values []models.DataValue) error {
			pushCalled = true
			return nil
		},
	}
	svc := newTestDatasetService(remote, &MockCache{}, "admin")

	require.NoError(t, svc.SyncInstance(context.Background(), testKey))
	assert.False(t, pushCalled)
}

func TestDatasetService_SyncInstance_PushFailureKeepsDirty(t *testing.T) {
	markedSynced := false
	remote := &MockRemote{
		PushDataValuesFunc: func(ctx context.Context, key models.InstanceKey, values []models.DataValue) error {
			return models.ErrNetwork
		},
	}
	cache := &MockCache{
		DirtyValuesFunc: func(ctx context.Context, key models.InstanceKey) ([]models.DataValue, error) {
			return []models.DataValue{{DataElementUID: "s46m5MS0hxu", Value: "12"}}, nil
		},
		MarkSyncedFunc: func(ctx context.Context, key models.InstanceKey) error {
			markedSynced = true
			return nil
		},
	}
	svc := newTestDatasetService(remote, cache, "admin")

	err := svc.SyncInstance(context.Background(), testKey)

	assert.ErrorIs(t, err, models.ErrNetwork)
	assert.False(t, markedSynced)
}
