package services

import (
	"context"
	"strconv"
	"time"

	"github.com/xavim/fieldentry/internal/models"
)

// MockRemote implements RemoteAuthenticator and RemoteAPI for testing
type MockRemote struct {
	LoginFunc                func(ctx context.Context, serverURL, username, password string) error
	LogoutFunc               func(ctx context.Context) error
	IsLoggedInFunc           func() bool
	DatasetsFunc             func(ctx context.Context) ([]models.Dataset, error)
	OrgUnitsFunc             func(ctx context.Context, datasetUID string) ([]models.OrganisationUnit, error)
	DatasetInstancesFunc     func(ctx context.Context, filter models.InstanceFilter) ([]models.DatasetInstance, error)
	FormFunc                 func(ctx context.Context, datasetUID string) ([]models.FormSection, error)
	DataValuesFunc           func(ctx context.Context, key models.InstanceKey) ([]models.DataValue, error)
	PushDataValuesFunc       func(ctx context.Context, key models.InstanceKey, values []models.DataValue) error
	CompleteRegistrationFunc func(ctx context.Context, key models.InstanceKey, completedBy string) error
	ReopenRegistrationFunc   func(ctx context.Context, key models.InstanceKey) error
}

func (m *MockRemote) Login(ctx context.Context, serverURL, username, password string) error {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, serverURL, username, password)
	}
	return nil
}

func (m *MockRemote) Logout(ctx context.Context) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx)
	}
	return nil
}

func (m *MockRemote) IsLoggedIn() bool {
	if m.IsLoggedInFunc != nil {
		return m.IsLoggedInFunc()
	}
	return false
}

func (m *MockRemote) Datasets(ctx context.Context) ([]models.Dataset, error) {
	if m.DatasetsFunc != nil {
		return m.DatasetsFunc(ctx)
	}
	return []models.Dataset{}, nil
}

func (m *MockRemote) OrgUnits(ctx context.Context, datasetUID string) ([]models.OrganisationUnit, error) {
	if m.OrgUnitsFunc != nil {
		return m.OrgUnitsFunc(ctx, datasetUID)
	}
	return []models.OrganisationUnit{}, nil
}

func (m *MockRemote) DatasetInstances(ctx context.Context, filter models.InstanceFilter) ([]models.DatasetInstance, error) {
	if m.DatasetInstancesFunc != nil {
		return m.DatasetInstancesFunc(ctx, filter)
	}
	return []models.DatasetInstance{}, nil
}

func (m *MockRemote) Form(ctx context.Context, datasetUID string) ([]models.FormSection, error) {
	if m.FormFunc != nil {
		return m.FormFunc(ctx, datasetUID)
	}
	return []models.FormSection{}, nil
}

func (m *MockRemote) DataValues(ctx context.Context, key models.InstanceKey) ([]models.DataValue, error) {
	if m.DataValuesFunc != nil {
		return m.DataValuesFunc(ctx, key)
	}
	return []models.DataValue{}, nil
}

func (m *MockRemote) PushDataValues(ctx context.Context, key models.InstanceKey, values []models.DataValue) error {
	if m.PushDataValuesFunc != nil {
		return m.PushDataValuesFunc(ctx, key, values)
	}
	return nil
}

func (m *MockRemote) CompleteRegistration(ctx context.Context, key models.InstanceKey, completedBy string) error {
	if m.CompleteRegistrationFunc != nil {
		return m.CompleteRegistrationFunc(ctx, key, completedBy)
	}
	return nil
}

func (m *MockRemote) ReopenRegistration(ctx context.Context, key models.InstanceKey) error {
	if m.ReopenRegistrationFunc != nil {
		return m.ReopenRegistrationFunc(ctx, key)
	}
	return nil
}

// MemoryCredentialStore implements CredentialStore on a plain map. Set
// PutErr to make every write fail.
type MemoryCredentialStore struct {
	Data   map[string]string
	PutErr error
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{Data: map[string]string{}}
}

func (m *MemoryCredentialStore) GetString(key, defaultVal string) string {
	if v, ok := m.Data[key]; ok {
		return v
	}
	return defaultVal
}

func (m *MemoryCredentialStore) PutString(key, value string) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	m.Data[key] = value
	return nil
}

func (m *MemoryCredentialStore) GetInt(key string, defaultVal int) int {
	if v, ok := m.Data[key]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func (m *MemoryCredentialStore) PutInt(key string, value int) error {
	return m.PutString(key, strconv.Itoa(value))
}

func (m *MemoryCredentialStore) GetTime(key string) time.Time {
	if v, ok := m.Data[key]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	return time.Time{}
}

func (m *MemoryCredentialStore) PutTime(key string, t time.Time) error {
	return m.PutString(key, strconv.FormatInt(t.UnixMilli(), 10))
}

func (m *MemoryCredentialStore) Remove(keys ...string) error {
	if m.PutErr != nil {
		return m.PutErr
	}
	for _, k := range keys {
		delete(m.Data, k)
	}
	return nil
}

// MockCache implements MetadataCache for testing
type MockCache struct {
	UpsertDatasetsFunc   func(ctx context.Context, datasets []models.Dataset) error
	DatasetsFunc         func(ctx context.Context) ([]models.Dataset, error)
	UpsertOrgUnitsFunc   func(ctx context.Context, units []models.OrganisationUnit) error
	OrgUnitsFunc         func(ctx context.Context) ([]models.OrganisationUnit, error)
	UpsertInstancesFunc  func(ctx context.Context, instances []models.DatasetInstance) error
	InstancesFunc        func(ctx context.Context, filter models.InstanceFilter) ([]models.DatasetInstance, error)
	SetInstanceStateFunc func(ctx context.Context, key models.InstanceKey, state models.InstanceState, completedBy string, completedDate *time.Time) error
	PutValuesFunc        func(ctx context.Context, key models.InstanceKey, values []models.DataValue) error
	SaveValueFunc        func(ctx context.Context, key models.InstanceKey, value models.DataValue) error
	ValuesFunc           func(ctx context.Context, key models.InstanceKey) ([]models.DataValue, error)
	DirtyValuesFunc      func(ctx context.Context, key models.InstanceKey) ([]models.DataValue, error)
	MarkSyncedFunc       func(ctx context.Context, key models.InstanceKey) error
}

func (m *MockCache) UpsertDatasets(ctx context.Context, datasets []models.Dataset) error {
	if m.UpsertDatasetsFunc != nil {
		return m.UpsertDatasetsFunc(ctx, datasets)
	}
	return nil
}

func (m *MockCache) Datasets(ctx context.Context) ([]models.Dataset, error) {
	if m.DatasetsFunc != nil {
		return m.DatasetsFunc(ctx)
	}
	return []models.Dataset{}, nil
}

func (m *MockCache) UpsertOrgUnits(ctx context.Context, units []models.OrganisationUnit) error {
	if m.UpsertOrgUnitsFunc != nil {
		return m.UpsertOrgUnitsFunc(ctx, units)
	}
	return nil
}

func (m *MockCache) OrgUnits(ctx context.Context) ([]models.OrganisationUnit, error) {
	if m.OrgUnitsFunc != nil {
		return m.OrgUnitsFunc(ctx)
	}
	return []models.OrganisationUnit{}, nil
}

func (m *MockCache) UpsertInstances(ctx context.Context, instances []models.DatasetInstance) error {
	if m.UpsertInstancesFunc != nil {
		return m.UpsertInstancesFunc(ctx, instances)
	}
	return nil
}

func (m *MockCache) Instances(ctx context.Context, filter models.InstanceFilter) ([]models.DatasetInstance, error) {
	if m.InstancesFunc != nil {
		return m.InstancesFunc(ctx, filter)
	}
	return []models.DatasetInstance{}, nil
}

func (m *MockCache) SetInstanceState(ctx context.Context, key models.InstanceKey, state models.InstanceState, completedBy string, completedDate *time.Time) error {
	if m.SetInstanceStateFunc != nil {
		return m.SetInstanceStateFunc(ctx, key, state, completedBy, completedDate)
	}
	return nil
}

func (m *MockCache) PutValues(ctx context.Context, key models.InstanceKey, values []models.DataValue) error {
	if m.PutValuesFunc != nil {
		return m.PutValuesFunc(ctx, key, values)
	}
	return nil
}

func (m *MockCache) SaveValue(ctx context.Context, key models.InstanceKey, value models.DataValue) error {
	if m.SaveValueFunc != nil {
		return m.SaveValueFunc(ctx, key, value)
	}
	return nil
}

func (m *MockCache) Values(ctx context.Context, key models.InstanceKey) ([]models.DataValue, error) {
	if m.ValuesFunc != nil {
		return m.ValuesFunc(ctx, key)
	}
	return []models.DataValue{}, nil
}

func (m *MockCache) DirtyValues(ctx context.Context, key models.InstanceKey) ([]models.DataValue, error) {
	if m.DirtyValuesFunc != nil {
		return m.DirtyValuesFunc(ctx, key)
	}
	return []models.DataValue{}, nil
}

func (m *MockCache) MarkSynced(ctx context.Context, key models.InstanceKey) error {
	if m.MarkSyncedFunc != nil {
		return m.MarkSyncedFunc(ctx, key)
	}
	return nil
}
