package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xavim/fieldentry/internal/models"
	"github.com/xavim/fieldentry/internal/session"
)

// RemoteAPI is the metadata and data slice of the remote adapter.
type RemoteAPI interface {
	Datasets(ctx context.Context) ([]models.Dataset, error)
	OrgUnits(ctx context.Context, datasetUID string) ([]models.OrganisationUnit, error)
	DatasetInstances(ctx context.Context, filter models.InstanceFilter) ([]models.DatasetInstance, error)
	Form(ctx context.Context, datasetUID string) ([]models.FormSection, error)
	DataValues(ctx context.Context, key models.InstanceKey) ([]models.DataValue, error)
	PushDataValues(ctx context.Context, key models.InstanceKey, values []models.DataValue) error
	CompleteRegistration(ctx context.Context, key models.InstanceKey, completedBy string) error
	ReopenRegistration(ctx context.Context, key models.InstanceKey) error
}

// MetadataCache is the slice of the local cache the services need.
type MetadataCache interface {
	UpsertDatasets(ctx context.Context, datasets []models.Dataset) error
	Datasets(ctx context.Context) ([]models.Dataset, error)
	UpsertOrgUnits(ctx context.Context, units []models.OrganisationUnit) error
	OrgUnits(ctx context.Context) ([]models.OrganisationUnit, error)
	UpsertInstances(ctx context.Context, instances []models.DatasetInstance) error
	Instances(ctx context.Context, filter models.InstanceFilter) ([]models.DatasetInstance, error)
	SetInstanceState(ctx context.Context, key models.InstanceKey, state models.InstanceState, completedBy string, completedDate *time.Time) error
	PutValues(ctx context.Context, key models.InstanceKey, values []models.DataValue) error
	SaveValue(ctx context.Context, key models.InstanceKey, value models.DataValue) error
	Values(ctx context.Context, key models.InstanceKey) ([]models.DataValue, error)
	DirtyValues(ctx context.Context, key models.InstanceKey) ([]models.DataValue, error)
	MarkSynced(ctx context.Context, key models.InstanceKey) error
}

// DatasetService lists datasets and dataset instances and drives the
// complete/reopen/sync lifecycle. Remote reads fall back to the local
// cache when the network is unreachable.
type DatasetService struct {
	remote RemoteAPI
	cache  MetadataCache
	state  *session.State
	logger *slog.Logger
}

// NewDatasetService creates a new DatasetService.
func NewDatasetService(remote RemoteAPI, cache MetadataCache, state *session.State, logger *slog.Logger) *DatasetService {
	return &DatasetService{
		remote: remote,
		cache:  cache,
		state:  state,
		logger: logger,
	}
}

// Datasets returns the available data collection forms, served from the
// cache when the server cannot be reached.
func (s *DatasetService) Datasets(ctx context.Context) ([]models.Dataset, error) {
	datasets, err := s.remote.Datasets(ctx)
	if err != nil {
		if errors.Is(err, models.ErrNetwork) {
			s.logger.Info("serving datasets from cache, server unreachable")
			return s.cache.Datasets(ctx)
		}
		return nil, err
	}

	if err := s.cache.UpsertDatasets(ctx, datasets); err != nil {
		s.logger.Warn("failed to cache datasets", slog.Any("error", err))
	}
	return datasets, nil
}

// OrgUnits returns the organisation units the user may report against.
func (s *DatasetService) OrgUnits(ctx context.Context, datasetUID string) ([]models.OrganisationUnit, error) {
	units, err := s.remote.OrgUnits(ctx, datasetUID)
	if err != nil {
		if errors.Is(err, models.ErrNetwork) {
			return s.cache.OrgUnits(ctx)
		}
		return nil, err
	}

	if err := s.cache.UpsertOrgUnits(ctx, units); err != nil {
		s.logger.Warn("failed to cache org units", slog.Any("error", err))
	}
	return units, nil
}

// Instances lists dataset instances matching the filter.
func (s *DatasetService) Instances(ctx context.Context, filter models.InstanceFilter) ([]models.DatasetInstance, error) {
	instances, err := s.remote.DatasetInstances(ctx, filter)
	if err != nil {
		if errors.Is(err, models.ErrNetwork) {
			s.logger.Info("serving instances from cache, server unreachable")
			return s.cache.Instances(ctx, filter)
		}
		return nil, err
	}

	if err := s.cache.UpsertInstances(ctx, instances); err != nil {
		s.logger.Warn("failed to cache instances", slog.Any("error", err))
	}
	return instances, nil
}

// CompleteInstance marks an instance completed on the server and mirrors
// the state locally. Approved and locked instances cannot be completed.
func (s *DatasetService) CompleteInstance(ctx context.Context, key models.InstanceKey, current models.InstanceState) error {
	if current == models.InstanceApproved || current == models.InstanceLocked {
		return fmt.Errorf("%w: instance is %s", models.ErrBadRequest, current)
	}

	completedBy := s.state.Current().Username
	if err := s.remote.CompleteRegistration(ctx, key, completedBy); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := s.cache.SetInstanceState(ctx, key, models.InstanceCompleted, completedBy, &now); err != nil {
		s.logger.Warn("failed to update cached instance state", slog.Any("error", err))
	}
	return nil
}

// ReopenInstance removes the completion mark. Approved and locked
// instances stay closed.
func (s *DatasetService) ReopenInstance(ctx context.Context, key models.InstanceKey, current models.InstanceState) error {
	if current == models.InstanceApproved || current == models.InstanceLocked {
		return fmt.Errorf("%w: instance is %s", models.ErrBadRequest, current)
	}

	if err := s.remote.ReopenRegistration(ctx, key); err != nil {
		return err
	}

	if err := s.cache.SetInstanceState(ctx, key, models.InstanceOpen, "", nil); err != nil {
		s.logger.Warn("failed to update cached instance state", slog.Any("error", err))
	}
	return nil
}

// SyncInstance pushes locally saved values that have not reached the
// server yet.
func (s *DatasetService) SyncInstance(ctx context.Context, key models.InstanceKey) error {
	dirty, err := s.cache.DirtyValues(ctx, key)
	if err != nil {
		return err
	}
	if len(dirty) == 0 {
		return nil
	}

	if err := s.remote.PushDataValues(ctx, key, dirty); err != nil {
		return err
	}

	if err := s.cache.MarkSynced(ctx, key); err != nil {
		return err
	}

	s.logger.Info("instance synced",
		slog.String("dataset", key.DatasetUID),
		slog.String("period", key.PeriodID),
		slog.Int("values", len(dirty)))
	return nil
}
