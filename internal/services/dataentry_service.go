package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/xavim/fieldentry/internal/models"
	"github.com/xavim/fieldentry/internal/session"
)

// DataEntryService loads entry forms and existing values and saves new
// values. Saves land in the local cache first and are pushed best effort;
// values that fail to push stay dirty for a later SyncInstance.
type DataEntryService struct {
	remote RemoteAPI
	cache  MetadataCache
	state  *session.State
	logger *slog.Logger
}

// NewDataEntryService creates a new DataEntryService.
func NewDataEntryService(remote RemoteAPI, cache MetadataCache, state *session.State, logger *slog.Logger) *DataEntryService {
	return &DataEntryService{
		remote: remote,
		cache:  cache,
		state:  state,
		logger: logger,
	}
}

// Form returns the entry form sections for a dataset.
func (s *DataEntryService) Form(ctx context.Context, datasetUID string) ([]models.FormSection, error) {
	return s.remote.Form(ctx, datasetUID)
}

// ExistingValues returns the values already captured for an instance,
// from the cache when the server cannot be reached.
func (s *DataEntryService) ExistingValues(ctx context.Context, key models.InstanceKey) ([]models.DataValue, error) {
	values, err := s.remote.DataValues(ctx, key)
	if err != nil {
		if errors.Is(err, models.ErrNetwork) {
			s.logger.Info("serving data values from cache, server unreachable")
			return s.cache.Values(ctx, key)
		}
		return nil, err
	}

	if err := s.cache.PutValues(ctx, key, values); err != nil {
		s.logger.Warn("failed to cache data values", slog.Any("error", err))
	}
	return values, nil
}

// SaveValue validates one value against its element, writes it to the
// cache as dirty, then tries to push it. A failed push is not an error;
// the value stays dirty until the next sync.
func (s *DataEntryService) SaveValue(ctx context.Context, key models.InstanceKey, element models.DataElement, value string) error {
	if verr := ValidateValue(element, value); verr != nil {
		return fmt.Errorf("%w: %s", models.ErrBadRequest, verr.Message)
	}

	dv := models.DataValue{
		DataElementUID: element.UID,
		CategoryCombo:  key.AttributeCombo,
		Value:          value,
		StoredBy:       s.state.Current().Username,
		LastUpdated:    time.Now().UTC(),
	}

	if err := s.cache.SaveValue(ctx, key, dv); err != nil {
		return err
	}

	if err := s.remote.PushDataValues(ctx, key, []models.DataValue{dv}); err != nil {
		s.logger.Info("value saved locally, push deferred", slog.Any("error", err))
		return nil
	}
	return s.cache.MarkSynced(ctx, key)
}

// SaveValues validates and saves a batch, reporting every validation
// failure at once. Nothing is written when any value is invalid.
func (s *DataEntryService) SaveValues(ctx context.Context, key models.InstanceKey, elements []models.DataElement, values map[string]string) ([]models.ValidationError, error) {
	byUID := make(map[string]models.DataElement, len(elements))
	for _, el := range elements {
		byUID[el.UID] = el
	}

	var verrs []models.ValidationError
	for uid, value := range values {
		el, ok := byUID[uid]
		if !ok {
			verrs = append(verrs, models.ValidationError{DataElementUID: uid, Message: "unknown data element"})
			continue
		}
		if verr := ValidateValue(el, value); verr != nil {
			verrs = append(verrs, *verr)
		}
	}
	if len(verrs) > 0 {
		return verrs, nil
	}

	for uid, value := range values {
		if err := s.SaveValue(ctx, key, byUID[uid], value); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// ValidateValue checks a raw value against the element's value type.
// Mandatory elements reject blank values; optional elements accept them.
func ValidateValue(element models.DataElement, value string) *models.ValidationError {
	fail := func(msg string) *models.ValidationError {
		return &models.ValidationError{DataElementUID: element.UID, Message: msg}
	}

	if value == "" {
		if element.Mandatory {
			return fail("value is required")
		}
		return nil
	}

	switch element.ValueType {
	case models.ValueTypeNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fail("must be a number")
		}
	case models.ValueTypeInteger:
		if _, err := strconv.Atoi(value); err != nil {
			return fail("must be an integer")
		}
	case models.ValueTypeIntegerPositive:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fail("must be a positive integer")
		}
	case models.ValueTypeIntegerZeroPos:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fail("must be zero or a positive integer")
		}
	case models.ValueTypePercentage:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil || n < 0 || n > 100 {
			return fail("must be a percentage between 0 and 100")
		}
	case models.ValueTypeBoolean:
		if value != "true" && value != "false" {
			return fail("must be true or false")
		}
	case models.ValueTypeTrueOnly:
		if value != "true" {
			return fail("must be true or empty")
		}
	case models.ValueTypeDate:
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return fail("must be a date (YYYY-MM-DD)")
		}
	}
	return nil
}
