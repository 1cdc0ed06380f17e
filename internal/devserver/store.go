package devserver

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/xavim/fieldentry/internal/models"
)

// Account is a fixture user the dev server authenticates.
type Account struct {
	Username     string
	PasswordHash []byte
	Disabled     bool
	// TOTPSecret enables two-factor checks for this account when set.
	TOTPSecret string
}

// Store is the in-memory backing state of the dev server: accounts,
// metadata, registrations, and data values. Good enough for development
// and integration tests; nothing survives a restart.
type Store struct {
	mu        sync.RWMutex
	accounts  map[string]*Account
	datasets  []models.Dataset
	orgUnits  []models.OrganisationUnit
	sections  map[string][]models.FormSection
	instances map[models.InstanceKey]*models.DatasetInstance
	values    map[models.InstanceKey][]models.DataValue
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts:  make(map[string]*Account),
		sections:  make(map[string][]models.FormSection),
		instances: make(map[models.InstanceKey]*models.DatasetInstance),
		values:    make(map[models.InstanceKey][]models.DataValue),
	}
}

// AddAccount registers a fixture account, hashing the plaintext password.
func (s *Store) AddAccount(username, password string, disabled bool, totpSecret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash fixture password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[username] = &Account{
		Username:     username,
		PasswordHash: hash,
		Disabled:     disabled,
		TOTPSecret:   totpSecret,
	}
	return nil
}

// Account returns the fixture account for username, or nil.
func (s *Store) Account(username string) *Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[username]
}

// SeedMetadata installs datasets, org units, and per-dataset form sections.
func (s *Store) SeedMetadata(datasets []models.Dataset, orgUnits []models.OrganisationUnit, sections map[string][]models.FormSection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets = datasets
	s.orgUnits = orgUnits
	for uid, secs := range sections {
		s.sections[uid] = secs
	}
}

// Datasets returns the seeded datasets.
func (s *Store) Datasets() []models.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Dataset(nil), s.datasets...)
}

// OrgUnits returns the seeded organisation units.
func (s *Store) OrgUnits() []models.OrganisationUnit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.OrganisationUnit(nil), s.orgUnits...)
}

// Sections returns the form sections of one dataset.
func (s *Store) Sections(datasetUID string) ([]models.FormSection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secs, ok := s.sections[datasetUID]
	return secs, ok
}

// HasDataset reports whether a dataset UID is seeded.
func (s *Store) HasDataset(uid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ds := range s.datasets {
		if ds.UID == uid {
			return true
		}
	}
	return false
}

// Instances returns registrations matching the filter.
func (s *Store) Instances(filter models.InstanceFilter) []models.DatasetInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.DatasetInstance
	for _, in := range s.instances {
		if filter.DatasetUID != "" && in.Key.DatasetUID != filter.DatasetUID {
			continue
		}
		if filter.OrgUnitUID != "" && in.Key.OrgUnitUID != filter.OrgUnitUID {
			continue
		}
		if filter.PeriodID != "" && in.Key.PeriodID != filter.PeriodID {
			continue
		}
		if filter.State != "" && in.State != filter.State {
			continue
		}
		out = append(out, *in)
	}
	return out
}

// Complete marks a registration completed, creating it if absent.
func (s *Store) Complete(key models.InstanceKey, completedBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.instances[key]
	if !ok {
		in = &models.DatasetInstance{Key: key, State: models.InstanceOpen, SyncState: models.SyncSynced}
		s.instances[key] = in
	}
	if in.State == models.InstanceApproved || in.State == models.InstanceLocked {
		return fmt.Errorf("instance is %s", in.State)
	}

	now := time.Now().UTC()
	in.State = models.InstanceCompleted
	in.CompletedBy = completedBy
	in.CompletedDate = &now
	in.LastUpdated = now
	return nil
}

// Reopen removes the completion mark from a registration.
func (s *Store) Reopen(key models.InstanceKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.instances[key]
	if !ok {
		return fmt.Errorf("registration not found")
	}
	if in.State == models.InstanceApproved || in.State == models.InstanceLocked {
		return fmt.Errorf("instance is %s", in.State)
	}

	in.State = models.InstanceOpen
	in.CompletedBy = ""
	in.CompletedDate = nil
	in.LastUpdated = time.Now().UTC()
	return nil
}

// Values returns the stored data values of one registration.
func (s *Store) Values(key models.InstanceKey) []models.DataValue {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.DataValue(nil), s.values[key]...)
}

// PutValues merges uploaded values into a registration, creating the
// registration record if needed.
func (s *Store) PutValues(key models.InstanceKey, values []models.DataValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.values[key]
	for _, v := range values {
		replaced := false
		for i := range existing {
			if existing[i].DataElementUID == v.DataElementUID && existing[i].CategoryCombo == v.CategoryCombo {
				existing[i] = v
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, v)
		}
	}
	s.values[key] = existing

	in, ok := s.instances[key]
	if !ok {
		in = &models.DatasetInstance{Key: key, State: models.InstanceOpen, SyncState: models.SyncSynced}
		s.instances[key] = in
	}
	in.ValueCount = len(existing)
	in.LastUpdated = time.Now().UTC()
}
