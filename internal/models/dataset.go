package models

import "time"

// Dataset is a named data-collection form template.
type Dataset struct {
	UID         string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PeriodType  string `json:"periodType"`
}

// InstanceState tracks the completion lifecycle of a dataset instance.
type InstanceState string

const (
	InstanceOpen      InstanceState = "OPEN"
	InstanceCompleted InstanceState = "COMPLETED"
	InstanceApproved  InstanceState = "APPROVED"
	InstanceLocked    InstanceState = "LOCKED"
)

// Completed reports whether the instance is past the open state.
func (s InstanceState) Completed() bool { return s != InstanceOpen }

// SyncState tracks whether locally held data has reached the server.
type SyncState string

const (
	SyncSynced SyncState = "SYNCED"
	SyncToPost SyncState = "TO_POST"
	SyncError  SyncState = "ERROR"
)

// InstanceKey identifies one concrete (dataset, period, org unit, attribute
// option combo) occurrence.
type InstanceKey struct {
	DatasetUID     string `json:"dataSet"`
	PeriodID       string `json:"period"`
	OrgUnitUID     string `json:"orgUnit"`
	AttributeCombo string `json:"attributeOptionCombo"`
}

// DatasetInstance is one filled-in occurrence of a dataset.
type DatasetInstance struct {
	Key           InstanceKey   `json:"key"`
	State         InstanceState `json:"state"`
	SyncState     SyncState     `json:"syncState"`
	LastUpdated   time.Time     `json:"lastUpdated"`
	CompletedBy   string        `json:"completedBy,omitempty"`
	CompletedDate *time.Time    `json:"completedDate,omitempty"`
	ValueCount    int           `json:"valueCount"`
}

// InstanceFilter narrows an instance listing. Zero fields match everything.
type InstanceFilter struct {
	DatasetUID string
	OrgUnitUID string
	PeriodID   string
	State      InstanceState
}

// OrganisationUnit is a node in the reporting hierarchy.
type OrganisationUnit struct {
	UID   string `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// Period is a reporting period a dataset can be captured for.
type Period struct {
	ID        string    `json:"id"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}
