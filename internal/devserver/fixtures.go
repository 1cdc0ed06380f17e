package devserver

import (
	"time"

	"github.com/xavim/fieldentry/internal/models"
)

// SeedDefaults loads the demo accounts and metadata used by the dev
// server binary and the integration tests. The admin/district pair
// mirrors the well-known demo credentials of the upstream platform.
func SeedDefaults(store *Store) error {
	if err := store.AddAccount("admin", "district", false, ""); err != nil {
		return err
	}
	if err := store.AddAccount("disabled", "district", true, ""); err != nil {
		return err
	}

	datasets := []models.Dataset{
		{UID: "BfMAe6Itzgt", Name: "Child Health", Description: "Monthly child health report", PeriodType: "Monthly"},
		{UID: "Lpw6GcnTrmS", Name: "Emergency Response", Description: "Weekly emergency response report", PeriodType: "Weekly"},
	}

	orgUnits := []models.OrganisationUnit{
		{UID: "DiszpKrYNg8", Name: "Ngelehun CHC", Level: 4},
		{UID: "g8upMTyEZGZ", Name: "Njandama MCHP", Level: 4},
	}

	sections := map[string][]models.FormSection{
		"BfMAe6Itzgt": {
			{
				UID:  "sB79w2hiLp8",
				Name: "Immunization",
				Elements: []models.DataElement{
					{UID: "s46m5MS0hxu", Name: "BCG doses given", ValueType: models.ValueTypeIntegerZeroPos, Mandatory: true},
					{UID: "x3Do5e7g4Qo", Name: "OPV0 doses given", ValueType: models.ValueTypeIntegerZeroPos},
				},
			},
			{
				UID:  "aN8uN5b15YG",
				Name: "Nutrition",
				Elements: []models.DataElement{
					{UID: "UOlfIjgN8X6", Name: "Fully immunized child", ValueType: models.ValueTypePercentage},
					{UID: "pikOziyCXbM", Name: "Measles follow-up", ValueType: models.ValueTypeBoolean},
				},
			},
		},
		"Lpw6GcnTrmS": {
			{
				UID:  "G7lzHJzAy1v",
				Name: "Response",
				Elements: []models.DataElement{
					{UID: "FTRrcoaog83", Name: "Cases reported", ValueType: models.ValueTypeInteger, Mandatory: true},
					{UID: "eY5ehpbEsB7", Name: "Response notes", ValueType: models.ValueTypeText},
				},
			},
		},
	}

	store.SeedMetadata(datasets, orgUnits, sections)

	key := models.InstanceKey{
		DatasetUID:     "BfMAe6Itzgt",
		PeriodID:       "202601",
		OrgUnitUID:     "DiszpKrYNg8",
		AttributeCombo: "HllvX50cXC0",
	}
	store.PutValues(key, []models.DataValue{
		{DataElementUID: "s46m5MS0hxu", CategoryCombo: "HllvX50cXC0", Value: "12", StoredBy: "admin", LastUpdated: time.Now().UTC()},
	})

	return nil
}
