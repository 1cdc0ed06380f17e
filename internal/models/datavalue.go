package models

import "time"

// ValueType constrains what a data element accepts.
type ValueType string

const (
	ValueTypeText            ValueType = "TEXT"
	ValueTypeLongText        ValueType = "LONG_TEXT"
	ValueTypeNumber          ValueType = "NUMBER"
	ValueTypeInteger         ValueType = "INTEGER"
	ValueTypeIntegerPositive ValueType = "INTEGER_POSITIVE"
	ValueTypeIntegerZeroPos  ValueType = "INTEGER_ZERO_OR_POSITIVE"
	ValueTypePercentage      ValueType = "PERCENTAGE"
	ValueTypeBoolean         ValueType = "BOOLEAN"
	ValueTypeTrueOnly        ValueType = "TRUE_ONLY"
	ValueTypeDate            ValueType = "DATE"
)

// Numeric reports whether the type holds a number.
func (t ValueType) Numeric() bool {
	switch t {
	case ValueTypeNumber, ValueTypeInteger, ValueTypeIntegerPositive,
		ValueTypeIntegerZeroPos, ValueTypePercentage:
		return true
	}
	return false
}

// DataElement is a single field in a data entry form.
type DataElement struct {
	UID       string    `json:"id"`
	Name      string    `json:"name"`
	ValueType ValueType `json:"valueType"`
	Mandatory bool      `json:"mandatory"`
}

// FormSection groups data elements within a dataset's entry form.
type FormSection struct {
	UID      string        `json:"id"`
	Name     string        `json:"name"`
	Elements []DataElement `json:"dataElements"`
}

// DataValue is one captured value for (element, category option combo)
// within a dataset instance.
type DataValue struct {
	DataElementUID string    `json:"dataElement"`
	CategoryCombo  string    `json:"categoryOptionCombo"`
	Value          string    `json:"value"`
	StoredBy       string    `json:"storedBy,omitempty"`
	LastUpdated    time.Time `json:"lastUpdated,omitempty"`
}

// ValidationError explains why a value was rejected for an element.
type ValidationError struct {
	DataElementUID string
	Message        string
}
