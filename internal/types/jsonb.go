package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions.
// These ensure all JSONB types implement both sql.Scanner and driver.Valuer,
// catching any method signature drift at compile time rather than at runtime.
// Scan is on pointer receivers; Value is on value receivers.
var (
	_ sql.Scanner   = (*Entitlement)(nil)
	_ driver.Valuer = Entitlement{}
	_ sql.Scanner   = (*ProviderRecords)(nil)
	_ driver.Valuer = ProviderRecords(nil)
	_ sql.Scanner   = (*ScheduleSpec)(nil)
	_ driver.Valuer = ScheduleSpec{}
	_ sql.Scanner   = (*Checklist)(nil)
	_ driver.Valuer = Checklist(nil)
	_ sql.Scanner   = (*TemplateSnapshot)(nil)
	_ driver.Valuer = TemplateSnapshot{}
)

// scanJSONB is a generic helper that scans a JSONB database value into a Go pointer.
// It handles nil values, []byte, and string representations from different database drivers.
func scanJSONB(dest interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// valueJSONB is a generic helper that converts a Go value to a JSONB-compatible driver.Value.
func valueJSONB(v interface{}) (driver.Value, error) {
	return json.Marshal(v)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (e *Entitlement) Scan(value interface{}) error {
	return scanJSONB(e, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (e Entitlement) Value() (driver.Value, error) {
	return valueJSONB(e)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (pr *ProviderRecords) Scan(value interface{}) error {
	if value == nil {
		*pr = nil
		return nil
	}
	return scanJSONB(pr, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (pr ProviderRecords) Value() (driver.Value, error) {
	if pr == nil {
		return json.Marshal(ProviderRecords{})
	}
	return valueJSONB(pr)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (s *ScheduleSpec) Scan(value interface{}) error {
	return scanJSONB(s, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (s ScheduleSpec) Value() (driver.Value, error) {
	return valueJSONB(s)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (c *Checklist) Scan(value interface{}) error {
	if value == nil {
		*c = nil
		return nil
	}
	return scanJSONB(c, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (c Checklist) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return valueJSONB(c)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (ts *TemplateSnapshot) Scan(value interface{}) error {
	return scanJSONB(ts, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (ts TemplateSnapshot) Value() (driver.Value, error) {
	return valueJSONB(ts)
}
