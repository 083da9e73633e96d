package types

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// ErrNoURLs is returned when a process request names no source at all.
var ErrNoURLs = errors.New("at least one source URL is required")

// ProcessRequest asks for the sources to be scraped and reconciled.
type ProcessRequest struct {
	Site1URL       string `json:"site1_url,omitempty" validate:"omitempty,url"`
	Site2URL       string `json:"site2_url,omitempty" validate:"omitempty,url"`
	Site3URL       string `json:"site3_url,omitempty" validate:"omitempty,url"`
	Transmission   string `json:"transmission,omitempty" validate:"omitempty,oneof=default manual automatic"`
	CarryOverrides *bool  `json:"carry_overrides,omitempty"`
}

// URLs returns the request URLs indexed by source slot.
func (r *ProcessRequest) URLs() [NumSources]string {
	return [NumSources]string{r.Site1URL, r.Site2URL, r.Site3URL}
}

// Validate validates the ProcessRequest using the validator.
func (r *ProcessRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return err
	}
	if r.Site1URL == "" && r.Site2URL == "" && r.Site3URL == "" {
		return ErrNoURLs
	}
	return nil
}

// OverrideRequest replaces the final value of one row. A null value clears it.
type OverrideRequest struct {
	Value *string `json:"value"`
}

// LanguageRequest selects the export template language.
type LanguageRequest struct {
	Language string `json:"language" validate:"required"`
}

// Validate validates the LanguageRequest using the validator.
func (r *LanguageRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// RawEntry is a key/value pair submitted directly through the API.
type RawEntry struct {
	Key   string  `json:"key" validate:"required"`
	Value *string `json:"value"`
}

// ReconcileRequest merges caller-supplied tables without scraping.
type ReconcileRequest struct {
	Tables      map[string][]RawEntry `json:"tables" validate:"required,min=1,max=3,dive,keys,oneof=site1 site2 site3,endkeys,dive"`
	Priority    []string              `json:"priority,omitempty" validate:"omitempty,max=3,dive,oneof=site1 site2 site3"`
	NullMarkers []string              `json:"null_markers,omitempty"`
}

// Validate validates the ReconcileRequest using the validator.
func (r *ReconcileRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// SourceTables converts the submitted tables, applying the null markers.
func (r *ReconcileRequest) SourceTables() [NumSources]*SourceTable {
	var out [NumSources]*SourceTable
	for name, entries := range r.Tables {
		id, err := ParseSourceID(name)
		if err != nil {
			continue
		}
		table := &SourceTable{Source: id, Fields: make([]Field, 0, len(entries))}
		for _, e := range entries {
			v := Absent()
			if e.Value != nil {
				v = ParseValue(*e.Value, r.NullMarkers...)
			}
			table.Fields = append(table.Fields, Field{Key: e.Key, Value: v})
		}
		out[id.Index()] = table
	}
	return out
}

// PriorityIDs parses the optional priority list.
func (r *ReconcileRequest) PriorityIDs() ([]SourceID, error) {
	if len(r.Priority) == 0 {
		return nil, nil
	}
	ids := make([]SourceID, 0, len(r.Priority))
	for _, p := range r.Priority {
		id, err := ParseSourceID(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
