package types

import (
	"encoding/json"
	"fmt"
)

// RawField is a label/value pair exactly as a scraper read it from a page.
type RawField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// RawTable is a scraper's output before site-specific normalization.
type RawTable struct {
	Source SourceID   `json:"source"`
	URL    string     `json:"url"`
	Fields []RawField `json:"fields"`
}

// Field is one normalized key/value pair.
type Field struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// SourceTable is the ordered, normalized output of one source.
type SourceTable struct {
	Source SourceID `json:"source"`
	URL    string   `json:"url,omitempty"`
	Fields []Field  `json:"fields"`
}

// Len returns the number of fields, treating a nil table as empty.
func (t *SourceTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Fields)
}

// Lookup returns the value of the first field with the given key.
func (t *SourceTable) Lookup(key string) (Value, bool) {
	if t == nil {
		return Absent(), false
	}
	for _, f := range t.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Absent(), false
}

// SourceValues holds one value slot per known source. Slots default to Absent.
type SourceValues [NumSources]Value

// Get returns the value stored for id.
func (sv SourceValues) Get(id SourceID) Value {
	if !id.Valid() {
		return Absent()
	}
	return sv[id.Index()]
}

// Set stores v for id. Unknown sources are ignored.
func (sv *SourceValues) Set(id SourceID, v Value) {
	if id.Valid() {
		sv[id.Index()] = v
	}
}

// MarshalJSON encodes the slots as {"site1": ..., "site2": ..., "site3": ...}.
func (sv SourceValues) MarshalJSON() ([]byte, error) {
	out := make(map[string]Value, NumSources)
	for _, id := range AllSources {
		out[id.String()] = sv.Get(id)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the object form produced by MarshalJSON.
func (sv *SourceValues) UnmarshalJSON(data []byte) error {
	var in map[string]Value
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*sv = SourceValues{}
	for name, v := range in {
		id, err := ParseSourceID(name)
		if err != nil {
			return fmt.Errorf("source values: %w", err)
		}
		sv.Set(id, v)
	}
	return nil
}

// ReconciledRow is one row of the merged table.
type ReconciledRow struct {
	Key        string       `json:"key"`
	Sources    SourceValues `json:"values_by_source"`
	Final      Value        `json:"final_value"`
	Winner     SourceID     `json:"winner"`
	Order      int          `json:"display_order"`
	Overridden bool         `json:"overridden"`
}

// SourceWarning reports that one source produced no data.
type SourceWarning struct {
	Source  SourceID `json:"source"`
	URL     string   `json:"url"`
	Message string   `json:"message"`
}

func (w SourceWarning) String() string {
	return fmt.Sprintf("%s (%s): %s", w.Source.Site(), w.URL, w.Message)
}
