// Package types provides type definitions for structured data used throughout the specsheet system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SourceID identifies one of the external vehicle-data sites.
// The zero value means "no source" (e.g. a final value set by an operator).
type SourceID int

const (
	SourceNone SourceID = iota
	SourceSite1
	SourceSite2
	SourceSite3
)

// NumSources is the number of known sources.
const NumSources = 3

// AllSources lists the known sources in input order.
var AllSources = [NumSources]SourceID{SourceSite1, SourceSite2, SourceSite3}

// DefaultPriority is the final-value precedence: Site 2 > Site 1 > Site 3.
var DefaultPriority = []SourceID{SourceSite2, SourceSite1, SourceSite3}

var sourceNames = map[SourceID]string{
	SourceSite1: "site1",
	SourceSite2: "site2",
	SourceSite3: "site3",
}

var sourceSites = map[SourceID]string{
	SourceSite1: "Voertuig",
	SourceSite2: "Typenscheine",
	SourceSite3: "Auto-Data",
}

// Valid reports whether id is one of the known sources.
func (id SourceID) Valid() bool {
	return id >= SourceSite1 && id <= SourceSite3
}

// Index returns the zero-based slot of the source in a SourceValues array.
func (id SourceID) Index() int {
	return int(id) - 1
}

func (id SourceID) String() string {
	if name, ok := sourceNames[id]; ok {
		return name
	}
	return "none"
}

// Site returns the human name of the external site.
func (id SourceID) Site() string {
	return sourceSites[id]
}

// ParseSourceID accepts "site1", "1", "Site 1" style identifiers.
func ParseSourceID(s string) (SourceID, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	norm = strings.TrimPrefix(norm, "site")
	switch norm {
	case "1":
		return SourceSite1, nil
	case "2":
		return SourceSite2, nil
	case "3":
		return SourceSite3, nil
	}
	return SourceNone, fmt.Errorf("unknown source %q", s)
}

// MarshalJSON encodes the source by name; SourceNone encodes as null.
func (id SourceID) MarshalJSON() ([]byte, error) {
	if !id.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(id.String())
}

// UnmarshalJSON decodes a source name.
func (id *SourceID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = SourceNone
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSourceID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Transmission selects which gearbox variant to read on sites that list both.
type Transmission string

const (
	TransmissionDefault   Transmission = "default"
	TransmissionManual    Transmission = "manual"
	TransmissionAutomatic Transmission = "automatic"
)

// ParseTransmission maps user input to a Transmission. Empty input is the default.
func ParseTransmission(s string) (Transmission, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default", "por defecto":
		return TransmissionDefault, nil
	case "manual":
		return TransmissionManual, nil
	case "automatic", "auto", "automático", "automatico":
		return TransmissionAutomatic, nil
	}
	return TransmissionDefault, fmt.Errorf("unknown transmission %q", s)
}
