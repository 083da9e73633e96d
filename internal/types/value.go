package types

import (
	"encoding/json"
	"strings"
)

// DefaultNullMarker is the literal text sources use for "no data".
const DefaultNullMarker = "None"

// Value is a field value that is either present (possibly empty) or absent.
// The zero Value is Absent.
type Value struct {
	text    string
	present bool
}

// Present returns a present value holding s.
func Present(s string) Value {
	return Value{text: s, present: true}
}

// Absent returns the absent value.
func Absent() Value {
	return Value{}
}

// ParseValue converts raw source text into a Value. Text equal to one of the
// markers becomes Absent. With no markers, DefaultNullMarker is used.
func ParseValue(raw string, markers ...string) Value {
	if len(markers) == 0 {
		markers = []string{DefaultNullMarker}
	}
	trimmed := strings.TrimSpace(raw)
	for _, m := range markers {
		if trimmed == m {
			return Absent()
		}
	}
	return Present(raw)
}

// FromPtr converts a nullable string.
func FromPtr(s *string) Value {
	if s == nil {
		return Absent()
	}
	return Present(*s)
}

// IsPresent reports whether the value is present.
func (v Value) IsPresent() bool { return v.present }

// IsBlank reports whether the value is absent or only whitespace.
func (v Value) IsBlank() bool {
	return !v.present || strings.TrimSpace(v.text) == ""
}

// String returns the text, or "" when absent.
func (v Value) String() string { return v.text }

// Get returns the text and whether it is present.
func (v Value) Get() (string, bool) { return v.text, v.present }

// Ptr returns a pointer to the text, or nil when absent.
func (v Value) Ptr() *string {
	if !v.present {
		return nil
	}
	s := v.text
	return &s
}

// Equal compares two values as strings where Absent equals "".
func (v Value) Equal(other Value) bool {
	return v.text == other.text
}

// MarshalJSON encodes a present value as a string and Absent as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.present {
		return []byte("null"), nil
	}
	return json.Marshal(v.text)
}

// UnmarshalJSON decodes a string or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Absent()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = Present(s)
	return nil
}
