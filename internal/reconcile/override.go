package reconcile

import (
	"errors"
	"fmt"

	"github.com/jonathan/specsheet/internal/types"
)

// ErrNotFound indicates that a row key does not exist.
var ErrNotFound = errors.New("not found")

// NotFoundError is returned when an override names a key that is not in the table.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("row with key %q not found", e.Key)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ApplyOverride sets the final value of the row with the given key and
// returns an updated copy of rows. Source values are never touched. When the
// new value equals the current one (absent and "" compare equal) the copy is
// returned unchanged and changed is false.
func ApplyOverride(rows []types.ReconciledRow, key string, value types.Value) (updated []types.ReconciledRow, changed bool, err error) {
	i := indexOf(rows, key)
	if i < 0 {
		return nil, false, &NotFoundError{Key: key}
	}

	updated = make([]types.ReconciledRow, len(rows))
	copy(updated, rows)

	if updated[i].Final.Equal(value) {
		return updated, false, nil
	}

	updated[i].Final = value
	updated[i].Winner = types.SourceNone
	updated[i].Overridden = true
	return updated, true, nil
}

// CarryOverrides re-applies the operator overrides found in previous onto the
// rows of next that share the same key. It returns the updated rows and the
// keys whose overrides had no matching row.
func CarryOverrides(previous, next []types.ReconciledRow) ([]types.ReconciledRow, []string) {
	out := make([]types.ReconciledRow, len(next))
	copy(out, next)

	var dropped []string
	for _, prev := range previous {
		if !prev.Overridden {
			continue
		}
		i := indexOf(out, prev.Key)
		if i < 0 {
			dropped = append(dropped, prev.Key)
			continue
		}
		out[i].Final = prev.Final
		out[i].Winner = types.SourceNone
		out[i].Overridden = true
	}
	return out, dropped
}

func indexOf(rows []types.ReconciledRow, key string) int {
	for i := range rows {
		if rows[i].Key == key {
			return i
		}
	}
	return -1
}
