package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/specsheet/internal/types"
)

func table(source types.SourceID, pairs ...string) *types.SourceTable {
	t := &types.SourceTable{Source: source}
	for i := 0; i+1 < len(pairs); i += 2 {
		t.Fields = append(t.Fields, types.Field{Key: pairs[i], Value: types.ParseValue(pairs[i+1])})
	}
	return t
}

func tables(t1, t2, t3 *types.SourceTable) [types.NumSources]*types.SourceTable {
	return [types.NumSources]*types.SourceTable{t1, t2, t3}
}

func keys(rows []types.ReconciledRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Key
	}
	return out
}

func TestMerge_NoTables(t *testing.T) {
	rows := Merge(tables(nil, nil, nil))
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestMerge_SingleTablePreservesOrder(t *testing.T) {
	src := table(types.SourceSite3, "Make", "Volvo", "Model", "XC60", "Fuel", "Diesel")
	rows := Merge(tables(nil, nil, src))

	require.Len(t, rows, 3)
	for i, f := range src.Fields {
		assert.Equal(t, f.Key, rows[i].Key)
		assert.Equal(t, i, rows[i].Order)
		assert.Equal(t, f.Value, rows[i].Final)
		assert.Equal(t, f.Value, rows[i].Sources.Get(types.SourceSite3))
		assert.False(t, rows[i].Sources.Get(types.SourceSite1).IsPresent())
		assert.False(t, rows[i].Sources.Get(types.SourceSite2).IsPresent())
	}
}

func TestMerge_PriorityCorrectness(t *testing.T) {
	s1 := table(types.SourceSite1, "Power", "110 kW")
	s2 := table(types.SourceSite2, "Power", "111 kW")
	s3 := table(types.SourceSite3, "Power", "112 kW")

	rows := Merge(tables(s1, s2, s3))
	require.Len(t, rows, 1)
	assert.Equal(t, "111 kW", rows[0].Final.String())
	assert.Equal(t, types.SourceSite2, rows[0].Winner)

	// Base table changes with input presence, the winner does not.
	rows = Merge(tables(nil, s2, s3))
	assert.Equal(t, "111 kW", rows[0].Final.String())
	rows = Merge(tables(s1, nil, s3))
	assert.Equal(t, "110 kW", rows[0].Final.String())
}

func TestMerge_FallbackWhenPrioritySourceIsMarker(t *testing.T) {
	s1 := table(types.SourceSite1, "Engine", "2.0L")
	s2 := table(types.SourceSite2, "Engine", "None")

	rows := Merge(tables(s1, s2, nil))
	require.Len(t, rows, 1)
	assert.Equal(t, "2.0L", rows[0].Final.String())
	assert.Equal(t, types.SourceSite1, rows[0].Winner)
	assert.False(t, rows[0].Sources.Get(types.SourceSite2).IsPresent())
}

func TestMerge_BlankValueOnlyWinsAsFallback(t *testing.T) {
	s1 := table(types.SourceSite1, "Color", "")
	s2 := table(types.SourceSite2, "Color", " ")
	s3 := table(types.SourceSite3, "Color", "Red")

	rows := Merge(tables(s1, s2, s3))
	assert.Equal(t, "Red", rows[0].Final.String())

	rows = Merge(tables(s1, s2, nil))
	assert.Equal(t, " ", rows[0].Final.String(), "blank site2 wins the fallback pass")
	assert.Equal(t, types.SourceSite2, rows[0].Winner)
}

func TestMerge_AllAbsent(t *testing.T) {
	s1 := table(types.SourceSite1, "Tow", "None")
	s3 := table(types.SourceSite3, "Tow", "None")

	rows := Merge(tables(s1, nil, s3))
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Final.IsPresent())
	assert.Equal(t, types.SourceNone, rows[0].Winner)
}

func TestMerge_AppendOrdering(t *testing.T) {
	s1 := table(types.SourceSite1, "A", "1", "B", "2")
	s2 := table(types.SourceSite2, "C", "3", "A", "1b", "D", "4")
	s3 := table(types.SourceSite3, "E", "5", "C", "3c", "B", "2c")

	rows := Merge(tables(s1, s2, s3))
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, keys(rows))
	for i, r := range rows {
		assert.Equal(t, i, r.Order)
	}
	assert.Equal(t, "1b", rows[0].Final.String())
	assert.Equal(t, "2", rows[1].Final.String())
	assert.Equal(t, "3", rows[2].Final.String())
	assert.Equal(t, "5", rows[4].Final.String())
}

func TestMerge_BaseIsFirstPresentTable(t *testing.T) {
	s2 := table(types.SourceSite2, "X", "x2", "Y", "y2")
	s3 := table(types.SourceSite3, "Z", "z3", "X", "x3")

	rows := Merge(tables(nil, s2, s3))
	assert.Equal(t, []string{"X", "Y", "Z"}, keys(rows))
}

func TestMerge_ThreeSourceMismatch(t *testing.T) {
	s1 := table(types.SourceSite1, "Engine", "2.0L")
	s2 := table(types.SourceSite2)
	s3 := table(types.SourceSite3, "Engine", "None", "Weight", "1500kg")

	rows := Merge(tables(s1, s2, s3))
	require.Len(t, rows, 2)

	assert.Equal(t, "Engine", rows[0].Key)
	assert.Equal(t, "2.0L", rows[0].Final.String())
	assert.Equal(t, types.SourceSite1, rows[0].Winner)

	assert.Equal(t, "Weight", rows[1].Key)
	assert.Equal(t, "1500kg", rows[1].Final.String())
	assert.Equal(t, types.SourceSite3, rows[1].Winner)
}

func TestMerge_DuplicateKeysKeepFirst(t *testing.T) {
	s1 := table(types.SourceSite1, "A", "first", "A", "second")
	rows := Merge(tables(s1, nil, nil))
	require.Len(t, rows, 1)
	assert.Equal(t, "first", rows[0].Final.String())
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	s1 := table(types.SourceSite1, "A", "1")
	s2 := table(types.SourceSite2, "A", "2", "B", "3")
	before1 := *s1
	before2 := append([]types.Field(nil), s2.Fields...)

	_ = Merge(tables(s1, s2, nil))
	assert.Equal(t, before1.Fields, s1.Fields)
	assert.Equal(t, before2, s2.Fields)
}

func TestMerge_CustomPriority(t *testing.T) {
	s1 := table(types.SourceSite1, "Power", "110 kW")
	s2 := table(types.SourceSite2, "Power", "111 kW")
	s3 := table(types.SourceSite3, "Power", "112 kW")

	rows := Merge(tables(s1, s2, s3), WithPriority([]types.SourceID{types.SourceSite3}))
	assert.Equal(t, "112 kW", rows[0].Final.String())
}

func TestNew_PriorityNormalization(t *testing.T) {
	m := New(WithPriority([]types.SourceID{types.SourceSite3, types.SourceSite3, types.SourceNone}))
	assert.Equal(t, []types.SourceID{types.SourceSite3, types.SourceSite1, types.SourceSite2}, m.Priority())

	assert.Equal(t, types.DefaultPriority, New().Priority())
}
