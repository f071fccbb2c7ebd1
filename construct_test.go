package rowbind

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func resultRows() *SliceSource {
	return NewSliceSource([]string{"id", "values"},
		[]any{1, 3.14},
		[]any{1, 3.15},
		[]any{1, 3.16},
	)
}

func twoGroupRows() *SliceSource {
	return NewSliceSource([]string{"id", "values"},
		[]any{1, 3.14},
		[]any{1, 3.15},
		[]any{1, 3.16},
		[]any{2, 40.1},
		[]any{2, 0.01},
		[]any{2, 2.34},
	)
}

func TestConstructOne_IdentityGroup(t *testing.T) {
	got, err := ConstructOne[testResult](resultRows(), WithSilent())
	require.NoError(t, err)
	require.Equal(t, testResult{ID: 1, Values: []float64{3.14, 3.15, 3.16}}, got)
}

func TestConstructMany_TwoGroups(t *testing.T) {
	got, err := ConstructMany[testResult](twoGroupRows())
	require.NoError(t, err)
	require.Equal(t, []testResult{
		{ID: 1, Values: []float64{3.14, 3.15, 3.16}},
		{ID: 2, Values: []float64{40.1, 0.01, 2.34}},
	}, got)
}

func TestEmptySource_Asymmetry(t *testing.T) {
	_, err := ConstructOne[testResult](NewSliceSource([]string{"id", "values"}))
	require.ErrorIs(t, err, ErrEmptySource)

	got, err := ConstructMany[testResult](NewSliceSource([]string{"id", "values"}))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestConstructOne_TrailingRowsWarning(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()

	got, err := ConstructOne[testResult](twoGroupRows(), WithLogger(logger))
	require.NoError(t, err)
	require.Equal(t, testResult{ID: 1, Values: []float64{3.14, 3.15, 3.16}}, got)

	entries := hook.AllEntries()
	require.Len(t, entries, 1)
	require.Equal(t, logrus.WarnLevel, entries[0].Level)
	require.Contains(t, entries[0].Message, "rows remain")
}

func TestConstructOne_TrailingRowsSilenced(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()

	_, err := ConstructOne[testResult](twoGroupRows(), WithLogger(logger), WithSilent())
	require.NoError(t, err)
	require.Empty(t, hook.AllEntries())
}

func TestConstructOne_NoIdentity_SingleRow(t *testing.T) {
	type point struct {
		X int `row:"x"`
		Y int `row:"y"`
	}
	src := NewSliceSource([]string{"x", "y"},
		[]any{1, 2},
		[]any{3, 4},
	)
	got, err := ConstructOne[point](src, WithSilent())
	require.NoError(t, err)
	require.Equal(t, point{X: 1, Y: 2}, got)
}

func TestConstructMany_InterleavedGroupsEndAtFirstMismatch(t *testing.T) {
	// Non-contiguous identities are a documented precondition violation:
	// the engine does not re-sort, so the run 1,2,1 yields three objects.
	src := NewSliceSource([]string{"id", "values"},
		[]any{1, 1.0},
		[]any{2, 2.0},
		[]any{1, 3.0},
	)
	got, err := ConstructMany[testResult](src)
	require.NoError(t, err)
	require.Equal(t, []testResult{
		{ID: 1, Values: []float64{1.0}},
		{ID: 2, Values: []float64{2.0}},
		{ID: 1, Values: []float64{3.0}},
	}, got)
}

func TestConstructOne_NestedRecordMerge(t *testing.T) {
	src := NewSliceSource([]string{"id", "name", "testresults_id", "testresults_values"},
		[]any{1, "exp", 1, 3.14},
		[]any{1, "exp", 1, 3.15},
		[]any{1, "exp", 1, 3.16},
	)
	got, err := ConstructOne[experiment](src, WithSilent())
	require.NoError(t, err)
	require.Equal(t, experiment{
		ID:      1,
		Name:    "exp",
		Results: testResult{ID: 1, Values: []float64{3.14, 3.15, 3.16}},
	}, got)
}

func TestConstructOne_PointerTargetAndPointerField(t *testing.T) {
	type holder struct {
		ID int         `row:"id,identity"`
		R  *testResult `row:"r"`
	}
	src := NewSliceSource([]string{"id", "r_id", "r_values"},
		[]any{7, 1, 3.14},
		[]any{7, 1, 3.15},
	)
	got, err := ConstructOne[*holder](src, WithSilent())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, 7, got.ID)
	require.NotNil(t, got.R)
	require.Equal(t, testResult{ID: 1, Values: []float64{3.14, 3.15}}, *got.R)
}

func TestConstructOne_WholeRowMapping(t *testing.T) {
	src := NewSliceSource([]string{"a", "b"}, []any{1, 2})
	got, err := ConstructOne[map[string]any](src, WithSilent())
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": 1, "b": 2}, got)
}

func TestConstructOne_WholeRowSequence(t *testing.T) {
	src := NewSliceSource([]string{"a", "b", "c"}, []any{1.0, 2.0, 3.0})
	got, err := ConstructOne[[]float64](src, WithSilent())
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2, 3}, got)
}

func TestConstructMany_ScalarRoot(t *testing.T) {
	src := NewSliceSource([]string{"n"}, []any{10}, []any{20}, []any{30})
	got, err := ConstructMany[int64](src)
	require.NoError(t, err)
	require.Equal(t, []int64{10, 20, 30}, got)
}

func TestConstruct_AggregateConflicts(t *testing.T) {
	type inner struct {
		A int `row:"a"`
	}

	src := NewSliceSource([]string{"a"}, []any{1})
	_, err := ConstructOne[map[string]inner](src, WithSilent())
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	require.Contains(t, ce.Error(), "inner")

	src = NewSliceSource([]string{"a"}, []any{1})
	_, err = ConstructOne[[]inner](src, WithSilent())
	require.ErrorAs(t, err, &ce)

	// Nested sequence field with aggregate elements is rejected too.
	type bad struct {
		ID int     `row:"id,identity"`
		In []inner `row:"in"`
	}
	src = NewSliceSource([]string{"id", "in"}, []any{1, 2})
	_, err = ConstructOne[bad](src, WithSilent())
	require.ErrorAs(t, err, &ce)
}

func TestConstructOne_NestedMappingCollapsesToOneColumn(t *testing.T) {
	type withMap struct {
		ID   int            `row:"id,identity"`
		Tags map[string]any `row:"tags"`
	}
	src := NewSliceSource([]string{"id", "tags"}, []any{1, "blue"})
	got, err := ConstructOne[withMap](src, WithSilent())
	require.NoError(t, err)
	require.Equal(t, withMap{ID: 1, Tags: map[string]any{"tags": "blue"}}, got)
}

type frozenPoint struct {
	X int `row:"x"`
	Y int `row:"y"`
}

func (*frozenPoint) MakeRecord(vals []any) (any, error) {
	if len(vals) != 2 {
		return nil, errors.Errorf("want 2 field values, got %d", len(vals))
	}
	return frozenPoint{X: vals[0].(int), Y: vals[1].(int)}, nil
}

func TestConstructOne_ImmutableRecordMaker(t *testing.T) {
	src := NewSliceSource([]string{"x", "y"}, []any{3, 4})
	got, err := ConstructOne[frozenPoint](src, WithSilent())
	require.NoError(t, err)
	require.Equal(t, frozenPoint{X: 3, Y: 4}, got)
}

func TestConstructOne_HookErrorPassesThrough(t *testing.T) {
	src := NewSliceSource([]string{"id", "values"}, []any{"not-a-number", 1.0})
	_, err := ConstructOne[testResult](src, WithSilent())
	require.Error(t, err)
}
