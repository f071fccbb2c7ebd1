package rowbind

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip_SingleObject(t *testing.T) {
	want := experiment{
		ID:      1,
		Name:    "exp",
		Results: testResult{ID: 1, Values: []float64{3.14, 3.15, 3.16}},
	}
	view, err := DeconstructOne(want)
	require.NoError(t, err)

	got, err := ConstructOne[experiment](view, WithSilent())
	require.NoError(t, err)
	require.Equal(t, want, got, "round trip mismatch:\n%s", spew.Sdump(got))
}

func TestRoundTrip_GroupSymmetry(t *testing.T) {
	want := []testResult{
		{ID: 1, Values: []float64{3.14, 3.15, 3.16}},
		{ID: 2, Values: []float64{40.1, 0.01, 2.34}},
	}
	view, err := Deconstruct(want)
	require.NoError(t, err)
	require.Equal(t, 6, view.Len())

	got, err := ConstructMany[testResult](view)
	require.NoError(t, err)
	require.Equal(t, want, got, "group symmetry mismatch:\n%s", spew.Sdump(got))
}

func TestRoundTrip_ThroughMaterializedTable(t *testing.T) {
	want := []testResult{
		{ID: 1, Values: []float64{1, 2}},
		{ID: 2, Values: []float64{3}},
	}
	view, err := Deconstruct(want)
	require.NoError(t, err)

	cols, cells, err := Materialize(view)
	require.NoError(t, err)

	got, err := ConstructMany[testResult](NewSliceSource(cols, cells...))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRoundTrip_MappingObject(t *testing.T) {
	want := map[string]int{"a": 1, "b": 2}
	view, err := DeconstructOne(want)
	require.NoError(t, err)

	got, err := ConstructOne[map[string]int](view, WithSilent())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestRoundTrip_UUIDAndDecimalScalars(t *testing.T) {
	type item struct {
		ID    uuid.UUID       `row:"id,identity"`
		Price decimal.Decimal `row:"price"`
		Qty   []int           `row:"qty"`
	}
	want := []item{
		{ID: uuid.New(), Price: decimal.RequireFromString("19.99"), Qty: []int{1, 2}},
		{ID: uuid.New(), Price: decimal.RequireFromString("0.05"), Qty: []int{7}},
	}
	view, err := Deconstruct(want)
	require.NoError(t, err)
	require.Equal(t, 3, view.Len())

	got, err := ConstructMany[item](view)
	require.NoError(t, err)
	require.Equal(t, want, got, "uuid/decimal round trip mismatch:\n%s", spew.Sdump(got))
}
