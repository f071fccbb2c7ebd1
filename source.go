package rowbind

import (
	"database/sql"

	"github.com/pkg/errors"
)

// SliceSource is an in-memory RowSource over a column list and cell rows.
// Handy for tests, fixtures and for materialized deconstruction output.
type SliceSource struct {
	cols  []string
	cells [][]any
	i     int
}

// NewSliceSource builds a source over cols and one cell slice per row.
func NewSliceSource(cols []string, rows ...[]any) *SliceSource {
	return &SliceSource{cols: cols, cells: rows}
}

func (s *SliceSource) Next() bool {
	if s.i >= len(s.cells) {
		return false
	}
	s.i++
	return true
}

func (s *SliceSource) Row() Row {
	return sliceRow{cols: s.cols, cells: s.cells[s.i-1]}
}

func (s *SliceSource) Err() error { return nil }

// Reset rewinds the source for another pass.
func (s *SliceSource) Reset() { s.i = 0 }

type sliceRow struct {
	cols  []string
	cells []any
}

func (r sliceRow) Columns() []string { return r.cols }

func (r sliceRow) Value(i int) (any, error) {
	if i < 0 || i >= len(r.cells) {
		return nil, errors.Errorf("rowbind: column index %d out of range [0,%d)", i, len(r.cells))
	}
	return r.cells[i], nil
}

// Materialize drains src into its column list and cell rows, suitable for
// feeding a SliceSource or any tabular sink.
func Materialize(src RowSource) ([]string, [][]any, error) {
	var (
		cols  []string
		cells [][]any
	)
	for src.Next() {
		row := src.Row()
		if cols == nil {
			cols = append([]string(nil), row.Columns()...)
		}
		vals := make([]any, len(cols))
		for i := range vals {
			v, err := row.Value(i)
			if err != nil {
				return nil, nil, err
			}
			vals[i] = v
		}
		cells = append(cells, vals)
	}
	return cols, cells, src.Err()
}

// SQLSource adapts *sql.Rows so any database/sql driver feeds the
// constructor. Column names are unquoted and lower-cased; each row's values
// are scanned once into untyped cells and converted by the scalar hooks.
//
// The caller keeps ownership of rows and closes it after the engine call.
type SQLSource struct {
	rows *sql.Rows
	cols []string
	cur  Row
	err  error
}

// NewSQLSource wraps rows. It reads the column set immediately.
func NewSQLSource(rows *sql.Rows) (*SQLSource, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "rowbind: reading result columns")
	}
	if len(cols) == 0 {
		return nil, errors.New("rowbind: result set has zero columns")
	}
	for i := range cols {
		cols[i] = normalizeColAscii(cols[i])
	}
	return &SQLSource{rows: rows, cols: cols}, nil
}

func (s *SQLSource) Next() bool {
	if s.err != nil {
		return false
	}
	if !s.rows.Next() {
		s.err = s.rows.Err()
		s.cur = nil
		return false
	}
	cells := make([]any, len(s.cols))
	dests := make([]any, len(s.cols))
	for i := range cells {
		dests[i] = &cells[i]
	}
	if err := s.rows.Scan(dests...); err != nil {
		s.err = err
		s.cur = nil
		return false
	}
	s.cur = sliceRow{cols: s.cols, cells: cells}
	return true
}

func (s *SQLSource) Row() Row { return s.cur }

func (s *SQLSource) Err() error { return s.err }
