package rowbind

import (
	"reflect"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Deconstruct flattens objs into a row sequence: one identity-group worth
// of rows per object. Each object occupies as many rows as its longest
// sequence field (at any depth), at least one; column values reached only
// through record or mapping fields repeat on every row of their object.
// When an object carries sequence fields of differing lengths, rows beyond
// a shorter field's bound read that column as nil.
//
// The result is a pure view: finite, with a length known up front, and
// restartable. Deconstructing an empty slice yields a view of length zero.
// Record- and mapping-shaped types deconstruct; a mapping emits one column
// per key of the first object, keys in the order the contract reports them.
func Deconstruct[T any](objs []T, opts ...Option) (*RowView, error) {
	o := newOptions(opts)
	sh, err := shapeFor[T](o)
	if err != nil {
		return nil, err
	}
	if sh.Kind != Record && sh.Kind != Mapping {
		return nil, errors.Errorf("rowbind: cannot deconstruct %s-shaped type %s", sh.Kind, sh.Type)
	}

	v := &RowView{shape: sh}
	for _, obj := range objs {
		// Re-home each object in an addressable value so field access can
		// allocate through nil pointers.
		pv := reflect.New(sh.Type)
		if iv := indirectValue(reflect.ValueOf(obj)); iv.IsValid() {
			pv.Elem().Set(iv)
		}
		v.objs = append(v.objs, pv.Elem())
	}

	// Schema discovery runs over the first object only; record schemas can
	// be discovered from the type alone, mapping schemas need keys.
	var first reflect.Value
	if len(v.objs) > 0 {
		first = v.objs[0]
	}
	if len(v.objs) > 0 || sh.Kind == Record {
		if err := discover(sh, "", nil, first, &v.cols); err != nil {
			return nil, err
		}
	}
	v.names = make([]string, len(v.cols))
	for i := range v.cols {
		v.names[i] = v.cols[i].name
	}

	v.starts = make([]int, len(v.objs))
	for i, ov := range v.objs {
		v.starts[i] = v.total
		v.total += rowCount(sh, ov)
	}
	return v, nil
}

// DeconstructOne is Deconstruct for a single object.
func DeconstructOne[T any](obj T, opts ...Option) (*RowView, error) {
	return Deconstruct([]T{obj}, opts...)
}

// ---------------- Schema discovery ----------------

// pathStep is one hop of a column's access path. A nil field marks a
// whole-row mapping hop keyed by key.
type pathStep struct {
	shape *Shape
	field *Field
	key   reflect.Value
}

type colDef struct {
	name  string
	steps []pathStep
}

func discover(sh *Shape, prefix string, path []pathStep, first reflect.Value, cols *[]colDef) error {
	switch sh.Kind {
	case Record:
		for i := range sh.Fields {
			f := &sh.Fields[i]
			steps := appendPath(path, pathStep{shape: sh, field: f})
			switch f.Shape.Kind {
			case Scalar:
				*cols = append(*cols, colDef{name: prefix + f.Name, steps: steps})
			case Record:
				var sub reflect.Value
				if first.IsValid() {
					sub = sh.field(first, f)
				}
				if err := discover(f.Shape, prefix+f.Prefix, steps, sub, cols); err != nil {
					return err
				}
			case Sequence:
				if f.Shape.Elem.aggregate() {
					return conflict(f.Shape, f.Shape.Elem)
				}
				*cols = append(*cols, colDef{name: prefix + f.Name, steps: steps})
			case Mapping:
				if f.Shape.Elem.aggregate() {
					return conflict(f.Shape, f.Shape.Elem)
				}
				*cols = append(*cols, colDef{name: prefix + f.Name, steps: steps})
			}
		}
		return nil

	case Mapping:
		if sh.Key.aggregate() {
			return conflict(sh, sh.Key)
		}
		if sh.Elem.aggregate() {
			return conflict(sh, sh.Elem)
		}
		keys, _ := sh.entries(first)
		for _, k := range keys {
			*cols = append(*cols, colDef{
				name:  cast.ToString(k.Interface()),
				steps: appendPath(path, pathStep{shape: sh, key: k}),
			})
		}
		return nil
	}
	return errors.Errorf("rowbind: cannot deconstruct %s shape", sh.Kind)
}

func appendPath(path []pathStep, st pathStep) []pathStep {
	out := make([]pathStep, len(path), len(path)+1)
	copy(out, path)
	return append(out, st)
}

// rowCount is the number of physical rows one object occupies: the longest
// sequence field anywhere inside it, at least 1.
func rowCount(sh *Shape, v reflect.Value) int {
	n := 1
	if sh.Kind != Record {
		return n
	}
	for i := range sh.Fields {
		f := &sh.Fields[i]
		switch f.Shape.Kind {
		case Sequence:
			if l := f.Shape.seqLen(sh.field(v, f)); l > n {
				n = l
			}
		case Record:
			if l := rowCount(f.Shape, sh.field(v, f)); l > n {
				n = l
			}
		}
	}
	return n
}

// ---------------- Lazy row view ----------------

// RowView is the deconstruction result: a finite, restartable sequence of
// synthesized rows over the retained objects and the discovered schema. It
// implements RowSource and additionally offers random access.
type RowView struct {
	shape  *Shape
	cols   []colDef
	names  []string
	objs   []reflect.Value
	starts []int // first global row index per object
	total  int

	pos int // forward-iteration cursor
	cur Row
}

// Len is the total number of rows, the sum of per-object row counts.
func (v *RowView) Len() int { return v.total }

// Columns is the discovered flattened column schema.
func (v *RowView) Columns() []string { return v.names }

// At returns row i without disturbing forward iteration.
func (v *RowView) At(i int) Row {
	obj, sub := v.locate(i)
	return viewRow{view: v, obj: obj, sub: sub}
}

func (v *RowView) Next() bool {
	if v.pos >= v.total {
		v.cur = nil
		return false
	}
	v.cur = v.At(v.pos)
	v.pos++
	return true
}

func (v *RowView) Row() Row { return v.cur }

func (v *RowView) Err() error { return nil }

// Reset rewinds forward iteration; re-iterating yields an identical
// sequence since no mutable traversal state survives between row accesses.
func (v *RowView) Reset() {
	v.pos = 0
	v.cur = nil
}

func (v *RowView) locate(i int) (obj, sub int) {
	k := sort.Search(len(v.starts), func(j int) bool { return v.starts[j] > i }) - 1
	return k, i - v.starts[k]
}

func (v *RowView) lookup(obj reflect.Value, steps []pathStep, sub int) (any, error) {
	cur := obj
	for _, st := range steps {
		if st.field == nil {
			return ifaceOf(st.shape.entryValue(cur, st.key)), nil
		}
		f := st.field
		switch f.Shape.Kind {
		case Record:
			cur = st.shape.field(cur, f)
		case Scalar:
			return ifaceOf(st.shape.field(cur, f)), nil
		case Sequence:
			fv := st.shape.field(cur, f)
			if sub >= f.Shape.seqLen(fv) {
				return nil, nil
			}
			return ifaceOf(f.Shape.seqAt(fv, sub)), nil
		case Mapping:
			// Single-column collapse: the first reported entry's value.
			_, elems := f.Shape.entries(st.shape.field(cur, f))
			if len(elems) == 0 {
				return nil, nil
			}
			return ifaceOf(elems[0]), nil
		}
	}
	return ifaceOf(cur), nil
}

func ifaceOf(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

type viewRow struct {
	view *RowView
	obj  int
	sub  int
}

func (r viewRow) Columns() []string { return r.view.names }

func (r viewRow) Value(i int) (any, error) {
	if i < 0 || i >= len(r.view.cols) {
		return nil, errors.Errorf("rowbind: column index %d out of range [0,%d)", i, len(r.view.cols))
	}
	return r.view.lookup(r.view.objs[r.obj], r.view.cols[i].steps, r.sub)
}
