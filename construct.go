package rowbind

import (
	"reflect"

	"github.com/pkg/errors"
)

// ConstructOne builds exactly one logical object of type T from the front
// of src. It consumes the first row and then every following row whose
// identity column matches it (or just the first row when T declares no
// identity field). An empty source yields [ErrEmptySource]; rows left over
// afterwards are logged as a warning unless silenced with [WithSilent].
//
// Rows of one identity group must be contiguous in src. The source is read
// strictly once, forward; rowbind never re-sorts it.
//
// Example:
//
//	type TestResult struct {
//	    ID     int       `row:"id,identity"`
//	    Values []float64 `row:"values"`
//	}
//
//	src := rowbind.NewSliceSource([]string{"id", "values"},
//	    []any{1, 3.14}, []any{1, 3.15}, []any{1, 3.16})
//	tr, err := rowbind.ConstructOne[TestResult](src)
//	// tr == TestResult{ID: 1, Values: []float64{3.14, 3.15, 3.16}}
func ConstructOne[T any](src RowSource, opts ...Option) (T, error) {
	var zero T
	o := newOptions(opts)
	sh, err := shapeFor[T](o)
	if err != nil {
		return zero, err
	}
	g := &groupScanner{src: src}
	v, err := constructGroup(sh, g, o)
	if err != nil {
		return zero, err
	}
	r, err := g.next()
	if err != nil {
		return zero, err
	}
	if r != nil && !o.Silent {
		o.Logger.WithField("type", sh.Type.String()).
			Warn("rowbind: rows remain after constructing one object")
	}
	return valueAs[T](v)
}

// ConstructMany builds objects of type T until src is exhausted, one
// identity group (or one row, absent an identity field) per object. An
// empty source returns an empty result and no error, deliberately
// asymmetric with [ConstructOne].
func ConstructMany[T any](src RowSource, opts ...Option) ([]T, error) {
	o := newOptions(opts)
	sh, err := shapeFor[T](o)
	if err != nil {
		return nil, err
	}
	g := &groupScanner{src: src}
	var out []T
	for {
		r, err := g.next()
		if err != nil {
			return nil, err
		}
		if r == nil {
			return out, nil
		}
		g.unread(r)
		v, err := constructGroup(sh, g, o)
		if err != nil {
			return nil, err
		}
		tv, err := valueAs[T](v)
		if err != nil {
			return nil, err
		}
		out = append(out, tv)
	}
}

// ---------------- Group scanning ----------------

// groupScanner adds one row of lookahead to a forward-only source, so group
// boundaries can be detected without random access.
type groupScanner struct {
	src  RowSource
	pend Row
	done bool
}

func (g *groupScanner) next() (Row, error) {
	if g.pend != nil {
		r := g.pend
		g.pend = nil
		return r, nil
	}
	if g.done {
		return nil, nil
	}
	if g.src.Next() {
		return g.src.Row(), nil
	}
	g.done = true
	return nil, g.src.Err()
}

func (g *groupScanner) unread(r Row) { g.pend = r }

// constructGroup builds one object from the next identity group of g.
func constructGroup(sh *Shape, g *groupScanner, o *Options) (reflect.Value, error) {
	row, err := g.next()
	if err != nil {
		return reflect.Value{}, err
	}
	if row == nil {
		return reflect.Value{}, ErrEmptySource
	}
	obj, err := buildValue(sh, row, "", &cursor{}, o)
	if err != nil {
		return reflect.Value{}, err
	}

	idOff := sh.identityOffset()
	if idOff < 0 {
		return obj, nil
	}
	id, err := row.Value(idOff)
	if err != nil {
		return reflect.Value{}, err
	}
	for {
		next, err := g.next()
		if err != nil {
			return reflect.Value{}, err
		}
		if next == nil {
			return obj, nil
		}
		nid, err := next.Value(idOff)
		if err != nil {
			return reflect.Value{}, err
		}
		if !rawEqual(id, nid) {
			g.unread(next)
			return obj, nil
		}
		if err := mergeValue(sh, obj, next, &cursor{}, o); err != nil {
			return reflect.Value{}, err
		}
	}
}

// cursor counts consumed columns across one recursive traversal of a row.
// It advances once per scalar leaf so sibling fields read disjoint,
// in-order column ranges.
type cursor struct{ n int }

func (c *cursor) take() int {
	i := c.n
	c.n++
	return i
}

// ---------------- Single-row build ----------------

func buildValue(sh *Shape, row Row, prefix string, cur *cursor, o *Options) (reflect.Value, error) {
	switch sh.Kind {
	case Scalar:
		raw, err := row.Value(cur.take())
		if err != nil {
			return reflect.Value{}, err
		}
		return convertWith(sh, raw, o.Params)

	case Record:
		if sh.Make != nil {
			vals := make([]reflect.Value, len(sh.Fields))
			for i := range sh.Fields {
				v, err := buildField(&sh.Fields[i], row, prefix, cur, o)
				if err != nil {
					return reflect.Value{}, err
				}
				vals[i] = v
			}
			return sh.Make(vals, o.Params)
		}
		rec := sh.newValue()
		for i := range sh.Fields {
			f := &sh.Fields[i]
			v, err := buildField(f, row, prefix, cur, o)
			if err != nil {
				return reflect.Value{}, err
			}
			if err := sh.setField(rec, f, v); err != nil {
				return reflect.Value{}, err
			}
		}
		return rec, nil

	case Mapping:
		// Whole-row form: every column becomes one key/value pair.
		if sh.Key.aggregate() {
			return reflect.Value{}, conflict(sh, sh.Key)
		}
		if sh.Elem.aggregate() {
			return reflect.Value{}, conflict(sh, sh.Elem)
		}
		cols := row.Columns()
		keys := make([]reflect.Value, 0, len(cols))
		elems := make([]reflect.Value, 0, len(cols))
		for _, c := range cols {
			raw, err := row.Value(cur.take())
			if err != nil {
				return reflect.Value{}, err
			}
			kv, err := convertWith(sh.Key, c, o.Params)
			if err != nil {
				return reflect.Value{}, err
			}
			ev, err := convertWith(sh.Elem, raw, o.Params)
			if err != nil {
				return reflect.Value{}, err
			}
			keys = append(keys, kv)
			elems = append(elems, ev)
		}
		return sh.makeMapping(keys, elems, o.Params)

	case Sequence:
		// Whole-row form: every column becomes one element.
		if sh.Elem.aggregate() {
			return reflect.Value{}, conflict(sh, sh.Elem)
		}
		cols := row.Columns()
		elems := make([]reflect.Value, 0, len(cols))
		for range cols {
			raw, err := row.Value(cur.take())
			if err != nil {
				return reflect.Value{}, err
			}
			ev, err := convertWith(sh.Elem, raw, o.Params)
			if err != nil {
				return reflect.Value{}, err
			}
			elems = append(elems, ev)
		}
		return sh.makeSequence(elems, o.Params)
	}
	return reflect.Value{}, errors.Errorf("rowbind: unknown shape kind %d", sh.Kind)
}

func buildField(f *Field, row Row, prefix string, cur *cursor, o *Options) (reflect.Value, error) {
	switch f.Shape.Kind {
	case Scalar:
		raw, err := row.Value(cur.take())
		if err != nil {
			return reflect.Value{}, err
		}
		return convertWith(f.Shape, raw, o.Params)

	case Record:
		return buildValue(f.Shape, row, prefix+f.Prefix, cur, o)

	case Sequence:
		// One column now; later rows of the group append the rest.
		if f.Shape.Elem.aggregate() {
			return reflect.Value{}, conflict(f.Shape, f.Shape.Elem)
		}
		raw, err := row.Value(cur.take())
		if err != nil {
			return reflect.Value{}, err
		}
		ev, err := convertWith(f.Shape.Elem, raw, o.Params)
		if err != nil {
			return reflect.Value{}, err
		}
		return f.Shape.makeSequence([]reflect.Value{ev}, o.Params)

	case Mapping:
		// Nested mappings collapse to a single column keyed by the
		// flattened column name.
		if f.Shape.Key.aggregate() {
			return reflect.Value{}, conflict(f.Shape, f.Shape.Key)
		}
		if f.Shape.Elem.aggregate() {
			return reflect.Value{}, conflict(f.Shape, f.Shape.Elem)
		}
		idx := cur.take()
		raw, err := row.Value(idx)
		if err != nil {
			return reflect.Value{}, err
		}
		var name string
		if cols := row.Columns(); idx < len(cols) {
			name = cols[idx]
		}
		kv, err := convertWith(f.Shape.Key, name, o.Params)
		if err != nil {
			return reflect.Value{}, err
		}
		ev, err := convertWith(f.Shape.Elem, raw, o.Params)
		if err != nil {
			return reflect.Value{}, err
		}
		return f.Shape.makeMapping([]reflect.Value{kv}, []reflect.Value{ev}, o.Params)
	}
	return reflect.Value{}, errors.Errorf("rowbind: unknown shape kind %d", f.Shape.Kind)
}

// mergeValue folds one additional group row into an existing object: every
// sequence field, at any depth, gains one element; scalar and mapping
// fields keep the value fixed by the group's first row.
func mergeValue(sh *Shape, rec reflect.Value, row Row, cur *cursor, o *Options) error {
	if sh.Kind != Record {
		return nil
	}
	for i := range sh.Fields {
		f := &sh.Fields[i]
		switch f.Shape.Kind {
		case Scalar, Mapping:
			cur.take()
		case Sequence:
			raw, err := row.Value(cur.take())
			if err != nil {
				return err
			}
			ev, err := convertWith(f.Shape.Elem, raw, o.Params)
			if err != nil {
				return err
			}
			fv := sh.field(rec, f)
			if err := sh.setField(rec, f, f.Shape.seqAppend(fv, ev)); err != nil {
				return err
			}
		case Record:
			fv := sh.field(rec, f)
			if err := mergeValue(f.Shape, fv, row, cur, o); err != nil {
				return err
			}
			// Custom accessors may hand out copies; write the merged
			// value back through the hook.
			if sh.Get != nil || sh.Set != nil {
				if err := sh.setField(rec, f, fv); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ---------------- Shared helpers ----------------

func shapeFor[T any](o *Options) (*Shape, error) {
	return o.Reflector.ShapeOf(reflect.TypeOf((*T)(nil)).Elem())
}

func valueAs[T any](v reflect.Value) (T, error) {
	var zero T
	rt := reflect.TypeOf((*T)(nil)).Elem()
	if rt.Kind() == reflect.Ptr && v.IsValid() && v.Type() == rt.Elem() {
		pv := reflect.New(rt.Elem())
		pv.Elem().Set(v)
		v = pv
	}
	out, ok := v.Interface().(T)
	if !ok {
		return zero, errors.Errorf("rowbind: constructed %s, want %s", v.Type(), rt)
	}
	return out, nil
}

// convertWith applies the scalar construction hook, falling back to direct
// reflect assignment for hook-less custom shapes.
func convertWith(s *Shape, raw any, p Params) (reflect.Value, error) {
	if s.Convert != nil {
		return s.Convert(raw, p)
	}
	if raw == nil {
		return reflect.Zero(s.Type), nil
	}
	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(s.Type) {
		return rv, nil
	}
	if rv.Type().ConvertibleTo(s.Type) {
		return rv.Convert(s.Type), nil
	}
	return reflect.Value{}, errors.Errorf("rowbind: no scalar conversion from %T to %s", raw, s.Type)
}
