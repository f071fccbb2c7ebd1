package rowbind

import (
	"reflect"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Kind classifies how a type occupies tabular columns.
type Kind uint8

const (
	// Scalar is a leaf value read from exactly one column.
	Scalar Kind = iota
	// Record has ordered named fields, flattened depth-first.
	Record
	// Mapping turns a whole row into key/value pairs.
	Mapping
	// Sequence collects one element per row of an identity group.
	Sequence
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Record:
		return "record"
	case Mapping:
		return "mapping"
	case Sequence:
		return "sequence"
	}
	return "unknown"
}

// Field describes one record field in declared order.
type Field struct {
	Name     string
	Shape    *Shape
	Identity bool
	// Prefix namespaces the flattened columns of an aggregate-shaped field.
	// Empty for scalar fields.
	Prefix string
	// Index is the struct field index used by the reflect-based defaults.
	Index int
}

// Shape is the engine-facing description of a type, produced by a
// Reflector. Descriptors are immutable once built; the engines only read
// them. All hooks are optional: a nil hook selects the reflect-based
// default, which covers plain structs, maps and slices.
type Shape struct {
	Kind Kind
	Type reflect.Type

	// Record shape. Identity indexes Fields, -1 when absent.
	Fields   []Field
	Identity int

	// Make builds the immutable record form from all field values at once.
	// When nil the record is built mutably: New, then Set per field.
	Make func(vals []reflect.Value, p Params) (reflect.Value, error)
	New  func() reflect.Value
	Get  func(rec reflect.Value, f *Field) reflect.Value
	Set  func(rec reflect.Value, f *Field, v reflect.Value) error

	// Mapping and Sequence shapes.
	Key          *Shape
	Elem         *Shape
	MakeMapping  func(keys, elems []reflect.Value, p Params) (reflect.Value, error)
	MakeSequence func(elems []reflect.Value, p Params) (reflect.Value, error)
	// Entries reports key/value pairs in encounter order. The default sorts
	// map keys by their string form so discovered schemas are deterministic.
	Entries func(v reflect.Value) (keys, elems []reflect.Value)
	Len     func(v reflect.Value) int
	At      func(v reflect.Value, i int) reflect.Value
	Append  func(seq, elem reflect.Value) reflect.Value

	// Convert is the scalar construction hook: raw column value in, typed
	// value out.
	Convert func(raw any, p Params) (reflect.Value, error)
}

// Reflector is the reflection contract consumed by both engines: a pure
// shape report per type, resolved once and cacheable.
type Reflector interface {
	ShapeOf(t reflect.Type) (*Shape, error)
}

// RecordMaker opts a struct type into the immutable record form: the engine
// collects every field value in declared order and hands them over in one
// call instead of populating a zero value field by field.
type RecordMaker interface {
	MakeRecord(vals []any) (any, error)
}

func (s *Shape) aggregate() bool { return s.Kind != Scalar }

// width is the number of columns one row contributes to s. Nested mapping
// and sequence fields collapse to a single column; whole-row shapes are
// open-ended and never appear nested.
func (s *Shape) width() int {
	if s.Kind != Record {
		return 1
	}
	n := 0
	for i := range s.Fields {
		if f := &s.Fields[i]; f.Shape.Kind == Record {
			n += f.Shape.width()
		} else {
			n++
		}
	}
	return n
}

// identityOffset is the flat column index of the identity leaf, or -1.
func (s *Shape) identityOffset() int {
	if s.Kind != Record || s.Identity < 0 {
		return -1
	}
	off := 0
	for i := 0; i < s.Identity; i++ {
		if f := &s.Fields[i]; f.Shape.Kind == Record {
			off += f.Shape.width()
		} else {
			off++
		}
	}
	return off
}

// ---------------- Hook dispatch with reflect defaults ----------------

func (s *Shape) newValue() reflect.Value {
	if s.New != nil {
		return s.New()
	}
	return reflect.New(s.Type).Elem()
}

// field returns the (dereferenced) value of f, allocating nil pointers on
// the way when the record is settable.
func (s *Shape) field(rec reflect.Value, f *Field) reflect.Value {
	if s.Get != nil {
		return s.Get(rec, f)
	}
	if !rec.IsValid() {
		return reflect.Zero(f.Shape.Type)
	}
	fv := rec.Field(f.Index)
	for fv.Kind() == reflect.Ptr {
		if fv.IsNil() {
			if !fv.CanSet() {
				return reflect.Zero(f.Shape.Type)
			}
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		fv = fv.Elem()
	}
	return fv
}

func (s *Shape) setField(rec reflect.Value, f *Field, v reflect.Value) error {
	if s.Set != nil {
		return s.Set(rec, f, v)
	}
	fv := rec.Field(f.Index)
	for fv.Kind() == reflect.Ptr && v.Type() != fv.Type() {
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}
		fv = fv.Elem()
	}
	if !v.Type().AssignableTo(fv.Type()) {
		if !v.Type().ConvertibleTo(fv.Type()) {
			return errors.Errorf("rowbind: cannot assign %s to field %q of %s", v.Type(), f.Name, s.Type)
		}
		v = v.Convert(fv.Type())
	}
	fv.Set(v)
	return nil
}

func (s *Shape) seqLen(v reflect.Value) int {
	if s.Len != nil {
		return s.Len(v)
	}
	v = indirectValue(v)
	if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return 0
	}
	return v.Len()
}

func (s *Shape) seqAt(v reflect.Value, i int) reflect.Value {
	if s.At != nil {
		return s.At(v, i)
	}
	return indirectValue(v).Index(i)
}

func (s *Shape) seqAppend(seq, elem reflect.Value) reflect.Value {
	if s.Append != nil {
		return s.Append(seq, elem)
	}
	if !seq.IsValid() {
		seq = reflect.MakeSlice(s.Type, 0, 1)
	}
	return reflect.Append(seq, elem)
}

func (s *Shape) makeSequence(elems []reflect.Value, p Params) (reflect.Value, error) {
	if s.MakeSequence != nil {
		return s.MakeSequence(elems, p)
	}
	out := reflect.MakeSlice(s.Type, 0, len(elems))
	return reflect.Append(out, elems...), nil
}

func (s *Shape) makeMapping(keys, elems []reflect.Value, p Params) (reflect.Value, error) {
	if s.MakeMapping != nil {
		return s.MakeMapping(keys, elems, p)
	}
	out := reflect.MakeMapWithSize(s.Type, len(keys))
	for i := range keys {
		out.SetMapIndex(keys[i], elems[i])
	}
	return out, nil
}

func (s *Shape) entries(v reflect.Value) (keys, elems []reflect.Value) {
	if s.Entries != nil {
		return s.Entries(v)
	}
	v = indirectValue(v)
	if !v.IsValid() || v.Kind() != reflect.Map || v.IsNil() {
		return nil, nil
	}
	keys = v.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return cast.ToString(keys[i].Interface()) < cast.ToString(keys[j].Interface())
	})
	elems = make([]reflect.Value, len(keys))
	for i, k := range keys {
		elems[i] = v.MapIndex(k)
	}
	return keys, elems
}

// entryValue fetches the value stored under key, going through the Entries
// hook when one is set.
func (s *Shape) entryValue(v reflect.Value, key reflect.Value) reflect.Value {
	if s.Entries == nil {
		v = indirectValue(v)
		if !v.IsValid() || v.Kind() != reflect.Map {
			return reflect.Value{}
		}
		return v.MapIndex(key)
	}
	keys, elems := s.Entries(v)
	for i, k := range keys {
		if rawEqual(k.Interface(), key.Interface()) {
			return elems[i]
		}
	}
	return reflect.Value{}
}

// ---------------- reflect helpers ----------------

func derefPtr(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func indirectValue(v reflect.Value) reflect.Value {
	for v.IsValid() && v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func rawEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta == tb && ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
