package rowbind

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// TagReflector is the default reflection contract. It derives shapes from
// struct tags and caches one descriptor per type. Use the package-level
// lazy getter (DefaultReflector) or create your own in tests.
type TagReflector struct {
	shapeCache sync.Map // key: reflect.Type -> *Shape

	// Tag is the struct tag key, "row" when empty.
	Tag string
	// Separator joins a field name with its default aggregate prefix,
	// DefaultSeparator when empty.
	Separator string
	// Coerce, when set, is consulted before the scalar conversion: it may
	// replace the raw column value (e.g. to normalize driver-specific
	// numeric types). Returning false leaves the raw value untouched.
	Coerce func(raw any, t reflect.Type) (any, bool)
}

func NewTagReflector() *TagReflector { return &TagReflector{} }

// --- package-level lazy default reflector ---

var (
	defReflector     *TagReflector
	defReflectorOnce sync.Once
)

// DefaultReflector returns the shared tag-driven reflector used by the
// engines when no per-call override is given.
func DefaultReflector() *TagReflector {
	defReflectorOnce.Do(func() { defReflector = NewTagReflector() })
	return defReflector
}

func (r *TagReflector) tagKey() string {
	if r.Tag != "" {
		return r.Tag
	}
	return "row"
}

func (r *TagReflector) sep() string {
	if r.Separator != "" {
		return r.Separator
	}
	return DefaultSeparator
}

// ShapeOf reports the shape of t. Pointers are dereferenced first; the
// descriptor for the base type is built once and reused.
func (r *TagReflector) ShapeOf(t reflect.Type) (*Shape, error) {
	t = derefPtr(t)
	if v, ok := r.shapeCache.Load(t); ok {
		return v.(*Shape), nil
	}
	s, err := r.buildShape(t)
	if err != nil {
		return nil, err
	}
	r.shapeCache.Store(t, s)
	return s, nil
}

var (
	timeType        = reflect.TypeOf(time.Time{})
	uuidType        = reflect.TypeOf(uuid.UUID{})
	decimalType     = reflect.TypeOf(decimal.Decimal{})
	recordMakerType = reflect.TypeOf((*RecordMaker)(nil)).Elem()
)

// isScalarType mirrors the directly-mappable set: primitives, byte slices,
// time.Time, plus the uuid and decimal value types.
func isScalarType(t reflect.Type) bool {
	switch t {
	case timeType, uuidType, decimalType:
		return true
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String, reflect.Interface:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8 // []byte stays one column
	}
	return false
}

func (r *TagReflector) buildShape(t reflect.Type) (*Shape, error) {
	if isScalarType(t) {
		s := &Shape{Kind: Scalar, Type: t, Identity: -1}
		s.Convert = func(raw any, _ Params) (reflect.Value, error) {
			return r.convertScalar(t, raw)
		}
		return s, nil
	}

	switch t.Kind() {
	case reflect.Struct:
		return r.recordShape(t)
	case reflect.Map:
		key, err := r.ShapeOf(t.Key())
		if err != nil {
			return nil, err
		}
		elem, err := r.ShapeOf(t.Elem())
		if err != nil {
			return nil, err
		}
		return &Shape{Kind: Mapping, Type: t, Identity: -1, Key: key, Elem: elem}, nil
	case reflect.Slice, reflect.Array:
		elem, err := r.ShapeOf(t.Elem())
		if err != nil {
			return nil, err
		}
		return &Shape{Kind: Sequence, Type: t, Identity: -1, Elem: elem}, nil
	default:
		return nil, errors.Errorf("rowbind: type %s has no tabular shape", t)
	}
}

func (r *TagReflector) recordShape(t reflect.Type) (*Shape, error) {
	s := &Shape{Kind: Record, Type: t, Identity: -1}
	n := t.NumField()
	for i := 0; i < n; i++ {
		sf := t.Field(i)
		if sf.PkgPath != "" { // unexported
			continue
		}
		name, identity, prefix, omit := parseFieldTag(sf.Tag.Get(r.tagKey()))
		if omit {
			continue
		}
		if name == "" {
			name = toLowerAscii(sf.Name)
		}
		fs, err := r.ShapeOf(sf.Type)
		if err != nil {
			return nil, err
		}
		f := Field{Name: name, Shape: fs, Identity: identity, Index: i}
		if fs.aggregate() {
			if prefix == "" {
				prefix = defaultPrefix(name, r.sep())
			}
			f.Prefix = prefix
		}
		if identity {
			if fs.aggregate() {
				return nil, errors.Errorf("rowbind: identity field %s.%s must be scalar-shaped, is %s", t, sf.Name, fs.Kind)
			}
			if s.Identity >= 0 {
				return nil, errors.Errorf("rowbind: %s declares more than one identity field", t)
			}
			s.Identity = len(s.Fields)
		}
		s.Fields = append(s.Fields, f)
	}

	if t.Implements(recordMakerType) || reflect.PointerTo(t).Implements(recordMakerType) {
		s.Make = makeViaRecordMaker(t)
	}
	return s, nil
}

func makeViaRecordMaker(t reflect.Type) func([]reflect.Value, Params) (reflect.Value, error) {
	return func(vals []reflect.Value, _ Params) (reflect.Value, error) {
		args := make([]any, len(vals))
		for i, v := range vals {
			if v.IsValid() {
				args[i] = v.Interface()
			}
		}
		out, err := reflect.New(t).Interface().(RecordMaker).MakeRecord(args)
		if err != nil {
			return reflect.Value{}, err
		}
		ov := indirectValue(reflect.ValueOf(out))
		if !ov.IsValid() {
			return reflect.Zero(t), nil
		}
		if ov.Type() != t {
			return reflect.Value{}, errors.Errorf("rowbind: %s.MakeRecord returned %s", t, ov.Type())
		}
		// Re-home into an addressable value so group merges can still
		// append to sequence fields.
		pv := reflect.New(t)
		pv.Elem().Set(ov)
		return pv.Elem(), nil
	}
}

// parseFieldTag supports: "-", "col", "col,identity", ",identity",
// "col,prefix=p_", and any comma-separated combination thereof.
func parseFieldTag(tag string) (name string, identity bool, prefix string, omit bool) {
	if tag == "-" {
		return "", false, "", true
	}
	if tag == "" {
		return "", false, "", false
	}
	start := 0
	for i := 0; i <= len(tag); i++ {
		if i == len(tag) || tag[i] == ',' {
			part := tag[start:i]
			switch {
			case part == "identity":
				identity = true
			case strings.HasPrefix(part, "prefix="):
				prefix = part[len("prefix="):]
			case part != "" && name == "":
				name = part
			}
			start = i + 1
		}
	}
	return name, identity, prefix, false
}

// ---------------- Scalar conversion ----------------

// convertScalar turns a raw column value into t. The user coercion hook
// runs first; cast covers the builtin kinds; time, uuid and decimal get
// dedicated paths.
func (r *TagReflector) convertScalar(t reflect.Type, raw any) (reflect.Value, error) {
	if r.Coerce != nil {
		if v, ok := r.Coerce(raw, t); ok {
			raw = v
		}
	}
	if raw == nil {
		return reflect.Zero(t), nil
	}
	if rv := reflect.ValueOf(raw); rv.Type() == t {
		return rv, nil
	}

	switch t {
	case timeType:
		tv, err := cast.ToTimeE(raw)
		if err != nil {
			return reflect.Value{}, errors.Wrapf(err, "rowbind: column value %v as time", raw)
		}
		return reflect.ValueOf(tv), nil
	case uuidType:
		return parseUUID(raw)
	case decimalType:
		return parseDecimal(raw)
	}

	// Drivers commonly hand text back as []byte; cast wants strings.
	if b, ok := raw.([]byte); ok && t.Kind() != reflect.Slice {
		raw = string(b)
	}

	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Bool:
		v, err := cast.ToBoolE(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetBool(v)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := cast.ToInt64E(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := cast.ToUint64E(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetUint(v)
	case reflect.Float32, reflect.Float64:
		v, err := cast.ToFloat64E(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetFloat(v)
	case reflect.String:
		v, err := cast.ToStringE(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetString(v)
	case reflect.Interface:
		out.Set(reflect.ValueOf(raw))
	case reflect.Slice:
		switch v := raw.(type) {
		case []byte:
			out.SetBytes(append([]byte(nil), v...))
		case string:
			out.SetBytes([]byte(v))
		default:
			return reflect.Value{}, errors.Errorf("rowbind: cannot convert %T into %s", raw, t)
		}
	default:
		rv := reflect.ValueOf(raw)
		if !rv.Type().ConvertibleTo(t) {
			return reflect.Value{}, errors.Errorf("rowbind: cannot convert %T into %s", raw, t)
		}
		return rv.Convert(t), nil
	}
	return out, nil
}

func parseUUID(raw any) (reflect.Value, error) {
	switch v := raw.(type) {
	case string:
		u, err := uuid.Parse(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(u), nil
	case []byte:
		if len(v) == 16 {
			u, err := uuid.FromBytes(v)
			if err != nil {
				return reflect.Value{}, err
			}
			return reflect.ValueOf(u), nil
		}
		u, err := uuid.ParseBytes(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(u), nil
	default:
		return reflect.Value{}, errors.Errorf("rowbind: cannot convert %T into uuid.UUID", raw)
	}
}

func parseDecimal(raw any) (reflect.Value, error) {
	switch v := raw.(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(d), nil
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(d), nil
	case float64:
		return reflect.ValueOf(decimal.NewFromFloat(v)), nil
	case float32:
		return reflect.ValueOf(decimal.NewFromFloat32(v)), nil
	case int64:
		return reflect.ValueOf(decimal.NewFromInt(v)), nil
	case int:
		return reflect.ValueOf(decimal.NewFromInt(int64(v))), nil
	default:
		return reflect.Value{}, errors.Errorf("rowbind: cannot convert %T into decimal.Decimal", raw)
	}
}
