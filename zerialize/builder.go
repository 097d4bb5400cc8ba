package zerialize

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Serializable is implemented by types that write themselves through a
// Writer. Builders, *Value, and the container adapters all implement it;
// user types implement it to take part in Emit dispatch.
type Serializable interface {
	Serialize(w Writer) error
}

// SerializerFunc adapts a function to Serializable.
type SerializerFunc func(w Writer) error

func (f SerializerFunc) Serialize(w Writer) error { return f(w) }

// ============================================================
// Array builder
// ============================================================

// ArrayBuilder is a replayable description of an array. It holds its
// arguments and emits them on every Serialize call; it never builds a
// Value tree.
type ArrayBuilder struct {
	args []any
}

// Vec describes an array of heterogeneous elements. Elements may be any
// value Emit accepts, including other builders.
func Vec(args ...any) ArrayBuilder {
	return ArrayBuilder{args: args}
}

// Len returns the number of elements.
func (b ArrayBuilder) Len() int { return len(b.args) }

func (b ArrayBuilder) Serialize(w Writer) error {
	if err := w.BeginArray(len(b.args)); err != nil {
		return err
	}
	for _, a := range b.args {
		if err := Emit(w, a); err != nil {
			return err
		}
	}
	return w.EndArray()
}

// ============================================================
// Map builder
// ============================================================

// Keys is an ordered list of unique map keys. Declare it once, typically
// as a package-level variable with MustKeys so a duplicate fails at
// program start, and pair it with values via Map.
type Keys struct {
	names []string
}

// NewKeys validates names for uniqueness.
func NewKeys(names ...string) (Keys, error) {
	seen := make(map[string]struct{}, len(names))
	for i, n := range names {
		if _, dup := seen[n]; dup {
			return Keys{}, &EncodeError{Op: "zerialize: keys", Path: IndexSegment(i), Msg: fmt.Sprintf("%q", n), Err: ErrDuplicateKey}
		}
		seen[n] = struct{}{}
	}
	return Keys{names: append([]string(nil), names...)}, nil
}

// MustKeys is like NewKeys but panics on a duplicate.
func MustKeys(names ...string) Keys {
	k, err := NewKeys(names...)
	if err != nil {
		panic(err)
	}
	return k
}

// Names returns the keys in order.
func (k Keys) Names() []string { return append([]string(nil), k.names...) }

// Map pairs the keys positionally with values. The number of values must
// equal the number of keys; a mismatch is reported when the builder is
// first serialized.
func (k Keys) Map(values ...any) MapBuilder {
	return MapBuilder{keys: k.names, values: values}
}

// MapBuilder is a replayable description of a map with a fixed key list.
type MapBuilder struct {
	keys   []string
	values []any
}

func (b MapBuilder) Serialize(w Writer) error {
	if len(b.keys) != len(b.values) {
		return Encodef("zerialize: map builder", ErrNesting, "%d keys [%s] but %d values",
			len(b.keys), strings.Join(b.keys, ", "), len(b.values))
	}
	if err := w.BeginMap(len(b.keys)); err != nil {
		return err
	}
	for i, k := range b.keys {
		if err := w.Key(k); err != nil {
			return err
		}
		if err := Emit(w, b.values[i]); err != nil {
			return err
		}
	}
	return w.EndMap()
}

// Obj describes a map from alternating keys and values:
// Obj("name", "James Bond", "age", 37). Keys must be strings; duplicates
// are rejected by the writer.
func Obj(kv ...any) Serializable {
	return SerializerFunc(func(w Writer) error {
		if len(kv)%2 != 0 {
			return Encodef("zerialize: obj", ErrNesting, "odd argument count %d", len(kv))
		}
		if err := w.BeginMap(len(kv) / 2); err != nil {
			return err
		}
		for i := 0; i < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				return Encodef("zerialize: obj", ErrUnsupportedValue, "key %d is %T, not string", i/2, kv[i])
			}
			if err := w.Key(key); err != nil {
				return err
			}
			if err := Emit(w, kv[i+1]); err != nil {
				return err
			}
		}
		return w.EndMap()
	})
}

// ============================================================
// Container adapters
// ============================================================

// Slice adapts a typed slice to an array.
type Slice[T any] []T

func (s Slice[T]) Serialize(w Writer) error {
	if err := w.BeginArray(len(s)); err != nil {
		return err
	}
	for _, e := range s {
		if err := Emit(w, e); err != nil {
			return err
		}
	}
	return w.EndArray()
}

// KV is one entry of an OrderedMap.
type KV[T any] struct {
	Key   string
	Value T
}

// OrderedMap adapts an ordered list of typed entries to a map.
type OrderedMap[T any] []KV[T]

func (m OrderedMap[T]) Serialize(w Writer) error {
	if err := w.BeginMap(len(m)); err != nil {
		return err
	}
	for _, e := range m {
		if err := w.Key(e.Key); err != nil {
			return err
		}
		if err := Emit(w, e.Value); err != nil {
			return err
		}
	}
	return w.EndMap()
}

// ============================================================
// Dispatch
// ============================================================

// Emit writes v to w. Supported: nil, Serializable, View, bool, every
// integer and float width, string, []byte, and through reflection any
// slice or array, map with string keys (sorted for determinism), pointer,
// or struct (exported fields in declaration order, renamed or skipped
// with a `zerialize:"name"` / `zerialize:"-"` tag).
func Emit(w Writer, v any) error {
	switch x := v.(type) {
	case nil:
		return w.Null()
	case *Value:
		return x.Serialize(w)
	case Serializable:
		if isNil(reflect.ValueOf(x)) {
			return w.Null()
		}
		return x.Serialize(w)
	case View:
		return WriteView(x, w)
	case bool:
		return w.Bool(x)
	case int:
		return w.Int64(int64(x))
	case int8:
		return w.Int64(int64(x))
	case int16:
		return w.Int64(int64(x))
	case int32:
		return w.Int64(int64(x))
	case int64:
		return w.Int64(x)
	case uint:
		return w.Uint64(uint64(x))
	case uint8:
		return w.Uint64(uint64(x))
	case uint16:
		return w.Uint64(uint64(x))
	case uint32:
		return w.Uint64(uint64(x))
	case uint64:
		return w.Uint64(x)
	case float32:
		return w.Float64(float64(x))
	case float64:
		return w.Float64(x)
	case string:
		return w.String(x)
	case []byte:
		return w.Binary(x)
	case []any:
		return Slice[any](x).Serialize(w)
	case map[string]any:
		return emitMap(w, reflect.ValueOf(x))
	}
	return emitReflect(w, reflect.ValueOf(v))
}

var serializableType = reflect.TypeOf((*Serializable)(nil)).Elem()

// isNil reports whether rv is a nil pointer, interface, func, map or slice.
// Nil values of every such kind are written as null.
func isNil(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

func emitReflect(w Writer, rv reflect.Value) error {
	if !rv.IsValid() || isNil(rv) {
		return w.Null()
	}
	if rv.Type().Implements(serializableType) {
		return rv.Interface().(Serializable).Serialize(w)
	}
	switch rv.Kind() {
	case reflect.Bool:
		return w.Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return w.Int64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return w.Uint64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return w.Float64(rv.Float())
	case reflect.String:
		return w.String(rv.String())
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return w.Null()
		}
		return Emit(w, rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return w.Null()
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return w.Binary(rv.Bytes())
		}
		return emitList(w, rv)
	case reflect.Array:
		return emitList(w, rv)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Encodef("zerialize: emit", ErrUnsupportedValue, "map key type %s", rv.Type().Key())
		}
		if rv.IsNil() {
			return w.Null()
		}
		return emitMap(w, rv)
	case reflect.Struct:
		return emitStruct(w, rv)
	}
	return Encodef("zerialize: emit", ErrUnsupportedValue, "%s", rv.Type())
}

func emitList(w Writer, rv reflect.Value) error {
	n := rv.Len()
	if err := w.BeginArray(n); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := emitReflect(w, rv.Index(i)); err != nil {
			return err
		}
	}
	return w.EndArray()
}

func emitMap(w Writer, rv reflect.Value) error {
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	if err := w.BeginMap(len(keys)); err != nil {
		return err
	}
	for _, k := range keys {
		if err := w.Key(k.String()); err != nil {
			return err
		}
		if err := emitReflect(w, rv.MapIndex(k)); err != nil {
			return err
		}
	}
	return w.EndMap()
}

func emitStruct(w Writer, rv reflect.Value) error {
	t := rv.Type()
	type field struct {
		name  string
		index int
	}
	fields := make([]field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("zerialize"); ok {
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		fields = append(fields, field{name: name, index: i})
	}
	if err := w.BeginMap(len(fields)); err != nil {
		return err
	}
	for _, f := range fields {
		if err := w.Key(f.name); err != nil {
			return err
		}
		if err := emitReflect(w, rv.Field(f.index)); err != nil {
			return err
		}
	}
	return w.EndMap()
}
