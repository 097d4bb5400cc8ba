package zerialize

// Value is a materialized, owning value of the data model. It implements
// both View, so it can be inspected and translated like any decoded buffer,
// and Serializable, so it can be written to any format.
//
// A nil *Value reads as Null.
type Value struct {
	kind    Kind
	b       bool
	num     Number
	s       string
	bin     []byte
	items   []*Value
	entries []Entry
	index   map[string]int
}

// Entry is one key/value pair of a map.
type Entry struct {
	Key   string
	Value *Value
}

// ============================================================
// Constructors
// ============================================================

// Null returns a null value.
func Null() *Value { return &Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) *Value { return &Value{kind: KindBool, b: b} }

// Int returns a signed integer value.
func Int(i int64) *Value { return &Value{kind: KindInt64, num: SignedNumber(i)} }

// Uint returns an unsigned integer value.
func Uint(u uint64) *Value { return &Value{kind: KindUint64, num: UnsignedNumber(u)} }

// Float returns a double value.
func Float(f float64) *Value { return &Value{kind: KindFloat64, num: FloatNumber(f)} }

// Str returns a string value.
func Str(s string) *Value { return &Value{kind: KindString, s: s} }

// Bytes returns a binary value. The slice is retained, not copied.
func Bytes(b []byte) *Value {
	if b == nil {
		b = []byte{}
	}
	return &Value{kind: KindBinary, bin: b}
}

// Array returns an array of the given elements.
func Array(items ...*Value) *Value {
	if items == nil {
		items = []*Value{}
	}
	return &Value{kind: KindArray, items: items}
}

// NewMap returns a map with the given entries in order. A repeated key is
// an encode error wrapping ErrDuplicateKey.
func NewMap(entries ...Entry) (*Value, error) {
	m := &Value{kind: KindMap, entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		if err := m.Insert(e.Key, e.Value); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustMap is like NewMap but panics on a duplicate key.
func MustMap(entries ...Entry) *Value {
	m, err := NewMap(entries...)
	if err != nil {
		panic(err)
	}
	return m
}

// Field is shorthand for an Entry.
func Field(key string, v *Value) Entry {
	return Entry{Key: key, Value: v}
}

// Insert appends key to the map. It never overwrites: a present key fails
// with ErrDuplicateKey.
func (v *Value) Insert(key string, val *Value) error {
	if v == nil || v.kind != KindMap {
		return Encodef("zerialize: insert", ErrTypeMismatch, "insert into %s", v.Kind())
	}
	if v.index == nil {
		v.index = make(map[string]int, len(v.entries)+1)
		for i, e := range v.entries {
			v.index[e.Key] = i
		}
	}
	if _, dup := v.index[key]; dup {
		return &EncodeError{Op: "zerialize: insert", Path: KeySegment(key), Err: ErrDuplicateKey}
	}
	if val == nil {
		val = Null()
	}
	v.index[key] = len(v.entries)
	v.entries = append(v.entries, Entry{Key: key, Value: val})
	return nil
}

// Items returns the elements of an array value, nil otherwise.
func (v *Value) Items() []*Value {
	if v == nil || v.kind != KindArray {
		return nil
	}
	return v.items
}

// Fields returns the entries of a map value in insertion order, nil otherwise.
func (v *Value) Fields() []Entry {
	if v == nil || v.kind != KindMap {
		return nil
	}
	return v.entries
}

// Get returns the value under key, or nil if v is not a map or key is absent.
func (v *Value) Get(key string) *Value {
	if v == nil || v.kind != KindMap {
		return nil
	}
	if i, ok := v.lookup(key); ok {
		return v.entries[i].Value
	}
	return nil
}

func (v *Value) lookup(key string) (int, bool) {
	if v.index != nil {
		i, ok := v.index[key]
		return i, ok
	}
	for i, e := range v.entries {
		if e.Key == key {
			return i, true
		}
	}
	return 0, false
}

// ============================================================
// View implementation
// ============================================================

// Kind returns the variant held by v.
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

func (v *Value) AsBool() (bool, error) {
	if v.Kind() != KindBool {
		return false, Mismatch("zerialize: as_bool", "bool", v.Kind())
	}
	return v.b, nil
}

func (v *Value) number(op string) (Number, error) {
	switch v.Kind() {
	case KindInt64, KindUint64, KindFloat64:
		return v.num, nil
	}
	return Number{}, Mismatch(op, "number", v.Kind())
}

func (v *Value) AsInt64() (int64, error) {
	n, err := v.number("zerialize: as_int64")
	if err != nil {
		return 0, err
	}
	return n.Int64("zerialize: as_int64")
}

func (v *Value) AsUint64() (uint64, error) {
	n, err := v.number("zerialize: as_uint64")
	if err != nil {
		return 0, err
	}
	return n.Uint64("zerialize: as_uint64")
}

func (v *Value) AsFloat64() (float64, error) {
	n, err := v.number("zerialize: as_float64")
	if err != nil {
		return 0, err
	}
	return n.Float64("zerialize: as_float64")
}

func (v *Value) AsString() (string, error) {
	if v.Kind() != KindString {
		return "", Mismatch("zerialize: as_string", "string", v.Kind())
	}
	return v.s, nil
}

func (v *Value) AsBinary() ([]byte, error) {
	if v.Kind() != KindBinary {
		return nil, Mismatch("zerialize: as_binary", "binary", v.Kind())
	}
	return v.bin, nil
}

func (v *Value) Len() (int, error) {
	switch v.Kind() {
	case KindArray:
		return len(v.items), nil
	case KindMap:
		return len(v.entries), nil
	}
	return 0, Mismatch("zerialize: len", "array or map", v.Kind())
}

func (v *Value) Index(i int) (View, error) {
	if v.Kind() != KindArray {
		return nil, Mismatch("zerialize: index", "array", v.Kind())
	}
	if i < 0 || i >= len(v.items) {
		return nil, OutOfRange("zerialize: index", i, len(v.items))
	}
	return v.items[i], nil
}

func (v *Value) Key(k string) (View, error) {
	if v.Kind() != KindMap {
		return nil, Mismatch("zerialize: key", "map", v.Kind())
	}
	i, ok := v.lookup(k)
	if !ok {
		return nil, NotFound("zerialize: key", k)
	}
	return v.entries[i].Value, nil
}

func (v *Value) Has(k string) bool {
	if v.Kind() != KindMap {
		return false
	}
	_, ok := v.lookup(k)
	return ok
}

func (v *Value) Keys() ([]string, error) {
	if v.Kind() != KindMap {
		return nil, Mismatch("zerialize: keys", "map", v.Kind())
	}
	keys := make([]string, len(v.entries))
	for i, e := range v.entries {
		keys[i] = e.Key
	}
	return keys, nil
}

func (v *Value) Elements(fn func(int, View) error) error {
	if v.Kind() != KindArray {
		return Mismatch("zerialize: elements", "array", v.Kind())
	}
	for i, item := range v.items {
		if err := fn(i, item); err != nil {
			return err
		}
	}
	return nil
}

func (v *Value) Entries(fn func(string, View) error) error {
	if v.Kind() != KindMap {
		return Mismatch("zerialize: entries", "map", v.Kind())
	}
	for _, e := range v.entries {
		if err := fn(e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// String renders v for diagnostics.
func (v *Value) String() string {
	return Dump(v)
}

// ============================================================
// Serializable implementation
// ============================================================

// Serialize writes v to w.
func (v *Value) Serialize(w Writer) error {
	switch v.Kind() {
	case KindNull:
		return w.Null()
	case KindBool:
		return w.Bool(v.b)
	case KindInt64:
		return w.Int64(v.num.I)
	case KindUint64:
		return w.Uint64(v.num.U)
	case KindFloat64:
		return w.Float64(v.num.F)
	case KindString:
		return w.String(v.s)
	case KindBinary:
		return w.Binary(v.bin)
	case KindArray:
		if err := w.BeginArray(len(v.items)); err != nil {
			return err
		}
		for _, item := range v.items {
			if err := item.Serialize(w); err != nil {
				return err
			}
		}
		return w.EndArray()
	case KindMap:
		if err := w.BeginMap(len(v.entries)); err != nil {
			return err
		}
		for _, e := range v.entries {
			if err := w.Key(e.Key); err != nil {
				return err
			}
			if err := e.Value.Serialize(w); err != nil {
				return err
			}
		}
		return w.EndMap()
	}
	return Encodef("zerialize: serialize", ErrUnsupportedValue, "kind %s", v.Kind())
}
