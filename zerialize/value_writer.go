package zerialize

// ValueWriter is a Writer that builds a *Value tree instead of bytes. It
// enforces the same contract as the format writers.
type ValueWriter struct {
	st   Stack
	open []*Value
	key  string
	root *Value
}

// NewValueWriter returns an empty ValueWriter.
func NewValueWriter() *ValueWriter {
	return &ValueWriter{st: Stack{Name: "value"}}
}

// ToValue materializes anything Emit accepts.
func ToValue(v any) (*Value, error) {
	w := NewValueWriter()
	if err := Emit(w, v); err != nil {
		return nil, err
	}
	return w.Value()
}

// Value returns the built tree. An empty session yields Null.
func (w *ValueWriter) Value() (*Value, error) {
	if err := w.st.Finish(); err != nil {
		return nil, err
	}
	if w.st.Empty() {
		return Null(), nil
	}
	return w.root, nil
}

func (w *ValueWriter) put(op string, v *Value) error {
	if _, err := w.st.Value(op); err != nil {
		return err
	}
	if len(w.open) == 0 {
		w.root = v
		return nil
	}
	top := w.open[len(w.open)-1]
	if top.kind == KindArray {
		top.items = append(top.items, v)
		return nil
	}
	// The stack has already rejected duplicates.
	return top.Insert(w.key, v)
}

func (w *ValueWriter) Null() error             { return w.put("null", Null()) }
func (w *ValueWriter) Bool(b bool) error       { return w.put("bool", Bool(b)) }
func (w *ValueWriter) Int64(i int64) error     { return w.put("int64", Int(i)) }
func (w *ValueWriter) Uint64(u uint64) error   { return w.put("uint64", Uint(u)) }
func (w *ValueWriter) Float64(f float64) error { return w.put("float64", Float(f)) }
func (w *ValueWriter) String(s string) error   { return w.put("string", Str(s)) }

// Binary retains a copy of b.
func (w *ValueWriter) Binary(b []byte) error {
	return w.put("binary", Bytes(append([]byte{}, b...)))
}

func (w *ValueWriter) BeginArray(hint int) error {
	return w.begin("begin_array", Array(), KindArray)
}

func (w *ValueWriter) EndArray() error {
	return w.end(KindArray)
}

func (w *ValueWriter) BeginMap(hint int) error {
	return w.begin("begin_map", &Value{kind: KindMap}, KindMap)
}

func (w *ValueWriter) Key(k string) error {
	if _, err := w.st.Key(k); err != nil {
		return err
	}
	w.key = k
	return nil
}

func (w *ValueWriter) EndMap() error {
	return w.end(KindMap)
}

func (w *ValueWriter) begin(op string, v *Value, kind Kind) error {
	if err := w.put(op, v); err != nil {
		return err
	}
	w.st.Push(kind, len(w.open))
	w.open = append(w.open, v)
	return nil
}

func (w *ValueWriter) end(kind Kind) error {
	if _, err := w.st.Pop(kind); err != nil {
		return err
	}
	w.open = w.open[:len(w.open)-1]
	return nil
}
