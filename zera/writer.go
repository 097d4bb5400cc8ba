package zera

import (
	"encoding/binary"
	"math"

	"github.com/Neumenon/zerialize/zerialize"
)

// Option configures a Root.
type Option func(*Root)

// WithAlignment writes every binary value aligned to a, a power of two in
// [1, MaxAlignment]. An invalid alignment fails the first write with
// ErrRange.
func WithAlignment(a int) Option {
	return func(r *Root) {
		r.align = a
	}
}

// WithCapacity presizes the output buffer.
func WithCapacity(n int) Option {
	return func(r *Root) {
		if n > 0 {
			r.buf = make([]byte, 0, n)
		}
	}
}

// Root owns a Zera output buffer and is its Writer. Encoding is single
// pass and append only: container counts are back-patched into fixed
// width fields when the container closes.
type Root struct {
	buf      []byte
	st       zerialize.Stack
	align    int
	maxAlign int
	done     bool
	out      []byte
}

// NewRoot returns an empty root.
func NewRoot(opts ...Option) *Root {
	r := &Root{st: zerialize.Stack{Name: "zera"}, align: 1, maxAlign: 1}
	for _, opt := range opts {
		opt(r)
	}
	if !ValidAlignment(r.align) {
		r.st.Failf("with_alignment", zerialize.ErrRange, "alignment %d is not a power of two in [1, %d]", r.align, MaxAlignment)
	}
	return r
}

// Writer returns r.
func (r *Root) Writer() zerialize.Writer { return r }

// Finish returns the encoded buffer. An empty session encodes null.
func (r *Root) Finish() ([]byte, error) {
	if r.done {
		return r.out, r.st.Err()
	}
	if err := r.st.Finish(); err != nil {
		return nil, err
	}
	r.done = true
	if r.st.Empty() {
		r.out = []byte{TagNull}
		return r.out, nil
	}
	r.out = Aligned(r.buf, r.maxAlign)
	return r.out, nil
}

// value runs the shared nesting checks before any value is appended.
func (r *Root) value(op string) error {
	if r.done {
		return r.st.Failf(op, zerialize.ErrNesting, "write after finish")
	}
	_, err := r.st.Value(op)
	return err
}

func (r *Root) Null() error {
	if err := r.value("null"); err != nil {
		return err
	}
	r.buf = append(r.buf, TagNull)
	return nil
}

func (r *Root) Bool(b bool) error {
	if err := r.value("bool"); err != nil {
		return err
	}
	if b {
		r.buf = append(r.buf, TagTrue)
	} else {
		r.buf = append(r.buf, TagFalse)
	}
	return nil
}

func (r *Root) Int64(i int64) error {
	if err := r.value("int64"); err != nil {
		return err
	}
	r.buf = append(r.buf, TagInt64)
	r.buf = binary.LittleEndian.AppendUint64(r.buf, uint64(i))
	return nil
}

func (r *Root) Uint64(u uint64) error {
	if err := r.value("uint64"); err != nil {
		return err
	}
	r.buf = append(r.buf, TagUint64)
	r.buf = binary.LittleEndian.AppendUint64(r.buf, u)
	return nil
}

func (r *Root) Float64(f float64) error {
	if err := r.value("float64"); err != nil {
		return err
	}
	r.buf = append(r.buf, TagFloat64)
	r.buf = binary.LittleEndian.AppendUint64(r.buf, math.Float64bits(f))
	return nil
}

func (r *Root) String(s string) error {
	if err := r.value("string"); err != nil {
		return err
	}
	if uint64(len(s)) > math.MaxUint32 {
		return r.st.Failf("string", zerialize.ErrRange, "length %d exceeds u32", len(s))
	}
	r.buf = append(r.buf, TagString)
	r.buf = binary.LittleEndian.AppendUint32(r.buf, uint32(len(s)))
	r.buf = append(r.buf, s...)
	return nil
}

func (r *Root) Binary(b []byte) error {
	if r.align > 1 {
		return r.AlignedBinary(b, r.align)
	}
	if err := r.value("binary"); err != nil {
		return err
	}
	if uint64(len(b)) > math.MaxUint32 {
		return r.st.Failf("binary", zerialize.ErrRange, "length %d exceeds u32", len(b))
	}
	r.buf = append(r.buf, TagBinary)
	r.buf = binary.LittleEndian.AppendUint32(r.buf, uint32(len(b)))
	r.buf = append(r.buf, b...)
	return nil
}

// AlignedBinary writes b so that its payload starts at an offset that is a
// multiple of align.
func (r *Root) AlignedBinary(b []byte, align int) error {
	if !ValidAlignment(align) {
		return r.st.Failf("aligned_binary", zerialize.ErrRange, "alignment %d is not a power of two in [1, %d]", align, MaxAlignment)
	}
	if err := r.value("aligned_binary"); err != nil {
		return err
	}
	if uint64(len(b)) > math.MaxUint32 {
		return r.st.Failf("aligned_binary", zerialize.ErrRange, "length %d exceeds u32", len(b))
	}
	// tag + u32 length + u16 pad precede the padding.
	pad := padding(len(r.buf)+7, align)
	r.buf = append(r.buf, TagAlignedBinary)
	r.buf = binary.LittleEndian.AppendUint32(r.buf, uint32(len(b)))
	r.buf = binary.LittleEndian.AppendUint16(r.buf, uint16(pad))
	for i := 0; i < pad; i++ {
		r.buf = append(r.buf, 0)
	}
	r.buf = append(r.buf, b...)
	if align > r.maxAlign {
		r.maxAlign = align
	}
	return nil
}

// NativeBinary reports that Zera carries binary values natively.
func (r *Root) NativeBinary() bool { return true }

func (r *Root) BeginArray(hint int) error {
	return r.begin("begin_array", TagArray, zerialize.KindArray)
}

func (r *Root) EndArray() error {
	return r.end(zerialize.KindArray)
}

func (r *Root) BeginMap(hint int) error {
	return r.begin("begin_map", TagMap, zerialize.KindMap)
}

func (r *Root) Key(k string) error {
	if r.done {
		return r.st.Failf("key", zerialize.ErrNesting, "write after finish")
	}
	if _, err := r.st.Key(k); err != nil {
		return err
	}
	if uint64(len(k)) > math.MaxUint32 {
		return r.st.Failf("key", zerialize.ErrRange, "length %d exceeds u32", len(k))
	}
	r.buf = binary.LittleEndian.AppendUint32(r.buf, uint32(len(k)))
	r.buf = append(r.buf, k...)
	return nil
}

func (r *Root) EndMap() error {
	return r.end(zerialize.KindMap)
}

func (r *Root) begin(op string, tag byte, kind zerialize.Kind) error {
	if err := r.value(op); err != nil {
		return err
	}
	r.buf = append(r.buf, tag)
	mark := len(r.buf)
	r.buf = append(r.buf, 0, 0, 0, 0)
	r.st.Push(kind, mark)
	return nil
}

func (r *Root) end(kind zerialize.Kind) error {
	f, err := r.st.Pop(kind)
	if err != nil {
		return err
	}
	if uint64(f.Count) > math.MaxUint32 {
		return r.st.Failf("end", zerialize.ErrRange, "count %d exceeds u32", f.Count)
	}
	binary.LittleEndian.PutUint32(r.buf[f.Mark:], uint32(f.Count))
	return nil
}

// padding returns the number of bytes needed to advance off to a multiple
// of align.
func padding(off, align int) int {
	return (align - off%align) % align
}
