// Package cbor implements the CBOR (RFC 8949) backend.
//
// Scalars are encoded with fxamacker/cbor. Containers are opened with
// definite-length heads carrying a 32-bit count that is back-patched when
// the container closes, so count hints are never trusted. The view parses
// heads lazily: tags are skipped, indefinite-length items are accepted,
// undefined reads as null, and definite byte strings are returned without
// copying.
package cbor

import (
	"bytes"
	"encoding/binary"
	"math"

	fxcbor "github.com/fxamacker/cbor/v2"

	"github.com/Neumenon/zerialize/zerialize"
)

// CBOR heads with a 4-byte argument.
const (
	headArray32 byte = 0x9a
	headMap32   byte = 0xba
	headNull    byte = 0xf6
)

// Option configures a Root.
type Option func(*fxcbor.EncOptions)

// WithShortestFloats encodes each float in the shortest IEEE width (16, 32
// or 64 bits) that preserves its value.
func WithShortestFloats() Option {
	return func(o *fxcbor.EncOptions) {
		o.ShortestFloat = fxcbor.ShortestFloat16
	}
}

func encMode(opts []Option) (fxcbor.EncMode, error) {
	o := fxcbor.EncOptions{
		ShortestFloat: fxcbor.ShortestFloatNone,
		NaNConvert:    fxcbor.NaNConvertNone,
		InfConvert:    fxcbor.InfConvertNone,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o.EncMode()
}

var defaultEncMode, _ = encMode(nil)

// Root owns a CBOR output buffer and is its Writer.
type Root struct {
	buf  bytes.Buffer
	enc  *fxcbor.Encoder
	st   zerialize.Stack
	done bool
	out  []byte
}

// NewRoot returns an empty root.
func NewRoot(opts ...Option) *Root {
	r := &Root{st: zerialize.Stack{Name: "cbor"}}
	em := defaultEncMode
	if len(opts) > 0 {
		var err error
		if em, err = encMode(opts); err != nil {
			r.st.Failf("options", zerialize.ErrUnsupportedValue, "%v", err)
			em = defaultEncMode
		}
	}
	r.enc = em.NewEncoder(&r.buf)
	return r
}

// Writer returns r.
func (r *Root) Writer() zerialize.Writer { return r }

// Finish returns the encoded bytes. An empty session encodes null (0xf6).
func (r *Root) Finish() ([]byte, error) {
	if r.done {
		return r.out, r.st.Err()
	}
	if err := r.st.Finish(); err != nil {
		return nil, err
	}
	r.done = true
	if r.st.Empty() {
		r.out = []byte{headNull}
	} else {
		r.out = r.buf.Bytes()
	}
	return r.out, nil
}

// NativeBinary reports that CBOR carries binary values natively.
func (r *Root) NativeBinary() bool { return true }

// scalar runs the nesting checks and encodes v.
func (r *Root) scalar(op string, v interface{}) error {
	if r.done {
		return r.st.Failf(op, zerialize.ErrNesting, "write after finish")
	}
	if _, err := r.st.Value(op); err != nil {
		return err
	}
	if err := r.enc.Encode(v); err != nil {
		return r.st.Failf(op, zerialize.ErrUnsupportedValue, "%v", err)
	}
	return nil
}

func (r *Root) Null() error             { return r.scalar("null", nil) }
func (r *Root) Bool(b bool) error       { return r.scalar("bool", b) }
func (r *Root) Int64(i int64) error     { return r.scalar("int64", i) }
func (r *Root) Uint64(u uint64) error   { return r.scalar("uint64", u) }
func (r *Root) Float64(f float64) error { return r.scalar("float64", f) }
func (r *Root) String(s string) error   { return r.scalar("string", s) }

func (r *Root) Binary(b []byte) error {
	if b == nil {
		// A nil slice encodes as null.
		b = []byte{}
	}
	return r.scalar("binary", b)
}

func (r *Root) BeginArray(hint int) error {
	return r.begin("begin_array", headArray32, zerialize.KindArray)
}

func (r *Root) EndArray() error {
	return r.end(zerialize.KindArray)
}

func (r *Root) BeginMap(hint int) error {
	return r.begin("begin_map", headMap32, zerialize.KindMap)
}

func (r *Root) Key(k string) error {
	if r.done {
		return r.st.Failf("key", zerialize.ErrNesting, "write after finish")
	}
	if _, err := r.st.Key(k); err != nil {
		return err
	}
	if err := r.enc.Encode(k); err != nil {
		return r.st.Failf("key", zerialize.ErrUnsupportedValue, "%v", err)
	}
	return nil
}

func (r *Root) EndMap() error {
	return r.end(zerialize.KindMap)
}

func (r *Root) begin(op string, head byte, kind zerialize.Kind) error {
	if r.done {
		return r.st.Failf(op, zerialize.ErrNesting, "write after finish")
	}
	if _, err := r.st.Value(op); err != nil {
		return err
	}
	r.buf.WriteByte(head)
	mark := r.buf.Len()
	r.buf.Write([]byte{0, 0, 0, 0})
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
	binary.BigEndian.PutUint32(r.buf.Bytes()[f.Mark:], uint32(f.Count))
	return nil
}
