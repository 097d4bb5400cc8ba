// Package msgpack implements the MessagePack backend.
//
// Scalars are encoded with vmihailenco/msgpack. Containers are opened with
// fixed-width array32/map32 headers whose counts are back-patched when the
// container closes, so count hints are never trusted. The view parses
// headers lazily and returns bin payloads without copying.
package msgpack

import (
	"bytes"
	"encoding/binary"
	"math"

	vmsgpack "github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/Neumenon/zerialize/zerialize"
)

// Root owns a MessagePack output buffer and is its Writer.
type Root struct {
	buf  bytes.Buffer
	enc  *vmsgpack.Encoder
	st   zerialize.Stack
	done bool
	out  []byte
}

// NewRoot returns an empty root.
func NewRoot() *Root {
	r := &Root{st: zerialize.Stack{Name: "msgpack"}}
	r.enc = vmsgpack.NewEncoder(&r.buf)
	return r
}

// Writer returns r.
func (r *Root) Writer() zerialize.Writer { return r }

// Finish returns the encoded bytes. An empty session encodes nil (0xc0).
func (r *Root) Finish() ([]byte, error) {
	if r.done {
		return r.out, r.st.Err()
	}
	if err := r.st.Finish(); err != nil {
		return nil, err
	}
	r.done = true
	if r.st.Empty() {
		r.out = []byte{msgpcode.Nil}
	} else {
		r.out = r.buf.Bytes()
	}
	return r.out, nil
}

// NativeBinary reports that MessagePack carries binary values natively.
func (r *Root) NativeBinary() bool { return true }

func (r *Root) value(op string) error {
	if r.done {
		return r.st.Failf(op, zerialize.ErrNesting, "write after finish")
	}
	_, err := r.st.Value(op)
	return err
}

// encoded records an encoder failure as the sticky error.
func (r *Root) encoded(op string, err error) error {
	if err != nil {
		return r.st.Failf(op, zerialize.ErrMalformed, "%v", err)
	}
	return nil
}

func (r *Root) Null() error {
	if err := r.value("null"); err != nil {
		return err
	}
	return r.encoded("null", r.enc.EncodeNil())
}

func (r *Root) Bool(b bool) error {
	if err := r.value("bool"); err != nil {
		return err
	}
	return r.encoded("bool", r.enc.EncodeBool(b))
}

func (r *Root) Int64(i int64) error {
	if err := r.value("int64"); err != nil {
		return err
	}
	return r.encoded("int64", r.enc.EncodeInt(i))
}

func (r *Root) Uint64(u uint64) error {
	if err := r.value("uint64"); err != nil {
		return err
	}
	return r.encoded("uint64", r.enc.EncodeUint(u))
}

func (r *Root) Float64(f float64) error {
	if err := r.value("float64"); err != nil {
		return err
	}
	return r.encoded("float64", r.enc.EncodeFloat64(f))
}

func (r *Root) String(s string) error {
	if err := r.value("string"); err != nil {
		return err
	}
	if uint64(len(s)) > math.MaxUint32 {
		return r.st.Failf("string", zerialize.ErrRange, "length %d exceeds str32", len(s))
	}
	return r.encoded("string", r.enc.EncodeString(s))
}

func (r *Root) Binary(b []byte) error {
	if err := r.value("binary"); err != nil {
		return err
	}
	if uint64(len(b)) > math.MaxUint32 {
		return r.st.Failf("binary", zerialize.ErrRange, "length %d exceeds bin32", len(b))
	}
	if b == nil {
		// EncodeBytes writes nil for a nil slice.
		b = []byte{}
	}
	return r.encoded("binary", r.enc.EncodeBytes(b))
}

func (r *Root) BeginArray(hint int) error {
	return r.begin("begin_array", msgpcode.Array32, zerialize.KindArray)
}

func (r *Root) EndArray() error {
	return r.end(zerialize.KindArray)
}

func (r *Root) BeginMap(hint int) error {
	return r.begin("begin_map", msgpcode.Map32, zerialize.KindMap)
}

func (r *Root) Key(k string) error {
	if r.done {
		return r.st.Failf("key", zerialize.ErrNesting, "write after finish")
	}
	if _, err := r.st.Key(k); err != nil {
		return err
	}
	return r.encoded("key", r.enc.EncodeString(k))
}

func (r *Root) EndMap() error {
	return r.end(zerialize.KindMap)
}

func (r *Root) begin(op string, code byte, kind zerialize.Kind) error {
	if err := r.value(op); err != nil {
		return err
	}
	r.buf.WriteByte(code)
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
