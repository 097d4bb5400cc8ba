package msgpack

import (
	"bytes"
	"encoding/binary"
	"math"

	vmsgpack "github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/Neumenon/zerialize/zerialize"
)

const maxSkipDepth = 10000

// header is the decoded head of one MessagePack item.
type header struct {
	code byte
	kind zerialize.Kind
	size int // Header bytes; for fixed-size scalars the whole item
	n    int // Payload bytes (str, bin) or element/entry count (array, map)
}

func malformed(format string, args ...interface{}) error {
	return zerialize.Decodef("msgpack: view", zerialize.ErrMalformed, format, args...)
}

// readHeader decodes the head of the item at off. Ext types and the
// reserved code 0xc1 are rejected.
func readHeader(buf []byte, off int) (header, error) {
	if off >= len(buf) {
		return header{}, malformed("truncated at offset %d", off)
	}
	c := buf[off]
	h := header{code: c, size: 1}
	switch {
	case c <= msgpcode.PosFixedNumHigh || c >= msgpcode.NegFixedNumLow:
		h.kind = zerialize.KindInt64
	case msgpcode.IsFixedMap(c):
		h.kind, h.n = zerialize.KindMap, int(c&msgpcode.FixedMapMask)
	case msgpcode.IsFixedArray(c):
		h.kind, h.n = zerialize.KindArray, int(c&msgpcode.FixedArrayMask)
	case msgpcode.IsFixedString(c):
		h.kind, h.n = zerialize.KindString, int(c&msgpcode.FixedStrMask)
	case c == msgpcode.Nil:
		h.kind = zerialize.KindNull
	case c == msgpcode.False || c == msgpcode.True:
		h.kind = zerialize.KindBool
	case c == msgpcode.Uint8 || c == msgpcode.Int8:
		h.kind, h.size = zerialize.KindInt64, 2
	case c == msgpcode.Uint16 || c == msgpcode.Int16:
		h.kind, h.size = zerialize.KindInt64, 3
	case c == msgpcode.Uint32 || c == msgpcode.Int32:
		h.kind, h.size = zerialize.KindInt64, 5
	case c == msgpcode.Int64:
		h.kind, h.size = zerialize.KindInt64, 9
	case c == msgpcode.Uint64:
		h.kind, h.size = zerialize.KindUint64, 9
	case c == msgpcode.Float:
		h.kind, h.size = zerialize.KindFloat64, 5
	case c == msgpcode.Double:
		h.kind, h.size = zerialize.KindFloat64, 9
	case c == msgpcode.Str8 || c == msgpcode.Bin8:
		h.size = 2
	case c == msgpcode.Str16 || c == msgpcode.Bin16 || c == msgpcode.Array16 || c == msgpcode.Map16:
		h.size = 3
	case c == msgpcode.Str32 || c == msgpcode.Bin32 || c == msgpcode.Array32 || c == msgpcode.Map32:
		h.size = 5
	case msgpcode.IsExt(c):
		return header{}, malformed("ext type 0x%02x at offset %d is not supported", c, off)
	default:
		return header{}, malformed("invalid code 0x%02x at offset %d", c, off)
	}
	if off+h.size > len(buf) {
		return header{}, malformed("truncated header at offset %d", off)
	}
	switch c {
	case msgpcode.Str8, msgpcode.Str16, msgpcode.Str32:
		h.kind = zerialize.KindString
	case msgpcode.Bin8, msgpcode.Bin16, msgpcode.Bin32:
		h.kind = zerialize.KindBinary
	case msgpcode.Array16, msgpcode.Array32:
		h.kind = zerialize.KindArray
	case msgpcode.Map16, msgpcode.Map32:
		h.kind = zerialize.KindMap
	case msgpcode.Uint64:
		if binary.BigEndian.Uint64(buf[off+1:]) <= math.MaxInt64 {
			h.kind = zerialize.KindInt64
		}
		return h, nil
	default:
		return h, nil
	}
	switch h.size {
	case 2:
		h.n = int(buf[off+1])
	case 3:
		h.n = int(binary.BigEndian.Uint16(buf[off+1:]))
	case 5:
		h.n = int(binary.BigEndian.Uint32(buf[off+1:]))
	}
	return h, nil
}

// payload returns the bounds of a str or bin payload.
func (h header) payload(buf []byte, off int) (int, int, error) {
	start := off + h.size
	end := start + h.n
	if end > len(buf) || end < start {
		return 0, 0, malformed("payload of %d bytes at offset %d overruns buffer", h.n, start)
	}
	return start, end, nil
}

// skip returns the offset just past the item at off, reading only headers.
func skip(buf []byte, off int, depth int) (int, error) {
	h, err := readHeader(buf, off)
	if err != nil {
		return 0, err
	}
	switch h.kind {
	case zerialize.KindString, zerialize.KindBinary:
		_, end, err := h.payload(buf, off)
		return end, err
	case zerialize.KindArray, zerialize.KindMap:
		if depth >= maxSkipDepth {
			return 0, malformed("nesting deeper than %d", maxSkipDepth)
		}
		items := h.n
		if h.kind == zerialize.KindMap {
			items *= 2
		}
		pos := off + h.size
		for i := 0; i < items; i++ {
			if pos, err = skip(buf, pos, depth+1); err != nil {
				return 0, err
			}
		}
		return pos, nil
	}
	return off + h.size, nil
}

// View is a lazy view of one MessagePack item.
type View struct {
	buf []byte
	off int
	h   header
}

// NewView returns a view of the first item in data.
func NewView(data []byte) (View, error) {
	return at(data, 0)
}

func at(buf []byte, off int) (View, error) {
	h, err := readHeader(buf, off)
	if err != nil {
		return View{}, err
	}
	return View{buf: buf, off: off, h: h}, nil
}

// Validate checks that data holds exactly one well-formed item with string
// map keys.
func Validate(data []byte) error {
	v, err := NewView(data)
	if err != nil {
		return err
	}
	if err := validate(v, 0); err != nil {
		return err
	}
	end, err := skip(data, 0, 0)
	if err != nil {
		return err
	}
	if end != len(data) {
		return malformed("%d trailing bytes", len(data)-end)
	}
	return nil
}

func validate(v View, depth int) error {
	if depth > maxSkipDepth {
		return malformed("nesting deeper than %d", maxSkipDepth)
	}
	switch v.Kind() {
	case zerialize.KindArray:
		return v.Elements(func(_ int, e zerialize.View) error {
			return validate(e.(View), depth+1)
		})
	case zerialize.KindMap:
		return v.Entries(func(_ string, e zerialize.View) error {
			return validate(e.(View), depth+1)
		})
	}
	return nil
}

// Kind returns the kind of the item. Integers are Int64 unless they only
// fit uint64.
func (v View) Kind() zerialize.Kind {
	if len(v.buf) == 0 {
		return zerialize.KindNull
	}
	return v.h.kind
}

func (v View) decoder() *vmsgpack.Decoder {
	return vmsgpack.NewDecoder(bytes.NewReader(v.buf[v.off:]))
}

// ============================================================
// Scalars
// ============================================================

func (v View) AsBool() (bool, error) {
	if v.Kind() != zerialize.KindBool {
		return false, zerialize.Mismatch("msgpack: as_bool", "bool", v.Kind())
	}
	return v.h.code == msgpcode.True, nil
}

func (v View) number(op string) (zerialize.Number, error) {
	switch v.Kind() {
	case zerialize.KindFloat64:
		f, err := v.decoder().DecodeFloat64()
		if err != nil {
			return zerialize.Number{}, zerialize.Decodef(op, zerialize.ErrMalformed, "%v", err)
		}
		return zerialize.FloatNumber(f), nil
	case zerialize.KindInt64, zerialize.KindUint64:
		c := v.h.code
		if c >= msgpcode.NegFixedNumLow || c == msgpcode.Int8 || c == msgpcode.Int16 ||
			c == msgpcode.Int32 || c == msgpcode.Int64 {
			i, err := v.decoder().DecodeInt64()
			if err != nil {
				return zerialize.Number{}, zerialize.Decodef(op, zerialize.ErrMalformed, "%v", err)
			}
			return zerialize.SignedNumber(i), nil
		}
		u, err := v.decoder().DecodeUint64()
		if err != nil {
			return zerialize.Number{}, zerialize.Decodef(op, zerialize.ErrMalformed, "%v", err)
		}
		return zerialize.IntegerNumber(u), nil
	}
	return zerialize.Number{}, zerialize.Mismatch(op, "number", v.Kind())
}

func (v View) AsInt64() (int64, error) {
	n, err := v.number("msgpack: as_int64")
	if err != nil {
		return 0, err
	}
	return n.Int64("msgpack: as_int64")
}

func (v View) AsUint64() (uint64, error) {
	n, err := v.number("msgpack: as_uint64")
	if err != nil {
		return 0, err
	}
	return n.Uint64("msgpack: as_uint64")
}

func (v View) AsFloat64() (float64, error) {
	n, err := v.number("msgpack: as_float64")
	if err != nil {
		return 0, err
	}
	return n.Float64("msgpack: as_float64")
}

func (v View) AsString() (string, error) {
	if v.Kind() != zerialize.KindString {
		return "", zerialize.Mismatch("msgpack: as_string", "string", v.Kind())
	}
	start, end, err := v.h.payload(v.buf, v.off)
	if err != nil {
		return "", err
	}
	return string(v.buf[start:end]), nil
}

// AsBinary returns the bin payload. The slice aliases the buffer.
func (v View) AsBinary() ([]byte, error) {
	if v.Kind() != zerialize.KindBinary {
		return nil, zerialize.Mismatch("msgpack: as_binary", "binary", v.Kind())
	}
	start, end, err := v.h.payload(v.buf, v.off)
	if err != nil {
		return nil, err
	}
	return v.buf[start:end:end], nil
}

// BorrowsBinary reports that AsBinary aliases the buffer.
func (v View) BorrowsBinary() bool { return true }

// ============================================================
// Containers
// ============================================================

func (v View) Len() (int, error) {
	switch v.Kind() {
	case zerialize.KindArray, zerialize.KindMap:
		return v.h.n, nil
	}
	return 0, zerialize.Mismatch("msgpack: len", "array or map", v.Kind())
}

func (v View) Index(i int) (zerialize.View, error) {
	if v.Kind() != zerialize.KindArray {
		return nil, zerialize.Mismatch("msgpack: index", "array", v.Kind())
	}
	if i < 0 || i >= v.h.n {
		return nil, zerialize.OutOfRange("msgpack: index", i, v.h.n)
	}
	pos := v.off + v.h.size
	var err error
	for j := 0; j < i; j++ {
		if pos, err = skip(v.buf, pos, 0); err != nil {
			return nil, zerialize.WithPathPrefix(err, zerialize.IndexSegment(j))
		}
	}
	return at(v.buf, pos)
}

// key reads the map key at pos, returning its bytes and the value offset.
func (v View) key(pos int) ([]byte, int, error) {
	h, err := readHeader(v.buf, pos)
	if err != nil {
		return nil, 0, err
	}
	if h.kind != zerialize.KindString {
		return nil, 0, zerialize.Decodef("msgpack: view", zerialize.ErrTypeMismatch, "map key at offset %d is %s, not string", pos, h.kind)
	}
	start, end, err := h.payload(v.buf, pos)
	if err != nil {
		return nil, 0, err
	}
	return v.buf[start:end], end, nil
}

func (v View) entries(op string, fn func(k []byte, valOff int) (bool, error)) error {
	if v.Kind() != zerialize.KindMap {
		return zerialize.Mismatch(op, "map", v.Kind())
	}
	pos := v.off + v.h.size
	for j := 0; j < v.h.n; j++ {
		k, valOff, err := v.key(pos)
		if err != nil {
			return err
		}
		more, err := fn(k, valOff)
		if err != nil || !more {
			return err
		}
		if pos, err = skip(v.buf, valOff, 0); err != nil {
			return zerialize.WithPathPrefix(err, zerialize.KeySegment(string(k)))
		}
	}
	return nil
}

func (v View) find(op, k string) (View, bool, error) {
	var (
		out   View
		found bool
	)
	err := v.entries(op, func(key []byte, valOff int) (bool, error) {
		if string(key) != k {
			return true, nil
		}
		c, err := at(v.buf, valOff)
		if err != nil {
			return false, zerialize.WithPathPrefix(err, zerialize.KeySegment(k))
		}
		out, found = c, true
		return false, nil
	})
	return out, found, err
}

func (v View) Key(k string) (zerialize.View, error) {
	c, ok, err := v.find("msgpack: key", k)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, zerialize.NotFound("msgpack: key", k)
	}
	return c, nil
}

func (v View) Has(k string) bool {
	_, ok, _ := v.find("msgpack: has", k)
	return ok
}

func (v View) Keys() ([]string, error) {
	keys := make([]string, 0)
	err := v.entries("msgpack: keys", func(k []byte, _ int) (bool, error) {
		keys = append(keys, string(k))
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (v View) Elements(fn func(int, zerialize.View) error) error {
	if v.Kind() != zerialize.KindArray {
		return zerialize.Mismatch("msgpack: elements", "array", v.Kind())
	}
	pos := v.off + v.h.size
	for i := 0; i < v.h.n; i++ {
		c, err := at(v.buf, pos)
		if err != nil {
			return zerialize.WithPathPrefix(err, zerialize.IndexSegment(i))
		}
		if err := fn(i, c); err != nil {
			return err
		}
		if pos, err = skip(v.buf, pos, 0); err != nil {
			return zerialize.WithPathPrefix(err, zerialize.IndexSegment(i))
		}
	}
	return nil
}

func (v View) Entries(fn func(string, zerialize.View) error) error {
	return v.entries("msgpack: entries", func(k []byte, valOff int) (bool, error) {
		c, err := at(v.buf, valOff)
		if err != nil {
			return false, zerialize.WithPathPrefix(err, zerialize.KeySegment(string(k)))
		}
		return true, fn(string(k), c)
	})
}

// String renders the item for diagnostics.
func (v View) String() string {
	return zerialize.Dump(v)
}
