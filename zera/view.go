package zera

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Neumenon/zerialize/zerialize"
)

// maxSkipDepth bounds recursion while skipping over malformed input.
const maxSkipDepth = 10000

// View is a lazy view of one Zera value. It is a buffer and the offset of
// the value's tag; indexing yields a new View over the same buffer.
type View struct {
	buf []byte
	off int
}

// NewView returns a view of the root value in data. Only the root tag is
// checked; use Validate to check a whole buffer up front.
func NewView(data []byte) (View, error) {
	if len(data) == 0 {
		return View{}, zerialize.Decodef("zera: view", zerialize.ErrMalformed, "empty buffer")
	}
	if tagKind[data[0]] == kindInvalid {
		return View{}, badTag(data[0], 0)
	}
	return View{buf: data}, nil
}

// Validate walks the whole buffer and checks that it holds exactly one
// well-formed value.
func Validate(data []byte) error {
	v, err := NewView(data)
	if err != nil {
		return err
	}
	end, err := skip(data, 0, 0)
	if err != nil {
		return err
	}
	if end != len(data) {
		return v.malformed("%d trailing bytes", len(data)-end)
	}
	return nil
}

func badTag(tag byte, off int) error {
	return zerialize.Decodef("zera: view", zerialize.ErrMalformed, "unknown tag 0x%02x at offset %d", tag, off)
}

func (v View) malformed(format string, args ...interface{}) error {
	return zerialize.Decodef("zera: view", zerialize.ErrMalformed, format, args...)
}

func (v View) tag() byte { return v.buf[v.off] }

// Kind returns the kind of the value.
func (v View) Kind() zerialize.Kind {
	if len(v.buf) == 0 {
		return zerialize.KindNull
	}
	return tagKind[v.tag()]
}

// Offset returns the position of the value's tag in the buffer.
func (v View) Offset() int { return v.off }

// ============================================================
// Low-level readers
// ============================================================

func readU32(buf []byte, off int) (int, bool) {
	if off < 0 || off+4 > len(buf) {
		return 0, false
	}
	return int(binary.LittleEndian.Uint32(buf[off:])), true
}

func readU64(buf []byte, off int) (uint64, bool) {
	if off < 0 || off+8 > len(buf) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(buf[off:]), true
}

// span returns the payload bounds of a string or binary value at off.
func span(buf []byte, off int) (start, end int, err error) {
	n, ok := readU32(buf, off+1)
	if !ok {
		return 0, 0, zerialize.Decodef("zera: view", zerialize.ErrMalformed, "truncated length at offset %d", off+1)
	}
	start = off + 5
	if buf[off] == TagAlignedBinary {
		if off+7 > len(buf) {
			return 0, 0, zerialize.Decodef("zera: view", zerialize.ErrMalformed, "truncated pad at offset %d", off+5)
		}
		start = off + 7 + int(binary.LittleEndian.Uint16(buf[off+5:]))
	}
	end = start + n
	if end > len(buf) || end < start {
		return 0, 0, zerialize.Decodef("zera: view", zerialize.ErrMalformed, "payload of %d bytes at offset %d overruns buffer", n, start)
	}
	return start, end, nil
}

// skip returns the offset just past the value at off. Scalars are skipped
// by size, strings and blobs by their length prefix; containers skip each
// child the same way without decoding payloads.
func skip(buf []byte, off int, depth int) (int, error) {
	if off >= len(buf) {
		return 0, zerialize.Decodef("zera: view", zerialize.ErrMalformed, "truncated at offset %d", off)
	}
	switch buf[off] {
	case TagNull, TagFalse, TagTrue:
		return off + 1, nil
	case TagInt64, TagUint64, TagFloat64:
		if off+9 > len(buf) {
			return 0, zerialize.Decodef("zera: view", zerialize.ErrMalformed, "truncated scalar at offset %d", off)
		}
		return off + 9, nil
	case TagString, TagBinary, TagAlignedBinary:
		_, end, err := span(buf, off)
		return end, err
	case TagArray, TagMap:
		if depth >= maxSkipDepth {
			return 0, zerialize.Decodef("zera: view", zerialize.ErrMalformed, "nesting deeper than %d", maxSkipDepth)
		}
		isMap := buf[off] == TagMap
		n, ok := readU32(buf, off+1)
		if !ok {
			return 0, zerialize.Decodef("zera: view", zerialize.ErrMalformed, "truncated count at offset %d", off+1)
		}
		pos := off + 5
		for i := 0; i < n; i++ {
			if isMap {
				kl, ok := readU32(buf, pos)
				if !ok || pos+4+kl > len(buf) {
					return 0, zerialize.Decodef("zera: view", zerialize.ErrMalformed, "truncated key at offset %d", pos)
				}
				pos += 4 + kl
			}
			next, err := skip(buf, pos, depth+1)
			if err != nil {
				return 0, err
			}
			pos = next
		}
		return pos, nil
	}
	return 0, badTag(buf[off], off)
}

// child returns the view at off after checking its tag.
func (v View) child(off int) (View, error) {
	if off >= len(v.buf) {
		return View{}, v.malformed("truncated at offset %d", off)
	}
	if tagKind[v.buf[off]] == kindInvalid {
		return View{}, badTag(v.buf[off], off)
	}
	return View{buf: v.buf, off: off}, nil
}

// ============================================================
// Scalars
// ============================================================

func (v View) AsBool() (bool, error) {
	switch v.Kind() {
	case zerialize.KindBool:
		return v.tag() == TagTrue, nil
	}
	return false, zerialize.Mismatch("zera: as_bool", "bool", v.Kind())
}

func (v View) number(op string) (zerialize.Number, error) {
	if len(v.buf) == 0 {
		return zerialize.Number{}, zerialize.Mismatch(op, "number", zerialize.KindNull)
	}
	t := v.tag()
	if t != TagInt64 && t != TagUint64 && t != TagFloat64 {
		return zerialize.Number{}, zerialize.Mismatch(op, "number", v.Kind())
	}
	u, ok := readU64(v.buf, v.off+1)
	if !ok {
		return zerialize.Number{}, v.malformed("truncated scalar at offset %d", v.off)
	}
	switch t {
	case TagInt64:
		return zerialize.SignedNumber(int64(u)), nil
	case TagUint64:
		return zerialize.UnsignedNumber(u), nil
	default:
		return zerialize.FloatNumber(math.Float64frombits(u)), nil
	}
}

func (v View) AsInt64() (int64, error) {
	n, err := v.number("zera: as_int64")
	if err != nil {
		return 0, err
	}
	return n.Int64("zera: as_int64")
}

func (v View) AsUint64() (uint64, error) {
	n, err := v.number("zera: as_uint64")
	if err != nil {
		return 0, err
	}
	return n.Uint64("zera: as_uint64")
}

func (v View) AsFloat64() (float64, error) {
	n, err := v.number("zera: as_float64")
	if err != nil {
		return 0, err
	}
	return n.Float64("zera: as_float64")
}

// AsStringBytes returns the string payload without copying.
func (v View) AsStringBytes() ([]byte, error) {
	if v.Kind() != zerialize.KindString {
		return nil, zerialize.Mismatch("zera: as_string", "string", v.Kind())
	}
	start, end, err := span(v.buf, v.off)
	if err != nil {
		return nil, err
	}
	return v.buf[start:end:end], nil
}

// AsString returns a copy of the string payload.
func (v View) AsString() (string, error) {
	b, err := v.AsStringBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// AsBinary returns the binary payload. The slice aliases the buffer.
func (v View) AsBinary() ([]byte, error) {
	if v.Kind() != zerialize.KindBinary {
		return nil, zerialize.Mismatch("zera: as_binary", "binary", v.Kind())
	}
	start, end, err := span(v.buf, v.off)
	if err != nil {
		return nil, err
	}
	return v.buf[start:end:end], nil
}

// BorrowsBinary reports that AsBinary aliases the buffer.
func (v View) BorrowsBinary() bool { return true }

// BinaryAlignment returns the largest power of two, up to MaxAlignment,
// dividing the address of the binary payload.
func (v View) BinaryAlignment() (int, error) {
	b, err := v.AsBinary()
	if err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return MaxAlignment, nil
	}
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	a := 1
	for a < MaxAlignment && addr%uintptr(a*2) == 0 {
		a *= 2
	}
	return a, nil
}

// ============================================================
// Containers
// ============================================================

func (v View) count(op string, want zerialize.Kind) (int, error) {
	if v.Kind() != want {
		return 0, zerialize.Mismatch(op, want.String(), v.Kind())
	}
	n, ok := readU32(v.buf, v.off+1)
	if !ok {
		return 0, v.malformed("truncated count at offset %d", v.off+1)
	}
	return n, nil
}

func (v View) Len() (int, error) {
	switch v.Kind() {
	case zerialize.KindArray, zerialize.KindMap:
		return v.count("zera: len", v.Kind())
	}
	return 0, zerialize.Mismatch("zera: len", "array or map", v.Kind())
}

// Index returns the i'th element, skipping earlier elements by their
// length prefixes only.
func (v View) Index(i int) (zerialize.View, error) {
	n, err := v.count("zera: index", zerialize.KindArray)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= n {
		return nil, zerialize.OutOfRange("zera: index", i, n)
	}
	pos := v.off + 5
	for j := 0; j < i; j++ {
		if pos, err = skip(v.buf, pos, 0); err != nil {
			return nil, zerialize.WithPathPrefix(err, zerialize.IndexSegment(j))
		}
	}
	return v.child(pos)
}

// entry reads the key at pos and returns it along with the value offset.
func (v View) entry(pos int) ([]byte, int, error) {
	kl, ok := readU32(v.buf, pos)
	if !ok || pos+4+kl > len(v.buf) {
		return nil, 0, v.malformed("truncated key at offset %d", pos)
	}
	return v.buf[pos+4 : pos+4+kl], pos + 4 + kl, nil
}

func (v View) find(op, k string) (View, bool, error) {
	n, err := v.count(op, zerialize.KindMap)
	if err != nil {
		return View{}, false, err
	}
	pos := v.off + 5
	for j := 0; j < n; j++ {
		key, valOff, err := v.entry(pos)
		if err != nil {
			return View{}, false, err
		}
		if string(key) == k {
			c, err := v.child(valOff)
			return c, err == nil, err
		}
		if pos, err = skip(v.buf, valOff, 0); err != nil {
			return View{}, false, err
		}
	}
	return View{}, false, nil
}

// Key returns the value under k, skipping other entries' values unread.
func (v View) Key(k string) (zerialize.View, error) {
	c, ok, err := v.find("zera: key", k)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, zerialize.NotFound("zera: key", k)
	}
	return c, nil
}

func (v View) Has(k string) bool {
	_, ok, _ := v.find("zera: has", k)
	return ok
}

func (v View) Keys() ([]string, error) {
	keys := make([]string, 0)
	err := v.entries("zera: keys", func(k []byte, _ View) error {
		keys = append(keys, string(k))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (v View) Elements(fn func(int, zerialize.View) error) error {
	n, err := v.count("zera: elements", zerialize.KindArray)
	if err != nil {
		return err
	}
	pos := v.off + 5
	for i := 0; i < n; i++ {
		c, err := v.child(pos)
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
	return v.entries("zera: entries", func(k []byte, c View) error {
		return fn(string(k), c)
	})
}

func (v View) entries(op string, fn func([]byte, View) error) error {
	n, err := v.count(op, zerialize.KindMap)
	if err != nil {
		return err
	}
	pos := v.off + 5
	for j := 0; j < n; j++ {
		key, valOff, err := v.entry(pos)
		if err != nil {
			return err
		}
		c, err := v.child(valOff)
		if err != nil {
			return zerialize.WithPathPrefix(err, zerialize.KeySegment(string(key)))
		}
		if err := fn(key, c); err != nil {
			return err
		}
		if pos, err = skip(v.buf, valOff, 0); err != nil {
			return zerialize.WithPathPrefix(err, zerialize.KeySegment(string(key)))
		}
	}
	return nil
}

// String renders the value for diagnostics.
func (v View) String() string {
	return zerialize.Dump(v)
}
