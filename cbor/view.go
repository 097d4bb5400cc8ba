package cbor

import (
	"encoding/binary"
	"math"

	fxcbor "github.com/fxamacker/cbor/v2"

	"github.com/Neumenon/zerialize/zerialize"
)

const maxSkipDepth = 10000

// Major types.
const (
	majorUint   = 0
	majorNegInt = 1
	majorBytes  = 2
	majorText   = 3
	majorArray  = 4
	majorMap    = 5
	majorTag    = 6
	majorSimple = 7
)

const breakCode = 0xff

// head is one decoded CBOR head.
type head struct {
	major byte
	ai    byte   // Additional information
	arg   uint64 // Argument (value, length or count)
	size  int    // Head bytes
	indef bool
}

func malformed(format string, args ...interface{}) error {
	return zerialize.Decodef("cbor: view", zerialize.ErrMalformed, format, args...)
}

func readHead(buf []byte, off int) (head, error) {
	if off >= len(buf) {
		return head{}, malformed("truncated at offset %d", off)
	}
	b := buf[off]
	h := head{major: b >> 5, ai: b & 0x1f, size: 1}
	switch {
	case h.ai < 24:
		h.arg = uint64(h.ai)
		return h, nil
	case h.ai <= 27:
		n := 1 << (h.ai - 24)
		if off+1+n > len(buf) {
			return head{}, malformed("truncated head at offset %d", off)
		}
		switch n {
		case 1:
			h.arg = uint64(buf[off+1])
		case 2:
			h.arg = uint64(binary.BigEndian.Uint16(buf[off+1:]))
		case 4:
			h.arg = uint64(binary.BigEndian.Uint32(buf[off+1:]))
		case 8:
			h.arg = binary.BigEndian.Uint64(buf[off+1:])
		}
		h.size += n
		return h, nil
	case h.ai == 31:
		switch h.major {
		case majorBytes, majorText, majorArray, majorMap:
			h.indef = true
			return h, nil
		}
	}
	return head{}, malformed("invalid head 0x%02x at offset %d", b, off)
}

// item resolves the data item at off: leading tags are skipped and the
// head is checked to describe a value of the data model.
func item(buf []byte, off int) (int, head, error) {
	for {
		h, err := readHead(buf, off)
		if err != nil {
			return 0, head{}, err
		}
		switch h.major {
		case majorTag:
			off += h.size
			continue
		case majorSimple:
			switch {
			case h.ai >= 20 && h.ai <= 23, h.ai >= 25 && h.ai <= 27:
			default:
				return 0, head{}, malformed("unsupported simple value %d at offset %d", h.arg, off)
			}
		}
		return off, h, nil
	}
}

func kindOf(h head) zerialize.Kind {
	switch h.major {
	case majorUint:
		if h.arg > math.MaxInt64 {
			return zerialize.KindUint64
		}
		return zerialize.KindInt64
	case majorNegInt:
		return zerialize.KindInt64
	case majorBytes:
		return zerialize.KindBinary
	case majorText:
		return zerialize.KindString
	case majorArray:
		return zerialize.KindArray
	case majorMap:
		return zerialize.KindMap
	case majorSimple:
		switch h.ai {
		case 20, 21:
			return zerialize.KindBool
		case 25, 26, 27:
			return zerialize.KindFloat64
		}
	}
	return zerialize.KindNull
}

// skip returns the offset just past the item at off.
func skip(buf []byte, off int, depth int) (int, error) {
	if depth >= maxSkipDepth {
		return 0, malformed("nesting deeper than %d", maxSkipDepth)
	}
	off, h, err := item(buf, off)
	if err != nil {
		return 0, err
	}
	pos := off + h.size
	switch h.major {
	case majorBytes, majorText:
		if h.indef {
			return skipChunks(buf, pos, h.major)
		}
		end := pos + int(h.arg)
		if h.arg > uint64(len(buf)) || end > len(buf) {
			return 0, malformed("string of %d bytes at offset %d overruns buffer", h.arg, pos)
		}
		return end, nil
	case majorArray, majorMap:
		per := 1
		if h.major == majorMap {
			per = 2
		}
		if h.indef {
			for {
				if pos >= len(buf) {
					return 0, malformed("missing break at offset %d", pos)
				}
				if buf[pos] == breakCode {
					return pos + 1, nil
				}
				for i := 0; i < per; i++ {
					if pos, err = skip(buf, pos, depth+1); err != nil {
						return 0, err
					}
				}
			}
		}
		if h.arg > uint64(len(buf)) {
			return 0, malformed("count %d at offset %d overruns buffer", h.arg, off)
		}
		for i := 0; i < int(h.arg)*per; i++ {
			if pos, err = skip(buf, pos, depth+1); err != nil {
				return 0, err
			}
		}
		return pos, nil
	}
	return pos, nil
}

// skipChunks skips the definite chunks of an indefinite string.
func skipChunks(buf []byte, pos int, major byte) (int, error) {
	for {
		if pos >= len(buf) {
			return 0, malformed("missing break at offset %d", pos)
		}
		if buf[pos] == breakCode {
			return pos + 1, nil
		}
		h, err := readHead(buf, pos)
		if err != nil {
			return 0, err
		}
		if h.major != major || h.indef {
			return 0, malformed("bad chunk at offset %d", pos)
		}
		end := pos + h.size + int(h.arg)
		if h.arg > uint64(len(buf)) || end > len(buf) {
			return 0, malformed("chunk at offset %d overruns buffer", pos)
		}
		pos = end
	}
}

// View is a lazy view of one CBOR data item.
type View struct {
	buf []byte
	off int // Offset of the head, after any tags
	h   head
}

// NewView returns a view of the first data item in data.
func NewView(data []byte) (View, error) {
	return at(data, 0)
}

func at(buf []byte, off int) (View, error) {
	off, h, err := item(buf, off)
	if err != nil {
		return View{}, err
	}
	return View{buf: buf, off: off, h: h}, nil
}

var validateMode = func() fxcbor.DecMode {
	dm, err := fxcbor.DecOptions{
		MaxNestedLevels:  65535,
		MaxArrayElements: math.MaxInt32,
		MaxMapPairs:      math.MaxInt32,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// Validate checks that data is exactly one well-formed CBOR item whose maps
// have text keys and whose simple values are in the data model.
func Validate(data []byte) error {
	if err := validateMode.Wellformed(data); err != nil {
		return malformed("%v", err)
	}
	v, err := NewView(data)
	if err != nil {
		return err
	}
	return validate(v, 0)
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

// Kind returns the kind of the item. Undefined reads as null.
func (v View) Kind() zerialize.Kind {
	if len(v.buf) == 0 {
		return zerialize.KindNull
	}
	return kindOf(v.h)
}

// raw returns the encoded bytes of the item, tags excluded.
func (v View) raw() ([]byte, error) {
	end, err := skip(v.buf, v.off, 0)
	if err != nil {
		return nil, err
	}
	return v.buf[v.off:end], nil
}

// ============================================================
// Scalars
// ============================================================

func (v View) AsBool() (bool, error) {
	if v.Kind() != zerialize.KindBool {
		return false, zerialize.Mismatch("cbor: as_bool", "bool", v.Kind())
	}
	return v.h.ai == 21, nil
}

func (v View) number(op string) (zerialize.Number, error) {
	switch v.Kind() {
	case zerialize.KindInt64, zerialize.KindUint64:
		if v.h.major == majorUint {
			return zerialize.IntegerNumber(v.h.arg), nil
		}
		if v.h.arg > math.MaxInt64 {
			return zerialize.Number{}, zerialize.Decodef(op, zerialize.ErrRange, "-1-%d overflows int64", v.h.arg)
		}
		return zerialize.SignedNumber(-1 - int64(v.h.arg)), nil
	case zerialize.KindFloat64:
		raw, err := v.raw()
		if err != nil {
			return zerialize.Number{}, err
		}
		var f float64
		if err := fxcbor.Unmarshal(raw, &f); err != nil {
			return zerialize.Number{}, zerialize.Decodef(op, zerialize.ErrMalformed, "%v", err)
		}
		return zerialize.FloatNumber(f), nil
	}
	return zerialize.Number{}, zerialize.Mismatch(op, "number", v.Kind())
}

func (v View) AsInt64() (int64, error) {
	n, err := v.number("cbor: as_int64")
	if err != nil {
		return 0, err
	}
	return n.Int64("cbor: as_int64")
}

func (v View) AsUint64() (uint64, error) {
	n, err := v.number("cbor: as_uint64")
	if err != nil {
		return 0, err
	}
	return n.Uint64("cbor: as_uint64")
}

func (v View) AsFloat64() (float64, error) {
	n, err := v.number("cbor: as_float64")
	if err != nil {
		return 0, err
	}
	return n.Float64("cbor: as_float64")
}

// definite returns the payload of a definite-length string.
func (v View) definite() ([]byte, error) {
	start := v.off + v.h.size
	end := start + int(v.h.arg)
	if v.h.arg > uint64(len(v.buf)) || end > len(v.buf) {
		return nil, malformed("string of %d bytes at offset %d overruns buffer", v.h.arg, start)
	}
	return v.buf[start:end:end], nil
}

func (v View) AsString() (string, error) {
	if v.Kind() != zerialize.KindString {
		return "", zerialize.Mismatch("cbor: as_string", "string", v.Kind())
	}
	if !v.h.indef {
		b, err := v.definite()
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	raw, err := v.raw()
	if err != nil {
		return "", err
	}
	var s string
	if err := fxcbor.Unmarshal(raw, &s); err != nil {
		return "", zerialize.Decodef("cbor: as_string", zerialize.ErrMalformed, "%v", err)
	}
	return s, nil
}

// AsBinary returns the byte string. Definite-length payloads alias the
// buffer; indefinite-length ones are joined into a copy.
func (v View) AsBinary() ([]byte, error) {
	if v.Kind() != zerialize.KindBinary {
		return nil, zerialize.Mismatch("cbor: as_binary", "binary", v.Kind())
	}
	if !v.h.indef {
		return v.definite()
	}
	raw, err := v.raw()
	if err != nil {
		return nil, err
	}
	b := []byte{}
	if err := fxcbor.Unmarshal(raw, &b); err != nil {
		return nil, zerialize.Decodef("cbor: as_binary", zerialize.ErrMalformed, "%v", err)
	}
	return b, nil
}

// BorrowsBinary reports whether AsBinary aliases the buffer, which holds
// for definite-length byte strings.
func (v View) BorrowsBinary() bool {
	return v.Kind() == zerialize.KindBinary && !v.h.indef
}

// ============================================================
// Containers
// ============================================================

func (v View) isContainer(op string, kind zerialize.Kind) error {
	if v.Kind() != kind {
		return zerialize.Mismatch(op, kind.String(), v.Kind())
	}
	return nil
}

// each walks the items of an array (one per step) or map (key then value).
func (v View) each(fn func(i int, pos int) (next int, more bool, err error)) error {
	pos := v.off + v.h.size
	for i := 0; v.h.indef || uint64(i) < v.h.arg; i++ {
		if v.h.indef {
			if pos >= len(v.buf) {
				return malformed("missing break at offset %d", pos)
			}
			if v.buf[pos] == breakCode {
				return nil
			}
		}
		next, more, err := fn(i, pos)
		if err != nil || !more {
			return err
		}
		pos = next
	}
	return nil
}

func (v View) Len() (int, error) {
	switch v.Kind() {
	case zerialize.KindArray, zerialize.KindMap:
	default:
		return 0, zerialize.Mismatch("cbor: len", "array or map", v.Kind())
	}
	if !v.h.indef {
		if v.h.arg > math.MaxInt32 {
			return 0, malformed("count %d too large", v.h.arg)
		}
		return int(v.h.arg), nil
	}
	n := 0
	err := v.each(func(i int, pos int) (int, bool, error) {
		next, err := v.skipEntry(pos)
		n++
		return next, true, err
	})
	return n, err
}

// skipEntry skips one array element or one map entry at pos.
func (v View) skipEntry(pos int) (int, error) {
	next, err := skip(v.buf, pos, 0)
	if err != nil || v.h.major != majorMap {
		return next, err
	}
	return skip(v.buf, next, 0)
}

func (v View) Index(i int) (zerialize.View, error) {
	if err := v.isContainer("cbor: index", zerialize.KindArray); err != nil {
		return nil, err
	}
	var (
		out   View
		found bool
		seen  int
	)
	if i >= 0 {
		err := v.each(func(j int, pos int) (int, bool, error) {
			seen = j + 1
			if j == i {
				c, err := at(v.buf, pos)
				out, found = c, err == nil
				return 0, false, err
			}
			next, err := skip(v.buf, pos, 0)
			if err != nil {
				return 0, false, zerialize.WithPathPrefix(err, zerialize.IndexSegment(j))
			}
			return next, true, nil
		})
		if err != nil {
			return nil, err
		}
	}
	if !found {
		n := seen
		if !v.h.indef {
			n = int(v.h.arg)
		}
		return nil, zerialize.OutOfRange("cbor: index", i, n)
	}
	return out, nil
}

// key decodes the map key at pos and returns it with the value offset.
func (v View) key(pos int) (string, int, error) {
	kv, err := at(v.buf, pos)
	if err != nil {
		return "", 0, err
	}
	if kv.Kind() != zerialize.KindString {
		return "", 0, zerialize.Decodef("cbor: view", zerialize.ErrTypeMismatch, "map key at offset %d is %s, not text", pos, kv.Kind())
	}
	k, err := kv.AsString()
	if err != nil {
		return "", 0, err
	}
	valOff, err := skip(v.buf, pos, 0)
	if err != nil {
		return "", 0, err
	}
	return k, valOff, nil
}

func (v View) entries(op string, fn func(k string, valOff int) (bool, error)) error {
	if err := v.isContainer(op, zerialize.KindMap); err != nil {
		return err
	}
	return v.each(func(_ int, pos int) (int, bool, error) {
		k, valOff, err := v.key(pos)
		if err != nil {
			return 0, false, err
		}
		more, err := fn(k, valOff)
		if err != nil || !more {
			return 0, false, err
		}
		next, err := skip(v.buf, valOff, 0)
		if err != nil {
			return 0, false, zerialize.WithPathPrefix(err, zerialize.KeySegment(k))
		}
		return next, true, nil
	})
}

func (v View) find(op, k string) (View, bool, error) {
	var (
		out   View
		found bool
	)
	err := v.entries(op, func(key string, valOff int) (bool, error) {
		if key != k {
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
	c, ok, err := v.find("cbor: key", k)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, zerialize.NotFound("cbor: key", k)
	}
	return c, nil
}

func (v View) Has(k string) bool {
	_, ok, _ := v.find("cbor: has", k)
	return ok
}

func (v View) Keys() ([]string, error) {
	keys := make([]string, 0)
	err := v.entries("cbor: keys", func(k string, _ int) (bool, error) {
		keys = append(keys, k)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (v View) Elements(fn func(int, zerialize.View) error) error {
	if err := v.isContainer("cbor: elements", zerialize.KindArray); err != nil {
		return err
	}
	return v.each(func(i int, pos int) (int, bool, error) {
		c, err := at(v.buf, pos)
		if err != nil {
			return 0, false, zerialize.WithPathPrefix(err, zerialize.IndexSegment(i))
		}
		if err := fn(i, c); err != nil {
			return 0, false, err
		}
		next, err := skip(v.buf, pos, 0)
		if err != nil {
			return 0, false, zerialize.WithPathPrefix(err, zerialize.IndexSegment(i))
		}
		return next, true, nil
	})
}

func (v View) Entries(fn func(string, zerialize.View) error) error {
	return v.entries("cbor: entries", func(k string, valOff int) (bool, error) {
		c, err := at(v.buf, valOff)
		if err != nil {
			return false, zerialize.WithPathPrefix(err, zerialize.KeySegment(k))
		}
		return true, fn(k, c)
	})
}

// String renders the item for diagnostics.
func (v View) String() string {
	return zerialize.Dump(v)
}
