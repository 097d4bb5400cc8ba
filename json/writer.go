// Package json implements the tree-text backend: compact (or indented)
// JSON output and a lazy reader built on gjson.
//
// JSON has no binary type. Binary values are written as the blob marker
// ["~b", "<base64>", "base64"] and the reader reports that marker as a
// binary value, so blobs survive a round trip. An ordinary array that
// happens to spell the marker reads back as binary too; it stays reachable
// through Len, Index and Elements. Plain strings never read as binary. Floats always carry a
// fraction or exponent so they read back as floats; NaN and infinities
// cannot be written.
package json

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Neumenon/zerialize/zerialize"
)

// MaxSafeInteger is the largest integer every JSON consumer reads exactly.
const MaxSafeInteger = 1<<53 - 1

// Option configures a Root.
type Option func(*Root)

// WithSafeIntegers rejects integers outside ±(2^53-1) with ErrRange.
func WithSafeIntegers() Option {
	return func(r *Root) {
		r.safeInts = true
	}
}

// WithIndent pretty-prints with indent repeated once per nesting level.
func WithIndent(indent string) Option {
	return func(r *Root) {
		r.indent = indent
	}
}

// Root owns a JSON output buffer and is its Writer.
type Root struct {
	buf      []byte
	st       zerialize.Stack
	safeInts bool
	indent   string
	done     bool
	out      []byte
}

// NewRoot returns an empty root.
func NewRoot(opts ...Option) *Root {
	r := &Root{st: zerialize.Stack{Name: "json"}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Writer returns r.
func (r *Root) Writer() zerialize.Writer { return r }

// Finish returns the encoded text. An empty session encodes null.
func (r *Root) Finish() ([]byte, error) {
	if r.done {
		return r.out, r.st.Err()
	}
	if err := r.st.Finish(); err != nil {
		return nil, err
	}
	r.done = true
	if r.st.Empty() {
		r.out = []byte("null")
	} else {
		r.out = r.buf
	}
	return r.out, nil
}

// NativeBinary reports that JSON has no binary type.
func (r *Root) NativeBinary() bool { return false }

// value runs the nesting checks and writes the separator for an array
// element.
func (r *Root) value(op string) error {
	if r.done {
		return r.st.Failf(op, zerialize.ErrNesting, "write after finish")
	}
	idx, err := r.st.Value(op)
	if err != nil {
		return err
	}
	if top := r.st.Top(); top != nil && top.Kind == zerialize.KindArray {
		if idx > 0 {
			r.buf = append(r.buf, ',')
		}
		r.newline(r.st.Depth())
	}
	return nil
}

func (r *Root) newline(depth int) {
	if r.indent == "" {
		return
	}
	r.buf = append(r.buf, '\n')
	for i := 0; i < depth; i++ {
		r.buf = append(r.buf, r.indent...)
	}
}

func (r *Root) Null() error {
	if err := r.value("null"); err != nil {
		return err
	}
	r.buf = append(r.buf, "null"...)
	return nil
}

func (r *Root) Bool(b bool) error {
	if err := r.value("bool"); err != nil {
		return err
	}
	r.buf = strconv.AppendBool(r.buf, b)
	return nil
}

func (r *Root) Int64(i int64) error {
	if r.safeInts && (i > MaxSafeInteger || i < -MaxSafeInteger) {
		return r.st.Failf("int64", zerialize.ErrRange, "%d exceeds the safe integer range", i)
	}
	if err := r.value("int64"); err != nil {
		return err
	}
	r.buf = strconv.AppendInt(r.buf, i, 10)
	return nil
}

func (r *Root) Uint64(u uint64) error {
	if r.safeInts && u > MaxSafeInteger {
		return r.st.Failf("uint64", zerialize.ErrRange, "%d exceeds the safe integer range", u)
	}
	if err := r.value("uint64"); err != nil {
		return err
	}
	r.buf = strconv.AppendUint(r.buf, u, 10)
	return nil
}

func (r *Root) Float64(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return r.st.Failf("float64", zerialize.ErrRange, "%v has no JSON representation", f)
	}
	if err := r.value("float64"); err != nil {
		return err
	}
	r.buf = appendFloat(r.buf, f)
	return nil
}

func (r *Root) String(s string) error {
	if err := r.value("string"); err != nil {
		return err
	}
	r.buf = appendQuoted(r.buf, s)
	return nil
}

// Binary writes b as the blob marker.
func (r *Root) Binary(b []byte) error {
	return zerialize.WriteBlob(r, b)
}

func (r *Root) BeginArray(hint int) error {
	if err := r.value("begin_array"); err != nil {
		return err
	}
	r.buf = append(r.buf, '[')
	r.st.Push(zerialize.KindArray, 0)
	return nil
}

func (r *Root) EndArray() error {
	f, err := r.st.Pop(zerialize.KindArray)
	if err != nil {
		return err
	}
	if f.Count > 0 {
		r.newline(r.st.Depth())
	}
	r.buf = append(r.buf, ']')
	return nil
}

func (r *Root) BeginMap(hint int) error {
	if err := r.value("begin_map"); err != nil {
		return err
	}
	r.buf = append(r.buf, '{')
	r.st.Push(zerialize.KindMap, 0)
	return nil
}

func (r *Root) Key(k string) error {
	if r.done {
		return r.st.Failf("key", zerialize.ErrNesting, "write after finish")
	}
	idx, err := r.st.Key(k)
	if err != nil {
		return err
	}
	if idx > 0 {
		r.buf = append(r.buf, ',')
	}
	r.newline(r.st.Depth())
	r.buf = appendQuoted(r.buf, k)
	r.buf = append(r.buf, ':')
	if r.indent != "" {
		r.buf = append(r.buf, ' ')
	}
	return nil
}

func (r *Root) EndMap() error {
	f, err := r.st.Pop(zerialize.KindMap)
	if err != nil {
		return err
	}
	if f.Count > 0 {
		r.newline(r.st.Depth())
	}
	r.buf = append(r.buf, '}')
	return nil
}

// ============================================================
// Scalar formatting
// ============================================================

// appendFloat writes the shortest representation that reads back to f,
// keeping a fraction or exponent so the value stays a float.
func appendFloat(buf []byte, f float64) []byte {
	start := len(buf)
	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	buf = strconv.AppendFloat(buf, f, format, -1, 64)
	if !strings.ContainsAny(string(buf[start:]), ".e") {
		buf = append(buf, ".0"...)
	}
	return buf
}

const hexDigits = "0123456789abcdef"

// appendQuoted writes s as a JSON string. Invalid UTF-8 is replaced with
// U+FFFD; U+2028 and U+2029 are escaped so the output is also valid
// JavaScript.
func appendQuoted(buf []byte, s string) []byte {
	buf = append(buf, '"')
	start := 0
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			if c >= 0x20 && c != '"' && c != '\\' {
				i++
				continue
			}
			buf = append(buf, s[start:i]...)
			switch c {
			case '"', '\\':
				buf = append(buf, '\\', c)
			case '\n':
				buf = append(buf, '\\', 'n')
			case '\r':
				buf = append(buf, '\\', 'r')
			case '\t':
				buf = append(buf, '\\', 't')
			case '\b':
				buf = append(buf, '\\', 'b')
			case '\f':
				buf = append(buf, '\\', 'f')
			default:
				buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xF])
			}
			i++
			start = i
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf = append(buf, s[start:i]...)
			buf = append(buf, "\ufffd"...)
			i += size
			start = i
			continue
		}
		if r == '\u2028' || r == '\u2029' {
			buf = append(buf, s[start:i]...)
			buf = append(buf, '\\', 'u', '2', '0', '2', hexDigits[r&0xF])
			i += size
			start = i
			continue
		}
		i += size
	}
	buf = append(buf, s[start:]...)
	return append(buf, '"')
}
