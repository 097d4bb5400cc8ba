package zerialize

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ============================================================
// Equality
// ============================================================

// Equal reports deep structural equality of two views, independent of the
// formats backing them. Integers compare by value across signed and
// unsigned kinds, map entry order is ignored, and any two NaNs are equal.
func Equal(a, b View) bool {
	ka, kb := a.Kind(), b.Kind()
	if ka.IsInteger() && kb.IsInteger() {
		return equalIntegers(a, b)
	}
	if ka != kb {
		return false
	}
	switch ka {
	case KindNull:
		return true
	case KindBool:
		x, err1 := a.AsBool()
		y, err2 := b.AsBool()
		return err1 == nil && err2 == nil && x == y
	case KindFloat64:
		x, err1 := a.AsFloat64()
		y, err2 := b.AsFloat64()
		return err1 == nil && err2 == nil && (x == y || math.IsNaN(x) && math.IsNaN(y))
	case KindString:
		x, err1 := a.AsString()
		y, err2 := b.AsString()
		return err1 == nil && err2 == nil && x == y
	case KindBinary:
		x, err1 := a.AsBinary()
		y, err2 := b.AsBinary()
		return err1 == nil && err2 == nil && bytes.Equal(x, y)
	case KindArray:
		return equalArrays(a, b)
	case KindMap:
		return equalMaps(a, b)
	}
	return false
}

func equalIntegers(a, b View) bool {
	ai, aerr := a.AsInt64()
	bi, berr := b.AsInt64()
	if aerr == nil && berr == nil {
		return ai == bi
	}
	au, aerr := a.AsUint64()
	bu, berr := b.AsUint64()
	return aerr == nil && berr == nil && au == bu
}

func equalArrays(a, b View) bool {
	n, err1 := a.Len()
	m, err2 := b.Len()
	if err1 != nil || err2 != nil || n != m {
		return false
	}
	err := a.Elements(func(i int, x View) error {
		y, err := b.Index(i)
		if err != nil {
			return err
		}
		if !Equal(x, y) {
			return errNotEqual
		}
		return nil
	})
	return err == nil
}

func equalMaps(a, b View) bool {
	n, err1 := a.Len()
	m, err2 := b.Len()
	if err1 != nil || err2 != nil || n != m {
		return false
	}
	err := a.Entries(func(k string, x View) error {
		y, err := b.Key(k)
		if err != nil {
			return err
		}
		if !Equal(x, y) {
			return errNotEqual
		}
		return nil
	})
	return err == nil
}

var errNotEqual = errors.New("zerialize: not equal")

// ============================================================
// Materialization and navigation
// ============================================================

// Materialize copies v into an owning Value that no longer references the
// source buffer.
func Materialize(v View) (*Value, error) {
	if val, ok := v.(*Value); ok {
		return val, nil
	}
	switch v.Kind() {
	case KindNull:
		return Null(), nil
	case KindBool:
		b, err := v.AsBool()
		if err != nil {
			return nil, err
		}
		return Bool(b), nil
	case KindInt64:
		i, err := v.AsInt64()
		if err != nil {
			return nil, err
		}
		return Int(i), nil
	case KindUint64:
		u, err := v.AsUint64()
		if err != nil {
			return nil, err
		}
		return Uint(u), nil
	case KindFloat64:
		f, err := v.AsFloat64()
		if err != nil {
			return nil, err
		}
		return Float(f), nil
	case KindString:
		s, err := v.AsString()
		if err != nil {
			return nil, err
		}
		return Str(strings.Clone(s)), nil
	case KindBinary:
		b, err := v.AsBinary()
		if err != nil {
			return nil, err
		}
		return Bytes(bytes.Clone(b)), nil
	case KindArray:
		n, err := v.Len()
		if err != nil {
			return nil, err
		}
		items := make([]*Value, 0, n)
		err = v.Elements(func(i int, e View) error {
			m, err := Materialize(e)
			if err != nil {
				return WithPathPrefix(err, IndexSegment(i))
			}
			items = append(items, m)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return Array(items...), nil
	case KindMap:
		n, err := v.Len()
		if err != nil {
			return nil, err
		}
		out := &Value{kind: KindMap, entries: make([]Entry, 0, n)}
		err = v.Entries(func(k string, e View) error {
			m, err := Materialize(e)
			if err != nil {
				return WithPathPrefix(err, KeySegment(k))
			}
			return out.Insert(strings.Clone(k), m)
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, Decodef("zerialize: materialize", ErrMalformed, "unknown kind %d", v.Kind())
}

// At navigates from v along path, whose elements are string keys or int
// indexes. Errors carry the path up to the failing step.
func At(v View, path ...any) (View, error) {
	cur := v
	prefix := ""
	for _, p := range path {
		var (
			next View
			err  error
			seg  string
		)
		switch s := p.(type) {
		case string:
			next, err = cur.Key(s)
			seg = KeySegment(s)
		case int:
			next, err = cur.Index(s)
			seg = IndexSegment(s)
		default:
			return nil, Decodef("zerialize: at", ErrTypeMismatch, "path element %T", p)
		}
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) && de.Path == seg {
				// The step already named itself.
				return nil, WithPathPrefix(err, prefix)
			}
			return nil, WithPathPrefix(err, prefix+seg)
		}
		prefix += seg
		cur = next
	}
	return cur, nil
}

// ============================================================
// Debug rendering
// ============================================================

// Dump renders v as compact text for diagnostics. Binary values are shown
// as hex, truncated when long. The output is not an encoding.
func Dump(v View) string {
	var sb strings.Builder
	dump(&sb, v)
	return sb.String()
}

const dumpBinaryLimit = 32

func dump(sb *strings.Builder, v View) {
	switch v.Kind() {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		b, _ := v.AsBool()
		sb.WriteString(strconv.FormatBool(b))
	case KindInt64:
		i, _ := v.AsInt64()
		sb.WriteString(strconv.FormatInt(i, 10))
	case KindUint64:
		u, _ := v.AsUint64()
		sb.WriteString(strconv.FormatUint(u, 10))
		sb.WriteByte('u')
	case KindFloat64:
		f, _ := v.AsFloat64()
		sb.WriteString(FormatFloat(f))
	case KindString:
		s, _ := v.AsString()
		sb.WriteString(strconv.Quote(s))
	case KindBinary:
		b, _ := v.AsBinary()
		sb.WriteString("b<")
		if len(b) > dumpBinaryLimit {
			sb.WriteString(hex.EncodeToString(b[:dumpBinaryLimit]))
			fmt.Fprintf(sb, "...%d bytes", len(b))
		} else {
			sb.WriteString(hex.EncodeToString(b))
		}
		sb.WriteByte('>')
	case KindArray:
		sb.WriteByte('[')
		_ = v.Elements(func(i int, e View) error {
			if i > 0 {
				sb.WriteString(", ")
			}
			dump(sb, e)
			return nil
		})
		sb.WriteByte(']')
	case KindMap:
		sb.WriteByte('{')
		first := true
		_ = v.Entries(func(k string, e View) error {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(strconv.Quote(k))
			sb.WriteString(": ")
			dump(sb, e)
			return nil
		})
		sb.WriteByte('}')
	default:
		sb.WriteString("<invalid>")
	}
}

// FormatFloat renders f so that it always reads back as a float: integral
// values keep a ".0" and non-finite values use NaN, +Inf and -Inf.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// SortedKeys returns a map view's keys in byte order.
func SortedKeys(v View) ([]string, error) {
	keys, err := v.Keys()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
