package json

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Neumenon/zerialize/zerialize"
)

// View is a lazy view of one JSON value. Extraction copies: text has no
// bytes to alias for unescaped strings or decoded blobs.
type View struct {
	res gjson.Result
}

// NewView validates data and returns a view of its root value.
func NewView(data []byte) (View, error) {
	if !gjson.ValidBytes(data) {
		return View{}, zerialize.Decodef("json: view", zerialize.ErrMalformed, "invalid JSON")
	}
	return View{res: gjson.ParseBytes(data)}, nil
}

// Result exposes the underlying gjson result.
func (v View) Result() gjson.Result { return v.res }

// Kind classifies the value. Integers without a fraction or exponent are
// Int64 when they fit, Uint64 when they fit only unsigned, and Float64
// otherwise. A blob marker array is Binary.
func (v View) Kind() zerialize.Kind {
	switch v.res.Type {
	case gjson.False, gjson.True:
		return zerialize.KindBool
	case gjson.Number:
		return numberKind(v.res.Raw)
	case gjson.String:
		return zerialize.KindString
	case gjson.JSON:
		if v.isObject() {
			return zerialize.KindMap
		}
		if _, ok := v.blobPayload(); ok {
			return zerialize.KindBinary
		}
		return zerialize.KindArray
	}
	return zerialize.KindNull
}

func (v View) isObject() bool {
	return strings.HasPrefix(v.res.Raw, "{")
}

func numberKind(raw string) zerialize.Kind {
	if strings.ContainsAny(raw, ".eE") {
		return zerialize.KindFloat64
	}
	if _, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return zerialize.KindInt64
	}
	if _, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return zerialize.KindUint64
	}
	return zerialize.KindFloat64
}

// blobPayload returns the base64 text of a blob marker array.
func (v View) blobPayload() (string, bool) {
	var parts [3]gjson.Result
	n := 0
	v.res.ForEach(func(_, e gjson.Result) bool {
		if n == len(parts) || e.Type != gjson.String {
			n = -1
			return false
		}
		parts[n] = e
		n++
		return true
	})
	if n != 3 || !zerialize.IsBlobMarker(parts[0].Str, parts[2].Str) {
		return "", false
	}
	return parts[1].Str, true
}

// ============================================================
// Scalars
// ============================================================

func (v View) AsBool() (bool, error) {
	switch v.res.Type {
	case gjson.True:
		return true, nil
	case gjson.False:
		return false, nil
	}
	return false, zerialize.Mismatch("json: as_bool", "bool", v.Kind())
}

func (v View) number(op string) (zerialize.Number, error) {
	if v.res.Type != gjson.Number {
		return zerialize.Number{}, zerialize.Mismatch(op, "number", v.Kind())
	}
	raw := v.res.Raw
	switch numberKind(raw) {
	case zerialize.KindInt64:
		i, _ := strconv.ParseInt(raw, 10, 64)
		return zerialize.SignedNumber(i), nil
	case zerialize.KindUint64:
		u, _ := strconv.ParseUint(raw, 10, 64)
		return zerialize.UnsignedNumber(u), nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return zerialize.Number{}, zerialize.Decodef(op, zerialize.ErrRange, "%s: %v", raw, err)
	}
	return zerialize.FloatNumber(f), nil
}

func (v View) AsInt64() (int64, error) {
	n, err := v.number("json: as_int64")
	if err != nil {
		return 0, err
	}
	return n.Int64("json: as_int64")
}

func (v View) AsUint64() (uint64, error) {
	n, err := v.number("json: as_uint64")
	if err != nil {
		return 0, err
	}
	return n.Uint64("json: as_uint64")
}

func (v View) AsFloat64() (float64, error) {
	n, err := v.number("json: as_float64")
	if err != nil {
		return 0, err
	}
	return n.Float64("json: as_float64")
}

func (v View) AsString() (string, error) {
	if v.res.Type != gjson.String {
		return "", zerialize.Mismatch("json: as_string", "string", v.Kind())
	}
	return v.res.Str, nil
}

// AsBinary decodes a blob marker. Plain strings are not binary; decode
// them with zerialize.DecodeBase64 when a producer omits the marker.
func (v View) AsBinary() ([]byte, error) {
	if v.res.Type == gjson.JSON {
		if payload, ok := v.blobPayload(); ok {
			return zerialize.DecodeBase64(payload)
		}
	}
	return nil, zerialize.Mismatch("json: as_binary", "binary", v.Kind())
}

// ============================================================
// Containers
// ============================================================

// isArray includes blob markers: Kind reports them as Binary, but they stay
// indexable as the three-string arrays they are on the wire.
func (v View) isArray() bool {
	return v.res.Type == gjson.JSON && !v.isObject()
}

func (v View) Len() (int, error) {
	if v.res.Type == gjson.JSON {
		n := 0
		v.res.ForEach(func(_, _ gjson.Result) bool {
			n++
			return true
		})
		return n, nil
	}
	return 0, zerialize.Mismatch("json: len", "array or map", v.Kind())
}

func (v View) Index(i int) (zerialize.View, error) {
	if !v.isArray() {
		return nil, zerialize.Mismatch("json: index", "array", v.Kind())
	}
	var (
		out   gjson.Result
		found bool
		n     int
	)
	v.res.ForEach(func(_, e gjson.Result) bool {
		if n == i {
			out, found = e, true
		}
		n++
		return !found
	})
	if i < 0 || !found {
		return nil, zerialize.OutOfRange("json: index", i, n)
	}
	return View{res: out}, nil
}

// find returns the first entry under k. Duplicate keys in foreign input
// resolve to the first occurrence.
func (v View) find(k string) (gjson.Result, bool) {
	var (
		out   gjson.Result
		found bool
	)
	v.res.ForEach(func(key, e gjson.Result) bool {
		if key.Str == k {
			out, found = e, true
			return false
		}
		return true
	})
	return out, found
}

func (v View) Key(k string) (zerialize.View, error) {
	if v.res.Type != gjson.JSON || !v.isObject() {
		return nil, zerialize.Mismatch("json: key", "map", v.Kind())
	}
	e, ok := v.find(k)
	if !ok {
		return nil, zerialize.NotFound("json: key", k)
	}
	return View{res: e}, nil
}

func (v View) Has(k string) bool {
	if v.res.Type != gjson.JSON || !v.isObject() {
		return false
	}
	_, ok := v.find(k)
	return ok
}

func (v View) Keys() ([]string, error) {
	if v.res.Type != gjson.JSON || !v.isObject() {
		return nil, zerialize.Mismatch("json: keys", "map", v.Kind())
	}
	keys := make([]string, 0)
	v.res.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.Str)
		return true
	})
	return keys, nil
}

func (v View) Elements(fn func(int, zerialize.View) error) error {
	if !v.isArray() {
		return zerialize.Mismatch("json: elements", "array", v.Kind())
	}
	var (
		err error
		i   int
	)
	v.res.ForEach(func(_, e gjson.Result) bool {
		err = fn(i, View{res: e})
		i++
		return err == nil
	})
	return err
}

func (v View) Entries(fn func(string, zerialize.View) error) error {
	if v.res.Type != gjson.JSON || !v.isObject() {
		return zerialize.Mismatch("json: entries", "map", v.Kind())
	}
	var err error
	v.res.ForEach(func(key, e gjson.Result) bool {
		err = fn(key.Str, View{res: e})
		return err == nil
	})
	return err
}

// String renders the value for diagnostics.
func (v View) String() string {
	return zerialize.Dump(v)
}
