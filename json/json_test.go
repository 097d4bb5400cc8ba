package json

import (
	stdjson "encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Neumenon/zerialize/zerialize"
)

func encode(t *testing.T, v any, opts ...Option) string {
	t.Helper()
	out, err := zerialize.Serialize(Protocol.With(opts...), v)
	require.NoError(t, err)
	return string(out)
}

func view(t *testing.T, text string) View {
	t.Helper()
	v, err := NewView([]byte(text))
	require.NoError(t, err)
	return v
}

func TestWriter_Output(t *testing.T) {
	tests := []struct {
		name  string
		value *zerialize.Value
		want  string
	}{
		{"null", zerialize.Null(), `null`},
		{"bool", zerialize.Bool(true), `true`},
		{"negative", zerialize.Int(-5), `-5`},
		{"max uint", zerialize.Uint(math.MaxUint64), `18446744073709551615`},
		{"whole float", zerialize.Float(1), `1.0`},
		{"fraction", zerialize.Float(0.1), `0.1`},
		{"large float", zerialize.Float(1e21), `1e+21`},
		{"small float", zerialize.Float(1e-7), `1e-07`},
		{"escapes", zerialize.Str("a\"b\\c\n\t\x01"), `"a\"b\\c\n\t\u0001"`},
		{"line separator", zerialize.Str("x\u2028y"), `"x\u2028y"`},
		{"invalid utf8", zerialize.Str("a\xffb"), "\"a�b\""},
		{"unicode kept", zerialize.Str("héllo"), `"héllo"`},
		{"blob", zerialize.Bytes([]byte("hello")), `["~b","aGVsbG8=","base64"]`},
		{"empty blob", zerialize.Bytes(nil), `["~b","","base64"]`},
		{
			"nested",
			zerialize.MustMap(
				zerialize.Field("a", zerialize.Array(zerialize.Int(1), zerialize.Int(2))),
				zerialize.Field("b", zerialize.MustMap()),
				zerialize.Field("c", zerialize.Array()),
			),
			`{"a":[1,2],"b":{},"c":[]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := encode(t, tt.value)
			assert.Equal(t, tt.want, got)
			assert.True(t, stdjson.Valid([]byte(got)), "output must be valid JSON")
		})
	}
}

func TestWriter_Indent(t *testing.T) {
	src := zerialize.MustMap(
		zerialize.Field("a", zerialize.Array(zerialize.Int(1))),
		zerialize.Field("b", zerialize.MustMap()),
	)
	want := "{\n  \"a\": [\n    1\n  ],\n  \"b\": {}\n}"
	assert.Equal(t, want, encode(t, src, WithIndent("  ")))
}

func TestWriter_EmptySession(t *testing.T) {
	out, err := zerialize.SerializeEmpty(Protocol)
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}

func TestWriter_NonFiniteFloats(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := zerialize.Serialize(Protocol, zerialize.Array(zerialize.Float(f)))
		require.ErrorIs(t, err, zerialize.ErrRange)
		assert.True(t, zerialize.IsEncodeError(err))
	}
}

func TestWriter_SafeIntegers(t *testing.T) {
	tests := []struct {
		name  string
		value *zerialize.Value
		ok    bool
	}{
		{"max safe", zerialize.Int(MaxSafeInteger), true},
		{"min safe", zerialize.Int(-MaxSafeInteger), true},
		{"above", zerialize.Int(MaxSafeInteger + 1), false},
		{"below", zerialize.Int(-MaxSafeInteger - 1), false},
		{"unsigned above", zerialize.Uint(MaxSafeInteger + 1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := zerialize.Serialize(Protocol.With(WithSafeIntegers()), tt.value)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, zerialize.ErrRange)
			}
		})
	}

	// Without the option large integers are written verbatim.
	assert.Equal(t, "9007199254740993", encode(t, zerialize.Int(MaxSafeInteger+2)))
}

func TestWriter_Misuse(t *testing.T) {
	r := NewRoot()
	require.NoError(t, r.BeginArray(0))
	err := r.EndMap()
	require.ErrorIs(t, err, zerialize.ErrNesting)

	_, err = r.Finish()
	assert.ErrorIs(t, err, zerialize.ErrNesting)
	assert.False(t, r.NativeBinary())
}

func TestView_Kind(t *testing.T) {
	tests := []struct {
		text string
		want zerialize.Kind
	}{
		{`null`, zerialize.KindNull},
		{`true`, zerialize.KindBool},
		{`1`, zerialize.KindInt64},
		{`-1`, zerialize.KindInt64},
		{`9223372036854775808`, zerialize.KindUint64},
		{`18446744073709551616`, zerialize.KindFloat64},
		{`1.0`, zerialize.KindFloat64},
		{`1e3`, zerialize.KindFloat64},
		{`"s"`, zerialize.KindString},
		{`[]`, zerialize.KindArray},
		{`{}`, zerialize.KindMap},
		{`["~b","","base64"]`, zerialize.KindBinary},
		{`["~b","AA=="]`, zerialize.KindArray},
		{`["~b",1,"base64"]`, zerialize.KindArray},
		{`["~b","AA==","hex"]`, zerialize.KindArray},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, view(t, tt.text).Kind())
		})
	}
}

func TestView_Malformed(t *testing.T) {
	for _, text := range []string{``, `{"a":`, `nope`, `[1 2]`} {
		_, err := NewView([]byte(text))
		assert.ErrorIs(t, err, zerialize.ErrMalformed, "input %q", text)
	}
}

func TestView_Numbers(t *testing.T) {
	i, err := view(t, `-42`).AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-42), i)

	u, err := view(t, `18446744073709551615`).AsUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), u)

	f, err := view(t, `2.5e-3`).AsFloat64()
	require.NoError(t, err)
	assert.Equal(t, 0.0025, f)

	_, err = view(t, `3.5`).AsInt64()
	assert.ErrorIs(t, err, zerialize.ErrTypeMismatch)
	_, err = view(t, `-1`).AsUint64()
	assert.ErrorIs(t, err, zerialize.ErrRange)
	_, err = view(t, `9007199254740993`).AsFloat64()
	assert.ErrorIs(t, err, zerialize.ErrRange)
	_, err = view(t, `"1"`).AsInt64()
	assert.ErrorIs(t, err, zerialize.ErrTypeMismatch)
}

func TestView_Strings(t *testing.T) {
	s, err := view(t, `"aé\n"`).AsString()
	require.NoError(t, err)
	assert.Equal(t, "aé\n", s)

	_, err = view(t, `1`).AsString()
	assert.ErrorIs(t, err, zerialize.ErrTypeMismatch)
}

func TestView_Binary(t *testing.T) {
	payload := []byte{0, 1, 2, 0xff}
	v := view(t, encode(t, zerialize.Bytes(payload)))
	b, err := v.AsBinary()
	require.NoError(t, err)
	assert.Equal(t, payload, b)
	assert.False(t, zerialize.BorrowsBinary(v))

	// Base64 text without the marker is a string.
	plain := view(t, `"AAEC"`)
	assert.Equal(t, zerialize.KindString, plain.Kind())
	_, err = plain.AsBinary()
	assert.ErrorIs(t, err, zerialize.ErrTypeMismatch)

	_, err = view(t, `["~b","!!","base64"]`).AsBinary()
	assert.ErrorIs(t, err, zerialize.ErrInvalidBase64)
	_, err = view(t, `[1]`).AsBinary()
	assert.ErrorIs(t, err, zerialize.ErrTypeMismatch)
}

func TestView_Containers(t *testing.T) {
	v := view(t, `{"name":"James Bond","age":37,"tags":["spy",null]}`)

	n, err := v.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	keys, err := v.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age", "tags"}, keys)
	assert.True(t, v.Has("age"))
	assert.False(t, v.Has("missing"))

	age, err := v.Key("age")
	require.NoError(t, err)
	a, err := zerialize.AsUnsigned[uint16](age)
	require.NoError(t, err)
	assert.Equal(t, uint16(37), a)

	tags, err := v.Key("tags")
	require.NoError(t, err)
	second, err := tags.Index(1)
	require.NoError(t, err)
	assert.True(t, zerialize.IsNull(second))

	_, err = tags.Index(2)
	assert.ErrorIs(t, err, zerialize.ErrIndexOutOfRange)
	_, err = tags.Index(-1)
	assert.ErrorIs(t, err, zerialize.ErrIndexOutOfRange)
	_, err = v.Key("missing")
	assert.ErrorIs(t, err, zerialize.ErrKeyNotFound)
	_, err = v.Index(0)
	assert.ErrorIs(t, err, zerialize.ErrTypeMismatch)
	_, err = tags.Key("x")
	assert.ErrorIs(t, err, zerialize.ErrTypeMismatch)

	var seen []string
	require.NoError(t, v.Entries(func(k string, _ zerialize.View) error {
		seen = append(seen, k)
		return nil
	}))
	assert.Equal(t, keys, seen)

	var kinds []zerialize.Kind
	require.NoError(t, tags.Elements(func(_ int, e zerialize.View) error {
		kinds = append(kinds, e.Kind())
		return nil
	}))
	assert.Equal(t, []zerialize.Kind{zerialize.KindString, zerialize.KindNull}, kinds)
}

func TestView_BlobMarkerStaysIndexable(t *testing.T) {
	out := encode(t, zerialize.Vec(zerialize.BlobTag, "AAAA", zerialize.BlobEncoding))
	v := view(t, out)
	assert.Equal(t, zerialize.KindBinary, v.Kind())
	b, err := v.AsBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0}, b)

	n, err := v.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	first, err := v.Index(0)
	require.NoError(t, err)
	s, err := first.AsString()
	require.NoError(t, err)
	assert.Equal(t, zerialize.BlobTag, s)

	var got []string
	err = v.Elements(func(_ int, e zerialize.View) error {
		s, err := e.AsString()
		got = append(got, s)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"~b", "AAAA", "base64"}, got)

	_, err = v.Index(3)
	assert.ErrorIs(t, err, zerialize.ErrIndexOutOfRange)
}

func TestView_DuplicateKeysFirstWins(t *testing.T) {
	v := view(t, `{"a":1,"a":2}`)
	a, err := v.Key("a")
	require.NoError(t, err)
	n, err := a.AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	keys, err := v.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "a"}, keys)
}

func TestRoundTrip(t *testing.T) {
	src := zerialize.MustMap(
		zerialize.Field("i", zerialize.Int(math.MinInt64)),
		zerialize.Field("u", zerialize.Uint(math.MaxUint64)),
		zerialize.Field("f", zerialize.Float(-0.5)),
		zerialize.Field("whole", zerialize.Float(3)),
		zerialize.Field("s", zerialize.Str("\"quoted\"\n")),
		zerialize.Field("b", zerialize.Bytes([]byte{9, 8, 7})),
		zerialize.Field("list", zerialize.Array(zerialize.Null(), zerialize.Bool(false))),
	)
	for _, indent := range []string{"", "\t"} {
		got := view(t, encode(t, src, WithIndent(indent)))
		assert.True(t, zerialize.Equal(src, got), "indent %q: %s", indent, got)
	}
}

func TestFormat_Registered(t *testing.T) {
	p, err := zerialize.Lookup("json")
	require.NoError(t, err)
	assert.Equal(t, "json", p.Name())

	v, err := zerialize.Deserialize(p, []byte(`[1,"two"]`))
	require.NoError(t, err)
	assert.Equal(t, `[1, "two"]`, zerialize.Dump(v))
}
