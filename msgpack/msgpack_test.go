package msgpack

import (
	"math"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vmsgpack "github.com/vmihailenco/msgpack/v5"

	"github.com/Neumenon/zerialize/zerialize"
)

func encode(t *testing.T, v any) []byte {
	t.Helper()
	out, err := zerialize.Serialize(Protocol, v)
	require.NoError(t, err)
	return out
}

func TestWriter_Layout(t *testing.T) {
	tests := []struct {
		name  string
		value *zerialize.Value
		want  []byte
	}{
		{"nil", zerialize.Null(), []byte{0xc0}},
		{"true", zerialize.Bool(true), []byte{0xc3}},
		{"fixint", zerialize.Int(5), []byte{0x05}},
		{"negative fixint", zerialize.Int(-1), []byte{0xff}},
		{"uint8", zerialize.Int(200), []byte{0xcc, 0xc8}},
		{"int8", zerialize.Int(-100), []byte{0xd0, 0x9c}},
		{"uint64", zerialize.Uint(math.MaxUint64), []byte{0xcf, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{"double", zerialize.Float(1.5), []byte{0xcb, 0x3f, 0xf8, 0, 0, 0, 0, 0, 0}},
		{"fixstr", zerialize.Str("hi"), []byte{0xa2, 'h', 'i'}},
		{"bin8", zerialize.Bytes([]byte{1, 2}), []byte{0xc4, 2, 1, 2}},
		{"empty bin", zerialize.Bytes(nil), []byte{0xc4, 0}},
		{"array32", zerialize.Array(zerialize.Int(1)), []byte{0xdd, 0, 0, 0, 1, 0x01}},
		{
			"map32",
			zerialize.MustMap(zerialize.Field("a", zerialize.Bool(true))),
			[]byte{0xdf, 0, 0, 0, 1, 0xa1, 'a', 0xc3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encode(t, tt.value))
		})
	}
}

func TestWriter_EmptySession(t *testing.T) {
	out, err := zerialize.SerializeEmpty(Protocol)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xc0}, out)
}

func TestWriter_Misuse(t *testing.T) {
	r := NewRoot()
	require.NoError(t, r.BeginMap(1))
	err := r.Int64(1)
	require.ErrorIs(t, err, zerialize.ErrNesting)
	assert.Contains(t, err.Error(), "msgpack: int64")

	_, err = r.Finish()
	assert.ErrorIs(t, err, zerialize.ErrNesting)
}

func TestWriter_ReadableByLibrary(t *testing.T) {
	src := zerialize.MustMap(
		zerialize.Field("name", zerialize.Str("James Bond")),
		zerialize.Field("age", zerialize.Int(37)),
		zerialize.Field("tags", zerialize.Array(zerialize.Str("spy"), zerialize.Null())),
	)
	var got map[string]any
	require.NoError(t, vmsgpack.Unmarshal(encode(t, src), &got))
	assert.Equal(t, "James Bond", got["name"])
	assert.EqualValues(t, 37, got["age"])
	assert.Equal(t, []any{"spy", nil}, got["tags"])
}

func TestView_ForeignEncodings(t *testing.T) {
	data, err := vmsgpack.Marshal(map[string]any{
		"f32":   float32(1.5),
		"i16":   int16(-300),
		"u32":   uint32(70000),
		"str16": string(make([]byte, 300)),
		"arr":   []int8{1, -2},
	})
	require.NoError(t, err)
	require.NoError(t, Validate(data))

	v, err := NewView(data)
	require.NoError(t, err)

	f, err := v.Key("f32")
	require.NoError(t, err)
	assert.Equal(t, zerialize.KindFloat64, f.Kind())
	fv, err := f.AsFloat64()
	require.NoError(t, err)
	assert.Equal(t, 1.5, fv)

	i, err := v.Key("i16")
	require.NoError(t, err)
	iv, err := i.AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-300), iv)
	_, err = i.AsUint64()
	assert.ErrorIs(t, err, zerialize.ErrRange)

	u, err := v.Key("u32")
	require.NoError(t, err)
	assert.Equal(t, zerialize.KindInt64, u.Kind())
	uv, err := zerialize.AsUnsigned[uint32](u)
	require.NoError(t, err)
	assert.Equal(t, uint32(70000), uv)
	_, err = zerialize.AsUnsigned[uint16](u)
	assert.ErrorIs(t, err, zerialize.ErrRange)

	s, err := v.Key("str16")
	require.NoError(t, err)
	sv, err := s.AsString()
	require.NoError(t, err)
	assert.Len(t, sv, 300)

	arr, err := v.Key("arr")
	require.NoError(t, err)
	second, err := arr.Index(1)
	require.NoError(t, err)
	n, err := second.AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-2), n)
}

func TestView_Uint64Kind(t *testing.T) {
	v, err := NewView(encode(t, zerialize.Uint(1<<63)))
	require.NoError(t, err)
	assert.Equal(t, zerialize.KindUint64, v.Kind())

	v, err = NewView(encode(t, zerialize.Uint(7)))
	require.NoError(t, err)
	assert.Equal(t, zerialize.KindInt64, v.Kind())
}

func TestView_BinaryAliasesBuffer(t *testing.T) {
	out := encode(t, zerialize.Bytes([]byte("payload")))
	v, err := NewView(out)
	require.NoError(t, err)

	b, err := v.AsBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), b)
	assert.Same(t, unsafe.SliceData(out[2:]), unsafe.SliceData(b))
	assert.True(t, zerialize.BorrowsBinary(v))

	_, err = v.AsString()
	assert.ErrorIs(t, err, zerialize.ErrTypeMismatch)
}

func TestView_Containers(t *testing.T) {
	src := zerialize.MustMap(
		zerialize.Field("blob", zerialize.Bytes(make([]byte, 1024))),
		zerialize.Field("list", zerialize.Array(zerialize.Int(1), zerialize.Str("two"))),
		zerialize.Field("last", zerialize.Bool(false)),
	)
	v, err := NewView(encode(t, src))
	require.NoError(t, err)

	n, err := v.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	keys, err := v.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"blob", "list", "last"}, keys)

	last, err := v.Key("last")
	require.NoError(t, err)
	b, err := last.AsBool()
	require.NoError(t, err)
	assert.False(t, b)

	list, err := v.Key("list")
	require.NoError(t, err)
	_, err = list.Index(2)
	assert.ErrorIs(t, err, zerialize.ErrIndexOutOfRange)
	_, err = v.Key("nope")
	assert.ErrorIs(t, err, zerialize.ErrKeyNotFound)
	assert.False(t, v.Has("nope"))
	_, err = list.Keys()
	assert.ErrorIs(t, err, zerialize.ErrTypeMismatch)

	assert.True(t, zerialize.Equal(src, v))
}

func TestView_NonStringKeys(t *testing.T) {
	data, err := vmsgpack.Marshal(map[int]int{1: 2})
	require.NoError(t, err)

	v, err := NewView(data)
	require.NoError(t, err)
	_, err = v.Keys()
	assert.ErrorIs(t, err, zerialize.ErrTypeMismatch)
	assert.Error(t, Validate(data))
}

func TestView_Ext(t *testing.T) {
	data, err := vmsgpack.Marshal(time.Unix(0, 0))
	require.NoError(t, err)
	_, err = NewView(data)
	assert.ErrorIs(t, err, zerialize.ErrMalformed)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		ok   bool
	}{
		{"nil", []byte{0xc0}, true},
		{"fixmap", []byte{0x81, 0xa1, 'k', 0x01}, true},
		{"empty", []byte{}, false},
		{"reserved code", []byte{0xc1}, false},
		{"trailing bytes", []byte{0xc0, 0xc0}, false},
		{"truncated uint16", []byte{0xcd, 0x01}, false},
		{"string overruns", []byte{0xa5, 'a'}, false},
		{"missing element", []byte{0x92, 0x01}, false},
		{"missing value", []byte{0x81, 0xa1, 'k'}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.buf)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, zerialize.ErrMalformed)
		})
	}
}

func TestView_Lazy(t *testing.T) {
	// [1, <reserved code>]
	buf := []byte{0x92, 0x01, 0xc1}
	v, err := NewView(buf)
	require.NoError(t, err)

	first, err := v.Index(0)
	require.NoError(t, err)
	n, err := first.AsInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = v.Index(1)
	assert.ErrorIs(t, err, zerialize.ErrMalformed)
}

func TestFormat_Registered(t *testing.T) {
	p, err := zerialize.Lookup("msgpack")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", p.Name())
	assert.Equal(t, Protocol, p)
}
