package zerialize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Scalars(t *testing.T) {
	tests := []struct {
		name string
		v    *Value
		kind Kind
		dump string
	}{
		{"null", Null(), KindNull, "null"},
		{"bool", Bool(true), KindBool, "true"},
		{"int", Int(-7), KindInt64, "-7"},
		{"uint", Uint(7), KindUint64, "7u"},
		{"float", Float(2), KindFloat64, "2.0"},
		{"string", Str("Hello, World!"), KindString, `"Hello, World!"`},
		{"binary", Bytes([]byte{0xde, 0xad}), KindBinary, "b<dead>"},
		{"nil_binary", Bytes(nil), KindBinary, "b<>"},
		{"empty_array", Array(), KindArray, "[]"},
		{"empty_map", MustMap(), KindMap, "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.v.Kind())
			assert.Equal(t, tt.dump, tt.v.String())
		})
	}
}

func TestValue_NilReadsAsNull(t *testing.T) {
	var v *Value
	assert.Equal(t, KindNull, v.Kind())
	assert.True(t, IsNull(v))
	assert.False(t, v.Has("x"))
	assert.Nil(t, v.Get("x"))
	assert.Nil(t, v.Items())

	_, err := v.AsString()
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestValue_Map(t *testing.T) {
	m := MustMap(
		Field("name", Str("James Bond")),
		Field("age", Int(37)),
	)
	require.NoError(t, m.Insert("tags", Array(Str("spy"))))

	keys, err := m.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age", "tags"}, keys)

	assert.True(t, m.Has("age"))
	assert.False(t, m.Has("missing"))
	assert.Equal(t, "James Bond", m.Get("name").s)

	n, err := m.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	err = m.Insert("age", Int(38))
	require.ErrorIs(t, err, ErrDuplicateKey)
	age, err := m.Get("age").AsInt64()
	require.NoError(t, err)
	assert.EqualValues(t, 37, age, "insert must not overwrite")

	_, err = NewMap(Field("a", Null()), Field("a", Null()))
	assert.ErrorIs(t, err, ErrDuplicateKey)

	assert.Panics(t, func() { MustMap(Field("a", Null()), Field("a", Null())) })
}

func TestValue_InsertNilValue(t *testing.T) {
	m := MustMap()
	require.NoError(t, m.Insert("x", nil))
	assert.Equal(t, KindNull, m.Get("x").Kind())

	err := Int(1).Insert("x", Null())
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestValue_Access(t *testing.T) {
	arr := Array(Int(1), Str("two"), Bool(false))

	e, err := arr.Index(1)
	require.NoError(t, err)
	s, err := e.AsString()
	require.NoError(t, err)
	assert.Equal(t, "two", s)

	_, err = arr.Index(3)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.EqualError(t, err, "zerialize: index at $[3]: index out of range: length 3")

	_, err = arr.Index(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = arr.Key("x")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	m := MustMap(Field("a", Int(1)))
	_, err = m.Key("b")
	require.ErrorIs(t, err, ErrKeyNotFound)
	assert.True(t, IsDecodeError(err))

	var seen []int
	require.NoError(t, arr.Elements(func(i int, v View) error {
		seen = append(seen, i)
		return nil
	}))
	assert.Equal(t, []int{0, 1, 2}, seen)
}

func TestValue_Serialize(t *testing.T) {
	src := MustMap(
		Field("id", Uint(42)),
		Field("scores", Array(Float(1.5), Int(-2))),
		Field("blob", Bytes([]byte("hi"))),
		Field("nothing", Null()),
	)
	got, err := ToValue(src)
	require.NoError(t, err)
	assert.True(t, Equal(src, got))
	assert.Equal(t, `{"id": 42u, "scores": [1.5, -2], "blob": b<6869>, "nothing": null}`, got.String())
}
