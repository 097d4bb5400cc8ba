package zerialize_test

import (
	"encoding/base64"
	"fmt"
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Neumenon/zerialize/cbor"
	zjson "github.com/Neumenon/zerialize/json"
	"github.com/Neumenon/zerialize/msgpack"
	"github.com/Neumenon/zerialize/tensor"
	"github.com/Neumenon/zerialize/zera"
	"github.com/Neumenon/zerialize/zerialize"
)

var protocols = []zerialize.Protocol{zera.Protocol, zjson.Protocol, msgpack.Protocol, cbor.Protocol}

var person = zerialize.MustKeys("name", "age", "tags", "scores", "address")

// samples are built with the builder DSL only.
func samples() map[string]zerialize.Serializable {
	return map[string]zerialize.Serializable{
		"scalars":          zerialize.Vec(nil, true, false, int64(math.MinInt64), uint64(math.MaxUint64), 0.25, "", "héllo\n"),
		"empty containers": zerialize.Vec(zerialize.Vec(), zerialize.Obj(), ""),
		"binary":           zerialize.Obj("blob", []byte{0, 1, 2, 0xff}, "empty", []byte{}),
		"nested": person.Map(
			"James Bond",
			37,
			zerialize.Vec("spy", "agent"),
			zerialize.Vec(1.5, -2.25),
			zerialize.Obj("city", "London", "zip", nil),
		),
		"deep": zerialize.Vec(zerialize.Vec(zerialize.Vec(zerialize.Obj("k", zerialize.Vec(int8(-1), uint16(7)))))),
	}
}

func TestProperty_RoundTrip(t *testing.T) {
	for name, v := range samples() {
		want, err := zerialize.ToValue(v)
		require.NoError(t, err, name)
		for _, p := range protocols {
			t.Run(p.Name()+"/"+name, func(t *testing.T) {
				out, err := zerialize.Serialize(p, v)
				require.NoError(t, err)
				got, err := zerialize.Deserialize(p, out)
				require.NoError(t, err)
				assert.True(t, zerialize.Equal(want, got), "got %s", zerialize.Dump(got))
			})
		}
	}
}

func TestProperty_TranslateIdempotent(t *testing.T) {
	for name, v := range samples() {
		for _, p := range protocols {
			t.Run(p.Name()+"/"+name, func(t *testing.T) {
				out, err := zerialize.Serialize(p, v)
				require.NoError(t, err)
				direct, err := zerialize.Deserialize(p, out)
				require.NoError(t, err)

				once, err := zerialize.Translate(direct, p)
				require.NoError(t, err)
				v1, err := zerialize.Deserialize(p, once)
				require.NoError(t, err)
				twice, err := zerialize.Translate(v1, p)
				require.NoError(t, err)
				v2, err := zerialize.Deserialize(p, twice)
				require.NoError(t, err)

				assert.True(t, zerialize.Equal(direct, v2))
				assert.Equal(t, once, twice)
			})
		}
	}
}

func TestProperty_CrossFormat(t *testing.T) {
	for name, v := range samples() {
		if name == "binary" {
			continue
		}
		want, err := zerialize.ToValue(v)
		require.NoError(t, err)
		for _, from := range protocols {
			out, err := zerialize.Serialize(from, v)
			require.NoError(t, err)
			for _, to := range protocols {
				t.Run(fmt.Sprintf("%s/%s->%s", name, from.Name(), to.Name()), func(t *testing.T) {
					translated, err := zerialize.TranslateBytes(out, from, to)
					require.NoError(t, err)
					got, err := zerialize.Deserialize(to, translated)
					require.NoError(t, err)
					assert.True(t, zerialize.Equal(want, got), "got %s", zerialize.Dump(got))
				})
			}
		}
	}
}

func TestProperty_BlobFallback(t *testing.T) {
	payload := []byte("\x00\x01binary\xfe\xff")
	src, err := zerialize.Serialize(msgpack.Protocol, zerialize.Obj("blob", payload))
	require.NoError(t, err)

	out, err := zerialize.TranslateBytes(src, msgpack.Protocol, zjson.Protocol)
	require.NoError(t, err)

	v, err := zjson.NewView(out)
	require.NoError(t, err)
	blob, err := v.Key("blob")
	require.NoError(t, err)
	assert.Equal(t, zerialize.KindBinary, blob.Kind())
	got, err := blob.AsBinary()
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// The wire string is standard padded base64 of the bytes.
	text := v.Result().Get("blob.1").String()
	decoded, err := base64.StdEncoding.DecodeString(text)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)

	// Back to a native binary format the blob is binary again.
	back, err := zerialize.TranslateBytes(out, zjson.Protocol, cbor.Protocol)
	require.NoError(t, err)
	cv, err := cbor.NewView(back)
	require.NoError(t, err)
	cb, err := zerialize.At(cv, "blob")
	require.NoError(t, err)
	b, err := cb.AsBinary()
	require.NoError(t, err)
	assert.Equal(t, payload, b)
}

func TestProperty_Alignment(t *testing.T) {
	for _, align := range []int{8, 16, 64, 4096} {
		t.Run(fmt.Sprint(align), func(t *testing.T) {
			p := zera.Protocol.With(zera.WithAlignment(align))
			doc := zerialize.Vec("pad", tensor.Of([]uint32{3}, []float32{1, 2, 3}), []byte{1, 2, 3})
			out, err := zerialize.Serialize(p, doc)
			require.NoError(t, err)
			require.NoError(t, zera.Validate(out))

			v, err := zera.NewView(out)
			require.NoError(t, err)
			// Tensor payloads align to their element size, plain binary
			// values to the writer's alignment.
			for _, tt := range []struct {
				path  []any
				align int
			}{
				{[]any{1, tensor.DataKey}, tensor.Alignment[float32]()},
				{[]any{2}, align},
			} {
				bv, err := zerialize.At(v, tt.path...)
				require.NoError(t, err)
				b, err := bv.AsBinary()
				require.NoError(t, err)
				addr := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
				assert.Zero(t, addr%uintptr(tt.align), "path %v", tt.path)
			}
		})
	}
}

func TestProperty_KeyUniqueness(t *testing.T) {
	_, err := zerialize.NewKeys("a", "b", "a")
	require.ErrorIs(t, err, zerialize.ErrDuplicateKey)
	assert.Panics(t, func() { zerialize.MustKeys("x", "x") })

	keys := zerialize.MustKeys("z", "a", "m")
	for _, p := range protocols {
		out, err := zerialize.Serialize(p, keys.Map(1, 2, 3))
		require.NoError(t, err, p.Name())
		v, err := zerialize.Deserialize(p, out)
		require.NoError(t, err, p.Name())
		got, err := v.Keys()
		require.NoError(t, err, p.Name())
		assert.Equal(t, []string{"z", "a", "m"}, got, p.Name())
	}
}

func TestProperty_CountHintsAdvisory(t *testing.T) {
	for _, p := range protocols {
		root := p.NewRoot()
		w := root.Writer()
		require.NoError(t, w.BeginArray(10))
		require.NoError(t, w.Int64(1))
		require.NoError(t, w.BeginMap(0))
		require.NoError(t, w.Key("k"))
		require.NoError(t, w.Bool(true))
		require.NoError(t, w.EndMap())
		require.NoError(t, w.EndArray())
		out, err := root.Finish()
		require.NoError(t, err, p.Name())

		v, err := zerialize.Deserialize(p, out)
		require.NoError(t, err, p.Name())
		assert.Equal(t, `[1, {"k": true}]`, zerialize.Dump(v), p.Name())
	}
}

func TestScenario_JamesBond(t *testing.T) {
	text, err := zerialize.Serialize(zjson.Protocol, zerialize.Obj("name", "James Bond", "age", 37))
	require.NoError(t, err)
	assert.Equal(t, `{"name":"James Bond","age":37}`, string(text))

	check := func(t *testing.T, v zerialize.View) {
		t.Helper()
		name, err := zerialize.At(v, "name")
		require.NoError(t, err)
		s, err := name.AsString()
		require.NoError(t, err)
		assert.Equal(t, "James Bond", s)

		age, err := zerialize.At(v, "age")
		require.NoError(t, err)
		a, err := zerialize.AsUnsigned[uint16](age)
		require.NoError(t, err)
		assert.Equal(t, uint16(37), a)
	}

	jv, err := zjson.NewView(text)
	require.NoError(t, err)
	check(t, jv)

	out, err := zerialize.Translate(jv, zera.Protocol)
	require.NoError(t, err)
	zv, err := zera.NewView(out)
	require.NoError(t, err)
	check(t, zv)
	assert.True(t, zerialize.Equal(jv, zv))
}

func TestScenario_RangeErrorOnTranslate(t *testing.T) {
	src, err := zerialize.Serialize(msgpack.Protocol, zerialize.Vec(math.NaN()))
	require.NoError(t, err)
	_, err = zerialize.TranslateBytes(src, msgpack.Protocol, zjson.Protocol)
	require.ErrorIs(t, err, zerialize.ErrRange)
	assert.True(t, zerialize.IsEncodeError(err))
}

// largeBlobArray holds n blobs of size bytes each.
func largeBlobArray(b *testing.B, p zerialize.Protocol, n, size int) []byte {
	b.Helper()
	blobs := make([][]byte, n)
	for i := range blobs {
		blobs[i] = make([]byte, size)
	}
	out, err := zerialize.Serialize(p, blobs)
	require.NoError(b, err)
	return out
}

func BenchmarkIndexLast(b *testing.B) {
	const n, size = 1000, 64 << 10
	for _, p := range []zerialize.Protocol{zera.Protocol, msgpack.Protocol, cbor.Protocol} {
		out := largeBlobArray(b, p, n, size)
		v, err := zerialize.Deserialize(p, out)
		require.NoError(b, err)
		b.Run(p.Name(), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				last, err := v.Index(n - 1)
				if err != nil {
					b.Fatal(err)
				}
				if _, err := last.AsBinary(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkIndexLastByHand walks the zera length prefixes directly, the
// floor that View.Index is compared against.
func BenchmarkIndexLastByHand(b *testing.B) {
	const n, size = 1000, 64 << 10
	out := largeBlobArray(b, zera.Protocol, n, size)
	for i := 0; i < b.N; i++ {
		pos := 5
		for j := 0; j < n-1; j++ {
			l := int(out[pos+1]) | int(out[pos+2])<<8 | int(out[pos+3])<<16 | int(out[pos+4])<<24
			pos += 5 + l
		}
		if out[pos] != zera.TagBinary {
			b.Fatal("not a binary tag")
		}
	}
}
