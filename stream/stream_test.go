package stream

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zjson "github.com/Neumenon/zerialize/json"
	"github.com/Neumenon/zerialize/msgpack"
	"github.com/Neumenon/zerialize/zera"
	"github.com/Neumenon/zerialize/zerialize"
)

func TestWriter_Header(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Write("json", []byte(`{"a":1}`)))
	require.NoError(t, w.WriteFinal("json", []byte(`[]`)))
	assert.Equal(t, uint64(2), w.Seq())

	want := "@frame{v=1 seq=0 fmt=json len=7}\n{\"a\":1}\n" +
		"@frame{v=1 seq=1 fmt=json len=2 final=true}\n[]\n"
	assert.Equal(t, want, buf.String())
}

func TestWriter_CRC(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, WithCRC())
	payload := []byte("hello")
	require.NoError(t, w.Write("json", payload))

	want := fmt.Sprintf("@frame{v=1 seq=0 fmt=json len=5 crc=%08x}\nhello\n", ComputeCRC(payload))
	assert.Equal(t, want, buf.String())
}

func TestWriter_InvalidFormat(t *testing.T) {
	w := NewWriter(io.Discard)
	for _, name := range []string{"", "a b", "x}", "k=v"} {
		assert.Error(t, w.Write(name, nil), "format %q", name)
	}
	assert.Equal(t, uint64(0), w.Seq())
}

func TestRoundTrip(t *testing.T) {
	docs := []struct {
		p zerialize.Protocol
		v any
	}{
		{zera.Protocol, zerialize.Vec("line\nbreak", []byte("}\n@frame{"), int64(-1))},
		{msgpack.Protocol, zerialize.Obj("name", "James Bond", "age", uint64(37))},
		{zjson.Protocol, zerialize.Vec(1.5, nil, true)},
	}

	for _, opts := range [][]WriterOption{nil, {WithCRC()}, {WithCompression(3)}, {WithCRC(), WithCompression(19)}} {
		var buf bytes.Buffer
		w := NewWriter(&buf, opts...)
		var want []*zerialize.Value
		for i, d := range docs {
			payload, err := zerialize.Serialize(d.p, d.v)
			require.NoError(t, err)
			if i == len(docs)-1 {
				require.NoError(t, w.WriteFinal(d.p.Name(), payload))
			} else {
				require.NoError(t, w.Write(d.p.Name(), payload))
			}
			val, err := zerialize.ToValue(d.v)
			require.NoError(t, err)
			want = append(want, val)
		}
		require.NoError(t, w.Close())

		r := NewReader(&buf, WithCursor(NewCursor()))
		frames, err := r.ReadAll()
		require.NoError(t, err)
		r.Close()
		require.Len(t, frames, len(docs))

		for i, f := range frames {
			assert.Equal(t, uint64(i), f.Seq)
			assert.Equal(t, docs[i].p.Name(), f.Format)
			assert.Equal(t, i == len(docs)-1, f.Final)
			v, err := f.View()
			require.NoError(t, err)
			assert.True(t, zerialize.Equal(want[i], v), "frame %d: %s", i, zerialize.Dump(v))
		}
	}
}

func TestCompression(t *testing.T) {
	payload := bytes.Repeat([]byte(`{"k":"v"},`), 1000)

	var buf bytes.Buffer
	w := NewWriter(&buf, WithCompression(3), WithCRC())
	require.NoError(t, w.Write("json", payload))
	require.NoError(t, w.Close())

	header, _, _ := strings.Cut(buf.String(), "\n")
	assert.Contains(t, header, " z=zstd")
	assert.Less(t, buf.Len(), len(payload)/2)

	r := NewReader(bytes.NewReader(buf.Bytes()))
	f, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, CompressZstd, f.Compression)
	assert.True(t, f.HasCRC())
	assert.Equal(t, payload, f.Payload)

	// The limit also applies after decompression.
	r = NewReader(bytes.NewReader(buf.Bytes()), WithMaxPayload(len(payload)-1))
	_, err = r.Next()
	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestReader_CRCMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, WithCRC()).Write("json", []byte(`"abc"`)))
	data := bytes.Replace(buf.Bytes(), []byte(`"abc"`), []byte(`"abd"`), 1)

	_, err := NewReader(bytes.NewReader(data)).Next()
	var ce *CRCMismatchError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, uint64(0), ce.Seq)
	assert.Equal(t, ComputeCRC([]byte(`"abc"`)), ce.Expected)
	assert.Equal(t, ComputeCRC([]byte(`"abd"`)), ce.Got)

	f, err := NewReader(bytes.NewReader(data), WithCRCVerification(false)).Next()
	require.NoError(t, err)
	assert.Equal(t, []byte(`"abd"`), f.Payload)
}

func TestReader_ParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{"not a frame", "hello\n", "expected @frame{"},
		{"unclosed", "@frame{v=1 fmt=json len=0\n", "missing closing }"},
		{"version", "@frame{v=2 fmt=json len=0}\n\n", "unsupported version"},
		{"missing fmt", "@frame{v=1 len=0}\n\n", "missing fmt"},
		{"missing len", "@frame{v=1 fmt=json}\n\n", "missing len"},
		{"bad len", "@frame{fmt=json len=-1}\n\n", "invalid len"},
		{"bad seq", "@frame{seq=x fmt=json len=0}\n\n", "invalid seq"},
		{"bad crc", "@frame{fmt=json len=0 crc=xyz}\n\n", "invalid crc"},
		{"unknown codec", "@frame{fmt=json len=0 z=gzip}\n\n", "unknown compression"},
		{"malformed field", "@frame{fmt=json len}\n\n", "malformed field"},
		{"truncated header", "@frame{v=1", "truncated header"},
		{"truncated payload", "@frame{fmt=json len=10}\nabc", "truncated payload"},
		{"header too long", "@frame{" + strings.Repeat("x=y ", 2000) + "}\n", "header line too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(strings.NewReader(tt.input)).Next()
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, pe.Reason, tt.reason)
		})
	}
}

func TestReader_PayloadTooLarge(t *testing.T) {
	_, err := NewReader(strings.NewReader("@frame{fmt=json len=100}\n"), WithMaxPayload(10)).Next()
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "payload too large")
}

func TestReader_ErrorOffset(t *testing.T) {
	input := "@frame{fmt=json len=2}\n[]\nbogus\n"
	r := NewReader(strings.NewReader(input))
	_, err := r.Next()
	require.NoError(t, err)

	_, err = r.Next()
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, strings.Index(input, "bogus"), pe.Offset)
	assert.Contains(t, pe.Error(), fmt.Sprintf("at offset %d", pe.Offset))
}

func TestReader_Lenient(t *testing.T) {
	// Blank lines between frames, unknown keys, a crc32: prefix and a
	// missing trailing newline are all accepted.
	crc := ComputeCRC([]byte("1"))
	input := "\n@frame{v=1 seq=4 fmt=json len=1 ts=123}\n1\n\n\n" +
		fmt.Sprintf("@frame{seq=5 fmt=json len=1 crc=crc32:%08x final=1}\n1", crc)

	frames, err := NewReader(strings.NewReader(input)).ReadAll()
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, uint64(4), frames[0].Seq)
	assert.False(t, frames[0].HasCRC())
	assert.Equal(t, uint64(5), frames[1].Seq)
	assert.True(t, frames[1].Final)
	assert.Equal(t, crc, *frames[1].CRC)
}

func TestReader_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Write("zera", nil))
	require.NoError(t, w.Write("zera", []byte{zera.TagNull}))

	frames, err := NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Empty(t, frames[0].Payload)
	_, err = frames[0].View()
	assert.ErrorIs(t, err, zerialize.ErrMalformed)

	v, err := frames[1].View()
	require.NoError(t, err)
	assert.True(t, zerialize.IsNull(v))
}

func TestFrame_UnknownFormat(t *testing.T) {
	f := &Frame{Format: "yaml", Payload: []byte("a: 1")}
	_, err := f.View()
	assert.ErrorIs(t, err, zerialize.ErrUnknownProtocol)
}

func TestWriter_WriteValue(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteValue(msgpack.Protocol, zerialize.Vec(int64(1), "x")))
	err := w.WriteValue(msgpack.Protocol, zerialize.Obj("dup", 1, "dup", 2))
	assert.ErrorIs(t, err, zerialize.ErrDuplicateKey)

	assert.Equal(t, uint64(1), w.Seq())
	f, err := NewReader(&buf).Next()
	require.NoError(t, err)
	v, err := f.View()
	require.NoError(t, err)
	assert.Equal(t, `[1, "x"]`, zerialize.Dump(v))
}

func TestReader_ReadError(t *testing.T) {
	boom := errors.New("boom")
	r := NewReader(io.MultiReader(strings.NewReader("@frame{fmt=json len=4}\nab"), errReader{boom}))
	_, err := r.Next()
	assert.ErrorIs(t, err, boom)
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
