// Package zera implements the Zera reference binary codec.
//
// # Wire Layout
//
// A buffer holds exactly one value. Every value is a one-byte tag followed
// by a tag-specific payload; all integers are little-endian.
//
//	0x00 null
//	0x01 false
//	0x02 true
//	0x03 int64     8 bytes two's complement
//	0x04 uint64    8 bytes
//	0x05 float64   8 bytes IEEE-754 bits
//	0x06 string    u32 byte length, UTF-8 bytes
//	0x07 binary    u32 byte length, bytes
//	0x08 binary    u32 byte length, u16 pad, pad zero bytes, bytes (aligned)
//	0x09 array     u32 element count, elements
//	0x0A map       u32 entry count, entries (u32 key length, key bytes, value)
//
// Containers carry element counts, and strings and blobs carry byte
// lengths, so a reader reaches the n'th child by reading only the length
// prefixes of the children before it.
//
// # Aligned Mode
//
// With WithAlignment(a) every binary value is written with tag 0x08 and
// enough padding that its payload starts at an offset that is a multiple
// of a. Finish returns a buffer whose base address is aligned to the
// largest alignment used, so AsBinary on the decoded value returns a
// pointer that is itself aligned. Buffers that were copied since (read
// from a file, received over a socket) can be re-based with Aligned.
package zera

import (
	"github.com/Neumenon/zerialize/zerialize"
)

// Wire tags.
const (
	TagNull          byte = 0x00
	TagFalse         byte = 0x01
	TagTrue          byte = 0x02
	TagInt64         byte = 0x03
	TagUint64        byte = 0x04
	TagFloat64       byte = 0x05
	TagString        byte = 0x06
	TagBinary        byte = 0x07
	TagAlignedBinary byte = 0x08
	TagArray         byte = 0x09
	TagMap           byte = 0x0A
)

// MaxAlignment is the largest alignment the u16 pad field can express.
const MaxAlignment = 1 << 15

// tagKind maps wire tags to kinds. Unknown tags map to kindInvalid.
var tagKind = [256]zerialize.Kind{}

const kindInvalid zerialize.Kind = 0xFF

func init() {
	for i := range tagKind {
		tagKind[i] = kindInvalid
	}
	tagKind[TagNull] = zerialize.KindNull
	tagKind[TagFalse] = zerialize.KindBool
	tagKind[TagTrue] = zerialize.KindBool
	tagKind[TagInt64] = zerialize.KindInt64
	tagKind[TagUint64] = zerialize.KindUint64
	tagKind[TagFloat64] = zerialize.KindFloat64
	tagKind[TagString] = zerialize.KindString
	tagKind[TagBinary] = zerialize.KindBinary
	tagKind[TagAlignedBinary] = zerialize.KindBinary
	tagKind[TagArray] = zerialize.KindArray
	tagKind[TagMap] = zerialize.KindMap

	zerialize.Register(Protocol)
}

// Format binds the codec to the zerialize registry. The zero value writes
// unaligned buffers; With returns a copy carrying writer options.
type Format struct {
	opts []Option
}

// Protocol is the registered "zera" protocol.
var Protocol = Format{}

// With returns a format whose roots are created with opts.
func (f Format) With(opts ...Option) Format {
	all := make([]Option, 0, len(f.opts)+len(opts))
	all = append(all, f.opts...)
	all = append(all, opts...)
	return Format{opts: all}
}

func (Format) Name() string { return "zera" }

func (f Format) NewRoot() zerialize.RootSerializer { return NewRoot(f.opts...) }

func (Format) NewView(data []byte) (zerialize.View, error) {
	v, err := NewView(data)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// ValidAlignment reports whether a is a power of two in [1, MaxAlignment].
func ValidAlignment(a int) bool {
	return a >= 1 && a <= MaxAlignment && a&(a-1) == 0
}
