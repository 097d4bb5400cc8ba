// Package stream frames encoded zerialize documents on a byte stream.
//
// Each frame is a one-line text header followed by exactly len payload
// bytes and a newline:
//
//	@frame{v=1 seq=N fmt=<protocol> len=N [crc=X] [z=zstd] [final=true]}\n
//	<payload bytes>\n
//
// The payload is read by length, never by delimiter, so binary formats may
// contain newlines and braces. fmt names a registered zerialize protocol.
// When z=zstd is present the payload on the wire is zstd-compressed and
// len and crc describe the compressed bytes.
package stream

import (
	"fmt"

	"github.com/Neumenon/zerialize/zerialize"
)

// Version is the framing version.
const Version uint8 = 1

// MaxPayloadSize is the default maximum payload size (64 MiB).
const MaxPayloadSize = 64 * 1024 * 1024

// Compression names the payload codec of a frame.
type Compression string

const (
	CompressNone Compression = ""
	CompressZstd Compression = "zstd"
)

// Frame is one framed document.
type Frame struct {
	Version uint8
	Seq     uint64
	Format  string // Protocol name, e.g. "msgpack"
	Payload []byte // Encoded document, after decompression

	CRC         *uint32     // CRC-32 of the wire payload (nil if absent)
	Compression Compression // Wire codec
	Final       bool        // End-of-stream marker
}

// HasCRC returns true if CRC is present.
func (f *Frame) HasCRC() bool {
	return f.CRC != nil
}

// Protocol resolves the frame's format in the zerialize registry.
func (f *Frame) Protocol() (zerialize.Protocol, error) {
	return zerialize.Lookup(f.Format)
}

// View returns a lazy view of the payload.
func (f *Frame) View() (zerialize.View, error) {
	p, err := f.Protocol()
	if err != nil {
		return nil, err
	}
	return p.NewView(f.Payload)
}

// ParseError reports a malformed frame header or body.
type ParseError struct {
	Reason string
	Offset int
}

func (e *ParseError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("stream: %s at offset %d", e.Reason, e.Offset)
	}
	return fmt.Sprintf("stream: %s", e.Reason)
}

// CRCMismatchError is returned when CRC verification fails.
type CRCMismatchError struct {
	Seq      uint64
	Expected uint32
	Got      uint32
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("stream: frame %d: CRC mismatch: expected %08x, got %08x", e.Seq, e.Expected, e.Got)
}

// SequenceError is returned by a Cursor when frames arrive out of order or
// after the final frame.
type SequenceError struct {
	Expected uint64
	Got      uint64
	AfterEnd bool
}

func (e *SequenceError) Error() string {
	if e.AfterEnd {
		return fmt.Sprintf("stream: frame %d after final frame", e.Got)
	}
	return fmt.Sprintf("stream: sequence gap: expected %d, got %d", e.Expected, e.Got)
}
