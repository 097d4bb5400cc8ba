package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// maxHeaderLen bounds a header line so a stream without newlines cannot
// grow the buffer without limit.
const maxHeaderLen = 4096

// Reader reads frames from an io.Reader.
type Reader struct {
	r          *bufio.Reader
	maxPayload int
	verifyCRC  bool
	cursor     *Cursor
	dec        *zstd.Decoder
	off        int // Bytes consumed so far
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithMaxPayload sets the maximum payload size, applied both to the wire
// payload and to the decompressed document (default: 64 MiB).
func WithMaxPayload(max int) ReaderOption {
	return func(r *Reader) {
		r.maxPayload = max
	}
}

// WithCRCVerification turns CRC verification on or off (default on).
func WithCRCVerification(on bool) ReaderOption {
	return func(r *Reader) {
		r.verifyCRC = on
	}
}

// WithCursor checks every frame against c. Out-of-order frames fail with
// a *SequenceError.
func WithCursor(c *Cursor) ReaderOption {
	return func(r *Reader) {
		r.cursor = c
	}
}

// NewReader creates a frame reader.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	reader := &Reader{
		r:          bufio.NewReader(r),
		maxPayload: MaxPayloadSize,
		verifyCRC:  true,
	}
	for _, opt := range opts {
		opt(reader)
	}
	return reader
}

// Next reads and returns the next frame.
// Returns io.EOF when no more frames are available.
func (r *Reader) Next() (*Frame, error) {
	line, start, err := r.readLine()
	if err != nil {
		return nil, err
	}
	frame, payloadLen, err := parseHeader(line, start)
	if err != nil {
		return nil, err
	}
	if payloadLen > r.maxPayload {
		return nil, &ParseError{Reason: fmt.Sprintf("payload too large: %d > %d", payloadLen, r.maxPayload), Offset: start}
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &ParseError{Reason: fmt.Sprintf("truncated payload: want %d bytes", payloadLen), Offset: r.off}
		}
		return nil, fmt.Errorf("stream: read payload: %w", err)
	}
	r.off += payloadLen

	// Trailing newline is optional at EOF.
	if b, err := r.r.ReadByte(); err == nil {
		if b != '\n' {
			_ = r.r.UnreadByte()
		} else {
			r.off++
		}
	}

	if r.verifyCRC && frame.CRC != nil {
		if computed := ComputeCRC(payload); computed != *frame.CRC {
			return nil, &CRCMismatchError{Seq: frame.Seq, Expected: *frame.CRC, Got: computed}
		}
	}

	switch frame.Compression {
	case CompressNone:
		frame.Payload = payload
	case CompressZstd:
		if frame.Payload, err = r.decompress(payload); err != nil {
			return nil, &ParseError{Reason: "zstd: " + err.Error(), Offset: start}
		}
	}

	if r.cursor != nil {
		if err := r.cursor.Observe(frame); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// readLine returns the next non-blank header line and its offset.
func (r *Reader) readLine() (string, int, error) {
	var sb strings.Builder
	for {
		chunk, err := r.r.ReadSlice('\n')
		sb.Write(chunk)
		r.off += len(chunk)
		start := r.off - sb.Len()
		if sb.Len() > maxHeaderLen {
			return "", start, &ParseError{Reason: "header line too long", Offset: start}
		}
		switch {
		case err == nil:
			if strings.TrimSpace(sb.String()) == "" {
				sb.Reset()
				continue
			}
			return sb.String(), start, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if strings.TrimSpace(sb.String()) == "" {
				return "", start, io.EOF
			}
			return "", start, &ParseError{Reason: "truncated header", Offset: start}
		default:
			return "", start, fmt.Errorf("stream: read header: %w", err)
		}
	}
}

func (r *Reader) decompress(payload []byte) ([]byte, error) {
	if r.dec == nil {
		dec, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(uint64(r.maxPayload)))
		if err != nil {
			return nil, err
		}
		r.dec = dec
	}
	out, err := r.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, err
	}
	if len(out) > r.maxPayload {
		return nil, fmt.Errorf("decompressed payload too large: %d > %d", len(out), r.maxPayload)
	}
	return out, nil
}

// parseHeader parses an @frame{...} header line starting at offset off.
func parseHeader(line string, off int) (*Frame, int, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "@frame{") {
		return nil, 0, &ParseError{Reason: "expected @frame{", Offset: off}
	}
	if !strings.HasSuffix(line, "}") {
		return nil, 0, &ParseError{Reason: "missing closing }", Offset: off + len(line)}
	}
	content := line[len("@frame{") : len(line)-1]

	frame := &Frame{Version: Version}
	payloadLen := -1
	for _, pair := range strings.Fields(content) {
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, 0, &ParseError{Reason: "malformed field: " + pair, Offset: off}
		}
		switch key {
		case "v":
			v, err := strconv.ParseUint(val, 10, 8)
			if err != nil || v != uint64(Version) {
				return nil, 0, &ParseError{Reason: "unsupported version: " + val, Offset: off}
			}
			frame.Version = uint8(v)
		case "seq":
			seq, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return nil, 0, &ParseError{Reason: "invalid seq: " + val, Offset: off}
			}
			frame.Seq = seq
		case "fmt":
			if val == "" {
				return nil, 0, &ParseError{Reason: "empty fmt", Offset: off}
			}
			frame.Format = val
		case "len":
			l, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return nil, 0, &ParseError{Reason: "invalid len: " + val, Offset: off}
			}
			payloadLen = int(l)
		case "crc":
			crc, ok := parseCRC(val)
			if !ok {
				return nil, 0, &ParseError{Reason: "invalid crc: " + val, Offset: off}
			}
			frame.CRC = &crc
		case "z":
			if Compression(val) != CompressZstd {
				return nil, 0, &ParseError{Reason: "unknown compression: " + val, Offset: off}
			}
			frame.Compression = CompressZstd
		case "final":
			frame.Final = val == "true" || val == "1"
		}
		// Unknown keys are ignored so later versions can add fields.
	}
	if frame.Format == "" {
		return nil, 0, &ParseError{Reason: "missing fmt", Offset: off}
	}
	if payloadLen < 0 {
		return nil, 0, &ParseError{Reason: "missing len", Offset: off}
	}
	return frame, payloadLen, nil
}

// ReadAll reads all frames until EOF.
func (r *Reader) ReadAll() ([]*Frame, error) {
	var frames []*Frame
	for {
		frame, err := r.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
	}
}

// Close releases the decompressor. It does not close the underlying reader.
func (r *Reader) Close() {
	if r.dec != nil {
		r.dec.Close()
	}
}
