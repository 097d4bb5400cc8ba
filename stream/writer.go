package stream

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/Neumenon/zerialize/zerialize"
)

// Writer writes frames to an io.Writer. It is not safe for concurrent use.
type Writer struct {
	w       io.Writer
	withCRC bool
	enc     *zstd.Encoder
	err     error // Deferred option error
	seq     uint64
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCRC adds a CRC-32 of the wire payload to every frame.
func WithCRC() WriterOption {
	return func(w *Writer) {
		w.withCRC = true
	}
}

// WithCompression zstd-compresses every payload at the given zstd level
// (1 fastest, 22 smallest; values are clamped to the supported range).
func WithCompression(level int) WriterOption {
	return func(w *Writer) {
		w.enc, w.err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
			zstd.WithEncoderConcurrency(1))
	}
}

// NewWriter creates a frame writer.
func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	fw := &Writer{w: w}
	for _, opt := range opts {
		opt(fw)
	}
	return fw
}

// WriteFrame writes a single frame. Compression and CRC follow the writer's
// options unless the frame already carries a CRC, which is written as is.
func (w *Writer) WriteFrame(f *Frame) error {
	if w.err != nil {
		return w.err
	}
	if f.Format == "" || strings.ContainsAny(f.Format, " \t\n{}=") {
		return fmt.Errorf("stream: invalid format name %q", f.Format)
	}
	payload := f.Payload
	codec := CompressNone
	if w.enc != nil {
		payload = w.enc.EncodeAll(f.Payload, nil)
		codec = CompressZstd
	}

	var header strings.Builder
	header.WriteString("@frame{v=")
	if f.Version == 0 {
		header.WriteByte('1')
	} else {
		header.WriteString(strconv.Itoa(int(f.Version)))
	}
	header.WriteString(" seq=")
	header.WriteString(strconv.FormatUint(f.Seq, 10))
	header.WriteString(" fmt=")
	header.WriteString(f.Format)
	header.WriteString(" len=")
	header.WriteString(strconv.Itoa(len(payload)))

	crc := f.CRC
	if crc == nil && w.withCRC {
		computed := ComputeCRC(payload)
		crc = &computed
	}
	if crc != nil {
		header.WriteString(" crc=")
		header.WriteString(formatCRC(*crc))
	}
	if codec != CompressNone {
		header.WriteString(" z=")
		header.WriteString(string(codec))
	}
	if f.Final {
		header.WriteString(" final=true")
	}
	header.WriteString("}\n")

	if _, err := io.WriteString(w.w, header.String()); err != nil {
		return fmt.Errorf("stream: write header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.w.Write(payload); err != nil {
			return fmt.Errorf("stream: write payload: %w", err)
		}
	}
	if _, err := io.WriteString(w.w, "\n"); err != nil {
		return fmt.Errorf("stream: write trailing newline: %w", err)
	}
	if f.Seq >= w.seq {
		w.seq = f.Seq + 1
	}
	return nil
}

// Write frames an already encoded payload with the next sequence number.
func (w *Writer) Write(format string, payload []byte) error {
	return w.WriteFrame(&Frame{Version: Version, Seq: w.seq, Format: format, Payload: payload})
}

// WriteFinal frames payload as the last frame of the stream.
func (w *Writer) WriteFinal(format string, payload []byte) error {
	return w.WriteFrame(&Frame{Version: Version, Seq: w.seq, Format: format, Payload: payload, Final: true})
}

// WriteValue serializes v with p and frames the result.
func (w *Writer) WriteValue(p zerialize.Protocol, v any) error {
	payload, err := zerialize.Serialize(p, v)
	if err != nil {
		return err
	}
	return w.Write(p.Name(), payload)
}

// Seq returns the sequence number the next Write will use.
func (w *Writer) Seq() uint64 { return w.seq }

// Close releases the compressor. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.enc != nil {
		return w.enc.Close()
	}
	return nil
}
