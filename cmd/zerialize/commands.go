package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Neumenon/zerialize/cbor"
	zjson "github.com/Neumenon/zerialize/json"
	"github.com/Neumenon/zerialize/msgpack"
	"github.com/Neumenon/zerialize/stream"
	"github.com/Neumenon/zerialize/zera"
	"github.com/Neumenon/zerialize/zerialize"
)

// maxLine bounds one JSON line read by stream encode.
const maxLine = stream.MaxPayloadSize

// readInput reads the file named by args[0], or stdin when absent or "-".
func (e *env) readInput(args []string) ([]byte, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(args[1:], " "))
	}
	if len(args) == 1 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(e.stdin)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

// protocol resolves name and applies the writer options that apply to it.
func protocol(name string, align int, indent string) (zerialize.Protocol, error) {
	p, err := zerialize.Lookup(name)
	if err != nil {
		return nil, err
	}
	switch name {
	case zera.Protocol.Name():
		if align > 1 {
			if !zera.ValidAlignment(align) {
				return nil, fmt.Errorf("invalid alignment %d", align)
			}
			return zera.Protocol.With(zera.WithAlignment(align)), nil
		}
	case zjson.Protocol.Name():
		if indent != "" {
			return zjson.Protocol.With(zjson.WithIndent(indent)), nil
		}
	}
	return p, nil
}

// validate runs the strict whole-buffer check a format offers.
func validate(name string, data []byte) error {
	switch name {
	case zera.Protocol.Name():
		return zera.Validate(data)
	case msgpack.Protocol.Name():
		return msgpack.Validate(data)
	case cbor.Protocol.Name():
		return cbor.Validate(data)
	}
	// JSON views validate on construction.
	return nil
}

func (e *env) translate(args []string) error {
	fs := newFlagSet("translate", e.stderr)
	from := fs.String("from", e.cfg.Defaults.From, "input format")
	to := fs.String("to", e.cfg.Defaults.To, "output format")
	out := fs.String("o", "", "output file (default stdout)")
	align := fs.Int("align", e.cfg.Defaults.Align, "zera binary alignment")
	indent := fs.String("indent", e.cfg.Defaults.Indent, "json indent string")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	data, err := e.readInput(fs.Args())
	if err != nil {
		return err
	}
	src, err := zerialize.Lookup(*from)
	if err != nil {
		return err
	}
	dst, err := protocol(*to, *align, *indent)
	if err != nil {
		return err
	}
	encoded, err := zerialize.TranslateBytes(data, src, dst, zerialize.WithLogger(e.log))
	if err != nil {
		return err
	}
	e.log.Info().Str("from", src.Name()).Str("to", dst.Name()).
		Int("in", len(data)).Int("out", len(encoded)).Msg("translated")

	if *out != "" {
		if err := os.WriteFile(*out, encoded, 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		return nil
	}
	if _, err := e.stdout.Write(encoded); err != nil {
		return err
	}
	if dst.Name() == zjson.Protocol.Name() {
		_, err = io.WriteString(e.stdout, "\n")
	}
	return err
}

func (e *env) dump(args []string) error {
	fs := newFlagSet("dump", e.stderr)
	from := fs.String("from", e.cfg.Defaults.From, "input format")
	strict := fs.Bool("validate", false, "check the whole buffer before printing")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	data, err := e.readInput(fs.Args())
	if err != nil {
		return err
	}
	p, err := zerialize.Lookup(*from)
	if err != nil {
		return err
	}
	if *strict {
		if err := validate(p.Name(), data); err != nil {
			return err
		}
	}
	v, err := p.NewView(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.stdout, zerialize.Dump(v))
	return err
}

func (e *env) formats() error {
	for _, name := range zerialize.Protocols() {
		p, err := zerialize.Lookup(name)
		if err != nil {
			return err
		}
		binary := "native binary"
		if !zerialize.HasNativeBinary(p.NewRoot().Writer()) {
			binary = "binary via base64 blob"
		}
		fmt.Fprintf(e.stdout, "%-8s %s\n", name, binary)
	}
	return nil
}

// streamEncode frames each non-blank JSON line of the input as one
// document in the target format. The last frame is marked final.
func (e *env) streamEncode(args []string) error {
	fs := newFlagSet("stream encode", e.stderr)
	to := fs.String("to", e.cfg.Defaults.To, "payload format")
	withCRC := fs.Bool("crc", e.cfg.Defaults.CRC, "add CRC-32 to frames")
	level := fs.Int("compress", e.cfg.Defaults.Compress, "zstd level (0 disables)")
	align := fs.Int("align", e.cfg.Defaults.Align, "zera binary alignment")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	data, err := e.readInput(fs.Args())
	if err != nil {
		return err
	}
	dst, err := protocol(*to, *align, "")
	if err != nil {
		return err
	}

	var opts []stream.WriterOption
	if *withCRC {
		opts = append(opts, stream.WithCRC())
	}
	if *level > 0 {
		opts = append(opts, stream.WithCompression(*level))
	}
	bw := bufio.NewWriter(e.stdout)
	w := stream.NewWriter(bw, opts...)
	defer w.Close()

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	var pending []byte
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		payload, err := zerialize.TranslateBytes(text, zjson.Protocol, dst, zerialize.WithLogger(e.log))
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if pending != nil {
			if err := w.Write(dst.Name(), pending); err != nil {
				return err
			}
		}
		pending = payload
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if pending != nil {
		if err := w.WriteFinal(dst.Name(), pending); err != nil {
			return err
		}
	}
	e.log.Info().Uint64("frames", w.Seq()).Str("fmt", dst.Name()).Msg("encoded stream")
	return bw.Flush()
}

func (e *env) streamDecode(args []string) error {
	fs := newFlagSet("stream decode", e.stderr)
	noCRC := fs.Bool("no-crc", false, "skip CRC verification")
	strict := fs.Bool("strict", false, "fail on sequence gaps")
	maxPayload := fs.Int("max-payload", stream.MaxPayloadSize, "maximum payload bytes")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args()[1:], " "))
	}
	var input io.Reader = e.stdin
	if fs.NArg() == 1 && fs.Arg(0) != "-" {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("open file: %w", err)
		}
		defer f.Close()
		input = f
	}

	opts := []stream.ReaderOption{
		stream.WithCRCVerification(!*noCRC),
		stream.WithMaxPayload(*maxPayload),
	}
	cursor := stream.NewCursor()
	if *strict {
		opts = append(opts, stream.WithCursor(cursor))
	}
	r := stream.NewReader(input, opts...)
	defer r.Close()

	frameNum, failed := 0, 0
	for {
		frame, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			var seqErr *stream.SequenceError
			if errors.As(err, &seqErr) {
				return err
			}
			failed++
			fmt.Fprintf(e.stderr, "frame %d: error: %v\n", frameNum, err)
			continue
		}
		frameNum++
		e.printFrame(frameNum, frame)
	}

	fmt.Fprintf(e.stderr, "\n--- %d frames decoded ---\n", frameNum)
	if failed > 0 {
		return fmt.Errorf("%d frames failed", failed)
	}
	return nil
}

func (e *env) printFrame(n int, f *stream.Frame) {
	fmt.Fprintf(e.stdout, "--- Frame %d ---\n", n)
	fmt.Fprintf(e.stdout, "  seq=%d fmt=%s len=%d\n", f.Seq, f.Format, len(f.Payload))
	if f.CRC != nil {
		fmt.Fprintf(e.stdout, "  crc=%08x\n", *f.CRC)
	}
	if f.Compression != stream.CompressNone {
		fmt.Fprintf(e.stdout, "  z=%s\n", f.Compression)
	}
	if f.Final {
		fmt.Fprintf(e.stdout, "  final=true\n")
	}

	v, err := f.View()
	if err != nil {
		fmt.Fprintf(e.stdout, "  error: %v\n", err)
		return
	}
	text := zerialize.Dump(v)
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	fmt.Fprintf(e.stdout, "  value: %s\n", text)
}
