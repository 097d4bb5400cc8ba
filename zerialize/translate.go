package zerialize

import (
	"github.com/rs/zerolog"
)

// DefaultMaxDepth bounds the nesting the translator follows.
const DefaultMaxDepth = 512

// TranslateOption configures WriteView and Translate.
type TranslateOption func(*translator)

// WithLogger sets a logger that records representation fallbacks at debug
// level. The default logger discards everything.
func WithLogger(l zerolog.Logger) TranslateOption {
	return func(t *translator) {
		t.log = l
	}
}

// WithMaxDepth sets the maximum container nesting. Deeper input fails with
// ErrMalformed.
func WithMaxDepth(n int) TranslateOption {
	return func(t *translator) {
		t.maxDepth = n
	}
}

type translator struct {
	w        Writer
	log      zerolog.Logger
	maxDepth int
	native   bool
	blobs    int
}

// WriteView replays src into w depth first, preserving array and map
// order, in a single pass over src. Binary values are written as the blob
// fallback when w has no native binary type. Decode errors from src are
// annotated with the path of the failing node.
func WriteView(src View, w Writer, opts ...TranslateOption) error {
	t := &translator{
		w:        w,
		log:      zerolog.Nop(),
		maxDepth: DefaultMaxDepth,
		native:   HasNativeBinary(w),
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.value(src, 0); err != nil {
		return err
	}
	if t.blobs > 0 {
		t.log.Debug().Int("blobs", t.blobs).Msg("binary values written as base64 fallback")
	}
	return nil
}

// Translate replays src into a fresh writer of dst and returns the bytes.
func Translate(src View, dst Protocol, opts ...TranslateOption) ([]byte, error) {
	root := dst.NewRoot()
	if err := WriteView(src, root.Writer(), opts...); err != nil {
		return nil, err
	}
	return root.Finish()
}

// TranslateBytes decodes data as from and re-encodes it as to.
func TranslateBytes(data []byte, from, to Protocol, opts ...TranslateOption) ([]byte, error) {
	src, err := from.NewView(data)
	if err != nil {
		return nil, err
	}
	return Translate(src, to, opts...)
}

func (t *translator) value(v View, depth int) error {
	switch v.Kind() {
	case KindNull:
		return t.w.Null()
	case KindBool:
		b, err := v.AsBool()
		if err != nil {
			return err
		}
		return t.w.Bool(b)
	case KindInt64:
		i, err := v.AsInt64()
		if err != nil {
			return err
		}
		return t.w.Int64(i)
	case KindUint64:
		u, err := v.AsUint64()
		if err != nil {
			return err
		}
		return t.w.Uint64(u)
	case KindFloat64:
		f, err := v.AsFloat64()
		if err != nil {
			return err
		}
		return t.w.Float64(f)
	case KindString:
		s, err := v.AsString()
		if err != nil {
			return err
		}
		return t.w.String(s)
	case KindBinary:
		b, err := v.AsBinary()
		if err != nil {
			return err
		}
		if t.native {
			return t.w.Binary(b)
		}
		t.blobs++
		t.log.Debug().Int("bytes", len(b)).Msg("blob fallback")
		return WriteBlob(t.w, b)
	case KindArray:
		return t.array(v, depth+1)
	case KindMap:
		return t.object(v, depth+1)
	}
	return Decodef("zerialize: translate", ErrMalformed, "unknown kind %d", v.Kind())
}

func (t *translator) array(v View, depth int) error {
	if depth > t.maxDepth {
		return Decodef("zerialize: translate", ErrMalformed, "nesting deeper than %d", t.maxDepth)
	}
	n, err := v.Len()
	if err != nil {
		return err
	}
	if err := t.w.BeginArray(n); err != nil {
		return err
	}
	err = v.Elements(func(i int, e View) error {
		if err := t.value(e, depth); err != nil {
			return WithPathPrefix(err, IndexSegment(i))
		}
		return nil
	})
	if err != nil {
		return err
	}
	return t.w.EndArray()
}

func (t *translator) object(v View, depth int) error {
	if depth > t.maxDepth {
		return Decodef("zerialize: translate", ErrMalformed, "nesting deeper than %d", t.maxDepth)
	}
	n, err := v.Len()
	if err != nil {
		return err
	}
	if err := t.w.BeginMap(n); err != nil {
		return err
	}
	err = v.Entries(func(k string, e View) error {
		if err := t.w.Key(k); err != nil {
			return err
		}
		if err := t.value(e, depth); err != nil {
			return WithPathPrefix(err, KeySegment(k))
		}
		return nil
	})
	if err != nil {
		return err
	}
	return t.w.EndMap()
}
