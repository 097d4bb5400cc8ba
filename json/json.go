package json

import (
	"github.com/Neumenon/zerialize/zerialize"
)

func init() {
	zerialize.Register(Protocol)
}

// Format binds the backend to the zerialize registry. With returns a copy
// whose roots carry writer options.
type Format struct {
	opts []Option
}

// Protocol is the registered "json" protocol.
var Protocol = Format{}

// With returns a format whose roots are created with opts.
func (f Format) With(opts ...Option) Format {
	all := make([]Option, 0, len(f.opts)+len(opts))
	all = append(all, f.opts...)
	all = append(all, opts...)
	return Format{opts: all}
}

func (Format) Name() string { return "json" }

func (f Format) NewRoot() zerialize.RootSerializer { return NewRoot(f.opts...) }

func (Format) NewView(data []byte) (zerialize.View, error) {
	v, err := NewView(data)
	if err != nil {
		return nil, err
	}
	return v, nil
}
