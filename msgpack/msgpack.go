package msgpack

import (
	"github.com/Neumenon/zerialize/zerialize"
)

func init() {
	zerialize.Register(Protocol)
}

type format struct{}

// Protocol is the registered "msgpack" protocol.
var Protocol zerialize.Protocol = format{}

func (format) Name() string { return "msgpack" }

func (format) NewRoot() zerialize.RootSerializer { return NewRoot() }

func (format) NewView(data []byte) (zerialize.View, error) {
	v, err := NewView(data)
	if err != nil {
		return nil, err
	}
	return v, nil
}
