package zerialize

import (
	"sort"
	"sync"
)

// Writer is the sequential emission interface every backend implements.
//
// Calls nest like a stack: each BeginArray/BeginMap is matched by the
// corresponding End before any enclosing End, and inside a map every value
// is preceded by exactly one Key. Count hints are advisory; a writer
// accepts fewer or more children than hinted (a negative hint means
// unknown). Misuse returns an EncodeError wrapping ErrNesting and poisons
// the writer: every later call returns the same error.
//
// A Writer is single-use and not safe for concurrent use.
type Writer interface {
	Null() error
	Bool(b bool) error
	Int64(i int64) error
	Uint64(u uint64) error
	Float64(f float64) error
	String(s string) error
	Binary(b []byte) error
	BeginArray(hint int) error
	EndArray() error
	BeginMap(hint int) error
	Key(k string) error
	EndMap() error
}

// BinaryNative is implemented by writers that can report whether their
// format has a native binary type. Writers that do not implement it are
// assumed to have one.
type BinaryNative interface {
	NativeBinary() bool
}

// AlignedBinaryWriter is implemented by writers that can place a binary
// payload at an offset that is a multiple of align.
type AlignedBinaryWriter interface {
	AlignedBinary(b []byte, align int) error
}

// HasNativeBinary reports whether w encodes Binary without a fallback.
func HasNativeBinary(w Writer) bool {
	if bn, ok := w.(BinaryNative); ok {
		return bn.NativeBinary()
	}
	return true
}

// RootSerializer owns the output buffer of one writer session.
type RootSerializer interface {
	// Writer returns the session's writer. Repeated calls return the same one.
	Writer() Writer

	// Finish validates the session and returns the immutable encoded bytes.
	// A session with no calls yields the format's canonical empty encoding.
	Finish() ([]byte, error)
}

// Protocol binds a format's buffer owner, writer, and view together.
type Protocol interface {
	Name() string
	NewRoot() RootSerializer
	NewView(data []byte) (View, error)
}

// ============================================================
// Registry
// ============================================================

var (
	protocolsMu sync.RWMutex
	protocols   = make(map[string]Protocol)
)

// Register makes a protocol available by name. Backends call it from init.
// It panics if Register is called twice with the same name or with nil.
func Register(p Protocol) {
	protocolsMu.Lock()
	defer protocolsMu.Unlock()
	if p == nil {
		panic("zerialize: Register protocol is nil")
	}
	name := p.Name()
	if _, dup := protocols[name]; dup {
		panic("zerialize: Register called twice for protocol " + name)
	}
	protocols[name] = p
}

// Lookup returns the protocol registered under name.
func Lookup(name string) (Protocol, error) {
	protocolsMu.RLock()
	p, ok := protocols[name]
	protocolsMu.RUnlock()
	if !ok {
		return nil, Decodef("zerialize: lookup", ErrUnknownProtocol, "%q", name)
	}
	return p, nil
}

// Protocols returns the sorted names of the registered protocols.
func Protocols() []string {
	protocolsMu.RLock()
	defer protocolsMu.RUnlock()
	names := make([]string, 0, len(protocols))
	for name := range protocols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ============================================================
// Top-level entry points
// ============================================================

// Serialize encodes v with protocol p. v may be anything Emit accepts.
func Serialize(p Protocol, v any) ([]byte, error) {
	root := p.NewRoot()
	if err := Emit(root.Writer(), v); err != nil {
		return nil, err
	}
	return root.Finish()
}

// SerializeEmpty returns p's canonical empty encoding.
func SerializeEmpty(p Protocol) ([]byte, error) {
	return p.NewRoot().Finish()
}

// Deserialize returns a view over data in protocol p.
func Deserialize(p Protocol, data []byte) (View, error) {
	return p.NewView(data)
}
