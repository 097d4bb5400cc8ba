package zerialize

import (
	"strings"
)

// Frame is one open container on a writer's nesting stack.
type Frame struct {
	Kind  Kind // KindArray or KindMap
	Count int  // Children written so far
	Mark  int  // Backend-defined, typically the offset of a count to back-patch

	seg     string // Path segment of this container within its parent
	keyed   bool   // Map only: a key is waiting for its value
	pending string
	keys    map[string]struct{}
}

// Stack is the nesting state machine shared by every Writer. It enforces
// the writer contract (a single root value, one key before each map value,
// matching End calls, unique keys) and remembers the first violation so a
// misused writer fails fast on every later call.
//
// The zero value is usable; Name prefixes error operations.
type Stack struct {
	Name string

	frames   []Frame
	rootDone bool
	err      error
}

// NewStack returns a stack whose errors are reported as "<name>: <op>".
func NewStack(name string) *Stack {
	return &Stack{Name: name}
}

// Err returns the sticky error, if any.
func (s *Stack) Err() error { return s.err }

// Depth returns the number of open containers.
func (s *Stack) Depth() int { return len(s.frames) }

// Empty reports whether nothing has been written yet.
func (s *Stack) Empty() bool { return !s.rootDone }

// Top returns the innermost open container, or nil at the root.
func (s *Stack) Top() *Frame {
	if len(s.frames) == 0 {
		return nil
	}
	return &s.frames[len(s.frames)-1]
}

// Path renders the structural path of the innermost open container.
func (s *Stack) Path() string {
	var sb strings.Builder
	for i := range s.frames {
		sb.WriteString(s.frames[i].seg)
	}
	return sb.String()
}

// Fail records err as the sticky error and returns it. An EncodeError
// without a path gets the current one.
func (s *Stack) Fail(err error) error {
	if s.err != nil {
		return s.err
	}
	if ee, ok := err.(*EncodeError); ok && ee.Path == "" {
		ee.Path = s.elemPath()
	}
	s.err = err
	return err
}

// Failf records a new EncodeError for op wrapping cond.
func (s *Stack) Failf(op string, cond error, format string, args ...interface{}) error {
	return s.Fail(Encodef(s.op(op), cond, format, args...))
}

func (s *Stack) op(name string) string {
	if s.Name == "" {
		return "zerialize: " + name
	}
	return s.Name + ": " + name
}

// elemPath is the path of the element about to be written.
func (s *Stack) elemPath() string {
	top := s.Top()
	if top == nil {
		return ""
	}
	p := s.Path()
	switch {
	case top.Kind == KindArray:
		return p + IndexSegment(top.Count)
	case top.keyed:
		return p + KeySegment(top.pending)
	}
	return p
}

// Value must be called before emitting any value, scalar or container. It
// returns the index of the value within its parent (-1 at the root).
func (s *Stack) Value(op string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	top := s.Top()
	if top == nil {
		if s.rootDone {
			return 0, s.Failf(op, ErrNesting, "root value already written")
		}
		s.rootDone = true
		return -1, nil
	}
	if top.Kind == KindMap {
		if !top.keyed {
			return 0, s.Failf(op, ErrNesting, "map value without a preceding key")
		}
		top.keyed = false
	}
	idx := top.Count
	top.Count++
	return idx, nil
}

// Key must be called before emitting a map key. It returns the index of the
// entry within the map.
func (s *Stack) Key(key string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	top := s.Top()
	if top == nil || top.Kind != KindMap {
		return 0, s.Failf("key", ErrNesting, "key %q outside a map", key)
	}
	if top.keyed {
		return 0, s.Failf("key", ErrNesting, "key %q follows key %q without a value", key, top.pending)
	}
	if top.keys == nil {
		top.keys = make(map[string]struct{})
	}
	if _, dup := top.keys[key]; dup {
		top.pending = key
		top.keyed = true
		return 0, s.Failf("key", ErrDuplicateKey, "%q", key)
	}
	top.keys[key] = struct{}{}
	top.pending = key
	top.keyed = true
	return top.Count, nil
}

// Push opens a container. The caller must have called Value first. mark is
// kept on the frame and handed back by Pop.
func (s *Stack) Push(kind Kind, mark int) {
	seg := ""
	if top := s.Top(); top != nil {
		// Value already advanced Count past this container.
		if top.Kind == KindArray {
			seg = IndexSegment(top.Count - 1)
		} else {
			seg = KeySegment(top.pending)
		}
	}
	s.frames = append(s.frames, Frame{Kind: kind, Mark: mark, seg: seg})
}

// Pop closes the innermost container, which must be of the given kind.
func (s *Stack) Pop(kind Kind) (Frame, error) {
	if s.err != nil {
		return Frame{}, s.err
	}
	op := "end_array"
	if kind == KindMap {
		op = "end_map"
	}
	top := s.Top()
	if top == nil {
		return Frame{}, s.Failf(op, ErrNesting, "no open %s", kind)
	}
	if top.Kind != kind {
		return Frame{}, s.Failf(op, ErrNesting, "innermost open container is a %s", top.Kind)
	}
	if top.keyed {
		return Frame{}, s.Failf(op, ErrNesting, "key %q has no value", top.pending)
	}
	f := *top
	s.frames = s.frames[:len(s.frames)-1]
	return f, nil
}

// Finish checks that every container was closed.
func (s *Stack) Finish() error {
	if s.err != nil {
		return s.err
	}
	if top := s.Top(); top != nil {
		return s.Failf("finish", ErrNesting, "%d unclosed container(s)", len(s.frames))
	}
	return nil
}
