package zerialize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error conditions. Every error returned by this module wraps exactly one of
// these, so callers can branch with errors.Is.
var (
	// Construction/encoding conditions.
	ErrNesting      = errors.New("nesting violation")
	ErrDuplicateKey = errors.New("duplicate map key")
	ErrRange        = errors.New("value out of range")

	// Decoding/access conditions.
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrKeyNotFound      = errors.New("key not found")
	ErrMalformed        = errors.New("malformed input")
	ErrInvalidBase64    = errors.New("invalid base64")
	ErrUnknownProtocol  = errors.New("unknown protocol")
	ErrUnsupportedValue = errors.New("unsupported value")
)

// EncodeError is raised by Writer misuse (nesting violations, duplicate
// keys) or by a value the target format cannot represent.
type EncodeError struct {
	Op   string // Failing operation, e.g. "zera: end_array"
	Path string // Structural path relative to the root ("" is the root)
	Msg  string // Optional detail
	Err  error  // One of the Err* conditions
}

func (e *EncodeError) Error() string {
	return formatError(e.Op, e.Path, e.Msg, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError is raised by View misuse (type mismatch, index out of range,
// missing key) or by bytes that are malformed for the given format.
type DecodeError struct {
	Op   string
	Path string
	Msg  string
	Err  error
}

func (e *DecodeError) Error() string {
	return formatError(e.Op, e.Path, e.Msg, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func formatError(op, path, msg string, err error) string {
	var sb strings.Builder
	sb.WriteString(op)
	sb.WriteString(" at $")
	sb.WriteString(path)
	sb.WriteString(": ")
	if err != nil {
		sb.WriteString(err.Error())
	} else {
		sb.WriteString("error")
	}
	if msg != "" {
		sb.WriteString(": ")
		sb.WriteString(msg)
	}
	return sb.String()
}

// Encodef builds an EncodeError for op wrapping cond.
func Encodef(op string, cond error, format string, args ...interface{}) *EncodeError {
	return &EncodeError{Op: op, Msg: fmt.Sprintf(format, args...), Err: cond}
}

// Decodef builds a DecodeError for op wrapping cond.
func Decodef(op string, cond error, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Op: op, Msg: fmt.Sprintf(format, args...), Err: cond}
}

// Mismatch is the DecodeError returned by typed extraction when the value
// has a different kind.
func Mismatch(op string, want string, got Kind) *DecodeError {
	return &DecodeError{Op: op, Msg: fmt.Sprintf("expected %s, got %s", want, got), Err: ErrTypeMismatch}
}

// OutOfRange is the DecodeError for an array index past the end.
func OutOfRange(op string, i, n int) *DecodeError {
	return &DecodeError{Op: op, Path: IndexSegment(i), Msg: fmt.Sprintf("length %d", n), Err: ErrIndexOutOfRange}
}

// NotFound is the DecodeError for a missing map key.
func NotFound(op string, key string) *DecodeError {
	return &DecodeError{Op: op, Path: KeySegment(key), Err: ErrKeyNotFound}
}

// ============================================================
// Structural paths
// ============================================================

// KeySegment renders a map key as a path segment.
func KeySegment(key string) string {
	if isPlainKey(key) {
		return "." + key
	}
	return "[" + strconv.Quote(key) + "]"
}

// IndexSegment renders an array index as a path segment.
func IndexSegment(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}

func isPlainKey(key string) bool {
	if key == "" {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// WithPathPrefix prepends seg to the path of a DecodeError. Encode errors
// already carry the writer's path and are returned unchanged, as is any
// other error.
func WithPathPrefix(err error, seg string) error {
	var de *DecodeError
	if errors.As(err, &de) {
		cp := *de
		cp.Path = seg + cp.Path
		return &cp
	}
	return err
}

// IsEncodeError reports whether err is a construction/encoding error.
func IsEncodeError(err error) bool {
	var ee *EncodeError
	return errors.As(err, &ee)
}

// IsDecodeError reports whether err is a decoding/access error.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
