// Package tensor stores dense numeric arrays in any zerialize format.
//
// A tensor is encoded as a map with three entries:
//
//	"shape": array of non-negative integers (dimension sizes, outermost first)
//	"dtype": integer element type code
//	"data":  binary, row-major elements in little-endian byte order
//
// Writers that support aligned binary receive the payload aligned to the
// element size (at least 8), so readers over a Zera buffer can hand out the
// elements without copying.
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/Neumenon/zerialize/zerialize"
)

// Map keys.
const (
	ShapeKey = "shape"
	DTypeKey = "dtype"
	DataKey  = "data"
)

// DType is the element type code stored under "dtype".
type DType int

const (
	Int8    DType = 0
	Int16   DType = 1
	Int32   DType = 2
	Int64   DType = 3
	Uint8   DType = 4
	Uint16  DType = 5
	Uint32  DType = 6
	Uint64  DType = 7
	Float32 DType = 10
	Float64 DType = 11
)

func (d DType) String() string {
	switch d {
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

// Size returns the element width in bytes, or 0 for an unknown code.
func (d DType) Size() int {
	switch d {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	return 0
}

// Element is the set of supported element types.
type Element interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

// DTypeOf returns the code for T.
func DTypeOf[T Element]() DType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case float32:
		return Float32
	default:
		return Float64
	}
}

// Reason says why a tensor read did or did not alias the source buffer.
type Reason int

const (
	// Ok means the data slice aliases the source buffer.
	Ok Reason = iota
	// Copied means the view returned an owned copy of the payload.
	Copied
	// Misaligned means the payload was borrowed but not aligned for T.
	Misaligned
)

func (r Reason) String() string {
	switch r {
	case Ok:
		return "ok"
	case Copied:
		return "copied"
	case Misaligned:
		return "misaligned"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// ViewInfo describes how Read produced a tensor's data.
type ViewInfo struct {
	ZeroCopy          bool
	Reason            Reason
	RequiredAlignment int
	Address           uintptr
	ByteSize          int
}

// Tensor is a shaped, row-major array of T.
type Tensor[T Element] struct {
	Shape []uint32
	Data  []T

	// Info is set by Read.
	Info ViewInfo
}

// Of returns a tensor over data. It does not copy.
func Of[T Element](shape []uint32, data []T) *Tensor[T] {
	return &Tensor[T]{Shape: shape, Data: data}
}

// DType returns the element type code.
func (t *Tensor[T]) DType() DType { return DTypeOf[T]() }

// Len returns the element count implied by the shape.
func (t *Tensor[T]) Len() (int, error) {
	return elements(t.Shape)
}

// Serialize writes the tensor map. It fails if the shape does not match
// the data length.
func (t *Tensor[T]) Serialize(w zerialize.Writer) error {
	n, err := t.Len()
	if err != nil {
		return zerialize.Encodef("tensor: serialize", zerialize.ErrRange, "%v", err)
	}
	if n != len(t.Data) {
		return zerialize.Encodef("tensor: serialize", zerialize.ErrRange,
			"shape %v holds %d elements, data has %d", t.Shape, n, len(t.Data))
	}
	if err := w.BeginMap(3); err != nil {
		return err
	}
	if err := w.Key(ShapeKey); err != nil {
		return err
	}
	if err := w.BeginArray(len(t.Shape)); err != nil {
		return err
	}
	for _, d := range t.Shape {
		if err := w.Uint64(uint64(d)); err != nil {
			return err
		}
	}
	if err := w.EndArray(); err != nil {
		return err
	}
	if err := w.Key(DTypeKey); err != nil {
		return err
	}
	if err := w.Int64(int64(t.DType())); err != nil {
		return err
	}
	if err := w.Key(DataKey); err != nil {
		return err
	}
	b := bytesOf(t.Data)
	if aw, ok := w.(zerialize.AlignedBinaryWriter); ok {
		if err := aw.AlignedBinary(b, Alignment[T]()); err != nil {
			return err
		}
	} else if err := w.Binary(b); err != nil {
		return err
	}
	return w.EndMap()
}

// Alignment returns the payload alignment requested for T on writers that
// support aligned binary.
func Alignment[T Element]() int {
	if s := DTypeOf[T]().Size(); s > 8 {
		return s
	}
	return 8
}

// Is reports whether v looks like a tensor of element type T.
func Is[T Element](v zerialize.View) bool {
	if v.Kind() != zerialize.KindMap {
		return false
	}
	s, err := v.Key(ShapeKey)
	if err != nil || s.Kind() != zerialize.KindArray {
		return false
	}
	d, err := v.Key(DTypeKey)
	if err != nil || !d.Kind().IsInteger() {
		return false
	}
	code, err := d.AsInt64()
	if err != nil || DType(code) != DTypeOf[T]() {
		return false
	}
	b, err := v.Key(DataKey)
	return err == nil && b.Kind() == zerialize.KindBinary
}

// Read decodes a tensor of element type T from v. When the view borrows
// the payload and it is aligned for T on a little-endian host, Data
// aliases the source buffer; otherwise it is a copy. Info records which.
func Read[T Element](v zerialize.View) (*Tensor[T], error) {
	const op = "tensor: read"
	if v.Kind() != zerialize.KindMap {
		return nil, zerialize.Mismatch(op, "map", v.Kind())
	}
	dv, err := v.Key(DTypeKey)
	if err != nil {
		return nil, err
	}
	code, err := dv.AsInt64()
	if err != nil {
		return nil, zerialize.WithPathPrefix(err, zerialize.KeySegment(DTypeKey))
	}
	want := DTypeOf[T]()
	if DType(code) != want {
		return nil, zerialize.Decodef(op, zerialize.ErrTypeMismatch,
			"want %s tensor, found %s", want, DType(code))
	}
	sv, err := v.Key(ShapeKey)
	if err != nil {
		return nil, err
	}
	shape, err := readShape(sv)
	if err != nil {
		return nil, zerialize.WithPathPrefix(err, zerialize.KeySegment(ShapeKey))
	}
	n, err := elements(shape)
	if err != nil {
		return nil, zerialize.Decodef(op, zerialize.ErrRange, "%v", err)
	}
	bv, err := v.Key(DataKey)
	if err != nil {
		return nil, err
	}
	b, err := bv.AsBinary()
	if err != nil {
		return nil, zerialize.WithPathPrefix(err, zerialize.KeySegment(DataKey))
	}
	size := want.Size()
	if uint64(len(b)) != uint64(n)*uint64(size) {
		return nil, zerialize.Decodef(op, zerialize.ErrMalformed,
			"expected %d bytes, found %d", n*size, len(b))
	}

	t := &Tensor[T]{Shape: shape}
	t.Info = ViewInfo{
		RequiredAlignment: size,
		Address:           uintptr(unsafe.Pointer(unsafe.SliceData(b))),
		ByteSize:          len(b),
	}
	switch {
	case !zerialize.BorrowsBinary(bv) || !littleEndian:
		t.Info.Reason = Copied
	case t.Info.Address%uintptr(size) != 0:
		t.Info.Reason = Misaligned
	default:
		t.Info.ZeroCopy = true
		t.Info.Reason = Ok
		if n > 0 {
			t.Data = unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
		} else {
			t.Data = []T{}
		}
		return t, nil
	}
	t.Data = make([]T, n)
	if _, err := binary.Decode(b, binary.LittleEndian, t.Data); err != nil {
		return nil, zerialize.Decodef(op, zerialize.ErrMalformed, "%v", err)
	}
	return t, nil
}

func readShape(v zerialize.View) ([]uint32, error) {
	n, err := v.Len()
	if err != nil {
		return nil, err
	}
	shape := make([]uint32, 0, min(n, 64))
	err = v.Elements(func(i int, d zerialize.View) error {
		u, err := zerialize.AsUnsigned[uint32](d)
		if err != nil {
			return zerialize.WithPathPrefix(err, zerialize.IndexSegment(i))
		}
		shape = append(shape, u)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shape, nil
}

// elements multiplies the dimensions, failing on overflow.
func elements(shape []uint32) (int, error) {
	n := uint64(1)
	for _, d := range shape {
		if d != 0 && n > math.MaxInt32/uint64(d) {
			return 0, fmt.Errorf("shape %v overflows", shape)
		}
		n *= uint64(d)
	}
	return int(n), nil
}

var littleEndian = func() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// bytesOf returns the little-endian bytes of data, aliasing it on
// little-endian hosts.
func bytesOf[T Element](data []T) []byte {
	if len(data) == 0 {
		return []byte{}
	}
	if littleEndian {
		size := int(unsafe.Sizeof(data[0]))
		return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(data))), len(data)*size)
	}
	b, _ := binary.Append(nil, binary.LittleEndian, data)
	return b
}
