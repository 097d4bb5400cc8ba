package zerialize

import (
	"math"
)

// maxExactFloat is the largest integer magnitude a float64 represents exactly.
const maxExactFloat = 1 << 53

// Number is a decoded numeric scalar. Backends decode into a Number and let
// it apply the shared conversion rules: integers convert between signed and
// unsigned when in range, integers widen to float64 only when exact, and
// floats never convert to integers.
type Number struct {
	Kind Kind // KindInt64, KindUint64 or KindFloat64
	I    int64
	U    uint64
	F    float64
}

// SignedNumber wraps an int64.
func SignedNumber(i int64) Number { return Number{Kind: KindInt64, I: i} }

// UnsignedNumber wraps a uint64 and keeps its unsigned kind.
func UnsignedNumber(u uint64) Number { return Number{Kind: KindUint64, U: u} }

// IntegerNumber wraps a uint64 decoded from a format that does not carry
// signedness: it is reported as KindInt64 when it fits.
func IntegerNumber(u uint64) Number {
	if u <= math.MaxInt64 {
		return Number{Kind: KindInt64, I: int64(u)}
	}
	return Number{Kind: KindUint64, U: u}
}

// FloatNumber wraps a float64.
func FloatNumber(f float64) Number { return Number{Kind: KindFloat64, F: f} }

// Int64 extracts the number as int64.
func (n Number) Int64(op string) (int64, error) {
	switch n.Kind {
	case KindInt64:
		return n.I, nil
	case KindUint64:
		if n.U > math.MaxInt64 {
			return 0, Decodef(op, ErrRange, "%d overflows int64", n.U)
		}
		return int64(n.U), nil
	}
	return 0, Mismatch(op, "integer", n.Kind)
}

// Uint64 extracts the number as uint64.
func (n Number) Uint64(op string) (uint64, error) {
	switch n.Kind {
	case KindUint64:
		return n.U, nil
	case KindInt64:
		if n.I < 0 {
			return 0, Decodef(op, ErrRange, "%d is negative", n.I)
		}
		return uint64(n.I), nil
	}
	return 0, Mismatch(op, "integer", n.Kind)
}

// Float64 extracts the number as float64.
func (n Number) Float64(op string) (float64, error) {
	switch n.Kind {
	case KindFloat64:
		return n.F, nil
	case KindInt64:
		if n.I > maxExactFloat || n.I < -maxExactFloat {
			return 0, Decodef(op, ErrRange, "%d is not exact as float64", n.I)
		}
		return float64(n.I), nil
	case KindUint64:
		if n.U > maxExactFloat {
			return 0, Decodef(op, ErrRange, "%d is not exact as float64", n.U)
		}
		return float64(n.U), nil
	}
	return 0, Mismatch(op, "number", n.Kind)
}

// ============================================================
// Narrowing extraction
// ============================================================

// Signed is the set of signed integer types AsSigned narrows to.
type Signed interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64
}

// Unsigned is the set of unsigned integer types AsUnsigned narrows to.
type Unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// AsSigned extracts v as T, failing with ErrRange instead of truncating.
func AsSigned[T Signed](v View) (T, error) {
	i, err := v.AsInt64()
	if err != nil {
		return 0, err
	}
	t := T(i)
	if int64(t) != i {
		return 0, Decodef("zerialize: narrow", ErrRange, "%d overflows %T", i, t)
	}
	return t, nil
}

// AsUnsigned extracts v as T, failing with ErrRange instead of truncating.
func AsUnsigned[T Unsigned](v View) (T, error) {
	u, err := v.AsUint64()
	if err != nil {
		return 0, err
	}
	t := T(u)
	if uint64(t) != u {
		return 0, Decodef("zerialize: narrow", ErrRange, "%d overflows %T", u, t)
	}
	return t, nil
}

// AsInt8 is AsSigned[int8].
func AsInt8(v View) (int8, error) { return AsSigned[int8](v) }

// AsInt16 is AsSigned[int16].
func AsInt16(v View) (int16, error) { return AsSigned[int16](v) }

// AsInt32 is AsSigned[int32].
func AsInt32(v View) (int32, error) { return AsSigned[int32](v) }

// AsUint8 is AsUnsigned[uint8].
func AsUint8(v View) (uint8, error) { return AsUnsigned[uint8](v) }

// AsUint16 is AsUnsigned[uint16].
func AsUint16(v View) (uint16, error) { return AsUnsigned[uint16](v) }

// AsUint32 is AsUnsigned[uint32].
func AsUint32(v View) (uint32, error) { return AsUnsigned[uint32](v) }

// AsFloat32 extracts v as float32. Finite values outside the float32 range
// fail with ErrRange; precision loss within the range is accepted.
func AsFloat32(v View) (float32, error) {
	f, err := v.AsFloat64()
	if err != nil {
		return 0, err
	}
	if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
		return 0, Decodef("zerialize: narrow", ErrRange, "%g overflows float32", f)
	}
	return float32(f), nil
}
