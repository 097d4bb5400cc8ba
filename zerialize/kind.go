package zerialize

// Kind discriminates the variants of the value model.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindUint64
	KindFloat64
	KindString
	KindBinary
	KindArray
	KindMap
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBinary:
		return "binary"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// IsInteger returns true for the two integer kinds.
func (k Kind) IsInteger() bool {
	return k == KindInt64 || k == KindUint64
}

// IsContainer returns true for arrays and maps.
func (k Kind) IsContainer() bool {
	return k == KindArray || k == KindMap
}
