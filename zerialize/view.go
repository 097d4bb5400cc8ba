package zerialize

// View is a read-only, lazily decoded handle into an encoded buffer.
//
// A view aliases the buffer it was created from. Indexing returns a new
// view over the same bytes without decoding siblings or descendants, and
// typed extraction decodes only the leaf being read. Borrowing extractors
// (AsBinary on binary formats) return slices into the buffer; the buffer
// must not be mutated while views over it are in use.
//
// Views hold no mutable state and may be shared across goroutines.
type View interface {
	Kind() Kind

	AsBool() (bool, error)
	AsInt64() (int64, error)
	AsUint64() (uint64, error)
	AsFloat64() (float64, error)
	AsString() (string, error)
	AsBinary() ([]byte, error)

	// Len returns the number of elements of an array or entries of a map.
	Len() (int, error)
	// Index returns the i'th element of an array.
	Index(i int) (View, error)
	// Key returns the value stored under k in a map.
	Key(k string) (View, error)
	// Has reports whether a map contains k. It is false for non-maps.
	Has(k string) bool
	// Keys returns a map's keys in encoded order.
	Keys() ([]string, error)

	// Elements calls fn for each array element in order, stopping at the
	// first error.
	Elements(fn func(i int, v View) error) error
	// Entries calls fn for each map entry in encoded order, stopping at the
	// first error.
	Entries(fn func(k string, v View) error) error

	// String renders the value for diagnostics. It is not an encoding.
	String() string
}

// IsNull reports whether v holds Null.
func IsNull(v View) bool { return v.Kind() == KindNull }

// BinaryBorrower is implemented by views whose AsBinary may return a slice
// of the encoded buffer rather than a fresh copy.
type BinaryBorrower interface {
	BorrowsBinary() bool
}

// BorrowsBinary reports whether v.AsBinary aliases storage owned by
// someone else. Views that do not implement BinaryBorrower are assumed to
// copy.
func BorrowsBinary(v View) bool {
	if b, ok := v.(BinaryBorrower); ok {
		return b.BorrowsBinary()
	}
	return false
}
