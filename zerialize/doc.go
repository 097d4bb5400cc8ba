// Package zerialize is a cross-format serialization engine: one abstract
// value model and two capability contracts, a sequential Writer and a lazy
// zero-copy View, that let code build and inspect structured values
// independent of the wire format underneath.
//
// Formats are pluggable backends that register a Protocol:
//   - json:    tree-text format (binary carried as a base64 blob marker)
//   - msgpack: MessagePack
//   - cbor:    CBOR (RFC 8949)
//   - zera:    the reference binary codec, with an aligned mode for
//     zero-copy tensor payloads
//
// # Data Model
//
// Scalars: null, bool, int64, uint64, float64, string, binary
// Containers: array (ordered), map (string keys, unique, insertion order
// kept for encoding but not significant for equality)
//
// Tensors are not a variant; the tensor package represents them as a map
// of shape, dtype and a binary payload.
//
// # Writing
//
// Values are written by driving a Writer, usually through a builder:
//
//	var person = zerialize.MustKeys("name", "age")
//
//	buf, err := zerialize.Serialize(zera.Protocol, person.Map("James Bond", 37))
//
// Builders (Vec, Keys.Map, Obj) are replayable descriptions; they never
// build an intermediate tree. Emit accepts builders, *Value, any View,
// scalars, and through reflection slices, string-keyed maps and structs.
//
// Writers enforce nesting: a single root, one Key before every map value,
// matching End calls, unique keys. The first violation is returned as an
// *EncodeError wrapping ErrNesting or ErrDuplicateKey and every later call
// on the same writer returns it.
//
// # Reading
//
//	v, err := zera.NewView(buf)
//	name, err := v.Key("name")
//	s, err := name.AsString()
//	age, err := zerialize.At(v, "age")
//	n, err := zerialize.AsUint16(age)
//
// Indexing never decodes siblings or descendants. Numeric extraction
// converts between widths with range checks and never truncates.
//
// # Translating
//
// Translate replays a View of one format into a Writer of another in a
// single depth-first pass:
//
//	out, err := zerialize.TranslateBytes(buf, json.Protocol, zera.Protocol)
//
// Binary values bound for a format without a native binary type are
// written as ["~b", "<base64>", "base64"]; the json View reads that marker
// back as a binary value.
//
// # Errors
//
// Two error types cover every failure: *EncodeError for writer misuse and
// unrepresentable values, *DecodeError for view misuse and malformed
// input. Both carry the failing operation and the structural path
// (e.g. $.users[3].name) and wrap one of the Err* conditions.
package zerialize
