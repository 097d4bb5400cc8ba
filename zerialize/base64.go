package zerialize

import (
	"encoding/base64"
	"strings"
)

// Blob fallback marker. A format without a native binary type carries a
// blob as the three-element array [BlobTag, <base64 payload>, BlobEncoding].
// Readers cannot tell a user array of these three strings from a blob, so
// such an array comes back as Binary from those formats.
const (
	BlobTag      = "~b"
	BlobEncoding = "base64"
)

// EncodeBase64 encodes b with the RFC 4648 standard alphabet, padded.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 decodes padded standard base64. Any character outside the
// alphabet and padding, line breaks included, is ErrInvalidBase64.
func DecodeBase64(s string) ([]byte, error) {
	if strings.ContainsAny(s, "\r\n") {
		return nil, Decodef("zerialize: base64", ErrInvalidBase64, "line break in payload")
	}
	b, err := base64.StdEncoding.Strict().DecodeString(s)
	if err != nil {
		return nil, Decodef("zerialize: base64", ErrInvalidBase64, "%v", err)
	}
	return b, nil
}

// WriteBlob writes b to w as the blob fallback marker.
func WriteBlob(w Writer, b []byte) error {
	if err := w.BeginArray(3); err != nil {
		return err
	}
	if err := w.String(BlobTag); err != nil {
		return err
	}
	if err := w.String(EncodeBase64(b)); err != nil {
		return err
	}
	if err := w.String(BlobEncoding); err != nil {
		return err
	}
	return w.EndArray()
}

// IsBlobMarker reports whether a three-element string array spells the
// blob fallback marker.
func IsBlobMarker(tag, encoding string) bool {
	return tag == BlobTag && encoding == BlobEncoding
}
