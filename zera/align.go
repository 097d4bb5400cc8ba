package zera

import (
	"unsafe"
)

// Aligned returns buf, or a copy of it, whose first byte sits at an address
// that is a multiple of a. Payload offsets written in aligned mode are
// relative to the first byte, so decoding the result yields aligned
// payload pointers.
func Aligned(buf []byte, a int) []byte {
	if a <= 1 || len(buf) == 0 || IsAligned(buf, a) {
		return buf
	}
	raw := make([]byte, len(buf)+a-1)
	off := padding(int(uintptr(unsafe.Pointer(unsafe.SliceData(raw)))%uintptr(a)), a)
	out := raw[off : off+len(buf) : off+len(buf)]
	copy(out, buf)
	return out
}

// IsAligned reports whether the first byte of buf sits at a multiple of a.
func IsAligned(buf []byte, a int) bool {
	if len(buf) == 0 || a <= 1 {
		return true
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))%uintptr(a) == 0
}
