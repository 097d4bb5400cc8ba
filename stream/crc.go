package stream

import (
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"
)

var crcTable = crc32.MakeTable(crc32.IEEE)

// ComputeCRC computes CRC-32 IEEE of the given bytes.
func ComputeCRC(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}

func formatCRC(crc uint32) string {
	return fmt.Sprintf("%08x", crc)
}

// parseCRC accepts "XXXXXXXX" or "crc32:XXXXXXXX".
func parseCRC(val string) (uint32, bool) {
	val = strings.TrimPrefix(val, "crc32:")
	if len(val) != 8 {
		return 0, false
	}
	v, err := strconv.ParseUint(val, 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}
