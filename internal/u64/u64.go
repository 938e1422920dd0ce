// Package u64 provides little-endian byte-codec helpers for uint64,
// used by internal/checkpoint's wire format.
package u64

import "encoding/binary"

// LeBytes encodes v as 8 little-endian bytes.
func LeBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
