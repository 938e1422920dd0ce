// Package u32 provides little-endian byte-codec helpers for uint32,
// used by internal/checkpoint's wire format.
package u32

import "encoding/binary"

// LeBytes encodes v as 4 little-endian bytes.
func LeBytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
