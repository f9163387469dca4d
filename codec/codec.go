// Package codec implements the fixed-endian byte packing used across the
// SFS on-disk structures: scalar field access at documented offsets and
// the single-byte checksum that covers a superblock or an entry's
// primary-plus-continuation slots.
package codec

import (
	"encoding/binary"
	"time"
)

// Order is the byte order used for every multi-byte integer on an SFS
// volume. The format has no provision for big-endian images.
var Order = binary.LittleEndian

// CRC returns the single byte that, appended (or overwritten in place at
// its documented offset) to buf, makes the unsigned sum of all bytes of
// buf equal to 0 mod 256.
//
// Callers zero the CRC byte in buf before computing the checksum so that
// the byte being solved for does not contribute to its own sum.
func CRC(buf []byte) byte {
	var sum byte
	for _, b := range buf {
		sum += b
	}
	return byte(256 - int(sum)&0xff)
}

// ValidateCRC reports whether the unsigned sum of every byte in buf is 0
// mod 256, i.e. whether buf's embedded CRC byte is consistent with its
// contents.
func ValidateCRC(buf []byte) bool {
	var sum byte
	for _, b := range buf {
		sum += b
	}
	return sum == 0
}

// EncodeTimestamp converts a wall-clock time to the 64-bit signed
// fixed-point representation used by SFS entries: whole seconds in the
// high 48 bits, a 16-bit fraction in the low bits (seconds * 65536).
func EncodeTimestamp(t time.Time) int64 {
	secs := float64(t.UnixNano()) / float64(time.Second)
	return int64(secs * 65536)
}

// DecodeTimestamp converts the fixed-point representation back to a
// wall-clock time in UTC.
func DecodeTimestamp(v int64) time.Time {
	secs := float64(v) / 65536.0
	ns := int64(secs * float64(time.Second))
	return time.Unix(0, ns).UTC()
}

// PutUint16 writes v at buf[off:off+2] in SFS byte order.
func PutUint16(buf []byte, off int, v uint16) { Order.PutUint16(buf[off:], v) }

// PutUint32 writes v at buf[off:off+4] in SFS byte order.
func PutUint32(buf []byte, off int, v uint32) { Order.PutUint32(buf[off:], v) }

// PutUint64 writes v at buf[off:off+8] in SFS byte order.
func PutUint64(buf []byte, off int, v uint64) { Order.PutUint64(buf[off:], v) }

// PutInt64 writes v at buf[off:off+8] in SFS byte order.
func PutInt64(buf []byte, off int, v int64) { Order.PutUint64(buf[off:], uint64(v)) }

// GetUint16 reads a uint16 at buf[off:off+2].
func GetUint16(buf []byte, off int) uint16 { return Order.Uint16(buf[off:]) }

// GetUint32 reads a uint32 at buf[off:off+4].
func GetUint32(buf []byte, off int) uint32 { return Order.Uint32(buf[off:]) }

// GetUint64 reads a uint64 at buf[off:off+8].
func GetUint64(buf []byte, off int) uint64 { return Order.Uint64(buf[off:]) }

// GetInt64 reads an int64 at buf[off:off+8].
func GetInt64(buf []byte, off int) int64 { return int64(Order.Uint64(buf[off:])) }
