// Package wire provides the binary encode/decode helpers shared by the
// node header, packed array and commit engine packages: a reusable byte
// buffer pool, endianness helpers, overflow-checked arithmetic and a
// single wrapping error type.
package wire

import "sync"

var bufferPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, 4096)
	},
}

// GetBuffer returns a byte slice of the requested length from the pool.
// ReadUint64At uses it to avoid a per-call allocation.
func GetBuffer(size int) []byte {
	buf := bufferPool.Get().([]byte)
	if cap(buf) < size {
		return make([]byte, size, size*2)
	}
	return buf[:size]
}

// ReleaseBuffer returns a buffer to the pool.
func ReleaseBuffer(buf []byte) {
	//nolint:staticcheck // SA6002: slice descriptor copy is acceptable for sync.Pool
	bufferPool.Put(buf[:0])
}
