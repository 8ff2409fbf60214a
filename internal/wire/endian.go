package wire

import (
	"encoding/binary"
	"io"
)

// ReaderAt is the minimal interface the substrate reads mapped memory
// or backing files through; satisfied by *os.File and by a raw byte
// slice wrapped in bytes.Reader.
type ReaderAt interface {
	ReadAt(p []byte, off int64) (n int, err error)
}

// ReadUint64At reads a little-endian uint64 at the given offset.
func ReadUint64At(r ReaderAt, offset int64) (uint64, error) {
	buf := GetBuffer(8)
	defer ReleaseBuffer(buf)

	if _, err := r.ReadAt(buf, offset); err != nil && err != io.EOF {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// PutUint64At writes v as a little-endian uint64 into dst at offset.
func PutUint64At(dst []byte, offset int, v uint64) {
	binary.LittleEndian.PutUint64(dst[offset:offset+8], v)
}
