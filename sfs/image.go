package sfs

import (
	"io"
	"os"
)

// Image is the backing byte stream the engine mutates in place. A
// volume image is the sole shared resource per SPEC_FULL.md §8: the
// engine assumes exclusive, single-threaded ownership of it.
type Image interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Truncate changes the size of the image. Growing it must
	// zero-extend, mirroring the guarantee os.File.Truncate makes on a
	// regular file.
	Truncate(size int64) error

	// Size reports the current byte length of the image.
	Size() (int64, error)
}

// fileImage adapts an *os.File to Image.
type fileImage struct {
	f *os.File
}

// OpenFileImage opens path for read-write access and wraps it as an
// Image suitable for Open or Create.
func OpenFileImage(path string) (Image, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &fileImage{f: f}, nil
}

// CreateFileImage creates (or truncates) path and wraps it as an Image
// suitable for Create.
func CreateFileImage(path string) (Image, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return nil, err
	}
	return &fileImage{f: f}, nil
}

func (fi *fileImage) ReadAt(p []byte, off int64) (int, error)  { return fi.f.ReadAt(p, off) }
func (fi *fileImage) WriteAt(p []byte, off int64) (int, error) { return fi.f.WriteAt(p, off) }
func (fi *fileImage) Close() error                             { return fi.f.Close() }
func (fi *fileImage) Truncate(size int64) error                { return fi.f.Truncate(size) }

func (fi *fileImage) Size() (int64, error) {
	st, err := fi.f.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// MemImage is a byte-slice-backed Image, useful for tests and for
// building an image entirely in memory before streaming it out (the
// same role the teacher's Writer plays for squashfs images built into a
// bytes.Buffer before being written to disk).
type MemImage struct {
	buf []byte
}

// NewMemImage returns a MemImage of the given initial size, zero-filled.
func NewMemImage(size int64) *MemImage {
	return &MemImage{buf: make([]byte, size)}
}

func (m *MemImage) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemImage) WriteAt(p []byte, off int64) (int, error) {
	need := off + int64(len(p))
	if need > int64(len(m.buf)) {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	return copy(m.buf[off:], p), nil
}

func (m *MemImage) Truncate(size int64) error {
	if size <= int64(len(m.buf)) {
		m.buf = m.buf[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, m.buf)
	m.buf = grown
	return nil
}

func (m *MemImage) Size() (int64, error) { return int64(len(m.buf)), nil }
func (m *MemImage) Close() error         { return nil }

// Bytes returns the current backing slice. It is shared with the
// MemImage, so callers must not mutate it concurrently with the volume.
func (m *MemImage) Bytes() []byte { return m.buf }
