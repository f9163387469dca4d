package super_test

import (
	"bytes"
	"testing"

	"github.com/KarpelesLab/sfs/super"
)

type memImage struct {
	buf []byte
}

func newMemImage(size int64) *memImage {
	return &memImage{buf: make([]byte, size)}
}

func (m *memImage) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.buf[off:])
	return n, nil
}

func (m *memImage) WriteAt(p []byte, off int64) (int, error) {
	need := off + int64(len(p))
	if need > int64(len(m.buf)) {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	n := copy(m.buf[off:], p)
	return n, nil
}

func TestStoreLoadRoundTrip(t *testing.T) {
	img := newMemImage(64 * 1024)
	sb := super.New(64*1024, 2)
	sb.DataSize = 12
	sb.IndexSize = 512

	if err := sb.Store(img); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, err := super.Load(img)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got.DataSize != sb.DataSize || got.IndexSize != sb.IndexSize || got.TotalBlocks != sb.TotalBlocks {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, sb)
	}
	if got.BlockSize() != 512 {
		t.Fatalf("BlockSize() = %d, want 512", got.BlockSize())
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	img := newMemImage(64 * 1024)
	sb := super.New(64*1024, 2)
	if err := sb.Store(img); err != nil {
		t.Fatalf("Store: %v", err)
	}
	// corrupt magic bytes in place
	buf := make([]byte, 3)
	img.ReadAt(buf, super.Offset+24)
	bad := []byte("BAD")
	img.WriteAt(bad, super.Offset+24)

	_, err := super.Load(img)
	if err != super.ErrNotAnSFSVolume {
		t.Fatalf("Load: got %v, want ErrNotAnSFSVolume", err)
	}
}

func TestLoadToleratesBadCRC(t *testing.T) {
	img := newMemImage(64 * 1024)
	sb := super.New(64*1024, 2)
	if err := sb.Store(img); err != nil {
		t.Fatalf("Store: %v", err)
	}
	crcByte := make([]byte, 1)
	img.ReadAt(crcByte, super.Offset+41)
	img.WriteAt([]byte{crcByte[0] ^ 0xFF}, super.Offset+41)

	if _, err := super.Load(img); err != nil {
		t.Fatalf("Load should tolerate a bad superblock CRC, got %v", err)
	}
}

func TestIndexByteOffset(t *testing.T) {
	sb := super.New(64*1024, 2)
	sb.IndexSize = 512
	got := sb.IndexByteOffset()
	want := int64(sb.TotalBlocks)*sb.BlockSize() - int64(sb.IndexSize)
	if got != want {
		t.Fatalf("IndexByteOffset() = %d, want %d", got, want)
	}
	if !bytes.Equal(sb.Magic[:], []byte("SFS")) {
		t.Fatalf("Magic = %q", sb.Magic)
	}
}
