package index_test

import (
	"errors"
	"testing"

	"github.com/KarpelesLab/sfs/codec"
	"github.com/KarpelesLab/sfs/entry"
	"github.com/KarpelesLab/sfs/index"
	"github.com/KarpelesLab/sfs/sfserr"
	"github.com/KarpelesLab/sfs/super"
)

// memImage is a minimal growable-buffer ReadWriterAt, shared in shape
// with super_test.go's test double but kept local so this package's
// tests don't depend on another package's test-only type.
type memImage struct{ buf []byte }

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
	return copy(m.buf[off:], p), nil
}

func slot(k entry.Kind) []byte {
	b := make([]byte, entry.Size)
	b[0] = byte(k)
	b[1] = codec.CRC(b)
	return b
}

func newIndexImage(t *testing.T, slots ...[]byte) (*memImage, *super.Superblock) {
	t.Helper()
	blockSize := int64(512)
	indexSize := int64(len(slots)) * entry.Size
	sb := &super.Superblock{
		TotalBlocks: 4,
		RsvdBlocks:  1,
		BlockExp:    2,
		IndexSize:   uint64(indexSize),
	}
	img := &memImage{buf: make([]byte, sb.TotalBlocks*uint64(blockSize))}
	off := sb.IndexByteOffset()
	for _, s := range slots {
		copy(img.buf[off:], s)
		off += entry.Size
	}
	return img, sb
}

func TestReadAllClassifiesUnusedAndLive(t *testing.T) {
	dirPrimary, _, err := entry.Encode(entry.Entry{Kind: entry.KindDir, Name: "docs"})
	if err != nil {
		t.Fatal(err)
	}
	img, sb := newIndexImage(t, slot(entry.KindStart), dirPrimary, slot(entry.KindUnused))

	entries, free, err := index.ReadAll(img, sb)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 2 { // START + DIR
		t.Fatalf("entries = %v, want 2 (START, DIR)", entries)
	}
	if free[0] || free[1] || !free[2] {
		t.Fatalf("free = %v, want [false false true]", free)
	}
}

func TestReadAllTreatsTombstonesAsFree(t *testing.T) {
	delPrimary, _, err := entry.Encode(entry.Entry{Kind: entry.KindFileDel, Name: "gone"})
	if err != nil {
		t.Fatal(err)
	}
	img, sb := newIndexImage(t, slot(entry.KindStart), delPrimary)

	entries, free, err := index.ReadAll(img, sb)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %v, want START + tombstone", entries)
	}
	if !free[1] {
		t.Fatalf("tombstone slot should be reported free")
	}
}

func TestReadAllRejectsOverflowingContinuationCount(t *testing.T) {
	bad := make([]byte, entry.Size)
	bad[0] = byte(entry.KindFile)
	bad[2] = 5 // claims 5 continuations, none exist
	bad[1] = codec.CRC(bad)
	img, sb := newIndexImage(t, bad)

	_, _, err := index.ReadAll(img, sb)
	if !errors.Is(err, sfserr.ErrCorrupt) {
		t.Fatalf("ReadAll error = %v, want ErrCorrupt", err)
	}
}

func TestFindFreeRun(t *testing.T) {
	free := []bool{false, true, true, false, true, true, true}
	offset, ok := index.FindFreeRun(free, 3)
	if !ok || offset != 4 {
		t.Fatalf("FindFreeRun = (%d, %v), want (4, true)", offset, ok)
	}
	if _, ok := index.FindFreeRun(free, 4); ok {
		t.Fatalf("FindFreeRun(4) should fail, only 3 consecutive free slots exist")
	}
}

func TestWriteNewGrowsWhenNoRunFits(t *testing.T) {
	img, sb := newIndexImage(t, slot(entry.KindStart), slot(entry.KindVolID))
	// No free slots: growth must kick in.
	e := entry.Entry{Kind: entry.KindDir, Name: "a"}
	if err := index.WriteNew(img, sb, e); err != nil {
		t.Fatalf("WriteNew: %v", err)
	}
	entries, _, err := index.ReadAll(img, sb)
	if err != nil {
		t.Fatalf("ReadAll after WriteNew: %v", err)
	}
	found := false
	for _, p := range entries {
		if p.Entry.Kind == entry.KindDir && p.Entry.Name == "a" {
			found = true
		}
	}
	if !found {
		t.Fatalf("new DIR entry not found after growth: %v", entries)
	}
}

func TestTombstoneStaysDecodable(t *testing.T) {
	dirPrimary, _, err := entry.Encode(entry.Entry{Kind: entry.KindDir, Name: "docs"})
	if err != nil {
		t.Fatal(err)
	}
	img, sb := newIndexImage(t, slot(entry.KindStart), dirPrimary)

	entries, _, err := index.ReadAll(img, sb)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if err := index.Tombstone(img, sb, entries[1]); err != nil {
		t.Fatalf("Tombstone: %v", err)
	}

	after, free, err := index.ReadAll(img, sb)
	if err != nil {
		t.Fatalf("ReadAll after Tombstone: %v", err)
	}
	if after[1].Entry.Kind != entry.KindDirDel {
		t.Fatalf("entry kind = %#x, want DIR_DEL", after[1].Entry.Kind)
	}
	if after[1].Entry.Name != "docs" {
		t.Fatalf("tombstone lost its name: %q", after[1].Entry.Name)
	}
	if !free[1] {
		t.Fatalf("tombstoned slot should be free")
	}
}
