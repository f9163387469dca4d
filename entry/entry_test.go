package entry_test

import (
	"strings"
	"testing"
	"time"

	"github.com/KarpelesLab/sfs/entry"
)

func TestEncodeDecodeFileNoContinuation(t *testing.T) {
	e := entry.Entry{
		Kind:        entry.KindFile,
		ModTime:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		ExtentStart: 10,
		ExtentEnd:   12,
		Length:      1500,
		Name:        "hello.txt",
	}

	primary, conts, err := entry.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(conts) != 0 {
		t.Fatalf("expected no continuations, got %d", len(conts))
	}

	got, ok, err := entry.Decode(primary, conts)
	if err != nil || !ok {
		t.Fatalf("Decode: ok=%v err=%v", ok, err)
	}
	if got.Name != e.Name || got.ExtentStart != e.ExtentStart || got.ExtentEnd != e.ExtentEnd || got.Length != e.Length {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, e)
	}
}

func TestNameExactlyFillsPrimaryWindow(t *testing.T) {
	// 29 bytes is the file name window; this is boundary scenario #2 from
	// the spec: the name crosses the primary-slot boundary and requires
	// exactly one zero-filled continuation.
	name := strings.Repeat("a", 29)
	e := entry.Entry{Kind: entry.KindFile, Name: name}

	primary, conts, err := entry.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(conts) != 1 {
		t.Fatalf("expected exactly 1 continuation slot, got %d", len(conts))
	}
	for _, b := range conts[0] {
		if b != 0 {
			t.Fatalf("terminal continuation should be all-zero, found %#x", b)
		}
	}
	if primary[2] != 1 {
		t.Fatalf("num_cont byte = %d, want 1", primary[2])
	}

	got, ok, err := entry.Decode(primary, conts)
	if err != nil || !ok {
		t.Fatalf("Decode: ok=%v err=%v", ok, err)
	}
	if got.Name != name {
		t.Fatalf("got name %q, want %q", got.Name, name)
	}
}

func TestNameCrossingIntoContinuationWithoutTerminal(t *testing.T) {
	name := strings.Repeat("b", 40) // 29 + 11, doesn't fill the continuation
	e := entry.Entry{Kind: entry.KindFile, Name: name}

	primary, conts, err := entry.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(conts) != 1 {
		t.Fatalf("expected 1 continuation slot, got %d", len(conts))
	}

	got, ok, err := entry.Decode(primary, conts)
	if err != nil || !ok {
		t.Fatalf("Decode: ok=%v err=%v", ok, err)
	}
	if got.Name != name {
		t.Fatalf("got name %q, want %q", got.Name, name)
	}
}

func TestDecodeRejectsCorruptCRC(t *testing.T) {
	e := entry.Entry{Kind: entry.KindDir, Name: "somedir"}
	primary, conts, err := entry.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	primary[10] ^= 0xFF

	_, ok, err := entry.Decode(primary, conts)
	if err != nil {
		t.Fatalf("Decode should not error on bad CRC, only report ok=false: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for corrupted CRC")
	}
}

func TestPeekContinuationCountRejectsUnknownType(t *testing.T) {
	buf := make([]byte, entry.Size)
	buf[0] = 0xEE
	if _, err := entry.PeekContinuationCount(buf); err == nil {
		t.Fatalf("expected error for unknown entry type")
	}
}

func TestKindClassification(t *testing.T) {
	if !entry.KindFile.IsFile() || entry.KindFile.IsDir() {
		t.Fatalf("KindFile classification wrong")
	}
	if !entry.KindDirDel.IsTombstone() || entry.KindFile.IsTombstone() {
		t.Fatalf("tombstone classification wrong")
	}
	tomb, err := entry.KindFile.Tombstoned()
	if err != nil || tomb != entry.KindFileDel {
		t.Fatalf("Tombstoned() = %v, %v", tomb, err)
	}
}

func TestVolIDRoundTrip(t *testing.T) {
	e := entry.Entry{Kind: entry.KindVolID, Name: "MY_VOLUME"}
	primary, conts, err := entry.Encode(e)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, ok, err := entry.Decode(primary, conts)
	if err != nil || !ok {
		t.Fatalf("Decode: ok=%v err=%v", ok, err)
	}
	if got.Name != "MY_VOLUME" {
		t.Fatalf("got name %q", got.Name)
	}
}
