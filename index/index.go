// Package index parses and maintains the trailing index region of an
// SFS volume: the array of 64-byte descriptor slots that holds every
// directory, file, and tombstone entry. It locates runs of reusable
// slots and grows the region by one block when no run fits.
package index

import (
	"fmt"
	"io"
	"log"

	"github.com/KarpelesLab/sfs/codec"
	"github.com/KarpelesLab/sfs/entry"
	"github.com/KarpelesLab/sfs/sfserr"
	"github.com/KarpelesLab/sfs/super"
)

// Parsed is one decoded index entry together with its physical location,
// expressed in slots from the start of the index region.
type Parsed struct {
	Entry entry.Entry
	Slot  int // index of the primary slot
	Count int // 1 + num_cont
}

// ReadWriterAt is the minimal image access the index manager needs: random
// reads and writes at byte offsets.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// ReadAll reads the index region described by sb and walks it left to
// right, returning every decoded slot except UNUSED (including START
// and VOL_ID, which callers that only want live directories and files
// filter out via Kind/IsLive themselves) along with a free-slot map
// covering the whole region.
//
// A slot is free if it is UNUSED, or if it belongs to a DIR_DEL/FILE_DEL
// tombstone (primary and every one of its continuations) — the index
// manager treats tombstone space as immediately reusable, which is why
// find_free_run can hand a deleted entry's slots back out before the
// next defrag runs.
//
// A primary slot that declares more continuations than remain in the
// region is a corrupt index and is reported as sfserr.ErrCorrupt. A
// slot with an unrecognized type tag, or one whose CRC doesn't
// validate, is logged and treated as UNUSED, per the recovery policy.
func ReadAll(img io.ReaderAt, sb *super.Superblock) (entries []Parsed, free []bool, err error) {
	raw := make([]byte, sb.IndexSize)
	if _, err := img.ReadAt(raw, sb.IndexByteOffset()); err != nil {
		return nil, nil, fmt.Errorf("reading index region: %w", err)
	}
	return parse(raw)
}

func parse(raw []byte) (entries []Parsed, free []bool, err error) {
	total := len(raw) / entry.Size
	free = make([]bool, total)

	i := 0
	for i < total {
		primary := raw[i*entry.Size : (i+1)*entry.Size]

		numCont, perr := entry.PeekContinuationCount(primary)
		if perr != nil {
			log.Printf("sfs: index slot %d has unknown type %#x, treating as UNUSED", i, primary[0])
			free[i] = true
			i++
			continue
		}

		if entry.Kind(primary[0]) == entry.KindUnused {
			free[i] = true
			i++
			continue
		}

		if i+numCont >= total {
			return nil, nil, fmt.Errorf("sfs: slot %d declares %d continuations, only %d slots remain: %w", i, numCont, total-i-1, sfserr.ErrCorrupt)
		}

		conts := make([][]byte, numCont)
		for c := 0; c < numCont; c++ {
			conts[c] = raw[(i+1+c)*entry.Size : (i+2+c)*entry.Size]
		}

		e, ok, derr := entry.Decode(primary, conts)
		if derr != nil {
			return nil, nil, fmt.Errorf("sfs: decoding slot %d: %w", i, derr)
		}
		count := 1 + numCont
		if !ok {
			log.Printf("sfs: index slot %d failed CRC validation, treating as UNUSED", i)
			for s := i; s < i+count; s++ {
				free[s] = true
			}
			i += count
			continue
		}

		if e.Kind.IsTombstone() {
			for s := i; s < i+count; s++ {
				free[s] = true
			}
		}

		entries = append(entries, Parsed{Entry: e, Slot: i, Count: count})

		i += count
	}

	return entries, free, nil
}

// WriteNew serializes e and writes it into the first free run of slots
// big enough to hold it, growing the index by one block (and retrying)
// when no run fits. It does not touch the superblock beyond what
// GrowOneBlock persists on a growth path; the caller updates and stores
// the superblock once at the end of the operation it is serving.
func WriteNew(img ReadWriterAt, sb *super.Superblock, e entry.Entry) error {
	primary, continuations, err := entry.Encode(e)
	if err != nil {
		return err
	}
	needed := 1 + len(continuations)

	for {
		_, free, err := ReadAll(img, sb)
		if err != nil {
			return err
		}
		offset, ok := FindFreeRun(free, needed)
		if !ok {
			if err := GrowOneBlock(img, sb); err != nil {
				return err
			}
			continue
		}

		base := sb.IndexByteOffset() + int64(offset)*entry.Size
		if _, err := img.WriteAt(primary, base); err != nil {
			return fmt.Errorf("sfs: writing primary slot: %w", err)
		}
		for i, c := range continuations {
			if _, err := img.WriteAt(c, base+entry.Size*int64(i+1)); err != nil {
				return fmt.Errorf("sfs: writing continuation slot: %w", err)
			}
		}
		return nil
	}
}

// Tombstone rewrites p's primary slot in place with its *_DEL kind,
// recomputing the CRC over the same span it originally covered so the
// tombstone stays decodable: the name and timestamp it carried remain
// readable, and its slots keep reporting as free through the normal
// CRC-valid path rather than through the CRC-failure recovery path.
//
// This differs from the format's historical tool, which flipped only
// the type byte and left the checksum stale; that left a tombstoned
// entry indistinguishable, on reload, from ordinary slot corruption.
func Tombstone(img ReadWriterAt, sb *super.Superblock, p Parsed) error {
	tombKind, err := p.Entry.Kind.Tombstoned()
	if err != nil {
		return err
	}

	base := sb.IndexByteOffset() + int64(p.Slot)*entry.Size
	span := make([]byte, int64(p.Count)*entry.Size)
	if _, err := img.ReadAt(span, base); err != nil {
		return fmt.Errorf("sfs: reading entry to tombstone: %w", err)
	}

	span[0] = byte(tombKind)
	span[1] = 0
	span[1] = codec.CRC(span)

	if _, err := img.WriteAt(span[:entry.Size], base); err != nil {
		return fmt.Errorf("sfs: writing tombstone: %w", err)
	}
	return nil
}

// FindFreeRun scans free in physical order (lowest slot address first)
// for a run of at least needed consecutive free slots, and returns the
// offset of its first slot. ok is false if no such run exists.
func FindFreeRun(free []bool, needed int) (offset int, ok bool) {
	if needed <= 0 {
		return 0, false
	}
	run := 0
	for i, f := range free {
		if !f {
			run = 0
			continue
		}
		run++
		if run == needed {
			return i - needed + 1, true
		}
	}
	return 0, false
}

// GrowOneBlock expands the index region by one block, relocating the
// START sentinel to the first slot of the new (lower-addressed) block
// and marking its old position UNUSED. It persists the updated
// superblock as its final step.
//
// The precondition is that the block immediately below the current
// index region holds no data; otherwise GrowOneBlock fails with
// sfserr.ErrNoSpace and makes no change.
func GrowOneBlock(img ReadWriterAt, sb *super.Superblock) error {
	blockSize := sb.BlockSize()
	idxBlocks := int64(sb.IndexBlocks())
	blockBelowIndex := int64(sb.TotalBlocks) - idxBlocks - 1
	dataEnd := int64(sb.RsvdBlocks) + int64(sb.DataSize)
	if blockBelowIndex < dataEnd {
		return fmt.Errorf("sfs: cannot grow index, block %d is within the data region: %w", blockBelowIndex, sfserr.ErrNoSpace)
	}

	oldBase := sb.IndexByteOffset()
	oldBuf := make([]byte, sb.IndexSize)
	if _, err := img.ReadAt(oldBuf, oldBase); err != nil {
		return fmt.Errorf("sfs: reading index before growth: %w", err)
	}

	newBlock := make([]byte, blockSize)
	unused := unusedSlot()
	for off := int64(0); off+entry.Size <= blockSize; off += entry.Size {
		copy(newBlock[off:off+entry.Size], unused)
	}

	if len(oldBuf) >= entry.Size && entry.Kind(oldBuf[0]) == entry.KindStart {
		copy(newBlock[0:entry.Size], oldBuf[0:entry.Size])
		copy(oldBuf[0:entry.Size], unused)
	}

	newBase := oldBase - blockSize
	if _, err := img.WriteAt(newBlock, newBase); err != nil {
		return fmt.Errorf("sfs: writing new index block: %w", err)
	}
	if _, err := img.WriteAt(oldBuf, newBase+blockSize); err != nil {
		return fmt.Errorf("sfs: relocating old index: %w", err)
	}

	sb.IndexSize += uint64(blockSize)
	log.Printf("sfs: grew index to %d bytes", sb.IndexSize)
	return sb.Store(img)
}

func unusedSlot() []byte {
	b := make([]byte, entry.Size)
	b[0] = byte(entry.KindUnused)
	b[1] = codec.CRC(b)
	return b
}
