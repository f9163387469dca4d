package sfs

import (
	"fmt"
	"sort"
	"time"

	"github.com/KarpelesLab/sfs/codec"
	"github.com/KarpelesLab/sfs/entry"
)

// Defrag compacts every live file's payload into ascending, contiguous
// blocks starting right after the reserved region, closing every gap
// left by prior deletions, and rewrites the index region with the
// volume's sentinel and non-file entries first, compacted files next,
// and the VOL_ID entry pinned to the last slot.
//
// Index slots belonging to directories and tombstones are preserved in
// their original relative order; Defrag reclaims data-region space, not
// index-region space.
func (v *Volume) Defrag() error {
	if err := v.rebuild(); err != nil {
		return err
	}
	blockSize := v.sb.BlockSize()

	var volID *entry.Entry
	var sawStart bool
	var others []entry.Entry
	var files []entry.Entry

	for _, p := range v.entries {
		e := p.Entry
		switch e.Kind {
		case entry.KindFile:
			files = append(files, e)
		case entry.KindVolID:
			ee := e
			volID = &ee
		case entry.KindStart:
			sawStart = true
			others = append(others, e)
		default:
			others = append(others, e)
		}
	}
	if !sawStart {
		return fmt.Errorf("sfs: volume has no START sentinel: %w", ErrCorrupt)
	}
	if volID == nil {
		v.logger.Printf("sfs: defrag found no VOL_ID entry, synthesizing default label")
		synth := entry.Entry{Kind: entry.KindVolID, Name: DefaultLabel}
		volID = &synth
	}

	sort.Slice(files, func(i, j int) bool { return files[i].ExtentStart < files[j].ExtentStart })

	cursor := uint64(v.sb.RsvdBlocks)
	for i := range files {
		f := &files[i]
		needed := ceilDivUint64(f.Length, uint64(blockSize))
		oldStart := f.ExtentStart
		var newStart, newEnd uint64
		if needed > 0 {
			newStart = cursor
			newEnd = cursor + needed - 1
			if newStart != oldStart {
				payload := make([]byte, f.Length)
				if _, err := v.img.ReadAt(payload, int64(oldStart)*blockSize); err != nil {
					return fmt.Errorf("sfs: defrag reading %q: %w", f.Name, err)
				}
				padded := make([]byte, needed*uint64(blockSize))
				copy(padded, payload)
				if _, err := v.img.WriteAt(padded, int64(newStart)*blockSize); err != nil {
					return fmt.Errorf("sfs: defrag writing %q: %w", f.Name, err)
				}
			}
			cursor += needed
		}
		f.ExtentStart, f.ExtentEnd = newStart, newEnd
	}
	v.sb.DataSize = cursor - uint64(v.sb.RsvdBlocks)

	if err := v.rewriteIndex(others, files, *volID); err != nil {
		return err
	}

	v.sb.ModTime = codec.EncodeTimestamp(time.Now())
	if err := v.sb.Store(v.img); err != nil {
		return err
	}
	return v.rebuild()
}

// rewriteIndex lays out a brand-new index region in memory and writes
// it in one shot: others (in their original relative order, which
// always begins with the START sentinel), then files, then UNUSED
// padding, then the VOL_ID entry pinned to the final slot.
func (v *Volume) rewriteIndex(others, files []entry.Entry, volID entry.Entry) error {
	buf := make([]byte, v.sb.IndexSize)
	lastSlotOff := int64(len(buf)) - entry.Size
	offset := int64(0)

	write := func(e entry.Entry) error {
		// START is a bare sentinel tag with no name window; entry.Encode
		// rejects it outright. Every other kind routed through here
		// (directories, tombstones, and files) has a real name window and
		// goes through the normal codec; VOL_ID is written separately below.
		if e.Kind == entry.KindStart {
			if offset+entry.Size > lastSlotOff {
				return fmt.Errorf("sfs: defrag: index has no room left for the START sentinel: %w", ErrCorrupt)
			}
			copy(buf[offset:], bareSlot(entry.KindStart))
			offset += entry.Size
			return nil
		}

		primary, conts, err := entry.Encode(e)
		if err != nil {
			return err
		}
		need := int64(1+len(conts)) * entry.Size
		if offset+need > lastSlotOff {
			return fmt.Errorf("sfs: defrag: index has no room left for %q: %w", e.Name, ErrCorrupt)
		}
		copy(buf[offset:], primary)
		offset += entry.Size
		for _, c := range conts {
			copy(buf[offset:], c)
			offset += entry.Size
		}
		return nil
	}

	for _, e := range others {
		if err := write(e); err != nil {
			return err
		}
	}
	for _, e := range files {
		if err := write(e); err != nil {
			return err
		}
	}

	unused := bareSlot(entry.KindUnused)
	for off := offset; off < lastSlotOff; off += entry.Size {
		copy(buf[off:off+entry.Size], unused)
	}

	volPrimary, volConts, err := entry.Encode(volID)
	if err != nil {
		return err
	}
	if len(volConts) != 0 {
		return fmt.Errorf("sfs: defrag: volume label unexpectedly required continuations")
	}
	copy(buf[lastSlotOff:], volPrimary)

	_, err = v.img.WriteAt(buf, v.sb.IndexByteOffset())
	if err != nil {
		return fmt.Errorf("sfs: defrag: writing index: %w", err)
	}
	return nil
}

// ShrinkToFit truncates the volume's trailing unused tail, relocating
// the index region down against the data region. It is a no-op if the
// volume is already minimal.
func (v *Volume) ShrinkToFit() error {
	blockSize := v.sb.BlockSize()
	newTotal := uint64(v.sb.RsvdBlocks) + v.sb.DataSize + v.sb.IndexBlocks()
	if newTotal >= v.sb.TotalBlocks {
		return nil
	}

	idxBuf := make([]byte, v.sb.IndexSize)
	if _, err := v.img.ReadAt(idxBuf, v.sb.IndexByteOffset()); err != nil {
		return fmt.Errorf("sfs: shrink: reading index: %w", err)
	}

	newIndexOff := int64(newTotal)*blockSize - int64(v.sb.IndexSize)
	if _, err := v.img.WriteAt(idxBuf, newIndexOff); err != nil {
		return fmt.Errorf("sfs: shrink: relocating index: %w", err)
	}
	if err := v.img.Truncate(int64(newTotal) * blockSize); err != nil {
		return fmt.Errorf("sfs: shrink: truncating image: %w", err)
	}

	v.sb.TotalBlocks = newTotal
	v.sb.ModTime = codec.EncodeTimestamp(time.Now())
	if err := v.sb.Store(v.img); err != nil {
		return err
	}
	return v.rebuild()
}

// Resize grows the volume to newSizeBytes, relocating the index region
// to the new tail and leaving the expanded middle as free data blocks.
// It refuses to shrink the volume; use ShrinkToFit for that.
func (v *Volume) Resize(newSizeBytes int64) error {
	blockSize := v.sb.BlockSize()
	newTotal := uint64(newSizeBytes / blockSize)
	if newTotal <= v.sb.TotalBlocks {
		return fmt.Errorf("sfs: resize to %d blocks refuses to shrink a %d-block volume", newTotal, v.sb.TotalBlocks)
	}

	idxBuf := make([]byte, v.sb.IndexSize)
	if _, err := v.img.ReadAt(idxBuf, v.sb.IndexByteOffset()); err != nil {
		return fmt.Errorf("sfs: resize: reading index: %w", err)
	}
	if err := v.img.Truncate(int64(newTotal) * blockSize); err != nil {
		return fmt.Errorf("sfs: resize: growing image: %w", err)
	}

	newIndexOff := int64(newTotal)*blockSize - int64(v.sb.IndexSize)
	if _, err := v.img.WriteAt(idxBuf, newIndexOff); err != nil {
		return fmt.Errorf("sfs: resize: relocating index: %w", err)
	}

	v.sb.TotalBlocks = newTotal
	v.sb.ModTime = codec.EncodeTimestamp(time.Now())
	if err := v.sb.Store(v.img); err != nil {
		return err
	}
	return v.rebuild()
}
