package sfs

import (
	"fmt"
	"time"

	"github.com/KarpelesLab/sfs/alloc"
	"github.com/KarpelesLab/sfs/entry"
	"github.com/KarpelesLab/sfs/index"
	"github.com/KarpelesLab/sfs/pathcache"
)

// Write stages data at offset into path's write buffer. Nothing is
// written to the image until Flush is called; this mirrors the
// format's copy-on-write discipline, which never mutates a live
// extent in place.
//
// Write fails with ErrNoSpace up front if growing the file to the
// buffer's new size would need more blocks beyond its current extent
// than the volume has free. This precheck allocates nothing, so Flush
// can still fail with ErrNoSpace when no contiguous run fits.
func (v *Volume) Write(path string, offset int64, data []byte) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("sfs: write %q: negative offset", path)
	}
	norm := pathcache.Normalize(path)

	buf, ok := v.buffers[norm]
	if !ok {
		buf = &writeBuffer{}
		if e, found := v.cache.ByPath[norm]; found && e.Kind.IsFile() && e.Length > 0 {
			buf.data = make([]byte, e.Length)
			pos := int64(e.ExtentStart) * v.sb.BlockSize()
			if _, err := v.img.ReadAt(buf.data, pos); err != nil {
				return 0, fmt.Errorf("sfs: loading %q into write buffer: %w", path, err)
			}
		}
		v.buffers[norm] = buf
	}

	end := int(offset) + len(data)
	if end > len(buf.data) {
		blockSize := v.sb.BlockSize()
		reqBlocks := ceilDivInt64(int64(end), blockSize)

		curBlocks := int64(0)
		if e, found := v.cache.ByPath[norm]; found && e.Kind.IsFile() && e.Length > 0 {
			curBlocks = int64(e.ExtentEnd-e.ExtentStart) + 1
		}
		if delta := reqBlocks - curBlocks; delta > 0 {
			free := alloc.FreeBlockCount(v.sb, liveEntries(v.entries))
			if uint64(delta) > free {
				return 0, fmt.Errorf("sfs: write %q: %w", path, ErrNoSpace)
			}
		}

		grown := make([]byte, end)
		copy(grown, buf.data)
		buf.data = grown
	}

	copy(buf.data[offset:end], data)
	return len(data), nil
}

// Flush commits path's staged write buffer, if one exists, to a fresh
// extent and a fresh FILE entry, tombstoning whatever FILE entry it
// supersedes. It is a no-op if path has no pending buffer.
//
// If no contiguous extent large enough for the buffer exists, Flush
// unlinks the file's prior entry (if any) before propagating
// ErrNoSpace, matching the format's historical behavior: a failed
// flush leaves the old content unreachable rather than partially
// overwritten.
func (v *Volume) Flush(path string) error {
	norm := pathcache.Normalize(path)
	buf, ok := v.buffers[norm]
	if !ok {
		return nil
	}
	delete(v.buffers, norm)

	blockSize := v.sb.BlockSize()
	size := uint64(len(buf.data))
	blocks := ceilDivUint64(size, uint64(blockSize))

	priorParsed, hadPrior := v.findLive(norm)
	hadPriorFile := hadPrior && priorParsed.Entry.Kind.IsFile()

	var start, end uint64
	if blocks > 0 {
		s, e, err := alloc.Allocate(v.sb, liveEntries(v.entries), blocks)
		if err != nil {
			if hadPriorFile {
				if uerr := v.unlinkNormalized(norm); uerr != nil {
					return uerr
				}
			}
			return fmt.Errorf("sfs: flush %q: %w", path, err)
		}
		start, end = s, e

		padded := make([]byte, blocks*uint64(blockSize))
		copy(padded, buf.data)
		pos := int64(start) * blockSize
		if _, err := v.img.WriteAt(padded, pos); err != nil {
			return fmt.Errorf("sfs: writing %q payload: %w", path, err)
		}
	}

	newEnt := entry.Entry{
		Kind:        entry.KindFile,
		Name:        norm,
		ModTime:     time.Now(),
		ExtentStart: start,
		ExtentEnd:   end,
		Length:      size,
	}

	var supersede *index.Parsed
	if hadPriorFile {
		supersede = &priorParsed
	}
	return v.commit(newEnt, supersede)
}

func ceilDivInt64(n, d int64) int64 {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}

func ceilDivUint64(n, d uint64) uint64 {
	if n == 0 {
		return 0
	}
	return (n + d - 1) / d
}
