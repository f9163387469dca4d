// Package alloc implements the SFS extent allocator and free-space
// accounting: placing new file payloads in contiguous block ranges,
// reusing gaps left by deletions, and reporting how many blocks remain
// free.
package alloc

import (
	"fmt"
	"sort"

	"github.com/KarpelesLab/sfs/entry"
	"github.com/KarpelesLab/sfs/sfserr"
	"github.com/KarpelesLab/sfs/super"
)

// extent is a disjoint, inclusive-ended block range held by a live FILE
// entry.
type extent struct {
	start, end uint64 // end is inclusive; zero-length files hold no extent
}

// liveExtents returns the extents of every live FILE entry with a
// non-zero length, sorted by start block.
func liveExtents(entries []entry.Entry) []extent {
	var exts []extent
	for _, e := range entries {
		if e.Kind != entry.KindFile || e.Length == 0 {
			continue
		}
		exts = append(exts, extent{start: e.ExtentStart, end: e.ExtentEnd})
	}
	sort.Slice(exts, func(i, j int) bool { return exts[i].start < exts[j].start })
	return exts
}

// FreeBlockCount returns the number of blocks not claimed by the
// reserved region, the index region, or any live file extent.
func FreeBlockCount(sb *super.Superblock, entries []entry.Entry) uint64 {
	used := uint64(0)
	for _, e := range liveExtents(entries) {
		used += e.end - e.start + 1
	}
	total := sb.TotalBlocks
	overhead := uint64(sb.RsvdBlocks) + sb.IndexBlocks() + used
	if overhead > total {
		return 0
	}
	return total - overhead
}

// Allocate finds a contiguous run of at least needed blocks, preferring
// a gap between existing extents over extending the trailing edge of
// the data region. It returns the inclusive block range [start, end].
//
// If the run comes from extending the data region, Allocate updates
// sb.DataSize in place; the caller is responsible for persisting the
// superblock as part of the operation it is serving (see the ordering
// discipline in SPEC_FULL.md §8).
//
// needed == 0 is the zero-length-file case and must not reach Allocate;
// callers record start == end == 0 instead, per the format's convention
// for empty files.
func Allocate(sb *super.Superblock, entries []entry.Entry, needed uint64) (start, end uint64, err error) {
	if needed == 0 {
		return 0, 0, fmt.Errorf("sfs: allocate called with zero blocks needed")
	}

	cursor := uint64(sb.RsvdBlocks)
	for _, e := range liveExtents(entries) {
		if e.start > cursor && e.start-cursor >= needed {
			return cursor, cursor + needed - 1, nil
		}
		if e.end+1 > cursor {
			cursor = e.end + 1
		}
	}

	indexStart := sb.TotalBlocks - sb.IndexBlocks()
	if indexStart-cursor >= needed {
		newEnd := cursor + needed
		if newEnd > uint64(sb.RsvdBlocks)+sb.DataSize {
			sb.DataSize = newEnd - uint64(sb.RsvdBlocks)
		}
		return cursor, cursor + needed - 1, nil
	}

	return 0, 0, fmt.Errorf("sfs: need %d contiguous blocks, none available: %w", needed, sfserr.ErrNoSpace)
}
