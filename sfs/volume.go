// Package sfs implements the Simple File System engine: a contiguous,
// journal-free container format readable and writable through plain
// random-access I/O, with no external metadata store. A Volume opens an
// Image, keeps a rebuilt-after-every-mutation path cache, and exposes
// the directory and file operations the format supports.
package sfs

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/KarpelesLab/sfs/alloc"
	"github.com/KarpelesLab/sfs/codec"
	"github.com/KarpelesLab/sfs/entry"
	"github.com/KarpelesLab/sfs/index"
	"github.com/KarpelesLab/sfs/pathcache"
	"github.com/KarpelesLab/sfs/super"
)

// Volume is a single open SFS image together with its derived state.
// A Volume is not safe for concurrent use: every operation documented
// in SPEC_FULL.md assumes single-threaded, exclusive ownership of the
// underlying Image.
type Volume struct {
	img Image
	sb  *super.Superblock

	entries []index.Parsed
	cache   *pathcache.Cache

	buffers map[string]*writeBuffer

	logger *log.Logger
}

// writeBuffer holds the staged, not-yet-flushed content of a file.
type writeBuffer struct {
	data []byte
}

// Handle is the return value of Create; it carries nothing beyond the
// normalized path, but gives callers something to hold in place of a
// bare string (mirroring the teacher's *os.File-shaped return values).
type Handle struct {
	path string
}

// Path returns the normalized path the handle was created for.
func (h *Handle) Path() string { return h.path }

// Option configures a Volume at open time.
type Option func(*Volume)

// WithLogger overrides the *log.Logger a Volume uses for its recovery
// and maintenance diagnostics. The default is log.Default().
func WithLogger(l *log.Logger) Option {
	return func(v *Volume) { v.logger = l }
}

// Open opens path as an SFS volume.
func Open(path string, opts ...Option) (*Volume, error) {
	img, err := OpenFileImage(path)
	if err != nil {
		return nil, err
	}
	return OpenImage(img, opts...)
}

// OpenImage opens img as an SFS volume, loading its superblock and
// index. A magic mismatch fails with ErrNotAnSFSVolume; an index that
// can't be parsed fails with ErrCorrupt.
func OpenImage(img Image, opts ...Option) (*Volume, error) {
	sb, err := super.Load(img)
	if err != nil {
		if errors.Is(err, super.ErrNotAnSFSVolume) {
			return nil, err
		}
		return nil, fmt.Errorf("sfs: opening volume: %w", err)
	}

	v := &Volume{
		img:     img,
		sb:      sb,
		buffers: make(map[string]*writeBuffer),
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}

	if err := v.rebuild(); err != nil {
		return nil, err
	}
	return v, nil
}

// Close flushes nothing (buffers are discarded); it closes the
// underlying image.
func (v *Volume) Close() error {
	return v.img.Close()
}

// rebuild re-reads the index region and recomputes the path cache. It
// is called after every committed mutation.
func (v *Volume) rebuild() error {
	parsed, _, err := index.ReadAll(v.img, v.sb)
	if err != nil {
		return err
	}
	v.entries = parsed
	v.cache = pathcache.Build(liveEntries(parsed))
	return nil
}

func liveEntries(parsed []index.Parsed) []entry.Entry {
	out := make([]entry.Entry, len(parsed))
	for i, p := range parsed {
		out[i] = p.Entry
	}
	return out
}

func (v *Volume) findLive(normPath string) (index.Parsed, bool) {
	for _, p := range v.entries {
		if p.Entry.Kind.IsLive() && pathcache.Normalize(p.Entry.Name) == normPath {
			return p, true
		}
	}
	return index.Parsed{}, false
}

func (v *Volume) findVolID() (index.Parsed, bool) {
	for _, p := range v.entries {
		if p.Entry.Kind == entry.KindVolID {
			return p, true
		}
	}
	return index.Parsed{}, false
}

// Stat describes one live directory or file entry.
type Stat struct {
	Kind    entry.Kind
	Length  uint64
	ModTime time.Time
}

// IsDir reports whether the stat describes a directory.
func (s Stat) IsDir() bool { return s.Kind.IsDir() }

// Stat returns the metadata of path, or ErrNotFound if it doesn't name
// a live directory or file.
func (v *Volume) Stat(path string) (Stat, error) {
	norm := pathcache.Normalize(path)
	e, ok := v.cache.ByPath[norm]
	if !ok {
		return Stat{}, fmt.Errorf("sfs: stat %q: %w", path, ErrNotFound)
	}
	return Stat{Kind: e.Kind, Length: e.Length, ModTime: e.ModTime}, nil
}

// List returns the immediate child names of dir. An absent or empty
// directory yields an empty, non-nil slice.
func (v *Volume) List(dir string) []string {
	return v.cache.List(dir)
}

// Label returns the volume's label, or "" if no VOL_ID entry exists.
func (v *Volume) Label() string {
	p, ok := v.findVolID()
	if !ok {
		return ""
	}
	return p.Entry.Name
}

// Read returns up to length bytes of path starting at offset. Reading
// past end of file yields fewer bytes than requested rather than an
// error; an offset at or past the file's length yields an empty slice.
func (v *Volume) Read(path string, offset int64, length int64) ([]byte, error) {
	norm := pathcache.Normalize(path)
	e, ok := v.cache.ByPath[norm]
	if !ok || !e.Kind.IsFile() {
		return nil, fmt.Errorf("sfs: read %q: %w", path, ErrNotFound)
	}
	if offset < 0 || length <= 0 || uint64(offset) >= e.Length {
		return []byte{}, nil
	}

	avail := e.Length - uint64(offset)
	n := uint64(length)
	if n > avail {
		n = avail
	}

	buf := make([]byte, n)
	pos := int64(e.ExtentStart)*v.sb.BlockSize() + offset
	if _, err := v.img.ReadAt(buf, pos); err != nil && err != io.EOF {
		return nil, fmt.Errorf("sfs: reading %q: %w", path, err)
	}
	return buf, nil
}

// commit writes newEnt into a free (or newly grown) index run, then —
// if supersede is non-nil — tombstones the entry it replaces, then
// stamps and persists the superblock exactly once, then rebuilds
// derived state. This is the ordering discipline of SPEC_FULL.md §8:
// payload (already on disk by the time commit is called), new entry,
// tombstone, superblock last.
func (v *Volume) commit(newEnt entry.Entry, supersede *index.Parsed) error {
	if err := index.WriteNew(v.img, v.sb, newEnt); err != nil {
		return err
	}
	if supersede != nil {
		if err := index.Tombstone(v.img, v.sb, *supersede); err != nil {
			return err
		}
	}
	v.sb.ModTime = codec.EncodeTimestamp(time.Now())
	if err := v.sb.Store(v.img); err != nil {
		return err
	}
	return v.rebuild()
}

// Create adds a new, empty file at path. The caller writes content
// with Write and commits it with Flush.
func (v *Volume) Create(path string) (*Handle, error) {
	norm := pathcache.Normalize(path)
	if _, ok := v.cache.ByPath[norm]; ok {
		return nil, fmt.Errorf("sfs: create %q: %w", path, ErrAlreadyExists)
	}
	e := entry.Entry{Kind: entry.KindFile, Name: norm, ModTime: time.Now()}
	if err := v.commit(e, nil); err != nil {
		return nil, err
	}
	return &Handle{path: norm}, nil
}

// Mkdir adds a new, empty directory at path.
func (v *Volume) Mkdir(path string) error {
	norm := pathcache.Normalize(path)
	if _, ok := v.cache.ByPath[norm]; ok {
		return fmt.Errorf("sfs: mkdir %q: %w", path, ErrAlreadyExists)
	}
	e := entry.Entry{Kind: entry.KindDir, Name: norm, ModTime: time.Now()}
	return v.commit(e, nil)
}

// Rmdir removes the empty directory at path.
func (v *Volume) Rmdir(path string) error {
	norm := pathcache.Normalize(path)
	if _, ok := v.cache.ByPath[norm]; !ok {
		return fmt.Errorf("sfs: rmdir %q: %w", path, ErrNotFound)
	}
	if !v.cache.IsEmpty(norm) {
		return fmt.Errorf("sfs: rmdir %q: %w", path, ErrNotEmpty)
	}
	return v.unlinkNormalized(norm)
}

// Unlink removes the file at path, discarding any unflushed buffer for
// it.
func (v *Volume) Unlink(path string) error {
	norm := pathcache.Normalize(path)
	delete(v.buffers, norm)
	return v.unlinkNormalized(norm)
}

// unlinkNormalized tombstones the live entry at norm. Unlike commit, it
// never touches the superblock: a tombstone changes neither data_size,
// index_size, total_blocks, nor (per the format's convention) the
// volume timestamp, so the only write is the rewrite of the entry's
// 64-byte primary slot (new type byte and CRC).
func (v *Volume) unlinkNormalized(norm string) error {
	p, ok := v.findLive(norm)
	if !ok {
		return fmt.Errorf("sfs: unlink %q: %w", norm, ErrNotFound)
	}
	if err := index.Tombstone(v.img, v.sb, p); err != nil {
		return err
	}
	return v.rebuild()
}

// Rename moves the live entry at oldPath to newPath, preserving its
// type, extent, and length; newPath must not already exist.
func (v *Volume) Rename(oldPath, newPath string) error {
	oldNorm := pathcache.Normalize(oldPath)
	newNorm := pathcache.Normalize(newPath)

	oldParsed, ok := v.findLive(oldNorm)
	if !ok {
		return fmt.Errorf("sfs: rename %q: %w", oldPath, ErrNotFound)
	}
	if _, exists := v.cache.ByPath[newNorm]; exists {
		return fmt.Errorf("sfs: rename to %q: %w", newPath, ErrAlreadyExists)
	}

	newEnt := oldParsed.Entry
	newEnt.Name = newNorm
	newEnt.ModTime = time.Now()

	if buf, ok := v.buffers[oldNorm]; ok {
		delete(v.buffers, oldNorm)
		v.buffers[newNorm] = buf
	}

	return v.commit(newEnt, &oldParsed)
}

// SetLabel overwrites the volume's VOL_ID entry in place. Labels are
// not continuation-extensible in this format, so label must fit in 52
// bytes.
func (v *Volume) SetLabel(label string) error {
	if len(label) > 52 {
		return fmt.Errorf("sfs: label %q longer than 52 bytes", label)
	}
	p, ok := v.findVolID()
	if !ok {
		return fmt.Errorf("sfs: volume has no VOL_ID entry: %w", ErrCorrupt)
	}
	primary, conts, err := entry.Encode(entry.Entry{Kind: entry.KindVolID, Name: label})
	if err != nil {
		return err
	}
	if len(conts) != 0 {
		return fmt.Errorf("sfs: label %q unexpectedly required continuations", label)
	}
	base := v.sb.IndexByteOffset() + int64(p.Slot)*entry.Size
	if _, err := v.img.WriteAt(primary, base); err != nil {
		return fmt.Errorf("sfs: writing VOL_ID entry: %w", err)
	}
	return v.rebuild()
}

// Statfs reports overall volume occupancy.
type Statfs struct {
	TotalBlocks uint64
	FreeBlocks  uint64
	BlockSize   int64
}

// Statfs summarizes the volume's block accounting.
func (v *Volume) Statfs() Statfs {
	return Statfs{
		TotalBlocks: v.sb.TotalBlocks,
		FreeBlocks:  alloc.FreeBlockCount(v.sb, liveEntries(v.entries)),
		BlockSize:   v.sb.BlockSize(),
	}
}
