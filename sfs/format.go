package sfs

import (
	"fmt"
	"time"

	"github.com/KarpelesLab/sfs/codec"
	"github.com/KarpelesLab/sfs/entry"
	"github.com/KarpelesLab/sfs/super"
)

// DefaultLabel is the volume label written by Create when the caller
// doesn't supply one.
const DefaultLabel = "SFS_VOLUME"

// DefaultBlockExp is the block-size exponent (block size = 1<<(exp+7))
// used by Create when the caller doesn't pick one; it yields 512-byte
// blocks, matching the format's historical default.
const DefaultBlockExp uint8 = 2

// CreateOption configures Create.
type CreateOption func(*createConfig)

type createConfig struct {
	blockExp uint8
	label    string
}

// WithBlockExp overrides the block-size exponent of a newly formatted
// volume.
func WithBlockExp(exp uint8) CreateOption {
	return func(c *createConfig) { c.blockExp = exp }
}

// WithLabel sets the volume label written to the VOL_ID entry. Labels
// longer than 52 bytes are rejected at Create time rather than silently
// truncated.
func WithLabel(label string) CreateOption {
	return func(c *createConfig) { c.label = label }
}

// Create formats img as a fresh SFS volume of sizeBytes and opens it.
// It lays out the reserved region, a one-block index holding a START
// sentinel and a VOL_ID entry, and an empty data region, exactly as
// Open would expect to find them.
func Create(img Image, sizeBytes int64, opts ...CreateOption) (*Volume, error) {
	cfg := createConfig{blockExp: DefaultBlockExp, label: DefaultLabel}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.label) > 52 {
		return nil, fmt.Errorf("sfs: label %q longer than 52 bytes", cfg.label)
	}

	if err := img.Truncate(sizeBytes); err != nil {
		return nil, fmt.Errorf("sfs: sizing new volume: %w", err)
	}

	sb := super.New(sizeBytes, cfg.blockExp)
	blockSize := sb.BlockSize()

	if _, err := img.WriteAt(make([]byte, blockSize), 0); err != nil {
		return nil, fmt.Errorf("sfs: zeroing reserved block: %w", err)
	}
	if err := sb.Store(img); err != nil {
		return nil, err
	}

	idxStart := sb.IndexByteOffset()
	lastSlot := idxStart + blockSize - entry.Size

	startSlot := bareSlot(entry.KindStart)
	if _, err := img.WriteAt(startSlot, idxStart); err != nil {
		return nil, fmt.Errorf("sfs: writing START sentinel: %w", err)
	}

	unused := bareSlot(entry.KindUnused)
	for off := idxStart + entry.Size; off < lastSlot; off += entry.Size {
		if _, err := img.WriteAt(unused, off); err != nil {
			return nil, fmt.Errorf("sfs: writing UNUSED slot: %w", err)
		}
	}

	volPrimary, _, err := entry.Encode(entry.Entry{
		Kind:    entry.KindVolID,
		Name:    cfg.label,
		ModTime: time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if _, err := img.WriteAt(volPrimary, lastSlot); err != nil {
		return nil, fmt.Errorf("sfs: writing VOL_ID entry: %w", err)
	}

	return OpenImage(img)
}

// bareSlot builds a slot with no metadata besides its type tag and CRC:
// the shape of a START or UNUSED entry.
func bareSlot(k entry.Kind) []byte {
	b := make([]byte, entry.Size)
	b[0] = byte(k)
	b[1] = codec.CRC(b)
	return b
}
