// Package super reads and writes the 42-byte SFS superblock: the fixed
// header that anchors the reserved region and carries every field that
// describes the overall shape of a volume (region sizes, block size,
// format version, modification time).
package super

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/KarpelesLab/sfs/codec"
)

// Size is the on-disk size of a superblock in bytes.
const Size = 42

// Offset is the fixed byte offset of the superblock inside the reserved
// region.
const Offset = 0x18E

// Magic is the 3-byte signature that opens every superblock.
var Magic = [3]byte{'S', 'F', 'S'}

// Version is the only format version this package reads and writes.
const Version = 0x1A

// ErrNotAnSFSVolume is returned by Load when the magic bytes don't match.
var ErrNotAnSFSVolume = errors.New("sfs: not an SFS volume")

// ErrShortRead is returned by Load when fewer than Size bytes could be
// read at Offset.
var ErrShortRead = errors.New("sfs: superblock read truncated")

// Superblock is the in-memory, already-validated form of the 42-byte
// on-disk header.
type Superblock struct {
	ModTime     int64 // fixed-point seconds*65536, see codec.EncodeTimestamp
	DataSize    uint64 // blocks
	IndexSize   uint64 // bytes
	Magic       [3]byte
	Version     uint8
	TotalBlocks uint64
	RsvdBlocks  uint32
	BlockExp    uint8
	CRC         uint8
}

// BlockSize returns 1 << (BlockExp + 7), the byte size of one block.
func (s *Superblock) BlockSize() int64 {
	return 1 << (uint(s.BlockExp) + 7)
}

// IndexBlocks returns ceil(IndexSize / BlockSize()).
func (s *Superblock) IndexBlocks() uint64 {
	bs := uint64(s.BlockSize())
	return (s.IndexSize + bs - 1) / bs
}

// IndexByteOffset returns the byte offset where the index region begins
// (total_blocks*block_size - index_size).
func (s *Superblock) IndexByteOffset() int64 {
	return int64(s.TotalBlocks)*s.BlockSize() - int64(s.IndexSize)
}

// New builds the superblock for a freshly formatted volume of the given
// byte size, with a one-block index and a one-block reserved region.
func New(sizeBytes int64, blockExp uint8) *Superblock {
	bs := int64(1) << (uint(blockExp) + 7)
	total := uint64(sizeBytes / bs)
	return &Superblock{
		ModTime:     codec.EncodeTimestamp(time.Now()),
		DataSize:    0,
		IndexSize:   uint64(bs),
		Magic:       Magic,
		Version:     Version,
		TotalBlocks: total,
		RsvdBlocks:  1,
		BlockExp:    blockExp,
	}
}

// Load reads and unpacks the superblock at Offset from img.
//
// A magic mismatch is fatal and reported as ErrNotAnSFSVolume. A CRC
// mismatch is logged as a warning but not fatal, per the backward
// compatibility decision in SPEC_FULL.md §12.3: some tools that produced
// SFS images computed the CRC incorrectly, so a stored image with a bad
// superblock CRC is still usable.
func Load(img io.ReaderAt) (*Superblock, error) {
	buf := make([]byte, Size)
	n, err := img.ReadAt(buf, Offset)
	if err != nil && n < Size {
		return nil, fmt.Errorf("reading superblock: %w", ErrShortRead)
	}

	if buf[24] != Magic[0] || buf[25] != Magic[1] || buf[26] != Magic[2] {
		return nil, ErrNotAnSFSVolume
	}

	s := &Superblock{}
	s.ModTime = codec.GetInt64(buf, 0)
	s.DataSize = codec.GetUint64(buf, 8)
	s.IndexSize = codec.GetUint64(buf, 16)
	copy(s.Magic[:], buf[24:27])
	s.Version = buf[27]
	s.TotalBlocks = codec.GetUint64(buf, 28)
	s.RsvdBlocks = codec.GetUint32(buf, 36)
	s.BlockExp = buf[40]
	s.CRC = buf[41]

	if !codec.ValidateCRC(buf) {
		log.Printf("sfs: superblock CRC mismatch at offset %d, continuing per backward-compat policy", Offset)
	}

	return s, nil
}

// Store packs s with its CRC byte recomputed and writes it to Offset in
// img.
func (s *Superblock) Store(img io.WriterAt) error {
	buf := s.pack(0)
	s.CRC = codec.CRC(buf)
	buf = s.pack(s.CRC)

	_, err := img.WriteAt(buf, Offset)
	if err != nil {
		return fmt.Errorf("writing superblock: %w", err)
	}
	return nil
}

func (s *Superblock) pack(crc byte) []byte {
	buf := make([]byte, Size)
	codec.PutInt64(buf, 0, s.ModTime)
	codec.PutUint64(buf, 8, s.DataSize)
	codec.PutUint64(buf, 16, s.IndexSize)
	copy(buf[24:27], s.Magic[:])
	buf[27] = s.Version
	codec.PutUint64(buf, 28, s.TotalBlocks)
	codec.PutUint32(buf, 36, s.RsvdBlocks)
	buf[40] = s.BlockExp
	buf[41] = crc
	return buf
}
