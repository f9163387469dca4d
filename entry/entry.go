// Package entry implements the SFS descriptor slot: a 64-byte tagged
// record plus zero or more 64-byte continuation slots that extend its
// name field. It exposes construction from raw bytes, name extraction
// across continuations, type classification, and CRC-correct encoding.
package entry

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/KarpelesLab/sfs/codec"
)

// Size is the byte size of one slot, primary or continuation.
const Size = 64

// Kind is the type tag stored in byte [0] of a primary slot.
type Kind byte

// The entry kinds used on an SFS volume.
const (
	KindVolID   Kind = 0x01
	KindStart   Kind = 0x02
	KindUnused  Kind = 0x10
	KindDir     Kind = 0x11
	KindFile    Kind = 0x12
	KindDirDel  Kind = 0x19
	KindFileDel Kind = 0x1A
)

// Name window offsets and lengths, fixed by the format.
const (
	dirNameOffset  = 11
	dirNameLen     = 53
	fileExtStart   = 11
	fileExtEnd     = 19
	fileLengthOff  = 27
	fileNameOffset = 35
	fileNameLen    = 29
	volIDNameOff   = 12
	volIDNameLen   = 52
	timestampOff   = 3
)

// ErrMalformedEntry is returned when a slot's type tag is unknown, a
// slot is not 64 bytes long, or a kind cannot be encoded or tombstoned.
// A primary whose continuation count overruns the index is reported by
// the index package as sfserr.ErrCorrupt instead.
var ErrMalformedEntry = errors.New("sfs: malformed entry")

// IsDir reports whether k is KindDir.
func (k Kind) IsDir() bool { return k == KindDir }

// IsFile reports whether k is KindFile.
func (k Kind) IsFile() bool { return k == KindFile }

// IsTombstone reports whether k is KindDirDel or KindFileDel.
func (k Kind) IsTombstone() bool { return k == KindDirDel || k == KindFileDel }

// IsLive reports whether k names a currently-visible directory or file.
func (k Kind) IsLive() bool { return k.IsDir() || k.IsFile() }

// HasContinuationCount reports whether byte [2] of a primary slot of
// this kind holds a continuation count. VOL_ID and START never have
// continuations; UNUSED slots are bare.
func (k Kind) HasContinuationCount() bool {
	switch k {
	case KindDir, KindFile, KindDirDel, KindFileDel:
		return true
	default:
		return false
	}
}

// Tombstoned returns the *_DEL kind that hides k, or an error if k is
// not a live DIR or FILE kind.
func (k Kind) Tombstoned() (Kind, error) {
	switch k {
	case KindDir:
		return KindDirDel, nil
	case KindFile:
		return KindFileDel, nil
	default:
		return 0, fmt.Errorf("sfs: kind %#x cannot be tombstoned: %w", byte(k), ErrMalformedEntry)
	}
}

// Entry is the fully decoded form of a primary slot plus its
// continuations.
type Entry struct {
	Kind    Kind
	ModTime time.Time

	// Valid for KindFile only.
	ExtentStart uint64
	ExtentEnd   uint64
	Length      uint64

	// Valid for KindDir, KindFile, KindDirDel, KindFileDel, KindVolID.
	Name string
}

// PeekContinuationCount inspects a raw primary slot and returns how many
// continuation slots immediately follow it, without validating its CRC.
// It fails with ErrMalformedEntry if the type tag is unrecognized.
func PeekContinuationCount(primary []byte) (int, error) {
	if len(primary) < Size {
		return 0, fmt.Errorf("sfs: short slot (%d bytes): %w", len(primary), ErrMalformedEntry)
	}
	k := Kind(primary[0])
	switch k {
	case KindVolID, KindStart, KindUnused, KindDir, KindFile, KindDirDel, KindFileDel:
	default:
		return 0, fmt.Errorf("sfs: unknown entry type %#x: %w", primary[0], ErrMalformedEntry)
	}
	if !k.HasContinuationCount() {
		return 0, nil
	}
	return int(primary[2]), nil
}

// Decode parses a primary slot and its continuation slots into an Entry.
// It validates that the unsigned sum of the primary plus every
// continuation slot is 0 mod 256, per the format's CRC discipline.
// Decode does not itself treat a CRC failure as fatal; callers that must
// honor the "invalid slots become UNUSED" recovery policy check the
// returned ok value themselves (see index.ReadAll).
func Decode(primary []byte, continuations [][]byte) (e Entry, ok bool, err error) {
	if len(primary) != Size {
		return Entry{}, false, fmt.Errorf("sfs: primary slot must be %d bytes: %w", Size, ErrMalformedEntry)
	}

	total := make([]byte, 0, Size*(1+len(continuations)))
	total = append(total, primary...)
	for _, c := range continuations {
		if len(c) != Size {
			return Entry{}, false, fmt.Errorf("sfs: continuation slot must be %d bytes: %w", Size, ErrMalformedEntry)
		}
		total = append(total, c...)
	}

	e.Kind = Kind(primary[0])
	if !codec.ValidateCRC(total) {
		return e, false, nil
	}

	var nameBytes []byte
	switch e.Kind {
	case KindDir, KindDirDel:
		e.ModTime = codec.DecodeTimestamp(codec.GetInt64(primary, timestampOff))
		nameBytes = append(nameBytes, primary[dirNameOffset:dirNameOffset+dirNameLen]...)
	case KindFile, KindFileDel:
		e.ModTime = codec.DecodeTimestamp(codec.GetInt64(primary, timestampOff))
		e.ExtentStart = codec.GetUint64(primary, fileExtStart)
		e.ExtentEnd = codec.GetUint64(primary, fileExtEnd)
		e.Length = codec.GetUint64(primary, fileLengthOff)
		nameBytes = append(nameBytes, primary[fileNameOffset:fileNameOffset+fileNameLen]...)
	case KindVolID:
		nameBytes = append(nameBytes, primary[volIDNameOff:volIDNameOff+volIDNameLen]...)
	case KindStart, KindUnused:
		return e, true, nil
	default:
		return Entry{}, false, fmt.Errorf("sfs: unknown entry type %#x: %w", primary[0], ErrMalformedEntry)
	}

	for _, c := range continuations {
		nameBytes = append(nameBytes, c...)
	}
	e.Name = nameFromBytes(nameBytes)

	return e, true, nil
}

// nameFromBytes returns the UTF-8 string up to (not including) the first
// NUL byte in raw.
func nameFromBytes(raw []byte) string {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw)
}

// Encode serializes e into a primary slot and its continuation slots,
// with the CRC byte and continuation count filled in.
func Encode(e Entry) (primary []byte, continuations [][]byte, err error) {
	primary = make([]byte, Size)
	primary[0] = byte(e.Kind)

	nameLen, nameOff, err := nameWindow(e.Kind)
	if err != nil {
		return nil, nil, err
	}

	name := []byte(e.Name)
	if e.Kind.HasContinuationCount() {
		continuations = buildContinuations(name, nameLen)
	}

	switch e.Kind {
	case KindDir, KindDirDel:
		codec.PutInt64(primary, timestampOff, codec.EncodeTimestamp(e.ModTime))
	case KindFile, KindFileDel:
		codec.PutInt64(primary, timestampOff, codec.EncodeTimestamp(e.ModTime))
		codec.PutUint64(primary, fileExtStart, e.ExtentStart)
		codec.PutUint64(primary, fileExtEnd, e.ExtentEnd)
		codec.PutUint64(primary, fileLengthOff, e.Length)
	case KindVolID:
		// no metadata fields besides the name
	default:
		return nil, nil, fmt.Errorf("sfs: cannot encode kind %#x: %w", byte(e.Kind), ErrMalformedEntry)
	}

	if e.Kind.HasContinuationCount() {
		primary[2] = byte(len(continuations))
	}

	head := name
	if len(head) > nameLen {
		head = head[:nameLen]
	}
	copy(primary[nameOff:nameOff+nameLen], head)

	total := append(append([]byte{}, primary...), flatten(continuations)...)
	total[1] = 0
	crc := codec.CRC(total)
	primary[1] = crc

	return primary, continuations, nil
}

func nameWindow(k Kind) (length, offset int, err error) {
	switch k {
	case KindDir, KindDirDel:
		return dirNameLen, dirNameOffset, nil
	case KindFile, KindFileDel:
		return fileNameLen, fileNameOffset, nil
	case KindVolID:
		return volIDNameLen, volIDNameOff, nil
	default:
		return 0, 0, fmt.Errorf("sfs: kind %#x has no name window: %w", byte(k), ErrMalformedEntry)
	}
}

// buildContinuations splits the tail of name (past the primary slot's
// window) into 64-byte continuation slots. A terminal zero-filled
// continuation is appended whenever the name exactly fills the last
// window in use — the primary window if the name fits with nothing to
// spare, or the final continuation if one was needed — since otherwise
// there would be no in-band NUL terminator.
func buildContinuations(name []byte, windowLen int) [][]byte {
	if len(name) < windowLen {
		return nil
	}

	var conts [][]byte
	rem := name[windowLen:]
	for len(rem) > 0 {
		c := make([]byte, Size)
		n := copy(c, rem)
		conts = append(conts, c)
		rem = rem[n:]
	}

	if len(name) == windowLen+Size*len(conts) {
		conts = append(conts, make([]byte, Size))
	}

	return conts
}

func flatten(slots [][]byte) []byte {
	buf := make([]byte, 0, len(slots)*Size)
	for _, s := range slots {
		buf = append(buf, s...)
	}
	return buf
}
