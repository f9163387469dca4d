// Package sfserr holds the sentinel errors shared by the lower-level SFS
// packages (index, alloc) and re-exported from the top-level sfs package,
// so that errors.Is works the same way whether a caller imports sfs or
// one of its internals directly.
package sfserr

import "errors"

var (
	// ErrCorrupt is returned when a declared continuation run cannot be
	// satisfied by the index, or a required START or VOL_ID entry is
	// missing or has no room.
	ErrCorrupt = errors.New("sfs: volume is corrupt")

	// ErrNotFound is returned when a path is absent from the path cache.
	ErrNotFound = errors.New("sfs: path not found")

	// ErrAlreadyExists is returned when a path is already occupied at
	// create/mkdir/rename time.
	ErrAlreadyExists = errors.New("sfs: path already exists")

	// ErrNotEmpty is returned by rmdir when the directory has children.
	ErrNotEmpty = errors.New("sfs: directory not empty")

	// ErrNoSpace is returned when no contiguous extent of the required
	// length is available, or the index cannot be expanded to make room
	// for a new entry.
	ErrNoSpace = errors.New("sfs: no space left on volume")
)
