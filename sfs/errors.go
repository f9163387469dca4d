package sfs

import (
	"github.com/KarpelesLab/sfs/entry"
	"github.com/KarpelesLab/sfs/sfserr"
	"github.com/KarpelesLab/sfs/super"
)

// Sentinel errors. They are the same values returned by the lower-level
// packages; this package re-exports them so that callers never need to
// import sfserr, entry, or super just to compare an error with errors.Is.
var (
	ErrNotAnSFSVolume = super.ErrNotAnSFSVolume
	ErrMalformedEntry = entry.ErrMalformedEntry

	ErrCorrupt       = sfserr.ErrCorrupt
	ErrNotFound      = sfserr.ErrNotFound
	ErrAlreadyExists = sfserr.ErrAlreadyExists
	ErrNotEmpty      = sfserr.ErrNotEmpty
	ErrNoSpace       = sfserr.ErrNoSpace
)
