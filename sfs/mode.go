package sfs

import "io/fs"

// SFS has no on-disk permission bits: every directory is reported as
// 0777 and every file as 0666, the same fixed pair the original tool's
// FUSE bridge reported (sfsFuse.py: S_IFDIR|0o777, S_IFREG|0o666).
const (
	dirPerm  = 0o777
	filePerm = 0o666

	unixIFDIR = 0x4000
	unixIFREG = 0x8000
)

// GoMode returns the fs.FileMode a host-facing API (FUSE, net/http's
// file server, archive/tar) should report for st.
func (s Stat) GoMode() fs.FileMode {
	if s.IsDir() {
		return fs.ModeDir | dirPerm
	}
	return filePerm
}

// UnixMode returns the raw unix mode word (type bits plus permission
// bits) for st, the form FUSE attribute replies and stat(2) emulation
// expect.
func (s Stat) UnixMode() uint32 {
	if s.IsDir() {
		return unixIFDIR | dirPerm
	}
	return unixIFREG | filePerm
}
