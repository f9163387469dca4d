//go:build fuse

// Package fuseadapter mounts an *sfs.Volume as a FUSE filesystem using
// go-fuse's high-level node API. It is the writable counterpart to the
// teacher's read-only inode_fuse.go: where that package walks a
// pre-built, immutable inode tree, this one maps every FUSE callback
// straight onto an sfs.Volume operation, so the volume's path cache
// stays the single source of truth.
package fuseadapter

import (
	"context"
	"errors"
	"log"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/KarpelesLab/sfs/entry"
	"github.com/KarpelesLab/sfs/sfs"
)

// Node is one FUSE inode, identified by the normalized SFS path it
// represents. The root node's path is "".
type Node struct {
	fs.Inode
	vol  *sfs.Volume
	path string
}

var (
	_ fs.NodeLookuper   = (*Node)(nil)
	_ fs.NodeReaddirer  = (*Node)(nil)
	_ fs.NodeGetattrer  = (*Node)(nil)
	_ fs.NodeOpener     = (*Node)(nil)
	_ fs.NodeCreater    = (*Node)(nil)
	_ fs.NodeMkdirer    = (*Node)(nil)
	_ fs.NodeUnlinker   = (*Node)(nil)
	_ fs.NodeRmdirer    = (*Node)(nil)
	_ fs.NodeRenamer    = (*Node)(nil)
	_ fs.NodeStatfser   = (*Node)(nil)
)

// Mount checks that mountpoint is a usable directory, mounts vol there,
// and returns the running *fuse.Server. Callers stop serving with
// server.Unmount() or by waiting on server.Wait().
func Mount(mountpoint string, vol *sfs.Volume, opts *fs.Options) (*fuse.Server, error) {
	if err := checkMountpoint(mountpoint); err != nil {
		return nil, err
	}
	root := &Node{vol: vol, path: ""}
	if opts == nil {
		opts = &fs.Options{}
	}
	opts.MountOptions.Name = "sfs"
	server, err := fs.Mount(mountpoint, root, opts)
	if err != nil {
		return nil, err
	}
	log.Printf("sfs: mounted %q", mountpoint)
	return server, nil
}

// checkMountpoint verifies mountpoint exists, is a directory, and is
// accessible, using unix syscalls directly rather than os.Stat so the
// error matches what the eventual mount(2) call would see.
func checkMountpoint(mountpoint string) error {
	var st unix.Stat_t
	if err := unix.Stat(mountpoint, &st); err != nil {
		return err
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return syscall.ENOTDIR
	}
	return unix.Access(mountpoint, unix.W_OK)
}

func (n *Node) childPath(name string) string {
	if n.path == "" {
		return name
	}
	return n.path + "/" + name
}

func (n *Node) stat() (sfs.Stat, error) {
	if n.path == "" {
		return sfs.Stat{Kind: entry.KindDir}, nil // synthetic root directory
	}
	return n.vol.Stat(n.path)
}

func fillAttr(out *fuse.Attr, st sfs.Stat) {
	out.Size = st.Length
	out.SetTimes(nil, &st.ModTime, nil)
	out.Mode = st.UnixMode()
	out.Nlink = 1
}

func toErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, sfs.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, sfs.ErrAlreadyExists):
		return syscall.EEXIST
	case errors.Is(err, sfs.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, sfs.ErrNoSpace):
		return syscall.ENOSPC
	case errors.Is(err, sfs.ErrCorrupt):
		return syscall.EIO
	default:
		return syscall.EIO
	}
}

// Lookup resolves one path component below n.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	st, err := n.vol.Stat(childPath)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(&out.Attr, st)

	mode := uint32(fuse.S_IFREG)
	if st.IsDir() {
		mode = fuse.S_IFDIR
	}
	child := &Node{vol: n.vol, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: mode}), 0
}

// Readdir lists n's children from the volume's path cache.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names := n.vol.List(n.path)
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		st, err := n.vol.Stat(n.childPath(name))
		if err != nil {
			continue
		}
		mode := uint32(fuse.S_IFREG)
		if st.IsDir() {
			mode = fuse.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: name, Mode: mode})
	}
	return fs.NewListDirStream(entries), 0
}

// Getattr reports the node's type, size, and modification time.
func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	st, err := n.stat()
	if err != nil {
		return toErrno(err)
	}
	fillAttr(&out.Attr, st)
	return 0
}

// Open returns a fileHandle bound to n's path; SFS has no separate
// file-descriptor state beyond the path itself and its write buffer.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return &fileHandle{vol: n.vol, path: n.path}, fuse.FOPEN_DIRECT_IO, 0
}

// Create adds a new file below n and opens it.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	childPath := n.childPath(name)
	if _, err := n.vol.Create(childPath); err != nil {
		return nil, nil, 0, toErrno(err)
	}
	st, err := n.vol.Stat(childPath)
	if err != nil {
		return nil, nil, 0, toErrno(err)
	}
	fillAttr(&out.Attr, st)

	child := &Node{vol: n.vol, path: childPath}
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFREG})
	return inode, &fileHandle{vol: n.vol, path: childPath}, fuse.FOPEN_DIRECT_IO, 0
}

// Mkdir adds a new empty directory below n.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	if err := n.vol.Mkdir(childPath); err != nil {
		return nil, toErrno(err)
	}
	st, err := n.vol.Stat(childPath)
	if err != nil {
		return nil, toErrno(err)
	}
	fillAttr(&out.Attr, st)

	child := &Node{vol: n.vol, path: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: fuse.S_IFDIR}), 0
}

// Unlink removes the file named name below n.
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	return toErrno(n.vol.Unlink(n.childPath(name)))
}

// Rmdir removes the empty directory named name below n.
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	return toErrno(n.vol.Rmdir(n.childPath(name)))
}

// Rename moves name (below n) to newName (below newParent).
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	np, ok := newParent.(*Node)
	if !ok {
		return syscall.EXDEV
	}
	return toErrno(n.vol.Rename(n.childPath(name), np.childPath(newName)))
}

// Statfs reports the volume's block accounting.
func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	st := n.vol.Statfs()
	out.Blocks = st.TotalBlocks
	out.Bfree = st.FreeBlocks
	out.Bavail = st.FreeBlocks
	out.Bsize = uint32(st.BlockSize)
	out.NameLen = 255
	return 0
}

// fileHandle is the open-file state FUSE holds between Open/Create and
// Release; SFS needs nothing beyond the path, since Read goes straight
// to the volume and Write stages into the volume's own write buffer.
type fileHandle struct {
	vol  *sfs.Volume
	path string
}

var (
	_ fs.FileReader  = (*fileHandle)(nil)
	_ fs.FileWriter  = (*fileHandle)(nil)
	_ fs.FileFlusher = (*fileHandle)(nil)
)

func (fh *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := fh.vol.Read(fh.path, off, int64(len(dest)))
	if err != nil {
		return nil, toErrno(err)
	}
	return fuse.ReadResultData(data), 0
}

func (fh *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	n, err := fh.vol.Write(fh.path, off, data)
	if err != nil {
		return 0, toErrno(err)
	}
	return uint32(n), 0
}

func (fh *fileHandle) Flush(ctx context.Context) syscall.Errno {
	return toErrno(fh.vol.Flush(fh.path))
}
