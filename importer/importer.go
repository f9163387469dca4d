// Package importer recursively copies a host directory tree into a
// freshly created SFS volume. It has no engine-side presence; the
// engine package never imports it. It exists only so cmd/sfstool's
// "create <image> <source-dir>" command can walk a real filesystem and
// stage each entry through the ordinary Mkdir/Create/Write/Flush calls.
package importer

import (
	"fmt"
	"io"
	"io/fs"
	"path"

	"github.com/KarpelesLab/sfs/sfs"
)

// chunkSize bounds how much of a source file is held in memory at
// once while staging a Write call.
const chunkSize = 1 << 20

// Tree copies every regular file and directory under root (a
// fs.WalkDir-compatible source) into vol, rooted at destPrefix. Use
// os.DirFS(hostPath) as src to import a real directory.
//
// Symlinks, devices, and other non-regular entries are skipped with a
// warning passed to onSkip (if non-nil); SFS has no representation for
// them, matching the original tool's own plain file/directory model.
func Tree(vol *sfs.Volume, src fs.FS, root string, destPrefix string, onSkip func(path string, mode fs.FileMode)) error {
	walker := &walker{vol: vol, src: src, destPrefix: destPrefix, onSkip: onSkip}
	return fs.WalkDir(src, root, walker.visit)
}

type walker struct {
	vol        *sfs.Volume
	src        fs.FS
	destPrefix string
	onSkip     func(path string, mode fs.FileMode)
}

// visit is compatible with fs.WalkDirFunc, mirroring the teacher's own
// Writer.Add, which is driven the same way:
//
//	fs.WalkDir(srcFS, ".", writer.Add)
func (w *walker) visit(p string, d fs.DirEntry, err error) error {
	if err != nil {
		return err
	}
	if p == "." {
		return nil
	}

	destPath := p
	if w.destPrefix != "" {
		destPath = path.Join(w.destPrefix, p)
	}

	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("importer: stat %q: %w", p, err)
	}

	switch {
	case info.Mode().IsDir():
		return w.vol.Mkdir(destPath)
	case info.Mode().IsRegular():
		return w.copyFile(p, destPath, info.Size())
	default:
		if w.onSkip != nil {
			w.onSkip(p, info.Mode())
		}
		return nil
	}
}

func (w *walker) copyFile(srcPath, destPath string, size int64) error {
	if _, err := w.vol.Create(destPath); err != nil {
		return fmt.Errorf("importer: create %q: %w", destPath, err)
	}

	f, err := w.src.Open(srcPath)
	if err != nil {
		return fmt.Errorf("importer: open %q: %w", srcPath, err)
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	var offset int64
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, err := w.vol.Write(destPath, offset, buf[:n]); err != nil {
				return fmt.Errorf("importer: write %q: %w", destPath, err)
			}
			offset += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("importer: read %q: %w", srcPath, readErr)
		}
	}

	if err := w.vol.Flush(destPath); err != nil {
		return fmt.Errorf("importer: flush %q: %w", destPath, err)
	}
	return nil
}
