package importer_test

import (
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/KarpelesLab/sfs/importer"
	"github.com/KarpelesLab/sfs/sfs"
)

func newTestVolume(t *testing.T) *sfs.Volume {
	t.Helper()
	img := sfs.NewMemImage(0)
	v, err := sfs.Create(img, 256*512, sfs.WithBlockExp(2))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return v
}

func TestTreeImportsFilesAndDirectories(t *testing.T) {
	src := fstest.MapFS{
		"readme.txt":     &fstest.MapFile{Data: []byte("hello")},
		"docs/notes.txt": &fstest.MapFile{Data: []byte("some notes")},
		"docs/sub/a.txt": &fstest.MapFile{Data: []byte("nested")},
	}

	v := newTestVolume(t)
	if err := importer.Tree(v, src, ".", "", nil); err != nil {
		t.Fatalf("Tree: %v", err)
	}

	st, err := v.Stat("readme.txt")
	if err != nil || st.Length != 5 {
		t.Fatalf("Stat(readme.txt) = (%+v, %v)", st, err)
	}
	got, err := v.Read("readme.txt", 0, 5)
	if err != nil || string(got) != "hello" {
		t.Fatalf("Read(readme.txt) = (%q, %v)", got, err)
	}

	docsStat, err := v.Stat("docs")
	if err != nil || !docsStat.IsDir() {
		t.Fatalf("Stat(docs) = (%+v, %v), want directory", docsStat, err)
	}

	nested, err := v.Read("docs/sub/a.txt", 0, 6)
	if err != nil || string(nested) != "nested" {
		t.Fatalf("Read(docs/sub/a.txt) = (%q, %v)", nested, err)
	}
}

func TestTreeHonorsDestPrefix(t *testing.T) {
	src := fstest.MapFS{
		"a.txt": &fstest.MapFile{Data: []byte("x")},
	}
	v := newTestVolume(t)
	if err := importer.Tree(v, src, ".", "imported", nil); err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if _, err := v.Stat("imported/a.txt"); err != nil {
		t.Fatalf("Stat(imported/a.txt): %v", err)
	}
}

func TestTreeSkipsUnsupportedEntriesViaCallback(t *testing.T) {
	src := fstest.MapFS{
		"link": &fstest.MapFile{Data: []byte("target"), Mode: 0o777 | fs.ModeSymlink},
	}
	v := newTestVolume(t)

	var skipped []string
	err := importer.Tree(v, src, ".", "", func(path string, mode fs.FileMode) {
		skipped = append(skipped, path)
	})
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(skipped) != 1 || skipped[0] != "link" {
		t.Fatalf("skipped = %v, want [link]", skipped)
	}
	if _, err := v.Stat("link"); err == nil {
		t.Fatalf("symlink should not have been imported")
	}
}
