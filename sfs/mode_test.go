package sfs_test

import (
	"testing"
)

func TestStatModeReportsFixedPermissions(t *testing.T) {
	v := newTestVolume(t)
	if err := v.Mkdir("docs"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := v.Create("a.txt"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dirStat, err := v.Stat("docs")
	if err != nil {
		t.Fatalf("Stat(docs): %v", err)
	}
	if !dirStat.GoMode().IsDir() {
		t.Fatalf("GoMode() for directory should report IsDir")
	}
	if dirStat.GoMode().Perm() != 0o777 {
		t.Fatalf("dir perm = %o, want 0777", dirStat.GoMode().Perm())
	}

	fileStat, err := v.Stat("a.txt")
	if err != nil {
		t.Fatalf("Stat(a.txt): %v", err)
	}
	if fileStat.GoMode().IsDir() {
		t.Fatalf("GoMode() for file should not report IsDir")
	}
	if fileStat.GoMode().Perm() != 0o666 {
		t.Fatalf("file perm = %o, want 0666", fileStat.GoMode().Perm())
	}
	if fileStat.UnixMode()&0x8000 == 0 {
		t.Fatalf("UnixMode() missing S_IFREG bit")
	}
}
