package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name: "sfstool",
		Commands: []*cli.Command{
			createCommand,
			addCommand,
			listCommand,
			catCommand,
			infoCommand,
			labelCommand,
			mkdirCommand,
			rmCommand,
			resizeCommand,
			shrinkCommand,
			defragCommand,
		},
	}
}

func TestCreateThenMkdirThenList(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "vol.sfs")
	app := newApp()

	if err := app.Run([]string{"sfstool", "create", image, "--size", "65536"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := os.Stat(image); err != nil {
		t.Fatalf("image not created: %v", err)
	}

	if err := app.Run([]string{"sfstool", "mkdir", image, "docs"}); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := app.Run([]string{"sfstool", "list", image}); err != nil {
		t.Fatalf("list: %v", err)
	}
}

func TestAddCatRoundTrip(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "vol.sfs")
	app := newApp()

	if err := app.Run([]string{"sfstool", "create", image, "--size", "65536"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	hostFile := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(hostFile, []byte("hello sfstool"), 0o644); err != nil {
		t.Fatalf("write host file: %v", err)
	}

	if err := app.Run([]string{"sfstool", "add", image, hostFile}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := app.Run([]string{"sfstool", "cat", image, "note.txt"}); err != nil {
		t.Fatalf("cat: %v", err)
	}
}

func TestResizeShrinkDefrag(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "vol.sfs")
	app := newApp()

	if err := app.Run([]string{"sfstool", "create", image, "--size", "65536"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := app.Run([]string{"sfstool", "resize", image, "131072"}); err != nil {
		t.Fatalf("resize: %v", err)
	}
	if err := app.Run([]string{"sfstool", "defrag", image}); err != nil {
		t.Fatalf("defrag: %v", err)
	}
	if err := app.Run([]string{"sfstool", "shrink", image}); err != nil {
		t.Fatalf("shrink: %v", err)
	}
}

func TestLabelGetAndSet(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "vol.sfs")
	app := newApp()

	if err := app.Run([]string{"sfstool", "create", image, "--size", "65536", "--label", "ORIGINAL"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := app.Run([]string{"sfstool", "label", image, "CHANGED"}); err != nil {
		t.Fatalf("label set: %v", err)
	}
	if err := app.Run([]string{"sfstool", "info", image}); err != nil {
		t.Fatalf("info: %v", err)
	}
}
