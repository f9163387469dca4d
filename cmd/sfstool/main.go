// Command sfstool creates, inspects, and repairs SFS volume images from
// the command line. It is the Go equivalent of the original project's
// sfsTool.py, rebuilt on the engine's API instead of talking to the
// image bytes directly.
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/KarpelesLab/sfs/importer"
	"github.com/KarpelesLab/sfs/sfs"
)

func main() {
	app := &cli.App{
		Name:  "sfstool",
		Usage: "inspect and build Simple File System volume images",
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
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// openExisting opens an image file read-write for commands that mutate
// an existing volume. Callers close the returned Volume when done.
func openExisting(imagePath string) (*sfs.Volume, error) {
	v, err := sfs.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", imagePath, err)
	}
	return v, nil
}

var createCommand = &cli.Command{
	Name:      "create",
	Usage:     "format a new image, optionally importing a host directory tree",
	ArgsUsage: "<image> [source-dir]",
	Flags: []cli.Flag{
		&cli.Int64Flag{Name: "size", Usage: "volume size in bytes", Value: 1 << 20},
		&cli.StringFlag{Name: "label", Usage: "volume label", Value: sfs.DefaultLabel},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 1 {
			return cli.Exit("image path required", 1)
		}
		imagePath := c.Args().Get(0)

		img, err := sfs.CreateFileImage(imagePath)
		if err != nil {
			return err
		}
		defer img.Close()

		v, err := sfs.Create(img, c.Int64("size"), sfs.WithLabel(c.String("label")))
		if err != nil {
			return err
		}

		if c.Args().Len() >= 2 {
			srcDir := c.Args().Get(1)
			var onSkip func(string, os.FileMode)
			verbose := c.Bool("verbose")
			if verbose {
				onSkip = func(p string, mode os.FileMode) {
					fmt.Printf("skip %s (%s)\n", p, mode)
				}
			}
			if err := importer.Tree(v, os.DirFS(srcDir), ".", "", onSkip); err != nil {
				return err
			}
			if verbose {
				for _, name := range walkAll(v, "") {
					fmt.Printf("added: %s\n", name)
				}
			}
		}
		return nil
	},
}

var addCommand = &cli.Command{
	Name:      "add",
	Usage:     "add a single host file to an existing image",
	ArgsUsage: "<image> <file> [dest-path]",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 2 {
			return cli.Exit("image and file required", 1)
		}
		imagePath, filePath := c.Args().Get(0), c.Args().Get(1)
		destPath := path.Base(filePath)
		if c.Args().Len() >= 3 {
			destPath = c.Args().Get(2)
		}

		v, err := openExisting(imagePath)
		if err != nil {
			return err
		}
		defer v.Close()

		f, err := os.Open(filePath)
		if err != nil {
			return err
		}
		defer f.Close()

		if _, err := v.Create(destPath); err != nil {
			return err
		}
		data, err := io.ReadAll(f)
		if err != nil {
			return err
		}
		if _, err := v.Write(destPath, 0, data); err != nil {
			return err
		}
		if err := v.Flush(destPath); err != nil {
			return err
		}
		fmt.Println("File added.")
		return nil
	},
}

var listCommand = &cli.Command{
	Name:      "list",
	Usage:     "list the contents of a directory in an image",
	ArgsUsage: "<image> [dir]",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "long", Aliases: []string{"l"}, Usage: "show type, size, and mtime"},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 1 {
			return cli.Exit("image path required", 1)
		}
		imagePath := c.Args().Get(0)
		dir := ""
		if c.Args().Len() >= 2 {
			dir = c.Args().Get(1)
		}

		v, err := openExisting(imagePath)
		if err != nil {
			return err
		}
		defer v.Close()

		names := v.List(dir)
		if !c.Bool("long") {
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		}

		fmt.Printf("%-6s %-10s %-20s %s\n", "TYPE", "SIZE", "MTIME", "NAME")
		for _, name := range names {
			childPath := name
			if dir != "" {
				childPath = dir + "/" + name
			}
			st, err := v.Stat(childPath)
			if err != nil {
				continue
			}
			kind := "FILE"
			size := strconv.FormatUint(st.Length, 10)
			if st.IsDir() {
				kind, size = "DIR", "-"
			}
			fmt.Printf("%-6s %-10s %-20s %s\n", kind, size, st.ModTime.Format("2006-01-02 15:04:05"), name)
		}
		return nil
	},
}

var catCommand = &cli.Command{
	Name:      "cat",
	Usage:     "print a file's content to stdout",
	ArgsUsage: "<image> <path>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 2 {
			return cli.Exit("image and path required", 1)
		}
		imagePath, filePath := c.Args().Get(0), c.Args().Get(1)

		v, err := openExisting(imagePath)
		if err != nil {
			return err
		}
		defer v.Close()

		st, err := v.Stat(filePath)
		if err != nil {
			return err
		}
		data, err := v.Read(filePath, 0, int64(st.Length))
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var infoCommand = &cli.Command{
	Name:      "info",
	Usage:     "print the volume label and free-space summary",
	ArgsUsage: "<image>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 1 {
			return cli.Exit("image path required", 1)
		}
		v, err := openExisting(c.Args().Get(0))
		if err != nil {
			return err
		}
		defer v.Close()

		st := v.Statfs()
		used := st.TotalBlocks - st.FreeBlocks
		fmt.Printf("Label:       %s\n", v.Label())
		fmt.Printf("Block size:  %d bytes\n", st.BlockSize)
		fmt.Printf("Total:       %d blocks (%d bytes)\n", st.TotalBlocks, int64(st.TotalBlocks)*st.BlockSize)
		fmt.Printf("Used:        %d blocks (%d bytes)\n", used, int64(used)*st.BlockSize)
		fmt.Printf("Free:        %d blocks (%d bytes)\n", st.FreeBlocks, int64(st.FreeBlocks)*st.BlockSize)
		return nil
	},
}

var labelCommand = &cli.Command{
	Name:      "label",
	Usage:     "print or set the volume label",
	ArgsUsage: "<image> [new-label]",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 1 {
			return cli.Exit("image path required", 1)
		}
		v, err := openExisting(c.Args().Get(0))
		if err != nil {
			return err
		}
		defer v.Close()

		if c.Args().Len() < 2 {
			fmt.Println(v.Label())
			return nil
		}
		return v.SetLabel(c.Args().Get(1))
	},
}

var mkdirCommand = &cli.Command{
	Name:      "mkdir",
	Usage:     "create a directory inside an image",
	ArgsUsage: "<image> <path>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 2 {
			return cli.Exit("image and path required", 1)
		}
		v, err := openExisting(c.Args().Get(0))
		if err != nil {
			return err
		}
		defer v.Close()
		return v.Mkdir(c.Args().Get(1))
	},
}

var rmCommand = &cli.Command{
	Name:      "rm",
	Usage:     "remove a file or empty directory from an image",
	ArgsUsage: "<image> <path>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 2 {
			return cli.Exit("image and path required", 1)
		}
		v, err := openExisting(c.Args().Get(0))
		if err != nil {
			return err
		}
		defer v.Close()

		targetPath := c.Args().Get(1)
		st, err := v.Stat(targetPath)
		if err != nil {
			return err
		}
		if st.IsDir() {
			return v.Rmdir(targetPath)
		}
		return v.Unlink(targetPath)
	},
}

var resizeCommand = &cli.Command{
	Name:      "resize",
	Usage:     "grow an image to a new size in bytes",
	ArgsUsage: "<image> <new-size>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 2 {
			return cli.Exit("image and new size required", 1)
		}
		size, err := strconv.ParseInt(c.Args().Get(1), 10, 64)
		if err != nil {
			return fmt.Errorf("parsing size: %w", err)
		}
		v, err := openExisting(c.Args().Get(0))
		if err != nil {
			return err
		}
		defer v.Close()
		return v.Resize(size)
	},
}

var shrinkCommand = &cli.Command{
	Name:      "shrink",
	Usage:     "truncate an image's unused tail",
	ArgsUsage: "<image>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 1 {
			return cli.Exit("image path required", 1)
		}
		v, err := openExisting(c.Args().Get(0))
		if err != nil {
			return err
		}
		defer v.Close()
		return v.ShrinkToFit()
	},
}

var defragCommand = &cli.Command{
	Name:      "defrag",
	Usage:     "compact an image's data and index regions",
	ArgsUsage: "<image>",
	Action: func(c *cli.Context) error {
		if c.Args().Len() < 1 {
			return cli.Exit("image path required", 1)
		}
		v, err := openExisting(c.Args().Get(0))
		if err != nil {
			return err
		}
		defer v.Close()
		return v.Defrag()
	},
}

// walkAll lists every file path under dir, depth-first, for -verbose
// create summaries.
func walkAll(v *sfs.Volume, dir string) []string {
	var out []string
	for _, name := range v.List(dir) {
		childPath := name
		if dir != "" {
			childPath = dir + "/" + name
		}
		st, err := v.Stat(childPath)
		if err != nil {
			continue
		}
		if st.IsDir() {
			out = append(out, walkAll(v, childPath)...)
			continue
		}
		out = append(out, childPath)
	}
	return out
}
