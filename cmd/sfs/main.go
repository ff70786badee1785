// sfs - create and modify sfs file system images
//
// Usage:
//
//	sfs [-config file] <image> mkfs [nblocks]
//	sfs [-config file] <image> info
//	sfs [-config file] <image> ls [path]
//	sfs [-config file] <image> cat <path>
//	sfs [-config file] <image> put <path>      (contents from stdin)
//	sfs [-config file] <image> mkdir <path>
//	sfs [-config file] <image> rm <path>
//	sfs [-config file] <image> rmdir <path>
//	sfs [-config file] <image> mv <old> <new>
//	sfs [-config file] <image> ln <old> <new>
//	sfs [-config file] <image> stat <path>
//	sfs [-config file] <image> truncate <path> <length>
//	sfs [-config file] <image> fsck
//
// The image may be omitted when the config file names one.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mit-pdos/go-sfs/config"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/sfs"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "sfs: %v\n", err)
		os.Exit(1)
	}
}

var commands = map[string]func(root *sfs.Vnode, args []string, stdin io.Reader, out io.Writer) error{
	"ls":       runLs,
	"cat":      runCat,
	"put":      runPut,
	"mkdir":    runMkdir,
	"rm":       runRm,
	"rmdir":    runRmdir,
	"mv":       runMv,
	"ln":       runLn,
	"stat":     runStat,
	"truncate": runTruncate,
}

func isCommand(name string) bool {
	_, ok := commands[name]
	return ok || name == "mkfs" || name == "info" || name == "fsck"
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("sfs", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "YAML configuration file")
	if err := flags.Parse(args); err != nil {
		return err
	}
	args = flags.Args()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.InitLogging(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	image := cfg.Image
	if len(args) > 0 && !(image != "" && isCommand(args[0])) {
		image, args = args[0], args[1:]
	}
	if image == "" || len(args) < 1 {
		return fmt.Errorf("usage: sfs [-config file] <image> <command> [args]")
	}
	command, cmdArgs := args[0], args[1:]

	if command == "mkfs" {
		return runMkfs(cfg, image, cmdArgs, stdout)
	}
	if !isCommand(command) {
		return fmt.Errorf("unknown command: %s", command)
	}

	d, err := disk.OpenFileDisk(image)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer d.Close()
	fs, err := sfs.Mount(d)
	if err != nil {
		return fmt.Errorf("mounting %s: %w", image, err)
	}

	switch command {
	case "info":
		err = runInfo(fs, stdout)
	case "fsck":
		err = runFsck(fs, stdout)
	default:
		root := fs.Root()
		err = commands[command](root, cmdArgs, stdin, stdout)
		root.Put()
	}
	if uerr := fs.Unmount(); err == nil && uerr != nil {
		err = fmt.Errorf("unmounting: %w", uerr)
	}
	return err
}

func runMkfs(cfg *config.Config, image string, args []string, out io.Writer) error {
	nblocks := cfg.NBlocks
	if len(args) > 0 {
		n, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad block count %q", args[0])
		}
		nblocks = n
	}
	d, err := disk.NewFileDisk(image, nblocks)
	if err != nil {
		return fmt.Errorf("creating image: %w", err)
	}
	defer d.Close()
	if err := sfs.Mkfs(d, cfg.Geometry, cfg.Volume); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d blocks, ndirect %d, namelen %d\n",
		image, nblocks, cfg.NDirect, cfg.NameLen)
	return nil
}

func runInfo(fs *sfs.FS, out io.Writer) error {
	sb := fs.Super()
	fmt.Fprintf(out, "Volume: %s\n", sb.Volume)
	fmt.Fprintf(out, "UUID: %s\n", sb.UUID)
	fmt.Fprintf(out, "Blocks: %d (%d free)\n", sb.NBlocks, fs.NumFree())
	fmt.Fprintf(out, "Direct pointers: %d\n", sb.Geom.NDirect)
	fmt.Fprintf(out, "Name length: %d\n", sb.Geom.MaxName())
	return nil
}

func runFsck(fs *sfs.FS, out io.Writer) error {
	r, err := fs.Check()
	if err != nil {
		return err
	}
	for _, p := range r.Problems {
		fmt.Fprintln(out, p)
	}
	fmt.Fprintf(out, "%d directories, %d files, %d blocks in use, %d leaked\n",
		r.Dirs, r.Files, len(r.Reachable), len(r.Leaked))
	if !r.OK() {
		return fmt.Errorf("%d problems found", len(r.Problems))
	}
	return nil
}
