package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/mit-pdos/go-sfs/layout"
	"github.com/mit-pdos/go-sfs/sfs"
)

func needArgs(cmd string, args []string, n int) error {
	if len(args) < n {
		return fmt.Errorf("%s requires %d path argument(s)", cmd, n)
	}
	return nil
}

func printStat(out io.Writer, st sfs.Stat, name string) {
	fmt.Fprintf(out, "%6d %-4s %3d %10d %s\n", st.Inum, st.Type, st.LinkCount, st.Size, name)
}

func runLs(root *sfs.Vnode, args []string, stdin io.Reader, out io.Writer) error {
	path := "/"
	if len(args) > 0 {
		path = args[0]
	}
	v, err := root.Lookup(path)
	if err != nil {
		return err
	}
	defer v.Put()
	if err := v.Open(0); err != nil {
		return err
	}
	st, err := v.Stat()
	if err != nil {
		return err
	}
	if st.Type != layout.TypeDir {
		printStat(out, st, path)
		return nil
	}
	slot := uint64(0)
	for {
		de, next, err := v.GetDirEntry(slot)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		child, err := v.Lookup(de.Name)
		if err != nil {
			return err
		}
		cst, err := child.Stat()
		child.Put()
		if err != nil {
			return err
		}
		printStat(out, cst, de.Name)
		slot = next
	}
}

func runCat(root *sfs.Vnode, args []string, stdin io.Reader, out io.Writer) error {
	if err := needArgs("cat", args, 1); err != nil {
		return err
	}
	v, err := root.Lookup(args[0])
	if err != nil {
		return err
	}
	defer v.Put()
	buf := make([]byte, 64*1024)
	off := uint64(0)
	for {
		n, err := v.Read(buf, off)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := out.Write(buf[:n]); err != nil {
			return err
		}
		off += uint64(n)
	}
}

func runPut(root *sfs.Vnode, args []string, stdin io.Reader, out io.Writer) error {
	if err := needArgs("put", args, 1); err != nil {
		return err
	}
	dir, name, err := root.LookParent(args[0])
	if err != nil {
		return err
	}
	defer dir.Put()
	v, err := dir.Create(name, false)
	if err != nil {
		return err
	}
	defer v.Put()
	if err := v.Truncate(0); err != nil {
		return err
	}
	buf := make([]byte, 64*1024)
	off := uint64(0)
	for {
		n, rerr := stdin.Read(buf)
		if n > 0 {
			m, err := v.Write(buf[:n], off)
			if err != nil {
				return err
			}
			off += uint64(m)
		}
		if rerr == io.EOF {
			return v.Close()
		}
		if rerr != nil {
			return rerr
		}
	}
}

// inParent runs f on the directory holding path's last component.
func inParent(root *sfs.Vnode, path string, f func(dir *sfs.Vnode, name string) error) error {
	dir, name, err := root.LookParent(path)
	if err != nil {
		return err
	}
	defer dir.Put()
	return f(dir, name)
}

func runMkdir(root *sfs.Vnode, args []string, stdin io.Reader, out io.Writer) error {
	if err := needArgs("mkdir", args, 1); err != nil {
		return err
	}
	return inParent(root, args[0], (*sfs.Vnode).Mkdir)
}

func runRm(root *sfs.Vnode, args []string, stdin io.Reader, out io.Writer) error {
	if err := needArgs("rm", args, 1); err != nil {
		return err
	}
	return inParent(root, args[0], (*sfs.Vnode).Remove)
}

func runRmdir(root *sfs.Vnode, args []string, stdin io.Reader, out io.Writer) error {
	if err := needArgs("rmdir", args, 1); err != nil {
		return err
	}
	return inParent(root, args[0], (*sfs.Vnode).Rmdir)
}

func runMv(root *sfs.Vnode, args []string, stdin io.Reader, out io.Writer) error {
	if err := needArgs("mv", args, 2); err != nil {
		return err
	}
	return inParent(root, args[0], func(olddir *sfs.Vnode, oldname string) error {
		return inParent(root, args[1], func(newdir *sfs.Vnode, newname string) error {
			return olddir.Rename(oldname, newdir, newname)
		})
	})
}

func runLn(root *sfs.Vnode, args []string, stdin io.Reader, out io.Writer) error {
	if err := needArgs("ln", args, 2); err != nil {
		return err
	}
	target, err := root.Lookup(args[0])
	if err != nil {
		return err
	}
	defer target.Put()
	return inParent(root, args[1], func(dir *sfs.Vnode, name string) error {
		return dir.Link(name, target)
	})
}

func runStat(root *sfs.Vnode, args []string, stdin io.Reader, out io.Writer) error {
	if err := needArgs("stat", args, 1); err != nil {
		return err
	}
	v, err := root.Lookup(args[0])
	if err != nil {
		return err
	}
	defer v.Put()
	st, err := v.Stat()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Inode: %d\n", st.Inum)
	fmt.Fprintf(out, "Type: %s\n", st.Type)
	fmt.Fprintf(out, "Size: %d\n", st.Size)
	fmt.Fprintf(out, "Links: %d\n", st.LinkCount)
	fmt.Fprintf(out, "Blocks: %d\n", st.Blocks)
	return nil
}

func runTruncate(root *sfs.Vnode, args []string, stdin io.Reader, out io.Writer) error {
	if err := needArgs("truncate", args, 2); err != nil {
		return err
	}
	length, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("bad length %q", args[1])
	}
	v, err := root.Lookup(args[0])
	if err != nil {
		return err
	}
	defer v.Put()
	return v.Truncate(length)
}
