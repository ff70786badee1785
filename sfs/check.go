package sfs

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/fserr"
	"github.com/mit-pdos/go-sfs/layout"
	"github.com/mit-pdos/go-sfs/util"
)

// Report is the result of Check.
type Report struct {
	Problems  []string
	Reachable map[common.Bnum]common.Inum // block -> inode it belongs to
	Files     uint64
	Dirs      uint64
	// Leaked lists used blocks that no inode reaches. Files that are
	// unlinked but still referenced legitimately show up here.
	Leaked []common.Bnum
}

func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

type checker struct {
	fs *FS
	g  *errgroup.Group

	mu      sync.Mutex
	report  *Report
	visited map[common.Inum]bool
	refs    map[common.Inum]uint64 // entries naming an inode, besides . and ..
	subdirs map[common.Inum]uint64
	links   map[common.Inum]uint64
	types   map[common.Inum]layout.IType
	parents map[common.Inum]common.Inum
}

const checkParallelism = 8

// Check walks the tree from the root and verifies the on-disk invariants:
// reachable blocks are marked used and reachable once, directories are well
// formed with unique names and correct . and .., and link counts match the
// entries that reference each inode. Subdirectories are checked concurrently.
// The file system should be quiet while Check runs.
func (fs *FS) Check() (*Report, error) {
	c := &checker{
		fs:      fs,
		g:       new(errgroup.Group),
		report:  &Report{Reachable: make(map[common.Bnum]common.Inum)},
		visited: make(map[common.Inum]bool),
		refs:    make(map[common.Inum]uint64),
		subdirs: make(map[common.Inum]uint64),
		links:   make(map[common.Inum]uint64),
		types:   make(map[common.Inum]layout.IType),
		parents: make(map[common.Inum]common.Inum),
	}
	c.g.SetLimit(checkParallelism)
	err := c.visit(layout.Dirent{Ino: common.ROOTINUM, Name: "/"}, common.ROOTINUM)
	if werr := c.g.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		return nil, err
	}
	c.finish()
	return c.report, nil
}

func (c *checker) problem(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	util.DPrintf(1, "check: %s\n", msg)
	c.report.Problems = append(c.report.Problems, msg)
}

// claim records that inum reaches bn. Caller holds c.mu.
func (c *checker) claim(bn common.Bnum, inum common.Inum) {
	if owner, ok := c.report.Reachable[bn]; ok {
		c.problem("block %d reachable from inode %d and inode %d", bn, owner, inum)
		return
	}
	c.report.Reachable[bn] = inum
	if !c.fs.alloc.IsUsed(bn) {
		c.problem("block %d of inode %d is marked free", bn, inum)
	}
}

// visit checks inum, reached from directory parent, once. The children of
// a directory are handed to the errgroup, or checked inline when it is
// saturated.
func (c *checker) visit(de layout.Dirent, parent common.Inum) error {
	inum := de.Ino
	c.mu.Lock()
	if c.visited[inum] {
		c.mu.Unlock()
		return nil
	}
	c.visited[inum] = true
	c.mu.Unlock()

	t, err := c.inodeType(inum)
	if err != nil {
		return err
	}
	if t != layout.TypeFile && t != layout.TypeDir {
		c.mu.Lock()
		c.problem("directory %d: %q names non-inode block %d", parent, de.Name, inum)
		c.mu.Unlock()
		return nil
	}

	var children []layout.Dirent
	err = c.inspect(inum, parent, &children)
	if err != nil {
		return err
	}
	for _, child := range children {
		child := child
		if c.g.TryGo(func() error { return c.visit(child, inum) }) {
			continue
		}
		if err := c.visit(child, inum); err != nil {
			return err
		}
	}
	return nil
}

// inodeType is the type of the inode in block inum: the resident vnode's
// when there is one, since its inode may not have been written yet,
// otherwise the one on disk.
func (c *checker) inodeType(inum common.Inum) (layout.IType, error) {
	t := c.fs.tbl
	t.mu.Lock()
	v, ok := t.vnodes[inum]
	if ok && v.state == vReady {
		typ := v.ip.Type
		t.mu.Unlock()
		return typ, nil
	}
	t.mu.Unlock()
	blk, err := c.fs.d.Read(inum.Bnum())
	if err != nil {
		return layout.TypeInvalid, fserr.IO(err, inum.Bnum(), "read inode %d", inum)
	}
	return layout.DecodeInode(c.fs.geom, blk).Type, nil
}

func (c *checker) inspect(inum common.Inum, parent common.Inum, children *[]layout.Dirent) error {
	v, err := c.fs.get(inum, layout.TypeInvalid)
	if err != nil {
		return err
	}
	defer v.Put()
	v.lock()
	defer v.unlock()

	bns, err := v.blocks()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.claim(inum.Bnum(), inum)
	for _, bn := range bns {
		c.claim(bn, inum)
	}
	c.links[inum] = v.ip.LinkCount
	c.types[inum] = v.ip.Type
	if v.isDir() {
		c.report.Dirs++
		c.parents[inum] = parent
	} else {
		c.report.Files++
	}
	c.mu.Unlock()

	if !v.isDir() {
		return nil
	}
	ds := c.fs.geom.DirentSize()
	if v.ip.Size%ds != 0 {
		c.mu.Lock()
		c.problem("directory %d has size %d, not a multiple of %d", inum, v.ip.Size, ds)
		c.mu.Unlock()
		return nil
	}

	names := make(map[string]bool)
	var entries []layout.Dirent
	err = v.scan(0, func(slot uint64, de layout.Dirent) bool {
		if de.Ino != common.NULLINUM {
			entries = append(entries, de)
		}
		return true
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var dot, dotdot bool
	for _, de := range entries {
		if names[de.Name] {
			c.problem("directory %d has %q twice", inum, de.Name)
			continue
		}
		names[de.Name] = true
		switch de.Name {
		case ".":
			dot = true
			if de.Ino != inum {
				c.problem("directory %d: . is %d", inum, de.Ino)
			}
		case "..":
			dotdot = true
			if de.Ino != parent {
				c.problem("directory %d: .. is %d, expected %d", inum, de.Ino, parent)
			}
		default:
			c.refs[de.Ino]++
			if de.Ino.Bnum() >= c.fs.alloc.NumBlocks() || !c.fs.alloc.IsUsed(de.Ino.Bnum()) {
				c.problem("directory %d: %q names free block %d", inum, de.Name, de.Ino)
				continue
			}
			*children = append(*children, de)
		}
	}
	if !dot || !dotdot {
		c.problem("directory %d lacks . or ..", inum)
	}
	return nil
}

// finish compares link counts once the walk is done. Every entry found by
// inspect was visited, so each child's type is known here.
func (c *checker) finish() {
	for inum, t := range c.types {
		if t == layout.TypeDir && inum != common.ROOTINUM {
			// the directory's .. counts toward its parent
			c.subdirs[c.parents[inum]]++
		}
	}
	for inum, t := range c.types {
		var want uint64
		if t == layout.TypeDir {
			want = 1 + c.subdirs[inum]
		} else {
			want = c.refs[inum]
		}
		if t == layout.TypeDir && inum != common.ROOTINUM && c.refs[inum] != 1 {
			c.problem("directory %d has %d names", inum, c.refs[inum])
		}
		if c.links[inum] != want {
			c.problem("inode %d has link count %d, expected %d", inum, c.links[inum], want)
		}
	}

	used := c.fs.alloc.NumBlocks()
	for bn := common.Bnum(0); bn < used; bn++ {
		if !c.fs.alloc.IsUsed(bn) {
			continue
		}
		if _, ok := c.report.Reachable[bn]; ok {
			continue
		}
		if bn == common.SUPERBLK || (bn >= common.BITMAPSTART && bn < common.BITMAPSTART+c.fs.alloc.NumBitmap()) {
			continue
		}
		c.report.Leaked = append(c.report.Leaked, bn)
	}
	sort.Slice(c.report.Leaked, func(i, j int) bool { return c.report.Leaked[i] < c.report.Leaked[j] })
	sort.Strings(c.report.Problems)
}
