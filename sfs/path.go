package sfs

import (
	"strings"

	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/fserr"
	"github.com/mit-pdos/go-sfs/layout"
)

// splitPath breaks path into components. An absolute path starts from the
// root instead of start.
func (fs *FS) splitPath(start *Vnode, path string) (*Vnode, []string) {
	if strings.HasPrefix(path, "/") {
		start = fs.root
	}
	var names []string
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			names = append(names, c)
		}
	}
	return start, names
}

// lookonce returns the vnode that name refers to in dir, with a reference.
// Caller holds dir's lock.
func (dir *Vnode) lookonce(name string) (*Vnode, uint64, error) {
	ino, slot, _, err := dir.findName(name)
	if err != nil {
		return nil, 0, err
	}
	v, err := dir.fs.get(ino, layout.TypeInvalid)
	if err != nil {
		return nil, 0, err
	}
	if v != dir && name != ".." {
		// dir is locked, so the entry cannot go away under us
		v.lock()
		lc := v.ip.LinkCount
		v.unlock()
		if lc == 0 {
			fserr.Fault("entry %q in directory %d names unlinked inode %d", name, dir.inum, ino)
		}
	}
	return v, uint64(slot), nil
}

// walk descends from start through names, one directory lock at a time,
// and returns the final vnode with a reference. References to intermediate
// directories are released along the way.
func walk(start *Vnode, names []string) (*Vnode, error) {
	cur := start.Ref()
	for _, name := range names {
		cur.lock()
		if !cur.isDir() {
			cur.unlock()
			cur.Put()
			return nil, fserr.NotDir()
		}
		next, _, err := cur.lookonce(name)
		cur.unlock()
		cur.Put()
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// lookup resolves path relative to dir.
func (dir *Vnode) lookup(path string) (*Vnode, error) {
	start, names := dir.fs.splitPath(dir, path)
	return walk(start, names)
}

// lookparent resolves all but the last component of path, returning the
// parent directory with a reference and the last component.
func (dir *Vnode) lookparent(path string) (*Vnode, string, error) {
	start, names := dir.fs.splitPath(dir, path)
	if len(names) == 0 {
		return nil, "", fserr.Invalid("path %q has no last component", path)
	}
	parent, err := walk(start, names[:len(names)-1])
	if err != nil {
		return nil, "", err
	}
	if parent.GetType() != layout.TypeDir {
		parent.Put()
		return nil, "", fserr.NotDir()
	}
	return parent, names[len(names)-1], nil
}

// parentOf returns the directory's .. with a reference.
func (dir *Vnode) parentOf() (*Vnode, error) {
	dir.lock()
	p, _, err := dir.lookonce("..")
	dir.unlock()
	return p, err
}

// isAncestor reports whether a is b or lies on the path from b to the root.
// It holds no locks between steps, so the answer is stable only while
// directories cannot move (the rename lock is held).
func (fs *FS) isAncestor(a *Vnode, b *Vnode) (bool, error) {
	cur := b.Ref()
	for {
		if cur.inum == a.inum {
			cur.Put()
			return true, nil
		}
		if cur.inum == common.ROOTINUM {
			cur.Put()
			return false, nil
		}
		p, err := cur.parentOf()
		cur.Put()
		if err != nil {
			return false, err
		}
		cur = p
	}
}

// namefile builds the absolute path of a directory by walking .. to the
// root and searching each parent for the child's entry.
func (dir *Vnode) namefile() (string, error) {
	var names []string
	cur := dir.Ref()
	for cur.inum != common.ROOTINUM {
		p, err := cur.parentOf()
		if err != nil {
			cur.Put()
			return "", err
		}
		p.lock()
		name, err := p.findIno(cur.inum)
		p.unlock()
		cur.Put()
		cur = p
		if err != nil {
			cur.Put()
			return "", err
		}
		names = append(names, name)
	}
	cur.Put()
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return "/" + strings.Join(names, "/"), nil
}
