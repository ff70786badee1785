package sfs

import (
	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/fserr"
	"github.com/mit-pdos/go-sfs/layout"
	"github.com/mit-pdos/go-sfs/util"
)

// checkLive fails if dir has been removed while still referenced. Caller
// holds dir's lock.
func (dir *Vnode) checkLive() error {
	if dir.ip.LinkCount == 0 {
		return fserr.New(fserr.CodeNotFound, "directory %d has been removed", dir.inum)
	}
	return nil
}

// create returns the file name in dir, making it if it does not exist.
func (dir *Vnode) create(name string, excl bool) (*Vnode, error) {
	util.DPrintf(3, "create %d %q excl %v\n", dir.inum, name, excl)
	if err := checkName(name); err != nil {
		return nil, err
	}
	dir.lock()
	defer dir.unlock()
	if err := dir.checkLive(); err != nil {
		return nil, err
	}

	ino, _, _, err := dir.findName(name)
	if err == nil {
		if excl {
			return nil, fserr.Exists(name)
		}
		return dir.fs.get(ino, layout.TypeInvalid)
	}
	if !fserr.Is(err, fserr.CodeNotFound) {
		return nil, err
	}
	if err := dir.checkNameLen(name); err != nil {
		return nil, err
	}

	v, err := dir.fs.makeObj(layout.TypeFile)
	if err != nil {
		return nil, err
	}
	_, err = dir.dirLink(name, v.inum)
	if err != nil {
		// link count 0: releasing v frees its block
		v.Put()
		return nil, err
	}
	v.lock()
	v.ip.LinkCount++
	v.setDirty()
	v.unlock()
	return v, nil
}

// link adds name in dir for the file target.
func (dir *Vnode) link(name string, target *Vnode) error {
	util.DPrintf(3, "link %d %q -> %d\n", dir.inum, name, target.inum)
	if err := checkName(name); err != nil {
		return err
	}
	if target.GetType() == layout.TypeDir {
		return fserr.IsDir()
	}
	dir.lock()
	defer dir.unlock()
	if err := dir.checkLive(); err != nil {
		return err
	}
	_, err := dir.dirLink(name, target.inum)
	if err != nil {
		return err
	}
	// dir stays locked so a concurrent remove of the new name cannot see the
	// entry before its link is counted
	target.lock()
	target.ip.LinkCount++
	target.setDirty()
	target.unlock()
	return nil
}

// remove deletes the file name from dir.
func (dir *Vnode) remove(name string) error {
	util.DPrintf(3, "remove %d %q\n", dir.inum, name)
	if err := checkName(name); err != nil {
		return err
	}
	dir.lock()
	victim, slot, err := dir.lookonce(name)
	if err != nil {
		dir.unlock()
		return err
	}
	if victim.GetType() == layout.TypeDir {
		dir.unlock()
		victim.Put()
		return fserr.IsDir()
	}
	err = dir.dirUnlink(slot)
	if err == nil {
		victim.lock()
		victim.decLink()
		victim.unlock()
	}
	dir.unlock()
	victim.Put()
	return err
}

// decLink drops one link. Caller holds the vnode lock.
func (v *Vnode) decLink() {
	if v.ip.LinkCount == 0 {
		fserr.Fault("link count of inode %d below zero", v.inum)
	}
	v.ip.LinkCount--
	v.setDirty()
}

// mkdir makes the directory name in dir, with . and .. entries.
func (dir *Vnode) mkdir(name string) error {
	util.DPrintf(3, "mkdir %d %q\n", dir.inum, name)
	if err := checkName(name); err != nil {
		return err
	}
	dir.lock()
	defer dir.unlock()
	if err := dir.checkLive(); err != nil {
		return err
	}
	if err := dir.checkNameLen(name); err != nil {
		return err
	}
	_, _, _, err := dir.findName(name)
	if err == nil {
		return fserr.Exists(name)
	}
	if !fserr.Is(err, fserr.CodeNotFound) {
		return err
	}

	nd, err := dir.fs.makeObj(layout.TypeDir)
	if err != nil {
		return err
	}
	nd.lock()
	err = nd.initDir(dir.inum)
	if err == nil {
		_, err = dir.dirLink(name, nd.inum)
	}
	if err != nil {
		nd.unlock()
		nd.Put()
		return err
	}
	nd.ip.LinkCount++
	nd.setDirty()
	nd.unlock()
	dir.ip.LinkCount++
	dir.setDirty()
	nd.Put()
	return nil
}

// initDir writes . and .. into a new directory. Caller holds the lock.
func (v *Vnode) initDir(parent common.Inum) error {
	_, err := v.dirLink(".", v.inum)
	if err != nil {
		return err
	}
	_, err = v.dirLink("..", parent)
	return err
}

// rmdir removes the empty directory name from dir.
func (dir *Vnode) rmdir(name string) error {
	util.DPrintf(3, "rmdir %d %q\n", dir.inum, name)
	if err := checkName(name); err != nil {
		return err
	}
	dir.lock()
	victim, slot, err := dir.lookonce(name)
	if err != nil {
		dir.unlock()
		return err
	}
	err = dir.rmdirLocked(victim, name, slot)
	dir.unlock()
	victim.Put()
	return err
}

func (dir *Vnode) rmdirLocked(victim *Vnode, name string, slot uint64) error {
	if victim.GetType() != layout.TypeDir {
		return fserr.NotDir()
	}
	victim.lock()
	defer victim.unlock()
	empty, err := victim.isEmpty()
	if err != nil {
		return err
	}
	if !empty {
		return fserr.NotEmpty(name)
	}
	err = dir.dirUnlink(slot)
	if err != nil {
		return err
	}
	victim.decLink()
	dir.decLink()
	return nil
}
