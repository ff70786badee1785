package sfs

import (
	"github.com/mit-pdos/go-sfs/fserr"
	"github.com/mit-pdos/go-sfs/layout"
	"github.com/mit-pdos/go-sfs/util"
)

// rename moves oldname in olddir to newname in newdir. The new name must not
// exist.
//
// The move is a sequence of steps: add the new entry, repoint a moved
// directory's .., then drop the old entry. If a step fails, the completed
// steps are undone in reverse order and the file system is back where it
// started; an undo step that fails is a fault.
//
// Renames take the file system's rename lock, which keeps directories from
// moving while the lock order between olddir and newdir is decided.
func (olddir *Vnode) rename(oldname string, newdir *Vnode, newname string) error {
	util.DPrintf(3, "rename %d %q -> %d %q\n", olddir.inum, oldname, newdir.inum, newname)
	if err := checkName(oldname); err != nil {
		return err
	}
	if err := checkName(newname); err != nil {
		return err
	}
	if newdir.GetType() != layout.TypeDir {
		return fserr.NotDir()
	}
	fs := olddir.fs
	fs.renameMu.Lock()
	defer fs.renameMu.Unlock()

	for {
		victim, err := olddir.peek(oldname)
		if err != nil {
			return err
		}
		retry, err := olddir.renameVictim(oldname, victim, newdir, newname)
		victim.Put()
		if !retry {
			return err
		}
	}
}

// peek returns the vnode oldname refers to without keeping dir locked.
func (dir *Vnode) peek(name string) (*Vnode, error) {
	dir.lock()
	v, _, err := dir.lookonce(name)
	dir.unlock()
	return v, err
}

// lockDirs locks olddir and newdir, ancestor first; unrelated directories
// are locked in inode order. It returns the matching unlock.
func (fs *FS) lockDirs(olddir, newdir *Vnode) (func(), error) {
	if olddir == newdir {
		olddir.lock()
		return olddir.unlock, nil
	}
	first, second := olddir, newdir
	oldAbove, err := fs.isAncestor(olddir, newdir)
	if err != nil {
		return nil, err
	}
	if !oldAbove {
		newAbove, err := fs.isAncestor(newdir, olddir)
		if err != nil {
			return nil, err
		}
		if newAbove || newdir.inum < olddir.inum {
			first, second = newdir, olddir
		}
	}
	first.lock()
	second.lock()
	return func() {
		second.unlock()
		first.unlock()
	}, nil
}

// renameVictim performs the rename once victim is known. It reports retry
// if oldname changed before the directories were locked.
func (olddir *Vnode) renameVictim(oldname string, victim *Vnode, newdir *Vnode, newname string) (bool, error) {
	fs := olddir.fs
	isDir := victim.GetType() == layout.TypeDir
	if isDir {
		if victim == newdir {
			return false, fserr.Invalid("cannot move %q into itself", oldname)
		}
		inside, err := fs.isAncestor(victim, newdir)
		if err != nil {
			return false, err
		}
		if inside {
			return false, fserr.Invalid("cannot move %q into its own subtree", oldname)
		}
	}

	unlock, err := fs.lockDirs(olddir, newdir)
	if err != nil {
		return false, err
	}
	defer unlock()

	ino, oldslot, _, err := olddir.findName(oldname)
	if err != nil {
		return false, err
	}
	if ino != victim.inum {
		return true, nil
	}
	if olddir == newdir && oldname == newname {
		return false, nil
	}
	if err := newdir.checkLive(); err != nil {
		return false, err
	}

	victim.lock()
	defer victim.unlock()

	var undo []func() error
	fail := func(err error) (bool, error) {
		for i := len(undo) - 1; i >= 0; i-- {
			if uerr := undo[i](); uerr != nil {
				fserr.Fault("rename rollback failed: %v (after %v)", uerr, err)
			}
		}
		util.DPrintf(1, "rename %q -> %q rolled back: %v\n", oldname, newname, err)
		return false, err
	}

	newslot, err := newdir.dirLink(newname, victim.inum)
	if err != nil {
		return false, err
	}
	victim.ip.LinkCount++
	victim.setDirty()
	undo = append(undo, func() error {
		victim.decLink()
		return newdir.dirUnlink(newslot)
	})

	if isDir && olddir != newdir {
		err = victim.setDotDot(newdir.inum)
		if err != nil {
			return fail(err)
		}
		newdir.ip.LinkCount++
		newdir.setDirty()
		olddir.decLink()
		undo = append(undo, func() error {
			olddir.ip.LinkCount++
			olddir.setDirty()
			newdir.decLink()
			return victim.setDotDot(olddir.inum)
		})
	}

	err = olddir.dirUnlink(uint64(oldslot))
	if err != nil {
		return fail(err)
	}
	victim.decLink()
	return false, nil
}
