package sfs

import (
	"strings"

	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/fserr"
	"github.com/mit-pdos/go-sfs/layout"
)

// Directory operations below require the directory's vnode lock.

func (v *Vnode) dirNEntries() uint64 {
	ds := v.fs.geom.DirentSize()
	if v.ip.Size%ds != 0 {
		fserr.Fault("directory %d has size %d, not a multiple of %d", v.inum, v.ip.Size, ds)
	}
	return v.ip.Size / ds
}

func (v *Vnode) readDirent(slot uint64) (layout.Dirent, error) {
	g := v.fs.geom
	b := make([]byte, g.DirentSize())
	n, err := v.readAt(b, slot*g.DirentSize())
	if err != nil {
		return layout.Dirent{}, err
	}
	if uint64(n) != g.DirentSize() {
		fserr.Fault("short read of slot %d in directory %d", slot, v.inum)
	}
	return g.DecodeDirent(b), nil
}

func (v *Vnode) writeDirent(slot uint64, de layout.Dirent) error {
	g := v.fs.geom
	_, err := v.writeAt(g.EncodeDirent(de), slot*g.DirentSize())
	return err
}

// scan calls f on successive slots starting at slot, reading the directory
// a block's worth of entries at a time, until f returns false.
func (v *Vnode) scan(slot uint64, f func(slot uint64, de layout.Dirent) bool) error {
	g := v.fs.geom
	ds := g.DirentSize()
	nent := v.dirNEntries()
	per := disk.BlockSize / ds
	if per == 0 {
		per = 1
	}
	b := make([]byte, per*ds)
	for slot < nent {
		k := per
		if nent-slot < k {
			k = nent - slot
		}
		_, err := v.readAt(b[:k*ds], slot*ds)
		if err != nil {
			return err
		}
		for i := uint64(0); i < k; i++ {
			if !f(slot+i, g.DecodeDirent(b[i*ds:(i+1)*ds])) {
				return nil
			}
		}
		slot += k
	}
	return nil
}

const noSlot = -1

// findName looks name up in the directory, returning its inode number and
// slot. It also returns the first empty slot seen, or noSlot, which is set
// even when the name is absent.
func (v *Vnode) findName(name string) (common.Inum, int64, int64, error) {
	found := int64(noSlot)
	empty := int64(noSlot)
	var ino common.Inum
	err := v.scan(0, func(slot uint64, de layout.Dirent) bool {
		if de.Ino == common.NULLINUM {
			if empty == noSlot {
				empty = int64(slot)
			}
			return true
		}
		if de.Name == name {
			found = int64(slot)
			ino = de.Ino
			return false
		}
		return true
	})
	if err != nil {
		return common.NULLINUM, noSlot, noSlot, err
	}
	if found == noSlot {
		return common.NULLINUM, noSlot, empty, fserr.NotFound(name)
	}
	return ino, found, empty, nil
}

// findIno finds the entry (other than . and ..) naming inode ino.
func (v *Vnode) findIno(ino common.Inum) (string, error) {
	var name string
	found := false
	err := v.scan(0, func(slot uint64, de layout.Dirent) bool {
		if de.Ino == ino && de.Name != "." && de.Name != ".." {
			name = de.Name
			found = true
			return false
		}
		return true
	})
	if err != nil {
		return "", err
	}
	if !found {
		return "", fserr.New(fserr.CodeNotFound, "inode %d not in directory %d", ino, v.inum)
	}
	return name, nil
}

// isEmpty reports whether only . and .. remain.
func (v *Vnode) isEmpty() (bool, error) {
	empty := true
	err := v.scan(0, func(slot uint64, de layout.Dirent) bool {
		if de.Ino != common.NULLINUM && de.Name != "." && de.Name != ".." {
			empty = false
			return false
		}
		return true
	})
	return empty, err
}

func (v *Vnode) checkNameLen(name string) error {
	if uint64(len(name)) > v.fs.geom.MaxName() {
		return fserr.NameTooLong(name, v.fs.geom.MaxName())
	}
	return nil
}

// dirLink adds an entry for name, reusing the first empty slot or appending.
func (v *Vnode) dirLink(name string, ino common.Inum) (uint64, error) {
	if err := v.checkNameLen(name); err != nil {
		return 0, err
	}
	_, _, empty, err := v.findName(name)
	if err == nil {
		return 0, fserr.Exists(name)
	}
	if !fserr.Is(err, fserr.CodeNotFound) {
		return 0, err
	}
	slot := uint64(empty)
	if empty == noSlot {
		slot = v.dirNEntries()
	}
	size := v.ip.Size
	err = v.writeDirent(slot, layout.Dirent{Ino: ino, Name: name})
	if err != nil {
		// a torn append must not leave a partial record
		if v.ip.Size > size {
			v.ip.Size = size
		}
		return 0, err
	}
	return slot, nil
}

// dirUnlink empties a slot. The directory is not compacted.
func (v *Vnode) dirUnlink(slot uint64) error {
	return v.writeDirent(slot, layout.Dirent{})
}

// setDotDot points the directory's .. entry at parent.
func (v *Vnode) setDotDot(parent common.Inum) error {
	_, slot, _, err := v.findName("..")
	if err != nil {
		if fserr.Is(err, fserr.CodeNotFound) {
			fserr.Fault("directory %d has no .. entry", v.inum)
		}
		return err
	}
	return v.writeDirent(uint64(slot), layout.Dirent{Ino: parent, Name: ".."})
}

// checkName rejects names that can never be directory entries.
func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return fserr.Invalid("bad name %q", name)
	}
	if name == "." || name == ".." {
		return fserr.Invalid("%q is reserved", name)
	}
	return nil
}
