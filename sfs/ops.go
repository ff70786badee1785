package sfs

import (
	"io"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/fserr"
	"github.com/mit-pdos/go-sfs/layout"
)

// VnodeOps is the set of operations a vnode supports. A vnode's table is
// chosen by its inode type when it is loaded: fileOps for plain files,
// dirOps for directories. Operations that do not apply to the type fail
// with NOT_A_DIRECTORY or IS_A_DIRECTORY.
type VnodeOps interface {
	Open(v *Vnode, flags int) error
	Close(v *Vnode) error
	Read(v *Vnode, p []byte, off uint64) (int, error)
	Write(v *Vnode, p []byte, off uint64) (int, error)
	GetDirEntry(v *Vnode, slot uint64) (layout.Dirent, uint64, error)
	Stat(v *Vnode) (Stat, error)
	GetType(v *Vnode) layout.IType
	TrySeek(v *Vnode, pos int64) error
	Fsync(v *Vnode) error
	Truncate(v *Vnode, length uint64) error
	NameFile(v *Vnode) (string, error)
	Create(v *Vnode, name string, excl bool) (*Vnode, error)
	Mkdir(v *Vnode, name string) error
	Link(v *Vnode, name string, target *Vnode) error
	Remove(v *Vnode, name string) error
	Rmdir(v *Vnode, name string) error
	Rename(v *Vnode, oldname string, newdir *Vnode, newname string) error
	Lookup(v *Vnode, path string) (*Vnode, error)
	LookParent(v *Vnode, path string) (*Vnode, string, error)
}

type Stat struct {
	Inum      common.Inum
	Type      layout.IType
	Size      uint64
	LinkCount uint64
	Blocks    uint64 // allocated blocks, including the indirect block
}

// sharedOps are the operations that behave the same for every type.
type sharedOps struct{}

func (sharedOps) Close(v *Vnode) error {
	return v.fsync()
}

func (sharedOps) Stat(v *Vnode) (Stat, error) {
	v.lock()
	defer v.unlock()
	bns, err := v.blocks()
	if err != nil {
		return Stat{}, err
	}
	return Stat{
		Inum:      v.inum,
		Type:      v.ip.Type,
		Size:      v.ip.Size,
		LinkCount: v.ip.LinkCount,
		Blocks:    uint64(len(bns)),
	}, nil
}

func (sharedOps) GetType(v *Vnode) layout.IType {
	// fixed at load
	return v.ip.Type
}

func (sharedOps) Fsync(v *Vnode) error {
	return v.fsync()
}

func (v *Vnode) fsync() error {
	v.lock()
	defer v.unlock()
	return v.sync()
}

type fileOps struct {
	sharedOps
}

func (fileOps) Open(v *Vnode, flags int) error {
	if flags&unix.O_APPEND != 0 {
		return fserr.Unimp("append mode")
	}
	return nil
}

func (fileOps) Read(v *Vnode, p []byte, off uint64) (int, error) {
	v.lock()
	defer v.unlock()
	return v.readAt(p, off)
}

func (fileOps) Write(v *Vnode, p []byte, off uint64) (int, error) {
	v.lock()
	defer v.unlock()
	return v.writeAt(p, off)
}

func (fileOps) TrySeek(v *Vnode, pos int64) error {
	if pos < 0 {
		return fserr.Invalid("negative seek position %d", pos)
	}
	if uint64(pos) > v.fs.geom.MaxFileSize() {
		return fserr.New(fserr.CodeFileTooLarge, "seek to %d past maximum file size", pos)
	}
	return nil
}

func (fileOps) Truncate(v *Vnode, length uint64) error {
	v.lock()
	defer v.unlock()
	return v.truncate(length)
}

func (fileOps) GetDirEntry(v *Vnode, slot uint64) (layout.Dirent, uint64, error) {
	return layout.Dirent{}, 0, fserr.NotDir()
}

func (fileOps) NameFile(v *Vnode) (string, error) { return "", fserr.NotDir() }

func (fileOps) Create(v *Vnode, name string, excl bool) (*Vnode, error) {
	return nil, fserr.NotDir()
}

func (fileOps) Mkdir(v *Vnode, name string) error { return fserr.NotDir() }

func (fileOps) Link(v *Vnode, name string, target *Vnode) error { return fserr.NotDir() }

func (fileOps) Remove(v *Vnode, name string) error { return fserr.NotDir() }

func (fileOps) Rmdir(v *Vnode, name string) error { return fserr.NotDir() }

func (fileOps) Rename(v *Vnode, oldname string, newdir *Vnode, newname string) error {
	return fserr.NotDir()
}

func (fileOps) Lookup(v *Vnode, path string) (*Vnode, error) { return nil, fserr.NotDir() }

func (fileOps) LookParent(v *Vnode, path string) (*Vnode, string, error) {
	return nil, "", fserr.NotDir()
}

type dirOps struct {
	sharedOps
}

func (dirOps) Open(v *Vnode, flags int) error {
	if flags&unix.O_ACCMODE != unix.O_RDONLY {
		return fserr.IsDir()
	}
	return nil
}

func (dirOps) Read(v *Vnode, p []byte, off uint64) (int, error) { return 0, fserr.IsDir() }

func (dirOps) Write(v *Vnode, p []byte, off uint64) (int, error) { return 0, fserr.IsDir() }

func (dirOps) TrySeek(v *Vnode, pos int64) error { return fserr.Unimp("seek on a directory") }

func (dirOps) Truncate(v *Vnode, length uint64) error { return fserr.IsDir() }

// GetDirEntry returns the first entry at or after slot and the slot to
// continue from; io.EOF once there are none left.
func (dirOps) GetDirEntry(v *Vnode, slot uint64) (layout.Dirent, uint64, error) {
	v.lock()
	defer v.unlock()
	var found layout.Dirent
	next := uint64(0)
	ok := false
	err := v.scan(slot, func(s uint64, de layout.Dirent) bool {
		if de.Ino == common.NULLINUM {
			return true
		}
		found, next, ok = de, s+1, true
		return false
	})
	if err != nil {
		return layout.Dirent{}, 0, err
	}
	if !ok {
		return layout.Dirent{}, 0, io.EOF
	}
	return found, next, nil
}

func (dirOps) NameFile(v *Vnode) (string, error) { return v.namefile() }

func (dirOps) Create(v *Vnode, name string, excl bool) (*Vnode, error) {
	return v.create(name, excl)
}

func (dirOps) Mkdir(v *Vnode, name string) error { return v.mkdir(name) }

func (dirOps) Link(v *Vnode, name string, target *Vnode) error { return v.link(name, target) }

func (dirOps) Remove(v *Vnode, name string) error { return v.remove(name) }

func (dirOps) Rmdir(v *Vnode, name string) error { return v.rmdir(name) }

func (dirOps) Rename(v *Vnode, oldname string, newdir *Vnode, newname string) error {
	return v.rename(oldname, newdir, newname)
}

func (dirOps) Lookup(v *Vnode, path string) (*Vnode, error) { return v.lookup(path) }

func (dirOps) LookParent(v *Vnode, path string) (*Vnode, string, error) {
	return v.lookparent(path)
}

// The methods below dispatch through the vnode's operation table.

func (v *Vnode) Open(flags int) error { return v.ops.Open(v, flags) }

func (v *Vnode) Close() error { return v.ops.Close(v) }

// Read reads from off; a count short of len(p) means end of file was reached.
func (v *Vnode) Read(p []byte, off uint64) (int, error) { return v.ops.Read(v, p, off) }

func (v *Vnode) Write(p []byte, off uint64) (int, error) { return v.ops.Write(v, p, off) }

func (v *Vnode) GetDirEntry(slot uint64) (layout.Dirent, uint64, error) {
	return v.ops.GetDirEntry(v, slot)
}

func (v *Vnode) Stat() (Stat, error) { return v.ops.Stat(v) }

func (v *Vnode) GetType() layout.IType { return v.ops.GetType(v) }

func (v *Vnode) TrySeek(pos int64) error { return v.ops.TrySeek(v, pos) }

func (v *Vnode) Fsync() error { return v.ops.Fsync(v) }

func (v *Vnode) Truncate(length uint64) error { return v.ops.Truncate(v, length) }

func (v *Vnode) NameFile() (string, error) { return v.ops.NameFile(v) }

func (v *Vnode) Create(name string, excl bool) (*Vnode, error) {
	return v.ops.Create(v, name, excl)
}

func (v *Vnode) Mkdir(name string) error { return v.ops.Mkdir(v, name) }

func (v *Vnode) Link(name string, target *Vnode) error { return v.ops.Link(v, name, target) }

func (v *Vnode) Remove(name string) error { return v.ops.Remove(v, name) }

func (v *Vnode) Rmdir(name string) error { return v.ops.Rmdir(v, name) }

func (v *Vnode) Rename(oldname string, newdir *Vnode, newname string) error {
	return v.ops.Rename(v, oldname, newdir, newname)
}

// Lookup resolves path, relative to v unless it starts with "/".
func (v *Vnode) Lookup(path string) (*Vnode, error) { return v.ops.Lookup(v, path) }

// LookParent resolves all but the last component of path and returns the
// directory holding it along with that last component.
func (v *Vnode) LookParent(path string) (*Vnode, string, error) {
	return v.ops.LookParent(v, path)
}

var (
	_ VnodeOps = fileOps{}
	_ VnodeOps = dirOps{}
)
