// Package sfs is a simple file system: one inode per block, block-mapped
// files with direct pointers and a single indirect block, fixed-size
// directory entries, and a reference-counted cache of in-memory vnodes.
//
// Lock order: rename lock, then vnode locks (a directory before anything it
// contains, an ancestor before its descendants, unrelated directories by
// inode number), then the vnode table lock, then the allocator's bitmap lock.
// No disk I/O happens under the table or bitmap lock.
package sfs

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mit-pdos/go-sfs/alloc"
	"github.com/mit-pdos/go-sfs/buf"
	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/fserr"
	"github.com/mit-pdos/go-sfs/layout"
	"github.com/mit-pdos/go-sfs/lockmap"
	"github.com/mit-pdos/go-sfs/util"
)

type FS struct {
	d        disk.Disk
	sb       *layout.Super
	geom     layout.Geometry
	alloc    *alloc.Alloc
	locks    *lockmap.LockMap
	tbl      *vtable
	renameMu *sync.Mutex
	root     *Vnode
}

// Mkfs writes an empty file system covering all of d.
func Mkfs(d disk.Disk, geom layout.Geometry, volume string) error {
	if err := geom.Validate(); err != nil {
		return err
	}
	if uint64(len(volume)) > layout.VOLNAMELEN {
		return fserr.Invalid("volume name %q longer than %d bytes", volume, layout.VOLNAMELEN)
	}
	nblocks, err := d.Size()
	if err != nil {
		return fserr.IO(err, 0, "disk size")
	}
	nbitmap := alloc.NBitmap(nblocks)
	if nblocks < common.BITMAPSTART+nbitmap+2 {
		return fserr.Invalid("disk of %d blocks too small", nblocks)
	}

	a := alloc.MkAlloc(d, common.BITMAPSTART, nblocks)
	a.MarkUsed(common.SUPERBLK)
	a.MarkUsed(common.ROOTBLK)

	// root directory: . and .. are both the root
	data, err := a.Alloc()
	if err != nil {
		return err
	}
	db := buf.MkBuf(data)
	ds := geom.DirentSize()
	copy(db.Data[0:], geom.EncodeDirent(layout.Dirent{Ino: common.ROOTINUM, Name: "."}))
	copy(db.Data[ds:], geom.EncodeDirent(layout.Dirent{Ino: common.ROOTINUM, Name: ".."}))
	if err := db.Write(d); err != nil {
		return err
	}
	root := layout.MkInode(geom)
	root.Type = layout.TypeDir
	root.Size = 2 * ds
	root.LinkCount = 1
	root.Direct[0] = data
	if err := d.Write(common.ROOTBLK, root.Encode()); err != nil {
		return fserr.IO(err, common.ROOTBLK, "write root inode")
	}

	sb := &layout.Super{
		NBlocks: nblocks,
		NBitmap: nbitmap,
		Geom:    geom,
		UUID:    uuid.New(),
		Volume:  volume,
	}
	if err := a.Flush(); err != nil {
		return err
	}
	if err := d.Write(common.SUPERBLK, sb.Encode()); err != nil {
		return fserr.IO(err, common.SUPERBLK, "write superblock")
	}
	if err := d.Barrier(); err != nil {
		return fserr.IO(err, 0, "barrier")
	}
	util.DPrintf(1, "mkfs: %d blocks, %d bitmap, ndirect %d, namelen %d, uuid %v\n",
		nblocks, nbitmap, geom.NDirect, geom.NameLen, sb.UUID)
	return nil
}

// Mount reads the superblock and bitmap of a file system made by Mkfs.
func Mount(d disk.Disk) (*FS, error) {
	blk, err := d.Read(common.SUPERBLK)
	if err != nil {
		return nil, fserr.IO(err, common.SUPERBLK, "read superblock")
	}
	sb, err := layout.DecodeSuper(blk)
	if err != nil {
		return nil, err
	}
	size, err := d.Size()
	if err != nil {
		return nil, fserr.IO(err, 0, "disk size")
	}
	if sb.NBlocks > size {
		return nil, fserr.Invalid("superblock claims %d blocks, disk has %d", sb.NBlocks, size)
	}
	if sb.NBitmap != alloc.NBitmap(sb.NBlocks) {
		return nil, fserr.Invalid("bad bitmap size %d for %d blocks", sb.NBitmap, sb.NBlocks)
	}
	a, err := alloc.Load(d, common.BITMAPSTART, sb.NBlocks)
	if err != nil {
		return nil, err
	}
	fs := &FS{
		d:        d,
		sb:       sb,
		geom:     sb.Geom,
		alloc:    a,
		locks:    lockmap.MkLockMap(),
		tbl:      mkVtable(),
		renameMu: new(sync.Mutex),
	}
	root, err := fs.get(common.ROOTINUM, layout.TypeInvalid)
	if err != nil {
		return nil, err
	}
	if root.GetType() != layout.TypeDir {
		t := root.GetType()
		root.Put()
		return nil, fserr.Invalid("root inode is a %v", t)
	}
	fs.root = root
	util.DPrintf(1, "mount %v: %d blocks, %d free\n", sb.UUID, sb.NBlocks, a.NumFree())
	return fs, nil
}

// Root returns the root directory with a new reference.
func (fs *FS) Root() *Vnode {
	return fs.root.Ref()
}

func (fs *FS) Super() layout.Super {
	return *fs.sb
}

func (fs *FS) Geometry() layout.Geometry {
	return fs.geom
}

func (fs *FS) NumFree() uint64 {
	return fs.alloc.NumFree()
}

// IsUsed reports whether block bn is marked used in the bitmap.
func (fs *FS) IsUsed(bn common.Bnum) bool {
	return fs.alloc.IsUsed(bn)
}

// Sync writes every modified inode, then the bitmap, and waits for the disk.
// Unreferenced vnodes are reclaimed along the way.
func (fs *FS) Sync() error {
	var firstErr error
	for _, v := range fs.resident() {
		err := v.fsync()
		if err != nil && firstErr == nil {
			firstErr = err
		}
		v.Put()
	}
	if firstErr != nil {
		return firstErr
	}
	if err := fs.alloc.Flush(); err != nil {
		return err
	}
	if err := fs.d.Barrier(); err != nil {
		return fserr.IO(err, 0, "barrier")
	}
	return nil
}

// Unmount syncs and drops the root. It fails with BUSY while any vnode other
// than the root is referenced, or the root is referenced by a caller.
func (fs *FS) Unmount() error {
	t := fs.tbl
	t.mu.Lock()
	for _, v := range t.vnodes {
		busy := v.refcount > 0
		if v == fs.root {
			busy = v.refcount > 1
		}
		if busy || v.state != vReady {
			t.mu.Unlock()
			return fserr.Busy()
		}
	}
	t.mu.Unlock()

	if err := fs.Sync(); err != nil {
		return err
	}
	fs.root.Put()
	fs.root = nil
	t.mu.Lock()
	n := len(t.vnodes)
	t.mu.Unlock()
	if n != 0 {
		// a reclaim failed and left its vnode behind
		return fserr.New(fserr.CodeDeviceIO, "%d vnodes could not be written back", n)
	}
	if err := fs.alloc.Flush(); err != nil {
		return err
	}
	if err := fs.d.Barrier(); err != nil {
		return fserr.IO(err, 0, "barrier")
	}
	util.DPrintf(1, "unmount %v\n", fs.sb.UUID)
	return nil
}
