package sfs

import (
	"sync"

	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/fserr"
	"github.com/mit-pdos/go-sfs/layout"
	"github.com/mit-pdos/go-sfs/util"
)

type vstate uint8

const (
	vLoading vstate = iota
	vReady
	vReclaiming
)

// A Vnode is the in-memory handle for one inode. All holders share the same
// Vnode; each holds a reference obtained from the table and gives it back
// with Put.
//
// The inode copy and the dirty flag are protected by the vnode lock (the
// file system's lockmap entry for inum). refcount and state are protected by
// the table lock.
type Vnode struct {
	fs   *FS
	inum common.Inum
	ops  VnodeOps

	ip    *layout.Inode
	dirty bool

	refcount uint64
	state    vstate
}

// vtable deduplicates vnodes: at most one Vnode per inode is resident.
//
// A slot in the loading or reclaiming state is a placeholder for a vnode
// whose disk I/O runs outside the table lock; anyone who finds one waits on
// cond until it settles.
type vtable struct {
	mu     *sync.Mutex
	cond   *sync.Cond
	vnodes map[common.Inum]*Vnode
}

func mkVtable() *vtable {
	mu := new(sync.Mutex)
	return &vtable{
		mu:     mu,
		cond:   sync.NewCond(mu),
		vnodes: make(map[common.Inum]*Vnode),
	}
}

func (v *Vnode) Inum() common.Inum {
	return v.inum
}

func (v *Vnode) lock() {
	v.fs.locks.Acquire(v.inum)
}

func (v *Vnode) unlock() {
	v.fs.locks.Release(v.inum)
}

func (v *Vnode) assertLocked() {
	if !v.fs.locks.Held(v.inum) {
		fserr.Fault("vnode %d not locked", v.inum)
	}
}

func (v *Vnode) isDir() bool {
	return v.ip.Type == layout.TypeDir
}

func (v *Vnode) setDirty() {
	v.dirty = true
}

// get returns the vnode for inum with a new reference, reading the inode if
// it is not resident. forceType stamps the type of a freshly allocated inode;
// it may only be used on an inode that cannot be resident yet.
func (fs *FS) get(inum common.Inum, forceType layout.IType) (*Vnode, error) {
	t := fs.tbl
	t.mu.Lock()
	for {
		v, ok := t.vnodes[inum]
		if !ok {
			break
		}
		if v.state == vReady {
			if forceType != layout.TypeInvalid {
				t.mu.Unlock()
				fserr.Fault("forcing type of resident vnode %d", inum)
			}
			v.refcount++
			t.mu.Unlock()
			return v, nil
		}
		t.cond.Wait()
	}
	v := &Vnode{fs: fs, inum: inum, refcount: 1, state: vLoading}
	t.vnodes[inum] = v
	t.mu.Unlock()

	loaded := false
	defer func() {
		// a failed or faulting load leaves no placeholder behind
		if !loaded {
			t.mu.Lock()
			delete(t.vnodes, inum)
			t.cond.Broadcast()
			t.mu.Unlock()
		}
	}()
	if err := v.load(forceType); err != nil {
		return nil, err
	}
	loaded = true

	t.mu.Lock()
	v.state = vReady
	t.cond.Broadcast()
	t.mu.Unlock()
	util.DPrintf(5, "load vnode %d type %v\n", inum, v.ip.Type)
	return v, nil
}

// load reads the inode. Only the loading thread can see v.
func (v *Vnode) load(forceType layout.IType) error {
	fs := v.fs
	if !fs.alloc.IsUsed(v.inum.Bnum()) {
		fserr.Fault("inode %d is in a free block", v.inum)
	}
	blk, err := fs.d.Read(v.inum.Bnum())
	if err != nil {
		return fserr.IO(err, v.inum.Bnum(), "read inode %d", v.inum)
	}
	v.ip = layout.DecodeInode(fs.geom, blk)
	if v.ip.Type == layout.TypeInvalid {
		if forceType == layout.TypeInvalid {
			fserr.Fault("inode %d has invalid type", v.inum)
		}
		v.ip.Type = forceType
		v.dirty = true
	}
	switch v.ip.Type {
	case layout.TypeFile:
		v.ops = fileOps{}
	case layout.TypeDir:
		v.ops = dirOps{}
	default:
		fserr.Fault("inode %d has unknown type %d", v.inum, v.ip.Type)
	}
	return nil
}

// makeObj allocates an inode block and returns a vnode of type t for it, with
// link count 0. Releasing it without linking it anywhere frees the block.
func (fs *FS) makeObj(t layout.IType) (*Vnode, error) {
	bn, err := fs.alloc.Alloc()
	if err != nil {
		return nil, err
	}
	v, err := fs.get(common.Inum(bn), t)
	if err != nil {
		fs.alloc.Free(bn)
		return nil, err
	}
	return v, nil
}

// Ref takes another reference to v.
func (v *Vnode) Ref() *Vnode {
	t := v.fs.tbl
	t.mu.Lock()
	if v.refcount == 0 || v.state != vReady {
		t.mu.Unlock()
		fserr.Fault("ref of unreferenced vnode %d", v.inum)
	}
	v.refcount++
	t.mu.Unlock()
	return v
}

// Put gives back a reference. Dropping the last one reclaims the vnode,
// which writes the inode back or, if nothing links to it any more, frees its
// storage. The caller must not hold v's lock.
func (v *Vnode) Put() {
	t := v.fs.tbl
	t.mu.Lock()
	if v.refcount == 0 {
		t.mu.Unlock()
		fserr.Fault("put of unreferenced vnode %d", v.inum)
	}
	if v.refcount > 1 {
		v.refcount--
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	err := v.fs.reclaim(v)
	if err != nil && !fserr.Is(err, fserr.CodeBusy) {
		util.DPrintf(1, "reclaim vnode %d: %v\n", v.inum, err)
	}
}

// reclaim tears down v if the caller still holds the only reference. If
// another thread took a reference in the meantime it drops the caller's
// reference and reports BUSY. If the disk I/O fails, v stays resident with no
// references so a later Sync or Unmount can retry.
func (fs *FS) reclaim(v *Vnode) error {
	t := fs.tbl
	v.lock()
	t.mu.Lock()
	if v.refcount != 1 {
		v.refcount--
		t.mu.Unlock()
		v.unlock()
		return fserr.Busy()
	}
	v.state = vReclaiming
	t.mu.Unlock()

	var err error
	if v.ip.LinkCount == 0 {
		util.DPrintf(5, "reclaim: free inode %d\n", v.inum)
		err = v.truncate(0)
		if err == nil {
			fs.alloc.Free(v.inum.Bnum())
			v.dirty = false
		}
	} else {
		util.DPrintf(5, "reclaim: sync inode %d\n", v.inum)
		err = v.sync()
	}

	t.mu.Lock()
	if err != nil {
		v.refcount = 0
		v.state = vReady
	} else {
		v.refcount = 0
		delete(t.vnodes, v.inum)
	}
	t.cond.Broadcast()
	t.mu.Unlock()
	v.unlock()
	return err
}

// sync writes the inode back if it changed. Caller holds the vnode lock.
func (v *Vnode) sync() error {
	v.assertLocked()
	if !v.dirty {
		return nil
	}
	bn := v.inum.Bnum()
	err := v.fs.d.Write(bn, v.ip.Encode())
	if err != nil {
		return fserr.IO(err, bn, "write inode %d", v.inum)
	}
	v.dirty = false
	return nil
}

// resident returns a referenced snapshot of the table, skipping placeholders.
func (fs *FS) resident() []*Vnode {
	t := fs.tbl
	t.mu.Lock()
	defer t.mu.Unlock()
	var vs []*Vnode
	for _, v := range t.vnodes {
		if v.state == vReady {
			v.refcount++
			vs = append(vs, v)
		}
	}
	return vs
}
