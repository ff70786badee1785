package alloc

import (
	"sync"

	"github.com/mit-pdos/go-sfs/addr"
	"github.com/mit-pdos/go-sfs/buf"
	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/fserr"
	"github.com/mit-pdos/go-sfs/util"
)

// Alloc tracks free disk blocks with a bitmap, one bit per block, kept in
// memory and written back by Flush. Block 0 is never handed out.
//
// The lock protects the bitmap and is held only while searching or flipping
// bits; it is the last lock in the file system's lock order.
type Alloc struct {
	d       disk.Disk
	lock    *sync.Mutex
	start   common.Bnum // first bitmap block
	nblocks uint64
	bitmap  []*buf.Buf
	next    uint64 // first number to try
	nfree   uint64
}

// NBitmap is the number of bitmap blocks needed to track nblocks blocks.
func NBitmap(nblocks uint64) uint64 {
	return util.RoundUp(nblocks, common.NBITBLOCK)
}

func mkAlloc(d disk.Disk, start common.Bnum, nblocks uint64, bitmap []*buf.Buf) *Alloc {
	return &Alloc{
		d:       d,
		lock:    new(sync.Mutex),
		start:   start,
		nblocks: nblocks,
		bitmap:  bitmap,
		next:    0,
	}
}

// MkAlloc returns an allocator for a fresh disk of nblocks blocks with a
// bitmap at start. Block 0 and the bitmap blocks themselves are marked used.
func MkAlloc(d disk.Disk, start common.Bnum, nblocks uint64) *Alloc {
	n := NBitmap(nblocks)
	bitmap := make([]*buf.Buf, n)
	for i := range bitmap {
		bitmap[i] = buf.MkBuf(start + uint64(i))
		bitmap[i].SetDirty()
	}
	a := mkAlloc(d, start, nblocks, bitmap)
	a.nfree = nblocks
	a.MarkUsed(0)
	for i := uint64(0); i < n; i++ {
		a.MarkUsed(start + i)
	}
	return a
}

// Load reads an existing bitmap from disk.
func Load(d disk.Disk, start common.Bnum, nblocks uint64) (*Alloc, error) {
	n := NBitmap(nblocks)
	bitmap := make([]*buf.Buf, n)
	for i := range bitmap {
		b, err := buf.Load(d, start+uint64(i))
		if err != nil {
			return nil, err
		}
		bitmap[i] = b
	}
	a := mkAlloc(d, start, nblocks, bitmap)
	for bn := uint64(0); bn < nblocks; bn++ {
		if !a.getBit(bn) {
			a.nfree++
		}
	}
	return a, nil
}

func (a *Alloc) bitBuf(bn common.Bnum) (*buf.Buf, addr.Addr) {
	if bn >= a.nblocks {
		fserr.Fault("block %d out of range (%d blocks)", bn, a.nblocks)
	}
	ad := addr.MkBitAddr(a.start, bn)
	return a.bitmap[ad.Blkno-a.start], ad
}

func (a *Alloc) getBit(bn common.Bnum) bool {
	b, ad := a.bitBuf(bn)
	return b.GetBit(ad)
}

func (a *Alloc) setBit(bn common.Bnum, v bool) {
	b, ad := a.bitBuf(bn)
	b.SetBit(ad, v)
}

func (a *Alloc) incNext() uint64 {
	a.next = a.next + 1
	if a.next >= a.nblocks {
		a.next = 0
	}
	return a.next
}

// Returns a free block and marks it used; 0 if the bitmap is full
func (a *Alloc) findFreeBit() common.Bnum {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.nfree == 0 {
		return common.NULLBNUM
	}
	start := a.incNext()
	num := start
	for {
		if num != 0 && !a.getBit(num) {
			a.setBit(num, true)
			a.nfree--
			util.DPrintf(10, "findFreeBit: start %d -> %d\n", start, num)
			return num
		}
		num = a.incNext()
		if num == start {
			return common.NULLBNUM
		}
	}
}

// Alloc returns a zero-filled free block. The block is zeroed on disk after
// the bitmap lock is released.
func (a *Alloc) Alloc() (common.Bnum, error) {
	bn := a.findFreeBit()
	if bn == common.NULLBNUM {
		return common.NULLBNUM, fserr.NoSpace()
	}
	err := a.d.Write(bn, make(disk.Block, disk.BlockSize))
	if err != nil {
		a.Free(bn)
		return common.NULLBNUM, fserr.IO(err, bn, "zero block %d", bn)
	}
	return bn, nil
}

// Free returns bn to the free pool. Freeing a free block is a fault.
func (a *Alloc) Free(bn common.Bnum) {
	if bn == common.NULLBNUM {
		fserr.Fault("free of block 0")
	}
	a.lock.Lock()
	defer a.lock.Unlock()
	if !a.getBit(bn) {
		fserr.Fault("block %d freed twice", bn)
	}
	util.DPrintf(10, "free %d\n", bn)
	a.setBit(bn, false)
	a.nfree++
}

func (a *Alloc) IsUsed(bn common.Bnum) bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.getBit(bn)
}

// MarkUsed sets bn's bit, as mkfs does for blocks it lays out by hand.
func (a *Alloc) MarkUsed(bn common.Bnum) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if !a.getBit(bn) {
		a.setBit(bn, true)
		a.nfree--
	}
}

func (a *Alloc) NumFree() uint64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.nfree
}

func (a *Alloc) NumBlocks() uint64 {
	return a.nblocks
}

// NumBitmap is the number of blocks the bitmap occupies.
func (a *Alloc) NumBitmap() uint64 {
	return uint64(len(a.bitmap))
}

// Flush writes modified bitmap blocks to disk. Blocks are snapshotted under
// the lock and written after it is released.
func (a *Alloc) Flush() error {
	var dirty []*buf.Buf
	a.lock.Lock()
	for _, b := range a.bitmap {
		if b.IsDirty() {
			dirty = append(dirty, b.Snapshot())
		}
	}
	a.lock.Unlock()
	for i, c := range dirty {
		err := c.Write(a.d)
		if err != nil {
			a.lock.Lock()
			for _, c := range dirty[i:] {
				a.bitmap[c.Blkno-a.start].SetDirty()
			}
			a.lock.Unlock()
			return err
		}
	}
	return nil
}
