// buf holds whole disk blocks in memory: indirect blocks full of block
// pointers and the blocks of the free-block bitmap.
package buf

import (
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-sfs/addr"
	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/fserr"
	"github.com/mit-pdos/go-sfs/util"
)

// A Buf is an in-memory copy of one disk block
type Buf struct {
	Blkno common.Bnum
	Data  disk.Block
	dirty bool // has this block been written to?
}

// MkBuf returns a zeroed buffer for block bn
func MkBuf(bn common.Bnum) *Buf {
	return &Buf{
		Blkno: bn,
		Data:  make(disk.Block, disk.BlockSize),
		dirty: false,
	}
}

// Load reads block bn from d
func Load(d disk.Disk, bn common.Bnum) (*Buf, error) {
	blk, err := d.Read(bn)
	if err != nil {
		return nil, fserr.IO(err, bn, "read block %d", bn)
	}
	return &Buf{Blkno: bn, Data: blk}, nil
}

func (buf *Buf) IsDirty() bool {
	return buf.dirty
}

func (buf *Buf) SetDirty() {
	buf.dirty = true
}

// Snapshot returns a modified copy of buf and marks buf clean
func (buf *Buf) Snapshot() *Buf {
	c := MkBuf(buf.Blkno)
	copy(c.Data, buf.Data)
	c.dirty = true
	buf.dirty = false
	return c
}

// Write stores the buffer to disk unconditionally
func (buf *Buf) Write(d disk.Disk) error {
	util.DPrintf(10, "write block %d\n", buf.Blkno)
	err := d.Write(buf.Blkno, buf.Data)
	if err != nil {
		return fserr.IO(err, buf.Blkno, "write block %d", buf.Blkno)
	}
	buf.dirty = false
	return nil
}

// Flush writes the buffer only if it has been modified
func (buf *Buf) Flush(d disk.Disk) error {
	if !buf.dirty {
		return nil
	}
	return buf.Write(d)
}

// BnumGet reads the block pointer at byte offset off
func (buf *Buf) BnumGet(off uint64) common.Bnum {
	dec := marshal.NewDec(buf.Data[off : off+8])
	return common.Bnum(dec.GetInt())
}

// BnumPut stores a block pointer at byte offset off
func (buf *Buf) BnumPut(off uint64, v common.Bnum) {
	enc := marshal.NewEnc(8)
	enc.PutInt(uint64(v))
	copy(buf.Data[off:off+8], enc.Finish())
	buf.SetDirty()
}

// IsZero reports whether every byte of the block is zero
func (buf *Buf) IsZero() bool {
	for _, b := range buf.Data {
		if b != 0 {
			return false
		}
	}
	return true
}

// GetBit reads the bitmap bit at a, which must lie in this block
func (buf *Buf) GetBit(a addr.Addr) bool {
	if a.Blkno != buf.Blkno {
		panic("GetBit")
	}
	return buf.Data[a.Byte()]&a.Mask() != 0
}

// Install 1 bit into dst under mask. return new dst.
func installOneBit(set bool, dst byte, mask byte) byte {
	var new byte = dst
	if set {
		new = new | mask
	} else {
		new = new & ^mask
	}
	return new
}

// SetBit updates the bitmap bit at a, which must lie in this block
func (buf *Buf) SetBit(a addr.Addr, v bool) {
	if a.Blkno != buf.Blkno {
		panic("SetBit")
	}
	off := a.Byte()
	buf.Data[off] = installOneBit(v, buf.Data[off], a.Mask())
	buf.SetDirty()
}
