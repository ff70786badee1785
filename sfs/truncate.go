package sfs

import (
	"github.com/mit-pdos/go-sfs/buf"
	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/fserr"
	"github.com/mit-pdos/go-sfs/layout"
	"github.com/mit-pdos/go-sfs/util"
)

// truncate sets the file length, freeing every block past the new end. The
// indirect block goes too once it maps nothing. Caller holds the vnode lock.
func (v *Vnode) truncate(length uint64) error {
	v.assertLocked()
	fs := v.fs
	if length > fs.geom.MaxFileSize() {
		return fserr.New(fserr.CodeFileTooLarge, "length %d past maximum file size %d",
			length, fs.geom.MaxFileSize())
	}
	util.DPrintf(10, "truncate %d: %d -> %d\n", v.inum, v.ip.Size, length)

	if length < v.ip.Size && length%disk.BlockSize != 0 {
		err := v.zeroTail(length)
		if err != nil {
			return err
		}
	}

	keep := util.RoundUp(length, disk.BlockSize)
	ndirect := fs.geom.NDirect

	if v.ip.Indirect != common.NULLBNUM {
		fs.checkUsed(v.ip.Indirect, "indirect", v.inum)
		ind, err := buf.Load(fs.d, v.ip.Indirect)
		if err != nil {
			return err
		}
		var freed []common.Bnum
		first := uint64(0)
		if keep > ndirect {
			first = keep - ndirect
		}
		for i := first; i < layout.NINDIRECT; i++ {
			bn := ind.BnumGet(i * 8)
			if bn != common.NULLBNUM {
				fs.checkUsed(bn, "data", v.inum)
				ind.BnumPut(i*8, common.NULLBNUM)
				freed = append(freed, bn)
			}
		}
		if ind.IsZero() {
			freed = append(freed, v.ip.Indirect)
			v.ip.Indirect = common.NULLBNUM
			v.setDirty()
		} else if ind.IsDirty() {
			err = ind.Write(fs.d)
			if err != nil {
				return err
			}
		}
		for _, bn := range freed {
			fs.alloc.Free(bn)
		}
	}

	for i := keep; i < ndirect; i++ {
		bn := v.ip.Direct[i]
		if bn != common.NULLBNUM {
			fs.checkUsed(bn, "direct", v.inum)
			v.ip.Direct[i] = common.NULLBNUM
			fs.alloc.Free(bn)
			v.setDirty()
		}
	}

	if v.ip.Size != length {
		v.ip.Size = length
		v.setDirty()
	}
	return nil
}

// zeroTail clears the bytes of length's block past length, so that growing
// the file again exposes zeros.
func (v *Vnode) zeroTail(length uint64) error {
	bn, err := v.bmap(length/disk.BlockSize, false)
	if err != nil || bn == common.NULLBNUM {
		return err
	}
	blk, err := v.fs.d.Read(bn)
	if err != nil {
		return fserr.IO(err, bn, "read block %d of inode %d", bn, v.inum)
	}
	boff := length % disk.BlockSize
	for i := boff; i < disk.BlockSize; i++ {
		blk[i] = 0
	}
	err = v.fs.d.Write(bn, blk)
	return fserr.IO(err, bn, "write block %d of inode %d", bn, v.inum)
}
