package sfs

import (
	"github.com/mit-pdos/go-sfs/buf"
	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/fserr"
	"github.com/mit-pdos/go-sfs/layout"
	"github.com/mit-pdos/go-sfs/util"
)

func (fs *FS) checkUsed(bn common.Bnum, what string, inum common.Inum) {
	if !fs.alloc.IsUsed(bn) {
		fserr.Fault("%s block %d of inode %d is marked free", what, bn, inum)
	}
}

// bmap translates file block fileblock to a disk block. With doalloc, a
// missing block (and the indirect block, if needed) is allocated; without it,
// a hole maps to block 0. Caller holds the vnode lock.
func (v *Vnode) bmap(fileblock uint64, doalloc bool) (common.Bnum, error) {
	v.assertLocked()
	fs := v.fs
	ndirect := fs.geom.NDirect
	if fileblock < ndirect {
		bn := v.ip.Direct[fileblock]
		if bn == common.NULLBNUM {
			if !doalloc {
				return common.NULLBNUM, nil
			}
			nb, err := fs.alloc.Alloc()
			if err != nil {
				return common.NULLBNUM, err
			}
			util.DPrintf(10, "bmap %d: direct %d -> %d\n", v.inum, fileblock, nb)
			v.ip.Direct[fileblock] = nb
			v.setDirty()
			return nb, nil
		}
		fs.checkUsed(bn, "direct", v.inum)
		return bn, nil
	}

	idx := fileblock - ndirect
	if idx/layout.NINDIRECT != 0 {
		return common.NULLBNUM, fserr.New(fserr.CodeFileTooLarge,
			"block %d beyond the %d blocks a file can hold", fileblock, fs.geom.MaxFileBlocks())
	}

	if v.ip.Indirect == common.NULLBNUM {
		if !doalloc {
			return common.NULLBNUM, nil
		}
		ib, err := fs.alloc.Alloc()
		if err != nil {
			return common.NULLBNUM, err
		}
		util.DPrintf(10, "bmap %d: indirect -> %d\n", v.inum, ib)
		v.ip.Indirect = ib
		v.setDirty()
	} else {
		fs.checkUsed(v.ip.Indirect, "indirect", v.inum)
	}

	ind, err := buf.Load(fs.d, v.ip.Indirect)
	if err != nil {
		return common.NULLBNUM, err
	}
	bn := ind.BnumGet(idx * 8)
	if bn == common.NULLBNUM {
		if !doalloc {
			return common.NULLBNUM, nil
		}
		nb, err := fs.alloc.Alloc()
		if err != nil {
			return common.NULLBNUM, err
		}
		ind.BnumPut(idx*8, nb)
		err = ind.Write(fs.d)
		if err != nil {
			fs.alloc.Free(nb)
			return common.NULLBNUM, err
		}
		util.DPrintf(10, "bmap %d: indirect[%d] -> %d\n", v.inum, idx, nb)
		return nb, nil
	}
	fs.checkUsed(bn, "data", v.inum)
	return bn, nil
}

// blocks lists every allocated block of the file: data blocks and the
// indirect block. Caller holds the vnode lock.
func (v *Vnode) blocks() ([]common.Bnum, error) {
	v.assertLocked()
	var bns []common.Bnum
	for _, bn := range v.ip.Direct {
		if bn != common.NULLBNUM {
			bns = append(bns, bn)
		}
	}
	if v.ip.Indirect == common.NULLBNUM {
		return bns, nil
	}
	bns = append(bns, v.ip.Indirect)
	ind, err := buf.Load(v.fs.d, v.ip.Indirect)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < layout.NINDIRECT; i++ {
		if bn := ind.BnumGet(i * 8); bn != common.NULLBNUM {
			bns = append(bns, bn)
		}
	}
	return bns, nil
}
