package sfs

import (
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/fserr"
	"github.com/mit-pdos/go-sfs/util"
)

// readAt reads from the file starting at off, stopping at end of file. A
// short count is not an error. Caller holds the vnode lock.
func (v *Vnode) readAt(p []byte, off uint64) (int, error) {
	v.assertLocked()
	size := v.ip.Size
	if off >= size {
		return 0, nil
	}
	n := util.Min(uint64(len(p)), size-off)
	var done uint64
	for done < n {
		pos := off + done
		fb := pos / disk.BlockSize
		boff := pos % disk.BlockSize
		chunk := util.Min(disk.BlockSize-boff, n-done)
		dst := p[done : done+chunk]
		err := v.readBlock(fb, boff, dst)
		if err != nil {
			return int(done), err
		}
		done += chunk
	}
	return int(done), nil
}

// readBlock fills dst from file block fb starting at byte boff.
func (v *Vnode) readBlock(fb uint64, boff uint64, dst []byte) error {
	bn, err := v.bmap(fb, false)
	if err != nil {
		return err
	}
	if bn == 0 {
		for i := range dst {
			dst[i] = 0
		}
		return nil
	}
	d := v.fs.d
	if boff == 0 && uint64(len(dst)) == disk.BlockSize {
		err = d.ReadTo(bn, dst)
	} else {
		var blk disk.Block
		blk, err = d.Read(bn)
		if err == nil {
			copy(dst, blk[boff:])
		}
	}
	return fserr.IO(err, bn, "read block %d of inode %d", bn, v.inum)
}

// writeAt writes p at off, allocating blocks as needed and extending the
// file. On failure it returns the number of bytes written so far; the size
// covers exactly those bytes. Caller holds the vnode lock.
func (v *Vnode) writeAt(p []byte, off uint64) (int, error) {
	v.assertLocked()
	n := uint64(len(p))
	if util.SumOverflows(off, n) || off+n > v.fs.geom.MaxFileSize() {
		return 0, fserr.New(fserr.CodeFileTooLarge,
			"write of %d bytes at %d past maximum file size %d", n, off, v.fs.geom.MaxFileSize())
	}
	var done uint64
	for done < n {
		pos := off + done
		fb := pos / disk.BlockSize
		boff := pos % disk.BlockSize
		chunk := util.Min(disk.BlockSize-boff, n-done)
		err := v.writeBlock(fb, boff, p[done:done+chunk])
		if err != nil {
			return int(done), err
		}
		done += chunk
		if pos+chunk > v.ip.Size {
			v.ip.Size = pos + chunk
			v.setDirty()
		}
	}
	return int(done), nil
}

// writeBlock stores src into file block fb at byte boff. A partial block is
// read first so the bytes around src survive.
func (v *Vnode) writeBlock(fb uint64, boff uint64, src []byte) error {
	bn, err := v.bmap(fb, true)
	if err != nil {
		return err
	}
	d := v.fs.d
	if boff == 0 && uint64(len(src)) == disk.BlockSize {
		err = d.Write(bn, src)
		return fserr.IO(err, bn, "write block %d of inode %d", bn, v.inum)
	}
	blk, err := d.Read(bn)
	if err != nil {
		return fserr.IO(err, bn, "read block %d of inode %d", bn, v.inum)
	}
	copy(blk[boff:], src)
	err = d.Write(bn, blk)
	return fserr.IO(err, bn, "write block %d of inode %d", bn, v.inum)
}
