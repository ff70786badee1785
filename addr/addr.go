package addr

import (
	"github.com/mit-pdos/go-sfs/common"
)

// Addr identifies a bit in the free-block bitmap.
//
// Blkno is the bitmap block containing the bit, and Off is the location of
// the bit within that block.
type Addr struct {
	Blkno common.Bnum
	Off   uint64 // offset in bits
}

// Flatid is the bit's position counting from the start of the disk.
func (a Addr) Flatid() uint64 {
	return uint64(a.Blkno)*common.NBITBLOCK + a.Off
}

// Byte is the offset of the byte holding the bit.
func (a Addr) Byte() uint64 {
	return a.Off / 8
}

// Mask selects the bit within its byte.
func (a Addr) Mask() byte {
	return 1 << (a.Off % 8)
}

func MkAddr(blkno common.Bnum, off uint64) Addr {
	return Addr{Blkno: blkno, Off: off}
}

// MkBitAddr locates bit n of a bitmap that starts at block start.
func MkBitAddr(start common.Bnum, n uint64) Addr {
	bit := n % common.NBITBLOCK
	i := n / common.NBITBLOCK
	addr := MkAddr(start+common.Bnum(i), bit)
	return addr
}
