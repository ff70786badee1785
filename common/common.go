package common

import (
	"github.com/tchajed/goose/machine/disk"
)

const (
	NBITBLOCK uint64 = disk.BlockSize * 8

	// fixed locations
	SUPERBLK    Bnum = 0
	ROOTBLK     Bnum = 1
	BITMAPSTART Bnum = 2
)

// Inum is an inode number. Every inode occupies its own block, so an Inum is
// also the block number holding the inode.
type Inum uint64
type Bnum = uint64

const (
	NULLINUM Inum = 0
	ROOTINUM Inum = Inum(ROOTBLK)
	NULLBNUM Bnum = 0
)

func (i Inum) Bnum() Bnum {
	return Bnum(i)
}
