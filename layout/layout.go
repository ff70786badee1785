// Package layout defines the on-disk format: the superblock, inodes, indirect
// blocks and directory entries. Every integer is a little-endian uint64.
package layout

import (
	"bytes"

	"github.com/google/uuid"
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/fserr"
)

const (
	Magic uint64 = 0xabadcafe53465331

	// NINDIRECT is the number of block pointers in an indirect block
	NINDIRECT uint64 = disk.BlockSize / 8

	MAXDIRECT  uint64 = 500
	MINNAMELEN uint64 = 2
	MAXNAMELEN uint64 = 256

	VOLNAMELEN uint64 = 32
)

// Geometry is fixed at mkfs time and recorded in the superblock.
type Geometry struct {
	NDirect uint64 `yaml:"ndirect"` // direct block pointers per inode
	NameLen uint64 `yaml:"namelen"` // name field of a directory entry, including the NUL
}

func DefaultGeometry() Geometry {
	return Geometry{NDirect: 15, NameLen: 56}
}

func (g Geometry) Validate() error {
	if g.NDirect < 1 || g.NDirect > MAXDIRECT {
		return fserr.Invalid("ndirect %d not in [1, %d]", g.NDirect, MAXDIRECT)
	}
	if g.NameLen < MINNAMELEN || g.NameLen > MAXNAMELEN {
		return fserr.Invalid("namelen %d not in [%d, %d]", g.NameLen, MINNAMELEN, MAXNAMELEN)
	}
	return nil
}

// DirentSize is the size of one directory slot
func (g Geometry) DirentSize() uint64 {
	return 8 + g.NameLen
}

// MaxName is the longest name a directory entry holds
func (g Geometry) MaxName() uint64 {
	return g.NameLen - 1
}

// MaxFileBlocks is the number of data blocks a file can address
func (g Geometry) MaxFileBlocks() uint64 {
	return g.NDirect + NINDIRECT
}

func (g Geometry) MaxFileSize() uint64 {
	return g.MaxFileBlocks() * disk.BlockSize
}

type Super struct {
	NBlocks uint64
	NBitmap uint64
	Geom    Geometry
	UUID    uuid.UUID
	Volume  string
}

const superUUIDOff = 5 * 8

func (sb *Super) Encode() disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt(Magic)
	enc.PutInt(sb.NBlocks)
	enc.PutInt(sb.Geom.NDirect)
	enc.PutInt(sb.Geom.NameLen)
	enc.PutInt(sb.NBitmap)
	blk := enc.Finish()
	copy(blk[superUUIDOff:], sb.UUID[:])
	putString(blk[superUUIDOff+16:superUUIDOff+16+VOLNAMELEN], sb.Volume)
	return blk
}

func DecodeSuper(blk disk.Block) (*Super, error) {
	dec := marshal.NewDec(blk)
	if dec.GetInt() != Magic {
		return nil, fserr.Invalid("bad superblock magic")
	}
	sb := &Super{}
	sb.NBlocks = dec.GetInt()
	sb.Geom.NDirect = dec.GetInt()
	sb.Geom.NameLen = dec.GetInt()
	sb.NBitmap = dec.GetInt()
	copy(sb.UUID[:], blk[superUUIDOff:superUUIDOff+16])
	sb.Volume = getString(blk[superUUIDOff+16 : superUUIDOff+16+VOLNAMELEN])
	if err := sb.Geom.Validate(); err != nil {
		return nil, err
	}
	return sb, nil
}

type IType uint64

const (
	TypeInvalid IType = 0
	TypeFile    IType = 1
	TypeDir     IType = 2
)

func (t IType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDir:
		return "dir"
	}
	return "invalid"
}

// Inode is the on-disk record describing one file or directory. It occupies a
// block of its own; the block number is the inode number.
type Inode struct {
	Type      IType
	Size      uint64
	LinkCount uint64
	Direct    []common.Bnum
	Indirect  common.Bnum
}

func MkInode(g Geometry) *Inode {
	return &Inode{Direct: make([]common.Bnum, g.NDirect)}
}

func (ip *Inode) Encode() disk.Block {
	enc := marshal.NewEnc(disk.BlockSize)
	enc.PutInt(uint64(ip.Type))
	enc.PutInt(ip.Size)
	enc.PutInt(ip.LinkCount)
	enc.PutInts(ip.Direct)
	enc.PutInt(ip.Indirect)
	return enc.Finish()
}

func DecodeInode(g Geometry, blk disk.Block) *Inode {
	dec := marshal.NewDec(blk)
	ip := &Inode{}
	ip.Type = IType(dec.GetInt())
	ip.Size = dec.GetInt()
	ip.LinkCount = dec.GetInt()
	ip.Direct = dec.GetInts(g.NDirect)
	ip.Indirect = dec.GetInt()
	return ip
}

// Clone returns a copy that shares nothing with ip
func (ip *Inode) Clone() *Inode {
	c := *ip
	c.Direct = append([]common.Bnum(nil), ip.Direct...)
	return &c
}

// Dirent is one directory slot. Ino == common.NULLINUM marks an empty slot.
type Dirent struct {
	Ino  common.Inum
	Name string
}

func (g Geometry) EncodeDirent(de Dirent) []byte {
	enc := marshal.NewEnc(8)
	enc.PutInt(uint64(de.Ino))
	b := make([]byte, g.DirentSize())
	copy(b, enc.Finish())
	putString(b[8:], de.Name)
	return b
}

func (g Geometry) DecodeDirent(b []byte) Dirent {
	dec := marshal.NewDec(b[:8])
	ino := common.Inum(dec.GetInt())
	return Dirent{Ino: ino, Name: getString(b[8:g.DirentSize()])}
}

// putString stores s NUL-padded; the caller ensures it fits with a NUL.
func putString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func getString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
