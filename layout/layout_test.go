package layout

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/fserr"
)

func TestGeometry(t *testing.T) {
	assert := assert.New(t)
	g := DefaultGeometry()
	assert.NoError(g.Validate())
	assert.Equal(uint64(64), g.DirentSize())
	assert.Equal(uint64(55), g.MaxName())
	assert.Equal(uint64(15+512), g.MaxFileBlocks())

	assert.True(fserr.Is(Geometry{NDirect: 0, NameLen: 56}.Validate(), fserr.CodeInvalid))
	assert.True(fserr.Is(Geometry{NDirect: 501, NameLen: 56}.Validate(), fserr.CodeInvalid))
	assert.True(fserr.Is(Geometry{NDirect: 1, NameLen: 1}.Validate(), fserr.CodeInvalid))
}

func TestSuper(t *testing.T) {
	assert := assert.New(t)
	sb := &Super{
		NBlocks: 4096,
		NBitmap: 1,
		Geom:    Geometry{NDirect: 3, NameLen: 24},
		UUID:    uuid.New(),
		Volume:  "scratch",
	}
	blk := sb.Encode()
	assert.Equal(disk.BlockSize, uint64(len(blk)))
	sb2, err := DecodeSuper(blk)
	require.NoError(t, err)
	assert.Equal(sb, sb2)

	_, err = DecodeSuper(make(disk.Block, disk.BlockSize))
	assert.True(fserr.Is(err, fserr.CodeInvalid))
}

func TestInode(t *testing.T) {
	assert := assert.New(t)
	g := Geometry{NDirect: 4, NameLen: 16}
	ip := MkInode(g)
	ip.Type = TypeDir
	ip.Size = 4100
	ip.LinkCount = 2
	ip.Direct[0] = 17
	ip.Direct[3] = 99
	ip.Indirect = 23
	ip2 := DecodeInode(g, ip.Encode())
	assert.Equal(ip, ip2)

	c := ip.Clone()
	c.Direct[0] = 1
	assert.Equal(uint64(17), ip.Direct[0])

	fresh := DecodeInode(g, make(disk.Block, disk.BlockSize))
	assert.Equal(TypeInvalid, fresh.Type)
	assert.Equal("invalid", fresh.Type.String())
	assert.Equal("dir", TypeDir.String())
}

func TestDirent(t *testing.T) {
	assert := assert.New(t)
	g := Geometry{NDirect: 4, NameLen: 8}
	b := g.EncodeDirent(Dirent{Ino: 42, Name: "abcdefg"})
	assert.Len(b, 16)
	assert.Equal(byte(0), b[15])
	assert.Equal(Dirent{Ino: 42, Name: "abcdefg"}, g.DecodeDirent(b))

	empty := g.DecodeDirent(make([]byte, 16))
	assert.Equal(Dirent{}, empty)
}
