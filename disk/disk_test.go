package disk

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gdisk "github.com/tchajed/goose/machine/disk"
)

func mkBlock(b byte) Block {
	blk := make(Block, BlockSize)
	for i := range blk {
		blk[i] = b
	}
	return blk
}

func testReadWrite(t *testing.T, d Disk) {
	assert := assert.New(t)
	sz, err := d.Size()
	assert.NoError(err)
	assert.Equal(uint64(10), sz)

	blk, err := d.Read(3)
	assert.NoError(err)
	assert.Equal(mkBlock(0), blk)

	assert.NoError(d.Write(3, mkBlock(7)))
	assert.NoError(d.Barrier())
	blk, err = d.Read(3)
	assert.NoError(err)
	assert.Equal(mkBlock(7), blk)

	buf := make(Block, BlockSize)
	assert.NoError(d.ReadTo(3, buf))
	assert.Equal(byte(7), buf[BlockSize-1])

	assert.Panics(func() { d.Read(10) })
}

func TestMemDisk(t *testing.T) {
	d := NewMemDisk(10)
	testReadWrite(t, d)
	assert.NoError(t, d.Close())
}

func TestFileDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := NewFileDisk(path, 10)
	require.NoError(t, err)
	testReadWrite(t, d)
	require.NoError(t, d.Close())

	d, err = OpenFileDisk(path)
	require.NoError(t, err)
	defer d.Close()
	blk, err := d.Read(3)
	assert.NoError(t, err)
	assert.Equal(t, mkBlock(7), blk)
}

func TestGooseDisk(t *testing.T) {
	testReadWrite(t, FromGoose(gdisk.NewMemDisk(10)))
}

func TestFaultDisk(t *testing.T) {
	assert := assert.New(t)
	d := NewFaultDisk(NewMemDisk(10))

	d.FailWrite(2, 1)
	assert.ErrorIs(d.Write(2, mkBlock(1)), ErrInjected)
	assert.NoError(d.Write(2, mkBlock(1)))
	assert.Equal(uint64(1), d.Writes())

	d.FailRead(2, Forever)
	_, err := d.Read(2)
	assert.ErrorIs(err, ErrInjected)
	_, err = d.Read(2)
	assert.ErrorIs(err, ErrInjected)

	d.Clear()
	blk, err := d.Read(2)
	assert.NoError(err)
	assert.Equal(mkBlock(1), blk)
}
