package alloc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/fserr"
)

func TestNBitmap(t *testing.T) {
	assert.Equal(t, uint64(1), NBitmap(1))
	assert.Equal(t, uint64(1), NBitmap(common.NBITBLOCK))
	assert.Equal(t, uint64(2), NBitmap(common.NBITBLOCK+1))
}

func TestAlloc(t *testing.T) {
	assert := assert.New(t)
	max := uint64(32)
	d := disk.NewMemDisk(max)
	a := MkAlloc(d, common.BITMAPSTART, max)

	assert.Equal(max-2, a.NumFree(), "everything but block 0 and the bitmap should be free")
	assert.True(a.IsUsed(0))
	assert.True(a.IsUsed(common.BITMAPSTART))

	n, err := a.Alloc()
	require.NoError(t, err)
	assert.NotEqual(uint64(0), n, "should not allocate 0")
	assert.True(a.IsUsed(n))

	require.False(t, a.IsUsed(n+2))
	a.MarkUsed(n + 2)
	n2, err := a.Alloc()
	require.NoError(t, err)
	assert.NotEqual(n+2, n2, "should not allocate something marked used")

	assert.Equal(max-5, a.NumFree(), "should have used 5 blocks")

	a.Free(n)
	a.Free(n2)
	assert.Equal(max-3, a.NumFree(), "should have freed")
	assert.False(a.IsUsed(n))
}

func TestAllocZeroes(t *testing.T) {
	d := disk.NewMemDisk(16)
	a := MkAlloc(d, common.BITMAPSTART, 16)
	for bn := uint64(3); bn < 16; bn++ {
		blk := make(disk.Block, disk.BlockSize)
		blk[0] = 0xff
		require.NoError(t, d.Write(bn, blk))
	}
	for i := 0; i < 13; i++ {
		bn, err := a.Alloc()
		require.NoError(t, err)
		blk, err := d.Read(bn)
		require.NoError(t, err)
		assert.Equal(t, byte(0), blk[0], "block %d not zeroed", bn)
	}
}

func TestAllocExhaust(t *testing.T) {
	assert := assert.New(t)
	max := uint64(10)
	a := MkAlloc(disk.NewMemDisk(max), common.BITMAPSTART, max)
	seen := make(map[common.Bnum]bool)
	for a.NumFree() > 0 {
		bn, err := a.Alloc()
		require.NoError(t, err)
		assert.False(seen[bn], "allocated %d twice", bn)
		assert.Less(bn, max)
		seen[bn] = true
	}
	assert.Len(seen, int(max-2))
	_, err := a.Alloc()
	assert.True(fserr.Is(err, fserr.CodeNoSpace))
}

func TestAllocWriteError(t *testing.T) {
	fd := disk.NewFaultDisk(disk.NewMemDisk(8))
	a := MkAlloc(fd, common.BITMAPSTART, 8)
	free := a.NumFree()
	for bn := uint64(0); bn < 8; bn++ {
		fd.FailWrite(bn, 1)
	}
	_, err := a.Alloc()
	assert.True(t, fserr.Is(err, fserr.CodeDeviceIO))
	assert.Equal(t, free, a.NumFree(), "failed allocation should not leak")
}

func TestFaults(t *testing.T) {
	a := MkAlloc(disk.NewMemDisk(8), common.BITMAPSTART, 8)
	assert.Panics(t, func() { a.IsUsed(8) })
	assert.Panics(t, func() { a.Free(5) })
	assert.Panics(t, func() { a.Free(0) })
}

func TestFlushLoad(t *testing.T) {
	assert := assert.New(t)
	nblocks := common.NBITBLOCK + 100
	d := disk.NewMemDisk(nblocks)
	a := MkAlloc(d, common.BITMAPSTART, nblocks)
	assert.Equal(uint64(2), a.NumBitmap())
	a.MarkUsed(common.NBITBLOCK + 7)
	a.MarkUsed(9)
	require.NoError(t, a.Flush())

	a2, err := Load(d, common.BITMAPSTART, nblocks)
	require.NoError(t, err)
	assert.Equal(a.NumFree(), a2.NumFree())
	assert.True(a2.IsUsed(common.NBITBLOCK + 7))
	assert.True(a2.IsUsed(9))
	assert.False(a2.IsUsed(10))
}

func TestFlushError(t *testing.T) {
	fd := disk.NewFaultDisk(disk.NewMemDisk(8))
	a := MkAlloc(fd, common.BITMAPSTART, 8)
	fd.FailWrite(common.BITMAPSTART, 1)
	assert.Error(t, a.Flush())
	require.NoError(t, a.Flush(), "bitmap should still be dirty after a failed flush")
	a2, err := Load(fd, common.BITMAPSTART, 8)
	require.NoError(t, err)
	assert.Equal(t, a.NumFree(), a2.NumFree())
}

func TestConcurrentAlloc(t *testing.T) {
	max := uint64(200)
	a := MkAlloc(disk.NewMemDisk(max), common.BITMAPSTART, max)
	var mu sync.Mutex
	seen := make(map[common.Bnum]bool)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 15; j++ {
				bn, err := a.Alloc()
				assert.NoError(t, err)
				mu.Lock()
				assert.False(t, seen[bn])
				seen[bn] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 150)
	assert.Equal(t, max-2-150, a.NumFree())
}
