package sfs

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gdisk "github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-sfs/common"
	"github.com/mit-pdos/go-sfs/disk"
	"github.com/mit-pdos/go-sfs/fserr"
	"github.com/mit-pdos/go-sfs/layout"
)

func refcount(v *Vnode) uint64 {
	v.fs.tbl.mu.Lock()
	defer v.fs.tbl.mu.Unlock()
	return v.refcount
}

func resident(fs *FS, inum common.Inum) bool {
	fs.tbl.mu.Lock()
	defer fs.tbl.mu.Unlock()
	_, ok := fs.tbl.vnodes[inum]
	return ok
}

func TestVnodeShared(t *testing.T) {
	assert := assert.New(t)
	fs := mkFS(t, disk.NewMemDisk(100), layout.DefaultGeometry())
	root := fs.Root()
	f, err := root.Create("f", true)
	require.NoError(t, err)

	f2, err := root.Lookup("f")
	require.NoError(t, err)
	assert.Same(f, f2)
	assert.Equal(uint64(2), refcount(f))
	f2.Put()
	assert.Equal(uint64(1), refcount(f))

	inum := f.Inum()
	f.Put()
	assert.False(resident(fs, inum), "last put reclaims")

	f, err = root.Lookup("f")
	require.NoError(t, err)
	assert.NotSame(f2, f, "reloaded from disk")
	assert.Equal(layout.TypeFile, f.GetType())
	assert.Panics(func() { fs.get(inum, layout.TypeFile) }, "forced type on a resident vnode")
	f.Put()
	root.Put()
}

func TestVnodeFaults(t *testing.T) {
	fs := mkFS(t, disk.NewMemDisk(100), layout.DefaultGeometry())
	root := fs.Root()
	f, err := root.Create("f", true)
	require.NoError(t, err)
	f.Put()
	root.Put()
	assert.Panics(t, func() { f.Put() })
	assert.Panics(t, func() { f.Ref() })
	// a free block holds no inode
	assert.Panics(t, func() { fs.get(50, layout.TypeInvalid) })
	assert.False(t, resident(fs, 50), "failed load left a placeholder")
}

func TestReclaimBusy(t *testing.T) {
	assert := assert.New(t)
	fs := mkFS(t, disk.NewMemDisk(100), layout.DefaultGeometry())
	root := fs.Root()
	f, err := root.Create("f", true)
	require.NoError(t, err)

	// another thread took a reference between the last Put's check and
	// reclaim
	f.Ref()
	err = fs.reclaim(f)
	assert.True(fserr.Is(err, fserr.CodeBusy))
	assert.Equal(uint64(1), refcount(f))
	assert.True(resident(fs, f.Inum()))

	assert.NoError(fs.reclaim(f))
	assert.False(resident(fs, f.Inum()))
	root.Put()
	require.NoError(t, fs.Unmount())
}

func TestReclaimError(t *testing.T) {
	assert := assert.New(t)
	fd := disk.NewFaultDisk(disk.NewMemDisk(100))
	fs := mkFS(t, fd, layout.DefaultGeometry())
	root := fs.Root()
	f, err := root.Create("f", true)
	require.NoError(t, err)
	inum := f.Inum()

	fd.FailWrite(inum.Bnum(), 1)
	f.Put()
	assert.True(resident(fs, inum), "kept after a failed write-back")
	assert.Equal(uint64(0), refcount(f))

	root.Put()
	require.NoError(t, fs.Unmount())
	assert.False(resident(fs, inum))

	fs, err = Mount(fd)
	require.NoError(t, err)
	root = fs.Root()
	st := func() Stat {
		v, err := root.Lookup("f")
		require.NoError(t, err)
		defer v.Put()
		st, err := v.Stat()
		require.NoError(t, err)
		return st
	}()
	assert.Equal(uint64(1), st.LinkCount)
	root.Put()
	require.NoError(t, fs.Unmount())
}

// Lookups racing with the last Put must never see a half-reclaimed vnode.
func TestLookupPutRace(t *testing.T) {
	fs := mkFS(t, disk.NewMemDisk(100), layout.DefaultGeometry())
	root := fs.Root()
	f, err := root.Create("f", true)
	require.NoError(t, err)
	_, err = f.Write([]byte("x"), 0)
	require.NoError(t, err)
	f.Put()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				v, err := root.Lookup("f")
				if !assert.NoError(t, err) {
					return
				}
				b := make([]byte, 1)
				n, err := v.Read(b, 0)
				assert.NoError(t, err)
				assert.Equal(t, 1, n)
				v.Put()
			}
		}()
	}
	wg.Wait()
	checkClean(t, fs)
	root.Put()
	require.NoError(t, fs.Unmount())
}

func TestMountErrors(t *testing.T) {
	d := disk.NewMemDisk(100)
	_, err := Mount(d)
	assert.True(t, fserr.Is(err, fserr.CodeInvalid))

	err = Mkfs(d, layout.Geometry{NDirect: 0, NameLen: 56}, "x")
	assert.True(t, fserr.Is(err, fserr.CodeInvalid))
	err = Mkfs(d, layout.DefaultGeometry(), string(make([]byte, 40)))
	assert.True(t, fserr.Is(err, fserr.CodeInvalid))
	err = Mkfs(disk.NewMemDisk(4), layout.DefaultGeometry(), "x")
	assert.True(t, fserr.Is(err, fserr.CodeInvalid))

	fd := disk.NewFaultDisk(disk.NewMemDisk(100))
	require.NoError(t, Mkfs(fd, layout.DefaultGeometry(), "x"))
	fd.FailRead(common.SUPERBLK, 1)
	_, err = Mount(fd)
	assert.True(t, fserr.Is(err, fserr.CodeDeviceIO))

	// root inode that is not a directory
	blk, err := fd.Read(common.ROOTBLK)
	require.NoError(t, err)
	ip := layout.DecodeInode(layout.DefaultGeometry(), blk)
	ip.Type = layout.TypeFile
	require.NoError(t, fd.Write(common.ROOTBLK, ip.Encode()))
	_, err = Mount(fd)
	assert.True(t, fserr.Is(err, fserr.CodeInvalid))
}

func TestGooseBacked(t *testing.T) {
	fs := mkFS(t, disk.FromGoose(gooseMemDisk(200)), layout.DefaultGeometry())
	root := fs.Root()
	f, err := root.Create("f", true)
	require.NoError(t, err)
	_, err = f.Write([]byte("goose"), 4094)
	require.NoError(t, err)
	b := make([]byte, 5)
	_, err = f.Read(b, 4094)
	require.NoError(t, err)
	assert.Equal(t, "goose", string(b))
	f.Put()
	root.Put()
	require.NoError(t, fs.Unmount())
}

func gooseMemDisk(n uint64) gdisk.Disk {
	return gdisk.NewMemDisk(n)
}
