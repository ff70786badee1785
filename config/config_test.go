package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-sfs/fserr"
	"github.com/mit-pdos/go-sfs/layout"
	"github.com/mit-pdos/go-sfs/util"
)

func TestDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, layout.DefaultGeometry(), c.Geometry)

	c, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "sfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
image: /tmp/disk.img
nblocks: 1000
ndirect: 4
namelen: 24
debug: 3
volume: scratch
`), 0644))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal("/tmp/disk.img", c.Image)
	assert.Equal(uint64(1000), c.NBlocks)
	assert.Equal(layout.Geometry{NDirect: 4, NameLen: 24}, c.Geometry)
	assert.Equal(uint64(3), c.Debug)
	assert.Equal("scratch", c.Volume)
}

func TestPartial(t *testing.T) {
	c, err := Parse([]byte("ndirect: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), c.NDirect)
	assert.Equal(t, uint64(56), c.NameLen)
	assert.Equal(t, DefaultNBlocks, c.NBlocks)

	c, err = Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestInvalid(t *testing.T) {
	for _, src := range []string{
		"ndirect: 0\n",
		"namelen: 1000\n",
		"nblocks: 2\n",
		"volume: this-volume-name-is-much-too-long-to-fit\n",
		"bogus: 1\n",
		"nblocks: [\n",
	} {
		_, err := Parse([]byte(src))
		assert.True(t, fserr.Is(err, fserr.CodeInvalid), "%q: %v", src, err)
	}
}

func TestInitLogging(t *testing.T) {
	defer func(d uint64) { util.Debug = d }(util.Debug)
	c := Default()
	c.Debug = 5
	require.NoError(t, c.InitLogging())
	assert.Equal(t, uint64(5), util.Debug)
	c.Debug = 0
	require.NoError(t, c.InitLogging())
	assert.Equal(t, uint64(0), util.Debug)
}
