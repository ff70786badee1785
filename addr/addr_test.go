package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mit-pdos/go-sfs/common"
)

func TestMkBitAddr(t *testing.T) {
	assert := assert.New(t)
	a := MkBitAddr(2, 0)
	assert.Equal(common.Bnum(2), a.Blkno)
	assert.Equal(uint64(0), a.Off)

	a = MkBitAddr(2, common.NBITBLOCK+13)
	assert.Equal(common.Bnum(3), a.Blkno)
	assert.Equal(uint64(13), a.Off)
	assert.Equal(uint64(1), a.Byte())
	assert.Equal(byte(1<<5), a.Mask())
	assert.Equal(3*common.NBITBLOCK+13, a.Flatid())
}
