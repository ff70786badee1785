package fserr

import (
	stderrors "errors"
	"testing"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	assert := assert.New(t)
	assert.True(Is(NotFound("a"), CodeNotFound))
	assert.True(Is(Exists("a"), CodeAlreadyExists))
	assert.True(Is(NotDir(), CodeNotADirectory))
	assert.True(Is(IsDir(), CodeIsADirectory))
	assert.True(Is(NameTooLong("abc", 2), CodeNameTooLong))
	assert.True(Is(NotEmpty("d"), CodeNotEmpty))
	assert.True(Is(NoSpace(), CodeNoSpace))
	assert.True(Is(Busy(), CodeBusy))
	assert.False(Is(nil, CodeNotFound))
	assert.False(Is(stderrors.New("plain"), CodeNotFound))
	assert.Equal(errors.CodeUnknown, Code(stderrors.New("plain")))
}

func TestIO(t *testing.T) {
	assert := assert.New(t)
	assert.Nil(IO(nil, 3, "read"))

	cause := stderrors.New("bad sector")
	err := IO(cause, 7, "read block %d", 7)
	assert.True(Is(err, CodeDeviceIO))
	assert.True(errors.IsRetryable(err), "device errors are retryable")
	assert.True(stderrors.Is(err, cause))

	var pe errors.PlatformError
	assert.True(errors.As(err, &pe))
	assert.Equal(uint64(7), pe.Context()["block"])
}

func TestNotFoundContext(t *testing.T) {
	var pe errors.PlatformError
	assert.True(t, errors.As(NotFound("x"), &pe))
	assert.Equal(t, "x", pe.Context()["name"])
	assert.False(t, errors.IsRetryable(pe))
}

func TestFault(t *testing.T) {
	assert.PanicsWithError(t, "[INTERNAL_ERROR] sfs: block 3 marked free",
		func() { Fault("block %d marked free", 3) })
}
