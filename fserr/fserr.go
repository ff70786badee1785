// Package fserr defines the error kinds reported by the file system.
//
// Recoverable errors are PlatformErrors carrying one of the codes below and
// are returned to the caller. Consistency faults (a used block marked free, a
// malformed directory, a negative link count) are not errors: Fault panics,
// since continuing would risk further on-disk corruption.
package fserr

import (
	"fmt"

	"github.com/jmgilman/go/errors"
)

const (
	CodeNotFound       = errors.CodeNotFound
	CodeAlreadyExists  = errors.CodeAlreadyExists
	CodeInvalid        = errors.CodeInvalidInput
	CodeNotImplemented = errors.CodeNotImplemented
	CodeFault          = errors.CodeInternal

	CodeNotADirectory errors.ErrorCode = "NOT_A_DIRECTORY"
	CodeIsADirectory  errors.ErrorCode = "IS_A_DIRECTORY"
	CodeNameTooLong   errors.ErrorCode = "NAME_TOO_LONG"
	CodeNotEmpty      errors.ErrorCode = "NOT_EMPTY"
	CodeNoSpace       errors.ErrorCode = "NO_SPACE"
	CodeDeviceIO      errors.ErrorCode = "DEVICE_IO"
	CodeBusy          errors.ErrorCode = "BUSY"
	CodeFileTooLarge  errors.ErrorCode = "FILE_TOO_LARGE"
)

func New(code errors.ErrorCode, format string, args ...interface{}) error {
	return errors.Newf(code, format, args...)
}

func NotFound(name string) error {
	return errors.WithContext(errors.New(CodeNotFound, "no such file or directory"), "name", name)
}

func Exists(name string) error {
	return errors.WithContext(errors.New(CodeAlreadyExists, "file exists"), "name", name)
}

func NotDir() error {
	return errors.New(CodeNotADirectory, "not a directory")
}

func IsDir() error {
	return errors.New(CodeIsADirectory, "is a directory")
}

func NameTooLong(name string, max uint64) error {
	return errors.Newf(CodeNameTooLong, "name %q longer than %d bytes", name, max)
}

func NotEmpty(name string) error {
	return errors.WithContext(errors.New(CodeNotEmpty, "directory not empty"), "name", name)
}

func NoSpace() error {
	return errors.New(CodeNoSpace, "no free blocks")
}

func Busy() error {
	return errors.New(CodeBusy, "vnode busy")
}

func Invalid(format string, args ...interface{}) error {
	return errors.Newf(CodeInvalid, format, args...)
}

func Unimp(op string) error {
	return errors.Newf(CodeNotImplemented, "%s not supported", op)
}

// IO wraps a block device failure. Device errors are marked retryable; the
// file system itself never retries them.
func IO(err error, bn uint64, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	e := errors.Wrapf(err, CodeDeviceIO, format, args...)
	e = errors.WithContext(e, "block", bn)
	return errors.WithClassification(e, errors.ClassificationRetryable)
}

// Code returns the code of err, or errors.CodeUnknown if err carries none.
func Code(err error) errors.ErrorCode {
	return errors.GetCode(err)
}

func Is(err error, code errors.ErrorCode) bool {
	return err != nil && errors.GetCode(err) == code
}

// Fault reports a consistency fault and does not return.
func Fault(format string, args ...interface{}) {
	panic(errors.New(CodeFault, "sfs: "+fmt.Sprintf(format, args...)))
}
