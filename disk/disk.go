// Package disk is the block device under the file system. Every read and
// write is a whole block and goes straight to the device.
package disk

import (
	gdisk "github.com/tchajed/goose/machine/disk"
)

type Block = []byte

const BlockSize uint64 = gdisk.BlockSize

// A Disk is an array of BlockSize blocks. Block numbers at or past Size are
// a caller bug and panic; device failures are returned as errors.
type Disk interface {
	// Read returns a fresh copy of block a.
	Read(a uint64) (Block, error)

	// ReadTo fills b, which must be BlockSize long, with block a.
	ReadTo(a uint64, b Block) error

	// Write stores v as block a. v is not retained.
	Write(a uint64, v Block) error

	// Size is the number of blocks.
	Size() (uint64, error)

	// Barrier returns once every completed Write is durable.
	Barrier() error

	Close() error
}
