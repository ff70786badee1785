package disk

import (
	gdisk "github.com/tchajed/goose/machine/disk"
)

type gooseDisk struct {
	d gdisk.Disk
}

// FromGoose adapts a goose disk. Goose disks report failures by panicking,
// so every operation on the result succeeds or panics.
func FromGoose(d gdisk.Disk) Disk {
	return gooseDisk{d: d}
}

func (g gooseDisk) Read(a uint64) (Block, error) {
	return g.d.Read(a), nil
}

func (g gooseDisk) ReadTo(a uint64, b Block) error {
	copy(b, g.d.Read(a))
	return nil
}

func (g gooseDisk) Write(a uint64, v Block) error {
	g.d.Write(a, v)
	return nil
}

func (g gooseDisk) Size() (uint64, error) {
	return g.d.Size(), nil
}

func (g gooseDisk) Barrier() error {
	g.d.Barrier()
	return nil
}

func (g gooseDisk) Close() error {
	g.d.Close()
	return nil
}
