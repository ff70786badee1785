package disk

import (
	"errors"
	"sync"
)

var ErrInjected = errors.New("disk: injected fault")

// FaultDisk wraps a Disk and fails selected reads or writes, for exercising
// error paths above the device.
type FaultDisk struct {
	Disk
	mu     sync.Mutex
	rfail  map[uint64]int
	wfail  map[uint64]int
	writes uint64
}

// Forever is a fault count that never runs out.
const Forever = -1

func NewFaultDisk(d Disk) *FaultDisk {
	return &FaultDisk{
		Disk:  d,
		rfail: make(map[uint64]int),
		wfail: make(map[uint64]int),
	}
}

// FailRead makes the next n reads of block a fail (n == Forever: all of them).
func (f *FaultDisk) FailRead(a uint64, n int) {
	f.mu.Lock()
	f.rfail[a] = n
	f.mu.Unlock()
}

// FailWrite makes the next n writes of block a fail (n == Forever: all of them).
func (f *FaultDisk) FailWrite(a uint64, n int) {
	f.mu.Lock()
	f.wfail[a] = n
	f.mu.Unlock()
}

func (f *FaultDisk) Clear() {
	f.mu.Lock()
	f.rfail = make(map[uint64]int)
	f.wfail = make(map[uint64]int)
	f.mu.Unlock()
}

// Writes reports the number of successful writes so far.
func (f *FaultDisk) Writes() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func take(m map[uint64]int, a uint64) bool {
	n, ok := m[a]
	if !ok {
		return false
	}
	if n != Forever {
		if n <= 1 {
			delete(m, a)
		} else {
			m[a] = n - 1
		}
	}
	return true
}

func (f *FaultDisk) ReadTo(a uint64, b Block) error {
	f.mu.Lock()
	fail := take(f.rfail, a)
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Disk.ReadTo(a, b)
}

func (f *FaultDisk) Read(a uint64) (Block, error) {
	buf := make(Block, BlockSize)
	err := f.ReadTo(a, buf)
	return buf, err
}

func (f *FaultDisk) Write(a uint64, v Block) error {
	f.mu.Lock()
	fail := take(f.wfail, a)
	if !fail {
		f.writes++
	}
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.Disk.Write(a, v)
}
