// lockmap is a sharded map of vnode locks.
//
// The API is as if LockMap consisted of an exclusive lock for every possible
// inode number; LockMap.Acquire(inum) acquires the lock associated with inum
// and LockMap.Release(inum) releases it. The lock belongs to the inode number
// rather than to a particular in-memory vnode, so a vnode that is reclaimed and
// loaded again is still protected by the same lock.
//
// The implementation doesn't actually maintain all of these locks; it
// instead maintains a fixed collection of shards so that shard i is
// responsible for maintaining the lock state of all inums such that
// inum % NSHARD = i. Acquiring a lock requires synchronizing with any threads
// accessing the same shard.
package lockmap

import (
	"sync"

	"github.com/mit-pdos/go-sfs/common"
)

type lockState struct {
	held    bool
	cond    *sync.Cond
	waiters uint64
}

type lockShard struct {
	mu    *sync.Mutex
	state map[common.Inum]*lockState
}

func mkLockShard() *lockShard {
	mu := new(sync.Mutex)
	return &lockShard{
		mu:    mu,
		state: make(map[common.Inum]*lockState),
	}
}

func (lmap *lockShard) acquire(inum common.Inum) {
	lmap.mu.Lock()
	for {
		state, ok := lmap.state[inum]
		if !ok {
			state = &lockState{
				held: false,
				cond: sync.NewCond(lmap.mu),
			}
			lmap.state[inum] = state
		}
		if !state.held {
			state.held = true
			break
		}
		state.waiters += 1
		state.cond.Wait()
		// release keeps the state while anyone waits on it
		state.waiters -= 1
	}
	lmap.mu.Unlock()
}

func (lmap *lockShard) release(inum common.Inum) {
	lmap.mu.Lock()
	state, ok := lmap.state[inum]
	if !ok || !state.held {
		lmap.mu.Unlock()
		panic("lockmap: release of unheld lock")
	}
	state.held = false
	if state.waiters > 0 {
		state.cond.Signal()
	} else {
		delete(lmap.state, inum)
	}
	lmap.mu.Unlock()
}

func (lmap *lockShard) held(inum common.Inum) bool {
	lmap.mu.Lock()
	defer lmap.mu.Unlock()
	state, ok := lmap.state[inum]
	return ok && state.held
}

const NSHARD uint64 = 43

type LockMap struct {
	shards []*lockShard
}

func MkLockMap() *LockMap {
	var shards []*lockShard
	for i := uint64(0); i < NSHARD; i++ {
		shards = append(shards, mkLockShard())
	}
	return &LockMap{
		shards: shards,
	}
}

func (lmap *LockMap) shard(inum common.Inum) *lockShard {
	return lmap.shards[uint64(inum)%NSHARD]
}

func (lmap *LockMap) Acquire(inum common.Inum) {
	lmap.shard(inum).acquire(inum)
}

func (lmap *LockMap) Release(inum common.Inum) {
	lmap.shard(inum).release(inum)
}

// Held reports whether some thread holds inum's lock. It is meant for
// assertions: the answer can be stale by the time it is used unless the caller
// is the holder.
func (lmap *LockMap) Held(inum common.Inum) bool {
	return lmap.shard(inum).held(inum)
}
