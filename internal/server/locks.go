package server

import "sync"

// roomLocks serializes state-changing operations per room.
type roomLocks struct {
	mu    sync.Mutex
	locks map[int]*roomLock
}

type roomLock struct {
	sync.Mutex
	refs int
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[int]*roomLock)}
}

// lock blocks until the room's lock is held and returns its release func.
func (l *roomLocks) lock(roomId int) func() {
	l.mu.Lock()
	rl, ok := l.locks[roomId]
	if !ok {
		rl = &roomLock{}
		l.locks[roomId] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.Lock()
	return func() {
		rl.Unlock()

		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, roomId)
		}
		l.mu.Unlock()
	}
}
