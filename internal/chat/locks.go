// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
)

// chatLocks is a keyed mutex. Waiting for a key honours ctx; entries are
// dropped when nobody holds or waits for them.
type chatLocks struct {
	mu    sync.Mutex
	locks map[string]*chatLock
}

type chatLock struct {
	sem  chan struct{}
	refs int
}

func newChatLocks() *chatLocks {
	return &chatLocks{locks: make(map[string]*chatLock)}
}

// lock blocks until id is free or ctx ends.
func (l *chatLocks) lock(ctx context.Context, id string) (unlock func(), err error) {
	l.mu.Lock()
	cl, ok := l.locks[id]
	if !ok {
		cl = &chatLock{sem: make(chan struct{}, 1)}
		l.locks[id] = cl
	}
	cl.refs++
	l.mu.Unlock()

	select {
	case cl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(id, cl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-cl.sem
			l.release(id, cl)
		})
	}, nil
}

func (l *chatLocks) release(id string, cl *chatLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cl.refs--
	if cl.refs == 0 {
		delete(l.locks, id)
	}
}

// size returns the number of live keys.
func (l *chatLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
