// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package dispatch

import "sync"

// taskLocks hands out one mutex per task id, dropping entries once the
// last holder releases. Writers serialise per task; distinct tasks never
// contend.
type taskLocks struct {
	mu    sync.Mutex
	locks map[string]*taskLock
}

type taskLock struct {
	sync.Mutex
	refs int
}

func newTaskLocks() *taskLocks {
	return &taskLocks{locks: make(map[string]*taskLock)}
}

// lock blocks until the task's mutex is held and returns the release func.
func (tl *taskLocks) lock(taskID string) func() {
	tl.mu.Lock()
	l := tl.locks[taskID]
	if l == nil {
		l = new(taskLock)
		tl.locks[taskID] = l
	}
	l.refs++
	tl.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		tl.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(tl.locks, taskID)
		}
		tl.mu.Unlock()
	}
}
