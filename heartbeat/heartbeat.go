// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package heartbeat tracks worker liveness. A worker counts as online while
// its last beat is within the timeout. Liveness gates task claims only;
// bucket leases carry their own TTL.
package heartbeat

import (
	"sync"
	"time"

	"github.com/rtask/rtask/co"
	"github.com/rtask/rtask/rtask"
)

// maxSweepInterval caps the background sweep period.
const maxSweepInterval = time.Minute

// Monitor keeps the last-seen time of every beating worker. Entries past
// the timeout are dropped lazily on beats and by a background sweep.
type Monitor struct {
	timeout time.Duration
	done    chan struct{}
	goes    co.Goes

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// New creates a monitor and starts its sweep loop.
func New(timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = rtask.DefaultWorkerTimeout
	}
	m := &Monitor{
		timeout: timeout,
		done:    make(chan struct{}),
		seen:    make(map[string]time.Time),
		now:     time.Now,
	}
	m.goes.Go(m.sweepLoop)
	return m
}

// Close stops the sweep loop.
func (m *Monitor) Close() {
	close(m.done)
	m.goes.Wait()
}

// Beat records a sign of life and returns the stored last-seen time.
// The clock never moves backwards for a worker.
func (m *Monitor) Beat(workerID string) time.Time {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.seen[workerID]; !ok || now.After(last) {
		m.seen[workerID] = now
	}
	m.sweepLocked(now)
	return m.seen[workerID]
}

// IsOnline reports whether the worker beat within the timeout.
func (m *Monitor) IsOnline(workerID string) bool {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	last, ok := m.seen[workerID]
	return ok && now.Sub(last) <= m.timeout
}

// LastSeen returns the worker's last beat time.
func (m *Monitor) LastSeen(workerID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, ok := m.seen[workerID]
	return last, ok
}

// Count returns the number of workers currently tracked as online.
func (m *Monitor) Count() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, last := range m.seen {
		if now.Sub(last) <= m.timeout {
			n++
		}
	}
	return n
}

func (m *Monitor) sweepLocked(now time.Time) {
	for id, last := range m.seen {
		if now.Sub(last) > m.timeout {
			delete(m.seen, id)
		}
	}
}

func (m *Monitor) sweepLoop() {
	interval := m.timeout
	if interval > maxSweepInterval {
		interval = maxSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			m.sweepLocked(m.now())
			m.mu.Unlock()
		}
	}
}
