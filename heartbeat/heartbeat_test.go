// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package heartbeat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestMonitor(t *testing.T, timeout time.Duration) (*Monitor, *time.Time) {
	m := New(timeout)
	t.Cleanup(m.Close)

	current := time.Unix(1700000000, 0)
	m.now = func() time.Time { return current }
	return m, &current
}

func TestBeatAndIsOnline(t *testing.T) {
	m, clock := newTestMonitor(t, 10*time.Minute)

	assert.False(t, m.IsOnline("w1"))

	m.Beat("w1")
	assert.True(t, m.IsOnline("w1"))
	assert.Equal(t, 1, m.Count())

	// timeout boundary still counts as online
	*clock = clock.Add(10 * time.Minute)
	assert.True(t, m.IsOnline("w1"))

	*clock = clock.Add(time.Second)
	assert.False(t, m.IsOnline("w1"))
	assert.Equal(t, 0, m.Count())
}

func TestBeatMonotone(t *testing.T) {
	m, clock := newTestMonitor(t, 10*time.Minute)

	first := m.Beat("w1")

	// a beat with a rewound clock must not regress last-seen
	*clock = clock.Add(-time.Hour)
	got := m.Beat("w1")
	assert.Equal(t, first, got)

	last, ok := m.LastSeen("w1")
	assert.True(t, ok)
	assert.Equal(t, first, last)
}

func TestLazySweepOnBeat(t *testing.T) {
	m, clock := newTestMonitor(t, time.Minute)

	m.Beat("stale")
	*clock = clock.Add(2 * time.Minute)

	// beating another worker sweeps the stale entry away
	m.Beat("fresh")
	_, ok := m.LastSeen("stale")
	assert.False(t, ok)
	_, ok = m.LastSeen("fresh")
	assert.True(t, ok)
}

func TestDefaultTimeout(t *testing.T) {
	m := New(0)
	defer m.Close()
	assert.Equal(t, 20*time.Minute, m.timeout)
}
