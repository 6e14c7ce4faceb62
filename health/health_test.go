// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package health_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtask/rtask/dispatch"
	"github.com/rtask/rtask/health"
	"github.com/rtask/rtask/heartbeat"
	"github.com/rtask/rtask/ledger"
	"github.com/rtask/rtask/lvldb"
	"github.com/rtask/rtask/store"
)

func newTestNode(t *testing.T) (*store.Store, *dispatch.Dispatcher, func()) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)

	st, err := store.New(db, t.TempDir(), store.Options{})
	require.NoError(t, err)

	led := ledger.New(st, nil, ledger.Options{})
	beats := heartbeat.New(time.Hour)
	disp := dispatch.New(st, led, beats, dispatch.Options{})

	return st, disp, func() {
		disp.Close()
		beats.Close()
		db.Close()
	}
}

func TestStatusHealthy(t *testing.T) {
	st, disp, stop := newTestNode(t)
	defer stop()

	h := health.New(st, disp, 0)

	status, err := h.Status()
	require.NoError(t, err)

	assert.True(t, status.Healthy)
	assert.True(t, status.StoreReachable)
	require.NotNil(t, status.LastHousekeeping)
	assert.WithinDuration(t, time.Now(), *status.LastHousekeeping, 5*time.Second)
}

func TestStatusStaleHousekeeping(t *testing.T) {
	st, disp, stop := newTestNode(t)
	defer stop()

	h := health.New(st, disp, time.Nanosecond)
	time.Sleep(time.Millisecond)

	status, err := h.Status()
	require.NoError(t, err)

	assert.False(t, status.Healthy)
	assert.True(t, status.StoreReachable)
}

func TestStatusStoreUnreachable(t *testing.T) {
	db, err := lvldb.NewMem()
	require.NoError(t, err)

	st, err := store.New(db, t.TempDir(), store.Options{})
	require.NoError(t, err)

	led := ledger.New(st, nil, ledger.Options{})
	beats := heartbeat.New(time.Hour)
	disp := dispatch.New(st, led, beats, dispatch.Options{})
	defer disp.Close()
	defer beats.Close()

	require.NoError(t, db.Close())

	h := health.New(st, disp, 0)

	status, err := h.Status()
	require.NoError(t, err)

	assert.False(t, status.Healthy)
	assert.False(t, status.StoreReachable)
}
