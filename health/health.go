// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package health reports whether the node is fit to serve traffic.
package health

import (
	"sync"
	"time"

	"github.com/rtask/rtask/dispatch"
	"github.com/rtask/rtask/store"
)

const defaultMaxWashAge = 5 * time.Minute

type Status struct {
	Healthy          bool       `json:"healthy"`
	StoreReachable   bool       `json:"storeReachable"`
	LastHousekeeping *time.Time `json:"lastHousekeeping"`
}

// Health probes the persistence layer and the dispatcher's housekeeping
// loop. The node counts as healthy when the store answers reads and the
// loop has ticked within maxWashAge.
type Health struct {
	lock       sync.RWMutex
	store      *store.Store
	disp       *dispatch.Dispatcher
	maxWashAge time.Duration
}

func New(st *store.Store, disp *dispatch.Dispatcher, maxWashAge time.Duration) *Health {
	if maxWashAge <= 0 {
		maxWashAge = defaultMaxWashAge
	}
	return &Health{
		store:      st,
		disp:       disp,
		maxWashAge: maxWashAge,
	}
}

func (h *Health) Status() (*Status, error) {
	h.lock.RLock()
	defer h.lock.RUnlock()

	_, err := h.store.GetPlatformLedger()
	storeOK := err == nil

	var lastWash *time.Time
	washOK := false
	if h.disp != nil {
		if at := h.disp.LastWash(); !at.IsZero() {
			lastWash = &at
			washOK = time.Since(at) <= h.maxWashAge
		}
	}

	return &Status{
		Healthy:          storeOK && washOK,
		StoreReachable:   storeOK,
		LastHousekeeping: lastWash,
	}, nil
}
