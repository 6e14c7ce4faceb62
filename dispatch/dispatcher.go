// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package dispatch is the engine of the task market: it owns task lifecycle,
// bucket allocation, progress aggregation and payout settlement. All writes
// to one task serialise on that task's lock.
package dispatch

import (
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/event"

	"github.com/rtask/rtask/co"
	"github.com/rtask/rtask/heartbeat"
	"github.com/rtask/rtask/ledger"
	"github.com/rtask/rtask/log"
	"github.com/rtask/rtask/rtask"
	"github.com/rtask/rtask/store"
)

var logger = log.WithContext("pkg", "dispatch")

// Options configure the dispatcher.
type Options struct {
	LeaseTTL            time.Duration
	DefaultMaxBuckets   int
	DefaultBucketBytes  int64
	PlatformFeePercent  int
	DisableBudgetChecks bool

	// HousekeepInterval is the period of the background expired-lease wash.
	HousekeepInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = rtask.DefaultLeaseTTL
	}
	if o.DefaultMaxBuckets < 1 {
		o.DefaultMaxBuckets = rtask.DefaultMaxBuckets
	}
	if o.DefaultBucketBytes < 1 {
		o.DefaultBucketBytes = rtask.DefaultBucketBytes
	}
	if o.PlatformFeePercent <= 0 {
		o.PlatformFeePercent = rtask.DefaultPlatformFeePercent
	}
	if o.HousekeepInterval <= 0 {
		o.HousekeepInterval = time.Minute
	}
	return o
}

// Dispatcher coordinates the market engine over the shared store.
type Dispatcher struct {
	store  *store.Store
	ledger *ledger.Ledger
	beats  *heartbeat.Monitor
	opts   Options

	locks *taskLocks
	done  chan struct{}
	goes  co.Goes
	scope event.SubscriptionScope

	taskFeed   event.Feed
	bucketFeed event.Feed

	lastWash atomic.Int64 // unix nano of the last housekeeping pass
}

// New creates a dispatcher and starts its housekeeping loop.
func New(s *store.Store, l *ledger.Ledger, beats *heartbeat.Monitor, opts Options) *Dispatcher {
	d := &Dispatcher{
		store:  s,
		ledger: l,
		beats:  beats,
		opts:   opts.withDefaults(),
		locks:  newTaskLocks(),
		done:   make(chan struct{}),
	}
	d.lastWash.Store(time.Now().UnixNano())
	d.goes.Go(d.houseKeeping)
	return d
}

// Close stops the housekeeping loop and closes all event subscriptions.
func (d *Dispatcher) Close() {
	close(d.done)
	d.scope.Close()
	d.goes.Wait()
}

// LeaseTTL returns the configured bucket lease lifetime.
func (d *Dispatcher) LeaseTTL() time.Duration { return d.opts.LeaseTTL }

// LastWash returns the completion time of the last housekeeping pass.
func (d *Dispatcher) LastWash() time.Time {
	return time.Unix(0, d.lastWash.Load())
}

// SubscribeTaskEvents registers a task lifecycle event channel.
func (d *Dispatcher) SubscribeTaskEvents(ch chan *TaskEvent) event.Subscription {
	return d.scope.Track(d.taskFeed.Subscribe(ch))
}

// SubscribeBucketEvents registers a terminal-bucket event channel.
func (d *Dispatcher) SubscribeBucketEvents(ch chan *BucketEvent) event.Subscription {
	return d.scope.Track(d.bucketFeed.Subscribe(ch))
}

func (d *Dispatcher) publishTask(ev *TaskEvent) {
	d.goes.Go(func() { d.taskFeed.Send(ev) })
}

func (d *Dispatcher) publishBucket(ev *BucketEvent) {
	d.goes.Go(func() { d.bucketFeed.Send(ev) })
}

func (d *Dispatcher) houseKeeping() {
	ticker := time.NewTicker(d.opts.HousekeepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			d.washTasks()
		}
	}
}

// washTasks sweeps expired leases of every in-flight task. Correctness does
// not depend on it; lazy sweeps on the worker paths already reclaim ranges.
// It only bounds how long an abandoned range stays unavailable.
func (d *Dispatcher) washTasks() {
	startTime := mclock.Now()

	var ids []string
	if err := d.store.IterateTasks(func(t *rtask.Task) bool {
		if t.Status == rtask.TaskProcessing {
			ids = append(ids, t.ID)
		}
		return true
	}); err != nil {
		logger.Warn("housekeeping iterate failed", "err", err)
		return
	}

	swept := 0
	for _, id := range ids {
		select {
		case <-d.done:
			return
		default:
		}
		if n, err := d.SweepExpired(id); err != nil {
			logger.Warn("housekeeping sweep failed", "task", id, "err", err)
		} else {
			swept += n
		}
	}
	d.lastWash.Store(time.Now().UnixNano())

	logger.Debug("wash done",
		"tasks", len(ids),
		"swept", swept,
		"elapsed", common.PrettyDuration(mclock.Now()-startTime))
}

// loadTask fetches one task, mapping store misses to errNotFound.
func (d *Dispatcher) loadTask(taskID string) (*rtask.Task, error) {
	task, err := d.store.GetTask(taskID)
	if err != nil {
		if d.store.IsNotFound(err) {
			return nil, errNotFound
		}
		return nil, err
	}
	return task, nil
}
