// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package dispatch

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/rtask/rtask/planner"
	"github.com/rtask/rtask/rtask"
)

// Bucket is one granted lease with its item payload.
type Bucket struct {
	BucketIndex int
	RangeStart  int
	RangeEnd    int
	BucketBytes int64
	Items       []json.RawMessage
	Resume      bool
}

// NextBucket grants or resumes a bucket lease for the worker. The gate
// order is fixed: unknown task, revoked, not assigned, resumable lease,
// budget, planner. Per (task, worker) at most one lease is active; a repeat
// call resumes it with the original range instead of issuing a new one.
func (d *Dispatcher) NextBucket(taskID, workerID string) (*Bucket, error) {
	unlock := d.locks.lock(taskID)
	defer unlock()

	task, err := d.loadTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Revoked {
		return nil, errRevoked
	}
	if !task.HasWorker(workerID) {
		return nil, errNotAssigned
	}

	now := time.Now().UTC()
	leases, err := d.store.AssignmentsByTask(taskID)
	if err != nil {
		return nil, err
	}
	results, err := d.store.ResultsByTask(taskID)
	if err != nil {
		return nil, err
	}
	terminal := make(map[int]bool, len(results))
	for _, r := range results {
		if r.Status.Terminal() {
			terminal[r.BucketIndex] = true
		}
	}

	batch := d.store.NewBatch()
	swept := 0

	// lazy sweep of expired leases
	var active []*rtask.BucketAssignment
	for _, a := range leases {
		if a.Expired(now) {
			if err := batch.DeleteAssignment(a.TaskID, a.BucketIndex); err != nil {
				return nil, err
			}
			swept++
		} else {
			active = append(active, a)
		}
	}

	// flush commits pending lease deletions before a deny return, so
	// cleanups stick even when no bucket is granted.
	flush := func() {
		if batch.Len() == 0 {
			return
		}
		if err := batch.Write(); err != nil {
			logger.Warn("lease sweep flush failed", "task", taskID, "err", err)
		}
	}
	countSwept := func() {
		if swept > 0 {
			metricLeases().AddWithLabel(int64(swept), map[string]string{"kind": "expired"})
		}
	}

	// resume the worker's own lease if its bucket is still in flight
	var mine []*rtask.BucketAssignment
	for _, a := range active {
		if a.WorkerID == workerID && !terminal[a.BucketIndex] {
			mine = append(mine, a)
		}
	}
	if len(mine) > 0 {
		sort.Slice(mine, func(i, j int) bool {
			return mine[i].AssignedAt.Before(mine[j].AssignedAt)
		})
		keep := mine[0]
		// duplicates lose to the oldest lease
		for _, extra := range mine[1:] {
			if err := batch.DeleteAssignment(extra.TaskID, extra.BucketIndex); err != nil {
				return nil, err
			}
		}
		keep.ExpiresAt = now.Add(d.opts.LeaseTTL)
		keep.UpdatedAt = now
		if err := batch.PutAssignment(keep); err != nil {
			return nil, err
		}
		if err := batch.Write(); err != nil {
			return nil, err
		}
		countSwept()

		items, err := d.store.LoadItems(taskID)
		if err != nil {
			return nil, err
		}
		metricLeases().AddWithLabel(1, map[string]string{"kind": "resumed"})
		return &Bucket{
			BucketIndex: keep.BucketIndex,
			RangeStart:  keep.RangeStart,
			RangeEnd:    keep.RangeEnd,
			BucketBytes: keep.BytesUsed,
			Items:       items.Slice(keep.RangeStart, keep.RangeEnd),
			Resume:      true,
		}, nil
	}

	// budget gates
	if !d.opts.DisableBudgetChecks {
		if task.ChunksPaid+len(active) >= task.MaxBillableBuckets {
			flush()
			countSwept()
			return nil, errBudgetExhausted
		}
		customer, err := d.store.GetUser(task.CreatorID)
		if err != nil {
			if d.store.IsNotFound(err) {
				flush()
				countSwept()
				return nil, errInsufficientFunds
			}
			return nil, err
		}
		if customer.WalletBalance.LessThan(task.CostPerBucket) {
			flush()
			countSwept()
			return nil, errInsufficientFunds
		}
	}

	// plan the next range over what is already finished or leased
	items, err := d.store.LoadItems(taskID)
	if err != nil {
		return nil, err
	}
	covered := make([]planner.Range, 0, len(results)+len(active))
	for _, r := range results {
		if r.Status.Terminal() {
			covered = append(covered, planner.Range{Start: r.RangeStart, End: r.RangeEnd})
		}
	}
	for _, a := range active {
		covered = append(covered, planner.Range{Start: a.RangeStart, End: a.RangeEnd})
	}
	cfg := planner.Normalize(task.BucketConfig, items.Largest)
	rng, bytesUsed, ok := planner.Next(items.Sizes, cfg, covered)
	if !ok {
		flush()
		countSwept()
		return nil, errNoBucket
	}

	// allocate
	index := task.NextBucketIndex
	task.NextBucketIndex++
	if task.Status == rtask.TaskQueued {
		task.Status = rtask.TaskProcessing
	}
	task.UpdatedAt = now

	lease := &rtask.BucketAssignment{
		TaskID:      taskID,
		BucketIndex: index,
		WorkerID:    workerID,
		AssignedAt:  now,
		ExpiresAt:   now.Add(d.opts.LeaseTTL),
		RangeStart:  rng.Start,
		RangeEnd:    rng.End,
		BytesUsed:   bytesUsed,
		UpdatedAt:   now,
	}
	if err := batch.PutAssignment(lease); err != nil {
		return nil, err
	}
	if err := batch.PutTask(task); err != nil {
		return nil, err
	}
	if err := batch.Write(); err != nil {
		return nil, err
	}
	countSwept()

	metricLeases().AddWithLabel(1, map[string]string{"kind": "granted"})
	logger.Debug("lease granted", "task", taskID, "worker", workerID, "chunk", index, "range", rng)
	return &Bucket{
		BucketIndex: index,
		RangeStart:  rng.Start,
		RangeEnd:    rng.End,
		BucketBytes: bytesUsed,
		Items:       items.Slice(rng.Start, rng.End),
	}, nil
}

// SweepExpired deletes the task's expired leases and returns how many went.
func (d *Dispatcher) SweepExpired(taskID string) (int, error) {
	unlock := d.locks.lock(taskID)
	defer unlock()
	return d.sweepLocked(taskID, time.Now().UTC())
}

func (d *Dispatcher) sweepLocked(taskID string, now time.Time) (int, error) {
	leases, err := d.store.AssignmentsByTask(taskID)
	if err != nil {
		return 0, err
	}

	batch := d.store.NewBatch()
	n := 0
	for _, a := range leases {
		if a.Expired(now) {
			if err := batch.DeleteAssignment(a.TaskID, a.BucketIndex); err != nil {
				return 0, err
			}
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := batch.Write(); err != nil {
		return 0, err
	}
	metricLeases().AddWithLabel(int64(n), map[string]string{"kind": "expired"})
	return n, nil
}
