// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package dispatch

import (
	"sort"
	"time"

	"github.com/rtask/rtask/ledger"
	"github.com/rtask/rtask/rtask"
)

// ItemUpdate is one item outcome reported by a worker.
type ItemUpdate struct {
	LocalIndex   int              `json:"localIndex"`
	Status       rtask.ItemStatus `json:"status"`
	InputPreview string           `json:"inputPreview,omitempty"`
	Output       string           `json:"output,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// ProgressBatch is an incremental update streamed by a worker mid-bucket.
type ProgressBatch struct {
	TaskID         string       `json:"taskId"`
	BucketIndex    int          `json:"bucketIndex"`
	WorkerID       string       `json:"workerId"`
	RangeStart     int          `json:"rangeStart"`
	ItemsProcessed int          `json:"itemsProcessed"`
	TotalItems     int          `json:"totalItems"`
	BytesUsed      int64        `json:"bytesUsed"`
	Items          []ItemUpdate `json:"items"`
	BatchOffset    int          `json:"batchOffset"`
	BatchSize      int          `json:"batchSize"`
}

// BucketReport is the worker's terminal report of one bucket.
type BucketReport struct {
	TaskID         string             `json:"taskId"`
	BucketIndex    int                `json:"bucketIndex"`
	WorkerID       string             `json:"workerId"`
	Status         rtask.BucketStatus `json:"status"`
	RangeStart     int                `json:"rangeStart"`
	RangeEnd       int                `json:"rangeEnd"`
	ItemsCount     int                `json:"itemsCount"`
	ProcessedItems int                `json:"processedItems"`
	Items          []ItemUpdate       `json:"itemResults"`
	Output         string             `json:"output,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// RecordProgress merges one progress batch into the bucket's result.
// ProcessedItems never regresses; items upsert by local index. Returns the
// merged processed count and the bucket's total.
func (d *Dispatcher) RecordProgress(pb *ProgressBatch) (processed, total int, err error) {
	unlock := d.locks.lock(pb.TaskID)
	defer unlock()

	task, err := d.loadTask(pb.TaskID)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now().UTC()
	result, err := d.store.GetResult(pb.TaskID, pb.BucketIndex)
	if err != nil {
		if !d.store.IsNotFound(err) {
			return 0, 0, err
		}
		result = &rtask.BucketResult{
			TaskID:      pb.TaskID,
			BucketIndex: pb.BucketIndex,
			RangeStart:  pb.RangeStart,
			RangeEnd:    pb.RangeStart,
			Status:      rtask.BucketProcessing,
			CreatedAt:   now,
		}
	}
	total = pb.TotalItems
	if total <= 0 {
		total = result.RangeEnd - result.RangeStart
	}
	// terminal results are settled; late batches are a no-op
	if result.Status.Terminal() {
		return result.ProcessedItems, total, nil
	}

	if pb.ItemsProcessed > result.ProcessedItems {
		result.ProcessedItems = pb.ItemsProcessed
	}
	if end := pb.RangeStart + pb.ItemsProcessed; end > result.RangeEnd {
		result.RangeEnd = end
	}
	if pb.WorkerID != "" {
		result.WorkerID = pb.WorkerID
	}
	if pb.BytesUsed > 0 {
		result.BytesUsed = capBytes(pb.BytesUsed, task.BucketConfig.MaxBucketBytes)
	}
	mergeItems(result, pb.Items, pb.RangeStart)
	result.UpdatedAt = now

	batch := d.store.NewBatch()
	if err := batch.PutResult(result); err != nil {
		return 0, 0, err
	}

	// lease bookkeeping; an expired lease is left for the sweep
	lease, err := d.store.GetAssignment(pb.TaskID, pb.BucketIndex)
	if err == nil && !lease.Expired(now) {
		lease.ProcessedCount = result.ProcessedItems
		lease.ProgressRangeEnd = result.RangeEnd
		lease.LastBatchOffset = pb.BatchOffset
		lease.LastBatchSize = pb.BatchSize
		lease.BytesUsed = result.BytesUsed
		lease.ExpiresAt = now.Add(d.opts.LeaseTTL)
		lease.UpdatedAt = now
		if err := batch.PutAssignment(lease); err != nil {
			return 0, 0, err
		}
	} else if err != nil && !d.store.IsNotFound(err) {
		return 0, 0, err
	}

	if err := batch.Write(); err != nil {
		return 0, 0, err
	}
	if total < result.ProcessedItems {
		total = result.ProcessedItems
	}
	return result.ProcessedItems, total, nil
}

// RecordBucket installs the worker's terminal report, releases the lease,
// dedups overlapping results and settles the payout. Re-sends of an already
// paid bucket are a no-op.
func (d *Dispatcher) RecordBucket(report *BucketReport) (*rtask.BucketResult, *ledger.Settlement, error) {
	unlock := d.locks.lock(report.TaskID)
	defer unlock()

	task, err := d.loadTask(report.TaskID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	result, err := d.store.GetResult(report.TaskID, report.BucketIndex)
	if err != nil {
		if !d.store.IsNotFound(err) {
			return nil, nil, err
		}
		result = &rtask.BucketResult{
			TaskID:      report.TaskID,
			BucketIndex: report.BucketIndex,
			RangeStart:  report.RangeStart,
			CreatedAt:   now,
		}
	}
	if result.PayoutIssued {
		return result, nil, nil
	}

	// install the terminal state
	result.Status = terminalStatus(report)
	if report.RangeEnd > report.RangeStart {
		result.RangeStart = report.RangeStart
		result.RangeEnd = report.RangeEnd
	}
	itemsCount := report.ItemsCount
	if itemsCount <= 0 {
		itemsCount = result.RangeEnd - result.RangeStart
	}
	if itemsCount < 0 {
		itemsCount = 0
	}
	result.ItemsCount = itemsCount
	result.ProcessedItems = itemsCount
	if result.RangeEnd < result.RangeStart+itemsCount {
		result.RangeEnd = result.RangeStart + itemsCount
	}
	if report.WorkerID != "" {
		result.WorkerID = report.WorkerID
	}
	result.Output = rtask.Truncate(report.Output, rtask.ItemOutputLimit)
	result.Error = rtask.Truncate(report.Error, rtask.ItemOutputLimit)
	mergeItems(result, report.Items, result.RangeStart)
	result.UpdatedAt = now

	batch := d.store.NewBatch()
	if err := batch.PutResult(result); err != nil {
		return nil, nil, err
	}

	// release the matching lease plus any lease over an overlapping range
	leases, err := d.store.AssignmentsByTask(report.TaskID)
	if err != nil {
		return nil, nil, err
	}
	for _, a := range leases {
		if a.BucketIndex == result.BucketIndex ||
			rtask.RangesOverlap(a.RangeStart, a.RangeEnd, result.RangeStart, result.RangeEnd) {
			if err := batch.DeleteAssignment(a.TaskID, a.BucketIndex); err != nil {
				return nil, nil, err
			}
		}
	}

	// range-based dedup of results left behind by crashed workers
	results, err := d.store.ResultsByTask(report.TaskID)
	if err != nil {
		return nil, nil, err
	}
	for _, r := range results {
		if r.BucketIndex == result.BucketIndex {
			continue
		}
		if rtask.RangesOverlap(r.RangeStart, r.RangeEnd, result.RangeStart, result.RangeEnd) {
			if err := batch.DeleteResult(r.TaskID, r.BucketIndex); err != nil {
				return nil, nil, err
			}
		}
	}
	if err := batch.Write(); err != nil {
		return nil, nil, err
	}
	metricBuckets().AddWithLabel(1, map[string]string{"status": string(result.Status)})

	settlement := d.settle(task, result, now)

	// recompute progress over the deduped results and persist the outcome
	fresh, err := d.store.ResultsByTask(report.TaskID)
	if err != nil {
		return nil, nil, err
	}
	computeProgress(task, fresh)
	completed := false
	if task.Progress >= 100 && task.Status == rtask.TaskProcessing {
		task.Status = rtask.TaskCompleted
		completed = true
	}
	task.UpdatedAt = now

	final := d.store.NewBatch()
	if err := final.PutTask(task); err != nil {
		return nil, nil, err
	}
	if settlement != nil {
		if err := final.PutResult(result); err != nil {
			return nil, nil, err
		}
	}
	if err := final.Write(); err != nil {
		return nil, nil, err
	}

	d.publishBucket(&BucketEvent{TaskID: task.ID, Result: result, Settlement: settlement})
	if completed {
		d.publishTask(&TaskEvent{Task: task, Change: TaskCompleted})
		logger.Info("task completed", "id", task.ID, "buckets", task.ProcessedBuckets)
	}
	return result, settlement, nil
}

// terminalStatus derives the stored status: failed beats completed beats
// skipped when items are reported; the explicit status decides otherwise.
func terminalStatus(report *BucketReport) rtask.BucketStatus {
	if len(report.Items) > 0 {
		anyCompleted := false
		for _, item := range report.Items {
			switch item.Status {
			case rtask.ItemFailed:
				return rtask.BucketFailed
			case rtask.ItemCompleted:
				anyCompleted = true
			}
		}
		if anyCompleted {
			return rtask.BucketCompleted
		}
		return rtask.BucketSkipped
	}
	if report.Status.Terminal() {
		return report.Status
	}
	return rtask.BucketSkipped
}

// mergeItems upserts updates into the result's item list by local index,
// keeping it sorted and bounded. Overflow truncates from the front, leaving
// the tail of the bucket visible.
func mergeItems(result *rtask.BucketResult, updates []ItemUpdate, rangeStart int) {
	if len(updates) == 0 {
		return
	}

	byLocal := make(map[int]int, len(result.ItemResults))
	for i, it := range result.ItemResults {
		byLocal[it.LocalIndex] = i
	}

	inserted := 0
	for _, u := range updates {
		item := rtask.ItemResult{
			LocalIndex:   u.LocalIndex,
			GlobalIndex:  rangeStart + u.LocalIndex,
			Status:       u.Status,
			InputPreview: rtask.Truncate(u.InputPreview, rtask.ItemPreviewLimit),
			Output:       rtask.Truncate(u.Output, rtask.ItemOutputLimit),
			Error:        rtask.Truncate(u.Error, rtask.ItemOutputLimit),
		}
		if i, ok := byLocal[u.LocalIndex]; ok {
			result.ItemResults[i] = item
		} else {
			byLocal[u.LocalIndex] = len(result.ItemResults)
			result.ItemResults = append(result.ItemResults, item)
			inserted++
		}
	}
	sort.Slice(result.ItemResults, func(i, j int) bool {
		return result.ItemResults[i].LocalIndex < result.ItemResults[j].LocalIndex
	})

	result.ItemResultsTotal += inserted
	if overflow := len(result.ItemResults) - rtask.MaxStoredItemResults; overflow > 0 {
		result.ItemResults = append(result.ItemResults[:0], result.ItemResults[overflow:]...)
		result.ItemResultsTruncated = true
	}
}

func capBytes(n, limit int64) int64 {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}
