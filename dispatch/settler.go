// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package dispatch

import (
	"time"

	"github.com/rtask/rtask/ledger"
	"github.com/rtask/rtask/rtask"
)

// settle pays out one completed bucket and marks it paid. A nil return means
// no money moved: the bucket did not complete, the billable cap is reached,
// the worker is unknown, or the ledger refused. Refusals are not fatal; the
// result stays unpaid and the next terminal report retries.
func (d *Dispatcher) settle(task *rtask.Task, result *rtask.BucketResult, now time.Time) *ledger.Settlement {
	if result.Status != rtask.BucketCompleted || result.PayoutIssued {
		return nil
	}
	if task.ChunksPaid >= task.MaxBillableBuckets {
		return nil
	}
	if result.WorkerID == "" {
		logger.Warn("completed bucket has no worker, skipping payout",
			"task", task.ID, "bucket", result.BucketIndex)
		return nil
	}

	index := result.BucketIndex
	meta := rtask.TxMeta{TaskID: task.ID, ChunkIndex: &index}
	settlement, err := d.ledger.SettleBucket(
		task.CreatorID, result.WorkerID, task.CostPerBucket, task.PlatformFeePercent, meta)
	if err != nil {
		logger.Warn("payout deferred",
			"task", task.ID, "bucket", result.BucketIndex, "worker", result.WorkerID, "err", err)
		return nil
	}

	at := now
	result.PayoutIssued = true
	result.PayoutAt = &at
	task.ChunksPaid++
	task.BudgetSpent = task.BudgetSpent.Add(task.CostPerBucket)
	metricPayouts().Add(1)
	logger.Debug("bucket settled",
		"task", task.ID, "bucket", result.BucketIndex,
		"cost", task.CostPerBucket, "worker", result.WorkerID)
	return settlement
}
