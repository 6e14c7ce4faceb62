// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package rtask

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

// All task statuses.
const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is sticky.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// BucketConfig bounds the planner's partition of a task's items.
// MaxBucketBytes may be enlarged (never shrunk) by normalisation so that
// the largest single item always fits.
type BucketConfig struct {
	MaxBuckets     int   `json:"maxBuckets"`
	MaxBucketBytes int64 `json:"maxBucketBytes"`
}

// Task is the unit of work submitted by a customer.
//
// ProcessedBuckets, ProcessedItems and Progress are derived from the bucket
// results on read. The persisted copies are advisory only.
type Task struct {
	ID                 string       `json:"id"`
	CreatorID          string       `json:"creatorId"`
	Status             TaskStatus   `json:"status"`
	CapabilityRequired string       `json:"capabilityRequired,omitempty"`
	Name               string       `json:"name"`
	DataItemsRef       string       `json:"dataItemsRef"`
	TotalItems         int          `json:"totalItems"`
	BucketConfig       BucketConfig `json:"bucketConfig"`
	NextBucketIndex    int          `json:"nextBucketIndex"`
	AssignedWorkers    []string     `json:"assignedWorkers"`
	Revoked            bool         `json:"revoked"`

	CostPerBucket      decimal.Decimal `json:"costPerBucket"`
	MaxBillableBuckets int             `json:"maxBillableBuckets"`
	BudgetTotal        decimal.Decimal `json:"budgetTotal"`
	ChunksPaid         int             `json:"chunksPaid"`
	BudgetSpent        decimal.Decimal `json:"budgetSpent"`
	PlatformFeePercent int             `json:"platformFeePercent"`

	ProcessedBuckets int     `json:"processedBuckets"`
	ProcessedItems   int     `json:"processedItems"`
	Progress         float64 `json:"progress"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasWorker reports whether workerID has claimed the task.
func (t *Task) HasWorker(workerID string) bool {
	for _, w := range t.AssignedWorkers {
		if w == workerID {
			return true
		}
	}
	return false
}

// AddWorker adds workerID to the assigned set. No-op if already present.
func (t *Task) AddWorker(workerID string) {
	if !t.HasWorker(workerID) {
		t.AssignedWorkers = append(t.AssignedWorkers, workerID)
	}
}

// RemoveWorker removes workerID from the assigned set.
func (t *Task) RemoveWorker(workerID string) {
	for i, w := range t.AssignedWorkers {
		if w == workerID {
			t.AssignedWorkers = append(t.AssignedWorkers[:i], t.AssignedWorkers[i+1:]...)
			return
		}
	}
}
