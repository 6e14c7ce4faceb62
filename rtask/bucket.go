// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package rtask

import "time"

// BucketStatus is the state of one bucket of work.
type BucketStatus string

// All bucket statuses.
const (
	BucketProcessing BucketStatus = "processing"
	BucketCompleted  BucketStatus = "completed"
	BucketFailed     BucketStatus = "failed"
	BucketSkipped    BucketStatus = "skipped"
)

// Terminal reports whether the status ends the bucket's in-flight life.
func (s BucketStatus) Terminal() bool {
	return s == BucketCompleted || s == BucketFailed || s == BucketSkipped
}

// ItemStatus is the outcome of a single item.
type ItemStatus string

// All item statuses.
const (
	ItemCompleted ItemStatus = "completed"
	ItemFailed    ItemStatus = "failed"
	ItemSkipped   ItemStatus = "skipped"
)

// ItemResult records one item's outcome within a bucket.
// GlobalIndex = bucket rangeStart + LocalIndex.
type ItemResult struct {
	LocalIndex   int        `json:"localIndex"`
	GlobalIndex  int        `json:"globalIndex"`
	Status       ItemStatus `json:"status"`
	InputPreview string     `json:"inputPreview,omitempty"`
	Output       string     `json:"output,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// BucketResult is the merged outcome of one bucket, keyed by (taskId, bucketIndex).
// Once PayoutIssued is set the record is immutable except for display fields.
type BucketResult struct {
	TaskID      string       `json:"taskId"`
	BucketIndex int          `json:"bucketIndex"`
	RangeStart  int          `json:"rangeStart"`
	RangeEnd    int          `json:"rangeEnd"`
	ItemsCount  int          `json:"itemsCount"`
	Status      BucketStatus `json:"status"`

	ProcessedItems int    `json:"processedItems"`
	BytesUsed      int64  `json:"bytesUsed"`
	WorkerID       string `json:"workerId"`

	ItemResults          []ItemResult `json:"itemResults"`
	ItemResultsTotal     int          `json:"itemResultsTotal"`
	ItemResultsTruncated bool         `json:"itemResultsTruncated"`

	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`

	PayoutIssued bool       `json:"payoutIssued"`
	PayoutAt     *time.Time `json:"payoutAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BucketAssignment is an exclusive lease of one bucket to one worker.
// It exists only while the bucket is in flight.
type BucketAssignment struct {
	TaskID      string    `json:"taskId"`
	BucketIndex int       `json:"bucketIndex"`
	WorkerID    string    `json:"workerId"`
	AssignedAt  time.Time `json:"assignedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	RangeStart  int       `json:"rangeStart"`
	RangeEnd    int       `json:"rangeEnd"`

	ProcessedCount   int   `json:"processedCount"`
	ProgressRangeEnd int   `json:"progressRangeEnd"`
	BytesUsed        int64 `json:"bytesUsed"`
	LastBatchOffset  int   `json:"lastBatchOffset"`
	LastBatchSize    int   `json:"lastBatchSize"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Expired reports whether the lease has passed its TTL at the given time.
func (a *BucketAssignment) Expired(now time.Time) bool {
	return a.ExpiresAt.Before(now)
}

// RangesOverlap reports whether the half-open ranges [s1,e1) and [s2,e2)
// intersect. Empty ranges intersect nothing.
func RangesOverlap(s1, e1, s2, e2 int) bool {
	return s1 < e1 && s2 < e2 && s1 < e2 && s2 < e1
}
