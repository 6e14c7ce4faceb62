// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package dispatch

import (
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rtask/rtask/planner"
	"github.com/rtask/rtask/rtask"
)

// validationError marks input errors that map to HTTP 400.
type validationError string

func (e validationError) Error() string { return string(e) }

// IsErrValidation reports whether err is a request validation error.
func IsErrValidation(err error) bool {
	_, ok := err.(validationError)
	return ok
}

// CreateParams are the inputs of task creation.
type CreateParams struct {
	CreatorID          string
	Name               string
	CapabilityRequired string

	// Items is the raw uploaded JSON array, nil for an empty task.
	Items        []byte
	CodeFilename string
	Code         io.Reader

	MaxBuckets         int
	MaxBucketBytes     int64
	CostPerBucket      decimal.Decimal
	MaxBillableBuckets int
	PlatformFeePercent int
}

// Create validates params, stores the uploaded artifacts under the new task
// id, normalises the bucket config against the largest item and persists the
// task as queued.
func (d *Dispatcher) Create(params *CreateParams) (*rtask.Task, error) {
	if params.CreatorID == "" {
		return nil, validationError("creator required")
	}
	if params.Name == "" {
		return nil, validationError("name required")
	}
	if params.Code == nil {
		return nil, validationError("code archive required")
	}
	if params.CostPerBucket.IsNegative() {
		return nil, validationError("costPerBucket must not be negative")
	}
	if params.MaxBillableBuckets < 0 {
		return nil, validationError("maxBillableBuckets must not be negative")
	}

	id := rtask.NewID()
	items, err := d.store.PutItems(id, params.Items)
	if err != nil {
		d.discardArtifacts(id)
		return nil, validationError("invalid data file: " + err.Error())
	}
	if _, err := d.store.SaveCodeArchive(id, params.CodeFilename, params.Code); err != nil {
		d.discardArtifacts(id)
		return nil, err
	}

	cfg := rtask.BucketConfig{
		MaxBuckets:     params.MaxBuckets,
		MaxBucketBytes: params.MaxBucketBytes,
	}
	if cfg.MaxBuckets < 1 {
		cfg.MaxBuckets = d.opts.DefaultMaxBuckets
	}
	if cfg.MaxBucketBytes < 1 {
		cfg.MaxBucketBytes = d.opts.DefaultBucketBytes
	}
	cfg = planner.Normalize(cfg, items.Largest)

	fee := params.PlatformFeePercent
	if fee <= 0 {
		fee = d.opts.PlatformFeePercent
	}
	cost := rtask.Round2(params.CostPerBucket)

	now := time.Now().UTC()
	task := &rtask.Task{
		ID:                 id,
		CreatorID:          params.CreatorID,
		Status:             rtask.TaskQueued,
		CapabilityRequired: params.CapabilityRequired,
		Name:               params.Name,
		DataItemsRef:       id,
		TotalItems:         items.Count(),
		BucketConfig:       cfg,

		CostPerBucket:      cost,
		MaxBillableBuckets: params.MaxBillableBuckets,
		BudgetTotal:        cost.Mul(decimal.NewFromInt(int64(params.MaxBillableBuckets))),
		BudgetSpent:        decimal.Zero,
		PlatformFeePercent: fee,

		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.store.PutTask(task); err != nil {
		d.discardArtifacts(id)
		return nil, err
	}

	metricTasksCreated().Add(1)
	d.publishTask(&TaskEvent{Task: task, Change: TaskCreated})
	logger.Info("task created", "id", id, "items", task.TotalItems, "buckets", cfg.MaxBuckets)
	return task, nil
}

// discardArtifacts drops anything stored for a task that failed to create.
func (d *Dispatcher) discardArtifacts(taskID string) {
	if err := d.store.RemoveTask(taskID); err != nil {
		logger.Warn("failed to discard artifacts", "task", taskID, "err", err)
	}
}

// Claim opts a worker into a task. Refused while revoked and for workers
// without a live heartbeat. Flips queued tasks to processing.
func (d *Dispatcher) Claim(taskID, workerID string) (*rtask.Task, error) {
	unlock := d.locks.lock(taskID)
	defer unlock()

	task, err := d.loadTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Revoked {
		return nil, errRevoked
	}
	if !d.beats.IsOnline(workerID) {
		return nil, errWorkerOffline
	}

	if !task.HasWorker(workerID) {
		task.AddWorker(workerID)
		if task.Status == rtask.TaskQueued {
			task.Status = rtask.TaskProcessing
		}
		task.UpdatedAt = time.Now().UTC()
		if err := d.store.PutTask(task); err != nil {
			return nil, err
		}
		d.publishTask(&TaskEvent{Task: task, Change: TaskClaimed})
	}
	return d.withProgress(task)
}

// Drop opts a worker out and deletes its leases.
func (d *Dispatcher) Drop(taskID, workerID string) (*rtask.Task, error) {
	unlock := d.locks.lock(taskID)
	defer unlock()

	task, err := d.loadTask(taskID)
	if err != nil {
		return nil, err
	}

	task.RemoveWorker(workerID)
	task.UpdatedAt = time.Now().UTC()

	batch := d.store.NewBatch()
	if err := batch.PutTask(task); err != nil {
		return nil, err
	}
	leases, err := d.store.AssignmentsByTask(taskID)
	if err != nil {
		return nil, err
	}
	for _, a := range leases {
		if a.WorkerID == workerID {
			if err := batch.DeleteAssignment(a.TaskID, a.BucketIndex); err != nil {
				return nil, err
			}
		}
	}
	if err := batch.Write(); err != nil {
		return nil, err
	}

	d.publishTask(&TaskEvent{Task: task, Change: TaskDropped})
	return d.withProgress(task)
}

// Revoke pauses claims: clears every worker and lease. Results remain.
// Creator only.
func (d *Dispatcher) Revoke(taskID, requesterID string) (*rtask.Task, error) {
	unlock := d.locks.lock(taskID)
	defer unlock()

	task, err := d.loadTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.CreatorID != requesterID {
		return nil, errNotOwner
	}

	task.Revoked = true
	task.AssignedWorkers = nil
	task.UpdatedAt = time.Now().UTC()

	batch := d.store.NewBatch()
	if err := batch.PutTask(task); err != nil {
		return nil, err
	}
	leases, err := d.store.AssignmentsByTask(taskID)
	if err != nil {
		return nil, err
	}
	for _, a := range leases {
		if err := batch.DeleteAssignment(a.TaskID, a.BucketIndex); err != nil {
			return nil, err
		}
	}
	if err := batch.Write(); err != nil {
		return nil, err
	}

	d.publishTask(&TaskEvent{Task: task, Change: TaskRevoked})
	return d.withProgress(task)
}

// Reinvoke re-enables claims after a revoke. Workers must re-claim.
// Creator only.
func (d *Dispatcher) Reinvoke(taskID, requesterID string) (*rtask.Task, error) {
	unlock := d.locks.lock(taskID)
	defer unlock()

	task, err := d.loadTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.CreatorID != requesterID {
		return nil, errNotOwner
	}

	task.Revoked = false
	task.UpdatedAt = time.Now().UTC()
	if err := d.store.PutTask(task); err != nil {
		return nil, err
	}

	d.publishTask(&TaskEvent{Task: task, Change: TaskReinvoked})
	return d.withProgress(task)
}

// Delete removes the task and cascades to results, leases and on-disk
// artifacts. Creator only.
func (d *Dispatcher) Delete(taskID, requesterID string) error {
	unlock := d.locks.lock(taskID)
	defer unlock()

	task, err := d.loadTask(taskID)
	if err != nil {
		return err
	}
	if task.CreatorID != requesterID {
		return errNotOwner
	}

	if err := d.store.RemoveTask(taskID); err != nil {
		return err
	}
	d.publishTask(&TaskEvent{Task: task, Change: TaskDeleted})
	return nil
}

// Get returns the task with derived progress fields.
func (d *Dispatcher) Get(taskID string) (*rtask.Task, error) {
	task, err := d.loadTask(taskID)
	if err != nil {
		return nil, err
	}
	return d.withProgress(task)
}

// List returns tasks newest first, optionally filtered by status.
func (d *Dispatcher) List(status rtask.TaskStatus) ([]*rtask.Task, error) {
	var tasks []*rtask.Task
	if err := d.store.IterateTasks(func(t *rtask.Task) bool {
		if status == "" || t.Status == status {
			tasks = append(tasks, t)
		}
		return true
	}); err != nil {
		return nil, err
	}

	for _, t := range tasks {
		if _, err := d.withProgress(t); err != nil {
			return nil, err
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// Results returns the stored results and live leases of a task.
func (d *Dispatcher) Results(taskID string) ([]*rtask.BucketResult, []*rtask.BucketAssignment, error) {
	if _, err := d.loadTask(taskID); err != nil {
		return nil, nil, err
	}
	results, err := d.store.ResultsByTask(taskID)
	if err != nil {
		return nil, nil, err
	}
	leases, err := d.store.AssignmentsByTask(taskID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	live := leases[:0]
	for _, a := range leases {
		if !a.Expired(now) {
			live = append(live, a)
		}
	}
	return results, live, nil
}

// withProgress fills the task's derived fields from its results.
func (d *Dispatcher) withProgress(task *rtask.Task) (*rtask.Task, error) {
	results, err := d.store.ResultsByTask(task.ID)
	if err != nil {
		return nil, err
	}
	computeProgress(task, results)
	return task, nil
}

// computeProgress derives processedBuckets, processedItems and progress.
// Derived on read; the persisted copies are advisory.
func computeProgress(task *rtask.Task, results []*rtask.BucketResult) {
	processedItems, processedBuckets := 0, 0
	for _, r := range results {
		processedItems += r.ProcessedItems
		if r.Status.Terminal() {
			processedBuckets++
		}
	}
	task.ProcessedBuckets = processedBuckets
	task.ProcessedItems = processedItems

	if task.TotalItems > 0 {
		p := 100 * float64(processedItems) / float64(task.TotalItems)
		if p > 100 {
			p = 100
		}
		task.Progress = p
	} else {
		task.Progress = 0
	}
}
