// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package dispatch

import (
	"github.com/rtask/rtask/ledger"
	"github.com/rtask/rtask/rtask"
)

// Task change kinds published on the task feed.
const (
	TaskCreated   = "created"
	TaskClaimed   = "claimed"
	TaskDropped   = "dropped"
	TaskRevoked   = "revoked"
	TaskReinvoked = "reinvoked"
	TaskCompleted = "completed"
	TaskDeleted   = "deleted"
)

// TaskEvent announces a task lifecycle change.
type TaskEvent struct {
	Task   *rtask.Task
	Change string
}

// BucketEvent announces a terminal bucket result. Settlement is nil when no
// payout was issued.
type BucketEvent struct {
	TaskID     string
	Result     *rtask.BucketResult
	Settlement *ledger.Settlement
}
