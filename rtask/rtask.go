// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package rtask holds the shared domain types and constants of the task market.
package rtask

import (
	"time"

	"github.com/pborman/uuid"
)

// Constants of the dispatch engine.
const (
	// DefaultMaxBuckets the default upper bound of buckets planned per task.
	DefaultMaxBuckets = 10
	// DefaultBucketBytes the default byte capacity of a single bucket.
	DefaultBucketBytes = 1024 * 1024

	// DefaultLeaseTTL how long a bucket lease stays valid without renewal.
	DefaultLeaseTTL = 20 * time.Minute
	// DefaultWorkerTimeout how long since the last heartbeat a worker counts as online.
	DefaultWorkerTimeout = 20 * time.Minute

	// DefaultPlatformFeePercent the platform's cut of each bucket payout.
	DefaultPlatformFeePercent = 10

	// DefaultDevWallet the starting balance of auto-created dev accounts.
	DefaultDevWallet = 100

	// MaxStoredItemResults caps the per-bucket item result list.
	MaxStoredItemResults = 200
	// ItemPreviewLimit caps stored item input previews, in bytes.
	ItemPreviewLimit = 240
	// ItemOutputLimit caps stored item outputs and errors, in bytes.
	ItemOutputLimit = 2048

	// PlatformUserID the synthetic user id carried by platform-fee transactions.
	PlatformUserID = "platform"
)

// Session carriers recognized by the API surface.
const (
	SessionCookie = "rt_session"
	SessionHeader = "x-session-id"
)

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewRandom().String()
}
