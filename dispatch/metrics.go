// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package dispatch

import (
	"github.com/rtask/rtask/metrics"
)

var metricLeases = metrics.LazyLoadCounterVec("dispatch_leases_total", []string{"kind"})

var metricBuckets = metrics.LazyLoadCounterVec("dispatch_buckets_recorded_total", []string{"status"})

var metricPayouts = metrics.LazyLoadCounter("dispatch_payouts_settled_total")

var metricTasksCreated = metrics.LazyLoadCounter("dispatch_tasks_created_total")
