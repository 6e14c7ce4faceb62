// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package planner computes the partition of a task's input items into a
// bounded set of size-limited contiguous buckets.
//
// The planner is stateless. Callers feed it the serialised item sizes, the
// task's bucket config and the set of ranges already finished or leased, and
// get back the next free bucket. Config normalisation guarantees forward
// progress even when a single item exceeds the configured byte capacity.
package planner

import "github.com/rtask/rtask/rtask"

// Range is a half-open [Start, End) span of item indexes.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of items in the range.
func (r Range) Len() int { return r.End - r.Start }

// Contains reports whether index i falls inside the range.
func (r Range) Contains(i int) bool { return i >= r.Start && i < r.End }

// Overlaps reports whether two ranges intersect.
func (r Range) Overlaps(o Range) bool { return r.Start < o.End && o.Start < r.End }

// Normalize grows cfg until the largest single item fits into one bucket.
// While it does not fit, the bucket count is halved (floor, min 1) and the
// byte capacity doubled; if capacity still falls short it is set to twice
// the item size. MaxBuckets is never raised and MaxBucketBytes never lowered.
func Normalize(cfg rtask.BucketConfig, largestItem int64) rtask.BucketConfig {
	if cfg.MaxBuckets < 1 {
		cfg.MaxBuckets = 1
	}
	if cfg.MaxBucketBytes < 1 {
		cfg.MaxBucketBytes = 1
	}

	for largestItem > cfg.MaxBucketBytes && cfg.MaxBuckets > 1 {
		cfg.MaxBuckets /= 2
		cfg.MaxBucketBytes *= 2
	}
	if largestItem > cfg.MaxBucketBytes {
		cfg.MaxBucketBytes = 2 * largestItem
	}
	return cfg
}

// Next selects the next bucket to hand out, or ok=false when every item is
// covered. The bucket starts at the smallest uncovered index and extends while
// the next item is uncovered, the accumulated bytes stay within the capacity
// and the item quota is not exceeded. A bucket always holds at least one item.
//
// The quota spreads items evenly over the configured bucket count, so small
// inputs still split into up to MaxBuckets pieces instead of one big bucket.
// cfg must be normalized against the largest item first.
func Next(sizes []int64, cfg rtask.BucketConfig, covered []Range) (r Range, bytesUsed int64, ok bool) {
	n := len(sizes)

	start := -1
	for i := 0; i < n; i++ {
		if !inAny(covered, i) {
			start = i
			break
		}
	}
	if start < 0 {
		return Range{}, 0, false
	}

	quota := itemQuota(n, cfg.MaxBuckets)

	end := start
	for end < n && end-start < quota && !inAny(covered, end) {
		if end > start && bytesUsed+sizes[end] > cfg.MaxBucketBytes {
			break
		}
		bytesUsed += sizes[end]
		end++
	}
	return Range{start, end}, bytesUsed, true
}

// itemQuota is the even-spread upper bound of items per bucket.
func itemQuota(totalItems, maxBuckets int) int {
	if maxBuckets < 1 {
		maxBuckets = 1
	}
	quota := (totalItems + maxBuckets - 1) / maxBuckets
	if quota < 1 {
		quota = 1
	}
	return quota
}

func inAny(covered []Range, i int) bool {
	for _, r := range covered {
		if r.Contains(i) {
			return true
		}
	}
	return false
}
