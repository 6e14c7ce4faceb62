// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package planner

import (
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtask/rtask/rtask"
)

const mib = 1024 * 1024

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		cfg         rtask.BucketConfig
		largestItem int64
		want        rtask.BucketConfig
	}{
		{"fits already", rtask.BucketConfig{MaxBuckets: 10, MaxBucketBytes: mib}, 100, rtask.BucketConfig{MaxBuckets: 10, MaxBucketBytes: mib}},
		{"serialised 4MiB item", rtask.BucketConfig{MaxBuckets: 8, MaxBucketBytes: mib}, 4*mib + 2, rtask.BucketConfig{MaxBuckets: 1, MaxBucketBytes: 8 * mib}},
		{"single bucket doubles capacity", rtask.BucketConfig{MaxBuckets: 1, MaxBucketBytes: 100}, 250, rtask.BucketConfig{MaxBuckets: 1, MaxBucketBytes: 500}},
		{"one halving enough", rtask.BucketConfig{MaxBuckets: 4, MaxBucketBytes: 100}, 150, rtask.BucketConfig{MaxBuckets: 2, MaxBucketBytes: 200}},
		{"zero config clamped", rtask.BucketConfig{MaxBuckets: 0, MaxBucketBytes: 0}, 5, rtask.BucketConfig{MaxBuckets: 1, MaxBucketBytes: 10}},
		{"exact fit keeps config", rtask.BucketConfig{MaxBuckets: 8, MaxBucketBytes: mib}, mib, rtask.BucketConfig{MaxBuckets: 8, MaxBucketBytes: mib}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.cfg, tt.largestItem)
			assert.Equal(t, tt.want, got)

			// monotone: never more buckets, never less capacity
			if tt.cfg.MaxBuckets >= 1 {
				assert.LessOrEqual(t, got.MaxBuckets, tt.cfg.MaxBuckets)
			}
			assert.GreaterOrEqual(t, got.MaxBucketBytes, tt.cfg.MaxBucketBytes)
			assert.LessOrEqual(t, tt.largestItem, got.MaxBucketBytes)
		})
	}
}

func TestNext(t *testing.T) {
	ones := func(n int) []int64 {
		s := make([]int64, n)
		for i := range s {
			s[i] = 1
		}
		return s
	}

	t.Run("no items", func(t *testing.T) {
		_, _, ok := Next(nil, rtask.BucketConfig{MaxBuckets: 10, MaxBucketBytes: mib}, nil)
		assert.False(t, ok)
	})

	t.Run("all covered", func(t *testing.T) {
		_, _, ok := Next(ones(4), rtask.BucketConfig{MaxBuckets: 10, MaxBucketBytes: mib}, []Range{{0, 4}})
		assert.False(t, ok)
	})

	t.Run("even spread quota", func(t *testing.T) {
		sizes := ones(10)
		cfg := rtask.BucketConfig{MaxBuckets: 5, MaxBucketBytes: mib}

		var covered []Range
		for want := 0; want < 10; want += 2 {
			r, bytesUsed, ok := Next(sizes, cfg, covered)
			require.True(t, ok)
			assert.Equal(t, Range{want, want + 2}, r)
			assert.Equal(t, int64(2), bytesUsed)
			covered = append(covered, r)
		}
		_, _, ok := Next(sizes, cfg, covered)
		assert.False(t, ok)
	})

	t.Run("byte capacity splits early", func(t *testing.T) {
		sizes := []int64{400, 400, 400}
		cfg := rtask.BucketConfig{MaxBuckets: 1, MaxBucketBytes: 1000}

		r, bytesUsed, ok := Next(sizes, cfg, nil)
		require.True(t, ok)
		assert.Equal(t, Range{0, 2}, r)
		assert.Equal(t, int64(800), bytesUsed)

		r, bytesUsed, ok = Next(sizes, cfg, []Range{r})
		require.True(t, ok)
		assert.Equal(t, Range{2, 3}, r)
		assert.Equal(t, int64(400), bytesUsed)
	})

	t.Run("fills holes between covered ranges", func(t *testing.T) {
		sizes := ones(6)
		cfg := rtask.BucketConfig{MaxBuckets: 1, MaxBucketBytes: mib}
		covered := []Range{{0, 2}, {3, 5}}

		r, _, ok := Next(sizes, cfg, covered)
		require.True(t, ok)
		assert.Equal(t, Range{2, 3}, r)

		r, _, ok = Next(sizes, cfg, append(covered, r))
		require.True(t, ok)
		assert.Equal(t, Range{5, 6}, r)
	})

	t.Run("first item always included", func(t *testing.T) {
		// second call grabs the item that alone busts the cap; a bucket
		// never comes back empty
		sizes := []int64{10, 500, 10}
		cfg := rtask.BucketConfig{MaxBuckets: 1, MaxBucketBytes: 100}

		r, bytesUsed, ok := Next(sizes, cfg, nil)
		require.True(t, ok)
		assert.Equal(t, Range{0, 1}, r)
		assert.Equal(t, int64(10), bytesUsed)

		r, bytesUsed, ok = Next(sizes, cfg, []Range{{0, 1}})
		require.True(t, ok)
		assert.Equal(t, Range{1, 2}, r)
		assert.Equal(t, int64(500), bytesUsed)
	})
}

// Every partition the planner produces must cover each item exactly once,
// stay within the normalized byte capacity, and terminate.
func TestPartitionProperties(t *testing.T) {
	f := fuzz.NewWithSeed(1827)

	for round := 0; round < 200; round++ {
		var raw []uint16
		f.NumElements(1, 40).Fuzz(&raw)

		sizes := make([]int64, len(raw))
		var largest int64
		for i, v := range raw {
			sizes[i] = int64(v%2000) + 1
			if sizes[i] > largest {
				largest = sizes[i]
			}
		}

		var knobs struct{ Buckets, Bytes uint16 }
		f.Fuzz(&knobs)
		cfg := Normalize(rtask.BucketConfig{
			MaxBuckets:     int(knobs.Buckets % 12),
			MaxBucketBytes: int64(knobs.Bytes%4096) + 1,
		}, largest)

		seen := make([]int, len(sizes))
		var covered []Range
		for iter := 0; ; iter++ {
			require.LessOrEqual(t, iter, len(sizes), "planner must terminate")

			r, bytesUsed, ok := Next(sizes, cfg, covered)
			if !ok {
				break
			}
			require.Greater(t, r.End, r.Start, "bucket must hold at least one item")
			require.LessOrEqual(t, bytesUsed, cfg.MaxBucketBytes)

			var sum int64
			for i := r.Start; i < r.End; i++ {
				seen[i]++
				sum += sizes[i]
			}
			require.Equal(t, sum, bytesUsed)
			covered = append(covered, r)
		}

		for i, n := range seen {
			require.Equal(t, 1, n, "item %d covered %d times", i, n)
		}
	}
}
