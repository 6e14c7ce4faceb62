// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package rtask

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFeeSplit(t *testing.T) {
	tests := []struct {
		cost         string
		feePercent   int
		wantPlatform string
		wantWorker   string
	}{
		{"2", 10, "0.2", "1.8"},
		{"2", 0, "0", "2"},
		{"2", 100, "2", "0"},
		{"0.01", 10, "0.001", "0.009"},
		// a half at the 7th place rounds half-even at 6
		{"0.000005", 50, "0.000002", "0.000003"},
		{"0.000015", 50, "0.000008", "0.000007"},
		{"3.33", 33, "1.0989", "2.2311"},
	}
	for _, tt := range tests {
		platform, worker := FeeSplit(decimal.RequireFromString(tt.cost), tt.feePercent)
		assert.True(t, platform.Equal(decimal.RequireFromString(tt.wantPlatform)),
			"platform share of %s at %d%% = %s, want %s", tt.cost, tt.feePercent, platform, tt.wantPlatform)
		assert.True(t, worker.Equal(decimal.RequireFromString(tt.wantWorker)),
			"worker share of %s at %d%% = %s, want %s", tt.cost, tt.feePercent, worker, tt.wantWorker)
		assert.True(t, platform.Add(worker).Equal(decimal.RequireFromString(tt.cost)),
			"shares of %s must sum to cost", tt.cost)
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1", "1"},
		{"1.005", "1.01"},
		{"1.004", "1"},
		{"-2.345", "-2.35"},
		{"10.10", "10.1"},
	}
	for _, tt := range tests {
		got := Round2(decimal.RequireFromString(tt.in))
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "Round2(%s) = %s, want %s", tt.in, got, tt.want)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s     string
		limit int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "hello... (+6 chars)"},
		{"abc", 0, "abc"},
		{"", 4, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truncate(tt.s, tt.limit))
	}
}
