// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package rtask

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Round2 normalises an external money amount to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FeeSplit splits a bucket cost into the platform share and the worker share.
// The platform share is rounded half-even at six decimal places; the worker
// gets the exact remainder so the two shares always sum to cost.
func FeeSplit(cost decimal.Decimal, feePercent int) (platform, worker decimal.Decimal) {
	platform = cost.
		Mul(decimal.NewFromInt(int64(feePercent))).
		Div(decimal.NewFromInt(100)).
		RoundBank(6)
	worker = cost.Sub(platform)
	return
}

// Truncate bounds s to limit bytes, eliding the rest behind a visible marker.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + fmt.Sprintf("... (+%d chars)", len(s)-limit)
}
