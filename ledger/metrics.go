// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import (
	"github.com/rtask/rtask/metrics"
)

var metricWalletRows = metrics.LazyLoadCounterVec("ledger_wallet_tx_total", []string{"type"})

// metricWalletVolume counts moved money in cents, by transaction type.
var metricWalletVolume = metrics.LazyLoadCounterVec("ledger_wallet_volume_cents_total", []string{"type"})
