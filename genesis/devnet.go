// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package genesis

import (
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/rtask/rtask/rtask"
)

var devSessions atomic.Value

// DevSessions returns the well-known session ids seeded in dev mode. The
// first half double as customers, the rest as workers; either kind may act
// as both once running.
func DevSessions() []string {
	if ids := devSessions.Load(); ids != nil {
		return ids.([]string)
	}

	names := []string{
		"alice", "bob", "carol", "dave", "erin",
		"frank", "grace", "heidi", "ivan", "judy",
	}
	ids := make([]string, len(names))
	for i, n := range names {
		ids[i] = "dev-session-" + n
	}
	devSessions.Store(ids)
	return ids
}

// NewDevnet builds the allocation seeded by the dev server. Every
// well-known session starts with the same balance; non-positive balances
// fall back to the default dev wallet.
func NewDevnet(balance decimal.Decimal) *Genesis {
	if !balance.IsPositive() {
		balance = decimal.NewFromInt(rtask.DefaultDevWallet)
	}
	balance = rtask.Round2(balance)

	ids := DevSessions()
	accounts := make([]Account, len(ids))
	for i, id := range ids {
		roles := []string{rtask.RoleCustomer}
		if i >= len(ids)/2 {
			roles = []string{rtask.RoleWorker}
		}
		accounts[i] = Account{
			SessionID: id,
			Balance:   balance,
			Roles:     roles,
		}
	}
	return &Genesis{name: "devnet", accounts: accounts}
}
