// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package genesis defines the initial wallet allocation of a marketplace
// instance and applies it through the ledger.
package genesis

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rtask/rtask/ledger"
	"github.com/rtask/rtask/rtask"
)

// Account is one seeded wallet.
type Account struct {
	SessionID string          `json:"sessionId"`
	Balance   decimal.Decimal `json:"balance"`
	Roles     []string        `json:"roles,omitempty"`
}

// Genesis is a named initial allocation.
type Genesis struct {
	name     string
	accounts []Account
}

// Name returns the allocation's name.
func (g *Genesis) Name() string { return g.name }

// Accounts returns the allocation rows.
func (g *Genesis) Accounts() []Account { return g.accounts }

// Seed applies the allocation to the ledger. Accounts that already exist
// keep their state, so seeding the same data directory twice changes
// nothing.
func (g *Genesis) Seed(led *ledger.Ledger) error {
	for _, a := range g.accounts {
		if _, err := led.SeedAccount(a.SessionID, a.Balance, a.Roles); err != nil {
			return errors.Wrapf(err, "seed account %s", a.SessionID)
		}
	}
	return nil
}

func validRole(role string) bool {
	return role == rtask.RoleCustomer || role == rtask.RoleWorker
}
