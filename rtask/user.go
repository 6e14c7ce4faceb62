// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package rtask

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role names.
const (
	RoleCustomer = "customer"
	RoleWorker   = "worker"
)

// User is a market participant. The session id doubles as the worker id.
// TxCount is the next sequence number of the user's transaction stream.
type User struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"sessionId"`
	WalletBalance decimal.Decimal `json:"walletBalance"`
	Roles         []string        `json:"roles"`
	TxCount       uint64          `json:"txCount"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// HasRole reports whether the user carries the named role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AddRole adds a role. No-op if already present.
func (u *User) AddRole(role string) {
	if !u.HasRole(role) {
		u.Roles = append(u.Roles, role)
	}
}

// TxType classifies wallet transactions.
type TxType string

// All transaction types.
const (
	TxSeedCredit       TxType = "seed-credit"
	TxWalletDeposit    TxType = "wallet-deposit"
	TxWalletWithdrawal TxType = "wallet-withdrawal"
	TxChunkDebit       TxType = "chunk-debit"
	TxChunkCredit      TxType = "chunk-credit"
	TxPlatformFee      TxType = "platform-fee"
)

// TxMeta carries the optional provenance of a transaction.
type TxMeta struct {
	TaskID     string `json:"taskId,omitempty"`
	ChunkIndex *int   `json:"chunkIndex,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// WalletTransaction is one append-only ledger row. Amount is signed;
// BalanceAfter snapshots the account balance after applying it.
type WalletTransaction struct {
	ID           string          `json:"id"`
	UserID       string          `json:"userId"`
	Type         TxType          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
	Meta         TxMeta          `json:"meta"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// PlatformLedger is the singleton accumulator of platform fee earnings.
type PlatformLedger struct {
	TotalEarnings decimal.Decimal `json:"totalEarnings"`
	TxCount       uint64          `json:"txCount"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}
