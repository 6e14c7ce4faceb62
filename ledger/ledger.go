// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package ledger is the wallet accounting engine. Every balance change
// appends exactly one transaction row carrying the post-change balance, so
// an account's balance always equals the sum of its stream.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rtask/rtask/ledgerdb"
	"github.com/rtask/rtask/log"
	"github.com/rtask/rtask/rtask"
	"github.com/rtask/rtask/store"
)

var logger = log.WithContext("pkg", "ledger")

// maxDeposit bounds a single sandbox deposit.
var maxDeposit = decimal.NewFromInt(10000)

var centFactor = decimal.NewFromInt(100)

// Options configure the accounting engine.
type Options struct {
	// SeedAmount is credited to auto-created accounts. Zero disables
	// dev seeding.
	SeedAmount decimal.Decimal
	// SandboxEnabled permits manual deposits and withdrawals without an
	// external payment provider.
	SandboxEnabled bool
}

// Ledger mutates wallets. All mutations serialise on one mutex; money moves
// are rare next to dispatch traffic, so striping is not worth the ceremony.
type Ledger struct {
	store *store.Store
	index *ledgerdb.LedgerDB
	opts  Options
	mu    sync.Mutex
}

// New creates the accounting engine. index may be nil to disable the
// transaction query index.
func New(s *store.Store, index *ledgerdb.LedgerDB, opts Options) *Ledger {
	return &Ledger{
		store: s,
		index: index,
		opts:  opts,
	}
}

// SandboxEnabled reports whether manual wallet operations are permitted.
func (l *Ledger) SandboxEnabled() bool { return l.opts.SandboxEnabled }

// Resolve returns the account of sessionID, creating and seeding it on
// first sight.
func (l *Ledger) Resolve(sessionID string) (*rtask.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resolve(sessionID)
}

func (l *Ledger) resolve(sessionID string) (*rtask.User, error) {
	user, err := l.store.GetUser(sessionID)
	if err == nil {
		return user, nil
	}
	if !l.store.IsNotFound(err) {
		return nil, err
	}

	user = newUser(sessionID, rtask.RoleCustomer)
	batch := l.store.NewBatch()
	var entries []*ledgerdb.Entry
	if l.opts.SeedAmount.IsPositive() {
		_, entry, err := apply(batch, user, rtask.TxSeedCredit, rtask.Round2(l.opts.SeedAmount), rtask.TxMeta{Reason: "dev seed"})
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := batch.PutUser(user); err != nil {
		return nil, err
	}
	if err := batch.Write(); err != nil {
		return nil, err
	}
	l.mirror(entries...)
	logger.Debug("account created", "session", sessionID, "seed", user.WalletBalance)
	return user, nil
}

// SeedAccount creates sessionID with a fixed opening balance and role set.
// Existing accounts are left untouched, so genesis seeding is idempotent
// across restarts over the same data directory.
func (l *Ledger) SeedAccount(sessionID string, amount decimal.Decimal, roles []string) (*rtask.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	user, err := l.store.GetUser(sessionID)
	if err == nil {
		return user, nil
	}
	if !l.store.IsNotFound(err) {
		return nil, err
	}

	user = newUser(sessionID, rtask.RoleCustomer)
	for _, r := range roles {
		user.AddRole(r)
	}
	batch := l.store.NewBatch()
	var entries []*ledgerdb.Entry
	if amount.IsPositive() {
		_, entry, err := apply(batch, user, rtask.TxSeedCredit, rtask.Round2(amount), rtask.TxMeta{Reason: "genesis"})
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := batch.PutUser(user); err != nil {
		return nil, err
	}
	if err := batch.Write(); err != nil {
		return nil, err
	}
	l.mirror(entries...)
	logger.Info("genesis account seeded", "session", sessionID, "balance", user.WalletBalance)
	return user, nil
}

// Deposit credits the wallet. Sandbox mode only.
func (l *Ledger) Deposit(sessionID string, amount decimal.Decimal) (*rtask.User, *rtask.WalletTransaction, error) {
	if !l.opts.SandboxEnabled {
		return nil, nil, errSandboxDisabled
	}
	amount = rtask.Round2(amount)
	if !amount.IsPositive() {
		return nil, nil, errInvalidAmount
	}
	if amount.GreaterThan(maxDeposit) {
		return nil, nil, errDepositTooLarge
	}
	return l.adjust(sessionID, rtask.TxWalletDeposit, amount, rtask.TxMeta{Reason: "sandbox deposit"})
}

// Withdraw debits the wallet. Sandbox mode only; never overdraws.
func (l *Ledger) Withdraw(sessionID string, amount decimal.Decimal) (*rtask.User, *rtask.WalletTransaction, error) {
	if !l.opts.SandboxEnabled {
		return nil, nil, errSandboxDisabled
	}
	amount = rtask.Round2(amount)
	if !amount.IsPositive() {
		return nil, nil, errInvalidAmount
	}
	return l.adjust(sessionID, rtask.TxWalletWithdrawal, amount.Neg(), rtask.TxMeta{Reason: "sandbox withdrawal"})
}

// ApplyCheckout credits the wallet from a completed external checkout.
// Not gated by sandbox mode.
func (l *Ledger) ApplyCheckout(sessionID string, amount decimal.Decimal, ref string) (*rtask.User, *rtask.WalletTransaction, error) {
	amount = rtask.Round2(amount)
	if !amount.IsPositive() {
		return nil, nil, errInvalidAmount
	}
	return l.adjust(sessionID, rtask.TxWalletDeposit, amount, rtask.TxMeta{Reason: "checkout:" + ref})
}

func (l *Ledger) adjust(sessionID string, txType rtask.TxType, amount decimal.Decimal, meta rtask.TxMeta) (*rtask.User, *rtask.WalletTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	user, err := l.resolve(sessionID)
	if err != nil {
		return nil, nil, err
	}
	batch := l.store.NewBatch()
	tx, entry, err := apply(batch, user, txType, amount, meta)
	if err != nil {
		return nil, nil, err
	}
	if err := batch.PutUser(user); err != nil {
		return nil, nil, err
	}
	if err := batch.Write(); err != nil {
		return nil, nil, err
	}
	l.mirror(entry)
	return user, tx, nil
}

// Settlement reports the money moves of one settled bucket.
type Settlement struct {
	CustomerTx *rtask.WalletTransaction
	WorkerTx   *rtask.WalletTransaction
	FeeTx      *rtask.WalletTransaction
}

// SettleBucket moves the payout money of one completed bucket in a single
// atomic write: customer chunk-debit of the full cost, worker chunk-credit
// of the cost net of the platform fee, platform fee accrual. The worker
// account is created on demand with no seed. Bounces with
// errInsufficientFunds rather than overdraw the customer.
func (l *Ledger) SettleBucket(customerSession, workerSession string, cost decimal.Decimal, feePercent int, meta rtask.TxMeta) (*Settlement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	customer, err := l.store.GetUser(customerSession)
	if err != nil {
		if l.store.IsNotFound(err) {
			return nil, errNoAccount
		}
		return nil, err
	}

	worker := customer
	if workerSession != customerSession {
		worker, err = l.store.GetUser(workerSession)
		if err != nil {
			if !l.store.IsNotFound(err) {
				return nil, err
			}
			worker = newUser(workerSession, rtask.RoleWorker)
		}
	}
	worker.AddRole(rtask.RoleWorker)

	platformShare, workerShare := rtask.FeeSplit(cost, feePercent)

	batch := l.store.NewBatch()
	debitTx, debitEntry, err := apply(batch, customer, rtask.TxChunkDebit, cost.Neg(), meta)
	if err != nil {
		return nil, err
	}
	creditTx, creditEntry, err := apply(batch, worker, rtask.TxChunkCredit, workerShare, meta)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	pl, err := l.store.GetPlatformLedger()
	if err != nil {
		return nil, err
	}
	pl.TotalEarnings = pl.TotalEarnings.Add(platformShare)
	feeTx := &rtask.WalletTransaction{
		ID:           rtask.NewID(),
		UserID:       rtask.PlatformUserID,
		Type:         rtask.TxPlatformFee,
		Amount:       platformShare,
		BalanceAfter: pl.TotalEarnings,
		Meta:         meta,
		CreatedAt:    now,
	}
	feeSeq := pl.TxCount
	pl.TxCount++
	pl.UpdatedAt = now
	if err := batch.PutTransaction(rtask.PlatformUserID, feeSeq, feeTx); err != nil {
		return nil, err
	}
	if err := batch.PutPlatformLedger(pl); err != nil {
		return nil, err
	}

	if err := batch.PutUser(customer); err != nil {
		return nil, err
	}
	if err := batch.PutUser(worker); err != nil {
		return nil, err
	}
	if err := batch.Write(); err != nil {
		return nil, err
	}
	l.mirror(debitEntry, creditEntry, &ledgerdb.Entry{
		Account: rtask.PlatformUserID,
		Seq:     feeSeq,
		Tx:      feeTx,
	})

	return &Settlement{
		CustomerTx: debitTx,
		WorkerTx:   creditTx,
		FeeTx:      feeTx,
	}, nil
}

// Transactions returns the account's full stream in write order.
func (l *Ledger) Transactions(sessionID string) ([]*rtask.WalletTransaction, error) {
	return l.store.TransactionsByAccount(sessionID)
}

// FilterTransactions queries the sqlite transaction index. Returns nothing
// when the index is disabled.
func (l *Ledger) FilterTransactions(ctx context.Context, filter *ledgerdb.TxFilter) ([]*ledgerdb.Entry, error) {
	if l.index == nil {
		return nil, nil
	}
	return l.index.Filter(ctx, filter)
}

// Platform returns the accrued platform earnings.
func (l *Ledger) Platform() (*rtask.PlatformLedger, error) {
	return l.store.GetPlatformLedger()
}

func newUser(sessionID, role string) *rtask.User {
	now := time.Now().UTC()
	return &rtask.User{
		ID:            rtask.NewID(),
		SessionID:     sessionID,
		WalletBalance: decimal.Zero,
		Roles:         []string{role},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// apply queues one balance change for user into batch, mutating the user in
// memory, and returns the row plus its index mirror entry. The caller owns
// persisting the user record and committing the batch.
func apply(batch *store.Batch, user *rtask.User, txType rtask.TxType, amount decimal.Decimal, meta rtask.TxMeta) (*rtask.WalletTransaction, *ledgerdb.Entry, error) {
	balance := user.WalletBalance.Add(amount)
	if balance.IsNegative() {
		return nil, nil, errInsufficientFunds
	}

	now := time.Now().UTC()
	tx := &rtask.WalletTransaction{
		ID:           rtask.NewID(),
		UserID:       user.ID,
		Type:         txType,
		Amount:       amount,
		BalanceAfter: balance,
		Meta:         meta,
		CreatedAt:    now,
	}
	seq := user.TxCount
	user.WalletBalance = balance
	user.TxCount++
	user.UpdatedAt = now

	if err := batch.PutTransaction(user.SessionID, seq, tx); err != nil {
		return nil, nil, err
	}
	return tx, &ledgerdb.Entry{Account: user.SessionID, Seq: seq, Tx: tx}, nil
}

// mirror copies committed rows into the query index. Index failures are
// logged, not returned: the kv stream stays the source of truth.
func (l *Ledger) mirror(entries ...*ledgerdb.Entry) {
	for _, e := range entries {
		labels := map[string]string{"type": string(e.Tx.Type)}
		metricWalletRows().AddWithLabel(1, labels)
		metricWalletVolume().AddWithLabel(e.Tx.Amount.Abs().Mul(centFactor).IntPart(), labels)
	}
	if l.index == nil || len(entries) == 0 {
		return
	}
	if err := l.index.Append(entries...); err != nil {
		logger.Warn("failed to index wallet transactions", "err", err)
	}
}
