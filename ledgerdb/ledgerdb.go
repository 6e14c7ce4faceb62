// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package ledgerdb maintains a sqlite query index over the wallet
// transaction streams. The kv store stays the source of truth; this index
// only serves filtered history queries.
package ledgerdb

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" database/sql driver
	"github.com/shopspring/decimal"

	"github.com/rtask/rtask/rtask"
)

type LedgerDB struct {
	path          string
	db            *sql.DB
	driverVersion string
}

// New create or open the transaction index at given path.
func New(path string) (ledgerDB *LedgerDB, err error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if ledgerDB == nil {
			db.Close()
		}
	}()
	if _, err := db.Exec(txTableSchema); err != nil {
		return nil, err
	}

	driverVer := sqliteDriverVersion()
	return &LedgerDB{
		path,
		db,
		driverVer,
	}, nil
}

// NewMem create a transaction index in ram.
func NewMem() (*LedgerDB, error) {
	return New(":memory:")
}

// Close close the index.
func (db *LedgerDB) Close() {
	db.db.Close()
}

func (db *LedgerDB) Path() string {
	return db.path
}

func (db *LedgerDB) execInTx(proc func(*sql.Tx) error) (err error) {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	if err := proc(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Append mirrors entries of the kv transaction streams into the index.
// Re-appending an (account, seq) pair replaces the previous row, so the
// ledger may safely retry after partial failures.
func (db *LedgerDB) Append(entries ...*Entry) error {
	return db.execInTx(func(tx *sql.Tx) error {
		for _, e := range entries {
			var chunkIndex interface{}
			if e.Tx.Meta.ChunkIndex != nil {
				chunkIndex = *e.Tx.Meta.ChunkIndex
			}
			if _, err := tx.Exec("INSERT OR REPLACE INTO wallet_tx(account ,seq ,id ,userID ,txType ,amount ,balanceAfter ,taskID ,chunkIndex ,reason ,createdAt) VALUES ( ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);",
				e.Account,
				e.Seq,
				e.Tx.ID,
				e.Tx.UserID,
				string(e.Tx.Type),
				e.Tx.Amount.String(),
				e.Tx.BalanceAfter.String(),
				e.Tx.Meta.TaskID,
				chunkIndex,
				e.Tx.Meta.Reason,
				e.Tx.CreatedAt.Unix(),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// Filter queries indexed transactions.
func (db *LedgerDB) Filter(ctx context.Context, filter *TxFilter) ([]*Entry, error) {
	if filter == nil {
		return db.query(ctx, "SELECT * FROM wallet_tx")
	}
	var args []interface{}
	stmt := "SELECT * FROM wallet_tx WHERE 1"
	if filter.Range != nil {
		args = append(args, filter.Range.From)
		stmt += " AND createdAt >= ? "
		if filter.Range.To >= filter.Range.From {
			args = append(args, filter.Range.To)
			stmt += " AND createdAt <= ? "
		}
	}
	length := len(filter.CriteriaSet)
	if length > 0 {
		for i, criteria := range filter.CriteriaSet {
			if i == 0 {
				stmt += " AND (( 1 "
			} else {
				stmt += " OR ( 1 "
			}
			if criteria.Account != "" {
				args = append(args, criteria.Account)
				stmt += " AND account = ? "
			}
			if criteria.Type != "" {
				args = append(args, string(criteria.Type))
				stmt += " AND txType = ? "
			}
			if criteria.TaskID != "" {
				args = append(args, criteria.TaskID)
				stmt += " AND taskID = ? "
			}
			if i == length-1 {
				stmt += " )) "
			} else {
				stmt += " ) "
			}
		}
	}
	if filter.Order == DESC {
		stmt += " ORDER BY createdAt DESC,account DESC,seq DESC "
	} else {
		stmt += " ORDER BY createdAt ASC,account ASC,seq ASC "
	}
	if filter.Options != nil {
		stmt += " limit ?, ? "
		args = append(args, filter.Options.Offset, filter.Options.Limit)
	}
	return db.query(ctx, stmt, args...)
}

// Count returns the number of indexed transactions of one account.
func (db *LedgerDB) Count(ctx context.Context, account string) (uint64, error) {
	var n uint64
	err := db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM wallet_tx WHERE account = ?", account).Scan(&n)
	return n, err
}

func (db *LedgerDB) query(ctx context.Context, stmt string, args ...interface{}) ([]*Entry, error) {
	rows, err := db.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		var (
			account      string
			seq          uint64
			id           string
			userID       string
			txType       string
			amount       string
			balanceAfter string
			taskID       string
			chunkIndex   sql.NullInt64
			reason       string
			createdAt    int64
		)
		if err := rows.Scan(
			&account,
			&seq,
			&id,
			&userID,
			&txType,
			&amount,
			&balanceAfter,
			&taskID,
			&chunkIndex,
			&reason,
			&createdAt,
		); err != nil {
			return nil, err
		}
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, err
		}
		bal, err := decimal.NewFromString(balanceAfter)
		if err != nil {
			return nil, err
		}
		wtx := &rtask.WalletTransaction{
			ID:           id,
			UserID:       userID,
			Type:         rtask.TxType(txType),
			Amount:       amt,
			BalanceAfter: bal,
			Meta: rtask.TxMeta{
				TaskID: taskID,
				Reason: reason,
			},
			CreatedAt: time.Unix(createdAt, 0).UTC(),
		}
		if chunkIndex.Valid {
			idx := int(chunkIndex.Int64)
			wtx.Meta.ChunkIndex = &idx
		}
		entries = append(entries, &Entry{
			Account: account,
			Seq:     seq,
			Tx:      wtx,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
