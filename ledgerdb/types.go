// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledgerdb

import "github.com/rtask/rtask/rtask"

// Entry is one indexed transaction together with its position in the
// account's append-only stream.
type Entry struct {
	Account string
	Seq     uint64
	Tx      *rtask.WalletTransaction
}

type Order string

const (
	ASC  Order = "asc"
	DESC Order = "desc"
)

// Range bounds createdAt in unix seconds. To is ignored when below From.
type Range struct {
	From uint64
	To   uint64
}

type Options struct {
	Offset uint64
	Limit  uint64
}

// TxCriteria matches transactions by AND of its set fields.
type TxCriteria struct {
	Account string
	Type    rtask.TxType
	TaskID  string
}

// TxFilter selects transactions matching any criteria of the set,
// within the optional time range.
type TxFilter struct {
	CriteriaSet []*TxCriteria
	Range       *Range
	Options     *Options
	Order       Order // default asc
}
