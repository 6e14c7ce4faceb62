// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledgerdb

// create a table for wallet transactions
const txTableSchema = `
create table if not exists wallet_tx (
	account char(36),
	seq integer,
	id char(36),
	userID char(36),
	txType varchar(24),
	amount varchar(48),
	balanceAfter varchar(48),
	taskID char(36),
	chunkIndex integer,
	reason text,
	createdAt integer,
	primary key (account, seq)
);

CREATE INDEX if not exists accountIndex on wallet_tx(account);
CREATE INDEX if not exists typeIndex on wallet_tx(txType);
CREATE INDEX if not exists taskIndex on wallet_tx(taskID);
CREATE INDEX if not exists createdAtIndex on wallet_tx(createdAt);
`
