// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package genesis_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtask/rtask/genesis"
	"github.com/rtask/rtask/ledger"
	"github.com/rtask/rtask/lvldb"
	"github.com/rtask/rtask/rtask"
	"github.com/rtask/rtask/store"
)

func newTestLedger(t *testing.T) *ledger.Ledger {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st, err := store.New(db, t.TempDir(), store.Options{})
	require.NoError(t, err)
	return ledger.New(st, nil, ledger.Options{})
}

func TestDevnetSeed(t *testing.T) {
	led := newTestLedger(t)

	gen := genesis.NewDevnet(decimal.NewFromInt(1000))
	assert.Equal(t, "devnet", gen.Name())
	require.Len(t, gen.Accounts(), len(genesis.DevSessions()))

	require.NoError(t, gen.Seed(led))

	for _, id := range genesis.DevSessions() {
		user, err := led.Resolve(id)
		require.NoError(t, err)
		assert.True(t, user.WalletBalance.Equal(decimal.NewFromInt(1000)), id)

		txs, err := led.Transactions(id)
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, rtask.TxSeedCredit, txs[0].Type)
	}

	// re-seeding is a no-op
	require.NoError(t, gen.Seed(led))
	user, err := led.Resolve(genesis.DevSessions()[0])
	require.NoError(t, err)
	assert.True(t, user.WalletBalance.Equal(decimal.NewFromInt(1000)))
	txs, err := led.Transactions(genesis.DevSessions()[0])
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestDevnetDefaultBalance(t *testing.T) {
	gen := genesis.NewDevnet(decimal.Zero)
	require.NotEmpty(t, gen.Accounts())
	assert.True(t, gen.Accounts()[0].Balance.Equal(decimal.NewFromInt(rtask.DefaultDevWallet)))
}

func TestCustomNet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: staging
accounts:
  - sessionId: cust-1
    balance: "250.50"
  - sessionId: work-1
    balance: "0"
    roles: [worker]
`), 0o600))

	gen, err := genesis.LoadCustomNet(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", gen.Name())
	require.Len(t, gen.Accounts(), 2)

	led := newTestLedger(t)
	require.NoError(t, gen.Seed(led))

	cust, err := led.Resolve("cust-1")
	require.NoError(t, err)
	assert.True(t, cust.WalletBalance.Equal(decimal.RequireFromString("250.50")))
	assert.True(t, cust.HasRole(rtask.RoleCustomer))

	work, err := led.Resolve("work-1")
	require.NoError(t, err)
	assert.True(t, work.WalletBalance.IsZero())
	assert.True(t, work.HasRole(rtask.RoleWorker))

	// zero balance means no transaction row
	txs, err := led.Transactions("work-1")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestCustomNetValidation(t *testing.T) {
	tests := []struct {
		name string
		gen  genesis.CustomGenesis
	}{
		{"missing name", genesis.CustomGenesis{}},
		{"no accounts", genesis.CustomGenesis{Name: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := genesis.NewCustomNet(&tt.gen)
			assert.Error(t, err)
		})
	}

	yamlCases := []struct {
		name string
		body string
	}{
		{"empty sessionId", "name: x\naccounts:\n  - balance: \"1\"\n"},
		{"duplicate sessionId", "name: x\naccounts:\n  - {sessionId: a, balance: \"1\"}\n  - {sessionId: a, balance: \"2\"}\n"},
		{"missing balance", "name: x\naccounts:\n  - sessionId: a\n"},
		{"bad balance", "name: x\naccounts:\n  - {sessionId: a, balance: \"abc\"}\n"},
		{"negative balance", "name: x\naccounts:\n  - {sessionId: a, balance: \"-5\"}\n"},
		{"unknown role", "name: x\naccounts:\n  - {sessionId: a, balance: \"1\", roles: [admin]}\n"},
	}
	for _, tt := range yamlCases {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "genesis.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))
			_, err := genesis.LoadCustomNet(path)
			assert.Error(t, err)
		})
	}
}
