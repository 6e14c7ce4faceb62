// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtask/rtask/lvldb"
	"github.com/rtask/rtask/rtask"
)

func newTestStore(t *testing.T) *Store {
	db, err := lvldb.NewMem()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(db, t.TempDir(), Options{})
	require.NoError(t, err)
	return s
}

func newTask(id string) *rtask.Task {
	return &rtask.Task{
		ID:            id,
		CreatorID:     rtask.NewID(),
		Status:        rtask.TaskQueued,
		Name:          "extract entities",
		TotalItems:    10,
		BucketConfig:  rtask.BucketConfig{MaxBuckets: 5, MaxBucketBytes: 1024},
		CostPerBucket: decimal.RequireFromString("0.4"),
		BudgetTotal:   decimal.RequireFromString("2"),
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
}

func TestTaskRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetTask("missing")
	assert.True(t, s.IsNotFound(err))

	task := newTask(rtask.NewID())
	require.NoError(t, s.PutTask(task))

	got, err := s.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, task.Name, got.Name)
	assert.True(t, got.CostPerBucket.Equal(task.CostPerBucket))
	assert.True(t, got.BudgetTotal.Equal(task.BudgetTotal))
	assert.Equal(t, task.BucketConfig, got.BucketConfig)
}

func TestIterateTasks(t *testing.T) {
	s := newTestStore(t)

	ids := map[string]bool{}
	for i := 0; i < 3; i++ {
		task := newTask(rtask.NewID())
		require.NoError(t, s.PutTask(task))
		ids[task.ID] = true
	}

	var seen int
	require.NoError(t, s.IterateTasks(func(task *rtask.Task) bool {
		assert.True(t, ids[task.ID])
		seen++
		return true
	}))
	assert.Equal(t, 3, seen)

	// early stop
	seen = 0
	require.NoError(t, s.IterateTasks(func(*rtask.Task) bool {
		seen++
		return false
	}))
	assert.Equal(t, 1, seen)
}

func TestResultsOrderedByIndex(t *testing.T) {
	s := newTestStore(t)
	taskID := rtask.NewID()
	other := rtask.NewID()

	// written out of order, including an index above 9 to exercise the
	// big-endian key encoding
	for _, i := range []int{12, 0, 3, 1} {
		require.NoError(t, s.PutResult(&rtask.BucketResult{
			TaskID:      taskID,
			BucketIndex: i,
			Status:      rtask.BucketCompleted,
		}))
	}
	require.NoError(t, s.PutResult(&rtask.BucketResult{TaskID: other, BucketIndex: 2}))

	results, err := s.ResultsByTask(taskID)
	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, want := range []int{0, 1, 3, 12} {
		assert.Equal(t, want, results[i].BucketIndex)
		assert.Equal(t, taskID, results[i].TaskID)
	}

	got, err := s.GetResult(taskID, 3)
	require.NoError(t, err)
	assert.Equal(t, rtask.BucketCompleted, got.Status)

	_, err = s.GetResult(taskID, 99)
	assert.True(t, s.IsNotFound(err))
}

func TestAssignmentsByTask(t *testing.T) {
	s := newTestStore(t)
	taskID := rtask.NewID()

	for _, i := range []int{1, 0} {
		require.NoError(t, s.PutAssignment(&rtask.BucketAssignment{
			TaskID:      taskID,
			BucketIndex: i,
			WorkerID:    "w1",
			ExpiresAt:   time.Now().Add(time.Minute),
		}))
	}

	leases, err := s.AssignmentsByTask(taskID)
	require.NoError(t, err)
	require.Len(t, leases, 2)
	assert.Equal(t, 0, leases[0].BucketIndex)
	assert.Equal(t, 1, leases[1].BucketIndex)
}

func TestUserRoundTrip(t *testing.T) {
	s := newTestStore(t)

	u := &rtask.User{
		ID:            rtask.NewID(),
		SessionID:     rtask.NewID(),
		WalletBalance: decimal.RequireFromString("10.5"),
		Roles:         []string{rtask.RoleCustomer},
		TxCount:       1,
	}
	require.NoError(t, s.PutUser(u))

	got, err := s.GetUser(u.SessionID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.True(t, got.WalletBalance.Equal(u.WalletBalance))
	assert.Equal(t, uint64(1), got.TxCount)

	_, err = s.GetUser("no-such-session")
	assert.True(t, s.IsNotFound(err))
}

func TestBatchComposite(t *testing.T) {
	s := newTestStore(t)

	task := newTask(rtask.NewID())
	user := &rtask.User{ID: rtask.NewID(), SessionID: rtask.NewID()}
	tx := &rtask.WalletTransaction{
		ID:     rtask.NewID(),
		UserID: user.ID,
		Type:   rtask.TxSeedCredit,
		Amount: decimal.RequireFromString("100"),
	}

	batch := s.NewBatch()
	require.NoError(t, batch.PutTask(task))
	require.NoError(t, batch.PutResult(&rtask.BucketResult{TaskID: task.ID, BucketIndex: 0}))
	require.NoError(t, batch.PutAssignment(&rtask.BucketAssignment{TaskID: task.ID, BucketIndex: 1}))
	require.NoError(t, batch.PutUser(user))
	require.NoError(t, batch.PutTransaction(user.SessionID, 0, tx))
	require.NoError(t, batch.PutPlatformLedger(&rtask.PlatformLedger{
		TotalEarnings: decimal.RequireFromString("0.2"),
	}))
	assert.Equal(t, 6, batch.Len())

	// nothing is visible until the batch commits
	_, err := s.GetTask(task.ID)
	assert.True(t, s.IsNotFound(err))
	_, err = s.GetUser(user.SessionID)
	assert.True(t, s.IsNotFound(err))

	require.NoError(t, batch.Write())

	got, err := s.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Name, got.Name)

	txs, err := s.TransactionsByAccount(user.SessionID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, rtask.TxSeedCredit, txs[0].Type)

	pl, err := s.GetPlatformLedger()
	require.NoError(t, err)
	assert.True(t, pl.TotalEarnings.Equal(decimal.RequireFromString("0.2")))
}

func TestTransactionsByAccountOrder(t *testing.T) {
	s := newTestStore(t)
	alice, bob := rtask.NewID(), rtask.NewID()

	batch := s.NewBatch()
	for seq, amount := range []string{"5", "-2", "7"} {
		require.NoError(t, batch.PutTransaction(alice, uint64(seq), &rtask.WalletTransaction{
			ID:     rtask.NewID(),
			UserID: alice,
			Amount: decimal.RequireFromString(amount),
		}))
	}
	require.NoError(t, batch.PutTransaction(bob, 0, &rtask.WalletTransaction{
		ID:     rtask.NewID(),
		UserID: bob,
		Amount: decimal.RequireFromString("1"),
	}))
	require.NoError(t, batch.Write())

	txs, err := s.TransactionsByAccount(alice)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	for i, want := range []string{"5", "-2", "7"} {
		assert.True(t, txs[i].Amount.Equal(decimal.RequireFromString(want)))
	}

	txs, err = s.TransactionsByAccount(bob)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestGetPlatformLedgerZero(t *testing.T) {
	s := newTestStore(t)

	pl, err := s.GetPlatformLedger()
	require.NoError(t, err)
	assert.True(t, pl.TotalEarnings.IsZero())
	assert.Equal(t, uint64(0), pl.TxCount)
}

func TestRemoveTaskCascade(t *testing.T) {
	s := newTestStore(t)

	task := newTask(rtask.NewID())
	survivor := newTask(rtask.NewID())
	require.NoError(t, s.PutTask(task))
	require.NoError(t, s.PutTask(survivor))

	_, err := s.PutItems(task.ID, []byte(`[1, 2, 3]`))
	require.NoError(t, err)

	require.NoError(t, s.PutResult(&rtask.BucketResult{TaskID: task.ID, BucketIndex: 0}))
	require.NoError(t, s.PutResult(&rtask.BucketResult{TaskID: survivor.ID, BucketIndex: 0}))
	require.NoError(t, s.PutAssignment(&rtask.BucketAssignment{TaskID: task.ID, BucketIndex: 1}))

	require.NoError(t, s.RemoveTask(task.ID))

	_, err = s.GetTask(task.ID)
	assert.True(t, s.IsNotFound(err))
	results, err := s.ResultsByTask(task.ID)
	require.NoError(t, err)
	assert.Empty(t, results)
	leases, err := s.AssignmentsByTask(task.ID)
	require.NoError(t, err)
	assert.Empty(t, leases)

	_, err = os.Stat(s.ArtifactsDir(task.ID))
	assert.True(t, os.IsNotExist(err))

	// unrelated task untouched
	_, err = s.GetTask(survivor.ID)
	require.NoError(t, err)
	results, err = s.ResultsByTask(survivor.ID)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
