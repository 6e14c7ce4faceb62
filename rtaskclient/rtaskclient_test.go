// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package rtaskclient_test

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtask/rtask/api"
	"github.com/rtask/rtask/dispatch"
	"github.com/rtask/rtask/health"
	"github.com/rtask/rtask/heartbeat"
	"github.com/rtask/rtask/ledger"
	"github.com/rtask/rtask/lvldb"
	"github.com/rtask/rtask/rtask"
	"github.com/rtask/rtask/rtaskclient"
	"github.com/rtask/rtask/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type env struct {
	base *rtaskclient.Client
	led  *ledger.Ledger
}

func newEnv(t *testing.T, dispOpts dispatch.Options, ledOpts ledger.Options) *env {
	db, err := lvldb.NewMem()
	require.NoError(t, err)

	st, err := store.New(db, t.TempDir(), store.Options{})
	require.NoError(t, err)

	led := ledger.New(st, nil, ledOpts)
	beats := heartbeat.New(time.Hour)
	disp := dispatch.New(st, led, beats, dispOpts)
	hlth := health.New(st, disp, 0)

	srv := httptest.NewServer(api.New(disp, led, beats, hlth, nil, api.Options{AllowedOrigins: "*"}))

	t.Cleanup(func() {
		srv.Close()
		disp.Close()
		beats.Close()
		db.Close()
	})
	return &env{base: rtaskclient.New(srv.URL), led: led}
}

func itemsJSON(t *testing.T, n int) []byte {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("item-%d", i)
	}
	data, err := json.Marshal(items)
	require.NoError(t, err)
	return data
}

func onlineWorker(t *testing.T, e *env, session string) *rtaskclient.Client {
	w := e.base.WithSession(session)
	_, err := w.Heartbeat()
	require.NoError(t, err)
	return w
}

func completeBucket(t *testing.T, w *rtaskclient.Client, taskID string, grant *rtaskclient.BucketGrant) *rtaskclient.BucketAck {
	t.Helper()
	items := make([]dispatch.ItemUpdate, len(grant.ChunkData))
	for i := range items {
		items[i] = dispatch.ItemUpdate{LocalIndex: i, Status: rtask.ItemCompleted, Output: "ok"}
	}
	ack, err := w.RecordBucket(&dispatch.BucketReport{
		TaskID:      taskID,
		BucketIndex: grant.BucketIndex,
		RangeStart:  grant.RangeStart,
		RangeEnd:    grant.RangeEnd,
		ItemsCount:  len(grant.ChunkData),
		Items:       items,
	})
	require.NoError(t, err)
	require.True(t, ack.OK)
	return ack
}

// Two workers drain a paid task and every wallet ends where it should.
func TestMarketplaceSettlement(t *testing.T) {
	e := newEnv(t, dispatch.Options{}, ledger.Options{SeedAmount: d("20"), SandboxEnabled: true})

	customer := e.base.WithSession("cust-1")
	task, err := customer.CreateTask(&rtaskclient.CreateTaskParams{
		Name:               "thumbnail",
		MaxBuckets:         5,
		CostPerBucket:      d("2"),
		MaxBillableBuckets: 5,
		PlatformFeePercent: 10,
		Code:               strings.NewReader("archive"),
		Data:               itemsJSON(t, 10),
	})
	require.NoError(t, err)
	assert.Equal(t, "10", task.BudgetTotal.String())

	workers := []*rtaskclient.Client{
		onlineWorker(t, e, "w-1"),
		onlineWorker(t, e, "w-2"),
	}
	for _, w := range workers {
		_, err := w.ClaimTask(task.ID)
		require.NoError(t, err)
	}

	payouts := decimal.Zero
	buckets := 0
	for round := 0; round < 20; round++ {
		progressed := false
		for _, w := range workers {
			grant, err := w.NextBucket(task.ID)
			require.NoError(t, err)
			if !grant.OK {
				continue
			}
			progressed = true
			buckets++
			ack := completeBucket(t, w, task.ID, grant)
			require.NotNil(t, ack.Payout)
			payouts = payouts.Add(ack.Payout.Amount)
		}
		if !progressed {
			break
		}
	}
	assert.Equal(t, 5, buckets)
	assert.Equal(t, "9", payouts.String()) // 5 * 2 less the 10% fee

	final, err := customer.Task(task.ID)
	require.NoError(t, err)
	assert.Equal(t, rtask.TaskCompleted, final.Status)
	assert.Equal(t, float64(100), final.Progress)
	assert.Equal(t, 5, final.ChunksPaid)
	assert.Equal(t, "10", final.BudgetSpent.String())

	profile, err := customer.Me()
	require.NoError(t, err)
	assert.Equal(t, "10", profile.User.WalletBalance.String())

	combined := decimal.Zero
	for _, session := range []string{"w-1", "w-2"} {
		p, err := e.base.WithSession(session).Me()
		require.NoError(t, err)
		combined = combined.Add(p.User.WalletBalance)
	}
	assert.Equal(t, "9", combined.String())

	platform, err := e.led.Platform()
	require.NoError(t, err)
	assert.Equal(t, "1", platform.TotalEarnings.String())
}

// A worker that re-asks for work resumes its lease with progress intact.
func TestResumeAfterPartialProgress(t *testing.T) {
	e := newEnv(t, dispatch.Options{DisableBudgetChecks: true}, ledger.Options{SeedAmount: d("100"), SandboxEnabled: true})

	customer := e.base.WithSession("cust-1")
	task, err := customer.CreateTask(&rtaskclient.CreateTaskParams{
		Name:       "index",
		MaxBuckets: 2,
		Code:       strings.NewReader("archive"),
		Data:       itemsJSON(t, 4),
	})
	require.NoError(t, err)

	w := onlineWorker(t, e, "w-1")
	_, err = w.ClaimTask(task.ID)
	require.NoError(t, err)

	grant, err := w.NextBucket(task.ID)
	require.NoError(t, err)
	require.True(t, grant.OK)
	assert.False(t, grant.Resume)

	ack, err := w.RecordProgress(&dispatch.ProgressBatch{
		TaskID:         task.ID,
		BucketIndex:    grant.BucketIndex,
		RangeStart:     grant.RangeStart,
		ItemsProcessed: 1,
		TotalItems:     len(grant.ChunkData),
		Items: []dispatch.ItemUpdate{
			{LocalIndex: 0, Status: rtask.ItemCompleted, Output: "ok"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ack.Processed)
	assert.Equal(t, 2, ack.Total)

	resumed, err := w.NextBucket(task.ID)
	require.NoError(t, err)
	require.True(t, resumed.OK)
	assert.True(t, resumed.Resume)
	assert.Equal(t, grant.BucketIndex, resumed.BucketIndex)
	assert.Equal(t, grant.RangeStart, resumed.RangeStart)
	assert.Equal(t, grant.RangeEnd, resumed.RangeEnd)

	page, err := customer.TaskResults(task.ID)
	require.NoError(t, err)
	require.Len(t, page.Assignments, 1)
	assert.Equal(t, 1, page.Assignments[0].ProcessedCount)
}

// An expired lease frees its range for another worker under a new index.
func TestExpiredLeaseReassigned(t *testing.T) {
	e := newEnv(t, dispatch.Options{LeaseTTL: 50 * time.Millisecond, DisableBudgetChecks: true},
		ledger.Options{SeedAmount: d("100"), SandboxEnabled: true})

	customer := e.base.WithSession("cust-1")
	task, err := customer.CreateTask(&rtaskclient.CreateTaskParams{
		Name:       "index",
		MaxBuckets: 1,
		Code:       strings.NewReader("archive"),
		Data:       itemsJSON(t, 2),
	})
	require.NoError(t, err)

	w1 := onlineWorker(t, e, "w-1")
	w2 := onlineWorker(t, e, "w-2")
	for _, w := range []*rtaskclient.Client{w1, w2} {
		_, err := w.ClaimTask(task.ID)
		require.NoError(t, err)
	}

	first, err := w1.NextBucket(task.ID)
	require.NoError(t, err)
	require.True(t, first.OK)

	time.Sleep(80 * time.Millisecond)

	second, err := w2.NextBucket(task.ID)
	require.NoError(t, err)
	require.True(t, second.OK)
	assert.Equal(t, first.BucketIndex+1, second.BucketIndex)
	assert.Equal(t, first.RangeStart, second.RangeStart)
	assert.Equal(t, first.RangeEnd, second.RangeEnd)
}

// Revoking pauses hand-outs but keeps finished work; reinvoking restarts it.
func TestRevokePausesWork(t *testing.T) {
	e := newEnv(t, dispatch.Options{DisableBudgetChecks: true}, ledger.Options{SeedAmount: d("100"), SandboxEnabled: true})

	customer := e.base.WithSession("cust-1")
	task, err := customer.CreateTask(&rtaskclient.CreateTaskParams{
		Name:       "index",
		MaxBuckets: 2,
		Code:       strings.NewReader("archive"),
		Data:       itemsJSON(t, 4),
	})
	require.NoError(t, err)

	w := onlineWorker(t, e, "w-1")
	_, err = w.ClaimTask(task.ID)
	require.NoError(t, err)

	grant, err := w.NextBucket(task.ID)
	require.NoError(t, err)
	require.True(t, grant.OK)
	completeBucket(t, w, task.ID, grant)

	_, err = customer.RevokeTask(task.ID)
	require.NoError(t, err)

	denied, err := w.NextBucket(task.ID)
	require.NoError(t, err)
	assert.False(t, denied.OK)
	assert.Equal(t, "revoked", denied.Message)

	page, err := customer.TaskResults(task.ID)
	require.NoError(t, err)
	assert.Len(t, page.Results, 1, "finished work survives a revoke")

	_, err = customer.ReinvokeTask(task.ID)
	require.NoError(t, err)

	// the revoke cleared the worker set, so claiming again is required
	denied, err = w.NextBucket(task.ID)
	require.NoError(t, err)
	assert.False(t, denied.OK)
	assert.Equal(t, "not-assigned", denied.Message)

	_, err = w.ClaimTask(task.ID)
	require.NoError(t, err)

	grant, err = w.NextBucket(task.ID)
	require.NoError(t, err)
	require.True(t, grant.OK)
	completeBucket(t, w, task.ID, grant)

	final, err := customer.Task(task.ID)
	require.NoError(t, err)
	assert.Equal(t, rtask.TaskCompleted, final.Status)
}

// A single item larger than the requested bucket capacity forces the
// planner to grow the bucket rather than split the item.
func TestOversizedItemNormalizesBuckets(t *testing.T) {
	e := newEnv(t, dispatch.Options{DisableBudgetChecks: true}, ledger.Options{SeedAmount: d("100"), SandboxEnabled: true})

	big := strings.Repeat("A", 4<<20)
	data, err := json.Marshal([]string{big})
	require.NoError(t, err)

	customer := e.base.WithSession("cust-1")
	task, err := customer.CreateTask(&rtaskclient.CreateTaskParams{
		Name:           "transcode",
		MaxBuckets:     4,
		MaxBucketBytes: 1 << 20,
		Code:           strings.NewReader("archive"),
		Data:           data,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, task.BucketConfig.MaxBuckets)
	assert.GreaterOrEqual(t, task.BucketConfig.MaxBucketBytes, int64(2*(4<<20)))

	w := onlineWorker(t, e, "w-1")
	_, err = w.ClaimTask(task.ID)
	require.NoError(t, err)

	grant, err := w.NextBucket(task.ID)
	require.NoError(t, err)
	require.True(t, grant.OK)
	assert.Equal(t, 0, grant.RangeStart)
	assert.Equal(t, 1, grant.RangeEnd)
	require.Len(t, grant.ChunkData, 1)
}

// Once the billable cap is spent, further hand-outs bounce.
func TestBudgetExhaustion(t *testing.T) {
	e := newEnv(t, dispatch.Options{}, ledger.Options{SeedAmount: d("100"), SandboxEnabled: true})

	customer := e.base.WithSession("cust-1")
	task, err := customer.CreateTask(&rtaskclient.CreateTaskParams{
		Name:               "index",
		MaxBuckets:         2,
		CostPerBucket:      d("2"),
		MaxBillableBuckets: 1,
		Code:               strings.NewReader("archive"),
		Data:               itemsJSON(t, 4),
	})
	require.NoError(t, err)

	w := onlineWorker(t, e, "w-1")
	_, err = w.ClaimTask(task.ID)
	require.NoError(t, err)

	grant, err := w.NextBucket(task.ID)
	require.NoError(t, err)
	require.True(t, grant.OK)
	ack := completeBucket(t, w, task.ID, grant)
	require.NotNil(t, ack.Payout)

	denied, err := w.NextBucket(task.ID)
	require.NoError(t, err)
	assert.False(t, denied.OK)
	assert.Equal(t, "budget-exhausted", denied.Message)

	final, err := customer.Task(task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.ChunksPaid)
}

func TestTaskNotFound(t *testing.T) {
	e := newEnv(t, dispatch.Options{}, ledger.Options{SeedAmount: d("100"), SandboxEnabled: true})

	_, err := e.base.WithSession("cust-1").Task("no-such-task")
	assert.ErrorIs(t, err, rtaskclient.ErrNotFound)
}

func TestHealthProbe(t *testing.T) {
	e := newEnv(t, dispatch.Options{}, ledger.Options{})

	status, err := e.base.Health()
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}
