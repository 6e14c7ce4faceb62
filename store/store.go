// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package store persists the market state in named collections over a
// key-value store: tasks, chunkResults, chunkAssignments, users,
// walletTransactions and platformLedger, plus on-disk task artifacts.
package store

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb/util"
	"golang.org/x/sync/singleflight"

	"github.com/rtask/rtask/cache"
	"github.com/rtask/rtask/kv"
	"github.com/rtask/rtask/rtask"
)

// collection prefixes
const (
	tasksBucket        = kv.Bucket("t")
	resultsBucket      = kv.Bucket("r")
	assignmentsBucket  = kv.Bucket("a")
	usersBucket        = kv.Bucket("u")
	transactionsBucket = kv.Bucket("x")
	platformBucket     = kv.Bucket("p")
)

var platformKey = []byte("ledger")

// Options for creating a store.
type Options struct {
	// ItemsCacheSize is the number of decoded items blobs kept in memory.
	ItemsCacheSize int
}

// Store is the persistence layer of the market node.
type Store struct {
	db      kv.GetPutCloser
	dataDir string

	tasks        kv.GetPutter
	results      kv.GetPutter
	assignments  kv.GetPutter
	users        kv.GetPutter
	transactions kv.GetPutter
	platform     kv.GetPutter

	itemsCache *cache.LRU
	itemsGroup singleflight.Group
	cacheStats cache.Stats
}

// New creates a store over db, keeping task artifacts under dataDir.
func New(db kv.GetPutCloser, dataDir string, opts Options) (*Store, error) {
	if opts.ItemsCacheSize < 1 {
		opts.ItemsCacheSize = 16
	}
	itemsCache, err := cache.NewLRU(opts.ItemsCacheSize)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "artifacts"), 0700); err != nil {
		return nil, errors.Wrap(err, "create artifacts dir")
	}

	return &Store{
		db:      db,
		dataDir: dataDir,

		tasks:        tasksBucket.NewStore(db),
		results:      resultsBucket.NewStore(db),
		assignments:  assignmentsBucket.NewStore(db),
		users:        usersBucket.NewStore(db),
		transactions: transactionsBucket.NewStore(db),
		platform:     platformBucket.NewStore(db),

		itemsCache: itemsCache,
	}, nil
}

// IsNotFound checks whether an error returned by a getter means key not found.
func (s *Store) IsNotFound(err error) bool {
	return s.db.IsNotFound(errors.Cause(err))
}

// CacheStats returns the items cache hit/miss counters and whether the hit
// rate changed since the last call.
func (s *Store) CacheStats() (changed bool, hit, miss int64) {
	changed, hit, miss = s.cacheStats.Stats()
	return
}

// --- tasks ---

// GetTask loads one task.
func (s *Store) GetTask(id string) (*rtask.Task, error) {
	data, err := s.tasks.Get([]byte(id))
	if err != nil {
		return nil, errors.WithMessage(err, "get task")
	}
	var t rtask.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrap(err, "decode task")
	}
	return &t, nil
}

// PutTask saves one task.
func (s *Store) PutTask(t *rtask.Task) error {
	return putJSON(s.tasks, []byte(t.ID), t)
}

// IterateTasks walks every stored task until fn returns false.
func (s *Store) IterateTasks(fn func(*rtask.Task) bool) error {
	it := s.tasks.NewIterator(kv.Range{})
	defer it.Release()
	for it.Next() {
		var t rtask.Task
		if err := json.Unmarshal(it.Value(), &t); err != nil {
			return errors.Wrap(err, "decode task")
		}
		if !fn(&t) {
			break
		}
	}
	return it.Error()
}

// --- bucket results ---

// GetResult loads the result of bucket (taskID, index).
func (s *Store) GetResult(taskID string, index int) (*rtask.BucketResult, error) {
	data, err := s.results.Get(bucketKey(taskID, index))
	if err != nil {
		return nil, errors.WithMessage(err, "get result")
	}
	var r rtask.BucketResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrap(err, "decode result")
	}
	return &r, nil
}

// PutResult saves one bucket result.
func (s *Store) PutResult(r *rtask.BucketResult) error {
	return putJSON(s.results, bucketKey(r.TaskID, r.BucketIndex), r)
}

// ResultsByTask returns all results of a task ordered by bucket index.
func (s *Store) ResultsByTask(taskID string) ([]*rtask.BucketResult, error) {
	var results []*rtask.BucketResult
	it := s.results.NewIterator(taskRange(taskID))
	defer it.Release()
	for it.Next() {
		var r rtask.BucketResult
		if err := json.Unmarshal(it.Value(), &r); err != nil {
			return nil, errors.Wrap(err, "decode result")
		}
		results = append(results, &r)
	}
	return results, it.Error()
}

// --- bucket assignments ---

// GetAssignment loads the lease of bucket (taskID, index).
func (s *Store) GetAssignment(taskID string, index int) (*rtask.BucketAssignment, error) {
	data, err := s.assignments.Get(bucketKey(taskID, index))
	if err != nil {
		return nil, errors.WithMessage(err, "get assignment")
	}
	var a rtask.BucketAssignment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, errors.Wrap(err, "decode assignment")
	}
	return &a, nil
}

// PutAssignment saves one lease.
func (s *Store) PutAssignment(a *rtask.BucketAssignment) error {
	return putJSON(s.assignments, bucketKey(a.TaskID, a.BucketIndex), a)
}

// AssignmentsByTask returns all leases of a task ordered by bucket index.
func (s *Store) AssignmentsByTask(taskID string) ([]*rtask.BucketAssignment, error) {
	var leases []*rtask.BucketAssignment
	it := s.assignments.NewIterator(taskRange(taskID))
	defer it.Release()
	for it.Next() {
		var a rtask.BucketAssignment
		if err := json.Unmarshal(it.Value(), &a); err != nil {
			return nil, errors.Wrap(err, "decode assignment")
		}
		leases = append(leases, &a)
	}
	return leases, it.Error()
}

// --- users ---

// GetUser loads a user by session id.
func (s *Store) GetUser(sessionID string) (*rtask.User, error) {
	data, err := s.users.Get([]byte(sessionID))
	if err != nil {
		return nil, errors.WithMessage(err, "get user")
	}
	var u rtask.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, errors.Wrap(err, "decode user")
	}
	return &u, nil
}

// PutUser saves one user, keyed by session id.
func (s *Store) PutUser(u *rtask.User) error {
	return putJSON(s.users, []byte(u.SessionID), u)
}

// --- wallet transactions ---

// TransactionsByAccount returns the append-only transaction stream of one
// account in write order. accountID is the user id or rtask.PlatformUserID.
func (s *Store) TransactionsByAccount(accountID string) ([]*rtask.WalletTransaction, error) {
	var txs []*rtask.WalletTransaction
	it := s.transactions.NewIterator(kv.Range{
		From: []byte(accountID),
		To:   util.BytesPrefix([]byte(accountID)).Limit,
	})
	defer it.Release()
	for it.Next() {
		var tx rtask.WalletTransaction
		if err := json.Unmarshal(it.Value(), &tx); err != nil {
			return nil, errors.Wrap(err, "decode transaction")
		}
		txs = append(txs, &tx)
	}
	return txs, it.Error()
}

// --- platform ledger ---

// GetPlatformLedger loads the singleton platform ledger, or a zero one if
// never written.
func (s *Store) GetPlatformLedger() (*rtask.PlatformLedger, error) {
	data, err := s.platform.Get(platformKey)
	if err != nil {
		if s.IsNotFound(err) {
			return &rtask.PlatformLedger{}, nil
		}
		return nil, errors.WithMessage(err, "get platform ledger")
	}
	var pl rtask.PlatformLedger
	if err := json.Unmarshal(data, &pl); err != nil {
		return nil, errors.Wrap(err, "decode platform ledger")
	}
	return &pl, nil
}

// --- composite writes ---

// Batch groups writes across collections into one atomic commit, so readers
// never observe torn halves of a composite mutation.
type Batch struct {
	inner        kv.Batch
	tasks        kv.Putter
	results      kv.Putter
	assignments  kv.Putter
	users        kv.Putter
	transactions kv.Putter
	platform     kv.Putter
}

// NewBatch creates an empty composite batch.
func (s *Store) NewBatch() *Batch {
	inner := s.db.NewBatch()
	return &Batch{
		inner:        inner,
		tasks:        tasksBucket.NewPutter(inner),
		results:      resultsBucket.NewPutter(inner),
		assignments:  assignmentsBucket.NewPutter(inner),
		users:        usersBucket.NewPutter(inner),
		transactions: transactionsBucket.NewPutter(inner),
		platform:     platformBucket.NewPutter(inner),
	}
}

// PutTask queues a task write.
func (b *Batch) PutTask(t *rtask.Task) error {
	return putJSON(b.tasks, []byte(t.ID), t)
}

// DeleteTask queues a task delete.
func (b *Batch) DeleteTask(id string) error {
	return b.tasks.Delete([]byte(id))
}

// PutResult queues a bucket result write.
func (b *Batch) PutResult(r *rtask.BucketResult) error {
	return putJSON(b.results, bucketKey(r.TaskID, r.BucketIndex), r)
}

// DeleteResult queues a bucket result delete.
func (b *Batch) DeleteResult(taskID string, index int) error {
	return b.results.Delete(bucketKey(taskID, index))
}

// PutAssignment queues a lease write.
func (b *Batch) PutAssignment(a *rtask.BucketAssignment) error {
	return putJSON(b.assignments, bucketKey(a.TaskID, a.BucketIndex), a)
}

// DeleteAssignment queues a lease delete.
func (b *Batch) DeleteAssignment(taskID string, index int) error {
	return b.assignments.Delete(bucketKey(taskID, index))
}

// PutUser queues a user write.
func (b *Batch) PutUser(u *rtask.User) error {
	return putJSON(b.users, []byte(u.SessionID), u)
}

// PutTransaction queues a wallet transaction write under (accountID, seq).
func (b *Batch) PutTransaction(accountID string, seq uint64, tx *rtask.WalletTransaction) error {
	return putJSON(b.transactions, txKey(accountID, seq), tx)
}

// PutPlatformLedger queues the platform ledger write.
func (b *Batch) PutPlatformLedger(pl *rtask.PlatformLedger) error {
	return putJSON(b.platform, platformKey, pl)
}

// Len returns the number of queued writes.
func (b *Batch) Len() int { return b.inner.Len() }

// Write commits the batch.
func (b *Batch) Write() error {
	return errors.WithMessage(b.inner.Write(), "store batch")
}

// RemoveTask deletes the task record and cascades to its results, leases,
// cached items and on-disk artifacts.
func (s *Store) RemoveTask(taskID string) error {
	batch := s.NewBatch()
	if err := batch.DeleteTask(taskID); err != nil {
		return err
	}

	wipe := func(src kv.Getter, dst kv.Putter) error {
		it := src.NewIterator(taskRange(taskID))
		defer it.Release()
		for it.Next() {
			if err := dst.Delete(it.Key()); err != nil {
				return err
			}
		}
		return it.Error()
	}
	if err := wipe(s.results, batch.results); err != nil {
		return err
	}
	if err := wipe(s.assignments, batch.assignments); err != nil {
		return err
	}

	if err := batch.Write(); err != nil {
		return err
	}

	s.itemsCache.Remove(taskID)
	return s.removeArtifacts(taskID)
}

// --- key encoding ---

// bucketKey is taskID followed by the big-endian bucket index, so per-task
// scans are prefix scans in index order. Task ids are fixed-width uuids.
func bucketKey(taskID string, index int) []byte {
	key := make([]byte, 0, len(taskID)+4)
	key = append(key, taskID...)
	return binary.BigEndian.AppendUint32(key, uint32(index))
}

// txKey is accountID followed by the big-endian sequence number. Account ids
// are fixed-width uuids or the literal platform id; prefixes never collide.
func txKey(accountID string, seq uint64) []byte {
	key := make([]byte, 0, len(accountID)+8)
	key = append(key, accountID...)
	return binary.BigEndian.AppendUint64(key, seq)
}

func taskRange(taskID string) kv.Range {
	r := util.BytesPrefix([]byte(taskID))
	return kv.Range{From: r.Start, To: r.Limit}
}

func putJSON(p kv.Putter, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode")
	}
	return p.Put(key, data)
}
