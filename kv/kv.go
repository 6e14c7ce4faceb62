// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package kv defines the interfaces of the underlying key-value store.
package kv

// Range is the key range of iteration. From is inclusive, To exclusive.
// A nil To means iterating to the end of the keyspace.
type Range struct {
	From []byte
	To   []byte
}

// Getter wraps read methods.
type Getter interface {
	// Get returns the value stored under key.
	// A missing key yields an error checkable via IsNotFound.
	Get(key []byte) (value []byte, err error)
	Has(key []byte) (bool, error)
	IsNotFound(error) bool

	NewIterator(r Range) Iterator
}

// Putter wraps write methods.
type Putter interface {
	Put(key, value []byte) error
	Delete(key []byte) error

	NewBatch() Batch
}

// GetPutter combines reads and writes.
type GetPutter interface {
	Getter
	Putter
}

// GetPutCloser is a GetPutter that must be closed after use.
type GetPutCloser interface {
	GetPutter
	Close() error
}

// Batch queues writes for one atomic commit.
type Batch interface {
	Putter

	Len() int
	Write() error
}

// Iterator walks kv pairs in key order.
type Iterator interface {
	Next() bool
	Release()
	Error() error

	Key() []byte
	Value() []byte
}
