// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import lru "github.com/hashicorp/golang-lru"

// LRU is a fixed-size LRU cache built on golang-lru.
type LRU struct {
	*lru.Cache
}

// NewLRU creates an LRU cache holding at most maxSize entries.
// maxSize must be > 0, or an error is returned.
func NewLRU(maxSize int) (*LRU, error) {
	c, err := lru.New(maxSize)
	if err != nil {
		return nil, err
	}
	return &LRU{c}, nil
}

// Loader loads the value for key on a cache miss.
type Loader func(key interface{}) (interface{}, error)

// GetOrLoad returns the cached value for key, calling loader and
// caching its result when the key is absent.
func (l *LRU) GetOrLoad(key interface{}, loader Loader) (interface{}, error) {
	if v, ok := l.Get(key); ok {
		return v, nil
	}
	v, err := loader(key)
	if err != nil {
		return nil, err
	}
	l.Add(key, v)
	return v, nil
}
