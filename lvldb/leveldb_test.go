// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package lvldb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rtask/rtask/kv"
)

func TestLevelDB(t *testing.T) {
	var (
		key        = []byte("123")
		value      = []byte("456")
		invalidKey = []byte("abc")
	)

	db, err := New(filepath.Join(t.TempDir(), "db"), Options{16, 16})
	assert.Nil(t, err)
	defer db.Close()

	memDB, err := NewMem()
	assert.Nil(t, err)
	defer memDB.Close()

	for _, db := range []*LevelDB{db, memDB} {
		err = db.Put(key, value)
		assert.Nil(t, err)

		ret1, err := db.Get(key)
		assert.Nil(t, err)

		ret2, err := db.Has(key)
		assert.Nil(t, err)

		ret3, err := db.Has(invalidKey)
		assert.Nil(t, err)

		err = db.Delete(key)
		assert.Nil(t, err)

		_, ret4 := db.Get(key)

		tests := []struct {
			ret      interface{}
			expected interface{}
		}{
			{ret1, value},
			{ret2, true},
			{ret3, false},
			{db.IsNotFound(ret4), true},
		}

		for _, tt := range tests {
			assert.Equal(t, tt.expected, tt.ret)
		}
	}
}

func TestLevelDBBatch(t *testing.T) {
	var (
		key   = []byte("123")
		value = []byte("456")
	)
	db, err := New(filepath.Join(t.TempDir(), "db"), Options{16, 16})
	assert.Nil(t, err)
	defer db.Close()

	batch := db.NewBatch()

	err = batch.Put(key, value)
	assert.Nil(t, err)

	ret1 := batch.Len()
	err = batch.Write()
	assert.Nil(t, err)

	ret2, err := db.Get(key)
	assert.Nil(t, err)

	assert.Equal(t, 1, ret1)
	assert.Equal(t, value, ret2)

	batch = batch.NewBatch()
	err = batch.Put(key, value)
	assert.Nil(t, err)

	err = batch.Delete(key)
	assert.Nil(t, err)
	assert.Equal(t, 2, batch.Len())
}

func TestLevelDBIterator(t *testing.T) {
	db, err := NewMem()
	assert.Nil(t, err)
	defer db.Close()

	for _, k := range []string{"a1", "a2", "b1"} {
		assert.Nil(t, db.Put([]byte(k), []byte("v-"+k)))
	}

	it := db.NewIterator(kv.Range{From: []byte("a"), To: []byte("b")})
	defer it.Release()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	assert.Nil(t, it.Error())
	assert.Equal(t, []string{"a1", "a2"}, keys)
}
