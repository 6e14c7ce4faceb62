// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"errors"
	"reflect"
	"sort"
	"testing"
)

type mem map[string]string

func (m mem) Get(k []byte) ([]byte, error) {
	if v, ok := m[string(k)]; ok {
		return []byte(v), nil
	}
	return nil, errors.New("not found")
}

func (m mem) Has(k []byte) (bool, error) {
	_, ok := m[string(k)]
	return ok, nil
}

func (m mem) Put(k, v []byte) error {
	m[string(k)] = string(v)
	return nil
}

func (m mem) Delete(k []byte) error {
	delete(m, string(k))
	return nil
}

func (m mem) IsNotFound(err error) bool {
	return true
}

func (m mem) NewIterator(r Range) Iterator {
	var keys []string
	for k := range m {
		if k < string(r.From) {
			continue
		}
		if len(r.To) > 0 && k >= string(r.To) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	i := -1
	return &struct {
		NextFunc
		ReleaseFunc
		ErrorFunc
		KeyFunc
		ValueFunc
	}{
		func() bool { i++; return i < len(keys) },
		func() {},
		func() error { return nil },
		func() []byte { return []byte(keys[i]) },
		func() []byte { return []byte(m[keys[i]]) },
	}
}

func (m mem) NewBatch() Batch {
	return &memBatch{m: m}
}

type memBatch struct {
	m   mem
	ops []func()
}

func (b *memBatch) Put(k, v []byte) error {
	kk, vv := string(k), string(v)
	b.ops = append(b.ops, func() { b.m[kk] = vv })
	return nil
}

func (b *memBatch) Delete(k []byte) error {
	kk := string(k)
	b.ops = append(b.ops, func() { delete(b.m, kk) })
	return nil
}

func (b *memBatch) NewBatch() Batch { return &memBatch{m: b.m} }
func (b *memBatch) Len() int        { return len(b.ops) }

func (b *memBatch) Write() error {
	for _, op := range b.ops {
		op()
	}
	return nil
}

func TestBucket_GetterGet(t *testing.T) {
	m := mem{"k1": "v1", "k2": "v2"}

	tests := []struct {
		b    Bucket
		key  string
		want string
	}{
		{Bucket(""), "k1", "v1"},
		{Bucket(""), "k2", "v2"},
		{Bucket("k"), "k1", ""},
		{Bucket("k"), "1", "v1"},
		{Bucket("k"), "2", "v2"},
		{Bucket("k1"), "", "v1"},
	}
	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			if got, _ := tt.b.NewGetter(m).Get([]byte(tt.key)); !reflect.DeepEqual(string(got), tt.want) {
				t.Errorf("Bucket.NewGetter.Get = %v, want %v", string(got), tt.want)
			}
		})
	}
}

func TestBucket_GetterHas(t *testing.T) {
	m := mem{"k1": "v1", "k2": "v2"}

	tests := []struct {
		b    Bucket
		key  string
		want bool
	}{
		{Bucket(""), "k1", true},
		{Bucket(""), "k2", true},
		{Bucket("k"), "k1", false},
		{Bucket("k"), "1", true},
		{Bucket("k"), "2", true},
		{Bucket("k1"), "", true},
	}
	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			if got, _ := tt.b.NewGetter(m).Has([]byte(tt.key)); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Bucket.NewGetter.Has = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBucket_PutterPutDelete(t *testing.T) {
	m := mem{}
	p := Bucket("b").NewPutter(m)

	if err := p.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	if got := m["bk"]; got != "v" {
		t.Errorf("raw key after bucket put = %v, want %v", m, "bk")
	}
	if err := p.Delete([]byte("k")); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["bk"]; ok {
		t.Errorf("raw key still there after bucket delete")
	}
}

func TestBucket_StoreIterate(t *testing.T) {
	m := mem{"a1": "v1", "a2": "v2", "b1": "v3"}

	collect := func(it Iterator) map[string]string {
		defer it.Release()
		got := map[string]string{}
		for it.Next() {
			got[string(it.Key())] = string(it.Value())
		}
		return got
	}

	tests := []struct {
		b    Bucket
		r    Range
		want map[string]string
	}{
		{Bucket("a"), Range{}, map[string]string{"1": "v1", "2": "v2"}},
		{Bucket("a"), Range{From: []byte("2")}, map[string]string{"2": "v2"}},
		{Bucket("a"), Range{To: []byte("2")}, map[string]string{"1": "v1"}},
		{Bucket("b"), Range{}, map[string]string{"1": "v3"}},
		{Bucket("c"), Range{}, map[string]string{}},
	}
	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			got := collect(tt.b.NewStore(m).NewIterator(tt.r))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Bucket.NewStore.NewIterator = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBucket_StoreBatch(t *testing.T) {
	m := mem{"bx": "old"}

	batch := Bucket("b").NewStore(m).NewBatch()
	if err := batch.Put([]byte("k1"), []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := batch.Put([]byte("k2"), []byte("v2")); err != nil {
		t.Fatal(err)
	}
	if err := batch.Delete([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if batch.Len() != 3 {
		t.Errorf("batch.Len = %v, want 3", batch.Len())
	}

	// nothing applied before write
	if len(m) != 1 {
		t.Errorf("store modified before batch write: %v", m)
	}
	if err := batch.Write(); err != nil {
		t.Fatal(err)
	}

	want := mem{"bk1": "v1", "bk2": "v2"}
	if !reflect.DeepEqual(m, want) {
		t.Errorf("store after batch write = %v, want %v", m, want)
	}
}
