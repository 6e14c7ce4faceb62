// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtask/rtask/lvldb"
	"github.com/rtask/rtask/rtask"
)

func TestPutItemsCanonicalSizes(t *testing.T) {
	s := newTestStore(t)
	taskID := rtask.NewID()

	// whitespace in the upload must not count towards item sizes
	items, err := s.PutItems(taskID, []byte(`[ {"a": 1},  "two" , 3 ]`))
	require.NoError(t, err)

	assert.Equal(t, 3, items.Count())
	assert.Equal(t, []int64{7, 5, 1}, items.Sizes)
	assert.Equal(t, int64(7), items.Largest)
	assert.Equal(t, int64(13), items.Total)
	assert.Equal(t, `{"a":1}`, string(items.Raw[0]))
}

func TestPutItemsEmpty(t *testing.T) {
	s := newTestStore(t)

	for _, data := range [][]byte{nil, []byte("  \n\t")} {
		items, err := s.PutItems(rtask.NewID(), data)
		require.NoError(t, err)
		assert.Equal(t, 0, items.Count())
		assert.Equal(t, int64(0), items.Largest)
	}
}

func TestPutItemsRejectsNonArray(t *testing.T) {
	s := newTestStore(t)

	_, err := s.PutItems(rtask.NewID(), []byte(`{"a": 1}`))
	assert.Error(t, err)

	_, err = s.PutItems(rtask.NewID(), []byte(`[1, 2`))
	assert.Error(t, err)
}

func TestLoadItemsFromDisk(t *testing.T) {
	dataDir := t.TempDir()
	taskID := rtask.NewID()

	db, err := lvldb.NewMem()
	require.NoError(t, err)
	defer db.Close()
	s1, err := New(db, dataDir, Options{})
	require.NoError(t, err)

	_, err = s1.PutItems(taskID, []byte(`["alpha", "beta", "gamma"]`))
	require.NoError(t, err)

	// a fresh store over the same data dir starts with a cold cache
	db2, err := lvldb.NewMem()
	require.NoError(t, err)
	defer db2.Close()
	s2, err := New(db2, dataDir, Options{})
	require.NoError(t, err)

	items, err := s2.LoadItems(taskID)
	require.NoError(t, err)
	require.Equal(t, 3, items.Count())
	assert.Equal(t, `"beta"`, string(items.Raw[1]))

	_, _, miss := s2.CacheStats()
	assert.Equal(t, int64(1), miss)

	// second load hits the cache
	_, err = s2.LoadItems(taskID)
	require.NoError(t, err)
	_, hit, miss := s2.CacheStats()
	assert.Equal(t, int64(1), hit)
	assert.Equal(t, int64(1), miss)
}

func TestLoadItemsMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LoadItems(rtask.NewID())
	assert.Error(t, err)
}

func TestItemsSliceClamped(t *testing.T) {
	s := newTestStore(t)
	taskID := rtask.NewID()

	items, err := s.PutItems(taskID, []byte(`[0, 1, 2, 3]`))
	require.NoError(t, err)

	assert.Len(t, items.Slice(1, 3), 2)
	assert.Len(t, items.Slice(-5, 2), 2)
	assert.Len(t, items.Slice(2, 100), 2)
	assert.Nil(t, items.Slice(3, 3))
	assert.Nil(t, items.Slice(4, 2))
}

func TestSaveCodeArchive(t *testing.T) {
	s := newTestStore(t)
	taskID := rtask.NewID()

	path, err := s.SaveCodeArchive(taskID, "bundle.zip", strings.NewReader("zipdata"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "code.zip"))

	// hostile filenames lose their extension
	path, err = s.SaveCodeArchive(taskID, "../../evil.sh?", strings.NewReader("x"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "code"))
	assert.True(t, strings.HasPrefix(path, s.ArtifactsDir(taskID)))
}

func TestSafeExt(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"bundle.zip", ".zip"},
		{"code.tar", ".tar"},
		{"noext", ""},
		{"trailingdot.", ""},
		{"weird.z!p", ""},
		{"long.extension12", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, safeExt(tt.filename), tt.filename)
	}
}
