// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

const itemsBlobName = "items.sz"

// Items is a task's decoded input sequence. Elements are stored compacted,
// so the length of each raw element is its canonical serialised size.
// Immutable once built; safe for concurrent readers.
type Items struct {
	Raw     []json.RawMessage
	Sizes   []int64
	Largest int64
	Total   int64
}

// Count returns the number of items.
func (it *Items) Count() int { return len(it.Raw) }

// Slice returns the items of the half-open range [start, end), clamped to
// the sequence bounds.
func (it *Items) Slice(start, end int) []json.RawMessage {
	if start < 0 {
		start = 0
	}
	if end > len(it.Raw) {
		end = len(it.Raw)
	}
	if start >= end {
		return nil
	}
	return it.Raw[start:end]
}

// PutItems canonicalises the uploaded JSON array, writes it compressed into
// the task's artifacts directory and primes the cache. An empty data slice
// counts as an empty array.
func (s *Store) PutItems(taskID string, data []byte) (*Items, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("[]")
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, errors.Wrap(err, "data must be a JSON array")
	}

	var blob bytes.Buffer
	blob.WriteByte('[')
	for i, elem := range elems {
		if i > 0 {
			blob.WriteByte(',')
		}
		if err := json.Compact(&blob, elem); err != nil {
			return nil, errors.Wrapf(err, "compact item %d", i)
		}
	}
	blob.WriteByte(']')

	dir := s.ArtifactsDir(taskID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "create task artifacts dir")
	}
	enc := snappy.Encode(nil, blob.Bytes())
	if err := os.WriteFile(filepath.Join(dir, itemsBlobName), enc, 0600); err != nil {
		return nil, errors.Wrap(err, "write items blob")
	}

	items, err := decodeItems(blob.Bytes())
	if err != nil {
		return nil, err
	}
	s.itemsCache.Add(taskID, items)
	return items, nil
}

// LoadItems returns the decoded items of a task, reading and caching the
// blob on miss. Concurrent loads of the same blob are coalesced.
func (s *Store) LoadItems(taskID string) (*Items, error) {
	if v, ok := s.itemsCache.Get(taskID); ok {
		s.cacheStats.Hit()
		return v.(*Items), nil
	}
	s.cacheStats.Miss()

	v, err, _ := s.itemsGroup.Do(taskID, func() (interface{}, error) {
		if v, ok := s.itemsCache.Get(taskID); ok {
			return v, nil
		}
		enc, err := os.ReadFile(filepath.Join(s.ArtifactsDir(taskID), itemsBlobName))
		if err != nil {
			return nil, errors.Wrap(err, "read items blob")
		}
		blob, err := snappy.Decode(nil, enc)
		if err != nil {
			return nil, errors.Wrap(err, "decompress items blob")
		}
		items, err := decodeItems(blob)
		if err != nil {
			return nil, err
		}
		s.itemsCache.Add(taskID, items)
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Items), nil
}

// decodeItems parses an already-compacted items blob.
func decodeItems(blob []byte) (*Items, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(blob, &elems); err != nil {
		return nil, errors.Wrap(err, "decode items blob")
	}

	items := &Items{
		Raw:   elems,
		Sizes: make([]int64, len(elems)),
	}
	for i, elem := range elems {
		size := int64(len(elem))
		items.Sizes[i] = size
		items.Total += size
		if size > items.Largest {
			items.Largest = size
		}
	}
	return items, nil
}

// ArtifactsDir returns the on-disk directory owned by the task.
func (s *Store) ArtifactsDir(taskID string) string {
	return filepath.Join(s.dataDir, "artifacts", taskID)
}

// SaveCodeArchive streams the uploaded code archive into the task's
// artifacts directory and returns the stored path.
func (s *Store) SaveCodeArchive(taskID, filename string, src io.Reader) (string, error) {
	dir := s.ArtifactsDir(taskID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", errors.Wrap(err, "create task artifacts dir")
	}

	path := filepath.Join(dir, "code"+safeExt(filename))
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return "", errors.Wrap(err, "create code archive")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", errors.Wrap(err, "write code archive")
	}
	return path, nil
}

func (s *Store) removeArtifacts(taskID string) error {
	return errors.Wrap(os.RemoveAll(s.ArtifactsDir(taskID)), "remove artifacts")
}

// safeExt keeps the original archive extension when it is harmless.
func safeExt(filename string) string {
	ext := filepath.Ext(filepath.Base(filename))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, c := range ext[1:] {
		isAlnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !isAlnum {
			return ""
		}
	}
	return ext
}
