// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRU_GetOrLoad(t *testing.T) {
	c, err := NewLRU(2)
	assert.Nil(t, err)

	loads := 0
	loader := func(key interface{}) (interface{}, error) {
		loads++
		return key.(string) + "-v", nil
	}

	v, err := c.GetOrLoad("k1", loader)
	assert.Nil(t, err)
	assert.Equal(t, "k1-v", v)
	assert.Equal(t, 1, loads)

	// cached, loader not called again
	v, err = c.GetOrLoad("k1", loader)
	assert.Nil(t, err)
	assert.Equal(t, "k1-v", v)
	assert.Equal(t, 1, loads)

	// loader error is passed through and nothing cached
	wantErr := errors.New("load failed")
	_, err = c.GetOrLoad("k2", func(interface{}) (interface{}, error) {
		return nil, wantErr
	})
	assert.Equal(t, wantErr, err)
	_, ok := c.Get("k2")
	assert.False(t, ok)
}

func TestLRU_Eviction(t *testing.T) {
	c, err := NewLRU(2)
	assert.Nil(t, err)

	c.Add("k1", 1)
	c.Add("k2", 2)
	c.Add("k3", 3)

	_, ok := c.Get("k1")
	assert.False(t, ok)
	_, ok = c.Get("k3")
	assert.True(t, ok)
}
