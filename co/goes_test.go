// Copyright (c) 2025 The RTask developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package co_test

import (
	"sync/atomic"
	"testing"

	"github.com/rtask/rtask/co"
)

func TestGoes_Wait(t *testing.T) {
	var g co.Goes
	var n atomic.Int32

	for i := 0; i < 10; i++ {
		g.Go(func() { n.Add(1) })
	}
	g.Wait()

	if n.Load() != 10 {
		t.Fatalf("expected 10 goroutines to run, got %d", n.Load())
	}
}

func TestGoes_Done(t *testing.T) {
	var g co.Goes
	release := make(chan struct{})
	g.Go(func() { <-release })

	select {
	case <-g.Done():
		t.Fatal("done closed while goroutine still running")
	default:
	}

	close(release)
	<-g.Done()
}
