// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package rand

import (
	"testing"

	"github.com/piconga/congasrv/lib/sync"
)

func TestUint64(t *testing.T) {
	const draws = 1000

	seen := make(map[uint64]struct{}, draws)
	var bits uint64
	for i := 0; i < draws; i++ {
		v := Uint64()
		if _, dup := seen[v]; dup {
			t.Fatalf("repeated value %d after %d draws", v, i)
		}
		seen[v] = struct{}{}
		bits |= v
	}

	// Every bit position should have come up at least once by now;
	// anything else means we are truncating the source somewhere.
	if bits != ^uint64(0) {
		t.Errorf("bit coverage %064b", bits)
	}
}

func TestUint64Concurrent(t *testing.T) {
	const (
		workers = 16
		draws   = 200
	)

	res := make(chan uint64, workers*draws)
	wg := sync.NewWaitGroup()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < draws; j++ {
				res <- Uint64()
			}
		}()
	}
	wg.Wait()
	close(res)

	seen := make(map[uint64]struct{}, workers*draws)
	for v := range res {
		if _, dup := seen[v]; dup {
			t.Fatalf("repeated value %d", v)
		}
		seen[v] = struct{}{}
	}
	if len(seen) != workers*draws {
		t.Errorf("got %d values, expected %d", len(seen), workers*draws)
	}
}
