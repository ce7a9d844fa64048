// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package sync

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/piconga/congasrv/lib/logger"
)

const (
	testThreshold = 100 * time.Millisecond
	shortHold     = 5 * time.Millisecond
	longHold      = 125 * time.Millisecond
)

// Sleeping shortHold must reliably come in under the threshold or every
// test here turns flaky. Probe once up front and skip on hosts where the
// scheduler cannot keep up.
var coarseTimers = func() bool {
	for i := 0; i < 25; i++ {
		t0 := time.Now()
		time.Sleep(shortHold)
		if time.Since(t0) > testThreshold {
			return true
		}
	}
	return false
}()

// enableLockLogging switches the package into its logged mode for the
// duration of one test and returns a func that reads the debug lines
// captured so far.
func enableLockLogging(t *testing.T) func() []string {
	t.Helper()
	if coarseTimers {
		t.Skip("timer granularity too coarse on this host")
	}

	debug = true
	l.SetDebug("sync", true)
	threshold = testThreshold
	t.Cleanup(func() {
		debug = false
		l.SetDebug("sync", false)
	})

	var mut sync.Mutex
	var lines []string
	l.AddHandler(logger.LevelDebug, func(_ logger.LogLevel, msg string) {
		mut.Lock()
		lines = append(lines, msg)
		mut.Unlock()
	})
	return func() []string {
		mut.Lock()
		defer mut.Unlock()
		return append([]string(nil), lines...)
	}
}

func TestConstructorsHonourDebug(t *testing.T) {
	debug = false
	l.SetDebug("sync", false)

	if _, ok := NewMutex().(*sync.Mutex); !ok {
		t.Error("expected the stdlib mutex when debugging is off")
	}
	if _, ok := NewRWMutex().(*sync.RWMutex); !ok {
		t.Error("expected the stdlib rwmutex when debugging is off")
	}
	if _, ok := NewWaitGroup().(*sync.WaitGroup); !ok {
		t.Error("expected the stdlib waitgroup when debugging is off")
	}

	debug = true
	l.SetDebug("sync", true)
	defer func() {
		debug = false
		l.SetDebug("sync", false)
	}()

	if _, ok := NewMutex().(*loggedMutex); !ok {
		t.Error("expected the logged mutex when debugging is on")
	}
	if _, ok := NewRWMutex().(*loggedRWMutex); !ok {
		t.Error("expected the logged rwmutex when debugging is on")
	}
	if _, ok := NewWaitGroup().(*loggedWaitGroup); !ok {
		t.Error("expected the logged waitgroup when debugging is on")
	}
}

func TestSlowMutexHoldIsLogged(t *testing.T) {
	captured := enableLockLogging(t)

	mut := NewMutex()
	mut.Lock()
	time.Sleep(shortHold)
	mut.Unlock()
	if n := len(captured()); n != 0 {
		t.Fatalf("%d debug lines after a short hold, expected none", n)
	}

	mut.Lock()
	time.Sleep(longHold)
	mut.Unlock()
	if n := len(captured()); n != 1 {
		t.Fatalf("%d debug lines after a long hold, expected one", n)
	}
}

func TestSlowWriteLockReportsReaders(t *testing.T) {
	captured := enableLockLogging(t)

	mut := NewRWMutex()
	mut.Lock()
	time.Sleep(longHold)
	mut.Unlock()
	if n := len(captured()); n != 1 {
		t.Fatalf("%d debug lines after a long hold, expected one", n)
	}

	// A reader that stalls the writer past the threshold gets named in
	// the slow lock report.
	mut.RLock()
	go func() {
		time.Sleep(longHold)
		mut.RUnlock()
	}()
	mut.Lock()
	mut.Unlock()

	lines := captured()
	if n := len(lines); n != 2 {
		t.Fatalf("%d debug lines after a stalled write lock, expected two", n)
	}
	last := lines[len(lines)-1]
	if !strings.Contains(last, "RUnlockers while locking:") || !strings.Contains(last, "sync_test.go:") {
		t.Errorf("slow lock report does not name the reader: %q", last)
	}
}

func TestSlowWaitIsLogged(t *testing.T) {
	captured := enableLockLogging(t)

	wg := NewWaitGroup()
	wg.Add(1)
	go func() {
		time.Sleep(shortHold)
		wg.Done()
	}()
	wg.Wait()
	if n := len(captured()); n != 0 {
		t.Fatalf("%d debug lines after a short wait, expected none", n)
	}

	wg = NewWaitGroup()
	wg.Add(1)
	go func() {
		time.Sleep(longHold)
		wg.Done()
	}()
	wg.Wait()
	if n := len(captured()); n != 1 {
		t.Fatalf("%d debug lines after a long wait, expected one", n)
	}
}
