// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"io"
	"strings"
	"testing"

	"golang.org/x/time/rate"
)

func TestLimiterPassthrough(t *testing.T) {
	r := strings.NewReader("hello")

	if got := NewLimiter(0, 0).reader(r); got != io.Reader(r) {
		t.Errorf("unlimited limiter wrapped the reader in %T", got)
	}

	var lim *Limiter
	if got := lim.reader(r); got != io.Reader(r) {
		t.Errorf("nil limiter wrapped the reader in %T", got)
	}
}

func TestLimiterWraps(t *testing.T) {
	cases := []*Limiter{
		NewLimiter(1<<30, 0),
		NewLimiter(0, 1<<30),
		NewLimiter(1<<30, 1<<30),
	}
	for _, lim := range cases {
		r := lim.reader(strings.NewReader("hello"))
		if _, ok := r.(*limitedReader); !ok {
			t.Fatalf("limiter did not wrap the reader, got %T", r)
		}
		bs, err := io.ReadAll(r)
		if err != nil {
			t.Fatal(err)
		}
		if string(bs) != "hello" {
			t.Errorf("read %q through limiter", bs)
		}
	}
}

func TestTakeSplitsLargeWaits(t *testing.T) {
	// Each WaitN call must stay within the configured burst, or the wait
	// errors out and the tokens are never consumed. At this rate the
	// whole take finishes in a few milliseconds.
	lim := rate.NewLimiter(rate.Limit(1<<30), limiterBurstSize)
	take(3*limiterBurstSize+17, lim, nil)
}
