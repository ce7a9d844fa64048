// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// Limiter applies a global and an optional per connection rate limit to
// ingress on participant streams. Rates are in bytes per second; zero
// means unlimited.
type Limiter struct {
	global  *rate.Limiter
	perConn int
}

const limiterBurstSize = 4 * 128 << 10

func NewLimiter(globalRate, perConnRate int) *Limiter {
	lim := &Limiter{perConn: perConnRate}
	if globalRate > 0 {
		lim.global = rate.NewLimiter(rate.Limit(globalRate), limiterBurstSize)
	}
	return lim
}

// reader wraps r with whatever limits are configured, or returns it
// unchanged when there are none.
func (lim *Limiter) reader(r io.Reader) io.Reader {
	if lim == nil || (lim.global == nil && lim.perConn <= 0) {
		return r
	}
	lr := &limitedReader{reader: r, global: lim.global}
	if lim.perConn > 0 {
		lr.perConn = rate.NewLimiter(rate.Limit(lim.perConn), limiterBurstSize)
	}
	return lr
}

type limitedReader struct {
	reader  io.Reader
	global  *rate.Limiter
	perConn *rate.Limiter
}

func (r *limitedReader) Read(buf []byte) (int, error) {
	n, err := r.reader.Read(buf)
	take(n, r.perConn, r.global)
	return n, err
}

// take blocks until all limiters have tokens available. Waits are
// limited to the burst size, so larger amounts are split up.
func take(tokens int, ls ...*rate.Limiter) {
	for tokens > 0 {
		chunk := tokens
		if chunk > limiterBurstSize {
			chunk = limiterBurstSize
		}
		for _, lim := range ls {
			if lim == nil {
				continue
			}
			_ = lim.WaitN(context.TODO(), chunk)
		}
		tokens -= chunk
	}
}
