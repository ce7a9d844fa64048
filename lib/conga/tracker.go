// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package conga

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Tracker hands out the Conga for a given ring id, creating it on first
// reference. Congas are never dropped: a ring whose members have all left
// keeps its identity and its suppression state for the next join.
type Tracker struct {
	congas *xsync.MapOf[int64, *Conga]
}

func NewTracker() *Tracker {
	return &Tracker{
		congas: xsync.NewMapOf[int64, *Conga](),
	}
}

// Get returns the conga with the given id, creating it if this is the
// first reference.
func (t *Tracker) Get(id int64) *Conga {
	c, loaded := t.congas.LoadOrCompute(id, func() *Conga {
		return NewConga(id)
	})
	if !loaded {
		metricRings.Inc()
		l.Debugf("tracking new conga %d", id)
	}
	return c
}

// Size returns the number of congas seen so far.
func (t *Tracker) Size() int {
	return t.congas.Size()
}

// Range calls fn for each tracked conga until fn returns false.
func (t *Tracker) Range(fn func(*Conga) bool) {
	t.congas.Range(func(_ int64, c *Conga) bool {
		return fn(c)
	})
}

// Members returns the total number of linked members across all congas.
func (t *Tracker) Members() int {
	var n int
	t.Range(func(c *Conga) bool {
		n += c.Len()
		return true
	})
	return n
}
