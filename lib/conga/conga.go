// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package conga maintains the logical rings of connected participants and
// the in flight message bookkeeping used to stop messages that have gone
// all the way around.
package conga

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/piconga/congasrv/lib/protocol"
	"github.com/piconga/congasrv/lib/rand"
	"github.com/piconga/congasrv/lib/sync"
)

var (
	ErrDuplicateID = errors.New("member id already in conga")
	ErrNotMember   = errors.New("member not in conga")
)

// A Member is one linked participant in a conga. The ring rewires
// destinations as members join and leave; delivery itself is the member's
// business.
type Member interface {
	// ID returns the registry member id.
	ID() int64
	// SetDestination points the member at its next hop.
	SetDestination(Member)
	// Deliver writes a frame to the member's stream.
	Deliver(f *protocol.Frame) error
}

// A Conga is a ring of members ordered by ascending member id, the last
// pointing back at the first. Messages circulate hop by hop in id order
// until loop suppression reaps them.
type Conga struct {
	id          int64
	mut         sync.Mutex
	members     []Member         // ascending by ID, destinations linked
	outstanding map[string]int64 // trimmed message id => originator id
	randUint64  func() uint64    // swappable for testing
}

func NewConga(id int64) *Conga {
	return &Conga{
		id:          id,
		mut:         sync.NewMutex(),
		outstanding: make(map[string]int64),
		randUint64:  rand.Uint64,
	}
}

// ID returns the registry conga id.
func (c *Conga) ID() int64 {
	return c.id
}

// Join links m into the ring at its id ordered position. Only m and its new
// predecessor have their destinations touched. A member id already present
// is refused.
func (c *Conga) Join(m Member) error {
	c.mut.Lock()
	defer c.mut.Unlock()

	n := len(c.members)
	if n == 0 {
		c.members = append(c.members, m)
		m.SetDestination(m)
		metricMembers.Inc()
		l.Debugf("conga %d: %d joined as sole member", c.id, m.ID())
		return nil
	}

	// Fast path: an id above the current tail appends and wraps to the
	// head.
	if m.ID() > c.members[n-1].ID() {
		c.members = append(c.members, m)
		c.members[n-1].SetDestination(m)
		m.SetDestination(c.members[0])
		metricMembers.Inc()
		l.Debugf("conga %d: %d joined at tail", c.id, m.ID())
		return nil
	}

	for i, existing := range c.members {
		if existing.ID() == m.ID() {
			return fmt.Errorf("%w: %d", ErrDuplicateID, m.ID())
		}
		if existing.ID() > m.ID() {
			c.members = slices.Insert(c.members, i, m)
			m.SetDestination(existing)
			if i == 0 {
				c.members[len(c.members)-1].SetDestination(m)
			} else {
				c.members[i-1].SetDestination(m)
			}
			metricMembers.Inc()
			l.Debugf("conga %d: %d joined before %d", c.id, m.ID(), existing.ID())
			return nil
		}
	}

	panic("bug: conga ordering broken")
}

// Leave unlinks m and points its predecessor at its successor. Members
// match by identity, not id: a connection that was refused as a
// duplicate can run its cleanup without unlinking the member it
// collided with. Leaving a conga one is not in is an error.
func (c *Conga) Leave(m Member) error {
	c.mut.Lock()
	defer c.mut.Unlock()

	i := -1
	for j, existing := range c.members {
		if existing == m {
			i = j
			break
		}
	}
	if i < 0 {
		return fmt.Errorf("%w: %d", ErrNotMember, m.ID())
	}

	n := len(c.members)
	if n == 1 {
		c.members = c.members[:0]
		metricMembers.Dec()
		l.Debugf("conga %d: %d left, conga now empty", c.id, m.ID())
		return nil
	}

	prev := c.members[(i-1+n)%n]
	next := c.members[(i+1)%n]
	c.members = slices.Delete(c.members, i, i+1)
	prev.SetDestination(next)
	metricMembers.Dec()
	l.Debugf("conga %d: %d left, %d now points at %d", c.id, m.ID(), prev.ID(), next.ID())
	return nil
}

// NewMessage allocates a loop suppression id for a message entering the
// ring and records the originator against it. The returned id is the ten
// character wire form, space padded; the bookkeeping key is the trimmed
// form.
func (c *Conga) NewMessage(originator Member) string {
	c.mut.Lock()
	defer c.mut.Unlock()

	for {
		// Uniform over [1, 1<<32]; ten decimal digits at most.
		n := uint64(uint32(c.randUint64())) + 1
		wire := fmt.Sprintf("%10d", n)
		key := strings.TrimSpace(wire)
		if _, exists := c.outstanding[key]; exists {
			continue
		}
		c.outstanding[key] = originator.ID()
		metricMessagesOutstanding.Inc()
		l.Debugf("conga %d: message %s originated by %d", c.id, key, originator.ID())
		return wire
	}
}

// StopLoop reports whether the frame carrying the given message id should
// be suppressed instead of delivered to the member with id nextHopID. The
// entry is reaped when the message is back at its originator, or when the
// originator has left the ring. Ids we have no record of are suppressed
// outright.
func (c *Conga) StopLoop(messageID string, nextHopID int64) bool {
	c.mut.Lock()
	defer c.mut.Unlock()

	key := strings.TrimSpace(messageID)
	originator, ok := c.outstanding[key]
	if !ok {
		l.Debugf("conga %d: suppressing unknown message %s", c.id, key)
		return true
	}
	if originator == nextHopID {
		delete(c.outstanding, key)
		metricMessagesOutstanding.Dec()
		l.Debugf("conga %d: message %s completed its round", c.id, key)
		return true
	}
	if !c.hasMemberLocked(originator) {
		delete(c.outstanding, key)
		metricMessagesOutstanding.Dec()
		l.Debugf("conga %d: reaping message %s, originator %d left", c.id, key, originator)
		return true
	}
	return false
}

func (c *Conga) hasMemberLocked(id int64) bool {
	for _, m := range c.members {
		if m.ID() == id {
			return true
		}
	}
	return false
}

// Len returns the number of linked members.
func (c *Conga) Len() int {
	c.mut.Lock()
	defer c.mut.Unlock()
	return len(c.members)
}

// MemberIDs returns the member ids in ring order.
func (c *Conga) MemberIDs() []int64 {
	c.mut.Lock()
	defer c.mut.Unlock()
	ids := make([]int64, len(c.members))
	for i, m := range c.members {
		ids[i] = m.ID()
	}
	return ids
}

// Outstanding returns the number of messages still circulating.
func (c *Conga) Outstanding() int {
	c.mut.Lock()
	defer c.mut.Unlock()
	return len(c.outstanding)
}
