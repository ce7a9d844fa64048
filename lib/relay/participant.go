// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package relay accepts participant connections and forwards conga
// messages around their rings.
//
// Each connection is served by one Participant. A participant starts out
// opening, becomes up once a valid HELLO has linked it into its conga,
// and is closing once it has been torn down. All teardown, whether
// triggered by a BYE, a protocol violation or a dead stream, goes through
// the same bye path.
package relay

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/piconga/congasrv/lib/conga"
	"github.com/piconga/congasrv/lib/protocol"
	"github.com/piconga/congasrv/lib/registry"
	"github.com/piconga/congasrv/lib/sync"
)

// bytesProxied counts bytes written to participant streams, for the
// status endpoint rate calculation.
var bytesProxied int64

type State int

const (
	StateOpening State = iota
	StateUp
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateUp:
		return "up"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Participant is one connected conga member. It implements conga.Member
// so the ring can hand it frames to write to its stream.
type Participant struct {
	conn    net.Conn
	br      *bufio.Reader
	tracker *conga.Tracker
	store   registry.Store

	mut      sync.Mutex // guards the fields below
	state    State
	memberID int64
	ring     *conga.Conga
	dest     conga.Member

	writeMut sync.Mutex // serializes writes to conn
}

func newParticipant(conn net.Conn, tracker *conga.Tracker, store registry.Store, lim *Limiter) *Participant {
	return &Participant{
		conn:     conn,
		br:       bufio.NewReader(lim.reader(conn)),
		tracker:  tracker,
		store:    store,
		mut:      sync.NewMutex(),
		writeMut: sync.NewMutex(),
	}
}

// serve reads frames off the stream and dispatches them until the
// participant is closing or the stream dies. Any exit tears the
// participant down.
func (p *Participant) serve() {
	defer p.bye()
	for {
		f, err := protocol.ReadFrame(p.br)
		if err != nil {
			l.Debugf("%v: read: %v", p, err)
			return
		}
		if err := p.dispatch(f); err != nil {
			l.Debugf("%v: %s: %v", p, f.Verb, err)
			return
		}
		if p.State() == StateClosing {
			return
		}
	}
}

// dispatch routes a frame according to the participant state. A returned
// error means the exchange is broken and the caller should tear down.
func (p *Participant) dispatch(f *protocol.Frame) error {
	switch state := p.State(); {
	case state == StateClosing:
		// Late frames on a dying stream are ignored.
		return nil
	case state == StateOpening && f.Verb == protocol.VerbHello:
		return p.hello(f)
	case state == StateUp && f.Verb == protocol.VerbMsg:
		return p.forward(f)
	case state == StateUp && f.Verb == protocol.VerbBye:
		p.bye()
		return nil
	default:
		return fmt.Errorf("%s frame while %s", f.Verb, state)
	}
}

// hello links the participant into the conga the registry says it
// belongs to and moves it to the up state.
func (p *Participant) hello(f *protocol.Frame) error {
	raw, ok := f.Get(protocol.HeaderUserID)
	if !ok {
		// Nothing has been joined yet, so there is nothing to unwind.
		l.Debugf("%v: HELLO without %s", p, protocol.HeaderUserID)
		p.bye()
		return nil
	}
	memberID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("parsing %s %q: %w", protocol.HeaderUserID, raw, err)
	}

	congaID, err := p.store.LookupConga(memberID)
	if errors.Is(err, registry.ErrNotFound) {
		l.Infof("Member %d is in no conga; dropping connection", memberID)
		p.bye()
		return nil
	} else if err != nil {
		return fmt.Errorf("looking up member %d: %w", memberID, err)
	}

	ring := p.tracker.Get(congaID)

	// The ring orders members by ID, so the identity must be in place
	// before we join.
	p.mut.Lock()
	p.memberID = memberID
	p.ring = ring
	p.mut.Unlock()

	if err := ring.Join(p); err != nil {
		if errors.Is(err, conga.ErrDuplicateID) {
			l.Infof("Member %d is already linked into conga %d", memberID, congaID)
			p.bye()
			return nil
		}
		return err
	}

	p.setState(StateUp)
	l.Infof("Member %d joined conga %d from %s", memberID, congaID, p.conn.RemoteAddr())
	return nil
}

// forward sends a MSG one hop around the ring, stamping it with a
// Message-ID on first sight and suppressing it once it has gone all the
// way around.
func (p *Participant) forward(f *protocol.Frame) error {
	ring := p.ringRef()

	id, ok := f.Get(protocol.HeaderMessageID)
	if !ok {
		// First hop; stamp the frame so we can tell when it has been
		// around the whole ring.
		id = ring.NewMessage(p)
		f = f.WithMessageID(id)
		l.Debugf("%v: new message %s", p, strings.TrimSpace(id))
	}

	dest := p.destination()
	if dest == nil {
		// Raced with our own teardown; the frame has nowhere to go.
		metricFramesRelayed.WithLabelValues(resultDropped).Inc()
		return nil
	}

	if ring.StopLoop(id, dest.ID()) {
		l.Debugf("%v: message %s completed its loop", p, strings.TrimSpace(id))
		metricFramesRelayed.WithLabelValues(resultStopped).Inc()
		return nil
	}

	if err := dest.Deliver(f); err != nil {
		// The broken stream is the destination's; it has already torn
		// itself down. This participant carries on.
		l.Debugf("%v: forward to %d: %v", p, dest.ID(), err)
		metricFramesRelayed.WithLabelValues(resultDropped).Inc()
		return nil
	}
	metricFramesRelayed.WithLabelValues(resultForwarded).Inc()
	return nil
}

// bye tears the participant down: unlink from the ring, drop the
// registry row, forget the destination and close the stream. Safe to
// call any number of times, from any goroutine, and each step proceeds
// regardless of earlier failures.
func (p *Participant) bye() {
	p.mut.Lock()
	if p.state == StateClosing {
		p.mut.Unlock()
		return
	}
	p.state = StateClosing
	memberID := p.memberID
	ring := p.ring
	p.mut.Unlock()

	if ring != nil {
		if err := ring.Leave(p); err != nil {
			// Not being linked is normal when the hello never
			// completed.
			l.Debugf("%v: leave: %v", p, err)
		}
	}
	if memberID != 0 {
		if err := p.store.DeleteMembership(memberID); err != nil {
			l.Warnf("Removing membership for %d: %v", memberID, err)
		}
	}

	p.mut.Lock()
	p.dest = nil
	p.mut.Unlock()

	p.conn.Close()
	if memberID != 0 {
		l.Infof("Member %d left", memberID)
	}
}

// shutdown closes the stream without the usual departure bookkeeping.
// Used when the relay itself is going away: the registry rows must
// survive so participants can return after a restart.
func (p *Participant) shutdown() {
	p.mut.Lock()
	closing := p.state == StateClosing
	p.state = StateClosing
	p.mut.Unlock()
	if !closing {
		p.conn.Close()
	}
}

// ID returns the registry member ID, or zero before a successful HELLO.
func (p *Participant) ID() int64 {
	p.mut.Lock()
	defer p.mut.Unlock()
	return p.memberID
}

// SetDestination points the participant at its next hop. Called by the
// ring with its own lock held, so this must not call back into the ring.
func (p *Participant) SetDestination(m conga.Member) {
	p.mut.Lock()
	p.dest = m
	p.mut.Unlock()
}

// Deliver writes the frame to this participant's stream. On a write
// error the stream is dead and the participant tears itself down; the
// error is returned so the sender can account for the lost hop.
func (p *Participant) Deliver(f *protocol.Frame) error {
	bs := f.Marshal()
	p.writeMut.Lock()
	_, err := p.conn.Write(bs)
	p.writeMut.Unlock()
	if err != nil {
		p.bye()
		return err
	}
	atomic.AddInt64(&bytesProxied, int64(len(bs)))
	metricBytesProxied.Add(float64(len(bs)))
	return nil
}

func (p *Participant) State() State {
	p.mut.Lock()
	defer p.mut.Unlock()
	return p.state
}

func (p *Participant) setState(s State) {
	p.mut.Lock()
	p.state = s
	p.mut.Unlock()
}

func (p *Participant) destination() conga.Member {
	p.mut.Lock()
	defer p.mut.Unlock()
	return p.dest
}

func (p *Participant) ringRef() *conga.Conga {
	p.mut.Lock()
	defer p.mut.Unlock()
	return p.ring
}

func (p *Participant) String() string {
	return fmt.Sprintf("%s/%d", p.conn.RemoteAddr(), p.ID())
}
