// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"context"
	"fmt"
	"net"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/piconga/congasrv/lib/conga"
	"github.com/piconga/congasrv/lib/registry"
	"github.com/piconga/congasrv/lib/svcutil"
	"github.com/piconga/congasrv/lib/sync"
)

// numConnections tracks currently open participant connections, for the
// status endpoint.
var numConnections int64

// Listener accepts participant connections and serves each on its own
// goroutine until the context is cancelled. It implements suture.Service.
type Listener struct {
	addr         string
	tracker      *conga.Tracker
	store        registry.Store
	limiter      *Limiter
	drainTimeout time.Duration

	bound     chan struct{}
	boundOnce stdsync.Once

	mut         sync.Mutex
	tcpListener net.Listener
	live        map[*Participant]struct{}
}

func NewListener(addr string, tracker *conga.Tracker, store registry.Store, lim *Limiter, drainTimeout time.Duration) *Listener {
	return &Listener{
		addr:         addr,
		tracker:      tracker,
		store:        store,
		limiter:      lim,
		drainTimeout: drainTimeout,
		bound:        make(chan struct{}),
		mut:          sync.NewMutex(),
		live:         make(map[*Participant]struct{}),
	}
}

func (lsn *Listener) Serve(ctx context.Context) error {
	tcpListener, err := net.Listen("tcp", lsn.addr)
	if err != nil {
		l.Warnln("Listen:", err)
		return svcutil.AsFatalErr(err, svcutil.ExitError)
	}
	defer tcpListener.Close()

	lsn.mut.Lock()
	lsn.tcpListener = tcpListener
	lsn.mut.Unlock()
	lsn.boundOnce.Do(func() { close(lsn.bound) })

	go func() {
		<-ctx.Done()
		tcpListener.Close()
	}()

	l.Infof("Relay listening on %s", tcpListener.Addr())

	wg := sync.NewWaitGroup()
	for {
		conn, err := tcpListener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			l.Warnln("Accepting connection:", err)
			continue
		}

		l.Debugln("connection from", conn.RemoteAddr())
		if err := setTCPOptions(conn); err != nil {
			l.Debugln("setting socket options:", err)
		}

		metricConnectionsTotal.Inc()
		metricConnectionsActive.Inc()
		atomic.AddInt64(&numConnections, 1)

		p := newParticipant(conn, lsn.tracker, lsn.store, lsn.limiter)
		lsn.track(p)
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.serve()
			lsn.untrack(p)
			metricConnectionsActive.Dec()
			atomic.AddInt64(&numConnections, -1)
		}()
	}

	// The port is gone; give the participants a bounded interval to say
	// their BYEs before cutting the remaining streams.
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(lsn.drainTimeout):
		l.Infof("Drain timed out after %v; closing remaining streams", lsn.drainTimeout)
		for _, p := range lsn.participants() {
			p.shutdown()
		}
		<-done
	}

	l.Infoln("Relay stopped")
	return nil
}

// Addr returns the bound listen address. It blocks until the listener
// has started.
func (lsn *Listener) Addr() net.Addr {
	<-lsn.bound
	lsn.mut.Lock()
	defer lsn.mut.Unlock()
	return lsn.tcpListener.Addr()
}

func (lsn *Listener) track(p *Participant) {
	lsn.mut.Lock()
	lsn.live[p] = struct{}{}
	lsn.mut.Unlock()
}

func (lsn *Listener) untrack(p *Participant) {
	lsn.mut.Lock()
	delete(lsn.live, p)
	lsn.mut.Unlock()
}

func (lsn *Listener) participants() []*Participant {
	lsn.mut.Lock()
	defer lsn.mut.Unlock()
	ps := make([]*Participant, 0, len(lsn.live))
	for p := range lsn.live {
		ps = append(ps, p)
	}
	return ps
}

func (lsn *Listener) String() string {
	return fmt.Sprintf("listener@%p", lsn)
}
