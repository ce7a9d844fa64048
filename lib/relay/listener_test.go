// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"bytes"
	"context"
	"slices"
	"testing"
	"time"

	"github.com/piconga/congasrv/lib/conga"
	"github.com/piconga/congasrv/lib/relay/client"
)

func TestListenerEndToEnd(t *testing.T) {
	store := newFakeStore(map[int64]int64{3: 7, 8: 7, 11: 7})
	tracker := conga.NewTracker()
	lsn := NewListener("127.0.0.1:0", tracker, store, NewLimiter(0, 0), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() { serveDone <- lsn.Serve(ctx) }()

	addr := lsn.Addr().String()
	ring := tracker.Get(7)

	dial := func(id int64) *client.Client {
		t.Helper()
		c, err := client.Dial(addr)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { c.Close() })
		if err := c.Hello(id); err != nil {
			t.Fatal(err)
		}
		return c
	}

	// Join out of id order; the ring must come out sorted regardless.
	c8 := dial(8)
	waitFor(t, "member 8 linked", func() bool {
		return slices.Equal(ring.MemberIDs(), []int64{8})
	})
	c3 := dial(3)
	waitFor(t, "member 3 linked", func() bool {
		return slices.Equal(ring.MemberIDs(), []int64{3, 8})
	})
	c11 := dial(11)
	waitFor(t, "member 11 linked", func() bool {
		return slices.Equal(ring.MemberIDs(), []int64{3, 8, 11})
	})

	// 3 sends; 8 then 11 see the identical frame; the loop ends quietly
	// back at 3.
	if err := c3.Send("carol", []byte("around we go")); err != nil {
		t.Fatal(err)
	}
	f8 := recv(t, c8)
	if !bytes.Equal(f8.Body, []byte("around we go")) {
		t.Errorf("body %q", f8.Body)
	}
	if err := c8.SendFrame(f8); err != nil {
		t.Fatal(err)
	}
	f11 := recv(t, c11)
	if !bytes.Equal(f8.Marshal(), f11.Marshal()) {
		t.Errorf("frame changed between hops:\n%q\n%q", f8.Marshal(), f11.Marshal())
	}
	if err := c11.SendFrame(f11); err != nil {
		t.Fatal(err)
	}
	expectNothing(t, c3)
	waitFor(t, "outstanding drained", func() bool { return ring.Outstanding() == 0 })

	// 8 departs cleanly: stream closed, ring restitched, row removed.
	if err := c8.Bye(); err != nil {
		t.Fatal(err)
	}
	expectClosed(t, c8)
	waitFor(t, "member 8 unlinked", func() bool {
		return slices.Equal(ring.MemberIDs(), []int64{3, 11})
	})

	// Shutdown cuts the remaining streams after the drain interval but
	// leaves their registry rows alone so they can return later.
	cancel()
	select {
	case err := <-serveDone:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("listener did not stop")
	}
	expectClosed(t, c3)
	expectClosed(t, c11)
	if dels := store.deletions(); !slices.Equal(dels, []int64{8}) {
		t.Errorf("registry deletions %v", dels)
	}
}

func TestListenerDrainWithoutParticipants(t *testing.T) {
	store := newFakeStore(nil)
	lsn := NewListener("127.0.0.1:0", conga.NewTracker(), store, nil, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() { serveDone <- lsn.Serve(ctx) }()
	lsn.Addr()

	// With nobody connected the drain interval must not be waited out.
	cancel()
	select {
	case err := <-serveDone:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("listener waited for the full drain interval")
	}
}
