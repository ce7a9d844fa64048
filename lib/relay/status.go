// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/piconga/congasrv/lib/conga"
	"github.com/piconga/congasrv/lib/svcutil"
	"github.com/piconga/congasrv/lib/sync"
)

// StatusService serves operational state over HTTP: a JSON summary on
// /status and Prometheus metrics on /metrics.
type StatusService struct {
	addr    string
	tracker *conga.Tracker
	rc      *rateCalculator

	bound     chan struct{}
	boundOnce stdsync.Once

	mut         sync.Mutex
	tcpListener net.Listener
}

func NewStatusService(addr string, tracker *conga.Tracker) *StatusService {
	return &StatusService{
		addr:    addr,
		tracker: tracker,
		rc:      newRateCalculator(360, 10*time.Second, &bytesProxied),
		bound:   make(chan struct{}),
		mut:     sync.NewMutex(),
	}
}

func (s *StatusService) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		l.Warnln("Status listen:", err)
		return svcutil.AsFatalErr(err, svcutil.ExitError)
	}

	s.mut.Lock()
	s.tcpListener = listener
	s.mut.Unlock()
	s.boundOnce.Do(func() { close(s.bound) })

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.getStatus)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	l.Infof("Status service listening on %s", listener.Addr())

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	err = srv.Serve(listener)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Addr returns the bound listen address. It blocks until the service
// has started.
func (s *StatusService) Addr() net.Addr {
	<-s.bound
	s.mut.Lock()
	defer s.mut.Unlock()
	return s.tcpListener.Addr()
}

func (s *StatusService) getStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	congas := make([]map[string]interface{}, 0)
	s.tracker.Range(func(c *conga.Conga) bool {
		congas = append(congas, map[string]interface{}{
			"id":          c.ID(),
			"members":     c.MemberIDs(),
			"outstanding": c.Outstanding(),
		})
		return true
	})

	status := make(map[string]interface{})
	status["startTime"] = s.rc.startTime
	status["uptimeSeconds"] = time.Since(s.rc.startTime) / time.Second
	status["numConnections"] = atomic.LoadInt64(&numConnections)
	status["numCongas"] = s.tracker.Size()
	status["numParticipants"] = s.tracker.Members()
	status["congas"] = congas
	status["bytesProxied"] = atomic.LoadInt64(&bytesProxied)
	status["goVersion"] = runtime.Version()
	status["goOS"] = runtime.GOOS
	status["goArch"] = runtime.GOARCH
	status["goMaxProcs"] = runtime.GOMAXPROCS(-1)
	status["goNumRoutine"] = runtime.NumGoroutine()
	status["kbps10s1m5m15m30m60m"] = []int64{
		s.rc.rate(10/10) * 8 / 1000,
		s.rc.rate(60/10) * 8 / 1000,
		s.rc.rate(5*60/10) * 8 / 1000,
		s.rc.rate(15*60/10) * 8 / 1000,
		s.rc.rate(30*60/10) * 8 / 1000,
		s.rc.rate(60*60/10) * 8 / 1000,
	}

	bs, err := json.MarshalIndent(status, "", "    ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(bs)
}

func (s *StatusService) String() string {
	return fmt.Sprintf("status@%p", s)
}

type rateCalculator struct {
	counter   *int64
	startTime time.Time

	mut   sync.Mutex
	rates []int64
	prev  int64
}

func newRateCalculator(keepIntervals int, interval time.Duration, counter *int64) *rateCalculator {
	r := &rateCalculator{
		counter:   counter,
		startTime: time.Now(),
		mut:       sync.NewMutex(),
	}
	go r.updateRates(keepIntervals, interval)
	return r
}

func (r *rateCalculator) updateRates(keepIntervals int, interval time.Duration) {
	for {
		now := time.Now()
		next := now.Truncate(interval).Add(interval)
		time.Sleep(next.Sub(now))

		cur := atomic.LoadInt64(r.counter)
		r.mut.Lock()
		rate := int64(float64(cur-r.prev) / interval.Seconds())
		r.rates = append([]int64{rate}, r.rates...)
		if len(r.rates) > keepIntervals {
			r.rates = r.rates[:keepIntervals]
		}
		r.prev = cur
		r.mut.Unlock()
	}
}

// rate returns the average rate over the given number of periods, in
// units per second.
func (r *rateCalculator) rate(periods int) int64 {
	r.mut.Lock()
	defer r.mut.Unlock()
	var tot int64
	for i := 0; i < periods && i < len(r.rates); i++ {
		tot += r.rates[i]
	}
	return tot / int64(periods)
}
