// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"

	_ "github.com/piconga/congasrv/lib/automaxprocs"
	"github.com/piconga/congasrv/lib/conga"
	"github.com/piconga/congasrv/lib/logger"
	"github.com/piconga/congasrv/lib/registry"
	"github.com/piconga/congasrv/lib/relay"
	"github.com/piconga/congasrv/lib/svcutil"
)

var l = logger.DefaultLogger.NewFacility("main", "Main package")

var (
	Version    string
	BuildStamp string
	BuildUser  string
	BuildHost  string

	BuildDate   time.Time
	LongVersion string
)

func init() {
	stamp, _ := strconv.Atoi(BuildStamp)
	BuildDate = time.Unix(int64(stamp), 0)

	date := BuildDate.UTC().Format("2006-01-02 15:04:05 MST")
	LongVersion = fmt.Sprintf(`congasrv %s (%s %s-%s) %s@%s %s`, Version, runtime.Version(), runtime.GOOS, runtime.GOARCH, BuildUser, BuildHost, date)
}

func main() {
	var (
		listen       string
		statusListen string
		backend      string
		dsn          string
		globalRate   int
		perConnRate  int
		drainTimeout time.Duration
		debug        bool
		showVersion  bool
	)

	flag.StringVar(&listen, "listen", ":8888", "Relay listen address")
	flag.StringVar(&statusListen, "status-listen", ":8890", "Status and metrics listen address (blank to disable)")
	flag.StringVar(&backend, "db-backend", "sqlite3", "Registry backend to use, sqlite3 or postgres")
	flag.StringVar(&dsn, "db-dsn", getEnvDefault("CONGASRV_DB_DSN", "piconga.db"), "Registry DSN")
	flag.IntVar(&globalRate, "global-rate", 0, "Global ingress rate limit, bytes/s (0 is unlimited)")
	flag.IntVar(&perConnRate, "per-conn-rate", 0, "Per connection ingress rate limit, bytes/s (0 is unlimited)")
	flag.DurationVar(&drainTimeout, "drain-timeout", 10*time.Second, "Time allowed for participants to drain at shutdown")
	flag.BoolVar(&debug, "debug", false, "Enable debug output")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.Parse()

	if showVersion {
		fmt.Println(LongVersion)
		return
	}

	if debug {
		logger.DefaultLogger.SetFlags(logger.DebugFlags)
		for facility := range logger.DefaultLogger.Facilities() {
			logger.DefaultLogger.SetDebug(facility, true)
		}
	}

	l.Infoln(LongVersion)

	store, err := registry.Open(backend, dsn)
	if err != nil {
		l.Warnln("Opening registry:", err)
		os.Exit(svcutil.ExitError.AsInt())
	}

	tracker := conga.NewTracker()

	spec := svcutil.SpecWithInfoLogger(l)
	if debug {
		spec = svcutil.SpecWithDebugLogger(l)
	}
	main := suture.New("main", spec)

	main.Add(relay.NewListener(listen, tracker, store, relay.NewLimiter(globalRate, perConnRate), drainTimeout))
	if statusListen != "" {
		main.Add(relay.NewStatusService(statusListen, tracker))
	}

	// INT and TERM initiate a graceful stop of the whole tree; the relay
	// listener drains its participants on the way down.
	main.Add(svcutil.AsService(func(ctx context.Context) error {
		stop := make(chan os.Signal, 1)
		sigTerm := syscall.Signal(15)
		signal.Notify(stop, os.Interrupt, sigTerm)
		defer signal.Stop(stop)
		select {
		case sig := <-stop:
			l.Infof("Received signal %s; shutting down", sig)
			return &svcutil.FatalErr{
				Err:    fmt.Errorf("received signal %s", sig),
				Status: svcutil.ExitSuccess,
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}, "main/signalHandler"))

	err = main.Serve(context.Background())

	exitStatus := svcutil.ExitSuccess
	var fatalErr *svcutil.FatalErr
	if errors.As(err, &fatalErr) {
		exitStatus = fatalErr.Status
	}
	if err != nil && exitStatus != svcutil.ExitSuccess {
		l.Warnln("Main supervisor:", err)
	}

	if err := store.Close(); err != nil {
		l.Warnln("Closing registry:", err)
	}
	l.Infoln("Exiting")
	os.Exit(exitStatus.AsInt())
}

func getEnvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
