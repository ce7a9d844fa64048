// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "piconga",
		Subsystem: "relay",
		Name:      "connections_active",
		Help:      "Number of currently open participant connections.",
	})
	metricConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "piconga",
		Subsystem: "relay",
		Name:      "connections_total",
		Help:      "Total number of accepted participant connections.",
	})
	metricFramesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "piconga",
		Subsystem: "relay",
		Name:      "frames_relayed_total",
		Help:      "Messages handled by the forwarding path, by outcome.",
	}, []string{"result"})
	metricBytesProxied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "piconga",
		Subsystem: "relay",
		Name:      "bytes_proxied_total",
		Help:      "Bytes written to participant streams.",
	})
)

const (
	resultForwarded = "forwarded"
	resultStopped   = "stopped"
	resultDropped   = "dropped"
)
