// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package conga

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRings = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "piconga",
		Subsystem: "conga",
		Name:      "rings",
		Help:      "Number of congas tracked since start.",
	})
	metricMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "piconga",
		Subsystem: "conga",
		Name:      "members",
		Help:      "Number of currently linked members across all congas.",
	})
	metricMessagesOutstanding = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "piconga",
		Subsystem: "conga",
		Name:      "messages_outstanding",
		Help:      "Messages that have been stamped but not yet completed their loop.",
	})
)
