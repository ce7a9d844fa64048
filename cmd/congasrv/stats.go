// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricBuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "piconga",
	Name:      "build_info",
	Help:      "A metric with a constant '1' value labeled by version, goversion, builduser and builddate.",
}, []string{"version", "goversion", "builduser", "builddate"})

func init() {
	metricBuildInfo.WithLabelValues(Version, runtime.Version(), BuildUser, BuildDate.UTC().Format("2006-01-02T15:04:05Z")).Set(1)
}
