// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var registryOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "piconga",
	Subsystem: "registry",
	Name:      "operations_total",
	Help:      "Number of registry operations, per operation and result.",
}, []string{"operation", "result"})

const (
	opLookup = "lookup"
	opDelete = "delete"
	opInsert = "insert"

	resultSuccess  = "success"
	resultNotFound = "not_found"
	resultError    = "error"
)
