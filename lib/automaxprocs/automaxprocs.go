// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package automaxprocs sets GOMAXPROCS from the container CPU quota on
// import. Blank import it from package main.
package automaxprocs

import (
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/piconga/congasrv/lib/logger"
)

var l = logger.DefaultLogger.NewFacility("automaxprocs", "Sets GOMAXPROCS from the CPU quota")

func init() {
	if _, err := maxprocs.Set(maxprocs.Logger(l.Debugf)); err != nil {
		l.Warnln("Adjusting GOMAXPROCS:", err)
	}
}
