// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"github.com/piconga/congasrv/lib/logger"
)

var (
	l = logger.DefaultLogger.NewFacility("relay", "Participant streams and frame forwarding")
)
