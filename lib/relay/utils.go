// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package relay

import (
	"net"
	"time"
)

// keepAlivePeriod is how often dead peers are probed for. Participants
// are never disconnected merely for being idle.
const keepAlivePeriod = 2 * time.Minute

func setTCPOptions(conn net.Conn) error {
	if conn, ok := conn.(*net.TCPConn); ok {
		var err error
		if err = conn.SetLinger(0); err != nil {
			return err
		}
		if err = conn.SetNoDelay(true); err != nil {
			return err
		}
		if err = conn.SetKeepAlivePeriod(keepAlivePeriod); err != nil {
			return err
		}
		if err = conn.SetKeepAlive(true); err != nil {
			return err
		}
	}
	return nil
}
