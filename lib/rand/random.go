// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package rand supplies cryptographically strong random numbers for
// message id generation.
package rand

import (
	"bufio"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"

	"github.com/piconga/congasrv/lib/sync"
)

// The buffered reader amortises the syscall cost of crypto/rand over many
// small reads. The mutex keeps concurrent callers from interleaving
// partial reads.
var defaultSource = &source{
	mut: sync.NewMutex(),
	rd:  bufio.NewReader(cryptoRand.Reader),
}

type source struct {
	mut sync.Mutex
	rd  io.Reader
}

func (s *source) read(buf []byte) {
	s.mut.Lock()
	defer s.mut.Unlock()
	if _, err := io.ReadFull(s.rd, buf); err != nil {
		panic("randomness failure: " + err.Error())
	}
}

// Uint64 returns a strongly random uint64.
func Uint64() uint64 {
	var buf [8]byte
	defaultSource.read(buf[:])
	return binary.BigEndian.Uint64(buf[:])
}
