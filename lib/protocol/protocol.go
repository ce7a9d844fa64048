// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package protocol implements the conga wire protocol: CRLF delimited text
// frames consisting of a verb line, a header block and a counted body.
//
// A frame on the wire looks like
//
//	MSG\r\n
//	From: alice\r\n
//	Content-Length: 5\r\n
//	\r\n
//	hello
//
// The header block ends at the first blank line; the body is exactly
// Content-Length bytes and is never inspected by the relay.
package protocol

import "errors"

const (
	VerbHello = "HELLO"
	VerbMsg   = "MSG"
	VerbBye   = "BYE"
)

const (
	HeaderUserID        = "User-ID"
	HeaderMessageID     = "Message-ID"
	HeaderContentLength = "Content-Length"
	HeaderFrom          = "From"
)

const (
	// MaxHeaderBlock bounds the verb line plus header block of a single
	// frame. A peer that sends more than this without a terminating blank
	// line is broken or hostile.
	MaxHeaderBlock = 16 << 10

	// MaxContentLength bounds the body of a single frame.
	MaxContentLength = 1 << 20
)

var (
	ErrUnknownVerb     = errors.New("unknown verb")
	ErrMalformedHeader = errors.New("malformed header line")
	ErrDuplicateHeader = errors.New("duplicate header")
	ErrNoContentLength = errors.New("missing or invalid content length")
	ErrFrameTooLarge   = errors.New("frame exceeds size limit")
)
