// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// A Header is a single name/value pair as it appeared on the wire. Names
// are matched exactly; there is no case folding in this protocol.
type Header struct {
	Name  string
	Value string
}

// A Frame is one complete protocol unit. Headers preserves wire order and
// is duplicate free. The header block is retained as read so that a
// forwarded frame is byte for byte the frame that was received.
type Frame struct {
	Verb    string
	Headers []Header
	Body    []byte

	raw []byte // verb line + header lines + terminating blank line
}

var crlfcrlf = []byte("\r\n\r\n")

// ReadFrame reads one complete frame from br. It is called repeatedly on
// the same reader to stream frames off a connection. A clean connection
// close between frames returns io.EOF; a close mid frame returns
// io.ErrUnexpectedEOF.
func ReadFrame(br *bufio.Reader) (*Frame, error) {
	raw, err := readHeaderBlock(br)
	if err != nil {
		return nil, err
	}

	f := &Frame{raw: raw}

	lines := strings.Split(string(raw[:len(raw)-len(crlfcrlf)]), "\r\n")
	f.Verb = lines[0]
	switch f.Verb {
	case VerbHello, VerbMsg, VerbBye:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVerb, f.Verb)
	}

	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		// A single space after the colon belongs to the separator, not the
		// value.
		value = strings.TrimPrefix(value, " ")
		if _, dup := f.Get(name); dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateHeader, name)
		}
		f.Headers = append(f.Headers, Header{Name: name, Value: value})
	}

	length, ok := f.Get(HeaderContentLength)
	if !ok {
		return nil, ErrNoContentLength
	}
	n, err := strconv.Atoi(length)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoContentLength, length)
	}
	if n > MaxContentLength {
		return nil, fmt.Errorf("%w: body of %d bytes", ErrFrameTooLarge, n)
	}

	if n > 0 {
		f.Body = make([]byte, n)
		if _, err := io.ReadFull(br, f.Body); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// readHeaderBlock accumulates wire bytes up to and including the first
// blank line.
func readHeaderBlock(br *bufio.Reader) ([]byte, error) {
	var block []byte
	for {
		chunk, err := br.ReadBytes('\n')
		block = append(block, chunk...)
		if bytes.HasSuffix(block, crlfcrlf) {
			return block, nil
		}
		if err != nil {
			if err == io.EOF && len(block) > 0 {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		if len(block) > MaxHeaderBlock {
			return nil, fmt.Errorf("%w: header block over %d bytes", ErrFrameTooLarge, MaxHeaderBlock)
		}
	}
}

// NewFrame assembles a frame in canonical form: the verb line, each given
// header in order, a computed Content-Length, and the blank line. Headers
// must not include Content-Length.
func NewFrame(verb string, headers []Header, body []byte) *Frame {
	var buf bytes.Buffer
	buf.WriteString(verb)
	buf.WriteString("\r\n")
	for _, h := range headers {
		buf.WriteString(h.Name)
		buf.WriteString(": ")
		buf.WriteString(h.Value)
		buf.WriteString("\r\n")
	}
	fmt.Fprintf(&buf, "%s: %d\r\n\r\n", HeaderContentLength, len(body))

	hs := make([]Header, 0, len(headers)+1)
	hs = append(hs, headers...)
	hs = append(hs, Header{Name: HeaderContentLength, Value: strconv.Itoa(len(body))})

	return &Frame{
		Verb:    verb,
		Headers: hs,
		Body:    body,
		raw:     buf.Bytes(),
	}
}

// Get returns the value of the named header.
func (f *Frame) Get(name string) (string, bool) {
	for _, h := range f.Headers {
		if h.Name == name {
			return h.Value, true
		}
	}
	return "", false
}

// WithMessageID returns a copy of the frame with a Message-ID header
// spliced in immediately before the terminating blank line. The rest of the
// header block is untouched.
func (f *Frame) WithMessageID(id string) *Frame {
	raw := make([]byte, 0, len(f.raw)+len(HeaderMessageID)+len(id)+4)
	raw = append(raw, f.raw[:len(f.raw)-2]...)
	raw = append(raw, HeaderMessageID...)
	raw = append(raw, ':', ' ')
	raw = append(raw, id...)
	raw = append(raw, '\r', '\n', '\r', '\n')

	hs := make([]Header, 0, len(f.Headers)+1)
	hs = append(hs, f.Headers...)
	hs = append(hs, Header{Name: HeaderMessageID, Value: id})

	return &Frame{
		Verb:    f.Verb,
		Headers: hs,
		Body:    f.Body,
		raw:     raw,
	}
}

// Marshal returns the wire form of the frame: the header block exactly as
// read or assembled, followed by the body.
func (f *Frame) Marshal() []byte {
	buf := make([]byte, 0, len(f.raw)+len(f.Body))
	buf = append(buf, f.raw...)
	buf = append(buf, f.Body...)
	return buf
}
