// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/d4l3k/messagediff"
)

func frameReader(s string) *bufio.Reader {
	return bufio.NewReader(strings.NewReader(s))
}

func TestReadFrame(t *testing.T) {
	br := frameReader("MSG\r\nFrom: alice\r\nContent-Length: 5\r\n\r\nhello")

	f, err := ReadFrame(br)
	if err != nil {
		t.Fatal(err)
	}
	if f.Verb != VerbMsg {
		t.Errorf("verb %q != %q", f.Verb, VerbMsg)
	}

	expected := []Header{
		{Name: "From", Value: "alice"},
		{Name: "Content-Length", Value: "5"},
	}
	if diff, equal := messagediff.PrettyDiff(expected, f.Headers); !equal {
		t.Errorf("headers differ:\n%s", diff)
	}

	if string(f.Body) != "hello" {
		t.Errorf("body %q != %q", f.Body, "hello")
	}
}

func TestReadFrameStream(t *testing.T) {
	br := frameReader("HELLO\r\nUser-ID: 42\r\nContent-Length: 0\r\n\r\n" +
		"MSG\r\nContent-Length: 3\r\n\r\nfoo" +
		"BYE\r\nContent-Length: 0\r\n\r\n")

	f, err := ReadFrame(br)
	if err != nil {
		t.Fatal(err)
	}
	if f.Verb != VerbHello {
		t.Errorf("first verb %q", f.Verb)
	}
	if id, ok := f.Get(HeaderUserID); !ok || id != "42" {
		t.Errorf("User-ID %q, %v", id, ok)
	}

	f, err = ReadFrame(br)
	if err != nil {
		t.Fatal(err)
	}
	if f.Verb != VerbMsg || string(f.Body) != "foo" {
		t.Errorf("second frame %q %q", f.Verb, f.Body)
	}

	f, err = ReadFrame(br)
	if err != nil {
		t.Fatal(err)
	}
	if f.Verb != VerbBye {
		t.Errorf("third verb %q", f.Verb)
	}

	if _, err := ReadFrame(br); err != io.EOF {
		t.Errorf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestReadFrameErrors(t *testing.T) {
	cases := []struct {
		name string
		data string
		err  error
	}{
		{"unknown verb", "PING\r\nContent-Length: 0\r\n\r\n", ErrUnknownVerb},
		{"empty verb", "\r\nContent-Length: 0\r\n\r\n", ErrUnknownVerb},
		{"missing colon", "MSG\r\nFrom alice\r\nContent-Length: 0\r\n\r\n", ErrMalformedHeader},
		{"duplicate header", "MSG\r\nFrom: a\r\nFrom: b\r\nContent-Length: 0\r\n\r\n", ErrDuplicateHeader},
		{"missing content length", "MSG\r\nFrom: alice\r\n\r\n", ErrNoContentLength},
		{"garbage content length", "MSG\r\nContent-Length: five\r\n\r\n", ErrNoContentLength},
		{"negative content length", "MSG\r\nContent-Length: -1\r\n\r\n", ErrNoContentLength},
		{"huge content length", "MSG\r\nContent-Length: 999999999\r\n\r\n", ErrFrameTooLarge},
		{"unterminated header block", "MSG\r\n" + strings.Repeat("padding\r\n", MaxHeaderBlock/8), ErrFrameTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadFrame(frameReader(tc.data))
			if !errors.Is(err, tc.err) {
				t.Errorf("got %v, expected %v", err, tc.err)
			}
		})
	}
}

func TestReadFrameTruncated(t *testing.T) {
	// A stream that dies in the middle of the header block.
	_, err := ReadFrame(frameReader("MSG\r\nContent-Le"))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("got %v, expected unexpected EOF", err)
	}

	// A stream that dies in the middle of the body.
	_, err = ReadFrame(frameReader("MSG\r\nContent-Length: 10\r\n\r\nabc"))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("got %v, expected unexpected EOF", err)
	}
}

func TestHeaderValueSpacing(t *testing.T) {
	cases := []struct {
		line  string
		value string
	}{
		{"From:alice", "alice"},
		{"From: alice", "alice"},
		{"From:  alice", " alice"},
		{"From: ", ""},
		{"From:", ""},
	}

	for _, tc := range cases {
		f, err := ReadFrame(frameReader("MSG\r\n" + tc.line + "\r\nContent-Length: 0\r\n\r\n"))
		if err != nil {
			t.Errorf("%q: %v", tc.line, err)
			continue
		}
		if v, _ := f.Get("From"); v != tc.value {
			t.Errorf("%q: value %q, expected %q", tc.line, v, tc.value)
		}
	}
}

func TestMarshalPreservesWireBytes(t *testing.T) {
	// Odd but legal spacing must survive a relay hop untouched.
	wire := "MSG\r\nFrom:bob\r\nX-Oddity:  padded\r\nContent-Length: 4\r\nMessage-ID: 1234567890\r\n\r\nbody"

	f, err := ReadFrame(frameReader(wire))
	if err != nil {
		t.Fatal(err)
	}
	if got := f.Marshal(); string(got) != wire {
		t.Errorf("marshal diverged from wire bytes:\n%q\n%q", got, wire)
	}
}

func TestWithMessageID(t *testing.T) {
	wire := "MSG\r\nFrom: carol\r\nContent-Length: 2\r\n\r\nhi"

	f, err := ReadFrame(frameReader(wire))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Get(HeaderMessageID); ok {
		t.Fatal("unexpected Message-ID on input")
	}

	stamped := f.WithMessageID("  12345678")

	expected := "MSG\r\nFrom: carol\r\nContent-Length: 2\r\nMessage-ID:   12345678\r\n\r\nhi"
	if got := stamped.Marshal(); string(got) != expected {
		t.Errorf("splice result:\n%q\nexpected:\n%q", got, expected)
	}

	// The original frame is not modified.
	if got := f.Marshal(); string(got) != wire {
		t.Errorf("original frame changed by splice: %q", got)
	}

	// The spliced frame parses back with the Message-ID visible.
	rt, err := ReadFrame(bufio.NewReader(bytes.NewReader(stamped.Marshal())))
	if err != nil {
		t.Fatal(err)
	}
	if id, ok := rt.Get(HeaderMessageID); !ok || id != "  12345678" {
		t.Errorf("Message-ID after round trip: %q, %v", id, ok)
	}
}

func TestNewFrameCanonical(t *testing.T) {
	f := NewFrame(VerbMsg, []Header{{Name: HeaderFrom, Value: "alice"}}, []byte("hello"))

	expected := "MSG\r\nFrom: alice\r\nContent-Length: 5\r\n\r\nhello"
	if got := f.Marshal(); string(got) != expected {
		t.Errorf("canonical form:\n%q\nexpected:\n%q", got, expected)
	}

	rt, err := ReadFrame(bufio.NewReader(bytes.NewReader(f.Marshal())))
	if err != nil {
		t.Fatal(err)
	}
	if rt.Verb != VerbMsg || string(rt.Body) != "hello" {
		t.Errorf("round trip gave %q %q", rt.Verb, rt.Body)
	}
	if diff, equal := messagediff.PrettyDiff(f.Headers, rt.Headers); !equal {
		t.Errorf("headers differ after round trip:\n%s", diff)
	}
}

func TestNewFrameEmptyBody(t *testing.T) {
	f := NewFrame(VerbBye, nil, nil)
	expected := "BYE\r\nContent-Length: 0\r\n\r\n"
	if got := f.Marshal(); string(got) != expected {
		t.Errorf("got %q, expected %q", got, expected)
	}
}
