// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package client implements the participant side of the conga relay
// protocol, for tools and tests. It speaks the same frames the relay
// does and adds no behavior of its own.
package client

import (
	"bufio"
	"net"
	"strconv"
	"time"

	"github.com/piconga/congasrv/lib/protocol"
)

type Client struct {
	conn net.Conn
	br   *bufio.Reader
}

// Dial connects to a relay. The connection is not announced until Hello
// is called.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// New wraps an existing connection.
func New(conn net.Conn) *Client {
	return &Client{
		conn: conn,
		br:   bufio.NewReader(conn),
	}
}

// Hello announces the member id. It must precede any MSG or BYE.
func (c *Client) Hello(memberID int64) error {
	f := protocol.NewFrame(protocol.VerbHello, []protocol.Header{
		{Name: protocol.HeaderUserID, Value: strconv.FormatInt(memberID, 10)},
	}, nil)
	return c.SendFrame(f)
}

// Send puts a message into the conga. The from attribution is advisory
// and may be empty.
func (c *Client) Send(from string, body []byte) error {
	var headers []protocol.Header
	if from != "" {
		headers = append(headers, protocol.Header{Name: protocol.HeaderFrom, Value: from})
	}
	return c.SendFrame(protocol.NewFrame(protocol.VerbMsg, headers, body))
}

// Bye leaves the conga. The relay closes the stream in response.
func (c *Client) Bye() error {
	return c.SendFrame(protocol.NewFrame(protocol.VerbBye, nil, nil))
}

// SendFrame transmits a prebuilt frame as is.
func (c *Client) SendFrame(f *protocol.Frame) error {
	_, err := c.conn.Write(f.Marshal())
	return err
}

// Recv blocks for the next frame relayed to us.
func (c *Client) Recv() (*protocol.Frame, error) {
	return protocol.ReadFrame(c.br)
}

// SetReadDeadline applies to subsequent Recv calls.
func (c *Client) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
