// Copyright (C) 2025 The PiConga Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command testutil is a line oriented conga participant. It announces
// the given member id, prints every message relayed to it, and sends
// each line read from stdin into the conga. A lone "." leaves cleanly.
package main

import (
	"bufio"
	"flag"
	"log"
	"os"

	"github.com/piconga/congasrv/lib/protocol"
	"github.com/piconga/congasrv/lib/relay/client"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags)

	var relay, from string
	var id int64

	flag.StringVar(&relay, "relay", "127.0.0.1:8888", "Relay address")
	flag.Int64Var(&id, "id", 0, "Member id to announce")
	flag.StringVar(&from, "from", "", "From attribution on sent messages")
	flag.Parse()

	if id == 0 {
		log.Fatal("Requires a member id")
	}

	c, err := client.Dial(relay)
	if err != nil {
		log.Fatalln("Connecting:", err)
	}
	defer c.Close()

	if err := c.Hello(id); err != nil {
		log.Fatalln("Announcing:", err)
	}
	log.Println("Announced as member", id)

	go func() {
		for {
			f, err := c.Recv()
			if err != nil {
				log.Fatalln("Stream closed:", err)
			}
			sender, ok := f.Get(protocol.HeaderFrom)
			if !ok {
				sender = "?"
			}
			log.Printf("<%s> %s", sender, f.Body)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "." {
			break
		}
		if err := c.Send(from, []byte(line)); err != nil {
			log.Fatalln("Sending:", err)
		}
	}

	if err := c.Bye(); err != nil {
		log.Fatalln("Leaving:", err)
	}
}
