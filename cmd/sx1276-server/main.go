// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

// sx1276-server listens promiscuously, prints every message, and replies to its sender.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/tve/pigate/board"
	"github.com/tve/pigate/radio"
	"github.com/tve/pigate/sx1276"
	"github.com/tve/pigate/thread"
	"github.com/tve/pigate/varint"
	"periph.io/x/conn/v3/physic"
)

type options struct {
	gate     string
	hal      string
	freq     physic.Frequency
	power    int
	modem    string
	node     int
	reply    string
	realtime bool
	debug    bool
}

func main() {
	var o options
	flag.StringVar(&o.gate, "gate", "868", "Pi-Gate radio to use: 433 or 868")
	flag.StringVar(&o.hal, "hal", "periph", "hardware access library: periph or embd")
	flag.Var(&o.freq, "freq", "carrier frequency, e.g. 868.1MHz (default: the gate's)")
	flag.IntVar(&o.power, "power", 14, "output power in dBm")
	flag.StringVar(&o.modem, "modem", "bw125cr45sf128", "modem configuration")
	flag.IntVar(&o.node, "node", 1, "node id of this gateway")
	flag.StringVar(&o.reply, "reply", "And hello back to you", "reply text, empty to not reply")
	flag.BoolVar(&o.realtime, "rt", false, "use realtime scheduling for the receive loop")
	flag.BoolVar(&o.debug, "debug", false, "enable debug output")
	flag.Parse()

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "Exiting due to error: %s\n", err)
		os.Exit(2)
	}
}

func run(o options) error {
	g, ok := board.GateByName(o.gate)
	if !ok {
		return errors.Errorf("unknown gate %q", o.gate)
	}
	if o.freq != 0 {
		g.Freq = o.freq
	}
	if g.Modem, ok = sx1276.ModemConfigByName(o.modem); !ok {
		return errors.Errorf("unknown modem configuration %q", o.modem)
	}
	if o.node < 0 || o.node >= radio.Broadcast {
		return errors.New("node id must be in 0..254")
	}
	g.Power = o.power
	g.Node = byte(o.node)
	g.Promiscuous = true

	var logger sx1276.LogPrintf
	if o.debug {
		logger = log.Printf
	}
	hal, err := board.OpenHAL(o.hal)
	if err != nil {
		return err
	}
	log.Printf("%s", &g)
	r, err := board.New(hal).Open(g, logger)
	if err != nil {
		return err
	}
	defer r.Close()
	log.Printf("Gate %s OK, NodeID=%d @ %.2fMHz, listening", g.Name, g.Node, g.MHz())

	if o.realtime {
		if err := thread.Realtime(thread.RR, thread.DefaultPriority); err != nil {
			log.Printf("Cannot switch to realtime scheduling: %s", err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	buf := make([]byte, r.MaxMessageLength())
	for {
		select {
		case <-sig:
			log.Printf("Break received, exiting!")
			return nil
		default:
		}
		if !r.WaitAvailableTimeout(100 * time.Millisecond) {
			continue
		}
		from, to, rssi := r.HeaderFrom(), r.HeaderTo(), r.LastRSSI()
		n, ok := r.Recv(buf)
		if !ok {
			continue
		}
		log.Printf("Packet[%02d] #%d => #%d %ddBm: %s", n, from, to, rssi, describe(buf[:n]))

		if o.reply == "" || (to != g.Node && to != radio.Broadcast) {
			continue
		}
		time.Sleep(500 * time.Millisecond)
		r.SetHeaderTo(from)
		if err := r.Send([]byte(o.reply)); err != nil {
			log.Printf("Reply failed: %s", err)
			continue
		}
		r.WaitPacketSentTimeout(5 * time.Second)
	}
}

// describe formats a payload as text when it is printable, and otherwise as hex followed
// by its varint decoding when it decodes cleanly.
func describe(p []byte) string {
	printable := len(p) > 0
	for _, c := range p {
		if c < 0x20 || c > 0x7e {
			printable = false
			break
		}
	}
	if printable {
		return fmt.Sprintf("%q", p)
	}
	if vals, err := varint.Decode(p); err == nil && len(vals) > 0 {
		return fmt.Sprintf("% x varint %v", p, vals)
	}
	return fmt.Sprintf("% x", p)
}
