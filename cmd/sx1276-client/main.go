// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

// sx1276-client periodically sends a message to a gateway node and prints the reply.
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
	"github.com/tve/pigate/sx1276"
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
	to       int
	interval time.Duration
	status   bool
	regs     bool
	debug    bool
}

func main() {
	var o options
	flag.StringVar(&o.gate, "gate", "868", "Pi-Gate radio to use: 433 or 868")
	flag.StringVar(&o.hal, "hal", "periph", "hardware access library: periph or embd")
	flag.Var(&o.freq, "freq", "carrier frequency, e.g. 868.1MHz (default: the gate's)")
	flag.IntVar(&o.power, "power", 14, "output power in dBm")
	flag.StringVar(&o.modem, "modem", "bw125cr45sf128", "modem configuration")
	flag.IntVar(&o.node, "node", 10, "node id of this client")
	flag.IntVar(&o.to, "to", 1, "node id of the gateway")
	flag.DurationVar(&o.interval, "interval", 5*time.Second, "time between messages")
	flag.BoolVar(&o.status, "status", false, "send varint encoded counters instead of text")
	flag.BoolVar(&o.regs, "regs", false, "print the radio registers after init")
	flag.BoolVar(&o.debug, "debug", false, "enable debug output")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "Valid modem configurations:\n")
		for c := sx1276.ModemConfigChoice(0); int(c) < sx1276.NumModemConfigs; c++ {
			fmt.Fprintf(os.Stderr, "  %-20s: %s\n", c, c.Info())
		}
		os.Exit(1)
	}
	flag.Parse()

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "Exiting due to error: %s\n", err)
		os.Exit(2)
	}
}

// message returns the body to send: a greeting, or the radio's counters and last rssi
// varint encoded when status is set.
func message(status bool, txGood, rxGood, rxBad uint16, rssi int) []byte {
	if !status {
		return []byte("Hi Raspi!")
	}
	return varint.Encode(int(txGood), int(rxGood), int(rxBad), rssi)
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
	if o.node < 0 || o.node >= 0xff || o.to < 0 || o.to > 0xff {
		return errors.New("node id must be in 0..254, gateway id in 0..255")
	}
	g.Power = o.power
	g.Node = byte(o.node)

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
	if o.regs {
		r.SetLogger(log.Printf)
		r.LogRegs()
		r.SetLogger(logger)
	}
	r.SetHeaderTo(byte(o.to))
	log.Printf("Gate %s OK, NodeID=%d @ %.2fMHz, sending to #%d", g.Name, g.Node, g.MHz(), o.to)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	tick := time.NewTicker(o.interval)
	defer tick.Stop()

	var id byte
	buf := make([]byte, r.MaxMessageLength())
	for {
		select {
		case <-sig:
			log.Printf("Break received, exiting!")
			return nil
		case <-tick.C:
		}

		msg := message(o.status, r.TxGood(), r.RxGood(), r.RxBad(), r.LastRSSI())
		id++
		r.SetHeaderID(id)
		log.Printf("Sending %d bytes to #%d", len(msg), o.to)
		if err := r.Send(msg); err != nil {
			log.Printf("Send failed: %s", err)
			continue
		}
		r.WaitPacketSentTimeout(5 * time.Second)

		if !r.WaitAvailableTimeout(time.Second) {
			log.Printf("No reply, is the server running?")
			continue
		}
		from, rssi := r.HeaderFrom(), r.LastRSSI()
		if n, ok := r.Recv(buf); ok {
			log.Printf("Got reply from #%d %ddBm: %q", from, rssi, buf[:n])
		}
	}
}
