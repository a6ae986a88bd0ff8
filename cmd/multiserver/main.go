// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

// multiserver listens on all the radios of a Pi-Gate, sends a periodic alive message on each
// one, and bridges the radios to an MQTT broker: received messages are published to
// <prefix>/<gate>/rx and JSON requests published to <prefix>/<gate>/tx are transmitted.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/tve/pigate/board"
	"github.com/tve/pigate/sx1276"
)

func main() {
	confFile := flag.String("config", "", "ini configuration file (default: both Pi-Gate radios)")
	halName := flag.String("hal", "", "hardware access library, overrides the config file")
	broker := flag.String("mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883, overrides the config file")
	realtime := flag.Bool("rt", false, "use realtime scheduling for the radio goroutines")
	debug := flag.Bool("debug", false, "enable debug output")
	flag.Parse()

	if err := run(*confFile, *halName, *broker, *realtime, *debug); err != nil {
		fmt.Fprintf(os.Stderr, "Exiting due to error: %s\n", err)
		os.Exit(2)
	}
}

func run(confFile, halName, broker string, realtime, debug bool) error {
	var src interface{} = []byte{}
	if confFile != "" {
		src = confFile
	}
	conf, err := board.LoadConfig(src)
	if err != nil {
		return err
	}
	if halName != "" {
		conf.HAL = halName
	}
	if broker != "" {
		conf.MQTT.Broker = broker
	}

	var logger sx1276.LogPrintf
	if debug {
		logger = log.Printf
	}

	var mqConn *mq
	var pub publisher
	if conf.MQTT.Broker != "" {
		if mqConn, err = newMQ(conf.MQTT); err != nil {
			return errors.Wrap(err, "MQTT")
		}
		defer mqConn.Close()
		pub = mqConn
	}

	hal, err := board.OpenHAL(conf.HAL)
	if err != nil {
		return err
	}
	b := board.New(hal)
	var gates []*gate
	for _, g := range conf.Gates {
		g.Promiscuous = true // get all frames, we're a demo
		log.Printf("%s", &g)
		r, err := b.Open(g, logger)
		if err != nil {
			return errors.Wrap(err, "please verify wiring/module")
		}
		defer r.Close()
		log.Printf("Gate %s OK, NodeID=%d @ %.2fMHz", g.Name, g.Node, g.MHz())

		gw := newGate(g.Name, r, g.Beacon, pub, conf.MQTT.Prefix)
		if mqConn != nil {
			if err := mqConn.Subscribe(gw.topic("tx"), gw.handleTx); err != nil {
				return err
			}
		}
		gates = append(gates, gw)
	}

	log.Printf("Listening and sending packets...")
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for _, gw := range gates {
		wg.Add(1)
		go func(gw *gate) {
			defer wg.Done()
			gw.run(stop, realtime)
		}(gw)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Printf("Break received, exiting!")
	close(stop)
	wg.Wait()
	return nil
}
