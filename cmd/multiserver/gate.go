// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/tve/pigate/radio"
	"github.com/tve/pigate/thread"
)

// RxMessage is published for every message received by a gate.
type RxMessage struct {
	Gate    string    `json:"gate"`
	At      time.Time `json:"at"`
	To      byte      `json:"to"`
	From    byte      `json:"from"`
	ID      byte      `json:"id"`
	Flags   byte      `json:"flags"`
	RSSI    int       `json:"rssi"`
	Payload []byte    `json:"payload"`
}

// TxMessage is a request to transmit, Text is used when Payload is empty.
type TxMessage struct {
	To      byte   `json:"to"`
	ID      byte   `json:"id"`
	Flags   byte   `json:"flags"`
	Payload []byte `json:"payload"`
	Text    string `json:"text"`
}

type publisher interface {
	Publish(topic string, payload interface{}) error
}

// beaconAddr is the node the alive messages are sent to.
const beaconAddr = 1

// gate runs one radio: it receives, sends beacons, and transmits queued requests. All
// radio accesses happen on the gate's goroutine.
type gate struct {
	name   string
	r      radio.Driver
	beacon time.Duration
	pub    publisher // nil when there is no broker
	prefix string
	tx     chan TxMessage
	buf    []byte
	now    func() time.Time
}

func newGate(name string, r radio.Driver, beacon time.Duration, pub publisher, prefix string) *gate {
	return &gate{
		name:   name,
		r:      r,
		beacon: beacon,
		pub:    pub,
		prefix: prefix,
		tx:     make(chan TxMessage, 8),
		buf:    make([]byte, r.MaxMessageLength()),
		now:    time.Now,
	}
}

func (g *gate) topic(dir string) string { return fmt.Sprintf("%s/%s/%s", g.prefix, g.name, dir) }

// handleTx decodes a transmit request from MQTT and queues it, dropping it if the queue is
// full.
func (g *gate) handleTx(topic string, payload []byte) {
	var m TxMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		log.Printf("Gate %s: cannot decode %s: %s", g.name, topic, err)
		return
	}
	select {
	case g.tx <- m:
	default:
		log.Printf("Gate %s: tx queue full, dropping message to #%d", g.name, m.To)
	}
}

// run services the radio until stop is closed.
func (g *gate) run(stop <-chan struct{}, realtime bool) {
	if realtime {
		if err := thread.Realtime(thread.RR, thread.DefaultPriority); err != nil {
			log.Printf("Gate %s: cannot switch to realtime scheduling: %s", g.name, err)
		}
	}
	var beacon <-chan time.Time
	if g.beacon > 0 {
		t := time.NewTicker(g.beacon)
		defer t.Stop()
		beacon = t.C
	}
	for {
		select {
		case <-stop:
			return
		case m := <-g.tx:
			if err := g.send(m); err != nil {
				log.Printf("Gate %s: send to #%d failed: %s", g.name, m.To, err)
			}
		case <-beacon:
			if err := g.sendBeacon(); err != nil {
				log.Printf("Gate %s: beacon failed: %s", g.name, err)
			}
		default:
			g.poll(50 * time.Millisecond)
		}
	}
}

// poll waits up to timeout for a message, prints it and publishes it.
func (g *gate) poll(timeout time.Duration) bool {
	if !g.r.WaitAvailableTimeout(timeout) {
		return false
	}
	m := RxMessage{
		Gate:  g.name,
		At:    g.now(),
		To:    g.r.HeaderTo(),
		From:  g.r.HeaderFrom(),
		ID:    g.r.HeaderID(),
		Flags: g.r.HeaderFlags(),
		RSSI:  g.r.LastRSSI(),
	}
	n, ok := g.r.Recv(g.buf)
	if !ok {
		log.Printf("Gate %s: receive failed", g.name)
		return false
	}
	m.Payload = append([]byte(nil), g.buf[:n]...)
	log.Printf("Gate %s [len %02d] from #%d to #%d %ddB: % x", g.name, n, m.From, m.To,
		m.RSSI, m.Payload)
	if g.pub != nil {
		if err := g.pub.Publish(g.topic("rx"), &m); err != nil {
			log.Printf("Gate %s: %s", g.name, err)
		}
	}
	return true
}

func (g *gate) send(m TxMessage) error {
	payload := m.Payload
	if len(payload) == 0 {
		payload = []byte(m.Text)
	}
	g.r.SetHeaderTo(m.To)
	g.r.SetHeaderID(m.ID)
	g.r.SetHeaderFlags(m.Flags, 0xff)
	if err := g.r.Send(payload); err != nil {
		return err
	}
	g.r.WaitPacketSentTimeout(5 * time.Second)
	return nil
}

func (g *gate) sendBeacon() error {
	return g.send(TxMessage{To: beaconAddr, Text: fmt.Sprintf("## %s alive ##", g.name)})
}
