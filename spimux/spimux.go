// Copyright 2017 by Thorsten von Eicken, see LICENSE file

// Package spimux shares one SPI chip select between two radios.
package spimux

import (
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// Bus is the part of an SPI connection that spimux needs. A periph spi.Conn and the embd
// shim both satisfy it.
type Bus interface {
	Tx(w, r []byte) error
}

// PinOut is the demux select pin. A periph gpio.PinOut and the embd shim pin both satisfy it.
type PinOut interface {
	Out(l gpio.Level) error
}

// Conn represents a connection to a device on an SPI bus with a multiplexed chip select.
//
// The purpose of spimux.Conn is to allow two devices to be connected to SPI buses
// that only have a single chip select line. This is accomplished by placing a demux
// on the CS line such that an extra gpio pin can direct the chip select to either
// of the two devices. The Tx function sets the demux select for the appropriate device
// and then performs a std transaction while holding a mutex shared by both devices, so
// two radios driven from different goroutines never interleave their register accesses.
//
// A sample circuit is to use an 74LVC1G19 demux with the SPI CS connected to E, the
// gpio select pin connected to A, and the CS inputs of the two devices attached to
// Y0 and Y1 respectively. A pull-down resistor on the A input of the demux is recommended
// to ensure both CS remain inactive when the SPI CS is not driven.
//
// The speed setting and the configuration (SPI mode and number of bits) are shared between
// the two devices.
type Conn struct {
	*shared
	sel    gpio.Level // select value for this device
	closed bool
}

type shared struct {
	mu     sync.Mutex // prevent concurrent access to shared SPI bus
	bus    Bus        // the underlying SPI bus with shared chip select
	selPin PinOut
	open   int // number of Conns not closed yet
}

// New returns two connections for the provided bus, the first one using Low for the
// select pin, and the second using High.
func New(bus Bus, selPin PinOut) (*Conn, *Conn) {
	s := &shared{bus: bus, selPin: selPin, open: 2}
	return &Conn{shared: s, sel: gpio.Low}, &Conn{shared: s, sel: gpio.High}
}

// Tx sets the select pin to the correct value and calls the underlying Tx.
func (c *Conn) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.selPin.Out(c.sel); err != nil {
		return err
	}
	return c.bus.Tx(w, r)
}

// Close closes the underlying bus once both connections have been closed, if the bus
// can be closed. Closing a Conn twice is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.open--
	if c.open > 0 {
		return nil
	}
	if cl, ok := c.bus.(interface{ Close() error }); ok {
		return cl.Close()
	}
	return nil
}
