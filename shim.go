// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package pigate

// The shim lets the radio drivers run on embd instead of periph: the types below satisfy
// sx1276.Conn, sx1276.PinOut, sx1276.PinIn, and spimux.Bus.

import (
	"errors"
	"fmt"
	"time"

	"github.com/kidoman/embd"
	"periph.io/x/conn/v3/gpio"
)

// EmbdSPI is an SPI device on an embd SPI bus.
type EmbdSPI struct {
	bus embd.SPIBus
}

// NewEmbdSPI opens SPI channel (chip select) ch in mode 0 with 8 bits per word at the given
// clock speed in Hz. embd.InitSPI must have been called.
func NewEmbdSPI(ch byte, speed int) *EmbdSPI {
	return &EmbdSPI{embd.NewSPIBus(embd.SPIMode0, ch, speed, 8, 0)}
}

// Tx performs a full-duplex transaction, r must be at least as long as w or nil.
func (s *EmbdSPI) Tx(w, r []byte) error {
	if len(r) < len(w) {
		if r != nil {
			return fmt.Errorf("embd spi: read buffer too short: %d < %d", len(r), len(w))
		}
		r = make([]byte, len(w))
	}
	copy(r, w)
	return s.bus.TransferAndReceiveData(r[:len(w)])
}

// Close closes the SPI bus.
func (s *EmbdSPI) Close() error { return s.bus.Close() }

// EmbdPin is a gpio pin accessed through embd.
type EmbdPin struct {
	p        embd.DigitalPin
	name     string
	dir      embd.Direction
	watching bool
	edge     chan struct{}
}

// NewEmbdPin opens a digital pin by name or number, e.g. "GPIO22" or 22. embd.InitGPIO
// must have been called.
func NewEmbdPin(key interface{}) (*EmbdPin, error) {
	p, err := embd.NewDigitalPin(key)
	if err != nil {
		return nil, fmt.Errorf("embd pin %v: %w", key, err)
	}
	return &EmbdPin{p: p, name: fmt.Sprint(key), dir: embd.In, edge: make(chan struct{}, 1)}, nil
}

func (g *EmbdPin) String() string { return g.name }

// In configures the pin as input and starts or stops watching for edges. Pulls are set
// where the hardware supports it, a failure to set one is not an error.
func (g *EmbdPin) In(pull gpio.Pull, edge gpio.Edge) error {
	if err := g.p.SetDirection(embd.In); err != nil {
		return err
	}
	g.dir = embd.In
	switch pull {
	case gpio.PullUp:
		g.p.PullUp()
	case gpio.PullDown:
		g.p.PullDown()
	}

	if g.watching {
		if err := g.p.StopWatching(); err != nil {
			return err
		}
		g.watching = false
	}
	var e embd.Edge
	switch edge {
	case gpio.NoEdge:
		return nil
	case gpio.RisingEdge:
		e = embd.EdgeRising
	case gpio.FallingEdge:
		e = embd.EdgeFalling
	case gpio.BothEdges:
		e = embd.EdgeBoth
	default:
		return errors.New("embd pin: unsupported edge")
	}
	// Drop an edge left over from a previous configuration.
	select {
	case <-g.edge:
	default:
	}
	if err := g.p.Watch(e, g.edgeCB); err != nil {
		return err
	}
	g.watching = true
	return nil
}

// Read returns the current pin level.
func (g *EmbdPin) Read() gpio.Level {
	v, _ := g.p.Read()
	return v == embd.High
}

// WaitForEdge waits for an edge or for the timeout to expire, a negative timeout waits
// forever.
func (g *EmbdPin) WaitForEdge(timeout time.Duration) bool {
	var to <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		to = t.C
	}
	select {
	case <-g.edge:
		return true
	case <-to:
		return false
	}
}

// Out drives the pin, switching it to output first if necessary.
func (g *EmbdPin) Out(l gpio.Level) error {
	if g.dir != embd.Out {
		if err := g.p.SetDirection(embd.Out); err != nil {
			return err
		}
		g.dir = embd.Out
	}
	v := embd.Low
	if l {
		v = embd.High
	}
	return g.p.Write(v)
}

// Number returns the gpio number.
func (g *EmbdPin) Number() int { return g.p.N() }

// Close stops watching and releases the pin.
func (g *EmbdPin) Close() error {
	if g.watching {
		g.p.StopWatching()
		g.watching = false
	}
	return g.p.Close()
}

func (g *EmbdPin) edgeCB(embd.DigitalPin) {
	select {
	case g.edge <- struct{}{}:
	default:
	}
}
