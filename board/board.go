// Copyright 2018 by Thorsten von Eicken, see LICENSE file

// Package board knows how the radios of a Pi-Gate are wired to a Raspberry Pi and opens
// them over periph.io or embd.
package board

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tve/pigate/spimux"
	"github.com/tve/pigate/sx1276"
	"periph.io/x/conn/v3/physic"
)

// Gate describes one radio: how it is wired and how it is configured.
type Gate struct {
	Name     string
	SPI      string // SPI device, e.g. /dev/spidev0.1
	Mux      string // optional spimux select pin when two radios share a chip select
	MuxSel   int    // 0 or 1: which side of the mux this radio is on
	Reset    string // reset pin
	Intr     string // DIO0 interrupt pin, empty to poll
	TxEnable string // TX enable pin of the antenna switch, empty if there is none

	Freq        physic.Frequency
	Power       int  // dBm
	RFO         bool // module uses the RFO pins instead of PA_BOOST
	Modem       sx1276.ModemConfigChoice
	Node        byte // this node's address
	Promiscuous bool
	CADTimeout  time.Duration
	Beacon      time.Duration // interval of the alive message, 0 disables it
}

// MHz returns the gate's frequency in MHz as the driver expects it.
func (g *Gate) MHz() float64 { return float64(g.Freq) / float64(physic.MegaHertz) }

func (g *Gate) String() string {
	return fmt.Sprintf("%s (SPI=%s, IRQ=%s, RST=%s, TXE=%s)", g.Name, g.SPI, orNone(g.Intr),
		g.Reset, orNone(g.TxEnable))
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// PiGate returns the two radios of a Pi-Gate board: a 433MHz one on CE1 and an 868MHz one
// on CE0 with an antenna switch.
func PiGate() []Gate {
	return []Gate{
		{
			Name: "433", SPI: "/dev/spidev0.1", Reset: "GPIO23", Intr: "GPIO22",
			Freq: 433 * physic.MegaHertz, Power: 14, Modem: sx1276.Bw125Cr45Sf128, Node: 1,
			Beacon: 30 * time.Second,
		},
		{
			Name: "868", SPI: "/dev/spidev0.0", Reset: "GPIO25", Intr: "GPIO24",
			TxEnable: "GPIO27",
			Freq:     868 * physic.MegaHertz, Power: 14, Modem: sx1276.Bw125Cr45Sf128, Node: 1,
			Beacon: 30 * time.Second,
		},
	}
}

// GateByName returns the Pi-Gate radio with the given name.
func GateByName(name string) (Gate, bool) {
	for _, g := range PiGate() {
		if g.Name == name {
			return g, true
		}
	}
	return Gate{}, false
}

// Pin is a gpio pin usable as reset, TX enable, interrupt, or mux select line.
type Pin interface {
	sx1276.PinOut
	sx1276.PinIn
}

// HAL opens SPI devices and pins on some hardware access library.
type HAL interface {
	OpenSPI(dev string) (sx1276.Conn, error)
	OpenPin(name string) (Pin, error)
	String() string
}

// Board opens radios on a HAL. Radios sharing an SPI device through a mux share the
// spimux connection pair.
type Board struct {
	hal   HAL
	mu    sync.Mutex
	muxes map[string][2]*spimux.Conn
}

// New returns a Board using hal.
func New(hal HAL) *Board {
	return &Board{hal: hal, muxes: make(map[string][2]*spimux.Conn)}
}

// Radio is an initialized radio together with the hardware it was opened on.
type Radio struct {
	*sx1276.Radio
	Gate    Gate
	closers []io.Closer
}

// Close stops the radio's interrupt goroutine and releases the SPI device and pins.
func (r *Radio) Close() error {
	var err error
	if r.Radio != nil {
		err = r.Radio.Close()
	}
	for _, c := range r.closers {
		if e := c.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// Open opens the SPI device and pins of g, initializes the radio, and applies g's
// configuration. The radio is left idle.
func (b *Board) Open(g Gate, logger sx1276.LogPrintf) (*Radio, error) {
	conn, err := b.bus(g)
	if err != nil {
		return nil, err
	}
	r := &Radio{Gate: g}
	opts := sx1276.RadioOpts{Logger: logger}

	fail := func(err error, what string) (*Radio, error) {
		if c, ok := conn.(io.Closer); ok && r.Radio == nil && g.Mux == "" {
			c.Close()
		}
		r.Close()
		return nil, errors.Wrapf(err, "gate %s %s", g.Name, what)
	}

	rst, err := b.pin(r, g.Reset)
	if err != nil {
		return fail(err, "reset")
	}
	opts.Reset = rst
	if g.Intr != "" {
		intr, err := b.pin(r, g.Intr)
		if err != nil {
			return fail(err, "irq")
		}
		opts.Intr = intr
	}
	if g.TxEnable != "" {
		txe, err := b.pin(r, g.TxEnable)
		if err != nil {
			return fail(err, "txe")
		}
		opts.TxEnable = txe
	}

	r.Radio = sx1276.New(conn, opts)
	if err := r.Init(); err != nil {
		return fail(err, "init")
	}
	if err := b.configure(r.Radio, g); err != nil {
		return fail(err, "config")
	}
	return r, nil
}

func (b *Board) configure(r *sx1276.Radio, g Gate) error {
	if err := r.SetModemPreset(int(g.Modem)); err != nil {
		return err
	}
	if err := r.SetFrequency(g.MHz()); err != nil {
		return err
	}
	r.SetTxPower(g.Power, g.RFO)
	r.SetThisAddress(g.Node)
	r.SetHeaderFrom(g.Node)
	r.SetPromiscuous(g.Promiscuous)
	r.SetCADTimeout(g.CADTimeout)
	return r.Error()
}

// bus returns the SPI connection for g, going through a mux if g has one.
func (b *Board) bus(g Gate) (sx1276.Conn, error) {
	if g.Mux == "" {
		c, err := b.hal.OpenSPI(g.SPI)
		return c, errors.Wrapf(err, "gate %s spi", g.Name)
	}
	if g.MuxSel != 0 && g.MuxSel != 1 {
		return nil, errors.Errorf("gate %s: mux select must be 0 or 1, not %d", g.Name, g.MuxSel)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	key := g.SPI + "+" + g.Mux
	pair, ok := b.muxes[key]
	if !ok {
		c, err := b.hal.OpenSPI(g.SPI)
		if err != nil {
			return nil, errors.Wrapf(err, "gate %s spi", g.Name)
		}
		sel, err := b.hal.OpenPin(g.Mux)
		if err != nil {
			if cl, ok := c.(io.Closer); ok {
				cl.Close()
			}
			return nil, errors.Wrapf(err, "gate %s mux", g.Name)
		}
		pair[0], pair[1] = spimux.New(c, sel)
		b.muxes[key] = pair
	}
	return pair[g.MuxSel], nil
}

// pin opens a pin and arranges for it to be closed with the radio.
func (b *Board) pin(r *Radio, name string) (Pin, error) {
	p, err := b.hal.OpenPin(name)
	if err != nil {
		return nil, err
	}
	if c, ok := p.(io.Closer); ok {
		r.closers = append(r.closers, c)
	}
	return p, nil
}
