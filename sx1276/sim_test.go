// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276

import (
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio/gpiotest"
)

// air connects simulated chips: a packet transmitted by one is received by all the others
// that are in continuous receive mode.
type air struct {
	mu    sync.Mutex
	chips []*simChip
}

func (a *air) join(c *simChip) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c.air = a
	a.chips = append(a.chips, c)
}

func (a *air) transmit(from *simChip, pkt []byte) {
	a.mu.Lock()
	chips := append([]*simChip(nil), a.chips...)
	a.mu.Unlock()
	for _, c := range chips {
		if c != from {
			c.inject(pkt)
		}
	}
}

type regWrite struct{ addr, val byte }

// simChip simulates the register interface of an SX1276 well enough for the driver: it
// implements the FIFO pointer semantics, write-one-to-clear irq flags, and raises TX done and
// CAD done as soon as the corresponding mode is entered.
type simChip struct {
	air *air

	mu          sync.Mutex
	regs        [0x80]byte
	fifo        [256]byte
	versions    []byte // values returned by successive version reads, the last one sticks
	stuckOpMode bool   // ignore writes to the opmode register
	cadBusy     int    // number of CAD cycles reporting activity, negative for always
	rssi        byte   // raw PktRssiValue for received packets
	writes      []regWrite
	fifoWrites  int
	sent        [][]byte
}

func newSimChip() *simChip {
	c := &simChip{versions: []byte{VERSION_SX1276}, rssi: 137 - 60}
	c.regs[REG_OPMODE] = 0x09 // FSK, standby: the chip's reset value
	return c
}

func (c *simChip) Tx(w, r []byte) error {
	c.mu.Lock()
	var pkt []byte
	addr := w[0] & 0x7f
	for i := 1; i < len(w); i++ {
		a := addr
		if addr != REG_FIFO {
			a += byte(i - 1)
		}
		if w[0]&0x80 != 0 {
			if p := c.write(a, w[i]); p != nil {
				pkt = p
			}
		} else {
			r[i] = c.read(a)
		}
	}
	c.mu.Unlock()

	if pkt != nil && c.air != nil {
		c.air.transmit(c, pkt)
	}
	return nil
}

// write stores a register value, it returns the packet to put on the air when TX starts.
func (c *simChip) write(a, v byte) []byte {
	c.writes = append(c.writes, regWrite{a, v})
	switch a {
	case REG_FIFO:
		c.fifo[c.regs[REG_FIFOPTR]] = v
		c.regs[REG_FIFOPTR]++
		c.fifoWrites++
	case REG_IRQFLAGS:
		c.regs[REG_IRQFLAGS] &^= v
	case REG_OPMODE:
		if c.stuckOpMode {
			return nil
		}
		c.regs[REG_OPMODE] = v
		switch v & 0x07 {
		case MODE_TX:
			base := int(c.regs[REG_FIFOTXBASE])
			n := int(c.regs[REG_PAYLENGTH])
			pkt := make([]byte, n)
			for i := range pkt {
				pkt[i] = c.fifo[(base+i)&0xff]
			}
			c.sent = append(c.sent, pkt)
			c.regs[REG_IRQFLAGS] |= IRQ_TXDONE
			return pkt
		case MODE_CAD:
			c.regs[REG_IRQFLAGS] |= IRQ_CADDONE
			if c.cadBusy != 0 {
				c.regs[REG_IRQFLAGS] |= IRQ_CADDETECT
				if c.cadBusy > 0 {
					c.cadBusy--
				}
			}
		}
	default:
		c.regs[a] = v
	}
	return nil
}

func (c *simChip) read(a byte) byte {
	switch a {
	case REG_FIFO:
		v := c.fifo[c.regs[REG_FIFOPTR]]
		c.regs[REG_FIFOPTR]++
		return v
	case REG_VERSION:
		v := c.versions[0]
		if len(c.versions) > 1 {
			c.versions = c.versions[1:]
		}
		return v
	}
	return c.regs[a]
}

// inject receives a packet if the chip is in continuous receive mode.
func (c *simChip) inject(pkt []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.regs[REG_OPMODE]&0x07 != MODE_RX_CONT {
		return false
	}
	base := c.regs[REG_FIFORXBASE]
	for i, v := range pkt {
		c.fifo[base+byte(i)] = v
	}
	c.regs[REG_FIFORXCURR] = base
	c.regs[REG_RXBYTES] = byte(len(pkt))
	c.regs[REG_PKTRSSI] = c.rssi
	c.regs[REG_IRQFLAGS] |= IRQ_RXDONE
	return true
}

func (c *simChip) reg(a byte) byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[a]
}

func (c *simChip) setCADBusy(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cadBusy = n
}

func (c *simChip) setIRQ(flags byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regs[REG_IRQFLAGS] |= flags
}

// clearLog forgets the register writes seen so far.
func (c *simChip) clearLog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = nil
	c.fifoWrites = 0
}

func (c *simChip) numWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *simChip) numFifoWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fifoWrites
}

// wrote returns the values written to a register, in order.
func (c *simChip) wrote(a byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var vals []byte
	for _, w := range c.writes {
		if w.addr == a {
			vals = append(vals, w.val)
		}
	}
	return vals
}

// newTestRadio initializes a Radio on the simulated chip, without the reset delays.
func newTestRadio(t *testing.T, chip *simChip, opts RadioOpts) *Radio {
	t.Helper()
	if opts.Reset == nil {
		opts.Reset = &gpiotest.Pin{N: "RST", Num: 22}
	}
	if opts.Logger == nil {
		opts.Logger = t.Logf
	}
	r := New(chip, opts)
	r.delay = func(time.Duration) {}
	if err := r.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}
