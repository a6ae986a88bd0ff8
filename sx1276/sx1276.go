// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// The SX1276 package interfaces with a Semtech SX1276/77/78/79 LoRa radio connected to an SPI
// bus, such as the HopeRF RFM95/96/97/98 modules or the radios on a Pi-Gate board.
//
// The driver exchanges messages prefixed with a 4-byte header carrying the destination and
// source node addresses, a sequence id, and flags. Received packets are filtered by
// destination address unless the radio is promiscuous. Before transmitting the driver runs a
// channel activity detection (CAD) cycle and refuses to transmit into a busy channel.
//
// The radio's DIO0 pin may be connected to an interrupt capable GPIO pin, in which case a
// goroutine services the interrupts. Without it the driver polls the chip's irq flags from
// Available and the Wait functions. Both paths go through the same event routine under the
// Radio's mutex, so a received packet is never overwritten while it is being copied out.
//
// Limitations
//
// This driver uses the SX1276 in LoRa mode only, with explicit headers and CRC as set by the
// canned modem configurations.
//
// Register accesses are best effort: other than during Init an SPI error does not abort an
// operation, the first such error is recorded and can be retrieved using the Error function.
//
// A Radio expects a single consumer: one goroutine doing the sends and receives. The
// interrupt goroutine is the only other party touching it.
package sx1276

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Conn is the SPI connection to the radio. A periph spi.Conn, a spimux.Conn and the embd
// shim all satisfy it.
type Conn interface {
	Tx(w, r []byte) error
}

// PinOut is an output pin, such as the reset line or the TX enable of an external
// antenna switch.
type PinOut interface {
	Out(l gpio.Level) error
}

// PinIn is the pin connected to the radio's DIO0 interrupt output.
type PinIn interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
}

// Mode is the operating mode of the radio as tracked by the driver.
type Mode byte

const (
	ModeInitialising Mode = iota // before Init succeeds
	ModeSleep
	ModeIdle
	ModeTx
	ModeRx
	ModeCAD
)

func (m Mode) String() string {
	switch m {
	case ModeInitialising:
		return "initialising"
	case ModeSleep:
		return "sleep"
	case ModeIdle:
		return "idle"
	case ModeTx:
		return "tx"
	case ModeRx:
		return "rx"
	case ModeCAD:
		return "cad"
	}
	return fmt.Sprintf("Mode(%d)", byte(m))
}

var (
	ErrNotDetected    = errors.New("sx1276: chip not detected")
	ErrNoLoRaMode     = errors.New("sx1276: chip did not enter LoRa sleep mode")
	ErrNotInitialized = errors.New("sx1276: radio is not initialized")
	ErrTooLong        = errors.New("sx1276: message too long")
	ErrChannelBusy    = errors.New("sx1276: channel busy")
	ErrBadConfig      = errors.New("sx1276: no such modem config")
	ErrBadFrequency   = errors.New("sx1276: frequency out of range")
	ErrTCXO           = errors.New("sx1276: cannot enable TCXO input")
)

const (
	broadcast       = 0xff
	defaultPreamble = 8
	defaultPower    = 13 // dBm on PA_BOOST
	pollInterval    = time.Millisecond
	tcxoAttempts    = 10
)

// LogPrintf is a function used by the driver to print logging info.
type LogPrintf func(format string, v ...interface{})

// RadioOpts contains the pins used by a Radio and its logger.
type RadioOpts struct {
	Reset    PinOut    // reset line, required
	TxEnable PinOut    // optional TX/RX switch: high while transmitting, low while receiving
	Intr     PinIn     // optional DIO0 interrupt pin, the driver polls without it
	Logger   LogPrintf // function to use for logging, nil disables logging
}

// Radio represents a Semtech SX127x LoRa radio.
type Radio struct {
	// configuration
	spi   Conn   // SPI device to access the radio
	rst   PinOut // reset pin
	txe   PinOut // TX enable pin, may be nil
	intr  PinIn  // interrupt pin for RX, TX, and CAD done, may be nil
	log   LogPrintf
	delay func(time.Duration)

	// state
	mu          sync.Mutex // guards everything below, held by the irq goroutine too
	mode        Mode
	err         error // persistent SPI error
	thisAddr    byte
	promiscuous bool
	txHdr       Header // header for the next transmitted message
	rxHdr       Header // header of the last accepted message
	buf         [MaxPayloadLen]byte
	bufLen      int
	rxBufValid  bool
	lastRssi    int
	cad         bool // result of the last CAD cycle
	cadTimeout  time.Duration
	txGood      uint16
	rxGood      uint16
	rxBad       uint16
	event       chan struct{} // signalled when an irq completed something
	stop        chan struct{} // closed to stop the irq goroutine
	done        chan struct{} // closed by the irq goroutine when it exits
}

// New returns a Radio for the SPI connection and pins. It does not communicate with the chip,
// Init must be called before anything else.
func New(dev Conn, opts RadioOpts) *Radio {
	r := &Radio{
		spi:      dev,
		rst:      opts.Reset,
		txe:      opts.TxEnable,
		intr:     opts.Intr,
		log:      func(format string, v ...interface{}) {},
		delay:    time.Sleep,
		mode:     ModeInitialising,
		thisAddr: broadcast,
		txHdr:    Header{To: broadcast, From: broadcast},
		event:    make(chan struct{}, 1),
	}
	if opts.Logger != nil {
		r.log = opts.Logger
	}
	return r
}

// Init resets the radio, verifies that a known chip revision responds, puts it into LoRa
// mode, and programs the defaults: Bw125Cr45Sf128, a preamble of 8, and 13dBm on PA_BOOST.
// The radio is left idle. An error means no device was found or it doesn't respond as
// expected, Init may be called again later.
func (r *Radio) Init() error {
	r.stopIRQ()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = ModeInitialising
	r.err = nil

	if r.txe != nil {
		r.txe.Out(gpio.Low)
	}
	if r.intr != nil {
		if err := r.intr.In(gpio.PullDown, gpio.NoEdge); err != nil {
			return fmt.Errorf("sx1276: error initializing interrupt pin: %w", err)
		}
	}

	// Some modules only come up properly after a second reset pulse.
	version := r.resetAndProbe()
	if !knownVersion(version) {
		r.log("SX1276 unexpected version %#x, resetting again", version)
		version = r.resetAndProbe()
		if !knownVersion(version) {
			return fmt.Errorf("%w: version %#x", ErrNotDetected, version)
		}
	}
	r.log("SX1276 version %#x", version)

	// Sleep mode is required to switch to LoRa mode.
	r.writeReg(REG_OPMODE, MODE_SLEEP|LONG_RANGE)
	r.delay(10 * time.Millisecond) // wait for sleep mode to take over from, say, CAD
	if got := r.readReg(REG_OPMODE); got != MODE_SLEEP|LONG_RANGE {
		return fmt.Errorf("%w: opmode %#x", ErrNoLoRaMode, got)
	}
	r.mode = ModeSleep

	// Use the entire 256 byte FIFO for either receive or transmit, but not both at the
	// same time.
	r.writeReg(REG_FIFOTXBASE, 0)
	r.writeReg(REG_FIFORXBASE, 0)

	r.setMode(ModeIdle)
	r.setModemConfig(modemConfigs[Bw125Cr45Sf128].conf)
	r.setPreambleLength(defaultPreamble)
	r.setTxPower(defaultPower, false)

	// A packet left over from a previous run holds the irq line high, discard it so
	// edges are seen.
	r.writeReg(REG_IRQFLAGS, 0xff)
	r.clearRxBuf()

	if r.intr != nil {
		if err := r.intr.In(gpio.PullDown, gpio.RisingEdge); err != nil {
			return fmt.Errorf("sx1276: error initializing interrupt pin: %w", err)
		}
		r.stop = make(chan struct{})
		r.done = make(chan struct{})
		go r.worker(r.stop, r.done)
	}
	return nil
}

func knownVersion(v byte) bool { return v == VERSION_SX1276 || v == VERSION_ALT }

// resetAndProbe pulses the reset line and reads the version register.
func (r *Radio) resetAndProbe() byte {
	if r.rst != nil {
		r.rst.Out(gpio.Low)
		r.delay(150 * time.Millisecond)
		r.rst.Out(gpio.High)
		r.delay(100 * time.Millisecond)
	}
	return r.readReg(REG_VERSION)
}

// Close stops the interrupt goroutine and closes the SPI connection if it can be closed.
// The radio is left in its current mode.
func (r *Radio) Close() error {
	r.stopIRQ()
	if c, ok := r.spi.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *Radio) stopIRQ() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	r.intr.In(gpio.PullDown, gpio.NoEdge)
}

// SetLogger sets a logging function, nil may be used to disable logging, which is the default.
func (r *Radio) SetLogger(l LogPrintf) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l != nil {
		r.log = l
	} else {
		r.log = func(format string, v ...interface{}) {}
	}
}

// Error returns the first SPI error encountered since Init.
func (r *Radio) Error() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Mode returns the current operating mode.
func (r *Radio) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// SetMode switches the radio to one of ModeSleep, ModeIdle, ModeTx, ModeRx, or ModeCAD. It
// does nothing if the radio is already in that mode.
func (r *Radio) SetMode(m Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode == ModeInitialising || m == ModeInitialising {
		return
	}
	r.setMode(m)
}

// SetModeIdle puts the radio in standby.
func (r *Radio) SetModeIdle() { r.SetMode(ModeIdle) }

// SetModeRx starts continuous reception.
func (r *Radio) SetModeRx() { r.SetMode(ModeRx) }

// SetModeTx starts transmitting whatever is in the FIFO, it is normally only used by Send.
func (r *Radio) SetModeTx() { r.SetMode(ModeTx) }

// Sleep puts the radio to sleep to save power. It wakes up with the next mode change.
func (r *Radio) Sleep() { r.SetMode(ModeSleep) }

// setMode changes the radio's operating mode and the DIO0 interrupt cause, and flips the TX
// enable pin when entering RX or TX.
func (r *Radio) setMode(m Mode) {
	// If we're in the right mode then don't do anything.
	if r.mode == m {
		return
	}

	var op byte
	switch m {
	case ModeSleep:
		op = MODE_SLEEP
	case ModeIdle:
		op = MODE_STANDBY
	case ModeRx:
		if r.txe != nil {
			r.txe.Out(gpio.Low)
		}
		r.writeReg(REG_DIOMAPPING1, DIO0_RXDONE)
		op = MODE_RX_CONT
	case ModeTx:
		if r.txe != nil {
			r.txe.Out(gpio.High)
		}
		r.writeReg(REG_DIOMAPPING1, DIO0_TXDONE)
		op = MODE_TX
	case ModeCAD:
		r.writeReg(REG_DIOMAPPING1, DIO0_CADDONE)
		op = MODE_CAD
	default:
		return
	}
	r.writeReg(REG_OPMODE, op|LONG_RANGE)
	r.log("Mode %s", m)
	r.mode = m
}

// SetFrequency changes the center frequency, in MHz, at which the radio transmits and
// receives.
func (r *Radio) SetFrequency(mhz float64) error {
	frf := mhz * 1000000 / fStep
	if !(frf > 0 && frf < 1<<24) {
		return fmt.Errorf("%w: %gMHz", ErrBadFrequency, mhz)
	}
	v := uint32(frf)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeReg(REG_FRFMSB, byte(v>>16), byte(v>>8), byte(v))
	r.log("SetFreq %gMHz -> %#06x", mhz, v)
	return nil
}

// SetTxPower configures the output power in dBm.
//
// Modules that connect the PA_BOOST pin (RFM95/96/97/98, the Pi-Gate radios) support 5 to
// 23dBm, powers above 20dBm use the +3dB high power DAC. Modules wired to the RFO pins
// (Modtronix inAir4/inAir9) must set useRFO and support -1 to 14dBm. Out of range values are
// clamped.
func (r *Radio) SetTxPower(dBm int, useRFO bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setTxPower(dBm, useRFO)
}

func (r *Radio) setTxPower(dBm int, useRFO bool) {
	if useRFO {
		switch {
		case dBm > 14:
			dBm = 14
		case dBm < -1:
			dBm = -1
		}
		r.writeReg(REG_PACONFIG, PA_MAX_POWER|byte(dBm+1))
		r.log("SetPower %ddBm RFO", dBm)
		return
	}

	switch {
	case dBm > 23:
		dBm = 23
	case dBm < 5:
		dBm = 5
	}
	r.log("SetPower %ddBm PA_BOOST", dBm)
	// The DAC adds about 3dB to all power levels, use it for the top 3dB.
	if dBm > 20 {
		r.writeReg(REG_PADAC, PA_DAC_ENABLE)
		dBm -= 3
	} else {
		r.writeReg(REG_PADAC, PA_DAC_DISABLE)
	}
	// Pout = 5 + OutputPower, measured, the datasheet is confusing on this.
	r.writeReg(REG_PACONFIG, PA_SELECT|byte(dBm-5))
}

// SetPreambleLength sets the number of preamble symbols, the default is 8.
func (r *Radio) SetPreambleLength(n uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setPreambleLength(n)
}

func (r *Radio) setPreambleLength(n uint16) {
	r.writeReg(REG_PREAMBLEMSB, byte(n>>8), byte(n))
}

// SetModemConfig programs one of the canned modem configurations.
func (r *Radio) SetModemConfig(c ModemConfigChoice) error {
	conf, err := GetModemConfig(c)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setModemConfig(conf)
	r.log("SetModemConfig %s", c)
	return nil
}

// SetModemPreset is SetModemConfig taking a plain table index, as used by radio.Driver.
func (r *Radio) SetModemPreset(index int) error {
	return r.SetModemConfig(ModemConfigChoice(index))
}

// SetModemRegisters programs arbitrary modem configuration register values.
func (r *Radio) SetModemRegisters(conf ModemConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setModemConfig(conf)
}

func (r *Radio) setModemConfig(conf ModemConfig) {
	r.writeReg(REG_MODEMCONF1, conf.Conf1, conf.Conf2)
	r.writeReg(REG_MODEMCONF3, conf.Conf3)
}

// EnableTCXO switches the radio to an external temperature compensated oscillator. The
// TCXO input can only be changed while asleep, the radio is left in sleep mode.
func (r *Radio) EnableTCXO() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode == ModeInitialising {
		return ErrNotInitialized
	}
	for i := 0; i < tcxoAttempts; i++ {
		v := r.readReg(REG_TCXO)
		if v&TCXO_INPUT_ON != 0 {
			return nil
		}
		r.setMode(ModeSleep)
		r.writeReg(REG_TCXO, v|TCXO_INPUT_ON)
	}
	return ErrTCXO
}

// LogRegs prints almost all the sx1276's registers using the logger.
func (r *Radio) LogRegs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	var buf, regs [0x50]byte
	buf[0] = 1
	r.tx(buf[:], regs[:])
	regs[0] = 0 // no real data there
	r.log("     0  1  2  3  4  5  6  7  8  9  A  B  C  D  E  F")
	for i := 0; i < len(regs); i += 16 {
		line := fmt.Sprintf("%02x:", i)
		for j := 0; j < 16 && i+j < len(regs); j++ {
			line += fmt.Sprintf(" %02x", regs[i+j])
		}
		r.log(line)
	}
}

// tx performs an SPI transaction, recording the first error.
func (r *Radio) tx(w, rd []byte) {
	if err := r.spi.Tx(w, rd); err != nil && r.err == nil {
		r.err = fmt.Errorf("sx1276: %w", err)
		r.log("%s", r.err)
	}
}

// writeReg writes one or multiple registers starting at addr, the sx1276 auto-increments (except
// for the FIFO register where that wouldn't be desirable).
func (r *Radio) writeReg(addr byte, data ...byte) {
	var wBuf, rBuf [MaxPayloadLen + 1]byte
	wBuf[0] = addr | 0x80
	n := copy(wBuf[1:], data)
	r.tx(wBuf[:n+1], rBuf[:n+1])
}

// readReg reads one register and returns its value.
func (r *Radio) readReg(addr byte) byte {
	var buf [2]byte
	r.tx([]byte{addr & 0x7f, 0}, buf[:])
	return buf[1]
}

// burstRead reads len(data) bytes starting at addr.
func (r *Radio) burstRead(addr byte, data []byte) {
	var wBuf, rBuf [MaxPayloadLen + 1]byte
	wBuf[0] = addr & 0x7f
	n := len(data)
	r.tx(wBuf[:n+1], rBuf[:n+1])
	copy(data, rBuf[1:n+1])
}
