// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276

import (
	"fmt"
	"time"
)

// forever is the timeout used by the unbounded waits.
const forever = -1

// MaxMessageLength returns the largest message body Send accepts.
func (r *Radio) MaxMessageLength() int { return MaxMessageLen }

// Send transmits a message prefixed with the header set up by SetHeaderTo, SetHeaderFrom,
// SetHeaderID, and SetHeaderFlags. It first waits for any transmission in progress to
// complete and for a CAD cycle to report a free channel. Send returns once the radio has
// started transmitting, use WaitPacketSent to wait for the end of the transmission.
//
// Messages longer than MaxMessageLen are rejected with ErrTooLong before the radio is touched.
// ErrChannelBusy is returned if the channel was busy for the CAD timeout, the caller may retry.
func (r *Radio) Send(msg []byte) error {
	if len(msg) > MaxMessageLen {
		return fmt.Errorf("%w: %d bytes, max %d", ErrTooLong, len(msg), MaxMessageLen)
	}
	if r.Mode() == ModeInitialising {
		return ErrNotInitialized
	}

	r.WaitPacketSent() // don't interrupt an outgoing message
	r.SetModeIdle()
	if err := r.waitCAD(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var pkt [MaxPayloadLen]byte
	r.txHdr.Encode(pkt[:])
	n := HeaderLen + copy(pkt[HeaderLen:], msg)
	r.writeReg(REG_FIFOPTR, 0)
	r.writeReg(REG_FIFO, pkt[:n]...)
	r.writeReg(REG_PAYLENGTH, byte(n))
	r.setMode(ModeTx)
	// When TX is done the event routine returns the radio to idle.
	return nil
}

// WaitPacketSent blocks until the transmission in progress completes. It returns false if
// the radio was not transmitting. It blocks forever if the radio never reports TX done, use
// WaitPacketSentTimeout to bound the wait.
func (r *Radio) WaitPacketSent() bool { return r.waitPacketSent(forever) }

// WaitPacketSentTimeout is WaitPacketSent with a bound, it returns false if the transmission
// is still in progress after timeout.
func (r *Radio) WaitPacketSentTimeout(timeout time.Duration) bool {
	return r.waitPacketSent(timeout)
}

func (r *Radio) waitPacketSent(timeout time.Duration) bool {
	if r.Mode() != ModeTx {
		return false
	}
	return r.waitFor(func() bool { return r.mode != ModeTx }, timeout)
}

// Available returns true if a message has been received and not consumed yet. As a side
// effect it puts the radio in receive mode unless it is transmitting.
func (r *Radio) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available()
}

func (r *Radio) available() bool {
	if r.mode == ModeInitialising {
		return false
	}
	if r.rxBufValid {
		return true
	}
	r.handleIRQ()
	if r.mode == ModeTx {
		return false
	}
	r.setMode(ModeRx)
	return r.rxBufValid
}

// WaitAvailable blocks until a message is available. There is no bound on the wait, use
// WaitAvailableTimeout for that.
func (r *Radio) WaitAvailable() { r.waitFor(r.available, forever) }

// WaitAvailableTimeout blocks until a message is available or the timeout expires.
func (r *Radio) WaitAvailableTimeout(timeout time.Duration) bool {
	return r.waitFor(r.available, timeout)
}

// Recv copies the body of the received message into buf and returns its length, truncated
// to len(buf). It returns false if no message is available. The message is consumed, making
// room for the next one, even when buf is nil.
func (r *Radio) Recv(buf []byte) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.available() {
		return 0, false
	}
	n := copy(buf, r.buf[HeaderLen:r.bufLen])
	r.clearRxBuf()
	return n, true
}

// RecvFrame returns the received message with its header and rssi, consuming it.
func (r *Radio) RecvFrame() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.available() {
		return Frame{}, false
	}
	f := Frame{
		Header:  r.rxHdr,
		Payload: append([]byte(nil), r.buf[HeaderLen:r.bufLen]...),
		Rssi:    r.lastRssi,
	}
	r.clearRxBuf()
	return f, true
}

func (r *Radio) clearRxBuf() {
	r.rxBufValid = false
	r.bufLen = 0
}

// waitFor polls the radio until cond holds, waking up early when the irq goroutine reports
// an event. cond is called with r.mu held. A negative timeout waits forever, a zero timeout
// checks once.
func (r *Radio) waitFor(cond func() bool, timeout time.Duration) bool {
	var expired <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		r.mu.Lock()
		r.handleIRQ()
		ok := cond()
		r.mu.Unlock()
		if ok {
			return true
		}
		select {
		case <-r.event:
		case <-tick.C:
		case <-expired:
			r.mu.Lock()
			defer r.mu.Unlock()
			r.handleIRQ()
			return cond()
		}
	}
}

// handleIRQ is the event routine shared by the interrupt goroutine and the polling paths. It
// reads the irq flags and acts on them according to the current mode. Must be called with
// r.mu held.
func (r *Radio) handleIRQ() {
	if r.mode == ModeInitialising {
		return
	}
	flags := r.readReg(REG_IRQFLAGS)
	if flags == 0 {
		return
	}
	switch {
	case r.mode == ModeRx && flags&(IRQ_RXTIMEOUT|IRQ_CRCERR) != 0:
		r.rxBad++
		r.log("RX error, irq flags %#x", flags)
	case r.mode == ModeRx && flags&IRQ_RXDONE != 0:
		r.receive()
	case r.mode == ModeTx && flags&IRQ_TXDONE != 0:
		r.txGood++
		r.setMode(ModeIdle)
	case r.mode == ModeCAD && flags&IRQ_CADDONE != 0:
		r.cad = flags&IRQ_CADDETECT != 0
		r.setMode(ModeIdle)
	default:
		r.log("Spurious irq flags %#x in mode %s", flags, r.mode)
	}
	r.writeReg(REG_IRQFLAGS, 0xff) // clear all IRQ flags

	select {
	case r.event <- struct{}{}:
	default:
	}
}

// receive copies a packet out of the FIFO and validates it.
func (r *Radio) receive() {
	if r.rxBufValid {
		// Only reachable if the caller forced RX mode with a message pending.
		r.log("RX buffer not consumed, dropping packet")
		return
	}
	n := int(r.readReg(REG_RXBYTES))
	// Reset the fifo read ptr to the beginning of the packet.
	r.writeReg(REG_FIFOPTR, r.readReg(REG_FIFORXCURR))
	r.burstRead(REG_FIFO, r.buf[:n])
	r.bufLen = n
	r.lastRssi = int(r.readReg(REG_PKTRSSI)) - rssiOffset

	r.validateRxBuf()
	if r.rxBufValid {
		r.setMode(ModeIdle) // got one
	} else {
		r.bufLen = 0
	}
}

// validateRxBuf accepts the packet in buf if it carries a header addressed to us, to
// everyone, or if we're promiscuous.
func (r *Radio) validateRxBuf() {
	hdr, ok := ParseHeader(r.buf[:r.bufLen])
	if !ok {
		r.log("RX packet too short: %d bytes", r.bufLen)
		return
	}
	if r.promiscuous || hdr.To == r.thisAddr || hdr.To == broadcast {
		r.rxHdr = hdr
		r.rxGood++
		r.rxBufValid = true
	}
}

// SetThisAddress sets the address of this node, used to filter received messages.
func (r *Radio) SetThisAddress(addr byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thisAddr = addr
}

// SetPromiscuous turns address filtering of received messages off (true) or on (false).
func (r *Radio) SetPromiscuous(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.promiscuous = on
}

// SetHeaderTo sets the destination address of transmitted messages, 0xff broadcasts.
func (r *Radio) SetHeaderTo(addr byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txHdr.To = addr
}

// SetHeaderFrom sets the source address of transmitted messages.
func (r *Radio) SetHeaderFrom(addr byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txHdr.From = addr
}

// SetHeaderID sets the id of transmitted messages.
func (r *Radio) SetHeaderID(id byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txHdr.ID = id
}

// SetHeaderFlags clears the bits in clear and then sets the bits in set in the flags of
// transmitted messages.
func (r *Radio) SetHeaderFlags(set, clear byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txHdr.Flags = r.txHdr.Flags&^clear | set
}

// HeaderTo returns the destination address of the last received message.
func (r *Radio) HeaderTo() byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rxHdr.To
}

// HeaderFrom returns the source address of the last received message.
func (r *Radio) HeaderFrom() byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rxHdr.From
}

// HeaderID returns the id of the last received message.
func (r *Radio) HeaderID() byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rxHdr.ID
}

// HeaderFlags returns the flags of the last received message.
func (r *Radio) HeaderFlags() byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rxHdr.Flags
}

// LastRSSI returns the rssi in dBm of the last received packet.
func (r *Radio) LastRSSI() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRssi
}

// TxGood returns the number of packets transmitted.
func (r *Radio) TxGood() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txGood
}

// RxGood returns the number of packets received and accepted by the address filter.
func (r *Radio) RxGood() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rxGood
}

// RxBad returns the number of packets received with a CRC error or rx timeout.
func (r *Radio) RxBad() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rxBad
}
