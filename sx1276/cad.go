// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276

import (
	"math/rand"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// SetCADTimeout sets how long Send keeps re-checking a busy channel before giving up. With
// the default of zero a single CAD cycle decides.
func (r *Radio) SetCADTimeout(timeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cadTimeout = timeout
}

// IsChannelActive runs one channel activity detection cycle and reports whether the
// channel carries a LoRa signal. It blocks until the radio reports CAD done.
func (r *Radio) IsChannelActive() bool {
	r.mu.Lock()
	if r.mode == ModeInitialising {
		r.mu.Unlock()
		return false
	}
	r.setMode(ModeCAD)
	r.mu.Unlock()

	// The event routine returns the radio to idle when CAD is done.
	r.waitFor(func() bool { return r.mode != ModeCAD }, forever)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cad
}

// waitCAD waits for the channel to be free, backing off a random 100-1000ms between CAD
// cycles while the CAD timeout allows.
func (r *Radio) waitCAD() error {
	r.mu.Lock()
	timeout := r.cadTimeout
	r.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for r.IsChannelActive() {
		if timeout <= 0 || time.Now().After(deadline) {
			return ErrChannelBusy
		}
		r.delay(time.Duration(100+rand.Intn(900)) * time.Millisecond)
	}
	return nil
}

// worker services the DIO0 interrupt pin until stop is closed.
func (r *Radio) worker(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		edge := r.intr.WaitForEdge(100 * time.Millisecond)
		if !edge && r.intr.Read() != gpio.High {
			continue
		}
		r.mu.Lock()
		if !edge {
			r.log("Interrupt was missed!")
		}
		r.handleIRQ()
		r.mu.Unlock()
	}
}
