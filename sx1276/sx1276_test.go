// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tve/pigate/radio"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

var _ radio.Driver = (*Radio)(nil)

func Test_Broadcast(t *testing.T) {
	if broadcast != radio.Broadcast {
		t.Fatalf("broadcast address %#x, radio package uses %#x", broadcast, radio.Broadcast)
	}
}

func Test_Init(t *testing.T) {
	rst := &gpiotest.Pin{N: "RST", Num: 22}
	chip := newSimChip()
	r := newTestRadio(t, chip, RadioOpts{Reset: rst})

	if m := r.Mode(); m != ModeIdle {
		t.Errorf("mode after Init is %s, expected idle", m)
	}
	if rst.Read() != gpio.High {
		t.Errorf("reset line left low")
	}
	regs := map[string]struct {
		addr, val byte
	}{
		"opmode":     {REG_OPMODE, MODE_STANDBY | LONG_RANGE},
		"txbase":     {REG_FIFOTXBASE, 0},
		"rxbase":     {REG_FIFORXBASE, 0},
		"conf1":      {REG_MODEMCONF1, 0x72},
		"conf2":      {REG_MODEMCONF2, 0x74},
		"conf3":      {REG_MODEMCONF3, 0x00},
		"preambleHi": {REG_PREAMBLEMSB, 0},
		"preambleLo": {REG_PREAMBLELSB, 8},
		"padac":      {REG_PADAC, PA_DAC_DISABLE},
		"paconfig":   {REG_PACONFIG, PA_SELECT | (13 - 5)},
	}
	for n, tc := range regs {
		if got := chip.reg(tc.addr); got != tc.val {
			t.Errorf("register %s (%#x) is %#x, expected %#x", n, tc.addr, got, tc.val)
		}
	}
}

func Test_InitVersions(t *testing.T) {
	cases := map[string]struct {
		versions []byte
		err      error
	}{
		"sx1276":       {[]byte{0x12}, nil},
		"alt":          {[]byte{0x22}, nil},
		"second reset": {[]byte{0x00, 0x22}, nil},
		"garbage":      {[]byte{0xff, 0x12}, nil},
		"absent":       {[]byte{0x00, 0x00}, ErrNotDetected},
		"wrong chip":   {[]byte{0x24, 0x24}, ErrNotDetected},
	}
	for n, tc := range cases {
		chip := newSimChip()
		chip.versions = tc.versions
		r := New(chip, RadioOpts{Reset: &gpiotest.Pin{N: "RST"}, Logger: t.Logf})
		r.delay = func(d time.Duration) {}
		err := r.Init()
		if !errors.Is(err, tc.err) {
			t.Errorf("%s: Init returned %v, expected %v", n, err, tc.err)
		}
		if err != nil && r.Mode() != ModeInitialising {
			t.Errorf("%s: failed Init left mode %s", n, r.Mode())
		}
	}
}

func Test_InitNoLoRaMode(t *testing.T) {
	chip := newSimChip()
	chip.stuckOpMode = true
	r := New(chip, RadioOpts{Reset: &gpiotest.Pin{N: "RST"}, Logger: t.Logf})
	r.delay = func(d time.Duration) {}
	if err := r.Init(); !errors.Is(err, ErrNoLoRaMode) {
		t.Fatalf("Init returned %v, expected %v", err, ErrNoLoRaMode)
	}
	if err := r.Send([]byte("hi")); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Send after failed Init returned %v", err)
	}
}

func Test_SetModeIdempotent(t *testing.T) {
	for _, m := range []Mode{ModeSleep, ModeIdle, ModeRx, ModeTx, ModeCAD} {
		chip := newSimChip()
		r := newTestRadio(t, chip, RadioOpts{})
		r.SetMode(ModeSleep)
		r.SetMode(ModeIdle)
		chip.clearLog()
		r.SetMode(m)
		first := chip.numWrites()
		r.SetMode(m)
		if second := chip.numWrites() - first; second != 0 {
			t.Errorf("second SetMode(%s) wrote %d registers", m, second)
		}
		if m != ModeIdle && first == 0 {
			t.Errorf("SetMode(%s) did not write any register", m)
		}
		if got := r.Mode(); got != m {
			t.Errorf("mode is %s after SetMode(%s)", got, m)
		}
	}
}

func Test_SetModeSideEffects(t *testing.T) {
	txe := &gpiotest.Pin{N: "TXE", Num: 27}
	chip := newSimChip()
	r := newTestRadio(t, chip, RadioOpts{TxEnable: txe})

	cases := []struct {
		mode  Mode
		op    byte
		dio   byte
		level gpio.Level
	}{
		{ModeRx, MODE_RX_CONT, DIO0_RXDONE, gpio.Low},
		{ModeTx, MODE_TX, DIO0_TXDONE, gpio.High},
		{ModeIdle, MODE_STANDBY, DIO0_TXDONE, gpio.High},
		{ModeRx, MODE_RX_CONT, DIO0_RXDONE, gpio.Low},
		{ModeCAD, MODE_CAD, DIO0_CADDONE, gpio.Low},
		{ModeSleep, MODE_SLEEP, DIO0_CADDONE, gpio.Low},
	}
	for _, tc := range cases {
		// CAD and TX complete immediately in the simulation, keep the flags from
		// changing the mode behind our back.
		r.mu.Lock()
		r.setMode(tc.mode)
		r.mu.Unlock()
		if got := chip.reg(REG_OPMODE); got != tc.op|LONG_RANGE {
			t.Errorf("%s: opmode %#x, expected %#x", tc.mode, got, tc.op|LONG_RANGE)
		}
		if got := chip.reg(REG_DIOMAPPING1); got != tc.dio {
			t.Errorf("%s: dio mapping %#x, expected %#x", tc.mode, got, tc.dio)
		}
		if got := txe.Read(); got != tc.level {
			t.Errorf("%s: txe %s, expected %s", tc.mode, got, tc.level)
		}
	}
}

func Test_SetTxPower(t *testing.T) {
	cases := map[string]struct {
		dBm      int
		rfo      bool
		paConfig byte
		paDac    byte // 0: not written
	}{
		"rfo-low":   {-5, true, 0x70, 0},
		"rfo-min":   {-1, true, 0x70, 0},
		"rfo-mid":   {10, true, 0x7b, 0},
		"rfo-max":   {14, true, 0x7f, 0},
		"rfo-high":  {20, true, 0x7f, 0},
		"boost-low": {0, false, 0x80, PA_DAC_DISABLE},
		"boost-13":  {13, false, 0x88, PA_DAC_DISABLE},
		"boost-20":  {20, false, 0x8f, PA_DAC_DISABLE},
		"boost-21":  {21, false, 0x8d, PA_DAC_ENABLE},
		"boost-23":  {23, false, 0x8f, PA_DAC_ENABLE},
		"boost-30":  {30, false, 0x8f, PA_DAC_ENABLE},
	}
	chip := newSimChip()
	r := newTestRadio(t, chip, RadioOpts{})
	for n, tc := range cases {
		chip.clearLog()
		r.SetTxPower(tc.dBm, tc.rfo)
		pa := chip.wrote(REG_PACONFIG)
		if len(pa) != 1 || pa[0] != tc.paConfig {
			t.Errorf("%s: PaConfig writes %#v, expected %#x", n, pa, tc.paConfig)
		}
		dac := chip.wrote(REG_PADAC)
		switch {
		case tc.paDac == 0 && len(dac) != 0:
			t.Errorf("%s: unexpected PaDac writes %#v", n, dac)
		case tc.paDac != 0 && (len(dac) != 1 || dac[0] != tc.paDac):
			t.Errorf("%s: PaDac writes %#v, expected %#x", n, dac, tc.paDac)
		}
	}
}

func Test_SetFrequency(t *testing.T) {
	cases := map[string]struct {
		mhz float64
		frf uint32
	}{
		"434": {434.0, 0x6c8000},
		"868": {868.0, 0xd90000},
		"915": {915.0, 0xe4c000},
	}
	chip := newSimChip()
	r := newTestRadio(t, chip, RadioOpts{})
	for n, tc := range cases {
		if err := r.SetFrequency(tc.mhz); err != nil {
			t.Fatalf("%s: %v", n, err)
		}
		got := uint32(chip.reg(REG_FRFMSB))<<16 | uint32(chip.reg(REG_FRFMID))<<8 |
			uint32(chip.reg(REG_FRFLSB))
		if got != tc.frf {
			t.Errorf("%s: frf %#06x, expected %#06x", n, got, tc.frf)
		}
	}

	for _, mhz := range []float64{0, -10, 1100, math.NaN(), math.Inf(1), math.Inf(-1)} {
		chip.clearLog()
		if err := r.SetFrequency(mhz); !errors.Is(err, ErrBadFrequency) {
			t.Errorf("SetFrequency(%g) returned %v", mhz, err)
		}
		if n := chip.numWrites(); n != 0 {
			t.Errorf("SetFrequency(%g) wrote %d registers", mhz, n)
		}
	}
}

func Test_SetPreambleLength(t *testing.T) {
	chip := newSimChip()
	r := newTestRadio(t, chip, RadioOpts{})
	r.SetPreambleLength(0x1234)
	if hi, lo := chip.reg(REG_PREAMBLEMSB), chip.reg(REG_PREAMBLELSB); hi != 0x12 || lo != 0x34 {
		t.Fatalf("preamble registers %#x %#x", hi, lo)
	}
}

func Test_EnableTCXO(t *testing.T) {
	chip := newSimChip()
	chip.regs[REG_TCXO] = 0x09
	r := newTestRadio(t, chip, RadioOpts{})
	if err := r.EnableTCXO(); err != nil {
		t.Fatal(err)
	}
	if got := chip.reg(REG_TCXO); got != 0x19 {
		t.Errorf("TCXO register %#x, expected 0x19", got)
	}
	if m := r.Mode(); m != ModeSleep {
		t.Errorf("mode %s after EnableTCXO, expected sleep", m)
	}
}

func Test_ModeString(t *testing.T) {
	names := map[Mode]string{ModeSleep: "sleep", ModeIdle: "idle", ModeTx: "tx", ModeRx: "rx",
		ModeCAD: "cad", ModeInitialising: "initialising", Mode(42): "Mode(42)"}
	for m, s := range names {
		if m.String() != s {
			t.Errorf("got %q expected %q", m.String(), s)
		}
	}
}
