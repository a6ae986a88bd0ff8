// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276

// Register addresses, LoRa mode.
const (
	REG_FIFO        = 0x00
	REG_OPMODE      = 0x01
	REG_FRFMSB      = 0x06
	REG_FRFMID      = 0x07
	REG_FRFLSB      = 0x08
	REG_PACONFIG    = 0x09
	REG_OCP         = 0x0B
	REG_LNA         = 0x0C
	REG_FIFOPTR     = 0x0D
	REG_FIFOTXBASE  = 0x0E
	REG_FIFORXBASE  = 0x0F
	REG_FIFORXCURR  = 0x10
	REG_IRQMASK     = 0x11
	REG_IRQFLAGS    = 0x12
	REG_RXBYTES     = 0x13
	REG_MODEMSTAT   = 0x18
	REG_PKTSNR      = 0x19
	REG_PKTRSSI     = 0x1A
	REG_CURRSSI     = 0x1B
	REG_HOPCHAN     = 0x1C
	REG_MODEMCONF1  = 0x1D
	REG_MODEMCONF2  = 0x1E
	REG_SYMBTIMEOUT = 0x1F
	REG_PREAMBLEMSB = 0x20
	REG_PREAMBLELSB = 0x21
	REG_PAYLENGTH   = 0x22
	REG_PAYMAX      = 0x23
	REG_FIFORXLAST  = 0x25
	REG_MODEMCONF3  = 0x26
	REG_PPMCORR     = 0x27
	REG_FEI         = 0x28
	REG_DETECTOPT   = 0x31
	REG_DETECTTHR   = 0x37
	REG_SYNC        = 0x39
	REG_DIOMAPPING1 = 0x40
	REG_DIOMAPPING2 = 0x41
	REG_VERSION     = 0x42
	REG_TCXO        = 0x4B
	REG_PADAC       = 0x4D
)

// OpMode register values. LONG_RANGE is or'ed into every mode write so the chip stays in
// LoRa mode, it can only be changed while asleep.
const (
	MODE_SLEEP     = 0x00
	MODE_STANDBY   = 0x01
	MODE_FS_TX     = 0x02 // frequency synthesis TX
	MODE_TX        = 0x03
	MODE_FS_RX     = 0x04 // frequency synthesis RX
	MODE_RX_CONT   = 0x05 // RX continuous
	MODE_RX_SINGLE = 0x06
	MODE_CAD       = 0x07 // channel activity detection

	LONG_RANGE = 0x80
)

const (
	// IRQ mask and flags registers
	IRQ_RXTIMEOUT = 1 << 7
	IRQ_RXDONE    = 1 << 6
	IRQ_CRCERR    = 1 << 5
	IRQ_VALIDHDR  = 1 << 4
	IRQ_TXDONE    = 1 << 3
	IRQ_CADDONE   = 1 << 2
	IRQ_FHSCHG    = 1 << 1
	IRQ_CADDETECT = 1 << 0
)

// DIO0 mapping, top two bits of REG_DIOMAPPING1.
const (
	DIO0_RXDONE  = 0x00
	DIO0_TXDONE  = 0x40
	DIO0_CADDONE = 0x80
)

const (
	PA_SELECT      = 0x80 // PaConfig: use PA_BOOST pin
	PA_MAX_POWER   = 0x70 // PaConfig: MaxPower field for the RFO pin
	PA_DAC_ENABLE  = 0x07 // PaDac: +20dBm on PA_BOOST
	PA_DAC_DISABLE = 0x04
	TCXO_INPUT_ON  = 0x10
)

// Chip revisions accepted by Init: 0x12 is what the SX1276/77/78/79 report, 0x22 is reported
// by some module variants after a second reset.
const (
	VERSION_SX1276 = 0x12
	VERSION_ALT    = 0x22
)

const (
	fxOsc = 32000000.0
	// fStep is the frequency synthesizer step in Hz, fxOsc / 2^19.
	fStep = fxOsc / 524288
	// rssiOffset converts PktRssiValue into dBm for the HF port.
	rssiOffset = 137
)
