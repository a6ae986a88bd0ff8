// Copyright 2018 by Thorsten von Eicken, see LICENSE file

// Package radio defines the interface shared by the packet radio drivers so that programs
// operating several radios can hold them in a single table.
package radio

import "time"

// Broadcast is the destination address accepted by every node.
const Broadcast = 0xff

// Driver is a packet radio that frames messages with a to/from/id/flags header.
//
// Radio specific configuration (frequency, power, modem preset) is part of the interface so
// callers never need to type-assert to the concrete driver.
type Driver interface {
	Init() error
	Close() error

	Send(msg []byte) error
	WaitPacketSent() bool
	WaitPacketSentTimeout(timeout time.Duration) bool

	Available() bool
	Recv(buf []byte) (int, bool)
	WaitAvailableTimeout(timeout time.Duration) bool

	SetThisAddress(addr byte)
	SetHeaderTo(addr byte)
	SetHeaderFrom(addr byte)
	SetHeaderID(id byte)
	SetHeaderFlags(set, clear byte)
	SetPromiscuous(on bool)

	HeaderTo() byte
	HeaderFrom() byte
	HeaderID() byte
	HeaderFlags() byte
	LastRSSI() int

	SetFrequency(mhz float64) error
	SetTxPower(dBm int, useRFO bool)
	SetPreambleLength(n uint16)
	SetModemPreset(index int) error
	MaxMessageLength() int

	TxGood() uint16
	RxGood() uint16
	RxBad() uint16
}
