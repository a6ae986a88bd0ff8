// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package pigate runs Semtech SX1276 LoRa radios on a Raspberry Pi, such as the two radios
// of a Pi-Gate board. The driver itself lives in the sx1276 package and uses periph.io for
// pin levels. This package contains the shim that lets the driver run on top of the embd
// hardware library instead, and the board package selects between the two. Simple commands
// to exercise the radios can be found in the cmd directory tree.
package pigate
