// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package sx1276

import "fmt"

// ModemConfig holds the three register values that select bandwidth, coding rate, and
// spreading factor.
type ModemConfig struct {
	Conf1 byte // ModemConfig1: bw, coding rate, implicit/expl header
	Conf2 byte // ModemConfig2: spreading, tx continuous, crc
	Conf3 byte // ModemConfig3: low data rate opt, LNA AGC
}

// ModemConfigChoice indexes the table of canned modem configurations.
type ModemConfigChoice int

const (
	Bw125Cr45Sf128   ModemConfigChoice = iota // medium range, the chip default
	Bw500Cr45Sf128                            // fast, short range
	Bw31_25Cr48Sf512                          // slow, long range
	Bw125Cr48Sf4096                           // slow, long range
)

// modemConfigs is indexed by ModemConfigChoice.
var modemConfigs = [...]struct {
	name string
	info string
	conf ModemConfig
}{
	Bw125Cr45Sf128:   {"bw125cr45sf128", "125kHz bw, 4/5 coding, sf128, 5469bps", ModemConfig{0x72, 0x74, 0x00}},
	Bw500Cr45Sf128:   {"bw500cr45sf128", "500kHz bw, 4/5 coding, sf128, 21875bps", ModemConfig{0x92, 0x74, 0x00}},
	Bw31_25Cr48Sf512: {"bw31cr48sf512", "31.25kHz bw, 4/8 coding, sf512, 275bps", ModemConfig{0x48, 0x94, 0x00}},
	Bw125Cr48Sf4096:  {"bw125cr48sf4096", "125kHz bw, 4/8 coding, sf4096, 183bps", ModemConfig{0x78, 0xc4, 0x00}},
}

// NumModemConfigs is the number of entries in the modem configuration table.
const NumModemConfigs = len(modemConfigs)

func (c ModemConfigChoice) valid() bool { return c >= 0 && int(c) < len(modemConfigs) }

func (c ModemConfigChoice) String() string {
	if !c.valid() {
		return fmt.Sprintf("ModemConfigChoice(%d)", int(c))
	}
	return modemConfigs[c].name
}

// Info returns a human readable description of the configuration.
func (c ModemConfigChoice) Info() string {
	if !c.valid() {
		return ""
	}
	return modemConfigs[c].info
}

// GetModemConfig returns the register values stored for the choice. It does not touch the
// radio.
func GetModemConfig(c ModemConfigChoice) (ModemConfig, error) {
	if !c.valid() {
		return ModemConfig{}, fmt.Errorf("%w: %d", ErrBadConfig, int(c))
	}
	return modemConfigs[c].conf, nil
}

// ModemConfigByName looks up a configuration by its name, e.g. "bw125cr45sf128".
func ModemConfigByName(name string) (ModemConfigChoice, bool) {
	for i := range modemConfigs {
		if modemConfigs[i].name == name {
			return ModemConfigChoice(i), true
		}
	}
	return -1, false
}
