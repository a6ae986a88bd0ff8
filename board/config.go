// Copyright 2018 by Thorsten von Eicken, see LICENSE file

package board

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/tve/pigate/radio"
	"github.com/tve/pigate/sx1276"
	"gopkg.in/ini.v1"
	"periph.io/x/conn/v3/physic"
)

// Config is the configuration of a gateway program: its radios and its MQTT broker.
type Config struct {
	HAL   string
	Gates []Gate
	MQTT  MQTTConfig
}

// MQTTConfig holds the MQTT broker connection parameters.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883, empty disables MQTT
	Prefix   string // topic prefix
	ClientID string
	User     string
	Password string
}

// LoadConfig reads an ini configuration from a file name, a []byte, or an io.Reader.
//
// Each [gate.<name>] section defines a radio, starting from the Pi-Gate radio of the same
// name if there is one. Without any gate section the two Pi-Gate radios are used. Example:
//
//	hal = periph
//
//	[gate.868]
//	freq = 868.1MHz
//	power = 17
//	modem = bw125cr48sf4096
//
//	[mqtt]
//	broker = tcp://localhost:1883
//	prefix = pigate
func LoadConfig(source interface{}) (*Config, error) {
	f, err := ini.Load(source)
	if err != nil {
		return nil, errors.Wrap(err, "cannot load config")
	}
	conf := &Config{HAL: f.Section("").Key("hal").MustString("periph")}

	for _, s := range f.Sections() {
		name := strings.TrimPrefix(s.Name(), "gate.")
		if name == s.Name() {
			continue
		}
		g, err := gateFromSection(name, s)
		if err != nil {
			return nil, errors.Wrapf(err, "section %s", s.Name())
		}
		conf.Gates = append(conf.Gates, g)
	}
	if len(conf.Gates) == 0 {
		conf.Gates = PiGate()
	}

	m := f.Section("mqtt")
	conf.MQTT = MQTTConfig{
		Broker:   m.Key("broker").String(),
		Prefix:   m.Key("prefix").MustString("pigate"),
		ClientID: m.Key("client_id").String(),
		User:     m.Key("user").String(),
		Password: m.Key("password").String(),
	}
	return conf, nil
}

func gateFromSection(name string, s *ini.Section) (Gate, error) {
	g, ok := GateByName(name)
	if !ok {
		g = Gate{Name: name, Power: 13, Node: 1}
	}
	g.SPI = s.Key("spi").MustString(g.SPI)
	g.Mux = s.Key("mux").MustString(g.Mux)
	g.MuxSel = s.Key("mux_sel").MustInt(g.MuxSel)
	g.Reset = s.Key("reset").MustString(g.Reset)
	g.Intr = s.Key("irq").MustString(g.Intr)
	g.TxEnable = s.Key("txe").MustString(g.TxEnable)
	g.Power = s.Key("power").MustInt(g.Power)
	g.RFO = s.Key("rfo").MustBool(g.RFO)
	node := s.Key("node").MustUint(uint(g.Node))
	if node >= radio.Broadcast {
		return g, errors.Errorf("node %d must be below the broadcast address", node)
	}
	g.Node = byte(node)
	g.Promiscuous = s.Key("promiscuous").MustBool(g.Promiscuous)
	g.CADTimeout = s.Key("cad_timeout").MustDuration(g.CADTimeout)
	g.Beacon = s.Key("beacon").MustDuration(g.Beacon)

	if s.HasKey("freq") {
		var f physic.Frequency
		if err := f.Set(s.Key("freq").String()); err != nil {
			return g, errors.Wrap(err, "freq")
		}
		g.Freq = f
	}
	if s.HasKey("modem") {
		m, ok := sx1276.ModemConfigByName(s.Key("modem").String())
		if !ok {
			return g, errors.Errorf("unknown modem config %q", s.Key("modem").String())
		}
		g.Modem = m
	}

	switch {
	case g.SPI == "":
		return g, errors.New("spi device missing")
	case g.Reset == "":
		return g, errors.New("reset pin missing")
	case g.Freq == 0:
		return g, errors.New("freq missing")
	}
	return g, nil
}
