// Copyright 2018 by Thorsten von Eicken, see LICENSE file

package board

import (
	"strings"
	"testing"
	"time"

	"github.com/tve/pigate/sx1276"
	"periph.io/x/conn/v3/physic"
)

func TestLoadConfigDefaults(t *testing.T) {
	conf, err := LoadConfig([]byte(""))
	if err != nil {
		t.Fatal(err)
	}
	if conf.HAL != "periph" || len(conf.Gates) != 2 || conf.MQTT.Broker != "" || conf.MQTT.Prefix != "pigate" {
		t.Fatalf("defaults: %+v", conf)
	}
	if conf.Gates[0].Name != "433" || conf.Gates[1].Name != "868" {
		t.Fatalf("gates %v %v", conf.Gates[0].Name, conf.Gates[1].Name)
	}
}

const testConfig = `
hal = embd

[gate.868]
freq = 868.1MHz
power = 17
modem = bw125cr48sf4096
promiscuous = true
beacon = 10s
cad_timeout = 2s

[gate.lab]
spi = /dev/spidev0.0
mux = GPIO17
mux_sel = 1
reset = GPIO5
freq = 915MHz
rfo = true
node = 42

[mqtt]
broker = tcp://broker:1883
prefix = home/radio
user = gw
`

func TestLoadConfig(t *testing.T) {
	conf, err := LoadConfig(strings.NewReader(testConfig))
	if err != nil {
		t.Fatal(err)
	}
	if conf.HAL != "embd" {
		t.Errorf("hal %q", conf.HAL)
	}
	if len(conf.Gates) != 2 {
		t.Fatalf("%d gates", len(conf.Gates))
	}
	g := conf.Gates[0]
	want := Gate{
		Name: "868", SPI: "/dev/spidev0.0", Reset: "GPIO25", Intr: "GPIO24", TxEnable: "GPIO27",
		Freq: 868100 * physic.KiloHertz, Power: 17, Modem: sx1276.Bw125Cr48Sf4096, Node: 1,
		Promiscuous: true, Beacon: 10 * time.Second, CADTimeout: 2 * time.Second,
	}
	if g != want {
		t.Errorf("gate 868:\n%+v expected\n%+v", g, want)
	}
	g = conf.Gates[1]
	want = Gate{
		Name: "lab", SPI: "/dev/spidev0.0", Mux: "GPIO17", MuxSel: 1, Reset: "GPIO5",
		Freq: 915 * physic.MegaHertz, Power: 13, RFO: true, Node: 42,
	}
	if g != want {
		t.Errorf("gate lab:\n%+v expected\n%+v", g, want)
	}
	m := conf.MQTT
	if m.Broker != "tcp://broker:1883" || m.Prefix != "home/radio" || m.User != "gw" {
		t.Errorf("mqtt %+v", m)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	cases := map[string]string{
		"freq":    "[gate.433]\nfreq = fast\n",
		"modem":   "[gate.433]\nmodem = bw250\n",
		"node":    "[gate.433]\nnode = 255\n",
		"spi":     "[gate.x]\nreset = GPIO5\nfreq = 433MHz\n",
		"reset":   "[gate.x]\nspi = /dev/spidev0.0\nfreq = 433MHz\n",
		"nofreq":  "[gate.x]\nspi = /dev/spidev0.0\nreset = GPIO5\n",
		"no file": "",
	}
	for n, src := range cases {
		var err error
		if n == "no file" {
			_, err = LoadConfig("/nonexistent/pigate.ini")
		} else {
			_, err = LoadConfig([]byte(src))
		}
		if err == nil {
			t.Errorf("%s: no error", n)
		}
	}
}
