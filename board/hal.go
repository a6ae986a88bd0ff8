// Copyright 2018 by Thorsten von Eicken, see LICENSE file

package board

import (
	"strconv"
	"strings"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/rpi" // Raspberry Pi pin map for embd
	"github.com/pkg/errors"
	"github.com/tve/pigate"
	"github.com/tve/pigate/sx1276"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// SPIClock is the SPI clock used for the radios, the SX1276 supports up to 10MHz.
const SPIClock = 4 * physic.MegaHertz

// OpenHAL initializes the named hardware access library, "periph" or "embd".
func OpenHAL(name string) (HAL, error) {
	switch name {
	case "", "periph":
		return NewPeriph()
	case "embd":
		return NewEmbd()
	}
	return nil, errors.Errorf("unknown HAL %q, use periph or embd", name)
}

//===== periph.io

// Periph opens SPI devices and pins using periph.io.
type Periph struct{}

// NewPeriph loads the periph host drivers.
func NewPeriph() (*Periph, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}
	return &Periph{}, nil
}

func (*Periph) String() string { return "periph" }

// OpenSPI opens an SPI port, such as /dev/spidev0.1 or SPI0.1, in mode 0.
func (*Periph) OpenSPI(dev string) (sx1276.Conn, error) {
	port, err := spireg.Open(dev)
	if err != nil {
		return nil, errors.Wrap(err, "spireg open")
	}
	conn, err := port.Connect(SPIClock, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, errors.Wrap(err, "spi connect")
	}
	return &periphConn{conn, port}, nil
}

// OpenPin looks a pin up by name, such as GPIO22.
func (*Periph) OpenPin(name string) (Pin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("no pin named %s", name)
	}
	return p, nil
}

// periphConn closes the port along with the connection.
type periphConn struct {
	spi.Conn
	port spi.PortCloser
}

func (c *periphConn) Close() error { return c.port.Close() }

//===== embd

// Embd opens SPI devices and pins using embd.
type Embd struct{}

// NewEmbd initializes embd's GPIO and SPI drivers.
func NewEmbd() (*Embd, error) {
	if err := embd.InitGPIO(); err != nil {
		return nil, errors.Wrap(err, "embd gpio init")
	}
	if err := embd.InitSPI(); err != nil {
		embd.CloseGPIO()
		return nil, errors.Wrap(err, "embd spi init")
	}
	return &Embd{}, nil
}

func (*Embd) String() string { return "embd" }

// OpenSPI opens the SPI channel of a /dev/spidevB.C device name, embd only drives bus 0.
func (*Embd) OpenSPI(dev string) (sx1276.Conn, error) {
	ch, err := spiChannel(dev)
	if err != nil {
		return nil, err
	}
	return pigate.NewEmbdSPI(ch, int(SPIClock/physic.Hertz)), nil
}

// OpenPin opens a pin by GPIO name, e.g. GPIO22, or by embd pin name, e.g. P1_15.
func (*Embd) OpenPin(name string) (Pin, error) {
	var key interface{} = name
	if n, err := strconv.Atoi(strings.TrimPrefix(name, "GPIO")); err == nil {
		key = n
	}
	p, err := pigate.NewEmbdPin(key)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Close releases embd's drivers.
func (*Embd) Close() error {
	embd.CloseSPI()
	return embd.CloseGPIO()
}

// spiChannel extracts the chip select number from a spidev device name.
func spiChannel(dev string) (byte, error) {
	s := strings.TrimPrefix(dev, "/dev/spidev")
	i := strings.IndexByte(s, '.')
	if i < 0 || s[:i] != "0" {
		return 0, errors.Errorf("embd: unsupported SPI device %q", dev)
	}
	ch, err := strconv.ParseUint(s[i+1:], 10, 8)
	if err != nil {
		return 0, errors.Errorf("embd: bad SPI device %q", dev)
	}
	return byte(ch), nil
}
