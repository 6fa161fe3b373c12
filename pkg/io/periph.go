package io

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// PeriphBus adapts a periph.io I2C bus to pca9685.Bus.
type PeriphBus struct {
	bus i2c.Bus
}

// NewPeriphBus wraps an already opened periph bus.
func NewPeriphBus(bus i2c.Bus) *PeriphBus {
	return &PeriphBus{bus: bus}
}

// OpenPeriph initializes the periph host drivers and opens the named I2C
// bus. Most Raspberry Pi boards expose the header pins as "1". An empty name
// opens the first bus registered.
func OpenPeriph(name string) (*PeriphBus, func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("open i2c bus %q: %w", name, err)
	}
	return NewPeriphBus(bus), bus.Close, nil
}

// WriteRegister writes one register in a single transaction.
func (p *PeriphBus) WriteRegister(addr, reg, val byte) error {
	return p.bus.Tx(uint16(addr), []byte{reg, val}, nil)
}

// ReadRegister reads one register with a combined write/read transaction.
func (p *PeriphBus) ReadRegister(addr, reg byte) (byte, error) {
	var r [1]byte
	if err := p.bus.Tx(uint16(addr), []byte{reg}, r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}
