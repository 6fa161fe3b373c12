package io

import (
	"fmt"
	"sync"

	"gobot.io/x/gobot/drivers/i2c"
	"gobot.io/x/gobot/platforms/raspi"
)

// byteDataConn is the part of a gobot i2c.Connection the driver needs.
type byteDataConn interface {
	ReadByteData(reg uint8) (uint8, error)
	WriteByteData(reg uint8, val uint8) error
}

// GobotBus adapts a gobot I2C connector to pca9685.Bus. The connector is
// asked for one connection per device address, on first use.
type GobotBus struct {
	mu    sync.Mutex
	open  func(addr int) (byteDataConn, error)
	conns map[byte]byteDataConn
}

// NewGobotBus returns a bus that opens connections on bus number bus of c.
// A negative bus uses the connector default.
func NewGobotBus(c i2c.Connector, bus int) *GobotBus {
	if bus < 0 {
		bus = c.GetDefaultBus()
	}
	return newGobotBus(func(addr int) (byteDataConn, error) {
		conn, err := c.GetConnection(addr, bus)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

func newGobotBus(open func(addr int) (byteDataConn, error)) *GobotBus {
	return &GobotBus{open: open, conns: make(map[byte]byteDataConn)}
}

// OpenGobotRaspi connects a gobot Raspberry Pi adaptor and returns a bus on it.
func OpenGobotRaspi(bus int) (*GobotBus, func() error, error) {
	r := raspi.NewAdaptor()
	if err := r.Connect(); err != nil {
		return nil, nil, fmt.Errorf("connect raspi adaptor: %w", err)
	}
	return NewGobotBus(r, bus), r.Finalize, nil
}

func (g *GobotBus) conn(addr byte) (byteDataConn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.conns[addr]; ok {
		return c, nil
	}
	c, err := g.open(int(addr))
	if err != nil {
		return nil, fmt.Errorf("i2c connection to %#02x: %w", addr, err)
	}
	g.conns[addr] = c
	return c, nil
}

// WriteRegister implements pca9685.Bus.
func (g *GobotBus) WriteRegister(addr, reg, val byte) error {
	c, err := g.conn(addr)
	if err != nil {
		return err
	}
	return c.WriteByteData(reg, val)
}

// ReadRegister implements pca9685.Bus.
func (g *GobotBus) ReadRegister(addr, reg byte) (byte, error) {
	c, err := g.conn(addr)
	if err != nil {
		return 0, err
	}
	return c.ReadByteData(reg)
}
