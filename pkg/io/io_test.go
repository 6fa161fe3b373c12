package io

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
	periphpca "periph.io/x/devices/v3/pca9685"

	"github.com/Seann-Moser/pca9685-pwm/pkg/config"
	"github.com/Seann-Moser/pca9685-pwm/pkg/pca9685"
	"github.com/Seann-Moser/pca9685-pwm/pkg/pca9685/pca9685test"
)

func noSleep(time.Duration) {}

func TestPeriphBusWire(t *testing.T) {
	pb := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x41, W: []byte{0x01, 0x04}},
			{Addr: 0x41, W: []byte{0x00, 0x01}},
			{Addr: 0x41, W: []byte{0x09}, R: []byte{0x10}},
		},
		DontPanic: true,
	}
	bus := NewPeriphBus(pb)

	// The board reset sequence, then a read of LED0_OFF_H.
	_, err := pca9685.New(bus, 1, pca9685.WithSleep(noSleep))
	require.NoError(t, err)
	v, err := bus.ReadRegister(0x41, 0x09)
	require.NoError(t, err)
	assert.Equal(t, byte(0x10), v)
	assert.NoError(t, pb.Close())
}

func TestPeriphBusRoundTrip(t *testing.T) {
	sim := pca9685test.New()
	b, err := pca9685.New(NewPeriphBus(sim), 2, pca9685.WithSleep(noSleep))
	require.NoError(t, err)
	require.NoError(t, b.SetFrequency(1000))
	require.NoError(t, b.WriteChannel(9, 0.4))

	d, err := b.ReadChannel(9)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, d, 1.0/pca9685.StepsPerCycle)
	assert.Equal(t, byte(6), sim.Register(0x42, pca9685.RegPrescale))
}

// A chip programmed by periph's own pca9685 driver, as a previous process
// might have left it, reads back through Board.
func TestReadsPeriphProgrammedChannel(t *testing.T) {
	sim := pca9685test.New()
	dev, err := periphpca.NewI2C(sim, 0x40)
	require.NoError(t, err)
	require.NoError(t, dev.SetPwm(3, 0, 1024))

	b, err := pca9685.New(NewPeriphBus(sim), 0, pca9685.WithSleep(noSleep))
	require.NoError(t, err)
	d, err := b.ReadChannel(3)
	require.NoError(t, err)
	// periph counts high time as OFF-ON, Board as OFF-ON+1.
	assert.InDelta(t, 0.25, d, 2.0/pca9685.StepsPerCycle)
	assert.Equal(t, uint16(1024), sim.RawSteps(0x40, 3))
}

type fakeConn struct {
	regs map[uint8]uint8
	err  error
}

func (f *fakeConn) ReadByteData(reg uint8) (uint8, error) { return f.regs[reg], f.err }

func (f *fakeConn) WriteByteData(reg uint8, val uint8) error {
	if f.err != nil {
		return f.err
	}
	f.regs[reg] = val
	return nil
}

func TestGobotBusConnectionPerAddress(t *testing.T) {
	opened := map[int]int{}
	g := newGobotBus(func(addr int) (byteDataConn, error) {
		opened[addr]++
		return &fakeConn{regs: map[uint8]uint8{}}, nil
	})

	require.NoError(t, g.WriteRegister(0x40, 0x06, 0xAB))
	require.NoError(t, g.WriteRegister(0x41, 0x06, 0xCD))
	v, err := g.ReadRegister(0x40, 0x06)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), v)
	v, err = g.ReadRegister(0x41, 0x06)
	require.NoError(t, err)
	assert.Equal(t, byte(0xCD), v)

	assert.Equal(t, map[int]int{0x40: 1, 0x41: 1}, opened)
}

func TestGobotBusBoard(t *testing.T) {
	conn := &fakeConn{regs: map[uint8]uint8{}}
	g := newGobotBus(func(int) (byteDataConn, error) { return conn, nil })

	b, err := pca9685.New(g, 0, pca9685.WithSleep(noSleep))
	require.NoError(t, err)
	require.NoError(t, b.SetFrequency(200))
	assert.Equal(t, uint8(31), conn.regs[0xFE])
	assert.Equal(t, uint8(0xA1), conn.regs[0x00])

	require.NoError(t, b.SetSteps(0, 0x3FF))
	s, err := b.Steps(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x3FF), s)
}

func TestGobotBusErrors(t *testing.T) {
	errBus := errors.New("no such bus")
	g := newGobotBus(func(int) (byteDataConn, error) { return nil, errBus })
	assert.ErrorIs(t, g.WriteRegister(0x40, 0, 0), errBus)
	_, err := g.ReadRegister(0x40, 0)
	assert.ErrorIs(t, err, errBus)

	errNack := errors.New("nack")
	g = newGobotBus(func(int) (byteDataConn, error) { return &fakeConn{err: errNack}, nil })
	assert.ErrorIs(t, g.WriteRegister(0x40, 0, 0), errNack)
}

type fakeLine struct {
	values []int
	closed bool
	err    error
}

func (f *fakeLine) SetValue(v int) error {
	if f.err != nil {
		return f.err
	}
	f.values = append(f.values, v)
	return nil
}

func (f *fakeLine) Close() error {
	f.closed = true
	return nil
}

func TestOutputEnableActiveLow(t *testing.T) {
	l := &fakeLine{}
	oe := &OutputEnable{line: l}

	require.NoError(t, oe.Enable())
	require.NoError(t, oe.Disable())
	require.NoError(t, oe.Close())

	assert.Equal(t, []int{0, 1, 1}, l.values)
	assert.True(t, l.closed)

	l = &fakeLine{}
	oe = NewOutputEnable(l)
	require.NoError(t, oe.Enable())
	require.NoError(t, oe.Release())
	assert.Equal(t, []int{0}, l.values)
	assert.True(t, l.closed)
}

func TestOutputEnableCloseReportsDisableError(t *testing.T) {
	errLine := errors.New("line busy")
	l := &fakeLine{err: errLine}
	oe := NewOutputEnable(l)

	assert.ErrorIs(t, oe.Close(), errLine)
	assert.True(t, l.closed)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, _, err := Open(config.BusConfig{Backend: "spidev"})
	assert.Error(t, err)
}
