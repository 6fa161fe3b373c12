// Package pca9685test provides an in-memory PCA9685 for tests.
package pca9685test

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"

	"github.com/Seann-Moser/pca9685-pwm/pkg/pca9685"
)

const (
	regLedLast   = 0x45 // LED15_OFF_H
	regAllOnL    = pca9685.RegAllLedOnL
	regAllOffH   = regAllOnL + 3
	sleepBit     = 0x10
	channelCount = pca9685.ChannelsPerBoard
)

// Op is one register access seen by the simulator.
type Op struct {
	Write bool
	Addr  byte
	Reg   byte
	Val   byte
}

func (o Op) String() string {
	if o.Write {
		return fmt.Sprintf("W %#02x[%#02x]=%#02x", o.Addr, o.Reg, o.Val)
	}
	return fmt.Sprintf("R %#02x[%#02x]=%#02x", o.Addr, o.Reg, o.Val)
}

// Bus simulates any number of PCA9685 chips on one I2C bus. Chips appear
// on first access at any address.
//
// Writes to PRE_SCALE are dropped unless the chip is asleep, and writes to
// the ALL_LED registers are copied into every channel, as on real hardware.
// Bus implements both pca9685.Bus and periph's i2c.Bus.
type Bus struct {
	mu    sync.Mutex
	chips map[byte]*[256]byte
	ops   []Op
	err   error
	left  int
}

// New returns an empty simulated bus.
func New() *Bus {
	return &Bus{chips: make(map[byte]*[256]byte), left: -1}
}

// FailAfter makes every access after the next n succeed fail with err.
func (b *Bus) FailAfter(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.left, b.err = n, err
}

// Ops returns a copy of every access so far.
func (b *Bus) Ops() []Op {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Op(nil), b.ops...)
}

// ResetOps forgets recorded accesses but keeps register contents.
func (b *Bus) ResetOps() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = nil
}

// Register returns the current content of reg on the chip at addr.
func (b *Bus) Register(addr, reg byte) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chip(addr)[reg]
}

// SetRegister stores val without any of the hardware side effects.
func (b *Bus) SetRegister(addr, reg, val byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chip(addr)[reg] = val
}

// RawSteps decodes the four registers of ch the way the datasheet defines
// them: 0x1000 for full on, 0 for full off, otherwise OFF minus ON.
func (b *Bus) RawSteps(addr byte, ch int) uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.chip(addr)
	base := pca9685.RegLed0OnL + 4*byte(ch)
	onL, onH, offL, offH := r[base], r[base+1], r[base+2], r[base+3]
	switch {
	case offH&0x10 != 0:
		return 0
	case onH&0x10 != 0:
		return pca9685.FullOn
	}
	on := int(onH&0x0F)<<8 | int(onL)
	off := int(offH&0x0F)<<8 | int(offL)
	return uint16((off - on + pca9685.StepsPerCycle) % pca9685.StepsPerCycle)
}

// WriteRegister implements pca9685.Bus.
func (b *Bus) WriteRegister(addr, reg, val byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail(); err != nil {
		return err
	}
	b.ops = append(b.ops, Op{Write: true, Addr: addr, Reg: reg, Val: val})
	b.store(b.chip(addr), reg, val)
	return nil
}

// ReadRegister implements pca9685.Bus.
func (b *Bus) ReadRegister(addr, reg byte) (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fail(); err != nil {
		return 0, err
	}
	v := b.chip(addr)[reg]
	b.ops = append(b.ops, Op{Addr: addr, Reg: reg, Val: v})
	return v, nil
}

// String implements i2c.Bus.
func (b *Bus) String() string { return "pca9685test" }

// SetSpeed implements i2c.Bus.
func (b *Bus) SetSpeed(physic.Frequency) error { return nil }

// Tx implements i2c.Bus. The first written byte selects the register; the
// rest are written to consecutive registers, and reads continue from the
// last register addressed.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	a := byte(addr)
	if len(w) == 0 {
		return fmt.Errorf("pca9685test: tx to %#02x without register", addr)
	}
	reg := w[0]
	for _, v := range w[1:] {
		if err := b.WriteRegister(a, reg, v); err != nil {
			return err
		}
		reg++
	}
	for i := range r {
		v, err := b.ReadRegister(a, reg)
		if err != nil {
			return err
		}
		r[i] = v
		reg++
	}
	return nil
}

func (b *Bus) chip(addr byte) *[256]byte {
	c, ok := b.chips[addr]
	if !ok {
		c = new([256]byte)
		c[pca9685.RegMode1] = sleepBit | 0x01
		c[pca9685.RegMode2] = 0x04
		c[pca9685.RegPrescale] = 0x1E
		for ch := 0; ch < channelCount; ch++ {
			c[pca9685.RegLed0OnL+4*byte(ch)+3] = 0x10
		}
		b.chips[addr] = c
	}
	return c
}

func (b *Bus) store(c *[256]byte, reg, val byte) {
	switch {
	case reg == pca9685.RegPrescale:
		if c[pca9685.RegMode1]&sleepBit == 0 {
			return
		}
	case reg >= regAllOnL && reg <= regAllOffH:
		off := reg - regAllOnL
		for ch := 0; ch < channelCount; ch++ {
			c[pca9685.RegLed0OnL+4*byte(ch)+off] = val
		}
		return
	case reg > regLedLast && reg < regAllOnL:
		return
	}
	c[reg] = val
}

func (b *Bus) fail() error {
	if b.left < 0 {
		return nil
	}
	if b.left == 0 {
		return b.err
	}
	b.left--
	return nil
}
