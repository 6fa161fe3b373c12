// Package pca9685 implements the register protocol of the NXP PCA9685
// 16-channel, 12-bit PWM controller.
//
// A Board owns one chip. It programs the PWM frequency, converts normalized
// duty cycles into phase-staggered step counts and drives the full-on and
// full-off overrides. The I2C transport is supplied by the caller as a Bus.
package pca9685

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

var (
	ErrInvalidBoardIndex = errors.New("invalid board index")
	ErrInvalidChannel    = errors.New("invalid channel")
	ErrInvalidFrequency  = errors.New("invalid frequency")
)

// settleDelay is how long the oscillator needs after leaving sleep or reset.
const settleDelay = 5 * time.Millisecond

// Bus is a byte-wide register transport. Both calls block until the bus
// transaction completes.
type Bus interface {
	WriteRegister(addr, reg, val byte) error
	ReadRegister(addr, reg byte) (byte, error)
}

// Board is one PCA9685 chip. All register access on a Board is serialized,
// so it may be shared by goroutines driving different channels.
type Board struct {
	mu        sync.Mutex
	bus       Bus
	index     int
	addr      byte
	frequency float64
	sleep     func(time.Duration)
	log       *slog.Logger
}

// Option configures a Board.
type Option func(*Board)

// WithSleep replaces the function used to wait out oscillator settle delays.
func WithSleep(sleep func(time.Duration)) Option {
	return func(b *Board) { b.sleep = sleep }
}

// WithLogger sets the logger used for register programming events.
func WithLogger(l *slog.Logger) Option {
	return func(b *Board) { b.log = l }
}

// New validates the board index, resets the chip at BaseAddress+index and
// returns it running at its power-on frequency.
func New(bus Bus, index int, opts ...Option) (*Board, error) {
	if index < 0 || index >= MaxBoards {
		return nil, fmt.Errorf("%w: %d out of [0,%d)", ErrInvalidBoardIndex, index, MaxBoards)
	}
	b := &Board{
		bus:       bus,
		index:     index,
		addr:      BaseAddress + byte(index),
		frequency: DefaultFrequency,
		sleep:     time.Sleep,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.Reset(); err != nil {
		return nil, err
	}
	return b, nil
}

// Index returns the board index the chip is strapped to.
func (b *Board) Index() int { return b.index }

// Address returns the 7-bit I2C address of the chip.
func (b *Board) Address() byte { return b.addr }

// Frequency returns the last successfully programmed PWM frequency in Hz.
func (b *Board) Frequency() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frequency
}

// Reset writes the default MODE2 and MODE1 values and waits for the
// oscillator. A bus failure part way through leaves the chip in whatever
// state the completed writes produced.
func (b *Board) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.write(regMode2, mode2Default); err != nil {
		return err
	}
	if err := b.write(regMode1, mode1Default); err != nil {
		return err
	}
	b.sleep(settleDelay)
	return nil
}

// SetFrequency programs the prescaler for hz. The chip is put to sleep while
// the prescaler is written and is awake with auto-increment enabled when
// SetFrequency returns. Out of range frequencies fail before any register is
// touched.
func (b *Board) SetFrequency(hz float64) error {
	prescale, err := prescaleFor(hz)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	mode1, err := b.read(regMode1)
	if err != nil {
		return err
	}
	// PRE_SCALE only accepts writes while the oscillator is off.
	if err := b.write(regMode1, (mode1&0x7F)|mode1Sleep); err != nil {
		return err
	}
	if err := b.write(regPrescale, prescale); err != nil {
		return err
	}
	if err := b.write(regMode1, mode1); err != nil {
		return err
	}
	b.sleep(settleDelay)
	if err := b.write(regMode1, mode1|mode1AutoInc); err != nil {
		return err
	}

	b.frequency = hz
	b.log.Debug("pca9685 frequency programmed",
		slog.Int("board", b.index),
		slog.Float64("hz", hz),
		slog.Int("prescale", int(prescale)))
	return nil
}

// prescaleFor returns the PRE_SCALE register value for hz.
func prescaleFor(hz float64) (byte, error) {
	if math.IsNaN(hz) || hz <= 0 {
		return 0, fmt.Errorf("%w: %v Hz", ErrInvalidFrequency, hz)
	}
	p := math.Round(BaseClockHz / StepsPerCycle / hz)
	if p < prescaleMin {
		return 0, fmt.Errorf("%w: %v Hz is above the hardware limit", ErrInvalidFrequency, hz)
	}
	if p > prescaleMax {
		return 0, fmt.Errorf("%w: %v Hz is below the hardware limit", ErrInvalidFrequency, hz)
	}
	return byte(p), nil
}

// WriteChannel sets the duty cycle of ch. Values outside [0,1] saturate.
func (b *Board) WriteChannel(ch int, duty float64) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	return b.SetSteps(ch, uint16(math.Round(clamp(duty)*StepsPerCycle)))
}

// ReadChannel returns the duty cycle of ch as reported by the chip.
func (b *Board) ReadChannel(ch int) (float64, error) {
	steps, err := b.Steps(ch)
	if err != nil {
		return 0, err
	}
	return float64(steps) / StepsPerCycle, nil
}

// SetSteps sets the high time of ch to steps counts out of StepsPerCycle.
// Steps above StepsPerCycle saturate. Zero is written as the full-off
// override.
func (b *Board) SetSteps(ch int, steps uint16) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if steps > StepsPerCycle {
		steps = StepsPerCycle
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if steps == 0 {
		return b.write(offHigh(ch), fullOnOffBit)
	}

	on := b.onStep(ch)
	off := on + int(steps) - 1
	if off >= StepsPerCycle {
		off -= StepsPerCycle
	}
	return b.writeSteps(ch, on, off)
}

// Steps returns the high time of ch in counts. A channel in full-on override
// reports FullOn; a channel in full-off override reports 0. ON equal to OFF
// reads as 1, the encoding SetSteps(ch, 1) writes.
func (b *Board) Steps(ch int) (uint16, error) {
	if err := checkChannel(ch); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var r [regsPerLed]byte
	base := regLed0OnL + regsPerLed*byte(ch)
	for i := range r {
		v, err := b.read(base + byte(i))
		if err != nil {
			return 0, err
		}
		r[i] = v
	}
	onL, onH, offL, offH := r[0], r[1], r[2], r[3]

	// Full off takes precedence over full on in hardware.
	if offH&fullOnOffBit != 0 {
		return 0, nil
	}
	if onH&fullOnOffBit != 0 {
		return FullOn, nil
	}

	on := int(onH&stepHighMask)<<8 | int(onL)
	off := int(offH&stepHighMask)<<8 | int(offL)
	steps := off - on
	if steps < 0 {
		steps += StepsPerCycle
	}
	// The off step is written one count early, see SetSteps.
	return uint16(steps + 1), nil
}

// On forces ch fully on.
func (b *Board) On(ch int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeRaw(ch, 0, fullOnOffBit, 0, 0)
}

// Off forces ch fully off.
func (b *Board) Off(ch int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write(offHigh(ch), fullOnOffBit)
}

// AllOff forces every channel on the board off with one broadcast write.
func (b *Board) AllOff() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write(regAllOffH, fullOnOffBit)
}

// onStep is the phase-staggered rising edge of ch at the current frequency,
// reduced to the 12-bit counter.
func (b *Board) onStep(ch int) int {
	step := math.Floor(BaseClockHz / b.frequency / ChannelsPerBoard * float64(phaseOffset[ch]))
	return int(step) % StepsPerCycle
}

func (b *Board) writeSteps(ch, on, off int) error {
	return b.writeRaw(ch,
		byte(on), byte(on>>8)&stepHighMask,
		byte(off), byte(off>>8)&stepHighMask)
}

func (b *Board) writeRaw(ch int, onL, onH, offL, offH byte) error {
	base := regLed0OnL + regsPerLed*byte(ch)
	for i, v := range [regsPerLed]byte{onL, onH, offL, offH} {
		if err := b.write(base+byte(i), v); err != nil {
			return err
		}
	}
	return nil
}

func (b *Board) write(reg, val byte) error {
	return b.bus.WriteRegister(b.addr, reg, val)
}

func (b *Board) read(reg byte) (byte, error) {
	return b.bus.ReadRegister(b.addr, reg)
}

func offHigh(ch int) byte {
	return regLed0OffH + regsPerLed*byte(ch)
}

func checkChannel(ch int) error {
	if ch < 0 || ch >= ChannelsPerBoard {
		return fmt.Errorf("%w: %d out of [0,%d)", ErrInvalidChannel, ch, ChannelsPerBoard)
	}
	return nil
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
