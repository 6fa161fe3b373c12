package pca9685

// Register offsets.
const (
	regMode1    byte = 0x00
	regMode2    byte = 0x01
	regLed0OnL  byte = 0x06
	regLed0OnH  byte = 0x07
	regLed0OffL byte = 0x08
	regLed0OffH byte = 0x09
	regAllOnL   byte = 0xFA
	regAllOnH   byte = 0xFB
	regAllOffL  byte = 0xFC
	regAllOffH  byte = 0xFD
	regPrescale byte = 0xFE
)

// regsPerLed is the register stride between consecutive channels.
const regsPerLed = 4

// Register values and bits.
const (
	mode1Default byte = 0x01 // ALLCALL, oscillator running
	mode2Default byte = 0x04 // OUTDRV, totem pole outputs
	mode1Sleep   byte = 0x10
	mode1Restart byte = 0x80
	mode1AutoInc byte = 0xA1 // RESTART | AI | ALLCALL
	fullOnOffBit byte = 0x10 // bit 4 of LEDn_ON_H (full on) or LEDn_OFF_H (full off)
	stepHighMask byte = 0x0F
)

// The prescale register is 8 bits wide and the hardware refuses values below 3.
const (
	prescaleMin = 3
	prescaleMax = 0xFF
)

const (
	// BaseAddress is the I2C address of board 0. Board n answers at BaseAddress+n.
	BaseAddress byte = 0x40
	// BaseClockHz is the frequency of the internal oscillator.
	BaseClockHz = 25_000_000
	// StepsPerCycle is the number of counter steps in one PWM period.
	StepsPerCycle = 4096
	// FullOn is the raw step value reported for a channel in full-on override.
	FullOn uint16 = 0x1000
	// MaxBoards is the number of addressable boards (6-bit hardware strap).
	MaxBoards = 62
	// ChannelsPerBoard is the number of PWM outputs on one chip.
	ChannelsPerBoard = 16
	// DefaultFrequency is the PWM frequency in Hz used when none is requested.
	// It is also what the chip runs at out of reset.
	DefaultFrequency = 200
)

// phaseOffset staggers the rising edge of each channel so that channels driven
// at the same duty cycle do not all draw current on the same step.
var phaseOffset = [ChannelsPerBoard]int{
	0x00, 0x08, 0x04, 0x0C,
	0x02, 0x0A, 0x06, 0x0E,
	0x01, 0x09, 0x05, 0x0D,
	0x03, 0x0B, 0x07, 0x0F,
}

// Exported register offsets, for callers inspecting raw chip state.
const (
	RegMode1     = regMode1
	RegMode2     = regMode2
	RegLed0OnL   = regLed0OnL
	RegAllLedOnL = regAllOnL
	RegPrescale  = regPrescale
)
