package io

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// OutputLine is the part of a gpiocdev.Line used for OE.
type OutputLine interface {
	SetValue(value int) error
	Close() error
}

// OutputEnable drives the active-low OE pin shared by chained PCA9685
// boards. While OE is high every output is disabled regardless of the
// channel registers.
type OutputEnable struct {
	line  OutputLine
	close func() error
}

// NewOutputEnable wraps an already requested line.
func NewOutputEnable(l OutputLine) *OutputEnable { return &OutputEnable{line: l} }

// OpenOutputEnable requests offset on chip as an output. The outputs start
// enabled when enabled is set and disabled otherwise.
func OpenOutputEnable(chip string, offset int, enabled bool) (*OutputEnable, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chip, err)
	}
	initial := 1
	if enabled {
		initial = 0
	}
	l, err := c.RequestLine(offset, gpiocdev.AsOutput(initial))
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("request OE line %d: %w", offset, err)
	}
	return &OutputEnable{line: l, close: c.Close}, nil
}

// Enable drives OE low so the boards output their programmed PWM.
func (o *OutputEnable) Enable() error { return o.line.SetValue(0) }

// Disable drives OE high, turning every output off.
func (o *OutputEnable) Disable() error { return o.line.SetValue(1) }

// Close disables the outputs and releases the line.
func (o *OutputEnable) Close() error {
	return errors.Join(o.Disable(), o.Release())
}

// Release gives the line back to the kernel without driving it.
func (o *OutputEnable) Release() error {
	err := o.line.Close()
	if o.close != nil {
		if cerr := o.close(); err == nil {
			err = cerr
		}
	}
	return err
}
