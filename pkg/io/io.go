// Package io provides the hardware transports behind a PCA9685: I2C buses
// from periph.io or gobot, and the GPIO line driving the OE pin.
package io

import (
	"fmt"

	"github.com/Seann-Moser/pca9685-pwm/pkg/config"
	"github.com/Seann-Moser/pca9685-pwm/pkg/pca9685"
)

// Open returns the bus selected by cfg and a function that releases it.
func Open(cfg config.BusConfig) (pca9685.Bus, func() error, error) {
	switch cfg.Backend {
	case config.BackendPeriph, "":
		bus, closer, err := OpenPeriph(cfg.Name)
		if err != nil {
			return nil, nil, err
		}
		return bus, closer, nil
	case config.BackendGobot:
		bus, closer, err := OpenGobotRaspi(cfg.Number)
		if err != nil {
			return nil, nil, err
		}
		return bus, closer, nil
	}
	return nil, nil, fmt.Errorf("unknown bus backend %q", cfg.Backend)
}
