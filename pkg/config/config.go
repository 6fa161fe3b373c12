// Package config loads the YAML configuration shared by all commands.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Seann-Moser/pca9685-pwm/pkg/pwm"
)

const (
	BackendPeriph = "periph"
	BackendGobot  = "gobot"
)

// Config is the YAML configuration file of pca9685-pwm.
type Config struct {
	Bus          BusConfig          `yaml:"bus"`
	Frequency    float64            `yaml:"frequency"`
	OutputEnable OutputEnableConfig `yaml:"output_enable"`
	Log          LogConfig          `yaml:"log"`
	Server       ServerConfig       `yaml:"server"`
	Ports        []pwm.Config       `yaml:"ports"`
}

// BusConfig selects the I2C transport.
type BusConfig struct {
	Backend string `yaml:"backend"`
	// Name is the periph bus name, e.g. "1" or "/dev/i2c-1". Empty opens the
	// first bus found.
	Name string `yaml:"name"`
	// Number is the gobot bus number. Negative uses the adaptor default.
	Number int `yaml:"number"`
}

// OutputEnableConfig names the GPIO line wired to the active-low OE pin.
// A negative line disables OE handling.
type OutputEnableConfig struct {
	Chip string `yaml:"chip"`
	Line int    `yaml:"line"`
}

// LogConfig selects the log level, format (text or json) and output
// (stdout, stderr or a file path).
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ServerConfig is the listen address of the serve command.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Bus:          BusConfig{Backend: BackendPeriph, Number: -1},
		Frequency:    200,
		OutputEnable: OutputEnableConfig{Chip: "gpiochip0", Line: -1},
		Log:          LogConfig{Level: "info", Format: "text", Output: "stderr"},
		Server:       ServerConfig{Addr: "0.0.0.0:8080"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks fields that have a closed set of values.
func (c *Config) Validate() error {
	c.Bus.Backend = strings.ToLower(c.Bus.Backend)
	switch c.Bus.Backend {
	case BackendPeriph, BackendGobot:
	default:
		return fmt.Errorf("bus.backend must be %q or %q, got %q", BackendPeriph, BackendGobot, c.Bus.Backend)
	}
	if c.Frequency <= 0 {
		return fmt.Errorf("frequency must be positive, got %v", c.Frequency)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	for i, p := range c.Ports {
		if p.Port < 0 || p.Port >= pwm.MaxPorts {
			return fmt.Errorf("ports[%d]: port %d out of [0,%d)", i, p.Port, pwm.MaxPorts)
		}
	}
	return nil
}
