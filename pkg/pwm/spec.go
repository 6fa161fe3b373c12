package pwm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/Seann-Moser/pca9685-pwm/pkg/pca9685"
)

// MaxPorts is the size of the flat port space.
const MaxPorts = pca9685.MaxBoards * pca9685.ChannelsPerBoard

var (
	ErrInvalidPort   = errors.New("invalid port")
	ErrInvalidConfig = errors.New("invalid port config, must be a number, string or config")
)

// Config describes a port together with the frequency its board should run
// at. Frequency zero selects pca9685.DefaultFrequency.
type Config struct {
	Port      int     `yaml:"port" json:"port"`
	Frequency float64 `yaml:"frequency,omitempty" json:"frequency,omitempty"`
}

type specKind int

const (
	specNone specKind = iota
	specNumber
	specString
	specConfig
)

// PortSpec selects a port by number, by numeric string or by Config.
// The zero PortSpec is invalid.
type PortSpec struct {
	kind specKind
	num  int
	text string
	cfg  Config
}

// Number selects port n.
func Number(n int) PortSpec { return PortSpec{kind: specNumber, num: n} }

// String selects the port named by a numeric string such as "17" or "0x11".
func String(s string) PortSpec { return PortSpec{kind: specString, text: s} }

// FromConfig selects c.Port and requests c.Frequency for its board.
func FromConfig(c Config) PortSpec { return PortSpec{kind: specConfig, cfg: c} }

func (s PortSpec) String() string {
	switch s.kind {
	case specNumber:
		return fmt.Sprint(s.num)
	case specString:
		return fmt.Sprintf("%q", s.text)
	case specConfig:
		return fmt.Sprintf("{port:%d frequency:%v}", s.cfg.Port, s.cfg.Frequency)
	}
	return "<none>"
}

// resolve returns the port number and requested frequency.
func (s PortSpec) resolve() (port int, hz float64, err error) {
	hz = pca9685.DefaultFrequency
	switch s.kind {
	case specNumber:
		port = s.num
	case specString:
		port, err = ParsePort(s.text)
		if err != nil {
			return 0, 0, err
		}
	case specConfig:
		port = s.cfg.Port
		if s.cfg.Frequency != 0 {
			hz = s.cfg.Frequency
		}
	default:
		return 0, 0, ErrInvalidConfig
	}
	if port < 0 || port >= MaxPorts {
		return 0, 0, fmt.Errorf("%w: %d out of [0,%d)", ErrInvalidPort, port, MaxPorts)
	}
	return port, hz, nil
}

// ParsePort parses a port number written in decimal or with a 0x prefix.
// Leading zeros are decimal, so "010" is port 10. The result is not range
// checked.
func ParsePort(s string) (int, error) {
	t, ok := normalizePort(strings.TrimSpace(s))
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidPort, s)
	}
	n, err := cast.ToIntE(t)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidPort, s)
	}
	return n, nil
}

// normalizePort strips leading zeros from decimal input so cast does not
// read it as octal. Other base prefixes and digit separators are rejected.
func normalizePort(s string) (string, bool) {
	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], s[1:]
	}
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return sign + s, strings.Trim(s[2:], "0123456789abcdefABCDEF") == ""
	}
	if s == "" || strings.Trim(s, "0123456789") != "" {
		return "", false
	}
	if d := strings.TrimLeft(s, "0"); d != "" {
		s = d
	} else {
		s = "0"
	}
	return sign + s, true
}

// Split returns the board index and channel of port.
func Split(port int) (board, channel int) {
	return port / pca9685.ChannelsPerBoard, port % pca9685.ChannelsPerBoard
}
