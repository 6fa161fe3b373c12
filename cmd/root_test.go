package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seann-Moser/pca9685-pwm/pkg/config"
	"github.com/Seann-Moser/pca9685-pwm/pkg/io"
	"github.com/Seann-Moser/pca9685-pwm/pkg/pca9685"
	"github.com/Seann-Moser/pca9685-pwm/pkg/pca9685/pca9685test"
)

// resetFlags puts the persistent flags back to their defaults after a test.
func resetFlags(t *testing.T) {
	t.Cleanup(func() {
		rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	})
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pwm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

type recordLine struct {
	values []int
	closed bool
}

func (l *recordLine) SetValue(v int) error {
	l.values = append(l.values, v)
	return nil
}

func (l *recordLine) Close() error {
	l.closed = true
	return nil
}

type oeClaim struct {
	enabled bool
	line    *recordLine
}

// stubHardware swaps the bus and OE openers for a simulated chip and a
// recording line.
func stubHardware(t *testing.T) *[]oeClaim {
	t.Helper()
	claims := &[]oeClaim{}
	sim := pca9685test.New()
	prevBus, prevOE := openBus, openOutputEnable
	openBus = func(config.BusConfig) (pca9685.Bus, func() error, error) {
		return sim, func() error { return nil }, nil
	}
	openOutputEnable = func(_ string, _ int, enabled bool) (*io.OutputEnable, error) {
		l := &recordLine{}
		*claims = append(*claims, oeClaim{enabled: enabled, line: l})
		return io.NewOutputEnable(l), nil
	}
	t.Cleanup(func() { openBus, openOutputEnable = prevBus, prevOE })
	return claims
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	resetFlags(t)
	path := writeConfig(t, `
bus:
  backend: periph
  name: "1"
frequency: 50
log:
  level: warn
`)

	require.NoError(t, rootCmd.ParseFlags([]string{
		"--config", path,
		"--backend", "GOBOT",
		"--frequency", "500",
	}))
	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)
	assert.Equal(t, config.BackendGobot, cfg.Bus.Backend)
	assert.Equal(t, "1", cfg.Bus.Name)
	assert.Equal(t, 500.0, cfg.Frequency)
	assert.Equal(t, "warn", cfg.Log.Level)

	require.NoError(t, rootCmd.ParseFlags([]string{"--frequency=-3"}))
	_, err = loadConfig(rootCmd)
	assert.Error(t, err)
}

func TestPortCommandsRegistered(t *testing.T) {
	for _, name := range []string{"set", "get", "on", "off", "all-off", "serve"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
}

func TestGetLeavesOutputEnableAlone(t *testing.T) {
	resetFlags(t)
	claims := stubHardware(t)
	path := writeConfig(t, "output_enable:\n  chip: gpiochip0\n  line: 4\n")

	out := run(t, "get", "3", "--config", path, "--log-level", "error")
	assert.Contains(t, out, "port 3 (board 0 channel 3)")
	assert.Empty(t, *claims)
}

func TestSetKeepsOutputsEnabled(t *testing.T) {
	resetFlags(t)
	claims := stubHardware(t)
	path := writeConfig(t, "output_enable:\n  chip: gpiochip0\n  line: 4\n")

	out := run(t, "set", "17", "0.5", "--config", path, "--log-level", "error")
	assert.Contains(t, out, "port 17 (board 1 channel 1) 0.5000")

	require.Len(t, *claims, 1)
	c := (*claims)[0]
	assert.True(t, c.enabled)
	assert.NotContains(t, c.line.values, 1)
	assert.True(t, c.line.closed)
}

func TestSetWithoutOutputEnableLine(t *testing.T) {
	resetFlags(t)
	claims := stubHardware(t)

	out := run(t, "on", "5", "--log-level", "error")
	assert.Contains(t, out, "1.0000")
	assert.Empty(t, *claims)
}
