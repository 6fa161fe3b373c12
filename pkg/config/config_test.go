package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seann-Moser/pca9685-pwm/pkg/pwm"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pwm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
bus:
  backend: Gobot
  number: 1
frequency: 500
output_enable:
  line: 17
log:
  level: debug
  format: json
ports:
  - port: 0
    frequency: 1000
  - port: 17
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendGobot, cfg.Bus.Backend)
	assert.Equal(t, 1, cfg.Bus.Number)
	assert.Equal(t, 500.0, cfg.Frequency)
	assert.Equal(t, "gpiochip0", cfg.OutputEnable.Chip)
	assert.Equal(t, 17, cfg.OutputEnable.Line)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "stderr", cfg.Log.Output)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr)
	assert.Equal(t, []pwm.Config{{Port: 0, Frequency: 1000}, {Port: 17}}, cfg.Ports)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"backend":   "bus: {backend: spidev}\n",
		"frequency": "frequency: -5\n",
		"format":    "log: {format: xml}\n",
		"port":      "ports: [{port: 992}]\n",
		"yaml":      "bus: [\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
