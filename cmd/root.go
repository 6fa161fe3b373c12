package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Seann-Moser/pca9685-pwm/pkg/config"
	"github.com/Seann-Moser/pca9685-pwm/pkg/io"
	"github.com/Seann-Moser/pca9685-pwm/pkg/logger"
	"github.com/Seann-Moser/pca9685-pwm/pkg/pca9685"
	"github.com/Seann-Moser/pca9685-pwm/pkg/pwm"
)

// Hardware openers, replaced in tests.
var (
	openBus          = io.Open
	openOutputEnable = io.OpenOutputEnable
)

var (
	configPath string
	backend    string
	busName    string
	frequency  float64
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pca9685-pwm",
	Short: "Drive PCA9685 PWM boards over I2C",
	Long: `pca9685-pwm controls the channels of up to 62 chained PCA9685 boards
as one flat range of ports. Port n is channel n%16 of the board at I2C
address 0x40+n/16. Duty cycles are given in [0,1].`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", "", "YAML config file")
	f.StringVar(&backend, "backend", "", "I2C backend: periph or gobot")
	f.StringVar(&busName, "bus", "", "periph I2C bus name, e.g. 1 or /dev/i2c-1")
	f.Float64VarP(&frequency, "frequency", "f", 0, "PWM frequency in Hz for boards opened by this run")
	f.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
}

// session is everything a command needs to reach the hardware.
type session struct {
	cfg      config.Config
	log      *slog.Logger
	registry *pwm.Registry
	oe       *io.OutputEnable
	closers  []func() error
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Bus.Backend = backend
	}
	if flags.Changed("bus") {
		cfg.Bus.Name = busName
	}
	if flags.Changed("frequency") {
		cfg.Frequency = frequency
	}
	return cfg, cfg.Validate()
}

// oeMode says whether a session claims the OE line and how it drives it.
type oeMode int

const (
	// oeUntouched leaves the OE line to whoever holds it.
	oeUntouched oeMode = iota
	// oeEnabled claims OE driven low, so outputs never blank.
	oeEnabled
	// oeDisabled claims OE driven high until enableOutputs.
	oeDisabled
)

func openSession(cmd *cobra.Command, mode oeMode) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	var level string
	if cmd.Flags().Changed("log-level") {
		level = logLevel
	}
	log, closeLog, err := logger.New(cfg.Log, logger.WithLevel(level), logger.WithAttrs("cmd", cmd.Name()))
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, log: log, closers: []func() error{closeLog}}

	bus, closeBus, err := openBus(cfg.Bus)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, closeBus)
	s.registry = pwm.NewRegistry(bus,
		pwm.WithLogger(log),
		pwm.WithBoardOptions(pca9685.WithLogger(log)))

	if mode != oeUntouched && cfg.OutputEnable.Line >= 0 {
		oe, err := openOutputEnable(cfg.OutputEnable.Chip, cfg.OutputEnable.Line, mode == oeEnabled)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.oe = oe
	}
	log.Debug("session opened",
		slog.String("backend", cfg.Bus.Backend),
		slog.String("bus", cfg.Bus.Name),
		slog.Float64("hz", cfg.Frequency))
	return s, nil
}

// open opens the port named by arg at the configured frequency.
func (s *session) open(arg string) (*pwm.Port, error) {
	n, err := pwm.ParsePort(arg)
	if err != nil {
		return nil, err
	}
	return s.registry.Open(pwm.FromConfig(pwm.Config{Port: n, Frequency: s.cfg.Frequency}))
}

// enableOutputs releases OE once the channel registers hold the wanted state.
func (s *session) enableOutputs() error {
	if s.oe == nil {
		return nil
	}
	return s.oe.Enable()
}

// Close releases the session in reverse order. The OE line is released
// without being driven high.
func (s *session) Close() {
	if s.oe != nil {
		if err := s.oe.Release(); err != nil {
			s.log.Warn("release OE line", slog.Any("error", err))
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}
