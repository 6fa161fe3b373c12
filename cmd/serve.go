package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Seann-Moser/pca9685-pwm/pkg/controller"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ports over HTTP",
	Long: `Serve the ports over HTTP until interrupted.

  GET  /api/ports/{port}        read a port
  PUT  /api/ports/{port}        {"duty_cycle":0.5} or {"state":"on"|"off"}
  POST /api/boards/{board}/off  force every channel of a board off

Ports listed in the config file are opened first, so their frequencies
decide the frequency of their boards.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd, oeDisabled)
		if err != nil {
			return err
		}
		defer s.Close()

		addr := s.cfg.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}

		c := controller.New(s.registry, s.cfg.Frequency, s.log)
		if err := c.Apply(s.cfg.Ports); err != nil {
			return err
		}
		if err := s.enableOutputs(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = c.StartServer(ctx, addr)
		if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
			err = nil
		}
		s.log.Info("server stopped", slog.String("addr", addr))
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides server.addr")
	rootCmd.AddCommand(serveCmd)
}
