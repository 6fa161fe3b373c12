package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Seann-Moser/pca9685-pwm/pkg/pwm"
)

// setCmd represents the set command
var setCmd = &cobra.Command{
	Use:   "set <port> <duty>",
	Short: "Set the duty cycle of a port",
	Long: `Set the duty cycle of a port to a value in [0,1]. Values outside the
range saturate.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		duty, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid duty cycle %q: %w", args[1], err)
		}
		return withPort(cmd, args[0], func(p *pwm.Port) error {
			return p.Write(duty)
		})
	},
}

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get <port>",
	Short: "Print the duty cycle of a port as reported by the board",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPort(cmd, args[0], nil)
	},
}

// onCmd represents the on command
var onCmd = &cobra.Command{
	Use:   "on <port>",
	Short: "Force a port fully on",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPort(cmd, args[0], (*pwm.Port).On)
	},
}

// offCmd represents the off command
var offCmd = &cobra.Command{
	Use:   "off <port>",
	Short: "Force a port fully off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPort(cmd, args[0], (*pwm.Port).Off)
	},
}

// allOffCmd represents the all-off command
var allOffCmd = &cobra.Command{
	Use:   "all-off <port>",
	Short: "Force every channel on the board of a port off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPort(cmd, args[0], (*pwm.Port).AllOff)
	},
}

// withPort opens the port named by arg, applies fn and prints the port
// state read back from the board. Only commands that write claim the OE
// line, and they hold it low so no board blanks while its registers change.
func withPort(cmd *cobra.Command, arg string, fn func(*pwm.Port) error) error {
	mode := oeUntouched
	if fn != nil {
		mode = oeEnabled
	}
	s, err := openSession(cmd, mode)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.open(arg)
	if err != nil {
		return err
	}
	if fn != nil {
		if err := fn(p); err != nil {
			return err
		}
		if err := s.enableOutputs(); err != nil {
			return err
		}
	}
	d, err := p.Read()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "port %d (board %d channel %d) %.4f at %v Hz\n",
		p.Number(), p.BoardIndex(), p.Channel(), d, p.Frequency())
	return nil
}

func init() {
	rootCmd.AddCommand(setCmd, getCmd, onCmd, offCmd, allOffCmd)
}
