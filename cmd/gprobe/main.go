package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mastercactapus/gprobe/config"
	"github.com/mastercactapus/gprobe/logging"
)

var (
	configPath = "gprobe.yaml"
	logLevel   string
	cfg        *config.Config
)

// NewCommand returns the root command.
func NewCommand() *cobra.Command {
	var port, spjsURL string
	var baud int

	cmd := &cobra.Command{
		Use:           "gprobe",
		Short:         "gprobe runs probing sequences on a Grbl controller",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("log-level") {
				c.Log.Level = logLevel
			}
			if flags.Changed("port") {
				c.Connection.Port = port
			}
			if flags.Changed("spjs") {
				c.Connection.SPJS = spjsURL
			}
			if flags.Changed("baud") {
				c.Connection.Baud = baud
			}
			if err := c.Validate(); err != nil {
				return err
			}
			logging.Configure(logging.Config{Level: c.Log.Level, Console: c.Log.Console})
			cfg = c
			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&configPath, "config", "c", configPath, "Path to the configuration file.")
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "Log level (debug, info, warn, error).")
	globalFlags.StringVar(&port, "port", "", "Port path (or name if using SPJS).")
	globalFlags.StringVar(&spjsURL, "spjs", "", "Websocket URL of the SPJS server to use.")
	globalFlags.IntVar(&baud, "baud", 0, "Serial baud rate.")

	cmd.AddCommand(
		NewServeCommand(),
		NewProbeCommand(),
		NewCalibrationCommand(),
		NewConfigCommand(),
	)
	return cmd
}

func main() {
	if err := NewCommand().Execute(); err != nil {
		log := logging.WithComponent("cli")
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
