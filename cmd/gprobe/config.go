package main

import (
	"github.com/spf13/cobra"

	"github.com/mastercactapus/gprobe/logging"
)

// NewConfigCommand manages the configuration file.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "write [PATH]",
		Short: "Write the effective configuration, including flag overrides, as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := cfg.Save(path); err != nil {
				return err
			}
			log := logging.WithComponent("cli")
			log.Info().Str("path", path).Msg("configuration written")
			return nil
		},
	})
	return cmd
}
