package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mastercactapus/gprobe/calibration"
)

// NewCalibrationCommand manages stored calibration entries.
func NewCalibrationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibration",
		Short: "Show or clear stored calibration entries",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List all entries",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(s calibration.Store) error {
					list, err := s.List()
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "KEY\tVALUE\tMETHOD\tTIME")
					for _, e := range list {
						fmt.Fprintf(w, "%s\t%.3f\t%s\t%s\n", e.Key, e.Value, e.Method, e.Time.Format(time.RFC3339))
					}
					return w.Flush()
				})
			},
		},
		&cobra.Command{
			Use:   "get KEY",
			Short: "Print one entry as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(s calibration.Store) error {
					e, ok, err := s.Get(args[0])
					if err != nil {
						return err
					}
					if !ok {
						return errors.Errorf("no entry for %s", args[0])
					}
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(e)
				})
			},
		},
		&cobra.Command{
			Use:   "clear KEY",
			Short: "Remove an entry; it reads as unknown afterwards",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(func(s calibration.Store) error {
					return s.Clear(args[0])
				})
			},
		},
	)
	return cmd
}

func withStore(fn func(calibration.Store) error) error {
	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
