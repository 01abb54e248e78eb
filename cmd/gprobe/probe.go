package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mastercactapus/gprobe/logging"
	"github.com/mastercactapus/gprobe/probe"
)

// NewProbeCommand runs a single method without the HTTP surface.
func NewProbeCommand() *cobra.Command {
	var method, wcs, gcodeFile, axes string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Run one probing method and exit",
		Long: `Run one probing method and exit.

Parameters come from the methods section of the configuration file. The
session is advanced to its run step on its own; a required continuity check
waits until the probe pin reports contact.

The exit status is non-zero if the session does not complete.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := cfg.Method(method)
			if err != nil {
				return err
			}
			switch m := m.(type) {
			case probe.Custom:
				if gcodeFile == "" {
					return errors.New("--gcode is required for the custom method")
				}
				data, err := os.ReadFile(gcodeFile)
				if err != nil {
					return errors.Wrap(err, "read gcode")
				}
				m.GCode = string(data)
				return runProbe(cmd, m, wcs, timeout)
			case probe.Manual:
				if axes != "" {
					m.Axes = nil
					for _, a := range strings.Split(strings.ToUpper(axes), ",") {
						m.Axes = append(m.Axes, probe.Axis(strings.TrimSpace(a)))
					}
				}
				return runProbe(cmd, m, wcs, timeout)
			}
			return runProbe(cmd, m, wcs, timeout)
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", "touchplate", "Method to run (manual, touchplate, bitsetter, bitzero, custom).")
	cmd.Flags().StringVar(&wcs, "wcs", "", "Work coordinate system, G54 through G59.")
	cmd.Flags().StringVar(&gcodeFile, "gcode", "", "G-code file for the custom method.")
	cmd.Flags().StringVar(&axes, "axes", "", "Comma separated axes for the manual method.")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Give up after this long.")
	return cmd
}

func runProbe(cmd *cobra.Command, m probe.Method, wcs string, timeout time.Duration) error {
	pctx := cfg.Context
	if wcs != "" {
		pctx.CoordinateSystem = wcs
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := connect(cfg)
	if err != nil {
		return err
	}
	defer t.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return runHeadless(ctx, cmd.OutOrStdout(), probe.NewController(t, probe.Config{Timings: cfg.Timings, Store: st}), m, pctx)
}

// runHeadless runs one session to the end and writes its final status to out as JSON.
func runHeadless(ctx context.Context, out io.Writer, ctrl *probe.Controller, m probe.Method, pctx probe.Context) error {
	log := logging.WithComponent("cli")

	s, err := ctrl.Start(m, pctx)
	if err != nil {
		return err
	}
	if data, err := probe.EncodeMethod(m); err == nil {
		log.Info().RawJSON(logging.FieldMethod, data).Str("wcs", pctx.CoordinateSystem).Str(logging.FieldSessionID, s.ID()).Msg("session started")
	}

	if err := advance(ctx, s, log); err != nil {
		s.Cancel()
		<-s.Done()
		return err
	}

	status, err := s.Wait(ctx)
	if ctx.Err() != nil {
		s.Cancel()
		<-s.Done()
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(s.Status()); encErr != nil {
		log.Error().Err(encErr).Msg("encode status")
	}
	if err != nil {
		return err
	}
	if status.BestEffort {
		log.Warn().Msg("completed without a completion signal")
	}
	return nil
}

// advance walks the session to its run step and starts the run.
func advance(ctx context.Context, s *probe.Session, log zerolog.Logger) error {
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	var waiting bool
	for {
		err := s.Run()
		switch err {
		case nil:
			return nil
		case probe.ErrCheckPending:
			if !waiting {
				log.Info().Msg("waiting for probe continuity check, touch the probe to the tool")
				waiting = true
			}
		case probe.ErrNavigationUnconfirmed:
			if s.Status().State == probe.StateNavigating {
				err = s.ConfirmNavigation()
			} else {
				err = s.Next()
			}
			if err != nil {
				return err
			}
		default:
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.Done():
			_, err := s.Wait(ctx)
			return err
		case <-tick.C:
		}
	}
}
