package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mastercactapus/gprobe/logging"
)

// NewServeCommand runs the HTTP control surface.
func NewServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the probing API, events and metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			return serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9091", "Address to bind the gprobe server to.")
	return cmd
}

func serve(ctx context.Context) error {
	log := logging.WithComponent("serve")

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

	a := newAPI(t, st, cfg.Timings, cfg.Context)
	defer a.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: cfg.Addr, Handler: a}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info().Str("addr", cfg.Addr).Str("store", cfg.Store).Msg("listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
