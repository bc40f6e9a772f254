package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DoyleJ11/party-client/internal/devserver"
)

func newDevServerCmd(a *app) *cobra.Command {
	var (
		addr  string
		round time.Duration
	)
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory party backend for local play.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := devserver.New(
				devserver.WithLogger(a.log.Named("devserver")),
				devserver.WithRoundDuration(round),
			)
			return a.combine(serve(cmd.Context(), a.log, addr, srv.Handler()))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "listen address")
	cmd.Flags().DurationVar(&round, "round-duration", 3*time.Minute, "time allowed per round")
	return cmd
}

// serve runs handler until ctx is cancelled, then drains for a few seconds.
func serve(ctx context.Context, log *zap.Logger, addr string, handler http.Handler) error {
	hs := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr))
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
