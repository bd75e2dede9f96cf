package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lsmon/iotauth/internal/app"
	"github.com/lsmon/iotauth/internal/log"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve session key requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
			if err != nil {
				return err
			}
			lg := backend.GetLogger("authd")

			a, err := app.NewAuthority(cfg, backend)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              cfg.Authority.Address,
				Handler:           a.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			lg.Noticef("authority listening on %s with %d entities", cfg.Authority.Address, len(cfg.Entity))

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-sig:
				lg.Notice("shutting down")
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}
}
