package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httptransport "github.com/example/booking-engine/internal/http"
	"github.com/example/booking-engine/internal/jobs"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		migrate      bool
		secureCookie bool
	)

	c := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the completion sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := opts.open(ctx, false, migrate)
			if err != nil {
				return err
			}
			defer rt.close()

			svc, err := rt.services()
			if err != nil {
				return err
			}
			logger := rt.logger

			router := httptransport.NewRouter(httptransport.RouterConfig{
				Auth:         httptransport.NewAuthHandler(svc.auth, secureCookie, logger),
				Bookings:     httptransport.NewBookingHandler(svc.booking, logger),
				Availability: httptransport.NewAvailabilityHandler(svc.availability, logger),
				Catalog:      httptransport.NewCatalogHandler(svc.catalog, logger),
				Sessions:     svc.auth,
				Logger:       logger,
			})

			server := &http.Server{
				Addr:              rt.cfg.Addr(),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			stopSweeper := jobs.NewSweeper(svc.booking, rt.cfg.SweepInterval, logger).Start(ctx)
			defer stopSweeper()

			logger.Info("booking API listening", "addr", server.Addr, "storage", rt.cfg.Storage)
			return runServer(ctx, server, logger)
		},
	}

	c.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")
	c.Flags().BoolVar(&secureCookie, "secure-cookie", false, "mark the session cookie Secure (HTTPS only)")
	return c
}

// runServer serves until ctx is cancelled or the listener fails. It returns
// after the shutdown watcher has exited.
func runServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	served := make(chan struct{})
	watcher := make(chan struct{})
	go func() {
		defer close(watcher)
		select {
		case <-ctx.Done():
		case <-served:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	err := server.ListenAndServe()
	close(served)
	<-watcher
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var status bool

	c := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.open(cmd.Context(), true, false)
			if err != nil {
				return err
			}
			defer rt.close()

			if status {
				return rt.printMigrationStatus(cmd)
			}
			applied, err := rt.migrate(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("applied %d migration(s)\n", applied)
			return nil
		},
	}

	c.Flags().BoolVar(&status, "status", false, "report applied and pending migrations without applying them")
	return c
}

func (rt *runtime) printMigrationStatus(cmd *cobra.Command) error {
	reporter, ok := rt.store.(statusReporter)
	if !ok {
		return fmt.Errorf("storage %q has no schema", rt.cfg.Storage)
	}
	status, err := reporter.MigrationStatus(cmd.Context())
	if err != nil {
		return err
	}
	cmd.Printf("current version: %d\n", status.CurrentVersion)
	for _, m := range status.Pending {
		cmd.Printf("pending: %04d %s\n", m.Version, m.Description)
	}
	return nil
}
