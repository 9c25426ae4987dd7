package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/andy/timebill/internal/api"
	"github.com/andy/timebill/internal/identity"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the JSON API. Without an identity shared secret every request acts
as the local user. With one, requests must come through a gateway that sends
the secret and the owner id headers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appInstance.Config

		addr := cfg.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		var provider identity.Provider = identity.Static(appInstance.Owner())
		if cfg.Identity.SharedSecret != "" {
			provider = identity.NewHeaderProvider(identity.Config{
				Header:             cfg.Identity.Header,
				SharedSecretHeader: cfg.Identity.SharedSecretHeader,
				SharedSecret:       cfg.Identity.SharedSecret,
			})
		}

		timeout, err := cfg.RequestTimeout()
		if err != nil {
			return err
		}

		server := api.NewServer(appInstance.Timer, appInstance.Entries, appInstance.Invoices, appInstance.Reports, provider)
		server.SetTimeout(timeout)
		server.SetClock(appInstance.Clock.Now)
		if cfg.Server.MetricsEnabled {
			server.EnableMetrics()
		}

		httpServer := &http.Server{
			Addr:              addr,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			log.Printf("[server] listening on %s", addr)
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		log.Printf("[server] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
}
